/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package source feeds track samples into the engine. A Source owns the
// demuxed input and hands out one Stream per track type; streams are pull
// based, so the single engine goroutine reads at its own pace.
package source

import (
	"github.com/friendsincode/skald/internal/media"
)

// Stream is one track's sample feed. Read returns ok=false when nothing is
// available yet; once the track is exhausted it returns an end-of-stream
// buffer.
type Stream interface {
	// Format returns the track format, or ok=false while it is still
	// unknown. Callers retry until the format resolves.
	Format() (media.Format, bool)

	// Read fills buf with the next sample. ok=false means try again later.
	Read(buf *media.Buffer) (ok bool, err error)
}

// Source demuxes one input into per-track streams. Sources implement the
// stream-ownership contract of the period queue and are released through it.
type Source interface {
	// TrackTypes lists the track types the source carries.
	TrackTypes() []media.TrackType

	// SelectTrack returns the stream for a track type, or ok=false when the
	// source has no such track.
	SelectTrack(trackType media.TrackType) (Stream, bool)

	// Release frees the source and all its streams.
	Release()
}
