/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mux

import (
	"errors"
	"fmt"

	"github.com/friendsincode/skald/internal/media"
)

// maxTrackWriteAheadUs bounds how far a track may run ahead of the slowest
// non-ended track, keeping the container roughly interleaved.
const maxTrackWriteAheadUs int64 = 500_000

type wrapperTrack struct {
	index       int
	format      media.Format
	lastTimeUs  int64
	sampleCount int
	ended       bool
}

// Wrapper coordinates the per-track renderers writing into one muxer. It
// holds samples back until every declared track has registered its format,
// enforces non-decreasing sample times per track, and limits how far one
// track may run ahead of the others.
type Wrapper struct {
	muxer              Muxer
	expectedTrackCount int
	tracks             map[media.TrackType]*wrapperTrack
	endedCount         int
	released           bool
}

// NewWrapper wraps muxer for expectedTrackCount tracks.
func NewWrapper(muxer Muxer, expectedTrackCount int) *Wrapper {
	return &Wrapper{
		muxer:              muxer,
		expectedTrackCount: expectedTrackCount,
		tracks:             make(map[media.TrackType]*wrapperTrack, expectedTrackCount),
	}
}

// SupportsSampleMime reports whether the underlying muxer accepts the
// sample MIME type.
func (w *Wrapper) SupportsSampleMime(sampleMime string) bool {
	return w.muxer.SupportsSampleMime(sampleMime)
}

// AddTrackFormat registers the format of one track. Sample writes stay
// gated until every expected track has registered.
func (w *Wrapper) AddTrackFormat(format media.Format) error {
	if w.released {
		return errors.New("mux: wrapper released")
	}
	if len(w.tracks) >= w.expectedTrackCount {
		return fmt.Errorf("mux: all %d expected tracks already added", w.expectedTrackCount)
	}
	if _, dup := w.tracks[format.TrackType]; dup {
		return fmt.Errorf("mux: duplicate %s track", format.TrackType)
	}
	index, err := w.muxer.AddTrack(format)
	if err != nil {
		return media.ErrorForMuxer(err, media.ErrorCodeUnspecified)
	}
	w.tracks[format.TrackType] = &wrapperTrack{
		index:      index,
		format:     format,
		lastTimeUs: media.TimeUnset,
	}
	return nil
}

// IsReady reports whether every expected track has registered its format.
func (w *Wrapper) IsReady() bool {
	return len(w.tracks) == w.expectedTrackCount
}

// WriteSample writes one sample for the track type. It returns false
// without writing when the wrapper is not ready yet or the track must yield
// to a slower one; the caller retries with the same sample later.
func (w *Wrapper) WriteSample(trackType media.TrackType, data []byte, keyFrame bool, timeUs int64) (bool, error) {
	if w.released {
		return false, errors.New("mux: wrapper released")
	}
	track, ok := w.tracks[trackType]
	if !ok {
		return false, fmt.Errorf("mux: sample for unregistered %s track", trackType)
	}
	if track.ended {
		return false, fmt.Errorf("mux: sample for ended %s track", trackType)
	}
	if !w.IsReady() {
		return false, nil
	}
	if track.lastTimeUs != media.TimeUnset && timeUs < track.lastTimeUs {
		err := fmt.Errorf("%s sample time %d decreases from %d", trackType, timeUs, track.lastTimeUs)
		return false, media.ErrorForMuxer(err, media.ErrorCodeFailedRuntimeCheck)
	}
	if !w.canWriteSample(trackType, timeUs) {
		return false, nil
	}
	if err := w.muxer.WriteSample(track.index, data, keyFrame, timeUs); err != nil {
		return false, media.ErrorForMuxer(err, media.ErrorCodeUnspecified)
	}
	track.lastTimeUs = timeUs
	track.sampleCount++
	return true, nil
}

// canWriteSample checks the interleaving bound: the sample may not run more
// than maxTrackWriteAheadUs ahead of the slowest non-ended track.
func (w *Wrapper) canWriteSample(trackType media.TrackType, timeUs int64) bool {
	if len(w.tracks) == 1 {
		return true
	}
	for t, track := range w.tracks {
		if t == trackType || track.ended {
			continue
		}
		otherTimeUs := track.lastTimeUs
		if otherTimeUs == media.TimeUnset {
			otherTimeUs = 0
		}
		if timeUs-otherTimeUs > maxTrackWriteAheadUs {
			return false
		}
	}
	return true
}

// EndTrack marks a track as finished. Ended tracks no longer hold other
// tracks back.
func (w *Wrapper) EndTrack(trackType media.TrackType) {
	track, ok := w.tracks[trackType]
	if !ok || track.ended {
		return
	}
	track.ended = true
	w.endedCount++
}

// IsEnded reports whether every registered track has ended.
func (w *Wrapper) IsEnded() bool {
	return len(w.tracks) > 0 && w.endedCount == len(w.tracks)
}

// SampleCount returns how many samples were written for the track type.
func (w *Wrapper) SampleCount(trackType media.TrackType) int {
	if track, ok := w.tracks[trackType]; ok {
		return track.sampleCount
	}
	return 0
}

// Release finishes the container. With forCancellation set, stop errors are
// swallowed since a cancelled job has no use for them.
func (w *Wrapper) Release(forCancellation bool) error {
	if w.released {
		return nil
	}
	w.released = true
	err := w.muxer.Release(forCancellation)
	if forCancellation {
		return nil
	}
	if err != nil {
		return media.ErrorForMuxer(err, media.ErrorCodeUnspecified)
	}
	return nil
}
