/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import "github.com/friendsincode/skald/internal/media"

// MediaClock derives the job position from the samples the renderers have
// written. Each track type advances to its furthest written timestamp; the
// position is the slowest track's time, so progress never runs ahead of a
// lagging track.
type MediaClock struct {
	timesUs map[media.TrackType]int64
}

// NewMediaClock creates a clock with no registered tracks.
func NewMediaClock() *MediaClock {
	return &MediaClock{timesUs: make(map[media.TrackType]int64)}
}

// Update advances the track type's time. Earlier timestamps are ignored;
// track times never move backwards.
func (c *MediaClock) Update(trackType media.TrackType, timeUs int64) {
	if prev, ok := c.timesUs[trackType]; ok && timeUs < prev {
		return
	}
	c.timesUs[trackType] = timeUs
}

// PositionUs returns the minimum track time, or 0 before any update.
func (c *MediaClock) PositionUs() int64 {
	first := true
	var positionUs int64
	for _, t := range c.timesUs {
		if first || t < positionUs {
			positionUs = t
			first = false
		}
	}
	if first {
		return 0
	}
	return positionUs
}
