/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package queue

import (
	"fmt"

	"github.com/friendsincode/skald/internal/media"
	"github.com/friendsincode/skald/internal/timeline"
)

// PeriodInfo describes one playable span: which period id it is, where it
// starts and ends within the period, and how it relates to its neighbors.
// PeriodInfo is immutable and comparable.
type PeriodInfo struct {
	ID timeline.PeriodID

	// StartPositionUs is where playback starts within the period.
	StartPositionUs int64

	// RequestedContentPositionUs is the content position originally asked
	// for when this span was resolved. media.TimeUnset when the span starts
	// from the window's default position. For an ad this is the content
	// position the ad interrupts.
	RequestedContentPositionUs int64

	// EndPositionUs is where the span is cut short by a following ad group,
	// media.TimeEndOfSource for a span running into a postroll, or
	// media.TimeUnset when the span runs to the period's end.
	EndPositionUs int64

	// DurationUs is the playable duration of the span, media.TimeUnset when
	// unknown (for example an ad whose media has not loaded).
	DurationUs int64

	// IsFollowedByTransitionToSameStream is set when the next span continues
	// in the same underlying stream (server-side ad insertion).
	IsFollowedByTransitionToSameStream bool

	// IsLastInPeriod is set on the final span of its period.
	IsLastInPeriod bool

	// IsLastInWindow is set on the final span of its window.
	IsLastInWindow bool

	// IsFinal is set on the final span of the whole timeline; nothing can
	// follow it.
	IsFinal bool
}

func (i PeriodInfo) withRequestedContentPositionUs(positionUs int64) PeriodInfo {
	i.RequestedContentPositionUs = positionUs
	return i
}

func (i PeriodInfo) String() string {
	return fmt.Sprintf("%s[%d..%d]", i.ID, i.StartPositionUs, i.EndPositionUs)
}

// durationsCompatible treats an unknown previous duration as matching any
// new duration.
func durationsCompatible(previousDurationUs, newDurationUs int64) bool {
	return previousDurationUs == media.TimeUnset || previousDurationUs == newDurationUs
}

// canKeep reports whether a queued span still matches its freshly resolved
// counterpart closely enough to keep the holder.
func canKeep(oldInfo, newInfo PeriodInfo) bool {
	return oldInfo.StartPositionUs == newInfo.StartPositionUs && oldInfo.ID == newInfo.ID
}
