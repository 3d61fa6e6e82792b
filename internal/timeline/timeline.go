/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package timeline models the playout structure of a media item: windows of
// one or more periods, each period optionally carrying ad groups. Timelines
// are immutable; updates arrive as whole new values.
package timeline

import (
	"fmt"

	"github.com/friendsincode/skald/internal/media"
)

// Window is a span of the timeline that plays as one logical item.
type Window struct {
	FirstPeriodIndex        int
	LastPeriodIndex         int
	DurationUs              int64
	DefaultPositionUs       int64
	PositionInFirstPeriodUs int64
	IsSeekable              bool
	IsDynamic               bool
}

// Period is one contiguous piece of media within a window.
type Period struct {
	UID                string
	WindowIndex        int
	DurationUs         int64
	PositionInWindowUs int64
	Ads                AdPlaybackState
}

// AdGroupTimeUs returns the cue position of an ad group within the period.
func (p Period) AdGroupTimeUs(adGroupIndex int) int64 {
	return p.Ads.AdGroups[adGroupIndex].TimeUs
}

// AdCountInGroup returns the number of ads in a group, or media.IndexUnset
// when not yet known.
func (p Period) AdCountInGroup(adGroupIndex int) int {
	return p.Ads.AdGroups[adGroupIndex].Count
}

// AdDurationUs returns one ad's duration, or media.TimeUnset when unknown.
func (p Period) AdDurationUs(adGroupIndex, adIndexInAdGroup int) int64 {
	g := p.Ads.AdGroups[adGroupIndex]
	if adIndexInAdGroup >= len(g.DurationsUs) {
		return media.TimeUnset
	}
	return g.DurationsUs[adIndexInAdGroup]
}

// FirstAdIndexToPlay returns the first ad still to play in a group.
func (p Period) FirstAdIndexToPlay(adGroupIndex int) int {
	return p.Ads.AdGroups[adGroupIndex].FirstAdIndexToPlay()
}

// NextAdIndexToPlay returns the next ad still to play in a group after the
// given ad index.
func (p Period) NextAdIndexToPlay(adGroupIndex, lastPlayedAdIndex int) int {
	return p.Ads.AdGroups[adGroupIndex].NextAdIndexToPlay(lastPlayedAdIndex)
}

// AdState returns the state of one ad slot.
func (p Period) AdState(adGroupIndex, adIndexInAdGroup int) AdState {
	return p.Ads.AdGroups[adGroupIndex].States[adIndexInAdGroup]
}

// AdResumePositionUs returns the position to resume the first ad of a group
// at, used after an interrupted ad playout.
func (p Period) AdResumePositionUs() int64 {
	return p.Ads.AdResumePositionUs
}

// IsAdAvailable reports whether an ad is playable, per the ad state.
func (p Period) IsAdAvailable(adGroupIndex, adIndexInAdGroup int) bool {
	return p.Ads.IsAdAvailable(adGroupIndex, adIndexInAdGroup)
}

// IsServerSideInsertedAdGroup reports whether the group is spliced into the
// same stream as the content.
func (p Period) IsServerSideInsertedAdGroup(adGroupIndex int) bool {
	return p.Ads.AdGroups[adGroupIndex].ServerSideInserted
}

// ContentResumeOffsetUs returns the offset applied when content resumes
// after the group.
func (p Period) ContentResumeOffsetUs(adGroupIndex int) int64 {
	return p.Ads.AdGroups[adGroupIndex].ContentResumeOffsetUs
}

// AdGroupIndexForPositionUs returns the unplayed ad group covering the
// position, or media.IndexUnset.
func (p Period) AdGroupIndexForPositionUs(positionUs int64) int {
	return p.Ads.AdGroupIndexForPositionUs(positionUs, p.DurationUs)
}

// AdGroupIndexAfterPositionUs returns the next playable ad group strictly
// after the position, or media.IndexUnset.
func (p Period) AdGroupIndexAfterPositionUs(positionUs int64) int {
	return p.Ads.AdGroupIndexAfterPositionUs(positionUs, p.DurationUs)
}

// Timeline is an immutable snapshot of windows and periods.
type Timeline struct {
	windows       []Window
	periods       []Period
	indexByPeriod map[string]int
}

// New builds a timeline. Period UIDs must be unique.
func New(windows []Window, periods []Period) Timeline {
	index := make(map[string]int, len(periods))
	for i, p := range periods {
		if _, dup := index[p.UID]; dup {
			panic(fmt.Sprintf("timeline: duplicate period uid %q", p.UID))
		}
		index[p.UID] = i
	}
	return Timeline{windows: windows, periods: periods, indexByPeriod: index}
}

// SinglePeriod builds a one-window, one-period timeline, the common case.
func SinglePeriod(periodUID string, durationUs int64, ads AdPlaybackState) Timeline {
	return New(
		[]Window{{
			LastPeriodIndex: 0,
			DurationUs:      durationUs,
			IsSeekable:      true,
		}},
		[]Period{{
			UID:        periodUID,
			DurationUs: durationUs,
			Ads:        ads,
		}},
	)
}

// IsEmpty reports whether the timeline has no periods.
func (t Timeline) IsEmpty() bool { return len(t.periods) == 0 }

// WindowCount returns the number of windows.
func (t Timeline) WindowCount() int { return len(t.windows) }

// PeriodCount returns the number of periods.
func (t Timeline) PeriodCount() int { return len(t.periods) }

// Window returns the window at the given index.
func (t Timeline) Window(windowIndex int) Window { return t.windows[windowIndex] }

// Period returns the period at the given index.
func (t Timeline) Period(periodIndex int) Period { return t.periods[periodIndex] }

// PeriodByUID returns the period with the given UID.
func (t Timeline) PeriodByUID(uid string) (Period, bool) {
	i, ok := t.indexByPeriod[uid]
	if !ok {
		return Period{}, false
	}
	return t.periods[i], true
}

// IndexOfPeriod returns the index of the period with the given UID, or
// media.IndexUnset when absent.
func (t Timeline) IndexOfPeriod(uid string) int {
	if i, ok := t.indexByPeriod[uid]; ok {
		return i
	}
	return media.IndexUnset
}

// NextPeriodIndex returns the index of the period following periodIndex in
// playout order, or media.IndexUnset at the end of the timeline.
func (t Timeline) NextPeriodIndex(periodIndex int) int {
	if periodIndex >= len(t.periods)-1 {
		return media.IndexUnset
	}
	return periodIndex + 1
}

// IsLastPeriodInWindow reports whether the period is its window's last.
func (t Timeline) IsLastPeriodInWindow(periodIndex int) bool {
	w := t.windows[t.periods[periodIndex].WindowIndex]
	return w.LastPeriodIndex == periodIndex
}

// IsLastWindow reports whether the window is the timeline's last.
func (t Timeline) IsLastWindow(windowIndex int) bool {
	return windowIndex == len(t.windows)-1
}
