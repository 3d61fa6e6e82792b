/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package timeline

import (
	"fmt"

	"github.com/friendsincode/skald/internal/media"
)

// AdState is the playback state of one ad in an ad group.
type AdState int

const (
	// AdStateUnavailable means the ad slot exists but no media is loaded yet.
	AdStateUnavailable AdState = iota
	// AdStateAvailable means the ad media is loaded and playable.
	AdStateAvailable
	// AdStatePlayed means the ad finished playing.
	AdStatePlayed
	// AdStateSkipped means the ad was skipped and will not be offered again.
	AdStateSkipped
	// AdStateError means the ad failed to load; the slot behaves as empty.
	AdStateError
)

// AdGroup is one group of ads cued at a single position in a period.
// TimeUs may be media.TimeEndOfSource for a postroll at the very end.
// Count is media.IndexUnset until the number of ads is known.
type AdGroup struct {
	TimeUs                int64
	Count                 int
	States                []AdState
	DurationsUs           []int64
	URIs                  []string
	ContentResumeOffsetUs int64
	ServerSideInserted    bool
}

// FirstAdIndexToPlay returns the index of the first ad that still needs to
// play, or Count when every ad is played, skipped or failed.
func (g AdGroup) FirstAdIndexToPlay() int {
	return g.NextAdIndexToPlay(-1)
}

// NextAdIndexToPlay returns the index of the first ad after lastPlayedAdIndex
// that still needs to play, or Count when there is none. Server-side-inserted
// groups never skip slots: their ads are part of the stream and play in order
// regardless of state.
func (g AdGroup) NextAdIndexToPlay(lastPlayedAdIndex int) int {
	i := lastPlayedAdIndex + 1
	for i < len(g.States) {
		if g.ServerSideInserted || g.States[i] == AdStateUnavailable || g.States[i] == AdStateAvailable {
			break
		}
		i++
	}
	return i
}

// HasUnplayedAds reports whether the group still has ads that need to play.
// A group whose count is not yet known is assumed to have them.
func (g AdGroup) HasUnplayedAds() bool {
	if g.Count == media.IndexUnset {
		return true
	}
	return g.FirstAdIndexToPlay() < g.Count
}

func (g AdGroup) withCount(count int) AdGroup {
	states := make([]AdState, count)
	copy(states, g.States)
	durations := make([]int64, count)
	for i := range durations {
		durations[i] = media.TimeUnset
	}
	copy(durations, g.DurationsUs)
	uris := make([]string, count)
	copy(uris, g.URIs)
	g.Count = count
	g.States = states
	g.DurationsUs = durations
	g.URIs = uris
	return g
}

func (g AdGroup) withAdState(state AdState, index int) AdGroup {
	states := make([]AdState, len(g.States))
	copy(states, g.States)
	states[index] = state
	g.States = states
	return g
}

// AdPlaybackState holds the ad groups of one period. The zero value has no
// ad groups. All mutators return copies.
type AdPlaybackState struct {
	AdsID              string
	AdGroups           []AdGroup
	AdResumePositionUs int64
	ContentDurationUs  int64
}

// NewAdPlaybackState creates a state with one empty, unloaded ad group per
// given group time. Group times must be in ascending order.
func NewAdPlaybackState(adsID string, adGroupTimesUs ...int64) AdPlaybackState {
	groups := make([]AdGroup, len(adGroupTimesUs))
	for i, t := range adGroupTimesUs {
		groups[i] = AdGroup{TimeUs: t, Count: media.IndexUnset}
	}
	return AdPlaybackState{
		AdsID:             adsID,
		AdGroups:          groups,
		ContentDurationUs: media.TimeUnset,
	}
}

// WithAdCount sets the number of ads in a group; new slots start unavailable.
func (s AdPlaybackState) WithAdCount(adGroupIndex, count int) AdPlaybackState {
	if count <= 0 {
		panic(fmt.Sprintf("timeline: ad count must be positive, got %d", count))
	}
	groups := s.copyGroups()
	groups[adGroupIndex] = groups[adGroupIndex].withCount(count)
	s.AdGroups = groups
	return s
}

// WithAdURI sets an ad's media URI and marks it available.
func (s AdPlaybackState) WithAdURI(adGroupIndex, adIndexInAdGroup int, uri string) AdPlaybackState {
	groups := s.copyGroups()
	g := groups[adGroupIndex]
	uris := make([]string, len(g.URIs))
	copy(uris, g.URIs)
	uris[adIndexInAdGroup] = uri
	g.URIs = uris
	g = g.withAdState(AdStateAvailable, adIndexInAdGroup)
	groups[adGroupIndex] = g
	s.AdGroups = groups
	return s
}

// WithAdDurationsUs sets the durations of all ads in a group.
func (s AdPlaybackState) WithAdDurationsUs(adGroupIndex int, durationsUs ...int64) AdPlaybackState {
	groups := s.copyGroups()
	g := groups[adGroupIndex]
	d := make([]int64, len(durationsUs))
	copy(d, durationsUs)
	g.DurationsUs = d
	groups[adGroupIndex] = g
	s.AdGroups = groups
	return s
}

// WithPlayedAd marks an ad as played.
func (s AdPlaybackState) WithPlayedAd(adGroupIndex, adIndexInAdGroup int) AdPlaybackState {
	return s.withState(AdStatePlayed, adGroupIndex, adIndexInAdGroup)
}

// WithSkippedAd marks an ad as skipped.
func (s AdPlaybackState) WithSkippedAd(adGroupIndex, adIndexInAdGroup int) AdPlaybackState {
	return s.withState(AdStateSkipped, adGroupIndex, adIndexInAdGroup)
}

// WithAdLoadError marks an ad as failed.
func (s AdPlaybackState) WithAdLoadError(adGroupIndex, adIndexInAdGroup int) AdPlaybackState {
	return s.withState(AdStateError, adGroupIndex, adIndexInAdGroup)
}

func (s AdPlaybackState) withState(state AdState, adGroupIndex, adIndexInAdGroup int) AdPlaybackState {
	groups := s.copyGroups()
	g := groups[adGroupIndex]
	if g.Count == media.IndexUnset {
		g = g.withCount(adIndexInAdGroup + 1)
	}
	groups[adGroupIndex] = g.withAdState(state, adIndexInAdGroup)
	s.AdGroups = groups
	return s
}

// WithContentResumeOffsetUs sets the offset added to the ad group position
// when resuming content after the group.
func (s AdPlaybackState) WithContentResumeOffsetUs(adGroupIndex int, offsetUs int64) AdPlaybackState {
	groups := s.copyGroups()
	groups[adGroupIndex].ContentResumeOffsetUs = offsetUs
	s.AdGroups = groups
	return s
}

// WithIsServerSideInserted marks an ad group as server-side inserted, meaning
// the ads are spliced into the same underlying stream as the content.
func (s AdPlaybackState) WithIsServerSideInserted(adGroupIndex int, serverSideInserted bool) AdPlaybackState {
	groups := s.copyGroups()
	groups[adGroupIndex].ServerSideInserted = serverSideInserted
	s.AdGroups = groups
	return s
}

// WithContentDurationUs sets the duration of the containing content.
func (s AdPlaybackState) WithContentDurationUs(contentDurationUs int64) AdPlaybackState {
	s.ContentDurationUs = contentDurationUs
	return s
}

func (s AdPlaybackState) copyGroups() []AdGroup {
	groups := make([]AdGroup, len(s.AdGroups))
	copy(groups, s.AdGroups)
	return groups
}

// AdGroupCount returns the number of ad groups.
func (s AdPlaybackState) AdGroupCount() int { return len(s.AdGroups) }

// IsAdAvailable reports whether an ad is (or is assumed to be) playable.
// Groups with an unknown count are optimistically assumed available.
func (s AdPlaybackState) IsAdAvailable(adGroupIndex, adIndexInAdGroup int) bool {
	if adGroupIndex >= len(s.AdGroups) {
		return false
	}
	g := s.AdGroups[adGroupIndex]
	if g.Count == media.IndexUnset {
		return true
	}
	return adIndexInAdGroup < g.Count && g.States[adIndexInAdGroup] == AdStateAvailable
}

// AdGroupIndexForPositionUs returns the index of the ad group the given
// content position falls into, meaning the closest group at or before the
// position that still has ads to play. Returns media.IndexUnset when the
// position plays as content.
func (s AdPlaybackState) AdGroupIndexForPositionUs(positionUs, periodDurationUs int64) int {
	index := len(s.AdGroups) - 1
	for index >= 0 && isPositionBeforeAdGroup(positionUs, periodDurationUs, s.AdGroups[index].TimeUs) {
		index--
	}
	if index >= 0 && s.AdGroups[index].HasUnplayedAds() {
		return index
	}
	return media.IndexUnset
}

// AdGroupIndexAfterPositionUs returns the index of the next ad group with
// ads that should play strictly after the given position. End-of-source
// groups are always after any real position. Returns media.IndexUnset when
// there is none.
func (s AdPlaybackState) AdGroupIndexAfterPositionUs(positionUs, periodDurationUs int64) int {
	if positionUs == media.TimeEndOfSource ||
		(periodDurationUs != media.TimeUnset && positionUs >= periodDurationUs) {
		return media.IndexUnset
	}
	index := 0
	for index < len(s.AdGroups) {
		g := s.AdGroups[index]
		pastGroup := g.TimeUs != media.TimeEndOfSource && g.TimeUs <= positionUs
		if !pastGroup && shouldPlayAdGroup(g) {
			break
		}
		index++
	}
	if index < len(s.AdGroups) {
		return index
	}
	return media.IndexUnset
}

func shouldPlayAdGroup(g AdGroup) bool {
	return g.Count == media.IndexUnset || g.HasUnplayedAds()
}

func isPositionBeforeAdGroup(positionUs, periodDurationUs, adGroupTimeUs int64) bool {
	if positionUs == media.TimeEndOfSource {
		return false
	}
	if adGroupTimeUs == media.TimeEndOfSource {
		return periodDurationUs == media.TimeUnset || positionUs < periodDurationUs
	}
	return positionUs < adGroupTimeUs
}
