/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package queue maintains the chain of period spans being played, read and
// loaded, and resolves which span follows which across content, ad groups
// and timeline changes. The queue holds no timeline of its own; callers pass
// the current timeline into every operation that needs one.
package queue

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/friendsincode/skald/internal/media"
	"github.com/friendsincode/skald/internal/timeline"
)

// InitialRendererPositionOffsetUs is the renderer position of the first
// enqueued span's start. Starting high keeps renderer positions positive
// through seeks before the start of the first period.
const InitialRendererPositionOffsetUs int64 = 1_000_000_000

// PlaybackState is the engine-side playback snapshot the queue resolves the
// first span from when it is empty.
type PlaybackState struct {
	Timeline                   timeline.Timeline
	PeriodID                   timeline.PeriodID
	PositionUs                 int64
	RequestedContentPositionUs int64
}

// Queue is the ordered chain of holders: playing first, loading last, with
// the reading holder in between. Not safe for concurrent use; one engine
// goroutine owns it.
type Queue struct {
	log          zerolog.Logger
	holders      []*Holder
	readingIndex int
}

// New creates an empty queue.
func New(log zerolog.Logger) *Queue {
	return &Queue{log: log.With().Str("component", "queue").Logger()}
}

// Len returns the number of queued holders.
func (q *Queue) Len() int { return len(q.holders) }

// At returns the holder at position i, playing first.
func (q *Queue) At(i int) *Holder { return q.holders[i] }

// PlayingPeriod returns the holder being played, or nil.
func (q *Queue) PlayingPeriod() *Holder {
	if len(q.holders) == 0 {
		return nil
	}
	return q.holders[0]
}

// ReadingPeriod returns the holder the renderers read from, or nil.
func (q *Queue) ReadingPeriod() *Holder {
	if len(q.holders) == 0 {
		return nil
	}
	return q.holders[q.readingIndex]
}

// LoadingPeriod returns the holder being loaded, or nil.
func (q *Queue) LoadingPeriod() *Holder {
	if len(q.holders) == 0 {
		return nil
	}
	return q.holders[len(q.holders)-1]
}

// NextPeriodInfo resolves the span that should be loaded next: the first
// span per the playback state when the queue is empty, otherwise the span
// following the loading holder. ok is false when the next span cannot be
// resolved yet (for example an ad group whose media has not loaded).
func (q *Queue) NextPeriodInfo(rendererPositionUs int64, pb PlaybackState) (info PeriodInfo, ok bool) {
	if len(q.holders) == 0 {
		return q.firstPeriodInfo(pb)
	}
	return q.followingPeriodInfo(pb.Timeline, q.LoadingPeriod())
}

// Enqueue appends a holder for the resolved span, taking ownership of its
// streams. Enqueueing after the final span, or after a span whose duration
// is still unknown, is a programming error.
func (q *Queue) Enqueue(info PeriodInfo, streams Streams) *Holder {
	offsetUs := InitialRendererPositionOffsetUs
	if n := len(q.holders); n > 0 {
		prev := q.holders[n-1]
		if prev.Info.IsFinal {
			panic("queue: enqueue after final period")
		}
		if prev.Info.DurationUs == media.TimeUnset {
			// The offset of the new span derives from the predecessor's
			// duration; an unknown duration would corrupt the renderer axis.
			panic("queue: enqueue after period of unknown duration")
		}
		offsetUs = prev.rendererOffsetUs + prev.Info.DurationUs - info.StartPositionUs
	}
	h := &Holder{Info: info, Streams: streams, rendererOffsetUs: offsetUs}
	q.holders = append(q.holders, h)
	q.log.Debug().
		Stringer("period", info.ID).
		Int64("start_us", info.StartPositionUs).
		Int64("renderer_offset_us", offsetUs).
		Msg("period enqueued")
	return h
}

// AdvancePlayingPeriod releases the playing holder and promotes its
// successor. Advancing an empty queue is a programming error. Returns the
// new playing holder, or nil when the queue drained.
func (q *Queue) AdvancePlayingPeriod() *Holder {
	if len(q.holders) == 0 {
		panic("queue: advance playing on empty queue")
	}
	front := q.holders[0]
	front.release()
	copy(q.holders, q.holders[1:])
	q.holders[len(q.holders)-1] = nil
	q.holders = q.holders[:len(q.holders)-1]
	if q.readingIndex > 0 {
		q.readingIndex--
	}
	q.log.Debug().Stringer("period", front.Info.ID).Msg("playing period advanced")
	return q.PlayingPeriod()
}

// AdvanceReadingPeriod moves the reading pointer to the next holder.
// Advancing past the loading holder is a programming error.
func (q *Queue) AdvanceReadingPeriod() *Holder {
	if q.readingIndex+1 >= len(q.holders) {
		panic("queue: advance reading past loading period")
	}
	q.readingIndex++
	return q.holders[q.readingIndex]
}

// RemoveAfter releases every holder after h. Returns true when the reading
// holder was among the removed.
func (q *Queue) RemoveAfter(h *Holder) bool {
	for i, held := range q.holders {
		if held == h {
			return q.removeAfter(i)
		}
	}
	panic("queue: remove after holder not in queue")
}

// removeAfter releases every holder past index. Returns true when the
// reading holder was removed; the reading pointer then falls back to the new
// loading holder.
func (q *Queue) removeAfter(index int) bool {
	readingRemoved := q.readingIndex > index
	for i := len(q.holders) - 1; i > index; i-- {
		q.holders[i].release()
		q.holders[i] = nil
		q.holders = q.holders[:i]
	}
	if readingRemoved {
		q.readingIndex = index
	}
	return readingRemoved
}

// Clear releases every holder and resets the queue.
func (q *Queue) Clear() {
	for _, h := range q.holders {
		h.release()
	}
	q.holders = q.holders[:0]
	q.readingIndex = 0
}

// UpdateQueuedPeriods reconciles the queue against an updated timeline.
// Holder infos are refreshed in place where the spans still match; holders
// past the first mismatch are released. Returns true when playback can
// continue from the current position, false when the caller must reseek:
// either the reading holder was removed, or its duration shrank to at or
// before the furthest renderer read position (maxRendererReadPositionUs on
// the renderer axis, or media.TimeEndOfSource once read to the end).
// Spans followed by a transition to the same stream are exempt from the
// read-position check.
func (q *Queue) UpdateQueuedPeriods(t timeline.Timeline, rendererPositionUs, maxRendererReadPositionUs int64) bool {
	var prev *Holder
	for i := 0; i < len(q.holders); i++ {
		h := q.holders[i]
		oldInfo := h.Info
		var newInfo PeriodInfo
		if prev == nil {
			newInfo = q.UpdatedPeriodInfo(t, oldInfo)
		} else {
			next, ok := q.followingPeriodInfo(t, prev)
			if !ok || !canKeep(oldInfo, next) {
				q.log.Debug().Stringer("period", oldInfo.ID).Msg("queued period no longer follows, removing tail")
				return !q.removeAfter(i - 1)
			}
			newInfo = next
		}
		h.Info = newInfo.withRequestedContentPositionUs(oldInfo.RequestedContentPositionUs)

		if !durationsCompatible(oldInfo.DurationUs, newInfo.DurationUs) {
			newDurationInRendererTime := int64(math.MaxInt64)
			if newInfo.DurationUs != media.TimeUnset {
				newDurationInRendererTime = h.ToRendererTime(newInfo.DurationUs)
			}
			isReadingAndReadBeyondNewDuration := h == q.ReadingPeriod() &&
				!h.Info.IsFollowedByTransitionToSameStream &&
				(maxRendererReadPositionUs == media.TimeEndOfSource ||
					maxRendererReadPositionUs >= newDurationInRendererTime)
			readingPeriodRemoved := q.removeAfter(i)
			q.log.Debug().
				Stringer("period", h.Info.ID).
				Int64("old_duration_us", oldInfo.DurationUs).
				Int64("new_duration_us", newInfo.DurationUs).
				Msg("queued period duration changed")
			return !readingPeriodRemoved && !isReadingAndReadBeyondNewDuration
		}
		prev = h
	}
	return true
}

// UpdatedPeriodInfo recomputes a span's info against a new timeline, keeping
// its id and start position.
func (q *Queue) UpdatedPeriodInfo(t timeline.Timeline, info PeriodInfo) PeriodInfo {
	id := info.ID
	p, ok := t.PeriodByUID(id.PeriodUID)
	if !ok {
		return info
	}
	updated, _ := buildPeriodInfo(t, p, id, info.StartPositionUs, info.RequestedContentPositionUs)
	return updated
}

// ResolvePeriodIDForAds maps a content position to the period id that should
// actually play there: the first ad still to play of the unplayed ad group
// covering the position, or the content span running into the next group.
func ResolvePeriodIDForAds(t timeline.Timeline, periodUID string, positionUs, windowSequence int64) timeline.PeriodID {
	p, ok := t.PeriodByUID(periodUID)
	if !ok {
		return timeline.ContentID(periodUID, windowSequence, media.IndexUnset)
	}
	adGroupIndex := p.AdGroupIndexForPositionUs(positionUs)
	if adGroupIndex == media.IndexUnset {
		return timeline.ContentID(periodUID, windowSequence, p.AdGroupIndexAfterPositionUs(positionUs))
	}
	return timeline.AdID(periodUID, windowSequence, adGroupIndex, p.FirstAdIndexToPlay(adGroupIndex))
}

func (q *Queue) firstPeriodInfo(pb PlaybackState) (PeriodInfo, bool) {
	id := pb.PeriodID
	if id.IsAd() {
		return adPeriodInfo(pb.Timeline, id.PeriodUID, id.AdGroupIndex, id.AdIndexInAdGroup,
			pb.RequestedContentPositionUs, id.WindowSequence)
	}
	return contentPeriodInfo(pb.Timeline, id.PeriodUID, pb.PositionUs,
		pb.RequestedContentPositionUs, id.WindowSequence)
}

// followingPeriodInfo resolves the span after prev's, or ok=false when it
// cannot be known yet.
func (q *Queue) followingPeriodInfo(t timeline.Timeline, prev *Holder) (PeriodInfo, bool) {
	info := prev.Info
	id := info.ID

	if info.IsLastInPeriod {
		periodIndex := t.IndexOfPeriod(id.PeriodUID)
		if periodIndex == media.IndexUnset {
			return PeriodInfo{}, false
		}
		nextPeriodIndex := t.NextPeriodIndex(periodIndex)
		if nextPeriodIndex == media.IndexUnset {
			return PeriodInfo{}, false
		}
		nextPeriod := t.Period(nextPeriodIndex)
		windowSequence := id.WindowSequence
		startPositionUs := int64(0)
		requestedContentPositionUs := int64(0)
		if t.Window(nextPeriod.WindowIndex).FirstPeriodIndex == nextPeriodIndex {
			// The next period opens a new window; start it from the window's
			// default position under a fresh window sequence.
			startPositionUs = t.Window(nextPeriod.WindowIndex).DefaultPositionUs
			requestedContentPositionUs = media.TimeUnset
			windowSequence = id.WindowSequence + 1
		}
		nextID := ResolvePeriodIDForAds(t, nextPeriod.UID, startPositionUs, windowSequence)
		if nextID.IsAd() {
			return adPeriodInfo(t, nextPeriod.UID, nextID.AdGroupIndex, nextID.AdIndexInAdGroup,
				requestedContentPositionUs, windowSequence)
		}
		return contentPeriodInfo(t, nextPeriod.UID, startPositionUs, requestedContentPositionUs, windowSequence)
	}

	p, ok := t.PeriodByUID(id.PeriodUID)
	if !ok {
		return PeriodInfo{}, false
	}

	if id.IsAd() {
		adGroupIndex := id.AdGroupIndex
		adCount := p.AdCountInGroup(adGroupIndex)
		if adCount == media.IndexUnset {
			return PeriodInfo{}, false
		}
		nextAdIndex := p.NextAdIndexToPlay(adGroupIndex, id.AdIndexInAdGroup)
		if nextAdIndex < adCount {
			if !p.IsAdAvailable(adGroupIndex, nextAdIndex) {
				return PeriodInfo{}, false
			}
			return adPeriodInfo(t, id.PeriodUID, adGroupIndex, nextAdIndex,
				info.RequestedContentPositionUs, id.WindowSequence)
		}
		// The group is done; resume content at the requested position, but
		// never before the group's resume point.
		startPositionUs := info.RequestedContentPositionUs
		if startPositionUs == media.TimeUnset {
			startPositionUs = t.Window(p.WindowIndex).DefaultPositionUs
		}
		if minStartUs := minStartPositionAfterAdGroupUs(p, adGroupIndex); minStartUs > startPositionUs {
			startPositionUs = minStartUs
		}
		return contentPeriodInfo(t, id.PeriodUID, startPositionUs,
			info.RequestedContentPositionUs, id.WindowSequence)
	}

	// Content span running into an ad group.
	adGroupIndex := id.NextAdGroupIndex
	adIndex := p.FirstAdIndexToPlay(adGroupIndex)
	adCount := p.AdCountInGroup(adGroupIndex)
	playedServerSideAd := p.IsServerSideInsertedAdGroup(adGroupIndex) &&
		adCount != media.IndexUnset && adIndex < adCount &&
		p.AdState(adGroupIndex, adIndex) == timeline.AdStatePlayed
	if adIndex == adCount || playedServerSideAd {
		// Nothing to play in the group; skip over it into content.
		return contentPeriodInfo(t, id.PeriodUID,
			minStartPositionAfterAdGroupUs(p, adGroupIndex), info.DurationUs, id.WindowSequence)
	}
	if !p.IsAdAvailable(adGroupIndex, adIndex) {
		return PeriodInfo{}, false
	}
	return adPeriodInfo(t, id.PeriodUID, adGroupIndex, adIndex, info.DurationUs, id.WindowSequence)
}

func contentPeriodInfo(t timeline.Timeline, periodUID string, startPositionUs, requestedContentPositionUs, windowSequence int64) (PeriodInfo, bool) {
	p, ok := t.PeriodByUID(periodUID)
	if !ok {
		return PeriodInfo{}, false
	}
	id := timeline.ContentID(periodUID, windowSequence, p.AdGroupIndexAfterPositionUs(startPositionUs))
	// A resume at or past the period end still needs a playable position;
	// the next-group scan above already saw the original position.
	if p.DurationUs != media.TimeUnset && startPositionUs >= p.DurationUs {
		startPositionUs = p.DurationUs - 1
		if startPositionUs < 0 {
			startPositionUs = 0
		}
	}
	return buildPeriodInfo(t, p, id, startPositionUs, requestedContentPositionUs)
}

func adPeriodInfo(t timeline.Timeline, periodUID string, adGroupIndex, adIndexInAdGroup int, contentPositionUs, windowSequence int64) (PeriodInfo, bool) {
	p, ok := t.PeriodByUID(periodUID)
	if !ok {
		return PeriodInfo{}, false
	}
	id := timeline.AdID(periodUID, windowSequence, adGroupIndex, adIndexInAdGroup)
	return buildPeriodInfo(t, p, id, 0, contentPositionUs)
}

// buildPeriodInfo derives the full span info for an id. startPositionUs is
// only meaningful for content ids; ad start positions derive from the ad
// resume position.
func buildPeriodInfo(t timeline.Timeline, p timeline.Period, id timeline.PeriodID, startPositionUs, requestedContentPositionUs int64) (PeriodInfo, bool) {
	periodIndex := t.IndexOfPeriod(p.UID)
	isLastInPeriod := !id.IsAd() && id.NextAdGroupIndex == media.IndexUnset
	isLastInWindow := isLastInPeriod && t.IsLastPeriodInWindow(periodIndex)
	isFinal := isLastInWindow && t.IsLastWindow(p.WindowIndex) && !t.Window(p.WindowIndex).IsDynamic

	if id.IsAd() {
		if id.AdIndexInAdGroup == p.FirstAdIndexToPlay(id.AdGroupIndex) {
			startPositionUs = p.AdResumePositionUs()
		} else {
			startPositionUs = 0
		}
		durationUs := p.AdDurationUs(id.AdGroupIndex, id.AdIndexInAdGroup)
		if durationUs != media.TimeUnset && startPositionUs >= durationUs {
			startPositionUs = durationUs - 1
			if startPositionUs < 0 {
				startPositionUs = 0
			}
		}
		return PeriodInfo{
			ID:                                 id,
			StartPositionUs:                    startPositionUs,
			RequestedContentPositionUs:         requestedContentPositionUs,
			EndPositionUs:                      media.TimeUnset,
			DurationUs:                         durationUs,
			IsFollowedByTransitionToSameStream: p.IsServerSideInsertedAdGroup(id.AdGroupIndex),
		}, true
	}

	endPositionUs := media.TimeUnset
	durationUs := p.DurationUs
	sameStream := false
	if id.NextAdGroupIndex != media.IndexUnset {
		endPositionUs = p.AdGroupTimeUs(id.NextAdGroupIndex)
		if endPositionUs != media.TimeEndOfSource {
			durationUs = endPositionUs
		}
		sameStream = p.IsServerSideInsertedAdGroup(id.NextAdGroupIndex)
	}
	return PeriodInfo{
		ID:                                 id,
		StartPositionUs:                    startPositionUs,
		RequestedContentPositionUs:         requestedContentPositionUs,
		EndPositionUs:                      endPositionUs,
		DurationUs:                         durationUs,
		IsFollowedByTransitionToSameStream: sameStream,
		IsLastInPeriod:                     isLastInPeriod,
		IsLastInWindow:                     isLastInWindow,
		IsFinal:                            isFinal,
	}, true
}

// minStartPositionAfterAdGroupUs is the earliest content position playable
// after an ad group: the group position plus its resume offset, or one
// microsecond before the period end for end-of-source groups.
func minStartPositionAfterAdGroupUs(p timeline.Period, adGroupIndex int) int64 {
	groupTimeUs := p.AdGroupTimeUs(adGroupIndex)
	if groupTimeUs == media.TimeEndOfSource {
		if p.DurationUs == media.TimeUnset {
			return 0
		}
		return p.DurationUs - 1
	}
	return groupTimeUs + p.ContentResumeOffsetUs(adGroupIndex)
}
