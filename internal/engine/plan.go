/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/friendsincode/skald/internal/manifest"
	"github.com/friendsincode/skald/internal/media"
	"github.com/friendsincode/skald/internal/queue"
	"github.com/friendsincode/skald/internal/timeline"
)

// planPeriodUID identifies the single content period a plan is built over.
const planPeriodUID = "content"

// maxPlanSpans bounds span resolution. A plan that grows past this is
// cycling through the same spans instead of reaching the final one.
const maxPlanSpans = 10_000

// AdBreakPlan describes one ad group to stitch into the content: where it
// cues, the media for each ad, and how content resumes after the group.
type AdBreakPlan struct {
	// TimeUs is the content position the group cues at, or
	// media.TimeEndOfSource for a postroll.
	TimeUs int64

	// URIs locates the media of each ad in the group.
	URIs []string

	// DurationsUs holds each ad's duration, parallel to URIs.
	DurationsUs []int64

	// ResumeOffsetUs shifts the content resume position past TimeUs, for
	// breaks whose ad media replaces a stretch of content.
	ResumeOffsetUs int64

	// ServerSide marks the group as spliced into the content stream.
	ServerSide bool
}

// Span is one resolved stretch of output: a period span plus the renderer
// offset that places it on the output axis.
type Span struct {
	Info             queue.PeriodInfo
	RendererOffsetUs int64
}

// OutputStartUs returns where the span starts on the output axis.
func (s Span) OutputStartUs() int64 {
	return s.RendererOffsetUs + s.Info.StartPositionUs - queue.InitialRendererPositionOffsetUs
}

// OutputEndUs returns where the span ends on the output axis, or
// media.TimeUnset when the span's duration is unknown.
func (s Span) OutputEndUs() int64 {
	if s.Info.DurationUs == media.TimeUnset {
		return media.TimeUnset
	}
	return s.RendererOffsetUs + s.Info.DurationUs - queue.InitialRendererPositionOffsetUs
}

func (s Span) String() string {
	return fmt.Sprintf("%v@%d", s.Info, s.OutputStartUs())
}

// planStreams satisfies the queue's stream ownership without any media; the
// plan resolves span order, it does not load samples.
type planStreams struct{}

func (planStreams) Release() {}

// Plan is the resolved stitch order for one content input and its ad breaks:
// which spans play, in what order, and where each lands on the output axis.
// The last span of a complete plan has Info.IsFinal set.
type Plan struct {
	ContentDurationUs int64
	Timeline          timeline.Timeline
	Spans             []Span

	ads timeline.AdPlaybackState
	q   *queue.Queue
}

// BuildPlan resolves the span order for content of the given duration with
// the given ad breaks. Breaks must be in ascending cue order with a postroll,
// if any, last.
func BuildPlan(contentDurationUs int64, breaks []AdBreakPlan, log zerolog.Logger) (*Plan, error) {
	if contentDurationUs <= 0 {
		return nil, fmt.Errorf("engine: content duration must be positive, got %d", contentDurationUs)
	}
	ads, err := adStateForBreaks(contentDurationUs, breaks)
	if err != nil {
		return nil, err
	}

	p := &Plan{
		ContentDurationUs: contentDurationUs,
		Timeline:          timeline.SinglePeriod(planPeriodUID, contentDurationUs, ads),
		ads:               ads,
		q:                 queue.New(log),
	}
	if err := p.extend(p.Timeline); err != nil {
		return nil, err
	}
	p.refreshSpans()
	if n := len(p.Spans); n == 0 || !p.Spans[n-1].Info.IsFinal {
		return nil, fmt.Errorf("engine: ad plan incomplete after %d spans", len(p.Spans))
	}
	return p, nil
}

// PlanFromManifest builds the stitch plan for a manifest's ad breaks against
// content of the given duration.
func PlanFromManifest(m *manifest.Manifest, contentDurationUs int64, log zerolog.Logger) (*Plan, error) {
	breaks := make([]AdBreakPlan, len(m.AdBreaks))
	for i, b := range m.AdBreaks {
		timeUs := b.TimeUs
		if b.Postroll {
			timeUs = media.TimeEndOfSource
		}
		breaks[i] = AdBreakPlan{
			TimeUs:         timeUs,
			URIs:           b.Inputs,
			DurationsUs:    b.DurationsUs,
			ResumeOffsetUs: b.ResumeOffsetUs,
			ServerSide:     b.ServerSide,
		}
	}
	return BuildPlan(contentDurationUs, breaks, log)
}

// Ads returns the ad state the plan was last resolved against.
func (p *Plan) Ads() timeline.AdPlaybackState { return p.ads }

// Queue exposes the underlying period queue for drivers that advance
// through the plan.
func (p *Plan) Queue() *queue.Queue { return p.q }

// OutputDurationUs returns the total duration of the planned output, or
// media.TimeUnset when the final span's duration is unknown.
func (p *Plan) OutputDurationUs() int64 {
	if len(p.Spans) == 0 {
		return 0
	}
	return p.Spans[len(p.Spans)-1].OutputEndUs()
}

// ApplyAds reconciles the plan with an updated ad state, as published by an
// ad loader while the plan is being consumed. rendererPositionUs and
// maxRendererReadPositionUs describe how far the driver has played and read
// on the renderer axis. Spans that still match are kept; spans past the
// first mismatch are re-resolved. Returns false when the update invalidates
// the reading position and the driver must reseek.
func (p *Plan) ApplyAds(ads timeline.AdPlaybackState, rendererPositionUs, maxRendererReadPositionUs int64) (bool, error) {
	t := timeline.SinglePeriod(planPeriodUID, p.ContentDurationUs, ads)
	p.ads = ads
	p.Timeline = t
	keep := p.q.UpdateQueuedPeriods(t, rendererPositionUs, maxRendererReadPositionUs)
	if err := p.extend(t); err != nil {
		return keep, err
	}
	p.refreshSpans()
	return keep, nil
}

// extend resolves and enqueues spans until the final one. Resolution walks a
// private copy of the ad state, marking each traversed ad as played so that
// content resuming after a group does not run into the group again.
func (p *Plan) extend(t timeline.Timeline) error {
	walk := p.ads
	for n := 0; n <= maxPlanSpans; n++ {
		if loading := p.q.LoadingPeriod(); loading != nil && loading.Info.IsFinal {
			return nil
		}
		pb := queue.PlaybackState{Timeline: t}
		if p.q.Len() == 0 {
			pb.PeriodID = queue.ResolvePeriodIDForAds(t, planPeriodUID, 0, 0)
			pb.RequestedContentPositionUs = media.TimeUnset
		}
		info, ok := p.q.NextPeriodInfo(queue.InitialRendererPositionOffsetUs, pb)
		if !ok {
			// The next span cannot be resolved yet, typically an ad group
			// whose media is still loading. A later ApplyAds extends further.
			return nil
		}
		p.q.Enqueue(info, planStreams{})
		if info.ID.IsAd() {
			walk = walk.WithPlayedAd(info.ID.AdGroupIndex, info.ID.AdIndexInAdGroup)
			t = timeline.SinglePeriod(planPeriodUID, p.ContentDurationUs, walk)
		}
	}
	return fmt.Errorf("engine: ad plan did not settle after %d spans", maxPlanSpans)
}

func (p *Plan) refreshSpans() {
	spans := make([]Span, p.q.Len())
	for i := range spans {
		h := p.q.At(i)
		spans[i] = Span{Info: h.Info, RendererOffsetUs: h.RendererOffsetUs()}
	}
	p.Spans = spans
}

// adStateForBreaks translates break descriptions into a fully loaded ad
// state: counts, durations and media set, every ad available.
func adStateForBreaks(contentDurationUs int64, breaks []AdBreakPlan) (timeline.AdPlaybackState, error) {
	times := make([]int64, len(breaks))
	for i, b := range breaks {
		if len(b.URIs) == 0 {
			return timeline.AdPlaybackState{}, fmt.Errorf("engine: ad break %d has no ads", i)
		}
		if len(b.DurationsUs) != len(b.URIs) {
			return timeline.AdPlaybackState{}, fmt.Errorf("engine: ad break %d has %d durations for %d ads", i, len(b.DurationsUs), len(b.URIs))
		}
		for _, d := range b.DurationsUs {
			if d <= 0 {
				return timeline.AdPlaybackState{}, fmt.Errorf("engine: ad break %d has a non-positive ad duration", i)
			}
		}
		if b.ResumeOffsetUs < 0 {
			return timeline.AdPlaybackState{}, fmt.Errorf("engine: ad break %d has a negative resume offset", i)
		}
		if b.TimeUs == media.TimeEndOfSource {
			if i != len(breaks)-1 {
				return timeline.AdPlaybackState{}, fmt.Errorf("engine: postroll break %d must be last", i)
			}
			if b.ServerSide {
				// A server-side postroll group is never passed positionally,
				// so content after it would run into it forever.
				return timeline.AdPlaybackState{}, fmt.Errorf("engine: postroll break %d cannot be server side inserted", i)
			}
		} else {
			if b.TimeUs < 0 || b.TimeUs >= contentDurationUs {
				return timeline.AdPlaybackState{}, fmt.Errorf("engine: ad break %d cues at %d, outside the content", i, b.TimeUs)
			}
			if i > 0 && breaks[i-1].TimeUs != media.TimeEndOfSource && b.TimeUs <= breaks[i-1].TimeUs {
				return timeline.AdPlaybackState{}, fmt.Errorf("engine: ad break %d is not after break %d", i, i-1)
			}
		}
		times[i] = b.TimeUs
	}

	ads := timeline.NewAdPlaybackState("plan", times...)
	for i, b := range breaks {
		ads = ads.WithAdCount(i, len(b.URIs)).WithAdDurationsUs(i, b.DurationsUs...)
		for j, uri := range b.URIs {
			ads = ads.WithAdURI(i, j, uri)
		}
		if b.ResumeOffsetUs != 0 {
			ads = ads.WithContentResumeOffsetUs(i, b.ResumeOffsetUs)
		}
		if b.ServerSide {
			ads = ads.WithIsServerSideInserted(i, true)
		}
	}
	return ads.WithContentDurationUs(contentDurationUs), nil
}
