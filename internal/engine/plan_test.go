/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/skald/internal/manifest"
	"github.com/friendsincode/skald/internal/media"
	"github.com/friendsincode/skald/internal/queue"
)

func TestBuildPlanWithoutBreaks(t *testing.T) {
	plan, err := BuildPlan(10_000_000, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if len(plan.Spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(plan.Spans))
	}
	s := plan.Spans[0]
	if s.Info.ID.IsAd() || !s.Info.IsFinal {
		t.Errorf("span = %v, want final content", s)
	}
	if s.OutputStartUs() != 0 || s.OutputEndUs() != 10_000_000 {
		t.Errorf("span output = [%d..%d], want [0..10000000]", s.OutputStartUs(), s.OutputEndUs())
	}
	if got := plan.OutputDurationUs(); got != 10_000_000 {
		t.Errorf("OutputDurationUs = %d, want 10000000", got)
	}
}

func TestBuildPlanPrerollMidrollPostroll(t *testing.T) {
	breaks := []AdBreakPlan{
		{TimeUs: 0, URIs: []string{"pre.skald"}, DurationsUs: []int64{2_000_000}},
		{TimeUs: 4_000_000, URIs: []string{"mid1.skald", "mid2.skald"}, DurationsUs: []int64{1_000_000, 1_000_000}},
		{TimeUs: media.TimeEndOfSource, URIs: []string{"post.skald"}, DurationsUs: []int64{3_000_000}},
	}
	plan, err := BuildPlan(10_000_000, breaks, zerolog.Nop())
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}

	want := []struct {
		isAd          bool
		adGroup       int
		adIndex       int
		startUs       int64
		outputStartUs int64
	}{
		{true, 0, 0, 0, 0},
		{false, 0, 0, 0, 2_000_000},
		{true, 1, 0, 0, 6_000_000},
		{true, 1, 1, 0, 7_000_000},
		{false, 0, 0, 4_000_000, 8_000_000},
		{true, 2, 0, 0, 14_000_000},
		{false, 0, 0, 9_999_999, 17_000_000},
	}
	if len(plan.Spans) != len(want) {
		t.Fatalf("got %d spans, want %d: %v", len(plan.Spans), len(want), plan.Spans)
	}
	for i, w := range want {
		s := plan.Spans[i]
		if s.Info.ID.IsAd() != w.isAd {
			t.Errorf("span %d = %v, want isAd=%t", i, s, w.isAd)
			continue
		}
		if w.isAd && (s.Info.ID.AdGroupIndex != w.adGroup || s.Info.ID.AdIndexInAdGroup != w.adIndex) {
			t.Errorf("span %d = %v, want ad %d.%d", i, s, w.adGroup, w.adIndex)
		}
		if s.Info.StartPositionUs != w.startUs {
			t.Errorf("span %d start = %d, want %d", i, s.Info.StartPositionUs, w.startUs)
		}
		if s.OutputStartUs() != w.outputStartUs {
			t.Errorf("span %d output start = %d, want %d", i, s.OutputStartUs(), w.outputStartUs)
		}
	}
	last := plan.Spans[len(plan.Spans)-1]
	if !last.Info.IsFinal {
		t.Errorf("last span %v is not final", last)
	}
	if got := plan.OutputDurationUs(); got != 17_000_001 {
		t.Errorf("OutputDurationUs = %d, want 17000001", got)
	}
}

func TestBuildPlanRejectsBadBreaks(t *testing.T) {
	tests := []struct {
		name       string
		durationUs int64
		breaks     []AdBreakPlan
		wantErr    string
	}{
		{
			"non-positive content duration",
			0, nil,
			"content duration",
		},
		{
			"break without ads",
			10_000_000,
			[]AdBreakPlan{{TimeUs: 0}},
			"no ads",
		},
		{
			"durations do not match ads",
			10_000_000,
			[]AdBreakPlan{{TimeUs: 0, URIs: []string{"a", "b"}, DurationsUs: []int64{1_000_000}}},
			"durations",
		},
		{
			"breaks out of order",
			10_000_000,
			[]AdBreakPlan{
				{TimeUs: 5_000_000, URIs: []string{"a"}, DurationsUs: []int64{1}},
				{TimeUs: 3_000_000, URIs: []string{"b"}, DurationsUs: []int64{1}},
			},
			"not after",
		},
		{
			"postroll not last",
			10_000_000,
			[]AdBreakPlan{
				{TimeUs: media.TimeEndOfSource, URIs: []string{"a"}, DurationsUs: []int64{1}},
				{TimeUs: 3_000_000, URIs: []string{"b"}, DurationsUs: []int64{1}},
			},
			"must be last",
		},
		{
			"server side postroll",
			10_000_000,
			[]AdBreakPlan{{TimeUs: media.TimeEndOfSource, URIs: []string{"a"}, DurationsUs: []int64{1}, ServerSide: true}},
			"server side",
		},
		{
			"cue outside content",
			10_000_000,
			[]AdBreakPlan{{TimeUs: 10_000_000, URIs: []string{"a"}, DurationsUs: []int64{1}}},
			"outside",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildPlan(tt.durationUs, tt.breaks, zerolog.Nop())
			if err == nil {
				t.Fatal("BuildPlan succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestApplyAdsDropsPlayedGroup(t *testing.T) {
	breaks := []AdBreakPlan{
		{TimeUs: 4_000_000, URIs: []string{"mid.skald"}, DurationsUs: []int64{1_000_000}},
	}
	plan, err := BuildPlan(10_000_000, breaks, zerolog.Nop())
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if len(plan.Spans) != 3 {
		t.Fatalf("got %d spans, want 3: %v", len(plan.Spans), plan.Spans)
	}

	keep, err := plan.ApplyAds(plan.Ads().WithPlayedAd(0, 0),
		queue.InitialRendererPositionOffsetUs, queue.InitialRendererPositionOffsetUs)
	if err != nil {
		t.Fatalf("ApplyAds: %v", err)
	}
	if !keep {
		t.Error("ApplyAds = reseek, want keep")
	}
	if len(plan.Spans) != 2 {
		t.Fatalf("got %d spans after update, want 2: %v", len(plan.Spans), plan.Spans)
	}
	for i, s := range plan.Spans {
		if s.Info.ID.IsAd() {
			t.Errorf("span %d = %v, want content only", i, s)
		}
	}
	if !plan.Spans[1].Info.IsFinal {
		t.Errorf("last span %v is not final", plan.Spans[1])
	}
}

func TestApplyAdsSignalsReseekWhenReadingAdSkipped(t *testing.T) {
	breaks := []AdBreakPlan{
		{TimeUs: 4_000_000, URIs: []string{"mid1.skald", "mid2.skald"}, DurationsUs: []int64{1_000_000, 1_000_000}},
	}
	plan, err := BuildPlan(10_000_000, breaks, zerolog.Nop())
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if len(plan.Spans) != 4 {
		t.Fatalf("got %d spans, want 4: %v", len(plan.Spans), plan.Spans)
	}

	// The driver has moved on to reading the first ad.
	plan.Queue().AdvanceReadingPeriod()

	keep, err := plan.ApplyAds(plan.Ads().WithSkippedAd(0, 0),
		queue.InitialRendererPositionOffsetUs, queue.InitialRendererPositionOffsetUs)
	if err != nil {
		t.Fatalf("ApplyAds: %v", err)
	}
	if keep {
		t.Error("ApplyAds = keep, want reseek")
	}
	if len(plan.Spans) != 3 {
		t.Fatalf("got %d spans after update, want 3: %v", len(plan.Spans), plan.Spans)
	}
	ad := plan.Spans[1]
	if !ad.Info.ID.IsAd() || ad.Info.ID.AdIndexInAdGroup != 1 {
		t.Errorf("span 1 = %v, want second ad of the group", ad)
	}
}

func TestPlanFromManifestPostroll(t *testing.T) {
	m := &manifest.Manifest{
		Input:  "in.skald",
		Output: "out.skald",
		AdBreaks: []manifest.AdBreak{
			{Postroll: true, Inputs: []string{"post.skald"}, DurationsUs: []int64{2_000_000}},
		},
	}
	plan, err := PlanFromManifest(m, 5_000_000, zerolog.Nop())
	if err != nil {
		t.Fatalf("PlanFromManifest: %v", err)
	}
	if len(plan.Spans) != 3 {
		t.Fatalf("got %d spans, want 3: %v", len(plan.Spans), plan.Spans)
	}
	if !plan.Spans[1].Info.ID.IsAd() {
		t.Errorf("span 1 = %v, want postroll ad", plan.Spans[1])
	}
	if got := plan.OutputDurationUs(); got != 7_000_001 {
		t.Errorf("OutputDurationUs = %d, want 7000001", got)
	}
}
