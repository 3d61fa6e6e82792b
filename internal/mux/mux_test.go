/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mux

import (
	"bytes"
	"errors"
	"testing"

	"github.com/friendsincode/skald/internal/container"
	"github.com/friendsincode/skald/internal/media"
)

func TestSampleMimeTables(t *testing.T) {
	tests := []struct {
		name          string
		containerMime string
		sampleMime    string
		want          bool
	}{
		{"mp4 accepts h264", media.ContainerMP4, media.MimeVideoH264, true},
		{"mp4 accepts h265", media.ContainerMP4, media.MimeVideoH265, true},
		{"mp4 accepts aac", media.ContainerMP4, media.MimeAudioAAC, true},
		{"mp4 accepts amr-wb", media.ContainerMP4, media.MimeAudioAMRWB, true},
		{"mp4 rejects vp9", media.ContainerMP4, media.MimeVideoVP9, false},
		{"mp4 rejects vorbis", media.ContainerMP4, media.MimeAudioVorbis, false},
		{"webm accepts vp8", media.ContainerWebM, media.MimeVideoVP8, true},
		{"webm accepts vorbis", media.ContainerWebM, media.MimeAudioVorbis, true},
		{"webm rejects h264", media.ContainerWebM, media.MimeVideoH264, false},
		{"webm rejects aac", media.ContainerWebM, media.MimeAudioAAC, false},
		{"unknown container accepts anything", "", media.MimeAudioRawPCM, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSupportedSampleMime(tt.containerMime, tt.sampleMime); got != tt.want {
				t.Errorf("IsSupportedSampleMime(%q, %q) = %v, want %v", tt.containerMime, tt.sampleMime, got, tt.want)
			}
		})
	}
}

func TestSampleLogMuxerStartsLazily(t *testing.T) {
	var buf bytes.Buffer
	m := NewSampleLogMuxer(&buf, "")

	idx, err := m.AddTrack(media.Format{TrackType: media.TrackTypeAudio, SampleMime: media.MimeAudioAAC})
	if err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	if buf.Len() != 0 {
		t.Error("container started before the first sample")
	}

	if err := m.WriteSample(idx, []byte{1, 2}, true, 0); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	if _, err := m.AddTrack(media.Format{TrackType: media.TrackTypeVideo}); err == nil {
		t.Error("AddTrack after first sample succeeded")
	}
	if err := m.Release(false); err != nil {
		t.Fatalf("Release: %v", err)
	}

	r, err := container.NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if tracks := r.Tracks(); len(tracks) != 1 || tracks[0].SampleMime != media.MimeAudioAAC {
		t.Errorf("tracks = %+v", tracks)
	}
	s, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if s.TrackIndex != 0 || !s.KeyFrame || !bytes.Equal(s.Data, []byte{1, 2}) {
		t.Errorf("sample = %+v", s)
	}
}

func TestSampleLogMuxerHonoursContainerTable(t *testing.T) {
	m := NewSampleLogMuxer(&bytes.Buffer{}, media.ContainerMP4)
	if !m.SupportsSampleMime(media.MimeVideoH264) {
		t.Error("mp4 muxer rejected h264")
	}
	if m.SupportsSampleMime(media.MimeVideoVP9) {
		t.Error("mp4 muxer accepted vp9")
	}
}

func newTestWrapper(t *testing.T, trackCount int) (*Wrapper, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	return NewWrapper(NewSampleLogMuxer(&buf, ""), trackCount), &buf
}

func TestWrapperGatesUntilAllTracksAdded(t *testing.T) {
	w, _ := newTestWrapper(t, 2)
	if err := w.AddTrackFormat(media.Format{TrackType: media.TrackTypeAudio, SampleMime: media.MimeAudioAAC}); err != nil {
		t.Fatalf("AddTrackFormat: %v", err)
	}
	if w.IsReady() {
		t.Error("ready with one of two tracks")
	}

	written, err := w.WriteSample(media.TrackTypeAudio, []byte{1}, true, 0)
	if err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	if written {
		t.Error("sample written before all tracks were added")
	}

	if err := w.AddTrackFormat(media.Format{TrackType: media.TrackTypeVideo, SampleMime: media.MimeVideoH264}); err != nil {
		t.Fatalf("AddTrackFormat: %v", err)
	}
	if !w.IsReady() {
		t.Error("not ready with both tracks added")
	}
	written, err = w.WriteSample(media.TrackTypeAudio, []byte{1}, true, 0)
	if err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	if !written {
		t.Error("sample refused after all tracks were added")
	}
}

func TestWrapperRejectsDecreasingSampleTimes(t *testing.T) {
	w, _ := newTestWrapper(t, 1)
	if err := w.AddTrackFormat(media.Format{TrackType: media.TrackTypeAudio, SampleMime: media.MimeAudioAAC}); err != nil {
		t.Fatalf("AddTrackFormat: %v", err)
	}
	if _, err := w.WriteSample(media.TrackTypeAudio, []byte{1}, true, 1000); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	_, err := w.WriteSample(media.TrackTypeAudio, []byte{2}, false, 999)
	var terr *media.Error
	if !errors.As(err, &terr) {
		t.Fatalf("WriteSample error = %v, want *media.Error", err)
	}
	if terr.Code != media.ErrorCodeFailedRuntimeCheck {
		t.Errorf("error code = %d, want %d", terr.Code, media.ErrorCodeFailedRuntimeCheck)
	}
}

func TestWrapperLimitsTrackWriteAhead(t *testing.T) {
	w, _ := newTestWrapper(t, 2)
	if err := w.AddTrackFormat(media.Format{TrackType: media.TrackTypeAudio, SampleMime: media.MimeAudioAAC}); err != nil {
		t.Fatalf("AddTrackFormat: %v", err)
	}
	if err := w.AddTrackFormat(media.Format{TrackType: media.TrackTypeVideo, SampleMime: media.MimeVideoH264}); err != nil {
		t.Fatalf("AddTrackFormat: %v", err)
	}

	written, err := w.WriteSample(media.TrackTypeVideo, []byte{1}, true, maxTrackWriteAheadUs+1)
	if err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	if written {
		t.Error("video ran past the write-ahead limit with audio at the start")
	}

	if written, err := w.WriteSample(media.TrackTypeAudio, []byte{1}, true, 400_000); err != nil || !written {
		t.Fatalf("WriteSample audio = (%v, %v), want written", written, err)
	}
	written, err = w.WriteSample(media.TrackTypeVideo, []byte{1}, true, maxTrackWriteAheadUs+1)
	if err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	if !written {
		t.Error("video refused after audio caught up")
	}

	// An ended track no longer holds the other back.
	w.EndTrack(media.TrackTypeAudio)
	written, err = w.WriteSample(media.TrackTypeVideo, []byte{1}, false, 10_000_000)
	if err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	if !written {
		t.Error("video held back by an ended audio track")
	}
}

func TestWrapperEndTrackAndIsEnded(t *testing.T) {
	w, _ := newTestWrapper(t, 2)
	if w.IsEnded() {
		t.Error("ended with no tracks registered")
	}
	if err := w.AddTrackFormat(media.Format{TrackType: media.TrackTypeAudio, SampleMime: media.MimeAudioAAC}); err != nil {
		t.Fatalf("AddTrackFormat: %v", err)
	}
	if err := w.AddTrackFormat(media.Format{TrackType: media.TrackTypeVideo, SampleMime: media.MimeVideoH264}); err != nil {
		t.Fatalf("AddTrackFormat: %v", err)
	}

	w.EndTrack(media.TrackTypeAudio)
	if w.IsEnded() {
		t.Error("ended with video still running")
	}
	w.EndTrack(media.TrackTypeAudio)
	if w.IsEnded() {
		t.Error("double EndTrack counted twice")
	}
	w.EndTrack(media.TrackTypeVideo)
	if !w.IsEnded() {
		t.Error("not ended with every track ended")
	}

	if _, err := w.WriteSample(media.TrackTypeAudio, []byte{1}, true, 0); err == nil {
		t.Error("sample for ended track succeeded")
	}
}

type failingMuxer struct{ Muxer }

func (failingMuxer) Release(forCancellation bool) error {
	return errors.New("stop failed")
}

func TestWrapperReleaseSwallowsErrorsOnlyWhenCancelling(t *testing.T) {
	base := NewSampleLogMuxer(&bytes.Buffer{}, "")
	w := NewWrapper(failingMuxer{base}, 1)
	if err := w.Release(true); err != nil {
		t.Errorf("Release(forCancellation) = %v, want nil", err)
	}

	w = NewWrapper(failingMuxer{base}, 1)
	err := w.Release(false)
	var terr *media.Error
	if !errors.As(err, &terr) {
		t.Fatalf("Release(false) = %v, want *media.Error", err)
	}
}
