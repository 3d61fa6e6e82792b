/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package container

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/friendsincode/skald/internal/media"
)

func TestWriteReadRoundTrip(t *testing.T) {
	tracks := []media.Format{
		{TrackType: media.TrackTypeVideo, SampleMime: media.MimeVideoH264, Width: 1280, Height: 720},
		{TrackType: media.TrackTypeAudio, SampleMime: media.MimeAudioAAC, SampleRate: 48000, ChannelCount: 2},
	}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteHeader(tracks); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if err := w.WriteSample(0, []byte{1, 2, 3}, true, 0); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	if err := w.WriteSample(1, []byte{4}, false, 21_333); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if got := r.Tracks(); len(got) != 2 || got[0] != tracks[0] || got[1] != tracks[1] {
		t.Errorf("Tracks() = %+v, want %+v", got, tracks)
	}

	s, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if s.TrackIndex != 0 || !s.KeyFrame || s.TimeUs != 0 || !bytes.Equal(s.Data, []byte{1, 2, 3}) {
		t.Errorf("first sample = %+v", s)
	}
	s, err = r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if s.TrackIndex != 1 || s.KeyFrame || s.TimeUs != 21_333 {
		t.Errorf("second sample = %+v", s)
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next at end = %v, want io.EOF", err)
	}
}

func TestWriterRejectsMisuse(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteSample(0, []byte{1}, true, 0); err == nil {
		t.Error("WriteSample before header succeeded")
	}
	if err := w.WriteHeader([]media.Format{{TrackType: media.TrackTypeAudio}}); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if err := w.WriteHeader(nil); err == nil {
		t.Error("second WriteHeader succeeded")
	}
	if err := w.WriteSample(3, []byte{1}, true, 0); err == nil {
		t.Error("WriteSample with out-of-range track succeeded")
	}
}

func TestReaderRejectsForeignData(t *testing.T) {
	if _, err := NewReader(bytes.NewReader([]byte("not a sample log at all"))); !errors.Is(err, ErrBadMagic) {
		t.Errorf("NewReader = %v, want ErrBadMagic", err)
	}
}
