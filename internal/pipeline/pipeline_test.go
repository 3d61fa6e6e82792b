/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package pipeline

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/friendsincode/skald/internal/codec"
	"github.com/friendsincode/skald/internal/media"
)

func TestPassthroughSingleBufferInFlight(t *testing.T) {
	p := NewPassthrough(media.Format{TrackType: media.TrackTypeAudio, SampleMime: media.MimeAudioAAC})

	buf, ok := p.DequeueInputBuffer()
	if !ok {
		t.Fatal("DequeueInputBuffer refused on empty pipeline")
	}
	buf.Set([]byte{1, 2, 3}, 42, true)
	if err := p.QueueInputBuffer(); err != nil {
		t.Fatalf("QueueInputBuffer: %v", err)
	}

	if _, ok := p.DequeueInputBuffer(); ok {
		t.Error("second DequeueInputBuffer succeeded with a buffer in flight")
	}

	out, ok := p.GetOutputBuffer()
	if !ok {
		t.Fatal("GetOutputBuffer returned nothing")
	}
	if out.TimeUs != 42 || !out.KeyFrame || len(out.Data) != 3 {
		t.Errorf("output buffer = %+v, want queued sample", out)
	}
	p.ReleaseOutputBuffer()

	if _, ok := p.GetOutputBuffer(); ok {
		t.Error("GetOutputBuffer returned a buffer after release")
	}
	if _, ok := p.DequeueInputBuffer(); !ok {
		t.Error("DequeueInputBuffer refused after release")
	}
}

func TestPassthroughEndOfStream(t *testing.T) {
	p := NewPassthrough(media.Format{TrackType: media.TrackTypeAudio, SampleMime: media.MimeAudioAAC})
	if p.IsEnded() {
		t.Fatal("IsEnded before any input")
	}
	buf, _ := p.DequeueInputBuffer()
	buf.SetEndOfStream()
	if err := p.QueueInputBuffer(); err != nil {
		t.Fatalf("QueueInputBuffer: %v", err)
	}
	if !p.IsEnded() {
		t.Error("IsEnded = false after queueing end of stream")
	}
}

func pumpToOutput(t *testing.T, p SamplePipeline, samples [][]byte) []media.Buffer {
	t.Helper()
	var out []media.Buffer
	i := 0
	eosQueued := false
	for !p.IsEnded() {
		if buf, ok := p.DequeueInputBuffer(); ok && !eosQueued {
			if i < len(samples) {
				buf.Set(samples[i], int64(i)*1000, i == 0)
				i++
			} else {
				buf.SetEndOfStream()
				eosQueued = true
			}
			if err := p.QueueInputBuffer(); err != nil {
				t.Fatalf("QueueInputBuffer: %v", err)
			}
		}
		if _, err := p.ProcessData(); err != nil {
			t.Fatalf("ProcessData: %v", err)
		}
		if buf, ok := p.GetOutputBuffer(); ok {
			got := media.Buffer{TimeUs: buf.TimeUs, KeyFrame: buf.KeyFrame}
			got.Data = append(got.Data, buf.Data...)
			out = append(out, got)
			p.ReleaseOutputBuffer()
		}
	}
	return out
}

func TestAudioTranscodePumpsAllSamples(t *testing.T) {
	format := media.Format{TrackType: media.TrackTypeAudio, SampleMime: media.MimeAudioRawPCM, SampleRate: 48000, ChannelCount: 2}
	factory := codec.IdentityFactory{}
	p, err := NewAudio(format, media.TransformRequest{}.WithAudioMime(media.MimeAudioAAC), nil, factory, factory)
	if err != nil {
		t.Fatalf("NewAudio: %v", err)
	}
	defer p.Release()

	samples := [][]byte{{1, 1}, {2, 2}, {3, 3}}
	out := pumpToOutput(t, p, samples)

	if len(out) != len(samples) {
		t.Fatalf("got %d output samples, want %d", len(out), len(samples))
	}
	for i, b := range out {
		if b.TimeUs != int64(i)*1000 {
			t.Errorf("sample %d time = %d, want %d", i, b.TimeUs, int64(i)*1000)
		}
	}
	if f, ok := p.OutputFormat(); !ok || f.SampleMime != media.MimeAudioAAC {
		t.Errorf("OutputFormat = %+v, want %s", f, media.MimeAudioAAC)
	}
}

func TestAudioProcessorChainRuns(t *testing.T) {
	format := media.Format{TrackType: media.TrackTypeAudio, SampleMime: media.MimeAudioRawPCM}
	factory := codec.IdentityFactory{}
	p, err := NewAudio(format, media.TransformRequest{}, []AudioProcessor{VolumeProcessor{Gain: 2}}, factory, factory)
	if err != nil {
		t.Fatalf("NewAudio: %v", err)
	}
	defer p.Release()

	pcm := make([]byte, 4)
	binary.LittleEndian.PutUint16(pcm[0:], uint16(int16(100)))
	negSample := int16(-200)
	binary.LittleEndian.PutUint16(pcm[2:], uint16(negSample))
	out := pumpToOutput(t, p, [][]byte{pcm})

	if len(out) != 1 {
		t.Fatalf("got %d output samples, want 1", len(out))
	}
	if got := int16(binary.LittleEndian.Uint16(out[0].Data[0:])); got != 200 {
		t.Errorf("sample 0 = %d, want 200", got)
	}
	if got := int16(binary.LittleEndian.Uint16(out[0].Data[2:])); got != -400 {
		t.Errorf("sample 1 = %d, want -400", got)
	}
}

type failingProcessor struct{ err error }

func (failingProcessor) Name() string                  { return "failing" }
func (f failingProcessor) Process(*media.Buffer) error { return f.err }

func TestAudioProcessorFailureSurfacesTypedError(t *testing.T) {
	format := media.Format{TrackType: media.TrackTypeAudio, SampleMime: media.MimeAudioRawPCM}
	factory := codec.IdentityFactory{}
	cause := errors.New("bad frame")
	p, err := NewAudio(format, media.TransformRequest{}, []AudioProcessor{failingProcessor{err: cause}}, factory, factory)
	if err != nil {
		t.Fatalf("NewAudio: %v", err)
	}
	defer p.Release()

	buf, _ := p.DequeueInputBuffer()
	buf.Set([]byte{1, 2}, 0, true)
	if err := p.QueueInputBuffer(); err != nil {
		t.Fatalf("QueueInputBuffer: %v", err)
	}
	_, err = p.ProcessData()
	var terr *media.Error
	if !errors.As(err, &terr) {
		t.Fatalf("ProcessData error = %v, want *media.Error", err)
	}
	if terr.Code != media.ErrorCodeFailedRuntimeCheck {
		t.Errorf("error code = %d, want %d", terr.Code, media.ErrorCodeFailedRuntimeCheck)
	}
	if !errors.Is(err, cause) {
		t.Error("typed error does not wrap the processor cause")
	}
}

func TestVideoTranscodeAppliesFormatTransforms(t *testing.T) {
	format := media.Format{TrackType: media.TrackTypeVideo, SampleMime: media.MimeVideoH264, Width: 1920, Height: 1080}
	factory := codec.IdentityFactory{}
	request := media.TransformRequest{}.WithVideoMime(media.MimeVideoH265).WithOutputHeight(720).WithRotationDeg(90)
	p, err := NewVideo(format, request, nil, factory, factory)
	if err != nil {
		t.Fatalf("NewVideo: %v", err)
	}
	defer p.Release()

	out := pumpToOutput(t, p, [][]byte{{0xAA}, {0xBB}})
	if len(out) != 2 {
		t.Fatalf("got %d output samples, want 2", len(out))
	}
	f, ok := p.OutputFormat()
	if !ok {
		t.Fatal("OutputFormat unknown")
	}
	if f.SampleMime != media.MimeVideoH265 {
		t.Errorf("output mime = %s, want %s", f.SampleMime, media.MimeVideoH265)
	}
	if f.Width != 1280 || f.Height != 720 {
		t.Errorf("output size = %dx%d, want 1280x720", f.Width, f.Height)
	}
	if f.RotationDeg != 90 {
		t.Errorf("rotation = %d, want 90", f.RotationDeg)
	}
}

func TestTranscodeEndOfStreamPropagates(t *testing.T) {
	format := media.Format{TrackType: media.TrackTypeAudio, SampleMime: media.MimeAudioRawPCM}
	factory := codec.IdentityFactory{}
	p, err := NewAudio(format, media.TransformRequest{}, nil, factory, factory)
	if err != nil {
		t.Fatalf("NewAudio: %v", err)
	}
	defer p.Release()

	buf, _ := p.DequeueInputBuffer()
	buf.SetEndOfStream()
	if err := p.QueueInputBuffer(); err != nil {
		t.Fatalf("QueueInputBuffer: %v", err)
	}
	if p.IsEnded() {
		t.Fatal("IsEnded before the marker cleared the encoder")
	}
	if _, err := p.ProcessData(); err != nil {
		t.Fatalf("ProcessData: %v", err)
	}
	if !p.IsEnded() {
		t.Error("IsEnded = false after end of stream cleared every stage")
	}
}
