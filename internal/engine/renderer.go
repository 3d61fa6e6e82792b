/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/friendsincode/skald/internal/codec"
	"github.com/friendsincode/skald/internal/media"
	"github.com/friendsincode/skald/internal/mux"
	"github.com/friendsincode/skald/internal/pipeline"
	"github.com/friendsincode/skald/internal/source"
	"github.com/friendsincode/skald/internal/telemetry"
)

type rendererState int

const (
	stateUnconfigured rendererState = iota
	stateConfigured
	stateEnded
)

// renderer moves one track from its stream through a sample pipeline into
// the muxer wrapper. It configures itself from the stream format on first
// render, picking passthrough or transcode, and ends once the pipeline's
// end-of-stream marker reaches the muxer.
type renderer struct {
	trackType      media.TrackType
	stream         source.Stream
	muxer          *mux.Wrapper
	request        media.TransformRequest
	processors     []pipeline.AudioProcessor
	encoderFactory codec.EncoderFactory
	decoderFactory codec.DecoderFactory
	clock          *MediaClock
	log            zerolog.Logger

	state      rendererState
	pipe       pipeline.SamplePipeline
	flattener  *SlowMotionFlattener
	staging    media.Buffer
	staged     bool
	trackAdded bool
	streamDone bool
}

func newRenderer(trackType media.TrackType, stream source.Stream, muxer *mux.Wrapper, request media.TransformRequest, processors []pipeline.AudioProcessor, encoderFactory codec.EncoderFactory, decoderFactory codec.DecoderFactory, clock *MediaClock, log zerolog.Logger) *renderer {
	return &renderer{
		trackType:      trackType,
		stream:         stream,
		muxer:          muxer,
		request:        request,
		processors:     processors,
		encoderFactory: encoderFactory,
		decoderFactory: decoderFactory,
		clock:          clock,
		log:            log.With().Stringer("track", trackType).Logger(),
	}
}

func (r *renderer) isEnded() bool { return r.state == stateEnded }

// render advances the track as far as it can without blocking. It reports
// whether any progress was made; no progress with no error means the track
// is waiting on input, the muxer, or a codec.
func (r *renderer) render() (bool, error) {
	if r.state == stateEnded {
		return false, nil
	}
	configured, err := r.ensureConfigured()
	if err != nil {
		return false, err
	}
	if !configured {
		return false, nil
	}
	progress, err := r.feedPipeline()
	if err != nil {
		return progress, err
	}
	processed, err := r.pipe.ProcessData()
	if err != nil {
		return progress || processed, err
	}
	progress = progress || processed
	drained, err := r.drainPipeline()
	if err != nil {
		return progress || drained, err
	}
	return progress || drained, nil
}

func (r *renderer) targetMime() string {
	if r.trackType == media.TrackTypeVideo {
		return r.request.VideoMime
	}
	return r.request.AudioMime
}

// ensureConfigured reads the track format and builds the pipeline. Returns
// false without error while the format is still unknown; the caller retries.
func (r *renderer) ensureConfigured() (bool, error) {
	if r.state != stateUnconfigured {
		return true, nil
	}
	format, ok := r.stream.Format()
	if !ok {
		return false, nil
	}
	targetMime := r.targetMime()
	if targetMime == "" && !r.muxer.SupportsSampleMime(format.SampleMime) {
		err := fmt.Errorf("no transcoding requested and container does not accept %s", format.SampleMime)
		return false, media.ErrorForMuxer(err, media.ErrorCodeMuxerSampleMimeUnsupported)
	}
	flatten := r.trackType == media.TrackTypeVideo &&
		r.request.FlattenForSlowMotion && format.SlowMotion
	if r.shouldPassthrough(format, targetMime, flatten) {
		r.pipe = pipeline.NewPassthrough(format)
	} else {
		var (
			p   pipeline.SamplePipeline
			err error
		)
		if r.trackType == media.TrackTypeVideo {
			p, err = pipeline.NewVideo(format, r.request, nil, r.encoderFactory, r.decoderFactory)
		} else {
			p, err = pipeline.NewAudio(format, r.request, r.processors, r.encoderFactory, r.decoderFactory)
		}
		if err != nil {
			return false, err
		}
		r.pipe = p
	}
	if flatten {
		r.flattener = NewSlowMotionFlattener(DefaultSlowMotionSpeed)
	}
	r.state = stateConfigured
	r.log.Debug().
		Str("sample_mime", format.SampleMime).
		Bool("passthrough", r.flattener == nil && targetMime == "").
		Msg("renderer configured")
	return true, nil
}

// shouldPassthrough decides whether samples can skip the codecs entirely.
func (r *renderer) shouldPassthrough(format media.Format, targetMime string, flatten bool) bool {
	if flatten {
		return false
	}
	if targetMime != "" && targetMime != format.SampleMime {
		return false
	}
	if r.trackType == media.TrackTypeAudio && len(r.processors) > 0 {
		return false
	}
	if r.trackType == media.TrackTypeVideo {
		if r.request.OutputHeight != 0 && r.request.OutputHeight != format.Height {
			return false
		}
		if r.request.RotationDeg%360 != 0 {
			return false
		}
	}
	return true
}

// feedPipeline moves at most one sample from the stream into the pipeline.
// Samples are staged in the renderer first so the flattener can drop them
// without disturbing the pipeline's input contract.
func (r *renderer) feedPipeline() (bool, error) {
	if r.streamDone && !r.staged {
		return false, nil
	}
	if !r.staged {
		read, err := r.stream.Read(&r.staging)
		if err != nil {
			return false, err
		}
		if !read {
			return false, nil
		}
		if r.staging.EndOfStream {
			r.streamDone = true
		} else if r.flattener != nil && r.flattener.Apply(&r.staging) {
			return true, nil
		}
		r.staged = true
	}
	buf, ok := r.pipe.DequeueInputBuffer()
	if !ok {
		return false, nil
	}
	if r.staging.EndOfStream {
		buf.SetEndOfStream()
	} else {
		buf.Set(r.staging.Data, r.staging.TimeUs, r.staging.KeyFrame)
	}
	if err := r.pipe.QueueInputBuffer(); err != nil {
		return false, err
	}
	r.staged = false
	return true, nil
}

// drainPipeline writes pipeline output into the muxer wrapper, registering
// the track format first. The wrapper may refuse a sample to keep tracks
// interleaved; the sample stays pending and is retried on the next render.
func (r *renderer) drainPipeline() (bool, error) {
	if !r.trackAdded {
		format, ok := r.pipe.OutputFormat()
		if !ok {
			return false, nil
		}
		if err := r.muxer.AddTrackFormat(format); err != nil {
			return false, err
		}
		r.trackAdded = true
	}
	progress := false
	for {
		buf, ok := r.pipe.GetOutputBuffer()
		if !ok {
			break
		}
		if buf.EndOfStream {
			break
		}
		written, err := r.muxer.WriteSample(r.trackType, buf.Data, buf.KeyFrame, buf.TimeUs)
		if err != nil {
			return progress, err
		}
		if !written {
			break
		}
		r.clock.Update(r.trackType, buf.TimeUs)
		r.pipe.ReleaseOutputBuffer()
		telemetry.SamplesWritten.WithLabelValues(r.trackType.String()).Inc()
		progress = true
	}
	if r.pipe.IsEnded() {
		r.muxer.EndTrack(r.trackType)
		r.state = stateEnded
		r.log.Debug().Msg("renderer ended")
		progress = true
	}
	return progress, nil
}

func (r *renderer) release() {
	if r.pipe != nil {
		r.pipe.Release()
		r.pipe = nil
	}
}
