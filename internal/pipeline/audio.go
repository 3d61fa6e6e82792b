/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package pipeline

import (
	"encoding/binary"
	"fmt"

	"github.com/friendsincode/skald/internal/codec"
	"github.com/friendsincode/skald/internal/media"
)

// AudioProcessor transforms decoded audio samples in place between the
// decoder and the encoder.
type AudioProcessor interface {
	Name() string
	Process(buf *media.Buffer) error
}

// Audio is the audio transcode pipeline: decode, run the processor chain,
// encode.
type Audio struct {
	transcoder
}

// NewAudio creates an audio pipeline for the input format, encoding to the
// request's audio MIME type (or the input type when unset).
func NewAudio(inputFormat media.Format, request media.TransformRequest, processors []AudioProcessor, encoderFactory codec.EncoderFactory, decoderFactory codec.DecoderFactory) (*Audio, error) {
	decoder, err := decoderFactory.NewDecoder(inputFormat)
	if err != nil {
		return nil, media.ErrorForCodec(err, true, true)
	}
	encoder, err := encoderFactory.NewEncoder(inputFormat, request.AudioMime)
	if err != nil {
		decoder.Release()
		return nil, media.ErrorForCodec(err, false, true)
	}
	a := &Audio{transcoder: transcoder{decoder: decoder, encoder: encoder}}
	if len(processors) > 0 {
		a.process = func(buf *media.Buffer) error {
			for _, p := range processors {
				if err := p.Process(buf); err != nil {
					return media.NewError(media.ErrorCodeFailedRuntimeCheck, "audio_processor_"+p.Name(), err)
				}
			}
			return nil
		}
	}
	return a, nil
}

// VolumeProcessor scales 16-bit little-endian PCM samples by a fixed gain.
type VolumeProcessor struct {
	// Gain multiplies each sample; 1.0 leaves the audio unchanged.
	Gain float64
}

func (VolumeProcessor) Name() string { return "volume" }

func (v VolumeProcessor) Process(buf *media.Buffer) error {
	if len(buf.Data)%2 != 0 {
		return fmt.Errorf("pcm payload of %d bytes is not 16-bit aligned", len(buf.Data))
	}
	for i := 0; i < len(buf.Data); i += 2 {
		s := int16(binary.LittleEndian.Uint16(buf.Data[i:]))
		scaled := float64(s) * v.Gain
		switch {
		case scaled > 32767:
			s = 32767
		case scaled < -32768:
			s = -32768
		default:
			s = int16(scaled)
		}
		binary.LittleEndian.PutUint16(buf.Data[i:], uint16(s))
	}
	return nil
}
