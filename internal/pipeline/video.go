/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package pipeline

import (
	"github.com/friendsincode/skald/internal/codec"
	"github.com/friendsincode/skald/internal/media"
)

// Video is the video transcode pipeline: decode, transform frames, encode.
// Scaling and rotation are reflected in the output format; the frame
// transform hook runs per decoded sample.
type Video struct {
	transcoder
	outputHeight int
	rotationDeg  int
}

// FrameTransform transforms one decoded video frame in place.
type FrameTransform func(buf *media.Buffer) error

// NewVideo creates a video pipeline for the input format, applying the
// request's target MIME, output height and rotation.
func NewVideo(inputFormat media.Format, request media.TransformRequest, transform FrameTransform, encoderFactory codec.EncoderFactory, decoderFactory codec.DecoderFactory) (*Video, error) {
	decoder, err := decoderFactory.NewDecoder(inputFormat)
	if err != nil {
		return nil, media.ErrorForCodec(err, true, true)
	}
	encoder, err := encoderFactory.NewEncoder(inputFormat, request.VideoMime)
	if err != nil {
		decoder.Release()
		return nil, media.ErrorForCodec(err, false, true)
	}
	v := &Video{
		transcoder:   transcoder{decoder: decoder, encoder: encoder},
		outputHeight: request.OutputHeight,
		rotationDeg:  request.RotationDeg,
	}
	if transform != nil {
		v.process = func(buf *media.Buffer) error {
			if err := transform(buf); err != nil {
				return media.NewError(media.ErrorCodeGLProcessingFailed, "frame_transform", err)
			}
			return nil
		}
	}
	return v, nil
}

func (v *Video) OutputFormat() (media.Format, bool) {
	f, ok := v.transcoder.OutputFormat()
	if !ok {
		return f, false
	}
	if v.outputHeight != 0 && f.Height != 0 && v.outputHeight != f.Height {
		f.Width = f.Width * v.outputHeight / f.Height
		f.Height = v.outputHeight
	}
	if v.rotationDeg != 0 {
		f.RotationDeg = (f.RotationDeg + v.rotationDeg) % 360
	}
	return f, true
}
