/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package pipeline

import (
	"github.com/friendsincode/skald/internal/codec"
	"github.com/friendsincode/skald/internal/media"
)

// transcoder is the decode → process → encode core shared by the audio and
// video pipelines. process runs in place on each decoded sample before it
// reaches the encoder.
type transcoder struct {
	decoder codec.Codec
	encoder codec.Codec
	process func(*media.Buffer) error

	eosSent  bool
	released bool
}

func (t *transcoder) DequeueInputBuffer() (*media.Buffer, bool) {
	if t.released {
		return nil, false
	}
	return t.decoder.DequeueInputBuffer()
}

func (t *transcoder) QueueInputBuffer() error {
	if err := t.decoder.QueueInputBuffer(); err != nil {
		return media.ErrorForCodec(err, true, false)
	}
	return nil
}

func (t *transcoder) ProcessData() (bool, error) {
	if t.released {
		return false, nil
	}
	progress := false
	for {
		out, ok := t.decoder.DequeueOutputBuffer()
		if !ok {
			if t.decoder.IsEnded() && !t.eosSent {
				in, ok := t.encoder.DequeueInputBuffer()
				if !ok {
					break
				}
				in.SetEndOfStream()
				if err := t.encoder.QueueInputBuffer(); err != nil {
					return progress, media.ErrorForCodec(err, false, false)
				}
				t.eosSent = true
				progress = true
			}
			break
		}
		in, ok := t.encoder.DequeueInputBuffer()
		if !ok {
			break
		}
		in.Set(out.Data, out.TimeUs, out.KeyFrame)
		if t.process != nil {
			if err := t.process(in); err != nil {
				return progress, err
			}
		}
		if err := t.encoder.QueueInputBuffer(); err != nil {
			return progress, media.ErrorForCodec(err, false, false)
		}
		t.decoder.ReleaseOutputBuffer()
		progress = true
	}
	return progress, nil
}

func (t *transcoder) OutputFormat() (media.Format, bool) {
	return t.encoder.OutputFormat()
}

func (t *transcoder) GetOutputBuffer() (*media.Buffer, bool) {
	if t.released {
		return nil, false
	}
	return t.encoder.DequeueOutputBuffer()
}

func (t *transcoder) ReleaseOutputBuffer() {
	t.encoder.ReleaseOutputBuffer()
}

func (t *transcoder) IsEnded() bool {
	return t.encoder.IsEnded()
}

func (t *transcoder) Release() {
	if t.released {
		return
	}
	t.released = true
	t.decoder.Release()
	t.encoder.Release()
}
