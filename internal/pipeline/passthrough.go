/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package pipeline

import "github.com/friendsincode/skald/internal/media"

// Passthrough forwards samples untouched: the queued input buffer is handed
// back as the output buffer. One buffer in flight, no codecs.
type Passthrough struct {
	format  media.Format
	buffer  media.Buffer
	pending bool
}

// NewPassthrough creates a passthrough pipeline emitting the input format.
func NewPassthrough(inputFormat media.Format) *Passthrough {
	return &Passthrough{format: inputFormat}
}

func (p *Passthrough) DequeueInputBuffer() (*media.Buffer, bool) {
	if p.pending {
		return nil, false
	}
	return &p.buffer, true
}

func (p *Passthrough) QueueInputBuffer() error {
	p.pending = true
	return nil
}

func (p *Passthrough) ProcessData() (bool, error) {
	return false, nil
}

func (p *Passthrough) OutputFormat() (media.Format, bool) {
	return p.format, true
}

func (p *Passthrough) GetOutputBuffer() (*media.Buffer, bool) {
	if !p.pending {
		return nil, false
	}
	return &p.buffer, true
}

func (p *Passthrough) ReleaseOutputBuffer() {
	p.buffer.Clear()
	p.pending = false
}

func (p *Passthrough) IsEnded() bool {
	return p.buffer.EndOfStream
}

func (p *Passthrough) Release() {}
