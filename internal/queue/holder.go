/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package queue

// Streams is the per-period media a holder owns: sample sources and the
// track streams feeding the renderers. The queue releases a holder's streams
// when the holder leaves the queue.
type Streams interface {
	Release()
}

// Holder is one queued period span together with its media. Holders are
// created by Enqueue and owned by the queue.
type Holder struct {
	Info    PeriodInfo
	Streams Streams

	rendererOffsetUs int64
}

// RendererOffsetUs returns the offset that maps this span's period positions
// onto the renderer position axis.
func (h *Holder) RendererOffsetUs() int64 { return h.rendererOffsetUs }

// ToRendererTime converts a period position to a renderer position.
func (h *Holder) ToRendererTime(periodTimeUs int64) int64 {
	return periodTimeUs + h.rendererOffsetUs
}

// ToPeriodTime converts a renderer position to a period position.
func (h *Holder) ToPeriodTime(rendererTimeUs int64) int64 {
	return rendererTimeUs - h.rendererOffsetUs
}

func (h *Holder) release() {
	if h.Streams != nil {
		h.Streams.Release()
		h.Streams = nil
	}
}
