/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

// Buffer is a single sample moving through a pipeline. Buffers are reused;
// stages clear them instead of reallocating.
type Buffer struct {
	Data        []byte
	TimeUs      int64
	KeyFrame    bool
	EndOfStream bool
}

// Clear resets the buffer for reuse, keeping the backing slice.
func (b *Buffer) Clear() {
	b.Data = b.Data[:0]
	b.TimeUs = 0
	b.KeyFrame = false
	b.EndOfStream = false
}

// Set copies the sample payload and metadata into the buffer.
func (b *Buffer) Set(data []byte, timeUs int64, keyFrame bool) {
	b.Data = append(b.Data[:0], data...)
	b.TimeUs = timeUs
	b.KeyFrame = keyFrame
	b.EndOfStream = false
}

// SetEndOfStream marks the buffer as the end-of-stream sentinel.
func (b *Buffer) SetEndOfStream() {
	b.Data = b.Data[:0]
	b.KeyFrame = false
	b.EndOfStream = true
}
