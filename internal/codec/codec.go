/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package codec defines the decoder/encoder collaborator interfaces the
// sample pipelines drive, a bounded bridge for codec callbacks crossing into
// the engine goroutine, and built-in identity codecs that copy samples
// through unchanged so the engine runs end to end without platform codecs.
package codec

import "github.com/friendsincode/skald/internal/media"

// Codec is a poll-style decoder or encoder. At most one input buffer is
// dequeued at a time; a dequeued buffer must be queued (or the codec
// released) before the next dequeue. Output buffers are dequeued and
// released one at a time in order.
type Codec interface {
	// DequeueInputBuffer returns a buffer to fill, or ok=false when the
	// codec cannot accept input right now.
	DequeueInputBuffer() (buf *media.Buffer, ok bool)

	// QueueInputBuffer submits the previously dequeued input buffer.
	QueueInputBuffer() error

	// OutputFormat returns the format of the output samples once known.
	OutputFormat() (media.Format, bool)

	// DequeueOutputBuffer returns the next output sample, or ok=false when
	// none is ready. The buffer stays valid until ReleaseOutputBuffer.
	DequeueOutputBuffer() (buf *media.Buffer, ok bool)

	// ReleaseOutputBuffer returns the current output buffer to the codec.
	ReleaseOutputBuffer()

	// IsEnded reports whether the end-of-stream buffer has been emitted and
	// every output before it drained.
	IsEnded() bool

	// Release frees codec resources. No other method may be called after.
	Release()
}

// DecoderFactory creates decoders for an input format.
type DecoderFactory interface {
	NewDecoder(inputFormat media.Format) (Codec, error)
}

// EncoderFactory creates encoders producing targetMime samples. An empty
// targetMime keeps the input format's sample MIME type.
type EncoderFactory interface {
	NewEncoder(inputFormat media.Format, targetMime string) (Codec, error)
}
