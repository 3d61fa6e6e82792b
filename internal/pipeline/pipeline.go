/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package pipeline implements the per-track sample pipelines: passthrough,
// audio transcode and video transcode. A pipeline moves one sample at a time
// from the renderer into the muxer, with at most one input and one output
// buffer live at its boundary.
package pipeline

import "github.com/friendsincode/skald/internal/media"

// SamplePipeline transforms track samples. The renderer dequeues an input
// buffer, fills it, queues it back, drives ProcessData, and drains output
// buffers to the muxer. An end-of-stream buffer propagates through every
// stage; IsEnded is true only once it has cleared the last one.
type SamplePipeline interface {
	// DequeueInputBuffer returns a buffer to fill, or ok=false when the
	// pipeline has no capacity.
	DequeueInputBuffer() (buf *media.Buffer, ok bool)

	// QueueInputBuffer submits the previously dequeued input buffer.
	QueueInputBuffer() error

	// ProcessData moves data between internal stages. Returns whether any
	// progress was made.
	ProcessData() (bool, error)

	// OutputFormat returns the format of the output samples once known.
	OutputFormat() (media.Format, bool)

	// GetOutputBuffer returns the next output sample, or ok=false when none
	// is ready. The buffer stays valid until ReleaseOutputBuffer.
	GetOutputBuffer() (buf *media.Buffer, ok bool)

	// ReleaseOutputBuffer returns the current output buffer.
	ReleaseOutputBuffer()

	// IsEnded reports whether the end-of-stream marker cleared the last
	// stage.
	IsEnded() bool

	// Release frees pipeline resources.
	Release()
}
