/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import "github.com/friendsincode/skald/internal/media"

// DefaultSlowMotionSpeed is the capture speed factor assumed for
// slow-motion tracks that do not declare one.
const DefaultSlowMotionSpeed = 4

// SlowMotionFlattener restores normal speed on a slow-motion video track by
// dropping all but every speed-th frame and compressing the timestamps of
// the kept ones. The video renderer runs it on samples before they enter
// the pipeline.
type SlowMotionFlattener struct {
	speed      int
	frameIndex int
}

// NewSlowMotionFlattener creates a flattener for the given capture speed
// factor. Factors below 2 flatten nothing.
func NewSlowMotionFlattener(speed int) *SlowMotionFlattener {
	if speed < 2 {
		speed = 1
	}
	return &SlowMotionFlattener{speed: speed}
}

// Apply decides one sample's fate: true drops it, false keeps it with its
// timestamp rescaled to the flattened axis. End-of-stream markers always
// pass through.
func (f *SlowMotionFlattener) Apply(buf *media.Buffer) (drop bool) {
	if buf.EndOfStream {
		return false
	}
	index := f.frameIndex
	f.frameIndex++
	if index%f.speed != 0 {
		return true
	}
	buf.TimeUs /= int64(f.speed)
	return false
}
