/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package codec

import (
	"errors"

	"github.com/friendsincode/skald/internal/media"
)

// defaultQueueDepth bounds how many samples an identity codec holds before
// refusing input.
const defaultQueueDepth = 10

var errReleased = errors.New("codec: released")

// identity copies samples through unchanged, optionally rewriting the output
// sample MIME type. It stands in for a real decoder or encoder.
type identity struct {
	format   media.Format
	bridge   *Bridge
	input    media.Buffer
	inFlight bool
	fifo     []media.Buffer
	eos      bool
	released bool
}

// NewIdentity creates an identity codec emitting outputMime samples, or the
// input MIME when outputMime is empty. bridge may be nil.
func NewIdentity(inputFormat media.Format, outputMime string, bridge *Bridge) Codec {
	format := inputFormat
	if outputMime != "" {
		format.SampleMime = outputMime
	}
	return &identity{format: format, bridge: bridge}
}

func (c *identity) DequeueInputBuffer() (*media.Buffer, bool) {
	if c.released || c.eos || c.inFlight || len(c.fifo) >= defaultQueueDepth {
		return nil, false
	}
	c.inFlight = true
	c.input.Clear()
	return &c.input, true
}

func (c *identity) QueueInputBuffer() error {
	if c.released {
		return errReleased
	}
	if !c.inFlight {
		return errors.New("codec: queue without dequeued input buffer")
	}
	c.inFlight = false
	if c.input.EndOfStream {
		c.eos = true
	} else {
		out := media.Buffer{TimeUs: c.input.TimeUs, KeyFrame: c.input.KeyFrame}
		out.Data = append(out.Data, c.input.Data...)
		c.fifo = append(c.fifo, out)
	}
	if c.bridge != nil {
		c.bridge.TryPost(Event{Kind: EventOutputAvailable})
	}
	return nil
}

func (c *identity) OutputFormat() (media.Format, bool) {
	return c.format, true
}

func (c *identity) DequeueOutputBuffer() (*media.Buffer, bool) {
	if c.released || len(c.fifo) == 0 {
		return nil, false
	}
	return &c.fifo[0], true
}

func (c *identity) ReleaseOutputBuffer() {
	if c.released || len(c.fifo) == 0 {
		return
	}
	c.fifo = c.fifo[1:]
	if c.bridge != nil {
		c.bridge.TryPost(Event{Kind: EventInputAvailable})
	}
}

func (c *identity) IsEnded() bool {
	return c.eos && len(c.fifo) == 0
}

func (c *identity) Release() {
	c.released = true
	c.fifo = nil
}

// IdentityFactory builds identity codecs for both pipeline ends.
type IdentityFactory struct {
	Bridge *Bridge
}

func (f IdentityFactory) NewDecoder(inputFormat media.Format) (Codec, error) {
	return NewIdentity(inputFormat, "", f.Bridge), nil
}

func (f IdentityFactory) NewEncoder(inputFormat media.Format, targetMime string) (Codec, error) {
	return NewIdentity(inputFormat, targetMime, f.Bridge), nil
}
