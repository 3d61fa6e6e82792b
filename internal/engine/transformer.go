/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package engine runs transform jobs. A single goroutine owns the
// renderers, their pipelines and the muxer wrapper; codec callbacks cross
// into it over a bounded bridge, so no pipeline state is ever touched
// concurrently.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/skald/internal/codec"
	"github.com/friendsincode/skald/internal/media"
	"github.com/friendsincode/skald/internal/mux"
	"github.com/friendsincode/skald/internal/pipeline"
	"github.com/friendsincode/skald/internal/source"
)

// idlePollInterval is how long the loop sleeps when no renderer made
// progress and no codec event arrived.
const idlePollInterval = time.Millisecond

// maxIdlePolls bounds how many consecutive idle rounds the loop tolerates
// before declaring the job stuck.
const maxIdlePolls = 10_000

// Options configure a Transformer. Zero-value factories fall back to the
// identity codecs, which copy samples through unchanged.
type Options struct {
	Request         media.TransformRequest
	AudioProcessors []pipeline.AudioProcessor
	EncoderFactory  codec.EncoderFactory
	DecoderFactory  codec.DecoderFactory

	// Bridge carries codec callbacks into the run loop. A fresh bounded
	// bridge is created when nil.
	Bridge *codec.Bridge

	// Progress, when set, is called from the run loop with the job position
	// after each round that advanced.
	Progress func(positionUs int64)

	Logger zerolog.Logger
}

// Transformer runs one transform job at a time on the calling goroutine.
type Transformer struct {
	opts   Options
	bridge *codec.Bridge
	log    zerolog.Logger
}

// New creates a transformer.
func New(opts Options) *Transformer {
	bridge := opts.Bridge
	if bridge == nil {
		bridge = codec.NewBridge(16)
	}
	if opts.EncoderFactory == nil {
		opts.EncoderFactory = codec.IdentityFactory{Bridge: bridge}
	}
	if opts.DecoderFactory == nil {
		opts.DecoderFactory = codec.IdentityFactory{Bridge: bridge}
	}
	return &Transformer{
		opts:   opts,
		bridge: bridge,
		log:    opts.Logger.With().Str("component", "engine").Logger(),
	}
}

// Run transforms every track of src into muxer and blocks until the job
// ends. On failure it returns a single terminal *media.Error; a cancelled
// context returns the context's error after resources are torn down with
// the cancellation path.
func (t *Transformer) Run(ctx context.Context, src source.Source, muxer mux.Muxer) error {
	trackTypes := src.TrackTypes()
	if len(trackTypes) == 0 {
		src.Release()
		muxer.Release(true)
		return media.ErrorForUnexpected(errors.New("input has no tracks"))
	}
	wrapper := mux.NewWrapper(muxer, len(trackTypes))
	clock := NewMediaClock()

	renderers := make([]*renderer, 0, len(trackTypes))
	for _, tt := range trackTypes {
		stream, ok := src.SelectTrack(tt)
		if !ok {
			t.abort(renderers, wrapper, src)
			return media.ErrorForUnexpected(errors.New("source lost a declared track"))
		}
		renderers = append(renderers, newRenderer(tt, stream, wrapper, t.opts.Request,
			t.opts.AudioProcessors, t.opts.EncoderFactory, t.opts.DecoderFactory, clock, t.log))
	}

	t.log.Info().Int("tracks", len(renderers)).Msg("transform started")
	idleRounds := 0
	for {
		if err := ctx.Err(); err != nil {
			t.abort(renderers, wrapper, src)
			t.log.Info().Msg("transform cancelled")
			return err
		}
		var asyncErr error
		t.bridge.Drain(func(ev codec.Event) {
			if ev.Kind == codec.EventError && asyncErr == nil {
				asyncErr = ev.Err
			}
		})
		if asyncErr != nil {
			t.abort(renderers, wrapper, src)
			return terminal(asyncErr)
		}

		progress := false
		allEnded := true
		for _, r := range renderers {
			p, err := r.render()
			if err != nil {
				t.abort(renderers, wrapper, src)
				return terminal(err)
			}
			progress = progress || p
			allEnded = allEnded && r.isEnded()
		}
		if allEnded {
			break
		}
		if progress {
			idleRounds = 0
			if t.opts.Progress != nil {
				t.opts.Progress(clock.PositionUs())
			}
			continue
		}

		idleRounds++
		if idleRounds > maxIdlePolls {
			t.abort(renderers, wrapper, src)
			return media.ErrorForUnexpected(errors.New("no renderer progress, job is stuck"))
		}
		select {
		case <-ctx.Done():
		case ev := <-t.bridge.C():
			if ev.Kind == codec.EventError {
				t.abort(renderers, wrapper, src)
				return terminal(ev.Err)
			}
			idleRounds = 0
		case <-time.After(idlePollInterval):
		}
	}

	for _, r := range renderers {
		r.release()
	}
	src.Release()
	if err := wrapper.Release(false); err != nil {
		return terminal(err)
	}
	t.log.Info().Int64("position_us", clock.PositionUs()).Msg("transform completed")
	return nil
}

// abort tears the job down on the cancellation path, where stop errors
// carry no signal.
func (t *Transformer) abort(renderers []*renderer, wrapper *mux.Wrapper, src source.Source) {
	for _, r := range renderers {
		r.release()
	}
	src.Release()
	wrapper.Release(true)
}

// terminal guarantees the job surfaces exactly one typed error.
func terminal(err error) error {
	var terr *media.Error
	if errors.As(err, &terr) {
		return terr
	}
	return media.ErrorForUnexpected(err)
}
