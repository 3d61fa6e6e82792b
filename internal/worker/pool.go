/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package worker runs queued transform jobs. A pool of workers claims jobs
// from the store, pulls the input from storage, runs the engine and uploads
// the result.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/skald/internal/container"
	"github.com/friendsincode/skald/internal/engine"
	"github.com/friendsincode/skald/internal/events"
	"github.com/friendsincode/skald/internal/manifest"
	"github.com/friendsincode/skald/internal/media"
	"github.com/friendsincode/skald/internal/mux"
	"github.com/friendsincode/skald/internal/source"
	"github.com/friendsincode/skald/internal/storage"
	"github.com/friendsincode/skald/internal/store"
	"github.com/friendsincode/skald/internal/telemetry"
)

// ErrJobNotRunning reports a cancel for a job this pool is not executing.
var ErrJobNotRunning = errors.New("worker: job not running on this instance")

// progressInterval limits how often job progress is persisted and published.
const progressInterval = 500 * time.Millisecond

// Config tunes the pool.
type Config struct {
	// Workers is the number of concurrent job slots.
	Workers int
	// PollInterval is how long an idle worker waits before checking the
	// queue again.
	PollInterval time.Duration
	// JobTimeout bounds a single job's wall-clock time. Zero disables it.
	JobTimeout time.Duration
	// WorkRoot is the scratch directory for job outputs before upload.
	WorkRoot string
}

// DefaultConfig returns pool defaults.
func DefaultConfig() Config {
	return Config{
		Workers:      2,
		PollInterval: time.Second,
		WorkRoot:     os.TempDir(),
	}
}

// Pool claims and executes transform jobs.
type Pool struct {
	cfg     Config
	jobs    *store.Store
	blobs   storage.Store
	bus     events.Publisher
	logger  zerolog.Logger
	wake    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewPool creates a worker pool.
func NewPool(cfg Config, jobs *store.Store, blobs storage.Store, bus events.Publisher, logger zerolog.Logger) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.WorkRoot == "" {
		cfg.WorkRoot = os.TempDir()
	}
	return &Pool{
		cfg:     cfg,
		jobs:    jobs,
		blobs:   blobs,
		bus:     bus,
		logger:  logger.With().Str("component", "worker_pool").Logger(),
		wake:    make(chan struct{}, 1),
		running: make(map[string]context.CancelFunc),
	}
}

// Start launches the workers. They run until ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info().Int("workers", p.cfg.Workers).Msg("starting worker pool")
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.work(ctx, i)
	}
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
	p.logger.Info().Msg("worker pool stopped")
}

// Notify nudges an idle worker to check the queue immediately, for use
// after a job is enqueued.
func (p *Pool) Notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Cancel stops a job currently running on this instance.
func (p *Pool) Cancel(jobID string) error {
	p.mu.Lock()
	cancel, ok := p.running[jobID]
	p.mu.Unlock()
	if !ok {
		return ErrJobNotRunning
	}
	cancel()
	return nil
}

// Running reports whether the job is executing on this instance.
func (p *Pool) Running(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.running[jobID]
	return ok
}

func (p *Pool) work(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.With().Int("worker", id).Logger()
	for {
		job, err := p.jobs.ClaimNextQueued(ctx)
		switch {
		case errors.Is(err, store.ErrNoQueuedJobs):
			select {
			case <-ctx.Done():
				return
			case <-p.wake:
			case <-time.After(p.cfg.PollInterval):
			}
			continue
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("claim failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.cfg.PollInterval):
			}
			continue
		}
		p.execute(ctx, job, log)
	}
}

func (p *Pool) execute(ctx context.Context, job *store.Job, log zerolog.Logger) {
	log = log.With().Str("job_id", job.ID).Logger()
	var jobCtx context.Context
	var cancel context.CancelFunc
	if p.cfg.JobTimeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, p.cfg.JobTimeout)
	} else {
		jobCtx, cancel = context.WithCancel(ctx)
	}
	p.mu.Lock()
	p.running[job.ID] = cancel
	p.mu.Unlock()
	defer func() {
		cancel()
		p.mu.Lock()
		delete(p.running, job.ID)
		p.mu.Unlock()
	}()

	telemetry.JobsRunning.Inc()
	defer telemetry.JobsRunning.Dec()
	p.bus.Publish(events.EventJobStarted, events.Payload{"job_id": job.ID})
	log.Info().Str("input", job.InputPath).Msg("job started")

	jobCtx, span := telemetry.StartSpan(jobCtx, "skald.worker", "job.run")
	telemetry.AddSpanAttributes(span, map[string]any{
		"job.id":    job.ID,
		"job.input": job.InputPath,
	})
	defer span.End()

	start := time.Now()
	err := p.runJob(jobCtx, job, log)
	telemetry.JobDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		telemetry.JobsTotal.WithLabelValues("completed").Inc()
		if ferr := p.jobs.Finish(ctx, job.ID, store.JobCompleted, "", 0); ferr != nil {
			log.Error().Err(ferr).Msg("record completion failed")
		}
		p.bus.Publish(events.EventJobCompleted, events.Payload{"job_id": job.ID, "output": job.OutputPath})
		log.Info().Dur("took", time.Since(start)).Msg("job completed")
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		telemetry.JobsTotal.WithLabelValues("cancelled").Inc()
		if ferr := p.jobs.Finish(ctx, job.ID, store.JobCancelled, err.Error(), 0); ferr != nil {
			log.Error().Err(ferr).Msg("record cancellation failed")
		}
		p.bus.Publish(events.EventJobCancelled, events.Payload{"job_id": job.ID})
		log.Info().Msg("job cancelled")
	default:
		telemetry.RecordError(span, err)
		code := 0
		var terr *media.Error
		if errors.As(err, &terr) {
			code = int(terr.Code)
			telemetry.JobErrors.WithLabelValues(terr.Code.Name()).Inc()
		}
		telemetry.JobsTotal.WithLabelValues("failed").Inc()
		if ferr := p.jobs.Finish(ctx, job.ID, store.JobFailed, err.Error(), code); ferr != nil {
			log.Error().Err(ferr).Msg("record failure failed")
		}
		p.bus.Publish(events.EventJobFailed, events.Payload{
			"job_id": job.ID, "error": err.Error(), "error_code": code,
		})
		log.Error().Err(err).Msg("job failed")
	}
}

// runJob streams the input from storage through the engine into a scratch
// file and uploads the result on success.
func (p *Pool) runJob(ctx context.Context, job *store.Job, log zerolog.Logger) error {
	m, err := p.loadManifest(job)
	if err != nil {
		return err
	}

	if len(m.AdBreaks) > 0 {
		if err := p.resolveStitchPlan(ctx, job, m, log); err != nil {
			return err
		}
	}

	input, err := p.blobs.Get(ctx, m.Input)
	if err != nil {
		return inputError(err)
	}
	src, err := source.NewFileSource(input)
	if err != nil {
		input.Close()
		return err
	}
	defer input.Close()

	scratch, err := os.CreateTemp(p.cfg.WorkRoot, "skald-job-*.skald")
	if err != nil {
		src.Release()
		return fmt.Errorf("create scratch file: %w", err)
	}
	scratchPath := scratch.Name()
	defer os.Remove(scratchPath)

	muxer := mux.NewSampleLogMuxer(scratch, m.ContainerMime)

	var lastFlush time.Time
	tr := engine.New(engine.Options{
		Request: m.Request(),
		Logger:  log,
		Progress: func(positionUs int64) {
			if time.Since(lastFlush) < progressInterval {
				return
			}
			lastFlush = time.Now()
			if err := p.jobs.UpdateProgress(ctx, job.ID, positionUs); err != nil {
				log.Warn().Err(err).Msg("persist progress failed")
			}
			p.bus.Publish(events.EventJobProgress, events.Payload{
				"job_id": job.ID, "position_us": positionUs,
			})
		},
	})
	if err := tr.Run(ctx, src, muxer); err != nil {
		return err
	}

	out, err := os.Open(scratchPath)
	if err != nil {
		return fmt.Errorf("reopen scratch file: %w", err)
	}
	defer out.Close()
	if err := p.blobs.Put(ctx, m.Output, out); err != nil {
		return err
	}
	return nil
}

// resolveStitchPlan measures the content input and resolves the manifest's
// ad breaks into a span plan, recording each span on the job log. The
// transform itself processes the content input; splicing the ad media
// happens when the plan's spans are consumed.
func (p *Pool) resolveStitchPlan(ctx context.Context, job *store.Job, m *manifest.Manifest, log zerolog.Logger) error {
	in, err := p.blobs.Get(ctx, m.Input)
	if err != nil {
		return inputError(err)
	}
	defer in.Close()
	durationUs, err := container.ScanDurationUs(in)
	if err != nil {
		return err
	}
	plan, err := engine.PlanFromManifest(m, durationUs, log)
	if err != nil {
		return err
	}
	for i, s := range plan.Spans {
		log.Info().
			Int("span", i).
			Stringer("period", s.Info.ID).
			Int64("output_start_us", s.OutputStartUs()).
			Int64("output_end_us", s.OutputEndUs()).
			Msg("stitch plan span")
	}
	p.bus.Publish(events.EventTimelineRefreshed, events.Payload{
		"job_id":             job.ID,
		"spans":              len(plan.Spans),
		"output_duration_us": plan.OutputDurationUs(),
	})
	log.Info().
		Int("spans", len(plan.Spans)).
		Int64("content_duration_us", durationUs).
		Int64("output_duration_us", plan.OutputDurationUs()).
		Msg("stitch plan resolved")
	return nil
}

// inputError maps a storage read failure onto the media error taxonomy.
func inputError(err error) error {
	code := media.ErrorCodeIOUnspecified
	if errors.Is(err, os.ErrNotExist) {
		code = media.ErrorCodeIOFileNotFound
	}
	return media.NewError(code, "worker", err)
}

// loadManifest parses the persisted manifest, falling back to a passthrough
// manifest built from the job's paths.
func (p *Pool) loadManifest(job *store.Job) (*manifest.Manifest, error) {
	if job.Manifest == "" {
		m := &manifest.Manifest{Input: job.InputPath, Output: job.OutputPath}
		if err := m.Validate(); err != nil {
			return nil, err
		}
		return m, nil
	}
	return manifest.ParseBytes([]byte(job.Manifest))
}
