/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package worker

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/skald/internal/container"
	"github.com/friendsincode/skald/internal/events"
	"github.com/friendsincode/skald/internal/manifest"
	"github.com/friendsincode/skald/internal/media"
	"github.com/friendsincode/skald/internal/storage"
	"github.com/friendsincode/skald/internal/store"
)

func newTestEnv(t *testing.T) (*store.Store, *storage.Filesystem, *events.Bus) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	jobs, err := store.New(db)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	return jobs, storage.NewFilesystem(t.TempDir(), zerolog.Nop()), events.NewBus()
}

func writeInput(t *testing.T, blobs *storage.Filesystem, key string) {
	t.Helper()
	var buf bytes.Buffer
	w := container.NewWriter(&buf)
	err := w.WriteHeader([]media.Format{{
		TrackType:  media.TrackTypeAudio,
		SampleMime: "audio/mp4a-latm",
		SampleRate: 48_000,
	}})
	if err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	for i := 0; i < 4; i++ {
		if err := w.WriteSample(0, []byte{byte(i)}, true, int64(i)*10_000); err != nil {
			t.Fatalf("WriteSample: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := blobs.Put(context.Background(), key, &buf); err != nil {
		t.Fatalf("Put input: %v", err)
	}
}

func enqueue(t *testing.T, jobs *store.Store, m *manifest.Manifest) *store.Job {
	t.Helper()
	doc, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	job, err := jobs.CreateJob(context.Background(), string(doc), m.Input, m.Output)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return job
}

func waitForState(t *testing.T, jobs *store.Store, id string, want store.JobState) *store.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := jobs.GetJob(context.Background(), id)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		switch job.State {
		case want:
			return job
		case store.JobRunning, store.JobQueued:
		default:
			t.Fatalf("job reached %s, want %s (error: %s)", job.State, want, job.Error)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job never reached %s", want)
	return nil
}

func TestPoolRunsQueuedJobToCompletion(t *testing.T) {
	jobs, blobs, bus := newTestEnv(t)
	writeInput(t, blobs, "in/a.skald")

	done := bus.Subscribe(events.EventJobCompleted)
	job := enqueue(t, jobs, &manifest.Manifest{Input: "in/a.skald", Output: "out/a.skald"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool := NewPool(Config{Workers: 1, PollInterval: 10 * time.Millisecond, WorkRoot: t.TempDir()},
		jobs, blobs, bus, zerolog.Nop())
	pool.Start(ctx)
	pool.Notify()

	waitForState(t, jobs, job.ID, store.JobCompleted)
	select {
	case payload := <-done:
		if payload["job_id"] != job.ID {
			t.Errorf("completion event for %v, want %s", payload["job_id"], job.ID)
		}
	case <-time.After(time.Second):
		t.Error("no completion event published")
	}

	rc, err := blobs.Get(ctx, "out/a.skald")
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	defer rc.Close()
	cr, err := container.NewReader(rc)
	if err != nil {
		t.Fatalf("output unreadable: %v", err)
	}
	count := 0
	for {
		if _, err := cr.Next(); err != nil {
			if err != io.EOF {
				t.Fatalf("Next: %v", err)
			}
			break
		}
		count++
	}
	if count != 4 {
		t.Errorf("output has %d samples, want 4", count)
	}

	cancel()
	pool.Wait()
}

func TestPoolResolvesAdBreakPlan(t *testing.T) {
	jobs, blobs, bus := newTestEnv(t)
	writeInput(t, blobs, "in/ads.skald")
	writeInput(t, blobs, "ads/mid.skald")
	refreshed := bus.Subscribe(events.EventTimelineRefreshed)

	// Input samples run to 30000us, so the scanned content duration is 30001.
	job := enqueue(t, jobs, &manifest.Manifest{
		Input:  "in/ads.skald",
		Output: "out/ads.skald",
		AdBreaks: []manifest.AdBreak{
			{TimeUs: 20_000, Inputs: []string{"ads/mid.skald"}, DurationsUs: []int64{10_000}},
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool := NewPool(Config{Workers: 1, PollInterval: 10 * time.Millisecond, WorkRoot: t.TempDir()},
		jobs, blobs, bus, zerolog.Nop())
	pool.Start(ctx)
	pool.Notify()

	waitForState(t, jobs, job.ID, store.JobCompleted)
	select {
	case payload := <-refreshed:
		if payload["job_id"] != job.ID {
			t.Errorf("refresh event for %v, want %s", payload["job_id"], job.ID)
		}
	case <-time.After(time.Second):
		t.Error("no timeline refresh event published")
	}
	if _, err := blobs.Get(ctx, "out/ads.skald"); err != nil {
		t.Errorf("output missing: %v", err)
	}

	cancel()
	pool.Wait()
}

func TestPoolFailsJobWithBreakOutsideContent(t *testing.T) {
	jobs, blobs, bus := newTestEnv(t)
	writeInput(t, blobs, "in/short.skald")

	// The break cues far past the 30001us of content.
	job := enqueue(t, jobs, &manifest.Manifest{
		Input:  "in/short.skald",
		Output: "out/short.skald",
		AdBreaks: []manifest.AdBreak{
			{TimeUs: 50_000_000, Inputs: []string{"ads/x.skald"}, DurationsUs: []int64{10_000}},
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool := NewPool(Config{Workers: 1, PollInterval: 10 * time.Millisecond, WorkRoot: t.TempDir()},
		jobs, blobs, bus, zerolog.Nop())
	pool.Start(ctx)
	pool.Notify()

	got := waitForState(t, jobs, job.ID, store.JobFailed)
	if got.Error == "" {
		t.Error("failed job has no error message")
	}

	cancel()
	pool.Wait()
}

func TestPoolRecordsMissingInputAsFailure(t *testing.T) {
	jobs, blobs, bus := newTestEnv(t)
	job := enqueue(t, jobs, &manifest.Manifest{Input: "in/missing.skald", Output: "out/x.skald"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool := NewPool(Config{Workers: 1, PollInterval: 10 * time.Millisecond, WorkRoot: t.TempDir()},
		jobs, blobs, bus, zerolog.Nop())
	pool.Start(ctx)

	got := waitForState(t, jobs, job.ID, store.JobFailed)
	if got.ErrorCode != int(media.ErrorCodeIOFileNotFound) {
		t.Errorf("error code = %d, want %d", got.ErrorCode, media.ErrorCodeIOFileNotFound)
	}

	cancel()
	pool.Wait()
}

func TestPoolCancelStopsRunningJob(t *testing.T) {
	jobs, _, bus := newTestEnv(t)
	blobs := &stallStorage{release: make(chan struct{})}
	job := enqueue(t, jobs, &manifest.Manifest{Input: "in/slow.skald", Output: "out/slow.skald"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool := NewPool(Config{Workers: 1, PollInterval: 10 * time.Millisecond, WorkRoot: t.TempDir()},
		jobs, blobs, bus, zerolog.Nop())
	pool.Start(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for !pool.Running(job.ID) {
		if time.Now().After(deadline) {
			t.Fatal("job never started")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := pool.Cancel(job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	waitForState(t, jobs, job.ID, store.JobCancelled)

	if err := pool.Cancel("unknown"); err != ErrJobNotRunning {
		t.Errorf("Cancel unknown = %v, want ErrJobNotRunning", err)
	}

	cancel()
	pool.Wait()
}

// stallStorage blocks Get until the job context is cancelled.
type stallStorage struct {
	release chan struct{}
}

func (s *stallStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.release:
		return nil, io.ErrUnexpectedEOF
	}
}

func (s *stallStorage) Put(ctx context.Context, key string, r io.Reader) error { return nil }
func (s *stallStorage) Delete(ctx context.Context, key string) error           { return nil }
func (s *stallStorage) URL(key string) string                                  { return key }
