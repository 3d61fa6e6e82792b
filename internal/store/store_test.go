/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"errors"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s, err := New(db)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestJobLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job, err := s.CreateJob(ctx, "manifest: here", "in.skald", "out.skald")
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if job.State != JobQueued || job.ID == "" {
		t.Fatalf("created job = %+v", job)
	}

	claimed, err := s.ClaimNextQueued(ctx)
	if err != nil {
		t.Fatalf("ClaimNextQueued: %v", err)
	}
	if claimed.ID != job.ID || claimed.State != JobRunning {
		t.Fatalf("claimed job = %+v", claimed)
	}
	if _, err := s.ClaimNextQueued(ctx); !errors.Is(err, ErrNoQueuedJobs) {
		t.Errorf("second claim = %v, want ErrNoQueuedJobs", err)
	}

	if err := s.UpdateProgress(ctx, job.ID, 12_000_000); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if err := s.Finish(ctx, job.ID, JobCompleted, "", 0); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	got, err := s.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.State != JobCompleted || got.PositionUs != 12_000_000 || got.FinishedAt == nil {
		t.Errorf("finished job = %+v", got)
	}
}

func TestClaimOrderIsFIFO(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, _ := s.CreateJob(ctx, "", "a", "a.out")
	if _, err := s.CreateJob(ctx, "", "b", "b.out"); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	claimed, err := s.ClaimNextQueued(ctx)
	if err != nil {
		t.Fatalf("ClaimNextQueued: %v", err)
	}
	if claimed.ID != first.ID {
		t.Errorf("claimed %s, want oldest job %s", claimed.ID, first.ID)
	}
}

func TestClaimLostRaceReturnsNoQueuedJobs(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s, err := New(db)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	job, err := s.CreateJob(ctx, "", "a", "a.out")
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	// Flip the job to running between the claim's read and its guarded
	// update, the way a concurrent worker would.
	steal := true
	err = db.Callback().Query().After("gorm:query").Register("test_steal_claim", func(tx *gorm.DB) {
		if !steal || tx.Statement.Table != "jobs" {
			return
		}
		steal = false
		if err := tx.Session(&gorm.Session{NewDB: true}).Model(&Job{}).
			Where("id = ?", job.ID).
			Update("state", JobRunning).Error; err != nil {
			t.Errorf("steal update: %v", err)
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	if _, err := s.ClaimNextQueued(ctx); !errors.Is(err, ErrNoQueuedJobs) {
		t.Fatalf("claim after losing race = %v, want ErrNoQueuedJobs", err)
	}

	// The lost claim rolled back without touching the job; a later claim
	// takes it normally.
	claimed, err := s.ClaimNextQueued(ctx)
	if err != nil {
		t.Fatalf("ClaimNextQueued: %v", err)
	}
	if claimed.ID != job.ID || claimed.State != JobRunning {
		t.Errorf("claimed job = %+v", claimed)
	}
}

func TestCancelQueuedOnlyAffectsQueuedJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job, _ := s.CreateJob(ctx, "", "a", "a.out")
	ok, err := s.CancelQueued(ctx, job.ID)
	if err != nil || !ok {
		t.Fatalf("CancelQueued = %v, %v, want true", ok, err)
	}
	got, _ := s.GetJob(ctx, job.ID)
	if got.State != JobCancelled {
		t.Errorf("state = %s, want cancelled", got.State)
	}

	running, _ := s.CreateJob(ctx, "", "b", "b.out")
	if _, err := s.ClaimNextQueued(ctx); err != nil {
		t.Fatalf("ClaimNextQueued: %v", err)
	}
	ok, err = s.CancelQueued(ctx, running.ID)
	if err != nil || ok {
		t.Fatalf("CancelQueued running job = %v, %v, want false", ok, err)
	}

	if _, err := s.GetJob(ctx, "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("GetJob unknown = %v, want ErrJobNotFound", err)
	}
}
