/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store persists transform jobs. It backs the HTTP API and the
// worker pool; workers claim queued jobs atomically so multiple workers
// never run the same job.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/skald/internal/config"
)

// ErrJobNotFound reports a lookup for an unknown job id.
var ErrJobNotFound = errors.New("store: job not found")

// ErrNoQueuedJobs reports an empty queue on claim.
var ErrNoQueuedJobs = errors.New("store: no queued jobs")

// JobState is the lifecycle state of a transform job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// Job is one persisted transform job.
type Job struct {
	ID         string   `gorm:"primaryKey" json:"id"`
	State      JobState `gorm:"index" json:"state"`
	Manifest   string   `json:"manifest"`
	InputPath  string   `json:"input_path"`
	OutputPath string   `json:"output_path"`

	// Error and ErrorCode hold the terminal failure for failed jobs.
	Error     string `json:"error,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`

	// PositionUs is the furthest media position the job has written.
	PositionUs int64 `json:"position_us"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Store wraps the database handle.
type Store struct {
	db *gorm.DB
}

// Connect establishes a gorm DB connection for the configured backend and
// runs migrations.
func Connect(cfg *config.Config) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.DBBackend {
	case config.DatabasePostgres:
		dialector = postgres.Open(cfg.DBDSN)
	case config.DatabaseMySQL:
		dialector = mysql.Open(cfg.DBDSN)
	case config.DatabaseSQLite:
		dialector = sqlite.Open(cfg.DBDSN)
	default:
		return nil, fmt.Errorf("unknown database backend: %s", cfg.DBBackend)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := db.AutoMigrate(&Job{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an existing gorm handle, migrating the job table.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Job{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateJob persists a new queued job and returns it.
func (s *Store) CreateJob(ctx context.Context, manifest, inputPath, outputPath string) (*Job, error) {
	job := &Job{
		ID:         uuid.NewString(),
		State:      JobQueued,
		Manifest:   manifest,
		InputPath:  inputPath,
		OutputPath: outputPath,
	}
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

// GetJob loads a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	var job Job
	err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns jobs newest first, optionally filtered by state.
func (s *Store) ListJobs(ctx context.Context, state JobState, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if state != "" {
		q = q.Where("state = ?", state)
	}
	var jobs []Job
	if err := q.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// ClaimNextQueued atomically moves the oldest queued job to running.
// Returns ErrNoQueuedJobs when the queue is empty or another worker claimed
// the job between the read and the guarded update; callers retry.
func (s *Store) ClaimNextQueued(ctx context.Context) (*Job, error) {
	var job Job
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("state = ?", JobQueued).Order("created_at ASC").First(&job).Error; err != nil {
			return err
		}
		now := time.Now()
		res := tx.Model(&Job{}).
			Where("id = ? AND state = ?", job.ID, JobQueued).
			Updates(map[string]any{"state": JobRunning, "started_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost the claim race: the job left the queue after the read.
			return gorm.ErrRecordNotFound
		}
		job.State = JobRunning
		job.StartedAt = &now
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoQueuedJobs
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateProgress records the furthest written media position.
func (s *Store) UpdateProgress(ctx context.Context, id string, positionUs int64) error {
	return s.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Update("position_us", positionUs).Error
}

// Finish moves a job to a terminal state.
func (s *Store) Finish(ctx context.Context, id string, state JobState, errMsg string, errCode int) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"state":       state,
			"error":       errMsg,
			"error_code":  errCode,
			"finished_at": now,
		}).Error
}

// CancelQueued cancels a job that has not started yet. Returns false when
// the job already left the queue; running jobs cancel through the worker.
func (s *Store) CancelQueued(ctx context.Context, id string) (bool, error) {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND state = ?", id, JobQueued).
		Updates(map[string]any{"state": JobCancelled, "finished_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
