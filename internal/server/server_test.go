/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/skald/internal/config"
	"github.com/friendsincode/skald/internal/events"
	"github.com/friendsincode/skald/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
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
	cfg := &config.Config{HTTPBind: "127.0.0.1", HTTPPort: 0, InstanceID: "test"}
	srv := New(cfg, jobs, events.NewBus(), nil, nil, zerolog.Nop())
	return srv, jobs
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}

func TestCreateAndFetchJob(t *testing.T) {
	srv, _ := newTestServer(t)
	body := "input: in.skald\noutput: out.skald\nflatten: true\n"

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /api/v1/jobs = %d, body %s", rec.Code, rec.Body.String())
	}
	var created store.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.State != store.JobQueued || created.InputPath != "in.skald" {
		t.Errorf("created job = %+v", created)
	}

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+created.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET job = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs?state=queued", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list jobs = %d", rec.Code)
	}
	var list struct {
		Jobs []store.Job `json:"jobs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Jobs) != 1 {
		t.Errorf("listed %d jobs, want 1", len(list.Jobs))
	}
}

func TestCreateJobRejectsBadManifest(t *testing.T) {
	srv, _ := newTestServer(t)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"not yaml", "{{{{", http.StatusBadRequest},
		{"missing output", "input: in.skald\n", http.StatusBadRequest},
		{"unsupported mime", "input: a\noutput: b\ncontainer_mime: video/mp4\nvideo_mime: video/x-vnd.on2.vp9\n", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(tt.body)))
			if rec.Code != tt.want {
				t.Errorf("POST = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestGetUnknownJobReturns404(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET unknown job = %d, want 404", rec.Code)
	}
}

func TestCancelJobStates(t *testing.T) {
	srv, jobs := newTestServer(t)
	ctx := context.Background()

	queued, err := jobs.CreateJob(ctx, "", "a", "a.out")
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/jobs/"+queued.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE queued = %d", rec.Code)
	}
	got, _ := jobs.GetJob(ctx, queued.ID)
	if got.State != store.JobCancelled {
		t.Errorf("state = %s, want cancelled", got.State)
	}

	// Cancelling again conflicts.
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/jobs/"+queued.ID, nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("DELETE cancelled job = %d, want 409", rec.Code)
	}

	// Running job with no local pool cannot be cancelled here.
	running, _ := jobs.CreateJob(ctx, "", "b", "b.out")
	if _, err := jobs.ClaimNextQueued(ctx); err != nil {
		t.Fatalf("ClaimNextQueued: %v", err)
	}
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/jobs/"+running.ID, nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("DELETE running job = %d, want 409", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", rec.Code)
	}
}
