package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

func noDelay(int) time.Duration { return 0 }

func TestUploadTimeline(t *testing.T) {
	jobID := uuid.MustParse("3f1c6c8e-0d7a-4a53-9d0e-2b1f3f1e5a10")
	var gotPath, gotAuth, gotUpsert, gotBody string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotUpsert = r.Header.Get("x-upsert")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New(srv.URL+"/", "secret", "timelines-bucket", nil)
	p, err := s.UploadTimeline(context.Background(), jobID, []byte(`{"sections":[]}`))
	if err != nil {
		t.Fatalf("UploadTimeline: %v", err)
	}

	if p != "timelines/"+jobID.String()+"/timeline.json" {
		t.Errorf("path = %q", p)
	}
	if gotPath != "/storage/v1/object/timelines-bucket/"+p {
		t.Errorf("request path = %q", gotPath)
	}
	if gotAuth != "Bearer secret" || gotUpsert != "true" {
		t.Errorf("headers: auth=%q upsert=%q", gotAuth, gotUpsert)
	}
	if gotBody != `{"sections":[]}` {
		t.Errorf("body = %q", gotBody)
	}
}

func TestUploadRetriesOnServiceUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s := New(srv.URL, "k", "b", nil)
	s.retryDelay = noDelay

	if err := s.Upload(context.Background(), "a.json", []byte("{}"), "application/json"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestUploadStopsOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, "denied")
	}))
	defer srv.Close()

	s := New(srv.URL, "k", "b", nil)
	s.retryDelay = noDelay

	err := s.Upload(context.Background(), "a.json", []byte("{}"), "application/json")
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestUploadGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := New(srv.URL, "k", "b", nil)
	s.retryDelay = noDelay

	if err := s.Upload(context.Background(), "a.json", nil, "application/json"); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != maxRetries+1 {
		t.Errorf("calls = %d, want %d", calls.Load(), maxRetries+1)
	}
}

func TestRetryDelayBounds(t *testing.T) {
	for attempt := 1; attempt <= 8; attempt++ {
		d := retryDelay(attempt)
		if d < baseRetryDelay || d > maxRetryDelay+maxRetryDelay/4 {
			t.Errorf("retryDelay(%d) = %v out of bounds", attempt, d)
		}
	}
}

func TestGetPublicURL(t *testing.T) {
	s := New("https://x.supabase.co", "k", "bucket", nil)
	if got := s.GetPublicURL("timelines/a/timeline.json"); got != "https://x.supabase.co/storage/v1/object/public/bucket/timelines/a/timeline.json" {
		t.Errorf("GetPublicURL = %q", got)
	}
}
