package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/bobarin/imagetiming/internal/models"
	"github.com/bobarin/imagetiming/internal/pipeline"
	"github.com/bobarin/imagetiming/internal/queue"
)

type fakeStore struct {
	mu         sync.Mutex
	requests   map[uuid.UUID]*models.CreateTimelineRequest
	statuses   []models.JobStatus
	sections   []models.SectionTimeline
	completed  bool
	count      int
	resultPath *string
	errMsg     string
}

func newFakeStore(id uuid.UUID, req *models.CreateTimelineRequest) *fakeStore {
	return &fakeStore{requests: map[uuid.UUID]*models.CreateTimelineRequest{id: req}}
}

func (s *fakeStore) GetJobRequest(_ context.Context, id uuid.UUID) (*models.CreateTimelineRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, errors.New("job not found")
	}
	return req, nil
}

func (s *fakeStore) UpdateJobStatus(_ context.Context, _ uuid.UUID, status models.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *fakeStore) SaveSectionTimelines(_ context.Context, _ uuid.UUID, sections []models.SectionTimeline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sections = sections
	return nil
}

func (s *fakeStore) CompleteJob(_ context.Context, _ uuid.UUID, count int, resultPath *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = true
	s.count = count
	s.resultPath = resultPath
	return nil
}

func (s *fakeStore) UpdateJobError(_ context.Context, _ uuid.UUID, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = msg
	return nil
}

type fakeRunner struct {
	got pipeline.Input
	err error
}

func (r *fakeRunner) Run(_ context.Context, in pipeline.Input) (*pipeline.Result, error) {
	r.got = in
	if r.err != nil {
		return nil, r.err
	}
	return &pipeline.Result{
		Sections: []models.SectionTimeline{{
			SectionID: 1, Start: 0, End: 10, Strategy: in.Strategy,
			Clips: models.ClipList{{ImagePath: "section_1_a.png", Start: 0, End: 10, MatchType: models.MatchTypeExact, Confidence: 1}},
		}},
		Stats: pipeline.Stats{Sections: 1, Clips: 1},
	}, nil
}

type fakeUploader struct {
	data []byte
	err  error
}

func (u *fakeUploader) UploadTimeline(_ context.Context, jobID uuid.UUID, data []byte) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	u.data = data
	return "timelines/" + jobID.String() + "/timeline.json", nil
}

type chanSource struct {
	jobs chan *queue.Job
}

func (s *chanSource) DequeueAllocate(ctx context.Context, timeout time.Duration) (*queue.Job, error) {
	select {
	case j := <-s.jobs:
		return j, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, nil
	}
}

func sampleRequest(strategy string) *models.CreateTimelineRequest {
	return &models.CreateTimelineRequest{
		Strategy:    strategy,
		AudioTiming: []models.SectionDuration{{SectionID: 1, CharEndTimes: []float64{10}}},
		Subtitles:   []models.Subtitle{{Index: 0, Start: 0, End: 10, Text: "本能寺の変"}},
		Images:      []models.ImageAsset{{Path: "section_1_a.png", SectionID: 1, Keywords: []string{"本能寺の変"}}},
	}
}

func TestProcessSuccess(t *testing.T) {
	id := uuid.New()
	store := newFakeStore(id, sampleRequest("semantic"))
	runner := &fakeRunner{}
	up := &fakeUploader{}

	w := New(store, nil, up, runner, nil)
	w.Process(context.Background(), &queue.Job{ID: id, Type: "allocate_timeline"})

	if runner.got.Strategy != models.StrategySemantic {
		t.Errorf("strategy = %q", runner.got.Strategy)
	}
	if len(runner.got.Subtitles) != 1 || len(runner.got.Images) != 1 || len(runner.got.Durations) != 1 {
		t.Errorf("unexpected pipeline input %+v", runner.got)
	}
	if len(store.statuses) != 1 || store.statuses[0] != models.JobStatusRunning {
		t.Errorf("statuses = %v", store.statuses)
	}
	if !store.completed || store.count != 1 {
		t.Fatalf("job not completed: %+v", store)
	}
	if store.sections[0].JobID != id {
		t.Errorf("section job id = %v", store.sections[0].JobID)
	}
	if store.resultPath == nil || !strings.Contains(*store.resultPath, id.String()) {
		t.Errorf("result path = %v", store.resultPath)
	}
	if !strings.Contains(string(up.data), `"job_id": "`+id.String()+`"`) {
		t.Errorf("uploaded document missing job id: %s", up.data)
	}
	if store.errMsg != "" {
		t.Errorf("unexpected error %q", store.errMsg)
	}
}

func TestProcessWithoutUploader(t *testing.T) {
	id := uuid.New()
	store := newFakeStore(id, sampleRequest(""))
	runner := &fakeRunner{}

	New(store, nil, nil, runner, nil).Process(context.Background(), &queue.Job{ID: id})

	if runner.got.Strategy != models.StrategyKeyword {
		t.Errorf("strategy = %q, want keyword", runner.got.Strategy)
	}
	if !store.completed || store.resultPath != nil {
		t.Errorf("expected completion without result path, got %+v", store)
	}
}

func TestProcessUploadFailureStillCompletes(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	id := uuid.New()
	store := newFakeStore(id, sampleRequest("keyword"))

	w := New(store, nil, &fakeUploader{err: errors.New("bucket gone")}, &fakeRunner{}, zap.New(core))
	w.Process(context.Background(), &queue.Job{ID: id})

	if !store.completed || store.resultPath != nil {
		t.Errorf("expected completion without result path, got %+v", store)
	}
	if logs.FilterMessage("failed to upload timeline").Len() != 1 {
		t.Errorf("expected upload warning, got %v", logs.All())
	}
}

func TestProcessRecordsFailures(t *testing.T) {
	tests := []struct {
		name    string
		req     *models.CreateTimelineRequest
		runErr  error
		wantErr string
	}{
		{"bad strategy", sampleRequest("magic"), nil, "unknown strategy"},
		{"pipeline error", sampleRequest("keyword"), context.Canceled, "failed to allocate timeline"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := uuid.New()
			store := newFakeStore(id, tt.req)

			New(store, nil, nil, &fakeRunner{err: tt.runErr}, nil).Process(context.Background(), &queue.Job{ID: id})

			if store.completed {
				t.Error("job should not complete")
			}
			if !strings.Contains(store.errMsg, tt.wantErr) {
				t.Errorf("error = %q, want %q", store.errMsg, tt.wantErr)
			}
		})
	}
}

func TestProcessMissingRequest(t *testing.T) {
	store := &fakeStore{requests: map[uuid.UUID]*models.CreateTimelineRequest{}}
	New(store, nil, nil, &fakeRunner{}, nil).Process(context.Background(), &queue.Job{ID: uuid.New()})

	if !strings.Contains(store.errMsg, "failed to load job request") {
		t.Errorf("error = %q", store.errMsg)
	}
}

func TestStartConsumesQueue(t *testing.T) {
	id := uuid.New()
	store := newFakeStore(id, sampleRequest("keyword"))
	src := &chanSource{jobs: make(chan *queue.Job, 1)}
	src.jobs <- &queue.Job{ID: id}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		New(store, src, nil, &fakeRunner{}, nil).Start(ctx, 2)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		store.mu.Lock()
		completed := store.completed
		store.mu.Unlock()
		if completed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job was not processed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
