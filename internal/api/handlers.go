package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bobarin/imagetiming/internal/db"
	"github.com/bobarin/imagetiming/internal/logging"
	"github.com/bobarin/imagetiming/internal/models"
	"github.com/bobarin/imagetiming/internal/pipeline"
)

// Store is the job persistence the handlers read and write.
type Store interface {
	CreateTimelineJob(ctx context.Context, job *models.TimelineJob, req *models.CreateTimelineRequest) error
	GetTimelineJob(ctx context.Context, id uuid.UUID) (*models.TimelineJob, error)
	GetSectionTimelines(ctx context.Context, jobID uuid.UUID) ([]models.SectionTimeline, error)
	GetSectionTimeline(ctx context.Context, jobID uuid.UUID, sectionID int) (*models.SectionTimeline, error)
}

type Enqueuer interface {
	EnqueueAllocate(ctx context.Context, jobID uuid.UUID) error
}

// URLResolver turns a stored result path into a downloadable URL.
type URLResolver interface {
	GetPublicURL(path string) string
}

// Previewer runs a synchronous allocation.
type Previewer interface {
	Run(ctx context.Context, in pipeline.Input) (*pipeline.Result, error)
}

type Handler struct {
	store   Store
	queue   Enqueuer
	urls    URLResolver
	preview Previewer
	logger  *zap.Logger
}

// NewHandler wires the handlers. urls may be nil when storage is not configured.
func NewHandler(store Store, q Enqueuer, urls URLResolver, preview Previewer, logger *zap.Logger) *Handler {
	return &Handler{
		store:   store,
		queue:   q,
		urls:    urls,
		preview: preview,
		logger:  logging.OrNop(logger).Named("api"),
	}
}

// CreateTimeline handles POST /v1/timelines
func (h *Handler) CreateTimeline(w http.ResponseWriter, r *http.Request) {
	req, strategy, ok := decodeTimelineRequest(w, r)
	if !ok {
		return
	}

	job := &models.TimelineJob{
		ID:       uuid.New(),
		Strategy: strategy,
		Status:   models.JobStatusQueued,
	}
	req.Strategy = string(strategy)

	if err := h.store.CreateTimelineJob(r.Context(), job, req); err != nil {
		h.logger.Error("failed to create job", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	if err := h.queue.EnqueueAllocate(r.Context(), job.ID); err != nil {
		h.logger.Error("failed to enqueue job", zap.String("job_id", job.ID.String()), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	respondJSON(w, http.StatusAccepted, models.CreateTimelineResponse{
		JobID:  job.ID,
		Status: job.Status,
	})
}

// PreviewTimeline handles POST /v1/timelines/preview. It always runs the
// keyword strategy so it never waits on an external assistant.
func (h *Handler) PreviewTimeline(w http.ResponseWriter, r *http.Request) {
	req, _, ok := decodeTimelineRequest(w, r)
	if !ok {
		return
	}

	result, err := h.preview.Run(r.Context(), pipeline.Input{
		Strategy:  models.StrategyKeyword,
		Durations: req.AudioTiming,
		Script:    req.Script,
		Subtitles: req.Subtitles,
		Images:    req.Images,
	})
	if err != nil {
		h.logger.Warn("preview failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to allocate timeline")
		return
	}

	sections := result.Sections
	if sections == nil {
		sections = []models.SectionTimeline{}
	}
	respondJSON(w, http.StatusOK, models.PreviewResponse{Sections: sections})
}

// GetTimeline handles GET /v1/timelines/{id}
func (h *Handler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	id, ok := parseJobID(w, r)
	if !ok {
		return
	}

	job, err := h.store.GetTimelineJob(r.Context(), id)
	if errors.Is(err, db.ErrJobNotFound) {
		respondError(w, http.StatusNotFound, "Timeline job not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get job", zap.String("job_id", id.String()), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to get timeline job")
		return
	}

	resp := models.TimelineResponse{TimelineJob: *job}

	if job.Status == models.JobStatusSucceeded {
		sections, err := h.store.GetSectionTimelines(r.Context(), id)
		if err != nil {
			h.logger.Error("failed to get sections", zap.String("job_id", id.String()), zap.Error(err))
			respondError(w, http.StatusInternalServerError, "Failed to get timeline sections")
			return
		}
		resp.Sections = sections

		if job.ResultPath != nil && h.urls != nil {
			u := h.urls.GetPublicURL(*job.ResultPath)
			resp.ResultURL = &u
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

// GetSection handles GET /v1/timelines/{id}/sections/{sectionId}
func (h *Handler) GetSection(w http.ResponseWriter, r *http.Request) {
	id, ok := parseJobID(w, r)
	if !ok {
		return
	}

	sectionID, err := strconv.Atoi(chi.URLParam(r, "sectionId"))
	if err != nil || sectionID < 0 {
		respondError(w, http.StatusBadRequest, "Invalid section ID")
		return
	}

	section, err := h.store.GetSectionTimeline(r.Context(), id, sectionID)
	if errors.Is(err, db.ErrSectionNotFound) || errors.Is(err, db.ErrJobNotFound) {
		respondError(w, http.StatusNotFound, "Section not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get section", zap.String("job_id", id.String()), zap.Int("section_id", sectionID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to get section")
		return
	}

	respondJSON(w, http.StatusOK, section)
}

func decodeTimelineRequest(w http.ResponseWriter, r *http.Request) (*models.CreateTimelineRequest, models.Strategy, bool) {
	var req models.CreateTimelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return nil, "", false
	}

	strategy, err := models.ParseStrategy(req.Strategy)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid strategy. Allowed: keyword, semantic")
		return nil, "", false
	}

	if len(req.Images) == 0 {
		respondError(w, http.StatusBadRequest, "At least one image is required")
		return nil, "", false
	}

	if len(req.AudioTiming) == 0 && req.Script == nil && len(req.Subtitles) == 0 {
		respondError(w, http.StatusBadRequest, "One of audio_timing, script or subtitles is required")
		return nil, "", false
	}

	return &req, strategy, true
}

func parseJobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid job ID")
		return uuid.Nil, false
	}
	return id, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
