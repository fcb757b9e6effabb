package allocator

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/bobarin/imagetiming/internal/cache"
	"github.com/bobarin/imagetiming/internal/logging"
	"github.com/bobarin/imagetiming/internal/models"
	"github.com/bobarin/imagetiming/internal/timeline"
)

type SemanticOptions struct {
	GapThreshold float64
	MinDuration  float64
}

func DefaultSemanticOptions() SemanticOptions {
	return SemanticOptions{GapThreshold: 2.0, MinDuration: timeline.DefaultMinDuration}
}

// SemanticAllocator delegates image choice to an external assistant and
// memoises each section's answer in a cache store.
type SemanticAllocator struct {
	assistant Assistant
	store     cache.Store
	opts      SemanticOptions
	logger    *zap.Logger
}

func NewSemantic(assistant Assistant, store cache.Store, opts SemanticOptions, logger *zap.Logger) *SemanticAllocator {
	if store == nil {
		store = cache.NewMemoryStore()
	}
	return &SemanticAllocator{
		assistant: assistant,
		store:     store,
		opts:      opts,
		logger:    logging.OrNop(logger).Named("semantic"),
	}
}

// Allocate returns llm clips for the assignments plus gap-fill clips for the
// long spans they leave uncovered. Failures wrap ErrAllocationFailed.
func (a *SemanticAllocator) Allocate(ctx context.Context, section models.Section, subtitles []models.Subtitle, images []models.ImageAsset) ([]models.Clip, error) {
	if len(subtitles) == 0 {
		a.logger.Warn("no subtitles in section, splitting evenly",
			zap.Int("section_id", section.ID),
			zap.Int("images", len(images)))
		return timeline.EqualSplit(images, section, models.MatchTypeFallbackEqualSplit), nil
	}
	if len(images) == 0 {
		a.logger.Warn("no images in section", zap.Int("section_id", section.ID))
		return nil, nil
	}

	assignments, err := a.assignments(ctx, section.ID, subtitles, images)
	if err != nil {
		return nil, err
	}

	clips := a.apply(assignments, subtitles, images)
	filled := FillGaps(clips, images, section, a.opts.GapThreshold, a.opts.MinDuration)

	a.logger.Info("section allocated",
		zap.Int("section_id", section.ID),
		zap.Int("assignments", len(assignments)),
		zap.Int("llm_clips", len(clips)),
		zap.Int("gap_fill_clips", len(filled)-len(clips)))
	return filled, nil
}

func (a *SemanticAllocator) assignments(ctx context.Context, sectionID int, subtitles []models.Subtitle, images []models.ImageAsset) ([]models.Assignment, error) {
	key, err := cache.Key(sectionID, subtitles, images)
	if err != nil {
		a.logger.Warn("failed to derive cache key", zap.Error(err))
	}

	if key != "" {
		cached, ok, err := a.store.Get(ctx, key)
		switch {
		case err != nil:
			a.logger.Warn("allocation cache read failed, treating as miss",
				zap.String("key", key),
				zap.Error(err))
		case ok:
			a.logger.Info("using cached allocation",
				zap.Int("section_id", sectionID),
				zap.String("key", key))
			return cached, nil
		}
	}

	if a.assistant == nil {
		return nil, fmt.Errorf("%w: no assistant configured", ErrAllocationFailed)
	}

	a.logger.Info("requesting allocation from assistant",
		zap.Int("section_id", sectionID),
		zap.Int("subtitles", len(subtitles)),
		zap.Int("images", len(images)))

	reply, err := a.assistant.ProposeAllocation(ctx, SystemPrompt, BuildPrompt(subtitles, images))
	if err != nil {
		return nil, fmt.Errorf("%w: section %d: %w", ErrAllocationFailed, sectionID, err)
	}

	assignments, err := ParseAssignments(reply)
	if err != nil {
		a.logger.Debug("unparseable assistant reply", zap.String("reply", truncate(reply, 500)))
		return nil, fmt.Errorf("%w: section %d: %w", ErrAllocationFailed, sectionID, err)
	}

	if key != "" {
		if err := a.store.Put(ctx, key, assignments); err != nil {
			a.logger.Warn("failed to write allocation cache",
				zap.String("key", key),
				zap.Error(err))
		}
	}
	return assignments, nil
}

// apply turns assignments into clips spanning each referenced subtitle.
// Unknown subtitle ids or file names are dropped.
func (a *SemanticAllocator) apply(assignments []models.Assignment, subtitles []models.Subtitle, images []models.ImageAsset) []models.Clip {
	subs := make(map[int]models.Subtitle, len(subtitles))
	for _, s := range subtitles {
		if _, ok := subs[s.Index]; !ok {
			subs[s.Index] = s
		}
	}
	imgs := make(map[string]models.ImageAsset, len(images))
	for _, img := range images {
		if _, ok := imgs[img.Filename()]; !ok {
			imgs[img.Filename()] = img
		}
	}

	clips := make([]models.Clip, 0, len(assignments))
	for _, as := range assignments {
		sub, ok := subs[as.SubtitleID]
		if !ok {
			a.logger.Warn("assignment references unknown subtitle", zap.Int("subtitle_id", as.SubtitleID))
			continue
		}
		img, ok := imgs[as.Image]
		if !ok {
			a.logger.Warn("assignment references unknown image", zap.String("image", as.Image))
			continue
		}
		clips = append(clips, models.Clip{
			ImagePath:  img.Path,
			Start:      sub.Start,
			End:        sub.End,
			Confidence: 1.0,
			MatchType:  models.MatchTypeLLM,
		})
	}

	sort.SliceStable(clips, func(i, j int) bool { return clips[i].Start < clips[j].Start })
	return clips
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
