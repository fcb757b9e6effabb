package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bobarin/imagetiming/internal/allocator"
	"github.com/bobarin/imagetiming/internal/logging"
	"github.com/bobarin/imagetiming/internal/matcher"
	"github.com/bobarin/imagetiming/internal/models"
	"github.com/bobarin/imagetiming/internal/timeline"
)

type Options struct {
	// Timeout bounds a single semantic allocation attempt.
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
	Concurrency int
}

func DefaultOptions() Options {
	return Options{
		Timeout:     60 * time.Second,
		MaxAttempts: 3,
		Backoff:     time.Second,
		Concurrency: 4,
	}
}

// Input is everything needed to allocate images for one video.
type Input struct {
	Strategy  models.Strategy
	Durations []models.SectionDuration
	Script    *models.ScriptData
	Subtitles []models.Subtitle
	Images    []models.ImageAsset
}

type Stats struct {
	Sections  int `json:"sections"`
	Skipped   int `json:"skipped"`
	Fallbacks int `json:"fallbacks"`
	Clips     int `json:"clips"`
}

type Result struct {
	Sections []models.SectionTimeline
	Stats    Stats
}

// Pipeline runs the per-section strategy and reconciles every section.
type Pipeline struct {
	opts       Options
	keyword    allocator.Allocator
	semantic   allocator.Allocator
	reconciler *timeline.Reconciler
	logger     *zap.Logger
}

// New builds a pipeline. semantic may be nil, in which case semantic
// requests fall back to an equal split.
func New(opts Options, keyword, semantic allocator.Allocator, reconciler *timeline.Reconciler, logger *zap.Logger) *Pipeline {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Pipeline{
		opts:       opts,
		keyword:    keyword,
		semantic:   semantic,
		reconciler: reconciler,
		logger:     logging.OrNop(logger).Named("pipeline"),
	}
}

type sectionOutcome struct {
	timeline models.SectionTimeline
	ok       bool
}

// Run allocates every known section. A failing section degrades to its
// fallback and never aborts the others; only cancellation of ctx is
// returned as an error.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Result, error) {
	strategy := in.Strategy
	if strategy == "" {
		strategy = models.StrategyKeyword
	}

	resolver := timeline.NewBoundaryResolver(in.Durations, in.Script, in.Subtitles, p.logger)
	byID := imagesBySection(in.Images)
	ids := sectionIDs(resolver, byID)

	p.logger.Info("allocation started",
		zap.String("strategy", string(strategy)),
		zap.Int("sections", len(ids)),
		zap.Int("subtitles", len(in.Subtitles)),
		zap.Int("images", len(in.Images)))

	outcomes := make([]sectionOutcome, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)

	for i, id := range ids {
		g.Go(func() error {
			sec, ok := resolver.Resolve(id)
			if !ok {
				return nil
			}
			subs := timeline.SectionSubtitles(sec, in.Subtitles)
			outcomes[i] = sectionOutcome{
				timeline: p.runSection(gctx, strategy, sec, subs, byID[id]),
				ok:       true,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("allocation cancelled: %w", err)
	}

	res := &Result{}
	for _, o := range outcomes {
		if !o.ok {
			res.Stats.Skipped++
			continue
		}
		res.Sections = append(res.Sections, o.timeline)
		res.Stats.Sections++
		res.Stats.Clips += len(o.timeline.Clips)
		if o.timeline.Fallback {
			res.Stats.Fallbacks++
		}
	}

	p.logger.Info("allocation finished",
		zap.Int("sections", res.Stats.Sections),
		zap.Int("skipped", res.Stats.Skipped),
		zap.Int("fallbacks", res.Stats.Fallbacks),
		zap.Int("clips", res.Stats.Clips))
	return res, nil
}

func (p *Pipeline) runSection(ctx context.Context, strategy models.Strategy, sec models.Section, subs []models.Subtitle, images []models.ImageAsset) models.SectionTimeline {
	out := models.SectionTimeline{
		SectionID: sec.ID,
		Start:     sec.Start,
		End:       sec.End,
		Strategy:  strategy,
	}

	var clips []models.Clip
	switch strategy {
	case models.StrategySemantic:
		var err error
		clips, err = p.allocateWithRetry(ctx, sec, subs, images)
		if err != nil {
			p.logger.Warn("semantic allocation failed, splitting evenly",
				zap.Int("section_id", sec.ID),
				zap.Error(err))
			clips = timeline.EqualSplit(images, sec, models.MatchTypeFallbackEqualSplit)
			out.Fallback = true
		}
	default:
		var err error
		clips, err = p.keyword.Allocate(ctx, sec, subs, images)
		if err != nil {
			p.logger.Warn("keyword allocation failed, splitting evenly",
				zap.Int("section_id", sec.ID),
				zap.Error(err))
			clips = timeline.EqualSplit(images, sec, models.MatchTypeFallbackEqualSplit)
			out.Fallback = true
		}
	}

	out.Clips = p.reconciler.Reconcile(clips, sec.Start, sec.End)
	return out
}

// allocateWithRetry runs the semantic allocator with a per-attempt timeout
// and exponential backoff between attempts.
func (p *Pipeline) allocateWithRetry(ctx context.Context, sec models.Section, subs []models.Subtitle, images []models.ImageAsset) ([]models.Clip, error) {
	if p.semantic == nil {
		return nil, fmt.Errorf("%w: semantic allocator not configured", allocator.ErrAllocationFailed)
	}

	var lastErr error
	for attempt := 1; attempt <= p.opts.MaxAttempts; attempt++ {
		clips, err := p.attempt(ctx, sec, subs, images)
		if err == nil {
			return clips, nil
		}
		lastErr = err

		if ctx.Err() != nil || attempt == p.opts.MaxAttempts {
			break
		}

		wait := p.opts.Backoff << (attempt - 1)
		p.logger.Warn("semantic allocation attempt failed, retrying",
			zap.Int("section_id", sec.ID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", allocator.ErrAllocationFailed, ctx.Err())
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}

func (p *Pipeline) attempt(ctx context.Context, sec models.Section, subs []models.Subtitle, images []models.ImageAsset) ([]models.Clip, error) {
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}
	return p.semantic.Allocate(ctx, sec, subs, images)
}

func imagesBySection(images []models.ImageAsset) map[int][]models.ImageAsset {
	byID := make(map[int][]models.ImageAsset)
	for _, img := range images {
		byID[img.SectionID] = append(byID[img.SectionID], img)
	}
	for id, imgs := range byID {
		byID[id] = matcher.SortByFilename(imgs)
	}
	return byID
}

func sectionIDs(resolver *timeline.BoundaryResolver, byID map[int][]models.ImageAsset) []int {
	seen := make(map[int]struct{})
	for _, id := range resolver.SectionIDs() {
		seen[id] = struct{}{}
	}
	for id := range byID {
		seen[id] = struct{}{}
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
