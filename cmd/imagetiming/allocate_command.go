package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bobarin/imagetiming/internal/allocator"
	"github.com/bobarin/imagetiming/internal/cache"
	"github.com/bobarin/imagetiming/internal/config"
	"github.com/bobarin/imagetiming/internal/matcher"
	"github.com/bobarin/imagetiming/internal/models"
	"github.com/bobarin/imagetiming/internal/pipeline"
	"github.com/bobarin/imagetiming/internal/services"
	"github.com/bobarin/imagetiming/internal/timeline"
	"github.com/bobarin/imagetiming/internal/workdir"
)

type allocateOptions struct {
	workdir     string
	strategy    string
	provider    string
	output      string
	concurrency int
}

func newAllocateCommand(ctx *commandContext) *cobra.Command {
	opts := &allocateOptions{}

	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "Build the image timeline for a working directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := ctx.timing()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(t)
			if err != nil {
				return err
			}
			defer logger.Sync()

			return runAllocate(cmd, t, opts, logger)
		},
	}

	cmd.Flags().StringVarP(&opts.workdir, "workdir", "w", "", "Video working directory")
	cmd.Flags().StringVarP(&opts.strategy, "strategy", "s", "keyword", "Allocation strategy (keyword, semantic)")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "Assistant for the semantic strategy (openai, gemini, none); defaults to ALLOCATION_PROVIDER")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Timeline output path (default <workdir>/07_composition/image_timeline.json)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "Sections allocated in parallel; defaults to SECTION_CONCURRENCY")
	_ = cmd.MarkFlagRequired("workdir")

	return cmd
}

func runAllocate(cmd *cobra.Command, t *config.Timing, opts *allocateOptions, logger *zap.Logger) error {
	strategy, err := models.ParseStrategy(opts.strategy)
	if err != nil {
		return err
	}
	if opts.provider != "" {
		t.AllocationProvider = opts.provider
	}
	if opts.concurrency > 0 {
		t.SectionConcurrency = opts.concurrency
	}
	if err := t.Validate(); err != nil {
		return err
	}

	layout := workdir.Layout{Root: opts.workdir}
	in, err := workdir.Load(opts.workdir, logger)
	if err != nil {
		return err
	}

	var semantic allocator.Allocator
	if strategy == models.StrategySemantic {
		semantic, err = newSemanticAllocator(cmd.Context(), t, layout, logger)
		if err != nil {
			return err
		}
	}

	p := pipeline.New(
		t.PipelineOptions(),
		allocator.NewKeyword(matcher.New(t.Weights(), logger)),
		semantic,
		timeline.NewReconciler(t.Limits(), logger),
		logger,
	)

	result, err := p.Run(cmd.Context(), pipeline.Input{
		Strategy:  strategy,
		Durations: in.Durations,
		Script:    in.Script,
		Subtitles: in.Subtitles,
		Images:    in.Images,
	})
	if err != nil {
		return err
	}

	output := opts.output
	if output == "" {
		output = layout.TimelinePath()
	}
	doc := &models.TimelineDocument{
		Strategy:    strategy,
		GeneratedAt: time.Now().UTC(),
		Sections:    result.Sections,
	}
	if doc.Sections == nil {
		doc.Sections = []models.SectionTimeline{}
	}
	if err := workdir.WriteTimeline(output, doc); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d sections (%d clips, %d fallbacks, %d skipped) to %s\n",
		result.Stats.Sections, result.Stats.Clips, result.Stats.Fallbacks, result.Stats.Skipped, output)
	return nil
}

// newSemanticAllocator returns nil when no provider is configured so the
// pipeline splits evenly instead.
func newSemanticAllocator(ctx context.Context, t *config.Timing, layout workdir.Layout, logger *zap.Logger) (allocator.Allocator, error) {
	key, err := t.ProviderKey()
	if err != nil {
		return nil, err
	}
	model := t.OpenAIModel
	if t.AllocationProvider == config.ProviderGemini {
		model = t.GeminiModel
	}

	assistant, err := services.NewAssistant(ctx, t.AllocationProvider, key, model, logger)
	if err != nil {
		return nil, err
	}
	if assistant == nil {
		logger.Warn("no allocation provider configured, sections will split evenly")
		return nil, nil
	}

	store, err := newCacheStore(t, layout, logger)
	if err != nil {
		return nil, err
	}
	return allocator.NewSemantic(assistant, store, t.SemanticOptions(), logger), nil
}

func newCacheStore(t *config.Timing, layout workdir.Layout, logger *zap.Logger) (cache.Store, error) {
	switch t.CacheBackend {
	case config.CacheMemory:
		return cache.NewMemoryStore(), nil
	case config.CacheRedis:
		redisOpts, err := redis.ParseURL(t.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis URL: %w", err)
		}
		return cache.NewRedisStore(redis.NewClient(redisOpts)), nil
	default:
		return cache.NewFileStore(layout.CachePath(), logger), nil
	}
}
