package allocator

import (
	"context"
	"errors"

	"github.com/bobarin/imagetiming/internal/matcher"
	"github.com/bobarin/imagetiming/internal/models"
)

// ErrAllocationFailed marks a semantic allocation that produced no usable
// assignment: the assistant errored, timed out or replied with malformed JSON.
var ErrAllocationFailed = errors.New("semantic allocation failed")

// Allocator produces candidate clips for one section. The clips may be
// sparse or overlapping; the reconciler normalises them.
type Allocator interface {
	Allocate(ctx context.Context, section models.Section, subtitles []models.Subtitle, images []models.ImageAsset) ([]models.Clip, error)
}

// Assistant is an external service that proposes a sparse allocation.
// The reply is raw text expected to hold JSON.
type Assistant interface {
	ProposeAllocation(ctx context.Context, system, prompt string) (string, error)
}

// KeywordAllocator adapts the keyword matcher to Allocator.
type KeywordAllocator struct {
	matcher *matcher.Matcher
}

func NewKeyword(m *matcher.Matcher) *KeywordAllocator {
	return &KeywordAllocator{matcher: m}
}

func (k *KeywordAllocator) Allocate(_ context.Context, section models.Section, subtitles []models.Subtitle, images []models.ImageAsset) ([]models.Clip, error) {
	return k.matcher.Match(subtitles, images, section), nil
}
