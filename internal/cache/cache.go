package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/bobarin/imagetiming/internal/models"
)

// Store persists sparse allocations keyed by section content.
type Store interface {
	Get(ctx context.Context, key string) ([]models.Assignment, bool, error)
	Put(ctx context.Context, key string, assignments []models.Assignment) error
	Clear(ctx context.Context) error
}

type subtitleKey struct {
	Index int     `json:"index"`
	Start float64 `json:"start_time"`
	End   float64 `json:"end_time"`
	Text  string  `json:"text"`
}

type imageKey struct {
	File     string   `json:"file"`
	Keywords []string `json:"keywords"`
}

// Key derives the cache key for a section's inputs. Any change to the
// subtitles or to the image names and keywords yields a different key.
func Key(sectionID int, subtitles []models.Subtitle, images []models.ImageAsset) (string, error) {
	subs := make([]subtitleKey, len(subtitles))
	for i, s := range subtitles {
		subs[i] = subtitleKey{Index: s.Index, Start: s.Start, End: s.End, Text: s.Text}
	}
	subHash, err := hashJSON(subs)
	if err != nil {
		return "", fmt.Errorf("failed to hash subtitles: %w", err)
	}

	imgs := make([]imageKey, len(images))
	for i, img := range images {
		kws := img.Keywords
		if kws == nil {
			kws = []string{}
		}
		imgs[i] = imageKey{File: img.Filename(), Keywords: kws}
	}
	imgHash, err := hashJSON(imgs)
	if err != nil {
		return "", fmt.Errorf("failed to hash images: %w", err)
	}

	return fmt.Sprintf("%d_%s_%s", sectionID, subHash, imgHash), nil
}

func hashJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(data)), nil
}

func cloneAssignments(in []models.Assignment) []models.Assignment {
	if in == nil {
		return nil
	}
	out := make([]models.Assignment, len(in))
	copy(out, in)
	return out
}
