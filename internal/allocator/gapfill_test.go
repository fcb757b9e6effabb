package allocator

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bobarin/imagetiming/internal/models"
)

func TestFillGapsWholeSection(t *testing.T) {
	images := []models.ImageAsset{{Path: "a.png"}, {Path: "b.png"}}
	got := FillGaps(nil, images, models.Section{ID: 1, Start: 5, End: 20}, 2, 3)

	want := []models.Clip{{ImagePath: "a.png", Start: 5, End: 20, MatchType: models.MatchTypeGapFill}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestFillGapsReusesDifferentImage(t *testing.T) {
	images := []models.ImageAsset{{Path: "a.png"}, {Path: "b.png"}}
	clips := []models.Clip{
		{ImagePath: "b.png", Start: 10, End: 12, Confidence: 1, MatchType: models.MatchTypeLLM},
		{ImagePath: "a.png", Start: 0, End: 2, Confidence: 1, MatchType: models.MatchTypeLLM},
	}

	got := FillGaps(clips, images, models.Section{ID: 1, Start: 0, End: 12}, 2, 3)
	want := []models.Clip{
		{ImagePath: "a.png", Start: 0, End: 2, Confidence: 1, MatchType: models.MatchTypeLLM},
		{ImagePath: "a.png", Start: 2, End: 10, MatchType: models.MatchTypeGapFill},
		{ImagePath: "b.png", Start: 10, End: 12, Confidence: 1, MatchType: models.MatchTypeLLM},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestFillGapsSkipsShortGaps(t *testing.T) {
	images := []models.ImageAsset{{Path: "a.png"}, {Path: "b.png"}, {Path: "c.png"}}
	clips := []models.Clip{
		{ImagePath: "a.png", Start: 0, End: 4, MatchType: models.MatchTypeLLM},
		{ImagePath: "b.png", Start: 5.5, End: 8, MatchType: models.MatchTypeLLM},
		{ImagePath: "a.png", Start: 10.5, End: 12, MatchType: models.MatchTypeLLM},
	}

	// 1.5s is below threshold, 2.5s is below min duration
	got := FillGaps(clips, images, models.Section{ID: 1, Start: 0, End: 12}, 2, 3)
	if diff := cmp.Diff(clips, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestFillGapsNoImages(t *testing.T) {
	clips := []models.Clip{{ImagePath: "a.png", Start: 4, End: 6, MatchType: models.MatchTypeLLM}}
	got := FillGaps(clips, nil, models.Section{ID: 1, Start: 0, End: 30}, 2, 3)
	if diff := cmp.Diff(clips, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}
