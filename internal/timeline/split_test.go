package timeline

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bobarin/imagetiming/internal/models"
)

func TestEqualSplit(t *testing.T) {
	images := []models.ImageAsset{{Path: "section_2_a.png"}, {Path: "section_2_b.png"}, {Path: "section_2_c.png"}}

	got := EqualSplit(images, models.Section{ID: 2, Start: 10, End: 22}, models.MatchTypeFallbackEqualSplit)
	want := []models.Clip{
		clip("section_2_a.png", 10, 14, models.MatchTypeFallbackEqualSplit),
		clip("section_2_b.png", 14, 18, models.MatchTypeFallbackEqualSplit),
		clip("section_2_c.png", 18, 22, models.MatchTypeFallbackEqualSplit),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected clips (-want +got):\n%s", diff)
	}
}

func TestEqualSplitEndsExactly(t *testing.T) {
	images := make([]models.ImageAsset, 7)
	for i := range images {
		images[i].Path = string(rune('a'+i)) + ".png"
	}
	sec := models.Section{ID: 1, Start: 0.1, End: 10.3}

	got := EqualSplit(images, sec, models.MatchTypeFallbackEqualSplit)
	if got[len(got)-1].End != sec.End {
		t.Errorf("last clip ends at %v, want %v", got[len(got)-1].End, sec.End)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Start != got[i-1].End {
			t.Errorf("clip %d does not share boundary with clip %d", i, i-1)
		}
	}
}

func TestEqualSplitEmpty(t *testing.T) {
	if got := EqualSplit(nil, models.Section{ID: 1, Start: 0, End: 10}, models.MatchTypeFallbackEqualSplit); got != nil {
		t.Errorf("expected nil for no images, got %v", got)
	}
	images := []models.ImageAsset{{Path: "a.png"}}
	if got := EqualSplit(images, models.Section{ID: 1, Start: 5, End: 5}, models.MatchTypeFallbackEqualSplit); got != nil {
		t.Errorf("expected nil for empty window, got %v", got)
	}
}
