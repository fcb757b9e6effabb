package allocator

import (
	"sort"

	"github.com/bobarin/imagetiming/internal/models"
)

type span struct {
	start, end float64
}

// FillGaps covers long uncovered spans of a sparse allocation with images.
// Only gaps of at least threshold and minDuration are filled; shorter ones
// are left for the reconciler to absorb. Images not referenced by any clip
// are used first, in order.
func FillGaps(clips []models.Clip, images []models.ImageAsset, section models.Section, threshold, minDuration float64) []models.Clip {
	out := make([]models.Clip, len(clips))
	copy(out, clips)
	if len(images) == 0 {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })

	used := make(map[string]bool, len(out))
	for _, c := range out {
		used[c.ImagePath] = true
	}
	var unused []models.ImageAsset
	for _, img := range images {
		if !used[img.Path] {
			unused = append(unused, img)
		}
	}

	var gaps []span
	if len(out) == 0 {
		gaps = append(gaps, span{section.Start, section.End})
	} else {
		if out[0].Start-section.Start >= threshold {
			gaps = append(gaps, span{section.Start, out[0].Start})
		}
		for i := 0; i < len(out)-1; i++ {
			if out[i+1].Start-out[i].End >= threshold {
				gaps = append(gaps, span{out[i].End, out[i+1].Start})
			}
		}
		if last := out[len(out)-1]; section.End-last.End >= threshold {
			gaps = append(gaps, span{last.End, section.End})
		}
	}

	next := 0
	for _, g := range gaps {
		d := g.end - g.start
		if d < threshold || d < minDuration {
			continue
		}

		var img models.ImageAsset
		switch {
		case next < len(unused):
			img = unused[next]
			next++
		case len(out) > 0:
			img = images[0]
			prev := out[len(out)-1].ImagePath
			for _, cand := range images {
				if cand.Path != prev {
					img = cand
					break
				}
			}
		default:
			continue
		}

		out = append(out, models.Clip{
			ImagePath:  img.Path,
			Start:      g.start,
			End:        g.end,
			Confidence: 0,
			MatchType:  models.MatchTypeGapFill,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}
