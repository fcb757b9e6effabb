package timeline

import "github.com/bobarin/imagetiming/internal/models"

// EqualSplit divides the section evenly across images in catalog order.
// Adjacent clips share exact boundaries and the last clip ends on section.End.
func EqualSplit(images []models.ImageAsset, section models.Section, matchType models.MatchType) []models.Clip {
	if len(images) == 0 || section.End <= section.Start {
		return nil
	}

	step := section.Duration() / float64(len(images))
	clips := make([]models.Clip, len(images))
	for i, img := range images {
		start := section.Start + float64(i)*step
		if i > 0 {
			start = clips[i-1].End
		}
		end := section.Start + float64(i+1)*step
		if i == len(images)-1 {
			end = section.End
		}
		clips[i] = models.Clip{
			ImagePath:  img.Path,
			Start:      start,
			End:        end,
			Confidence: 0,
			MatchType:  matchType,
		}
	}
	return clips
}
