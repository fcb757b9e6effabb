package matcher

import (
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/bobarin/imagetiming/internal/logging"
	"github.com/bobarin/imagetiming/internal/models"
	"github.com/bobarin/imagetiming/internal/timeline"
)

// Weights tunes match priority.
type Weights struct {
	Exact         float64
	Partial       float64
	SameSection   float64
	KeywordLength float64
}

func DefaultWeights() Weights {
	return Weights{Exact: 10, Partial: 5, SameSection: 3, KeywordLength: 1}
}

// Candidate is one keyword hit for a subtitle line.
type Candidate struct {
	Image      models.ImageAsset
	Keyword    string
	Type       models.MatchType
	Confidence float64
	Priority   float64
}

// Matcher assigns images to subtitles by keyword containment.
type Matcher struct {
	weights Weights
	logger  *zap.Logger
}

func New(weights Weights, logger *zap.Logger) *Matcher {
	return &Matcher{
		weights: weights,
		logger:  logging.OrNop(logger).Named("matcher"),
	}
}

type keywordEntry struct {
	image      models.ImageAsset
	raw        string
	normalized string
	tokens     []string
}

func prepare(images []models.ImageAsset) []keywordEntry {
	var entries []keywordEntry
	for _, img := range images {
		for _, kw := range img.Keywords {
			norm := Normalize(kw)
			if strings.TrimSpace(norm) == "" {
				continue
			}
			entries = append(entries, keywordEntry{
				image:      img,
				raw:        kw,
				normalized: norm,
				tokens:     strings.Fields(norm),
			})
		}
	}
	return entries
}

// Candidates lists every keyword hit for text, in image then keyword order.
func (m *Matcher) Candidates(text string, images []models.ImageAsset, sectionID int) []Candidate {
	return m.candidates(Normalize(text), prepare(images), sectionID)
}

func (m *Matcher) candidates(normText string, entries []keywordEntry, sectionID int) []Candidate {
	var out []Candidate
	for _, e := range entries {
		if strings.Contains(normText, e.normalized) {
			out = append(out, m.candidate(e, models.MatchTypeExact, 1.0, sectionID))
			continue
		}
		for _, tok := range e.tokens {
			if utf8.RuneCountInString(tok) < 2 || !strings.Contains(normText, tok) {
				continue
			}
			conf := 0.5 + 0.3*float64(utf8.RuneCountInString(tok))/float64(utf8.RuneCountInString(e.normalized))
			out = append(out, m.candidate(e, models.MatchTypePartial, conf, sectionID))
			break
		}
	}
	return out
}

func (m *Matcher) candidate(e keywordEntry, mt models.MatchType, confidence float64, sectionID int) Candidate {
	priority := m.weights.Partial
	if mt == models.MatchTypeExact {
		priority = m.weights.Exact
	}
	if e.image.SectionID == sectionID {
		priority += m.weights.SameSection
	}
	priority += float64(utf8.RuneCountInString(e.raw)) * m.weights.KeywordLength
	priority *= confidence

	return Candidate{
		Image:      e.image,
		Keyword:    e.raw,
		Type:       mt,
		Confidence: confidence,
		Priority:   priority,
	}
}

// best returns the highest-priority candidate; ties keep the earliest.
func best(cands []Candidate) (Candidate, bool) {
	if len(cands) == 0 {
		return Candidate{}, false
	}
	top := cands[0]
	for _, c := range cands[1:] {
		if c.Priority > top.Priority {
			top = c
		}
	}
	return top, true
}

// Match builds candidate clips for one section. A match to a new image closes
// the running clip at the subtitle start; unmatched subtitles extend it. The
// last clip runs to the section end.
func (m *Matcher) Match(subtitles []models.Subtitle, images []models.ImageAsset, section models.Section) []models.Clip {
	sorted := SortByFilename(images)

	if len(subtitles) == 0 {
		m.logger.Warn("no subtitles in section, splitting evenly",
			zap.Int("section_id", section.ID),
			zap.Int("images", len(sorted)))
		return timeline.EqualSplit(sorted, section, models.MatchTypeFallbackEqualSplit)
	}
	if len(sorted) == 0 {
		m.logger.Warn("no images in section", zap.Int("section_id", section.ID))
		return nil
	}

	entries := prepare(sorted)
	var clips []models.Clip
	matched := 0

	for _, sub := range subtitles {
		top, ok := best(m.candidates(Normalize(sub.Text), entries, section.ID))
		switch {
		case ok:
			matched++
			if len(clips) > 0 && clips[len(clips)-1].ImagePath == top.Image.Path {
				clips[len(clips)-1].End = sub.End
				continue
			}
			if len(clips) > 0 {
				clips[len(clips)-1].End = sub.Start
			}
			kw := top.Keyword
			clips = append(clips, models.Clip{
				ImagePath:      top.Image.Path,
				Start:          sub.Start,
				End:            sub.End,
				KeywordMatched: &kw,
				Confidence:     top.Confidence,
				MatchType:      top.Type,
			})
			m.logger.Debug("keyword matched",
				zap.String("keyword", kw),
				zap.String("image", top.Image.Filename()),
				zap.Float64("at", sub.Start),
				zap.String("match_type", string(top.Type)))
		case len(clips) > 0:
			clips[len(clips)-1].End = sub.End
		default:
			img := sorted[len(clips)%len(sorted)]
			clips = append(clips, models.Clip{
				ImagePath:  img.Path,
				Start:      sub.Start,
				End:        sub.End,
				Confidence: 0,
				MatchType:  models.MatchTypeFallback,
			})
		}
	}

	clips[len(clips)-1].End = section.End

	m.logger.Info("section matched",
		zap.Int("section_id", section.ID),
		zap.Int("subtitles", len(subtitles)),
		zap.Int("matched", matched),
		zap.Int("clips", len(clips)))
	return clips
}

// SortByFilename returns a copy of images ordered by base file name.
func SortByFilename(images []models.ImageAsset) []models.ImageAsset {
	out := make([]models.ImageAsset, len(images))
	copy(out, images)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Filename() < out[j].Filename()
	})
	return out
}
