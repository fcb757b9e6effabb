package timeline

import (
	"sort"

	"go.uber.org/zap"

	"github.com/bobarin/imagetiming/internal/logging"
	"github.com/bobarin/imagetiming/internal/models"
)

// BoundaryResolver maps section ids to absolute time windows.
type BoundaryResolver struct {
	primary   map[int]models.Section
	order     []int
	script    *models.ScriptData
	subtitles []models.Subtitle
	logger    *zap.Logger
}

// NewBoundaryResolver accumulates section windows from the audio timing
// records, in record order. Records without a section id or without timing
// are skipped.
func NewBoundaryResolver(durations []models.SectionDuration, script *models.ScriptData, subtitles []models.Subtitle, logger *zap.Logger) *BoundaryResolver {
	r := &BoundaryResolver{
		primary:   make(map[int]models.Section),
		script:    script,
		subtitles: subtitles,
		logger:    logging.OrNop(logger).Named("boundaries"),
	}

	var cursor float64
	for _, d := range durations {
		if d.SectionID == 0 {
			continue
		}
		dur, ok := d.Duration()
		if !ok {
			continue
		}
		if _, seen := r.primary[d.SectionID]; !seen {
			r.order = append(r.order, d.SectionID)
		}
		r.primary[d.SectionID] = models.Section{ID: d.SectionID, Start: cursor, End: cursor + dur}
		cursor += dur
	}
	return r
}

// Boundaries returns the windows derived from audio timing, in record order.
func (r *BoundaryResolver) Boundaries() []models.Section {
	out := make([]models.Section, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.primary[id])
	}
	return out
}

// Resolve returns the window for sectionID. When audio timing has no record
// for it, the window spans the subtitles attributed to the section.
func (r *BoundaryResolver) Resolve(sectionID int) (models.Section, bool) {
	if s, ok := r.primary[sectionID]; ok {
		return s, true
	}

	found := false
	var sec models.Section
	for _, sub := range r.subtitles {
		if r.SectionOf(sub.Start) != sectionID {
			continue
		}
		if !found {
			sec = models.Section{ID: sectionID, Start: sub.Start, End: sub.End}
			found = true
			continue
		}
		if sub.Start < sec.Start {
			sec.Start = sub.Start
		}
		if sub.End > sec.End {
			sec.End = sub.End
		}
	}

	if !found {
		r.logger.Warn("no boundary data for section", zap.Int("section_id", sectionID))
		return models.Section{}, false
	}
	r.logger.Debug("section boundary derived from subtitles",
		zap.Int("section_id", sectionID),
		zap.Float64("start", sec.Start),
		zap.Float64("end", sec.End))
	return sec, true
}

// SectionOf attributes an instant to a section: audio timing windows first,
// then the script's estimated durations, then the first script section.
func (r *BoundaryResolver) SectionOf(t float64) int {
	for _, id := range r.order {
		s := r.primary[id]
		if s.Start <= t && t < s.End {
			return id
		}
	}

	if r.script != nil && len(r.script.Sections) > 0 {
		var cursor float64
		for _, s := range r.script.Sections {
			if cursor <= t && t < cursor+s.EstimatedDuration {
				return s.SectionID
			}
			cursor += s.EstimatedDuration
		}
		return r.script.Sections[0].SectionID
	}
	return 1
}

// SectionIDs returns every section id known to the resolver, sorted.
func (r *BoundaryResolver) SectionIDs() []int {
	seen := make(map[int]struct{})
	for _, id := range r.order {
		seen[id] = struct{}{}
	}
	if r.script != nil {
		for _, s := range r.script.Sections {
			if s.SectionID != 0 {
				seen[s.SectionID] = struct{}{}
			}
		}
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// SectionSubtitles selects the subtitles whose start lies in the window.
func SectionSubtitles(section models.Section, all []models.Subtitle) []models.Subtitle {
	var out []models.Subtitle
	for _, s := range all {
		if s.Start >= section.Start && s.Start < section.End {
			out = append(out, s)
		}
	}
	return out
}
