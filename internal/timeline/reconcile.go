package timeline

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/bobarin/imagetiming/internal/logging"
	"github.com/bobarin/imagetiming/internal/models"
)

const (
	// Tolerance is the largest boundary mismatch accepted as continuous.
	Tolerance = 0.001

	// epsilon absorbs float noise; spans closer than this are treated as touching.
	epsilon = 1e-9

	DefaultMinDuration = 3.0
	DefaultMaxDuration = 15.0
)

// Limits bounds the on-screen duration of every clip except the last.
type Limits struct {
	Min float64
	Max float64
}

func DefaultLimits() Limits {
	return Limits{Min: DefaultMinDuration, Max: DefaultMaxDuration}
}

func (l Limits) Validate() error {
	if l.Min <= 0 {
		return fmt.Errorf("min clip duration must be positive, got %.3f", l.Min)
	}
	if l.Max < l.Min {
		return fmt.Errorf("max clip duration %.3f is below min %.3f", l.Max, l.Min)
	}
	return nil
}

// Reconciler turns an unordered, possibly overlapping, possibly sparse set of
// candidate clips into a gapless partition of the section window.
type Reconciler struct {
	limits Limits
	logger *zap.Logger
}

func NewReconciler(limits Limits, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		limits: limits,
		logger: logging.OrNop(logger).Named("reconciler"),
	}
}

func (r *Reconciler) Limits() Limits {
	return r.limits
}

// Reconcile runs the pass pipeline over clips against [sectionStart, sectionEnd].
// The input slice is not modified. Empty input yields an empty result.
func (r *Reconciler) Reconcile(clips []models.Clip, sectionStart, sectionEnd float64) []models.Clip {
	if len(clips) == 0 {
		return nil
	}
	if sectionEnd <= sectionStart {
		r.logger.Warn("empty section window, dropping candidate clips",
			zap.Float64("section_start", sectionStart),
			zap.Float64("section_end", sectionEnd),
			zap.Int("candidates", len(clips)))
		return nil
	}

	out := sortByStart(clips)
	out = trimToBounds(out, sectionStart, sectionEnd)
	if len(out) == 0 {
		r.logger.Warn("no candidate clip intersects the section window",
			zap.Float64("section_start", sectionStart),
			zap.Float64("section_end", sectionEnd),
			zap.Int("candidates", len(clips)))
		return nil
	}
	out = enforceMinimum(out, r.limits.Min)
	out = enforceMaximum(out, r.limits.Max)
	out = resolveAdjacency(out)
	out = clampToSection(out, sectionStart, sectionEnd, r.limits.Min)
	out = splitOverlong(out, r.limits)

	out, corrections := verifyContinuity(out, sectionStart, sectionEnd)
	for _, c := range corrections {
		r.logger.Warn("continuity violation corrected after reconciliation",
			zap.Int("clip", c.Index),
			zap.String("kind", c.Kind),
			zap.Float64("delta", c.Delta))
	}

	r.logger.Debug("section reconciled",
		zap.Float64("section_start", sectionStart),
		zap.Float64("section_end", sectionEnd),
		zap.Int("candidates", len(clips)),
		zap.Int("clips", len(out)))

	return out
}

// sortByStart orders clips by start; ties put the longer clip first, then
// order by image path so equal inputs always reconcile the same way.
func sortByStart(clips []models.Clip) []models.Clip {
	out := cloneClips(clips)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		if out[i].End != out[j].End {
			return out[i].End > out[j].End
		}
		return out[i].ImagePath < out[j].ImagePath
	})
	return out
}

// trimToBounds drops clips lying wholly outside the window and clamps the rest.
func trimToBounds(clips []models.Clip, start, end float64) []models.Clip {
	out := make([]models.Clip, 0, len(clips))
	for _, c := range clips {
		if c.Start >= end {
			continue
		}
		if c.Start < start && c.End <= start {
			continue
		}
		if c.Start < start {
			c.Start = start
		}
		if c.End > end {
			c.End = end
		}
		out = append(out, c)
	}
	return out
}

func enforceMinimum(clips []models.Clip, minDur float64) []models.Clip {
	out := cloneClips(clips)
	for i := range out {
		if out[i].Duration() < minDur {
			out[i].End = out[i].Start + minDur
		}
	}
	return out
}

// enforceMaximum shrinks every clip but the last to maxDur.
func enforceMaximum(clips []models.Clip, maxDur float64) []models.Clip {
	out := cloneClips(clips)
	for i := 0; i < len(out)-1; i++ {
		if out[i].Duration() > maxDur+epsilon {
			out[i].End = out[i].Start + maxDur
		}
	}
	return out
}

// resolveAdjacency closes gaps by extending the earlier clip. On overlap the
// earlier clip keeps its position, takes the later end, and the later clip is
// dropped.
func resolveAdjacency(clips []models.Clip) []models.Clip {
	if len(clips) == 0 {
		return nil
	}
	out := make([]models.Clip, 0, len(clips))
	out = append(out, clips[0])
	for _, c := range clips[1:] {
		prev := &out[len(out)-1]
		if gap := c.Start - prev.End; gap >= -epsilon {
			prev.End = c.Start
			out = append(out, c)
			continue
		}
		if c.End > prev.End {
			prev.End = c.End
		}
	}
	return out
}

// clampToSection pins the outer edges to the window. A trailing clip left
// shorter than minDur is folded into its predecessor.
func clampToSection(clips []models.Clip, start, end, minDur float64) []models.Clip {
	if len(clips) == 0 {
		return nil
	}
	out := cloneClips(clips)
	out[0].Start = start
	out[len(out)-1].End = end

	if n := len(out); n > 1 && out[n-1].Duration() < minDur-epsilon {
		out[n-2].End = end
		out = out[:n-1]
	}
	return out
}

// splitOverlong cuts any clip but the last that exceeds max into equal
// consecutive segments of the same image. A clip is left whole when equal
// segments would fall below min.
func splitOverlong(clips []models.Clip, limits Limits) []models.Clip {
	out := make([]models.Clip, 0, len(clips))
	for i, c := range clips {
		d := c.Duration()
		if i == len(clips)-1 || d <= limits.Max+epsilon {
			out = append(out, c)
			continue
		}
		parts := int(math.Ceil(d/limits.Max - epsilon))
		step := d / float64(parts)
		if step < limits.Min-epsilon {
			out = append(out, c)
			continue
		}
		for p := 0; p < parts; p++ {
			seg := c
			seg.Start = c.Start + float64(p)*step
			if p > 0 {
				seg.Start = out[len(out)-1].End
			}
			seg.End = c.Start + float64(p+1)*step
			if p == parts-1 {
				seg.End = c.End
			}
			out = append(out, seg)
		}
	}
	return out
}

// Correction records one fix made by the continuity safety net.
type Correction struct {
	Index int
	Kind  string
	Delta float64
}

// verifyContinuity snaps adjacent boundaries together and pins the outer
// edges. Mismatches above Tolerance are reported; they mean an earlier pass
// let an invariant slip.
func verifyContinuity(clips []models.Clip, start, end float64) ([]models.Clip, []Correction) {
	if len(clips) == 0 {
		return nil, nil
	}
	out := cloneClips(clips)
	var corrections []Correction

	for i := 0; i < len(out)-1; i++ {
		gap := out[i+1].Start - out[i].End
		if gap == 0 {
			continue
		}
		if math.Abs(gap) > Tolerance {
			kind := "gap"
			if gap < 0 {
				kind = "overlap"
			}
			corrections = append(corrections, Correction{Index: i, Kind: kind, Delta: gap})
		}
		out[i].End = out[i+1].Start
	}

	if d := out[0].Start - start; d != 0 {
		if math.Abs(d) > Tolerance {
			corrections = append(corrections, Correction{Index: 0, Kind: "start", Delta: d})
		}
		out[0].Start = start
	}
	last := len(out) - 1
	if d := out[last].End - end; d != 0 {
		if math.Abs(d) > Tolerance {
			corrections = append(corrections, Correction{Index: last, Kind: "end", Delta: d})
		}
		out[last].End = end
	}

	return out, corrections
}

func cloneClips(clips []models.Clip) []models.Clip {
	if clips == nil {
		return nil
	}
	out := make([]models.Clip, len(clips))
	copy(out, clips)
	return out
}
