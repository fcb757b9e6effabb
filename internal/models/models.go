package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Enums
type MatchType string

const (
	MatchTypeExact              MatchType = "exact"
	MatchTypePartial            MatchType = "partial"
	MatchTypeLLM                MatchType = "llm"
	MatchTypeGapFill            MatchType = "gap_fill"
	MatchTypeFallback           MatchType = "fallback"
	MatchTypeFallbackEqualSplit MatchType = "fallback_equal_split"
)

type Strategy string

const (
	StrategyKeyword  Strategy = "keyword"
	StrategySemantic Strategy = "semantic"
)

// ParseStrategy maps user input onto a Strategy, defaulting to keyword.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyKeyword:
		return StrategyKeyword, nil
	case StrategySemantic, "llm":
		return StrategySemantic, nil
	default:
		return "", fmt.Errorf("unknown strategy %q (allowed: keyword, semantic)", s)
	}
}

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// Timeline primitives

// Section is a contiguous narrated segment with an absolute time window.
type Section struct {
	ID    int     `json:"section_id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (s Section) Duration() float64 {
	return s.End - s.Start
}

// Subtitle is one timed subtitle line. Text joins both display lines.
type Subtitle struct {
	Index int     `json:"index"`
	Start float64 `json:"start_time"`
	End   float64 `json:"end_time"`
	Text  string  `json:"text"`
}

// UnmarshalJSON accepts the subtitle stage's two-line record layout as well as
// the flattened form produced by MarshalJSON.
func (s *Subtitle) UnmarshalJSON(data []byte) error {
	var raw struct {
		Index     int     `json:"index"`
		StartTime float64 `json:"start_time"`
		EndTime   float64 `json:"end_time"`
		Text      string  `json:"text"`
		TextLine1 string  `json:"text_line1"`
		TextLine2 string  `json:"text_line2"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	text := raw.Text
	if text == "" {
		text = strings.TrimSpace(raw.TextLine1 + " " + raw.TextLine2)
	}
	*s = Subtitle{Index: raw.Index, Start: raw.StartTime, End: raw.EndTime, Text: text}
	return nil
}

var sectionPattern = regexp.MustCompile(`section_(\d+)`)

// SectionFromFilename extracts N from a "section_<N>" file name. Images
// without the marker belong to section 1.
func SectionFromFilename(path string) int {
	m := sectionPattern.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return 1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 1
	}
	return n
}

// ImageAsset is a catalog entry for one candidate image.
type ImageAsset struct {
	Path      string   `json:"file_path"`
	Keywords  []string `json:"keywords"`
	SectionID int      `json:"section_id"`
	Source    string   `json:"source,omitempty"`
}

func (a *ImageAsset) UnmarshalJSON(data []byte) error {
	type plain ImageAsset
	var raw plain
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = ImageAsset(raw)
	// The filename convention is authoritative for section membership.
	a.SectionID = SectionFromFilename(a.Path)
	return nil
}

// Filename is the base name the external assistant refers to images by.
func (a ImageAsset) Filename() string {
	return filepath.Base(a.Path)
}

// Clip assigns one image to a span of the section timeline.
type Clip struct {
	ImagePath      string    `json:"image_path"`
	Start          float64   `json:"start_time"`
	End            float64   `json:"end_time"`
	KeywordMatched *string   `json:"keyword_matched"`
	Confidence     float64   `json:"confidence"`
	MatchType      MatchType `json:"match_type"`
}

func (c Clip) Duration() float64 {
	return c.End - c.Start
}

// Assignment is one element of a sparse allocation returned by the assistant.
type Assignment struct {
	SubtitleID int    `json:"subtitle_id" jsonschema_description:"ID of the subtitle the image is shown for"`
	Image      string `json:"image" jsonschema_description:"File name of the chosen image"`
}

// ClipList is a clip sequence stored in a PostgreSQL JSONB column
type ClipList []Clip

func (l ClipList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

func (l *ClipList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported clip list type %T", value)
	}
	return json.Unmarshal(data, l)
}

// Job records

type TimelineJob struct {
	ID           uuid.UUID  `json:"id"`
	Strategy     Strategy   `json:"strategy"`
	Status       JobStatus  `json:"status"`
	SectionCount int        `json:"section_count"`
	ResultPath   *string    `json:"result_path,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// SectionTimeline is the reconciled result for one section.
type SectionTimeline struct {
	JobID     uuid.UUID `json:"-"`
	SectionID int       `json:"section_id"`
	Start     float64   `json:"start"`
	End       float64   `json:"end"`
	Strategy  Strategy  `json:"strategy"`
	Fallback  bool      `json:"fallback"`
	Clips     ClipList  `json:"clips"`
}

// TimelineDocument is the persisted allocation result for one video.
type TimelineDocument struct {
	JobID       *uuid.UUID        `json:"job_id,omitempty"`
	Strategy    Strategy          `json:"strategy"`
	GeneratedAt time.Time         `json:"generated_at"`
	Sections    []SectionTimeline `json:"sections"`
}

// Input records (produced by upstream stages)

// SectionDuration is one audio timing record; the last char end time is the
// section's narrated duration.
type SectionDuration struct {
	SectionID    int       `json:"section_id"`
	CharEndTimes []float64 `json:"char_end_times"`
}

// Duration returns the section duration, or false when no timing exists.
func (d SectionDuration) Duration() (float64, bool) {
	if len(d.CharEndTimes) == 0 {
		return 0, false
	}
	return d.CharEndTimes[len(d.CharEndTimes)-1], true
}

type ScriptSection struct {
	SectionID         int     `json:"section_id"`
	EstimatedDuration float64 `json:"estimated_duration"`
}

type ScriptData struct {
	Sections []ScriptSection `json:"sections"`
}

type ImageCatalog struct {
	Images []ImageAsset `json:"images"`
}

// DTOs for API requests and responses

type CreateTimelineRequest struct {
	Strategy    string            `json:"strategy,omitempty"` // Default: "keyword"
	AudioTiming []SectionDuration `json:"audio_timing,omitempty"`
	Script      *ScriptData       `json:"script,omitempty"`
	Subtitles   []Subtitle        `json:"subtitles"`
	Images      []ImageAsset      `json:"images"`
}

type CreateTimelineResponse struct {
	JobID  uuid.UUID `json:"job_id"`
	Status JobStatus `json:"status"`
}

type TimelineResponse struct {
	TimelineJob
	Sections  []SectionTimeline `json:"sections,omitempty"`
	ResultURL *string           `json:"result_url,omitempty"`
}

type PreviewResponse struct {
	Sections []SectionTimeline `json:"sections"`
}
