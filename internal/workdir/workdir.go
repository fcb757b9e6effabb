package workdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/bobarin/imagetiming/internal/logging"
	"github.com/bobarin/imagetiming/internal/models"
)

// ErrNotFound is returned when a required input file does not exist.
var ErrNotFound = errors.New("input file not found")

// Layout resolves the stage directories of a video working directory.
type Layout struct {
	Root string
}

func (l Layout) ScriptPath() string {
	return filepath.Join(l.Root, "01_script", "script.json")
}

func (l Layout) AudioTimingPath() string {
	return filepath.Join(l.Root, "02_audio", "audio_timing.json")
}

func (l Layout) ImagesPath() string {
	return filepath.Join(l.Root, "03_images", "classified.json")
}

func (l Layout) SubtitlesPath() string {
	return filepath.Join(l.Root, "06_subtitles", "subtitle_timing.json")
}

func (l Layout) CachePath() string {
	return filepath.Join(l.Root, "07_composition", "llm_allocation_cache.json")
}

func (l Layout) TimelinePath() string {
	return filepath.Join(l.Root, "07_composition", "image_timeline.json")
}

// Inputs gathers everything the allocation pipeline reads for one video.
type Inputs struct {
	Durations []models.SectionDuration
	Script    *models.ScriptData
	Subtitles []models.Subtitle
	Images    []models.ImageAsset
}

// Load reads all inputs under root. Audio timing and script are optional;
// missing subtitles or images yield empty lists. Malformed files are errors.
func Load(root string, logger *zap.Logger) (*Inputs, error) {
	logger = logging.OrNop(logger).Named("workdir")
	l := Layout{Root: root}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to open working directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("working directory %s is not a directory", root)
	}

	in := &Inputs{}

	in.Durations, err = LoadAudioTiming(l.AudioTimingPath())
	switch {
	case errors.Is(err, ErrNotFound):
		logger.Warn("audio timing not found, boundaries will come from subtitles", zap.String("path", l.AudioTimingPath()))
	case err != nil:
		return nil, err
	}

	in.Script, err = LoadScript(l.ScriptPath())
	switch {
	case errors.Is(err, ErrNotFound):
		logger.Warn("script not found", zap.String("path", l.ScriptPath()))
	case err != nil:
		return nil, err
	}

	in.Subtitles, err = LoadSubtitles(l.SubtitlesPath())
	switch {
	case errors.Is(err, ErrNotFound):
		logger.Warn("subtitle timing not found, using empty list", zap.String("path", l.SubtitlesPath()))
	case err != nil:
		return nil, err
	}

	in.Images, err = LoadImages(l.ImagesPath())
	switch {
	case errors.Is(err, ErrNotFound):
		logger.Warn("image catalog not found, using empty list", zap.String("path", l.ImagesPath()))
	case err != nil:
		return nil, err
	}

	logger.Info("working directory loaded",
		zap.String("root", root),
		zap.Int("audio_sections", len(in.Durations)),
		zap.Int("subtitles", len(in.Subtitles)),
		zap.Int("images", len(in.Images)))
	return in, nil
}

// LoadAudioTiming accepts a bare list of records, an object with a
// "sections" list, or a single record object.
func LoadAudioTiming(path string) ([]models.SectionDuration, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}

	var list []models.SectionDuration
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("failed to parse audio timing %s: %w", path, err)
	}
	if raw, ok := obj["sections"]; ok {
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("failed to parse audio timing sections %s: %w", path, err)
		}
		return list, nil
	}

	var single models.SectionDuration
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("failed to parse audio timing %s: %w", path, err)
	}
	return []models.SectionDuration{single}, nil
}

func LoadScript(path string) (*models.ScriptData, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	var script models.ScriptData
	if err := json.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("failed to parse script %s: %w", path, err)
	}
	return &script, nil
}

// LoadSubtitles accepts {"subtitles": [...]} or a bare list.
func LoadSubtitles(path string) ([]models.Subtitle, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}

	var doc struct {
		Subtitles []models.Subtitle `json:"subtitles"`
	}
	if err := json.Unmarshal(data, &doc); err == nil {
		return doc.Subtitles, nil
	}

	var list []models.Subtitle
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse subtitle timing %s: %w", path, err)
	}
	return list, nil
}

// LoadImages reads the classified image catalog. Relative file paths are
// kept as written.
func LoadImages(path string) ([]models.ImageAsset, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	var catalog models.ImageCatalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse image catalog %s: %w", path, err)
	}
	return catalog.Images, nil
}

// WriteTimeline writes doc as indented JSON, replacing path atomically.
func WriteTimeline(path string, doc *models.TimelineDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal timeline: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write timeline: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace timeline: %w", err)
	}
	return nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
