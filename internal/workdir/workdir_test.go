package workdir

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bobarin/imagetiming/internal/models"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadFullWorkdir(t *testing.T) {
	root := t.TempDir()
	l := Layout{Root: root}

	writeFile(t, l.AudioTimingPath(), `{"sections": [{"section_id": 1, "char_end_times": [0.5, 10.0]}, {"section_id": 2, "char_end_times": [8.0]}]}`)
	writeFile(t, l.ScriptPath(), `{"title": "本能寺の変", "sections": [{"section_id": 1, "estimated_duration": 11.0}, {"section_id": 2, "estimated_duration": 9.0}]}`)
	writeFile(t, l.SubtitlesPath(), `{"subject": "x", "subtitles": [{"index": 0, "start_time": 0, "end_time": 3.2, "duration": 3.2, "text_line1": "本能寺の変", "text_line2": "天正十年"}]}`)
	writeFile(t, l.ImagesPath(), `{"images": [{"file_path": "03_images/section_2_a.png", "keywords": ["信長"]}]}`)

	in, err := Load(root, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	wantDurations := []models.SectionDuration{
		{SectionID: 1, CharEndTimes: []float64{0.5, 10.0}},
		{SectionID: 2, CharEndTimes: []float64{8.0}},
	}
	if diff := cmp.Diff(wantDurations, in.Durations); diff != "" {
		t.Errorf("durations (-want +got):\n%s", diff)
	}
	if in.Script == nil || len(in.Script.Sections) != 2 || in.Script.Sections[1].EstimatedDuration != 9 {
		t.Errorf("unexpected script %+v", in.Script)
	}
	if len(in.Subtitles) != 1 || in.Subtitles[0].Text != "本能寺の変 天正十年" {
		t.Errorf("unexpected subtitles %+v", in.Subtitles)
	}
	if len(in.Images) != 1 || in.Images[0].SectionID != 2 {
		t.Errorf("unexpected images %+v", in.Images)
	}
}

func TestLoadMissingOptionalInputs(t *testing.T) {
	in, err := Load(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if in.Durations != nil || in.Script != nil || len(in.Subtitles) != 0 || len(in.Images) != 0 {
		t.Errorf("expected empty inputs, got %+v", in)
	}
}

func TestLoadRejectsMissingRoot(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope"), nil); err == nil {
		t.Error("expected error for missing working directory")
	}
}

func TestLoadRejectsMalformedCatalog(t *testing.T) {
	root := t.TempDir()
	writeFile(t, Layout{Root: root}.ImagesPath(), `{"images": "oops"}`)
	if _, err := Load(root, nil); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadAudioTimingForms(t *testing.T) {
	dir := t.TempDir()
	want := []models.SectionDuration{{SectionID: 3, CharEndTimes: []float64{1, 2.5}}}

	for name, content := range map[string]string{
		"list.json":   `[{"section_id": 3, "char_end_times": [1, 2.5]}]`,
		"object.json": `{"sections": [{"section_id": 3, "char_end_times": [1, 2.5]}]}`,
		"single.json": `{"section_id": 3, "char_end_times": [1, 2.5]}`,
	} {
		path := filepath.Join(dir, name)
		writeFile(t, path, content)
		got, err := LoadAudioTiming(path)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s (-want +got):\n%s", name, diff)
		}
	}

	if _, err := LoadAudioTiming(filepath.Join(dir, "missing.json")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadSubtitlesBareList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subs.json")
	writeFile(t, path, `[{"index": 4, "start_time": 1, "end_time": 2, "text_line1": "a", "text_line2": "b"}]`)

	got, err := LoadSubtitles(path)
	if err != nil {
		t.Fatalf("LoadSubtitles failed: %v", err)
	}
	if len(got) != 1 || got[0].Index != 4 || got[0].Text != "a b" {
		t.Errorf("unexpected subtitles %+v", got)
	}
}

func TestWriteTimeline(t *testing.T) {
	path := Layout{Root: t.TempDir()}.TimelinePath()
	doc := &models.TimelineDocument{
		Strategy:    models.StrategyKeyword,
		GeneratedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Sections: []models.SectionTimeline{{
			SectionID: 1, Start: 0, End: 10, Strategy: models.StrategyKeyword,
			Clips: models.ClipList{{ImagePath: "a.png", Start: 0, End: 10, MatchType: models.MatchTypeFallback}},
		}},
	}

	if err := WriteTimeline(path, doc); err != nil {
		t.Fatalf("WriteTimeline failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got models.TimelineDocument
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if diff := cmp.Diff(*doc, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}
