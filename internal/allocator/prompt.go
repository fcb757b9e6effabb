package allocator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bobarin/imagetiming/internal/models"
)

const SystemPrompt = "You are a video director. Output valid JSON only. Do not include any explanatory text."

// BuildPrompt lists the section's subtitles and candidate images for the assistant.
func BuildPrompt(subtitles []models.Subtitle, images []models.ImageAsset) string {
	var b strings.Builder

	b.WriteString("You are a video director selecting images for a video section.\n\n")
	b.WriteString("[Subtitle List]\n")
	for i, s := range subtitles {
		fmt.Fprintf(&b, "%d. ID: %d, Time: %.2fs, Text: %s\n", i, s.Index, s.Start, s.Text)
	}

	b.WriteString("\n[Image List]\n")
	for i, img := range images {
		source := img.Source
		if source == "" {
			source = "unknown"
		}
		fmt.Fprintf(&b, "%d. File: %s | Keywords: %s | Source: %s\n", i+1, img.Filename(), formatKeywords(img.Keywords), source)
	}

	b.WriteString(`
Task: Select the most appropriate image for each subtitle based on context and keywords.

Output format (JSON object):
{"assignments": [
  {"subtitle_id": <subtitle ID>, "image": "<file name>"},
  ...
]}

Rules:
1. Match images to subtitles based on semantic relevance and keywords
2. You don't need to assign an image to every subtitle
3. Prioritize images that match the content of the subtitle text
4. Output only valid JSON, no explanations`)

	return b.String()
}

func formatKeywords(keywords []string) string {
	quoted := make([]string, len(keywords))
	for i, k := range keywords {
		quoted[i] = "'" + k + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// AllocationResponse is the object form of an assistant reply.
type AllocationResponse struct {
	Assignments []models.Assignment `json:"assignments" jsonschema_description:"Images chosen for a subset of the subtitles"`
}

// ParseAssignments decodes an assistant reply. It accepts a bare JSON array
// or an object holding an "assignments" or "allocations" array, optionally
// wrapped in a markdown code fence.
func ParseAssignments(reply string) ([]models.Assignment, error) {
	body := []byte(stripCodeFence(reply))
	if len(body) == 0 {
		return nil, fmt.Errorf("empty reply")
	}

	switch body[0] {
	case '[':
		var out []models.Assignment
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("failed to parse assignment array: %w", err)
		}
		return out, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(body, &obj); err != nil {
			return nil, fmt.Errorf("failed to parse assignment object: %w", err)
		}
		for _, field := range []string{"assignments", "allocations"} {
			raw, ok := obj[field]
			if !ok {
				continue
			}
			var out []models.Assignment
			if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
				return out, nil
			}
			if err := json.Unmarshal(raw, &out); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", field, err)
			}
			return out, nil
		}
		return nil, fmt.Errorf("reply object has no assignments array")
	default:
		return nil, fmt.Errorf("reply is not JSON: %.40q", string(body))
	}
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
