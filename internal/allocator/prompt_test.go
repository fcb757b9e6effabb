package allocator

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bobarin/imagetiming/internal/models"
)

func TestParseAssignments(t *testing.T) {
	want := []models.Assignment{{SubtitleID: 5, Image: "A.png"}, {SubtitleID: 8, Image: "B.png"}}

	tests := []struct {
		name  string
		reply string
	}{
		{"bare array", `[{"subtitle_id": 5, "image": "A.png"}, {"subtitle_id": 8, "image": "B.png"}]`},
		{"assignments object", `{"assignments": [{"subtitle_id": 5, "image": "A.png"}, {"subtitle_id": 8, "image": "B.png"}]}`},
		{"allocations object", `{"allocations": [{"subtitle_id": 5, "image": "A.png"}, {"subtitle_id": 8, "image": "B.png"}]}`},
		{"fenced", "```json\n[{\"subtitle_id\": 5, \"image\": \"A.png\"},\n {\"subtitle_id\": 8, \"image\": \"B.png\"}]\n```"},
		{"fenced no language", "  ```\n{\"assignments\": [{\"subtitle_id\": 5, \"image\": \"A.png\"}, {\"subtitle_id\": 8, \"image\": \"B.png\"}]}\n```  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAssignments(tt.reply)
			if err != nil {
				t.Fatalf("ParseAssignments failed: %v", err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseAssignmentsEmptyAllocation(t *testing.T) {
	got, err := ParseAssignments(`{"assignments": []}`)
	if err != nil {
		t.Fatalf("ParseAssignments failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no assignments, got %+v", got)
	}
}

func TestParseAssignmentsRejects(t *testing.T) {
	for _, reply := range []string{"", "   ", "sure! here you go", `{"images": []}`, `[{"subtitle_id": "five"}]`, "```\n```"} {
		if _, err := ParseAssignments(reply); err == nil {
			t.Errorf("expected error for %q", reply)
		}
	}
}
