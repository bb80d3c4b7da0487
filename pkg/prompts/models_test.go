package prompts

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/lorekeeper/chronicle/pkg/types"
)

func TestInferTimelinePromptIncludesUnits(t *testing.T) {
	units := []PromptUnit{
		{UnitID: "unit-1-abc", Text: "I graduated in May 2020.", NarrativeOrder: 1, TemporalMarkers: []string{"may 2020"}},
		{UnitID: "unit-2-def", Text: "Before that, I interned.", NarrativeOrder: 2, TemporalMarkers: []string{"before"}},
	}

	messages, err := NewInferTimelineVersions().Infer().Call(map[string]interface{}{
		"units":            units,
		"anchors":          []PromptAnchor{},
		"previous_entries": []PromptEntry{},
		"reference_time":   "2024-01-01T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected system+user messages, got %d", len(messages))
	}
	if messages[0].Role != types.RoleSystem {
		t.Errorf("first message role = %v, want system", messages[0].Role)
	}

	user := messages[1].Content
	for _, want := range []string{"unit-1-abc", "unit-2-def", "inferences", "before, after, during"} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q", want)
		}
	}

	// The defining instruction of this prompt: telling order is not story order.
	if !strings.Contains(messages[0].Content, "NEVER as the order of happening") {
		t.Errorf("system prompt missing narrative-order instruction: %q", messages[0].Content)
	}
}

func TestInferTimelinePromptYAMLFormat(t *testing.T) {
	messages, err := NewInferTimelineVersions().Infer().Call(map[string]interface{}{
		"units":            []PromptUnit{{UnitID: "unit-1-x", Text: "something happened", NarrativeOrder: 1}},
		"anchors":          []PromptAnchor{{ID: "a1", Label: "graduation", Date: "2020-05-01"}},
		"previous_entries": []PromptEntry{},
		"reference_time":   "2024-01-01T00:00:00Z",
		"use_yaml":         true,
	})
	if err != nil {
		t.Fatalf("Call() error: %v", err)
	}

	user := messages[1].Content
	if !strings.Contains(user, "provided in YAML format") {
		t.Errorf("user prompt should note YAML format")
	}
	if !strings.Contains(user, "unit_id: unit-1-x") {
		t.Errorf("units not rendered as YAML:\n%s", user)
	}
}

func TestToPromptJSON(t *testing.T) {
	out, err := ToPromptJSON([]PromptAnchor{{ID: "a1", Label: "wedding", Date: "2018-09-15"}}, 2)
	if err != nil {
		t.Fatalf("ToPromptJSON error: %v", err)
	}
	if !strings.Contains(out, `"label": "wedding"`) {
		t.Errorf("unexpected JSON output: %s", out)
	}
}

func TestToPromptYAML(t *testing.T) {
	out, err := ToPromptYAML(map[string]string{"label": "wedding"})
	if err != nil {
		t.Fatalf("ToPromptYAML error: %v", err)
	}
	if !strings.Contains(out, "label: wedding") {
		t.Errorf("unexpected YAML output: %s", out)
	}
}

func TestInferenceResponseRoundTrip(t *testing.T) {
	raw := `{"inferences":[{"unit_id":"u1","start_date":"2020-05-01","confidence":0.9,"reasoning":"stated"}]}`

	var resp InferenceResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if len(resp.Inferences) != 1 || resp.Inferences[0].UnitID != "u1" {
		t.Fatalf("unexpected decode: %+v", resp)
	}
}
