package prompts

import (
	"fmt"
	"log/slog"

	"github.com/lorekeeper/chronicle/pkg/types"
)

// InferTimelinePrompt defines the interface for temporal inference prompts.
type InferTimelinePrompt interface {
	Infer() PromptVersion
}

// InferTimelineVersions holds all versions of temporal inference prompts.
type InferTimelineVersions struct {
	InferPrompt PromptVersion
}

func (v *InferTimelineVersions) Infer() PromptVersion { return v.InferPrompt }

// inferTimelinePrompt asks the model for one temporal hypothesis per
// narrative unit. Payload sections render as JSON by default, YAML when the
// context sets use_yaml.
func inferTimelinePrompt(context map[string]interface{}) ([]types.Message, error) {
	sysPrompt := `You are an expert temporal reasoner. Given narrative units from a personal story, you determine when each described event actually happened. Narrators rarely tell events in the order they occurred: treat narrative order as the order of telling only, NEVER as the order of happening.`

	units := context["units"]
	anchors := context["anchors"]
	previousEntries := context["previous_entries"]
	referenceTime := context["reference_time"]

	useYAML := false
	if val, ok := context["use_yaml"]; ok {
		if b, ok := val.(bool); ok {
			useYAML = b
		}
	}

	render := func(data interface{}) (string, error) {
		if useYAML {
			return ToPromptYAML(data)
		}
		return ToPromptJSON(data, 2)
	}
	formatName := "JSON"
	if useYAML {
		formatName = "YAML"
	}

	unitsRendered, err := render(units)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal units: %w", err)
	}
	anchorsRendered, err := render(anchors)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal anchors: %w", err)
	}
	previousRendered, err := render(previousEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal previous entries: %w", err)
	}

	example := InferenceResponse{
		Inferences: []InferredHypothesis{
			{
				UnitID:     "unit-1-example",
				StartDate:  "2020-05-01",
				Confidence: 0.9,
				Reasoning:  "explicit date stated in the text",
				Threads:    []string{"education"},
			},
			{
				UnitID:     "unit-2-example",
				RelativeTo: "unit-1-example",
				Relation:   "before",
				Confidence: 0.6,
				Reasoning:  "told as having happened before the graduation",
				Links:      []InferredLink{{Type: "parallel_to", TargetUnitID: "unit-1-example"}},
			},
		},
	}
	exampleJSON, err := ToPromptJSON(example, 2)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response example: %w", err)
	}

	userPrompt := fmt.Sprintf(`
<NARRATIVE UNITS>
%s
</NARRATIVE UNITS>
<KNOWN ANCHORS>
%s
</KNOWN ANCHORS>
<PREVIOUS ENTRIES>
%s
</PREVIOUS ENTRIES>
<REFERENCE TIME>
%v
</REFERENCE TIME>

Note: NARRATIVE UNITS, KNOWN ANCHORS and PREVIOUS ENTRIES are provided in %s format.

Determine when each narrative unit actually happened.

Guidelines:
1. narrative_order reflects the order of telling only. Never use it to decide which event happened first.
2. When the text supports an absolute date, set start_date (and end_date for ranges) in ISO 8601 format (YYYY-MM-DD).
3. When the text only states relative ordering, set relative_to to the other unit's unit_id and relation to one of: before, after, during.
4. Use temporal_markers as hints; they are extracted phrases, not parsed dates.
5. Use KNOWN ANCHORS and PREVIOUS ENTRIES to ground relative references; never contradict an anchor date.
6. confidence is a number between 0 and 1 reflecting how certain the dating is.
7. Optionally name ongoing narrative threads in threads, and report interruption or overlap between units in relations with type paused_by or parallel_to.
8. Return exactly one inference per unit_id. Do not invent unit ids.

Return a JSON object with an "inferences" array, for example:

%s

Output ONLY the JSON object.
`, unitsRendered, anchorsRendered, previousRendered, referenceTime, formatName, exampleJSON)

	logger, _ := context["logger"].(*slog.Logger)
	logPrompts(logger, sysPrompt, userPrompt)

	return []types.Message{
		types.NewSystemMessage(sysPrompt),
		types.NewUserMessage(userPrompt),
	}, nil
}

// NewInferTimelineVersions creates a new InferTimelineVersions instance.
func NewInferTimelineVersions() *InferTimelineVersions {
	return &InferTimelineVersions{
		InferPrompt: NewPromptVersion(inferTimelinePrompt),
	}
}
