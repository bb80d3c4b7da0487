package prompts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lorekeeper/chronicle/pkg/types"
)

// PromptVersion represents a versioned prompt function.
type PromptVersion interface {
	Call(context map[string]interface{}) ([]types.Message, error)
}

// PromptUnit is the view of a narrative unit rendered into prompts.
type PromptUnit struct {
	UnitID          string   `json:"unit_id" yaml:"unit_id"`
	Text            string   `json:"text" yaml:"text"`
	NarrativeOrder  int      `json:"narrative_order" yaml:"narrative_order"`
	TemporalMarkers []string `json:"temporal_markers,omitempty" yaml:"temporal_markers,omitempty"`
}

// PromptAnchor is the view of a life anchor rendered into prompts.
type PromptAnchor struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label" yaml:"label"`
	Date  string `json:"date" yaml:"date"`
	Type  string `json:"type,omitempty" yaml:"type,omitempty"`
}

// PromptEntry is the view of a previously persisted entry rendered into
// prompts for disambiguation.
type PromptEntry struct {
	ID      string `json:"id" yaml:"id"`
	Date    string `json:"date" yaml:"date"`
	Content string `json:"content" yaml:"content"`
	Summary string `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// InferredLink is a raw narrative link between units as reported by the
// model, prior to validation.
type InferredLink struct {
	Type         string `json:"type" yaml:"type"`
	TargetUnitID string `json:"target_unit_id" yaml:"target_unit_id"`
}

// InferredHypothesis is one raw per-unit temporal hypothesis as reported by
// the model. It documents the response contract; the normalizer re-validates
// every field from the untyped payload rather than trusting this shape.
type InferredHypothesis struct {
	UnitID     string         `json:"unit_id" yaml:"unit_id"`
	StartDate  string         `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	EndDate    string         `json:"end_date,omitempty" yaml:"end_date,omitempty"`
	RelativeTo string         `json:"relative_to,omitempty" yaml:"relative_to,omitempty"`
	Relation   string         `json:"relation,omitempty" yaml:"relation,omitempty"`
	Confidence float64        `json:"confidence" yaml:"confidence"`
	Reasoning  string         `json:"reasoning" yaml:"reasoning"`
	Threads    []string       `json:"threads,omitempty" yaml:"threads,omitempty"`
	Links      []InferredLink `json:"relations,omitempty" yaml:"relations,omitempty"`
}

// InferenceResponse is the canonical response envelope expected from the
// inference model.
type InferenceResponse struct {
	Inferences []InferredHypothesis `json:"inferences" yaml:"inferences"`
}

// promptVersionImpl implements PromptVersion.
type promptVersionImpl struct {
	fn types.PromptFunction
}

// Call executes the prompt function with the given context.
func (p *promptVersionImpl) Call(context map[string]interface{}) ([]types.Message, error) {
	messages, err := p.fn(context)
	if err != nil {
		return nil, err
	}

	// Add unicode preservation instruction to system messages
	for i, msg := range messages {
		if msg.Role == types.RoleSystem {
			messages[i].Content += "\nDo not escape unicode characters.\n"
		}
	}

	return messages, nil
}

// NewPromptVersion creates a new PromptVersion from a function.
func NewPromptVersion(fn types.PromptFunction) PromptVersion {
	return &promptVersionImpl{fn: fn}
}

// ToPromptJSON serializes data to JSON for use in prompts.
func ToPromptJSON(data interface{}, indent int) (string, error) {
	var b []byte
	var err error

	if indent > 0 {
		b, err = json.MarshalIndent(data, "", fmt.Sprintf("%*s", indent, ""))
	} else {
		b, err = json.Marshal(data)
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToPromptYAML serializes data to YAML for use in prompts.
func ToPromptYAML(data interface{}) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// logPrompts prints generated prompts with newlines preserved when
// DEBUG_LLM_PROMPTS is enabled.
func logPrompts(logger *slog.Logger, sysPrompt, userPrompt string) {
	if os.Getenv("DEBUG_LLM_PROMPTS") != "true" {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger.Debug("Generated prompts - System Prompt follows")
	fmt.Println("=== SYSTEM PROMPT ===")
	fmt.Println(sysPrompt)
	logger.Debug("Generated prompts - User Prompt follows")
	fmt.Println("=== USER PROMPT ===")
	fmt.Println(userPrompt)
	fmt.Println("=== END PROMPTS ===")
}

// LogResponses prints a raw model response with newlines preserved when
// DEBUG_LLM_PROMPTS is enabled.
func LogResponses(logger *slog.Logger, response types.Response) {
	if os.Getenv("DEBUG_LLM_PROMPTS") != "true" {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger.Debug("LLM response follows")
	fmt.Println("=== LLM response ===")
	fmt.Println(response.Content)
	fmt.Println("=== END LLM response ===")
}
