package nlp

import "slices"

// TaskCapability represents a specific inference task that a model can perform.
type TaskCapability string

const (
	// TaskTextGeneration represents open-ended text generation (chat/completion).
	TaskTextGeneration TaskCapability = "text_generation"
	// TaskTemporalInference represents dating and ordering of narrative events.
	TaskTemporalInference TaskCapability = "temporal_inference"
	// TaskSummarization represents text summarization.
	TaskSummarization TaskCapability = "summarization"
)

// ProviderID represents a unique identifier for an AI provider.
type ProviderID string

const (
	// ProviderOpenAI is the ID for OpenAI.
	ProviderOpenAI ProviderID = "openai"
	// ProviderGoogle is the ID for Google (Gemini).
	ProviderGoogle ProviderID = "google"
	// ProviderAzure is the ID for Azure OpenAI.
	ProviderAzure ProviderID = "azure"
	// ProviderOpenAICompatible is the ID for generic OpenAI-compatible providers.
	ProviderOpenAICompatible ProviderID = "openai_compatible"
)

// Provider represents an AI model provider.
type Provider struct {
	ID          ProviderID
	Name        string
	Description string
	IsLocal     bool
}

// Model represents a specific AI model.
type Model struct {
	ID           string
	Name         string
	ProviderID   ProviderID
	Capabilities []TaskCapability
	Description  string
	// Family is an optional grouping identifier (e.g., "gpt-4o", "gemini")
	Family string
}

// BuiltInProviders contains the standard set of supported providers.
var BuiltInProviders = map[ProviderID]Provider{
	ProviderOpenAI: {
		ID:          ProviderOpenAI,
		Name:        "OpenAI",
		Description: "Cloud-based advanced LLMs (GPT-4o, etc.)",
		IsLocal:     false,
	},
	ProviderGoogle: {
		ID:          ProviderGoogle,
		Name:        "Google",
		Description: "Cloud-based advanced LLMs (Gemini)",
		IsLocal:     false,
	},
	ProviderAzure: {
		ID:          ProviderAzure,
		Name:        "Azure OpenAI",
		Description: "Enterprise-grade OpenAI models hosting",
		IsLocal:     false,
	},
	ProviderOpenAICompatible: {
		ID:          ProviderOpenAICompatible,
		Name:        "OpenAI Compatible",
		Description: "Generic provider compatible with OpenAI API (e.g. vLLM, Ollama)",
		IsLocal:     false, // Can be local or remote, but treating as generic API
	},
}

// BuiltInModels contains a curated list of built-in models.
var BuiltInModels = []Model{
	// --- OpenAI ---
	{
		ID:           "gpt-4o",
		Name:         "GPT-4o",
		ProviderID:   ProviderOpenAI,
		Capabilities: []TaskCapability{TaskTextGeneration, TaskTemporalInference, TaskSummarization},
		Description:  "Flagship multimodal model, strongest temporal reasoning",
		Family:       "gpt-4o",
	},
	{
		ID:           "gpt-4o-mini",
		Name:         "GPT-4o mini",
		ProviderID:   ProviderOpenAI,
		Capabilities: []TaskCapability{TaskTextGeneration, TaskTemporalInference, TaskSummarization},
		Description:  "Cost-efficient default for timeline inference",
		Family:       "gpt-4o",
	},
	{
		ID:           "o1-mini",
		Name:         "o1-mini",
		ProviderID:   ProviderOpenAI,
		Capabilities: []TaskCapability{TaskTextGeneration, TaskTemporalInference},
		Description:  "Reasoning model for difficult chronology puzzles",
		Family:       "o1",
	},

	// --- Google ---
	{
		ID:           "gemini-2.0-flash",
		Name:         "Gemini 2.0 Flash",
		ProviderID:   ProviderGoogle,
		Capabilities: []TaskCapability{TaskTextGeneration, TaskTemporalInference, TaskSummarization},
		Description:  "Fast Gemini model with JSON output support",
		Family:       "gemini",
	},
	{
		ID:           "gemini-1.5-pro",
		Name:         "Gemini 1.5 Pro",
		ProviderID:   ProviderGoogle,
		Capabilities: []TaskCapability{TaskTextGeneration, TaskTemporalInference, TaskSummarization},
		Description:  "Long-context Gemini model for large journal batches",
		Family:       "gemini",
	},
}

// GetProvider returns the provider with the given ID.
func GetProvider(id ProviderID) (Provider, bool) {
	p, ok := BuiltInProviders[id]
	return p, ok
}

// GetModel returns the model with the given ID.
func GetModel(id string) (Model, bool) {
	for _, m := range BuiltInModels {
		if m.ID == id {
			return m, true
		}
	}
	return Model{}, false
}

// GetModelsByProvider returns all models for a specific provider.
func GetModelsByProvider(providerID ProviderID) []Model {
	var models []Model
	for _, m := range BuiltInModels {
		if m.ProviderID == providerID {
			models = append(models, m)
		}
	}
	return models
}

// GetModelsByCapability returns all models capable of a specific task.
func GetModelsByCapability(capability TaskCapability) []Model {
	var models []Model
	for _, m := range BuiltInModels {
		if slices.Contains(m.Capabilities, capability) {
			models = append(models, m)
		}
	}
	return models
}
