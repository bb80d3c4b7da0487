package nlp

import (
	"fmt"
	"log/slog"

	"github.com/lorekeeper/chronicle/pkg/alert"
	"github.com/lorekeeper/chronicle/pkg/config"
)

// NewBaseClient creates an undecorated client for a single configured model.
func NewBaseClient(cfg config.NLPModelConfig) (Client, error) {
	llmConfig := NewLLMConfig().
		WithAPIKey(cfg.APIKey).
		WithModel(cfg.Model).
		WithBaseURL(cfg.BaseURL)
	if cfg.Temperature > 0 {
		llmConfig = llmConfig.WithTemperature(cfg.Temperature)
	}
	if cfg.MaxTokens > 0 {
		llmConfig = llmConfig.WithMaxTokens(cfg.MaxTokens)
	}

	switch ProviderID(cfg.Provider) {
	case ProviderOpenAI, ProviderOpenAICompatible, "":
		return NewOpenAIClient(llmConfig)
	case ProviderGoogle:
		return NewGeminiClient(llmConfig)
	case ProviderAzure:
		return NewAzureOpenAIClient(llmConfig)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// NewClientFromConfig builds the fully decorated inference client described by
// cfg. Each configured model becomes a base client wrapped with retry and,
// when enabled, a circuit breaker; multiple models are joined by a router; a
// token tracker records usage across whatever route a request takes.
func NewClientFromConfig(cfg *config.Config, alerter alert.Alerter, logger *slog.Logger) (Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.NLP.Models) == 0 {
		return nil, fmt.Errorf("no models configured")
	}

	providers := make(map[string]Client, len(cfg.NLP.Models))
	for name, modelCfg := range cfg.NLP.Models {
		base, err := NewBaseClient(modelCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create client %q: %w", name, err)
		}

		var client Client = NewRetryClient(base, DefaultRetryConfig(), logger)
		if cfg.CircuitBreaker.Enabled {
			client = NewCircuitBreakerClient(client, cfg.CircuitBreaker, alerter, logger)
		}
		providers[name] = client
	}

	var client Client
	if len(providers) == 1 && len(cfg.NLP.RouterRules) == 0 {
		for _, c := range providers {
			client = c
		}
	} else {
		router, err := NewRouterClient(providers, cfg.NLP.RouterRules, logger)
		if err != nil {
			return nil, err
		}
		client = router
	}

	if cfg.Telemetry.ParquetPath != "" {
		tracker, err := NewTokenTracker(cfg.Telemetry.ParquetPath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create token tracker: %w", err)
		}
		client = NewTokenTrackingClient(client, tracker)
	}

	return client, nil
}
