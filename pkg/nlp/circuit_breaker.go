package nlp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/lorekeeper/chronicle/pkg/alert"
	"github.com/lorekeeper/chronicle/pkg/config"
	"github.com/lorekeeper/chronicle/pkg/types"
)

// CircuitBreakerClient wraps a Client with a circuit breaker so that a
// persistently failing inference service stops receiving traffic for a cooldown
// period instead of stalling every request behind retries.
type CircuitBreakerClient struct {
	client  Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewCircuitBreakerClient creates a circuit-breaking wrapper around client.
// When the breaker opens, alerter is notified so an operator can investigate.
func NewCircuitBreakerClient(client Client, cfg config.CircuitBreakerConfig, alerter alert.Alerter, logger *slog.Logger) *CircuitBreakerClient {
	if logger == nil {
		logger = slog.Default()
	}
	if alerter == nil {
		alerter = &alert.NoOpAlerter{}
	}

	settings := gobreaker.Settings{
		Name:        "nlp-client",
		MaxRequests: cfg.MaxRequests,
		Interval:    time.Duration(cfg.Interval) * time.Second,
		Timeout:     time.Duration(cfg.Timeout) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 3 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.ReadyToTripRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
			if to == gobreaker.StateOpen {
				subject := fmt.Sprintf("Circuit breaker %s opened", name)
				message := fmt.Sprintf("The circuit breaker %q transitioned from %s to open. "+
					"Inference requests will be rejected until the breaker half-opens.", name, from.String())
				if err := alerter.Alert(subject, message); err != nil {
					logger.Error("failed to send circuit breaker alert", "error", err)
				}
			}
		},
	}

	return &CircuitBreakerClient{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

// Chat sends a chat request through the circuit breaker.
func (c *CircuitBreakerClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	return c.execute(func() (*types.Response, error) {
		return c.client.Chat(ctx, messages)
	})
}

// ChatWithStructuredOutput sends a structured output request through the
// circuit breaker.
func (c *CircuitBreakerClient) ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error) {
	return c.execute(func() (*types.Response, error) {
		return c.client.ChatWithStructuredOutput(ctx, messages, schema)
	})
}

// GetCapabilities returns the capabilities of the underlying client.
func (c *CircuitBreakerClient) GetCapabilities() []TaskCapability {
	return c.client.GetCapabilities()
}

// Close closes the underlying client.
func (c *CircuitBreakerClient) Close() error {
	return c.client.Close()
}

func (c *CircuitBreakerClient) execute(fn func() (*types.Response, error)) (*types.Response, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("inference service unavailable: %w", err)
		}
		return nil, err
	}

	resp, ok := result.(*types.Response)
	if !ok {
		return nil, fmt.Errorf("unexpected response type %T from circuit breaker", result)
	}
	return resp, nil
}
