// Package nlp provides the inference clients the pipeline talks to, plus the
// decorators layered around them: retry with exponential backoff, circuit
// breaking, request routing, and token-usage tracking.
package nlp

import (
	"context"

	"github.com/lorekeeper/chronicle/pkg/types"
)

// Client defines the interface for language model operations.
type Client interface {
	// Chat sends a chat completion request and returns the response.
	Chat(ctx context.Context, messages []types.Message) (*types.Response, error)

	// ChatWithStructuredOutput sends a chat completion request that asks the
	// provider for JSON output. The schema is advisory; callers must still
	// validate the response content.
	ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error)

	// GetCapabilities returns the list of capabilities supported by this client.
	GetCapabilities() []TaskCapability

	// Close cleans up any resources.
	Close() error
}
