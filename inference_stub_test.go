package chronicle_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"

	"github.com/lorekeeper/chronicle"
	"github.com/lorekeeper/chronicle/pkg/nlp"
	"github.com/lorekeeper/chronicle/pkg/store"
	"github.com/lorekeeper/chronicle/pkg/types"
)

// unitIDRe matches the ids the segmenter assigns. The hex fragment keeps
// it from catching the example ids embedded in the prompt text.
var unitIDRe = regexp.MustCompile(`unit-\d+-[0-9a-f]{8}`)

// scriptedInference is an nlp.Client whose answers are computed from the
// unit ids found in the prompt, in narrative order.
type scriptedInference struct {
	mu      sync.Mutex
	calls   int
	prompts []string

	// respond builds the raw model output for a batch. Leaving it nil
	// makes every call fail, exercising the degraded path.
	respond func(unitIDs []string) (string, error)
}

func (s *scriptedInference) ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error) {
	var prompt string
	for _, m := range messages {
		prompt += m.Content + "\n"
	}

	s.mu.Lock()
	s.calls++
	s.prompts = append(s.prompts, prompt)
	respond := s.respond
	s.mu.Unlock()

	if respond == nil {
		return nil, fmt.Errorf("inference backend offline")
	}

	content, err := respond(extractUnitIDs(prompt))
	if err != nil {
		return nil, err
	}
	return &types.Response{Content: content}, nil
}

func (s *scriptedInference) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	return s.ChatWithStructuredOutput(ctx, messages, nil)
}

func (s *scriptedInference) GetCapabilities() []nlp.TaskCapability {
	return []nlp.TaskCapability{nlp.TaskTemporalInference}
}

func (s *scriptedInference) Close() error { return nil }

func (s *scriptedInference) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *scriptedInference) lastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.prompts) == 0 {
		return ""
	}
	return s.prompts[len(s.prompts)-1]
}

// extractUnitIDs pulls the batch's unit ids out of the rendered prompt in
// first-occurrence order, which matches narrative order.
func extractUnitIDs(prompt string) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, id := range unitIDRe.FindAllString(prompt, -1) {
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// inferenceJSON wraps rows in the envelope the normalizer expects.
func inferenceJSON(t *testing.T, rows []map[string]interface{}) string {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{"inferences": rows})
	if err != nil {
		t.Fatalf("failed to marshal scripted response: %v", err)
	}
	return string(payload)
}

// failingStore wraps a real store and fails the next N SaveEntry calls.
type failingStore struct {
	store.EntryStore

	mu       sync.Mutex
	failures int
}

func (f *failingStore) SaveEntry(ctx context.Context, entry *types.TimelineEntry) (string, error) {
	f.mu.Lock()
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()

	if fail {
		return "", fmt.Errorf("disk full")
	}
	return f.EntryStore.SaveEntry(ctx, entry)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient assembles a client over a fresh in-memory store.
func newTestClient(t *testing.T, inference nlp.Client, cfg *chronicle.Config) *chronicle.Client {
	t.Helper()
	client, err := chronicle.NewClient(store.NewMemoryStore(), inference, cfg, testLogger())
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client
}
