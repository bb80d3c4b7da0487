package hypothesis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorekeeper/chronicle/pkg/nlp"
	"github.com/lorekeeper/chronicle/pkg/types"
)

// scriptedClient returns a fixed response or error and counts calls.
type scriptedClient struct {
	content string
	err     error
	calls   int
}

func (s *scriptedClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &types.Response{Content: s.content}, nil
}

func (s *scriptedClient) ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error) {
	return s.Chat(ctx, messages)
}

func (s *scriptedClient) GetCapabilities() []nlp.TaskCapability {
	return []nlp.TaskCapability{nlp.TaskTemporalInference}
}

func (s *scriptedClient) Close() error { return nil }

func testUnits() []types.NarrativeUnit {
	return []types.NarrativeUnit{
		{UnitID: "unit-1-aaaa", Text: "I graduated in May 2020.", NarrativeOrder: 1, TemporalMarkers: []string{"may 2020"}},
		{UnitID: "unit-2-bbbb", Text: "Before that, I interned for a year.", NarrativeOrder: 2, TemporalMarkers: []string{"before"}},
	}
}

func TestNormalizeValidResponse(t *testing.T) {
	client := &scriptedClient{content: `{
		"inferences": [
			{"unit_id": "unit-1-aaaa", "start_date": "2020-05-01", "confidence": 0.9, "reasoning": "explicit date", "threads": ["education"]},
			{"unit_id": "unit-2-bbbb", "relative_to": "unit-1-aaaa", "relation": "before", "confidence": 0.6,
			 "relations": [{"type": "parallel_to", "target_unit_id": "unit-1-aaaa"}]}
		]
	}`}

	n := NewNormalizer(client, nil)
	hyps := n.Normalize(context.Background(), testUnits(), types.InferenceContext{})

	require.Len(t, hyps, 2)
	assert.Equal(t, 1, client.calls, "exactly one inference call")

	first := hyps[0]
	assert.Equal(t, "unit-1-aaaa", first.UnitID)
	require.NotNil(t, first.StartDate)
	assert.Equal(t, time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC), *first.StartDate)
	assert.InDelta(t, 0.9, first.Confidence, 1e-9)
	assert.Equal(t, []string{"education"}, first.Threads)

	second := hyps[1]
	assert.Equal(t, "unit-1-aaaa", second.RelativeTo)
	assert.Equal(t, types.RelationBefore, second.Relation)
	require.Len(t, second.Links, 1)
	assert.Equal(t, types.LinkParallelTo, second.Links[0].Type)
}

func TestNormalizeCoversEveryUnit(t *testing.T) {
	// Model only answered for the first unit
	client := &scriptedClient{content: `{"inferences": [
		{"unit_id": "unit-1-aaaa", "start_date": "2020-05-01", "confidence": 0.9}
	]}`}

	n := NewNormalizer(client, nil)
	units := testUnits()
	hyps := n.Normalize(context.Background(), units, types.InferenceContext{})

	require.Len(t, hyps, len(units))
	for i, u := range units {
		assert.Equal(t, u.UnitID, hyps[i].UnitID, "output order follows input order")
	}

	stub := hyps[1]
	assert.InDelta(t, 0.2, stub.Confidence, 1e-9)
	assert.Equal(t, "missing from model output", stub.Reasoning)
}

func TestNormalizeDropsUnknownAndDuplicateRows(t *testing.T) {
	client := &scriptedClient{content: `{"inferences": [
		{"unit_id": "unit-99-zzzz", "start_date": "1999-01-01", "confidence": 0.9},
		{"unit_id": "unit-1-aaaa", "reasoning": "first", "confidence": 0.8},
		{"unit_id": "unit-1-aaaa", "reasoning": "second", "confidence": 0.1}
	]}`}

	n := NewNormalizer(client, nil)
	hyps := n.Normalize(context.Background(), testUnits(), types.InferenceContext{})

	require.Len(t, hyps, 2)
	assert.Equal(t, "first", hyps[0].Reasoning, "duplicate keeps the first occurrence")
	assert.InDelta(t, 0.8, hyps[0].Confidence, 1e-9)
}

func TestNormalizeConfidenceValidation(t *testing.T) {
	client := &scriptedClient{content: `{"inferences": [
		{"unit_id": "unit-1-aaaa", "confidence": 1.7},
		{"unit_id": "unit-2-bbbb"}
	]}`}

	n := NewNormalizer(client, nil)
	hyps := n.Normalize(context.Background(), testUnits(), types.InferenceContext{})

	require.Len(t, hyps, 2)
	assert.InDelta(t, 0.3, hyps[0].Confidence, 1e-9, "out-of-range confidence takes the default")
	assert.InDelta(t, 0.3, hyps[1].Confidence, 1e-9, "absent confidence takes the default")
}

func TestNormalizeRejectsInvalidRelation(t *testing.T) {
	client := &scriptedClient{content: `{"inferences": [
		{"unit_id": "unit-1-aaaa", "relative_to": "unit-2-bbbb", "relation": "around", "confidence": 0.5}
	]}`}

	n := NewNormalizer(client, nil)
	hyps := n.Normalize(context.Background(), testUnits(), types.InferenceContext{})

	assert.Empty(t, hyps[0].RelativeTo)
	assert.Empty(t, string(hyps[0].Relation))
}

func TestNormalizeRejectsInvalidLinks(t *testing.T) {
	client := &scriptedClient{content: `{"inferences": [
		{"unit_id": "unit-1-aaaa", "confidence": 0.5, "relations": [
			{"type": "blocked_by", "target_unit_id": "unit-2-bbbb"},
			{"type": "paused_by", "target_unit_id": "unit-404-gone"},
			{"type": "paused_by", "target_unit_id": "unit-2-bbbb"}
		]}
	]}`}

	n := NewNormalizer(client, nil)
	hyps := n.Normalize(context.Background(), testUnits(), types.InferenceContext{})

	require.Len(t, hyps[0].Links, 1)
	assert.Equal(t, types.LinkPausedBy, hyps[0].Links[0].Type)
	assert.Equal(t, "unit-2-bbbb", hyps[0].Links[0].TargetUnitID)
}

func TestNormalizeAcceptsLegacyEnvelopes(t *testing.T) {
	cases := map[string]string{
		"segments envelope": `{"segments": [{"unit_id": "unit-1-aaaa", "confidence": 0.7}]}`,
		"bare array":        `[{"unit_id": "unit-1-aaaa", "confidence": 0.7}]`,
		"fenced json":       "```json\n{\"inferences\": [{\"unit_id\": \"unit-1-aaaa\", \"confidence\": 0.7}]}\n```",
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			n := NewNormalizer(&scriptedClient{content: content}, nil)
			hyps := n.Normalize(context.Background(), testUnits(), types.InferenceContext{})

			require.Len(t, hyps, 2)
			assert.InDelta(t, 0.7, hyps[0].Confidence, 1e-9)
		})
	}
}

func TestNormalizeClientFailure(t *testing.T) {
	client := &scriptedClient{err: errors.New("connection refused")}

	n := NewNormalizer(client, nil)
	units := testUnits()
	hyps := n.Normalize(context.Background(), units, types.InferenceContext{})

	require.Len(t, hyps, len(units), "failure never drops units")
	for _, h := range hyps {
		assert.LessOrEqual(t, h.Confidence, 0.2)
		assert.Contains(t, h.Reasoning, "inference call failed")
	}
}

func TestNormalizeEmptyResponse(t *testing.T) {
	n := NewNormalizer(&scriptedClient{content: "   "}, nil)
	hyps := n.Normalize(context.Background(), testUnits(), types.InferenceContext{})

	require.Len(t, hyps, 2)
	for _, h := range hyps {
		assert.InDelta(t, 0.2, h.Confidence, 1e-9)
		assert.Contains(t, h.Reasoning, "empty response")
	}
}

func TestNormalizeEmptyUnits(t *testing.T) {
	client := &scriptedClient{content: `{"inferences": []}`}
	n := NewNormalizer(client, nil)

	hyps := n.Normalize(context.Background(), nil, types.InferenceContext{})

	assert.Empty(t, hyps)
	assert.Zero(t, client.calls, "no collaborator call for empty input")
}

func TestParseFlexibleDate(t *testing.T) {
	tests := []struct {
		input string
		want  *time.Time
	}{
		{"2020-05-01", timePtr(time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC))},
		{"2020-05", timePtr(time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC))},
		{"2020", timePtr(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))},
		{"2020-05-01T10:30:00Z", timePtr(time.Date(2020, 5, 1, 10, 30, 0, 0, time.UTC))},
		{"soon", nil},
		{"", nil},
	}

	for _, tt := range tests {
		got := parseFlexibleDate(tt.input)
		if tt.want == nil {
			assert.Nil(t, got, "input %q", tt.input)
			continue
		}
		require.NotNil(t, got, "input %q", tt.input)
		assert.True(t, got.Equal(*tt.want), "input %q: got %v want %v", tt.input, got, tt.want)
	}
}

func timePtr(t time.Time) *time.Time { return &t }
