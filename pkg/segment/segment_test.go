package segment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentSentences(t *testing.T) {
	text := "I graduated in May 2020. Before that, I had taken a year off for an internship."

	units := Segment(text)
	require.Len(t, units, 2)

	assert.Equal(t, "I graduated in May 2020.", units[0].Text)
	assert.Equal(t, 1, units[0].NarrativeOrder)
	assert.Equal(t, 2, units[1].NarrativeOrder)
	assert.Contains(t, units[1].TemporalMarkers, "before")
}

func TestSegmentNarrativeOrderContiguous(t *testing.T) {
	text := "First we moved to Lisbon. Then the startup folded! Was that the hardest year? Eventually things turned around."

	units := Segment(text)
	require.NotEmpty(t, units)

	for i, unit := range units {
		assert.Equal(t, i+1, unit.NarrativeOrder, "unit %d out of sequence", i)
		assert.NotEmpty(t, unit.Text)
	}
}

func TestSegmentEmptyInput(t *testing.T) {
	assert.Empty(t, Segment(""))
	assert.Empty(t, Segment("   \n\t  "))
}

func TestSegmentNewlineFallback(t *testing.T) {
	text := "moved to lisbon\nstarted surfing\nmet joana at the beach"

	units := Segment(text)
	require.Len(t, units, 3)
	assert.Equal(t, "moved to lisbon", units[0].Text)
	assert.Equal(t, "met joana at the beach", units[2].Text)
}

func TestSegmentConnectorFallback(t *testing.T) {
	text := "I moved to Berlin then I started a new job then I met Ana"

	units := Segment(text)
	require.Len(t, units, 3)
	assert.Equal(t, "I moved to Berlin", units[0].Text)
	assert.True(t, strings.HasPrefix(units[1].Text, "then"), "connector should stay with its unit: %q", units[1].Text)
}

func TestSegmentWholeTextFallback(t *testing.T) {
	// Too short for the sentence splitter, no newlines, no connectors.
	units := Segment("tiny note")
	require.Len(t, units, 1)
	assert.Equal(t, "tiny note", units[0].Text)
	assert.Equal(t, 1, units[0].NarrativeOrder)
}

func TestSegmentUnitIDs(t *testing.T) {
	units := Segment("One thing happened here. Another thing happened there.")
	require.Len(t, units, 2)

	assert.True(t, strings.HasPrefix(units[0].UnitID, "unit-1-"))
	assert.True(t, strings.HasPrefix(units[1].UnitID, "unit-2-"))
	assert.NotEqual(t, units[0].UnitID, units[1].UnitID)
}

func TestExtractMarkersDeduplicates(t *testing.T) {
	units := Segment("Before the wedding we argued, and BEFORE everything else we argued too.")
	require.Len(t, units, 1)

	count := 0
	for _, m := range units[0].TemporalMarkers {
		if m == "before" {
			count++
		}
	}
	assert.Equal(t, 1, count, "markers should be case-insensitively deduplicated: %v", units[0].TemporalMarkers)
}

func TestExtractMarkersFamily(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"relative word", "That happened after the storm passed through town.", "after"},
		{"month with year", "We signed the lease in May 2020 without seeing it.", "may 2020"},
		{"duration phrase", "Two years ago everything was different for us.", "two years ago"},
		{"anchored period", "Last summer we drove down the entire coast.", "last summer"},
		{"bare year", "The diagnosis came in 2019 and changed everything.", "in 2019"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			units := Segment(tt.text)
			require.Len(t, units, 1)
			assert.Contains(t, units[0].TemporalMarkers, tt.want)
		})
	}
}

func TestSegmentNoMarkers(t *testing.T) {
	units := Segment("The coffee shop on the corner finally opened its doors.")
	require.Len(t, units, 1)
	assert.Empty(t, units[0].TemporalMarkers)
}
