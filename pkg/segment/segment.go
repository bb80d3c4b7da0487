// Package segment splits raw narrative text into ordered narrative units and
// extracts explicit temporal-marker phrases. It performs structure detection
// only: no time inference happens here and there is no error path, since
// degenerate input always yields a best-effort split.
package segment

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/lorekeeper/chronicle/pkg/types"
)

const (
	// minSentenceLen drops punctuation fragments (stray initials, "etc.")
	// produced by the sentence splitter.
	minSentenceLen = 10

	// minLineLen applies to the newline and connector fallback splits,
	// which already operate on author-chosen boundaries.
	minLineLen = 3
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)

	// sentenceRe captures runs ending in sentence punctuation plus a
	// trailing unterminated run.
	sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]+|[^.!?]+$`)

	// connectorRe finds narrative connectors adjacent to a clause boundary.
	// The connector stays attached to the unit it introduces so marker
	// extraction still sees it.
	connectorRe = regexp.MustCompile(`(?i)(?:^|[,;.]\s*|\s)\b(then|after that|before that|afterwards?|later on|later|eventually|meanwhile|subsequently)\b[,]?\s+`)

	// markerRe is the fixed family of relative-time phrases surfaced as
	// temporal markers. Matches are lowercased and deduplicated; they are
	// hints for the inference stage, not parsed dates.
	markerRe = regexp.MustCompile(`(?i)\b(` +
		`before|after|during|while|when|then|until|since|` +
		`earlier|later|previously|recently|eventually|meanwhile|afterwards?|` +
		`yesterday|today|tomorrow|nowadays|back then|at the time|` +
		`last (?:year|month|week|night|summer|winter|spring|fall|autumn)|` +
		`next (?:year|month|week)|` +
		`th(?:at|is) (?:year|month|week|day|morning|summer|winter|spring|fall|autumn)|` +
		`(?:a|an|one|two|three|four|five|six|seven|eight|nine|ten|\d+) (?:years?|months?|weeks?|days?|decades?) (?:ago|later|earlier|before|after(?:wards?)?)|` +
		`(?:january|february|march|april|may|june|july|august|september|october|november|december)(?: \d{1,2}(?:st|nd|rd|th)?)?(?:,? (?:19|20)\d{2})?|` +
		`in (?:19|20)\d{2}|(?:19|20)\d{2}` +
		`)\b`)
)

// Segment splits text into narrative units in telling order.
//
// Strategy, in order: sentence-boundary split, then a newline split when the
// sentence split produced at most one unit and the text is multi-line, then a
// narrative-connector split. When every strategy comes up empty the whole
// trimmed text becomes a single unit, so the empty result is reserved for
// empty or whitespace-only input.
//
// NarrativeOrder is the 1-based position in the chosen split and reflects
// telling order only. TemporalMarkers carries the lowercased, deduplicated
// marker phrases found in each unit's text.
func Segment(text string) []types.NarrativeUnit {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	normalized := whitespaceRe.ReplaceAllString(trimmed, " ")

	parts := splitSentences(normalized)
	if len(parts) <= 1 && strings.Contains(text, "\n") {
		if lines := splitLines(text); len(lines) > 1 {
			parts = lines
		}
	}
	if len(parts) <= 1 && connectorRe.MatchString(normalized) {
		if clauses := splitConnectors(normalized); len(clauses) > 1 {
			parts = clauses
		}
	}
	if len(parts) == 0 {
		parts = []string{normalized}
	}

	units := make([]types.NarrativeUnit, 0, len(parts))
	for i, part := range parts {
		units = append(units, types.NarrativeUnit{
			UnitID:          newUnitID(i + 1),
			Text:            part,
			NarrativeOrder:  i + 1,
			TemporalMarkers: extractMarkers(part),
		})
	}
	return units
}

// splitSentences splits on sentence-ending punctuation, dropping fragments
// below the minimum sentence length.
func splitSentences(text string) []string {
	var parts []string
	for _, candidate := range sentenceRe.FindAllString(text, -1) {
		candidate = strings.TrimSpace(candidate)
		if len(candidate) >= minSentenceLen {
			parts = append(parts, candidate)
		}
	}
	return parts
}

// splitLines splits on newlines, keeping lines above the minimum length.
func splitLines(text string) []string {
	var parts []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) > minLineLen {
			parts = append(parts, line)
		}
	}
	return parts
}

// splitConnectors splits before each narrative connector so the connector
// word remains part of the unit it introduces.
func splitConnectors(text string) []string {
	matches := connectorRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	var parts []string
	prev := 0
	for _, m := range matches {
		start := m[2] // start of the connector word itself
		if start <= prev {
			continue
		}
		if piece := trimClause(text[prev:start]); len(piece) > minLineLen {
			parts = append(parts, piece)
		}
		prev = start
	}
	if piece := trimClause(text[prev:]); len(piece) > minLineLen {
		parts = append(parts, piece)
	}
	return parts
}

func trimClause(s string) string {
	return strings.Trim(strings.TrimSpace(s), ",; ")
}

// extractMarkers returns the lowercased, deduplicated temporal-marker phrases
// present in text, in order of first appearance.
func extractMarkers(text string) []string {
	raw := markerRe.FindAllString(text, -1)
	if len(raw) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(raw))
	markers := make([]string, 0, len(raw))
	for _, m := range raw {
		key := strings.ToLower(strings.TrimSpace(m))
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		markers = append(markers, key)
	}
	return markers
}

// newUnitID builds a per-run unit identifier. The positional prefix keeps
// logs readable; the uuid fragment keeps ids unique across runs.
func newUnitID(position int) string {
	return fmt.Sprintf("unit-%d-%s", position, uuid.NewString()[:8])
}
