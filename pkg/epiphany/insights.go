// Package epiphany derives companion insights from resolved timelines:
// chronology gaps, activity cadence and slumps, confidence summaries,
// and narrative thread clusters. It reads finished pipeline output and
// never feeds back into resolution.
package epiphany

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/lorekeeper/chronicle/pkg/types"
)

// InsightType labels what a given insight describes.
type InsightType string

const (
	// InsightChronologyGap flags a long stretch with no entries.
	InsightChronologyGap InsightType = "chronology_gap"
	// InsightConfidenceSummary summarizes resolution confidence.
	InsightConfidenceSummary InsightType = "confidence_summary"
	// InsightCadence reports the user's strongest day-of-week rhythm.
	InsightCadence InsightType = "cadence"
	// InsightSlumpCycle flags weeks with almost no recorded activity.
	InsightSlumpCycle InsightType = "slump_cycle"
	// InsightNarrativeThread groups units that belong to one storyline.
	InsightNarrativeThread InsightType = "narrative_thread"
)

// Insight is a single observation over a user's timeline.
type Insight struct {
	Type        InsightType `json:"type"`
	Description string      `json:"description"`
	Confidence  float64     `json:"confidence"`
	Evidence    []string    `json:"evidence,omitempty"`
}

// ConfidenceStats summarizes the resolver's certainty across units.
type ConfidenceStats struct {
	Count         int     `json:"count"`
	Mean          float64 `json:"mean"`
	StdDev        float64 `json:"std_dev"`
	FallbackShare float64 `json:"fallback_share"`
}

const defaultMinGap = 90 * 24 * time.Hour

// Engine generates insights. MinGap controls how long a quiet stretch
// must be before it counts as a chronology gap; the default is ninety
// days.
type Engine struct {
	MinGap time.Duration

	logger *slog.Logger
}

// NewEngine creates an insight engine with default thresholds.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		MinGap: defaultMinGap,
		logger: logger,
	}
}

// Insights runs every detector over the user's entries and accumulated
// resolved units. Empty input yields no insights, never an error.
func (e *Engine) Insights(entries []types.TimelineEntry, units []types.ResolvedUnit) []Insight {
	var insights []Insight

	insights = append(insights, e.detectGaps(entries)...)
	if cadence, ok := e.detectCadence(entries); ok {
		insights = append(insights, cadence)
	}
	if slump, ok := e.detectSlumps(entries); ok {
		insights = append(insights, slump)
	}
	if summary, ok := e.summarizeConfidence(units); ok {
		insights = append(insights, summary)
	}
	insights = append(insights, threadInsights(units)...)

	e.logger.Debug("generated insights",
		"entries", len(entries),
		"units", len(units),
		"insights", len(insights))
	return insights
}

// detectGaps finds stretches longer than MinGap between consecutive
// entries.
func (e *Engine) detectGaps(entries []types.TimelineEntry) []Insight {
	if len(entries) < 2 {
		return nil
	}

	sorted := append([]types.TimelineEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	minGap := e.MinGap
	if minGap <= 0 {
		minGap = defaultMinGap
	}

	var insights []Insight
	for i := 1; i < len(sorted); i++ {
		gap := sorted[i].Date.Sub(sorted[i-1].Date)
		if gap < minGap {
			continue
		}
		days := int(gap.Hours() / 24)
		insights = append(insights, Insight{
			Type: InsightChronologyGap,
			Description: fmt.Sprintf("no entries between %s and %s (%d days)",
				sorted[i-1].Date.Format("2006-01-02"),
				sorted[i].Date.Format("2006-01-02"),
				days),
			Confidence: math.Min(0.9, 0.5+float64(days)/730),
			Evidence: []string{
				fmt.Sprintf("last entry before gap: %s", sorted[i-1].Content),
				fmt.Sprintf("first entry after gap: %s", sorted[i].Content),
			},
		})
	}
	return insights
}

// detectCadence finds the strongest day-of-week rhythm: the share of
// entries landing on the most common weekday.
func (e *Engine) detectCadence(entries []types.TimelineEntry) (Insight, bool) {
	if len(entries) == 0 {
		return Insight{}, false
	}

	dayCounts := make(map[time.Weekday]int)
	for _, entry := range entries {
		dayCounts[entry.Date.Weekday()]++
	}

	var peakDay time.Weekday
	peakCount := 0
	for day, count := range dayCounts {
		if count > peakCount || (count == peakCount && day < peakDay) {
			peakDay = day
			peakCount = count
		}
	}

	strength := math.Min(1.0, float64(peakCount)/float64(len(entries)))
	return Insight{
		Type:        InsightCadence,
		Description: fmt.Sprintf("activity peaks on %ss", peakDay),
		Confidence:  strength,
		Evidence: []string{
			fmt.Sprintf("%d of %d entries fall on a %s", peakCount, len(entries), peakDay),
		},
	}, true
}

// detectSlumps buckets entries into ISO weeks and flags weeks with at
// most one entry. Two or more low weeks raise the risk level.
func (e *Engine) detectSlumps(entries []types.TimelineEntry) (Insight, bool) {
	if len(entries) == 0 {
		return Insight{}, false
	}

	weekCounts := make(map[string]int)
	for _, entry := range entries {
		year, week := entry.Date.ISOWeek()
		weekCounts[fmt.Sprintf("%d-W%02d", year, week)]++
	}

	var lowWeeks []string
	for week, count := range weekCounts {
		if count <= 1 {
			lowWeeks = append(lowWeeks, week)
		}
	}
	if len(lowWeeks) == 0 {
		return Insight{}, false
	}
	sort.Strings(lowWeeks)

	riskLevel := 2
	if len(lowWeeks) >= 2 {
		riskLevel = 3
	}

	return Insight{
		Type:        InsightSlumpCycle,
		Description: fmt.Sprintf("%d week(s) with almost no recorded activity", len(lowWeeks)),
		Confidence:  0.35 + 0.1*float64(riskLevel),
		Evidence:    []string{fmt.Sprintf("low-activity weeks: %v", lowWeeks)},
	}, true
}

// summarizeConfidence reports the distribution of resolution
// confidence and how often the fallback date was used.
func (e *Engine) summarizeConfidence(units []types.ResolvedUnit) (Insight, bool) {
	stats := SummarizeConfidence(units)
	if stats.Count == 0 {
		return Insight{}, false
	}

	return Insight{
		Type: InsightConfidenceSummary,
		Description: fmt.Sprintf("timeline confidence averages %.2f (±%.2f) across %d units",
			stats.Mean, stats.StdDev, stats.Count),
		Confidence: stats.Mean,
		Evidence: []string{
			fmt.Sprintf("%.0f%% of units used the fallback date", stats.FallbackShare*100),
		},
	}, true
}

// SummarizeConfidence computes mean and standard deviation of resolved
// confidences plus the share of fallback-dated units.
func SummarizeConfidence(units []types.ResolvedUnit) ConfidenceStats {
	if len(units) == 0 {
		return ConfidenceStats{}
	}

	confidences := make([]float64, len(units))
	fallbacks := 0
	for i, unit := range units {
		confidences[i] = unit.Confidence
		if unit.Fallback {
			fallbacks++
		}
	}

	stats := ConfidenceStats{
		Count:         len(units),
		Mean:          stat.Mean(confidences, nil),
		FallbackShare: float64(fallbacks) / float64(len(units)),
	}
	if len(units) > 1 {
		stats.StdDev = stat.StdDev(confidences, nil)
	}
	return stats
}
