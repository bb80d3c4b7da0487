package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/lorekeeper/chronicle/pkg/types"
)

// EntryExportRecord is the flat row shape for timeline exports. Tags
// are joined with commas and metadata serialized to JSON so the file
// opens cleanly in any parquet reader.
type EntryExportRecord struct {
	ID                 string    `parquet:"id"`
	UserID             string    `parquet:"user_id"`
	Content            string    `parquet:"content"`
	Date               time.Time `parquet:"date"`
	Tags               string    `parquet:"tags"`
	Source             string    `parquet:"source"`
	NarrativeOrder     int       `parquet:"narrative_order"`
	DerivedFromEntryID string    `parquet:"derived_from_entry_id"`
	Archived           bool      `parquet:"archived"`
	CreatedAt          time.Time `parquet:"created_at"`
	Metadata           string    `parquet:"metadata"`
}

// ExportEntries writes a user's timeline to a parquet file and returns
// the path written. The filter controls which entries are included;
// pass a zero filter for the full active timeline.
func ExportEntries(ctx context.Context, s EntryStore, userID, outputDir string, filter types.EntryFilter) (string, error) {
	entries, err := s.GetEntries(ctx, userID, filter)
	if err != nil {
		return "", fmt.Errorf("failed to load entries for export: %w", err)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	records := make([]EntryExportRecord, 0, len(entries))
	for _, entry := range entries {
		record := EntryExportRecord{
			ID:                 entry.ID,
			UserID:             entry.UserID,
			Content:            entry.Content,
			Date:               entry.Date,
			Tags:               strings.Join(entry.Tags, ","),
			Source:             string(entry.Source),
			NarrativeOrder:     entry.NarrativeOrder,
			DerivedFromEntryID: entry.DerivedFromEntryID,
			Archived:           entry.Archived,
			CreatedAt:          entry.CreatedAt,
		}
		if len(entry.Metadata) > 0 {
			if metadataJSON, err := json.Marshal(entry.Metadata); err == nil {
				record.Metadata = string(metadataJSON)
			}
		}
		records = append(records, record)
	}

	filename := fmt.Sprintf("timeline_%s_%s.parquet", userID, time.Now().Format("20060102_150405"))
	path := filepath.Join(outputDir, filename)

	if err := parquet.WriteFile(path, records); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	return path, nil
}
