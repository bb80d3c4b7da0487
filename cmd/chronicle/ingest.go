package chronicle

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/lorekeeper/chronicle"
	"github.com/lorekeeper/chronicle/pkg/config"
	"github.com/lorekeeper/chronicle/pkg/types"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Run the timeline pipeline once over a narrative text",
	Long: `Ingest reads a narrative from the given file, or from stdin when no file
is given, runs the full pipeline, and prints the entries it materialized.

Examples:
  chronicle ingest --user alice journal.txt
  cat journal.txt | chronicle ingest --user alice --source journal
  chronicle ingest --user alice --tag travel --show-timeline journal.txt`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

var (
	ingestUser   string
	ingestSource string
	ingestTags   []string
	ingestSagaID string
	showTimeline bool
	exportDir    string
)

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&ingestUser, "user", "", "User the narrative belongs to (required)")
	ingestCmd.Flags().StringVar(&ingestSource, "source", "journal", "Narrative source (chat, journal, import)")
	ingestCmd.Flags().StringSliceVar(&ingestTags, "tag", nil, "Tag to attach to every produced entry (repeatable)")
	ingestCmd.Flags().StringVar(&ingestSagaID, "saga", "", "Parent saga id grouping the produced entries")
	ingestCmd.Flags().BoolVar(&showTimeline, "show-timeline", false, "Print the user's full timeline after the run")
	ingestCmd.Flags().StringVar(&exportDir, "export", "", "Export the user's timeline to a Parquet file under this directory")

	// Store flags
	ingestCmd.Flags().String("store-driver", "", "Entry store driver (memory, badger, postgres, neo4j)")
	ingestCmd.Flags().String("store-uri", "", "Entry store URI/path")

	ingestCmd.MarkFlagRequired("user")
}

func runIngest(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("store-driver") {
		cfg.Store.Driver, _ = cmd.Flags().GetString("store-driver")
	}
	if cmd.Flags().Changed("store-uri") {
		cfg.Store.URI, _ = cmd.Flags().GetString("store-uri")
	}

	switch types.Source(ingestSource) {
	case types.SourceChat, types.SourceJournal, types.SourceImport:
	default:
		return fmt.Errorf("invalid source %q: must be chat, journal, or import", ingestSource)
	}

	text, err := readNarrative(args)
	if err != nil {
		return err
	}

	client, _, err := initializeChronicle(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize Chronicle: %w", err)
	}

	ctx := context.Background()
	defer client.Close(ctx)

	opts := &chronicle.RunOptions{
		Source:       types.Source(ingestSource),
		Tags:         ingestTags,
		ParentSagaID: ingestSagaID,
	}

	slices, err := client.Run(ctx, ingestUser, text, opts)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	if len(slices) == 0 {
		fmt.Println("Nothing to ingest: the narrative was empty.")
		return nil
	}

	fmt.Printf("Materialized %d entries:\n", len(slices))
	for _, slice := range slices {
		confidence := "  - "
		if slice.InferenceConfidence != nil {
			confidence = fmt.Sprintf("%.2f", *slice.InferenceConfidence)
		}
		fmt.Printf("  %s  [%s]  %s\n", slice.Date.Format("2006-01-02"), confidence, slice.Content)
	}

	if showTimeline {
		entries, err := client.Timeline(ctx, ingestUser, types.EntryFilter{})
		if err != nil {
			return fmt.Errorf("failed to read timeline: %w", err)
		}

		fmt.Printf("\nTimeline for %s (%d entries):\n", ingestUser, len(entries))
		for _, entry := range entries {
			fmt.Printf("  %s  %s\n", entry.Date.Format("2006-01-02"), entry.Content)
		}
	}

	if exportDir != "" {
		path, err := client.ExportTimeline(ctx, ingestUser, exportDir, types.EntryFilter{})
		if err != nil {
			return fmt.Errorf("failed to export timeline: %w", err)
		}
		fmt.Printf("\nTimeline exported to %s\n", path)
	}

	return nil
}

// readNarrative reads the text to ingest from the file argument, or
// from stdin when no argument is given.
func readNarrative(args []string) (string, error) {
	if len(args) == 1 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		return string(data), nil
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}
