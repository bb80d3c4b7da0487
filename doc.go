// Package chronicle turns free-form narrative text into dated timeline
// entries.
//
// People rarely tell their stories in order. Chronicle segments a text
// into narrative units, asks a language model for temporal hypotheses
// about each unit, resolves those hypotheses into absolute dates over a
// precedence graph, and persists one timeline entry per unit. Telling
// order is preserved as metadata but never mistaken for story order.
//
// # Basic Usage
//
// Create a client from prepared collaborators:
//
//	// Entry store (memory, badger, postgres, or neo4j)
//	entryStore, err := store.New(config.StoreConfig{Driver: "badger", URI: "/var/lib/chronicle"}, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Inference client
//	inference, err := nlp.NewOpenAIClient(nlp.NewLLMConfig().WithAPIKey("your-api-key"))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	client, err := chronicle.NewClient(entryStore, inference, nil, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close(ctx)
//
// or from application configuration in one step:
//
//	client, err := chronicle.New(cfg, logger)
//
// # Ingesting Narrative
//
// Run executes the full pipeline and returns one slice per narrative
// unit, each with its resolved date:
//
//	slices, err := client.Run(ctx, "user-1",
//		"I graduated in May 2020. Before that I interned at a law firm.",
//		&chronicle.RunOptions{Source: types.SourceJournal})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	for _, s := range slices {
//		fmt.Printf("%s  %s\n", s.Date.Format("2006-01-02"), s.Content)
//	}
//
// The second sentence lands roughly a year before the first even though
// it was told second. Unresolvable units fall back to the user's most
// recent anchor (or the current date) with confidence capped at 0.4;
// inference failures never fail a run.
//
// # Reading the Timeline
//
// Entries come back date-ascending and can be filtered:
//
//	entries, err := client.Timeline(ctx, "user-1", types.EntryFilter{
//		From: &from,
//		Tags: []string{"career"},
//	})
//
// # Anchors
//
// Life anchors are known dated events ("moved to Berlin", 2019-03-01)
// the resolver and the model use as dating references:
//
//	id, err := client.AddAnchor(ctx, "user-1", &types.LifeAnchor{
//		Label: "moved to Berlin",
//		Date:  time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC),
//	})
//
// # Error Handling
//
// The library provides typed errors for common scenarios:
//
//   - ErrEntryNotFound: Returned when a requested entry doesn't exist
//   - ErrAnchorNotFound: Returned when a requested anchor doesn't exist
//   - types.ErrEmptyUserID: Returned when an operation is missing its user
//
// # Architecture
//
// The pipeline stages live in their own packages:
//
//   - pkg/segment: narrative unit segmentation (pure, no inference)
//   - pkg/hypothesis: model collaboration and response validation
//   - pkg/resolve: precedence-graph date resolution
//   - pkg/materialize: sequential persistence with provenance
//   - pkg/store: entry store backends (memory, badger, postgres, neo4j)
//   - pkg/epiphany: companion insights over resolved timelines
//
// This design keeps the single inference call per run inside
// pkg/hypothesis; everything downstream is deterministic.
package chronicle
