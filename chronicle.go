package chronicle

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lorekeeper/chronicle/pkg/alert"
	"github.com/lorekeeper/chronicle/pkg/checkpoint"
	"github.com/lorekeeper/chronicle/pkg/config"
	"github.com/lorekeeper/chronicle/pkg/epiphany"
	"github.com/lorekeeper/chronicle/pkg/hypothesis"
	"github.com/lorekeeper/chronicle/pkg/materialize"
	"github.com/lorekeeper/chronicle/pkg/nlp"
	"github.com/lorekeeper/chronicle/pkg/resolve"
	"github.com/lorekeeper/chronicle/pkg/store"
	"github.com/lorekeeper/chronicle/pkg/types"
)

// Chronicle is the main interface for turning free-form narrative text
// into dated timeline entries and reading the timeline back.
type Chronicle interface {
	// Run ingests one narrative text for a user: segments it, asks the
	// inference collaborator for temporal hypotheses, resolves them to
	// absolute dates, and persists one timeline entry per unit. It
	// returns only after persistence completes.
	Run(ctx context.Context, userID, text string, options *RunOptions) ([]types.MaterializedSlice, error)

	// Timeline retrieves a user's entries, date-ascending, narrowed by
	// the filter.
	Timeline(ctx context.Context, userID string, filter types.EntryFilter) ([]types.TimelineEntry, error)

	// GetEntry retrieves a single entry by id.
	GetEntry(ctx context.Context, userID, entryID string) (*types.TimelineEntry, error)

	// ArchiveEntry soft-archives an entry; archived entries are
	// excluded from reads unless the filter asks for them.
	ArchiveEntry(ctx context.Context, userID, entryID string) error

	// CorrectEntry archives the original entry and persists the
	// replacement with corrected_from provenance, returning the new id.
	CorrectEntry(ctx context.Context, userID, entryID string, replacement *types.TimelineEntry) (string, error)

	// ClearTimeline removes all entries for a user and resets the
	// user's companion context.
	ClearTimeline(ctx context.Context, userID string) error

	// AddAnchor registers a life anchor used as a dating reference for
	// future runs.
	AddAnchor(ctx context.Context, userID string, anchor *types.LifeAnchor) (string, error)

	// GetAnchors retrieves a user's anchors, date-ascending.
	GetAnchors(ctx context.Context, userID string) ([]types.LifeAnchor, error)

	// DeleteAnchor removes an anchor by id.
	DeleteAnchor(ctx context.Context, userID, anchorID string) error

	// Insights derives companion insights (chronology gaps, cadence,
	// slump cycles, confidence stats, narrative threads) from the
	// user's timeline and recorded resolutions.
	Insights(ctx context.Context, userID string) ([]epiphany.Insight, error)

	// ExportTimeline writes the user's filtered entries to a Parquet
	// file under outputDir and returns the file path.
	ExportTimeline(ctx context.Context, userID, outputDir string, filter types.EntryFilter) (string, error)

	// Close closes the inference client and the entry store.
	Close(ctx context.Context) error
}

// Client is the main implementation of the Chronicle interface.
type Client struct {
	store        store.EntryStore
	inference    nlp.Client
	normalizer   *hypothesis.Normalizer
	resolver     *resolve.Resolver
	materializer *materialize.Materializer
	epiphany     *epiphany.Context
	insights     *epiphany.Engine
	checkpoints  *checkpoint.CheckpointManager
	config       *Config
	logger       *slog.Logger
}

// Config holds configuration for the Chronicle client.
type Config struct {
	// DefaultSource is recorded on entries when RunOptions omit one.
	DefaultSource types.Source

	// PreviousEntryLimit caps how many of the newest persisted entries
	// are shown to the model as dating context.
	PreviousEntryLimit int

	// Checkpoints enables run checkpointing when non-nil. Interrupted
	// runs resume from the last recorded stage.
	Checkpoints *checkpoint.CheckpointManager
}

const defaultPreviousEntryLimit = 20

// NewClient creates a new Chronicle client from prepared collaborators.
func NewClient(entryStore store.EntryStore, inference nlp.Client, cfg *Config, logger *slog.Logger) (*Client, error) {
	if entryStore == nil {
		return nil, errors.New("entry store is required")
	}
	if inference == nil {
		return nil, errors.New("inference client is required")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.DefaultSource == "" {
		cfg.DefaultSource = types.SourceChat
	}
	if cfg.PreviousEntryLimit <= 0 {
		cfg.PreviousEntryLimit = defaultPreviousEntryLimit
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		store:        entryStore,
		inference:    inference,
		normalizer:   hypothesis.NewNormalizer(inference, logger),
		resolver:     resolve.NewResolver(logger),
		materializer: materialize.NewMaterializer(entryStore, logger),
		epiphany:     epiphany.NewContext(),
		insights:     epiphany.NewEngine(logger),
		checkpoints:  cfg.Checkpoints,
		config:       cfg,
		logger:       logger,
	}, nil
}

// New creates a Chronicle client from application configuration: entry
// store per cfg.Store, decorated inference client per cfg.NLP, and an
// optional checkpoint manager per cfg.Checkpoint.
func New(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var alerter alert.Alerter = &alert.NoOpAlerter{}
	if cfg.Alert.Enabled {
		alerter = alert.NewEmailAlerter(cfg.Alert)
	}

	inference, err := nlp.NewClientFromConfig(cfg, alerter, logger)
	if err != nil {
		return nil, err
	}

	entryStore, err := store.New(cfg.Store, logger)
	if err != nil {
		inference.Close()
		return nil, err
	}

	rootCfg := &Config{}
	if cfg.Checkpoint.Enabled {
		manager, err := checkpoint.NewCheckpointManager(cfg.Checkpoint.Dir)
		if err != nil {
			inference.Close()
			entryStore.Close()
			return nil, err
		}
		rootCfg.Checkpoints = manager
	}

	return NewClient(entryStore, inference, rootCfg, logger)
}

// GetStore returns the underlying entry store.
func (c *Client) GetStore() store.EntryStore {
	return c.store
}

// GetInferenceClient returns the inference client.
func (c *Client) GetInferenceClient() nlp.Client {
	return c.inference
}

// Close closes the inference client and the entry store.
func (c *Client) Close(ctx context.Context) error {
	var errs []error
	if err := c.inference.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := c.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

var (
	// ErrEntryNotFound mirrors store.ErrEntryNotFound for callers that
	// only import the root package.
	ErrEntryNotFound = store.ErrEntryNotFound
	// ErrAnchorNotFound mirrors store.ErrAnchorNotFound.
	ErrAnchorNotFound = store.ErrAnchorNotFound
)
