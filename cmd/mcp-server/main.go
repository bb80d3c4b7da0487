package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/firebase/genkit/go/genkit"
	"github.com/lorekeeper/chronicle"
	"github.com/lorekeeper/chronicle/pkg/config"
	chronicleLogger "github.com/lorekeeper/chronicle/pkg/logger"
	"github.com/lorekeeper/chronicle/pkg/nlp"
	"github.com/lorekeeper/chronicle/pkg/store"
	"github.com/lorekeeper/chronicle/pkg/types"
)

// Default configuration values
const (
	DefaultModel       = "gpt-4o-mini"
	DefaultProvider    = "openai"
	DefaultTemperature = 0.3
)

// Config holds all configuration for the MCP server
type Config struct {
	// Inference Configuration
	Provider       string
	ModelName      string
	LLMTemperature float64
	APIKey         string
	BaseURL        string

	// Store Configuration
	StoreDriver   string
	StoreURI      string
	StoreUser     string
	StorePassword string
	StoreDatabase string

	// MCP Server Configuration
	DefaultUser   string
	DefaultSource string
	ClearOnStart  bool
	Transport     string
	Host          string
	Port          int
}

// MCPServer wraps the Chronicle client for MCP operations
type MCPServer struct {
	config *Config
	client *chronicle.Client
	logger *slog.Logger
}

// NewConfig creates a new configuration from environment variables and command line flags
func NewConfig() *Config {
	config := &Config{
		Provider:       getEnv("NLP_PROVIDER", DefaultProvider),
		ModelName:      getEnv("MODEL_NAME", DefaultModel),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", DefaultTemperature),
		APIKey:         getEnv("OPENAI_API_KEY", getEnv("NLP_API_KEY", "")),
		BaseURL:        getEnv("NLP_BASE_URL", ""),
		StoreDriver:    getEnv("STORE_DRIVER", "badger"),
		StoreURI:       getEnv("STORE_URI", getEnv("BADGER_DB_PATH", "./chronicle_db")),
		StoreUser:      getEnv("STORE_USER", ""),
		StorePassword:  getEnv("STORE_PASSWORD", ""),
		StoreDatabase:  getEnv("STORE_DATABASE", ""),
		DefaultUser:    getEnv("DEFAULT_USER", "default"),
		DefaultSource:  getEnv("DEFAULT_SOURCE", "chat"),
		ClearOnStart:   getEnvBool("CLEAR_TIMELINE", false),
		Transport:      getEnv("MCP_TRANSPORT", "stdio"),
		Host:           getEnv("MCP_HOST", "localhost"),
		Port:           getEnvInt("MCP_PORT", 3000),
	}

	return config
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// NewMCPServer creates a new MCP server instance
func NewMCPServer(cfg *Config) (*MCPServer, error) {
	logger := slog.New(chronicleLogger.NewColorHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Create entry store
	entryStore, err := store.New(config.StoreConfig{
		Driver:   cfg.StoreDriver,
		URI:      cfg.StoreURI,
		Username: cfg.StoreUser,
		Password: cfg.StorePassword,
		Database: cfg.StoreDatabase,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create entry store: %w", err)
	}

	// Create inference client with automatic retry on transient errors
	baseClient, err := nlp.NewBaseClient(config.NLPModelConfig{
		Provider:    cfg.Provider,
		Model:       cfg.ModelName,
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Temperature: float32(cfg.LLMTemperature),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create inference client: %w", err)
	}
	inference := nlp.NewRetryClient(baseClient, nlp.DefaultRetryConfig(), logger)

	// Create Chronicle client
	chronicleConfig := &chronicle.Config{
		DefaultSource: types.Source(cfg.DefaultSource),
	}

	client, err := chronicle.NewClient(entryStore, inference, chronicleConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Chronicle client: %w", err)
	}

	return &MCPServer{
		config: cfg,
		client: client,
		logger: logger,
	}, nil
}

// Initialize sets up the MCP server and Chronicle client
func (s *MCPServer) Initialize(ctx context.Context) error {
	s.logger.Info("Initializing Chronicle MCP server...")

	// Verify the client is ready
	if s.client == nil {
		return fmt.Errorf("chronicle client not initialized")
	}

	// Clear the default user's timeline if requested
	if s.config.ClearOnStart {
		s.logger.Warn("Timeline destruction requested - clearing all entries for user", "user_id", s.config.DefaultUser)

		err := s.client.ClearTimeline(ctx, s.config.DefaultUser)
		if err != nil {
			s.logger.Error("Failed to clear timeline during initialization", "error", err)
			return fmt.Errorf("failed to clear timeline: %w", err)
		}

		s.logger.Info("Timeline cleared successfully during initialization")
	}

	s.logger.Info("Chronicle client initialized successfully")
	s.logger.Info("MCP server configuration",
		"model", s.config.ModelName,
		"temperature", s.config.LLMTemperature,
		"store_driver", s.config.StoreDriver,
		"default_user", s.config.DefaultUser,
		"default_source", s.config.DefaultSource,
	)

	return nil
}

// RegisterTools registers all MCP tools with Genkit
func (s *MCPServer) RegisterTools(g *genkit.Genkit) {
	// Register ingest_narrative tool
	genkit.DefineTool(g, "ingest_narrative",
		"Ingest a narrative text into the timeline. This is the primary way to add information: the text is segmented into events, each event is dated, and the resulting entries are persisted in chronological order.",
		s.IngestNarrativeTool)

	// Register get_timeline tool
	genkit.DefineTool(g, "get_timeline",
		"Get a user's timeline entries in chronological order, optionally filtered by date range, source, or tags.",
		s.GetTimelineTool)

	// Register get_entry tool
	genkit.DefineTool(g, "get_entry",
		"Get a single timeline entry by its ID.",
		s.GetEntryTool)

	// Register archive_entry tool
	genkit.DefineTool(g, "archive_entry",
		"Archive a timeline entry so it no longer appears in timeline reads.",
		s.ArchiveEntryTool)

	// Register add_anchor tool
	genkit.DefineTool(g, "add_anchor",
		"Add a life anchor (a known dated milestone such as a graduation or a move) used as a dating reference for future narratives.",
		s.AddAnchorTool)

	// Register get_anchors tool
	genkit.DefineTool(g, "get_anchors",
		"Get all life anchors recorded for a user.",
		s.GetAnchorsTool)

	// Register get_insights tool
	genkit.DefineTool(g, "get_insights",
		"Get insights derived from a user's timeline, such as confidence summaries and chronology gaps.",
		s.GetInsightsTool)

	// Register clear_timeline tool
	genkit.DefineTool(g, "clear_timeline",
		"Clear all timeline entries for a user. Anchors are kept.",
		s.ClearTimelineTool)
}

// Run starts the MCP server
func (s *MCPServer) Run(ctx context.Context) error {
	s.logger.Info("Starting Genkit MCP server", "transport", s.config.Transport)

	// Initialize Genkit
	g := genkit.Init(ctx)

	// Register all tools
	s.RegisterTools(g)

	// Start the server (this would typically be handled by Genkit's runtime)
	s.logger.Info("MCP server is ready to accept requests")

	// Keep the server running
	select {
	case <-ctx.Done():
		return ctx.Err()
	}
}

func main() {
	// Parse command line flags
	var (
		defaultUser   = flag.String("user", "", "Default user for tool calls that omit one")
		transport     = flag.String("transport", "stdio", "Transport to use (stdio or sse)")
		model         = flag.String("model", "", fmt.Sprintf("Model name to use (default: %s)", DefaultModel))
		temperature   = flag.Float64("temperature", -1, "Temperature setting for the LLM (0.0-2.0)")
		clearTimeline = flag.Bool("clear-timeline", false, "Clear the default user's timeline on startup")
		storeDriver   = flag.String("store-driver", "", "Entry store driver (memory, badger, postgres, neo4j)")
		storeURI      = flag.String("store-uri", "", "Entry store URI/path")
		host          = flag.String("host", "", "Host to bind the MCP server to")
		port          = flag.Int("port", 0, "Port to bind the MCP server to")
	)
	flag.Parse()

	// Create configuration
	config := NewConfig()

	// Apply command line overrides
	if *defaultUser != "" {
		config.DefaultUser = *defaultUser
	}
	if *transport != "" {
		config.Transport = *transport
	}
	if *model != "" {
		config.ModelName = *model
	}
	if *temperature >= 0 {
		config.LLMTemperature = *temperature
	}
	if *clearTimeline {
		config.ClearOnStart = true
	}
	if *storeDriver != "" {
		config.StoreDriver = *storeDriver
	}
	if *storeURI != "" {
		config.StoreURI = *storeURI
	}
	if *host != "" {
		config.Host = *host
	}
	if *port != 0 {
		config.Port = *port
	}

	// Validate required configuration
	if config.APIKey == "" && config.BaseURL == "" {
		log.Fatal("OPENAI_API_KEY (or NLP_API_KEY with NLP_BASE_URL) must be set")
	}

	// Validate store configuration based on driver type
	if config.StoreDriver != "memory" && config.StoreURI == "" {
		log.Fatal("Store URI/path must be set")
	}

	// Only Neo4j requires username and password
	if config.StoreDriver == "neo4j" && (config.StoreUser == "" || config.StorePassword == "") {
		log.Fatal("STORE_USER and STORE_PASSWORD must be set when using the Neo4j driver")
	}

	// Create and initialize server
	server, err := NewMCPServer(config)
	if err != nil {
		log.Fatalf("Failed to create MCP server: %v", err)
	}

	ctx := context.Background()
	if err := server.Initialize(ctx); err != nil {
		log.Fatalf("Failed to initialize MCP server: %v", err)
	}

	// Run the server
	if err := server.Run(ctx); err != nil {
		log.Fatalf("MCP server error: %v", err)
	}
}
