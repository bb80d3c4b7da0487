package chronicle

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lorekeeper/chronicle"
	"github.com/lorekeeper/chronicle/pkg/config"
	chronicleLogger "github.com/lorekeeper/chronicle/pkg/logger"
	"github.com/lorekeeper/chronicle/pkg/server"
	"github.com/lorekeeper/chronicle/pkg/telemetry"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the Chronicle HTTP server",
	Long: `Start the Chronicle HTTP server to provide REST API access to the timeline pipeline.

The server provides endpoints for:
- Ingesting narrative text (async and sync)
- Retrieving and curating timelines
- Managing life anchors
- Health checks

Configuration can be provided through config files, environment variables, or command-line flags.`,
	RunE: runServer,
}

var (
	serverHost string
	serverPort int
	serverMode string
)

func init() {
	rootCmd.AddCommand(serverCmd)

	// Server-specific flags
	serverCmd.Flags().StringVar(&serverHost, "host", "localhost", "Server host")
	serverCmd.Flags().IntVar(&serverPort, "port", 8080, "Server port")
	serverCmd.Flags().StringVar(&serverMode, "mode", "debug", "Server mode (debug, release, test)")

	// Store flags
	serverCmd.Flags().String("store-driver", "badger", "Entry store driver (memory, badger, postgres, neo4j)")
	serverCmd.Flags().String("store-uri", "", "Entry store URI/path")
	serverCmd.Flags().String("store-username", "", "Entry store username (neo4j)")
	serverCmd.Flags().String("store-password", "", "Entry store password (neo4j)")
	serverCmd.Flags().String("store-database", "", "Entry store database name")

	// Inference flags
	serverCmd.Flags().String("nlp-provider", "openai", "Inference provider")
	serverCmd.Flags().String("nlp-model", "gpt-4o-mini", "Inference model")
	serverCmd.Flags().String("nlp-api-key", "", "Inference API key")
	serverCmd.Flags().String("nlp-base-url", "", "Inference base URL")
	serverCmd.Flags().Float32("nlp-temperature", 0.7, "Inference temperature")
	serverCmd.Flags().Int("nlp-max-tokens", 4096, "Inference max tokens")

	// Telemetry flags
	serverCmd.Flags().String("telemetry-parquet-path", "", "Path to directory for telemetry (errors and token usage)")

	// Checkpoint flags
	serverCmd.Flags().Bool("checkpoints", false, "Enable run checkpointing")
	serverCmd.Flags().String("checkpoint-dir", "", "Directory for run checkpoints")
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override config with command-line flags
	overrideConfigWithFlags(cmd, cfg)

	// Validate configuration
	if err := validateServerConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Initialize Chronicle
	fmt.Println("Initializing Chronicle...")
	client, logger, err := initializeChronicle(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize Chronicle: %w", err)
	}

	// Create and setup server
	srv := server.New(cfg, client, logger)
	srv.Setup()

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in a goroutine
	serverErrChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal: %v\n", sig)

		// Create shutdown context with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		// Shutdown server
		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		if err := client.Close(shutdownCtx); err != nil {
			return fmt.Errorf("client shutdown error: %w", err)
		}

		fmt.Println("Server stopped gracefully")
		return nil
	}
}

func overrideConfigWithFlags(cmd *cobra.Command, cfg *config.Config) {
	// Server flags
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serverHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = serverPort
	}
	if cmd.Flags().Changed("mode") {
		cfg.Server.Mode = serverMode
	}

	// Store flags
	if cmd.Flags().Changed("store-driver") {
		cfg.Store.Driver, _ = cmd.Flags().GetString("store-driver")
	}
	if cmd.Flags().Changed("store-uri") {
		cfg.Store.URI, _ = cmd.Flags().GetString("store-uri")
	}
	if cmd.Flags().Changed("store-username") {
		cfg.Store.Username, _ = cmd.Flags().GetString("store-username")
	}
	if cmd.Flags().Changed("store-password") {
		cfg.Store.Password, _ = cmd.Flags().GetString("store-password")
	}
	if cmd.Flags().Changed("store-database") {
		cfg.Store.Database, _ = cmd.Flags().GetString("store-database")
	}

	// Inference flags
	if cfg.NLP.Models == nil {
		cfg.NLP.Models = map[string]config.NLPModelConfig{}
	}
	if cmd.Flags().Changed("nlp-provider") {
		m := cfg.NLP.Models["default"]
		m.Provider, _ = cmd.Flags().GetString("nlp-provider")
		cfg.NLP.Models["default"] = m
	}
	if cmd.Flags().Changed("nlp-model") {
		m := cfg.NLP.Models["default"]
		m.Model, _ = cmd.Flags().GetString("nlp-model")
		cfg.NLP.Models["default"] = m
	}
	if cmd.Flags().Changed("nlp-api-key") {
		m := cfg.NLP.Models["default"]
		m.APIKey, _ = cmd.Flags().GetString("nlp-api-key")
		cfg.NLP.Models["default"] = m
	}
	if cmd.Flags().Changed("nlp-base-url") {
		m := cfg.NLP.Models["default"]
		m.BaseURL, _ = cmd.Flags().GetString("nlp-base-url")
		cfg.NLP.Models["default"] = m
	}
	if cmd.Flags().Changed("nlp-temperature") {
		m := cfg.NLP.Models["default"]
		m.Temperature, _ = cmd.Flags().GetFloat32("nlp-temperature")
		cfg.NLP.Models["default"] = m
	}
	if cmd.Flags().Changed("nlp-max-tokens") {
		m := cfg.NLP.Models["default"]
		m.MaxTokens, _ = cmd.Flags().GetInt("nlp-max-tokens")
		cfg.NLP.Models["default"] = m
	}

	// Telemetry flags
	if cmd.Flags().Changed("telemetry-parquet-path") {
		cfg.Telemetry.ParquetPath, _ = cmd.Flags().GetString("telemetry-parquet-path")
	}

	// Checkpoint flags
	if cmd.Flags().Changed("checkpoints") {
		cfg.Checkpoint.Enabled, _ = cmd.Flags().GetBool("checkpoints")
	}
	if cmd.Flags().Changed("checkpoint-dir") {
		cfg.Checkpoint.Dir, _ = cmd.Flags().GetString("checkpoint-dir")
		cfg.Checkpoint.Enabled = true
	}
}

func validateServerConfig(cfg *config.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Server.Port)
	}

	switch cfg.Store.Driver {
	case "memory":
	case "badger", "postgres", "neo4j":
		if cfg.Store.URI == "" {
			return fmt.Errorf("store URI is required for driver %q", cfg.Store.Driver)
		}
	default:
		return fmt.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	return nil
}

// initializeChronicle builds the logger and the fully wired client from
// application configuration.
func initializeChronicle(cfg *config.Config) (*chronicle.Client, *slog.Logger, error) {
	handlerOpts := &slog.HandlerOptions{
		Level: chronicleLogger.ParseLevel(cfg.Log.Level),
	}
	var handler slog.Handler = chronicleLogger.NewColorHandler(os.Stderr, handlerOpts)

	// Error tracking using Parquet
	if cfg.Telemetry.ParquetPath != "" {
		if err := os.MkdirAll(cfg.Telemetry.ParquetPath, 0755); err != nil {
			fmt.Printf("Warning: failed to create telemetry directory: %v\n", err)
		} else if parquetHandler, err := telemetry.NewParquetHandler(handler, cfg.Telemetry.ParquetPath); err != nil {
			fmt.Printf("Warning: failed to initialize error tracking: %v\n", err)
		} else {
			handler = parquetHandler
			fmt.Printf("Error tracking enabled at: %s\n", cfg.Telemetry.ParquetPath)
		}
	}

	// Error tracking in Postgres
	if cfg.Telemetry.DbURL != "" {
		if db, err := sql.Open("postgres", cfg.Telemetry.DbURL); err != nil {
			fmt.Printf("Warning: failed to open telemetry database: %v\n", err)
		} else if sqlHandler, err := telemetry.NewSQLHandler(handler, db); err != nil {
			fmt.Printf("Warning: failed to initialize SQL error tracking: %v\n", err)
		} else {
			handler = sqlHandler
			fmt.Println("SQL error tracking enabled")
		}
	}

	logger := slog.New(handler)

	client, err := chronicle.New(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	fmt.Printf("Chronicle initialized with store driver: %s\n", cfg.Store.Driver)
	if model, ok := cfg.NLP.Models["default"]; ok {
		fmt.Printf("Inference provider: %s, model: %s\n", model.Provider, model.Model)
	}
	if cfg.Checkpoint.Enabled {
		fmt.Printf("Run checkpointing enabled at: %s\n", cfg.Checkpoint.Dir)
	}

	return client, logger, nil
}
