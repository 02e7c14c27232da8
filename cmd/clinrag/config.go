package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/poiesic/clinrag"
	"github.com/poiesic/clinrag/ai"
	"github.com/urfave/cli/v2"
)

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

// aiConfig builds the provider configuration from the global flags.
func aiConfig(c *cli.Context) (*ai.Config, error) {
	config := ai.NewConfig(
		ai.WithBaseURL(c.String("base-url")),
		ai.WithAPIKey(c.String("api-key")),
		ai.WithChatModel(c.String("chat-model")),
		ai.WithHydrationModel(c.String("hydration-model")),
		ai.WithEmbeddingModel(c.String("embedding-model"), c.Int("embedding-dims")),
		ai.WithQuota(c.Int("max-tokens-per-minute"), c.Int("max-requests-per-minute")),
	)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}
	return config, nil
}

func openDatabase(c *cli.Context, opts ...clinrag.DatabaseOption) (*clinrag.Database, error) {
	config, err := aiConfig(c)
	if err != nil {
		return nil, err
	}
	opts = append([]clinrag.DatabaseOption{clinrag.WithAIConfig(config)}, opts...)
	if dsn := c.String("postgres"); dsn != "" {
		opts = append(opts, clinrag.WithPostgres(dsn))
	}
	db, err := clinrag.NewDatabase(c.String("db"), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}
