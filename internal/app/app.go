// Package app wires the application: database pool, stores, credential
// resolution, and the generation engine, built from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/podscout/podscout/internal/config"
	"github.com/podscout/podscout/internal/conversation"
	"github.com/podscout/podscout/internal/credential"
	"github.com/podscout/podscout/internal/database"
	"github.com/podscout/podscout/internal/gemini"
	"github.com/podscout/podscout/internal/localstore"
)

// App holds the wired application components.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Pool          *pgxpool.Pool
	Conversations *conversation.Store
	Credentials   *credential.Store
	Engine        *gemini.Client
	Local         *localstore.Store
}

// Setup connects to the database, applies migrations, and builds the
// component graph. Call Close when done.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	dsn := cfg.PostgresURL()

	if err := database.Migrate(dsn); err != nil {
		return nil, fmt.Errorf("applying migrations: %w", err)
	}

	pool, err := database.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	local, err := openLocalStore(cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}

	conversations := conversation.NewStore(pool, logger)
	credentials := credential.NewStore(conversations, local, logger)

	engine := gemini.NewClient(gemini.Config{
		ModelName:       cfg.ModelName,
		Temperature:     cfg.Temperature,
		TopP:            cfg.TopP,
		TopK:            cfg.TopK,
		MaxOutputTokens: cfg.MaxOutputTokens,
		SafetyThreshold: cfg.SafetyThreshold,
		HistoryWindow:   cfg.HistoryWindow,
		BaseURL:         cfg.Endpoint,
		StreamTimeout:   cfg.StreamTimeout(),
		Logger:          logger,
	})

	return &App{
		Config:        cfg,
		Logger:        logger,
		Pool:          pool,
		Conversations: conversations,
		Credentials:   credentials,
		Engine:        engine,
		Local:         local,
	}, nil
}

// Close releases the database pool.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}

// openLocalStore resolves the durable local key-value file.
func openLocalStore(cfg *config.Config) (*localstore.Store, error) {
	path := cfg.StatePath
	if path == "" {
		dir, err := config.Dir()
		if err != nil {
			return nil, fmt.Errorf("resolving state path: %w", err)
		}
		path = filepath.Join(dir, "state.json")
	}
	return localstore.New(path), nil
}
