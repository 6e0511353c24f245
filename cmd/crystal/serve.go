package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jonathan/context-crystal/internal/config"
	"github.com/jonathan/context-crystal/internal/db"
	"github.com/jonathan/context-crystal/internal/fetch"
	"github.com/jonathan/context-crystal/internal/pipeline"
	"github.com/jonathan/context-crystal/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var (
		addr        string
		requireAuth bool
		useBrowser  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		Long: `Start an HTTP server that exposes REST endpoints for importing conversations
and running the compression pipeline. Runs and artifacts are persisted to
PostgreSQL when DATABASE_URL is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("require-auth") {
				cfg.Server.RequireAuth = requireAuth
			}
			if cmd.Flags().Changed("use-browser") {
				cfg.UseBrowser = useBrowser
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Address to listen on")
	cmd.Flags().BoolVar(&requireAuth, "require-auth", false, "Require a bearer token on every API route")
	cmd.Flags().BoolVar(&useBrowser, "use-browser", false, "Use headless browser for SPA share pages (requires Chrome)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	client, err := newLLMClient(ctx, cfg)
	if err != nil {
		return err
	}
	if client != nil {
		defer func() { _ = client.Close() }()
	}

	var (
		history server.History
		store   pipeline.Store
	)
	if cfg.DatabaseURL != "" {
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()
		if err := database.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		history = database
		store = db.NewStore(database)
	}

	sealer, err := newSealer(cfg)
	if err != nil {
		return err
	}

	var jwtService *server.JWTService
	jwtCfg, err := config.NewJWTConfig()
	switch {
	case err == nil:
		jwtService = server.NewJWTService(jwtCfg)
	case cfg.Server.RequireAuth:
		return fmt.Errorf("failed to load JWT config: %w", err)
	}

	keys, err := config.NewAPIKeyConfig()
	if err != nil {
		return err
	}

	engine := newEngine(cfg, client, store, log.New(os.Stderr, "[PIPELINE] ", log.LstdFlags), nil)

	srv, err := server.New(server.Options{
		Engine:     engine,
		History:    history,
		Fetcher:    fetch.NewCachedFetcher(nil),
		Sealer:     sealer,
		LLM:        client,
		JWT:        jwtService,
		APIKeys:    keys,
		Config:     cfg.Server,
		UseBrowser: cfg.UseBrowser,
		Verbose:    cfg.Verbose,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start(ctx)
}
