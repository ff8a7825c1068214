package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/firm-distillery/internal/adapters/cli"
	"github.com/kirillkom/firm-distillery/internal/bootstrap"
	"github.com/kirillkom/firm-distillery/internal/config"
	"github.com/kirillkom/firm-distillery/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.New(os.Stderr, "cli", cfg.LogLevel, "text"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(func(ctx context.Context) (*cli.Services, func(), error) {
		app, err := bootstrap.New(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return &cli.Services{
			Config:   app.Config,
			Catalog:  app.Catalog,
			Health:   app,
			Embedder: app.EmbedUC,
			Batch:    app.BatchUC,
			Repo:     app.Repo,
		}, app.Close, nil
	})

	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
