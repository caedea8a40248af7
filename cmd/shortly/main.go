package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-chi/httplog/v2"
	"github.com/joho/godotenv"

	"github.com/ilyakochetov/shortly/internal/app"
	"github.com/ilyakochetov/shortly/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx); err != nil {
		panic(err)
	}
}

func run(ctx context.Context) error {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return err
	}

	logger := httplog.NewLogger("shortly", httplog.Options{
		JSON:     cfg.Env == config.EnvProd,
		LogLevel: slog.LevelInfo,
		Concise:  cfg.Env != config.EnvProd,
	})

	return app.Run(ctx, cfg, logger)
}
