package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"duelgrounds/internal/app"
	"duelgrounds/internal/config"
	"duelgrounds/internal/logging"
)

func main() {
	_ = godotenv.Load()

	logger, flush := logging.New(os.Getenv("DUEL_LOG_PATH"))
	defer flush()

	cfg := config.FromEnv(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg, logger); err != nil {
		logger.Fatalw("server exited", "error", err)
	}
}
