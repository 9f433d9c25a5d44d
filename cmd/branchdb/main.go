package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"branchdb/internal/app"
	"branchdb/pkg/banner"
	"branchdb/pkg/config"
	"branchdb/pkg/logger"
	"branchdb/pkg/shutdown"
)

// build metadata - set via ldflags during build/release
var version = "dev"

func main() {
	_ = godotenv.Load(".env")
	flags := config.ParseCommandFlags()

	eff, err := config.LoadEffective(flags)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.InitWithLevel(eff.Config.Logging.Level)
	banner.Print(eff, version)

	a, err := app.New(eff, version)
	if err != nil {
		logger.Error("startup_failed", "error", err)
		log.Fatalf("startup failed: %v", err)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	if err := a.Run(ctx); err != nil {
		logger.Error("run_failed", "error", err)
	}
	if err := a.Close(); err != nil {
		logger.Error("close_failed", "error", err)
	}
}
