package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeffkos/form-ease-sub004/internal/app"
	"github.com/jeffkos/form-ease-sub004/internal/config"
)

func main() {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Build the automation core. Workflow and notification collaborators are
	// supplied by the embedding application; running standalone, the
	// corresponding action types report per-action failures.
	a, err := app.New(cfg, app.Options{})
	if err != nil {
		log.Fatalf("Failed to build automation core: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Start(ctx)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	a.Stop(shutdownCtx)
}
