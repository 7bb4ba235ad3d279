package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Shugur-Network/capsule-validator/internal/config"
	"github.com/Shugur-Network/capsule-validator/internal/logger"
	"go.uber.org/zap"
)

// These variables are set at build time via -ldflags
var (
	version = "dev"     // Set via -X main.version=...
	commit  = "unknown" // Set via -X main.commit=...
	date    = "unknown" // Set via -X main.date=...
)

func main() {
	// Set version in config package from build information
	config.SetVersion(version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The first signal cancels the run so it can report; a second one exits.
	go func() {
		signals := make(chan os.Signal, 2)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		sig := <-signals
		logger.Warn("Received termination signal, interrupting run...", zap.String("signal", sig.String()))
		cancel()
		<-signals
		os.Exit(130)
	}()

	code := Execute(ctx)
	_ = logger.Shutdown() // nolint:errcheck
	cancel()
	os.Exit(code)
}
