package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/Iron-Yzg/auto-matrix-manager/cmd"
	"github.com/Iron-Yzg/auto-matrix-manager/internal/config"
	"github.com/Iron-Yzg/auto-matrix-manager/internal/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	stop()
	observability.Sync()

	if err != nil {
		// Rejected run configs exit 2 so callers can tell "fix your
		// config" apart from everything else. A run that produced a
		// result envelope, even a failure one, exits 0.
		var cfgErr *config.Error
		if errors.As(err, &cfgErr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
