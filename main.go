package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp()
	if err := a.root().ExecuteContext(ctx); err != nil {
		logger := a.logger
		if logger == nil {
			logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
		}
		logger.Error("Run failed", "err", err)
		os.Exit(1)
	}
}
