package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/odyssey-finance/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-finance/internal/app"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil && ctx.Err() == nil {
		slog.Default().Error("odyssey", slog.Any("error", err))
		os.Exit(1)
	}
}
