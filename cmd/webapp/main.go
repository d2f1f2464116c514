package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/smukkama/solar-watch/internal/app"
	"github.com/smukkama/solar-watch/internal/web"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Load(ctx)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer a.Close()

	server := web.NewServer(a.Manager(nil), a.DB, a.Metrics, a.Logger, a.Config.HTTP.Addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			a.Logger.Error("web server failed", "error", err)
			a.Close()
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("graceful shutdown failed", "error", err)
	}
}
