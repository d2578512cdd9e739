package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"flatwatch/internal/observability"
)

// GracefulShutdown возвращает context, который отменяется по SIGINT/SIGTERM.
// Повторный сигнал завершает процесс сразу.
func GracefulShutdown(parent context.Context, logger *observability.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received, finishing current cycle", "signal", sig.String())
			cancel()
		case <-ctx.Done():
			return
		}

		sig := <-sigChan
		logger.Warn("Second signal received, exiting", "signal", sig.String())
		os.Exit(1)
	}()

	return ctx, cancel
}
