package runtime

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
)

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context, service string) (context.Context, context.CancelFunc) {
	if service == "" {
		service = "service"
	}
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-ctx.Done():
		case sig := <-sigCh:
			log.Printf("[%s] received signal %s, shutting down", service, sig)
			cancel()
		}
	}()
	return ctx, cancel
}
