package cstarutil

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// InterruptibleContext returns a context that is cancelled when the process
// receives SIGINT or SIGTERM. Used as the top-level context in cmd/cstar and
// by Handler.Updates(ctx, 0) callers that want Ctrl-C to stop a live tail.
func InterruptibleContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		// A second signal should terminate immediately even if cleanup hangs.
		signal.Stop(sig)
		cancel()
	}()
	return ctx, cancel
}
