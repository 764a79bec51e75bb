//go:build !windows

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// watchPauseSignal toggles the pause gate on every SIGUSR1.
func watchPauseSignal(ctx context.Context, t pauseToggler) (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-sigCh:
				announcePause(t)
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}
