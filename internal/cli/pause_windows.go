//go:build windows

package cli

import "context"

// watchPauseSignal is a no-op: there is no SIGUSR1 on windows.
func watchPauseSignal(ctx context.Context, t pauseToggler) (stop func()) {
	return func() {}
}
