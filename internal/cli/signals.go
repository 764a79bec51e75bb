package cli

import (
	"os"
	"os/signal"
	"syscall"
)

// notifyInterrupt calls fn with a running count for every SIGINT or SIGTERM
// until the returned stop function is called.
func notifyInterrupt(fn func(n int)) (stop func()) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		n := 0
		for {
			select {
			case <-sigCh:
				n++
				fn(n)
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

// pauseToggler is implemented by console.Observer.
type pauseToggler interface {
	Toggle() bool
	OnInfo(msg string)
}

func announcePause(t pauseToggler) {
	if t.Toggle() {
		t.OnInfo("pause requested, the loop will wait before the next iteration")
	} else {
		t.OnInfo("resume requested")
	}
}
