package opencode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// ServerOptions configures a locally spawned opencode server.
type ServerOptions struct {
	Binary   string        // executable name or path, default "opencode"
	Hostname string        // default "127.0.0.1"
	Port     int           // default 4096
	Dir      string        // working directory of the server process
	Timeout  time.Duration // how long to wait for readiness, default 15s
}

// Server is a running `opencode serve` subprocess.
type Server struct {
	cmd    *exec.Cmd
	url    string
	stderr *bytes.Buffer
	done   chan struct{}

	stopOnce sync.Once
	waitErr  error
}

// StartServer launches `opencode serve` and waits until it answers HTTP requests.
func StartServer(ctx context.Context, opts ServerOptions) (*Server, error) {
	if opts.Binary == "" {
		opts.Binary = "opencode"
	}
	if opts.Hostname == "" {
		opts.Hostname = "127.0.0.1"
	}
	if opts.Port == 0 {
		opts.Port = 4096
	}
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}

	cmd := exec.Command(opts.Binary, "serve",
		"--hostname", opts.Hostname,
		"--port", strconv.Itoa(opts.Port),
	)
	cmd.Dir = opts.Dir
	cmd.Env = os.Environ()
	cmd.SysProcAttr = sessionAttr()

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", opts.Binary, err)
	}

	s := &Server{
		cmd:    cmd,
		url:    fmt.Sprintf("http://%s:%d", opts.Hostname, opts.Port),
		stderr: &stderr,
		done:   make(chan struct{}),
	}
	go func() {
		s.waitErr = cmd.Wait()
		close(s.done)
	}()

	if err := s.waitReady(ctx, opts.Timeout); err != nil {
		s.Stop()
		return nil, err
	}
	return s, nil
}

// URL returns the base URL the server listens on.
func (s *Server) URL() string {
	return s.url
}

func (s *Server) waitReady(ctx context.Context, timeout time.Duration) error {
	readyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := NewClient(s.url)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		if err := client.Ping(readyCtx); err == nil {
			return nil
		}
		select {
		case <-s.done:
			return fmt.Errorf("server exited before becoming ready: %v: %s", s.waitErr, s.stderr.String())
		case <-readyCtx.Done():
			if errors.Is(readyCtx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("server not ready after %s", timeout)
			}
			return readyCtx.Err()
		case <-ticker.C:
		}
	}
}

// Stop terminates the server process group and waits for it to exit.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		if s.cmd.Process == nil {
			return
		}
		_ = terminate(s.cmd.Process)
		select {
		case <-s.done:
		case <-time.After(5 * time.Second):
			_ = s.cmd.Process.Kill()
			<-s.done
		}
	})
}
