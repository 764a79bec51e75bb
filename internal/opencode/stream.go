package opencode

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Subscribe opens the server's /event stream (Server-Sent Events).
//
// Events arrive on the first channel. Transport failures are reported on the
// second channel without closing the subscription: the client reconnects
// after reconnectInterval. After maxReconnectAttempts consecutive failures an
// error wrapping ErrStreamClosed is reported and both channels are closed.
// Both channels are also closed when ctx is canceled.
func (c *Client) Subscribe(ctx context.Context) (<-chan *Event, <-chan error) {
	eventCh := make(chan *Event, 100)
	errCh := make(chan error, 8)

	go c.subscriptionLoop(ctx, eventCh, errCh)

	return eventCh, errCh
}

// subscriptionLoop handles the main subscription loop with reconnection logic.
func (c *Client) subscriptionLoop(ctx context.Context, eventCh chan<- *Event, errCh chan<- error) {
	defer close(eventCh)
	defer close(errCh)

	attempts := 0

	for {
		if ctx.Err() != nil {
			return
		}

		connected, err := c.streamEvents(ctx, eventCh)
		if ctx.Err() != nil {
			return
		}
		if connected {
			attempts = 0
		}
		if err == nil {
			err = io.ErrUnexpectedEOF
		}

		attempts++
		if c.maxReconnectAttempts > 0 && attempts >= c.maxReconnectAttempts {
			select {
			case errCh <- fmt.Errorf("%w: max reconnection attempts (%d) exceeded: %v", ErrStreamClosed, c.maxReconnectAttempts, err):
			case <-ctx.Done():
			}
			return
		}

		select {
		case errCh <- fmt.Errorf("event stream interrupted: %w", err):
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.reconnectInterval):
		}
	}
}

// streamEvents connects to the SSE endpoint and streams events until the
// connection ends. connected reports whether the server accepted the request.
func (c *Client) streamEvents(ctx context.Context, eventCh chan<- *Event) (connected bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/event"), nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return false, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return true, parseSSEStream(ctx, resp.Body, eventCh)
}

// parseSSEStream parses Server-Sent Events from the response body.
// It returns nil when the body ends cleanly or ctx is canceled.
func parseSSEStream(ctx context.Context, body io.Reader, eventCh chan<- *Event) error {
	scanner := bufio.NewScanner(body)
	// Tool outputs can make single events large
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	var dataLines []string

	flush := func() bool {
		if len(dataLines) == 0 {
			return true
		}
		data := strings.Join(dataLines, "\n")
		dataLines = nil

		event, err := UnmarshalEvent([]byte(data))
		if err != nil {
			// Skip malformed events but continue
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case eventCh <- event:
			return true
		}
	}

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}

		line := scanner.Text()

		// Empty line signals end of event
		if line == "" {
			if !flush() {
				return nil
			}
			continue
		}

		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
		// Ignore other SSE fields (event:, id:, retry:) and comments
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("error reading stream: %w", err)
	}

	flush()
	return nil
}
