//go:build e2e

package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ryanmccauley/loop/internal/opencode"
	"github.com/ryanmccauley/loop/internal/status"
	"github.com/ryanmccauley/loop/internal/testutil"
)

const e2eSessionID = "ses_e2e"

// fakeServer speaks enough of the opencode HTTP API for the loop binary.
// Each prompt is answered by a status tool call with verdict followed by
// session.idle; an empty verdict leaves the turn running forever.
type fakeServer struct {
	verdict string

	mu      sync.Mutex
	subs    []chan *opencode.Event
	prompts int
	aborts  int
}

func startFakeServer(t *testing.T, verdict string) (*fakeServer, *httptest.Server) {
	t.Helper()
	f := &fakeServer{verdict: verdict}
	srv := httptest.NewServer(f)
	t.Cleanup(func() {
		srv.CloseClientConnections()
		srv.Close()
	})
	return f, srv
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	base := "/session/" + e2eSessionID
	switch {
	case r.URL.Path == "/config":
		fmt.Fprint(w, `{}`)
	case r.Method == http.MethodPost && r.URL.Path == "/session":
		fmt.Fprintf(w, `{"id":%q}`, e2eSessionID)
	case r.URL.Path == base+"/prompt_async":
		f.mu.Lock()
		f.prompts++
		subs := append([]chan *opencode.Event(nil), f.subs...)
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
		if f.verdict == "" {
			return
		}
		for _, ch := range subs {
			ch <- testutil.PartEvent(e2eSessionID, testutil.StatusPart(status.DefaultTool, f.verdict, "e2e"))
			ch <- testutil.IdleEvent(e2eSessionID)
		}
	case r.URL.Path == base+"/message":
		_ = json.NewEncoder(w).Encode([]*opencode.Message{testutil.AssistantMessage(e2eSessionID, 0.01, 10, 5)})
	case r.URL.Path == base+"/abort":
		f.mu.Lock()
		f.aborts++
		f.mu.Unlock()
		fmt.Fprint(w, `true`)
	case r.URL.Path == "/event":
		f.serveEvents(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeServer) serveEvents(w http.ResponseWriter, r *http.Request) {
	ch := make(chan *opencode.Event, 64)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	flusher := w.(http.Flusher)
	send := func(e *opencode.Event) {
		data, _ := json.Marshal(e)
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	send(testutil.ConnectedEvent())
	for {
		select {
		case e := <-ch:
			send(e)
		case <-r.Context().Done():
			return
		}
	}
}

func (f *fakeServer) counts() (prompts, aborts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts, f.aborts
}
