package events

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestClientResetsBackoffAfterConnecting(t *testing.T) {
	var (
		mu    sync.Mutex
		conns []time.Time
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		conns = append(conns, time.Now())
		n := len(conns)
		mu.Unlock()

		switch {
		case n <= 4:
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		case n == 5:
			w.Header().Set("Content-Type", "text/event-stream")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(": connected\n\n"))
			w.(http.Flusher).Flush()
		default:
			w.Header().Set("Content-Type", "text/event-stream")
			w.WriteHeader(http.StatusOK)
			w.(http.Flusher).Flush()
			<-r.Context().Done()
		}
	}))
	t.Cleanup(ts.Close)

	c := NewClient(ClientConfig{
		BaseURL:      ts.URL,
		ReconnectMin: 10 * time.Millisecond,
		ReconnectMax: time.Second,
	})
	unsub, err := c.Subscribe("/DEV/#", func(Message) {})
	if err != nil {
		t.Fatal(err)
	}
	defer unsub()

	deadline := time.Now().Add(3 * time.Second)
	for {
		mu.Lock()
		n := len(conns)
		mu.Unlock()
		if n >= 6 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("saw %d connections, want 6", n)
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	gap := conns[5].Sub(conns[4])
	mu.Unlock()
	// Four failures grow the delay to 160ms; an accepted stream starts over at 10ms.
	if gap >= 100*time.Millisecond {
		t.Errorf("reconnect after a good stream took %v, want the minimum delay", gap)
	}
}
