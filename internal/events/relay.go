package events

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/keenon/AddBiomechanics-sub000/internal/auth"
	"github.com/keenon/AddBiomechanics-sub000/internal/logging"
	"github.com/keenon/AddBiomechanics-sub000/internal/metrics"
)

const maxPublishBody = 1 << 20

// Relay exposes a Broadcaster over HTTP so that live directories in separate
// processes share one feed. Subscribers stream with Server-Sent Events;
// publishers POST JSON messages.
type Relay struct {
	broadcaster *Broadcaster
	auth        *auth.Auth
}

// NewRelay creates a relay. A nil auth disables authentication.
func NewRelay(b *Broadcaster, a *auth.Auth) *Relay {
	return &Relay{broadcaster: b, auth: a}
}

// Handler returns the relay's HTTP handler.
func (s *Relay) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	protected := http.NewServeMux()
	protected.HandleFunc("GET /api/v1/events", s.handleEvents)
	protected.HandleFunc("POST /api/v1/publish", s.handlePublish)

	var authed http.Handler = protected
	if s.auth != nil {
		authed = s.auth.Middleware(protected)
	}
	mux.Handle("/api/", authed)

	return metrics.Middleware(logging.Middleware(mux))
}

func (s *Relay) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "ok",
		"subscribers": s.broadcaster.Count(),
	})
}

func (s *Relay) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		sendError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	pattern := r.URL.Query().Get("topic")
	if pattern == "" {
		pattern = "/" + Wildcard
	}
	if !allowed(r, pattern) {
		sendError(w, http.StatusForbidden, "topic outside token deployment")
		return
	}

	// Subscribe before the handshake so nothing published after the
	// client sees ": connected" is missed.
	ch, cancel := s.broadcaster.Channel(pattern)
	defer cancel()
	metrics.SetRelaySubscribers(s.broadcaster.Count())
	defer func() { metrics.SetRelaySubscribers(s.broadcaster.Count()) }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	logger := logging.WithContext(r.Context())
	logger.Debug("relay subscriber attached", zap.String("topic", pattern))

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (s *Relay) handlePublish(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPublishBody))
	if err != nil {
		sendError(w, http.StatusBadRequest, "read body")
		return
	}

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil || msg.Topic == "" {
		sendError(w, http.StatusBadRequest, "body must be a message with a topic")
		return
	}
	if !allowed(r, msg.Topic) {
		sendError(w, http.StatusForbidden, "topic outside token deployment")
		return
	}

	s.broadcaster.Publish(r.Context(), msg)
	w.WriteHeader(http.StatusAccepted)
}

// allowed checks a topic or pattern against the token's deployment scope.
func allowed(r *http.Request, topic string) bool {
	claims := auth.GetClaims(r.Context())
	if claims == nil || claims.Deployment == "" {
		return true
	}
	return strings.HasPrefix(topic, "/"+claims.Deployment+"/")
}

func sendError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
