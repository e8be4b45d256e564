package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/ubuildacademy/takeoff-autocount/internal/domain"
)

// sseSink delivers progress events as server-sent events. Each event is
// one "data: <json>" frame, flushed immediately so subscribers see
// progress in real time.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher

	mu   sync.Mutex
	sent int
	dead bool
}

// newSSESink writes the SSE response headers and returns the sink. Fails
// when the writer cannot flush (streaming would silently buffer).
func newSSESink(w http.ResponseWriter) (*sseSink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support flushing")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	// Disable proxy buffering; nginx would otherwise hold frames back.
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseSink{w: w, flusher: flusher}, nil
}

// Send implements domain.ProgressSink.
func (s *sseSink) Send(ev domain.ProgressEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dead {
		return errors.New("subscriber gone")
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		s.dead = true
		return fmt.Errorf("write event frame: %w", err)
	}
	s.flusher.Flush()
	s.sent++
	return nil
}

// opened reports whether at least one event reached the subscriber.
func (s *sseSink) opened() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent > 0
}

// sendError emits a terminal error event directly, for failures that
// happen before the orchestrator takes over event emission.
func (s *sseSink) sendError(msg string) {
	_ = s.Send(domain.ProgressEvent{Type: domain.EventError, Error: msg})
}
