package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/reachcapital/portal/internal/ports"
)

// redirectNavigator records the navigation a one-shot runtime asked for so the
// handler can answer the request with a redirect.
type redirectNavigator struct {
	mu     sync.Mutex
	target string
}

var _ ports.Navigator = (*redirectNavigator)(nil)

func (n *redirectNavigator) Replace(_ context.Context, path string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.target = path
	return nil
}

// Target returns the last requested location.
func (n *redirectNavigator) Target() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.target, n.target != ""
}

var errStreamClosed = errors.New("event stream closed")

// eventStream writes Server-Sent Events. Writes may come from the runtime's
// dispatch goroutine and the handler's ticker at once, so they are serialized.
type eventStream struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
}

func newEventStream(w http.ResponseWriter) (*eventStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming unsupported")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &eventStream{w: w, flusher: flusher}, nil
}

// Send writes one named event with a JSON payload.
func (s *eventStream) Send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStreamClosed
	}
	if _, err = fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Heartbeat writes a comment line so proxies keep the connection open.
func (s *eventStream) Heartbeat() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStreamClosed
	}
	if _, err := fmt.Fprint(s.w, ": heartbeat\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Close makes later writes fail; the ResponseWriter is invalid once the handler returns.
func (s *eventStream) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// navigateEvent is the payload of an "event: navigate" message.
type navigateEvent struct {
	To      string `json:"to"`
	Replace bool   `json:"replace"`
}

// streamNavigator queues navigations for the stream handler, which sends them
// once pending role writes have landed. Replace runs on the store's dispatch
// goroutine and must not block.
type streamNavigator struct {
	queue chan string
}

var _ ports.Navigator = streamNavigator{}

func newStreamNavigator() streamNavigator {
	return streamNavigator{queue: make(chan string, 8)}
}

func (n streamNavigator) Replace(_ context.Context, path string) error {
	select {
	case n.queue <- path:
		return nil
	default:
		return errors.New("navigation queue full")
	}
}
