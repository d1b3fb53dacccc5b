package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/reachcapital/portal/internal/domain/routing"
	"github.com/reachcapital/portal/internal/observability/statsd"
	"github.com/reachcapital/portal/internal/portal"
	"github.com/reachcapital/portal/internal/ports"
)

const (
	defaultHeartbeatInterval = 25 * time.Second
	defaultRefreshInterval   = 10 * time.Minute
)

// EventHandlers hosts a live portal runtime per open event stream.
type EventHandlers struct {
	Auth    AuthService
	Local   ports.LocalStore
	Metrics statsd.Sink
	Logger  *slog.Logger

	HeartbeatInterval time.Duration // Optional
	// RefreshInterval controls how often a signed-in stream extends its session.
	RefreshInterval time.Duration // Optional
}

func (h *EventHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// readyEvent is sent once the runtime has loaded the session.
type readyEvent struct {
	Phase         string `json:"phase"`
	Authenticated bool   `json:"authenticated"`
}

// Stream follows the client's session events and pushes navigations.
// GET /auth/events?path=<current page path>.
func (h *EventHandlers) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID, ok := ClientIDFromContext(ctx)
	if !ok {
		WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "missing_client"})
		return
	}
	stream, err := newEventStream(w)
	if err != nil {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}
	defer stream.Close()

	logger := h.logger().With("client_id", clientID)
	client := h.Auth.Client(clientID)
	nav := newStreamNavigator()
	rt, err := portal.NewRuntime(portal.RuntimeOptions{
		Provider:  client,
		Navigator: nav,
		Hints:     portal.LocalHint{Store: h.Local, ClientID: clientID, Logger: logger},
		Roles:     portal.LocalRoles{Store: h.Local, ClientID: clientID, Logger: logger},
		Path:      streamPath(r.URL.Query().Get("path")),
		Logger:    logger,
		Metrics:   h.Metrics,
	})
	if err != nil {
		logger.ErrorContext(ctx, "build runtime failed", "error", err)
		return
	}
	if err = rt.Start(ctx); err != nil {
		logger.WarnContext(ctx, "start runtime failed", "error", err)
		rt.Close()
		return
	}
	defer func() {
		rt.Close()
		rt.Wait()
	}()
	count(h.Metrics, "portal.stream_open", nil)

	snap := rt.Snapshot()
	if err = stream.Send("ready", readyEvent{Phase: rt.Phase().String(), Authenticated: snap.Authenticated()}); err != nil {
		return
	}

	h.loop(ctx, stream, rt, nav, client.RefreshSession)
}

// loop sends queued navigations, keeps the stream alive and refreshes a
// signed-in session until the client goes away. It is the only writer besides
// the initial ready event.
func (h *EventHandlers) loop(
	ctx context.Context,
	stream *eventStream,
	rt *portal.Runtime,
	nav streamNavigator,
	refresh func(context.Context) error,
) {
	heartbeat := time.NewTicker(durationOr(h.HeartbeatInterval, defaultHeartbeatInterval))
	defer heartbeat.Stop()
	refresher := time.NewTicker(durationOr(h.RefreshInterval, defaultRefreshInterval))
	defer refresher.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case to := <-nav.queue:
			if err := stream.Send("navigate", navigateEvent{To: to, Replace: true}); err != nil {
				h.logger().DebugContext(ctx, "event stream closed", "error", err)
				return
			}
		case <-heartbeat.C:
			if err := stream.Heartbeat(); err != nil {
				h.logger().DebugContext(ctx, "event stream closed", "error", err)
				return
			}
		case <-refresher.C:
			if !rt.Snapshot().Authenticated() {
				continue
			}
			if err := refresh(ctx); err != nil {
				h.logger().WarnContext(ctx, "session refresh failed", "error", err)
			}
		}
	}
}

// streamPath is the page path a stream reports, without query or fragment.
func streamPath(raw string) string {
	u, err := url.Parse(routing.SafeRedirectPath(raw))
	if err != nil {
		return routing.PathHome
	}
	return routing.Normalize(u.Path)
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
