// Package relay serves calls of a voice gateway over websockets. The
// gateway transcribes the caller and speaks the text it receives, so every
// frame is JSON text.
package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	orchestration "github.com/koscakluka/ema-relay/core"
	"github.com/koscakluka/ema-relay/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	defaultReadLimit       = 64 * 1024
	defaultWriteTimeout    = 5 * time.Second
	defaultPingInterval    = 20 * time.Second
	defaultPongWait        = 60 * time.Second
	defaultEventsPerSecond = 20
	defaultEventBurst      = 40
	outboundBufferSize     = 256
)

// Calls is the part of the orchestrator the relay drives
type Calls interface {
	StartCall(ctx context.Context, connID string, setup events.Setup, sink orchestration.Sink) (*orchestration.Call, error)
	Dispatch(callID string, event events.Event) bool
	EndCall(callID, connID string)
}

// Handler upgrades requests to websockets and serves one call per
// connection.
type Handler struct {
	calls    Calls
	upgrader websocket.Upgrader

	readLimit    int64
	writeTimeout time.Duration
	pingInterval time.Duration
	pongWait     time.Duration

	eventsPerSecond float64
	eventBurst      int
}

type Option func(*Handler)

// WithReadLimit sets the largest inbound frame in bytes
func WithReadLimit(limit int64) Option {
	return func(h *Handler) {
		if limit > 0 {
			h.readLimit = limit
		}
	}
}

func WithWriteTimeout(timeout time.Duration) Option {
	return func(h *Handler) {
		if timeout > 0 {
			h.writeTimeout = timeout
		}
	}
}

// WithKeepAlive sets how often the connection is pinged and how long it may
// stay silent before it is considered dead.
func WithKeepAlive(pingInterval, pongWait time.Duration) Option {
	return func(h *Handler) {
		if pingInterval > 0 {
			h.pingInterval = pingInterval
		}
		if pongWait > 0 {
			h.pongWait = pongWait
		}
	}
}

// WithRateLimit limits the inbound events of each connection. Events over
// the limit are answered with an error frame.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(h *Handler) {
		if perSecond > 0 && burst > 0 {
			h.eventsPerSecond = perSecond
			h.eventBurst = burst
		}
	}
}

func WithCheckOrigin(checkOrigin func(*http.Request) bool) Option {
	return func(h *Handler) {
		h.upgrader.CheckOrigin = checkOrigin
	}
}

func NewHandler(calls Calls, opts ...Option) *Handler {
	h := &Handler{
		calls: calls,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		readLimit:       defaultReadLimit,
		writeTimeout:    defaultWriteTimeout,
		pingInterval:    defaultPingInterval,
		pongWait:        defaultPongWait,
		eventsPerSecond: defaultEventsPerSecond,
		eventBurst:      defaultEventBurst,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("failed to upgrade connection", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	connID := uuid.NewString()
	ctx, span := tracer.Start(r.Context(), "serve connection", trace.WithAttributes(
		attribute.String("relay.connection_id", connID),
	))
	defer span.End()

	conn := &connection{
		handler:  h,
		ws:       ws,
		id:       connID,
		limiter:  rate.NewLimiter(rate.Limit(h.eventsPerSecond), h.eventBurst),
		outbound: make(chan []byte, outboundBufferSize),
		closed:   make(chan struct{}),
	}
	conn.serve(ctx)
}
