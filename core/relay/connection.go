package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-relay/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const maxShutdownFlushFrames = 32

type connection struct {
	handler *Handler
	ws      *websocket.Conn
	id      string
	limiter *rate.Limiter

	outbound  chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	// callID is only touched by the reading goroutine.
	callID string
}

// Emit implements orchestration.Sink
func (c *connection) Emit(event events.Event) {
	data, ok, err := EncodeEvent(event)
	if err != nil {
		logger.Error("failed to encode event", "connection_id", c.id, "error", err)
		return
	}
	if !ok {
		return
	}
	c.send(data)
}

func (c *connection) send(data []byte) {
	select {
	case <-c.closed:
	case c.outbound <- data:
	}
}

func (c *connection) shutdown() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

func (c *connection) serve(ctx context.Context) {
	writerDone := make(chan error, 1)
	go func() {
		writerDone <- c.runWriter()
	}()

	if err := c.readLoop(ctx); err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
	}

	if c.callID != "" {
		c.handler.calls.EndCall(c.callID, c.id)
		logger.Info("call ended", "call_id", c.callID, "connection_id", c.id)
	}

	c.shutdown()
	if err := <-writerDone; err != nil {
		logger.Debug("writer stopped", "connection_id", c.id, "error", err)
	}
	_ = c.ws.Close()
}

func (c *connection) readLoop(ctx context.Context) error {
	h := c.handler
	c.ws.SetReadLimit(h.readLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(h.pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			if errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			return err
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(h.pongWait))

		if messageType != websocket.TextMessage {
			logger.Debug("ignoring non-text frame", "connection_id", c.id)
			continue
		}
		c.handleMessage(ctx, data)
	}
}

func (c *connection) handleMessage(ctx context.Context, data []byte) {
	event, err := DecodeMessage(data)
	if err != nil {
		logger.Warn("invalid message", "connection_id", c.id, "call_id", c.callID, "error", err)
		c.send(failureFrame)
		return
	}
	if event == nil {
		return
	}

	if !c.limiter.Allow() {
		logger.Warn("dropping rate limited event", "connection_id", c.id, "call_id", c.callID, "kind", string(event.Kind()))
		c.send(failureFrame)
		return
	}

	setup, isSetup := event.(events.Setup)
	if !isSetup {
		if c.callID == "" {
			logger.Warn("dropping event received before setup", "connection_id", c.id, "kind", string(event.Kind()))
			return
		}
		c.handler.calls.Dispatch(c.callID, event)
		return
	}

	if c.callID != "" && c.callID != setup.CallID {
		logger.Warn("connection already serves another call", "connection_id", c.id, "call_id", c.callID, "requested_call_id", setup.CallID)
		c.send(failureFrame)
		return
	}

	if _, err := c.handler.calls.StartCall(ctx, c.id, setup, c); err != nil {
		logger.Error("failed to start call", "connection_id", c.id, "call_id", setup.CallID, "error", err)
		c.send(failureFrame)
		return
	}

	c.callID = setup.CallID
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("call.id", setup.CallID))
	logger.Info("call connected", "call_id", setup.CallID, "connection_id", c.id)
}

// runWriter owns all writes to the websocket.
func (c *connection) runWriter() error {
	writeTimeout := c.handler.writeTimeout

	pingTicker := time.NewTicker(c.handler.pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-c.closed:
			c.flushOnShutdown()
			_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
			return nil
		case <-pingTicker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				c.abort()
				return err
			}
		case data := <-c.outbound:
			if err := c.write(data); err != nil {
				c.abort()
				return err
			}
		}
	}
}

func (c *connection) write(data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.handler.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// abort unblocks the reader after a failed write.
func (c *connection) abort() {
	c.shutdown()
	_ = c.ws.Close()
}

func (c *connection) flushOnShutdown() {
	for i := 0; i < maxShutdownFlushFrames; i++ {
		select {
		case data := <-c.outbound:
			if err := c.write(data); err != nil {
				return
			}
		default:
			return
		}
	}
}
