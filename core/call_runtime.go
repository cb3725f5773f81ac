package orchestration

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koscakluka/ema-relay/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const callEventQueueCapacity = 32

type eventQueueItem struct {
	event    events.Event
	queuedAt time.Time
}

// Call is a single call in progress. All of its session state is changed
// by one goroutine that takes inbound events off a queue in arrival order.
type Call struct {
	id           string
	connID       string
	orchestrator *Orchestrator
	sink         Sink
	startedAt    time.Time

	baseContext context.Context
	cancelBase  context.CancelFunc

	mu          sync.RWMutex
	session     CallSession
	generations uint64

	queue   chan eventQueueItem
	closeCh chan struct{}
	done    chan struct{}

	startOnce sync.Once
	endOnce   sync.Once
	started   atomic.Bool

	// workers tracks generation goroutines.
	workers sync.WaitGroup
}

func newCall(o *Orchestrator, callID, connID string, sink Sink) *Call {
	if sink == nil {
		sink = noopSink{}
	}

	ctx, cancel := context.WithCancel(o.baseContext)
	return &Call{
		id:           callID,
		connID:       connID,
		orchestrator: o,
		sink:         sink,
		startedAt:    o.now(),
		baseContext:  ctx,
		cancelBase:   cancel,
		session:      CallSession{CallID: callID, State: StateUninitialized},
		queue:        make(chan eventQueueItem, callEventQueueCapacity),
		closeCh:      make(chan struct{}),
		done:         make(chan struct{}),
	}
}

func (c *Call) ID() string {
	return c.id
}

// Session returns a copy of the call's current session
func (c *Call) Session() CallSession {
	c.mu.RLock()
	defer c.mu.RUnlock()

	session := c.session
	session.Log = session.Log.Clone()
	return session
}

// Done is closed once the call stopped processing events.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

func (c *Call) start() {
	c.startOnce.Do(func() {
		if c.isClosed() {
			return
		}

		c.started.Store(true)
		go func() {
			defer close(c.done)

			for {
				select {
				case <-c.closeCh:
					return
				case queuedEvent := <-c.queue:
					if c.isClosed() {
						return
					}
					c.processQueuedEvent(queuedEvent)
				}
			}
		}()
	})
}

// close stops the call and waits for its goroutines to exit. It returns
// false if the call was already closed.
func (c *Call) close() (closed bool) {
	c.endOnce.Do(func() {
		closed = true
		close(c.closeCh)

		c.mu.RLock()
		generation := c.session.generation
		c.mu.RUnlock()
		generation.Cancel()
		c.cancelBase()

		if c.started.Load() {
			<-c.done
		}
		c.workers.Wait()

		// A response that reached the caller but was not recorded yet is
		// still part of the conversation.
		c.mu.RLock()
		pending := c.session.generation
		c.mu.RUnlock()
		if text, completed := pending.Completed(); completed {
			c.applyCompletedGeneration(context.WithoutCancel(c.baseContext), pending, text)
		}

		c.mu.Lock()
		c.session.generation = nil
		c.session.State = StateClosed
		c.mu.Unlock()
	})
	return closed
}

// enqueue queues event for processing. Events for a closed call are
// dropped and enqueue returns false.
func (c *Call) enqueue(event events.Event) bool {
	if c.isClosed() {
		logger.Debug("dropping event for closed call", "call_id", c.id, "kind", string(event.Kind()))
		return false
	}

	queueItem := eventQueueItem{event: event, queuedAt: time.Now()}
	select {
	case <-c.closeCh:
		return false
	case c.queue <- queueItem:
		return true
	}
}

func (c *Call) isClosed() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}

func (c *Call) processQueuedEvent(queuedEvent eventQueueItem) {
	event := queuedEvent.event

	ctx, span := tracer.Start(c.baseContext, "process call event", trace.WithAttributes(
		attribute.String("call.id", c.id),
		attribute.String("call.event_kind", event.Kind().String()),
		attribute.Int64("call.event_age_ms", events.Age(event, time.Now()).Milliseconds()),
	))
	defer span.End()

	queuedTime := time.Since(queuedEvent.queuedAt).Seconds()
	span.SetAttributes(attribute.Float64("call.queued_time", queuedTime))

	var err error
	switch typedEvent := event.(type) {
	case events.Setup:
		c.orchestrator.metrics.EventReceived(typedEvent.Kind())
		err = c.handleSetup(ctx, typedEvent)
	case events.Prompt:
		c.orchestrator.metrics.EventReceived(typedEvent.Kind())
		err = c.handlePrompt(ctx, typedEvent)
	case events.Interrupt:
		c.orchestrator.metrics.EventReceived(typedEvent.Kind())
		err = c.handleInterrupt(ctx, typedEvent)
	case generationStarted:
		c.handleGenerationStarted(typedEvent)
	case generationFinished:
		err = c.handleGenerationFinished(ctx, typedEvent)
	default:
		logger.Warn("unsupported call event", "call_id", c.id, "kind", string(event.Kind()))
	}

	if err != nil {
		err := fmt.Errorf("failed to process %s: %w", event.Kind(), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func (c *Call) emit(event events.Event) {
	c.sink.Emit(event)
}
