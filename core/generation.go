package orchestration

import (
	"context"
	"errors"
	"time"

	"github.com/koscakluka/ema-relay/core/conversations"
	"github.com/koscakluka/ema-relay/core/events"
	"github.com/koscakluka/ema-relay/core/llms"
	"github.com/koscakluka/ema-relay/core/turncompletion"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// beginGeneration supersedes the in-flight generation, if any, and starts
// responding to log.
func (c *Call) beginGeneration(ctx context.Context, log conversations.Log) *CancellationHandle {
	generationCtx, cancel := context.WithCancel(c.baseContext)
	generationCtx = trace.ContextWithSpan(generationCtx, trace.SpanFromContext(ctx))

	c.mu.Lock()
	previous := c.session.generation
	c.generations++
	handle := newCancellationHandle(c.generations, cancel)
	c.session.generation = handle
	c.mu.Unlock()

	previous.Cancel()

	snapshot := log.Clone()
	c.workers.Add(1)
	go func() {
		defer c.workers.Done()

		run := panicSafeNamedWorker("response generation", func(ctx context.Context) error {
			return c.generate(ctx, handle, snapshot)
		})
		err := run(generationCtx)
		cancel()

		c.enqueue(generationFinished{
			Base:   events.NewBase(kindGenerationFinished),
			handle: handle,
			err:    err,
		})
	}()

	return handle
}

// supersedeGeneration ends the in-flight generation before a new event
// changes the conversation. A generation that already completed is applied
// to the conversation instead of being discarded.
func (c *Call) supersedeGeneration(ctx context.Context) {
	c.mu.RLock()
	handle := c.session.generation
	c.mu.RUnlock()

	if handle == nil {
		return
	}

	if handle.Cancel() {
		c.clearGeneration(handle)
		c.orchestrator.metrics.GenerationFinished(OutcomeCancelled, c.orchestrator.now().Sub(handle.startedAt))
		c.emit(events.NewTurnCancelled())
		trace.SpanFromContext(ctx).AddEvent("generation cancelled", trace.WithAttributes(
			attribute.Int64("generation.id", int64(handle.ID())),
		))
		return
	}

	if text, completed := handle.Completed(); completed {
		c.applyCompletedGeneration(ctx, handle, text)
		return
	}

	c.clearGeneration(handle)
}

func (c *Call) clearGeneration(handle *CancellationHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.generation != handle {
		return
	}
	c.session.generation = nil
	if c.session.State == StateGenerating {
		c.session.State = StateReady
	}
}

func (c *Call) applyCompletedGeneration(ctx context.Context, handle *CancellationHandle, text string) error {
	c.clearGeneration(handle)
	c.orchestrator.metrics.GenerationFinished(OutcomeCompleted, c.orchestrator.now().Sub(handle.startedAt))

	if text == "" {
		return nil
	}

	log := c.conversation().Append(llms.AssistantTurn(text))
	c.setConversation(log)
	return c.persist(ctx, log)
}

func (c *Call) generate(ctx context.Context, handle *CancellationHandle, log conversations.Log) error {
	ctx, span := tracer.Start(ctx, "generate response", trace.WithAttributes(
		attribute.String("call.id", c.id),
		attribute.Int64("generation.id", int64(handle.ID())),
	))
	defer span.End()

	decision := c.orchestrator.classifier.IsDone(ctx, log)
	c.orchestrator.metrics.ClassifierDecision(decision)
	span.SetAttributes(attribute.String("turn_completion.decision", decision.String()))

	if decision == turncompletion.NotDone && !c.awaitTurnCompletion(ctx, handle) {
		span.AddEvent("superseded while waiting")
		return ErrGenerationCancelled
	}
	if handle.Cancelled() {
		return ErrGenerationCancelled
	}

	c.enqueue(generationStarted{Base: events.NewBase(kindGenerationStarted), handle: handle})

	if err := c.respond(ctx, handle, log); err != nil {
		if !errors.Is(err, ErrGenerationCancelled) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	}
	return nil
}

// awaitTurnCompletion holds the response back for the configured number of
// seconds, giving the caller time to continue. It returns false if the
// generation was superseded in the meantime.
func (c *Call) awaitTurnCompletion(ctx context.Context, handle *CancellationHandle) bool {
	tick := c.orchestrator.waitTick
	if tick <= 0 {
		tick = defaultWaitTick
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for remaining := c.orchestrator.waitSeconds; remaining > 0; remaining-- {
		logger.Debug("waiting for caller to continue", "call_id", c.id, "remaining_seconds", remaining)
		select {
		case <-handle.Done():
			return false
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}

	return !handle.Cancelled()
}
