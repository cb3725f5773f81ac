package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/koscakluka/ema-relay/core/conversations"
	"github.com/koscakluka/ema-relay/core/events"
	"github.com/koscakluka/ema-relay/core/llms"
	"github.com/koscakluka/ema-relay/core/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// FailureMessage is sent to the caller whenever a turn could not be
// processed.
const FailureMessage = "Failed to process message"

func (c *Call) state() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.State
}

func (c *Call) conversation() conversations.Log {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.Log
}

func (c *Call) setConversation(log conversations.Log) {
	c.mu.Lock()
	c.session.Log = log
	c.mu.Unlock()
}

func (c *Call) handleSetup(ctx context.Context, setup events.Setup) error {
	if state := c.state(); state != StateUninitialized {
		logger.Debug("ignoring repeated setup", "call_id", c.id, "state", state.String())
		return nil
	}

	o := c.orchestrator
	phoneNumber := setup.From
	if phoneNumber == "" {
		phoneNumber = store.DefaultPhoneNumber
	}

	userID, err := o.users.GetOrCreateUser(ctx, phoneNumber)
	if err != nil {
		return c.storeFailed(ctx, "get_or_create_user", err)
	}

	log, err := o.sessions.CreateIfAbsent(ctx, userID, c.id)
	if err != nil {
		return c.storeFailed(ctx, "create_session", err)
	}

	seeded := false
	if len(log) == 0 && o.prompts != nil {
		log = log.WithSystemTurn(o.prompts.SystemPrompt(o.now()))
		seeded = true

		if greeting := o.prompts.WelcomeGreeting(); o.speakGreeting && greeting != "" {
			c.emit(events.NewPartialText(greeting))
			c.emit(events.NewEndOfTurn())
			log = log.Append(llms.AssistantTurn(greeting))
		}
	}

	c.mu.Lock()
	c.session.UserID = userID
	c.session.Log = log
	c.session.State = StateReady
	c.mu.Unlock()

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("call.user_id", userID),
		attribute.Int("call.resumed_turns", len(log)),
	)
	logger.Info("call started", "call_id", c.id, "user_id", userID, "turns", len(log))

	if seeded {
		return c.persist(ctx, log)
	}
	return nil
}

func (c *Call) handlePrompt(ctx context.Context, prompt events.Prompt) error {
	if state := c.state(); state == StateUninitialized {
		logger.Warn("dropping prompt received before setup", "call_id", c.id)
		return nil
	}

	utterance := strings.TrimSpace(prompt.Utterance)
	if utterance == "" {
		logger.Debug("dropping empty prompt", "call_id", c.id)
		return nil
	}

	c.supersedeGeneration(ctx)

	log := c.conversation().Append(llms.UserTurn(utterance))
	if aggregated, changed := conversations.Aggregate(log); changed {
		log = aggregated
	} else if collapsed, changed := conversations.CollapseTrailingUserTurns(log); changed {
		log = collapsed
	}
	c.setConversation(log)

	if err := c.persist(ctx, log); err != nil {
		return err
	}

	c.beginGeneration(ctx, log)
	return nil
}

func (c *Call) handleInterrupt(ctx context.Context, interrupt events.Interrupt) error {
	if state := c.state(); state == StateUninitialized {
		logger.Warn("dropping interrupt received before setup", "call_id", c.id)
		return nil
	}

	c.supersedeGeneration(ctx)

	reconciled, changed := conversations.Reconcile(c.conversation(), interrupt.SpokenSoFar)
	c.orchestrator.metrics.Interruption(changed)
	trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("call.interruption_matched", changed))
	if !changed {
		return nil
	}

	c.setConversation(reconciled)
	return c.persist(ctx, reconciled)
}

func (c *Call) handleGenerationStarted(started generationStarted) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.generation == started.handle && !started.handle.Cancelled() {
		c.session.State = StateGenerating
	}
}

func (c *Call) handleGenerationFinished(ctx context.Context, finished generationFinished) error {
	c.mu.RLock()
	current := c.session.generation
	c.mu.RUnlock()

	handle := finished.handle
	if current != handle {
		logger.Debug("discarding superseded generation", "call_id", c.id, "generation", handle.ID())
		return nil
	}

	if text, completed := handle.Completed(); completed {
		return c.applyCompletedGeneration(ctx, handle, text)
	}

	c.clearGeneration(handle)
	if handle.Cancelled() || errors.Is(finished.err, ErrGenerationCancelled) {
		c.orchestrator.metrics.GenerationFinished(OutcomeCancelled, c.orchestrator.now().Sub(handle.startedAt))
		return nil
	}

	err := finished.err
	if err == nil {
		err = errors.New("generation ended without a response")
	}
	c.orchestrator.metrics.GenerationFinished(OutcomeFailed, c.orchestrator.now().Sub(handle.startedAt))
	logger.Error("failed to generate response", "call_id", c.id, "generation", handle.ID(), "error", err)
	handle.emit(func() { c.emit(events.NewTurnFailed(FailureMessage)) })
	return err
}

// persist saves log to the session store. Failures are reported to the
// caller.
func (c *Call) persist(ctx context.Context, log conversations.Log) error {
	if err := c.orchestrator.sessions.Save(ctx, c.id, log); err != nil {
		return c.storeFailed(ctx, "save", err)
	}
	return nil
}

func (c *Call) storeFailed(ctx context.Context, operation string, err error) error {
	err = fmt.Errorf("failed to %s: %w", strings.ReplaceAll(operation, "_", " "), err)

	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.Error("session store failure", "call_id", c.id, "operation", operation, "error", err)

	c.orchestrator.metrics.StoreFailure(operation)
	c.emit(events.NewTurnFailed(FailureMessage))
	return err
}
