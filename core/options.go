package orchestration

import (
	"context"
	"time"

	"github.com/koscakluka/ema-relay/core/llms"
	"github.com/koscakluka/ema-relay/core/store"
	"github.com/koscakluka/ema-relay/core/turncompletion"
)

type OrchestratorOption func(*Orchestrator)

// LLM is any of LLMWithStream or LLMWithGeneralPrompt
type LLM any

type LLMWithStream interface {
	PromptWithStream(ctx context.Context, prompt *string, opts ...llms.StreamingPromptOption) llms.Stream
}

type LLMWithGeneralPrompt interface {
	Prompt(ctx context.Context, prompt string, opts ...llms.GeneralPromptOption) (*llms.Message, error)
}

// PromptSource provides the texts the assistant starts a call with
type PromptSource interface {
	WelcomeGreeting() string
	SystemPrompt(now time.Time) string
}

// WithStreamingLLM makes responses stream to the caller fragment by
// fragment.
func WithStreamingLLM(client LLMWithStream) OrchestratorOption {
	return func(o *Orchestrator) {
		o.llm = client
	}
}

// WithLLM makes responses reach the caller as one message once they are
// fully generated.
func WithLLM(client LLMWithGeneralPrompt) OrchestratorOption {
	return func(o *Orchestrator) {
		o.llm = generalOnly{client}
	}
}

// generalOnly hides streaming support of clients that implement both.
type generalOnly struct{ LLMWithGeneralPrompt }

// WithResponseModel overrides the model the LLM client responds with.
func WithResponseModel(model string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.responseModel = model
	}
}

// WithClassifier sets how the orchestrator decides the caller finished
// speaking. Without it the assistant always responds immediately.
func WithClassifier(classifier turncompletion.Classifier) OrchestratorOption {
	return func(o *Orchestrator) {
		if classifier != nil {
			o.classifier = classifier
		}
	}
}

func WithSessionStore(sessions store.SessionStore) OrchestratorOption {
	return func(o *Orchestrator) {
		o.sessions = sessions
	}
}

func WithUserDirectory(users store.UserDirectory) OrchestratorOption {
	return func(o *Orchestrator) {
		o.users = users
	}
}

func WithPrompts(source PromptSource) OrchestratorOption {
	return func(o *Orchestrator) {
		o.prompts = source
	}
}

func WithMetrics(metrics Metrics) OrchestratorOption {
	return func(o *Orchestrator) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

// WithNotDoneWait sets how many seconds the assistant holds back after the
// caller was classified as not done.
func WithNotDoneWait(seconds int) OrchestratorOption {
	return func(o *Orchestrator) {
		if seconds >= 0 {
			o.waitSeconds = seconds
		}
	}
}

// WithSpeakGreeting makes the assistant say the welcome greeting when a
// new call starts.
func WithSpeakGreeting(speak bool) OrchestratorOption {
	return func(o *Orchestrator) {
		o.speakGreeting = speak
	}
}

// WithSummarizer makes the orchestrator store a summary of every call when
// it ends.
func WithSummarizer(summarizer *Summarizer) OrchestratorOption {
	return func(o *Orchestrator) {
		o.summarizer = summarizer
	}
}

// WithBaseContext sets the context every call derives its work from
func WithBaseContext(ctx context.Context) OrchestratorOption {
	return func(o *Orchestrator) {
		if ctx != nil {
			o.baseContext = ctx
		}
	}
}

func withWaitTick(tick time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.waitTick = tick
	}
}

func withClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = now
	}
}
