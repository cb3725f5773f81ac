package openai

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/koscakluka/ema-relay/core/llms/openai"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

var requestDuration, _ = meter.Float64Histogram(
	"llm.request.duration",
	metric.WithDescription("Duration of chat completion requests, until the last chunk for streamed requests"),
	metric.WithUnit("s"),
)
