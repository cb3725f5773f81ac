package telemetry

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/koscakluka/ema-relay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log/global"
)

func saveAndRestoreGlobalProviders(t *testing.T) {
	t.Helper()
	origTP := otel.GetTracerProvider()
	origMP := otel.GetMeterProvider()
	origLP := global.GetLoggerProvider()
	origLogger := slog.Default()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
		global.SetLoggerProvider(origLP)
		slog.SetDefault(origLogger)
	})
}

func TestInitDisabledInstallsOnlyLogs(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	p, err := Init(context.Background(), config.TelemetryConfig{ServiceName: "ema-relay-test", StdoutLogs: true})
	require.NoError(t, err)

	assert.Nil(t, p.tp)
	assert.Nil(t, p.mp)
	assert.NotNil(t, p.lp)
	assert.Same(t, p.lp, global.GetLoggerProvider())

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestInitWithoutLogs(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	p, err := Init(context.Background(), config.TelemetryConfig{ServiceName: "ema-relay-test"})
	require.NoError(t, err)

	assert.Nil(t, p.lp)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInitEnabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	p, err := Init(context.Background(), config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "ema-relay-test",
		SampleRate:   0.5,
	})
	require.NoError(t, err)
	require.NotNil(t, p.tp)
	require.NotNil(t, p.mp)
	assert.Same(t, p.tp, otel.GetTracerProvider())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	// nothing listens on the endpoint, flushing may fail
	_ = p.Shutdown(ctx)
}

func TestShutdownNilProviders(t *testing.T) {
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.NoError(t, (&Providers{}).Shutdown(context.Background()))
}
