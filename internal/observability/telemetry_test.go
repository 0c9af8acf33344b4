package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitTelemetryInstallsProvider(t *testing.T) {
	// Экспортер подключается лениво, коллектор для инициализации не нужен
	shutdown, err := InitTelemetry(context.Background(), Options{
		ServiceName: "grid-test",
		Endpoint:    "127.0.0.1:4318",
		Insecure:    true,
	})
	require.NoError(t, err)
	assert.IsType(t, &sdktrace.TracerProvider{}, otel.GetTracerProvider())

	_, span := Tracer().Start(context.Background(), "probe")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	// Экспорт в отсутствующий коллектор может завершиться ошибкой; главное, не зависнуть
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = shutdown(ctx)
}

func TestNoopShutdown(t *testing.T) {
	assert.NoError(t, Noop()(context.Background()))
	assert.Equal(t, "localhost:4318", endpointOrDefault(""))
	assert.Equal(t, "otel:4318", endpointOrDefault("otel:4318"))
}
