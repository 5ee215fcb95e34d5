package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestNewManagerDefaults(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	mgr, err := NewManager(Config{ServiceName: "spelld-test", ServiceVersion: "0.0.1", Environment: "test"})
	require.NoError(t, err)
	defer func() { _ = mgr.Shutdown(context.Background()) }()

	ctx, span := mgr.StartSpan(context.Background(), "test.span")
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	EndSpan(span, nil)
}

func TestNewManagerRejectsBadPattern(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	_, err := NewManager(Config{Filter: FilterConfig{Patterns: []string{"["}}})
	assert.Error(t, err)
}

func TestMaskText(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	mgr, err := NewManager(Config{Filter: FilterConfig{
		Mask:     "[redacted]",
		Patterns: []string{`secret-\w+`},
	}})
	require.NoError(t, err)

	masked := mgr.MaskText("key sk-abcdef123456 and secret-token here")
	assert.NotContains(t, masked, "sk-abcdef123456")
	assert.NotContains(t, masked, "secret-token")
	assert.Contains(t, masked, "[redacted]")
}

func TestSanitizeAttributes(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	mgr, err := NewManager(Config{})
	require.NoError(t, err)

	out := mgr.SanitizeAttributes(
		attribute.String("llm.key", "api_key=sk-verysecret1234"),
		attribute.Int("count", 3),
	)
	require.Len(t, out, 2)
	assert.NotContains(t, out[0].Value.AsString(), "sk-verysecret1234")
	assert.Equal(t, int64(3), out[1].Value.AsInt64())
}

func TestEndSpanTolerantOfNil(t *testing.T) {
	EndSpan(nil, errors.New("ignored"))
}

func TestPackageHelpersWithoutDefault(t *testing.T) {
	SetDefault(nil)
	ctx, span := StartSpan(context.Background(), "fallback.span")
	require.NotNil(t, ctx)
	EndSpan(span, errors.New("recorded"))

	attrs := SanitizeAttributes(attribute.String("k", "v"))
	assert.Equal(t, "v", attrs[0].Value.AsString())
}
