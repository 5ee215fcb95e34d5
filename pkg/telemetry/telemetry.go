// Package telemetry wires OpenTelemetry tracing for the daemon and offers
// small helpers so call sites stay one-liners. A Manager owns the tracer
// provider and an attribute filter that masks secrets before they reach spans.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/metakeyai/spelld"

// Config controls Manager construction.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Filter         FilterConfig
}

// FilterConfig declares masking applied to span attributes and recorded text.
type FilterConfig struct {
	Mask     string
	Patterns []string
}

// Manager owns the tracer provider lifecycle.
type Manager struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	mask     string
	patterns []*regexp.Regexp
}

var defaultManager atomic.Pointer[Manager]

// NewManager builds a tracer provider. An OTLP HTTP exporter is attached only
// when OTEL_EXPORTER_OTLP_ENDPOINT is set; otherwise spans stay in-process.
func NewManager(cfg Config) (*Manager, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "spelld"
	}
	attrs := []attribute.KeyValue{semconv.ServiceName(name)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentName(cfg.Environment))
	}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); endpoint != "" {
		exporter, err := otlptrace.New(context.Background(), otlptracehttp.NewClient())
		if err != nil {
			return nil, fmt.Errorf("otlp exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	provider := sdktrace.NewTracerProvider(opts...)

	mask := cfg.Filter.Mask
	if mask == "" {
		mask = "***"
	}
	patterns := make([]*regexp.Regexp, 0, len(cfg.Filter.Patterns)+1)
	patterns = append(patterns, regexp.MustCompile(`(?i)(sk-[a-z0-9-]{8,}|api[_-]?key\s*[=:]\s*\S+)`))
	for _, p := range cfg.Filter.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("filter pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}
	return &Manager{
		provider: provider,
		tracer:   provider.Tracer(instrumentationName),
		mask:     mask,
		patterns: patterns,
	}, nil
}

// SetDefault exposes the manager to the package-level helpers.
func SetDefault(m *Manager) {
	defaultManager.Store(m)
}

// Shutdown flushes and stops the tracer provider.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

// StartSpan opens a span on the manager's tracer.
func (m *Manager) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if m == nil {
		return StartSpan(ctx, name, opts...)
	}
	return m.tracer.Start(ctx, name, opts...)
}

// MaskText applies the filter patterns to free-form text.
func (m *Manager) MaskText(text string) string {
	if m == nil {
		return text
	}
	for _, re := range m.patterns {
		text = re.ReplaceAllString(text, m.mask)
	}
	return text
}

// SanitizeAttributes masks string attribute values in place-safe copies.
func (m *Manager) SanitizeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	if m == nil {
		return attrs
	}
	out := make([]attribute.KeyValue, len(attrs))
	for i, kv := range attrs {
		if kv.Value.Type() == attribute.STRING {
			out[i] = attribute.String(string(kv.Key), m.MaskText(kv.Value.AsString()))
			continue
		}
		out[i] = kv
	}
	return out
}

// StartSpan opens a span on the default manager, falling back to the global
// tracer provider when none is registered.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if m := defaultManager.Load(); m != nil {
		return m.tracer.Start(ctx, name, opts...)
	}
	return otel.Tracer(instrumentationName).Start(ctx, name, opts...)
}

// EndSpan records err (if any) and ends the span.
func EndSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// SanitizeAttributes masks attributes through the default manager when present.
func SanitizeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	if m := defaultManager.Load(); m != nil {
		return m.SanitizeAttributes(attrs...)
	}
	return attrs
}
