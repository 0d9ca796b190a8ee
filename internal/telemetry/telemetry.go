package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// Options selects the log format and the trace exporter.
type Options struct {
	Service      string
	LogFormat    string
	OTLPEndpoint string
}

// Telemetry owns the process-wide log output and tracer provider.
type Telemetry struct {
	service string
	tp      *sdktrace.TracerProvider
}

// Setup points the standard logger at a JSON writer when LogFormat is "json" and installs
// an OTLP tracer provider when an endpoint is given. Both are optional.
func Setup(ctx context.Context, opts Options) (*Telemetry, error) {
	if opts.Service == "" {
		opts.Service = "classroll"
	}
	if strings.EqualFold(opts.LogFormat, "json") {
		log.SetFlags(0)
		log.SetOutput(NewJSONLogWriter(opts.Service, os.Stdout))
	}

	t := &Telemetry{service: opts.Service}
	if opts.OTLPEndpoint == "" {
		return t, nil
	}

	exporter, err := newTraceExporter(ctx, opts.OTLPEndpoint)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(opts.Service)))
	if err != nil {
		return nil, fmt.Errorf("telemetry: create resource: %w", err)
	}
	t.tp = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(t.tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return t, nil
}

// Handler wraps h with OpenTelemetry server instrumentation when tracing is enabled.
func (t *Telemetry) Handler(h http.Handler) http.Handler {
	if t == nil || t.tp == nil {
		return h
	}
	return otelhttp.NewHandler(h, t.service)
}

// Shutdown flushes pending spans.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.tp == nil {
		return nil
	}
	return t.tp.Shutdown(ctx)
}

func newTraceExporter(ctx context.Context, endpoint string) (*otlptrace.Exporter, error) {
	var opts []otlptracehttp.Option

	parsed, err := url.Parse(endpoint)
	if err == nil && parsed.Scheme != "" {
		if parsed.Host == "" {
			return nil, fmt.Errorf("invalid OTLP endpoint: %s", endpoint)
		}
		opts = append(opts, otlptracehttp.WithEndpoint(parsed.Host))
		if parsed.Path != "" && parsed.Path != "/" {
			opts = append(opts, otlptracehttp.WithURLPath(parsed.Path))
		}
		if parsed.Scheme == "http" {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
	} else {
		opts = append(opts, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	}
	return otlptracehttp.New(ctx, opts...)
}

// JSONLogWriter turns standard logger lines into one JSON object per line.
type JSONLogWriter struct {
	mu      sync.Mutex
	service string
	out     io.Writer
	now     func() time.Time
}

func NewJSONLogWriter(service string, out io.Writer) *JSONLogWriter {
	if out == nil {
		out = os.Stdout
	}
	return &JSONLogWriter{service: service, out: out, now: time.Now}
}

func (w *JSONLogWriter) Write(p []byte) (int, error) {
	level, message := parseLevel(string(p))
	entry := map[string]string{
		"ts":      w.now().UTC().Format(time.RFC3339Nano),
		"level":   level,
		"service": w.service,
		"msg":     message,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.out.Write(append(data, '\n')); err != nil {
		return 0, err
	}
	return len(p), nil
}

// parseLevel recognises "[warn] msg", "error: msg" and "WARN msg" prefixes.
func parseLevel(message string) (string, string) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return "INFO", ""
	}
	if strings.HasPrefix(trimmed, "[") {
		if idx := strings.Index(trimmed, "]"); idx > 1 {
			if level := strings.ToUpper(trimmed[1:idx]); isLevel(level) {
				return level, strings.TrimSpace(trimmed[idx+1:])
			}
		}
	}
	if idx := strings.Index(trimmed, ":"); idx > 0 {
		if level := strings.ToUpper(strings.TrimSpace(trimmed[:idx])); isLevel(level) {
			return level, strings.TrimSpace(trimmed[idx+1:])
		}
	}
	if fields := strings.Fields(trimmed); len(fields) > 1 {
		if level := strings.ToUpper(fields[0]); isLevel(level) {
			return level, strings.TrimSpace(trimmed[len(fields[0]):])
		}
	}
	return "INFO", trimmed
}

func isLevel(level string) bool {
	switch level {
	case "INFO", "ERROR", "WARN", "WARNING", "DEBUG":
		return true
	default:
		return false
	}
}
