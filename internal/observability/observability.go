// Package observability configures the process-wide slog logger.
//
// Logs always go to stderr in text or JSON form. When an OTLP endpoint
// is configured through the standard OTEL_* environment variables, log
// records are additionally exported through the OpenTelemetry log
// bridge, filtered to the configured minimum severity.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// scopeName identifies this instrumentation in exported log records.
const scopeName = "github.com/sineways/anymoment-cli"

// loggerProvider is retained for flushing at process exit.
var loggerProvider *sdklog.LoggerProvider

// Instrument installs the default slog logger: a stderr handler in the
// given format, plus an OTel export pipeline when one is configured via
// the environment.
func Instrument(level slog.Level, format string) error {
	opts := &slog.HandlerOptions{Level: level}

	var console slog.Handler
	switch format {
	case "json":
		console = slog.NewJSONHandler(os.Stderr, opts)
	default:
		console = slog.NewTextHandler(os.Stderr, opts)
	}

	exporter, err := newExporterFromEnv()
	if err != nil {
		return fmt.Errorf("creating log exporter: %w", err)
	}
	if exporter == nil {
		slog.SetDefault(slog.New(console))
		return nil
	}

	// Simple (non-batching) processing: CLI invocations are short-lived
	// and must not lose records to an unflushed batch.
	processor := minsev.NewLogProcessor(sdklog.NewSimpleProcessor(exporter), severity(level))
	loggerProvider = sdklog.NewLoggerProvider(sdklog.WithProcessor(processor))

	bridge := otelslog.NewHandler(scopeName, otelslog.WithLoggerProvider(loggerProvider))
	slog.SetDefault(slog.New(teeHandler{console, bridge}))
	return nil
}

// Shutdown flushes any configured export pipeline. Safe to call when
// Instrument never set one up.
func Shutdown(ctx context.Context) error {
	if loggerProvider == nil {
		return nil
	}
	return loggerProvider.Shutdown(ctx)
}

// newExporterFromEnv builds a log exporter per the OTEL_LOGS_EXPORTER
// and OTEL_EXPORTER_OTLP_* conventions. Returns nil when export is not
// configured.
func newExporterFromEnv() (sdklog.Exporter, error) {
	ctx := context.Background()

	switch os.Getenv("OTEL_LOGS_EXPORTER") {
	case "console":
		return stdoutlog.New()
	case "none":
		return nil, nil
	case "otlp":
	default:
		// Export only when an endpoint is explicitly configured.
		if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" &&
			os.Getenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT") == "" {
			return nil, nil
		}
	}

	if os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL") == "grpc" {
		return otlploggrpc.New(ctx)
	}
	return otlploghttp.New(ctx)
}

// severity maps an slog level onto the minimum OTel severity exported.
func severity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}

// teeHandler fans records out to both the console and the bridge.
type teeHandler struct {
	console slog.Handler
	bridge  slog.Handler
}

var _ slog.Handler = teeHandler{}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return t.console.Enabled(ctx, level) || t.bridge.Enabled(ctx, level)
}

func (t teeHandler) Handle(ctx context.Context, rec slog.Record) error {
	var firstErr error
	if t.console.Enabled(ctx, rec.Level) {
		firstErr = t.console.Handle(ctx, rec.Clone())
	}
	if t.bridge.Enabled(ctx, rec.Level) {
		if err := t.bridge.Handle(ctx, rec.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return teeHandler{t.console.WithAttrs(attrs), t.bridge.WithAttrs(attrs)}
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return teeHandler{t.console.WithGroup(name), t.bridge.WithGroup(name)}
}
