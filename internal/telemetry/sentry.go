// Package telemetry wraps Sentry error reporting and tracing for the chat
// service. Every helper is a no-op when Sentry has not been initialised.
package telemetry

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cloo-solutions/fhirchat/internal/logging"
	"github.com/getsentry/sentry-go"
)

const (
	serviceName  = "fhirchat"
	flushTimeout = 5 * time.Second

	redacted = "[redacted]"
)

// Config holds the configuration for Sentry initialization.
type Config struct {
	DSN              string
	Environment      string
	Release          string
	TracesSampleRate float64
	Debug            bool
}

// Init initializes Sentry and returns a function that flushes pending
// events. An empty DSN disables reporting. A failed init is logged and
// treated the same way; telemetry never stops the service from starting.
func Init(cfg Config, log *logging.Logger) (func(), error) {
	noop := func() {}
	if cfg.DSN == "" {
		return noop, nil
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.TracesSampleRate <= 0 {
		cfg.TracesSampleRate = SampleRateFor(cfg.Environment)
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:           cfg.DSN,
		Environment:   cfg.Environment,
		Release:       cfg.Release,
		ServerName:    serviceName,
		Debug:         cfg.Debug,
		EnableTracing: true,
		TracesSampler: sampler(cfg.TracesSampleRate),
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return scrubEvent(event)
		},
	})
	if err != nil {
		log.Warn().Err(err).Msg("sentry: failed to initialize, continuing without telemetry")
		return noop, nil
	}

	log.Info().
		Str("environment", cfg.Environment).
		Float64("sample_rate", cfg.TracesSampleRate).
		Msg("sentry: initialized")
	return func() { sentry.Flush(flushTimeout) }, nil
}

// SampleRateFor returns the trace sample rate used for an environment:
// everything in development, 10% elsewhere.
func SampleRateFor(environment string) float64 {
	if environment == "" || environment == "development" {
		return 1.0
	}
	return 0.1
}

// sampler drops health checks and CORS preflights and keeps child spans
// consistent with their parent.
func sampler(rate float64) sentry.TracesSampler {
	return func(ctx sentry.SamplingContext) float64 {
		if ctx.Span == nil {
			return rate
		}
		name := ctx.Span.Name
		if strings.HasSuffix(name, " /health") || strings.HasPrefix(name, http.MethodOptions+" ") {
			return 0.0
		}
		var root sentry.SpanID
		if ctx.Span.ParentSpanID != root {
			if ctx.Span.Sampled.Bool() {
				return 1.0
			}
			return 0.0
		}
		return rate
	}
}

// scrubEvent keeps visitor messages and credentials out of reported
// events. Chat bodies carry free text typed by site visitors.
func scrubEvent(event *sentry.Event) *sentry.Event {
	if event == nil {
		return nil
	}
	if event.Request != nil {
		event.Request.Data = ""
		event.Request.Cookies = ""
		for k := range event.Request.Headers {
			switch strings.ToLower(k) {
			case "authorization", "cookie":
				event.Request.Headers[k] = redacted
			}
		}
	}
	for _, key := range []string{"query", "message", "comment"} {
		if _, ok := event.Extra[key]; ok {
			event.Extra[key] = redacted
		}
	}
	return event
}

// SpanAttributes are the correlation fields attached to pipeline spans.
type SpanAttributes struct {
	SessionID string
	MessageID string
	Operation string
}

// Span wraps a sentry span. A zero Span is valid and does nothing.
type Span struct {
	inner *sentry.Span
}

func (s *Span) End() {
	if s.inner != nil {
		s.inner.Finish()
	}
}

func (s *Span) SetStatus(status sentry.SpanStatus) {
	if s.inner != nil {
		s.inner.Status = status
	}
}

func (s *Span) SetData(key string, value any) {
	if s.inner != nil {
		s.inner.SetData(key, value)
	}
}

// SetError marks the span as failed and reports err on the span's hub.
func (s *Span) SetError(err error) {
	if s.inner == nil || err == nil {
		return
	}
	s.inner.Status = sentry.SpanStatusInternalError
	if hub := sentry.GetHubFromContext(s.inner.Context()); hub != nil {
		hub.CaptureException(err)
	}
}

func (s *Span) Context() context.Context {
	if s.inner != nil {
		return s.inner.Context()
	}
	return context.Background()
}

// StartSpan starts a child of the span in ctx, or a new transaction when
// ctx carries none.
func StartSpan(ctx context.Context, name string, attrs SpanAttributes) (context.Context, *Span) {
	var span *sentry.Span
	if parent := sentry.SpanFromContext(ctx); parent != nil {
		span = parent.StartChild(attrs.op(name))
		span.Description = name
	} else {
		span = sentry.StartSpan(ctx, attrs.op(name), sentry.WithTransactionName(name))
	}

	if attrs.SessionID != "" {
		span.SetTag("session_id", attrs.SessionID)
	}
	if attrs.MessageID != "" {
		span.SetTag("message_id", attrs.MessageID)
	}

	return span.Context(), &Span{inner: span}
}

func (a SpanAttributes) op(name string) string {
	if a.Operation != "" {
		return a.Operation
	}
	return name
}

// StartTransaction always starts a new root span, for work that runs
// outside a request such as background jobs.
func StartTransaction(ctx context.Context, name, op string) (context.Context, *Span) {
	opts := []sentry.SpanOption{sentry.WithTransactionName(name)}
	if op == "" {
		op = name
	}
	span := sentry.StartSpan(ctx, op, opts...)
	return span.Context(), &Span{inner: span}
}

func hubFrom(ctx context.Context) *sentry.Hub {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		return hub
	}
	return sentry.CurrentHub()
}

// CaptureError reports err on the hub bound to ctx.
func CaptureError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	hubFrom(ctx).CaptureException(err)
}

// CaptureMessage reports a warning-level message on the hub bound to ctx.
func CaptureMessage(ctx context.Context, message string) {
	hub := hubFrom(ctx)
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelWarning)
		hub.CaptureMessage(message)
	})
}

// AddBreadcrumb records a pipeline step on the hub bound to ctx.
func AddBreadcrumb(ctx context.Context, category, message string) {
	hubFrom(ctx).AddBreadcrumb(&sentry.Breadcrumb{
		Type:      "default",
		Category:  category,
		Message:   message,
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	}, nil)
}
