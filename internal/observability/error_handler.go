// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, and Sentry error reporting for ctxpack.
package observability

import (
	"context"
	"runtime"
	"time"

	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ctxpack/ctxpack/internal/ctxerrors"
)

// ErrorContext carries the request/operation context attached to a reported error.
type ErrorContext struct {
	RequestID string
	TraceID   string
	SpanID    string
	Operation string // e.g. "indexer.index", "search.hybrid", "agent.step"
	UserID    string
	ResourceID string

	Duration time.Duration
	Kind     ctxerrors.Kind

	Tags  map[string]string
	Extra map[string]interface{}
}

// ErrorHandler reports errors consistently across logging, metrics, Sentry, and tracing.
type ErrorHandler struct {
	logger        *Logger
	metrics       *MetricsCollector
	sentryEnabled bool
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger *Logger, metrics *MetricsCollector, sentryEnabled bool) *ErrorHandler {
	return &ErrorHandler{logger: logger, metrics: metrics, sentryEnabled: sentryEnabled}
}

// HandleError logs, counts, and (optionally) reports an error with context.
// A nil err is treated as a successful-completion log line.
func (eh *ErrorHandler) HandleError(ctx context.Context, err error, errCtx ErrorContext) {
	if err == nil {
		eh.logger.InfoContext(ctx, "operation completed",
			"operation", errCtx.Operation,
			"resource_id", errCtx.ResourceID,
			"duration_ms", errCtx.Duration.Milliseconds(),
		)
		return
	}

	kind := errCtx.Kind
	if kind == "" {
		var ce *ctxerrors.Error
		if e, ok := err.(*ctxerrors.Error); ok {
			ce = e
		}
		if ce != nil {
			kind = ce.Kind
		}
	}

	eh.logger.ErrorContext(ctx, "operation failed",
		"error", err.Error(),
		"kind", string(kind),
		"operation", errCtx.Operation,
		"resource_id", errCtx.ResourceID,
		"duration_ms", errCtx.Duration.Milliseconds(),
	)

	if eh.metrics != nil && errCtx.Operation != "" {
		eh.metrics.RecordIndexerError(string(kind))
	}

	if eh.sentryEnabled {
		eh.reportToSentry(ctx, err, errCtx, kind)
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(
			attribute.String("error.kind", string(kind)),
			attribute.String("operation", errCtx.Operation),
		)
	}
}

func (eh *ErrorHandler) reportToSentry(ctx context.Context, err error, errCtx ErrorContext, kind ctxerrors.Kind) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelError)
		scope.SetTag("error_kind", string(kind))
		scope.SetTag("service", "ctxpack")

		if errCtx.Operation != "" {
			scope.SetTag("operation", errCtx.Operation)
		}
		if errCtx.RequestID != "" {
			scope.SetTag("request_id", errCtx.RequestID)
		}
		if errCtx.ResourceID != "" {
			scope.SetTag("resource_id", errCtx.ResourceID)
		}
		if errCtx.UserID != "" {
			scope.SetUser(sentry.User{ID: errCtx.UserID})
		}
		for k, v := range errCtx.Tags {
			scope.SetTag(k, v)
		}
		if errCtx.Duration > 0 {
			scope.SetContext("performance", map[string]interface{}{
				"duration_ms": errCtx.Duration.Milliseconds(),
			})
		}
		if len(errCtx.Extra) > 0 {
			scope.SetContext("extra", errCtx.Extra)
		}

		pc := make([]uintptr, 10)
		n := runtime.Callers(2, pc)
		if n > 0 {
			frames := runtime.CallersFrames(pc[:n])
			stack := make([]map[string]interface{}, 0, n)
			for {
				frame, more := frames.Next()
				stack = append(stack, map[string]interface{}{
					"function": frame.Function,
					"file":     frame.File,
					"line":     frame.Line,
				})
				if !more {
					break
				}
			}
			scope.SetContext("stack_trace", map[string]interface{}{"frames": stack})
		}

		sentry.CaptureException(err)
	})
}
