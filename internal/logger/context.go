package logger

import (
	"context"

	apperrors "github.com/reelfetch/backend/internal/errors"
)

type contextKey string

const traceIDKey contextKey = "trace_id"

// WithRequestID stores the request ID where both the logger and the error
// writer can find it.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return apperrors.WithRequestID(ctx, requestID)
}

// WithTraceID attaches a trace ID that outlives a single request, such as
// the download ID a background job logs under.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// GetTraceID returns the trace ID on ctx, if any.
func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}
