package errors

import (
	"context"

	"github.com/google/uuid"
)

// maxRequestIDLen bounds caller supplied request IDs.
const maxRequestIDLen = 64

type contextKey string

const (
	requestIDKey contextKey = "request_id"
)

// GenerateRequestID generates a new unique request ID
func GenerateRequestID() string {
	return uuid.NewString()
}

// AcceptRequestID returns id when it is safe to echo into headers and log
// lines, and a fresh ID otherwise.
func AcceptRequestID(id string) string {
	if id == "" || len(id) > maxRequestIDLen {
		return GenerateRequestID()
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
		default:
			return GenerateRequestID()
		}
	}
	return id
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// CarryRequestID copies the request ID of origin onto ctx. Background work
// started by a request keeps logging under the request's ID while its
// lifetime follows ctx.
func CarryRequestID(ctx, origin context.Context) context.Context {
	if id := GetRequestID(origin); id != "" {
		return WithRequestID(ctx, id)
	}
	return ctx
}
