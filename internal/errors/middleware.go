package errors

import (
	"context"
	"errors"
	"net/http"
)

const (
	// RequestIDHeader is the HTTP header for request ID
	RequestIDHeader = "X-Request-ID"
)

// Handler is an http handler that reports failures by returning them.
type Handler func(w http.ResponseWriter, r *http.Request) error

// ServeHTTP writes a returned error with WriteError. Nothing is written
// when the client has already gone away.
func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := h(w, r)
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		return
	}
	WriteError(w, GetRequestID(r.Context()), err)
}

// HandleFunc converts a Handler to a standard http.HandlerFunc.
func HandleFunc(h Handler) http.HandlerFunc {
	return h.ServeHTTP
}
