package api

import (
	"context"
	"net/http"
	"strconv"

	apperrors "github.com/reelfetch/backend/internal/errors"
	"github.com/reelfetch/backend/internal/history"
	"github.com/reelfetch/backend/internal/platform"
)

// HistoryReader lists finished downloads.
type HistoryReader interface {
	Recent(ctx context.Context, p platform.Platform, limit int) ([]history.Entry, error)
}

type HistoryHandlers struct {
	history HistoryReader
}

func NewHistoryHandlers(h HistoryReader) *HistoryHandlers {
	return &HistoryHandlers{history: h}
}

// Recent handles GET /api/history?limit=&platform=
func (h *HistoryHandlers) Recent(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()

	limit := history.DefaultLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return apperrors.ValidationError("limit must be a positive integer")
		}
		limit = n
	}

	var p platform.Platform
	if v := q.Get("platform"); v != "" {
		parsed, ok := platform.Parse(v)
		if !ok {
			return apperrors.ValidationError("Unknown platform")
		}
		p = parsed
	}

	entries, err := h.history.Recent(r.Context(), p, limit)
	if err != nil {
		return apperrors.DatabaseError("Failed to read history").WithCause(err)
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, map[string]interface{}{
		"downloads": entries,
		"count":     len(entries),
	})
	return nil
}
