// Package httpapi implements the HTTP Facade (C12): authentication, rate
// and quota enforcement, request validation, and delegation to every other
// component. Grounded on manifold's internal/httpapi package for its
// Server/mux shape and respondJSON/respondError helpers, generalized from a
// single-tenant playground API to the multi-tenant RAG endpoint set.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"ragcore/internal/answer"
	"ragcore/internal/metadata"
	"ragcore/internal/objectstore"
	"ragcore/internal/parser"
	"ragcore/internal/quota"
	"ragcore/internal/retriever"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]any{"error": err.Error()})
}

// statusFromError maps a component's sentinel errors to the status codes
// spec.md §7's error table assigns them. Unrecognized errors default to 500
// rather than leaking an internal error class to the caller.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, metadata.ErrNotFound), errors.Is(err, objectstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, objectstore.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, parser.ErrUnsupportedMimeType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, quota.ErrRateLimited), errors.Is(err, quota.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, retriever.ErrUnavailable), errors.Is(err, answer.ErrRetrievalUnavailable),
		errors.Is(err, objectstore.ErrUnavailable), errors.Is(err, metadata.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
