package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/example/tripthesia-aggregator/internal/models"
	"github.com/example/tripthesia-aggregator/internal/search"
)

type ErrorResponse struct {
	Error    string            `json:"error"`
	Problems []string          `json:"problems,omitempty"`
	Meta     map[string]string `json:"meta,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, msg string, meta map[string]string) {
	WriteJSON(w, status, ErrorResponse{Error: msg, Meta: meta})
}

func BadRequest(w http.ResponseWriter, msg string, meta map[string]string) {
	WriteError(w, http.StatusBadRequest, msg, meta)
}

func NotFound(w http.ResponseWriter, msg string, meta map[string]string) {
	WriteError(w, http.StatusNotFound, msg, meta)
}

func InternalError(w http.ResponseWriter, msg string, meta map[string]string) {
	WriteError(w, http.StatusInternalServerError, msg, meta)
}

func TooManyRequests(w http.ResponseWriter, msg string, meta map[string]string) {
	WriteError(w, http.StatusTooManyRequests, msg, meta)
}

// RequestMeta is the meta block of error envelopes: the request id set by chi's
// RequestID middleware, or a fresh one when the middleware is not installed.
func RequestMeta(r *http.Request) map[string]string {
	rid := middleware.GetReqID(r.Context())
	if rid == "" {
		rid = r.Header.Get(middleware.RequestIDHeader)
	}
	if rid == "" {
		rid = uuid.New().String()
	}
	return map[string]string{"request_id": rid}
}

// writeSearchError maps pipeline errors onto status codes. Validation problems are
// listed individually.
func writeSearchError(w http.ResponseWriter, r *http.Request, err error) {
	meta := RequestMeta(r)
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request", Problems: verr.Problems, Meta: meta})
	case errors.Is(err, search.ErrUnsupportedService):
		NotFound(w, err.Error(), meta)
	case errors.Is(err, search.ErrNoOffers):
		WriteError(w, http.StatusServiceUnavailable, err.Error(), meta)
	case errors.Is(err, context.DeadlineExceeded):
		WriteError(w, http.StatusGatewayTimeout, "search timed out", meta)
	default:
		InternalError(w, err.Error(), meta)
	}
}
