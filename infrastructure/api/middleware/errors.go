package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/helixml/filegraph/application/service"
	"github.com/helixml/filegraph/domain/graph"
	"github.com/helixml/filegraph/domain/kv"
	"github.com/helixml/filegraph/internal/database"
)

// ErrUnauthorized is wrapped by every authentication failure.
var ErrUnauthorized = errors.New("unauthorized")

// APIError carries an explicit HTTP status. Its message is what clients see;
// the cause is only logged.
type APIError struct {
	code    int
	message string
	cause   error
}

// NewAPIError creates an APIError.
func NewAPIError(code int, message string, cause error) *APIError {
	return &APIError{code: code, message: message, cause: cause}
}

// Unauthorized is a 401 with message as the client-facing detail.
func Unauthorized(message string) *APIError {
	return NewAPIError(http.StatusUnauthorized, message, ErrUnauthorized)
}

// Unavailable is a 503 caused by err.
func Unavailable(message string, err error) *APIError {
	return NewAPIError(http.StatusServiceUnavailable, message, err)
}

func (e *APIError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("api error %d: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("api error %d: %s", e.code, e.message)
}

func (e *APIError) Unwrap() error { return e.cause }

// Code returns the HTTP status.
func (e *APIError) Code() int { return e.code }

// Message returns the client-facing detail.
func (e *APIError) Message() string { return e.message }

// JSONAPIError is one entry of a JSON:API errors document.
type JSONAPIError struct {
	Status string `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
	ID     string `json:"id,omitempty"`
}

// JSONAPIErrorResponse is a JSON:API errors document.
type JSONAPIErrorResponse struct {
	Errors []JSONAPIError `json:"errors"`
}

// domainStatuses maps domain sentinels to responses, first match wins.
var domainStatuses = []struct {
	target error
	status int
	title  string
}{
	{graph.ErrNotFound, http.StatusNotFound, "Not Found"},
	{database.ErrNotFound, http.StatusNotFound, "Not Found"},
	{graph.ErrInvalidInput, http.StatusBadRequest, "Validation Error"},
	{graph.ErrTypeMismatch, http.StatusBadRequest, "Validation Error"},
	{kv.ErrInvalidNamespace, http.StatusBadRequest, "Validation Error"},
	{graph.ErrAlreadyMerged, http.StatusConflict, "Conflict"},
	{graph.ErrConcurrencyConflict, http.StatusConflict, "Conflict"},
	{service.ErrQueuedForReview, http.StatusAccepted, "Queued For Review"},
	{service.ErrClientClosed, http.StatusServiceUnavailable, "Service Unavailable"},
	{graph.ErrCycleDetected, http.StatusInternalServerError, "Merge Chain Corrupted"},
}

// StatusFor maps an error to its HTTP status and title. An APIError anywhere
// in the chain decides; otherwise the domain sentinels do.
func StatusFor(err error) (int, string) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code(), http.StatusText(apiErr.Code())
	}
	for _, s := range domainStatuses {
		if errors.Is(err, s.target) {
			return s.status, s.title
		}
	}
	return http.StatusInternalServerError, "Internal Server Error"
}

// WriteError writes err as a JSON:API errors document and logs it, at Error
// for 5xx and Warn otherwise. A nil logger skips the log.
func WriteError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	status, title := StatusFor(err)
	correlationID := GetCorrelationID(r.Context())

	detail := err.Error()
	if apiErr := (*APIError)(nil); errors.As(err, &apiErr) {
		detail = apiErr.Message()
	}

	if logger != nil {
		level := slog.LevelWarn
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.LogAttrs(r.Context(), level, "request error",
			slog.String("correlation_id", correlationID),
			slog.Int("status", status),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}

	write(w, status, "application/vnd.api+json", JSONAPIErrorResponse{
		Errors: []JSONAPIError{{
			Status: http.StatusText(status),
			Title:  title,
			Detail: detail,
			ID:     correlationID,
		}},
	})
}

// WriteJSON writes a plain JSON body.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	write(w, status, "application/json", data)
}

// WriteJSONAPI writes a JSON:API document.
func WriteJSONAPI(w http.ResponseWriter, status int, data any) {
	write(w, status, "application/vnd.api+json", data)
}

func write(w http.ResponseWriter, status int, contentType string, body any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
