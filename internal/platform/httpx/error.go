package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// Error is the JSON error envelope returned by the API.
type Error struct {
	Kind      string
	Message   string
	Status    int
	RequestID string
	// Fields lists offending input fields for validation failures.
	Fields []string
}

// NewError constructs an Error. A zero status means 500.
func NewError(kind, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Kind:    sanitize(kind, 80),
		Message: sanitize(message, 512),
		Status:  status,
	}
}

// WithFields attaches field names to a validation error.
func (e Error) WithFields(fields ...string) Error {
	if len(fields) > 0 {
		e.Fields = append([]string(nil), fields...)
	}
	return e
}

type errorBody struct {
	Error     string   `json:"error"`
	Message   string   `json:"message"`
	RequestID string   `json:"request_id,omitempty"`
	Fields    []string `json:"fields,omitempty"`
}

// WriteError writes err as JSON. The request id comes from chi's RequestID middleware when unset.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	requestID := err.RequestID
	if requestID == "" {
		requestID = sanitize(middleware.GetReqID(ctx), 80)
	}
	WriteJSON(w, status, errorBody{
		Error:     err.Kind,
		Message:   err.Message,
		RequestID: requestID,
		Fields:    err.Fields,
	})
}

// WriteJSON encodes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func sanitize(value string, limit int) string {
	value = strings.NewReplacer("\n", " ", "\r", " ").Replace(value)
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
