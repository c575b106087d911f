package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Dilshan221/Cakey-sub000/internal/platform/httpx"
	"github.com/Dilshan221/Cakey-sub000/internal/services"
)

type errorKind struct {
	target  error
	kind    string
	status  int
	exposed bool
}

// Order of entries matters only for errors wrapping several sentinels.
var serviceErrorKinds = []errorKind{
	{services.ErrOrderInvalidInput, "validation_error", http.StatusBadRequest, true},
	{services.ErrOrderInvalidStatus, "invalid_status", http.StatusBadRequest, true},
	{services.ErrOrderTerminalState, "terminal_state", http.StatusConflict, true},
	{services.ErrOrderInvalidTransition, "invalid_transition", http.StatusConflict, true},
	{services.ErrOrderNotFound, "not_found", http.StatusNotFound, false},
	{services.ErrOrderConflict, "conflict", http.StatusConflict, false},
	{services.ErrDraftInvalid, "invalid_draft", http.StatusBadRequest, false},
	{services.ErrDraftStale, "stale_draft", http.StatusConflict, true},
	{services.ErrPaymentNotConfirmed, "payment_not_confirmed", http.StatusPaymentRequired, false},
	{services.ErrOrderUnavailable, "store_unavailable", http.StatusInternalServerError, false},
}

var fallbackMessages = map[string]string{
	"not_found":             "order not found",
	"conflict":              "the order was changed by another request; reload and retry",
	"invalid_draft":         "draft is invalid or expired",
	"payment_not_confirmed": "payment could not be confirmed",
	"store_unavailable":     "order store is unavailable",
}

// writeServiceError maps service sentinels to the public error envelope. Messages for
// store-backed kinds are fixed strings so backend detail never reaches clients.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))
		return
	}
	if errors.Is(err, context.Canceled) {
		httpx.WriteError(ctx, w, httpx.NewError("request_cancelled", "request cancelled", 499))
		return
	}
	for _, k := range serviceErrorKinds {
		if !errors.Is(err, k.target) {
			continue
		}
		message := fallbackMessages[k.kind]
		if k.exposed {
			message = publicMessage(err, k.target)
		}
		httpx.WriteError(ctx, w, httpx.NewError(k.kind, message, k.status))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
}

// publicMessage strips the sentinel prefix so "order: invalid input: phone is required"
// becomes "phone is required".
func publicMessage(err, sentinel error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok {
		return rest
	}
	return msg
}

func badRequest(ctx context.Context, w http.ResponseWriter, message string) {
	httpx.WriteError(ctx, w, httpx.NewError("validation_error", message, http.StatusBadRequest))
}
