package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Dilshan221/Cakey-sub000/internal/services"
)

func TestWriteServiceError(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		kind    string
		message string
	}{
		{"validation keeps detail", fmt.Errorf("%w: phone is required", services.ErrOrderInvalidInput), http.StatusBadRequest, "validation_error", "phone is required"},
		{"terminal keeps detail", fmt.Errorf("%w: order is Delivered", services.ErrOrderTerminalState), http.StatusConflict, "terminal_state", "order is Delivered"},
		{"not found hides detail", fmt.Errorf("%w: ORD0009 in orders/ord_1", services.ErrOrderNotFound), http.StatusNotFound, "not_found", "order not found"},
		{"store outage hides detail", fmt.Errorf("%w: rpc error: code = Unavailable", services.ErrOrderUnavailable), http.StatusInternalServerError, "store_unavailable", "order store is unavailable"},
		{"payment", fmt.Errorf("%w: declined", services.ErrPaymentNotConfirmed), http.StatusPaymentRequired, "payment_not_confirmed", "payment could not be confirmed"},
		{"deadline", fmt.Errorf("list: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "timeout", "request timed out"},
		{"cancelled", context.Canceled, 499, "request_cancelled", "request cancelled"},
		{"unknown", errors.New("nil pointer somewhere"), http.StatusInternalServerError, "internal_error", "internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(context.Background(), rec, tc.err)
			if rec.Code != tc.status {
				t.Fatalf("status %d, want %d", rec.Code, tc.status)
			}
			got := decodeBody[errorResponse](t, rec)
			if got.Error != tc.kind || got.Message != tc.message {
				t.Fatalf("unexpected body %+v", got)
			}
		})
	}
}
