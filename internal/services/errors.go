package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dilshan221/Cakey-sub000/internal/repositories"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderInvalidStatus signals a status value outside the allow-list.
	ErrOrderInvalidStatus = errors.New("order: invalid status")
	// ErrOrderTerminalState signals an attempt to leave Delivered or Cancelled.
	ErrOrderTerminalState = errors.New("order: terminal state")
	// ErrOrderInvalidTransition signals a backwards move between non-terminal states.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates the order store could not be reached.
	ErrOrderUnavailable = errors.New("order: store unavailable")

	// ErrDraftInvalid indicates a draft payload that failed verification or decoding.
	ErrDraftInvalid = errors.New("checkout: invalid draft")
	// ErrDraftStale indicates the draft total no longer matches the recomputed total.
	ErrDraftStale = errors.New("checkout: stale draft")
	// ErrPaymentNotConfirmed indicates the payment reference was rejected.
	ErrPaymentNotConfirmed = errors.New("checkout: payment not confirmed")
)

func mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}

	return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
}
