package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Dilshan221/Cakey-sub000/internal/repositories"
)

// Error carries the repository category of a Firestore failure. Conflicts raised by the order
// store also name the uniqueness rule that was violated.
type Error struct {
	op          string
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
	kind        repositories.ConflictKind
}

var (
	_ repositories.RepositoryError    = (*Error)(nil)
	_ repositories.ConflictClassifier = (*Error)(nil)
)

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.op != "" {
		return fmt.Sprintf("%s: %v", e.op, e.err)
	}
	return e.err.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

func (e *Error) IsNotFound() bool    { return e != nil && e.notFound }
func (e *Error) IsConflict() bool    { return e != nil && e.conflict }
func (e *Error) IsUnavailable() bool { return e != nil && e.unavailable }

// ConflictKind is empty unless the conflict came from a claim or revision check.
func (e *Error) ConflictKind() repositories.ConflictKind {
	if e == nil {
		return ""
	}
	return e.kind
}

// NewClaimConflict reports that key is already claimed under kind: an order id, human order
// code or committed draft.
func NewClaimConflict(op string, kind repositories.ConflictKind, key string) error {
	var msg string
	switch kind {
	case repositories.ConflictOrderCode:
		msg = fmt.Sprintf("order code %s already assigned", key)
	case repositories.ConflictDraft:
		msg = fmt.Sprintf("draft %s already committed", key)
	case repositories.ConflictOrderID:
		msg = fmt.Sprintf("order %s already exists", key)
	default:
		msg = fmt.Sprintf("%s %s already claimed", kind, key)
	}
	return &Error{op: op, err: errors.New(msg), conflict: true, kind: kind}
}

// NewRevisionConflict reports an optimistic update against a stale order revision.
func NewRevisionConflict(op, orderID string, expected, current int64) error {
	return &Error{
		op:       op,
		err:      fmt.Errorf("order %s revision %d is stale (current %d)", orderID, expected, current),
		conflict: true,
		kind:     repositories.ConflictRevision,
	}
}

// NewInvalidWriteError rejects a write the store cannot key, such as an order without a code.
// It is classified as a conflict so callers never retry it as an outage.
func NewInvalidWriteError(op, message string) error {
	return &Error{op: op, err: errors.New(message), conflict: true}
}

// NewNotFoundError reports a missing document detected by repository code.
func NewNotFoundError(op, message string) error {
	return &Error{op: op, err: errors.New(message), notFound: true}
}

func classify(op string, err error) *Error {
	e := &Error{op: op, err: err}
	if errors.Is(err, ErrProviderClosed) {
		e.unavailable = true
		return e
	}
	switch status.Code(err) {
	case codes.NotFound:
		e.notFound = true
	case codes.AlreadyExists, codes.FailedPrecondition:
		e.conflict = true
	case codes.Aborted:
		// Contention outlived the transaction's retries; another writer holds the order.
		e.conflict = true
		e.kind = repositories.ConflictRevision
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.DeadlineExceeded, codes.Unknown:
		e.unavailable = true
	}
	return e
}

// WrapError annotates Firestore errors with repository semantics. Context cancellations pass
// through; errors already classified keep their category and gain op when they had none.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch status.Code(err) {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}

	var repoErr *Error
	if errors.As(err, &repoErr) {
		if repoErr.op == "" {
			repoErr.op = op
		}
		return repoErr
	}
	return classify(op, err)
}
