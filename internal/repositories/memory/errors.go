package memory

import (
	"fmt"

	"github.com/Dilshan221/Cakey-sub000/internal/repositories"
)

// Error implements repositories.RepositoryError for the in-process store.
type Error struct {
	op       string
	msg      string
	notFound bool
	conflict bool
	kind     repositories.ConflictKind
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.op, e.msg)
}

// IsNotFound reports whether the record was missing.
func (e *Error) IsNotFound() bool { return e != nil && e.notFound }

// IsConflict reports a uniqueness or revision violation.
func (e *Error) IsConflict() bool { return e != nil && e.conflict }

// IsUnavailable is always false; the in-process store cannot be unreachable.
func (e *Error) IsUnavailable() bool { return false }

// ConflictKind names the violated rule for conflicts.
func (e *Error) ConflictKind() repositories.ConflictKind {
	if e == nil {
		return ""
	}
	return e.kind
}

func notFound(op, format string, args ...any) error {
	return &Error{op: op, msg: fmt.Sprintf(format, args...), notFound: true}
}

func conflict(op string, kind repositories.ConflictKind, format string, args ...any) error {
	return &Error{op: op, msg: fmt.Sprintf(format, args...), conflict: true, kind: kind}
}
