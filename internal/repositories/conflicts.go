package repositories

import "errors"

// ConflictKind names the order uniqueness rule a write violated.
type ConflictKind string

const (
	ConflictOrderID   ConflictKind = "order_id"
	ConflictOrderCode ConflictKind = "order_code"
	ConflictDraft     ConflictKind = "draft"
	ConflictRevision  ConflictKind = "revision"
)

// ConflictClassifier is implemented by repository errors that know which rule was violated.
type ConflictClassifier interface {
	ConflictKind() ConflictKind
}

// ConflictKindOf returns the violated rule carried by err, or "" when err is not a classified
// conflict.
func ConflictKindOf(err error) ConflictKind {
	var classified ConflictClassifier
	if errors.As(err, &classified) {
		return classified.ConflictKind()
	}
	return ""
}
