package repositories

import "fmt"

// CounterErrorCode classifies failures of the order-code sequences.
type CounterErrorCode string

const (
	// CounterErrorInvalidInput means the caller asked for a blank sequence or a negative step.
	CounterErrorInvalidInput CounterErrorCode = "sequence_invalid_input"
	// CounterErrorExhausted means the sequence reached its configured maximum. No further
	// order codes can be issued from it until an operator raises the bound.
	CounterErrorExhausted CounterErrorCode = "sequence_exhausted"
	// CounterErrorUnavailable means the backing store could not be reached.
	CounterErrorUnavailable CounterErrorCode = "sequence_unavailable"
)

// CounterError reports why a sequence could not hand out the next order number. It satisfies
// RepositoryError: exhaustion is a conflict and an unreachable store is unavailable.
type CounterError struct {
	CounterID string
	Code      CounterErrorCode
	Message   string
	Err       error
}

var _ RepositoryError = (*CounterError)(nil)

func (e *CounterError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.CounterID != "" {
		msg = fmt.Sprintf("order sequence %s: %s", e.CounterID, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CounterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *CounterError) IsNotFound() bool { return false }

func (e *CounterError) IsConflict() bool {
	return e != nil && e.Code == CounterErrorExhausted
}

func (e *CounterError) IsUnavailable() bool {
	return e != nil && e.Code == CounterErrorUnavailable
}

// InvalidCounterInput rejects a malformed sequence request.
func InvalidCounterInput(counterID, format string, args ...any) *CounterError {
	return &CounterError{CounterID: counterID, Code: CounterErrorInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// CounterExhausted reports that counterID would pass max.
func CounterExhausted(counterID string, max int64) *CounterError {
	return &CounterError{CounterID: counterID, Code: CounterErrorExhausted, Message: fmt.Sprintf("exceeded max value %d", max)}
}

// CounterUnavailable wraps a store failure met while advancing counterID.
func CounterUnavailable(counterID, op string, err error) *CounterError {
	return &CounterError{CounterID: counterID, Code: CounterErrorUnavailable, Message: op, Err: err}
}
