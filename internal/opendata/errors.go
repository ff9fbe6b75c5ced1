package opendata

import "errors"

// Kind classifies a failed query.
type Kind string

const (
	KindConflictingFilter Kind = "conflicting_filter"
	KindInvalidRange      Kind = "invalid_range"
	KindInvalidValue      Kind = "invalid_value"
	KindEmptyInput        Kind = "empty_input"
	KindTooManyInputs     Kind = "too_many_inputs"
	KindNotFound          Kind = "not_found"
	KindUnknownDataset    Kind = "unknown_dataset"
	KindStoreUnavailable  Kind = "store_unavailable"
	// KindConflict is reported by the HTTP layer for rejected housing writes.
	KindConflict Kind = "conflict"
)

// Error is returned by every query in this package. Two errors match with
// errors.Is when their kinds are equal, so callers test against the sentinels.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrConflictingFilter = &Error{Kind: KindConflictingFilter, Message: "conflicting filter"}
	ErrInvalidRange      = &Error{Kind: KindInvalidRange, Message: "invalid range"}
	ErrInvalidValue      = &Error{Kind: KindInvalidValue, Message: "invalid value"}
	ErrEmptyInput        = &Error{Kind: KindEmptyInput, Message: "empty input"}
	ErrTooManyInputs     = &Error{Kind: KindTooManyInputs, Message: "too many inputs"}
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "not found"}
	ErrUnknownDataset    = &Error{Kind: KindUnknownDataset, Message: "unknown dataset"}
	ErrStoreUnavailable  = &Error{Kind: KindStoreUnavailable, Message: "store unavailable"}
	ErrConflict          = &Error{Kind: KindConflict, Message: "conflict"}
)

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func storeError(op string, err error) *Error {
	return &Error{Kind: KindStoreUnavailable, Message: op, Err: err}
}

// KindOf returns the kind of err, or "" when err did not come from this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
