package workflow

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrConflict          = errors.New("conflict")
	ErrValidation        = errors.New("validation failed")
	ErrPersistence       = errors.New("persistence failure")
)

// Wire names for the error taxonomy.
const (
	KindNotFound          = "not_found"
	KindInvalidTransition = "invalid_transition"
	KindUnauthorized      = "unauthorized"
	KindConflict          = "conflict"
	KindValidation        = "validation"
	KindPersistence       = "persistence"
	KindInternal          = "internal"
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrNotFound, KindNotFound},
	{ErrInvalidTransition, KindInvalidTransition},
	{ErrUnauthorized, KindUnauthorized},
	{ErrConflict, KindConflict},
	{ErrValidation, KindValidation},
	{ErrPersistence, KindPersistence},
}

// KindOf classifies err into the taxonomy. Unknown errors are "internal".
func KindOf(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// Retryable reports whether the caller may retry: after re-reading state for
// a conflict, or with backoff for a persistence failure.
func Retryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrPersistence)
}
