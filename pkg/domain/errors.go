package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error classes. Every error produced by the store wraps exactly one of them so
// callers can branch with errors.Is.
var (
	// ErrPrecondition marks a call made in a state that forbids it.
	ErrPrecondition = errors.New("precondition violation")
	// ErrInvariant marks corrupted data or a programming error.
	ErrInvariant = errors.New("invariant violation")
)

// Precondition violations.
var (
	ErrNoUserLoggedIn       = fmt.Errorf("%w: no user logged in", ErrPrecondition)
	ErrAlreadyLoggedIn      = fmt.Errorf("%w: another user is already logged in", ErrPrecondition)
	ErrBadPassword          = fmt.Errorf("%w: wrong password", ErrPrecondition)
	ErrNoOpenTransaction    = fmt.Errorf("%w: no open transaction", ErrPrecondition)
	ErrReentrantTransaction = fmt.Errorf("%w: transaction opened during change notification", ErrPrecondition)
)

// Invariant violations.
var (
	ErrUnsupportedFilter = fmt.Errorf("%w: retrieval filter not implemented", ErrInvariant)
	ErrChainMismatch     = fmt.Errorf("%w: previous entry belongs to another item or attribute", ErrInvariant)
	ErrDuplicateRecord   = fmt.Errorf("%w: duplicate record uuid", ErrInvariant)
)

// ErrNotFound is returned when a referenced record does not exist.
type ErrNotFound struct {
	Kind RecordKind
	ID   uuid.UUID
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// Is lets ErrNotFound match ErrPrecondition.
func (e ErrNotFound) Is(target error) bool {
	return target == ErrPrecondition
}
