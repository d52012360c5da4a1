package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a uniqueness constraint rejected the write.
	ErrAlreadyExists = errors.New("already exists")

	ErrAlreadyVoided     = errors.New("sale already voided")
	ErrVoidWindowElapsed = errors.New("void window elapsed")
	ErrDuplicateInvoice  = errors.New("duplicate invoice number")
	ErrDuplicateRequest  = errors.New("duplicate idempotency key")
)

// ValidationError rejects a request before any state is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Invalid is shorthand for a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// InsufficientStockError reports that a line asks for more units than are on hand.
type InsufficientStockError struct {
	BookID    int64
	Title     string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	name := e.Title
	if name == "" {
		name = fmt.Sprintf("book %d", e.BookID)
	}
	return fmt.Sprintf("insufficient stock for %q: requested %d, available %d", name, e.Requested, e.Available)
}

// NotFoundError names the missing entity. errors.Is(err, ErrNotFound) holds for it.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// PersistenceError wraps an infrastructure failure. Its message is generic;
// the cause stays reachable through Unwrap for logging.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return "failed to record sale, please retry"
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Detail includes the operation and cause, for logs only.
func (e *PersistenceError) Detail() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}
