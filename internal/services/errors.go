package services

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"gorm.io/gorm"

	"libraryhub/internal/models"
)

// ErrorKind classifies failures for the API surface.
type ErrorKind string

const (
	KindNotFound            ErrorKind = "not_found"
	KindConflict            ErrorKind = "conflict"
	KindInvalidTransition   ErrorKind = "invalid_transition"
	KindValidation          ErrorKind = "validation"
	KindUnauthorized        ErrorKind = "unauthorized"
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"
)

// Error is a business-rule failure with a stable kind.
type Error struct {
	kind ErrorKind
	msg  string
}

func newError(kind ErrorKind, msg string) *Error { return &Error{kind: kind, msg: msg} }

func (e *Error) Error() string { return e.msg }
func (e *Error) Kind() ErrorKind { return e.kind }

// KindOf extracts the kind of err, or "" for unclassified errors.
func KindOf(err error) ErrorKind {
	var k interface{ Kind() ErrorKind }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return ""
}

var (
	// ErrBookNotFound is returned when the referenced book does not exist,
	// including when a borrow request points at a book that was removed.
	ErrBookNotFound = newError(KindNotFound, "book not found")

	// ErrEbookNotFound is returned when no ebook has the given ISBN.
	ErrEbookNotFound = newError(KindNotFound, "ebook not found")

	// ErrUserNotFound is returned when the referenced user does not exist.
	ErrUserNotFound = newError(KindNotFound, "user not found")

	// ErrRequestNotFound is returned when the borrow request id does not resolve.
	ErrRequestNotFound = newError(KindNotFound, "borrow request not found")

	// ErrOutOfStock is returned when no copy is available, at request time or at acceptance.
	ErrOutOfStock = newError(KindConflict, "book is currently out of stock")

	// ErrDuplicateActiveRequest is returned when the user already has a
	// pending or accepted request for the same book.
	ErrDuplicateActiveRequest = newError(KindConflict, "you already have an active request or borrowed copy for this book")

	// ErrCopiesAtCapacity is returned when a return would push available above copies.
	ErrCopiesAtCapacity = newError(KindConflict, "all copies of this book are already on the shelf")

	// ErrBookHasActiveRequests is returned when deleting a book that is still requested or lent.
	ErrBookHasActiveRequests = newError(KindConflict, "book has active borrow requests")

	// ErrDuplicateISBN is returned when a catalog entry with the same ISBN exists.
	ErrDuplicateISBN = newError(KindConflict, "a book with this ISBN already exists")

	// ErrEmailTaken is returned on registration or profile update with a used email.
	ErrEmailTaken = newError(KindConflict, "email already in use")

	// ErrInvalidCredentials is returned on a failed login.
	ErrInvalidCredentials = newError(KindUnauthorized, "invalid email or password")

	// ErrUnauthenticated is returned when a bearer token is missing, invalid
	// or belongs to a user that no longer exists.
	ErrUnauthenticated = newError(KindUnauthorized, "authentication required")

	// ErrUpstreamUnavailable wraps store timeouts and connection failures.
	ErrUpstreamUnavailable = newError(KindUpstreamUnavailable, "storage is unavailable, retry later")
)

// ValidationError reports bad caller input.
func ValidationError(format string, args ...any) error {
	return newError(KindValidation, fmt.Sprintf(format, args...))
}

// InvalidTransitionError is returned when a status change is not in the
// transition table.
type InvalidTransitionError struct {
	From models.BorrowStatus
	To   models.BorrowStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot change status from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Kind() ErrorKind { return KindInvalidTransition }

// storeError classifies an error coming back from gorm. Timeouts and broken
// connections become ErrUpstreamUnavailable, everything else is wrapped with op.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != "" {
		return err
	}
	if isUnavailable(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrUpstreamUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "broken pipe")
}

// isUniqueViolation covers both translated gorm errors and raw driver errors.
// PostgreSQL error code 23505 = unique_violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "UNIQUE constraint failed")
}
