package users

import (
	"database/sql"
	"strings"

	"github.com/cockroachdb/errors"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Error kinds surfaced to callers. Classify with errors.Is.
var (
	ErrNotFound         = errors.New("user not found")
	ErrConflict         = errors.New("email already exists")
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotInitialized is returned when a store handle is used before
	// initialization or after shutdown. It is a StoreUnavailable.
	ErrNotInitialized = errors.Mark(errors.New("store not initialized"), ErrStoreUnavailable)
)

// ValidationError reports field level input problems.
type ValidationError struct {
	Fields validation.Errors
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Fields.Error()
}

func asValidationError(err error) error {
	if err == nil {
		return nil
	}
	var fields validation.Errors
	if errors.As(err, &fields) {
		return &ValidationError{Fields: fields}
	}
	// internal ozzo errors (bad rule wiring) are not user errors
	return err
}

// IsValidation reports whether err carries field validation failures.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsUnavailable reports whether err is, or is marked as, ErrStoreUnavailable.
// Marks are only visible to cockroachdb/errors.Is, not the standard library.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// Unavailable marks err as a StoreUnavailable failure with context.
func Unavailable(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return errors.Wrap(err, msg)
	}
	return errors.Mark(errors.Wrap(err, msg), ErrStoreUnavailable)
}

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	// wrapped driver errors that lost their type
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
