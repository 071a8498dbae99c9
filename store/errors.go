package store

import (
	"database/sql"
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
)

var errMissingEnvironment = errors.New("environment id is required")

// NotFoundError reports that a referenced entity does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("store: %s %q not found", e.Kind, e.ID)
}

// InvalidInputError reports a rejected payload. Reason carries the field
// level detail produced by validation.
type InvalidInputError struct {
	Kind   string
	Reason error
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("store: invalid %s: %v", e.Kind, e.Reason)
}

func (e *InvalidInputError) Unwrap() error { return e.Reason }

// ConflictError reports a mutation blocked by existing references, such as
// deleting a segment that surveys still point at.
type ConflictError struct {
	Kind   string
	Detail string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("store: %s conflict: %s", e.Kind, e.Detail)
}

// StoreError wraps an underlying database failure with the operation that
// hit it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a missing-entity error from this package,
// the repository layer, or the driver.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf) || isMissingRecord(err)
}

// isMissingRecord matches the repository layer's mapped not-found category as
// well as a raw driver miss.
func isMissingRecord(err error) bool {
	return errors.Is(err, sql.ErrNoRows) ||
		goerrors.IsCategory(err, repository.CategoryDatabaseNotFound)
}

// wrapReadErr converts missing rows into NotFoundError and everything else
// into StoreError.
func wrapReadErr(op, kind, id string, err error) error {
	if err == nil {
		return nil
	}
	if isMissingRecord(err) {
		return &NotFoundError{Kind: kind, ID: id}
	}
	return &StoreError{Op: op, Err: err}
}
