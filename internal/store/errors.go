package store

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("not found")

// ErrIdentityConflict reports that a row with the same identity already
// exists but refers to different data, e.g. a drive event already recorded
// for a raw event under another drive.
var ErrIdentityConflict = errors.New("identity conflict")

// ConstraintError is a rejected write. It signals a mapping defect
// upstream, not a transient failure; retrying will not help.
type ConstraintError struct {
	Op    string // operation, e.g. "insert drive event"
	Table string
	Key   string // business key of the offending row
	Err   error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%s: constraint violation on %s (%s): %v", e.Op, e.Table, e.Key, e.Err)
}

func (e *ConstraintError) Unwrap() error {
	return e.Err
}

// isConstraintViolation reports whether err is an SQLite constraint failure
// (UNIQUE, NOT NULL, CHECK or FOREIGN KEY).
func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

// wrapWriteErr classifies a failed write. Constraint failures become
// *ConstraintError; anything else is wrapped with op.
func wrapWriteErr(op, table, key string, err error) error {
	if isConstraintViolation(err) {
		return &ConstraintError{Op: op, Table: table, Key: key, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
