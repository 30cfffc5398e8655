package pgutils

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes
// See: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	// Class 23 — Integrity Constraint Violation
	CodeUniqueViolation     = "23505"
	CodeForeignKeyViolation = "23503"
	CodeNotNullViolation    = "23502"
	CodeCheckViolation      = "23514"

	// Class 40 — Transaction Rollback
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"

	// Class 55 — Object Not In Prerequisite State
	CodeLockNotAvailable = "55P03"
)

// IsUniqueViolation checks if the error is a PostgreSQL unique constraint violation (23505).
func IsUniqueViolation(err error) bool {
	return hasCode(err, CodeUniqueViolation)
}

// IsForeignKeyViolation checks if the error is a PostgreSQL foreign key violation (23503).
func IsForeignKeyViolation(err error) bool {
	return hasCode(err, CodeForeignKeyViolation)
}

// IsCheckViolation checks if the error is a PostgreSQL check constraint violation (23514).
func IsCheckViolation(err error) bool {
	return hasCode(err, CodeCheckViolation)
}

// IsRetryable reports whether the transaction that produced err can be
// re-run from the start: serialization failures, deadlocks and lock timeouts.
// Only a typed *pgconn.PgError counts; message text is never trusted here
// because business errors may carry IDs that happen to contain a SQLSTATE.
func IsRetryable(err error) bool {
	switch Code(err) {
	case CodeSerializationFailure, CodeDeadlockDetected, CodeLockNotAvailable:
		return true
	}
	return false
}

// Code returns the SQLSTATE carried by err, or "" when err is not a
// PostgreSQL error.
func Code(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// hasCode prefers the typed pgconn error and falls back to matching the
// message, which is all that survives some driver wrappers.
func hasCode(err error, code string) bool {
	if err == nil {
		return false
	}
	if c := Code(err); c != "" {
		return c == code
	}
	return containsErrorCode(err, code)
}

func containsErrorCode(err error, code string) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return len(errStr) > 0 && (strings.Contains(errStr, code) || strings.Contains(errStr, "SQLSTATE "+code))
}
