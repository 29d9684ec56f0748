package database

import (
	"errors"

	"github.com/lib/pq"
)

// See https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	ErrCodeUniqueViolation      = "23505"
	ErrCodeForeignKeyViolation  = "23503"
	ErrCodeCheckViolation       = "23514"
	ErrCodeSerializationFailure = "40001"
	ErrCodeDeadlockDetected     = "40P01"
	ErrCodeLockNotAvailable     = "55P03"
)

func pqCode(err error) (pq.ErrorCode, string, bool) {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return "", "", false
	}
	return pqErr.Code, pqErr.Constraint, true
}

// IsRetryable reports whether the transaction lost a race and can be run again.
func IsRetryable(err error) bool {
	code, _, ok := pqCode(err)
	if !ok {
		return false
	}
	switch code {
	case ErrCodeSerializationFailure, ErrCodeDeadlockDetected, ErrCodeLockNotAvailable:
		return true
	}
	return false
}

// IsUniqueViolation reports a unique violation, optionally on a specific constraint.
func IsUniqueViolation(err error, constraint string) bool {
	code, name, ok := pqCode(err)
	if !ok || code != ErrCodeUniqueViolation {
		return false
	}
	return constraint == "" || name == constraint
}

func IsForeignKeyViolation(err error, constraint string) bool {
	code, name, ok := pqCode(err)
	if !ok || code != ErrCodeForeignKeyViolation {
		return false
	}
	return constraint == "" || name == constraint
}

func IsCheckViolation(err error, constraint string) bool {
	code, name, ok := pqCode(err)
	if !ok || code != ErrCodeCheckViolation {
		return false
	}
	return constraint == "" || name == constraint
}
