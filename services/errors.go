package services

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
	ErrDuplicatePeriod   = errors.New("energy record already exists for this period")
	ErrQuotaExceeded     = errors.New("allocation quotas for the generator exceed 100%")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrExpired           = errors.New("expired")
	ErrNoEnergyRecords   = errors.New("no energy records for the selected installations and period")
	ErrNotConfigured     = errors.New("messaging is not configured")
	ErrDownstream        = errors.New("downstream service failed")
)

// invalidf wraps ErrInvalidInput with a message for the caller.
func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// downstream marks an error from a renderer or delivery provider.
func downstream(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrDownstream, op, err)
}

// IsUniqueViolation reports a UNIQUE or PRIMARY KEY constraint failure.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
