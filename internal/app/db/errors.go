package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the store reacts to.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation reports a duplicate key, which Add treats as an id
// collision and retries with a fresh id.
func IsUniqueViolation(err error) bool {
	return sqlState(err) == codeUniqueViolation
}

// IsSerializationFailure reports a transaction that lost a concurrency race
// and can be retried.
func IsSerializationFailure(err error) bool {
	switch sqlState(err) {
	case codeSerializationFailure, codeDeadlockDetected:
		return true
	}
	return false
}
