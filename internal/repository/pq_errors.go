package repository

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

const (
	foreignKeyViolation       = "23503"
	invalidTextRepresentation = "22P02"
)

func hasPQCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}

// isMalformedID reports whether Postgres rejected a parameter that is not a valid uuid.
func isMalformedID(err error) bool {
	return hasPQCode(err, invalidTextRepresentation)
}

// notFoundOnMalformedID maps a malformed id to sql.ErrNoRows; no row can carry it.
func notFoundOnMalformedID(err error) error {
	if isMalformedID(err) {
		return sql.ErrNoRows
	}
	return err
}
