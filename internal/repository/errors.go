package repository

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

const (
	uniqueViolation           = pq.ErrorCode("23505")
	invalidTextRepresentation = pq.ErrorCode("22P02")
)

// lookupError maps a malformed identifier to sql.ErrNoRows. Ids are UUID columns, so a
// value that cannot be parsed cannot name an existing row.
func lookupError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == invalidTextRepresentation {
		return sql.ErrNoRows
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
