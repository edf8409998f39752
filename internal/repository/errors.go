package repository

import (
	"errors"

	"github.com/lib/pq"
)

// ErrDuplicate signals a unique constraint violation. Services map it to the
// API conflict error.
var ErrDuplicate = errors.New("duplicate row")

// ErrStaleVersion signals a compare-and-swap update that matched no row
// because the version moved underneath it.
var ErrStaleVersion = errors.New("stale version")

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
