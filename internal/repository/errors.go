package repository

import (
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrStatusConflict is returned when a compare-and-set status update matched no row.
	ErrStatusConflict = errors.New("status changed concurrently")
	// ErrArchiveExists is returned when an archive record already exists for the request or reference.
	ErrArchiveExists = errors.New("archive record already exists")
)

// malformedID reports identifiers a uuid column can never match. Postgres
// rejects them with 22P02, so lookups answer sql.ErrNoRows without a round trip.
func malformedID(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return true
		}
	}
	return false
}
