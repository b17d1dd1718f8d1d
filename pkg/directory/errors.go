package directory

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a user or station row does not exist
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail is returned when an email is already used by another row
	ErrDuplicateEmail = errors.New("a user with this email already exists")

	// ErrStationNotFound is returned when a user references a missing station
	ErrStationNotFound = errors.New("station not found")

	// ErrStationInUse is returned when deleting a station that still has users
	ErrStationInUse = errors.New("station still has users assigned")
)

// PostgreSQL error codes
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pqCode(err) == codeUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	return pqCode(err) == codeForeignKeyViolation
}
