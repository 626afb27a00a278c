package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an optimistic concurrency check fails or
	// a unique key is already taken.
	ErrConflict = errors.New("concurrent modification")
	// ErrLeaseHeld is returned when another owner holds a live subscription
	// lease.
	ErrLeaseHeld = errors.New("subscription lease held by another owner")
	// ErrLeaseLost is returned when a checkpoint commit is fenced off because
	// the lease or the expected position changed underneath the caller.
	ErrLeaseLost = errors.New("subscription lease lost")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
