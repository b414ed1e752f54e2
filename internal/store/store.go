// Package store persists contact messages, their attachments and the
// administrators allowed to read them.
package store

import (
	"errors"

	"github.com/jmoiron/sqlx"
)

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUsernameTaken is returned when creating an admin whose username exists.
	ErrUsernameTaken = errors.New("username is already taken")
)

// rebinder rewrites ? placeholders to the driver's native form ($1,$2,... for PostgreSQL).
type rebinder struct{ db *sqlx.DB }

func (r rebinder) q(query string) string { return r.db.Rebind(query) }

func (r rebinder) isPostgres() bool { return r.db.DriverName() == "postgres" }
