package postgres

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

// isDuplicateKey checks if a PostgreSQL error is a unique_violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// deref returns the pointed-to string, or "" for NULL columns.
func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// nullable returns nil for empty strings so they store as NULL, keeping
// partial unique indexes happy.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
