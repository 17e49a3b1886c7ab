// Package postgres implements the store using pgx/v5 with raw SQL.
// The conditional ride transition is a single UPDATE ... RETURNING, so
// concurrent claimants serialize on the row. Migrations are embedded SQL.
package postgres
