// Package pg bootstraps PostgreSQL access on top of pgx/v5.
//
// Connect opens a *pgxpool.Pool with startup retries, Migrate runs embedded
// goose migrations over the same pool, and Healthcheck plugs into the HTTP
// readiness probe.
package pg
