// Package directory provides authcore.Directory implementations: a Postgres
// adapter over pgx and an in-memory map for tests and local runs.
package directory
