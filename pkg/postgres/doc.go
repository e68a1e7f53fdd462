// Package postgres provides the PostgreSQL connection pool and migration
// runner backing the durable notification store.
package postgres
