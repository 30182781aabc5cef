// Package postgres provides PostgreSQL implementations of the artifact store
// and the durable task store, plus the embedded schema migrations for both.
// Queries go through store.DBTX so callers can pass either *sql.DB or *sql.Tx;
// driver errors are translated to store sentinels by MapError.
package postgres
