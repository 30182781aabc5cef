// Package store defines the persistence contracts of the service: the artifact
// store holding durable operation results, the shared DBTX abstraction over
// *sql.DB and *sql.Tx, and the error values every implementation maps its
// driver errors onto.
package store
