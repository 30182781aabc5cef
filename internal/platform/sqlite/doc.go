// Package sqlite provides embedded-database implementations of the artifact
// store and the durable task store on modernc.org/sqlite. It backs the
// single-binary lite mode and gives tests a real SQL engine without a server.
//
// Timestamps are stored as Unix nanoseconds so expiry arithmetic stays in
// integer SQL.
package sqlite
