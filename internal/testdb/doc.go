// Package testdb provides a PostgreSQL database for integration tests.
//
// Tests that need PostgreSQL call GetTestDBWithT, which skips the test
// unless ASYNCVIEW_TEST_DATABASE_URL is set, applies the migrations once per
// process and closes the connection when the test ends. WithTx isolates each
// test in a transaction that is always rolled back.
package testdb
