// Package jobs adapts asyncop operations to the background task runner.
//
// The Adapter is what the HTTP handlers talk to: it submits an operation as a
// task, answers readiness checks with a single store read, and opens the
// result of a finished task regardless of whether it was stored as an
// artifact or carried in the task result.
package jobs
