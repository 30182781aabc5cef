// Package task manages background job queuing, processing, and lifecycle.
// A TaskRunner persists every submitted task in a TaskStore, executes it on a
// bounded worker pool and records its terminal state together with the bytes
// the task produced, so callers can poll for completion by task ID. Stores
// that survive restarts let the runner requeue unfinished work on start.
package task
