// Package redis provides a task.TaskStore backed by Redis.
//
// Each task is a single JSON value under a per-task key. Every write
// refreshes the key's expiry to the configured retention, so finished tasks
// disappear on their own and no separate prune pass is needed.
package redis
