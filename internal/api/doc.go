// Package api serves the polling protocol of asynchronous views and
// downloads. A request without task_id submits a job, and later requests
// carrying task_id ask whether it is ready and fetch its result. Errors are
// mapped to status codes and sanitized messages before they reach clients.
package api
