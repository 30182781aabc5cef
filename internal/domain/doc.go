// Package domain contains the core entities of the async view service:
// stored artifacts, the values a finished job hands back, and the error
// taxonomy shared by the store, job and HTTP layers. It has no knowledge
// of databases, queues or HTTP.
package domain
