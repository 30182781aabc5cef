// Package asyncop defines the unit of work that the polling handlers run in
// the background.
//
// An Operation wraps a Producer, which creates a file from request
// arguments, and decides where the result goes. Durable operations store the
// file as an artifact and return its ID. Ephemeral operations return the file
// inside the job result. The mode is fixed when the operation is built.
package asyncop
