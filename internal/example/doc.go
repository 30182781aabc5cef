// Package example provides the demonstration operations served by the
// server: a rendered view, a text file download, and slow variants of both
// that wait before producing their result.
package example
