// Package queue runs a batch of callback-style tasks with bounded concurrency and reports
// the outcome of the whole batch through a single callback.
//
// Tasks are started in the order they were deferred. A failing task doesn't stop its siblings;
// the terminal callback receives the first error that was reported.
package queue
