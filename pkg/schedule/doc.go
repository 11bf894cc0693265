// Package schedule provides the periodic-task primitives used by the health
// monitor and the alert monitor: a Clock abstraction that can be swapped for
// a fake in tests, and a cancellable repeating Task whose Stop method does
// not return until the task loop has fully exited, so no callback can fire
// after cancellation.
package schedule
