// Package journal records one entry per routed provider attempt: who was
// tried, with which model, how long it took, how it ended and what it cost.
//
// Recording is best effort. The recorder enqueues entries on a buffered
// channel and a background worker writes them to a Storage backend; when the
// buffer is full the entry is dropped and counted, never blocking the request
// path. Close drains the buffer before returning.
//
// Two backends ship: an in-memory store for tests and a SQLite store for
// durable journals. The retention subpackage prunes old entries on a cron
// schedule.
package journal
