// Package usage keeps a per-provider ledger of requests, tokens and cost.
//
// The Tracker accumulates all-time totals plus rolling last-hour and last-day
// windows for each provider. Totals are flushed periodically to a pluggable
// Backend so the ledger survives restarts; windowed figures are ephemeral and
// rebuild after a restart.
//
// Two backends ship: an in-memory store and a SQLite store on the pure-Go
// driver, so the ledger needs no cgo.
package usage
