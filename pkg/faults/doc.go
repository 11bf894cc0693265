// Package faults is the error classification and handling core of helios.
//
// It defines the failure taxonomy used across the system: every error helios
// constructs carries a Kind tag (validation, not-found, conflict, provider
// failure, aggregate failure, unknown) attached at the construction site, and
// a logging Category derived from the kind where possible, with text
// heuristics retained only as a best-effort fallback for errors raised by
// uncontrolled external code.
//
// The Handler turns any error into a structured response (stable code,
// user-facing message, suggested recovery actions), updates the rolling
// error metrics, and forwards a record to the fault logger. It never fails:
// a failure while handling an error degrades to a minimal generic response.
package faults
