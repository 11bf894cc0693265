// Package faultlog turns raw failures into structured, categorized, leveled
// records and distributes them.
//
// Every record is appended to a bounded in-memory ring (oldest evicted
// first) and fanned out to the registered sinks. Sinks are pluggable: the
// console sink writes through slog and is the only one that performs real
// work, while the file, database and external sinks are fire-and-forget
// placeholders that count delivery intents. Each sink binding carries its
// own enable flag, minimum level and field filters, so one logger can feed
// differently shaped destinations.
//
// Logger implements faults.FaultLog and is the standard destination for
// every failure the fault handler processes.
package faultlog
