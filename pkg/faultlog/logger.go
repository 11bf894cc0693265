package faultlog

import (
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"nimbus-hq/helios/pkg/faults"
)

// DefaultCapacity bounds the entry ring when no explicit capacity is
// configured.
const DefaultCapacity = 1000

// Options carries the optional per-record fields for LogError.
type Options struct {
	// Level sets the record level. The zero value records at error;
	// use LevelWarn or LevelDebug explicitly for softer records.
	Level slog.Level

	// Code overrides the code derived from the error chain.
	Code string

	// Category overrides the derived category.
	Category faults.Category

	RequestID     string
	UserID        string
	SessionID     string
	CorrelationID string

	// Stack captures the caller's stack trace into the record.
	Stack bool

	// Metadata is copied into the record.
	Metadata map[string]any

	// Tags label the record for sink filtering.
	Tags []string
}

// binding pairs a sink with its delivery policy.
type binding struct {
	sink      Sink
	enabled   atomic.Bool
	minLevel  slog.Level
	filters   []compiledFilter
	writeErrs atomic.Int64
}

func (b *binding) accepts(entry Entry) bool {
	for _, f := range b.filters {
		if !f.matches(entry) {
			return false
		}
	}
	return true
}

// Logger converts raw failures into structured records, retains them in a
// bounded FIFO ring, and fans each record out to the registered sinks.
type Logger struct {
	mu       sync.RWMutex
	bindings []*binding

	ring *ring
	slog *slog.Logger

	now func() time.Time
}

// New creates a Logger retaining up to capacity entries. Values <= 0 fall
// back to DefaultCapacity. The logger starts with no sinks; records are
// still ring-buffered until sinks are added.
func New(capacity int) *Logger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Logger{
		ring: newRing(capacity),
		slog: slog.Default().With("component", "faultlog"),
		now:  time.Now,
	}
}

// AddSink registers sink under its name with the given options. Registering
// a second sink with the same name replaces the first. Returns a
// ValidationKind error for a nil sink, an empty name, or malformed filters.
func (l *Logger) AddSink(sink Sink, opts SinkOptions) error {
	if sink == nil {
		return faults.Newf(faults.ValidationKind, "sink cannot be nil")
	}
	if sink.Name() == "" {
		return faults.Newf(faults.ValidationKind, "sink name cannot be empty")
	}
	filters, err := compileFilters(opts.Filters)
	if err != nil {
		return err
	}

	b := &binding{sink: sink, minLevel: opts.MinLevel, filters: filters}
	b.enabled.Store(!opts.Disabled)

	l.mu.Lock()
	defer l.mu.Unlock()
	for i, existing := range l.bindings {
		if existing.sink.Name() == sink.Name() {
			l.bindings[i] = b
			return nil
		}
	}
	l.bindings = append(l.bindings, b)
	return nil
}

// RemoveSink deletes the sink registered under name. Returns a NotFoundKind
// error if no such sink is registered.
func (l *Logger) RemoveSink(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, b := range l.bindings {
		if b.sink.Name() == name {
			l.bindings = append(l.bindings[:i], l.bindings[i+1:]...)
			return nil
		}
	}
	return faults.Newf(faults.NotFoundKind, "sink %q is not registered", name)
}

// EnableSink switches delivery to the named sink on or off. Returns a
// NotFoundKind error if no such sink is registered.
func (l *Logger) EnableSink(name string, enabled bool) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, b := range l.bindings {
		if b.sink.Name() == name {
			b.enabled.Store(enabled)
			return nil
		}
	}
	return faults.Newf(faults.NotFoundKind, "sink %q is not registered", name)
}

// SinkNames returns the registered sink names in registration order.
func (l *Logger) SinkNames() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, len(l.bindings))
	for i, b := range l.bindings {
		names[i] = b.sink.Name()
	}
	return names
}

// LogError builds the structured record for err, appends it to the ring and
// distributes it to the sinks. The recorded entry is returned. A nil err is
// ignored and returns the zero entry.
func (l *Logger) LogError(err error, component string, opts Options) Entry {
	if err == nil {
		return Entry{}
	}
	if component == "" {
		component = "unknown"
	}

	level := opts.Level
	if level == 0 {
		level = slog.LevelError
	}
	code := opts.Code
	if code == "" {
		code = faults.CodeOf(err)
	}
	category := opts.Category
	if category == "" {
		category = faults.CategoryOf(err)
	}

	entry := Entry{
		Timestamp:     l.now(),
		Level:         level,
		Category:      category,
		Code:          code,
		Message:       err.Error(),
		Component:     component,
		RequestID:     opts.RequestID,
		UserID:        opts.UserID,
		SessionID:     opts.SessionID,
		CorrelationID: opts.CorrelationID,
		Tags:          opts.Tags,
	}
	if len(opts.Metadata) > 0 {
		entry.Metadata = make(map[string]any, len(opts.Metadata))
		for k, v := range opts.Metadata {
			entry.Metadata[k] = v
		}
	}
	if opts.Stack {
		entry.Stack = string(debug.Stack())
	}

	l.ring.append(entry)
	l.dispatch(entry)
	return entry
}

// RecordFault implements faults.FaultLog. Well-known identity keys in
// fields map onto the entry's dedicated fields; everything else rides along
// as metadata.
func (l *Logger) RecordFault(err error, component string, fields map[string]any) {
	var opts Options
	for k, v := range fields {
		s, isString := v.(string)
		switch {
		case k == "request_id" && isString:
			opts.RequestID = s
		case k == "user_id" && isString:
			opts.UserID = s
		case k == "session_id" && isString:
			opts.SessionID = s
		case k == "correlation_id" && isString:
			opts.CorrelationID = s
		default:
			if opts.Metadata == nil {
				opts.Metadata = make(map[string]any, len(fields))
			}
			opts.Metadata[k] = v
		}
	}
	l.LogError(err, component, opts)
}

// Recent returns up to n buffered entries, oldest first. n <= 0 returns
// every buffered entry.
func (l *Logger) Recent(n int) []Entry {
	return l.ring.snapshot(n)
}

// Len reports how many entries are currently buffered.
func (l *Logger) Len() int {
	return l.ring.len()
}

// Clear empties the ring. Registered sinks are unaffected.
func (l *Logger) Clear() {
	l.ring.clear()
}

// dispatch fans one entry out to every enabled sink whose level and filters
// admit it.
func (l *Logger) dispatch(entry Entry) {
	l.mu.RLock()
	bindings := make([]*binding, len(l.bindings))
	copy(bindings, l.bindings)
	l.mu.RUnlock()

	for _, b := range bindings {
		if !b.enabled.Load() || entry.Level < b.minLevel {
			continue
		}
		if !b.accepts(entry) {
			continue
		}
		l.write(b, entry)
	}
}

// write delivers one entry to one sink, containing panics so a broken sink
// cannot take down the caller or starve the remaining sinks.
func (l *Logger) write(b *binding, entry Entry) {
	defer func() {
		if r := recover(); r != nil {
			b.writeErrs.Add(1)
			l.slog.Error("sink panicked", "sink", b.sink.Name(), "panic", r)
		}
	}()
	if err := b.sink.Write(entry); err != nil {
		b.writeErrs.Add(1)
		l.slog.Warn("sink write failed", "sink", b.sink.Name(), "error", err)
	}
}

// Categorize buckets err for logging. It is the text-heuristic fallback
// classifier shared with the faults package: an explicit category or kind
// in the error chain wins, message heuristics cover foreign errors.
func Categorize(err error) faults.Category {
	return faults.CategoryOf(err)
}
