// Package recorder enqueues journal entries for asynchronous writing.
package recorder

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"nimbus-hq/helios/pkg/journal"
)

// ErrBufferFull is the cause of the RecorderError returned when the async
// buffer is full and the entry was dropped.
var ErrBufferFull = errors.New("journal buffer full")

// Config contains configuration for the journal recorder.
type Config struct {
	// Enabled enables journal recording. Disabled recorders accept and
	// discard entries.
	Enabled bool

	// AsyncBuffer is the size of the async write channel buffer.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout is the timeout for writing an entry to storage.
	// Default: 5 seconds
	WriteTimeout time.Duration
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:      true,
		AsyncBuffer:  1000,
		WriteTimeout: 5 * time.Second,
	}
}

// Recorder writes journal entries to storage asynchronously. Record never
// blocks: when the buffer is full the entry is dropped and counted.
type Recorder struct {
	storage   journal.Storage
	config    *Config
	entryChan chan *journal.Entry
	wg        sync.WaitGroup
	done      chan struct{}
	dropped   atomic.Int64
	logger    *slog.Logger
}

// New creates a journal recorder over the provided storage backend and starts
// its background writer.
func New(storage journal.Storage, config *Config) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	if config.AsyncBuffer <= 0 {
		config.AsyncBuffer = DefaultConfig().AsyncBuffer
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}

	r := &Recorder{
		storage:   storage,
		config:    config,
		entryChan: make(chan *journal.Entry, config.AsyncBuffer),
		done:      make(chan struct{}),
		logger:    slog.Default().With("component", "journal.recorder"),
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("journal recorder initialized",
		"enabled", config.Enabled,
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
	)

	return r
}

// Record enqueues an entry for async writing. It fills in the ID and Time
// when unset, and returns a RecorderError when the entry was dropped because
// the buffer is full or the recorder is shutting down.
func (r *Recorder) Record(entry *journal.Entry) error {
	if !r.config.Enabled || entry == nil {
		return nil
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}

	select {
	case <-r.done:
		return journal.NewRecorderError(entry.ID, context.Canceled)
	default:
	}

	select {
	case r.entryChan <- entry:
		return nil
	default:
		r.dropped.Add(1)
		r.logger.Warn("journal buffer full, dropping entry",
			"entry_id", entry.ID,
			"request_id", entry.RequestID,
			"channel_capacity", r.config.AsyncBuffer,
		)
		return journal.NewRecorderError(entry.ID, ErrBufferFull)
	}
}

// Dropped returns how many entries were dropped because the buffer was full.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close shuts down the recorder, draining the buffer and waiting for all
// pending writes to complete.
func (r *Recorder) Close() error {
	r.logger.Info("shutting down journal recorder")

	close(r.done)
	r.wg.Wait()

	r.logger.Info("journal recorder shut down", "dropped", r.dropped.Load())
	return nil
}

// worker drains the entry channel and writes entries to storage.
func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case entry := <-r.entryChan:
			r.writeEntry(entry)

		case <-r.done:
			r.logger.Debug("draining journal buffer before shutdown",
				"pending_count", len(r.entryChan),
			)
			for {
				select {
				case entry := <-r.entryChan:
					r.writeEntry(entry)
				default:
					return
				}
			}
		}
	}
}

// writeEntry writes a single entry to storage.
func (r *Recorder) writeEntry(entry *journal.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.storage.Store(ctx, entry); err != nil {
		r.logger.Error("failed to store journal entry",
			"entry_id", entry.ID,
			"request_id", entry.RequestID,
			"error", err,
		)
		return
	}

	duration := time.Since(start)
	r.logger.Debug("journal entry recorded",
		"entry_id", entry.ID,
		"provider", entry.Provider,
		"outcome", entry.Outcome,
		"duration_ms", duration.Milliseconds(),
	)

	if duration > r.config.WriteTimeout/2 {
		r.logger.Warn("slow journal write",
			"entry_id", entry.ID,
			"duration_ms", duration.Milliseconds(),
			"threshold_ms", (r.config.WriteTimeout / 2).Milliseconds(),
		)
	}
}
