// Package retention enforces age and size limits on the attempt journal.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"nimbus-hq/helios/pkg/journal"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// RetentionDays is the number of days to retain entries.
	// 0 keeps entries forever.
	RetentionDays int

	// PruneSchedule is a cron expression for scheduling pruning.
	// Example: "0 3 * * *" (daily at 3 AM). Empty disables the schedule;
	// Prune can still be called directly.
	PruneSchedule string

	// MaxEntries is the maximum number of entries to keep.
	// 0 means unlimited.
	MaxEntries int64
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: 30,
		PruneSchedule: "0 3 * * *",
		MaxEntries:    0,
	}
}

// Pruner enforces retention limits on journal entries.
type Pruner struct {
	storage   journal.Storage
	config    *Config
	logger    *slog.Logger
	scheduler *Scheduler
}

// NewPruner creates a new retention pruner.
func NewPruner(storage journal.Storage, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}

	p := &Pruner{
		storage: storage,
		config:  config,
		logger:  slog.Default().With("component", "journal.retention"),
	}
	p.scheduler = NewScheduler(p)
	return p
}

// Prune deletes journal entries older than the retention period or exceeding
// the max entry count. Both phases can run in one call. Returns the total
// number of entries deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var totalDeleted int64

	if p.config.RetentionDays > 0 {
		deleted, err := p.pruneByAge(ctx)
		if err != nil {
			return totalDeleted, fmt.Errorf("prune by age failed: %w", err)
		}
		totalDeleted += deleted
	}

	if p.config.MaxEntries > 0 {
		deleted, err := p.pruneByCount(ctx)
		if err != nil {
			return totalDeleted, fmt.Errorf("prune by count failed: %w", err)
		}
		totalDeleted += deleted
	}

	if totalDeleted > 0 {
		p.logger.Info("journal pruning completed",
			"total_deleted", totalDeleted,
			"retention_days", p.config.RetentionDays,
			"max_entries", p.config.MaxEntries,
		)
	} else {
		p.logger.Debug("no journal entries pruned",
			"retention_days", p.config.RetentionDays,
			"max_entries", p.config.MaxEntries,
		)
	}

	return totalDeleted, nil
}

// pruneByAge deletes entries older than the retention period.
func (p *Pruner) pruneByAge(ctx context.Context) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -p.config.RetentionDays)

	deleted, err := p.storage.Delete(ctx, &journal.Query{EndTime: &cutoff})
	if err != nil {
		return 0, journal.NewRetentionError(p.config.RetentionDays, err)
	}

	if deleted > 0 {
		p.logger.Info("pruned journal entries by age",
			"deleted_count", deleted,
			"cutoff_time", cutoff,
		)
	}
	return deleted, nil
}

// pruneByCount deletes the oldest entries when the total exceeds MaxEntries.
func (p *Pruner) pruneByCount(ctx context.Context) (int64, error) {
	count, err := p.storage.Count(ctx, &journal.Query{})
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	if count <= p.config.MaxEntries {
		return 0, nil
	}

	toDelete := count - p.config.MaxEntries

	// The oldest entries sort first; the last one of that page gives the
	// deletion cutoff.
	oldest, err := p.storage.Query(ctx, &journal.Query{
		SortBy:    "time",
		SortOrder: "asc",
		Limit:     int(toDelete),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to query oldest entries: %w", err)
	}
	if len(oldest) == 0 {
		return 0, nil
	}

	cutoff := oldest[len(oldest)-1].Time
	deleted, err := p.storage.Delete(ctx, &journal.Query{EndTime: &cutoff})
	if err != nil {
		return 0, fmt.Errorf("delete failed: %w", err)
	}

	p.logger.Info("pruned journal entries by count",
		"deleted_count", deleted,
		"max_entries", p.config.MaxEntries,
		"cutoff_time", cutoff,
	)
	return deleted, nil
}

// Start starts the automatic pruning scheduler.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops the automatic pruning scheduler.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPruning returns the time of the next scheduled pruning, or nil when no
// schedule is active.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}
