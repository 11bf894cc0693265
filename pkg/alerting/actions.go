package alerting

import (
	"context"
	"log/slog"
	"sync/atomic"

	"nimbus-hq/helios/pkg/faults"
)

// Executor performs one kind of alert action. Implementations must be safe
// for concurrent use.
type Executor interface {
	// Execute performs action for one firing. metrics is the snapshot
	// the condition was evaluated against.
	Execute(action Action, event Event, metrics faults.Snapshot) error

	// Name is the action type this executor handles.
	Name() string
}

// LogExecutor writes fired alerts through slog. It is the one executor that
// performs real work.
type LogExecutor struct {
	logger *slog.Logger
}

// NewLogExecutor creates a log executor. A nil logger uses slog.Default().
func NewLogExecutor(logger *slog.Logger) *LogExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogExecutor{logger: logger.With("component", "alerting")}
}

// Name implements Executor.
func (e *LogExecutor) Name() string { return "log" }

// Execute logs the firing at a level matching its severity.
func (e *LogExecutor) Execute(action Action, event Event, metrics faults.Snapshot) error {
	level := slog.LevelWarn
	switch event.Severity {
	case SeverityInfo:
		level = slog.LevelInfo
	case SeverityCritical:
		level = slog.LevelError
	}

	e.logger.Log(context.Background(), level, "alert fired",
		"alert_id", event.AlertID,
		"alert_name", event.AlertName,
		"severity", string(event.Severity),
		"value", event.Value,
		"threshold", event.Threshold,
		"detail", event.Message,
		"total_errors", metrics.TotalErrors,
	)
	return nil
}

// IntentExecutor records the intent to notify a channel helios does not
// actually deliver to. The email, webhook and chat actions share this
// behavior: Execute counts the firing and drops it.
type IntentExecutor struct {
	name    string
	intents atomic.Int64
}

// NewEmailExecutor creates a placeholder executor for email notifications.
func NewEmailExecutor() *IntentExecutor {
	return &IntentExecutor{name: "email"}
}

// NewWebhookExecutor creates a placeholder executor for webhook deliveries.
func NewWebhookExecutor() *IntentExecutor {
	return &IntentExecutor{name: "webhook"}
}

// NewChatExecutor creates a placeholder executor for chat notifications.
func NewChatExecutor() *IntentExecutor {
	return &IntentExecutor{name: "chat"}
}

// Execute implements Executor. It never fails.
func (e *IntentExecutor) Execute(Action, Event, faults.Snapshot) error {
	e.intents.Add(1)
	return nil
}

// Name implements Executor.
func (e *IntentExecutor) Name() string { return e.name }

// Intents returns how many firings would have been delivered.
func (e *IntentExecutor) Intents() int64 { return e.intents.Load() }
