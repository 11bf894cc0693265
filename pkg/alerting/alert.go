package alerting

import (
	"strings"
	"time"

	"nimbus-hq/helios/pkg/faults"
)

// ConditionKind selects how an alert condition is evaluated.
type ConditionKind string

const (
	// ConditionErrorRate compares the metrics' derived per-minute error
	// rate against the threshold.
	ConditionErrorRate ConditionKind = "error_rate"

	// ConditionErrorCount counts recent errors inside the window.
	ConditionErrorCount ConditionKind = "error_count"

	// ConditionSpecificError counts recent errors carrying one code.
	ConditionSpecificError ConditionKind = "specific_error"

	// ConditionComponentFailure counts recent errors raised by one
	// component.
	ConditionComponentFailure ConditionKind = "component_failure"
)

// ConditionKinds returns the known condition kinds.
func ConditionKinds() []ConditionKind {
	return []ConditionKind{
		ConditionErrorRate,
		ConditionErrorCount,
		ConditionSpecificError,
		ConditionComponentFailure,
	}
}

// Condition is the threshold rule an alert evaluates against the error
// metrics. The alert fires when the measured value exceeds Threshold.
type Condition struct {
	Kind ConditionKind `yaml:"kind" json:"kind"`

	Threshold float64 `yaml:"threshold" json:"threshold"`

	// Window bounds how far back recent errors are counted. error_rate
	// ignores it (the rate carries its own trailing window); zero counts
	// every buffered recent error.
	Window time.Duration `yaml:"window,omitempty" json:"window,omitempty"`

	// Code narrows specific_error to one error code.
	Code string `yaml:"code,omitempty" json:"code,omitempty"`

	// Component narrows component_failure to one component.
	Component string `yaml:"component,omitempty" json:"component,omitempty"`
}

// Severity ranks how urgent a fired alert is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Action is one configured response to a fired alert. Type selects the
// executor ("log", "email", "webhook", "chat"); Target and Params are
// interpreted by it.
type Action struct {
	Type   string            `yaml:"type" json:"type"`
	Target string            `yaml:"target,omitempty" json:"target,omitempty"`
	Params map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
}

// Alert is one threshold rule. Firing state (last trigger time, history)
// lives in the monitor, not on the alert itself.
type Alert struct {
	ID        string        `yaml:"id" json:"id"`
	Name      string        `yaml:"name,omitempty" json:"name,omitempty"`
	Condition Condition     `yaml:"condition" json:"condition"`
	Severity  Severity      `yaml:"severity,omitempty" json:"severity,omitempty"`
	Enabled   bool          `yaml:"enabled" json:"enabled"`
	Cooldown  time.Duration `yaml:"cooldown,omitempty" json:"cooldown,omitempty"`
	Actions   []Action      `yaml:"actions,omitempty" json:"actions,omitempty"`
}

// Validate checks the alert definition. Action types are checked separately
// by the monitor against its registered executors.
func (a Alert) Validate() error {
	if a.ID == "" {
		return faults.Newf(faults.ValidationKind, "alert id cannot be empty")
	}

	switch a.Condition.Kind {
	case ConditionErrorRate, ConditionErrorCount, ConditionSpecificError, ConditionComponentFailure:
	default:
		return faults.Newf(faults.ValidationKind, "alert %q: unknown condition kind %q (available: %s)",
			a.ID, a.Condition.Kind, joinKinds(ConditionKinds()))
	}
	if a.Condition.Threshold < 0 {
		return faults.Newf(faults.ValidationKind, "alert %q: threshold cannot be negative", a.ID)
	}
	if a.Condition.Window < 0 {
		return faults.Newf(faults.ValidationKind, "alert %q: window cannot be negative", a.ID)
	}
	if a.Condition.Kind == ConditionSpecificError && a.Condition.Code == "" {
		return faults.Newf(faults.ValidationKind, "alert %q: specific_error condition requires a code", a.ID)
	}
	if a.Condition.Kind == ConditionComponentFailure && a.Condition.Component == "" {
		return faults.Newf(faults.ValidationKind, "alert %q: component_failure condition requires a component", a.ID)
	}

	if a.Cooldown < 0 {
		return faults.Newf(faults.ValidationKind, "alert %q: cooldown cannot be negative", a.ID)
	}
	switch a.Severity {
	case "", SeverityInfo, SeverityWarning, SeverityCritical:
	default:
		return faults.Newf(faults.ValidationKind, "alert %q: unknown severity %q", a.ID, a.Severity)
	}
	return nil
}

// Event is one historical firing of an alert.
type Event struct {
	ID        string    `json:"id"`
	AlertID   string    `json:"alert_id"`
	AlertName string    `json:"alert_name,omitempty"`
	Time      time.Time `json:"time"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
}

func joinKinds(kinds []ConditionKind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}
