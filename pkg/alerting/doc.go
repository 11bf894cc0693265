// Package alerting evaluates threshold rules against the rolling error
// metrics and fires configured actions when a rule trips.
//
// The Monitor runs on its own repeating task, independent of the health
// monitor's schedule. Each sweep snapshots the fault metrics and evaluates
// every enabled alert that is out of cooldown; the cooldown check-and-set
// happens under the alert table lock, so two concurrent sweeps can never
// fire the same alert twice inside one cooldown window. Fired alerts append
// a bounded history event and run their actions in order, with each action
// isolated so one failure does not block the rest.
//
// Four condition kinds are supported: error_rate compares the derived
// per-minute rate, error_count counts recent errors in a window, and
// specific_error / component_failure narrow that count to one code or one
// component. The log action does real work; email, webhook and chat actions
// are placeholders that record intent.
package alerting
