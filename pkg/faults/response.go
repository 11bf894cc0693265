package faults

// Response is the structured, user-facing result of handling a failure.
// Callers never see a raw error: an unrecognized code always resolves to the
// generic unexpected-issue template.
type Response struct {
	// Code is the stable error code the failure resolved to.
	Code string `json:"code"`

	// Title is a short human-readable headline for the failure class.
	Title string `json:"title"`

	// Message explains what went wrong in user-facing terms.
	Message string `json:"message"`

	// Suggestion is the single most useful next step.
	Suggestion string `json:"suggestion"`

	// RecoveryActions lists further suggested actions in order.
	RecoveryActions []string `json:"recovery_actions,omitempty"`

	// Recovered reports that the automatic transient retry succeeded after
	// the original failure.
	Recovered bool `json:"recovered,omitempty"`
}

type responseTemplate struct {
	title      string
	message    string
	suggestion string
	actions    []string
}

var categoryTemplates = map[Category]responseTemplate{
	CategoryNetwork: {
		title:      "Connection problem",
		message:    "A network problem interrupted the request.",
		suggestion: "Check connectivity to the provider endpoint and retry.",
		actions:    []string{"retry the request", "check network connectivity", "verify the provider endpoint is reachable"},
	},
	CategoryAuthentication: {
		title:      "Authentication failed",
		message:    "The provider rejected the configured credentials.",
		suggestion: "Verify the API key configured for this provider.",
		actions:    []string{"verify the provider API key", "check that the key has not expired", "confirm the account is active"},
	},
	CategoryValidation: {
		title:      "Invalid input",
		message:    "The request or configuration did not pass validation.",
		suggestion: "Correct the reported field and resubmit.",
		actions:    []string{"review the validation message", "correct the invalid field", "resubmit the request"},
	},
	CategoryBusinessLogic: {
		title:      "Operation not allowed",
		message:    "The operation conflicts with the current system state.",
		suggestion: "Check the current provider registrations and retry.",
		actions:    []string{"list the registered providers", "adjust the operation", "retry"},
	},
	CategoryExternalService: {
		title:      "Provider unavailable",
		message:    "An upstream provider failed to serve the request.",
		suggestion: "Retry; the balancer routes around unhealthy providers automatically.",
		actions:    []string{"retry the request", "check provider status", "review provider health in /v1/health/providers"},
	},
	CategoryUserInput: {
		title:      "Request not supported",
		message:    "The request asked for something no provider supports.",
		suggestion: "Adjust the request features or register a capable provider.",
		actions:    []string{"remove unsupported request features", "register a provider with the required capabilities"},
	},
	CategoryConfiguration: {
		title:      "Configuration problem",
		message:    "The system configuration is incomplete or inconsistent.",
		suggestion: "Run the configuration validator and fix the reported issues.",
		actions:    []string{"run `helios validate`", "fix the reported configuration fields", "restart"},
	},
	CategorySystem: {
		title:      "Unexpected issue",
		message:    "An unexpected internal issue occurred.",
		suggestion: "Retry; if the issue persists, inspect the error log.",
		actions:    []string{"retry the request", "inspect recent errors in the fault log"},
	},
}

// responseFor maps a resolved code and category to the fallback template
// response used when no handler is registered for the code.
func responseFor(code string, category Category) *Response {
	tpl, ok := categoryTemplates[category]
	if !ok {
		tpl = categoryTemplates[CategorySystem]
	}
	return &Response{
		Code:            code,
		Title:           tpl.title,
		Message:         tpl.message,
		Suggestion:      tpl.suggestion,
		RecoveryActions: append([]string(nil), tpl.actions...),
	}
}

// fallbackResponse is the minimal response surfaced when handling itself
// fails.
func fallbackResponse() *Response {
	return responseFor(CodeUnknown, CategorySystem)
}
