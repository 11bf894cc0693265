package providers

// estimateCharsPerToken is the character-to-token ratio used when a provider
// reports no usage. Four characters per token is a reasonable average for
// English prose across current models.
const estimateCharsPerToken = 4

// EstimateTokens approximates the token count of text with a
// characters-per-token heuristic. Non-empty text counts as at least one
// token.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	tokens := (len(text) + estimateCharsPerToken/2) / estimateCharsPerToken
	if tokens < 1 {
		return 1
	}
	return tokens
}

// EstimateMessageTokens approximates the prompt token count of a
// conversation, charging one token per message for role framing plus the
// content, name and tool-call text of each message.
func EstimateMessageTokens(messages []Message) int {
	total := 0
	for _, msg := range messages {
		total++
		total += EstimateTokens(msg.Content)
		total += EstimateTokens(msg.Name)
		for _, call := range msg.ToolCalls {
			total += EstimateTokens(call.Function.Name)
			total += EstimateTokens(call.Function.Arguments)
		}
	}
	return total
}

// EstimateUsage builds a TokenUsage for a request/completion pair whose
// provider reported none. Accounting prefers provider-reported usage; this
// keeps ledgers and journals non-zero when a provider omits it.
func EstimateUsage(req *GenerationRequest, completion string) TokenUsage {
	usage := TokenUsage{CompletionTokens: EstimateTokens(completion)}
	if req != nil {
		usage.PromptTokens = EstimateMessageTokens(req.Messages)
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	return usage
}
