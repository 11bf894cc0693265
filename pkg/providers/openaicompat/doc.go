// Package openaicompat implements a provider adapter for any backend that
// speaks the OpenAI chat completions wire format. That covers OpenAI itself
// plus the long tail of compatible servers (vLLM, Ollama, llama.cpp,
// LocalAI, together.ai and similar gateways).
//
// The adapter supports:
//
//   - Chat completions
//   - Streaming responses (Server-Sent Events)
//   - Function/tool calling
//   - Token usage extraction
//
// # Basic Usage
//
//	client, err := openaicompat.New(providers.AdapterConfig{
//	    Name:    "openai",
//	    Type:    "openai-compatible",
//	    BaseURL: "https://api.openai.com/v1",
//	    APIKey:  os.Getenv("OPENAI_API_KEY"),
//	    Model:   "gpt-4",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	resp, err := client.GenerateText(context.Background(), &providers.GenerationRequest{
//	    Messages: []providers.Message{
//	        {Role: providers.RoleUser, Content: "Hello!"},
//	    },
//	})
//
// # Streaming
//
//	chunks, err := client.StreamGeneration(ctx, &providers.GenerationRequest{
//	    Messages: messages,
//	    Stream:   true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for chunk := range chunks {
//	    if chunk.Err != nil {
//	        log.Fatal(chunk.Err)
//	    }
//	    fmt.Print(chunk.Content)
//	}
//
// # Error Handling
//
// HTTP failures map to the typed errors in the providers package:
//
//   - 401/403 -> AuthError
//   - 404     -> ModelNotFoundError
//   - 429     -> RateLimitError, retried honoring Retry-After
//   - 400     -> ProviderError, not retried
//   - 5xx     -> ProviderError, retried with exponential backoff
//
// Transport failures become TransportError, deadline overruns become
// TimeoutError. All of them classify as provider failures for the faults
// package.
package openaicompat
