package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"nimbus-hq/helios/pkg/faults"
	"nimbus-hq/helios/pkg/providers"
)

// DefaultTimeout bounds each HTTP call when the config names no timeout.
const DefaultTimeout = 30 * time.Second

const (
	completionsPath = "/chat/completions"
	modelsPath      = "/models"
)

// Client talks to an OpenAI-compatible chat completions endpoint. It
// implements providers.Adapter and is safe for concurrent use.
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	model      string
	maxRetries int
	timeout    time.Duration
	caps       providers.Capabilities
	httpClient *http.Client
	logger     *slog.Logger

	// retryWait returns the wait before the given retry attempt. The
	// provider-suggested Retry-After is passed when a rate limit set one.
	// Overridable in tests.
	retryWait func(attempt int, retryAfter time.Duration) time.Duration
}

// New builds a Client from the adapter config. The API key is optional:
// local backends such as Ollama and vLLM accept unauthenticated calls.
func New(cfg providers.AdapterConfig) (*Client, error) {
	if cfg.Name == "" {
		return nil, &providers.ConfigError{Provider: cfg.Name, Field: "name", Message: "name is required"}
	}
	if cfg.BaseURL == "" {
		return nil, &providers.ConfigError{Provider: cfg.Name, Field: "base_url", Message: "base URL is required"}
	}
	if u, err := url.Parse(cfg.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &providers.ConfigError{Provider: cfg.Name, Field: "base_url", Message: fmt.Sprintf("malformed base URL %q", cfg.BaseURL)}
	}
	if cfg.Timeout < 0 {
		return nil, &providers.ConfigError{Provider: cfg.Name, Field: "timeout", Message: "timeout must be non-negative"}
	}
	if cfg.MaxRetries < 0 {
		return nil, &providers.ConfigError{Provider: cfg.Name, Field: "max_retries", Message: "max retries must be non-negative"}
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		name:       cfg.Name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		timeout:    timeout,
		caps:       cfg.Capabilities,
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default().With("component", "providers.openaicompat", "provider", cfg.Name),
		retryWait:  defaultRetryWait,
	}, nil
}

// defaultRetryWait is exponential backoff: 1s, 2s, 4s, ... A provider
// Retry-After suggestion takes precedence.
func defaultRetryWait(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}
	return time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
}

// Name returns the provider name the client was built for.
func (c *Client) Name() string { return c.name }

// Capabilities returns the feature set declared in the adapter config.
func (c *Client) Capabilities() providers.Capabilities { return c.caps }

// Close releases idle connections held by the HTTP client.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// GenerateText performs a plain text-generation call.
func (c *Client) GenerateText(ctx context.Context, req *providers.GenerationRequest) (*providers.GenerationResponse, error) {
	return c.generate(ctx, req)
}

// GenerateWithTools performs a generation call carrying the request's tool
// definitions. Tool calls in the response are mapped back verbatim.
func (c *Client) GenerateWithTools(ctx context.Context, req *providers.GenerationRequest) (*providers.GenerationResponse, error) {
	return c.generate(ctx, req)
}

func (c *Client) generate(ctx context.Context, req *providers.GenerationRequest) (*providers.GenerationResponse, error) {
	model, err := c.checkRequest(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	wireReq := encodeRequest(req, model, false)

	var wireResp chatResponse
	if err := c.postJSON(ctx, c.baseURL+completionsPath, model, wireReq, &wireResp); err != nil {
		return nil, err
	}

	resp, err := decodeResponse(&wireResp, c.name)
	if err != nil {
		return nil, err
	}
	resp.Latency = time.Since(start)
	return resp, nil
}

// HealthCheck probes the models endpoint. Any 2xx answer counts as healthy;
// an auth failure is surfaced as such so operators see a credential problem
// rather than an outage.
func (c *Client) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+modelsPath, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}
	c.setHeaders(httpReq, false)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &providers.TimeoutError{Provider: c.name, Timeout: c.timeout, Err: err}
		}
		return &providers.TransportError{Provider: c.name, Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &providers.AuthError{Provider: c.name, StatusCode: resp.StatusCode, Message: errorMessage(body)}
	default:
		return &providers.ProviderError{Provider: c.name, StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
}

// checkRequest validates the request and resolves the effective model.
func (c *Client) checkRequest(req *providers.GenerationRequest) (string, error) {
	if req == nil {
		return "", faults.Newf(faults.ValidationKind, "request cannot be nil")
	}
	if err := req.Validate(); err != nil {
		return "", faults.Newf(faults.ValidationKind, "invalid generation request: %v", err)
	}
	model := req.Model
	if model == "" {
		model = c.model
	}
	if model == "" {
		return "", faults.Newf(faults.ValidationKind, "model is required: request names none and provider %s has no default", c.name)
	}
	return model, nil
}

// postJSON marshals the request, performs the call with retries, and decodes
// the response body.
func (c *Client) postJSON(ctx context.Context, url, model string, reqBody, respBody any) error {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.doRequest(ctx, url, model, bodyBytes, false)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return &providers.TransportError{Provider: c.name, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if err := json.Unmarshal(respBytes, respBody); err != nil {
		return &providers.ParseError{Provider: c.name, Err: err}
	}
	return nil
}

// doRequest POSTs the body with retry logic. Transient failures (transport
// errors, 429, 5xx) retry with exponential backoff up to maxRetries extra
// attempts, and a rate limit's Retry-After overrides the backoff; auth and
// client errors return immediately. On success the caller owns the response
// body.
func (c *Client) doRequest(ctx context.Context, url, model string, body []byte, stream bool) (*http.Response, error) {
	var lastErr error
	var retryAfter time.Duration

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.retryWait(attempt, retryAfter)
			c.logger.Debug("retrying request",
				"attempt", attempt,
				"max_retries", c.maxRetries,
				"backoff", backoff,
			)
			select {
			case <-ctx.Done():
				return nil, c.contextError(ctx, lastErr)
			case <-time.After(backoff):
			}
		}
		retryAfter = 0

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		c.setHeaders(httpReq, stream)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, c.contextError(ctx, err)
			}
			if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
				lastErr = &providers.TimeoutError{Provider: c.name, Timeout: c.timeout, Err: err}
			} else {
				lastErr = &providers.TransportError{Provider: c.name, Err: err}
			}
			c.logger.Warn("request failed, will retry",
				"attempt", attempt+1,
				"error", err,
			)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return nil, &providers.AuthError{
				Provider:   c.name,
				StatusCode: resp.StatusCode,
				Message:    errorMessage(errorBody),
			}

		case http.StatusNotFound:
			if model != "" {
				return nil, &providers.ModelNotFoundError{Provider: c.name, Model: model}
			}
			return nil, &providers.ProviderError{
				Provider:   c.name,
				StatusCode: resp.StatusCode,
				Message:    errorMessage(errorBody),
			}

		case http.StatusTooManyRequests:
			retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
			lastErr = &providers.RateLimitError{
				Provider:   c.name,
				RetryAfter: retryAfter,
				Message:    errorMessage(errorBody),
			}
			c.logger.Warn("provider rate limited, will retry",
				"retry_after", retryAfter,
				"attempt", attempt+1,
			)

		case http.StatusBadRequest:
			return nil, &providers.ProviderError{
				Provider:   c.name,
				StatusCode: resp.StatusCode,
				Message:    errorMessage(errorBody),
			}

		default:
			lastErr = &providers.ProviderError{
				Provider:   c.name,
				StatusCode: resp.StatusCode,
				Message:    errorMessage(errorBody),
			}
			c.logger.Warn("request returned error status, will retry",
				"status", resp.StatusCode,
				"attempt", attempt+1,
			)
		}
	}

	return nil, lastErr
}

func (c *Client) setHeaders(req *http.Request, stream bool) {
	if req.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// contextError maps a context end to the right typed error. A deadline
// overrun is a provider timeout; an explicit cancel belongs to the caller
// and is passed through.
func (c *Client) contextError(ctx context.Context, cause error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &providers.TimeoutError{Provider: c.name, Timeout: c.timeout, Err: cause}
	}
	return ctx.Err()
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

// parseRetryAfter parses a Retry-After header value, which can be either
// delay seconds or an HTTP date. Returns 0 when absent or unparseable.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}

	var seconds int
	if _, err := fmt.Sscanf(header, "%d", &seconds); err == nil {
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}

	return 0
}
