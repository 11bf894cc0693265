package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"nimbus-hq/helios/pkg/providers"
)

const (
	// streamBuffer is the chunk channel capacity. It absorbs short consumer
	// stalls without blocking the reader goroutine.
	streamBuffer = 16

	// maxStreamLine bounds a single SSE line. Tool-call arguments can push
	// chunks past bufio.Scanner's 64KB default.
	maxStreamLine = 1 << 20
)

// StreamGeneration starts a streaming generation. The returned channel
// delivers chunks until the stream ends; the final chunk has Done set, and
// after a chunk with Err the channel closes. Callers that stop consuming
// early must cancel the context so the reader goroutine and the HTTP
// response are released.
func (c *Client) StreamGeneration(ctx context.Context, req *providers.GenerationRequest) (<-chan providers.StreamChunk, error) {
	model, err := c.checkRequest(req)
	if err != nil {
		return nil, err
	}

	bodyBytes, err := json.Marshal(encodeRequest(req, model, true))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.doRequest(ctx, c.baseURL+completionsPath, model, bodyBytes, true)
	if err != nil {
		return nil, err
	}

	out := make(chan providers.StreamChunk, streamBuffer)
	go c.readStream(ctx, resp.Body, out)
	return out, nil
}

// readStream consumes the SSE body and forwards decoded chunks. It owns the
// response body and the channel: both are released before it returns.
func (c *Client) readStream(ctx context.Context, body io.ReadCloser, out chan<- providers.StreamChunk) {
	defer close(out)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLine)
	sawFinish := false

	for scanner.Scan() {
		line := scanner.Text()

		// SSE frames are "data: <payload>" lines separated by blank lines.
		// Comments and event-type lines are skipped.
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		if data == "[DONE]" {
			if !sawFinish {
				c.deliver(ctx, out, providers.StreamChunk{Done: true})
			}
			return
		}

		var wireChunk streamResponse
		if err := json.Unmarshal([]byte(data), &wireChunk); err != nil {
			c.deliver(ctx, out, providers.StreamChunk{Err: &providers.ParseError{
				Provider: c.name,
				Err:      fmt.Errorf("failed to parse stream chunk: %w", err),
			}})
			return
		}

		chunk, err := decodeStreamChunk(&wireChunk)
		if err != nil {
			// Usage-only trailer without choices; nothing to emit.
			continue
		}
		if chunk.Done {
			sawFinish = true
		}
		if !c.deliver(ctx, out, chunk) {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return
		}
		c.deliver(ctx, out, providers.StreamChunk{Err: &providers.StreamError{Provider: c.name, Err: err}})
		return
	}

	// Stream ended without a [DONE] sentinel. Treat EOF as a normal end so
	// consumers still see a terminal chunk.
	if !sawFinish {
		c.deliver(ctx, out, providers.StreamChunk{Done: true})
	}
}

// deliver sends a chunk unless the context ends first. A false return means
// the consumer is gone and the stream should stop.
func (c *Client) deliver(ctx context.Context, out chan<- providers.StreamChunk, chunk providers.StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
