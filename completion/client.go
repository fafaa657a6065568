// Package completion streams chat completions from an OpenAI-compatible
// backend. The client opens one HTTP request per message, parses the
// server-sent event stream, and yields text deltas over a channel until the
// [DONE] sentinel or a terminal error.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zhuxian89/dingtalk-moltbot-connector/credentials"
	"github.com/zhuxian89/dingtalk-moltbot-connector/logger"
)

const (
	chatCompletionsPath = "/v1/chat/completions"
	doneSentinel        = "[DONE]"

	contentTypeHeader = "Content-Type"
	applicationJSON   = "application/json"
)

// ChatRequest describes one streaming completion call.
type ChatRequest struct {
	// UserText is the end user's message body.
	UserText string
	// SystemPrompts are prepended in order as system-role messages.
	SystemPrompts []string
	// ConversationKey is the opaque discriminator correlating multi-turn
	// conversations on the backend; sent as the request's user field.
	ConversationKey string
}

// Fragment is one increment of generated text, or a terminal stream error.
// A Fragment carries exactly one of Delta or Err.
type Fragment struct {
	Delta string
	Err   error
}

// Client talks to the completion endpoint.
type Client struct {
	baseURL string
	model   string
	cred    credentials.Credential
	client  *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
// The client must not have a response timeout that would cut long streams short.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithCredential sets the credential applied to completion requests.
func WithCredential(cred credentials.Credential) ClientOption {
	return func(c *Client) {
		c.cred = cred
	}
}

// NewClient creates a completion client for the given endpoint and model.
func NewClient(baseURL, model string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		model:   model,
		cred:    &credentials.NoOpCredential{},
		// No overall timeout: the stream stays open for the whole
		// generation. Cancellation comes from the request context.
		client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// chat wire types (OpenAI-compatible).
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequestBody struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	User     string        `json:"user,omitempty"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// Stream opens the completion request and returns a channel of text deltas.
// The channel is closed after the [DONE] sentinel, a finish reason, a
// terminal error (delivered as the last Fragment), or context cancellation.
// A non-success initial response fails the call before any fragment.
func (c *Client) Stream(ctx context.Context, req ChatRequest) (<-chan Fragment, error) {
	messages := make([]chatMessage, 0, len(req.SystemPrompts)+1)
	for _, prompt := range req.SystemPrompts {
		messages = append(messages, chatMessage{Role: "system", Content: prompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.UserText})

	body := chatRequestBody{
		Model:    c.model,
		Messages: messages,
		Stream:   true,
		User:     req.ConversationKey,
	}

	reqBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + chatCompletionsPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set(contentTypeHeader, applicationJSON)
	httpReq.Header.Set("Accept", "text/event-stream")
	if err := c.cred.Apply(ctx, httpReq); err != nil {
		return nil, fmt.Errorf("failed to apply credential: %w", err)
	}

	logger.APIRequest("Completion", http.MethodPost, url, nil, body)

	//nolint:bodyclose // body is closed in the streaming goroutine
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		logger.APIResponse("Completion", resp.StatusCode, string(respBody), nil)
		return nil, fmt.Errorf("completion request failed with status %d: %s", resp.StatusCode, string(respBody))
	}
	if resp.Body == nil {
		return nil, fmt.Errorf("completion response has no body")
	}

	out := make(chan Fragment)
	go c.consume(ctx, resp.Body, out)
	return out, nil
}

// consume reads SSE records off the response body, yielding non-empty deltas.
// Malformed event payloads are skipped so interleaved or partial network
// chunks never kill the stream.
func (c *Client) consume(ctx context.Context, body io.ReadCloser, out chan<- Fragment) {
	defer close(out)
	defer body.Close()

	scanner := NewSSEScanner(body)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		data := scanner.Data()
		if data == doneSentinel {
			return
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			select {
			case out <- Fragment{Delta: choice.Delta.Content}:
			case <-ctx.Done():
				return
			}
		}
		if choice.FinishReason != nil {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		select {
		case out <- Fragment{Err: fmt.Errorf("completion stream failed: %w", err)}:
		case <-ctx.Done():
		}
	}
}
