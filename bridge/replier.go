package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zhuxian89/dingtalk-moltbot-connector/logger"
)

// Replier delivers non-card replies to the per-conversation reply target.
type Replier interface {
	// SendText posts a plain text message to the reply target.
	SendText(ctx context.Context, webhook, text string) error
	// SendMarkdown posts a markdown message to the reply target.
	SendMarkdown(ctx context.Context, webhook, title, text string) error
}

// WebhookReplier posts replies to the transport-provided session webhook.
// The webhook URL embeds its own authorization; no bearer token is required.
type WebhookReplier struct {
	client *http.Client
}

// NewWebhookReplier creates a webhook-backed replier.
func NewWebhookReplier() *WebhookReplier {
	return &WebhookReplier{
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// SendText posts a plain text message.
func (r *WebhookReplier) SendText(ctx context.Context, webhook, text string) error {
	body := map[string]any{
		"msgtype": "text",
		"text": map[string]string{
			"content": text,
		},
	}
	return r.post(ctx, webhook, body)
}

// SendMarkdown posts a markdown message.
func (r *WebhookReplier) SendMarkdown(ctx context.Context, webhook, title, text string) error {
	body := map[string]any{
		"msgtype": "markdown",
		"markdown": map[string]string{
			"title": title,
			"text":  text,
		},
	}
	return r.post(ctx, webhook, body)
}

func (r *WebhookReplier) post(ctx context.Context, webhook string, body any) error {
	reqBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal reply: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook, bytes.NewReader(reqBytes))
	if err != nil {
		return fmt.Errorf("failed to create reply request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("reply request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	logger.APIResponse("DingTalkReply", resp.StatusCode, string(respBody), nil)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("reply failed with status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
