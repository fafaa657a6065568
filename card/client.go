package card

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
	defaultAPIBase = "https://api.dingtalk.com"

	instancesPath = "/v1.0/card/instances"
	deliverPath   = "/v1.0/card/instances/deliver"
	streamingPath = "/v1.0/card/streaming"

	// contentKey is the card data field the streamed text is written to.
	contentKey = "content"

	// statusFinished is the terminal value of the card's flow status field.
	statusFinished = "FINISHED"
)

// Client performs the card REST calls against the DingTalk open API.
// All four operations carry the bearer token from the credential cache.
type Client struct {
	baseURL string
	cred    credentials.Credential
	client  *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom API base URL (for testing or proxies).
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates a card REST client authenticated by cred.
func NewClient(cred credentials.Credential, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: defaultAPIBase,
		cred:    cred,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Instantiate registers a new streaming-capable card instance against the
// given template. The card is not visible until delivered.
func (c *Client) Instantiate(ctx context.Context, cardID, templateID string) error {
	body := map[string]any{
		"cardTemplateId": templateID,
		"outTrackId":     cardID,
		"cardData": map[string]any{
			"cardParamMap": map[string]string{},
		},
	}
	return c.post(ctx, instancesPath, body, "instantiate")
}

// Deliver attaches a card instance to its conversation. Group targets address
// the open conversation with the bot's routing code; direct targets address
// the recipient's staff id.
func (c *Client) Deliver(ctx context.Context, cardID string, target Target) error {
	body := map[string]any{
		"outTrackId": cardID,
	}
	if target.IsGroup {
		body["openSpaceId"] = fmt.Sprintf("dtv1.card//IM_GROUP.%s", target.OpenConversationID)
		body["imGroupOpenDeliverModel"] = map[string]any{
			"robotCode": target.RobotCode,
		}
	} else {
		body["openSpaceId"] = fmt.Sprintf("dtv1.card//IM_ROBOT.%s", target.StaffID)
		body["imRobotOpenDeliverModel"] = map[string]any{
			"spaceType": "IM_ROBOT",
		}
	}
	return c.post(ctx, deliverPath, body, "deliver")
}

// StreamPush replaces the card's displayed content. Content is always a full
// replacement of the display field, never a delta. The isFinal flag closes the
// streaming channel on the remote side.
func (c *Client) StreamPush(ctx context.Context, cardID, content string, isFinal bool) error {
	body := map[string]any{
		"outTrackId": cardID,
		"guid":       cardID,
		"key":        contentKey,
		"content":    content,
		"isFull":     true,
		"isFinalize": isFinal,
		"isError":    false,
	}
	return c.put(ctx, streamingPath, body, "stream_push")
}

// SetFinished writes the card's terminal status field. The streaming channel
// must already be closed via a finalizing StreamPush.
func (c *Client) SetFinished(ctx context.Context, cardID string) error {
	body := map[string]any{
		"outTrackId": cardID,
		"cardData": map[string]any{
			"cardParamMap": map[string]string{
				"flowStatus": statusFinished,
			},
		},
		"cardUpdateOptions": map[string]any{
			"updateCardDataByKey": true,
		},
	}
	return c.put(ctx, instancesPath, body, "set_finished")
}

func (c *Client) post(ctx context.Context, path string, body any, op string) error {
	return c.call(ctx, http.MethodPost, path, body, op)
}

func (c *Client) put(ctx context.Context, path string, body any, op string) error {
	return c.call(ctx, http.MethodPut, path, body, op)
}

func (c *Client) call(ctx context.Context, method, path string, body any, op string) error {
	reqBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", op, err)
	}

	url := c.baseURL + path
	httpReq, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(reqBytes))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if err := c.cred.Apply(ctx, httpReq); err != nil {
		return fmt.Errorf("failed to apply credential for %s: %w", op, err)
	}

	logger.APIRequest("DingTalkCard", method, url, nil, body)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("card %s call failed: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	logger.APIResponse("DingTalkCard", resp.StatusCode, string(respBody), nil)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("card %s failed with status %d: %s", op, resp.StatusCode, string(respBody))
	}
	return nil
}
