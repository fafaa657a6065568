package credentials

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

const (
	dingTalkAPIBase       = "https://api.dingtalk.com"
	dingTalkGetTokenPath  = "/v1.0/oauth2/accessToken"
	defaultDingTalkExpiry = 7200 * time.Second
)

// DingTalkTokenSource fetches app access tokens from the DingTalk open API.
type DingTalkTokenSource struct {
	appKey    string
	appSecret string
	baseURL   string
	client    *http.Client
}

// DingTalkOption configures a DingTalkTokenSource.
type DingTalkOption func(*DingTalkTokenSource)

// WithBaseURL sets a custom API base URL (for testing or proxies).
func WithBaseURL(url string) DingTalkOption {
	return func(s *DingTalkTokenSource) {
		s.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) DingTalkOption {
	return func(s *DingTalkTokenSource) {
		s.client = client
	}
}

// NewDingTalkTokenSource creates a token source for the given app credentials.
func NewDingTalkTokenSource(appKey, appSecret string, opts ...DingTalkOption) *DingTalkTokenSource {
	s := &DingTalkTokenSource{
		appKey:    appKey,
		appSecret: appSecret,
		baseURL:   dingTalkAPIBase,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch requests a fresh access token. It satisfies the TokenSource signature.
func (s *DingTalkTokenSource) Fetch(ctx context.Context) (string, time.Duration, error) {
	reqBody, err := json.Marshal(map[string]string{
		"appKey":    s.appKey,
		"appSecret": s.appSecret,
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to marshal token request: %w", err)
	}

	url := s.baseURL + dingTalkGetTokenPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create token request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", 0, fmt.Errorf("failed to send token request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read token response: %w", err)
	}

	logger.APIResponse("DingTalkAuth", resp.StatusCode, "", nil)

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var tokenResp struct {
		AccessToken string `json:"accessToken"`
		ExpireIn    int64  `json:"expireIn"`
	}
	if err := json.Unmarshal(respBody, &tokenResp); err != nil {
		return "", 0, fmt.Errorf("failed to unmarshal token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", 0, fmt.Errorf("token response missing accessToken: %s", string(respBody))
	}

	expiry := defaultDingTalkExpiry
	if tokenResp.ExpireIn > 0 {
		expiry = time.Duration(tokenResp.ExpireIn) * time.Second
	}
	return tokenResp.AccessToken, expiry, nil
}
