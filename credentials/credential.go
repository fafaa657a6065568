// Package credentials manages the bearer credential used by the connector's
// outbound DingTalk calls. A single Cache instance is shared by the card
// controller and the media uploader; it refreshes the token on demand and
// never hands out a value within the expiry safety margin.
package credentials

import (
	"context"
	"net/http"
)

// Credential applies authentication to HTTP requests.
// Implementations handle different schemes; the connector uses bearer tokens
// in the Authorization header and DingTalk's x-acs-dingtalk-access-token header.
type Credential interface {
	// Apply adds authentication to the HTTP request.
	Apply(ctx context.Context, req *http.Request) error

	// Type returns the credential type identifier (e.g., "bearer", "static", "none").
	Type() string
}

// StaticCredential is a fixed API key applied as a bearer Authorization header.
// Used for the completion endpoint, whose key does not expire.
type StaticCredential struct {
	apiKey     string
	headerName string
	prefix     string
}

// StaticOption configures a StaticCredential.
type StaticOption func(*StaticCredential)

// WithHeaderName sets the header name the key is written to.
func WithHeaderName(name string) StaticOption {
	return func(c *StaticCredential) {
		c.headerName = name
	}
}

// WithPrefix sets a custom prefix for the key value.
func WithPrefix(prefix string) StaticOption {
	return func(c *StaticCredential) {
		c.prefix = prefix
	}
}

// NewStaticCredential creates a fixed credential.
// By default it uses the "Authorization" header with a "Bearer " prefix.
func NewStaticCredential(apiKey string, opts ...StaticOption) *StaticCredential {
	c := &StaticCredential{
		apiKey:     apiKey,
		headerName: "Authorization",
		prefix:     "Bearer ",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Apply adds the key to the request header. Empty keys are a no-op so the
// completion endpoint can run without authentication.
func (c *StaticCredential) Apply(_ context.Context, req *http.Request) error {
	if c.apiKey != "" {
		req.Header.Set(c.headerName, c.prefix+c.apiKey)
	}
	return nil
}

// Type returns "static".
func (c *StaticCredential) Type() string {
	return "static"
}

// NoOpCredential is a credential that does nothing.
type NoOpCredential struct{}

// Apply does nothing.
func (c *NoOpCredential) Apply(_ context.Context, _ *http.Request) error {
	return nil
}

// Type returns "none".
func (c *NoOpCredential) Type() string {
	return "none"
}
