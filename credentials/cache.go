package credentials

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// defaultSafetyMargin is the time before token expiration to trigger a refresh.
const defaultSafetyMargin = 60 * time.Second

// TokenSource fetches a fresh bearer token from the upstream auth endpoint.
// It returns the token value and its validity duration.
type TokenSource func(ctx context.Context) (token string, expiresIn time.Duration, err error)

// Cache holds a bearer token with its expiry and refreshes it on demand.
// All concurrent callers share the cached value; an expiry-triggered refresh
// is collapsed into a single upstream call.
type Cache struct {
	source TokenSource
	margin time.Duration
	now    func() time.Time

	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	group singleflight.Group
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithSafetyMargin sets how long before expiry a token is considered stale.
func WithSafetyMargin(margin time.Duration) CacheOption {
	return func(c *Cache) {
		c.margin = margin
	}
}

// WithClock overrides the cache's time source. Used in tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates a token cache backed by the given source.
func NewCache(source TokenSource, opts ...CacheOption) *Cache {
	c := &Cache{
		source: source,
		margin: defaultSafetyMargin,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the cached bearer token, refreshing it first when the cached
// value is absent or within the safety margin of its expiry.
func (c *Cache) Token(ctx context.Context) (string, error) {
	c.mu.RLock()
	if c.token != "" && c.now().Add(c.margin).Before(c.expiresAt) {
		token := c.token
		c.mu.RUnlock()
		return token, nil
	}
	c.mu.RUnlock()

	// Collapse concurrent expiry-triggered refreshes into one upstream call.
	v, err, _ := c.group.Do("token", func() (any, error) {
		c.mu.RLock()
		if c.token != "" && c.now().Add(c.margin).Before(c.expiresAt) {
			token := c.token
			c.mu.RUnlock()
			return token, nil
		}
		c.mu.RUnlock()

		token, expiresIn, err := c.source(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to refresh credential: %w", err)
		}

		c.mu.Lock()
		c.token = token
		c.expiresAt = c.now().Add(expiresIn)
		c.mu.Unlock()

		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Apply adds the cached token to the request as a bearer Authorization header
// and as DingTalk's access-token header. Satisfies the Credential interface.
func (c *Cache) Apply(ctx context.Context, req *http.Request) error {
	token, err := c.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("x-acs-dingtalk-access-token", token)
	return nil
}

// Type returns "bearer".
func (c *Cache) Type() string {
	return "bearer"
}

// Invalidate drops the cached token so the next Token call refreshes.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}
