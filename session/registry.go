// Package session maps sender identities to backend conversation keys.
//
// A conversation key correlates a sequence of turns into one logical
// multi-turn conversation on the completion backend. Keys rotate exactly when
// a reset is triggered, either by an explicit command or by idle timeout;
// otherwise a sender keeps the same key for the lifetime of the process.
// State is in-memory only and rebuilt from empty on restart.
package session

import (
	"fmt"
	"sync"
	"time"
)

// Session tracks one sender's live conversation.
type Session struct {
	ConversationKey string
	LastActivityAt  time.Time
}

// Registry is a thread-safe senderID -> Session map.
// Concurrent resolves for different senders never interfere; concurrent
// resolves for the same sender are last-write-wins on the activity timestamp,
// which is accepted behavior.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the registry's time source. Used in tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates an empty session registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the conversation key for senderID, creating or rotating the
// session as needed. rotated reports whether the key changed because of an
// explicit reset or idle expiry; a first-contact session is not a rotation.
//
// Key forms: first contact uses the bare sender id, every rotation appends the
// current unix-millisecond timestamp so rotated keys are unique across resets.
func (r *Registry) Resolve(senderID string, forceReset bool, timeout time.Duration) (key string, rotated bool) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	sess, exists := r.sessions[senderID]
	if !exists {
		sess = &Session{
			ConversationKey: senderID,
			LastActivityAt:  now,
		}
		r.sessions[senderID] = sess
		return sess.ConversationKey, false
	}

	if forceReset || now.Sub(sess.LastActivityAt) > timeout {
		sess.ConversationKey = fmt.Sprintf("%s_%d", senderID, now.UnixMilli())
		sess.LastActivityAt = now
		return sess.ConversationKey, true
	}

	sess.LastActivityAt = now
	return sess.ConversationKey, false
}

// ActiveCount returns the number of tracked sessions.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
