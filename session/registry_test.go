package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_FirstContactUsesBareKey(t *testing.T) {
	r := NewRegistry()

	key, rotated := r.Resolve("user1", false, time.Hour)
	assert.Equal(t, "user1", key)
	assert.False(t, rotated)

	// Second resolve within the timeout keeps the key.
	key2, rotated := r.Resolve("user1", false, time.Hour)
	assert.Equal(t, key, key2)
	assert.False(t, rotated)
}

func TestRegistry_ForceResetRotatesKey(t *testing.T) {
	now := time.Now()
	r := NewRegistry(WithClock(func() time.Time { return now }))

	key, _ := r.Resolve("user1", false, time.Hour)

	now = now.Add(time.Second)
	newKey, rotated := r.Resolve("user1", true, time.Hour)
	assert.True(t, rotated)
	assert.NotEqual(t, key, newKey)
	assert.Equal(t, fmt.Sprintf("user1_%d", now.UnixMilli()), newKey)
}

func TestRegistry_TimeoutRotatesKey(t *testing.T) {
	now := time.Now()
	r := NewRegistry(WithClock(func() time.Time { return now }))

	tests := []struct {
		name       string
		gap        time.Duration
		timeout    time.Duration
		wantRotate bool
	}{
		{"well within timeout", time.Minute, time.Hour, false},
		{"exactly at timeout boundary", time.Hour, time.Hour, false},
		{"just past timeout", time.Hour + time.Millisecond, time.Hour, true},
		{"far past timeout", 24 * time.Hour, time.Hour, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := "sender-" + tt.name
			r.Resolve(sender, false, tt.timeout)

			now = now.Add(tt.gap)
			_, rotated := r.Resolve(sender, false, tt.timeout)
			assert.Equal(t, tt.wantRotate, rotated)
		})
	}
}

func TestRegistry_ActivityRefreshPreventsExpiry(t *testing.T) {
	now := time.Now()
	r := NewRegistry(WithClock(func() time.Time { return now }))

	key, _ := r.Resolve("user1", false, time.Hour)

	// Keep touching the session every 30 minutes; it must never expire.
	for i := 0; i < 4; i++ {
		now = now.Add(30 * time.Minute)
		got, rotated := r.Resolve("user1", false, time.Hour)
		assert.Equal(t, key, got)
		assert.False(t, rotated)
	}
}

func TestRegistry_RotatedKeysUniqueAcrossResets(t *testing.T) {
	now := time.Now()
	r := NewRegistry(WithClock(func() time.Time { return now }))

	r.Resolve("user1", false, time.Hour)

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		now = now.Add(time.Millisecond)
		key, rotated := r.Resolve("user1", true, time.Hour)
		assert.True(t, rotated)
		assert.False(t, seen[key], "rotated key %q reused", key)
		seen[key] = true
	}
}

func TestRegistry_ConcurrentDistinctSenders(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sender := fmt.Sprintf("user%d", n)
			key, rotated := r.Resolve(sender, false, time.Hour)
			assert.Equal(t, sender, key)
			assert.False(t, rotated)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, r.ActiveCount())
}

func TestIsResetCommand(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"/new", true},
		{"/NEW", true},
		{"  /new  ", true},
		{"/reset", true},
		{"新会话", true},
		{"重新开始", true},
		{"重置会话", true},
		{"/new please", false},
		{"你好新会话", false},
		{"new", false},
		{"", false},
		{"hello", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, IsResetCommand(tt.input))
		})
	}
}
