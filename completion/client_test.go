package completion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhuxian89/dingtalk-moltbot-connector/credentials"
)

func collectFragments(t *testing.T, ch <-chan Fragment) (deltas []string, streamErr error) {
	t.Helper()
	for frag := range ch {
		if frag.Err != nil {
			streamErr = frag.Err
			continue
		}
		deltas = append(deltas, frag.Delta)
	}
	return deltas, streamErr
}

func TestClient_StreamYieldsDeltas(t *testing.T) {
	var gotBody chatRequestBody
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, chatCompletionsPath, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(`data: {"choices":[{"delta":{"content":"Hello"}}]}` + "\n\n"))
		_, _ = w.Write([]byte(`data: {"choices":[{"delta":{"content":" world"}}]}` + "\n\n"))
		_, _ = w.Write([]byte(`data: {"choices":[{"delta":{}}]}` + "\n\n"))
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-model")

	ch, err := client.Stream(context.Background(), ChatRequest{
		UserText:        "hi",
		SystemPrompts:   []string{"be brief", "answer in English"},
		ConversationKey: "user1_123",
	})
	require.NoError(t, err)

	deltas, streamErr := collectFragments(t, ch)
	require.NoError(t, streamErr)
	assert.Equal(t, []string{"Hello", " world"}, deltas)

	// Request body shape: system prompts in order, then the user message.
	assert.Equal(t, "test-model", gotBody.Model)
	assert.True(t, gotBody.Stream)
	assert.Equal(t, "user1_123", gotBody.User)
	require.Len(t, gotBody.Messages, 3)
	assert.Equal(t, chatMessage{Role: "system", Content: "be brief"}, gotBody.Messages[0])
	assert.Equal(t, chatMessage{Role: "system", Content: "answer in English"}, gotBody.Messages[1])
	assert.Equal(t, chatMessage{Role: "user", Content: "hi"}, gotBody.Messages[2])
}

func TestClient_StreamSkipsMalformedRecords(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data: {not json\n\n"))
		_, _ = w.Write([]byte(`data: {"choices":[]}` + "\n\n"))
		_, _ = w.Write([]byte(`data: {"choices":[{"delta":{"content":"ok"}}]}` + "\n\n"))
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-model")
	ch, err := client.Stream(context.Background(), ChatRequest{UserText: "hi"})
	require.NoError(t, err)

	deltas, streamErr := collectFragments(t, ch)
	require.NoError(t, streamErr)
	assert.Equal(t, []string{"ok"}, deltas)
}

func TestClient_StreamStopsAtFinishReason(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`data: {"choices":[{"delta":{"content":"done"},"finish_reason":"stop"}]}` + "\n\n"))
		_, _ = w.Write([]byte(`data: {"choices":[{"delta":{"content":"never seen"}}]}` + "\n\n"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-model")
	ch, err := client.Stream(context.Background(), ChatRequest{UserText: "hi"})
	require.NoError(t, err)

	deltas, streamErr := collectFragments(t, ch)
	require.NoError(t, streamErr)
	assert.Equal(t, []string{"done"}, deltas)
}

func TestClient_NonSuccessStatusFailsBeforeFragments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-model")
	_, err := client.Stream(context.Background(), ChatRequest{UserText: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestClient_CredentialApplied(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-model",
		WithCredential(credentials.NewStaticCredential("sk-test")))

	ch, err := client.Stream(context.Background(), ChatRequest{UserText: "hi"})
	require.NoError(t, err)
	for range ch {
	}

	assert.Equal(t, "Bearer sk-test", gotAuth)
}

func TestClient_CancellationStopsStream(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		_, _ = w.Write([]byte(`data: {"choices":[{"delta":{"content":"first"}}]}` + "\n\n"))
		flusher.Flush()
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(server.URL, "test-model")

	ch, err := client.Stream(ctx, ChatRequest{UserText: "hi"})
	require.NoError(t, err)

	frag := <-ch
	assert.Equal(t, "first", frag.Delta)

	cancel()

	// The channel must close promptly once the context is cancelled.
	select {
	case _, open := <-ch:
		if open {
			// Drain the terminal error fragment, if any, then expect closure.
			_, open = <-ch
			assert.False(t, open)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after cancellation")
	}
}
