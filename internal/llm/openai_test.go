package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/posteravatar/internal/config"
)

func newTestClient(url string) *Client {
	c := NewClient(config.LLMConfig{
		APIKey:       "key",
		BaseURL:      url + "/v1/",
		Model:        "gpt-4o-mini",
		MaxTokens:    150,
		Temperature:  0.9,
		SystemPrompt: "be grumpy",
		Timeout:      time.Second,
	})
	return c
}

func TestComplete_NoKey(t *testing.T) {
	c := NewClient(config.LLMConfig{BaseURL: "http://127.0.0.1:1"})
	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestComplete_RequestShape(t *testing.T) {
	var got chatCompletionsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"  Wubba lubba.  "}}]}`))
	}))
	defer srv.Close()

	reply, err := newTestClient(srv.URL).Complete(context.Background(), []Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "what"},
		{Role: "user", Content: "again"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Wubba lubba.", reply)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, 150, got.MaxTokens)
	assert.InDelta(t, 0.9, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, Message{Role: "system", Content: "be grumpy"}, got.Messages[0])
	assert.Equal(t, "again", got.Messages[3].Content)
}

func TestComplete_HTTPFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{"status_non_2xx", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(500)
			_, _ = w.Write([]byte("oops"))
		}, "status=500 body=oops"},
		{"bad_json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not-json"))
		}, "decode"},
		{"empty_choices", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}, "empty choices"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			_, err := newTestClient(srv.URL).Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestComplete_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := newTestClient(srv.URL).Complete(ctx, []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
