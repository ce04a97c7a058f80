package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_Send(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"message":"Hi","audioUrl":"data:audio/mp3;base64,AAA"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	reply, err := c.Send(context.Background(), []Message{{Role: "user", Content: "Hello"}})
	require.NoError(t, err)
	assert.Equal(t, Reply{Message: "Hi", AudioURL: "data:audio/mp3;base64,AAA"}, reply)
	assert.Equal(t, []Message{{Role: "user", Content: "Hello"}}, got.Messages)
}

func TestHTTPClient_NullAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"Hi","audioUrl":null}`))
	}))
	defer srv.Close()

	reply, err := NewHTTPClient(srv.URL, time.Second).Send(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Reply{Message: "Hi"}, reply)
}

func TestHTTPClient_Failures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{"status_non_2xx", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"Internal server error"}`))
		}, "status=500"},
		{"bad_json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		}, "malformed"},
		{"missing_message", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"audioUrl":null}`))
		}, "malformed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			_, err := NewHTTPClient(srv.URL, time.Second).Send(context.Background(), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
