package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrMalformedReply is returned when the response body has no message.
var ErrMalformedReply = errors.New("malformed chat reply")

// Message is a transcript entry on the wire.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the body of POST /api/chat.
type Request struct {
	Messages []Message `json:"messages"`
}

// Reply is a successful chat response. AudioURL is empty when no narration was produced.
type Reply struct {
	Message  string `json:"message"`
	AudioURL string `json:"audioUrl"`
}

// Client issues one conversational request.
type Client interface {
	Send(ctx context.Context, messages []Message) (Reply, error)
}

// HTTPClient posts conversations to a chat endpoint.
type HTTPClient struct {
	Endpoint   string
	HTTPClient *http.Client
}

// NewHTTPClient creates a client for endpoint.
func NewHTTPClient(endpoint string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		Endpoint:   endpoint,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

var _ Client = (*HTTPClient)(nil)

func (c *HTTPClient) Send(ctx context.Context, messages []Message) (Reply, error) {
	body, err := json.Marshal(Request{Messages: messages})
	if err != nil {
		return Reply{}, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Reply{}, fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Reply{}, fmt.Errorf("chat error: status=%d body=%s", resp.StatusCode, string(b))
	}

	var raw struct {
		Message  *string `json:"message"`
		AudioURL *string `json:"audioUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if raw.Message == nil {
		return Reply{}, ErrMalformedReply
	}
	reply := Reply{Message: *raw.Message}
	if raw.AudioURL != nil {
		reply.AudioURL = *raw.AudioURL
	}
	return reply, nil
}
