package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
)

// DefaultOllamaHost is the local Ollama server address.
const DefaultOllamaHost = "http://localhost:11434"

// OllamaClient sends chat requests to an Ollama server's /api/chat endpoint.
type OllamaClient struct {
	base    *url.URL
	timeout time.Duration
	rt      http.RoundTripper
}

// NewOllamaClient creates a client for host. An empty host uses DefaultOllamaHost.
func NewOllamaClient(host string, timeout time.Duration) (*OllamaClient, error) {
	if host == "" {
		host = DefaultOllamaHost
	}
	base, err := url.Parse(strings.TrimRight(host, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &OllamaClient{base: base, timeout: timeout, rt: http.DefaultTransport}, nil
}

// Endpoint returns the server's chat URL.
func (c *OllamaClient) Endpoint() string {
	return c.base.String() + "/api/chat"
}

// Send issues a single non-streaming chat request.
func (c *OllamaClient) Send(ctx context.Context, credential, model string, messages []Message) (string, error) {
	hc := &http.Client{
		Timeout:   c.timeout,
		Transport: &bearerTransport{token: credential, base: c.rt},
	}
	client := ollama.NewClient(c.base, hc)

	ollamaMessages := make([]ollama.Message, len(messages))
	for i, msg := range messages {
		ollamaMessages[i] = ollama.Message{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	stream := false
	req := &ollama.ChatRequest{
		Model:    model,
		Messages: ollamaMessages,
		Stream:   &stream,
	}

	var reply strings.Builder
	err := client.Chat(ctx, req, func(res ollama.ChatResponse) error {
		reply.WriteString(res.Message.Content)
		return nil
	})
	if err != nil {
		var statusErr ollama.StatusError
		if errors.As(err, &statusErr) {
			return "", &TransportError{
				Op:         "status",
				Endpoint:   c.Endpoint(),
				StatusCode: statusErr.StatusCode,
				Body:       statusErr.ErrorMessage,
				Err:        ErrStatus,
			}
		}
		return "", &TransportError{Op: "request", Endpoint: c.Endpoint(), Err: err}
	}

	if reply.Len() == 0 {
		return "", &TransportError{Op: "decode", Endpoint: c.Endpoint(), Err: ErrEmptyReply}
	}
	return reply.String(), nil
}

// bearerTransport sets the credential as a bearer token on every request.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.token == "" {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(clone)
}
