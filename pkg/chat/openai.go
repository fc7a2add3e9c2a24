package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultEndpoint is the OpenAI chat-completions URL.
const DefaultEndpoint = "https://api.openai.com/v1/chat/completions"

// maxErrorBody bounds how much of an error reply is kept for diagnostics.
const maxErrorBody = 4 << 10

// OpenAIOptions configures an OpenAIClient.
type OpenAIOptions struct {
	Endpoint string
	Timeout  time.Duration
}

func (o *OpenAIOptions) defaults() {
	if o.Endpoint == "" {
		o.Endpoint = DefaultEndpoint
	}
	if o.Timeout <= 0 {
		o.Timeout = 2 * time.Minute
	}
}

// OpenAIClient talks to any OpenAI-compatible chat-completions endpoint.
type OpenAIClient struct {
	endpoint string
	do       func(*http.Request) (*http.Response, error)
}

// NewOpenAIClient creates a client for the configured endpoint.
func NewOpenAIClient(opts OpenAIOptions) *OpenAIClient {
	opts.defaults()
	hc := &http.Client{Timeout: opts.Timeout}
	return &OpenAIClient{
		endpoint: opts.Endpoint,
		do:       hc.Do,
	}
}

// Endpoint returns the URL requests are posted to.
func (c *OpenAIClient) Endpoint() string {
	return c.endpoint
}

type completionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Send posts {model, messages} and returns choices[0].message.content.
func (c *OpenAIClient) Send(ctx context.Context, credential, model string, messages []Message) (string, error) {
	body, err := json.Marshal(completionRequest{Model: model, Messages: messages})
	if err != nil {
		return "", &TransportError{Op: "request", Endpoint: c.endpoint, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &TransportError{Op: "request", Endpoint: c.endpoint, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	c.setHeaders(req, credential)

	resp, err := c.do(req)
	if err != nil {
		return "", &TransportError{Op: "request", Endpoint: c.endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &TransportError{
			Op:         "status",
			Endpoint:   c.endpoint,
			StatusCode: resp.StatusCode,
			Body:       errorMessage(slurp),
			Err:        ErrStatus,
		}
	}

	var cr completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", &TransportError{Op: "decode", Endpoint: c.endpoint, Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	if len(cr.Choices) == 0 || cr.Choices[0].Message.Content == "" {
		return "", &TransportError{Op: "decode", Endpoint: c.endpoint, Err: ErrEmptyReply}
	}
	return cr.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) setHeaders(req *http.Request, credential string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	// The credential is opaque and passed through untouched.
	req.Header.Set("Authorization", "Bearer "+credential)
}

func errorMessage(body []byte) string {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return apiErr.Error.Message
	}
	return strings.TrimSpace(string(body))
}
