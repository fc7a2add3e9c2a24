package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaClient_Send(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, "Bearer ollama-key", r.Header.Get("Authorization"))

		var req struct {
			Model    string    `json:"model"`
			Messages []Message `json:"messages"`
			Stream   *bool     `json:"stream"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3", req.Model)
		require.NotNil(t, req.Stream)
		assert.False(t, *req.Stream)
		assert.Len(t, req.Messages, 2)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"llama3","created_at":"2024-01-01T00:00:00Z","message":{"role":"assistant","content":"<circle r=\"40\"/>"},"done":true}`))
	}))
	defer server.Close()

	client, err := NewOllamaClient(server.URL, 0)
	require.NoError(t, err)

	reply, err := client.Send(context.Background(), "ollama-key", "llama3", []Message{
		{Role: RoleSystem, Content: "draw"},
		{Role: RoleUser, Content: "island"},
	})
	require.NoError(t, err)
	assert.Equal(t, `<circle r="40"/>`, reply)
}

func TestOllamaClient_SendStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model \"nope\" not found"}`))
	}))
	defer server.Close()

	client, err := NewOllamaClient(server.URL, 0)
	require.NoError(t, err)

	_, err = client.Send(context.Background(), "", "nope", []Message{{Role: RoleUser, Content: "x"}})
	require.Error(t, err)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusNotFound, te.StatusCode)
	assert.ErrorIs(t, err, ErrStatus)
}

func TestNewTransport(t *testing.T) {
	tr, err := NewTransport(Config{})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, tr)

	tr, err = NewTransport(Config{Provider: "Ollama", Endpoint: "http://localhost:11434"})
	require.NoError(t, err)
	assert.IsType(t, &OllamaClient{}, tr)

	_, err = NewTransport(Config{Provider: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", "  <rect/>\n", "<rect/>"},
		{"svg fence", "```svg\n<rect/>\n```", "<rect/>"},
		{"bare fence", "```\n<g></g>\n<rect/>\n```", "<g></g>\n<rect/>"},
		{"json fence", "```json\n{\"layers\":[]}\n```", "{\"layers\":[]}"},
		{"inner fence untouched", "text ```svg\n<rect/>\n``` more", "text ```svg\n<rect/>\n``` more"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFence(tt.in))
		})
	}
}
