package chat

import (
	"fmt"
	"strings"
	"time"
)

// Supported provider names.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Config selects and configures a Transport.
type Config struct {
	Provider string
	Endpoint string
	Timeout  time.Duration
}

// NewTransport builds the transport named by cfg.Provider.
func NewTransport(cfg Config) (Transport, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOpenAI:
		return NewOpenAIClient(OpenAIOptions{Endpoint: cfg.Endpoint, Timeout: cfg.Timeout}), nil
	case ProviderOllama:
		return NewOllamaClient(cfg.Endpoint, cfg.Timeout)
	default:
		return nil, fmt.Errorf("unknown provider %q (supported: %s, %s)", cfg.Provider, ProviderOpenAI, ProviderOllama)
	}
}
