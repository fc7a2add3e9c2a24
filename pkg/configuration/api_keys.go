package configuration

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/alantheprice/svgmap/pkg/chat"
)

// APIKeyEnv is consulted when no key is given on the command line.
const APIKeyEnv = "OPENAI_API_KEY"

// ErrNoAPIKey is returned when no source yields a key.
var ErrNoAPIKey = errors.New("no API key provided")

// LookupAPIKey returns explicit, or the environment key when explicit is
// blank. It never prompts and may return "".
func LookupAPIKey(explicit string) string {
	if key := strings.TrimSpace(explicit); key != "" {
		return key
	}
	return strings.TrimSpace(os.Getenv(APIKeyEnv))
}

// ResolveAPIKey returns the first non-empty key from explicit, the
// environment and, when interactive is set, a hidden terminal prompt.
func ResolveAPIKey(provider, explicit string, interactive bool) (string, error) {
	if key := LookupAPIKey(explicit); key != "" {
		return key, nil
	}
	if !RequiresAPIKey(provider) {
		return "", nil
	}
	if !interactive {
		return "", fmt.Errorf("%w: pass --api-key or set %s", ErrNoAPIKey, APIKeyEnv)
	}
	return PromptForAPIKey(provider)
}

// PromptForAPIKey prompts the user for an API key
func PromptForAPIKey(provider string) (string, error) {
	return promptForAPIKey(provider, int(syscall.Stdin), os.Stdin, os.Stdout)
}

func promptForAPIKey(provider string, fd int, in io.Reader, out io.Writer) (string, error) {
	providerName := getProviderDisplayName(provider)
	fmt.Fprintf(out, "🔑 API key required for %s\n", providerName)
	fmt.Fprintf(out, "Please enter your %s API key: ", providerName)

	// Read API key securely (hidden input)
	byteKey, err := term.ReadPassword(fd)
	if err != nil {
		// Fall back to regular input if term doesn't work
		fmt.Fprintln(out)
		reader := bufio.NewReader(in)
		key, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && key != "") {
			return "", fmt.Errorf("failed to read API key: %w", err)
		}
		byteKey = []byte(key)
	} else {
		fmt.Fprintln(out) // New line after hidden input
	}

	apiKey := strings.TrimSpace(string(byteKey))
	if apiKey == "" {
		return "", ErrNoAPIKey
	}

	return apiKey, nil
}

// getProviderDisplayName returns a user-friendly name for the provider
func getProviderDisplayName(provider string) string {
	switch provider {
	case chat.ProviderOpenAI, "":
		return "OpenAI"
	case chat.ProviderOllama:
		return "Ollama"
	default:
		return provider
	}
}

// RequiresAPIKey checks if a provider requires an API key. Local Ollama
// servers accept unauthenticated requests.
func RequiresAPIKey(provider string) bool {
	return provider != chat.ProviderOllama
}
