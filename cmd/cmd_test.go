package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alantheprice/svgmap/pkg/configuration"
	"github.com/alantheprice/svgmap/pkg/prompts"
	"github.com/alantheprice/svgmap/pkg/utils"
)

const islandPlan = `{"layers":[{"type":"background","desc":"Ocean."},{"type":"island","desc":"Sand."},{"type":"trees","desc":"Palms."}]}`

// fakeCompletions serves the chat-completions contract. failAfter, when
// positive, makes every call past that count return 500.
func fakeCompletions(t *testing.T, failAfter int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		n := calls.Add(1)
		if failAfter > 0 && n > failAfter {
			http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusInternalServerError)
			return
		}

		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		content := fmt.Sprintf(`<rect id="r%d"/>`, n)
		switch req.Messages[0].Content {
		case prompts.PlannerInstruction:
			content = islandPlan
		case prompts.RemixInstruction:
			content = `<svg xmlns="http://www.w3.org/2000/svg"><circle r="9"/></svg>`
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []interface{}{
				map[string]interface{}{"message": map[string]string{"role": "assistant", "content": content}},
			},
		})
	}))
	t.Cleanup(ts.Close)
	return ts, &calls
}

// execute runs the root command with a config pointing at endpoint.
func execute(t *testing.T, endpoint string, args ...string) (string, error) {
	t.Helper()
	var stderr bytes.Buffer
	err := executeTo(t, &stderr, endpoint, args...)
	return stderr.String(), err
}

func executeTo(t *testing.T, stderr io.Writer, endpoint string, args ...string) error {
	t.Helper()

	prevLogger, prevLoad := getLogger, loadConfig
	t.Cleanup(func() {
		getLogger, loadConfig = prevLogger, prevLoad
		opts = globalOptions{}
		generateOutput, generateLegend = "", false
		remixInput, remixOutput = "", ""
		servePort = 0
		initForce = false
		serveCmd.SetContext(context.Background())
	})
	log := utils.NewLogger(io.Discard, nil)
	getLogger = func() *utils.Logger { return log }
	loadConfig = func() (*configuration.Config, error) {
		cfg := configuration.NewConfig()
		cfg.Endpoint = endpoint
		return cfg, nil
	}

	rootCmd.SetErr(stderr)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

// lockedBuffer is a bytes.Buffer safe to read while a command writes to it.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestGenerateWritesLayeredMap(t *testing.T) {
	ts, calls := fakeCompletions(t, 0)
	out := filepath.Join(t.TempDir(), "island.svg")

	stderr, err := execute(t, ts.URL, "generate", "--api-key", "sk-test", "-o", out, "--legend",
		"A small island with a sandy beach and a few palm trees")
	require.NoError(t, err)
	assert.Equal(t, int32(4), calls.Load())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	doc := string(data)
	assert.Contains(t, doc, `<g id="background"><rect id="r2"/></g><g id="island"><rect id="r3"/></g><g id="trees"><rect id="r4"/></g>`)

	assert.Contains(t, stderr, "Legend")
	assert.Contains(t, stderr, "Background: Ocean.")
	assert.Less(t, strings.Index(stderr, "Island"), strings.Index(stderr, "Trees"))
}

func TestGenerateRunLogJournalsEvents(t *testing.T) {
	ts, _ := fakeCompletions(t, 0)
	dir := t.TempDir()
	journal := filepath.Join(dir, "run.jsonl")

	_, err := execute(t, ts.URL, "generate", "--api-key", "sk-test", "--run-log", journal,
		"-o", filepath.Join(dir, "map.svg"), "island")
	require.NoError(t, err)

	data, err := os.ReadFile(journal)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"plan_ready"`)
	assert.Contains(t, string(data), `"type":"layer_rendered"`)
	assert.NotContains(t, string(data), "sk-test")
}

func TestGenerateKeepsPartialMapOnFailure(t *testing.T) {
	ts, calls := fakeCompletions(t, 3)
	out := filepath.Join(t.TempDir(), "partial.svg")

	_, err := execute(t, ts.URL, "generate", "--api-key", "sk-test", "-o", out, "island")
	require.Error(t, err)
	assert.Equal(t, int32(4), calls.Load())

	data, readErr := os.ReadFile(out)
	require.NoError(t, readErr)
	assert.Contains(t, string(data), `<g id="island">`)
	assert.NotContains(t, string(data), `id="trees"`)
}

func TestGenerateWithoutKeyFails(t *testing.T) {
	t.Setenv(configuration.APIKeyEnv, "")
	ts, calls := fakeCompletions(t, 0)

	_, err := execute(t, ts.URL, "generate", "island")
	assert.ErrorIs(t, err, configuration.ErrNoAPIKey)
	assert.Zero(t, calls.Load())
}

func TestServeStartsWithoutKeyOnFallbackPort(t *testing.T) {
	t.Setenv(configuration.APIKeyEnv, "")
	ts, calls := fakeCompletions(t, 0)

	taken, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer taken.Close()
	takenPort := taken.Addr().(*net.TCPAddr).Port

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveCmd.SetContext(ctx)

	var stderr lockedBuffer
	done := make(chan error, 1)
	go func() {
		done <- executeTo(t, &stderr, ts.URL, "serve", "--port", strconv.Itoa(takenPort))
	}()

	urlPattern := regexp.MustCompile(`http://localhost:(\d+)`)
	var base string
	require.Eventually(t, func() bool {
		m := urlPattern.FindStringSubmatch(stderr.String())
		if m == nil {
			return false
		}
		base = m[0]
		return true
	}, 5*time.Second, 10*time.Millisecond, "serve never reported its address")
	assert.NotEqual(t, fmt.Sprintf("http://localhost:%d", takenPort), base)

	type sessionState struct {
		Session struct {
			HasKey   bool   `json:"has_credential"`
			Document string `json:"document"`
		} `json:"session"`
	}
	readState := func() (sessionState, error) {
		var state sessionState
		resp, err := http.Get(base + "/api/state")
		if err != nil {
			return state, err
		}
		defer resp.Body.Close()
		err = json.NewDecoder(resp.Body).Decode(&state)
		return state, err
	}
	postJSON := func(path, body string) int {
		resp, err := http.Post(base+path, "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	state, err := readState()
	require.NoError(t, err)
	assert.False(t, state.Session.HasKey)

	assert.Equal(t, http.StatusOK, postJSON("/api/credential", `{"api_key":"sk-test"}`))
	state, err = readState()
	require.NoError(t, err)
	assert.True(t, state.Session.HasKey)

	assert.Equal(t, http.StatusAccepted, postJSON("/api/generate", `{"description":"An island"}`))
	require.Eventually(t, func() bool {
		state, err := readState()
		return err == nil && strings.Contains(state.Session.Document, `<g id="trees">`)
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(4), calls.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop after cancellation")
	}
}

func TestInitWritesConfigOnce(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(home, configuration.ConfigDirName, configuration.ConfigFileName)

	stderr, err := execute(t, "http://localhost:11434", "init", "--model", "gpt-4o", "--api-key", "sk-test")
	require.NoError(t, err)
	assert.Contains(t, stderr, path)

	cfg, err := configuration.LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, "http://localhost:11434", cfg.Endpoint)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-test")

	_, err = execute(t, "http://localhost:11434", "init", "--model", "gpt-4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	_, err = execute(t, "http://localhost:11434", "init", "--model", "gpt-4", "--force")
	require.NoError(t, err)
	cfg, err = configuration.LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4", cfg.Model)
}

func TestRemixRewritesFile(t *testing.T) {
	ts, _ := fakeCompletions(t, 0)
	dir := t.TempDir()
	in := filepath.Join(dir, "in.svg")
	out := filepath.Join(dir, "out.svg")
	require.NoError(t, os.WriteFile(in, []byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`), 0644))

	stderr, err := execute(t, ts.URL, "remix", "--api-key", "sk-test", "-i", in, "-o", out, "add", "a", "moon")
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `<circle r="9"/>`)
	assert.Contains(t, stderr, "Remixed: +")
}

func TestCommandArgsValidation(t *testing.T) {
	for _, c := range []*cobra.Command{generateCmd, remixCmd} {
		require.NotNil(t, c.Args, c.Name())
		assert.Error(t, c.Args(c, []string{}), c.Name())
		assert.NoError(t, c.Args(c, []string{"a description"}), c.Name())
	}
	assert.Error(t, serveCmd.Args(serveCmd, []string{"extra"}))
	assert.Error(t, initCmd.Args(initCmd, []string{"extra"}))
}

func TestCommandHelp(t *testing.T) {
	for _, c := range []*cobra.Command{generateCmd, remixCmd, serveCmd, initCmd} {
		assert.NotEmpty(t, c.Short, c.Name())
		assert.Contains(t, c.Long, "Examples:", c.Name())
		assert.Contains(t, c.Long, "svgmap "+c.Name(), c.Name())
	}
	assert.Equal(t, "generate [description]", generateCmd.Use)
	assert.NotNil(t, remixCmd.Flags().Lookup("input"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("api-key"))
}

func TestVersionInfo(t *testing.T) {
	var buf bytes.Buffer
	printVersionInfo(&buf)
	assert.Contains(t, buf.String(), "svgmap version dev")
	assert.Contains(t, buf.String(), "Platform: ")
}
