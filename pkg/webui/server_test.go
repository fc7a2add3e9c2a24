package webui

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/alantheprice/svgmap/pkg/chat"
	"github.com/alantheprice/svgmap/pkg/session"
	"github.com/alantheprice/svgmap/pkg/utils"
)

func newTestServer(tr chat.Transport, port int) *WebServer {
	log := utils.NewLogger(io.Discard, nil)
	sess := session.New(session.Config{Transport: tr, Model: "gpt-3.5-turbo", Logger: log})
	return NewWebServer(sess, port, log)
}

// TestCheckPortAvailable verifies port availability checking
func TestCheckPortAvailable(t *testing.T) {
	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("Failed to bind listener: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port

	if CheckPortAvailable(port) {
		t.Errorf("Expected port %d to be unavailable after binding", port)
	}
	listener.Close()
}

// TestFindAvailablePort verifies port finding logic
func TestFindAvailablePort(t *testing.T) {
	port := FindAvailablePort(DefaultPort)

	if port < DefaultPort || port > DefaultPort+100 {
		t.Errorf("Expected port in range [%d, %d], got %d", DefaultPort, DefaultPort+100, port)
	}
}

// TestStartFailsWhenPortAlreadyInUse verifies startup state remains consistent on bind failures.
func TestStartFailsWhenPortAlreadyInUse(t *testing.T) {
	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to reserve test port: %v", err)
	}
	defer listener.Close()

	port := listener.Addr().(*net.TCPAddr).Port
	server := newTestServer(nil, port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := server.Start(ctx); err == nil {
		t.Fatalf("expected Start to fail when port %d is already in use", port)
	}
	if server.IsRunning() {
		t.Fatalf("server should not report running after failed start on port %d", port)
	}
}

// TestStartServesHealthAndShutsDown verifies the full server lifecycle.
func TestStartServesHealthAndShutsDown(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	port := FindAvailablePort(DefaultPort + 200)
	server := newTestServer(nil, port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := server.Start(ctx); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if err := server.Start(ctx); err == nil {
		t.Error("expected second Start to fail")
	}

	resp, err := http.Get(fmt.Sprintf("http://localhost:%d/health", port))
	if err != nil {
		t.Fatalf("Failed to reach health endpoint: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var health map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("invalid health body: %v", err)
	}
	if health["status"] != "ok" || health["busy"] != false {
		t.Errorf("unexpected health body: %v", health)
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for server.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if server.IsRunning() {
		t.Error("server should stop when its context is cancelled")
	}
}
