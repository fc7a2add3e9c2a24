// Package webui exposes a session to a browser or script over HTTP, with a
// websocket stream of progress events.
package webui

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alantheprice/svgmap/pkg/events"
	"github.com/alantheprice/svgmap/pkg/session"
	"github.com/alantheprice/svgmap/pkg/utils"
)

// DefaultPort is used when no port is configured.
const DefaultPort = 54321

// ConnectionInfo stores metadata about a WebSocket connection
type ConnectionInfo struct {
	SessionID   string
	ConnectedAt time.Time
}

// WebServer serves the map-making API for one session.
type WebServer struct {
	session     *session.Session
	eventBus    *events.EventBus
	log         *utils.Logger
	port        int
	server      *http.Server
	upgrader    websocket.Upgrader
	connections sync.Map // map[*websocket.Conn]*ConnectionInfo
	isRunning   bool
	mutex       sync.RWMutex
	startTime   time.Time

	// runCtx bounds background generate and remix runs.
	runCtx context.Context
	runs   sync.WaitGroup
}

// NewWebServer creates a web server for sess. A nil logger uses the process
// logger.
func NewWebServer(sess *session.Session, port int, log *utils.Logger) *WebServer {
	if port == 0 {
		port = DefaultPort
	}
	if log == nil {
		log = utils.GetLogger()
	}

	return &WebServer{
		session:  sess,
		eventBus: sess.Events(),
		log:      log,
		port:     port,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				return strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1")
			},
		},
		startTime: time.Now(),
		runCtx:    context.Background(),
	}
}

// Handler returns the HTTP routes.
func (ws *WebServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ws.handleWebSocket)
	mux.HandleFunc("/api/credential", ws.handleAPICredential)
	mux.HandleFunc("/api/description", ws.handleAPIDescription)
	mux.HandleFunc("/api/generate", ws.handleAPIGenerate)
	mux.HandleFunc("/api/remix", ws.handleAPIRemix)
	mux.HandleFunc("/api/reorder", ws.handleAPIReorder)
	mux.HandleFunc("/api/document", ws.handleAPIDocument)
	mux.HandleFunc("/api/legend", ws.handleAPILegend)
	mux.HandleFunc("/api/state", ws.handleAPIState)

	// Health check endpoint for connectivity verification
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "ok",
			"port":   ws.port,
			"uptime": time.Since(ws.startTime).String(),
			"busy":   ws.session.Busy(),
		})
	})
	return mux
}

// Start binds the port and serves until ctx is cancelled.
func (ws *WebServer) Start(ctx context.Context) error {
	ws.mutex.Lock()
	if ws.isRunning {
		ws.mutex.Unlock()
		return fmt.Errorf("web server is already running")
	}

	listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", fmt.Sprintf(":%d", ws.port))
	if err != nil {
		ws.mutex.Unlock()
		return fmt.Errorf("failed to bind port %d: %w", ws.port, err)
	}

	ws.runCtx = ctx
	ws.server = &http.Server{
		Handler:           ws.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ws.isRunning = true
	ws.mutex.Unlock()

	go func() {
		ws.log.LogProcessStep(fmt.Sprintf("🌐 svgmap API listening at http://localhost:%d", ws.port))
		if err := ws.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			ws.log.LogError(fmt.Errorf("web server error: %w", err))
		}
	}()

	go func() {
		<-ctx.Done()
		ws.Shutdown()
	}()

	return nil
}

// Shutdown gracefully shuts down the web server
func (ws *WebServer) Shutdown() error {
	ws.mutex.Lock()
	if !ws.isRunning {
		ws.mutex.Unlock()
		return nil
	}
	ws.isRunning = false
	ws.mutex.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws.connections.Range(func(conn, _ interface{}) bool {
		if wsConn, ok := conn.(*websocket.Conn); ok {
			wsConn.Close()
		}
		return true
	})

	return ws.server.Shutdown(ctx)
}

// Wait blocks until background runs started by the API have finished.
func (ws *WebServer) Wait() {
	ws.runs.Wait()
}

// IsRunning returns true if the web server is running
func (ws *WebServer) IsRunning() bool {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()
	return ws.isRunning
}

// GetPort returns the port the web server is running on
func (ws *WebServer) GetPort() int {
	return ws.port
}

func (ws *WebServer) countConnections() int {
	count := 0
	ws.connections.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// CheckPortAvailable checks if a port is available to bind to
func CheckPortAvailable(port int) bool {
	listener, err := (&net.ListenConfig{}).Listen(context.Background(), "tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	listener.Close()
	return true
}

// FindAvailablePort finds an available port starting from a base port
func FindAvailablePort(basePort int) int {
	port := basePort
	for port < basePort+100 {
		if CheckPortAvailable(port) {
			return port
		}
		port++
	}
	return basePort + 100
}
