package webui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/alantheprice/svgmap/pkg/session"
	"github.com/alantheprice/svgmap/pkg/svgdoc"
)

// maxBodyBytes bounds request bodies; remix instructions and descriptions
// are short, documents are read from the session.
const maxBodyBytes = 1 << 20

type credentialRequest struct {
	APIKey string `json:"api_key"`
}

type descriptionRequest struct {
	Description string `json:"description"`
}

type remixRequest struct {
	Instruction string `json:"instruction"`
	Document    string `json:"document,omitempty"`
}

type reorderRequest struct {
	Order []string `json:"order"`
}

// decodeBody decodes a JSON POST body into v, writing the error response
// itself when it returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

// handleAPICredential stores the API key for later runs. The key is never
// echoed back.
func (ws *WebServer) handleAPICredential(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ws.session.SetCredential(req.APIKey)
	writeJSON(w, http.StatusOK, map[string]interface{}{"has_credential": ws.session.State().HasKey})
}

func (ws *WebServer) handleAPIDescription(w http.ResponseWriter, r *http.Request) {
	var req descriptionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ws.session.SetDescription(req.Description)
	writeJSON(w, http.StatusOK, map[string]interface{}{"description": req.Description})
}

// handleAPIGenerate starts a generation in the background. An optional
// description in the body replaces the stored one first.
func (ws *WebServer) handleAPIGenerate(w http.ResponseWriter, r *http.Request) {
	var req descriptionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if ws.session.Busy() {
		http.Error(w, session.ErrBusy.Error(), http.StatusConflict)
		return
	}
	if req.Description != "" {
		ws.session.SetDescription(req.Description)
	}

	ws.background("generate", ws.session.Generate)
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"status": "started"})
}

// handleAPIRemix starts a remix of the displayed document in the
// background. A document in the body is loaded first.
func (ws *WebServer) handleAPIRemix(w http.ResponseWriter, r *http.Request) {
	var req remixRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if ws.session.Busy() {
		http.Error(w, session.ErrBusy.Error(), http.StatusConflict)
		return
	}
	if req.Document != "" {
		if err := ws.session.SetDocument(req.Document); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
	}

	instruction := req.Instruction
	ws.background("remix", func(ctx context.Context) error {
		return ws.session.Remix(ctx, instruction)
	})
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"status": "started"})
}

func (ws *WebServer) handleAPIReorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	err := ws.session.Reorder(req.Order)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]interface{}{"legend": ws.session.Legend()})
	case errors.Is(err, session.ErrBusy):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, session.ErrNoLayers),
		errors.Is(err, svgdoc.ErrUnknownLayer),
		errors.Is(err, svgdoc.ErrDuplicateLayer):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, fmt.Sprintf("Reorder failed: %v", err), http.StatusInternalServerError)
	}
}

func (ws *WebServer) handleAPIDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	doc := ws.session.Document()
	if doc == "" {
		http.Error(w, "No map yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Write([]byte(doc))
}

func (ws *WebServer) handleAPILegend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	legend := ws.session.Legend()
	if legend == nil {
		legend = []session.LegendItem{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"legend": legend})
}

func (ws *WebServer) handleAPIState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session":     ws.session.State(),
		"connections": ws.countConnections(),
	})
}

// background runs fn detached from the request. Failures reach clients as
// events; here they are only logged.
func (ws *WebServer) background(name string, fn func(context.Context) error) {
	ws.mutex.RLock()
	ctx := ws.runCtx
	ws.mutex.RUnlock()

	ws.runs.Add(1)
	go func() {
		defer ws.runs.Done()
		if err := fn(ctx); err != nil {
			ws.log.Logf("%s run ended: %v", name, err)
		}
	}()
}
