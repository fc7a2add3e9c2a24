// Package session holds the state of one map-making session: the inputs the
// user supplied, the document on display and the busy gate that keeps runs
// from overlapping.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/alantheprice/svgmap/pkg/chat"
	"github.com/alantheprice/svgmap/pkg/events"
	"github.com/alantheprice/svgmap/pkg/layers"
	"github.com/alantheprice/svgmap/pkg/planner"
	"github.com/alantheprice/svgmap/pkg/remix"
	"github.com/alantheprice/svgmap/pkg/render"
	"github.com/alantheprice/svgmap/pkg/svgdoc"
	"github.com/alantheprice/svgmap/pkg/utils"
)

// User-facing notifications for missing inputs.
const (
	MissingDescriptionMessage = "Please enter a description of the map."
	MissingCredentialMessage  = "Please enter an OpenAI API key"
)

var (
	ErrBusy               = errors.New("a generation or remix is already running")
	ErrMissingDescription = errors.New("map description is empty")
	ErrMissingCredential  = errors.New("API credential is empty")
	ErrNoDocument         = errors.New("no map to remix")
	ErrNoLayers           = errors.New("displayed map has no layers to reorder")
)

// LegendItem is one legend row as shown to the user.
type LegendItem struct {
	Key         string `json:"key"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Snapshot is a consistent copy of the display state.
type Snapshot struct {
	Busy        bool         `json:"busy"`
	RunID       string       `json:"run_id,omitempty"`
	Description string       `json:"description"`
	HasKey      bool         `json:"has_credential"`
	Document    string       `json:"document"`
	Legend      []LegendItem `json:"legend"`
	Layered     bool         `json:"layered"`
}

// Config wires a Session to its collaborators.
type Config struct {
	Transport chat.Transport
	Model     string
	Logger    *utils.Logger
	Bus       *events.EventBus
}

// Session is the run context shared by the pipeline stages.
type Session struct {
	transport chat.Transport
	model     string
	log       *utils.Logger
	bus       *events.EventBus

	busy atomic.Bool

	mu          sync.RWMutex
	credential  string
	description string
	runID       string
	doc         *svgdoc.Document // nil when the display holds a remix result
	document    string
	legend      []LegendItem
}

// New creates a Session. A nil logger uses the process logger and a nil bus
// gets a private one.
func New(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = utils.GetLogger()
	}
	if cfg.Bus == nil {
		cfg.Bus = events.NewEventBus()
	}
	return &Session{
		transport: cfg.Transport,
		model:     cfg.Model,
		log:       cfg.Logger,
		bus:       cfg.Bus,
	}
}

// Events returns the bus progress is published on.
func (s *Session) Events() *events.EventBus {
	return s.bus
}

// SetCredential stores the API credential used for subsequent runs. It is
// passed to the transport exactly as given.
func (s *Session) SetCredential(credential string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credential = credential
}

// SetDescription stores the scene description used by Generate.
func (s *Session) SetDescription(description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.description = description
}

// SetDocument loads an existing document for display, for example before a
// remix. It has no layers. It fails with ErrBusy while a run is in flight.
func (s *Session) SetDocument(document string) error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.busy.Store(false)

	s.mu.Lock()
	s.doc = nil
	s.document = document
	s.legend = nil
	s.mu.Unlock()
	s.publishDisplay("")
	return nil
}

// Busy reports whether a run is in flight.
func (s *Session) Busy() bool {
	return s.busy.Load()
}

// Document returns the serialized document on display.
func (s *Session) Document() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.document
}

// Legend returns the legend on display, in draw order.
func (s *Session) Legend() []LegendItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]LegendItem(nil), s.legend...)
}

// State returns a copy of the whole display state.
func (s *Session) State() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Busy:        s.busy.Load(),
		RunID:       s.runID,
		Description: s.description,
		HasKey:      strings.TrimSpace(s.credential) != "",
		Document:    s.document,
		Legend:      append([]LegendItem(nil), s.legend...),
		Layered:     s.doc != nil,
	}
}

// Generate plans the stored description and renders it layer by layer,
// updating the display after every layer. A failure keeps the layers
// rendered so far on display.
func (s *Session) Generate(ctx context.Context) error {
	if !s.acquire() {
		return ErrBusy
	}
	defer s.release()

	credential, description := s.inputs()
	if strings.TrimSpace(description) == "" {
		s.notify(MissingDescriptionMessage)
		return ErrMissingDescription
	}
	if strings.TrimSpace(credential) == "" {
		s.notify(MissingCredentialMessage)
		return ErrMissingCredential
	}

	runID := s.newRun()
	log := s.log.WithCorrelationID(runID)
	log.Logf("Generation started: %s", utils.Truncate(description, 120))
	s.bus.Publish(events.EventTypeGenerationStarted, map[string]interface{}{
		"run_id":      runID,
		"description": description,
	})

	plan, err := planner.New(s.transport, s.model, log).Plan(ctx, credential, description)
	if err != nil {
		return s.fail(log, "Could not plan the map", err)
	}
	s.bus.Publish(events.EventTypePlanReady, map[string]interface{}{
		"run_id": runID,
		"layers": planEntries(plan),
	})

	doc := svgdoc.New()
	s.display(doc)

	obs := &displayObserver{session: s, runID: runID, doc: doc}
	state, err := render.New(s.transport, s.model, log).Run(ctx, credential, plan, doc, obs)
	if err != nil {
		s.display(doc)
		return s.fail(log, "Could not finish the map", err)
	}

	log.Logf("Generation complete: %d layers", state.Completed)
	return nil
}

// Remix asks the model to revise the displayed document. On success the
// reply replaces the display and the layer structure is dropped; on failure
// the display is untouched.
func (s *Session) Remix(ctx context.Context, instruction string) error {
	if !s.acquire() {
		return ErrBusy
	}
	defer s.release()

	credential, _ := s.inputs()
	document := s.Document()
	if document == "" {
		s.notify("Generate a map before remixing it.")
		return ErrNoDocument
	}
	if strings.TrimSpace(credential) == "" {
		s.notify(MissingCredentialMessage)
		return ErrMissingCredential
	}

	runID := s.newRun()
	log := s.log.WithCorrelationID(runID)

	result, err := remix.New(s.transport, s.model, log).Remix(ctx, credential, document, instruction)
	if err != nil {
		return s.fail(log, "Could not remix the map", err)
	}

	s.mu.Lock()
	s.doc = nil
	s.document = result.Document
	s.legend = nil
	s.mu.Unlock()

	s.bus.Publish(events.EventTypeRemixCompleted, map[string]interface{}{
		"run_id":    runID,
		"additions": result.Stats.Additions,
		"deletions": result.Stats.Deletions,
	})
	s.publishDisplay(runID)
	return nil
}

// Reorder restacks the displayed layers so keys are drawn in the given
// order, last on top.
func (s *Session) Reorder(keys []string) error {
	// Held without busy events: a reorder is instant and never calls the model.
	if !s.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.busy.Store(false)

	s.mu.Lock()
	if s.doc == nil {
		s.mu.Unlock()
		return ErrNoLayers
	}
	if err := s.doc.Reorder(keys); err != nil {
		s.mu.Unlock()
		s.log.LogError(err)
		return err
	}
	s.document = s.doc.Serialize()
	s.legend = legendItems(s.doc.Legend())
	runID := s.runID
	s.mu.Unlock()

	s.publishDisplay(runID)
	return nil
}

func (s *Session) acquire() bool {
	if !s.busy.CompareAndSwap(false, true) {
		return false
	}
	s.bus.Publish(events.EventTypeBusyChanged, events.BusyEvent(true))
	return true
}

func (s *Session) release() {
	s.busy.Store(false)
	s.bus.Publish(events.EventTypeBusyChanged, events.BusyEvent(false))
}

func (s *Session) inputs() (credential, description string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential, s.description
}

func (s *Session) newRun() string {
	id := uuid.NewString()
	s.mu.Lock()
	s.runID = id
	s.mu.Unlock()
	return id
}

func (s *Session) notify(message string) {
	s.log.Log(message)
	s.bus.Publish(events.EventTypeNotification, events.NotificationEvent(message))
}

func (s *Session) fail(log *utils.Logger, message string, err error) error {
	log.LogError(fmt.Errorf("%s: %w", message, err))
	s.bus.Publish(events.EventTypeError, events.ErrorEvent(message, err))
	s.notify(fmt.Sprintf("%s: %v", message, err))
	return err
}

// display copies doc into the display state and publishes it.
func (s *Session) display(doc *svgdoc.Document) {
	s.mu.Lock()
	s.doc = doc
	s.document = doc.Serialize()
	s.legend = legendItems(doc.Legend())
	runID := s.runID
	s.mu.Unlock()
	s.publishDisplay(runID)
}

func (s *Session) publishDisplay(runID string) {
	s.mu.RLock()
	document := s.document
	legend := append([]LegendItem(nil), s.legend...)
	s.mu.RUnlock()

	s.bus.Publish(events.EventTypeDocumentUpdated, events.DocumentEvent(runID, document))
	s.bus.Publish(events.EventTypeLegendUpdated, map[string]interface{}{
		"run_id": runID,
		"legend": legend,
	})
}

func legendItems(entries []svgdoc.LegendEntry) []LegendItem {
	items := make([]LegendItem, len(entries))
	for i, e := range entries {
		items[i] = LegendItem{
			Key:         e.Type,
			Title:       utils.CapitalizeWords(e.Type),
			Description: e.Description,
		}
	}
	return items
}

func planEntries(plan layers.Plan) []map[string]string {
	out := make([]map[string]string, len(plan))
	for i, l := range plan {
		out[i] = map[string]string{"type": l.Type, "description": l.Description}
	}
	return out
}

// displayObserver mirrors render progress into the session display.
type displayObserver struct {
	session *Session
	runID   string
	doc     *svgdoc.Document
}

func (o *displayObserver) LayerStarted(index, total int, spec *layers.LayerSpec) {
	o.session.bus.Publish(events.EventTypeLayerStarted,
		events.LayerEvent(o.runID, index, total, spec.Type, spec.Description))
}

func (o *displayObserver) DocumentUpdated(index, total int, spec *layers.LayerSpec, _ string) {
	o.session.bus.Publish(events.EventTypeLayerRendered,
		events.LayerEvent(o.runID, index, total, spec.Type, spec.Description))
	o.session.display(o.doc)
}
