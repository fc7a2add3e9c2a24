// Package render requests the markup for each planned layer, one at a time,
// and composes it into the document.
package render

import (
	"context"
	"fmt"

	"github.com/alantheprice/svgmap/pkg/chat"
	"github.com/alantheprice/svgmap/pkg/layers"
	"github.com/alantheprice/svgmap/pkg/prompts"
	"github.com/alantheprice/svgmap/pkg/svgdoc"
	"github.com/alantheprice/svgmap/pkg/utils"
)

// RenderError reports the layer whose render call failed.
type RenderError struct {
	Index int
	Layer string
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("rendering layer %d (%s) failed: %v", e.Index+1, e.Layer, e.Err)
}

// Unwrap returns the underlying error for errors.Is and errors.As.
func (e *RenderError) Unwrap() error {
	return e.Err
}

// Observer is told about progress as layers complete.
type Observer interface {
	// LayerStarted is called after the layer's group is added, before the call.
	LayerStarted(index, total int, spec *layers.LayerSpec)
	// DocumentUpdated is called with the full serialization after each injection.
	DocumentUpdated(index, total int, spec *layers.LayerSpec, document string)
}

// NopObserver ignores all progress.
type NopObserver struct{}

func (NopObserver) LayerStarted(int, int, *layers.LayerSpec)            {}
func (NopObserver) DocumentUpdated(int, int, *layers.LayerSpec, string) {}

// Renderer issues one model call per layer.
type Renderer struct {
	transport chat.Transport
	model     string
	log       *utils.Logger
}

// New creates a Renderer. A nil logger uses the process logger.
func New(transport chat.Transport, model string, log *utils.Logger) *Renderer {
	if log == nil {
		log = utils.GetLogger()
	}
	return &Renderer{transport: transport, model: model, log: log}
}

// Messages builds the prompt for one layer given the current document.
func Messages(spec *layers.LayerSpec, snapshot string) []chat.Message {
	return []chat.Message{
		{Role: chat.RoleSystem, Content: prompts.ElementInstruction},
		{Role: chat.RoleUser, Content: prompts.LayerDescription(spec.Description)},
		{Role: chat.RoleUser, Content: prompts.ExistingElements(snapshot)},
	}
}

// RenderLayer returns the markup fragment for spec alone.
func (r *Renderer) RenderLayer(ctx context.Context, credential string, spec *layers.LayerSpec, snapshot string) (string, error) {
	reply, err := r.transport.Send(ctx, credential, r.model, Messages(spec, snapshot))
	if err != nil {
		return "", err
	}
	return chat.StripCodeFence(reply), nil
}

// State is the value threaded through the stage sequence: the document built
// so far and how many layers it holds.
type State struct {
	Doc       *svgdoc.Document
	Completed int
}

// Run renders every layer of plan in order into doc. Each layer's prompt sees
// the document as left by the previous layer plus the layer's own empty group.
// On failure the pending group is removed, earlier layers are kept and a
// *RenderError is returned.
func (r *Renderer) Run(ctx context.Context, credential string, plan layers.Plan, doc *svgdoc.Document, obs Observer) (State, error) {
	if obs == nil {
		obs = NopObserver{}
	}

	state := State{Doc: doc}
	for i := range plan {
		next, err := r.step(ctx, credential, plan, i, state, obs)
		if err != nil {
			return state, err
		}
		state = next
	}
	return state, nil
}

func (r *Renderer) step(ctx context.Context, credential string, plan layers.Plan, i int, state State, obs Observer) (State, error) {
	spec := plan[i]
	total := len(plan)

	if err := state.Doc.AddLayer(spec); err != nil {
		return state, &RenderError{Index: i, Layer: spec.Type, Err: err}
	}
	obs.LayerStarted(i, total, spec)
	r.log.LogProcessStep(fmt.Sprintf("Rendering layer %d/%d: %s", i+1, total, spec.Type))

	markup, err := r.RenderLayer(ctx, credential, spec, state.Doc.Serialize())
	if err != nil {
		state.Doc.RemoveLayer(spec.Type)
		return state, &RenderError{Index: i, Layer: spec.Type, Err: err}
	}

	if err := svgdoc.CheckWellFormed(markup); err != nil {
		r.log.Warnf("layer %s: %v", spec.Type, err)
	}
	if err := spec.SetMarkup(markup); err != nil {
		state.Doc.RemoveLayer(spec.Type)
		return state, &RenderError{Index: i, Layer: spec.Type, Err: err}
	}
	if err := state.Doc.InjectMarkup(spec.Type, markup); err != nil {
		return state, &RenderError{Index: i, Layer: spec.Type, Err: err}
	}

	obs.DocumentUpdated(i, total, spec, state.Doc.Serialize())
	return State{Doc: state.Doc, Completed: state.Completed + 1}, nil
}
