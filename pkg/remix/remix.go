// Package remix revises a whole map document from a follow-up instruction.
package remix

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/alantheprice/svgmap/pkg/chat"
	"github.com/alantheprice/svgmap/pkg/prompts"
	"github.com/alantheprice/svgmap/pkg/svgdoc"
	"github.com/alantheprice/svgmap/pkg/utils"
)

// ErrEmptyInstruction is returned before any model call when the change
// description is blank.
var ErrEmptyInstruction = errors.New("remix instruction is empty")

// RemixError reports a failed remix. The previous document is never touched.
type RemixError struct {
	Err error
}

func (e *RemixError) Error() string {
	return fmt.Sprintf("remix failed: %v", e.Err)
}

// Unwrap returns the underlying error for errors.Is and errors.As.
func (e *RemixError) Unwrap() error {
	return e.Err
}

// DiffStats counts characters added and removed by a remix.
type DiffStats struct {
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
}

// Result is the replacement document.
type Result struct {
	Document string    `json:"document"`
	Stats    DiffStats `json:"stats"`
}

// Engine issues remix calls.
type Engine struct {
	transport chat.Transport
	model     string
	log       *utils.Logger
}

// New creates an Engine. A nil logger uses the process logger.
func New(transport chat.Transport, model string, log *utils.Logger) *Engine {
	if log == nil {
		log = utils.GetLogger()
	}
	return &Engine{transport: transport, model: model, log: log}
}

// Messages builds the remix prompt.
func Messages(document, instruction string) []chat.Message {
	return []chat.Message{
		{Role: chat.RoleSystem, Content: prompts.RemixInstruction},
		{Role: chat.RoleUser, Content: instruction},
		{Role: chat.RoleUser, Content: document},
	}
}

// Remix asks the model for a revised document. The reply replaces document
// wholesale; it is not decomposed back into layers.
func (e *Engine) Remix(ctx context.Context, credential, document, instruction string) (*Result, error) {
	if strings.TrimSpace(instruction) == "" {
		return nil, &RemixError{Err: ErrEmptyInstruction}
	}

	e.log.LogProcessStep("Remixing map: " + utils.Truncate(instruction, 80))
	reply, err := e.transport.Send(ctx, credential, e.model, Messages(document, instruction))
	if err != nil {
		return nil, &RemixError{Err: err}
	}

	revised := chat.StripCodeFence(reply)
	if err := svgdoc.CheckDocument(revised); err != nil {
		e.log.Warnf("remix reply: %v", err)
	}

	stats := Diff(document, revised)
	e.log.Logf("Remix complete: +%d -%d characters", stats.Additions, stats.Deletions)
	return &Result{Document: revised, Stats: stats}, nil
}

// Diff counts inserted and deleted characters between two documents.
func Diff(before, after string) DiffStats {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var stats DiffStats
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			stats.Additions += len(d.Text)
		case diffmatchpatch.DiffDelete:
			stats.Deletions += len(d.Text)
		}
	}
	return stats
}
