// Package planner asks the model to decompose a scene description into an
// ordered list of layers.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/alantheprice/svgmap/pkg/chat"
	"github.com/alantheprice/svgmap/pkg/layers"
	"github.com/alantheprice/svgmap/pkg/prompts"
	"github.com/alantheprice/svgmap/pkg/utils"
)

var (
	// ErrEmptyDescription is returned before any model call when the scene is blank.
	ErrEmptyDescription = errors.New("scene description is empty")
	// ErrMissingLayers marks a reply without a "layers" list.
	ErrMissingLayers = errors.New(`reply has no "layers" list`)
)

// PlanParseError reports a planner reply that could not be read as a plan.
type PlanParseError struct {
	Reply string
	Err   error
}

func (e *PlanParseError) Error() string {
	return fmt.Sprintf("failed to parse layer plan: %v", e.Err)
}

// Unwrap returns the underlying error for errors.Is and errors.As.
func (e *PlanParseError) Unwrap() error {
	return e.Err
}

// Planner issues the planning call.
type Planner struct {
	transport chat.Transport
	model     string
	log       *utils.Logger
}

// New creates a Planner. A nil logger uses the process logger.
func New(transport chat.Transport, model string, log *utils.Logger) *Planner {
	if log == nil {
		log = utils.GetLogger()
	}
	return &Planner{transport: transport, model: model, log: log}
}

// Messages builds the planning prompt for description.
func Messages(description string) []chat.Message {
	return []chat.Message{
		{Role: chat.RoleUser, Content: prompts.PlannerInstruction},
		{Role: chat.RoleUser, Content: description},
	}
}

// Plan makes one model call and returns the parsed, disambiguated plan.
func (p *Planner) Plan(ctx context.Context, credential, description string) (layers.Plan, error) {
	if strings.TrimSpace(description) == "" {
		return nil, ErrEmptyDescription
	}

	p.log.Logf("Planning layers for: %s", utils.Truncate(description, 100))
	reply, err := p.transport.Send(ctx, credential, p.model, Messages(description))
	if err != nil {
		return nil, fmt.Errorf("planning request failed: %w", err)
	}

	plan, err := Parse(reply)
	if err != nil {
		return nil, err
	}
	p.log.Logf("Planned %d layers: %s", len(plan), strings.Join(plan.Keys(), ", "))
	return plan, nil
}

type planReply struct {
	Layers *[]layerReply `json:"layers"`
}

type layerReply struct {
	Type        string `json:"type"`
	Desc        string `json:"desc"`
	Description string `json:"description"`
}

// Parse reads a planner reply. The reply may be wrapped in a markdown fence or
// surrounded by prose; the first JSON object found is used. Layer types are
// sanitized and duplicates disambiguated. Count and content are not checked.
func Parse(reply string) (layers.Plan, error) {
	body := extractJSONObject(chat.StripCodeFence(reply))
	if body == "" {
		return nil, &PlanParseError{Reply: reply, Err: errors.New("no JSON object in reply")}
	}

	var pr planReply
	if err := json.Unmarshal([]byte(body), &pr); err != nil {
		return nil, &PlanParseError{Reply: reply, Err: err}
	}
	if pr.Layers == nil {
		return nil, &PlanParseError{Reply: reply, Err: ErrMissingLayers}
	}

	plan := make(layers.Plan, 0, len(*pr.Layers))
	for _, l := range *pr.Layers {
		desc := l.Desc
		if desc == "" {
			desc = l.Description
		}
		plan = append(plan, layers.New(l.Type, desc))
	}
	layers.Disambiguate(plan)
	return plan, nil
}

// extractJSONObject returns the first balanced {...} span of s, honouring
// string literals. It returns "" when there is none.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	// Unbalanced: hand the remainder to the decoder so it reports the error.
	return s[start:]
}
