// Package layers holds the layer plan produced by the planner and consumed by
// the renderer and compositor.
package layers

import (
	"errors"
	"strconv"
	"strings"
)

// ErrAlreadyRendered is returned when markup is set twice on the same layer.
var ErrAlreadyRendered = errors.New("layer already rendered")

// LayerSpec describes one independently rendered layer of the map.
type LayerSpec struct {
	Type        string `json:"type"`
	Description string `json:"description"`

	markup   string
	rendered bool
}

// New creates a layer spec with a sanitized type key.
func New(layerType, description string) *LayerSpec {
	return &LayerSpec{
		Type:        SanitizeKey(layerType),
		Description: description,
	}
}

// SetMarkup stores the rendered fragment. It may only be called once per layer.
func (l *LayerSpec) SetMarkup(markup string) error {
	if l.rendered {
		return ErrAlreadyRendered
	}
	l.markup = markup
	l.rendered = true
	return nil
}

// RenderedMarkup returns the fragment and whether the layer has been rendered.
func (l *LayerSpec) RenderedMarkup() (string, bool) {
	return l.markup, l.rendered
}

// Plan is the ordered list of layers, lowest draw order first.
type Plan []*LayerSpec

// Keys returns the layer keys in plan order.
func (p Plan) Keys() []string {
	keys := make([]string, len(p))
	for i, l := range p {
		keys[i] = l.Type
	}
	return keys
}

// Rendered returns how many leading layers have markup.
func (p Plan) Rendered() int {
	for i, l := range p {
		if _, ok := l.RenderedMarkup(); !ok {
			return i
		}
	}
	return len(p)
}

// SanitizeKey turns a free-form layer type into an identifier token usable as
// an XML id: lowercase, [a-z0-9_-], starting with a letter or underscore.
func SanitizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	var b strings.Builder
	lastDash := false
	for _, c := range s {
		switch {
		case (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_':
			b.WriteRune(c)
			lastDash = false
		case c == '-' || c == ' ' || c == '\t' || c == '.' || c == '/':
			if b.Len() > 0 && !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}

	key := strings.TrimRight(b.String(), "-")
	if key == "" {
		return "layer"
	}
	if key[0] >= '0' && key[0] <= '9' {
		key = "layer-" + key
	}
	if len(key) > 50 {
		key = strings.TrimRight(key[:50], "-")
	}
	return key
}

// Disambiguate rewrites duplicate keys in place. The first occurrence keeps its
// key; later ones get "-2", "-3", ... skipping any key already in use.
func Disambiguate(p Plan) {
	// Original keys are reserved so a later literal "key-2" is not stolen.
	reserved := make(map[string]bool, len(p))
	for _, l := range p {
		reserved[l.Type] = true
	}

	taken := make(map[string]bool, len(p))
	for _, l := range p {
		if !taken[l.Type] {
			taken[l.Type] = true
			continue
		}
		for n := 2; ; n++ {
			candidate := l.Type + "-" + strconv.Itoa(n)
			if reserved[candidate] || taken[candidate] {
				continue
			}
			l.Type = candidate
			taken[candidate] = true
			break
		}
	}
}
