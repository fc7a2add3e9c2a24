// Package svgdoc composes rendered layer fragments into one SVG document.
package svgdoc

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/alantheprice/svgmap/pkg/layers"
)

// Canvas dimensions, fixed for every map.
const (
	Width  = 500
	Height = 500
)

// Namespace is the SVG XML namespace.
const Namespace = "http://www.w3.org/2000/svg"

var (
	ErrDuplicateLayer = errors.New("layer already exists")
	ErrUnknownLayer   = errors.New("unknown layer")
	ErrInvalidKey     = errors.New("invalid layer key")
)

var keyRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// LegendEntry is one row of the display legend.
type LegendEntry struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

type group struct {
	key         string
	description string
	markup      string
}

// Document is the in-progress composed map: a root element holding one group
// per layer, in draw order. It is not safe for concurrent use.
type Document struct {
	groups []*group
}

// New returns an empty document.
func New() *Document {
	return &Document{}
}

// FromPlan rebuilds a document from a plan, including every layer up to the
// first one without markup.
func FromPlan(plan layers.Plan) *Document {
	doc := New()
	for _, spec := range plan[:plan.Rendered()] {
		markup, _ := spec.RenderedMarkup()
		doc.groups = append(doc.groups, &group{key: spec.Type, description: spec.Description, markup: markup})
	}
	return doc
}

// AddLayer appends an empty group keyed by spec.Type.
func (d *Document) AddLayer(spec *layers.LayerSpec) error {
	if !keyRe.MatchString(spec.Type) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, spec.Type)
	}
	if d.find(spec.Type) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateLayer, spec.Type)
	}
	d.groups = append(d.groups, &group{key: spec.Type, description: spec.Description})
	return nil
}

// InjectMarkup sets the content of the group keyed by key.
func (d *Document) InjectMarkup(key, markup string) error {
	i := d.find(key)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownLayer, key)
	}
	d.groups[i].markup = markup
	return nil
}

// RemoveLayer drops the group keyed by key. It reports whether a group was removed.
func (d *Document) RemoveLayer(key string) bool {
	i := d.find(key)
	if i < 0 {
		return false
	}
	d.groups = append(d.groups[:i], d.groups[i+1:]...)
	return true
}

// Len returns the number of groups.
func (d *Document) Len() int {
	return len(d.groups)
}

// Keys returns group keys in draw order.
func (d *Document) Keys() []string {
	keys := make([]string, len(d.groups))
	for i, g := range d.groups {
		keys[i] = g.key
	}
	return keys
}

// Legend returns one entry per group, in draw order.
func (d *Document) Legend() []LegendEntry {
	legend := make([]LegendEntry, len(d.groups))
	for i, g := range d.groups {
		legend[i] = LegendEntry{Type: g.key, Description: g.description}
	}
	return legend
}

// Serialize renders the whole document. The output depends only on the group
// order and contents, so repeated calls are identical.
func (d *Document) Serialize() string {
	var b strings.Builder
	fmt.Fprintf(&b, `<svg width="%dpx" height="%dpx" xmlns="%s">`, Width, Height, Namespace)
	for _, g := range d.groups {
		b.WriteString(`<g id="`)
		b.WriteString(g.key)
		b.WriteString(`">`)
		b.WriteString(g.markup)
		b.WriteString(`</g>`)
	}
	b.WriteString(`</svg>`)
	return b.String()
}

// Reorder moves the named groups to the top of the draw order, in the order
// given. Groups not named keep their relative order beneath them. Every key
// must name an existing group and appear once.
func (d *Document) Reorder(keys []string) error {
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if d.find(k) < 0 {
			return fmt.Errorf("%w: %s", ErrUnknownLayer, k)
		}
		if seen[k] {
			return fmt.Errorf("%w: %s listed twice", ErrDuplicateLayer, k)
		}
		seen[k] = true
	}

	reordered := make([]*group, 0, len(d.groups))
	for _, g := range d.groups {
		if !seen[g.key] {
			reordered = append(reordered, g)
		}
	}
	for _, k := range keys {
		reordered = append(reordered, d.groups[d.find(k)])
	}
	d.groups = reordered
	return nil
}

func (d *Document) find(key string) int {
	for i, g := range d.groups {
		if g.key == key {
			return i
		}
	}
	return -1
}
