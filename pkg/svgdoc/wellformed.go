package svgdoc

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNotSVG is returned when a document's root element is not <svg>.
var ErrNotSVG = errors.New("root element is not svg")

// CheckWellFormed reports whether a layer fragment tokenizes as XML. The
// fragment may hold any number of sibling elements and comments.
func CheckWellFormed(fragment string) error {
	return tokenize("<fragment>" + fragment + "</fragment>")
}

// CheckDocument reports whether doc is a well-formed XML document whose root
// element is svg.
func CheckDocument(doc string) error {
	dec := xml.NewDecoder(strings.NewReader(doc))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return fmt.Errorf("%w: no root element", ErrNotSVG)
		}
		if err != nil {
			return fmt.Errorf("malformed document: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			if start.Name.Local != "svg" {
				return fmt.Errorf("%w: found <%s>", ErrNotSVG, start.Name.Local)
			}
			break
		}
	}
	return tokenize(doc)
}

func tokenize(s string) error {
	dec := xml.NewDecoder(strings.NewReader(s))
	for {
		_, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("malformed markup: %w", err)
		}
	}
}
