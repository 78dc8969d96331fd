package kml

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// parse checks that the sanitized text is well-formed XML and computes the
// emptiness of the root element. encoding/xml only expands the predefined
// entities and never fetches external ones, so the parser is safe against
// entity-expansion and XXE inputs by construction.
func parse(text string) (empty bool, err error) {
	dec := xml.NewDecoder(strings.NewReader(text))
	dec.Strict = true
	// The text is already decoded; honor whatever encoding the XML
	// declaration claims without re-decoding.
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	var (
		sawRoot     bool
		rootAttrs   int
		rootHasText bool
		rootHasKids bool
		depth       int
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return false, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch depth {
			case 1:
				if sawRoot {
					return false, fmt.Errorf("multiple root elements")
				}
				sawRoot = true
				// xmlns declarations are namespace plumbing, not
				// attributes of the document.
				for _, attr := range t.Attr {
					if attr.Name.Space == "xmlns" || attr.Name.Local == "xmlns" {
						continue
					}
					rootAttrs++
				}
			case 2:
				rootHasKids = true
			}
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 1 && strings.TrimSpace(string(t)) != "" {
				rootHasText = true
			}
		}
	}

	if !sawRoot {
		return false, fmt.Errorf("no root element")
	}

	return !rootHasKids && rootAttrs == 0 && !rootHasText, nil
}
