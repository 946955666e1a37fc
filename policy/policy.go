// Package policy contains the split policies shipped with xmlsplit.
package policy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/opengs/xmlsplit/splitter"
	"github.com/opengs/xmlsplit/xmlevent"
)

const (
	NameFirstLevel = "firstlevel"
	NameElement    = "element"
)

var ErrUnknownPolicy = errors.New("unknown split policy")
var ErrNoElements = errors.New("element policy needs at least one element name")

// Factory creates a policy for one document. Policies keep per-document
// state, so they must not be shared between documents.
type Factory func() splitter.Policy

// ByName returns the factory of the policy registered under name. elements
// configures the element policy and must be empty for the others.
func ByName(name string, elements []string) (Factory, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameFirstLevel, "first-level", "":
		if len(elements) > 0 {
			return nil, fmt.Errorf("policy %q does not take element names", NameFirstLevel)
		}
		return func() splitter.Policy { return NewFirstLevel() }, nil
	case NameElement:
		if len(elements) == 0 {
			return nil, ErrNoElements
		}
		names := append([]string{}, elements...)
		return func() splitter.Policy { return NewElementName(names...) }, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
}

// depthTracker follows the nesting level inside the chunk being captured so a
// policy knows which end element closes it.
type depthTracker struct {
	depth int
}

func (t *depthTracker) begin(ev xmlevent.Event) splitter.Decision {
	t.depth = 1
	return splitter.Begin(ev.Start)
}

// inside updates the depth for an event of the current chunk and ends the
// chunk after its outermost end element.
func (t *depthTracker) inside(ev xmlevent.Event) splitter.Decision {
	switch ev.Kind {
	case xmlevent.StartElement:
		t.depth++
	case xmlevent.EndElement:
		t.depth--
		if t.depth == 0 {
			return splitter.End(ev.End)
		}
	}
	return splitter.None
}
