package policy

import (
	"github.com/opengs/xmlsplit/splitter"
	"github.com/opengs/xmlsplit/xmlevent"
)

// ElementName turns every element with one of the configured names into a
// chunk. A name matches either the qualified name ("gml:featureMember") or
// the local name ("featureMember"). Matches nested inside a chunk are part of
// that chunk.
type ElementName struct {
	names   map[string]struct{}
	tracker depthTracker
}

func NewElementName(names ...string) *ElementName {
	p := &ElementName{names: make(map[string]struct{}, len(names))}
	for _, name := range names {
		p.names[name] = struct{}{}
	}
	return p
}

func (p *ElementName) matches(name xmlevent.Name) bool {
	if _, ok := p.names[name.String()]; ok {
		return true
	}
	_, ok := p.names[name.Local]
	return ok
}

func (p *ElementName) Decide(ev xmlevent.Event, state splitter.State) splitter.Decision {
	if state.Capturing {
		return p.tracker.inside(ev)
	}
	if ev.Kind == xmlevent.StartElement && p.matches(ev.Name) {
		return p.tracker.begin(ev)
	}
	return splitter.None
}
