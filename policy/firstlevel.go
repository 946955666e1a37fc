package policy

import (
	"github.com/opengs/xmlsplit/splitter"
	"github.com/opengs/xmlsplit/xmlevent"
)

// FirstLevel turns every child element of the document root into a chunk.
type FirstLevel struct {
	tracker depthTracker
}

func NewFirstLevel() *FirstLevel {
	return &FirstLevel{}
}

func (p *FirstLevel) Decide(ev xmlevent.Event, state splitter.State) splitter.Decision {
	if state.Capturing {
		return p.tracker.inside(ev)
	}
	if ev.Kind == xmlevent.StartElement && len(state.Stack) == 1 {
		return p.tracker.begin(ev)
	}
	return splitter.None
}
