package splitter

import "github.com/opengs/xmlsplit/xmlevent"

type Action uint8

const (
	NoAction Action = iota
	BeginCapture
	EndCapture
)

func (a Action) String() string {
	switch a {
	case BeginCapture:
		return "BeginCapture"
	case EndCapture:
		return "EndCapture"
	default:
		return "NoAction"
	}
}

// Decision is the answer of a Policy for one event. Pos is only meaningful
// for BeginCapture and EndCapture.
type Decision struct {
	Action Action
	Pos    int64
}

var None = Decision{}

func Begin(pos int64) Decision {
	return Decision{Action: BeginCapture, Pos: pos}
}

func End(pos int64) Decision {
	return Decision{Action: EndCapture, Pos: pos}
}

// State is the splitter state handed to a Policy. Stack lists the ancestors
// outside the current capture, outermost first. It must not be modified.
type State struct {
	Stack     []StartElement
	Capturing bool
}

// Policy decides where chunks start and end for a document dialect. It is
// called exactly once per event, before the splitter updates its ancestor
// stack. It must never begin a capture while the state reports Capturing nor
// end one while it does not.
//
// Bookkeeping a dialect needs beyond State (for example the depth inside the
// current capture) is the policy's own business, which is why policies are
// created per document.
type Policy interface {
	Decide(ev xmlevent.Event, state State) Decision
}

type PolicyFunc func(ev xmlevent.Event, state State) Decision

func (f PolicyFunc) Decide(ev xmlevent.Event, state State) Decision {
	return f(ev, state)
}
