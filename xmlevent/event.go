// Package xmlevent produces a forward-only feed of XML parse events that carry
// their byte positions in the input stream.
//
// Every byte consumed by the underlying decoder is appended to a
// window.Window, so the Start and End positions of an event can be used to
// read the raw markup of that event back from the window.
package xmlevent

type Kind uint8

const (
	StartElement Kind = iota + 1
	EndElement
	CharData
	Comment
	ProcInst
	Directive
)

func (k Kind) String() string {
	switch k {
	case StartElement:
		return "StartElement"
	case EndElement:
		return "EndElement"
	case CharData:
		return "CharData"
	case Comment:
		return "Comment"
	case ProcInst:
		return "ProcInst"
	case Directive:
		return "Directive"
	default:
		return "Unknown"
	}
}

// Name is a qualified XML name as written in the document. The prefix is not
// resolved to a namespace URI.
type Name struct {
	Prefix string
	Local  string
}

func (n Name) String() string {
	if n.Prefix == "" {
		return n.Local
	}
	return n.Prefix + ":" + n.Local
}

// Attr is an attribute of a start element. Namespace declarations are
// reported as attributes too: `xmlns:p` has prefix "xmlns" and local name "p",
// the default declaration `xmlns` has an empty prefix.
type Attr struct {
	Name  Name
	Value string
}

// IsNamespace reports whether the attribute declares a namespace binding.
func (a Attr) IsNamespace() bool {
	return a.Name.Prefix == "xmlns" || (a.Name.Prefix == "" && a.Name.Local == "xmlns")
}

// NamespacePrefix returns the prefix bound by a namespace declaration, "" for
// the default namespace.
func (a Attr) NamespacePrefix() string {
	if a.Name.Prefix == "xmlns" {
		return a.Name.Local
	}
	return ""
}

type Event struct {
	Kind Kind

	// Absolute position of the first byte of the event.
	Start int64
	// Absolute position just past the last byte of the event. The end event
	// of a self-closing element is empty and has Start == End.
	End int64

	// Element name for StartElement and EndElement, target for ProcInst.
	Name Name
	// Attributes in document order. StartElement only.
	Attrs []Attr
	// Text content of CharData, Comment, ProcInst and Directive events,
	// with entities already replaced.
	Data []byte

	// Nesting depth of the element, 1 for the document element. Start and
	// end event of the same element share the depth. Other events report the
	// depth of the enclosing element.
	Depth int
}
