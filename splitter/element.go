package splitter

import (
	"strings"

	"github.com/opengs/xmlsplit/xmlevent"
)

// Namespace is a namespace binding declared on an element. An empty prefix
// declares the default namespace.
type Namespace struct {
	Prefix string `json:"prefix"`
	URI    string `json:"uri"`
}

type Attribute struct {
	Prefix    string `json:"prefix,omitempty"`
	LocalName string `json:"localName"`
	Value     string `json:"value"`
}

// Name returns the qualified attribute name.
func (a Attribute) Name() string {
	if a.Prefix == "" {
		return a.LocalName
	}
	return a.Prefix + ":" + a.LocalName
}

// StartElement is a snapshot of an opening tag: its name, the namespaces it
// declares and its attributes, in document order. It is used to rebuild the
// ancestor context of a chunk.
type StartElement struct {
	Prefix     string      `json:"prefix,omitempty"`
	LocalName  string      `json:"localName"`
	Namespaces []Namespace `json:"namespaces,omitempty"`
	Attributes []Attribute `json:"attributes,omitempty"`
}

// FromEvent copies a start element event into a StartElement, separating
// namespace declarations from ordinary attributes.
func FromEvent(ev xmlevent.Event) StartElement {
	e := StartElement{
		Prefix:    ev.Name.Prefix,
		LocalName: ev.Name.Local,
	}
	for _, a := range ev.Attrs {
		if a.IsNamespace() {
			e.Namespaces = append(e.Namespaces, Namespace{Prefix: a.NamespacePrefix(), URI: a.Value})
			continue
		}
		e.Attributes = append(e.Attributes, Attribute{Prefix: a.Name.Prefix, LocalName: a.Name.Local, Value: a.Value})
	}
	return e
}

// Name returns the qualified element name.
func (e StartElement) Name() string {
	if e.Prefix == "" {
		return e.LocalName
	}
	return e.Prefix + ":" + e.LocalName
}

// NamespaceURI returns the URI bound to prefix on this element.
func (e StartElement) NamespaceURI(prefix string) (string, bool) {
	for _, ns := range e.Namespaces {
		if ns.Prefix == prefix {
			return ns.URI, true
		}
	}
	return "", false
}

// Attribute returns the value of the attribute with the given prefix and
// local name.
func (e StartElement) Attribute(prefix, localName string) (string, bool) {
	for _, a := range e.Attributes {
		if a.Prefix == prefix && a.LocalName == localName {
			return a.Value, true
		}
	}
	return "", false
}

// OpenTag renders the element as an opening tag.
func (e StartElement) OpenTag() string {
	var sb strings.Builder
	e.writeOpenTag(&sb)
	return sb.String()
}

func (e StartElement) writeOpenTag(sb *strings.Builder) {
	sb.WriteByte('<')
	sb.WriteString(e.Name())
	for _, ns := range e.Namespaces {
		sb.WriteString(" xmlns")
		if ns.Prefix != "" {
			sb.WriteByte(':')
			sb.WriteString(ns.Prefix)
		}
		sb.WriteString(`="`)
		attrEscaper.WriteString(sb, ns.URI)
		sb.WriteByte('"')
	}
	for _, a := range e.Attributes {
		sb.WriteByte(' ')
		sb.WriteString(a.Name())
		sb.WriteString(`="`)
		attrEscaper.WriteString(sb, a.Value)
		sb.WriteByte('"')
	}
	sb.WriteByte('>')
}

// CloseTag renders the matching closing tag.
func (e StartElement) CloseTag() string {
	return "</" + e.Name() + ">"
}

func (e StartElement) String() string {
	return e.OpenTag()
}

var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"\t", "&#x9;",
	"\n", "&#xA;",
	"\r", "&#xD;",
)
