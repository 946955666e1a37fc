// Package merge combines chunks produced by the splitter back into one
// document.
package merge

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/opengs/xmlsplit/splitter"
)

const xsiNamespace = "http://www.w3.org/2001/XMLSchema-instance"

var ErrIncompatible = errors.New("chunks cannot be merged into one document")
var ErrNotInitialized = errors.New("chunk was not passed to Init before merging")

// Strategy merges chunks in two passes. Init is called with the metadata of
// every chunk first, then Merge with each chunk, then Finish once.
type Strategy interface {
	Init(meta splitter.ChunkMeta) error
	Merge(chunk io.Reader, meta splitter.ChunkMeta, w io.Writer) error
	Finish(w io.Writer) error
}

// MergeNamespaces merges chunks whose ancestors have the same element names.
// The ancestors of the output declare the union of all namespaces and
// attributes found in the chunks. Values of xsi:schemaLocation are combined
// pair by pair.
type MergeNamespaces struct {
	parents       []splitter.StartElement
	initialized   bool
	headerWritten bool
}

func NewMergeNamespaces() *MergeNamespaces {
	return &MergeNamespaces{}
}

func (s *MergeNamespaces) Init(meta splitter.ChunkMeta) error {
	if !s.initialized {
		s.parents = slices.Clone(meta.Parents)
		s.initialized = true
		return nil
	}
	if s.headerWritten {
		return errors.New("cannot initialize a merge that already started writing")
	}

	merged, _, err := mergeParents(s.parents, meta.Parents)
	if err != nil {
		return err
	}
	s.parents = merged
	return nil
}

// Merge writes the captured content of chunk. The first call writes the
// prolog and the merged ancestors.
func (s *MergeNamespaces) Merge(chunk io.Reader, meta splitter.ChunkMeta, w io.Writer) error {
	if !s.initialized {
		return ErrNotInitialized
	}
	if _, changed, err := mergeParents(s.parents, meta.Parents); err != nil {
		return err
	} else if changed {
		return ErrNotInitialized
	}

	if !s.headerWritten {
		if err := s.writeHeader(w); err != nil {
			return err
		}
	}

	if meta.Start < 0 || meta.End < meta.Start {
		return fmt.Errorf("invalid chunk range [%d, %d)", meta.Start, meta.End)
	}
	if _, err := io.CopyN(io.Discard, chunk, int64(meta.Start)); err != nil {
		return errors.Join(errors.New("failed to skip chunk ancestors"), err)
	}
	if _, err := io.CopyN(w, chunk, int64(meta.End-meta.Start)); err != nil {
		return errors.Join(errors.New("failed to copy chunk contents"), err)
	}
	return nil
}

// Finish closes the merged ancestors. Nothing is written when no chunk was
// merged.
func (s *MergeNamespaces) Finish(w io.Writer) error {
	if !s.headerWritten {
		return nil
	}

	var sb strings.Builder
	for i := len(s.parents) - 1; i >= 0; i-- {
		sb.WriteString(s.parents[i].CloseTag())
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func (s *MergeNamespaces) writeHeader(w io.Writer) error {
	var sb strings.Builder
	sb.WriteString(splitter.Prolog)
	for _, e := range s.parents {
		sb.WriteString(e.OpenTag())
	}
	if _, err := io.WriteString(w, sb.String()); err != nil {
		return errors.Join(errors.New("failed to write merged ancestors"), err)
	}
	s.headerWritten = true
	return nil
}

// mergeParents merges two ancestor chains level by level. changed reports
// whether b contributed anything that a does not already declare.
func mergeParents(a, b []splitter.StartElement) ([]splitter.StartElement, bool, error) {
	if len(a) != len(b) {
		return nil, false, fmt.Errorf("%w: ancestor depth %d does not match %d", ErrIncompatible, len(b), len(a))
	}

	merged := make([]splitter.StartElement, len(a))
	changed := false
	for i := range a {
		e, c, err := mergeElement(a[i], b[i])
		if err != nil {
			return nil, false, err
		}
		merged[i] = e
		changed = changed || c
	}
	return merged, changed, nil
}

func mergeElement(a, b splitter.StartElement) (splitter.StartElement, bool, error) {
	if a.Name() != b.Name() {
		return splitter.StartElement{}, false, fmt.Errorf("%w: ancestor <%s> does not match <%s>", ErrIncompatible, b.Name(), a.Name())
	}

	merged := splitter.StartElement{
		Prefix:     a.Prefix,
		LocalName:  a.LocalName,
		Namespaces: slices.Clone(a.Namespaces),
		Attributes: slices.Clone(a.Attributes),
	}
	changed := false

	for _, ns := range b.Namespaces {
		uri, ok := merged.NamespaceURI(ns.Prefix)
		if !ok {
			merged.Namespaces = append(merged.Namespaces, ns)
			changed = true
			continue
		}
		if uri != ns.URI {
			return splitter.StartElement{}, false, fmt.Errorf("%w: prefix %q of <%s> is bound to %q and %q", ErrIncompatible, ns.Prefix, a.Name(), uri, ns.URI)
		}
	}

	for _, attr := range b.Attributes {
		idx := slices.IndexFunc(merged.Attributes, func(x splitter.Attribute) bool {
			return x.Prefix == attr.Prefix && x.LocalName == attr.LocalName
		})
		if idx < 0 {
			merged.Attributes = append(merged.Attributes, attr)
			changed = true
			continue
		}

		existing := merged.Attributes[idx].Value
		if existing == attr.Value {
			continue
		}
		if !isSchemaLocation(merged, attr) {
			return splitter.StartElement{}, false, fmt.Errorf("%w: attribute %s of <%s> has values %q and %q", ErrIncompatible, attr.Name(), a.Name(), existing, attr.Value)
		}

		value, c := mergeSchemaLocations(existing, attr.Value)
		merged.Attributes[idx].Value = value
		changed = changed || c
	}

	return merged, changed, nil
}

func isSchemaLocation(e splitter.StartElement, attr splitter.Attribute) bool {
	if attr.LocalName != "schemaLocation" || attr.Prefix == "" {
		return false
	}
	uri, ok := e.NamespaceURI(attr.Prefix)
	return ok && uri == xsiNamespace
}

// mergeSchemaLocations appends the namespace/location pairs of b whose
// namespace is not listed in a.
func mergeSchemaLocations(a, b string) (string, bool) {
	fields := strings.Fields(a)
	known := make(map[string]struct{}, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		known[fields[i]] = struct{}{}
	}

	changed := false
	add := strings.Fields(b)
	for i := 0; i+1 < len(add); i += 2 {
		if _, ok := known[add[i]]; ok {
			continue
		}
		known[add[i]] = struct{}{}
		fields = append(fields, add[i], add[i+1])
		changed = true
	}
	return strings.Join(fields, " "), changed
}
