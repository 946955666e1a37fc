// Package query selects stored chunks.
//
// A search is either empty (every chunk matches), an XPath expression
// (starting with "/" or "xpath:") evaluated against the chunk document, or a
// list of whitespace separated terms. A chunk matches a term list when its
// captured content contains at least one of the terms.
package query

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
	"github.com/opengs/xmlsplit/splitter"
)

const xpathPrefix = "xpath:"

var ErrInvalidQuery = errors.New("invalid query")

type Matcher struct {
	search string
	terms  []string
	expr   *xpath.Expr
}

func Compile(search string) (*Matcher, error) {
	search = strings.TrimSpace(search)
	m := &Matcher{search: search}

	switch {
	case search == "":
	case strings.HasPrefix(search, xpathPrefix) || strings.HasPrefix(search, "/"):
		source := strings.TrimSpace(strings.TrimPrefix(search, xpathPrefix))
		expr, err := xpath.Compile(source)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidQuery, source, err)
		}
		m.expr = expr
	default:
		m.terms = strings.Fields(search)
	}

	return m, nil
}

// MatchAll reports whether the matcher selects every chunk.
func (m *Matcher) MatchAll() bool {
	return m.expr == nil && len(m.terms) == 0
}

// Terms returns the search terms, nil for XPath and empty searches.
func (m *Matcher) Terms() []string {
	return m.terms
}

func (m *Matcher) IsXPath() bool {
	return m.expr != nil
}

func (m *Matcher) String() string {
	return m.search
}

// Match reports whether the chunk is selected. data is the whole chunk
// document, meta locates its captured content.
func (m *Matcher) Match(data []byte, meta splitter.ChunkMeta) (bool, error) {
	if m.MatchAll() {
		return true, nil
	}

	if m.expr == nil {
		content := data
		if meta.Start >= 0 && meta.Start <= meta.End && meta.End <= len(data) {
			content = data[meta.Start:meta.End]
		}
		for _, term := range m.terms {
			if bytes.Contains(content, []byte(term)) {
				return true, nil
			}
		}
		return false, nil
	}

	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return false, errors.Join(errors.New("failed to parse chunk"), err)
	}

	switch v := m.expr.Evaluate(xmlquery.CreateXPathNavigator(doc)).(type) {
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	case string:
		return v != "", nil
	case *xpath.NodeIterator:
		return v.MoveNext(), nil
	default:
		return false, nil
	}
}
