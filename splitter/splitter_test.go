package splitter

import (
	"encoding/xml"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/opengs/xmlsplit/window"
	"github.com/opengs/xmlsplit/xmlevent"
)

// elementPolicy captures every element with the given local name.
type elementPolicy struct {
	name  string
	depth int
}

func (p *elementPolicy) Decide(ev xmlevent.Event, state State) Decision {
	switch ev.Kind {
	case xmlevent.StartElement:
		if state.Capturing {
			p.depth++
			return None
		}
		if ev.Name.Local == p.name {
			p.depth = 1
			return Begin(ev.Start)
		}
	case xmlevent.EndElement:
		if state.Capturing {
			p.depth--
			if p.depth == 0 {
				return End(ev.End)
			}
		}
	}
	return None
}

type splitRun struct {
	window   *window.Window
	reader   *xmlevent.Reader
	splitter *Splitter
}

func newSplitRun(doc string, policy Policy) *splitRun {
	w := window.New()
	return &splitRun{
		window:   w,
		reader:   xmlevent.NewReader(strings.NewReader(doc), w),
		splitter: New(w, policy),
	}
}

func (r *splitRun) all(check func(ev xmlevent.Event)) ([]*Chunk, error) {
	var chunks []*Chunk
	for {
		ev, err := r.reader.Next()
		if err != nil {
			return chunks, r.splitter.Finish(err)
		}

		chunk, err := r.splitter.OnEvent(ev)
		if err != nil {
			return chunks, err
		}
		if chunk != nil {
			chunks = append(chunks, chunk)
		}
		if check != nil {
			check(ev)
		}
	}
}

func split(t *testing.T, doc string, name string) []*Chunk {
	t.Helper()

	chunks, err := newSplitRun(doc, &elementPolicy{name: name}).all(nil)
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	return chunks
}

func TestSingleChunk(t *testing.T) {
	chunks := split(t, `<root><a><item id="1">X</item></a></root>`, "item")

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}

	want := Prolog + `<root><a><item id="1">X</item></a></root>`
	if string(chunks[0].Data) != want {
		t.Errorf("expected %q, got %q", want, chunks[0].Data)
	}
	if string(chunks[0].Content()) != `<item id="1">X</item>` {
		t.Errorf("unexpected content %q", chunks[0].Content())
	}

	parents := chunks[0].Meta.Parents
	if len(parents) != 2 || parents[0].Name() != "root" || parents[1].Name() != "a" {
		t.Errorf("unexpected parents: %+v", parents)
	}
}

func TestSiblingChunksRepeatContext(t *testing.T) {
	chunks := split(t, `<root v="1"><item>1</item>  <item>2</item></root>`, "item")

	want := []string{
		Prolog + `<root v="1"><item>1</item></root>`,
		Prolog + `<root v="1"><item>2</item></root>`,
	}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(chunks))
	}
	for i := range want {
		if string(chunks[i].Data) != want[i] {
			t.Errorf("chunk %d: expected %q, got %q", i, want[i], chunks[i].Data)
		}
	}
}

func TestSelfClosingAndNestedChunks(t *testing.T) {
	chunks := split(t, `<root><item/><group><item><item>inner</item></item></group></root>`, "item")

	want := []string{
		Prolog + `<root><item/></root>`,
		Prolog + `<root><group><item><item>inner</item></item></group></root>`,
	}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(chunks))
	}
	for i := range want {
		if string(chunks[i].Data) != want[i] {
			t.Errorf("chunk %d: expected %q, got %q", i, want[i], chunks[i].Data)
		}
	}
}

func TestAncestorAttributesAreEscaped(t *testing.T) {
	chunks := split(t, `<root a="x &quot;y&quot; &amp; &lt;z&gt;"><item/></root>`, "item")

	want := Prolog + `<root a="x &quot;y&quot; &amp; &lt;z&gt;"><item/></root>`
	if len(chunks) != 1 || string(chunks[0].Data) != want {
		t.Fatalf("expected %q, got %+v", want, chunks)
	}
}

func TestNoCaptureYieldsNoChunks(t *testing.T) {
	chunks := split(t, `<root><a/><b>text</b></root>`, "item")
	if len(chunks) != 0 {
		t.Errorf("expected no chunks, got %d", len(chunks))
	}
}

func TestUnterminatedChunk(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "Inside content", doc: `<root><a><item id="1">X`},
		{name: "Inside end tag", doc: `<root><a><item id="1">X</it`},
		{name: "Inside nested element", doc: `<root><item><sub>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := newSplitRun(tt.doc, &elementPolicy{name: "item"}).all(nil)

			var unterminated *UnterminatedChunkError
			if !errors.As(err, &unterminated) {
				t.Fatalf("expected UnterminatedChunkError, got %v", err)
			}
			if !errors.Is(err, ErrMalformedInput) || !IsMalformedInput(err) {
				t.Errorf("expected malformed input classification, got %v", err)
			}
			if len(chunks) != 0 {
				t.Errorf("expected no chunks, got %d", len(chunks))
			}
		})
	}
}

func TestSyntaxErrorInsideChunkIsNotUnterminated(t *testing.T) {
	_, err := newSplitRun(`<root><item><a></b></item></root>`, &elementPolicy{name: "item"}).all(nil)

	var unterminated *UnterminatedChunkError
	if errors.As(err, &unterminated) {
		t.Fatalf("mismatched tags must be reported as syntax errors, got %v", err)
	}
	if !IsMalformedInput(err) {
		t.Errorf("expected malformed input, got %v", err)
	}
}

func TestChunksBeforeErrorStayValid(t *testing.T) {
	chunks, err := newSplitRun(`<root><item>1</item><item>2`, &elementPolicy{name: "item"}).all(nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if len(chunks) != 1 || string(chunks[0].Data) != Prolog+`<root><item>1</item></root>` {
		t.Errorf("expected the first chunk to be emitted intact, got %+v", chunks)
	}
}

func TestDoubleBegin(t *testing.T) {
	policy := PolicyFunc(func(ev xmlevent.Event, state State) Decision {
		if ev.Kind == xmlevent.StartElement {
			return Begin(ev.Start)
		}
		return None
	})

	run := newSplitRun(`<root><item/></root>`, policy)
	_, err := run.all(nil)
	if !errors.Is(err, ErrAlreadyCapturing) || !IsContractViolation(err) {
		t.Fatalf("expected ErrAlreadyCapturing, got %v", err)
	}
	if mark, ok := run.splitter.Mark(); !ok || mark != 0 {
		t.Errorf("mark must not be overwritten, got %d", mark)
	}
}

func TestEndWhileIdle(t *testing.T) {
	policy := PolicyFunc(func(ev xmlevent.Event, state State) Decision {
		if ev.Kind == xmlevent.EndElement {
			return End(ev.End)
		}
		return None
	})

	_, err := newSplitRun(`<root><item/></root>`, policy).all(nil)
	if !errors.Is(err, ErrNotCapturing) {
		t.Fatalf("expected ErrNotCapturing, got %v", err)
	}
}

func TestBeginBehindWindow(t *testing.T) {
	policy := PolicyFunc(func(ev xmlevent.Event, state State) Decision {
		if ev.Kind == xmlevent.StartElement && ev.Name.Local == "item" {
			return Begin(0)
		}
		return None
	})

	_, err := newSplitRun(`<root><item/></root>`, policy).all(nil)
	if !IsContractViolation(err) {
		t.Fatalf("expected a contract violation, got %v", err)
	}
}

// contentPolicy captures the content of every element with the given local
// name but not its tags.
func contentPolicy(name string) Policy {
	return PolicyFunc(func(ev xmlevent.Event, state State) Decision {
		if ev.Name.Local != name {
			return None
		}
		switch {
		case ev.Kind == xmlevent.StartElement && !state.Capturing:
			return Begin(ev.End)
		case ev.Kind == xmlevent.EndElement && state.Capturing:
			return End(ev.Start)
		}
		return None
	})
}

func TestContentOnlyCapture(t *testing.T) {
	run := newSplitRun(`<root><a n="1">X</a><a>Y<b/></a></root>`, contentPolicy("a"))

	chunks, err := run.all(func(ev xmlevent.Event) {
		if !run.splitter.Capturing() && run.splitter.Depth() != run.reader.Depth() {
			t.Errorf("stack depth %d, open elements %d at offset %d", run.splitter.Depth(), run.reader.Depth(), ev.Start)
		}
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{
		Prolog + `<root><a n="1">X</a></root>`,
		Prolog + `<root><a>Y<b/></a></root>`,
	}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(chunks))
	}
	for i, chunk := range chunks {
		if string(chunk.Data) != want[i] {
			t.Errorf("chunk %d: expected %q, got %q", i, want[i], chunk.Data)
		}
	}
	if got := string(chunks[1].Content()); got != "Y<b/>" {
		t.Errorf("expected captured content %q, got %q", "Y<b/>", got)
	}
	if run.splitter.Depth() != 0 {
		t.Errorf("expected an empty stack at the end, got depth %d", run.splitter.Depth())
	}
}

func TestStackAndWindowInvariants(t *testing.T) {
	doc := `<root><a x="1"><item><b><c/></b></item><d/></a><item>text</item><e><f/></e></root>`
	run := newSplitRun(doc, &elementPolicy{name: "item"})

	var lastAdvanced int64
	var frozenDepth int
	wasCapturing := false
	_, err := run.all(func(ev xmlevent.Event) {
		s := run.splitter
		advanced := run.window.Advanced()
		if advanced < lastAdvanced {
			t.Fatalf("window moved backwards from %d to %d", lastAdvanced, advanced)
		}
		lastAdvanced = advanced

		if s.Capturing() {
			if !wasCapturing {
				frozenDepth = s.Depth()
			}
			if s.Depth() != frozenDepth {
				t.Errorf("ancestor stack changed during capture at offset %d", ev.Start)
			}
			if mark, _ := s.Mark(); advanced > mark {
				t.Errorf("window released bytes of the capture: advanced %d, mark %d", advanced, mark)
			}
		} else {
			if s.Depth() != run.reader.Depth() {
				t.Errorf("stack depth %d, open elements %d at offset %d", s.Depth(), run.reader.Depth(), ev.Start)
			}
			if advanced != ev.End {
				t.Errorf("idle window must be advanced to %d, got %d", ev.End, advanced)
			}
		}
		wasCapturing = s.Capturing()
	})
	if err != nil {
		t.Fatal(err)
	}
}

type element struct {
	Name  xml.Name
	Attrs []xml.Attr
}

// itemContexts parses doc with encoding/xml and returns, for every element
// named item, the resolved names and attributes of the item and all its
// ancestors.
func itemContexts(t *testing.T, doc string) [][]element {
	t.Helper()

	dec := xml.NewDecoder(strings.NewReader(doc))
	var open []element
	var contexts [][]element
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return contexts
		}
		if err != nil {
			t.Fatalf("failed to parse %q: %v", doc, err)
		}
		switch tok := tok.(type) {
		case xml.StartElement:
			tok = tok.Copy()
			open = append(open, element{Name: tok.Name, Attrs: tok.Attr})
			if tok.Name.Local == "item" {
				contexts = append(contexts, append([]element{}, open...))
			}
		case xml.EndElement:
			open = open[:len(open)-1]
		}
	}
}

func TestRoundTrip(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<gml:root xmlns:gml="http://www.opengis.net/gml" xmlns="urn:default" version="2 &amp; 3">
  <gml:features xmlns:xlink="http://www.w3.org/1999/xlink" xlink:type="simple">
    <gml:item gml:id="a1" note="&lt;x&gt;">A</gml:item>
    <!-- comment -->
    <gml:item gml:id="a2"><sub xlink:href="#a1">B</sub></gml:item>
  </gml:features>
  <item>plain</item>
</gml:root>`

	chunks := split(t, doc, "item")
	original := itemContexts(t, doc)

	if len(chunks) != len(original) {
		t.Fatalf("expected %d chunks, got %d", len(original), len(chunks))
	}

	for i, chunk := range chunks {
		reparsed := itemContexts(t, string(chunk.Data))
		if len(reparsed) != 1 {
			t.Fatalf("chunk %d: expected exactly one item, got %d", i, len(reparsed))
		}
		if !reflect.DeepEqual(reparsed[0], original[i]) {
			t.Errorf("chunk %d: context differs\nwant %+v\ngot  %+v", i, original[i], reparsed[0])
		}
	}
}
