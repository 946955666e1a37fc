package xmlevent

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"maps"
	"regexp"
	"strings"

	"github.com/opengs/xmlsplit/window"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

const defaultBufferSize = 32 * 1024

type Reader struct {
	dec *xml.Decoder
	src *windowReader

	bufferSize int
	entities   map[string]string

	open []Name
	err  error
}

// NewReader creates an event feed over r. Every byte read from r (after
// transcoding to UTF-8 when the document declares another encoding) is appended
// to w.
func NewReader(r io.Reader, w *window.Window, options ...Option) *Reader {
	reader := &Reader{
		bufferSize: defaultBufferSize,
	}
	for _, option := range options {
		option(reader)
	}

	reader.src = &windowReader{
		r: bufio.NewReaderSize(r, reader.bufferSize),
		w: w,
	}
	reader.dec = xml.NewDecoder(reader.src)
	reader.dec.CharsetReader = reader.charsetReader
	// copied because declarations of the document are added to it
	reader.dec.Entity = maps.Clone(reader.entities)
	if reader.dec.Entity == nil {
		reader.dec.Entity = make(map[string]string)
	}

	return reader
}

// Depth returns the number of currently open elements.
func (r *Reader) Depth() int {
	return len(r.open)
}

// Offset returns the position just past the last consumed event.
func (r *Reader) Offset() int64 {
	return r.dec.InputOffset()
}

// Next returns the next event. It returns io.EOF once the input ends after a
// complete document. Once an error is returned every further call returns the
// same error.
func (r *Reader) Next() (Event, error) {
	if r.err != nil {
		return Event{}, r.err
	}

	start := r.dec.InputOffset()
	token, err := r.dec.RawToken()
	if err != nil {
		r.err = r.wrapError(start, err)
		return Event{}, r.err
	}

	event := Event{
		Start: start,
		End:   r.dec.InputOffset(),
		Depth: len(r.open),
	}

	switch t := token.(type) {
	case xml.StartElement:
		event.Kind = StartElement
		event.Name = nameOf(t.Name)
		if len(t.Attr) > 0 {
			event.Attrs = make([]Attr, len(t.Attr))
			for i, a := range t.Attr {
				event.Attrs[i] = Attr{Name: nameOf(a.Name), Value: a.Value}
			}
		}
		r.open = append(r.open, event.Name)
		event.Depth = len(r.open)

	case xml.EndElement:
		event.Kind = EndElement
		event.Name = nameOf(t.Name)
		if len(r.open) == 0 {
			r.err = r.syntaxError(start, fmt.Sprintf("unexpected end element </%s>", event.Name), nil)
			return Event{}, r.err
		}
		if top := r.open[len(r.open)-1]; top != event.Name {
			r.err = r.syntaxError(start, fmt.Sprintf("element <%s> closed by </%s>", top, event.Name), nil)
			return Event{}, r.err
		}
		r.open = r.open[:len(r.open)-1]

	case xml.CharData:
		event.Kind = CharData
		event.Data = bytes.Clone(t)

	case xml.Comment:
		event.Kind = Comment
		event.Data = bytes.Clone(t)

	case xml.ProcInst:
		event.Kind = ProcInst
		event.Name = Name{Local: t.Target}
		event.Data = bytes.Clone(t.Inst)

	case xml.Directive:
		event.Kind = Directive
		event.Data = bytes.Clone(t)
		if bytes.HasPrefix(t, []byte("DOCTYPE")) {
			r.declareEntities(t)
		}
	}

	return event, nil
}

func (r *Reader) wrapError(offset int64, err error) error {
	if err == io.EOF {
		if r.dec.InputOffset() > offset {
			return r.syntaxError(offset, "unexpected EOF inside markup", io.ErrUnexpectedEOF)
		}
		if len(r.open) > 0 {
			return r.syntaxError(offset, fmt.Sprintf("unexpected EOF: element <%s> is not closed", r.open[len(r.open)-1]), io.ErrUnexpectedEOF)
		}
		return io.EOF
	}

	var xmlErr *xml.SyntaxError
	if errors.As(err, &xmlErr) {
		var cause error
		if strings.HasPrefix(xmlErr.Msg, "unexpected EOF") {
			cause = io.ErrUnexpectedEOF
		}
		return &SyntaxError{Offset: r.dec.InputOffset(), Line: xmlErr.Line, Msg: xmlErr.Msg, Err: cause}
	}

	if errors.Is(err, io.ErrUnexpectedEOF) {
		return r.syntaxError(offset, "unexpected EOF", io.ErrUnexpectedEOF)
	}

	return errors.Join(errors.New("failed to read XML input"), err)
}

func (r *Reader) syntaxError(offset int64, msg string, cause error) error {
	line, _ := r.dec.InputPos()
	return &SyntaxError{Offset: offset, Line: line, Msg: msg, Err: cause}
}

// charsetReader switches the source to a UTF-8 transcoding reader. The
// returned reader keeps feeding the window so positions stay aligned with the
// UTF-8 bytes the decoder sees.
func (r *Reader) charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported document encoding %q", label)
	}
	if name, _ := htmlindex.Name(enc); name == "utf-8" {
		return input, nil
	}

	r.src.r = bufio.NewReaderSize(transform.NewReader(r.src.r, enc.NewDecoder()), r.bufferSize)
	return r.src, nil
}

var entityDecl = regexp.MustCompile(`<!ENTITY\s+([^\s%"'>]+)\s+(?:"([^"]*)"|'([^']*)')\s*>`)

// declareEntities makes the internal general entities of a DOCTYPE known to
// the decoder, which ignores the internal subset otherwise. Parameter and
// external entities are not supported.
func (r *Reader) declareEntities(doctype []byte) {
	for _, m := range entityDecl.FindAllSubmatch(doctype, -1) {
		name := string(m[1])
		if _, ok := r.dec.Entity[name]; ok {
			// the first declaration is binding
			continue
		}
		if m[2] != nil {
			r.dec.Entity[name] = string(m[2])
		} else {
			r.dec.Entity[name] = string(m[3])
		}
	}
}

func nameOf(n xml.Name) Name {
	return Name{Prefix: n.Space, Local: n.Local}
}

// windowReader copies every byte handed to the decoder into the window.
type windowReader struct {
	r *bufio.Reader
	w *window.Window
}

func (wr *windowReader) ReadByte() (byte, error) {
	b, err := wr.r.ReadByte()
	if err != nil {
		return 0, err
	}
	wr.w.AppendByte(b)
	return b, nil
}

func (wr *windowReader) Read(p []byte) (int, error) {
	n, err := wr.r.Read(p)
	wr.w.Append(p[:n])
	return n, err
}
