// Package splitter cuts a stream of XML events into independent chunks.
//
// A Splitter consumes events from an xmlevent.Reader one at a time and asks a
// Policy where chunks begin and end. Each chunk is a complete document: the
// captured bytes are wrapped in the opening and closing tags of every element
// that encloses them, so namespace declarations and attributes of the
// ancestors are available to a standalone parser.
package splitter

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/opengs/xmlsplit/window"
	"github.com/opengs/xmlsplit/xmlevent"
)

// Prolog is written at the start of every chunk.
const Prolog = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"

const noMark = -1

// ChunkMeta describes how a chunk was built. Data[Start:End] of the chunk is
// the captured part of the original document; everything around it was
// rebuilt from Parents.
type ChunkMeta struct {
	Parents []StartElement `json:"parents"`
	Start   int            `json:"start"`
	End     int            `json:"end"`
}

type Chunk struct {
	Data []byte
	Meta ChunkMeta
}

// Content returns the captured part of the chunk.
func (c *Chunk) Content() []byte {
	return c.Data[c.Meta.Start:c.Meta.End]
}

// Splitter is the state machine that turns events into chunks. It is either
// idle or capturing. While capturing, the ancestor stack is frozen and the
// nested markup is kept verbatim in the window.
//
// A Splitter belongs to one document and is not safe for concurrent use.
type Splitter struct {
	window *window.Window
	policy Policy

	stack []StartElement
	mark  int64
}

func New(w *window.Window, policy Policy) *Splitter {
	return &Splitter{
		window: w,
		policy: policy,
		mark:   noMark,
	}
}

// Capturing reports whether a chunk is in progress.
func (s *Splitter) Capturing() bool {
	return s.mark != noMark
}

// Mark returns the start position of the chunk in progress.
func (s *Splitter) Mark() (int64, bool) {
	return s.mark, s.mark != noMark
}

// Depth returns the number of ancestors outside the current capture.
func (s *Splitter) Depth() int {
	return len(s.stack)
}

// Stack returns a copy of the ancestor stack, outermost first.
func (s *Splitter) Stack() []StartElement {
	return slices.Clone(s.stack)
}

// OnEvent feeds one event to the splitter. It returns the finished chunk when
// the policy ends a capture on this event, nil otherwise.
func (s *Splitter) OnEvent(ev xmlevent.Event) (*Chunk, error) {
	decision := s.policy.Decide(ev, State{
		Stack:     s.stack[:len(s.stack):len(s.stack)],
		Capturing: s.Capturing(),
	})

	var chunk *Chunk
	inside := s.Capturing()

	switch decision.Action {
	case BeginCapture:
		if s.Capturing() {
			return nil, ErrAlreadyCapturing
		}
		if decision.Pos < s.window.Advanced() || decision.Pos > s.window.Filled() {
			return nil, fmt.Errorf("%w: capture cannot begin at %d, retained range is [%d, %d]", ErrContractViolation, decision.Pos, s.window.Advanced(), s.window.Filled())
		}
		s.mark = decision.Pos
		// the event that opens the capture belongs to it unless the policy
		// began the capture behind the event
		inside = decision.Pos < ev.End

	case EndCapture:
		if !s.Capturing() {
			return nil, ErrNotCapturing
		}
		c, err := s.makeChunk(decision.Pos)
		if err != nil {
			return nil, err
		}
		chunk = c
		// the event that closes the capture belongs to it unless the policy
		// ended the capture in front of the event
		inside = ev.End <= decision.Pos
	}

	if inside {
		return chunk, nil
	}

	switch ev.Kind {
	case xmlevent.StartElement:
		s.stack = append(s.stack, FromEvent(ev))
	case xmlevent.EndElement:
		if len(s.stack) == 0 {
			return nil, fmt.Errorf("%w: end element </%s> without a recorded start element", ErrContractViolation, ev.Name)
		}
		s.stack = s.stack[:len(s.stack)-1]
	}

	if ev.End > s.window.Advanced() {
		if err := s.window.Advance(ev.End); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrContractViolation, err)
		}
	}

	return chunk, nil
}

// makeChunk builds a chunk from the mark to pos, then releases the window up
// to pos and clears the mark.
func (s *Splitter) makeChunk(pos int64) (*Chunk, error) {
	raw, err := s.window.Read(s.mark, pos)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContractViolation, err)
	}

	var sb strings.Builder
	sb.WriteString(Prolog)
	for _, e := range s.stack {
		e.writeOpenTag(&sb)
	}
	start := sb.Len()
	sb.Write(raw)
	end := sb.Len()
	for i := len(s.stack) - 1; i >= 0; i-- {
		sb.WriteString(s.stack[i].CloseTag())
	}

	if err := s.window.Advance(pos); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContractViolation, err)
	}
	s.mark = noMark

	return &Chunk{
		Data: []byte(sb.String()),
		Meta: ChunkMeta{
			Parents: slices.Clone(s.stack),
			Start:   start,
			End:     end,
		},
	}, nil
}

// Finish must be called when the event feed stops, with the error that
// stopped it (io.EOF for a clean end). It reports an UnterminatedChunkError
// when the input ended while a chunk was being captured, and otherwise passes
// cause through, treating io.EOF as success.
func (s *Splitter) Finish(cause error) error {
	if s.Capturing() && (cause == nil || cause == io.EOF || errors.Is(cause, io.ErrUnexpectedEOF)) {
		if cause == io.EOF {
			cause = nil
		}
		return &UnterminatedChunkError{Mark: s.mark, Err: cause}
	}
	if cause == io.EOF {
		return nil
	}
	return cause
}
