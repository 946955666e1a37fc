package splitter

import (
	"errors"
	"fmt"

	"github.com/opengs/xmlsplit/xmlevent"
)

// ErrContractViolation marks defects in the wiring of the splitter or in a
// policy implementation. These errors are never caused by input data.
var ErrContractViolation = errors.New("split contract violation")

var ErrAlreadyCapturing = fmt.Errorf("%w: policy began a capture while already capturing", ErrContractViolation)
var ErrNotCapturing = fmt.Errorf("%w: policy ended a capture while idle", ErrContractViolation)

// ErrMalformedInput marks documents that cannot be split.
var ErrMalformedInput = errors.New("malformed input document")

// UnterminatedChunkError reports a document that ended while a chunk was
// being captured.
type UnterminatedChunkError struct {
	// Start position of the unfinished chunk.
	Mark int64
	// What ended the input, usually io.EOF or an xmlevent.SyntaxError.
	Err error
}

func (e *UnterminatedChunkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("document ended inside the chunk starting at offset %d: %s", e.Mark, e.Err.Error())
	}
	return fmt.Sprintf("document ended inside the chunk starting at offset %d", e.Mark)
}

func (e *UnterminatedChunkError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformedInput}
	}
	return []error{ErrMalformedInput, e.Err}
}

// IsMalformedInput reports whether err was caused by the document rather than
// by a defect or an I/O failure.
func IsMalformedInput(err error) bool {
	if errors.Is(err, ErrMalformedInput) {
		return true
	}
	var syntaxErr *xmlevent.SyntaxError
	return errors.As(err, &syntaxErr)
}

// IsContractViolation reports whether err is a programming defect.
func IsContractViolation(err error) bool {
	return errors.Is(err, ErrContractViolation)
}
