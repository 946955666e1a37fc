package xmlevent

import "fmt"

// SyntaxError reports malformed markup. Errors caused by the input ending
// early unwrap to io.ErrUnexpectedEOF.
type SyntaxError struct {
	Offset int64
	Line   int
	Msg    string
	Err    error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("XML syntax error on line %d (offset %d): %s", e.Line, e.Offset, e.Msg)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}
