package relay

import "fmt"

// ParseError reports a callback body that could not be read or decoded.
// It never fails the request; the callback is acknowledged as empty.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse callback: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
