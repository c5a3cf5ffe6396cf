package chat

import "fmt"

// CompletionError reports a failed completion call. StatusCode is zero when
// no HTTP response was received.
type CompletionError struct {
	StatusCode int
	Msg        string
	Err        error
}

func (e *CompletionError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("anthropic completion: %v", e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("anthropic completion: status %d: %s", e.StatusCode, e.Msg)
	default:
		return fmt.Sprintf("anthropic completion: %s", e.Msg)
	}
}

func (e *CompletionError) Unwrap() error { return e.Err }
