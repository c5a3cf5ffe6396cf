package feishu

import "fmt"

// AuthError reports a failed tenant access token exchange.
type AuthError struct {
	Code int
	Msg  string
	Err  error
}

func (e *AuthError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("lark auth: %v", e.Err)
	case e.Code != 0:
		return fmt.Sprintf("lark auth: %s (code: %d)", e.Msg, e.Code)
	default:
		return fmt.Sprintf("lark auth: %s", e.Msg)
	}
}

func (e *AuthError) Unwrap() error { return e.Err }

// DeliveryError reports a reply that could not be posted.
type DeliveryError struct {
	MessageID string
	Code      int
	Msg       string
	Err       error
}

func (e *DeliveryError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("lark reply to %s: %v", e.MessageID, e.Err)
	default:
		return fmt.Sprintf("lark reply to %s: %s (code: %d)", e.MessageID, e.Msg, e.Code)
	}
}

func (e *DeliveryError) Unwrap() error { return e.Err }
