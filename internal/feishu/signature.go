package feishu

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	larkevent "github.com/larksuite/oapi-sdk-go/v3/event"
)

// VerifySignature checks the X-Lark-Signature of a callback. Lark signs
// callbacks only when an encrypt key is configured, so without one every
// request passes.
func VerifySignature(req *larkevent.EventReq, encryptKey string) error {
	if strings.TrimSpace(encryptKey) == "" {
		return nil
	}
	if req == nil || req.Header == nil {
		return errors.New("callback signature missing")
	}
	header := http.Header(req.Header)
	got := strings.TrimSpace(header.Get(larkevent.EventSignature))
	if got == "" {
		return errors.New("callback signature missing")
	}
	want := larkevent.Signature(
		header.Get(larkevent.EventRequestTimestamp),
		header.Get(larkevent.EventRequestNonce),
		encryptKey,
		string(req.Body),
	)
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return errors.New("callback signature mismatch")
	}
	return nil
}
