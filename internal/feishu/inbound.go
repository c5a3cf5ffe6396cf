package feishu

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	larkevent "github.com/larksuite/oapi-sdk-go/v3/event"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
)

const senderTypeApp = "app"

// mentionPattern matches the placeholder Lark substitutes for an @mention in
// text content, together with the whitespace that follows it.
var mentionPattern = regexp.MustCompile(`@_user_\d+\s*`)

// Envelope is a decoded event-subscription callback. It carries either a
// url_verification challenge or an event. Only the fields the relay reads are
// decoded, each on its own, so a drifted sibling field never hides them.
type Envelope struct {
	Challenge json.RawMessage

	token      string
	senderType string
	message    *larkim.EventMessage
}

// callbackFields is the first, shallow pass over a callback body.
type callbackFields struct {
	Challenge json.RawMessage `json:"challenge"`
	Token     json.RawMessage `json:"token"`
	Encrypt   json.RawMessage `json:"encrypt"`
	Header    json.RawMessage `json:"header"`
	Event     json.RawMessage `json:"event"`
}

// HasChallenge reports whether the payload is a url_verification handshake.
func (e Envelope) HasChallenge() bool {
	raw := strings.TrimSpace(string(e.Challenge))
	return raw != "" && raw != "null"
}

// CallbackToken returns the verification token carried by the callback,
// preferring the v2 header over the v1 root field.
func (e Envelope) CallbackToken() string {
	return e.token
}

// Message returns the inbound message, or nil for non-message events.
func (e Envelope) Message() *larkim.EventMessage {
	return e.message
}

// FromApp reports whether the event was sent by a bot or app.
func (e Envelope) FromApp() bool {
	return strings.EqualFold(e.senderType, senderTypeApp)
}

// DecodeEnvelope parses a callback body. Encrypted bodies are decrypted with
// encryptKey first. A body that is empty, undecryptable or not a JSON object
// is an error; unexpected types in any other field are ignored.
func DecodeEnvelope(raw []byte, encryptKey string) (Envelope, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return Envelope{}, fmt.Errorf("empty body")
	}
	var fields callbackFields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Envelope{}, err
	}
	env := Envelope{Challenge: fields.Challenge}
	if env.HasChallenge() {
		return env, nil
	}
	if encrypted := rawString(fields.Encrypt); encrypted != "" {
		return decodeEncrypted(encrypted, encryptKey)
	}

	header := rawObject(fields.Header)
	env.token = strings.TrimSpace(rawString(header["token"]))
	if env.token == "" {
		env.token = strings.TrimSpace(rawString(fields.Token))
	}
	event := rawObject(fields.Event)
	env.senderType = strings.TrimSpace(rawString(rawObject(event["sender"])["sender_type"]))
	if msg := rawObject(event["message"]); msg != nil {
		env.message = &larkim.EventMessage{
			MessageId:   rawStringPtr(msg["message_id"]),
			MessageType: rawStringPtr(msg["message_type"]),
			Content:     rawStringPtr(msg["content"]),
		}
	}
	return env, nil
}

func decodeEncrypted(encrypted, encryptKey string) (Envelope, error) {
	if strings.TrimSpace(encryptKey) == "" {
		return Envelope{}, fmt.Errorf("encrypted callback received but no encrypt key is configured")
	}
	plain, err := larkevent.EventDecrypt(encrypted, encryptKey)
	if err != nil {
		return Envelope{}, fmt.Errorf("decrypt callback: %w", err)
	}
	env, err := DecodeEnvelope(plain, "")
	if err != nil {
		return Envelope{}, fmt.Errorf("decode decrypted callback: %w", err)
	}
	return env, nil
}

// rawObject decodes raw as an object, or returns nil for anything else.
func rawObject(raw json.RawMessage) map[string]json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// rawString decodes raw as a string, or returns "" for anything else.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var out string
	if err := json.Unmarshal(raw, &out); err != nil {
		return ""
	}
	return out
}

func rawStringPtr(raw json.RawMessage) *string {
	value := rawString(raw)
	if value == "" {
		return nil
	}
	return &value
}

// ExtractMessage returns the message id and sanitized text of msg. ok is
// false when either is empty, in which case the message must not be answered.
func ExtractMessage(msg *larkim.EventMessage) (messageID, text string, ok bool) {
	if msg == nil {
		return "", "", false
	}
	if msg.MessageId != nil {
		messageID = strings.TrimSpace(*msg.MessageId)
	}
	text = SanitizeText(messageText(msg))
	return messageID, text, messageID != "" && text != ""
}

// SanitizeText strips mention placeholders anywhere in text and trims it.
func SanitizeText(text string) string {
	return strings.TrimSpace(mentionPattern.ReplaceAllString(text, ""))
}

func messageText(msg *larkim.EventMessage) string {
	if msg.Content == nil {
		return ""
	}
	var contentMap map[string]any
	if err := json.Unmarshal([]byte(*msg.Content), &contentMap); err != nil {
		return ""
	}
	if msg.MessageType != nil && *msg.MessageType == larkim.MsgTypePost {
		return extractPostText(contentMap)
	}
	text, _ := contentMap["text"].(string)
	return text
}

// extractPostText flattens a rich-text post into plain text. Mentions keep
// their placeholder so SanitizeText treats them like text mentions.
func extractPostText(contentMap map[string]any) string {
	parts := make([]string, 0, 8)
	if title := strings.TrimSpace(stringValue(contentMap["title"])); title != "" {
		parts = append(parts, title)
	}
	lines, _ := contentMap["content"].([]any)
	for _, rawLine := range lines {
		line, ok := rawLine.([]any)
		if !ok {
			continue
		}
		for _, rawPart := range line {
			part, ok := rawPart.(map[string]any)
			if !ok {
				continue
			}
			switch strings.ToLower(strings.TrimSpace(stringValue(part["tag"]))) {
			case "at":
				if uid := strings.TrimSpace(stringValue(part["user_id"])); strings.HasPrefix(uid, "@_user_") {
					parts = append(parts, uid)
					continue
				}
				if name := strings.TrimSpace(stringValue(part["user_name"])); name != "" {
					parts = append(parts, "@"+strings.TrimPrefix(name, "@"))
				}
			default:
				if text := strings.TrimSpace(stringValue(part["text"])); text != "" {
					parts = append(parts, text)
				}
			}
		}
	}
	return strings.Join(parts, " ")
}

func stringValue(raw any) string {
	if raw == nil {
		return ""
	}
	if value, ok := raw.(string); ok {
		return value
	}
	return fmt.Sprint(raw)
}
