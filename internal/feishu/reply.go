package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
)

// replyNamespace seeds the per-reply idempotency keys so a redelivered event
// produces the same uuid and Lark drops the duplicate post.
var replyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("larkrelay/reply"))

type messageReplyAPI interface {
	Reply(ctx context.Context, req *larkim.ReplyMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.ReplyMessageResp, error)
}

type tokenSource interface {
	GetToken(ctx context.Context) (AccessToken, error)
}

// ReplyDispatcher posts text replies into the thread of an inbound message.
type ReplyDispatcher struct {
	logger  *slog.Logger
	tokens  tokenSource
	api     messageReplyAPI
	timeout time.Duration
}

// NewReplyDispatcher creates a dispatcher that authenticates with tokens.
func NewReplyDispatcher(log *slog.Logger, cfg Config, tokens *TokenProvider) *ReplyDispatcher {
	if log == nil {
		log = slog.Default()
	}
	client := newClient(cfg, log)
	return &ReplyDispatcher{
		logger:  log.With(slog.String("component", "lark_reply")),
		tokens:  tokens,
		api:     client.Im.V1.Message,
		timeout: cfg.timeout(),
	}
}

// Reply posts text as a reply to messageID.
func (d *ReplyDispatcher) Reply(ctx context.Context, messageID, text string) error {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return &DeliveryError{Err: fmt.Errorf("message id is required")}
	}
	token, err := d.tokens.GetToken(ctx)
	if err != nil {
		return &DeliveryError{MessageID: messageID, Err: err}
	}
	content, err := encodeTextContent(text)
	if err != nil {
		return &DeliveryError{MessageID: messageID, Err: err}
	}

	req := larkim.NewReplyMessageReqBuilder().
		MessageId(messageID).
		Body(larkim.NewReplyMessageReqBodyBuilder().
			Content(content).
			MsgType(larkim.MsgTypeText).
			Uuid(replyUUID(messageID, text)).
			Build()).
		Build()

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	resp, err := d.api.Reply(callCtx, req, larkcore.WithTenantAccessToken(token.Value))
	if err != nil {
		return &DeliveryError{MessageID: messageID, Err: err}
	}
	if resp == nil || !resp.Success() {
		code := 0
		msg := "empty response"
		if resp != nil {
			code = resp.Code
			msg = resp.Msg
		}
		return &DeliveryError{MessageID: messageID, Code: code, Msg: msg}
	}
	d.logger.Info("reply success", slog.String("message_id", messageID))
	return nil
}

// encodeTextContent renders the inner text message body. Lark expects this
// JSON document as a string field of the outer request, so it is encoded
// twice on the wire.
func encodeTextContent(text string) (string, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("marshal text content: %w", err)
	}
	return string(payload), nil
}

func replyUUID(messageID, text string) string {
	return uuid.NewSHA1(replyNamespace, []byte(messageID+"\x00"+text)).String()
}
