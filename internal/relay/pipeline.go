package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	larkevent "github.com/larksuite/oapi-sdk-go/v3/event"

	"github.com/memohai/larkrelay/internal/chat"
	"github.com/memohai/larkrelay/internal/feishu"
)

// Completer turns user text into reply text.
type Completer interface {
	Complete(ctx context.Context, text string) (string, error)
}

// Replier posts text into the thread of a message.
type Replier interface {
	Reply(ctx context.Context, messageID, text string) error
}

// Options tunes callback verification and failure handling.
type Options struct {
	// VerificationToken, when set, must match the token carried by every
	// non-challenge callback.
	VerificationToken string
	EncryptKey        string
	// ErrorNotice is posted after a failed completion or reply. Empty
	// disables the notice.
	ErrorNotice string
	DedupTTL    time.Duration
}

// Ack is the acknowledgment returned to Lark. Every callback gets one.
type Ack struct {
	Challenge json.RawMessage
}

// Body renders the acknowledgment as {"challenge": c} or {"ok": true}.
func (a Ack) Body() any {
	if len(a.Challenge) > 0 {
		return map[string]json.RawMessage{"challenge": a.Challenge}
	}
	return map[string]bool{"ok": true}
}

// Pipeline runs one callback from decoding to reply. It never returns an
// error; failures are logged and the callback is acknowledged anyway.
type Pipeline struct {
	logger    *slog.Logger
	completer Completer
	replier   Replier
	seen      *seenSet

	verificationToken string
	encryptKey        string
	errorNotice       string
}

// NewPipeline creates a pipeline.
func NewPipeline(log *slog.Logger, completer Completer, replier Replier, opts Options) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		logger:            log.With(slog.String("component", "relay")),
		completer:         completer,
		replier:           replier,
		seen:              newSeenSet(opts.DedupTTL),
		verificationToken: strings.TrimSpace(opts.VerificationToken),
		encryptKey:        strings.TrimSpace(opts.EncryptKey),
		errorNotice:       strings.TrimSpace(opts.ErrorNotice),
	}
}

// Handle processes one callback request and returns the acknowledgment.
// Signatures are checked only when an encrypt key is configured, and never
// for the URL verification handshake.
func (p *Pipeline) Handle(ctx context.Context, req *larkevent.EventReq) Ack {
	if req == nil {
		p.Reject(&ParseError{Err: errors.New("empty callback request")})
		return Ack{}
	}
	env, err := feishu.DecodeEnvelope(req.Body, p.encryptKey)
	if err != nil {
		p.Reject(&ParseError{Err: err})
		return Ack{}
	}
	if env.HasChallenge() {
		p.logger.Info("url verification challenge")
		return Ack{Challenge: env.Challenge}
	}
	if err := feishu.VerifySignature(req, p.encryptKey); err != nil {
		p.logger.Warn("callback signature invalid, dropping event", slog.Any("error", err))
		return Ack{}
	}
	if p.verificationToken != "" && env.CallbackToken() != p.verificationToken {
		p.logger.Warn("callback token mismatch, dropping event")
		return Ack{}
	}
	msg := env.Message()
	if msg == nil {
		p.logger.Debug("callback without message")
		return Ack{}
	}
	messageID, text, ok := feishu.ExtractMessage(msg)
	log := p.logger.With(slog.String("message_id", messageID))
	if env.FromApp() {
		log.Debug("skip app message")
		return Ack{}
	}
	if !ok {
		log.Debug("skip message without text")
		return Ack{}
	}
	if !p.seen.firstSeen(messageID) {
		log.Info("skip duplicate delivery")
		return Ack{}
	}

	p.relay(ctx, log, messageID, text)
	return Ack{}
}

// Reject logs a callback that never reached the pipeline, such as an
// oversized or unreadable body.
func (p *Pipeline) Reject(err error) {
	p.logger.Warn("drop callback", slog.Any("error", err))
}

func (p *Pipeline) relay(ctx context.Context, log *slog.Logger, messageID, text string) {
	reply, err := p.completer.Complete(ctx, text)
	if err == nil {
		err = p.replier.Reply(ctx, messageID, reply)
	}
	if err == nil {
		log.Info("relayed message")
		return
	}

	var (
		completionErr *chat.CompletionError
		deliveryErr   *feishu.DeliveryError
	)
	switch {
	case errors.As(err, &completionErr):
		log.Error("completion failed", slog.Int("status", completionErr.StatusCode), slog.Any("error", err))
	case errors.As(err, &deliveryErr):
		log.Error("reply failed", slog.Int("code", deliveryErr.Code), slog.Any("error", err))
	default:
		log.Error("relay failed", slog.Any("error", err))
	}
	p.notify(ctx, log, messageID)
}

func (p *Pipeline) notify(ctx context.Context, log *slog.Logger, messageID string) {
	if p.errorNotice == "" {
		return
	}
	if err := p.replier.Reply(ctx, messageID, p.errorNotice); err != nil {
		log.Warn("error notice failed", slog.Any("error", err))
	}
}
