package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	larkevent "github.com/larksuite/oapi-sdk-go/v3/event"

	"github.com/memohai/larkrelay/internal/relay"
)

const webhookMaxBodyBytes int64 = 1 << 20 // 1 MiB

type webhookPipeline interface {
	Handle(ctx context.Context, req *larkevent.EventReq) relay.Ack
	Reject(err error)
}

// WebhookHandler receives Lark event-subscription callbacks.
type WebhookHandler struct {
	logger   *slog.Logger
	pipeline webhookPipeline
}

// NewWebhookHandler creates the Lark event-subscription webhook handler.
func NewWebhookHandler(log *slog.Logger, pipeline webhookPipeline) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		logger:   log.With(slog.String("handler", "lark_webhook")),
		pipeline: pipeline,
	}
}

// NewWebhookServerHandler is the fx constructor, taking the concrete pipeline.
func NewWebhookServerHandler(log *slog.Logger, pipeline *relay.Pipeline) *WebhookHandler {
	return NewWebhookHandler(log, pipeline)
}

// Register registers webhook callback routes.
func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/", h.Handle)
	e.POST("/webhook/lark", h.Handle)
}

// Handle acknowledges every callback with 200. Processing runs to completion
// even if Lark drops the connection.
func (h *WebhookHandler) Handle(c echo.Context) error {
	if h.pipeline == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "lark webhook pipeline not configured")
	}
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, webhookMaxBodyBytes+1))
	if err != nil {
		h.pipeline.Reject(&relay.ParseError{Err: fmt.Errorf("read body: %w", err)})
		return c.JSON(http.StatusOK, relay.Ack{}.Body())
	}
	if int64(len(payload)) > webhookMaxBodyBytes {
		h.pipeline.Reject(&relay.ParseError{Err: fmt.Errorf("payload too large: max %d bytes", webhookMaxBodyBytes)})
		return c.JSON(http.StatusOK, relay.Ack{}.Body())
	}

	req := &larkevent.EventReq{
		Header:     c.Request().Header,
		Body:       payload,
		RequestURI: c.Request().RequestURI,
	}
	ack := h.pipeline.Handle(context.WithoutCancel(c.Request().Context()), req)
	return c.JSON(http.StatusOK, ack.Body())
}
