package feishu

import (
	"context"
	"fmt"
	"log/slog"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
)

// larkSlogLogger routes SDK log lines into slog.
type larkSlogLogger struct {
	logger *slog.Logger
}

func newLarkSlogLogger(log *slog.Logger) larkcore.Logger {
	if log == nil {
		log = slog.Default()
	}
	return &larkSlogLogger{logger: log.With(slog.String("component", "lark_sdk"))}
}

func (l *larkSlogLogger) Debug(ctx context.Context, args ...interface{}) {
	l.logger.DebugContext(ctx, fmt.Sprint(args...))
}

func (l *larkSlogLogger) Info(ctx context.Context, args ...interface{}) {
	l.logger.InfoContext(ctx, fmt.Sprint(args...))
}

func (l *larkSlogLogger) Warn(ctx context.Context, args ...interface{}) {
	l.logger.WarnContext(ctx, fmt.Sprint(args...))
}

func (l *larkSlogLogger) Error(ctx context.Context, args ...interface{}) {
	l.logger.ErrorContext(ctx, fmt.Sprint(args...))
}
