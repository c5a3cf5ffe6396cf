package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/larkrelay/internal/chat"
	"github.com/memohai/larkrelay/internal/config"
	"github.com/memohai/larkrelay/internal/feishu"
	"github.com/memohai/larkrelay/internal/handlers"
	"github.com/memohai/larkrelay/internal/logger"
	"github.com/memohai/larkrelay/internal/relay"
	"github.com/memohai/larkrelay/internal/server"
	"github.com/memohai/larkrelay/internal/version"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(appOptions(configPath))
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

func appOptions(path string) fx.Option {
	return fx.Options(
		fx.Provide(
			func() (config.Config, error) { return provideConfig(path) },
			provideLogger,
			provideTokenProvider,
			provideReplyDispatcher,
			provideAnthropicClient,
			providePipeline,
			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(handlers.NewWebhookServerHandler),
			provideServer,
		),
		fx.Invoke(startServer),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	)
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig(path string) (config.Config, error) {
	if strings.TrimSpace(path) == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func larkConfig(cfg config.Config) feishu.Config {
	return feishu.Config{
		AppID:     cfg.Lark.AppID,
		AppSecret: cfg.Lark.AppSecret,
		Region:    cfg.Lark.Region,
		BaseURL:   cfg.Lark.BaseURL,
		Timeout:   cfg.Lark.Timeout(),
	}
}

func provideTokenProvider(log *slog.Logger, cfg config.Config) *feishu.TokenProvider {
	return feishu.NewTokenProvider(log, larkConfig(cfg))
}

func provideReplyDispatcher(log *slog.Logger, cfg config.Config, tokens *feishu.TokenProvider) *feishu.ReplyDispatcher {
	return feishu.NewReplyDispatcher(log, larkConfig(cfg), tokens)
}

func provideAnthropicClient(log *slog.Logger, cfg config.Config) *chat.AnthropicClient {
	return chat.NewAnthropicClient(log, chat.AnthropicConfig{
		APIKey:       cfg.Anthropic.APIKey,
		BaseURL:      cfg.Anthropic.BaseURL,
		Model:        cfg.Anthropic.Model,
		MaxTokens:    cfg.Anthropic.MaxTokens,
		Version:      cfg.Anthropic.Version,
		SystemPrompt: cfg.Anthropic.SystemPrompt,
		Timeout:      cfg.Anthropic.Timeout(),
	})
}

func providePipeline(log *slog.Logger, cfg config.Config, completer *chat.AnthropicClient, replier *feishu.ReplyDispatcher) *relay.Pipeline {
	return relay.NewPipeline(log, completer, replier, relay.Options{
		VerificationToken: cfg.Lark.VerificationToken,
		EncryptKey:        cfg.Lark.EncryptKey,
		ErrorNotice:       cfg.Relay.ErrorNotice,
		DedupTTL:          cfg.Relay.DedupTTL(),
	})
}

type serverParams struct {
	fx.In
	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.ServerHandlers...)
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting larkrelay", slog.String("version", version.GetInfo()), slog.String("addr", srv.Addr()))
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
