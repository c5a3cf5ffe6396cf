package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	messagesPath = "/v1/messages"

	defaultBaseURL   = "https://api.anthropic.com"
	defaultVersion   = "2023-06-01"
	defaultMaxTokens = 1024
	defaultTimeout   = 60 * time.Second

	// maxErrorBody bounds how much of a failed response is kept for the error.
	maxErrorBody = 4 << 10
)

// AnthropicConfig configures the Messages API client.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	Version      string
	SystemPrompt string
	Timeout      time.Duration
}

// AnthropicClient generates single-turn completions with the Anthropic
// Messages API.
type AnthropicClient struct {
	logger     *slog.Logger
	httpClient *http.Client
	endpoint   string
	apiKey     string
	model      string
	maxTokens  int
	version    string
	system     string
	timeout    time.Duration
}

// NewAnthropicClient creates a client. Zero values in cfg fall back to the
// public endpoint and defaults.
func NewAnthropicClient(log *slog.Logger, cfg AnthropicConfig) *AnthropicClient {
	if log == nil {
		log = slog.Default()
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	version := strings.TrimSpace(cfg.Version)
	if version == "" {
		version = defaultVersion
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &AnthropicClient{
		logger:     log.With(slog.String("component", "anthropic")),
		httpClient: newHTTPClient(timeout),
		endpoint:   baseURL + messagesPath,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		model:      strings.TrimSpace(cfg.Model),
		maxTokens:  maxTokens,
		version:    version,
		system:     strings.TrimSpace(cfg.SystemPrompt),
		timeout:    timeout,
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: timeout,
		},
	}
}

// Complete sends text as a single user message and returns the text of the
// first content block.
func (c *AnthropicClient) Complete(ctx context.Context, text string) (string, error) {
	if c.apiKey == "" {
		return "", &CompletionError{Msg: "api key is not configured"}
	}
	body, err := json.Marshal(Request{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    c.system,
		Messages:  []Message{{Role: roleUser, Content: text}},
	})
	if err != nil {
		return "", &CompletionError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &CompletionError{Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", c.version)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &CompletionError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &CompletionError{StatusCode: resp.StatusCode, Msg: errorMessage(raw)}
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &CompletionError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(out.Content) == 0 || out.Content[0].Text == "" {
		return "", &CompletionError{StatusCode: resp.StatusCode, Msg: "response has no text content"}
	}
	c.logger.Debug("completion done",
		slog.String("model", out.Model),
		slog.Int("input_tokens", out.Usage.InputTokens),
		slog.Int("output_tokens", out.Usage.OutputTokens),
		slog.Duration("elapsed", time.Since(start)),
	)
	return out.Content[0].Text, nil
}

// errorMessage prefers the API's structured error message over the raw body.
func errorMessage(raw []byte) string {
	var body apiErrorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Message != "" {
		if body.Error.Type != "" {
			return body.Error.Type + ": " + body.Error.Message
		}
		return body.Error.Message
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		return "empty response body"
	}
	return msg
}
