package feishu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
)

const (
	tenantAccessTokenPath = "/open-apis/auth/v3/tenant_access_token/internal"

	// tokenRefreshSkew renews a token this long before the issuer's expiry.
	tokenRefreshSkew = time.Minute
	// tokenFallbackTTL applies when the issuer omits expire.
	tokenFallbackTTL = 5 * time.Minute
)

// AccessToken is a tenant access token and the instant it stops being reused.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// Valid reports whether the token may still be used at now.
func (t AccessToken) Valid(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

type tokenExchangeAPI interface {
	Post(ctx context.Context, httpPath string, body interface{}, accessTokeType larkcore.AccessTokenType, options ...larkcore.RequestOptionFunc) (*larkcore.ApiResp, error)
}

// TokenProvider issues tenant access tokens and caches the current one for
// the whole process. Concurrent callers are serialized around the
// check-refresh-store sequence, so at most one exchange is in flight.
type TokenProvider struct {
	logger    *slog.Logger
	api       tokenExchangeAPI
	appID     string
	appSecret string
	timeout   time.Duration
	now       func() time.Time

	mu     sync.Mutex
	cached AccessToken
}

// NewTokenProvider creates a TokenProvider for the configured app.
func NewTokenProvider(log *slog.Logger, cfg Config) *TokenProvider {
	if log == nil {
		log = slog.Default()
	}
	return &TokenProvider{
		logger:    log.With(slog.String("component", "lark_token")),
		api:       newClient(cfg, log),
		appID:     strings.TrimSpace(cfg.AppID),
		appSecret: strings.TrimSpace(cfg.AppSecret),
		timeout:   cfg.timeout(),
		now:       time.Now,
	}
}

// GetToken returns the cached token while it is valid and exchanges the app
// credentials for a new one otherwise.
func (p *TokenProvider) GetToken(ctx context.Context) (AccessToken, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached.Valid(p.now()) {
		return p.cached, nil
	}
	token, err := p.exchange(ctx)
	if err != nil {
		return AccessToken{}, err
	}
	p.cached = token
	return token, nil
}

func (p *TokenProvider) exchange(ctx context.Context) (AccessToken, error) {
	if p.appID == "" || p.appSecret == "" {
		return AccessToken{}, &AuthError{Msg: "app_id and app_secret are required"}
	}
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.api.Post(callCtx, tenantAccessTokenPath, map[string]string{
		"app_id":     p.appID,
		"app_secret": p.appSecret,
	}, larkcore.AccessTokenTypeNone)
	if err != nil {
		return AccessToken{}, &AuthError{Err: p.redact(err)}
	}
	if resp == nil {
		return AccessToken{}, &AuthError{Msg: "empty response"}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return AccessToken{}, &AuthError{Msg: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}
	var body struct {
		Code              int    `json:"code"`
		Msg               string `json:"msg"`
		TenantAccessToken string `json:"tenant_access_token"`
		Expire            int    `json:"expire"`
	}
	if err := json.Unmarshal(resp.RawBody, &body); err != nil {
		return AccessToken{}, &AuthError{Err: fmt.Errorf("parse response: %w", err)}
	}
	if body.Code != 0 {
		return AccessToken{}, &AuthError{Code: body.Code, Msg: body.Msg}
	}
	value := strings.TrimSpace(body.TenantAccessToken)
	if value == "" {
		return AccessToken{}, &AuthError{Msg: "empty tenant_access_token"}
	}

	issuedAt := p.now()
	ttl := tokenFallbackTTL
	if body.Expire > 0 {
		ttl = time.Duration(body.Expire) * time.Second
		if ttl > 2*tokenRefreshSkew {
			ttl -= tokenRefreshSkew
		}
	}
	p.logger.Debug("tenant token refreshed", slog.Duration("ttl", ttl))
	return AccessToken{Value: value, ExpiresAt: issuedAt.Add(ttl)}, nil
}

// redact strips the app secret from transport errors that may echo the
// request.
func (p *TokenProvider) redact(err error) error {
	if err == nil || p.appSecret == "" {
		return err
	}
	msg := err.Error()
	if !strings.Contains(msg, p.appSecret) {
		return err
	}
	return errors.New(strings.ReplaceAll(msg, p.appSecret, "[redacted]"))
}
