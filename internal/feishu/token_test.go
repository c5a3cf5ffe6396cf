package feishu

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenProviderCachesWithinLifetime(t *testing.T) {
	t.Parallel()

	srv := newFakeLarkServer(t)
	p := NewTokenProvider(nil, srv.config())

	first, err := p.GetToken(context.Background())
	require.NoError(t, err)
	second, err := p.GetToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "t-abc", first.Value)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, srv.tokenCalls.Load())
}

func TestTokenProviderRefreshesAfterExpiry(t *testing.T) {
	t.Parallel()

	srv := newFakeLarkServer(t)
	p := NewTokenProvider(nil, srv.config())
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return clock }

	token, err := p.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, clock.Add(7200*time.Second-tokenRefreshSkew), token.ExpiresAt)

	clock = token.ExpiresAt.Add(-time.Second)
	_, err = p.GetToken(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, srv.tokenCalls.Load())

	clock = token.ExpiresAt
	_, err = p.GetToken(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, srv.tokenCalls.Load())
}

func TestTokenProviderFallbackTTLWhenExpireMissing(t *testing.T) {
	t.Parallel()

	srv := newFakeLarkServer(t)
	srv.setToken(http.StatusOK, `{"code":0,"msg":"ok","tenant_access_token":"t-short"}`)
	p := NewTokenProvider(nil, srv.config())
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return clock }

	token, err := p.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, clock.Add(tokenFallbackTTL), token.ExpiresAt)
}

func TestTokenProviderConcurrentCallersShareOneExchange(t *testing.T) {
	t.Parallel()

	srv := newFakeLarkServer(t)
	p := NewTokenProvider(nil, srv.config())

	var wg sync.WaitGroup
	values := make([]string, 16)
	for i := range values {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := p.GetToken(context.Background())
			if err == nil {
				values[i] = token.Value
			}
		}(i)
	}
	wg.Wait()

	for _, v := range values {
		assert.Equal(t, "t-abc", v)
	}
	assert.EqualValues(t, 1, srv.tokenCalls.Load())
}

func TestTokenProviderIssuerErrorIsAuthError(t *testing.T) {
	t.Parallel()

	srv := newFakeLarkServer(t)
	srv.setToken(http.StatusOK, `{"code":10014,"msg":"app secret invalid"}`)
	cfg := srv.config()
	p := NewTokenProvider(nil, cfg)

	_, err := p.GetToken(context.Background())
	require.Error(t, err)
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, 10014, authErr.Code)
	assert.NotContains(t, err.Error(), cfg.AppSecret)

	// failures are not cached
	srv.setToken(http.StatusOK, `{"code":0,"tenant_access_token":"t-ok","expire":7200}`)
	token, err := p.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "t-ok", token.Value)
}

func TestTokenProviderMalformedResponses(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"code":0}`},
		{name: "not json", status: http.StatusOK, body: `<html>`},
		{name: "missing token", status: http.StatusOK, body: `{"code":0,"expire":7200}`},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := newFakeLarkServer(t)
			srv.setToken(tc.status, tc.body)
			cfg := srv.config()
			_, err := NewTokenProvider(nil, cfg).GetToken(context.Background())
			var authErr *AuthError
			require.True(t, errors.As(err, &authErr), "got %v", err)
			assert.NotContains(t, err.Error(), cfg.AppSecret)
		})
	}
}

func TestTokenProviderRequiresCredentials(t *testing.T) {
	t.Parallel()

	srv := newFakeLarkServer(t)
	_, err := NewTokenProvider(nil, Config{BaseURL: srv.URL}).GetToken(context.Background())
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.EqualValues(t, 0, srv.tokenCalls.Load())
}

func TestTokenProviderRedactsSecretFromTransportErrors(t *testing.T) {
	t.Parallel()

	p := &TokenProvider{appSecret: "s3cr3t"}
	err := p.redact(errors.New(`post failed: body={"app_secret":"s3cr3t"}`))
	assert.NotContains(t, err.Error(), "s3cr3t")
	assert.Contains(t, err.Error(), "[redacted]")
}

func TestAccessTokenValid(t *testing.T) {
	t.Parallel()

	now := time.Now()
	assert.False(t, AccessToken{}.Valid(now))
	assert.False(t, AccessToken{Value: "t", ExpiresAt: now}.Valid(now))
	assert.True(t, AccessToken{Value: "t", ExpiresAt: now.Add(time.Second)}.Valid(now))
}
