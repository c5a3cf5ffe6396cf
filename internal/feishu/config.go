package feishu

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
)

const (
	regionFeishu = "feishu"
	regionLark   = "lark"

	defaultTimeout = 10 * time.Second
)

// Config holds the Lark app identity and transport settings. BaseURL, when
// set, overrides the region endpoint.
type Config struct {
	AppID     string
	AppSecret string
	Region    string
	BaseURL   string
	Timeout   time.Duration
}

func normalizeRegion(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case regionLark, "", "global", "intl", "international":
		return regionLark, nil
	case regionFeishu, "cn", "china":
		return regionFeishu, nil
	default:
		return "", fmt.Errorf("lark region must be feishu or lark")
	}
}

func (c Config) openBaseURL() string {
	if base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/"); base != "" {
		return base
	}
	region, err := normalizeRegion(c.Region)
	if err == nil && region == regionFeishu {
		return lark.FeishuBaseUrl
	}
	return lark.LarkBaseUrl
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultTimeout
	}
	return c.Timeout
}

// newClient builds an SDK client that never manages tokens on its own; the
// TokenProvider owns the tenant token lifecycle.
func newClient(cfg Config, log *slog.Logger) *lark.Client {
	return lark.NewClient(cfg.AppID, cfg.AppSecret,
		lark.WithOpenBaseUrl(cfg.openBaseURL()),
		lark.WithEnableTokenCache(false),
		lark.WithReqTimeout(cfg.timeout()),
		lark.WithLogger(newLarkSlogLogger(log)),
		lark.WithLogLevel(larkcore.LogLevelInfo),
	)
}
