package feishu

import (
	"testing"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	"github.com/stretchr/testify/assert"
)

func TestOpenBaseURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, lark.LarkBaseUrl, Config{}.openBaseURL())
	assert.Equal(t, lark.LarkBaseUrl, Config{Region: "intl"}.openBaseURL())
	assert.Equal(t, lark.FeishuBaseUrl, Config{Region: "feishu"}.openBaseURL())
	assert.Equal(t, lark.FeishuBaseUrl, Config{Region: "CN"}.openBaseURL())
	assert.Equal(t, "http://127.0.0.1:9000", Config{Region: "feishu", BaseURL: "http://127.0.0.1:9000/"}.openBaseURL())
}

func TestNormalizeRegionRejectsUnknown(t *testing.T) {
	t.Parallel()

	_, err := normalizeRegion("mars")
	assert.Error(t, err)
}
