package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/memohai/larkrelay/internal/config"
	"github.com/memohai/larkrelay/internal/relay"
	"github.com/memohai/larkrelay/internal/server"
)

func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestAppOptionsBuildsPipelineAndServer(t *testing.T) {
	unsetEnv(t, "CONFIG_PATH", "RELAY_ADDR", "LARK_APP_ID", "LARK_APP_SECRET", "CLAUDE_API_KEY")
	path := writeConfig(t, "[lark]\napp_id = \"cli_1\"\napp_secret = \"s\"\n\n[anthropic]\napi_key = \"k\"\n")

	var (
		pipeline *relay.Pipeline
		srv      *server.Server
	)
	app := fx.New(appOptions(path), fx.NopLogger, fx.Populate(&pipeline, &srv))
	require.NoError(t, app.Err())
	assert.NotNil(t, pipeline)
	assert.Equal(t, config.DefaultHTTPAddr, srv.Addr())
}

func TestProvideConfigValidates(t *testing.T) {
	unsetEnv(t, "LARK_APP_SECRET", "CLAUDE_API_KEY")
	path := writeConfig(t, "[lark]\napp_id = \"cli_1\"\n")

	_, err := provideConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AppSecret")
}

func TestProvideConfigFromEnvPath(t *testing.T) {
	unsetEnv(t, "RELAY_ADDR", "LARK_APP_ID", "LARK_APP_SECRET", "CLAUDE_API_KEY")
	path := writeConfig(t, "[lark]\napp_id = \"cli_1\"\napp_secret = \"s\"\n\n[anthropic]\napi_key = \"k\"\n\n[server]\naddr = \":9999\"\n")
	t.Setenv("CONFIG_PATH", path)

	cfg, err := provideConfig("")
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "cli_1", larkConfig(cfg).AppID)
}
