package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRuntime(t *testing.T) {
	t.Setenv("AWS_LAMBDA_RUNTIME_API", "127.0.0.1:9001")
	t.Setenv("_HANDLER", "handler.rb")

	cfg, err := ParseRuntime()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9001", cfg.RuntimeAPI)
	assert.Equal(t, "handler.rb", cfg.Handler)
	assert.Equal(t, "/var/task", cfg.TaskRoot, "default when LAMBDA_TASK_ROOT is unset")
	assert.Equal(t, "info", cfg.LogLevel.String())
}

func TestParseRuntime_missingRequired(t *testing.T) {
	t.Setenv("AWS_LAMBDA_RUNTIME_API", "")
	t.Setenv("_HANDLER", "")

	_, err := ParseRuntime()
	assert.Error(t, err)
}

func TestParseBuild(t *testing.T) {
	t.Setenv("RUBY_VERSION", "3.3.0")
	t.Setenv("RUBY_DOWNLOAD_BASE_URL", "https://example.com/releases")

	cfg, err := ParseBuild()
	require.NoError(t, err)
	assert.Equal(t, "3.3.0", cfg.InterpreterVersion)
	assert.Equal(t, "https://example.com/releases", cfg.DownloadBaseURL)
}
