package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearConfigEnv blanks every configuration variable for the test.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for key := range configDefaults {
		t.Setenv(strings.ToUpper(key), "")
	}
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GITHUB_TOKEN", "token")
	t.Setenv("GITHUB_USER", "octo")
	t.Setenv("GITHUB_REPO", "reviews")
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearConfigEnv(t)
	setRequiredEnv(t)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, "token", cfg.GitHubToken)
	assert.Equal(t, "octo", cfg.GitHubUser)
	assert.Equal(t, "reviews", cfg.GitHubRepo)
	assert.Equal(t, DefaultGitHubAPIURL, cfg.GitHubAPIURL)
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, ":3000", cfg.Addr())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, 60, cfg.RateLimit)
	assert.Equal(t, time.Minute, cfg.RateWindow)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.APIKeys)
}

func TestLoadConfig_MissingRequired(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("GITHUB_USER", "octo")

	cfg, err := LoadConfig("", nil)
	require.Error(t, err)
	assert.Nil(t, cfg)

	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, []string{"GITHUB_TOKEN", "GITHUB_REPO"}, cerr.Missing)
	assert.Contains(t, err.Error(), "missing required environment variables: GITHUB_TOKEN, GITHUB_REPO")
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	clearConfigEnv(t)
	setRequiredEnv(t)
	t.Setenv("LOG_FORMAT", "xml")
	t.Setenv("RATE_WINDOW", "500ms")
	t.Setenv("PORT", "http")

	_, err := LoadConfig("", nil)
	require.Error(t, err)

	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Empty(t, cerr.Missing)
	assert.ElementsMatch(t, []string{"PORT", "LOG_FORMAT", "RATE_WINDOW"}, cerr.Invalid)
}

func TestLoadConfig_EnvFile(t *testing.T) {
	clearConfigEnv(t)
	envFile := filepath.Join(t.TempDir(), ".env")
	content := "GITHUB_TOKEN=file-token\nGITHUB_USER=file-user\nGITHUB_REPO=file-repo\nPORT=4000\nRATE_WINDOW=30s\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))
	t.Setenv("GITHUB_REPO", "env-repo")

	cfg, err := LoadConfig(envFile, nil)
	require.NoError(t, err)

	assert.Equal(t, "file-token", cfg.GitHubToken)
	assert.Equal(t, "file-user", cfg.GitHubUser)
	assert.Equal(t, "env-repo", cfg.GitHubRepo, "environment overrides the env file")
	assert.Equal(t, "4000", cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.RateWindow)
}

func TestLoadConfig_MissingEnvFileIsIgnored(t *testing.T) {
	clearConfigEnv(t)
	setRequiredEnv(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.env"), nil)
	require.NoError(t, err)
}

func TestLoadConfig_PortFlag(t *testing.T) {
	clearConfigEnv(t)
	setRequiredEnv(t)
	t.Setenv("PORT", "5000")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("port", "3000", "")
	require.NoError(t, flags.Parse([]string{"--port", "8080"}))

	cfg, err := LoadConfig("", flags)
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
}

func TestConfigRedacted(t *testing.T) {
	cfg := &Config{GitHubToken: "secret", APIKeys: "a,b", GitHubUser: "octo"}

	red := cfg.Redacted()
	assert.Equal(t, "********", red.GitHubToken)
	assert.Equal(t, "********", red.APIKeys)
	assert.Equal(t, "octo", red.GitHubUser)
	assert.Equal(t, "secret", cfg.GitHubToken)
}

func TestRootCommand_MissingConfigFails(t *testing.T) {
	clearConfigEnv(t)

	cmd := newRootCommand()
	cmd.SetArgs([]string{"--env-file", ""})
	err := cmd.Execute()
	require.Error(t, err)

	var cerr *ConfigError
	assert.True(t, errors.As(err, &cerr))
}

func TestCheckConfigCommand(t *testing.T) {
	clearConfigEnv(t)
	setRequiredEnv(t)

	var out strings.Builder
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"check-config", "--env-file", ""})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), `"GitHubUser": "octo"`)
	assert.NotContains(t, out.String(), `"token"`)
}
