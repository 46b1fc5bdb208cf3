package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	yaml "gopkg.in/yaml.v3"
)

func TestLoadConfiguration_Defaults(t *testing.T) {
	cfg, err := LoadConfiguration("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, Default(), cfg.Inliner)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
	assert.True(t, strings.HasPrefix(cfg.Fetch.UserAgent, "inliner ("), cfg.Fetch.UserAgent)
	assert.Equal(t, "normal", cfg.Logging.ConsoleLogger.Level)
	assert.Equal(t, "none", cfg.Logging.FileLogger.Level)
}

func TestLoadConfiguration_WithFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `version: 1
inliner:
  preserve_media_queries: true
  ignore_unsupported_selectors: true
fetch:
  timeout: 5s
logging:
  console:
    level: debug
  file:
    level: normal
    destination: ` + filepath.Join(dir, "logs", "inliner.log") + `
    mode: append
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfiguration(path)
	require.NoError(t, err)

	assert.True(t, cfg.Inliner.PreserveMediaQueries)
	assert.True(t, cfg.Inliner.IgnoreUnsupportedSelectors)
	assert.False(t, cfg.Inliner.AllowConditionalComments)
	assert.Equal(t, 5*time.Second, cfg.Fetch.Timeout)
	// untouched values come from the template
	assert.True(t, strings.HasPrefix(cfg.Fetch.UserAgent, "inliner ("))
	assert.Equal(t, "debug", cfg.Logging.ConsoleLogger.Level)
	assert.Equal(t, "append", cfg.Logging.FileLogger.Mode)

	// sanitizer creates the log directory
	_, err = os.Stat(filepath.Join(dir, "logs"))
	assert.NoError(t, err)
}

func TestLoadConfiguration_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown field", "version: 1\ninliner:\n  inline_everything: true\n"},
		{"bad version", "version: 2\n"},
		{"bad log level", "version: 1\nlogging:\n  console:\n    level: loud\n"},
		{"negative timeout", "version: 1\nfetch:\n  timeout: -1s\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			_, err := LoadConfiguration(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfiguration_MissingFile(t *testing.T) {
	_, err := LoadConfiguration(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPrepareAndDump(t *testing.T) {
	data, err := Prepare()
	require.NoError(t, err)
	assert.Contains(t, string(data), "preserve_media_queries: false")
	assert.NotContains(t, string(data), "{{")

	cfg, err := LoadConfiguration("")
	require.NoError(t, err)

	out, err := Dump(cfg)
	require.NoError(t, err)

	var back Config
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, *cfg, back)
}

func TestLoggingConfig_Prepare(t *testing.T) {
	conf := LoggingConfig{
		ConsoleLogger: LoggerConfig{Level: "none"},
		FileLogger:    LoggerConfig{Level: "none"},
	}
	log, err := conf.Prepare()
	require.NoError(t, err)
	assert.NotNil(t, log)

	conf.FileLogger.Level = "normal"
	_, err = conf.Prepare()
	assert.Error(t, err, "file logging without destination")

	dest := filepath.Join(t.TempDir(), "inliner.log")
	conf.FileLogger.Destination = dest
	log, err = conf.Prepare()
	require.NoError(t, err)

	log.Info("hello from test")
	log.Debug("not written at normal level")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from test")
	assert.NotContains(t, string(data), "not written")
	assert.Contains(t, string(data), "inliner")
}
