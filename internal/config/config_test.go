package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_CreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultConfigName)

	cfg, err := LoadConfig(path, EnvOverrides{})
	require.NoError(t, err)

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "default config should be written")

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "http://localhost:5000", cfg.Service.BaseURL)
	assert.Equal(t, "/analyze", cfg.Service.AnalyzePath)
	assert.Equal(t, "/summarize", cfg.Service.SummarizePath)
	assert.Equal(t, time.Duration(0), cfg.ServiceTimeout())
	assert.Equal(t, filepath.Join(dir, "data", "uploads"), cfg.GetUploadDir())

	// Loading the written file round-trips the defaults.
	again, err := LoadConfig(path, EnvOverrides{})
	require.NoError(t, err)
	assert.Equal(t, cfg.Service, again.Service)
}

func TestLoadConfig_XMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.xml")
	content := `<?xml version="1.0" encoding="UTF-8"?>
<AIPlayground>
  <Server><Port>9090</Port><BindAddress>127.0.0.1</BindAddress></Server>
  <Service><BaseURL>http://ml:5000</BaseURL><TimeoutSeconds>15</TimeoutSeconds></Service>
</AIPlayground>`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path, EnvOverrides{})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.GetServerAddr())
	assert.Equal(t, "http://ml:5000", cfg.Service.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.ServiceTimeout())
	// Unset values keep their defaults.
	assert.Equal(t, "/analyze", cfg.Service.AnalyzePath)
	assert.Equal(t, 30, cfg.Session.TimeoutMinutes)
}

func TestLoadConfig_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "playground.yaml")
	content := `
server:
  port: 7000
service:
  baseUrl: http://yaml-host:5000
  requestsPerSecond: 2.5
  burst: 3
forms:
  documentExtensions: ".PDF, .docx,.txt"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path, EnvOverrides{})
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "http://yaml-host:5000", cfg.Service.BaseURL)
	assert.Equal(t, 2.5, cfg.Service.RequestsPerSecond)
	assert.Equal(t, 3, cfg.Service.Burst)
	assert.Equal(t, []string{".pdf", ".docx", ".txt"}, cfg.DocumentExtensions())
}

func TestLoadConfig_YAMLDefaultWritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.yml")

	_, err := LoadConfig(path, EnvOverrides{})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "baseUrl: http://localhost:5000")
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "6001")
	t.Setenv("ANALYZER_URL", "http://env-host:5000")
	t.Setenv("LOG_LEVEL", "debug")

	overrides, err := ReadEnv()
	require.NoError(t, err)

	dir := t.TempDir()
	cfg, err := LoadConfig(filepath.Join(dir, DefaultConfigName), overrides)
	require.NoError(t, err)

	assert.Equal(t, 6001, cfg.Server.Port)
	assert.Equal(t, "http://env-host:5000", cfg.Service.BaseURL)
	assert.Equal(t, "debug", cfg.Advanced.LogLevel)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.xml")
	require.NoError(t, os.WriteFile(path, []byte("<AIPlayground><Server>"), 0644))

	_, err := LoadConfig(path, EnvOverrides{})
	assert.Error(t, err)
}

func TestAppConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*AppConfig) {}},
		{name: "bad port", mutate: func(c *AppConfig) { c.Server.Port = 0 }, wantErr: true},
		{name: "missing base url", mutate: func(c *AppConfig) { c.Service.BaseURL = "" }, wantErr: true},
		{name: "negative rate", mutate: func(c *AppConfig) { c.Service.RequestsPerSecond = -1 }, wantErr: true},
		{name: "zero session timeout", mutate: func(c *AppConfig) { c.Session.TimeoutMinutes = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.resolvePaths(dir)

	require.NoError(t, cfg.EnsureDirectories())
	_, err := os.Stat(cfg.GetUploadDir())
	assert.NoError(t, err)
}
