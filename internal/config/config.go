// Package config provides file-based configuration for the playground server.
// The file is XML by default; a .yaml/.yml path is read as YAML.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DefaultConfigName is the file looked up next to the executable.
const DefaultConfigName = "ai-playground.config.xml"

// AppConfig represents the root configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"AIPlayground" yaml:"-"`

	Server  ServerConfig  `xml:"Server" yaml:"server"`
	Service ServiceConfig `xml:"Service" yaml:"service"`
	Storage StorageConfig `xml:"Storage" yaml:"storage"`
	Session SessionConfig `xml:"Session" yaml:"session"`
	Forms   FormsConfig   `xml:"Forms" yaml:"forms"`

	Advanced AdvancedConfig `xml:"Advanced" yaml:"advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port" yaml:"port"`
	BindAddress  string `xml:"BindAddress" yaml:"bindAddress"`
	EnableCORS   bool   `xml:"EnableCORS" yaml:"enableCors"`
	AllowOrigins string `xml:"AllowOrigins" yaml:"allowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds" yaml:"readTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds" yaml:"writeTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds" yaml:"idleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit" yaml:"bodyLimit"`
}

// ServiceConfig points at the remote analysis/summarization service.
type ServiceConfig struct {
	BaseURL           string  `xml:"BaseURL" yaml:"baseUrl"`
	AnalyzePath       string  `xml:"AnalyzePath" yaml:"analyzePath"`
	SummarizePath     string  `xml:"SummarizePath" yaml:"summarizePath"`
	TimeoutSeconds    int     `xml:"TimeoutSeconds" yaml:"timeoutSeconds"` // 0 = transport default
	RequestsPerSecond float64 `xml:"RequestsPerSecond" yaml:"requestsPerSecond"`
	Burst             int     `xml:"Burst" yaml:"burst"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory    string `xml:"DataDirectory" yaml:"dataDirectory"`
	UploadsDirectory string `xml:"UploadsDirectory" yaml:"uploadsDirectory"`
}

// SessionConfig controls how long idle form state is kept.
type SessionConfig struct {
	TimeoutMinutes         int `xml:"TimeoutMinutes" yaml:"timeoutMinutes"`
	CleanupIntervalMinutes int `xml:"CleanupIntervalMinutes" yaml:"cleanupIntervalMinutes"`
}

// FormsConfig holds the accept hints of the file inputs.
type FormsConfig struct {
	ImageAccept        string `xml:"ImageAccept" yaml:"imageAccept"`
	DocumentExtensions string `xml:"DocumentExtensions" yaml:"documentExtensions"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel                string `xml:"LogLevel" yaml:"logLevel"`
	LogFormat               string `xml:"LogFormat" yaml:"logFormat"` // "json" or "text"
	EnableRequestLogging    bool   `xml:"EnableRequestLogging" yaml:"enableRequestLogging"`
	WebSocketMaxMessageSize int    `xml:"WebSocketMaxMessageSizeKB" yaml:"webSocketMaxMessageSizeKB"`
}

// EnvOverrides are the environment variables that win over the file.
type EnvOverrides struct {
	ConfigPath  string `env:"CONFIG_PATH"`
	Port        int    `env:"PORT"`
	AnalyzerURL string `env:"ANALYZER_URL"`
	DataDir     string `env:"DATA_DIR"`
	LogLevel    string `env:"LOG_LEVEL"`
}

// ReadEnv parses the environment overrides.
func ReadEnv() (EnvOverrides, error) {
	var o EnvOverrides
	if err := env.Parse(&o); err != nil {
		return o, fmt.Errorf("failed to parse environment: %w", err)
	}
	return o, nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8080,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "64M",
		},
		Service: ServiceConfig{
			BaseURL:       "http://localhost:5000",
			AnalyzePath:   "/analyze",
			SummarizePath: "/summarize",
			Burst:         1,
		},
		Storage: StorageConfig{
			DataDirectory:    "./data",
			UploadsDirectory: "./data/uploads",
		},
		Session: SessionConfig{
			TimeoutMinutes:         30,
			CleanupIntervalMinutes: 5,
		},
		Forms: FormsConfig{
			ImageAccept:        "image/*",
			DocumentExtensions: ".pdf,.docx",
		},
		Advanced: AdvancedConfig{
			LogLevel:                "info",
			LogFormat:               "json",
			EnableRequestLogging:    true,
			WebSocketMaxMessageSize: 64,
		},
	}
}

// LoadConfig loads configuration from an XML or YAML file, creating it with
// defaults when it does not exist, then applies the environment overrides.
func LoadConfig(configPath string, overrides EnvOverrides) (*AppConfig, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if isYAML(configPath) {
			err = yaml.Unmarshal(data, config)
		} else {
			err = xml.Unmarshal(data, config)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides(overrides)
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save writes the configuration in the format implied by the path.
func (c *AppConfig) Save(configPath string) error {
	var content []byte
	if isYAML(configPath) {
		output, err := yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		content = append([]byte("# AI Playground configuration\n"), output...)
	} else {
		output, err := xml.MarshalIndent(c, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		header := []byte(xml.Header + "\n<!-- AI Playground Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
		content = append(header, output...)
	}

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate rejects settings the server cannot run with.
func (c *AppConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Service.BaseURL == "" {
		return fmt.Errorf("service base URL is required")
	}
	if c.Service.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second must not be negative")
	}
	if c.Session.TimeoutMinutes <= 0 {
		return fmt.Errorf("session timeout must be positive")
	}
	return nil
}

func (c *AppConfig) applyEnvironmentOverrides(o EnvOverrides) {
	if o.Port != 0 {
		c.Server.Port = o.Port
	}
	if o.AnalyzerURL != "" {
		c.Service.BaseURL = o.AnalyzerURL
	}
	if o.DataDir != "" {
		c.Storage.DataDirectory = o.DataDir
		c.Storage.UploadsDirectory = filepath.Join(o.DataDir, "uploads")
	}
	if o.LogLevel != "" {
		c.Advanced.LogLevel = o.LogLevel
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if !filepath.IsAbs(c.Storage.UploadsDirectory) {
		c.Storage.UploadsDirectory = filepath.Join(configDir, c.Storage.UploadsDirectory)
	}
}

// GetUploadDir returns the absolute uploads directory path
func (c *AppConfig) GetUploadDir() string {
	return c.Storage.UploadsDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// ServiceTimeout returns the per-request timeout, zero when unset.
func (c *AppConfig) ServiceTimeout() time.Duration {
	return time.Duration(c.Service.TimeoutSeconds) * time.Second
}

// SessionTimeout returns the idle lifetime of form state.
func (c *AppConfig) SessionTimeout() time.Duration {
	return time.Duration(c.Session.TimeoutMinutes) * time.Minute
}

// CleanupInterval returns how often expired sessions are swept.
func (c *AppConfig) CleanupInterval() time.Duration {
	if c.Session.CleanupIntervalMinutes <= 0 {
		return time.Minute
	}
	return time.Duration(c.Session.CleanupIntervalMinutes) * time.Minute
}

// DocumentExtensions returns the lower-cased accepted document extensions.
func (c *AppConfig) DocumentExtensions() []string {
	var exts []string
	for _, e := range strings.Split(c.Forms.DocumentExtensions, ",") {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			exts = append(exts, e)
		}
	}
	return exts
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	for _, dir := range []string{c.Storage.DataDirectory, c.Storage.UploadsDirectory} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
