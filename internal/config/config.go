// Package config loads the chamdiem YAML configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/chamdiem/messaging"
)

// Config is the top-level configuration.
type Config struct {
	Browser    BrowserConfig    `yaml:"browser"`
	Page       PageConfig       `yaml:"page"`
	Debounce   DebounceConfig   `yaml:"debounce"`
	Detection  DetectionConfig  `yaml:"detection"`
	Vocabulary VocabularyConfig `yaml:"vocabulary"`
	Server     ServerConfig     `yaml:"server"`
	Settings   SettingsConfig   `yaml:"settings"`
	GenAI      GenAIConfig      `yaml:"genai"`
	Log        LogConfig        `yaml:"log"`
	Routes     []RouteConfig    `yaml:"routes"`
}

// BrowserConfig controls Chrome.
type BrowserConfig struct {
	Remote      string `yaml:"remote"`
	Bin         string `yaml:"bin"`
	UserDataDir string `yaml:"user_data_dir"`
	// Mode is headless or headful. Default headful: the user works in the window.
	Mode        string `yaml:"mode"`
	// Display starts Xvfb on this display for headful runs without a screen.
	Display     string `yaml:"display"`

	Lifetime time.Duration `yaml:"lifetime"` // 0 never restarts
	Block    []string      `yaml:"block"`    // images | fonts | media | stylesheets
}

// PageConfig is the page the live session opens.
type PageConfig struct {
	ID      string `yaml:"id"`
	URL     string `yaml:"url"`
	Stealth bool   `yaml:"stealth"`
}

// DebounceConfig controls the mutation quiet window.
type DebounceConfig struct {
	Window time.Duration `yaml:"window"`
}

// DetectionConfig tunes the engines and the AI flow.
type DetectionConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	WaitTimeout  time.Duration `yaml:"wait_timeout"`
	// AutoGrade grades quiet pages with the stored default rating before
	// any explicit grade command.
	AutoGrade     bool `yaml:"auto_grade"`
	ContextBudget int  `yaml:"context_budget"`
}

// VocabularyConfig points at an optional YAML overlay for vocab.Default.
type VocabularyConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig is the local HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	MCP  bool   `yaml:"mcp"`
}

// SettingsConfig locates the settings database.
type SettingsConfig struct {
	DBPath string `yaml:"db_path"`
}

// GenAIConfig is the generative text backend.
type GenAIConfig struct {
	Endpoint        string        `yaml:"endpoint"`
	Model           string        `yaml:"model"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
	Temperature     float64       `yaml:"temperature"`
	Timeout         time.Duration `yaml:"timeout"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
	// File, when set, receives the JSON log with rotation.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// RouteConfig sends a command elsewhere, typically AI_GENERATE to a
// background instance over HTTP.
type RouteConfig struct {
	Command   string            `yaml:"command"`
	Strategy  string            `yaml:"strategy"` // local | noop | http
	Endpoint  string            `yaml:"endpoint"`
	TimeoutMs int               `yaml:"timeout_ms"`
	Headers   map[string]string `yaml:"headers"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default is the configuration of an empty file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Browser.Mode == "" {
		c.Browser.Mode = "headful"
	}
	if c.Page.ID == "" {
		c.Page.ID = "main"
	}
	if c.Debounce.Window <= 0 {
		c.Debounce.Window = 400 * time.Millisecond
	}
	if c.Detection.PollInterval <= 0 {
		c.Detection.PollInterval = 250 * time.Millisecond
	}
	if c.Detection.WaitTimeout <= 0 {
		c.Detection.WaitTimeout = 5 * time.Second
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8787"
	}
	if c.Settings.DBPath == "" {
		c.Settings.DBPath = "chamdiem.db"
	}
	if c.GenAI.MaxOutputTokens <= 0 {
		c.GenAI.MaxOutputTokens = 512
	}
	if c.GenAI.Temperature <= 0 {
		c.GenAI.Temperature = 0.7
	}
	if c.GenAI.Timeout <= 0 {
		c.GenAI.Timeout = 30 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = 50
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = 3
	}
	for i := range c.Routes {
		if c.Routes[i].Strategy == "" {
			c.Routes[i].Strategy = "http"
		}
	}
}

func (c *Config) validate() error {
	switch c.Browser.Mode {
	case "headless", "headful":
	default:
		return fmt.Errorf("config: browser.mode must be headless or headful, got %q", c.Browser.Mode)
	}
	for _, r := range c.Routes {
		if r.Command == "" {
			return fmt.Errorf("config: route without command")
		}
		if r.Strategy == "http" && r.Endpoint == "" {
			return fmt.Errorf("config: route %s: http strategy needs an endpoint", r.Command)
		}
	}
	return nil
}

// MessagingRoutes converts the route section for messaging.Router.SetRoute.
func (c *Config) MessagingRoutes() ([]messaging.Route, error) {
	out := make([]messaging.Route, 0, len(c.Routes))
	for _, r := range c.Routes {
		route := messaging.Route{Command: r.Command, Strategy: r.Strategy, Endpoint: r.Endpoint}
		if r.TimeoutMs > 0 || len(r.Headers) > 0 {
			raw, err := json.Marshal(struct {
				TimeoutMs int               `json:"timeout_ms,omitempty"`
				Headers   map[string]string `json:"headers,omitempty"`
			}{r.TimeoutMs, r.Headers})
			if err != nil {
				return nil, fmt.Errorf("config: route %s: %w", r.Command, err)
			}
			route.Config = raw
		}
		out = append(out, route)
	}
	return out, nil
}
