package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultModel        = "openai/gpt-4o-mini"
	DefaultBaseURL      = "https://openrouter.ai/api/v1"
	DefaultSiteName     = "Dev Challenge Tracker"
	DefaultIndexBackend = "https://rag.progress.cloud/api"
)

// ErrNoCredential is returned when the assistant has no API key configured.
var ErrNoCredential = errors.New("ai api key not configured")

// Settings models settings.yml.
type Settings struct {
	AI    AISettings    `yaml:"ai" json:"ai"`
	Index IndexSettings `yaml:"index" json:"index"`
	Log   LogSettings   `yaml:"log" json:"log"`
}

type AISettings struct {
	APIKey    string `yaml:"api_key" json:"api_key"`
	Model     string `yaml:"model" json:"model"`
	BaseURL   string `yaml:"base_url" json:"base_url"`
	SiteURL   string `yaml:"site_url,omitempty" json:"site_url,omitempty"`
	SiteName  string `yaml:"site_name,omitempty" json:"site_name,omitempty"`
	WebSearch bool   `yaml:"web_search" json:"web_search"`
}

// IndexSettings configures the knowledge-base mirror.
type IndexSettings struct {
	Enabled        bool   `yaml:"enabled" json:"enabled"`
	APIKey         string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	KnowledgeBox   string `yaml:"knowledgebox,omitempty" json:"knowledgebox,omitempty"`
	Zone           string `yaml:"zone,omitempty" json:"zone,omitempty"`
	Backend        string `yaml:"backend,omitempty" json:"backend,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
}

type LogSettings struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// HasCredential reports whether remote model calls are possible.
func (a AISettings) HasCredential() bool {
	return strings.TrimSpace(a.APIKey) != ""
}

// Ready reports whether uploads can be attempted.
func (i IndexSettings) Ready() bool {
	return i.Enabled && i.APIKey != "" && i.KnowledgeBox != "" && i.Zone != ""
}

// Default returns settings with no credentials.
func Default() Settings {
	return Settings{
		AI: AISettings{
			Model:    DefaultModel,
			BaseURL:  DefaultBaseURL,
			SiteName: DefaultSiteName,
		},
		Index: IndexSettings{
			Backend:        DefaultIndexBackend,
			TimeoutSeconds: 10,
		},
		Log: LogSettings{Level: "info", Format: "console"},
	}
}

// Validate ensures the settings are usable.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.AI.Model) == "" {
		return fmt.Errorf("ai.model is required")
	}
	if _, err := url.ParseRequestURI(s.AI.BaseURL); err != nil {
		return fmt.Errorf("ai.base_url invalid: %w", err)
	}
	if s.Index.Enabled {
		if _, err := url.ParseRequestURI(s.Index.Backend); err != nil {
			return fmt.Errorf("index.backend invalid: %w", err)
		}
	}
	if s.Index.TimeoutSeconds < 0 {
		return fmt.Errorf("index.timeout_seconds must be positive")
	}
	switch s.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	switch s.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json")
	}
	return nil
}

// Masked returns a copy safe for display.
func (s Settings) Masked() Settings {
	out := s
	out.AI.APIKey = mask(s.AI.APIKey)
	out.Index.APIKey = mask(s.Index.APIKey)
	return out
}

func mask(v string) string {
	if v == "" {
		return ""
	}
	return "***"
}

// Path returns the settings file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".devtracker", "settings.yml")
}

// Load reads settings from a workspace, falling back to defaults when the file is missing.
func Load(workspace string) (Settings, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Settings{}, err
	}
	return FromYAML(data)
}

// FromYAML parses settings on top of the defaults and validates them.
func FromYAML(data []byte) (Settings, error) {
	s := Default()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("invalid settings yaml: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Save writes settings to the workspace settings file.
func Save(workspace string, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	path := Path(workspace)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
