package chatkit

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ragdesk/chatkit/store"
)

const (
	defaultBaseURL       = "http://localhost:8000"
	defaultAutoSaveQuiet = 1000
)

// Config holds initialization parameters for all chatkit subsystems.
// The Store section delegates to the store package's config-driven
// constructor.
type Config struct {
	// Identity namespaces persisted history. Empty disables persistence;
	// sessions then live only in memory.
	Identity string `json:"identity,omitempty"`

	// BaseURL is the root of the backend API.
	BaseURL string `json:"base_url,omitempty"`

	// Model is the default model name sent with each query. Empty lets the
	// backend choose.
	Model string `json:"model,omitempty"`

	// DisableWebSearch turns off hybrid retrieval; queries then go to the
	// local-only endpoint.
	DisableWebSearch bool `json:"disable_web_search,omitempty"`

	// AutoSaveQuietMS is the quiet period, in milliseconds, before a dirty
	// session is flushed to the store.
	AutoSaveQuietMS int `json:"auto_save_quiet_ms,omitempty"`

	Store store.Config `json:"store"`
}

// DefaultConfig returns a Config with sensible defaults for all subsystems.
func DefaultConfig() Config {
	return Config{
		BaseURL:         defaultBaseURL,
		AutoSaveQuietMS: defaultAutoSaveQuiet,
		Store:           store.DefaultConfig(),
	}
}

// Merge applies non-zero values from source into c, delegating to the
// store section's Merge method.
func (c *Config) Merge(source *Config) {
	if source.Identity != "" {
		c.Identity = source.Identity
	}
	if source.BaseURL != "" {
		c.BaseURL = source.BaseURL
	}
	if source.Model != "" {
		c.Model = source.Model
	}
	if source.DisableWebSearch {
		c.DisableWebSearch = true
	}
	if source.AutoSaveQuietMS > 0 {
		c.AutoSaveQuietMS = source.AutoSaveQuietMS
	}
	c.Store.Merge(&source.Store)
}

// LoadConfig reads a JSON config file, merges it with defaults, and returns
// the resulting Config.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
