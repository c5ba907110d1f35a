package libgo365

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// DefaultRedirectURL is where the local callback receiver listens
	DefaultRedirectURL = "http://localhost:8000/callback"

	// DefaultTimeZone is used when a request does not name one
	DefaultTimeZone = "Pacific Standard Time"

	// DefaultModel is the chat model used for intent parsing
	DefaultModel = "gpt-4o-mini"

	// DefaultAuthTimeout bounds how long login waits for the browser redirect
	DefaultAuthTimeout = 120 * time.Second
)

// Config represents the application configuration
type Config struct {
	TenantID      string   `json:"tenant_id,omitempty"`
	ClientID      string   `json:"client_id,omitempty"`
	Scopes        []string `json:"scopes,omitempty"`
	RedirectURL   string   `json:"redirect_url,omitempty"`
	TimeZone      string   `json:"time_zone,omitempty"`
	Model         string   `json:"model,omitempty"`
	OpenAIBaseURL string   `json:"openai_base_url,omitempty"`

	// Never written to disk
	OpenAIKey string `json:"-"`
}

// ApplyDefaults fills unset fields
func (c *Config) ApplyDefaults() {
	if c.TenantID == "" {
		c.TenantID = DefaultTenant
	}
	if len(c.Scopes) == 0 {
		c.Scopes = append([]string(nil), DefaultScopes...)
	}
	if c.RedirectURL == "" {
		c.RedirectURL = DefaultRedirectURL
	}
	if c.TimeZone == "" {
		c.TimeZone = DefaultTimeZone
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
}

// ApplyEnv overlays environment variables on top of the file configuration
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("CLIENT_ID"); v != "" {
		c.ClientID = v
	}
	if v := getenv("TENANT_ID"); v != "" {
		c.TenantID = v
	}
	if v := getenv("OPENAI_KEY"); v != "" {
		c.OpenAIKey = v
	} else if v := getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAIKey = v
	}
	if v := getenv("OPENAI_MODEL"); v != "" {
		c.Model = v
	}
	if v := getenv("OPENAI_BASE_URL"); v != "" {
		c.OpenAIBaseURL = v
	}
	if v := getenv("SCHEDULE365_TIMEZONE"); v != "" {
		c.TimeZone = v
	}
	if v := getenv("SCHEDULE365_SCOPES"); v != "" {
		c.Scopes = strings.Fields(strings.ReplaceAll(v, ",", " "))
	}
}

// Validate checks that the fields needed to sign in are present
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("client ID must be configured (CLIENT_ID or 'schedule365 config set --client-id')")
	}
	return nil
}

// AuthConfig returns the authentication subset of the configuration
func (c *Config) AuthConfig() AuthConfig {
	return AuthConfig{
		TenantID: c.TenantID,
		ClientID: c.ClientID,
		Scopes:   c.Scopes,
	}
}

// ConfigManager handles configuration persistence
type ConfigManager struct {
	configPath string
}

// NewConfigManager creates a new configuration manager
func NewConfigManager() (*ConfigManager, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".schedule365")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	return &ConfigManager{
		configPath: filepath.Join(configDir, "config.json"),
	}, nil
}

// NewConfigManagerAt uses an explicit config file path
func NewConfigManagerAt(path string) *ConfigManager {
	return &ConfigManager{configPath: path}
}

// Path returns the config file location
func (cm *ConfigManager) Path() string {
	return cm.configPath
}

// Save saves the configuration to disk
func (cm *ConfigManager) Save(config *Config) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(cm.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Load loads the configuration from disk, returning defaults when no file exists
func (cm *ConfigManager) Load() (*Config, error) {
	var config Config

	data, err := os.ReadFile(cm.configPath)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	config.ApplyDefaults()
	return &config, nil
}

// LoadEffective loads the file config, then .env and process environment on top
func (cm *ConfigManager) LoadEffective() (*Config, error) {
	config, err := cm.Load()
	if err != nil {
		return nil, err
	}

	// A missing .env is normal
	_ = godotenv.Load()

	config.ApplyEnv(os.Getenv)
	config.ApplyDefaults()
	return config, nil
}
