package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const (
	envAPIURL     = "FHIRCHAT_API_URL"
	envAdminToken = "FHIRCHAT_ADMIN_TOKEN"

	defaultAPIURL = "http://localhost:8080"
)

// GlobalConfig is persisted in config.json under the user config directory.
// SessionID lets consecutive `ask` invocations share a conversation.
type GlobalConfig struct {
	APIURL     string `json:"api_url,omitempty"`
	AdminToken string `json:"admin_token,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
}

var (
	getConfigDirFunc  = defaultGetConfigDir
	getConfigPathFunc = defaultGetConfigPath
)

func defaultGetConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "fhirchat"), nil
}

func defaultGetConfigPath() (string, error) {
	configDir, err := getConfigDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.json"), nil
}

// LoadGlobalConfig reads config.json. A missing file yields nil, not an error.
func LoadGlobalConfig() (*GlobalConfig, error) {
	configPath, err := getConfigPathFunc()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config GlobalConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// SaveGlobalConfig writes the config to config.json with 0600 permissions
func SaveGlobalConfig(config *GlobalConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	configPath, err := getConfigPathFunc()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// resolve picks the first non-empty value of flag, env and saved config.
func resolve(flagValue, envKey string, saved func(*GlobalConfig) string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if v := os.Getenv(envKey); v != "" {
		return v, nil
	}
	cfg, err := LoadGlobalConfig()
	if err != nil {
		return "", err
	}
	if cfg != nil {
		return saved(cfg), nil
	}
	return "", nil
}

// CurrentSession returns the saved session id, creating and saving a new
// one when none exists.
func CurrentSession() (string, error) {
	cfg, err := LoadGlobalConfig()
	if err != nil {
		return "", err
	}
	if cfg == nil {
		cfg = &GlobalConfig{}
	}
	if cfg.SessionID != "" {
		return cfg.SessionID, nil
	}

	cfg.SessionID = uuid.NewString()
	if err := SaveGlobalConfig(cfg); err != nil {
		return "", err
	}
	return cfg.SessionID, nil
}

// ResetSession drops the saved session so the next ask starts fresh.
func ResetSession() error {
	cfg, err := LoadGlobalConfig()
	if err != nil || cfg == nil {
		return err
	}
	cfg.SessionID = ""
	return SaveGlobalConfig(cfg)
}
