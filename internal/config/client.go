package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ClientConfig holds what the remote CLI commands need to reach a gateway.
type ClientConfig struct {
	URL string `json:"url,omitempty"`
	Key string `json:"key,omitempty"`
}

// ClientPath returns ~/.config/glow/config.json.
func ClientPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "glow", "config.json"), nil
}

// ReadClient reads the saved client config at path without environment
// overrides. A missing file is not an error.
func ReadClient(path string) (*ClientConfig, error) {
	cfg := &ClientConfig{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return cfg, nil
}

// LoadClient reads the client config at path, then applies GLOW_URL and
// GLOW_KEY.
func LoadClient(path string) (*ClientConfig, error) {
	cfg, err := ReadClient(path)
	if err != nil {
		return nil, err
	}
	if v := os.Getenv("GLOW_URL"); v != "" {
		cfg.URL = v
	}
	if v := os.Getenv("GLOW_KEY"); v != "" {
		cfg.Key = v
	}
	return cfg, nil
}

// SaveClient writes cfg to path, readable only by the owner.
func SaveClient(path string, cfg *ClientConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return os.Chmod(path, 0600)
}

// MaskKey shows only the first and last four characters of a key.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
