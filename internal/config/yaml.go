package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const defaultHeader = `# glow gateway configuration
# Every key can be overridden with an environment variable: GLOW_ + the
# upper-cased key path with dots replaced by underscores, for example
# GLOW_DATABASE_DSN or GLOW_WALLET_API_KEY. DATABASE_URL is honored when
# database.dsn is empty.

`

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// WriteDefault writes the default configuration to path. It refuses to
// overwrite an existing file unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	data, err := Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, append([]byte(defaultHeader), data...), 0600)
}
