// Package config loads and validates duressauth YAML configuration.
// It applies defaults so the daemon can rely on fully populated values.
package config

import (
	"errors"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// LedgerConfig selects the ledger backend and read window.
type LedgerConfig struct {
	Backend string `yaml:"backend"` // sqlite | file
	Path    string `yaml:"path"`    // jsonl path, file backend only
	Tail    int    `yaml:"tail"`    // entries returned by admin state
}

// TLSConfig holds TLS certificate paths.
type TLSConfig struct {
	CertPath string `yaml:"cert_path"`
	KeyPath  string `yaml:"key_path"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Bind string    `yaml:"bind"`
	Port int       `yaml:"port"`
	TLS  TLSConfig `yaml:"tls"`
}

// AuthConfig holds credential-check settings.
type AuthConfig struct {
	Pepper     string `yaml:"pepper"`
	AdminToken string `yaml:"admin_token"`
}

// SeedAccount is one account provisioned at first boot.
type SeedAccount struct {
	Reference string `yaml:"reference"`
	PIN       string `yaml:"pin"`
	DuressPIN string `yaml:"duress_pin"`
}

// Config mirrors the duressauth.yaml schema.
type Config struct {
	Log    LogConfig     `yaml:"log"`
	DB     DBConfig      `yaml:"db"`
	Ledger LedgerConfig  `yaml:"ledger"`
	HTTP   HTTPConfig    `yaml:"http"`
	Auth   AuthConfig    `yaml:"auth"`
	Seed   []SeedAccount `yaml:"seed"`
}

// Load reads a YAML config file, applies defaults, and validates it.
func Load(path string) (Config, error) {
	var c Config
	if path == "" {
		return c, errors.New("config path is required")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}
	applyDefaults(&c)
	if err := validate(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// applyDefaults populates zero-values with sane defaults.
func applyDefaults(c *Config) {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.DB.Path == "" {
		c.DB.Path = "./data/duressauth.db"
	}
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = "sqlite"
	}
	if c.Ledger.Path == "" {
		c.Ledger.Path = "./data/ledger.jsonl"
	}
	if c.Ledger.Tail == 0 {
		c.Ledger.Tail = 200
	}
	if c.HTTP.Bind == "" {
		c.HTTP.Bind = "127.0.0.1"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 5147
	}
	if c.Auth.Pepper == "" {
		c.Auth.Pepper = "dev_pepper"
	}
}

// validate performs basic sanity checks for required fields and ranges.
func validate(c *Config) error {
	if c.DB.Path == "" {
		return errors.New("db.path is required")
	}
	switch c.Ledger.Backend {
	case "sqlite", "file":
	default:
		return errors.New("ledger.backend must be sqlite or file")
	}
	if c.Ledger.Backend == "file" && strings.TrimSpace(c.Ledger.Path) == "" {
		return errors.New("ledger.path is required for the file backend")
	}
	if c.Ledger.Tail < 1 || c.Ledger.Tail > 10000 {
		return errors.New("ledger.tail is invalid")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return errors.New("http.port is invalid")
	}
	cp := strings.TrimSpace(c.HTTP.TLS.CertPath)
	kp := strings.TrimSpace(c.HTTP.TLS.KeyPath)
	if (cp == "") != (kp == "") {
		return errors.New("http.tls.cert_path and http.tls.key_path must be set together")
	}
	for _, s := range c.Seed {
		if s.Reference == "" || s.PIN == "" || s.DuressPIN == "" {
			return errors.New("seed entries need reference, pin, and duress_pin")
		}
		if s.PIN == s.DuressPIN {
			return errors.New("seed pin and duress_pin must differ")
		}
	}
	return nil
}
