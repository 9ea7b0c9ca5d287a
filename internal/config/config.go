package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete MRPC configuration
type Config struct {
	Version int    `json:"version" mapstructure:"version"`
	DataDir string `json:"dataDir" mapstructure:"dataDir"`

	Database DatabaseConfig `json:"database" mapstructure:"database"`
	Auth     AuthConfig     `json:"auth" mapstructure:"auth"`
	Ingest   IngestConfig   `json:"ingest" mapstructure:"ingest"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
}

// DatabaseConfig contains the embedded store configuration
type DatabaseConfig struct {
	// Path to the SQLite file, relative to DataDir unless absolute
	Path string `json:"path" mapstructure:"path"`
}

// AuthConfig contains identity configuration
type AuthConfig struct {
	// AdminUserID is the single distinguished account with elevated privilege
	AdminUserID int64 `json:"adminUserId" mapstructure:"adminUserId"`
	// SeedFile is an optional YAML file of users created by `mrpc init`
	SeedFile string `json:"seedFile" mapstructure:"seedFile"`
}

// IngestConfig contains ingestion pipeline configuration
type IngestConfig struct {
	// PreviewRows is the number of rows returned by a preview request
	PreviewRows int `json:"previewRows" mapstructure:"previewRows"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"` // "json" or "console"
	Level  string `json:"level" mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		DataDir: "data",
		Database: DatabaseConfig{
			Path: "mrpc.db",
		},
		Auth: AuthConfig{
			AdminUserID: 1,
			SeedFile:    "users.yaml",
		},
		Ingest: IngestConfig{
			PreviewRows: 5,
		},
		Logging: LoggingConfig{
			Format: "console",
			Level:  "info",
		},
	}
}

// LoadConfig loads configuration from <root>/mrpc.json, falling back to
// defaults when the file is absent. Environment variables prefixed MRPC_
// override file values (MRPC_DATABASE_PATH, MRPC_LOGGING_LEVEL, ...).
func LoadConfig(root string) (*Config, error) {
	v := viper.New()

	v.SetDefault("version", 1)
	v.SetDefault("dataDir", "data")
	v.SetDefault("database.path", "mrpc.db")
	v.SetDefault("auth.adminUserId", 1)
	v.SetDefault("auth.seedFile", "users.yaml")
	v.SetDefault("ingest.previewRows", 5)
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.level", "info")

	v.SetConfigName("mrpc")
	v.SetConfigType("json")
	v.AddConfigPath(root)

	v.SetEnvPrefix("MRPC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// DatabasePath resolves the SQLite file path against DataDir
func (c *Config) DatabasePath(root string) string {
	if filepath.IsAbs(c.Database.Path) {
		return c.Database.Path
	}
	return filepath.Join(root, c.DataDir, c.Database.Path)
}

// SeedFilePath resolves the user seed file path against DataDir
func (c *Config) SeedFilePath(root string) string {
	if c.Auth.SeedFile == "" {
		return ""
	}
	if filepath.IsAbs(c.Auth.SeedFile) {
		return c.Auth.SeedFile
	}
	return filepath.Join(root, c.DataDir, c.Auth.SeedFile)
}

// Save writes the configuration to <root>/mrpc.json
func (c *Config) Save(root string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(root, "mrpc.json"), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Auth.AdminUserID <= 0 {
		return fmt.Errorf("auth.adminUserId must be positive")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be \"json\" or \"console\", got %q", c.Logging.Format)
	}
	return nil
}
