package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Election ElectionConfig
	Journal  JournalConfig
	Logging  LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port string
	Host string
	Env  string // "development" or "production"
}

// ElectionConfig holds ledger-related configuration
type ElectionConfig struct {
	AdminAddress string
	MaxVoters    int
}

// JournalConfig holds notification journal configuration
type JournalConfig struct {
	DSN string // empty disables the journal
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string
	Format string // "json" or "text"
}

// Load loads configuration from environment variables with defaults.
// Variables from envFile are applied first without overriding the real environment;
// a missing file is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "0.0.0.0"),
			Env:  getEnv("ENV", "development"),
		},
		Election: ElectionConfig{
			AdminAddress: getEnv("ADMIN_ADDRESS", ""),
			MaxVoters:    getEnvInt("MAX_VOTERS", 100),
		},
		Journal: JournalConfig{
			DSN: getEnv("JOURNAL_DSN", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required values are present and well-formed
func (c *Config) Validate() error {
	if c.Election.AdminAddress == "" {
		return errors.New("ADMIN_ADDRESS required")
	}
	if !common.IsHexAddress(c.Election.AdminAddress) {
		return fmt.Errorf("invalid ADMIN_ADDRESS %q", c.Election.AdminAddress)
	}
	if c.Election.MaxVoters <= 0 {
		return fmt.Errorf("MAX_VOTERS must be positive, got %d", c.Election.MaxVoters)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid LOG_FORMAT %q", c.Logging.Format)
	}
	return nil
}

// Admin returns the administrator identity
func (c *Config) Admin() common.Address {
	return common.HexToAddress(c.Election.AdminAddress)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// GetAddr returns the server address in host:port format
func (c *Config) GetAddr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// getEnv returns an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns an environment variable as an integer or a default value
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
