package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default firewall listing command (Windows Defender Firewall)
const (
	DefaultFirewallCommand = "netsh"
	DefaultFirewallArgs    = "advfirewall firewall show rule name=all"
)

// GenerateAPIKey generates a secure random API key
func GenerateAPIKey() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// Config holds all configuration for the agent
type Config struct {
	// Server settings
	Port         int
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Authentication
	APIKey    string
	JWTSecret string

	// Security
	AllowedOrigins []string
	RateLimitRPS   int

	// Logging
	LogLevel string

	// Process reconciliation
	RefreshInterval time.Duration
	MonitorInterval time.Duration
	AutoRefresh     bool

	// Firewall rule source
	FirewallCommand string
	FirewallArgs    []string
	FirewallTimeout time.Duration

	// Setup mode
	SetupMode bool
	EnvFile   string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	envFile := getEnvFile()

	// Load .env file if it exists
	_ = godotenv.Load(envFile)

	cfg := &Config{
		Port:            getEnvInt("PORT", 8092),
		Host:            getEnv("HOST", "127.0.0.1"),
		ReadTimeout:     time.Duration(getEnvInt("READ_TIMEOUT_SECONDS", 30)) * time.Second,
		WriteTimeout:    time.Duration(getEnvInt("WRITE_TIMEOUT_SECONDS", 0)) * time.Second,
		APIKey:          getEnv("API_KEY", ""),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		AllowedOrigins:  getEnvSlice("ALLOWED_ORIGINS", []string{"*"}),
		RateLimitRPS:    getEnvInt("RATE_LIMIT_RPS", 50),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		RefreshInterval: time.Duration(getEnvInt("REFRESH_INTERVAL_SECONDS", 10)) * time.Second,
		MonitorInterval: time.Duration(getEnvInt("MONITOR_INTERVAL_SECONDS", 5)) * time.Second,
		AutoRefresh:     getEnvBool("AUTO_REFRESH", true),
		FirewallCommand: getEnv("FIREWALL_COMMAND", DefaultFirewallCommand),
		FirewallArgs:    strings.Fields(getEnv("FIREWALL_ARGS", DefaultFirewallArgs)),
		FirewallTimeout: time.Duration(getEnvInt("FIREWALL_TIMEOUT_SECONDS", 30)) * time.Second,
		SetupMode:       false,
		EnvFile:         envFile,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Without an API key the agent only serves the setup endpoints
	if cfg.APIKey == "" {
		cfg.SetupMode = true
		return cfg, nil
	}

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = cfg.APIKey
	}

	return cfg, nil
}

// Validate checks settings that would make the agent unusable
func (c *Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid PORT %d", c.Port))
	}
	if c.RefreshInterval <= 0 {
		errs = append(errs, errors.New("REFRESH_INTERVAL_SECONDS must be positive"))
	}
	if c.MonitorInterval <= 0 {
		errs = append(errs, errors.New("MONITOR_INTERVAL_SECONDS must be positive"))
	}
	if c.FirewallTimeout <= 0 {
		errs = append(errs, errors.New("FIREWALL_TIMEOUT_SECONDS must be positive"))
	}
	if strings.TrimSpace(c.FirewallCommand) == "" {
		errs = append(errs, errors.New("FIREWALL_COMMAND is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// getEnvFile returns the path to the .env file
func getEnvFile() string {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		return envFile
	}

	if _, err := os.Stat(".env"); err == nil {
		return ".env"
	}

	// Fall back to the directory holding the binary
	exe, err := os.Executable()
	if err == nil {
		envPath := filepath.Join(filepath.Dir(exe), ".env")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	return ".env"
}

// SaveAPIKey saves the API key to the .env file
func (c *Config) SaveAPIKey(apiKey string) error {
	updates := map[string]string{"API_KEY": apiKey}
	if err := UpdateEnvFile(c.EnvFile, updates); err != nil {
		return err
	}

	c.APIKey = apiKey
	c.JWTSecret = apiKey
	c.SetupMode = false

	return nil
}

// UpdateEnvFile updates or adds environment variables in a .env file
func UpdateEnvFile(envFile string, updates map[string]string) error {
	existing := map[string]string{}
	if data, err := os.ReadFile(envFile); err == nil {
		existing, err = godotenv.Unmarshal(string(data))
		if err != nil {
			return fmt.Errorf("failed to parse .env file: %w", err)
		}
	}

	for key, value := range updates {
		existing[key] = value
	}

	if err := godotenv.Write(existing, envFile); err != nil {
		return fmt.Errorf("failed to write .env file: %w", err)
	}

	// godotenv writes with the process umask; the file holds secrets
	if err := os.Chmod(envFile, 0600); err != nil {
		return fmt.Errorf("failed to restrict .env file: %w", err)
	}

	return nil
}

// LoadWithDefaults loads config with defaults for testing
func LoadWithDefaults() *Config {
	return &Config{
		Port:            8092,
		Host:            "127.0.0.1",
		ReadTimeout:     30 * time.Second,
		APIKey:          "test-api-key",
		JWTSecret:       "test-jwt-secret",
		AllowedOrigins:  []string{"*"},
		RateLimitRPS:    100,
		LogLevel:        "info",
		RefreshInterval: 10 * time.Second,
		MonitorInterval: 5 * time.Second,
		AutoRefresh:     true,
		FirewallCommand: DefaultFirewallCommand,
		FirewallArgs:    strings.Fields(DefaultFirewallArgs),
		FirewallTimeout: 30 * time.Second,
	}
}

// Addr returns the server address string
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return defaultValue
}
