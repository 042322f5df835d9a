package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/vdavid/vmail/desktop/internal/credential"
)

// Preference storage backends.
const (
	PreferencesBackendFile     = "file"
	PreferencesBackendSQLite   = "sqlite"
	PreferencesBackendPostgres = "postgres"
)

// lookupDBPassword reads the database password from the OS keyring.
var lookupDBPassword = func(c *Config) (string, error) {
	store, err := credential.Open(c.AppName, filepath.Join(c.RootDir(), "credentials"))
	if err != nil {
		return "", err
	}
	return store.Get(credential.DBPasswordKey)
}

type Config struct {
	Environment        string
	ServerURL          string
	AppName            string
	HomeDir            string
	PreferencesBackend string
	PreferencesProfile string
	DBHost             string
	DBPort             string
	DBUsername         string
	DBPassword         string
	DBName             string
	DBSSLMode          string
	ConnectRetries     int
	ConnectRetryDelay  time.Duration
	AvatarCacheCeiling int
	GravatarURL        string
	GravatarRPS        float64
	LogLevel           string
}

func NewConfig() (*Config, error) {
	env := os.Getenv("VMAIL_ENV")
	if env == "" {
		env = "development"
	}

	if env == "development" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}

	homeDir := os.Getenv("VMAIL_HOME")
	if homeDir == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		homeDir = userHome
	}

	config := &Config{
		Environment:        env,
		ServerURL:          os.Getenv("VMAIL_SERVER_URL"),
		AppName:            getEnvOrDefault("VMAIL_APP_NAME", "vmail"),
		HomeDir:            homeDir,
		PreferencesBackend: getEnvOrDefault("VMAIL_PREFERENCES_BACKEND", PreferencesBackendFile),
		PreferencesProfile: getEnvOrDefault("VMAIL_PREFERENCES_PROFILE", "default"),
		DBHost:             getEnvOrDefault("VMAIL_DB_HOST", "localhost"),
		DBPort:             getEnvOrDefault("VMAIL_DB_PORT", "5432"),
		DBUsername:         getEnvOrDefault("VMAIL_DB_USER", "vmail"),
		DBPassword:         os.Getenv("VMAIL_DB_PASSWORD"),
		DBName:             getEnvOrDefault("VMAIL_DB_NAME", "vmail"),
		DBSSLMode:          getEnvOrDefault("VMAIL_DB_SSLMODE", "disable"),
		ConnectRetries:     getEnvIntOrDefault("VMAIL_CONNECT_RETRIES", 5),
		ConnectRetryDelay:  time.Duration(getEnvIntOrDefault("VMAIL_CONNECT_RETRY_DELAY_MS", 500)) * time.Millisecond,
		AvatarCacheCeiling: getEnvIntOrDefault("VMAIL_AVATAR_CACHE_CEILING", 100),
		GravatarURL:        getEnvOrDefault("VMAIL_GRAVATAR_URL", "https://www.gravatar.com/avatar"),
		GravatarRPS:        getEnvFloatOrDefault("VMAIL_GRAVATAR_RPS", 5),
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),
	}

	if config.PreferencesBackend == PreferencesBackendPostgres && config.DBPassword == "" {
		if password, err := lookupDBPassword(config); err == nil {
			config.DBPassword = password
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("VMAIL_SERVER_URL is required")
	}

	switch c.PreferencesBackend {
	case PreferencesBackendFile, PreferencesBackendSQLite:
	case PreferencesBackendPostgres:
		if c.DBPassword == "" {
			return fmt.Errorf("VMAIL_DB_PASSWORD is required when VMAIL_PREFERENCES_BACKEND is postgres")
		}
	default:
		return fmt.Errorf("unknown VMAIL_PREFERENCES_BACKEND %q", c.PreferencesBackend)
	}

	if c.ConnectRetries <= 0 {
		return fmt.Errorf("VMAIL_CONNECT_RETRIES must be positive, got %d", c.ConnectRetries)
	}

	return nil
}

// RootDir is the per-app directory under the user's home, e.g. ~/.vmail.
func (c *Config) RootDir() string {
	return filepath.Join(c.HomeDir, "."+c.AppName)
}

// SQLitePath is the database file used by the sqlite preferences backend.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.RootDir(), "vmail.db")
}

// GetDatabaseURL builds the Postgres URL used by the postgres preferences backend.
// Credentials are URL-encoded.
func (c *Config) GetDatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUsername, c.DBPassword),
		Host:     net.JoinHostPort(c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}
	return u.String()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
