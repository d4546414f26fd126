package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Inference backends
const (
	BackendClarifai = "clarifai"
	BackendOpenAI   = "openai"
)

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Enabled reports whether a database was configured
func (c DBConfig) Enabled() bool {
	return c.Host != ""
}

// Config holds all configuration for the application
type Config struct {
	Backend         string
	ClarifaiPAT     string
	ClarifaiBaseURL string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIChatModel string
	Addr            string
	ArtifactDir     string
	ArtifactTTL     time.Duration
	SweepSchedule   string
	RequestTimeout  time.Duration
	MaxDescription  int
	AllowedOrigins  []string
	LogLevel        string
	DB              DBConfig
}

// Load loads the configuration from the environment. A .env file in the
// working directory is read first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	config := &Config{
		Backend:         strings.ToLower(getEnv("OMNI_BACKEND", BackendClarifai)),
		ClarifaiPAT:     os.Getenv("CLARIFAI_PAT"),
		ClarifaiBaseURL: os.Getenv("CLARIFAI_BASE_URL"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:   os.Getenv("OPENAI_BASE_URL"),
		OpenAIChatModel: os.Getenv("OPENAI_CHAT_MODEL"),
		Addr:            getEnv("OMNI_ADDR", ":8501"),
		ArtifactDir:     getEnv("OMNI_ARTIFACT_DIR", "artifacts"),
		SweepSchedule:   getEnv("OMNI_SWEEP_SCHEDULE", "0 */10 * * * *"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}

	// Load and parse numeric values
	if ttl, err := strconv.Atoi(os.Getenv("OMNI_ARTIFACT_TTL")); err == nil {
		config.ArtifactTTL = time.Duration(ttl) * time.Second
	} else {
		config.ArtifactTTL = time.Hour // default value
	}

	if timeout, err := strconv.Atoi(os.Getenv("OMNI_REQUEST_TIMEOUT")); err == nil {
		config.RequestTimeout = time.Duration(timeout) * time.Second
	} else {
		config.RequestTimeout = 2 * time.Minute // default value
	}

	if maxDesc, err := strconv.Atoi(os.Getenv("OMNI_MAX_DESCRIPTION")); err == nil {
		config.MaxDescription = maxDesc
	} else {
		config.MaxDescription = 4000 // default value
	}

	if origins := os.Getenv("OMNI_ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				config.AllowedOrigins = append(config.AllowedOrigins, o)
			}
		}
	} else {
		config.AllowedOrigins = []string{"*"}
	}

	// Load database configuration
	dbConfig := DBConfig{
		Host:     os.Getenv("DB_HOST"),
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		Database: os.Getenv("DB_NAME"),
		SSLMode:  getEnv("DB_SSL_MODE", "disable"),
	}

	// Parse database port
	if port, err := strconv.Atoi(os.Getenv("DB_PORT")); err == nil {
		dbConfig.Port = port
	} else {
		dbConfig.Port = 5432 // default PostgreSQL port
	}

	// Parse connection pool settings
	if maxOpenConns, err := strconv.Atoi(os.Getenv("DB_MAX_OPEN_CONNS")); err == nil {
		dbConfig.MaxOpenConns = maxOpenConns
	} else {
		dbConfig.MaxOpenConns = 10 // default value
	}

	if maxIdleConns, err := strconv.Atoi(os.Getenv("DB_MAX_IDLE_CONNS")); err == nil {
		dbConfig.MaxIdleConns = maxIdleConns
	} else {
		dbConfig.MaxIdleConns = 5 // default value
	}

	if connMaxLifetime, err := strconv.Atoi(os.Getenv("DB_CONN_MAX_LIFETIME")); err == nil {
		dbConfig.ConnMaxLifetime = time.Duration(connMaxLifetime) * time.Second
	} else {
		dbConfig.ConnMaxLifetime = 5 * time.Minute // default value
	}

	config.DB = dbConfig

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	switch c.Backend {
	case BackendClarifai, BackendOpenAI:
	default:
		return fmt.Errorf("OMNI_BACKEND must be %q or %q, got %q", BackendClarifai, BackendOpenAI, c.Backend)
	}

	if c.MaxDescription <= 0 {
		return fmt.Errorf("OMNI_MAX_DESCRIPTION must be positive")
	}

	// Validate database configuration only when one is requested
	if c.DB.Enabled() {
		if c.DB.User == "" {
			return fmt.Errorf("DB_USER is required")
		}
		if c.DB.Database == "" {
			return fmt.Errorf("DB_NAME is required")
		}
	}

	return nil
}

// DefaultCredential returns the credential used when the user leaves the
// token field empty.
func (c *Config) DefaultCredential() string {
	if c.Backend == BackendOpenAI {
		return c.OpenAIAPIKey
	}
	return c.ClarifaiPAT
}

// GetDSN returns the PostgreSQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
