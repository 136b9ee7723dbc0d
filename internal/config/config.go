// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.cliniq/config.yaml or ./config.yaml)
//  3. Default values
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
//
// Security: secrets (database password) are masked in MarshalJSON/String.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidServerPort indicates the HTTP port is out of range.
	ErrInvalidServerPort = errors.New("invalid server port")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidCollection indicates the vector collection name is invalid.
	ErrInvalidCollection = errors.New("invalid collection name")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGoogleAI = "googleai"
	ProviderOllama   = "ollama"
	ProviderOpenAI   = "openai"
)

// DefaultEmbedderModel is the default Gemini embedder model.
// text-embedding-004 outputs 768 dimensions, matching the pgvector schema.
const DefaultEmbedderModel = "text-embedding-004"

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// AI provider and model configuration
	Provider      string `mapstructure:"provider" json:"provider"` // "googleai" (default), "ollama", "openai"
	ModelName     string `mapstructure:"model_name" json:"model_name"`
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// HTTP server configuration
	ServerHost     string   `mapstructure:"server_host" json:"server_host"`
	ServerPort     int      `mapstructure:"server_port" json:"server_port"`
	RateLimitRPS   int      `mapstructure:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst" json:"rate_limit_burst"`
	CORSOrigins    []string `mapstructure:"cors_origins" json:"cors_origins"`

	// Knowledge base configuration
	IntentsPath    string `mapstructure:"intents_path" json:"intents_path"`
	CollectionName string `mapstructure:"collection_name" json:"collection_name"`
	ForceRecreate  bool   `mapstructure:"force_recreate" json:"force_recreate"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`

	// Tracing configuration (optional)
	TracingEnabled bool   `mapstructure:"tracing_enabled" json:"tracing_enabled"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".cliniq")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings when set.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults
	viper.SetDefault("provider", ProviderGoogleAI)
	viper.SetDefault("model_name", "gemini-2.0-flash")
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("ollama_host", "http://localhost:11434")

	// HTTP server defaults
	viper.SetDefault("server_host", "0.0.0.0")
	viper.SetDefault("server_port", 8000)
	viper.SetDefault("rate_limit_rps", 10)
	viper.SetDefault("rate_limit_burst", 20)
	viper.SetDefault("cors_origins", []string{"http://localhost:3000"})

	// Knowledge base defaults
	viper.SetDefault("intents_path", filepath.Join("data", "intents.json"))
	viper.SetDefault("collection_name", "clinic_faq")
	// Rebuild the vector index from the knowledge file on every start.
	viper.SetDefault("force_recreate", true)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "cliniq")
	viper.SetDefault("postgres_password", "cliniq_dev_password")
	viper.SetDefault("postgres_db_name", "cliniq")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Logging defaults
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_json", true)

	// Tracing defaults
	viper.SetDefault("tracing_enabled", false)
	viper.SetDefault("otlp_endpoint", "localhost:4318")
}

// bindEnvVariables binds environment variables explicitly.
//
// NOTE: GEMINI_API_KEY and OPENAI_API_KEY are read directly by the Genkit
// plugins, not via Viper. Validation checks their presence based on the
// selected provider in cfg.Validate().
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail).
	// If this panics, it's a BUG in our code, not a runtime error.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "CLINIQ_PROVIDER")
	mustBind("model_name", "CLINIQ_MODEL_NAME")
	mustBind("embedder_model", "CLINIQ_EMBEDDER_MODEL")
	mustBind("ollama_host", "CLINIQ_OLLAMA_HOST")

	mustBind("server_host", "CLINIQ_SERVER_HOST")
	mustBind("server_port", "CLINIQ_SERVER_PORT")
	mustBind("rate_limit_rps", "CLINIQ_RATE_LIMIT_RPS")
	mustBind("rate_limit_burst", "CLINIQ_RATE_LIMIT_BURST")
	mustBind("cors_origins", "CLINIQ_CORS_ORIGINS")

	mustBind("intents_path", "CLINIQ_INTENTS_PATH")
	mustBind("collection_name", "CLINIQ_COLLECTION_NAME")
	mustBind("force_recreate", "FORCE_RECREATE_VECTORDB")

	mustBind("postgres_host", "CLINIQ_POSTGRES_HOST")
	mustBind("postgres_port", "CLINIQ_POSTGRES_PORT")
	mustBind("postgres_user", "CLINIQ_POSTGRES_USER")
	mustBind("postgres_password", "CLINIQ_POSTGRES_PASSWORD")
	mustBind("postgres_db_name", "CLINIQ_POSTGRES_DB_NAME")
	mustBind("postgres_ssl_mode", "CLINIQ_POSTGRES_SSL_MODE")

	mustBind("log_level", "CLINIQ_LOG_LEVEL")
	mustBind("log_json", "CLINIQ_LOG_JSON")

	mustBind("tracing_enabled", "CLINIQ_TRACING_ENABLED")
	mustBind("otlp_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Shows first 2 and last 2 characters for longer secrets, fully masks
// secrets of 8 characters or fewer to prevent substring matching.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// FullModelName returns the provider-qualified model name for Genkit.
// Examples: "googleai/gemini-2.0-flash", "ollama/llama3.3", "openai/gpt-4o".
// If ModelName already contains a "/", it is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + c.ModelName
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + c.ModelName
	default:
		return ProviderGoogleAI + "/" + c.ModelName
	}
}

// ListenAddr returns the host:port address for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
