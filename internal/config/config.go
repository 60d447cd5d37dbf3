package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every setting the service reads.
type Config struct {
	Server   ServerConfig
	AI       AIConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Log      LogConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}
	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}
	database, err := loadDatabaseConfig()
	if err != nil {
		return nil, err
	}
	return &Config{
		Server:   server,
		AI:       ai,
		Database: database,
		Auth:     AuthConfig{JWTSecret: strings.TrimSpace(os.Getenv("JWT_SECRET"))},
		Log:      loadLogConfig(),
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}
	if strings.Contains(port, ":") {
		// Allow ":8080" or "127.0.0.1:8080" verbatim.
		return ServerConfig{Addr: port}, nil
	}
	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}
	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig describes the Ark chat model used by the extraction, risk and
// reply adapters.
type AIConfig struct {
	APIKey         string
	AccessKey      string
	SecretKey      string
	Model          string
	BaseURL        string
	Region         string
	Temperature    *float64
	MaxTokens      *int
	AdapterTimeout time.Duration
}

// Enabled reports whether the required credentials are present.
func (c AIConfig) Enabled() bool {
	if c.Model == "" {
		return false
	}
	return c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != "")
}

// NewChatModel builds a model instance from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials missing: provide ARK_API_KEY + ARK_MODEL, or AK/SK")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
	})
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}
	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}
	timeout, err := parseDurationEnv("AI_ADAPTER_TIMEOUT", 30*time.Second)
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:         strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:      strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:      strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:          strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:        strings.TrimSpace(os.Getenv("ARK_BASE_URL")),
		Region:         strings.TrimSpace(os.Getenv("ARK_REGION")),
		Temperature:    temperature,
		MaxTokens:      maxTokens,
		AdapterTimeout: timeout,
	}, nil
}

// DatabaseConfig describes the optional postgres store. With an empty URL
// the service runs on the in-memory store.
type DatabaseConfig struct {
	URL      string
	MaxConns int32
	MinConns int32
}

func loadDatabaseConfig() (DatabaseConfig, error) {
	maxConns, err := parseInt32Env("DATABASE_MAX_CONNS", 8)
	if err != nil {
		return DatabaseConfig{}, err
	}
	minConns, err := parseInt32Env("DATABASE_MIN_CONNS", 1)
	if err != nil {
		return DatabaseConfig{}, err
	}
	return DatabaseConfig{
		URL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		MaxConns: maxConns,
		MinConns: minConns,
	}, nil
}

// AuthConfig carries the shared secret for verifying clinician tokens.
// Tokens are issued elsewhere; this service only verifies them.
type AuthConfig struct {
	JWTSecret string
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string
	Pretty bool
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  strings.TrimSpace(os.Getenv("LOG_LEVEL")),
		Pretty: strings.EqualFold(strings.TrimSpace(os.Getenv("LOG_PRETTY")), "true"),
	}
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value: %q", key, raw)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value: %q", key, raw)
	}
	return &val, nil
}

func parseInt32Env(key string, fallback int32) (int32, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	val, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %q", key, raw)
	}
	return int32(val), nil
}

func parseDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %q", key, raw)
	}
	return val, nil
}
