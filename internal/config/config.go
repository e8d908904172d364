package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for doclens
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Collaborator CollaboratorConfig `mapstructure:"collaborator"`
	Upload       UploadConfig       `mapstructure:"upload"`
	Chat         ChatConfig         `mapstructure:"chat"`
	Log          LogConfig          `mapstructure:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	BaseURL      string   `mapstructure:"base_url"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// AuthConfig holds API key authentication configuration
type AuthConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// CollaboratorConfig describes the answer service doclens talks to
type CollaboratorConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	QueryPath      string        `mapstructure:"query_path"`
	UploadPath     string        `mapstructure:"upload_path"`
	ListenPath     string        `mapstructure:"listen_path"`
	TopK           int           `mapstructure:"top_k"`
	SearchDocs     bool          `mapstructure:"search_docs"`
	SearchWeb      bool          `mapstructure:"search_web"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ReadBufferSize int           `mapstructure:"read_buffer_size"`
}

// UploadConfig holds upload limits
type UploadConfig struct {
	MaxSizeMB    int64    `mapstructure:"max_size_mb"`
	AllowedTypes []string `mapstructure:"allowed_types"`
}

// ChatConfig bounds the conversations kept in memory. Evicted ones are
// reloaded from the database on next use.
type ChatConfig struct {
	MaxConversations int `mapstructure:"max_conversations"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load loads configuration from .env, config file and environment
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file if specified
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables, e.g. DOCLENS_COLLABORATOR_BASE_URL
	v.SetEnvPrefix("DOCLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.allow_origins", []string{"*"})

	v.SetDefault("auth.api_key", "")

	v.SetDefault("database.path", "./data/doclens.db")

	v.SetDefault("collaborator.base_url", "http://localhost:8000")
	v.SetDefault("collaborator.query_path", "/query")
	v.SetDefault("collaborator.upload_path", "/upload-file")
	v.SetDefault("collaborator.listen_path", "/listen")
	v.SetDefault("collaborator.top_k", 5)
	v.SetDefault("collaborator.search_docs", true)
	v.SetDefault("collaborator.search_web", false)
	v.SetDefault("collaborator.request_timeout", 2*time.Minute)
	v.SetDefault("collaborator.read_buffer_size", 4096)

	v.SetDefault("upload.max_size_mb", 50)
	v.SetDefault("upload.allowed_types", []string{"pdf", "md", "txt", "html", "docx", "csv"})

	v.SetDefault("chat.max_conversations", 1024)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Validate checks values that have no usable fallback
func (c *Config) Validate() error {
	if c.Collaborator.BaseURL == "" {
		return errors.New("collaborator.base_url is required")
	}
	if c.Collaborator.TopK <= 0 {
		return fmt.Errorf("collaborator.top_k must be positive, got %d", c.Collaborator.TopK)
	}
	if c.Chat.MaxConversations <= 0 {
		return fmt.Errorf("chat.max_conversations must be positive, got %d", c.Chat.MaxConversations)
	}
	if c.Upload.MaxSizeMB <= 0 {
		return fmt.Errorf("upload.max_size_mb must be positive, got %d", c.Upload.MaxSizeMB)
	}
	return nil
}

// Address returns the server address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
