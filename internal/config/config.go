// Package config loads and validates the rasterscope configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the RSC_ prefix (e.g., RSC_CATALOG_BASE_URL
// overrides catalog.base_url in the YAML).
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Session   SessionConfig   `mapstructure:"session"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration for the session API
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// CatalogConfig holds the remote catalog backend settings
type CatalogConfig struct {
	BaseURL string `mapstructure:"base_url"`
	// Timeout bounds a single catalog request; zero disables the client timeout.
	Timeout              time.Duration `mapstructure:"timeout"`
	MaxRetries           int           `mapstructure:"max_retries"`
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval"`
}

// SessionConfig holds coordinator behaviour switches
type SessionConfig struct {
	// ViewportMode is "desktop" or "mobile"
	ViewportMode string `mapstructure:"viewport_mode"`
	// EvictQueriesOnRemove drops pixel query entries when their layer leaves the registry
	EvictQueriesOnRemove bool `mapstructure:"evict_queries_on_remove"`
}

// StorageConfig holds object-store signing configuration used to turn raster
// references such as s3://bucket/key into fetchable URLs.
type StorageConfig struct {
	SignedURLTTL time.Duration      `mapstructure:"signed_url_ttl"`
	S3           S3StorageConfig    `mapstructure:"s3"`
	GCS          GCSStorageConfig   `mapstructure:"gcs"`
	Azure        AzureStorageConfig `mapstructure:"azure"`
	Local        LocalStorageConfig `mapstructure:"local"`
}

// S3StorageConfig holds S3-compatible signing configuration
type S3StorageConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Endpoint is the S3-compatible endpoint URL (optional, for MinIO, DigitalOcean Spaces, etc.)
	Endpoint string `mapstructure:"endpoint"`
	Region   string `mapstructure:"region"`

	// Authentication method: "default", "static", "oidc", "assume_role"
	AuthMethod string `mapstructure:"auth_method"`

	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`

	RoleARN         string `mapstructure:"role_arn"`
	RoleSessionName string `mapstructure:"role_session_name"`
	ExternalID      string `mapstructure:"external_id"`

	WebIdentityTokenFile string `mapstructure:"web_identity_token_file"`
}

// GCSStorageConfig holds Google Cloud Storage signing configuration
type GCSStorageConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Authentication method: "default", "service_account", "workload_identity"
	AuthMethod      string `mapstructure:"auth_method"`
	CredentialsFile string `mapstructure:"credentials_file"`
	CredentialsJSON string `mapstructure:"credentials_json"`

	// Endpoint is an optional custom endpoint (for GCS emulators)
	Endpoint string `mapstructure:"endpoint"`
}

// AzureStorageConfig holds Azure Blob Storage signing configuration
type AzureStorageConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	AccountName string `mapstructure:"account_name"`
	AccountKey  string `mapstructure:"account_key"`
	CDNURL      string `mapstructure:"cdn_url"`
}

// LocalStorageConfig maps local://path references onto a static file server
type LocalStorageConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BasePath string `mapstructure:"base_path"`
	BaseURL  string `mapstructure:"base_url"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested structs during Unmarshal.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"server.allowed_origins",

		// Catalog
		"catalog.base_url",
		"catalog.timeout",
		"catalog.max_retries",
		"catalog.retry_initial_interval",

		// Session
		"session.viewport_mode",
		"session.evict_queries_on_remove",

		// Storage
		"storage.signed_url_ttl",
		"storage.s3.enabled",
		"storage.s3.endpoint",
		"storage.s3.region",
		"storage.s3.auth_method",
		"storage.s3.access_key_id",
		"storage.s3.secret_access_key",
		"storage.s3.role_arn",
		"storage.s3.role_session_name",
		"storage.s3.external_id",
		"storage.s3.web_identity_token_file",
		"storage.gcs.enabled",
		"storage.gcs.auth_method",
		"storage.gcs.credentials_file",
		"storage.gcs.credentials_json",
		"storage.gcs.endpoint",
		"storage.azure.enabled",
		"storage.azure.account_name",
		"storage.azure.account_key",
		"storage.azure.cdn_url",
		"storage.local.enabled",
		"storage.local.base_path",
		"storage.local.base_url",

		// Logging
		"logging.level",
		"logging.format",

		// Telemetry
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/rasterscope")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	v.SetEnvPrefix("RSC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields
	cfg.Storage.S3.AccessKeyID = expandEnv(cfg.Storage.S3.AccessKeyID)
	cfg.Storage.S3.SecretAccessKey = expandEnv(cfg.Storage.S3.SecretAccessKey)
	cfg.Storage.GCS.CredentialsJSON = expandEnv(cfg.Storage.GCS.CredentialsJSON)
	cfg.Storage.Azure.AccountKey = expandEnv(cfg.Storage.Azure.AccountKey)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	// SSE streams stay open, so the write timeout is off by default
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("catalog.timeout", "30s")
	v.SetDefault("catalog.max_retries", 2)
	v.SetDefault("catalog.retry_initial_interval", "250ms")

	v.SetDefault("session.viewport_mode", "desktop")
	v.SetDefault("session.evict_queries_on_remove", false)

	v.SetDefault("storage.signed_url_ttl", "15m")
	v.SetDefault("storage.s3.auth_method", "default")
	v.SetDefault("storage.gcs.auth_method", "default")
	v.SetDefault("storage.local.base_path", "./rasters")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog.base_url is required")
	}
	parsed, err := url.Parse(c.Catalog.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid catalog.base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("catalog.base_url must use http or https scheme")
	}
	if parsed.Host == "" {
		return fmt.Errorf("catalog.base_url must have a host")
	}
	if c.Catalog.Timeout < 0 {
		return fmt.Errorf("catalog.timeout must not be negative")
	}
	if c.Catalog.MaxRetries < 0 {
		return fmt.Errorf("catalog.max_retries must not be negative")
	}

	c.Session.ViewportMode = strings.ToLower(strings.TrimSpace(c.Session.ViewportMode))
	switch c.Session.ViewportMode {
	case "desktop", "mobile":
	default:
		return fmt.Errorf("invalid session.viewport_mode: %s (must be desktop or mobile)", c.Session.ViewportMode)
	}

	if c.Storage.SignedURLTTL <= 0 {
		return fmt.Errorf("storage.signed_url_ttl must be positive")
	}
	if c.Storage.S3.Enabled && c.Storage.S3.Region == "" {
		return fmt.Errorf("storage.s3.region is required when S3 signing is enabled")
	}
	if c.Storage.Azure.Enabled {
		if c.Storage.Azure.AccountName == "" {
			return fmt.Errorf("storage.azure.account_name is required when Azure signing is enabled")
		}
		if c.Storage.Azure.AccountKey == "" {
			return fmt.Errorf("storage.azure.account_key is required when Azure signing is enabled")
		}
	}
	if c.Storage.Local.Enabled {
		if c.Storage.Local.BasePath == "" {
			return fmt.Errorf("storage.local.base_path is required when local references are enabled")
		}
		if c.Storage.Local.BaseURL == "" {
			return fmt.Errorf("storage.local.base_url is required when local references are enabled")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
