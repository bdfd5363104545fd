package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// ServerConfig.GetAddress
// ---------------------------------------------------------------------------

func TestGetAddress(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
		want string
	}{
		{"default", ServerConfig{Host: "127.0.0.1", Port: 8080}, "127.0.0.1:8080"},
		{"all interfaces", ServerConfig{Host: "0.0.0.0", Port: 3000}, "0.0.0.0:3000"},
		{"empty host", ServerConfig{Host: "", Port: 8080}, ":8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.GetAddress()
			if got != tt.want {
				t.Errorf("GetAddress() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Config.Validate
// ---------------------------------------------------------------------------

func minimalValidConfig() *Config {
	return &Config{
		Server:  ServerConfig{Port: 8080},
		Catalog: CatalogConfig{BaseURL: "http://catalog.local"},
		Session: SessionConfig{ViewportMode: "desktop"},
		Storage: StorageConfig{SignedURLTTL: 15 * time.Minute},
		Logging: LoggingConfig{Level: "info"},
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid minimal config passes", func(t *testing.T) {
		if err := minimalValidConfig().Validate(); err != nil {
			t.Errorf("Validate() unexpected error: %v", err)
		}
	})

	t.Run("invalid server port 0", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Server.Port = 0
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for port 0, got nil")
		}
	})

	t.Run("invalid server port 70000", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Server.Port = 70000
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for port 70000, got nil")
		}
	})

	catalogURLs := []struct {
		url     string
		wantErr bool
	}{
		{"", true},
		{"ftp://catalog.example.com", true},
		{"//no-scheme.example.com", true},
		{"http://", true},
		{"http://catalog.local", false},
		{"https://catalog.example.com:8443/api", false},
	}
	for _, tt := range catalogURLs {
		t.Run("catalog base_url "+tt.url, func(t *testing.T) {
			cfg := minimalValidConfig()
			cfg.Catalog.BaseURL = tt.url
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}

	t.Run("negative catalog timeout", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Catalog.Timeout = -time.Second
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for negative timeout, got nil")
		}
	})

	t.Run("negative catalog retries", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Catalog.MaxRetries = -1
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for negative max_retries, got nil")
		}
	})

	t.Run("invalid viewport mode", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Session.ViewportMode = "tablet"
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for viewport mode tablet, got nil")
		}
	})

	t.Run("mobile viewport mode passes", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Session.ViewportMode = "mobile"
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() unexpected error: %v", err)
		}
	})

	t.Run("viewport mode is normalised", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Session.ViewportMode = " Mobile "
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate() unexpected error: %v", err)
		}
		if cfg.Session.ViewportMode != "mobile" {
			t.Errorf("Session.ViewportMode = %q, want mobile", cfg.Session.ViewportMode)
		}
	})

	t.Run("zero signed url ttl", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Storage.SignedURLTTL = 0
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for zero signed_url_ttl, got nil")
		}
	})

	t.Run("s3 enabled missing region", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Storage.S3 = S3StorageConfig{Enabled: true}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for missing s3 region, got nil")
		}
	})

	t.Run("s3 disabled ignores missing region", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Storage.S3 = S3StorageConfig{Enabled: false}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() unexpected error: %v", err)
		}
	})

	t.Run("azure enabled missing account_name", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Storage.Azure = AzureStorageConfig{Enabled: true, AccountKey: "key"}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for missing azure account_name, got nil")
		}
	})

	t.Run("azure enabled missing account_key", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Storage.Azure = AzureStorageConfig{Enabled: true, AccountName: "name"}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for missing azure account_key, got nil")
		}
	})

	t.Run("local enabled missing base_url", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Storage.Local = LocalStorageConfig{Enabled: true, BasePath: "./rasters"}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for missing local base_url, got nil")
		}
	})

	t.Run("invalid log level", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Logging.Level = "verbose"
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for invalid log level, got nil")
		}
	})

	t.Run("all valid log levels pass", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error"} {
			cfg := minimalValidConfig()
			cfg.Logging.Level = level
			if err := cfg.Validate(); err != nil {
				t.Errorf("Validate() unexpected error for log level %q: %v", level, err)
			}
		}
	})
}

// ---------------------------------------------------------------------------
// expandEnv
// ---------------------------------------------------------------------------

func TestExpandEnv(t *testing.T) {
	t.Run("expands ${VAR} syntax", func(t *testing.T) {
		t.Setenv("CONFIG_TEST_SECRET", "super-secret")
		got := expandEnv("${CONFIG_TEST_SECRET}")
		if got != "super-secret" {
			t.Errorf("expandEnv() = %q, want %q", got, "super-secret")
		}
	})

	t.Run("plain string passthrough", func(t *testing.T) {
		got := expandEnv("no-vars-here")
		if got != "no-vars-here" {
			t.Errorf("expandEnv() = %q, want %q", got, "no-vars-here")
		}
	})

	t.Run("unset variable expands to empty string", func(t *testing.T) {
		os.Unsetenv("CONFIG_TEST_DEFINITELY_UNSET_12345")
		got := expandEnv("${CONFIG_TEST_DEFINITELY_UNSET_12345}")
		if got != "" {
			t.Errorf("expandEnv() = %q, want empty string", got)
		}
	})
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

// writeTempConfig creates a temp YAML file and registers a cleanup to remove it.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "config-test-*.yaml")
	if err != nil {
		t.Fatal("CreateTemp:", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	if _, err := f.WriteString(content); err != nil {
		t.Fatal("WriteString:", err)
	}
	f.Close()
	return f.Name()
}

func TestLoad_MissingCatalogURLFailsValidation(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() expected error without catalog.base_url, got nil")
	}
	if !strings.Contains(err.Error(), "invalid configuration") &&
		!strings.Contains(err.Error(), "error reading config file") {
		t.Fatalf("Load() unexpected error kind: %v", err)
	}
}

func TestLoad_WithConfigFile(t *testing.T) {
	const content = `
server:
  host: "testhost"
  port: 9999
catalog:
  base_url: "https://catalog.example.com"
  timeout: "5s"
  max_retries: 4
session:
  viewport_mode: "mobile"
  evict_queries_on_remove: true
logging:
  level: "debug"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Host != "testhost" {
		t.Errorf("Server.Host = %q, want testhost", cfg.Server.Host)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Catalog.BaseURL != "https://catalog.example.com" {
		t.Errorf("Catalog.BaseURL = %q", cfg.Catalog.BaseURL)
	}
	if cfg.Catalog.Timeout != 5*time.Second {
		t.Errorf("Catalog.Timeout = %v, want 5s", cfg.Catalog.Timeout)
	}
	if cfg.Catalog.MaxRetries != 4 {
		t.Errorf("Catalog.MaxRetries = %d, want 4", cfg.Catalog.MaxRetries)
	}
	if cfg.Session.ViewportMode != "mobile" {
		t.Errorf("Session.ViewportMode = %q, want mobile", cfg.Session.ViewportMode)
	}
	if !cfg.Session.EvictQueriesOnRemove {
		t.Error("Session.EvictQueriesOnRemove = false, want true")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	const content = `
catalog:
  base_url: "http://localhost:5000"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Catalog.Timeout != 30*time.Second {
		t.Errorf("default Catalog.Timeout = %v, want 30s", cfg.Catalog.Timeout)
	}
	if cfg.Catalog.MaxRetries != 2 {
		t.Errorf("default Catalog.MaxRetries = %d, want 2", cfg.Catalog.MaxRetries)
	}
	if cfg.Session.ViewportMode != "desktop" {
		t.Errorf("default Session.ViewportMode = %q, want desktop", cfg.Session.ViewportMode)
	}
	if cfg.Session.EvictQueriesOnRemove {
		t.Error("default Session.EvictQueriesOnRemove = true, want false")
	}
	if cfg.Storage.SignedURLTTL != 15*time.Minute {
		t.Errorf("default Storage.SignedURLTTL = %v, want 15m", cfg.Storage.SignedURLTTL)
	}
	if !cfg.Telemetry.Metrics.Enabled {
		t.Error("default Telemetry.Metrics.Enabled = false, want true")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("RSC_CATALOG_BASE_URL", "https://env.example.com")
	t.Setenv("RSC_SESSION_VIEWPORT_MODE", "mobile")
	path := writeTempConfig(t, "logging:\n  level: warn\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Catalog.BaseURL != "https://env.example.com" {
		t.Errorf("Catalog.BaseURL = %q, want env override", cfg.Catalog.BaseURL)
	}
	if cfg.Session.ViewportMode != "mobile" {
		t.Errorf("Session.ViewportMode = %q, want mobile", cfg.Session.ViewportMode)
	}
}

func TestLoad_ViewportModeAnyCase(t *testing.T) {
	t.Setenv("RSC_CATALOG_BASE_URL", "https://env.example.com")
	t.Setenv("RSC_SESSION_VIEWPORT_MODE", "DESKTOP")
	path := writeTempConfig(t, "logging:\n  level: info\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Session.ViewportMode != "desktop" {
		t.Errorf("Session.ViewportMode = %q, want desktop", cfg.Session.ViewportMode)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_AZURE_KEY", "mysecret")
	const content = `
catalog:
  base_url: "http://localhost:5000"
storage:
  azure:
    enabled: true
    account_name: "rasters"
    account_key: "${TEST_AZURE_KEY}"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Storage.Azure.AccountKey != "mysecret" {
		t.Errorf("Storage.Azure.AccountKey = %q, want mysecret", cfg.Storage.Azure.AccountKey)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "server: [unclosed")
	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}
