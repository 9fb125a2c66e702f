package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the imagespace service configuration.
type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	Database     DatabaseConfig     `yaml:"database"`
	Girder       GirderConfig       `yaml:"girder"`
	Identity     IdentityConfig     `yaml:"identity"`
	Search       SearchConfig       `yaml:"search"`
	SMQTK        SMQTKConfig        `yaml:"smqtk"`
	FeatureCache FeatureCacheConfig `yaml:"feature_cache"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
	// WaitTimeoutSec bounds how long a navigation request waits for its first result page.
	WaitTimeoutSec int `yaml:"wait_timeout_sec"`
}

// DatabaseConfig holds Redis connection settings. Empty addrs disables Redis
// and falls back to in-memory preferences without a feature cache.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// GirderConfig holds the REST backend settings.
type GirderConfig struct {
	BaseURL           string  `yaml:"base_url"`
	TokenCookie       string  `yaml:"token_cookie"`
	TimeoutSec        int     `yaml:"timeout_sec"`
	ComputeRatePerSec float64 `yaml:"compute_rate_per_sec"` // 0 = unlimited
	ComputeBurst      int     `yaml:"compute_burst"`
}

// IdentityConfig controls how image URLs map to feature document ids.
type IdentityConfig struct {
	ImagePrefix          string `yaml:"image_prefix"`
	IDPrefix             string `yaml:"id_prefix"`
	ManagedStorageMarker string `yaml:"managed_storage_marker"`
}

// ModeConfig describes one image search strategy.
type ModeConfig struct {
	NiceName string `yaml:"nice_name"`
	Path     string `yaml:"path"`
}

// SearchConfig holds result paging and backend endpoint paths.
type SearchConfig struct {
	PageSize        int                   `yaml:"page_size"`
	StoredQueryPath string                `yaml:"stored_query_path"`
	LookupPath      string                `yaml:"lookup_path"`
	ComputePath     string                `yaml:"compute_path"`
	Modes           map[string]ModeConfig `yaml:"modes"`
}

// SMQTKConfig holds the IQR service settings. Empty base_url disables IQR.
type SMQTKConfig struct {
	BaseURL      string `yaml:"base_url"`
	DefaultLimit int    `yaml:"default_limit"`
}

// FeatureCacheConfig holds the computed-feature cache settings.
type FeatureCacheConfig struct {
	Enabled bool `yaml:"enabled"`
	TTLSec  int  `yaml:"ttl_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML config data, expanding ${VAR} references first.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.WaitTimeoutSec <= 0 {
		c.HTTP.WaitTimeoutSec = 45
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Girder.TokenCookie == "" {
		c.Girder.TokenCookie = "girderToken"
	}
	if c.Girder.TimeoutSec <= 0 {
		c.Girder.TimeoutSec = 30
	}
	if c.Girder.ComputeBurst <= 0 {
		c.Girder.ComputeBurst = 1
	}
	if c.Identity.ManagedStorageMarker == "" {
		c.Identity.ManagedStorageMarker = "girder"
	}
	if c.Search.PageSize <= 0 {
		c.Search.PageSize = 20
	}
	if c.Search.StoredQueryPath == "" {
		c.Search.StoredQueryPath = "imagesearch"
	}
	if c.Search.LookupPath == "" {
		c.Search.LookupPath = "imagesearch"
	}
	if c.Search.ComputePath == "" {
		c.Search.ComputePath = "imagefeatures"
	}
	if c.SMQTK.DefaultLimit <= 0 {
		c.SMQTK.DefaultLimit = 20
	}
	if c.FeatureCache.TTLSec <= 0 {
		c.FeatureCache.TTLSec = 24 * 60 * 60
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Girder.BaseURL == "" {
		return fmt.Errorf("girder.base_url is required")
	}
	if c.Girder.ComputeRatePerSec < 0 {
		return fmt.Errorf("girder.compute_rate_per_sec must not be negative")
	}
	if len(c.Search.Modes) == 0 {
		return fmt.Errorf("search.modes must define at least one mode")
	}
	for name, m := range c.Search.Modes {
		if m.Path == "" {
			return fmt.Errorf("search.modes.%s.path is required", name)
		}
	}
	if c.FeatureCache.Enabled && len(c.Database.Addrs) == 0 {
		return fmt.Errorf("feature_cache requires database.addrs")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
