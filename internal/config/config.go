package config

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dkrugman/pf-aspect/internal/constants"
)

// SourceConfig describes one remote media source account.
type SourceConfig struct {
	Enable     bool   `mapstructure:"enable"`
	URL        string `mapstructure:"url"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	Identifier string `mapstructure:"identifier"`
}

// Config holds all application configuration
type Config struct {
	Port   string `mapstructure:"port"`
	DBPath string `mapstructure:"db-path"`

	// PictureDir is the landscape directory; its siblings Portrait and
	// Square complete the watched set. ImportDir receives raw downloads.
	PictureDir string `mapstructure:"picture-dir"`
	ImportDir  string `mapstructure:"import-dir"`

	DisplayWidth  int `mapstructure:"display-width"`
	DisplayHeight int `mapstructure:"display-height"`

	TargetSetSize int  `mapstructure:"target-set-size"`
	MinSetSize    int  `mapstructure:"min-set-size"`
	Shuffle       bool `mapstructure:"shuffle"`

	ScanInterval    time.Duration `mapstructure:"scan-interval"`
	ImportInterval  time.Duration `mapstructure:"import-interval"`
	ProcessInterval time.Duration `mapstructure:"process-interval"`

	MaxDownloads     int `mapstructure:"max-downloads"`
	MaxStoreWrites   int `mapstructure:"max-store-writes"`
	BatchSize        int `mapstructure:"batch-size"`
	NormalizeWorkers int `mapstructure:"normalize-workers"`

	LogLevel  string `mapstructure:"log-level"`
	LogFormat string `mapstructure:"log-format"`

	FrameID      string `mapstructure:"frame-id"`
	RandomURL    string `mapstructure:"random-url"`
	RandomAPIKey string `mapstructure:"random-api-key"`

	GeoURL string `mapstructure:"geo-url"`
	GeoKey string `mapstructure:"geo-key"`

	Sources map[string]SourceConfig `mapstructure:"sources"`
}

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	// Set defaults
	viper.SetDefault("port", constants.DefaultPort)
	viper.SetDefault("db-path", constants.DefaultDBPath)
	viper.SetDefault("picture-dir", constants.DefaultPictureDir)
	viper.SetDefault("import-dir", constants.DefaultImportDir)
	viper.SetDefault("display-width", constants.DefaultDisplayWidth)
	viper.SetDefault("display-height", constants.DefaultDisplayHeight)
	viper.SetDefault("target-set-size", constants.DefaultTargetSetSize)
	viper.SetDefault("min-set-size", constants.DefaultMinSetSize)
	viper.SetDefault("shuffle", true)
	viper.SetDefault("scan-interval", constants.DefaultScanInterval)
	viper.SetDefault("import-interval", constants.DefaultImportInterval)
	viper.SetDefault("process-interval", constants.DefaultProcessInterval)
	viper.SetDefault("max-downloads", constants.DefaultMaxDownloads)
	viper.SetDefault("max-store-writes", constants.DefaultMaxStoreWrites)
	viper.SetDefault("batch-size", constants.DefaultBatchSize)
	viper.SetDefault("normalize-workers", constants.DefaultNormalizeWorkers)
	viper.SetDefault("log-level", "info")
	viper.SetDefault("log-format", "text")
	viper.SetDefault("frame-id", "pf-aspect")
	viper.SetDefault("random-url", "https://api.random.org/json-rpc/2/invoke")
	viper.SetDefault("random-api-key", "")
	viper.SetDefault("geo-url", "https://nominatim.openstreetmap.org/reverse")
	viper.SetDefault("geo-key", "")

	// Environment variables (will be PFA_PORT, PFA_DB_PATH, etc.)
	viper.SetEnvPrefix("PFA")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.pf-aspect")

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate validates the configuration and returns detailed errors
func (c *Config) Validate() error {
	var errors []string

	if c.Port == "" {
		errors = append(errors, "port cannot be empty")
	} else {
		port, err := strconv.Atoi(c.Port)
		if err != nil {
			errors = append(errors, fmt.Sprintf("port must be a valid number, got: %s", c.Port))
		} else if port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("port must be between 1 and 65535, got: %d", port))
		}
	}

	if c.DBPath == "" {
		errors = append(errors, "db-path cannot be empty")
	}
	if c.PictureDir == "" {
		errors = append(errors, "picture-dir cannot be empty")
	}
	if c.ImportDir == "" {
		errors = append(errors, "import-dir cannot be empty")
	}

	if c.DisplayWidth < 1 || c.DisplayHeight < 1 {
		errors = append(errors, fmt.Sprintf("display dimensions must be positive, got: %dx%d", c.DisplayWidth, c.DisplayHeight))
	}

	if c.TargetSetSize < 1 {
		errors = append(errors, fmt.Sprintf("target-set-size must be positive, got: %d", c.TargetSetSize))
	}
	if c.MinSetSize < 1 {
		errors = append(errors, fmt.Sprintf("min-set-size must be positive, got: %d", c.MinSetSize))
	} else if c.TargetSetSize >= 1 && c.MinSetSize > c.TargetSetSize {
		errors = append(errors, fmt.Sprintf("min-set-size cannot exceed target-set-size, got: %d > %d", c.MinSetSize, c.TargetSetSize))
	}

	if c.ScanInterval <= 0 {
		errors = append(errors, "scan-interval must be positive")
	}
	if c.ImportInterval <= 0 {
		errors = append(errors, "import-interval must be positive")
	}
	if c.ProcessInterval <= 0 {
		errors = append(errors, "process-interval must be positive")
	}

	if c.MaxDownloads < 1 {
		errors = append(errors, fmt.Sprintf("max-downloads must be at least 1, got: %d", c.MaxDownloads))
	}
	if c.MaxStoreWrites < 1 {
		errors = append(errors, fmt.Sprintf("max-store-writes must be at least 1, got: %d", c.MaxStoreWrites))
	}
	if c.BatchSize < 1 {
		errors = append(errors, fmt.Sprintf("batch-size must be at least 1, got: %d", c.BatchSize))
	}
	if c.NormalizeWorkers < 1 {
		errors = append(errors, fmt.Sprintf("normalize-workers must be at least 1, got: %d", c.NormalizeWorkers))
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		errors = append(errors, fmt.Sprintf("log-level must be one of: debug, info, warn, error, got: %s", c.LogLevel))
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.LogFormat] {
		errors = append(errors, fmt.Sprintf("log-format must be one of: text, json, got: %s", c.LogFormat))
	}

	if c.FrameID == "" {
		errors = append(errors, "frame-id cannot be empty")
	}
	if c.RandomURL != "" {
		if _, err := url.Parse(c.RandomURL); err != nil {
			errors = append(errors, fmt.Sprintf("random-url is not a valid URL: %s", c.RandomURL))
		}
	}

	for name, src := range c.Sources {
		if !src.Enable {
			continue
		}
		if src.URL == "" {
			errors = append(errors, fmt.Sprintf("source %s: url cannot be empty", name))
		} else if _, err := url.Parse(src.URL); err != nil {
			errors = append(errors, fmt.Sprintf("source %s: url is not valid: %s", name, src.URL))
		}
		if src.Username == "" {
			errors = append(errors, fmt.Sprintf("source %s: username cannot be empty", name))
		}
		if src.Password == "" {
			errors = append(errors, fmt.Sprintf("source %s: password cannot be empty", name))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}
	return nil
}

// SourceNames returns the configured source names in stable order.
func (c *Config) SourceNames() []string {
	names := make([]string, 0, len(c.Sources))
	for name := range c.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EnabledSources returns the names of sources with Enable set, in stable order.
func (c *Config) EnabledSources() []string {
	var names []string
	for _, name := range c.SourceNames() {
		if c.Sources[name].Enable {
			names = append(names, name)
		}
	}
	return names
}
