package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/plasmastore/plasmastore/pkg/utils"
)

// Configuration represents the complete application configuration
type Configuration struct {
	Global     GlobalConfig     `yaml:"global"`
	Store      StoreConfig      `yaml:"store"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	API        APIConfig        `yaml:"api"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogFile   string `yaml:"log_file"`
	GopsAgent bool   `yaml:"gops_agent"`
}

// StoreConfig represents the object store and its memory pools. Sizes are
// human-readable strings such as "2GB".
type StoreConfig struct {
	PrimaryDirectory  string `yaml:"primary_directory"`
	FallbackDirectory string `yaml:"fallback_directory"`
	FootprintLimit    string `yaml:"footprint_limit"`
	HugepageEnabled   bool   `yaml:"hugepage_enabled"`
	Capacity          string `yaml:"capacity"`
	EvictionCapacity  string `yaml:"eviction_capacity"`
	FallbackEnabled   bool   `yaml:"fallback_enabled"`
	EvictOnCreate     bool   `yaml:"evict_on_create"`
	ChecksumOnSeal    bool   `yaml:"checksum_on_seal"`
}

// MonitoringConfig represents monitoring settings
type MonitoringConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig represents metrics settings
type MetricsConfig struct {
	Enabled      bool              `yaml:"enabled"`
	Namespace    string            `yaml:"namespace"`
	Path         string            `yaml:"path"`
	CustomLabels map[string]string `yaml:"custom_labels"`
}

// APIConfig represents the read-only HTTP surface
type APIConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// StoreParams are the resolved, numeric construction parameters of the store.
type StoreParams struct {
	PrimaryDirectory  string
	FallbackDirectory string
	FootprintLimit    int64
	HugepageEnabled   bool
	Capacity          int64
	EvictionCapacity  int64
	FallbackEnabled   bool
	EvictOnCreate     bool
	ChecksumOnSeal    bool
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:  "INFO",
			LogFormat: "text",
			LogFile:   "",
			GopsAgent: false,
		},
		Store: StoreConfig{
			PrimaryDirectory:  "",
			FallbackDirectory: os.TempDir(),
			FootprintLimit:    "1GB",
			HugepageEnabled:   false,
			Capacity:          "1GB",
			EvictionCapacity:  "1GB",
			FallbackEnabled:   true,
			EvictOnCreate:     true,
			ChecksumOnSeal:    false,
		},
		Monitoring: MonitoringConfig{
			Metrics: MetricsConfig{
				Enabled:   true,
				Namespace: "plasma",
				Path:      "/metrics",
				CustomLabels: map[string]string{
					"service": "plasma-store",
				},
			},
		},
		API: APIConfig{
			Enabled:      true,
			Address:      "127.0.0.1:8090",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv loads configuration from PLASMA_* environment variables
func (c *Configuration) LoadFromEnv() error {
	// Global settings
	if val := os.Getenv("PLASMA_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = strings.ToUpper(val)
	}
	if val := os.Getenv("PLASMA_LOG_FORMAT"); val != "" {
		c.Global.LogFormat = val
	}
	if val := os.Getenv("PLASMA_LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}
	if val := os.Getenv("PLASMA_GOPS_AGENT"); val != "" {
		c.Global.GopsAgent = parseBool(val)
	}

	// Store settings
	if val := os.Getenv("PLASMA_PRIMARY_DIRECTORY"); val != "" {
		c.Store.PrimaryDirectory = val
	}
	if val := os.Getenv("PLASMA_FALLBACK_DIRECTORY"); val != "" {
		c.Store.FallbackDirectory = val
	}
	if val := os.Getenv("PLASMA_FOOTPRINT_LIMIT"); val != "" {
		c.Store.FootprintLimit = val
	}
	if val := os.Getenv("PLASMA_CAPACITY"); val != "" {
		c.Store.Capacity = val
	}
	if val := os.Getenv("PLASMA_EVICTION_CAPACITY"); val != "" {
		c.Store.EvictionCapacity = val
	}
	if val := os.Getenv("PLASMA_HUGEPAGE_ENABLED"); val != "" {
		c.Store.HugepageEnabled = parseBool(val)
	}
	if val := os.Getenv("PLASMA_FALLBACK_ENABLED"); val != "" {
		c.Store.FallbackEnabled = parseBool(val)
	}
	if val := os.Getenv("PLASMA_EVICT_ON_CREATE"); val != "" {
		c.Store.EvictOnCreate = parseBool(val)
	}
	if val := os.Getenv("PLASMA_CHECKSUM_ON_SEAL"); val != "" {
		c.Store.ChecksumOnSeal = parseBool(val)
	}

	// Monitoring and API
	if val := os.Getenv("PLASMA_METRICS_ENABLED"); val != "" {
		c.Monitoring.Metrics.Enabled = parseBool(val)
	}
	if val := os.Getenv("PLASMA_API_ENABLED"); val != "" {
		c.API.Enabled = parseBool(val)
	}
	if val := os.Getenv("PLASMA_API_ADDRESS"); val != "" {
		c.API.Address = val
	}
	if val := os.Getenv("PLASMA_API_READ_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.API.ReadTimeout = duration
		}
	}
	if val := os.Getenv("PLASMA_API_WRITE_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.API.WriteTimeout = duration
		}
	}

	return nil
}

func parseBool(val string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(val))
	return err == nil && b
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	validLogLevels := []string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if c.Global.LogLevel == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if _, err := utils.ParseLogFormat(c.Global.LogFormat); err != nil {
		return fmt.Errorf("invalid log_format: %w", err)
	}

	params, err := c.StoreParams()
	if err != nil {
		return err
	}

	if params.FootprintLimit <= 0 {
		return fmt.Errorf("footprint_limit must be greater than 0")
	}
	if params.Capacity <= 0 {
		return fmt.Errorf("capacity must be greater than 0")
	}
	if params.EvictionCapacity <= 0 {
		return fmt.Errorf("eviction_capacity must be greater than 0")
	}
	if params.FallbackEnabled && params.FallbackDirectory == "" {
		return fmt.Errorf("fallback_directory is required when fallback is enabled")
	}

	if c.API.Enabled && c.API.Address == "" {
		return fmt.Errorf("api address is required when the api is enabled")
	}
	if c.Monitoring.Metrics.Enabled && !strings.HasPrefix(c.Monitoring.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with '/': %q", c.Monitoring.Metrics.Path)
	}

	return nil
}

// StoreParams resolves the size strings of the store section.
func (c *Configuration) StoreParams() (StoreParams, error) {
	footprint, err := utils.ParseBytes(c.Store.FootprintLimit)
	if err != nil {
		return StoreParams{}, fmt.Errorf("invalid footprint_limit: %w", err)
	}
	capacity, err := utils.ParseBytes(c.Store.Capacity)
	if err != nil {
		return StoreParams{}, fmt.Errorf("invalid capacity: %w", err)
	}
	evictionCapacity, err := utils.ParseBytes(c.Store.EvictionCapacity)
	if err != nil {
		return StoreParams{}, fmt.Errorf("invalid eviction_capacity: %w", err)
	}

	return StoreParams{
		PrimaryDirectory:  c.Store.PrimaryDirectory,
		FallbackDirectory: c.Store.FallbackDirectory,
		FootprintLimit:    footprint,
		HugepageEnabled:   c.Store.HugepageEnabled,
		Capacity:          capacity,
		EvictionCapacity:  evictionCapacity,
		FallbackEnabled:   c.Store.FallbackEnabled,
		EvictOnCreate:     c.Store.EvictOnCreate,
		ChecksumOnSeal:    c.Store.ChecksumOnSeal,
	}, nil
}

// LoggerConfig converts the global section into a logger configuration.
func (c *Configuration) LoggerConfig() (*utils.StructuredLoggerConfig, error) {
	level, err := utils.ParseLogLevel(c.Global.LogLevel)
	if err != nil {
		return nil, err
	}
	format, err := utils.ParseLogFormat(c.Global.LogFormat)
	if err != nil {
		return nil, err
	}

	cfg := utils.DefaultStructuredLoggerConfig()
	cfg.Level = level
	cfg.Format = format
	cfg.LogFile = c.Global.LogFile
	cfg.IncludeCaller = level <= utils.DEBUG
	return cfg, nil
}
