package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/plasmastore/plasmastore/pkg/utils"
)

// Test Constants
const (
	TestDebugLevel = "DEBUG"
	TestFootprint  = "8GB"
)

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	if cfg.Global.LogLevel != "INFO" {
		t.Errorf("Expected LogLevel to be INFO, got %s", cfg.Global.LogLevel)
	}
	if cfg.Store.FootprintLimit != "1GB" {
		t.Errorf("Expected FootprintLimit to be 1GB, got %s", cfg.Store.FootprintLimit)
	}
	if !cfg.Store.FallbackEnabled {
		t.Error("Expected FallbackEnabled to be true")
	}
	if cfg.Store.ChecksumOnSeal {
		t.Error("Expected ChecksumOnSeal to be disabled by default")
	}
	if cfg.Monitoring.Metrics.Path != "/metrics" {
		t.Errorf("Expected metrics path /metrics, got %s", cfg.Monitoring.Metrics.Path)
	}
	if cfg.API.ReadTimeout != 15*time.Second {
		t.Errorf("Expected ReadTimeout 15s, got %v", cfg.API.ReadTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  func() *Configuration
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			config: NewDefault,
		},
		{
			name: "invalid log level",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Global.LogLevel = "LOUD"
				return cfg
			},
			wantErr: true,
			errMsg:  "invalid log_level",
		},
		{
			name: "invalid log format",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Global.LogFormat = "xml"
				return cfg
			},
			wantErr: true,
			errMsg:  "invalid log_format",
		},
		{
			name: "unparseable footprint",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Store.FootprintLimit = "huge"
				return cfg
			},
			wantErr: true,
			errMsg:  "invalid footprint_limit",
		},
		{
			name: "zero capacity",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Store.Capacity = "0"
				return cfg
			},
			wantErr: true,
			errMsg:  "capacity must be greater than 0",
		},
		{
			name: "fallback without directory",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Store.FallbackDirectory = ""
				return cfg
			},
			wantErr: true,
			errMsg:  "fallback_directory is required",
		},
		{
			name: "fallback disabled without directory",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Store.FallbackEnabled = false
				cfg.Store.FallbackDirectory = ""
				return cfg
			},
		},
		{
			name: "api without address",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.API.Address = ""
				return cfg
			},
			wantErr: true,
			errMsg:  "api address is required",
		},
		{
			name: "metrics path without slash",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Monitoring.Metrics.Path = "metrics"
				return cfg
			},
			wantErr: true,
			errMsg:  "metrics path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config().Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error containing %q, got nil", tt.errMsg)
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Expected error containing %q, got %q", tt.errMsg, err.Error())
				}
				return
			}
			if err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

func TestStoreParams(t *testing.T) {
	cfg := NewDefault()
	cfg.Store.FootprintLimit = TestFootprint
	cfg.Store.Capacity = "512MB"
	cfg.Store.EvictionCapacity = "256MB"

	params, err := cfg.StoreParams()
	if err != nil {
		t.Fatalf("StoreParams() error = %v", err)
	}
	if params.FootprintLimit != 8<<30 {
		t.Errorf("FootprintLimit = %d, want %d", params.FootprintLimit, int64(8<<30))
	}
	if params.Capacity != 512<<20 {
		t.Errorf("Capacity = %d, want %d", params.Capacity, 512<<20)
	}
	if params.EvictionCapacity != 256<<20 {
		t.Errorf("EvictionCapacity = %d, want %d", params.EvictionCapacity, 256<<20)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PLASMA_LOG_LEVEL", "debug")
	t.Setenv("PLASMA_FOOTPRINT_LIMIT", TestFootprint)
	t.Setenv("PLASMA_FALLBACK_DIRECTORY", "/scratch/plasma")
	t.Setenv("PLASMA_HUGEPAGE_ENABLED", "true")
	t.Setenv("PLASMA_FALLBACK_ENABLED", "false")
	t.Setenv("PLASMA_API_READ_TIMEOUT", "3s")
	t.Setenv("PLASMA_API_WRITE_TIMEOUT", "not-a-duration")

	cfg := NewDefault()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Global.LogLevel != TestDebugLevel {
		t.Errorf("LogLevel = %s, want %s", cfg.Global.LogLevel, TestDebugLevel)
	}
	if cfg.Store.FootprintLimit != TestFootprint {
		t.Errorf("FootprintLimit = %s, want %s", cfg.Store.FootprintLimit, TestFootprint)
	}
	if cfg.Store.FallbackDirectory != "/scratch/plasma" {
		t.Errorf("FallbackDirectory = %s", cfg.Store.FallbackDirectory)
	}
	if !cfg.Store.HugepageEnabled {
		t.Error("HugepageEnabled = false, want true")
	}
	if cfg.Store.FallbackEnabled {
		t.Error("FallbackEnabled = true, want false")
	}
	if cfg.API.ReadTimeout != 3*time.Second {
		t.Errorf("ReadTimeout = %v, want 3s", cfg.API.ReadTimeout)
	}
	if cfg.API.WriteTimeout != 15*time.Second {
		t.Errorf("WriteTimeout = %v, want default 15s on parse failure", cfg.API.WriteTimeout)
	}
}

func TestSaveAndLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "plasma.yaml")

	original := NewDefault()
	original.Global.LogLevel = TestDebugLevel
	original.Store.FootprintLimit = TestFootprint
	original.Store.ChecksumOnSeal = true

	if err := original.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("file mode = %v, want 0600", info.Mode().Perm())
	}

	loaded := NewDefault()
	if err := loaded.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if loaded.Global.LogLevel != TestDebugLevel || loaded.Store.FootprintLimit != TestFootprint || !loaded.Store.ChecksumOnSeal {
		t.Errorf("loaded config does not match saved one: %+v", loaded.Store)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	cfg := NewDefault()
	if err := cfg.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("store: [unterminated"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := cfg.LoadFromFile(bad); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestLoggerConfig(t *testing.T) {
	cfg := NewDefault()
	cfg.Global.LogLevel = TestDebugLevel
	cfg.Global.LogFormat = "json"

	lc, err := cfg.LoggerConfig()
	if err != nil {
		t.Fatalf("LoggerConfig() error = %v", err)
	}
	if lc.Level != utils.DEBUG || lc.Format != utils.FormatJSON || !lc.IncludeCaller {
		t.Errorf("LoggerConfig() = %+v", lc)
	}
}
