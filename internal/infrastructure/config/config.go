package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Mode controls when the subsystem may be started or stopped automatically.
type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeOnDemand Mode = "on-demand"
	ModePreload  Mode = "preload"
)

// ParseMode normalizes a mode string, defaulting to on-demand.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeDisabled:
		return ModeDisabled
	case ModePreload:
		return ModePreload
	default:
		return ModeOnDemand
	}
}

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Bridge    BridgeConfig
	Subsystem SubsystemConfig
	Lifecycle LifecycleConfig
	Catalog   CatalogConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8400"`
	Host string `envconfig:"HOST" default:"127.0.0.1"`
}

// BridgeConfig holds debug-bridge (adb) and asset-tool (aapt) configuration.
type BridgeConfig struct {
	Endpoint    string   `envconfig:"BRIDGE_ENDPOINT" default:"127.0.0.1:58526"`
	AdbCommand  string   `envconfig:"ADB_COMMAND" default:"adb"`
	AaptCommand string   `envconfig:"AAPT_COMMAND" default:"aapt"`
	SearchDirs  []string `envconfig:"TOOL_SEARCH_DIRS"`
	APILevelMap string   `envconfig:"API_LEVEL_MAP" default:"configs/api-levels.yaml"`
}

// SubsystemConfig describes how the subsystem runtime is probed and controlled.
type SubsystemConfig struct {
	ClientProcess string   `envconfig:"SUBSYS_PROCESS" default:"WsaClient"`
	StartCommand  string   `envconfig:"SUBSYS_START_CMD" default:"WsaClient"`
	StartArgs     []string `envconfig:"SUBSYS_START_ARGS" default:"/launch"`
	FallbackStart string   `envconfig:"SUBSYS_START_FALLBACK"`
	FallbackArgs  []string `envconfig:"SUBSYS_START_FALLBACK_ARGS"`
	StopCommand   string   `envconfig:"SUBSYS_STOP_CMD" default:"WsaClient"`
	StopArgs      []string `envconfig:"SUBSYS_STOP_ARGS" default:"/shutdown"`
	ProbeCommand  string   `envconfig:"SUBSYS_PROBE_CMD"`
	ProbeArgs     []string `envconfig:"SUBSYS_PROBE_ARGS"`
}

// LifecycleConfig holds the operating mode and resource thresholds.
// Immutable after load; the controller copies what it needs at construction.
type LifecycleConfig struct {
	Mode             string `envconfig:"SUBSYS_MODE" default:"on-demand"`
	PreloadDelaySec  int    `envconfig:"PRELOAD_DELAY_SEC" default:"30"`
	AutoStart        bool   `envconfig:"AUTO_START" default:"true"`
	IdleStopEnabled  bool   `envconfig:"IDLE_STOP_ENABLED" default:"false"`
	IdleTimeoutMin   int    `envconfig:"IDLE_TIMEOUT_MIN" default:"20"`
	LowMemoryEnabled bool   `envconfig:"LOW_MEMORY_ENABLED" default:"false"`
	LowMemoryMB      int    `envconfig:"LOW_MEMORY_MB" default:"1024"`
	CheckIntervalSec int    `envconfig:"LIFECYCLE_CHECK_SEC" default:"60"`
}

// CatalogConfig holds the application-catalog service configuration.
type CatalogConfig struct {
	BaseURL    string  `envconfig:"CATALOG_URL" default:"http://127.0.0.1:8401"`
	TimeoutSec int     `envconfig:"CATALOG_TIMEOUT_SEC" default:"15"`
	RateRPS    float64 `envconfig:"CATALOG_RATE_RPS" default:"5"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration for the HTTP surface.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"50"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"100"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// CORSConfig holds the cross-origin policy for the UI. The default
// wildcard suits a loopback deployment; pin to the UI origin when the
// service is exposed beyond localhost.
type CORSConfig struct {
	AllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	MaxAgeHours    int      `envconfig:"CORS_MAX_AGE_HOURS" default:"12"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8400",
			Host: "127.0.0.1",
		},
		Bridge: BridgeConfig{
			Endpoint:    "127.0.0.1:58526",
			AdbCommand:  "adb",
			AaptCommand: "aapt",
			APILevelMap: "configs/api-levels.yaml",
		},
		Subsystem: SubsystemConfig{
			ClientProcess: "WsaClient",
			StartCommand:  "WsaClient",
			StartArgs:     []string{"/launch"},
			StopCommand:   "WsaClient",
			StopArgs:      []string{"/shutdown"},
		},
		Lifecycle: LifecycleConfig{
			Mode:             string(ModeOnDemand),
			PreloadDelaySec:  30,
			AutoStart:        true,
			IdleTimeoutMin:   20,
			LowMemoryMB:      1024,
			CheckIntervalSec: 60,
		},
		Catalog: CatalogConfig{
			BaseURL:    "http://127.0.0.1:8401",
			TimeoutSec: 15,
			RateRPS:    5,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			Enabled:           true,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
			MaxAgeHours:    12,
		},
	}
}
