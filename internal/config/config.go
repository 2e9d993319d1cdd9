package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dgnsrekt/tabshell/internal/tabs"
	"github.com/dgnsrekt/tabshell/internal/types"
)

// Config holds all configuration for the tab shell.
type Config struct {
	// CDP connection settings
	CDPAddress    string
	CDPPort       int
	LaunchBrowser bool
	ProfileDir    string
	WindowSize    string

	// Control API
	BindAddr      string
	BindFallbacks []string
	RateLimit     float64
	RateBurst     int

	// Tabs and views
	DevMode         bool
	CloseFallback   tabs.FallbackPolicy
	StartupTabsPath string
	UserAgent       string
	OpTimeout       time.Duration
	ViewStepTimeout time.Duration

	// Geometry
	Margins       types.Margins
	ScaleFactor   float64
	FrameInterval time.Duration

	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	dev := getEnvBoolOrDefault("TABSHELL_DEV", false)
	defaultLevel := "info"
	if dev {
		defaultLevel = "debug"
	}

	cfg := &Config{
		CDPAddress:      getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:         getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		LaunchBrowser:   getEnvBoolOrDefault("TABSHELL_LAUNCH_BROWSER", true),
		ProfileDir:      getEnvOrDefault("TABSHELL_PROFILE_DIR", "./profile"),
		WindowSize:      getEnvOrDefault("TABSHELL_WINDOW_SIZE", "1440,900"),
		BindAddr:        getEnvOrDefault("TABSHELL_BIND_ADDR", "127.0.0.1:8190"),
		BindFallbacks:   splitList(getEnvOrDefault("TABSHELL_BIND_FALLBACKS", "127.0.0.1:8191,127.0.0.1:8192")),
		RateLimit:       getEnvFloatOrDefault("TABSHELL_RATE_LIMIT", 120),
		RateBurst:       getEnvIntOrDefault("TABSHELL_RATE_BURST", 240),
		DevMode:         dev,
		StartupTabsPath: getEnvOrDefault("TABSHELL_STARTUP_TABS", "./config/startup_tabs.yaml"),
		UserAgent:       os.Getenv("TABSHELL_USER_AGENT"),
		OpTimeout:       time.Duration(getEnvIntOrDefault("TABSHELL_OP_TIMEOUT_MS", 30000)) * time.Millisecond,
		ViewStepTimeout: time.Duration(getEnvIntOrDefault("TABSHELL_VIEW_STEP_TIMEOUT_MS", 3000)) * time.Millisecond,
		ScaleFactor:     getEnvFloatOrDefault("TABSHELL_SCALE_FACTOR", 1),
		FrameInterval:   time.Duration(getEnvIntOrDefault("TABSHELL_FRAME_INTERVAL_MS", 16)) * time.Millisecond,
		LogLevel:        strings.ToLower(getEnvOrDefault("TABSHELL_LOG_LEVEL", defaultLevel)),
		LogFile:         getEnvOrDefault("TABSHELL_LOG_FILE", "logs/tabshell.log"),
	}

	fallback, err := ParseFallback(getEnvOrDefault("TABSHELL_CLOSE_FALLBACK", "predecessor"))
	if err != nil {
		return nil, err
	}
	cfg.CloseFallback = fallback

	margins, err := ParseMargins(os.Getenv("TABSHELL_VIEW_MARGINS"))
	if err != nil {
		return nil, err
	}
	cfg.Margins = margins

	if cfg.ScaleFactor <= 0 {
		return nil, fmt.Errorf("TABSHELL_SCALE_FACTOR must be positive, got %v", cfg.ScaleFactor)
	}
	if cfg.OpTimeout < time.Second {
		cfg.OpTimeout = time.Second
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = 16 * time.Millisecond
	}
	return cfg, nil
}

// CDPURL returns the browser's HTTP debugging endpoint.
func (c *Config) CDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

// ParseFallback maps a TABSHELL_CLOSE_FALLBACK value to a policy.
func ParseFallback(s string) (tabs.FallbackPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "predecessor", "previous":
		return tabs.FallbackPredecessor, nil
	case "first":
		return tabs.FallbackFirst, nil
	default:
		return 0, fmt.Errorf("TABSHELL_CLOSE_FALLBACK: unknown policy %q", s)
	}
}

// ParseMargins reads "left,top,right,bottom" in CSS pixels. A single value
// applies to every side.
func ParseMargins(s string) (types.Margins, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.Margins{}, nil
	}
	parts := splitList(s)
	vals := make([]float64, 0, 4)
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return types.Margins{}, fmt.Errorf("TABSHELL_VIEW_MARGINS: %w", err)
		}
		vals = append(vals, v)
	}
	switch len(vals) {
	case 1:
		return types.Margins{Left: vals[0], Top: vals[0], Right: vals[0], Bottom: vals[0]}, nil
	case 4:
		return types.Margins{Left: vals[0], Top: vals[1], Right: vals[2], Bottom: vals[3]}, nil
	default:
		return types.Margins{}, fmt.Errorf("TABSHELL_VIEW_MARGINS: want 1 or 4 values, got %d", len(vals))
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloatOrDefault(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
