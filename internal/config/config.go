package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Storage
	DataDir string

	// Upload limits
	MaxUploadBytes int64

	// Rendering
	RenderCacheTTL       time.Duration
	SettleDelay          time.Duration
	PDFFallbackPdftotext bool
	CrossBlockHighlights bool

	LogLevel string
}

const defaultMaxUploadBytes = 10 << 20 // 10MB

// Defaults returns the configuration used when neither a config file nor
// environment variables set a value.
func Defaults() Config {
	return Config{
		Port:                 "8090",
		DataDir:              "./data",
		MaxUploadBytes:       defaultMaxUploadBytes,
		RenderCacheTTL:       30 * time.Minute,
		SettleDelay:          100 * time.Millisecond,
		PDFFallbackPdftotext: true,
		LogLevel:             "info",
	}
}

// Load builds the configuration from defaults, then the TOML file named by
// DOCMARK_CONFIG (if set), then environment variables.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv("DOCMARK_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.Port = envOr("PORT", cfg.Port)
	cfg.APIKey = envOr("DOCMARK_API_KEY", cfg.APIKey)
	cfg.DataDir = envOr("DATA_DIR", cfg.DataDir)
	cfg.MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)
	cfg.RenderCacheTTL = envDuration("RENDER_CACHE_TTL", cfg.RenderCacheTTL)
	cfg.SettleDelay = envDuration("SETTLE_DELAY", cfg.SettleDelay)
	cfg.PDFFallbackPdftotext = envBool("PDF_FALLBACK_PDFTOTEXT", cfg.PDFFallbackPdftotext)
	cfg.CrossBlockHighlights = envBool("CROSS_BLOCK_HIGHLIGHTS", cfg.CrossBlockHighlights)
	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel)

	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.RenderCacheTTL <= 0 {
		cfg.RenderCacheTTL = 30 * time.Minute
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}

	return cfg, nil
}

// fileConfig mirrors Config with durations as strings, since TOML has no
// duration type.
type fileConfig struct {
	Port                 *string `toml:"port"`
	APIKey               *string `toml:"api_key"`
	DataDir              *string `toml:"data_dir"`
	MaxUploadBytes       *int64  `toml:"max_upload_bytes"`
	RenderCacheTTL       *string `toml:"render_cache_ttl"`
	SettleDelay          *string `toml:"settle_delay"`
	PDFFallbackPdftotext *bool   `toml:"pdf_fallback_pdftotext"`
	CrossBlockHighlights *bool   `toml:"cross_block_highlights"`
	LogLevel             *string `toml:"log_level"`
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var f fileConfig
	if err := toml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&c.Port, f.Port)
	setString(&c.APIKey, f.APIKey)
	setString(&c.DataDir, f.DataDir)
	setString(&c.LogLevel, f.LogLevel)
	if f.MaxUploadBytes != nil {
		c.MaxUploadBytes = *f.MaxUploadBytes
	}
	if f.PDFFallbackPdftotext != nil {
		c.PDFFallbackPdftotext = *f.PDFFallbackPdftotext
	}
	if f.CrossBlockHighlights != nil {
		c.CrossBlockHighlights = *f.CrossBlockHighlights
	}
	if err := setDuration(&c.RenderCacheTTL, f.RenderCacheTTL); err != nil {
		return fmt.Errorf("config render_cache_ttl: %w", err)
	}
	if err := setDuration(&c.SettleDelay, f.SettleDelay); err != nil {
		return fmt.Errorf("config settle_delay: %w", err)
	}
	return nil
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return errors.New("DOCMARK_API_KEY is required")
	}
	if c.DataDir == "" {
		return errors.New("DATA_DIR is required")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// SlogLevel returns the configured log level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	l, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

// ParseLevel maps a LOG_LEVEL value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
