// Package config loads and validates the pipeline configuration from a YAML
// file with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the unified configuration structure.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
	Media        MediaConfig        `yaml:"media"`
	ASR          ASRConfig          `yaml:"asr"`
	LLM          LLMConfig          `yaml:"llm"`
	Accelerators AcceleratorConfig  `yaml:"accelerators"`
	Store        StoreConfig        `yaml:"store"`
	Segmentation SegmentationConfig `yaml:"segmentation"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Env  string `yaml:"env"`  // dev, staging, production
	Port string `yaml:"port"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`  // optional rotating log file path
}

// MediaConfig holds settings for the external media tool.
type MediaConfig struct {
	FFmpegPath    string `yaml:"ffmpeg_path"`
	WorkDir       string `yaml:"work_dir"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// ASRConfig holds speech recognition and alignment service settings.
type ASRConfig struct {
	BaseURL         string `yaml:"base_url"`
	AlignURL        string `yaml:"align_url"`
	EnableAlignment bool   `yaml:"enable_alignment"`
	DefaultModel    string `yaml:"default_model"`
	Timeout         string `yaml:"timeout"`
}

// LLMModel describes one selectable model option. Submit requests reference a
// model by Label; the API key is read from the named environment variable.
type LLMModel struct {
	Label       string  `yaml:"label"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// LLMConfig holds LLM endpoint settings.
type LLMConfig struct {
	Models  []LLMModel `yaml:"models"`
	Timeout string     `yaml:"timeout"`
}

// AcceleratorConfig holds worker pool settings.
type AcceleratorConfig struct {
	Count        int    `yaml:"count"`
	PollInterval string `yaml:"poll_interval"`
	WaitTimeout  string `yaml:"wait_timeout"`
}

// StoreConfig holds task store retention settings.
type StoreConfig struct {
	TTL          string `yaml:"ttl"`
	MaxEntries   int    `yaml:"max_entries"`
	ReapInterval string `yaml:"reap_interval"`
}

// SegmentationConfig holds segment validation and merge settings.
type SegmentationConfig struct {
	FallbackSegments   int     `yaml:"fallback_segments"`
	DefaultSpanSeconds float64 `yaml:"default_span_seconds"`
	GapToleranceSec    float64 `yaml:"gap_tolerance_seconds"`
	MinDurationSec     float64 `yaml:"min_duration_seconds"`
	ExtendBeforeSec    float64 `yaml:"extend_before_seconds"`
	ExtendAfterSec     float64 `yaml:"extend_after_seconds"`
}

// Load reads the configuration file at path (if it exists), applies
// environment overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Env: "dev", Port: "8000"},
		Log:    LogConfig{Level: "info"},
		Media: MediaConfig{
			FFmpegPath:    "ffmpeg",
			WorkDir:       "./data",
			MaxConcurrent: 2,
		},
		ASR: ASRConfig{
			BaseURL:         "http://localhost:9000",
			AlignURL:        "http://localhost:9001",
			EnableAlignment: false,
			DefaultModel:    "base",
			Timeout:         "10m",
		},
		LLM: LLMConfig{
			Models: []LLMModel{
				{
					Label:       "default",
					Model:       "gpt-4o-mini",
					BaseURL:     "",
					APIKeyEnv:   "LLM_API_KEY",
					Temperature: 0.3,
					MaxTokens:   4096,
				},
			},
			Timeout: "120s",
		},
		Accelerators: AcceleratorConfig{
			Count:        1,
			PollInterval: "1s",
			WaitTimeout:  "60s",
		},
		Store: StoreConfig{
			TTL:          "24h",
			MaxEntries:   100,
			ReapInterval: "1h",
		},
		Segmentation: SegmentationConfig{
			FallbackSegments:   5,
			DefaultSpanSeconds: 300,
			GapToleranceSec:    3,
			MinDurationSec:     20,
			ExtendBeforeSec:    5,
			ExtendAfterSec:     10,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.Server.Env = getEnv("ENV", cfg.Server.Env)
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)
	cfg.Media.FFmpegPath = getEnv("FFMPEG_PATH", cfg.Media.FFmpegPath)
	cfg.Media.WorkDir = getEnv("WORK_DIR", cfg.Media.WorkDir)
	cfg.ASR.BaseURL = getEnv("ASR_BASE_URL", cfg.ASR.BaseURL)
	cfg.ASR.AlignURL = getEnv("ALIGN_BASE_URL", cfg.ASR.AlignURL)
	if v := os.Getenv("ENABLE_ALIGNMENT"); v != "" {
		cfg.ASR.EnableAlignment = v == "true" || v == "1"
	}
	if v := os.Getenv("ACCELERATOR_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Accelerators.Count = n
		}
	}
}

// Validate checks the configuration and collects every problem found.
func Validate(cfg *Config) error {
	var errs []string

	if port, err := strconv.Atoi(cfg.Server.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port: %s (must be 1-65535)", cfg.Server.Port))
	}

	validEnvs := map[string]bool{"dev": true, "development": true, "staging": true, "production": true}
	if !validEnvs[cfg.Server.Env] {
		errs = append(errs, fmt.Sprintf("invalid env: %s (must be: dev, development, staging, production)", cfg.Server.Env))
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be: debug, info, warn, error)", cfg.Log.Level))
	}

	if cfg.Media.FFmpegPath == "" {
		errs = append(errs, "media.ffmpeg_path cannot be empty")
	}
	if cfg.Media.WorkDir == "" {
		errs = append(errs, "media.work_dir cannot be empty")
	}
	if cfg.Media.MaxConcurrent <= 0 {
		errs = append(errs, "media.max_concurrent must be greater than 0")
	}

	if cfg.ASR.BaseURL == "" {
		errs = append(errs, "asr.base_url cannot be empty")
	}
	if cfg.ASR.EnableAlignment && cfg.ASR.AlignURL == "" {
		errs = append(errs, "asr.align_url cannot be empty when alignment is enabled")
	}

	if len(cfg.LLM.Models) == 0 {
		errs = append(errs, "llm.models cannot be empty")
	}
	for i, m := range cfg.LLM.Models {
		if m.Label == "" {
			errs = append(errs, fmt.Sprintf("llm.models[%d]: label cannot be empty", i))
		}
		if m.Model == "" {
			errs = append(errs, fmt.Sprintf("llm.models[%d] (%s): model cannot be empty", i, m.Label))
		}
	}

	if cfg.Accelerators.Count <= 0 {
		errs = append(errs, "accelerators.count must be greater than 0")
	}
	if cfg.Store.MaxEntries <= 0 {
		errs = append(errs, "store.max_entries must be greater than 0")
	}
	if cfg.Segmentation.FallbackSegments <= 0 {
		errs = append(errs, "segmentation.fallback_segments must be greater than 0")
	}
	if cfg.Segmentation.MinDurationSec < 0 || cfg.Segmentation.GapToleranceSec < 0 {
		errs = append(errs, "segmentation durations cannot be negative")
	}

	for name, value := range map[string]string{
		"asr.timeout":                cfg.ASR.Timeout,
		"llm.timeout":                cfg.LLM.Timeout,
		"accelerators.poll_interval": cfg.Accelerators.PollInterval,
		"accelerators.wait_timeout":  cfg.Accelerators.WaitTimeout,
		"store.ttl":                  cfg.Store.TTL,
		"store.reap_interval":        cfg.Store.ReapInterval,
	} {
		if value == "" {
			errs = append(errs, fmt.Sprintf("%s cannot be empty", name))
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: invalid duration format: %v", name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ModelByLabel returns the LLM model option matching label, or an error
// listing the available labels.
func (c *Config) ModelByLabel(label string) (*LLMModel, error) {
	for i := range c.LLM.Models {
		if c.LLM.Models[i].Label == label {
			return &c.LLM.Models[i], nil
		}
	}
	labels := make([]string, 0, len(c.LLM.Models))
	for _, m := range c.LLM.Models {
		labels = append(labels, m.Label)
	}
	return nil, fmt.Errorf("unsupported LLM model: %s (available: %s)", label, strings.Join(labels, ", "))
}

// Duration accessors. Validate guarantees these parse; a zero value is
// returned for malformed input so callers never see a panic.

func (c *Config) ASRTimeout() time.Duration        { return parseDuration(c.ASR.Timeout) }
func (c *Config) LLMTimeout() time.Duration        { return parseDuration(c.LLM.Timeout) }
func (c *Config) AcceleratorPoll() time.Duration   { return parseDuration(c.Accelerators.PollInterval) }
func (c *Config) AcceleratorWait() time.Duration   { return parseDuration(c.Accelerators.WaitTimeout) }
func (c *Config) StoreTTL() time.Duration          { return parseDuration(c.Store.TTL) }
func (c *Config) StoreReapInterval() time.Duration { return parseDuration(c.Store.ReapInterval) }

// GetServerAddr returns the listen address for the HTTP server.
func (c *Config) GetServerAddr() string {
	return ":" + c.Server.Port
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func parseDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
