package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// Source describes one configured data source and its sync cadence.
type Source struct {
	// Kind selects the adapter implementation: "govinfo" or "scraper".
	Kind string `toml:"kind"`
	// BaseURL is the adapter endpoint (API root or committee site URL).
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	// Committees limits which committee codes this source is asked for.
	Committees []string `toml:"committees"`
	// IntervalMinutes is the sync cadence. Sources run independently.
	IntervalMinutes int `toml:"interval_minutes"`
	// JitterFraction spreads cycle start times by up to this fraction
	// of the interval.
	JitterFraction float64 `toml:"jitter_fraction"`
	// WindowDays bounds the fetch window handed to the adapter.
	WindowDays     int `toml:"window_days"`
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// Dedup contains scoring weights and decision thresholds for the merge
// engine.
type Dedup struct {
	TitleWeight     float64 `toml:"title_weight"`
	DateWeight      float64 `toml:"date_weight"`
	CommitteeWeight float64 `toml:"committee_weight"`
	// DateToleranceDays is the proximity window over which the date
	// component decays linearly from 1 to 0.
	DateToleranceDays float64 `toml:"date_tolerance_days"`
	// AutoMergeThreshold and above merges automatically; scores in
	// [SimilarityThreshold, AutoMergeThreshold) queue for review.
	AutoMergeThreshold  float64 `toml:"auto_merge_threshold"`
	SimilarityThreshold float64 `toml:"similarity_threshold"`
}

// Sync contains retry and circuit-breaker settings applied per source.
type Sync struct {
	MaxRetries              int `toml:"max_retries"`
	RetryBaseSeconds        int `toml:"retry_base_seconds"`
	RateLimitBaseSeconds    int `toml:"rate_limit_base_seconds"`
	BreakerFailureThreshold int `toml:"breaker_failure_threshold"`
	BreakerCooldownMinutes  int `toml:"breaker_cooldown_minutes"`
}

// Pipeline contains processing-stage settings.
type Pipeline struct {
	MaxConcurrent       int `toml:"max_concurrent"`
	StageTimeoutMinutes int `toml:"stage_timeout_minutes"`
	// MaxFailedUnits is how many failed sub-units (e.g. transcription
	// chunks) a stage tolerates before the stage fails.
	MaxFailedUnits int `toml:"max_failed_units"`
	// StageWeights distribute overall percent across the active
	// stages; keys are stage names, values sum to 100.
	StageWeights map[string]int `toml:"stage_weights"`
	// StageCommands maps stage names to the external command run for
	// that stage. A stage without a command passes through.
	StageCommands map[string]string `toml:"stage_commands"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for gavel.
type Config struct {
	Paths    Paths             `toml:"paths"`
	Sources  map[string]Source `toml:"sources"`
	Dedup    Dedup             `toml:"dedup"`
	Sync     Sync              `toml:"sync"`
	Pipeline Pipeline          `toml:"pipeline"`
	Logging  Logging           `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default
// configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/gavel/config.toml")
}

// Load locates, parses, and validates a configuration file. The
// returned config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// WriteSample writes the embedded sample configuration to path,
// refusing to overwrite an existing file.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config already exists at %s", expanded)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	for name, src := range c.Sources {
		src.Kind = strings.ToLower(strings.TrimSpace(src.Kind))
		if src.IntervalMinutes <= 0 {
			src.IntervalMinutes = defaultSourceIntervalMinutes
		}
		if src.WindowDays <= 0 {
			src.WindowDays = defaultSourceWindowDays
		}
		if src.TimeoutSeconds <= 0 {
			src.TimeoutSeconds = defaultSourceTimeoutSeconds
		}
		c.Sources[name] = src
	}
	return nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", path, err)
	}
	return abs, nil
}
