package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateSources(); err != nil {
		return err
	}
	if err := c.validateDedup(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateSources() error {
	for name, src := range c.Sources {
		switch src.Kind {
		case "govinfo", "scraper":
		default:
			return fmt.Errorf("sources.%s.kind must be govinfo or scraper, got %q", name, src.Kind)
		}
		if src.BaseURL == "" {
			return fmt.Errorf("sources.%s.base_url must be set", name)
		}
		if src.Kind == "govinfo" && src.APIKey == "" {
			return fmt.Errorf("sources.%s.api_key is required for govinfo sources", name)
		}
		if src.JitterFraction < 0 || src.JitterFraction > 1 {
			return fmt.Errorf("sources.%s.jitter_fraction must be between 0 and 1", name)
		}
	}
	return nil
}

func (c *Config) validateDedup() error {
	d := c.Dedup
	for _, check := range []struct {
		name  string
		value float64
	}{
		{"dedup.title_weight", d.TitleWeight},
		{"dedup.date_weight", d.DateWeight},
		{"dedup.committee_weight", d.CommitteeWeight},
		{"dedup.auto_merge_threshold", d.AutoMergeThreshold},
		{"dedup.similarity_threshold", d.SimilarityThreshold},
	} {
		if check.value < 0 || check.value > 1 {
			return fmt.Errorf("%s must be between 0 and 1", check.name)
		}
	}
	sum := d.TitleWeight + d.DateWeight + d.CommitteeWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("dedup weights must sum to 1, got %.3f", sum)
	}
	if d.SimilarityThreshold >= d.AutoMergeThreshold {
		return errors.New("dedup.similarity_threshold must be below dedup.auto_merge_threshold")
	}
	if d.DateToleranceDays <= 0 {
		return errors.New("dedup.date_tolerance_days must be positive")
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.MaxRetries < 0 {
		return errors.New("sync.max_retries must not be negative")
	}
	if c.Sync.BreakerFailureThreshold < 1 {
		return errors.New("sync.breaker_failure_threshold must be at least 1")
	}
	if c.Sync.BreakerCooldownMinutes < 1 {
		return errors.New("sync.breaker_cooldown_minutes must be at least 1")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.MaxConcurrent < 1 {
		return errors.New("pipeline.max_concurrent must be at least 1")
	}
	if c.Pipeline.StageTimeoutMinutes < 1 {
		return errors.New("pipeline.stage_timeout_minutes must be at least 1")
	}
	if c.Pipeline.MaxFailedUnits < 0 {
		return errors.New("pipeline.max_failed_units must not be negative")
	}
	total := 0
	for stage, weight := range c.Pipeline.StageWeights {
		if weight < 0 {
			return fmt.Errorf("pipeline.stage_weights.%s must not be negative", stage)
		}
		total += weight
	}
	if total != 100 {
		return fmt.Errorf("pipeline.stage_weights must sum to 100, got %d", total)
	}
	for stage := range c.Pipeline.StageCommands {
		if _, ok := c.Pipeline.StageWeights[stage]; !ok {
			return fmt.Errorf("pipeline.stage_commands.%s does not name a known stage", stage)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
