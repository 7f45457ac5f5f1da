// Package config builds pipeline configurations for the CLI, with optional
// overrides loaded from a YAML feed profile file.
package config

import (
	"os"
	"unicode/utf8"

	"feed-reconciliation-service/internal/matcher"
	"feed-reconciliation-service/internal/parsers"
	"feed-reconciliation-service/internal/reconciler"
	"feed-reconciliation-service/pkg/errors"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// FeedProfile is the YAML shape of a feed profile file. Zero-value
// sections fall back to the defaults.
type FeedProfile struct {
	Bank      *parsers.BankFeedConfig      `yaml:"bank"`
	Processor *parsers.ProcessorFeedConfig `yaml:"processor"`
	Tolerance string                       `yaml:"tolerance"`
}

// LoadFeedProfile reads a feed profile from the given YAML file.
func LoadFeedProfile(path string) (*FeedProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		return nil, errors.FileError(errors.CodeFileUnreadable, path, err)
	}

	var profile FeedProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidConfig, "feed_profile", path, err)
	}

	if profile.Bank != nil {
		applyDelimiter(profile.Bank)
	}
	return &profile, nil
}

// CreatePipelineConfig assembles the pipeline configuration from an
// optional profile path and an optional tolerance override. The override
// wins over the profile's tolerance.
func CreatePipelineConfig(profilePath, tolerance string) (*reconciler.Config, error) {
	cfg := reconciler.DefaultConfig()

	if profilePath != "" {
		profile, err := LoadFeedProfile(profilePath)
		if err != nil {
			return nil, err
		}
		if profile.Bank != nil {
			cfg.BankFeed = profile.Bank
		}
		if profile.Processor != nil {
			cfg.ProcessorFeed = profile.Processor
		}
		if profile.Tolerance != "" && tolerance == "" {
			tolerance = profile.Tolerance
		}
	}

	if tolerance != "" {
		value, err := decimal.NewFromString(tolerance)
		if err != nil {
			return nil, errors.ValidationError(errors.CodeInvalidConfig, "tolerance", tolerance, err)
		}
		cfg.Matching = &matcher.Config{AmountTolerance: value}
	}

	return cfg, nil
}

// applyDelimiter fills rune fields YAML cannot express directly.
func applyDelimiter(cfg *parsers.BankFeedConfig) {
	if cfg.DelimiterString != "" {
		r, _ := utf8.DecodeRuneInString(cfg.DelimiterString)
		cfg.Delimiter = r
	}
	if cfg.Delimiter == 0 {
		cfg.Delimiter = ','
	}
}
