// Package config builds the component configurations the CLI hands to the
// parser, matcher and reporter, applying flag and environment overrides.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/raulcamilotti-dev/bank-reconciliation/internal/matcher"
	"github.com/raulcamilotti-dev/bank-reconciliation/internal/reporter"
)

// Viper keys for the scoring overrides. Each maps from the RECONCILER_
// environment prefix as well, e.g. RECONCILER_SCORING_MIN_SCORE.
const (
	KeyDatabasePath      = "database"
	KeyScoringMinScore   = "scoring_min_score"
	KeyScoringDateWindow = "scoring_date_window_days"
	KeyMaxSuggestions    = "max_suggestions"
)

// CreateScoringConfig builds the match scoring configuration, starting from
// the defaults and applying any overrides bound in viper.
func CreateScoringConfig(maxSuggestions int) (*matcher.ScoringConfig, error) {
	cfg := matcher.DefaultScoringConfig()

	if viper.IsSet(KeyScoringMinScore) {
		cfg.MinScore = viper.GetFloat64(KeyScoringMinScore)
	}
	if viper.IsSet(KeyScoringDateWindow) {
		cfg.DateWindowDays = viper.GetInt(KeyScoringDateWindow)
	}
	if maxSuggestions > 0 {
		cfg.MaxSuggestions = maxSuggestions
	} else if viper.IsSet(KeyMaxSuggestions) {
		cfg.MaxSuggestions = viper.GetInt(KeyMaxSuggestions)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scoring configuration: %w", err)
	}
	return cfg, nil
}

// CreateReportConfig builds the report configuration for the given format.
func CreateReportConfig(format string) (*reporter.ReportConfig, error) {
	cfg := reporter.DefaultReportConfig()
	cfg.Format = reporter.OutputFormat(format)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DatabasePath resolves the SQLite database path from the flag value, the
// environment or the default.
func DatabasePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if viper.IsSet(KeyDatabasePath) {
		return viper.GetString(KeyDatabasePath)
	}
	return "reconciler.db"
}
