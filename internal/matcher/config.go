// Package matcher scores bank transactions against candidate ledger entries.
//
// Scoring accumulates independent bonuses for amount proximity, due-date
// proximity, description token overlap and candidate status; the total is
// not normalized and can exceed 100. Candidates below the minimum threshold
// are never surfaced. All constants are configuration with the platform's
// historical values as defaults, not hard-coded law.
package matcher

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ScoringConfig holds the tunable weights and tolerances of the scorer.
type ScoringConfig struct {
	// ExactAmountTolerance is the absolute difference still considered an
	// exact amount match, in currency units.
	ExactAmountTolerance decimal.Decimal `json:"exact_amount_tolerance"`
	ExactAmountScore     float64         `json:"exact_amount_score"`

	// CloseAmountPercent / NearAmountPercent bound the percentage difference
	// relative to the candidate amount for the two partial amount bonuses.
	CloseAmountPercent float64 `json:"close_amount_percent"`
	CloseAmountScore   float64 `json:"close_amount_score"`
	NearAmountPercent  float64 `json:"near_amount_percent"`
	NearAmountScore    float64 `json:"near_amount_score"`

	// DateWindowDays bounds date scoring; outside the window the date
	// contribution is exactly zero. Inside it the score decays linearly
	// by DateDecayPerDay from DateScoreCap.
	DateWindowDays  int     `json:"date_window_days"`
	DateScoreCap    float64 `json:"date_score_cap"`
	DateDecayPerDay float64 `json:"date_decay_per_day"`

	// Description overlap contributes DescriptionScorePerToken per shared
	// token, capped at DescriptionScoreCap.
	DescriptionScorePerToken float64 `json:"description_score_per_token"`
	DescriptionScoreCap      float64 `json:"description_score_cap"`

	// OpenStatusBonus rewards candidates still awaiting settlement
	// (pending or partial).
	OpenStatusBonus float64 `json:"open_status_bonus"`

	// MinScore is the minimum surfaced threshold; candidates below it are
	// dropped entirely.
	MinScore float64 `json:"min_score"`

	// Confidence tier boundaries.
	HighConfidenceScore   float64 `json:"high_confidence_score"`
	MediumConfidenceScore float64 `json:"medium_confidence_score"`

	// MaxSuggestions is the number of top-scored suggestions retained per
	// transaction.
	MaxSuggestions int `json:"max_suggestions"`
}

// DefaultScoringConfig returns the platform's historical scoring constants.
func DefaultScoringConfig() *ScoringConfig {
	return &ScoringConfig{
		ExactAmountTolerance:     decimal.NewFromFloat(0.01),
		ExactAmountScore:         50,
		CloseAmountPercent:       5,
		CloseAmountScore:         30,
		NearAmountPercent:        10,
		NearAmountScore:          15,
		DateWindowDays:           10,
		DateScoreCap:             30,
		DateDecayPerDay:          3,
		DescriptionScorePerToken: 7,
		DescriptionScoreCap:      20,
		OpenStatusBonus:          5,
		MinScore:                 30,
		HighConfidenceScore:      70,
		MediumConfidenceScore:    50,
		MaxSuggestions:           5,
	}
}

// Validate checks the configuration for internal consistency.
func (c *ScoringConfig) Validate() error {
	if c.ExactAmountTolerance.IsNegative() {
		return fmt.Errorf("exact amount tolerance cannot be negative")
	}
	if c.CloseAmountPercent <= 0 || c.NearAmountPercent <= 0 {
		return fmt.Errorf("amount tolerance percentages must be positive")
	}
	if c.CloseAmountPercent > c.NearAmountPercent {
		return fmt.Errorf("close amount percent (%.1f) cannot exceed near amount percent (%.1f)",
			c.CloseAmountPercent, c.NearAmountPercent)
	}
	if c.DateWindowDays < 0 {
		return fmt.Errorf("date window days cannot be negative: %d", c.DateWindowDays)
	}
	if c.MinScore < 0 {
		return fmt.Errorf("minimum score cannot be negative: %f", c.MinScore)
	}
	if c.MediumConfidenceScore < c.MinScore || c.HighConfidenceScore < c.MediumConfidenceScore {
		return fmt.Errorf("confidence boundaries must satisfy min <= medium <= high")
	}
	if c.MaxSuggestions <= 0 {
		return fmt.Errorf("max suggestions must be positive: %d", c.MaxSuggestions)
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c *ScoringConfig) Clone() *ScoringConfig {
	if c == nil {
		return nil
	}
	copied := *c
	return &copied
}
