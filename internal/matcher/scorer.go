package matcher

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/raulcamilotti-dev/bank-reconciliation/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Score computes the match score and human-readable reasons for one
// (transaction, candidate) pair. It is deterministic and has no side
// effects; the amount comparison uses the transaction's absolute value
// against the candidate amount.
func Score(tx *models.BankTransaction, entry *models.LedgerEntry, cfg *ScoringConfig) (float64, []string) {
	if cfg == nil {
		cfg = DefaultScoringConfig()
	}

	var score float64
	var reasons []string

	s, r := scoreAmount(tx, entry, cfg)
	score += s
	reasons = append(reasons, r...)

	s, r = scoreDate(tx.Date, entry.DueDate, cfg)
	score += s
	reasons = append(reasons, r...)

	s, r = scoreDescription(tx.Description, entry.Description, cfg)
	score += s
	reasons = append(reasons, r...)

	if entry.Status == models.EntryStatusPending || entry.Status == models.EntryStatusPartial {
		score += cfg.OpenStatusBonus
		reasons = append(reasons, "Lançamento em aberto")
	}

	return score, reasons
}

// Confidence buckets a score into its display tier.
func Confidence(score float64, cfg *ScoringConfig) models.ConfidenceTier {
	if cfg == nil {
		cfg = DefaultScoringConfig()
	}
	switch {
	case score >= cfg.HighConfidenceScore:
		return models.ConfidenceHigh
	case score >= cfg.MediumConfidenceScore:
		return models.ConfidenceMedium
	case score >= cfg.MinScore:
		return models.ConfidenceLow
	default:
		return models.ConfidenceNone
	}
}

// BuildMatch scores a candidate and wraps it as a suggestion, or returns nil
// when the score is below the minimum surfaced threshold.
func BuildMatch(tx *models.BankTransaction, entry *models.LedgerEntry, cfg *ScoringConfig) *models.ReconciliationMatch {
	if cfg == nil {
		cfg = DefaultScoringConfig()
	}

	score, reasons := Score(tx, entry, cfg)
	if score < cfg.MinScore {
		return nil
	}

	return &models.ReconciliationMatch{
		EntryID:     entry.ID,
		Table:       entry.Table,
		Description: entry.Description,
		Amount:      entry.Amount,
		DueDate:     entry.DueDate,
		Status:      entry.Status,
		Category:    entry.Category,
		Score:       score,
		Confidence:  Confidence(score, cfg),
		Reasons:     reasons,
	}
}

// RankCandidates scores every candidate, drops the ones below threshold,
// sorts by descending score and retains the configured top K.
func RankCandidates(tx *models.BankTransaction, candidates []*models.LedgerEntry, cfg *ScoringConfig) []*models.ReconciliationMatch {
	if cfg == nil {
		cfg = DefaultScoringConfig()
	}

	var matches []*models.ReconciliationMatch
	for _, entry := range candidates {
		if m := BuildMatch(tx, entry, cfg); m != nil {
			matches = append(matches, m)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > cfg.MaxSuggestions {
		matches = matches[:cfg.MaxSuggestions]
	}
	return matches
}

func scoreAmount(tx *models.BankTransaction, entry *models.LedgerEntry, cfg *ScoringConfig) (float64, []string) {
	diff := tx.AbsoluteAmount.Sub(entry.Amount).Abs()

	if diff.LessThanOrEqual(cfg.ExactAmountTolerance) {
		return cfg.ExactAmountScore, []string{"Valor exato"}
	}

	if entry.Amount.IsZero() {
		return 0, nil
	}

	pct, _ := diff.Div(entry.Amount.Abs()).Mul(decimalHundred).Float64()
	switch {
	case pct <= cfg.CloseAmountPercent:
		return cfg.CloseAmountScore, []string{fmt.Sprintf("Valor aproximado (diferença de %.1f%%)", pct)}
	case pct <= cfg.NearAmountPercent:
		return cfg.NearAmountScore, []string{fmt.Sprintf("Valor próximo (diferença de %.1f%%)", pct)}
	default:
		return 0, nil
	}
}

func scoreDate(txDate, dueDate time.Time, cfg *ScoringConfig) (float64, []string) {
	if txDate.IsZero() || dueDate.IsZero() {
		return 0, nil
	}

	days := daysApart(txDate, dueDate)
	if days > cfg.DateWindowDays {
		return 0, nil
	}

	points := math.Max(0, cfg.DateScoreCap-cfg.DateDecayPerDay*float64(days))
	if points == 0 {
		return 0, nil
	}

	if days == 0 {
		return points, []string{"Data coincidente"}
	}
	if days == 1 {
		return points, []string{"Data próxima (1 dia)"}
	}
	return points, []string{fmt.Sprintf("Data próxima (%d dias)", days)}
}

func scoreDescription(a, b string, cfg *ScoringConfig) (float64, []string) {
	tokensA := descriptionTokens(a)
	tokensB := descriptionTokens(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0, nil
	}

	var overlap []string
	for token := range tokensA {
		if _, ok := tokensB[token]; ok {
			overlap = append(overlap, token)
		}
	}
	if len(overlap) == 0 {
		return 0, nil
	}
	sort.Strings(overlap)

	points := math.Min(cfg.DescriptionScoreCap, cfg.DescriptionScorePerToken*float64(len(overlap)))
	return points, []string{"Descrição similar: " + strings.Join(overlap, ", ")}
}

// descriptionTokens normalizes a description for overlap comparison:
// lowercase, diacritics stripped, only alphanumeric runs kept, tokens of
// length two or less dropped.
func descriptionTokens(s string) map[string]struct{} {
	stripped, _, err := transform.String(diacriticsRemover, strings.ToLower(s))
	if err != nil {
		stripped = strings.ToLower(s)
	}

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, stripped)

	tokens := make(map[string]struct{})
	for _, token := range strings.Fields(cleaned) {
		if len(token) > 2 {
			tokens[token] = struct{}{}
		}
	}
	return tokens
}

// daysApart is the absolute calendar-day distance, ignoring time of day.
func daysApart(a, b time.Time) int {
	a = time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	b = time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return int(diff / (24 * time.Hour))
}

var (
	decimalHundred    = decimal.NewFromInt(100)
	diacriticsRemover = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)
