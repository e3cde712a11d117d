// Package reporter renders a reconciliation session for humans and for
// downstream tooling.
//
// Supported output formats:
//   - Console: tabular output for terminal review
//   - JSON: structured output for programmatic consumption
//   - CSV: one line per statement transaction, for spreadsheets
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/raulcamilotti-dev/bank-reconciliation/internal/models"
	"github.com/raulcamilotti-dev/bank-reconciliation/internal/reconciler"
)

// OutputFormat selects how a session report is rendered.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported.
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds the rendering options.
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// IncludeSuggestions controls whether pending items list their ranked
	// candidate matches.
	IncludeSuggestions bool `json:"include_suggestions"`

	// IncludeResolved controls whether already-resolved items appear in
	// the per-transaction sections.
	IncludeResolved bool `json:"include_resolved"`

	// MaxReasons truncates the reason list shown per suggestion on the
	// console. Zero means no limit.
	MaxReasons int `json:"max_reasons"`

	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns the default rendering options.
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:             FormatConsole,
		IncludeSuggestions: true,
		IncludeResolved:    true,
		MaxReasons:         3,
		CSVDelimiter:       ',',
		CSVHeaders:         true,
	}
}

// Validate validates the report configuration.
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxReasons < 0 {
		return fmt.Errorf("max reasons cannot be negative: %d", c.MaxReasons)
	}
	return nil
}

// SessionReport is the complete renderable view of one import session.
type SessionReport struct {
	GeneratedAt time.Time                    `json:"generatedAt"`
	Import      *models.ReconciliationImport `json:"import,omitempty"`
	Statement   *statementInfo               `json:"statement,omitempty"`
	Summary     *reconciler.Summary          `json:"summary"`
	Items       []*models.ReconciliationItem `json:"items"`
	Warnings    []string                     `json:"warnings,omitempty"`
}

type statementInfo struct {
	BankID      string     `json:"bankId,omitempty"`
	AccountID   string     `json:"accountId,omitempty"`
	Currency    string     `json:"currency,omitempty"`
	PeriodStart *time.Time `json:"periodStart,omitempty"`
	PeriodEnd   *time.Time `json:"periodEnd,omitempty"`
}

// ReportGenerator renders session reports in the configured format.
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a generator with the given configuration. A nil
// configuration falls back to the defaults.
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &ReportGenerator{config: config}, nil
}

// Generate renders the session to the writer in the configured format.
func (rg *ReportGenerator) Generate(imp *models.ReconciliationImport, stmt *models.ParsedStatement, items []*models.ReconciliationItem, summary *reconciler.Summary, writer io.Writer) error {
	if summary == nil {
		summary = reconciler.Summarize(items)
	}
	report := &SessionReport{
		GeneratedAt: time.Now().UTC(),
		Import:      imp,
		Summary:     summary,
		Items:       rg.filterItems(items),
	}
	if stmt != nil {
		report.Statement = buildStatementInfo(stmt)
		report.Warnings = stmt.Warnings
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsole(report, writer)
	case FormatJSON:
		return rg.generateJSON(report, writer)
	case FormatCSV:
		return rg.generateCSV(report, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) filterItems(items []*models.ReconciliationItem) []*models.ReconciliationItem {
	if rg.config.IncludeResolved {
		return items
	}
	filtered := make([]*models.ReconciliationItem, 0, len(items))
	for _, item := range items {
		if !item.IsResolved() {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

func buildStatementInfo(stmt *models.ParsedStatement) *statementInfo {
	info := &statementInfo{
		BankID:    stmt.BankID,
		AccountID: stmt.AccountID,
		Currency:  stmt.Currency,
	}
	if !stmt.PeriodStart.IsZero() {
		start := stmt.PeriodStart
		info.PeriodStart = &start
	}
	if !stmt.PeriodEnd.IsZero() {
		end := stmt.PeriodEnd
		info.PeriodEnd = &end
	}
	return info
}

func (rg *ReportGenerator) generateConsole(report *SessionReport, writer io.Writer) error {
	fmt.Fprintf(writer, "RECONCILIATION REPORT\n")
	fmt.Fprintf(writer, "Generated: %s\n", report.GeneratedAt.Format(time.RFC3339))
	if report.Statement != nil {
		printStatementHeader(report.Statement, writer)
	}
	fmt.Fprintf(writer, "\n=== SUMMARY ===\n")
	printSummaryTable(report.Summary, writer)

	if len(report.Warnings) > 0 {
		fmt.Fprintf(writer, "\n=== WARNINGS ===\n")
		for _, w := range report.Warnings {
			fmt.Fprintf(writer, "  - %s\n", w)
		}
	}

	pending := make([]*models.ReconciliationItem, 0, len(report.Items))
	resolved := make([]*models.ReconciliationItem, 0, len(report.Items))
	for _, item := range report.Items {
		if item.IsResolved() {
			resolved = append(resolved, item)
		} else {
			pending = append(pending, item)
		}
	}

	if len(pending) > 0 {
		fmt.Fprintf(writer, "\n=== PENDING TRANSACTIONS ===\n")
		for _, item := range pending {
			rg.printPendingItem(item, writer)
		}
	}
	if rg.config.IncludeResolved && len(resolved) > 0 {
		fmt.Fprintf(writer, "\n=== RESOLVED TRANSACTIONS ===\n")
		for _, item := range resolved {
			printResolvedItem(item, writer)
		}
	}
	return nil
}

func printStatementHeader(info *statementInfo, writer io.Writer) {
	if info.BankID != "" || info.AccountID != "" {
		fmt.Fprintf(writer, "Account: %s / %s\n", info.BankID, info.AccountID)
	}
	if info.PeriodStart != nil && info.PeriodEnd != nil {
		fmt.Fprintf(writer, "Period: %s to %s\n",
			info.PeriodStart.Format("2006-01-02"), info.PeriodEnd.Format("2006-01-02"))
	}
}

func printSummaryTable(s *reconciler.Summary, writer io.Writer) {
	fmt.Fprintf(writer, "%-24s %d\n", "Total transactions:", s.Total)
	fmt.Fprintf(writer, "%-24s %d\n", "Pending:", s.Pending)
	fmt.Fprintf(writer, "%-24s %d\n", "Matched:", s.Matched)
	fmt.Fprintf(writer, "%-24s %d\n", "Created:", s.Created)
	fmt.Fprintf(writer, "%-24s %d\n", "Ignored:", s.Ignored)
	fmt.Fprintf(writer, "%-24s %d (%s)\n", "Credits:", s.CreditCount, s.CreditTotal.StringFixed(2))
	fmt.Fprintf(writer, "%-24s %d (%s)\n", "Debits:", s.DebitCount, s.DebitTotal.StringFixed(2))
}

func (rg *ReportGenerator) printPendingItem(item *models.ReconciliationItem, writer io.Writer) {
	tx := item.Transaction
	fmt.Fprintf(writer, "%s  %s  %10s  %s\n",
		tx.Date.Format("2006-01-02"), tx.Type, tx.Amount.StringFixed(2), tx.Description)

	if !rg.config.IncludeSuggestions {
		return
	}
	if len(item.Suggestions) == 0 {
		fmt.Fprintf(writer, "    no candidate matches\n")
		return
	}
	for _, match := range item.Suggestions {
		reasons := match.Reasons
		if rg.config.MaxReasons > 0 && len(reasons) > rg.config.MaxReasons {
			reasons = reasons[:rg.config.MaxReasons]
		}
		fmt.Fprintf(writer, "    [%5.1f %s] %s %s due %s (%s)\n",
			match.Score, match.Confidence, match.Table, match.Amount.StringFixed(2),
			match.DueDate.Format("2006-01-02"), strings.Join(reasons, "; "))
	}
}

func printResolvedItem(item *models.ReconciliationItem, writer io.Writer) {
	tx := item.Transaction
	detail := string(item.Status)
	if item.LinkedEntryID != "" {
		detail = fmt.Sprintf("%s -> %s/%s", item.Status, item.LinkedTable, item.LinkedEntryID)
	}
	fmt.Fprintf(writer, "%s  %s  %10s  %-30s  %s\n",
		tx.Date.Format("2006-01-02"), tx.Type, tx.Amount.StringFixed(2),
		truncate(tx.Description, 30), detail)
}

func (rg *ReportGenerator) generateJSON(report *SessionReport, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("failed to encode JSON report: %w", err)
	}
	return nil
}

func (rg *ReportGenerator) generateCSV(report *SessionReport, writer io.Writer) error {
	w := csv.NewWriter(writer)
	if rg.config.CSVDelimiter != 0 {
		w.Comma = rg.config.CSVDelimiter
	}

	if rg.config.CSVHeaders {
		if err := w.Write([]string{"fit_id", "date", "type", "amount", "description", "status", "entry_table", "entry_id", "top_score"}); err != nil {
			return fmt.Errorf("failed to write CSV header: %w", err)
		}
	}
	for _, item := range report.Items {
		tx := item.Transaction
		topScore := ""
		if len(item.Suggestions) > 0 {
			topScore = fmt.Sprintf("%.1f", item.Suggestions[0].Score)
		}
		row := []string{
			tx.FitID,
			tx.Date.Format("2006-01-02"),
			string(tx.Type),
			tx.Amount.StringFixed(2),
			tx.Description,
			string(item.Status),
			string(item.LinkedTable),
			item.LinkedEntryID,
			topScore,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
