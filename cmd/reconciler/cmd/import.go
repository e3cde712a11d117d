package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/raulcamilotti-dev/bank-reconciliation/cmd/reconciler/config"
	"github.com/raulcamilotti-dev/bank-reconciliation/internal/gateway"
	"github.com/raulcamilotti-dev/bank-reconciliation/internal/models"
	"github.com/raulcamilotti-dev/bank-reconciliation/internal/ofx"
	"github.com/raulcamilotti-dev/bank-reconciliation/internal/reconciler"
	"github.com/raulcamilotti-dev/bank-reconciliation/internal/reporter"
	"github.com/raulcamilotti-dev/bank-reconciliation/pkg/errors"
)

// Flags for the import command
var (
	statementFile      string
	tenantID           string
	databasePath       string
	outputFormat       string
	outputFile         string
	actor              string
	autoMatchThreshold float64
	maxSuggestions     int
)

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a bank statement and reconcile its transactions",
	Long: `Import parses an OFX bank statement file, matches each transaction
against the tenant's open receivables and payables and reports the session.

Transactions resolved in a previous import keep their prior resolution and
are never rescored. With --auto-match-threshold, suggestions scoring at or
above the threshold are matched automatically.

Examples:
  # Review suggestions without resolving anything
  reconciler import --file extrato.ofx --tenant acme

  # Automatically match high-confidence suggestions
  reconciler import --file extrato.ofx --tenant acme --auto-match-threshold 70

  # Structured output to a file
  reconciler import --file extrato.ofx --tenant acme --format json --output report.json`,

	PreRunE: validateImportFlags,
	RunE:    runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVarP(&statementFile, "file", "i", "", "path to the OFX statement file (required)")
	importCmd.Flags().StringVarP(&tenantID, "tenant", "t", "", "tenant identifier (required)")
	importCmd.Flags().StringVar(&databasePath, "db", "", "path to the SQLite database (default: reconciler.db)")

	importCmd.Flags().StringVarP(&outputFormat, "format", "f", "console", "output format: console, json, csv")
	importCmd.Flags().StringVarP(&outputFile, "output", "o", "", "output file path (default: stdout)")

	importCmd.Flags().StringVar(&actor, "actor", "", "actor recorded on resolutions")
	importCmd.Flags().Float64Var(&autoMatchThreshold, "auto-match-threshold", 0, "automatically match suggestions scoring at or above this value (0 disables)")
	importCmd.Flags().IntVar(&maxSuggestions, "max-suggestions", 0, "ranked suggestions kept per transaction (0 uses the default)")

	importCmd.MarkFlagRequired("file")
	importCmd.MarkFlagRequired("tenant")

	viper.BindPFlag("file", importCmd.Flags().Lookup("file"))
	viper.BindPFlag("tenant", importCmd.Flags().Lookup("tenant"))
	viper.BindPFlag("db", importCmd.Flags().Lookup("db"))
	viper.BindPFlag("format", importCmd.Flags().Lookup("format"))
	viper.BindPFlag("output", importCmd.Flags().Lookup("output"))
	viper.BindPFlag("actor", importCmd.Flags().Lookup("actor"))
	viper.BindPFlag("auto-match-threshold", importCmd.Flags().Lookup("auto-match-threshold"))
	viper.BindPFlag("max-suggestions", importCmd.Flags().Lookup("max-suggestions"))
}

func validateImportFlags(cmd *cobra.Command, args []string) error {
	statementFile = viper.GetString("file")
	tenantID = viper.GetString("tenant")
	outputFormat = viper.GetString("format")
	outputFile = viper.GetString("output")
	actor = viper.GetString("actor")
	autoMatchThreshold = viper.GetFloat64("auto-match-threshold")
	maxSuggestions = viper.GetInt("max-suggestions")

	if statementFile == "" {
		return fmt.Errorf("file is required")
	}
	if tenantID == "" {
		return fmt.Errorf("tenant is required")
	}
	if autoMatchThreshold < 0 {
		return fmt.Errorf("auto-match-threshold cannot be negative")
	}

	info, err := os.Stat(statementFile)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, statementFile, err)
	}
	if err != nil {
		return errors.FileError(errors.CodeFileUnreadable, statementFile, err)
	}
	if info.IsDir() {
		return fmt.Errorf("statement path is a directory, expected a file: %s", statementFile)
	}

	if !reporter.OutputFormat(outputFormat).IsValid() {
		return fmt.Errorf("invalid output format %q. Valid formats: console, json, csv", outputFormat)
	}

	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("output directory does not exist: %s", dir)
			}
		}
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	scoring, err := config.CreateScoringConfig(maxSuggestions)
	if err != nil {
		return err
	}
	reportConfig, err := config.CreateReportConfig(outputFormat)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(statementFile)
	if err != nil {
		return errors.FileError(errors.CodeFileUnreadable, statementFile, err)
	}

	stmt := ofx.NewParser().Parse(string(raw))

	store, err := gateway.OpenSQLite(config.DatabasePath(viper.GetString("db")))
	if err != nil {
		return err
	}
	defer store.Close()

	orchestrator := reconciler.NewOrchestrator(store, scoring)

	items, err := orchestrator.BuildItems(ctx, tenantID, stmt)
	if err != nil {
		return err
	}

	imp, err := orchestrator.RecordImport(ctx, tenantID, filepath.Base(statementFile), stmt, actor)
	if err != nil {
		return err
	}

	if autoMatchThreshold > 0 {
		autoMatch(ctx, orchestrator, imp, items)
	}

	if err := orchestrator.RefreshReconciledCount(ctx, imp); err != nil {
		return err
	}

	writer, closeWriter, err := openOutput(outputFile)
	if err != nil {
		return err
	}
	defer closeWriter()

	generator, err := reporter.NewReportGenerator(reportConfig)
	if err != nil {
		return err
	}
	return generator.Generate(imp, stmt, items, reconciler.Summarize(items), writer)
}

// autoMatch resolves every pending item whose top suggestion clears the
// threshold. Failures are reported on stderr and leave the item pending.
func autoMatch(ctx context.Context, orchestrator *reconciler.Orchestrator, imp *models.ReconciliationImport, items []*models.ReconciliationItem) {
	for _, item := range items {
		if item.IsResolved() || len(item.Suggestions) == 0 {
			continue
		}
		top := item.Suggestions[0]
		if top.Score < autoMatchThreshold {
			continue
		}
		result := orchestrator.Match(ctx, imp.TenantID, imp.ID, item, top, actor)
		if !result.Success {
			fmt.Fprintf(os.Stderr, "auto-match failed for %s: %s\n",
				item.Transaction.FitID, result.Error)
		}
	}
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { f.Close() }, nil
}
