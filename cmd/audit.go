// =============================================================================
// CTe/NFe Key Linker - Audit Command
// =============================================================================
//
// This file defines the 'audit' command, which runs the whole pipeline once.
//
// COMMAND USAGE:
//   ctenfe audit [flags]
//
// PROCESSING PIPELINE:
//   1. Discover files with the configured extension (recursive)
//   2. Keep only CTe documents (content pre-filter, optional)
//   3. Extract and validate keys from each document (concurrently)
//   4. Aggregate every document into one CTe -> NFe map
//   5. Write the text report (and the workbook, if requested)
//   6. Print summary counts and write the summary log
//
// =============================================================================

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ginjaninja78/cte-nfe-linker/internal/aggregator"
	"github.com/ginjaninja78/cte-nfe-linker/internal/apperrors"
	"github.com/ginjaninja78/cte-nfe-linker/internal/config"
	"github.com/ginjaninja78/cte-nfe-linker/internal/extractor"
	"github.com/ginjaninja78/cte-nfe-linker/internal/grammar"
	"github.com/ginjaninja78/cte-nfe-linker/internal/report"
	"github.com/ginjaninja78/cte-nfe-linker/internal/validation"
	"github.com/ginjaninja78/cte-nfe-linker/pkg/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

// runFlags are shared by the audit and watch commands.
type runFlags struct {
	dir        string
	extension  string
	output     string
	xlsx       string
	summaryDir string
	workers    int
	noFilter   bool
}

var auditFlags runFlags

// =============================================================================
// AUDIT COMMAND DEFINITION
// =============================================================================

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Link the NFe keys of every CTe document into a report",
	Long: `The audit command scans the input directory for XML files, keeps the CTe
documents, validates every CTe and NFe key they contain and writes one report
line per CTe key:

  cte: <CTe key>, <N> nfes: [<NFe key>, ...]

Processing stops at the first unreadable file or malformed key.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := auditFlags.apply(cmd, appConfig)
		if err != nil {
			return err
		}
		_, err = runAudit(cmd.Context(), cfg, cmd.OutOrStdout(), logger)
		return err
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditFlags.register(auditCmd)
}

// register attaches the run flags to a command.
func (f *runFlags) register(c *cobra.Command) {
	c.Flags().StringVarP(&f.dir, "dir", "d", "", "Directory scanned recursively for documents")
	c.Flags().StringVar(&f.extension, "ext", "", "File extension of candidate documents")
	c.Flags().StringVarP(&f.output, "output", "o", "", "Path of the text report")
	c.Flags().StringVar(&f.xlsx, "xlsx", "", "Also write the report as an XLSX workbook")
	c.Flags().StringVar(&f.summaryDir, "summary-dir", "", "Directory for processing summaries and error logs")
	c.Flags().IntVarP(&f.workers, "workers", "w", 0, "Files processed concurrently (0 = all CPUs)")
	c.Flags().BoolVar(&f.noFilter, "no-filter", false, "Process every matching file, not only cteProc/procEventoCTe documents")
}

// apply returns a copy of base with the flags that were set on c.
func (f *runFlags) apply(c *cobra.Command, base *config.MainConfig) (*config.MainConfig, error) {
	if base == nil {
		base = config.Default()
	}
	cfg := *base

	flags := c.Flags()
	if flags.Changed("dir") {
		cfg.InputDir = f.dir
	}
	if flags.Changed("ext") {
		cfg.Extension = f.extension
	}
	if flags.Changed("output") {
		cfg.OutputFile = f.output
	}
	if flags.Changed("xlsx") {
		cfg.XLSXFile = f.xlsx
	}
	if flags.Changed("summary-dir") {
		cfg.SummaryDir = f.summaryDir
	}
	if flags.Changed("workers") {
		cfg.MaxConcurrency = f.workers
	}
	if flags.Changed("no-filter") {
		enabled := !f.noFilter
		cfg.ContentFilter = &enabled
	}

	if err := config.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// runAudit runs the pipeline once and returns the run summary.
func runAudit(ctx context.Context, cfg *config.MainConfig, out io.Writer, log *zap.Logger) (summary utils.ProcessingSummary, err error) {
	summary = utils.NewProcessingSummary(cfg.InputDir)
	fm := utils.NewFileManager(cfg.InputDir, cfg.SummaryDir)

	if cfg.SummaryDir != "" {
		if err := fm.EnsureDirectories(); err != nil {
			return summary, err
		}
		defer func() {
			summary.EndTime = time.Now()
			writeRunLogs(summary, err, cfg.SummaryDir, log)
		}()
	}

	fmt.Fprintln(out, "=== CTe/NFe Key Linker ===")
	fmt.Fprintf(out, "Linking the NFe keys of every CTe document into <%s>\n\n", cfg.OutputFile)

	// =========================================================================
	// STEP 1: DISCOVER AND FILTER INPUT FILES
	// =========================================================================

	files, err := fm.DiscoverInputFilesRecursive(cfg.Extension)
	if err != nil {
		return summary, err
	}
	summary.DiscoveredXML = len(files)

	patterns := grammar.Default()
	if cfg.UseContentFilter() {
		files, err = utils.FilterTransportDocuments(ctx, files, patterns, cfg.MaxConcurrency)
		if err != nil {
			return summary, err
		}
	}
	summary.CTeDocuments = len(files)

	if len(files) == 0 {
		fmt.Fprintf(out, "Report <%s> was not generated.\n", cfg.OutputFile)
		return summary, apperrors.ErrNoInputFiles
	}

	fmt.Fprintf(out, "Found %d '.%s' file(s) with CTe information (cteProc|procEventoCTe).\n", len(files), cfg.Extension)
	log.Debug("input files selected",
		zap.String("dir", cfg.InputDir),
		zap.Int("discovered", summary.DiscoveredXML),
		zap.Int("selected", len(files)),
	)

	// =========================================================================
	// STEP 2: EXTRACT AND AGGREGATE
	// =========================================================================

	ext := extractor.New(patterns, extractor.WithLogger(log))
	agg := aggregator.New(ext, aggregator.Options{
		Workers: cfg.MaxConcurrency,
		Logger:  log,
	})

	links, err := agg.Aggregate(ctx, files)
	if err != nil {
		return summary, err
	}
	if len(links) == 0 {
		return summary, apperrors.ErrNoResults
	}

	// =========================================================================
	// STEP 3: WRITE REPORTS
	// =========================================================================

	counts, err := report.WriteFile(cfg.OutputFile, links)
	if err != nil {
		return summary, err
	}
	summary.ReportFile = cfg.OutputFile
	summary.TransportKeys = counts.TransportKeys
	summary.InvoiceKeys = counts.InvoiceKeys

	if cfg.XLSXFile != "" {
		if _, err := report.WriteXLSX(cfg.XLSXFile, links); err != nil {
			return summary, err
		}
		summary.XLSXFile = cfg.XLSXFile
	}

	// =========================================================================
	// STEP 4: PRINT SUMMARY
	// =========================================================================

	fmt.Fprintf(out, "CTe keys: %d\n", counts.TransportKeys)
	fmt.Fprintf(out, "NFe keys: %d\n", counts.InvoiceKeys)
	fmt.Fprintln(out, "Every NFe key was linked to its CTe documents.")
	fmt.Fprintf(out, "Report: <%s>\n", cfg.OutputFile)
	if summary.XLSXFile != "" {
		fmt.Fprintf(out, "Workbook: <%s>\n", summary.XLSXFile)
	}
	fmt.Fprintf(out, "Time elapsed: %s\n", time.Since(summary.StartTime))

	return summary, nil
}

// writeRunLogs writes the summary log, and an error log when the run failed.
// Failures here are logged, never returned: they must not mask runErr.
func writeRunLogs(summary utils.ProcessingSummary, runErr error, dir string, log *zap.Logger) {
	if path, err := utils.WriteSummaryLog(summary, dir); err != nil {
		log.Warn("summary log not written", zap.Error(err))
	} else {
		log.Debug("summary log written", zap.String("path", path))
	}

	if runErr == nil {
		return
	}
	if _, err := utils.WriteErrorLog([]utils.ErrorLogEntry{errorLogEntry(runErr)}, dir); err != nil {
		log.Warn("error log not written", zap.Error(err))
	}
}

// errorLogEntry maps a run failure to its structured log fields.
func errorLogEntry(err error) utils.ErrorLogEntry {
	entry := utils.ErrorLogEntry{
		Timestamp:    time.Now(),
		ErrorType:    "run",
		ErrorMessage: err.Error(),
	}

	var verr *validation.ValidationError
	var rerr *apperrors.FileReadError
	var werr *apperrors.FileWriteError

	switch {
	case errors.As(err, &verr):
		entry.ErrorType = "invalid_key"
		entry.FileName = verr.Path
		entry.Key = verr.Key
		entry.FoundCode = verr.FoundCode
		entry.ExpectedCode = verr.ExpectedCode
	case errors.As(err, &rerr):
		entry.ErrorType = "read"
		entry.FileName = rerr.Path
	case errors.As(err, &werr):
		entry.ErrorType = "write"
		entry.FileName = werr.Path
	case errors.Is(err, apperrors.ErrNoInputFiles), errors.Is(err, apperrors.ErrNoResults):
		entry.ErrorType = "no_results"
	}

	return entry
}
