// =============================================================================
// CTe/NFe Key Linker - File Manager Utility
// =============================================================================
//
// This module provides the file handling around the key pipeline:
//   - Recursive file discovery by extension
//   - Content pre-filter (keep only CTe documents)
//   - Error log generation
//   - Processing summary generation
//
// Reading and writing the documents themselves is done by the extractor and
// the report formatter.
//
// =============================================================================

package utils

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/ginjaninja78/cte-nfe-linker/internal/apperrors"
	"github.com/ginjaninja78/cte-nfe-linker/internal/grammar"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager handles file discovery for a run.
type FileManager struct {
	// InputDir is the root directory scanned for documents.
	InputDir string

	// OutputDir receives summary and error logs.
	OutputDir string
}

// NewFileManager creates a new FileManager with the specified directories.
func NewFileManager(inputDir, outputDir string) *FileManager {
	return &FileManager{
		InputDir:  inputDir,
		OutputDir: outputDir,
	}
}

// EnsureDirectories creates the output directory if it doesn't exist.
func (fm *FileManager) EnsureDirectories() error {
	if fm.OutputDir == "" {
		return nil
	}
	if err := os.MkdirAll(fm.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", fm.OutputDir, err)
	}
	return nil
}

// =============================================================================
// FILE DISCOVERY
// =============================================================================

// DiscoverInputFilesRecursive scans the input directory recursively.
//
// PARAMETERS:
//   - extension: The file extension to match, with or without the dot
//     (e.g. "xml"). Matching is case-insensitive. Empty matches every file.
//
// RETURNS:
//   - The matching regular files, sorted.
//   - An error if the directory cannot be walked.
func (fm *FileManager) DiscoverInputFilesRecursive(extension string) ([]string, error) {
	var files []string
	want := strings.ToLower(strings.TrimPrefix(extension, "."))

	err := filepath.WalkDir(fm.InputDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.Type().IsRegular() {
			return nil
		}

		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
		if want == "" || ext == want {
			files = append(files, path)
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to walk input directory: %w", err)
	}

	slices.Sort(files)
	return files, nil
}

// FilterTransportDocuments keeps the paths whose content contains a CTe
// document marker. Files are read in parallel; the first read failure aborts
// the filter with a *apperrors.FileReadError.
//
// PARAMETERS:
//   - ctx: Cancels the filter between files.
//   - paths: Candidate files.
//   - patterns: The grammar used for the marker check.
//   - workers: Parallel reads; <= 0 uses runtime.GOMAXPROCS(0).
//
// RETURNS:
//   - The retained paths, in input order.
func FilterTransportDocuments(ctx context.Context, paths []string, patterns *grammar.Patterns, workers int) ([]string, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	keep := make([]bool, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, path := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				return &apperrors.FileReadError{Path: path, Err: err}
			}
			keep[i] = patterns.IsTransportDocument(string(data))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result []string
	for i, path := range paths {
		if keep[i] {
			result = append(result, path)
		}
	}
	return result, nil
}

// =============================================================================
// ERROR LOG GENERATION
// =============================================================================

// ErrorLogEntry represents a single error log entry.
type ErrorLogEntry struct {
	Timestamp    time.Time
	FileName     string
	ErrorType    string
	ErrorMessage string
	Key          string
	FoundCode    string
	ExpectedCode string
}

// WriteErrorLog writes error entries to a log file.
//
// PARAMETERS:
//   - entries: The error entries to write.
//   - outputDir: The directory to write the log file.
//
// RETURNS:
//   - The path to the error log file ("" when there is nothing to write).
//   - An error if writing fails.
func WriteErrorLog(entries []ErrorLogEntry, outputDir string) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}

	timestamp := time.Now().Format("20060102_150405")
	logPath := filepath.Join(outputDir, fmt.Sprintf("error_log_%s.txt", timestamp))

	file, err := os.Create(logPath)
	if err != nil {
		return "", &apperrors.FileWriteError{Path: logPath, Err: err}
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	fmt.Fprintf(writer, "CTe/NFe Key Linker - Error Log\n"+
		"Generated: %s\n"+
		"Total Errors: %d\n"+
		"================================================================================\n\n",
		time.Now().Format("2006-01-02 15:04:05"),
		len(entries))

	for i, entry := range entries {
		fmt.Fprintf(writer, "Error #%d\n"+
			"  Timestamp:      %s\n"+
			"  File:           %s\n"+
			"  Error Type:     %s\n"+
			"  Message:        %s\n",
			i+1,
			entry.Timestamp.Format("2006-01-02 15:04:05"),
			entry.FileName,
			entry.ErrorType,
			entry.ErrorMessage)

		if entry.Key != "" {
			fmt.Fprintf(writer, "  Key:            %s\n", entry.Key)
		}
		if entry.FoundCode != "" || entry.ExpectedCode != "" {
			fmt.Fprintf(writer, "  Code:           %s (expected %s)\n", entry.FoundCode, entry.ExpectedCode)
		}
		writer.WriteString("\n")
	}

	writer.WriteString("================================================================================\n" +
		"End of Error Log\n")

	if err := writer.Flush(); err != nil {
		return "", &apperrors.FileWriteError{Path: logPath, Err: err}
	}

	return logPath, nil
}

// =============================================================================
// PROCESSING SUMMARY
// =============================================================================

// ProcessingSummary contains summary information about a run.
type ProcessingSummary struct {
	// RunID identifies the run; NewProcessingSummary assigns a random UUID.
	RunID         string
	StartTime     time.Time
	EndTime       time.Time
	InputDir      string
	DiscoveredXML int
	CTeDocuments  int
	TransportKeys int
	InvoiceKeys   int
	ReportFile    string
	XLSXFile      string
}

// NewProcessingSummary starts a summary for a run beginning now.
func NewProcessingSummary(inputDir string) ProcessingSummary {
	return ProcessingSummary{
		RunID:     uuid.New().String(),
		StartTime: time.Now(),
		InputDir:  inputDir,
	}
}

// WriteSummaryLog writes a processing summary to a log file.
//
// PARAMETERS:
//   - summary: The processing summary.
//   - outputDir: The directory to write the summary file.
//
// RETURNS:
//   - The path to the summary file.
//   - An error if writing fails.
func WriteSummaryLog(summary ProcessingSummary, outputDir string) (string, error) {
	timestamp := summary.StartTime.Format("20060102_150405")
	summaryPath := filepath.Join(outputDir, fmt.Sprintf("processing_summary_%s_%s.txt", timestamp, shortID(summary.RunID)))

	file, err := os.Create(summaryPath)
	if err != nil {
		return "", &apperrors.FileWriteError{Path: summaryPath, Err: err}
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	fmt.Fprintf(writer, "CTe/NFe Key Linker - Processing Summary\n"+
		"================================================================================\n\n"+
		"Run Information:\n"+
		"  Run ID:         %s\n"+
		"  Start Time:     %s\n"+
		"  End Time:       %s\n"+
		"  Duration:       %s\n"+
		"  Input Dir:      %s\n\n"+
		"Statistics:\n"+
		"  XML Files:          %d\n"+
		"  CTe Documents:      %d\n"+
		"  CTe Keys:           %d\n"+
		"  NFe Keys:           %d\n\n"+
		"Output:\n"+
		"  Report:         %s\n",
		summary.RunID,
		summary.StartTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Sub(summary.StartTime).String(),
		summary.InputDir,
		summary.DiscoveredXML,
		summary.CTeDocuments,
		summary.TransportKeys,
		summary.InvoiceKeys,
		summary.ReportFile)

	if summary.XLSXFile != "" {
		fmt.Fprintf(writer, "  Workbook:       %s\n", summary.XLSXFile)
	}

	writer.WriteString("\n================================================================================\n" +
		"End of Summary\n")

	if err := writer.Flush(); err != nil {
		return "", &apperrors.FileWriteError{Path: summaryPath, Err: err}
	}

	return summaryPath, nil
}

// shortID returns the first block of a UUID for use in file names.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
