// =============================================================================
// CTe/NFe Key Linker - Per-Document Extractor
// =============================================================================
//
// This module turns one XML document into a DocumentResult.
//
// EXTRACTION PIPELINE:
//   1. Read the whole file
//   2. Remove all whitespace
//   3. Collect valid CTe keys (code 57) into a set
//   4. Collect valid NFe keys (code 55) with their origin markers, skipping
//      matches whose opening and closing markers differ
//
// ERROR HANDLING:
//   - A read failure returns *apperrors.FileReadError
//   - The first malformed key returns *validation.ValidationError and the
//     document contributes nothing
//
// CONCURRENCY:
//   An Extractor holds only read-only state and may be shared by workers.
//
// =============================================================================

package extractor

import (
	"os"

	"github.com/ginjaninja78/cte-nfe-linker/internal/apperrors"
	"github.com/ginjaninja78/cte-nfe-linker/internal/grammar"
	"github.com/ginjaninja78/cte-nfe-linker/internal/types"
	"github.com/ginjaninja78/cte-nfe-linker/internal/validation"
	"go.uber.org/zap"
)

// ReadFileFunc loads a document's bytes.
type ReadFileFunc func(path string) ([]byte, error)

// Extractor extracts fiscal keys from documents.
type Extractor struct {
	patterns *grammar.Patterns
	readFile ReadFileFunc
	logger   *zap.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithReadFile replaces os.ReadFile as the document loader.
func WithReadFile(fn ReadFileFunc) Option {
	return func(e *Extractor) {
		e.readFile = fn
	}
}

// WithLogger sets the logger used for per-document debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Extractor. A nil patterns uses grammar.Default().
func New(patterns *grammar.Patterns, opts ...Option) *Extractor {
	if patterns == nil {
		patterns = grammar.Default()
	}
	e := &Extractor{
		patterns: patterns,
		readFile: os.ReadFile,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract reads the document at path and extracts its keys.
func (e *Extractor) Extract(path string) (types.DocumentResult, error) {
	data, err := e.readFile(path)
	if err != nil {
		return types.DocumentResult{}, &apperrors.FileReadError{Path: path, Err: err}
	}
	return e.ExtractText(path, string(data))
}

// ExtractText extracts keys from already loaded document text. path is used
// only for error reporting.
func (e *Extractor) ExtractText(path, content string) (types.DocumentResult, error) {
	text := e.patterns.Normalize(content)
	result := types.NewDocumentResult(path)

	for m := range e.patterns.TransportMatches(text) {
		if m.Key == "" {
			continue
		}
		key, err := validation.ValidateKey(path, m.Key, validation.CodeCTe)
		if err != nil {
			return types.DocumentResult{}, err
		}
		result.TransportKeys.Add(key)
	}

	for m := range e.patterns.InvoiceMatches(text) {
		origin, ok := m.Origin()
		if !ok || m.Key == "" {
			continue
		}
		key, err := validation.ValidateKey(path, m.Key, validation.CodeNFe)
		if err != nil {
			return types.DocumentResult{}, err
		}
		result.Invoices.Add(key, origin)
	}

	e.logger.Debug("document extracted",
		zap.String("path", path),
		zap.Int("cte_keys", len(result.TransportKeys)),
		zap.Int("nfe_keys", len(result.Invoices)),
	)

	return result, nil
}
