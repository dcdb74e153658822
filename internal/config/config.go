// =============================================================================
// CTe/NFe Key Linker - Configuration Module
// =============================================================================
//
// This module loads the application configuration.
//
// PRECEDENCE (lowest to highest):
//   1. Built-in defaults
//   2. config.yaml (optional unless given explicitly with --config)
//   3. Environment variables (CTENFE_*), including a .env file
//   4. Command-line flags (applied by the cmd package)
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// DEFAULTS
// =============================================================================

const (
	DefaultInputDir   = "."
	DefaultExtension  = "xml"
	DefaultOutputFile = "cte_nfes.txt"
	DefaultLogLevel   = "info"
)

// Environment variables that override the configuration file.
const (
	EnvInputDir       = "CTENFE_INPUT_DIR"
	EnvOutputFile     = "CTENFE_OUTPUT_FILE"
	EnvXLSXFile       = "CTENFE_XLSX_FILE"
	EnvSummaryDir     = "CTENFE_SUMMARY_DIR"
	EnvLogLevel       = "CTENFE_LOG_LEVEL"
	EnvMaxConcurrency = "CTENFE_MAX_CONCURRENCY"
	EnvContentFilter  = "CTENFE_CONTENT_FILTER"
)

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// MainConfig holds the application configuration.
type MainConfig struct {
	// =========================================================================
	// INPUT SETTINGS
	// =========================================================================

	// InputDir is scanned recursively for documents.
	// Default: "."
	InputDir string `yaml:"input_dir"`

	// Extension is the file extension of candidate documents, matched
	// case-insensitively and without the leading dot.
	// Default: "xml"
	Extension string `yaml:"extension"`

	// ContentFilter keeps only files containing a cteProc or procEventoCTe
	// element.
	// Default: true
	ContentFilter *bool `yaml:"content_filter"`

	// =========================================================================
	// OUTPUT SETTINGS
	// =========================================================================

	// OutputFile is the text report.
	// Default: "cte_nfes.txt"
	OutputFile string `yaml:"output_file"`

	// XLSXFile, when set, also writes the report as a workbook.
	XLSXFile string `yaml:"xlsx_file"`

	// SummaryDir, when set, receives a processing summary per run and an
	// error log on failure.
	SummaryDir string `yaml:"summary_dir"`

	// =========================================================================
	// LOGGING AND PROCESSING
	// =========================================================================

	// LogLevel is one of "debug", "info", "warn", "error".
	// Default: "info"
	LogLevel string `yaml:"log_level"`

	// MaxConcurrency is the number of files processed at once.
	// 0 uses every available CPU.
	MaxConcurrency int `yaml:"max_concurrency"`
}

// UseContentFilter reports whether the content pre-filter is enabled.
func (c *MainConfig) UseContentFilter() bool {
	return c.ContentFilter == nil || *c.ContentFilter
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// Default returns the configuration used when no file is present.
func Default() *MainConfig {
	var config MainConfig
	applyMainConfigDefaults(&config)
	return &config
}

// LoadMainConfig loads the configuration from a YAML file.
//
// PARAMETERS:
//   - configPath: The path to the configuration file.
//   - required: When false, a missing file yields the defaults.
//
// RETURNS:
//   - A pointer to the MainConfig struct, with environment overrides applied.
//   - An error if the file cannot be read or parsed, or is invalid.
func LoadMainConfig(configPath string, required bool) (*MainConfig, error) {
	var config MainConfig

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !required:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := applyEnvOverrides(&config, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	applyMainConfigDefaults(&config)

	if err := validateOptions(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyMainConfigDefaults sets default values for any unset option.
func applyMainConfigDefaults(config *MainConfig) {
	if config.InputDir == "" {
		config.InputDir = DefaultInputDir
	}
	if config.Extension == "" {
		config.Extension = DefaultExtension
	}
	config.Extension = strings.TrimPrefix(config.Extension, ".")
	if config.OutputFile == "" {
		config.OutputFile = DefaultOutputFile
	}
	if config.LogLevel == "" {
		config.LogLevel = DefaultLogLevel
	}
}

// applyEnvOverrides copies CTENFE_* variables over the file values.
func applyEnvOverrides(config *MainConfig, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		EnvInputDir:   &config.InputDir,
		EnvOutputFile: &config.OutputFile,
		EnvXLSXFile:   &config.XLSXFile,
		EnvSummaryDir: &config.SummaryDir,
		EnvLogLevel:   &config.LogLevel,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup(EnvMaxConcurrency); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxConcurrency, err)
		}
		config.MaxConcurrency = n
	}

	if v, ok := lookup(EnvContentFilter); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvContentFilter, err)
		}
		config.ContentFilter = &b
	}

	return nil
}

// Validate checks the final configuration, after command-line flags have
// been applied: option values and the input directory.
func Validate(config *MainConfig) error {
	if err := validateOptions(config); err != nil {
		return err
	}

	info, err := os.Stat(config.InputDir)
	if err != nil {
		return fmt.Errorf("input_dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("input_dir %s is not a directory", config.InputDir)
	}

	return nil
}

// validateOptions checks values that do not depend on the filesystem.
func validateOptions(config *MainConfig) error {
	switch config.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", config.LogLevel)
	}

	if config.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency must not be negative, got %d", config.MaxConcurrency)
	}

	return nil
}
