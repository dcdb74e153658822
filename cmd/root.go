// =============================================================================
// CTe/NFe Key Linker - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI.
//
// COBRA CLI STRUCTURE:
//   rootCmd (ctenfe)
//   ├── auditCmd   (ctenfe audit)
//   ├── watchCmd   (ctenfe watch)
//   └── versionCmd (ctenfe version)
//
// The root command is responsible for:
//   1. Global flags (--config, --verbose)
//   2. Loading .env, the configuration file and environment overrides
//   3. Building the zap logger shared by every subcommand
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ginjaninja78/cte-nfe-linker/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the configuration file.
var cfgFile string

// verbose forces debug logging.
var verbose bool

// appConfig is loaded before any subcommand runs.
var appConfig *config.MainConfig

// logger is built before any subcommand runs.
var logger = zap.NewNop()

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "ctenfe",
	Short: "CTe/NFe Key Linker - link every NFe key to the CTe documents that reference it",
	Long: `ctenfe scans a directory tree for CTe XML documents (cteProc, procEventoCTe),
checks every 44-digit fiscal key they contain and writes a report linking each
CTe key to the NFe keys it references.

Keys are validated by their embedded document-type code: 57 for CTe keys and
55 for NFe keys. A malformed key stops the run and names the offending file.

Example Usage:
  ctenfe audit                         # Audit the current directory
  ctenfe audit --dir ./xml --xlsx links.xlsx
  ctenfe watch --dir ./xml             # Re-run whenever a document changes`,

	SilenceUsage:  true,
	SilenceErrors: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd == versionCmd {
			return nil
		}

		// A missing .env file is not an error.
		_ = godotenv.Load()

		cfg, err := config.LoadMainConfig(cfgFile, cmd.Flags().Changed("config"))
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		appConfig = cfg

		logger, err = newLogger(cfg.LogLevel, verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},

	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute runs the root command. It is called by main.main(). Interrupts
// cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yaml",
		"Path to the configuration file (optional unless set explicitly)",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable debug logging",
	)
}

// newLogger builds the console logger for the given level.
func newLogger(level string, debug bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if debug {
		lvl = zapcore.DebugLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
