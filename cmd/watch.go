// =============================================================================
// CTe/NFe Key Linker - Watch Command
// =============================================================================
//
// This file defines the 'watch' command: run the audit, then run it again
// every time a document under the input directory changes.
//
// COMMAND USAGE:
//   ctenfe watch [flags]
//
// Events are debounced so that copying a batch of documents triggers one
// run. Only files with the configured extension and new directories
// trigger a run, so the reports written by the audit itself never do.
// A failing run is logged and watching continues.
//
// =============================================================================

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ginjaninja78/cte-nfe-linker/internal/apperrors"
	"github.com/ginjaninja78/cte-nfe-linker/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// watchDebounce is the quiet period after the last event before a run.
var watchDebounce = 500 * time.Millisecond

var watchFlags runFlags

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run the audit whenever a document changes",
	Long: `The watch command runs the audit once and then keeps watching the input
directory tree. Creating, changing, renaming or removing a document re-runs the
audit. Stop with Ctrl+C.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := watchFlags.apply(cmd, appConfig)
		if err != nil {
			return err
		}
		return runWatch(cmd.Context(), cfg, cmd.OutOrStdout(), logger)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchFlags.register(watchCmd)
}

// runWatch blocks until ctx is cancelled.
func runWatch(ctx context.Context, cfg *config.MainConfig, out io.Writer, log *zap.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch init failed: %w", err)
	}
	defer watcher.Close()

	if err := addWatchRecursive(watcher, cfg.InputDir); err != nil {
		return fmt.Errorf("watch failed: %w", err)
	}

	runOnce := func() {
		_, err := runAudit(ctx, cfg, out, log)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
		case errors.Is(err, apperrors.ErrNoInputFiles), errors.Is(err, apperrors.ErrNoResults):
			log.Warn("audit produced no report", zap.Error(err))
		default:
			log.Error("audit failed", zap.Error(err))
		}
	}

	runOnce()
	fmt.Fprintf(out, "\nWatching <%s> for changes...\n", cfg.InputDir)

	trigger := make(chan struct{}, 1)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevantEvent(watcher, ev, cfg.Extension, log) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				select {
				case trigger <- struct{}{}:
				default:
				}
			})

		case <-trigger:
			runOnce()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("watch error", zap.Error(err))
		}
	}
}

// relevantEvent reports whether ev should trigger a run. New directories are
// added to the watcher.
func relevantEvent(w *fsnotify.Watcher, ev fsnotify.Event, extension string, log *zap.Logger) bool {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := addWatchRecursive(w, ev.Name); err != nil {
				log.Warn("directory not watched", zap.String("path", ev.Name), zap.Error(err))
			}
			return true
		}
	}

	ext := strings.TrimPrefix(filepath.Ext(ev.Name), ".")
	return strings.EqualFold(ext, extension)
}

// addWatchRecursive watches root and every directory below it.
func addWatchRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
