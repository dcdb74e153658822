package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRelevantEvent(t *testing.T) {
	w, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer w.Close()

	dir := t.TempDir()
	sub := filepath.Join(dir, "batch")
	require.NoError(t, os.Mkdir(sub, 0o755))

	log := zap.NewNop()
	tests := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{"document written", fsnotify.Event{Name: filepath.Join(dir, "a.xml"), Op: fsnotify.Write}, true},
		{"extension case", fsnotify.Event{Name: filepath.Join(dir, "a.XML"), Op: fsnotify.Create}, true},
		{"report written", fsnotify.Event{Name: filepath.Join(dir, "cte_nfes.txt"), Op: fsnotify.Write}, false},
		{"workbook written", fsnotify.Event{Name: filepath.Join(dir, "cte_nfes.xlsx"), Op: fsnotify.Create}, false},
		{"new directory", fsnotify.Event{Name: sub, Op: fsnotify.Create}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, relevantEvent(w, tt.ev, "xml", log))
		})
	}

	assert.Contains(t, w.WatchList(), sub)
}

func TestAddWatchRecursive(t *testing.T) {
	w, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer w.Close()

	dir := t.TempDir()
	deep := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(deep, 0o755))

	require.NoError(t, addWatchRecursive(w, dir))
	assert.ElementsMatch(t, []string{dir, filepath.Join(dir, "a"), deep}, w.WatchList())

	assert.Error(t, addWatchRecursive(w, filepath.Join(dir, "missing")))
}

func TestRunWatchStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	writeCTe(t, filepath.Join(cfg.InputDir, "a.xml"), k1, j1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	require.NoError(t, runWatch(ctx, cfg, &out, zap.NewNop()))
	assert.Contains(t, out.String(), "Watching <"+cfg.InputDir+">")
}
