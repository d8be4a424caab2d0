package cliconfig

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/bft-labs/lottery/internal/adapters/log"
)

func TestLevelWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "log_level = \"info\"\n")

	applied := make(chan string, 8)
	w := NewLevelWatcher(path, log.NewNoopLogger())
	w.apply = func(level string) error {
		applied <- level
		return nil
	}
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := os.WriteFile(path, []byte("log_level = \"debug\"\n"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	select {
	case got := <-applied:
		if got != "debug" {
			t.Errorf("applied level = %q, want debug", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("log level was not reloaded")
	}
}

func TestLevelWatcher_IgnoresOtherFiles(t *testing.T) {
	path := writeConfig(t, "log_level = \"info\"\n")

	applied := make(chan string, 8)
	w := NewLevelWatcher(path, log.NewNoopLogger())
	w.apply = func(level string) error {
		applied <- level
		return nil
	}
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	other := path + ".bak"
	if err := os.WriteFile(other, []byte("log_level = \"debug\"\n"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	select {
	case got := <-applied:
		t.Errorf("reloaded %q after writing an unrelated file", got)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestLevelWatcher_MissingDirectory(t *testing.T) {
	w := NewLevelWatcher("/nonexistent/lottery/config.toml", log.NewNoopLogger())
	if err := w.Start(context.Background()); err == nil {
		t.Error("Start() expected error for a missing directory")
	}
}
