package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestRotatingFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := NewRotatingFile(dir, "test.log", 10, 2)
	defer w.Close()

	for _, line := range []string{"aaaaaa\n", "bbbbbb\n", "cccccc\n", "dddddd\n"} {
		if _, err := w.Write([]byte(line)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	read := func(name string) string {
		t.Helper()
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("reading %s: %v", name, err)
		}
		return string(b)
	}
	if got := read("test.log"); got != "dddddd\n" {
		t.Errorf("active file = %q", got)
	}
	if got := read("test.log.1"); got != "cccccc\n" {
		t.Errorf("backup 1 = %q", got)
	}
	if got := read("test.log.2"); got != "bbbbbb\n" {
		t.Errorf("backup 2 = %q", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "test.log.3")); !os.IsNotExist(err) {
		t.Errorf("backup 3 should not exist, stat err = %v", err)
	}
}

func TestRotatingFileOversizedEntry(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := NewRotatingFile(dir, "big.log", 4, 1)
	defer w.Close()

	long := strings.Repeat("x", 20) + "\n"
	if _, err := w.Write([]byte(long)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	b, err := os.ReadFile(w.Path())
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != long {
		t.Errorf("oversized entry split or dropped: %q", b)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewWritesFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, closeFn := New(WithStderr(false), WithFile(dir, 0, 0), WithFields(map[string]any{"app": "test"}))
	logger.Info("dataset loaded")
	logger.Debug("hidden at info level")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatal(err)
	}
	got := string(b)
	if !strings.Contains(got, "dataset loaded") || !strings.Contains(got, `"app":"test"`) {
		t.Errorf("log file missing entry: %s", got)
	}
	if strings.Contains(got, "hidden") {
		t.Error("debug entry written at info level")
	}
}

func TestNewWithoutSinks(t *testing.T) {
	t.Parallel()

	logger, closeFn := New(WithStderr(false))
	logger.Info("discarded")
	if err := closeFn(); err != nil {
		t.Errorf("close: %v", err)
	}
}
