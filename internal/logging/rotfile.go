package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileName is the name of the active log file.
const FileName = "timsCompare.log"

// Defaults for the rotated log file.
const (
	DefaultMaxBytes = 5 << 20
	DefaultBackups  = 5
)

// RotatingFile is a zapcore.WriteSyncer that appends to dir/name and rotates
// it once it would exceed maxBytes. Rotated files are renamed name.1 through
// name.<backups>, the oldest being dropped.
type RotatingFile struct {
	dir      string
	name     string
	maxBytes int64
	backups  int

	mu      sync.Mutex
	f       *os.File
	curSize int64
}

// NewRotatingFile returns a rotating file. Non-positive limits select the
// defaults.
func NewRotatingFile(dir, name string, maxBytes int64, backups int) *RotatingFile {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if backups <= 0 {
		backups = DefaultBackups
	}
	return &RotatingFile{dir: dir, name: name, maxBytes: maxBytes, backups: backups}
}

// Path returns the path of the active file.
func (w *RotatingFile) Path() string {
	return filepath.Join(w.dir, w.name)
}

// Write appends p, rotating first when p would overflow the current file.
// A single entry larger than maxBytes is still written whole.
func (w *RotatingFile) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureOpen(); err != nil {
		return 0, err
	}
	if w.curSize > 0 && w.curSize+int64(len(p)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.f.Write(p)
	w.curSize += int64(n)
	return n, err
}

// Sync flushes the active file.
func (w *RotatingFile) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	return w.f.Sync()
}

// Close closes the active file.
func (w *RotatingFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

func (w *RotatingFile) ensureOpen() error {
	if w.f != nil {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(w.Path(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	w.f = f
	w.curSize = 0
	if st, err := f.Stat(); err == nil {
		w.curSize = st.Size()
	}
	return nil
}

func (w *RotatingFile) backup(i int) string {
	return fmt.Sprintf("%s.%d", w.Path(), i)
}

func (w *RotatingFile) rotate() error {
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("closing log file: %w", err)
	}
	w.f = nil

	_ = os.Remove(w.backup(w.backups))
	for i := w.backups - 1; i >= 1; i-- {
		if _, err := os.Stat(w.backup(i)); err == nil {
			if err := os.Rename(w.backup(i), w.backup(i+1)); err != nil {
				return fmt.Errorf("shifting log backup: %w", err)
			}
		}
	}
	if err := os.Rename(w.Path(), w.backup(1)); err != nil {
		return fmt.Errorf("rotating log file: %w", err)
	}
	return w.ensureOpen()
}
