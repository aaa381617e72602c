// Log file rotation for the daemon
//
// Size-based rotation with numbered backups: app.log, app.log.1, app.log.2.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// RotatingFileWriter implements io.Writer with automatic file rotation.
type RotatingFileWriter struct {
	mu          sync.Mutex
	filename    string
	maxSize     int64
	maxBackups  int
	currentSize int64
	file        *os.File
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	// Filename is the path to the log file.
	Filename string

	// MaxSize is the maximum size in megabytes before rotation.
	// Default is 10 MB.
	MaxSize int

	// MaxBytes overrides MaxSize when positive.
	MaxBytes int64

	// MaxBackups is the number of rotated files kept. Default is 5.
	MaxBackups int
}

// NewRotatingFileWriter creates a new rotating file writer.
func NewRotatingFileWriter(config RotationConfig) (*RotatingFileWriter, error) {
	if config.Filename == "" {
		return nil, fmt.Errorf("filename is required")
	}

	maxSize := config.MaxBytes
	if maxSize <= 0 {
		mb := config.MaxSize
		if mb <= 0 {
			mb = 10
		}
		maxSize = int64(mb) * 1024 * 1024
	}

	maxBackups := config.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 5
	}

	w := &RotatingFileWriter{
		filename:   config.Filename,
		maxSize:    maxSize,
		maxBackups: maxBackups,
	}
	if err := w.openFile(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingFileWriter) openFile() error {
	if err := os.MkdirAll(filepath.Dir(w.filename), 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(w.filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.file = f
	w.currentSize = info.Size()
	return nil
}

// Write implements io.Writer. A single write larger than the limit still
// lands in one file.
func (w *RotatingFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentSize > 0 && w.currentSize+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log file: %w", err)
		}
	}
	n, err := w.file.Write(p)
	w.currentSize += int64(n)
	return n, err
}

// backupName returns the path of the n-th backup.
func (w *RotatingFileWriter) backupName(n int) string {
	return fmt.Sprintf("%s.%d", w.filename, n)
}

// rotate shifts app.log.N-1 to app.log.N, drops the oldest, and reopens.
func (w *RotatingFileWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close current file: %w", err)
	}
	os.Remove(w.backupName(w.maxBackups))
	for n := w.maxBackups - 1; n >= 1; n-- {
		src := w.backupName(n)
		if _, err := os.Stat(src); err == nil {
			os.Rename(src, w.backupName(n+1))
		}
	}
	if err := os.Rename(w.filename, w.backupName(1)); err != nil {
		w.openFile()
		return fmt.Errorf("rename log file: %w", err)
	}
	return w.openFile()
}

// Close closes the rotating file writer.
func (w *RotatingFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}

// CurrentSize returns the current file size.
func (w *RotatingFileWriter) CurrentSize() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentSize
}

// Filename returns the current log filename.
func (w *RotatingFileWriter) Filename() string {
	return w.filename
}

// NewConsoleAndFileLogger creates a logger writing to stderr and to a
// rotating file. Colors are disabled since both sinks share one encoder.
func NewConsoleAndFileLogger(prefix string, config RotationConfig) (*Logger, *RotatingFileWriter, error) {
	fileWriter, err := NewRotatingFileWriter(config)
	if err != nil {
		return nil, nil, err
	}
	logger := New(prefix)
	logger.SetWriter(zerolog.MultiLevelWriter(os.Stderr, fileWriter))
	logger.SetColorize(false)
	return logger, fileWriter, nil
}

var _ io.WriteCloser = (*RotatingFileWriter)(nil)
