// Package sdcard serves a directory tree as the printer's card: a sorted
// listing of printable files and folders, bounded line reads, a sticky
// error latch and a generation counter bumped on media changes.
package sdcard

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"lcdprint-go/pkg/errors"
	"lcdprint-go/pkg/header"
	"lcdprint-go/pkg/log"
)

// Printable lists the file extensions shown in the listing.
var Printable = []string{".gcode", ".g", ".gco"}

type dirEntry struct {
	name  string
	isDir bool
}

// Card is a virtual card rooted at a mount directory. It is safe for
// concurrent use; the media watcher invalidates it from its own goroutine.
type Card struct {
	mu      sync.Mutex
	root    string
	cwd     []string
	ready   bool
	entries []dirEntry
	listed  bool
	errored bool
	lastErr error

	gen    atomic.Uint64
	logger *log.Logger
}

// New returns a card for the mount directory root. The card is not
// ready until Init succeeds.
func New(root string) *Card {
	return &Card{root: filepath.Clean(root), logger: log.GetLogger("sdcard")}
}

// Root returns the mount directory.
func (c *Card) Root() string { return c.root }

// Inserted reports whether the mount directory exists.
func (c *Card) Inserted() bool {
	fi, err := os.Stat(c.root)
	return err == nil && fi.IsDir()
}

// Ready reports whether the card has been initialised.
func (c *Card) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Init mounts the card at its root directory.
func (c *Card) Init() error {
	if !c.Inserted() {
		return c.latch(errors.StorageNotReadyError(c.root))
	}
	c.mu.Lock()
	c.ready = true
	c.cwd = nil
	c.listed = false
	c.mu.Unlock()
	c.gen.Add(1)
	c.logger.Info("card mounted at %s", c.root)
	return nil
}

// AtRoot reports whether the current directory is the mount root.
func (c *Card) AtRoot() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cwd) == 0
}

// Dir returns the current directory relative to the root.
func (c *Card) Dir() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return filepath.Join(c.cwd...)
}

// ChDir enters the subdirectory name of the current directory.
func (c *Card) ChDir(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return c.latch(errors.StorageNotFoundError(name))
	}
	c.mu.Lock()
	path := filepath.Join(c.pathLocked(), name)
	c.mu.Unlock()

	fi, err := os.Stat(path)
	if err != nil || !fi.IsDir() {
		return c.latch(errors.StorageNotFoundError(name))
	}

	c.mu.Lock()
	c.cwd = append(c.cwd, name)
	c.listed = false
	c.mu.Unlock()
	c.gen.Add(1)
	return nil
}

// UpDir returns to the parent directory. At the root it does nothing.
func (c *Card) UpDir() error {
	c.mu.Lock()
	if len(c.cwd) > 0 {
		c.cwd = c.cwd[:len(c.cwd)-1]
		c.listed = false
	}
	c.mu.Unlock()
	c.gen.Add(1)
	return nil
}

// EntryCount returns the number of listing entries in the current
// directory.
func (c *Card) EntryCount() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.listLocked(); err != nil {
		return 0, err
	}
	return len(c.entries), nil
}

// NameAt returns listing entry i of the current directory.
func (c *Card) NameAt(i int) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.listLocked(); err != nil {
		return "", false, err
	}
	if i < 0 || i >= len(c.entries) {
		c.errored = true
		err := errors.StorageNotFoundError("entry").SetContext("index", i)
		c.lastErr = err
		return "", false, err
	}
	e := c.entries[i]
	return e.name, e.isDir, nil
}

// Open opens a file of the current directory for reading.
func (c *Card) Open(name string) (header.File, error) {
	f, err := c.OpenFile(name)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// OpenFile is Open returning the concrete file.
func (c *Card) OpenFile(name string) (*File, error) {
	c.mu.Lock()
	ready := c.ready
	path := filepath.Join(c.pathLocked(), name)
	c.mu.Unlock()

	if !ready {
		return nil, c.latch(errors.StorageNotReadyError(c.root))
	}
	if strings.ContainsAny(name, `/\`) {
		return nil, c.latch(errors.StorageNotFoundError(name))
	}
	f, err := openFile(path)
	if err != nil {
		return nil, c.latch(errors.StorageReadError(path, err))
	}
	f.latch = c.latchRead
	return f, nil
}

// ErrorPending reports whether a card error is latched.
func (c *Card) ErrorPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errored
}

// LastError returns the most recent latched error.
func (c *Card) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// ClearError releases the error latch.
func (c *Card) ClearError() {
	c.mu.Lock()
	c.errored = false
	c.mu.Unlock()
}

// Generation changes whenever the medium or the current directory changes.
func (c *Card) Generation() uint64 { return c.gen.Load() }

// Invalidate drops the listing after a media change. When the mount
// directory is gone the card becomes not ready.
func (c *Card) Invalidate() {
	inserted := c.Inserted()
	c.mu.Lock()
	c.listed = false
	if !inserted && c.ready {
		c.ready = false
		c.cwd = nil
		c.logger.Warn("card removed")
	}
	c.mu.Unlock()
	c.gen.Add(1)
}

func (c *Card) latch(err *errors.HostError) error {
	c.mu.Lock()
	c.errored = true
	c.lastErr = err
	c.mu.Unlock()
	c.logger.WithError(err).Debug("card error latched")
	return err
}

func (c *Card) latchRead(path string, err error) error {
	return c.latch(errors.StorageReadError(path, err))
}

func (c *Card) pathLocked() string {
	return filepath.Join(append([]string{c.root}, c.cwd...)...)
}

// listLocked reads the current directory: folders first, then printable
// files, each group sorted case-insensitively. Hidden entries are skipped.
func (c *Card) listLocked() error {
	if c.listed {
		return nil
	}
	if !c.ready {
		c.errored = true
		c.lastErr = errors.StorageNotReadyError(c.root)
		return c.lastErr
	}
	path := c.pathLocked()
	des, err := os.ReadDir(path)
	if err != nil {
		c.errored = true
		c.lastErr = errors.StorageReadError(path, err)
		return c.lastErr
	}

	entries := make([]dirEntry, 0, len(des))
	for _, de := range des {
		name := de.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if de.IsDir() {
			entries = append(entries, dirEntry{name: name, isDir: true})
		} else if printable(name) {
			entries = append(entries, dirEntry{name: name})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].isDir != entries[j].isDir {
			return entries[i].isDir
		}
		return strings.ToLower(entries[i].name) < strings.ToLower(entries[j].name)
	})
	c.entries = entries
	c.listed = true
	return nil
}

func printable(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, p := range Printable {
		if ext == p {
			return true
		}
	}
	return false
}
