package sdcard

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherInvalidatesOnChange(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "card")
	writeFile(t, filepath.Join(root, "a.gcode"), "G28\n")

	c := New(root)
	require.NoError(t, c.Init())
	n, err := c.EntryCount()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	w, err := NewWatcher(c)
	require.NoError(t, err)
	w.SetDebounce(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	gen := c.Generation()
	// Give the watcher time to register before the first event.
	time.Sleep(50 * time.Millisecond)
	writeFile(t, filepath.Join(root, "b.gcode"), "G28\n")

	assert.Eventually(t, func() bool { return c.Generation() > gen }, 2*time.Second, 10*time.Millisecond)
	n, err = c.EntryCount()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, os.RemoveAll(root))
	assert.Eventually(t, func() bool { return !c.Ready() }, 2*time.Second, 10*time.Millisecond)
}
