package sdcard

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lcdprint-go/pkg/errors"
	"lcdprint-go/pkg/header"
)

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func newCard(t *testing.T) (*Card, string) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b_part.gcode"), ";FLAVOR:UltiGCode\n;TIME:120\nG28\n")
	writeFile(t, filepath.Join(dir, "A_cube.GCODE"), "G28 ; home\nG1 X10\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "not printable")
	writeFile(t, filepath.Join(dir, ".hidden.gcode"), "G28\n")
	writeFile(t, filepath.Join(dir, "zeta", "inner.g"), "G28\n")
	writeFile(t, filepath.Join(dir, "Alpha", "x.gco"), "G28\n")

	c := New(dir)
	require.NoError(t, c.Init())
	return c, dir
}

func TestCardListing(t *testing.T) {
	c, _ := newCard(t)
	assert.True(t, c.Inserted())
	assert.True(t, c.Ready())
	assert.True(t, c.AtRoot())

	n, err := c.EntryCount()
	require.NoError(t, err)
	require.Equal(t, 4, n)

	want := []struct {
		name string
		dir  bool
	}{
		{"Alpha", true},
		{"zeta", true},
		{"A_cube.GCODE", false},
		{"b_part.gcode", false},
	}
	for i, w := range want {
		name, isDir, err := c.NameAt(i)
		require.NoError(t, err)
		assert.Equal(t, w.name, name)
		assert.Equal(t, w.dir, isDir)
	}

	_, _, err = c.NameAt(4)
	assert.True(t, errors.Is(err, errors.ErrStorageNotFound))
	assert.True(t, c.ErrorPending())
	c.ClearError()
	assert.False(t, c.ErrorPending())
}

func TestCardDirectories(t *testing.T) {
	c, _ := newCard(t)
	gen := c.Generation()

	require.NoError(t, c.ChDir("zeta"))
	assert.False(t, c.AtRoot())
	assert.Equal(t, "zeta", c.Dir())
	assert.Greater(t, c.Generation(), gen)

	n, err := c.EntryCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	name, _, err := c.NameAt(0)
	require.NoError(t, err)
	assert.Equal(t, "inner.g", name)

	require.NoError(t, c.UpDir())
	assert.True(t, c.AtRoot())

	assert.Error(t, c.ChDir("../etc"))
	assert.Error(t, c.ChDir("missing"))
	assert.True(t, c.ErrorPending())
}

func TestCardOpenAndReadLine(t *testing.T) {
	c, _ := newCard(t)
	f, err := c.Open("b_part.gcode")
	require.NoError(t, err)
	defer f.Close()

	flavor, err := header.DetectFlavor(f)
	require.NoError(t, err)
	assert.Equal(t, header.FlavorMachine, flavor)

	_, err = c.Open("missing.gcode")
	assert.True(t, errors.Is(err, errors.ErrStorageRead))
	assert.True(t, c.ErrorPending())
}

func TestFileReadLineBounds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "long.gcode")
	writeFile(t, path, strings.Repeat("x", 100)+"\r\nshort\nlast")

	f, err := openFile(path)
	require.NoError(t, err)
	defer f.Close()

	line, err := f.ReadLine(10)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 10), line, "over-long line cut, rest skipped")

	line, err = f.ReadLine(10)
	require.NoError(t, err)
	assert.Equal(t, "short", line)

	line, err = f.ReadLine(10)
	require.NoError(t, err)
	assert.Equal(t, "last", line)
	assert.Equal(t, f.Size(), f.Offset())

	_, err = f.ReadLine(10)
	assert.Equal(t, io.EOF, err)

	require.NoError(t, f.Close())
	require.NoError(t, f.Close())
}

func TestCardRemoval(t *testing.T) {
	c, dir := newCard(t)
	gen := c.Generation()

	require.NoError(t, os.RemoveAll(dir))
	c.Invalidate()
	assert.False(t, c.Inserted())
	assert.False(t, c.Ready())
	assert.Greater(t, c.Generation(), gen)

	err := c.Init()
	assert.True(t, errors.Is(err, errors.ErrStorageNotReady))
}

func TestCardNotReady(t *testing.T) {
	c := New(t.TempDir())
	_, err := c.EntryCount()
	assert.Error(t, err)
	_, err = c.Open("x.gcode")
	assert.Error(t, err)
}
