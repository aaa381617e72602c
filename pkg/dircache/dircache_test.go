package dircache

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGet(t *testing.T) {
	c := New(6, 26)

	c.Put(3, "benchy.gcode", File)
	e, ok := c.Get(3)
	require.True(t, ok)
	assert.Equal(t, Entry{Index: 3, Name: "benchy", Kind: File}, e)

	c.Put(4, "parts.v2", Directory)
	e, ok = c.Get(4)
	require.True(t, ok)
	assert.Equal(t, "parts.v2", e.Name, "directories keep their dots")

	_, ok = c.Get(5)
	assert.False(t, ok)
}

func TestModuloEviction(t *testing.T) {
	c := New(6, 26)

	c.Put(1, "a.gcode", File)
	c.Put(7, "b.gcode", File)

	_, ok := c.Get(1)
	assert.False(t, ok, "slot 1 was overwritten by index 7")
	e, ok := c.Get(7)
	require.True(t, ok)
	assert.Equal(t, "b", e.Name)
}

func TestNames(t *testing.T) {
	c := New(4, 8)

	tests := []struct {
		in   string
		kind Kind
		want string
	}{
		{"cube.gcode", File, "cube"},
		{"my.cube.gcode", File, "my.cube"},
		{".hidden", File, ".hidden"},
		{"noext", File, "noext"},
		{"averyverylongname.gcode", File, "averyver"},
		{"ééééé.g", File, "éééé"},
		{"dir.d", Directory, "dir.d"},
	}
	for i, tt := range tests {
		c.Put(i, tt.in, tt.kind)
		e, ok := c.Get(i)
		require.True(t, ok, tt.in)
		assert.Equal(t, tt.want, e.Name, tt.in)
		assert.LessOrEqual(t, len(e.Name), 8)
	}
}

func TestInvalidate(t *testing.T) {
	c := New(6, 26)
	c.Put(2, "x.gcode", File)
	c.Put(3, "y.gcode", File)

	c.Invalidate(8)
	_, ok := c.Get(2)
	assert.True(t, ok, "invalidating another index in the slot is a no-op")

	c.Invalidate(2)
	_, ok = c.Get(2)
	assert.False(t, ok)

	c.SetCount(9)
	n, ok := c.Count()
	assert.True(t, ok)
	assert.Equal(t, 9, n)

	c.InvalidateAll()
	_, ok = c.Get(3)
	assert.False(t, ok)
	_, ok = c.Count()
	assert.False(t, ok)
}

func TestNegativeIndex(t *testing.T) {
	c := New(6, 26)
	c.Put(-1, "bad", File)
	_, ok := c.Get(-1)
	assert.False(t, ok)
	_, ok = c.Get(5)
	assert.False(t, ok)
}

func TestNewClamps(t *testing.T) {
	assert.Equal(t, DefaultSlots, New(0, 0).Slots())
	assert.Equal(t, MaxSlots, New(100, 26).Slots())
}

// A reference model of positional hashing: the most recent put to a slot
// wins and every other index mapping there reads as unset.
func TestAgainstModel(t *testing.T) {
	const slots = 5
	c := New(slots, 26)
	model := map[int]Entry{}
	rng := rand.New(rand.NewSource(1))

	for step := 0; step < 2000; step++ {
		i := rng.Intn(40)
		switch rng.Intn(10) {
		case 0:
			c.InvalidateAll()
			model = map[int]Entry{}
		default:
			kind := Kind(rng.Intn(2))
			name := fmt.Sprintf("n%d", step)
			c.Put(i, name, kind)
			model[i%slots] = Entry{Index: i, Name: name, Kind: kind}
		}

		for j := 0; j < 40; j++ {
			got, ok := c.Get(j)
			want, present := model[j%slots]
			if present && want.Index == j {
				require.True(t, ok, "step %d index %d", step, j)
				assert.Equal(t, want, got)
			} else {
				require.False(t, ok, "step %d index %d", step, j)
			}
		}
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	// "é" is two bytes; a cut through it drops the whole rune.
	assert.Equal(t, "caf", Truncate("café", 4))
	assert.Equal(t, "café", Truncate("café", 5))
	assert.Equal(t, "", Truncate("é", 1))
}
