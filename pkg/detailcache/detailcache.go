// Package detailcache keeps the parsed header of the most recently
// highlighted file and renders it as the browser's detail lines.
package detailcache

import (
	"fmt"
	"math"
	"time"

	"lcdprint-go/pkg/header"
	"lcdprint-go/pkg/progress"
)

// Source is the part of the card the cache reads from.
type Source interface {
	NameAt(i int) (name string, isDir bool, err error)
	Open(name string) (header.File, error)
	ClearError()
}

const none = -1

// Cache is a single-slot header cache keyed by browser row. Row 0 is the
// back row; row r shows listing entry r-1.
type Cache struct {
	src Source

	row        int
	dir        bool
	failed     bool
	failedTick uint64
	details    header.Details
}

// New returns an empty cache reading from src.
func New(src Source) *Cache {
	return &Cache{src: src, row: none, details: header.Defaults()}
}

// Row returns the row the cache holds, or -1.
func (c *Cache) Row() int {
	if c.failed {
		return none
	}
	return c.row
}

// Details returns the cached details and whether they are valid.
func (c *Cache) Details() (header.Details, bool) {
	if c.row == none || c.failed {
		return header.Defaults(), false
	}
	return c.details, true
}

// Invalidate empties the cache.
func (c *Cache) Invalidate() {
	c.row = none
	c.dir = false
	c.failed = false
	c.details = header.Defaults()
}

// Ensure loads the header for row unless it is already cached. A failed
// load is not retried within the same tick. It reports whether the
// header had to be read, which the caller counts as a cache miss.
func (c *Cache) Ensure(row int, tick uint64) (loaded bool, err error) {
	if row <= 0 {
		return false, nil
	}
	if c.row == row && (!c.failed || c.failedTick == tick) {
		return false, nil
	}

	c.Invalidate()
	c.row = row
	name, isDir, err := c.src.NameAt(row - 1)
	if err != nil {
		c.fail(tick)
		return true, err
	}
	if isDir {
		c.dir = true
		return true, nil
	}

	f, err := c.src.Open(name)
	if err != nil {
		c.fail(tick)
		return true, err
	}
	d, err := header.Parse(f)
	f.Close()
	if err != nil {
		c.fail(tick)
		return true, err
	}
	c.details = d
	return true, nil
}

func (c *Cache) fail(tick uint64) {
	c.src.ClearError()
	c.failed = true
	c.failedTick = tick
	c.details = header.Defaults()
}

// Render returns the two detail lines for the cached row. The first page
// shows the slicer time and material type, the second the filament
// length and nozzle size; pages alternate with the glow direction.
func (c *Cache) Render(g Glow, filamentDiameter float64) [2]string {
	switch {
	case c.row == none:
		return [2]string{}
	case c.dir:
		return [2]string{"Folder", ""}
	case c.failed || !c.details.HasTime():
		return [2]string{"No info available", ""}
	}

	if g.Rising() {
		return [2]string{
			"Time: " + progress.FormatDuration(time.Duration(c.details.EstimatedSeconds)*time.Second),
			c.details.MaterialType,
		}
	}
	return [2]string{
		"Material: " + FormatLength(FilamentLength(c.details.MaterialMM3, filamentDiameter)),
		fmt.Sprintf("Nozzle: %.2f", c.details.NozzleDiameter),
	}
}

// FilamentLength converts a material volume to millimetres of filament.
func FilamentLength(volumeMM3 uint32, diameter float64) float64 {
	if diameter <= 0 {
		return 0
	}
	r := diameter / 2
	return float64(volumeMM3) / (math.Pi * r * r)
}

// FormatLength renders millimetres as metres, with decimals below 10 m.
func FormatLength(mm float64) string {
	if mm < 10000 {
		return fmt.Sprintf("%.2fm", mm/1000)
	}
	return fmt.Sprintf("%dm", int(mm/1000))
}

// GlowMax is the top of the glow triangle.
const GlowMax = 127

// Glow is a triangle oscillator over 0..GlowMax. It paces the detail
// pages and the lamp's blink-on-done mode.
type Glow struct {
	level int
	up    bool
	step  int
}

// NewGlow returns a glow that moves step units per Step call.
func NewGlow(step int) Glow {
	if step <= 0 {
		step = 1
	}
	return Glow{up: true, step: step}
}

// Step advances the oscillator one tick.
func (g *Glow) Step() {
	if g.step == 0 {
		g.step = 1
	}
	if g.up {
		g.level += g.step
		if g.level >= GlowMax {
			g.level = GlowMax
			g.up = false
		}
		return
	}
	g.level -= g.step
	if g.level <= 0 {
		g.level = 0
		g.up = true
	}
}

// Level returns the current brightness, 0..GlowMax.
func (g Glow) Level() int { return g.level }

// Rising reports whether the level is increasing.
func (g Glow) Rising() bool { return g.up }
