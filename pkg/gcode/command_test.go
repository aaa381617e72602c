package gcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	assert.Nil(t, Parse(""))
	assert.Nil(t, Parse("   ; only a comment"))
	assert.Nil(t, Parse("(paren comment)"))

	c := Parse("g1 f1500 X10.5 y-2 ; move")
	require.NotNil(t, c)
	assert.Equal(t, "G1", c.Name)
	x, ok := c.Float("X")
	assert.True(t, ok)
	assert.Equal(t, 10.5, x)
	assert.Equal(t, -2.0, c.FloatOr("Y", 0))
	assert.Equal(t, 1500.0, c.FloatOr("F", 0))
	assert.Equal(t, 7.0, c.FloatOr("Z", 7))

	c = Parse("SET_LED VALUE=0.5")
	require.NotNil(t, c)
	assert.Equal(t, "0.5", c.Args["VALUE"])
}

func TestAxes(t *testing.T) {
	x, y, z := Parse("G28").Axes()
	assert.True(t, x && y && z)

	x, y, z = Parse("G28 X0 Y0").Axes()
	assert.True(t, x)
	assert.True(t, y)
	assert.False(t, z)

	x, y, z = Parse("G28 Z").Axes()
	assert.False(t, x || y)
	assert.True(t, z)
}

func TestPositionTracking(t *testing.T) {
	p := NewPosition()
	assert.Equal(t, DefaultFeedrate, p.Feedrate)

	assert.True(t, p.Apply(Parse("G1 F1200 X10 Y20 Z0.3 E1")))
	assert.Equal(t, [4]float64{10, 20, 0.3, 1}, p.Pos)
	assert.Equal(t, 20.0, p.Feedrate)
	assert.False(t, p.Apply(Parse("G1 X10")), "no motion")

	p.Apply(Parse("G91"))
	assert.Equal(t, [4]float64{15, 20, 1.3, 1}, p.Target(Parse("G1 X5 Z1")))
	p.Apply(Parse("G90"))

	p.Apply(Parse("M83"))
	p.Apply(Parse("G1 E2"))
	assert.Equal(t, 3.0, p.Pos[3])

	p.Apply(Parse("G92 E0"))
	assert.Zero(t, p.Pos[3])

	p.Apply(Parse("G28 Z0"))
	assert.Equal(t, [4]float64{10, 20, 0, 0}, p.Pos)
}

func TestOutOfBounds(t *testing.T) {
	limits := [3]float64{230, 225, 205}
	assert.Equal(t, -1, OutOfBounds([4]float64{230, 0, 205, -50}, limits))
	assert.Equal(t, 0, OutOfBounds([4]float64{231, 0, 0, 0}, limits))
	assert.Equal(t, 2, OutOfBounds([4]float64{0, 0, -1, 0}, limits))
}
