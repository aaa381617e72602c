package gcode

// DefaultFeedrate applies until a move sets F (mm/s).
const DefaultFeedrate = 25.0

// Position tracks the X, Y, Z, E position and the modal state implied by
// a command stream.
type Position struct {
	Pos       [4]float64
	Feedrate  float64 // mm/s
	Relative  bool
	RelativeE bool
}

// NewPosition returns a tracker at the origin in absolute mode.
func NewPosition() Position {
	return Position{Feedrate: DefaultFeedrate}
}

// Target returns where a G0/G1 move ends without applying it.
func (p *Position) Target(cmd *Command) [4]float64 {
	t := p.Pos
	for i, axis := range []string{"X", "Y", "Z"} {
		if v, ok := cmd.Float(axis); ok {
			if p.Relative {
				t[i] += v
			} else {
				t[i] = v
			}
		}
	}
	if v, ok := cmd.Float("E"); ok {
		if p.RelativeE {
			t[3] += v
		} else {
			t[3] = v
		}
	}
	return t
}

// Apply updates the tracker with cmd and reports whether it moved the
// position.
func (p *Position) Apply(cmd *Command) bool {
	switch cmd.Name {
	case "G0", "G1":
		if f, ok := cmd.Float("F"); ok && f > 0 {
			p.Feedrate = f / 60
		}
		t := p.Target(cmd)
		moved := t != p.Pos
		p.Pos = t
		return moved
	case "G28":
		x, y, z := cmd.Axes()
		for i, home := range []bool{x, y, z} {
			if home {
				p.Pos[i] = 0
			}
		}
		return true
	case "G92":
		for i, axis := range []string{"X", "Y", "Z", "E"} {
			if v, ok := cmd.Float(axis); ok {
				p.Pos[i] = v
			}
		}
	case "G90":
		p.Relative = false
	case "G91":
		p.Relative = true
	case "M82":
		p.RelativeE = false
	case "M83":
		p.RelativeE = true
	}
	return false
}

// OutOfBounds returns the index of the first axis of t outside
// [0, limits[i]], or -1. A small tolerance absorbs rounding in sliced
// files.
func OutOfBounds(t [4]float64, limits [3]float64) int {
	const tolerance = 1e-3
	for i, max := range limits {
		if t[i] < -tolerance || t[i] > max+tolerance {
			return i
		}
	}
	return -1
}
