// Package sequencer builds the fixed G-code sequences a print session
// issues: setup, priming, pause, abort and tune adjustments. Builders only
// return text; Submit hands a whole sequence to the queue or nothing.
package sequencer

import (
	"fmt"
	"math"
	"strconv"

	"lcdprint-go/pkg/config"
)

// Enqueuer is the bounded command queue owned by the motion system.
type Enqueuer interface {
	Enqueue(cmd string) bool
	Pending() int
	Capacity() int
}

// Params are the machine constants the sequences depend on.
type Params struct {
	XMax, YMax, ZMax float64
	OffsetX, OffsetY float64

	PrimingHeight   float64 // mm
	HomingFeedrateZ float64 // mm/min
	Retraction      float64 // mm of filament
	RecoverySpeed   float64 // mm/s
	PrimingVolume   float64 // mm³
	PrimingRate     float64 // mm³/s

	// TopMargin selects the split homing near the top of travel.
	TopMargin float64
	// GantryHeight is the minimum lift target below which pauses lift
	// the head to at least this height.
	GantryHeight float64
	ParkX, ParkY float64

	// Material change.
	ChangeLength     float64 // mm
	ChangeSpeed      float64 // mm/s
	ChangePrime      float64 // mm
	ChangePrimeSpeed float64 // mm/s
}

// ParamsFromMachine derives sequence parameters from the machine config.
func ParamsFromMachine(m config.Machine) Params {
	return Params{
		XMax:            m.XMax,
		YMax:            m.YMax,
		ZMax:            m.ZMax,
		OffsetX:         m.OffsetX,
		OffsetY:         m.OffsetY,
		PrimingHeight:   m.Priming.Height,
		HomingFeedrateZ: m.HomingFeedrateZ,
		Retraction:      m.Priming.Retraction,
		RecoverySpeed:   m.Priming.RecoverySpeed,
		PrimingVolume:   m.Priming.Volume,
		PrimingRate:     m.Priming.Rate,
		TopMargin:       30,
		GantryHeight:    70,
		ParkX:           5,
		ParkY:           5,

		ChangeLength:     m.Change.Length,
		ChangeSpeed:      m.Change.Speed,
		ChangePrime:      m.Change.PrimeLength,
		ChangePrimeSpeed: m.Change.PrimeSpeed,
	}
}

// Sequencer builds command sequences from fixed parameters.
type Sequencer struct {
	p Params
}

// New returns a sequencer.
func New(p Params) *Sequencer {
	return &Sequencer{p: p}
}

// Setup homes, travels to the start position, and waits for the bed and
// hotend to reach temperature. The queue drains only once heated.
func (s *Sequencer) Setup(hotend, bed float64) []string {
	x := s.p.XMax/2 - 15 - s.p.OffsetX
	y := s.p.YMax/2 + 20 - s.p.OffsetY
	cmds := []string{
		"G28",
		fmt.Sprintf("G1 F12000 X%s Y%s", num(x), num(y)),
	}
	if bed > 0 {
		cmds = append(cmds, fmt.Sprintf("M190 S%d", int(bed)))
	}
	if hotend > 0 {
		cmds = append(cmds, fmt.Sprintf("M109 S%d", int(hotend)))
	}
	return cmds
}

// Prime lifts to the priming height, undoes the end-of-print retraction
// and pushes a small extra volume. volumeToLength is mm of filament per
// mm³ (1 when the file extrudes in millimetres).
func (s *Sequencer) Prime(volumeToLength float64) []string {
	if volumeToLength <= 0 {
		volumeToLength = 1
	}
	retract := s.p.Retraction / volumeToLength
	return []string{
		"G92 E0",
		fmt.Sprintf("G1 F%d Z%s", int(s.p.HomingFeedrateZ), num(s.p.PrimingHeight)),
		fmt.Sprintf("G92 E%s", num(-retract)),
		fmt.Sprintf("G1 F%d E0", int(s.p.RecoverySpeed*60)),
		fmt.Sprintf("G92 E%s", num(-s.p.PrimingVolume)),
		fmt.Sprintf("G1 F%d E0", int(s.p.PrimingRate*volumeToLength*60)),
		"G92 E0",
	}
}

// Abort retracts when primed, homes, and disables the motors. Near the
// top of travel XY homes before Z.
func (s *Sequencer) Abort(primed bool, z, volumeToLength, retractFeed float64) []string {
	if volumeToLength <= 0 {
		volumeToLength = 1
	}
	cmds := []string{"M401"}
	if primed {
		cmds = append(cmds,
			fmt.Sprintf("G92 E%d", int(s.p.Retraction/volumeToLength)),
			fmt.Sprintf("G1 F%d E0", int(retractFeed)),
		)
	}
	if z > s.p.ZMax-s.p.TopMargin {
		cmds = append(cmds, "G28 X0 Y0", "G28 Z0")
	} else {
		cmds = append(cmds, "G28")
	}
	return append(cmds, "M84")
}

// PauseLift returns the Z lift for a pause at height z.
func (s *Sequencer) PauseLift(z float64) int {
	switch {
	case z < s.p.GantryHeight:
		return int(math.Max(s.p.GantryHeight-math.Floor(z), 20))
	case z < s.p.ZMax-2*s.p.TopMargin:
		return 20
	case z < s.p.ZMax-s.p.TopMargin:
		return 2
	default:
		return 0
	}
}

// Pause parks the head, lifts by the band for z, and retracts.
func (s *Sequencer) Pause(z float64) string {
	return fmt.Sprintf("M601 X%s Y%s Z%d L%d",
		num(s.p.ParkX), num(s.p.ParkY), s.PauseLift(z), int(s.p.Retraction))
}

// Unload pulls the filament back out of the feed tube.
func (s *Sequencer) Unload() []string {
	return []string{
		"G92 E0",
		fmt.Sprintf("G1 F%d E%s", int(s.p.ChangeSpeed*60), num(-s.p.ChangeLength)),
	}
}

// Load feeds new filament up to the nozzle and extrudes a little of it.
func (s *Sequencer) Load() []string {
	return []string{
		"G92 E0",
		fmt.Sprintf("G1 F%d E%s", int(s.p.ChangeSpeed*60), num(s.p.ChangeLength)),
		"G92 E0",
		fmt.Sprintf("G1 F%d E%s", int(s.p.ChangePrimeSpeed*60), num(s.p.ChangePrime)),
	}
}

// SetExtruder redefines the current extruder position.
func SetExtruder(e float64) string { return "G92 E" + num(e) }

// SpeedFactor sets the feed rate override in percent.
func SpeedFactor(pct int) string { return fmt.Sprintf("M220 S%d", pct) }

// FlowFactor sets the extrusion override in percent.
func FlowFactor(pct int) string { return fmt.Sprintf("M221 S%d", pct) }

// FanSpeed sets the part fan from a percentage.
func FanSpeed(pct int) string {
	if pct <= 0 {
		return "M107"
	}
	return fmt.Sprintf("M106 S%d", (pct*255+50)/100)
}

// Retraction sets firmware retraction length (mm) and speed (mm/s).
func Retraction(length, speed float64) string {
	return fmt.Sprintf("M207 S%s F%d", num(length), int(speed*60))
}

// Lamp sets the case light brightness in percent.
func Lamp(pct int) string {
	return fmt.Sprintf("M42 S%d", (pct*255+50)/100)
}

// Submit enqueues all of cmds if the queue has room for every one of
// them, and nothing otherwise.
func Submit(q Enqueuer, cmds []string) bool {
	if q.Capacity()-q.Pending() < len(cmds) {
		return false
	}
	for _, c := range cmds {
		if !q.Enqueue(c) {
			return false
		}
	}
	return true
}

// num formats a coordinate without trailing zeros.
func num(v float64) string {
	return strconv.FormatFloat(math.Round(v*1000)/1000, 'f', -1, 64)
}
