// Package motion simulates the planner behind the front panel: a bounded
// command queue feeding a short planner buffer whose moves take time,
// wait on the heaters and park for pauses.
package motion

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"lcdprint-go/pkg/config"
	"lcdprint-go/pkg/gcode"
	"lcdprint-go/pkg/log"
)

const (
	// PlannerDepth is how many commands the planner buffers ahead of the
	// queue.
	PlannerDepth = 4
	homingSpeed = 50.0
)

// Heaters is what temperature commands drive.
type Heaters interface {
	SetTarget(tool int, celsius float64)
	Reached(tool int, window float64) bool
}

// Config sizes the simulated machine.
type Config struct {
	XMax, YMax, ZMax float64
	Capacity         int
	TempWindow       float64
	// Speedup scales simulated time against wall time.
	Speedup float64
}

// ConfigFromMachine derives the simulator config from the machine.
func ConfigFromMachine(m config.Machine, speedup float64) Config {
	if speedup <= 0 {
		speedup = 1
	}
	return Config{
		XMax:       m.XMax,
		YMax:       m.YMax,
		ZMax:       m.ZMax,
		Capacity:   m.QueueCapacity,
		TempWindow: m.TempWindow,
		Speedup:    speedup,
	}
}

type stepKind int

const (
	stepRun stepKind = iota
	stepPark
)

// step is one planner entry. Run steps execute cmd; the park step holds
// until the job is resumed.
type step struct {
	kind    stepKind
	cmd     *gcode.Command
	started bool
	left    float64 // seconds of motion remaining
}

// Status is a snapshot of the simulated machine.
type Status struct {
	X, Y, Z, E float64
	Feedrate   float64
	SpeedPct   int
	FlowPct    int
	FanPct     int
	LampPct    int
	Parked     bool
	Fault      bool
	Executed   uint64
}

// Sim implements the motion queue against a modelled machine.
type Sim struct {
	mu sync.Mutex

	cfg     Config
	heaters Heaters
	paused  func() bool

	queue []string
	head  int
	n     int
	plan  []*step

	track    gcode.Position
	speedPct int
	flowPct  int
	fanPct   int
	lampPct  int
	fault    bool
	parked   bool
	executed uint64

	logger *log.Logger
}

// NewSim returns a simulator. paused reports the job pause flag; a
// parked pause is released once it returns false.
func NewSim(cfg Config, heaters Heaters, paused func() bool) *Sim {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 16
	}
	if cfg.Speedup <= 0 {
		cfg.Speedup = 1
	}
	if paused == nil {
		paused = func() bool { return false }
	}
	return &Sim{
		cfg:      cfg,
		heaters:  heaters,
		paused:   paused,
		queue:    make([]string, cfg.Capacity),
		track:    gcode.NewPosition(),
		speedPct: 100,
		flowPct:  100,
		logger:   log.GetLogger("motion"),
	}
}

// Enqueue appends a command if the queue has room.
func (s *Sim) Enqueue(cmd string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.n == len(s.queue) {
		return false
	}
	s.queue[(s.head+s.n)%len(s.queue)] = cmd
	s.n++
	return true
}

// Pending returns the number of queued commands the planner has not
// taken yet.
func (s *Sim) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// Capacity returns the queue size.
func (s *Sim) Capacity() int { return len(s.queue) }

// Planned returns the planner occupancy. A head parked for a pause does
// not count.
func (s *Sim) Planned() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.parked {
		return 0
	}
	return len(s.plan)
}

// Clear drops queued and planned commands.
func (s *Sim) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked()
}

// EmergencyStop halts motion at once and acknowledges a position fault.
func (s *Sim) EmergencyStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked()
	s.fault = false
	p := s.track.Pos
	s.logger.Warn("emergency stop at X%.2f Y%.2f Z%.2f", p[0], p[1], p[2])
}

// PositionFault reports a move outside the build volume.
func (s *Sim) PositionFault() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fault
}

// HeightMM returns the current Z.
func (s *Sim) HeightMM() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track.Pos[2]
}

// ExtruderMM returns the current extruder position.
func (s *Sim) ExtruderMM() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track.Pos[3]
}

// HeatWait reports the heater a running M109 or M190 is still waiting on.
func (s *Sim) HeatWait() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.plan) == 0 {
		return 0, false
	}
	st := s.plan[0]
	if st.kind != stepRun || !st.started || !s.waitingLocked(st.cmd) {
		return 0, false
	}
	if st.cmd.Name == "M190" {
		return BedTool, true
	}
	return 0, true
}

// Inject runs cmds ahead of everything queued or planned, even while the
// head is parked for a pause. A move already under way finishes first.
// It reports false while a position fault is latched.
func (s *Sim) Inject(cmds []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fault {
		return false
	}
	steps := make([]*step, 0, len(cmds))
	for _, l := range cmds {
		if cmd := gcode.Parse(l); cmd != nil {
			steps = append(steps, &step{cmd: cmd})
		}
	}
	at := 0
	if len(s.plan) > 0 && s.plan[0].kind == stepRun && s.plan[0].started {
		at = 1
	}
	rest := append(steps, s.plan[at:]...)
	s.plan = append(s.plan[:at:at], rest...)
	s.parked = false
	return true
}

// SetBrightness sets the case light.
func (s *Sim) SetBrightness(pct int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lampPct = pct
}

// Status returns a snapshot of the machine.
func (s *Sim) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.track.Pos
	return Status{
		X: p[0], Y: p[1], Z: p[2], E: p[3],
		Feedrate: s.track.Feedrate,
		SpeedPct: s.speedPct,
		FlowPct:  s.flowPct,
		FanPct:   s.fanPct,
		LampPct:  s.lampPct,
		Parked:   s.parked,
		Fault:    s.fault,
		Executed: s.executed,
	}
}

func (s *Sim) dropLocked() {
	s.head, s.n = 0, 0
	s.plan = s.plan[:0]
	s.parked = false
}

// Run steps the planner every interval until ctx is done.
func (s *Sim) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.Step(now.Sub(last).Seconds())
			last = now
		}
	}
}

// Step advances the machine by dt seconds of wall time.
func (s *Sim) Step(dt float64) {
	// The pause flag belongs to the job, which calls Enqueue with its own
	// lock held; read it before taking ours.
	paused := s.paused()

	s.mu.Lock()
	defer s.mu.Unlock()

	budget := dt * s.cfg.Speedup
	for !s.fault {
		s.refillLocked()
		if len(s.plan) == 0 {
			return
		}
		st := s.plan[0]
		switch st.kind {
		case stepPark:
			if paused {
				s.parked = true
				s.settingsWhileParkedLocked()
				return
			}
			s.parked = false
			s.plan = s.plan[1:]
			continue
		}

		if st.cmd.Name == "M601" {
			s.plan = append(s.pauseStepsLocked(st.cmd), s.plan[1:]...)
			s.executed++
			continue
		}
		if !st.started {
			st.started = true
			st.left = s.executeLocked(st.cmd)
			if s.fault {
				return
			}
		}
		if s.waitingLocked(st.cmd) {
			return
		}
		if st.left > budget {
			st.left -= budget
			return
		}
		budget -= st.left
		s.plan = s.plan[1:]
		s.executed++
	}
}

// refillLocked moves commands from the queue into the planner. Nothing
// is taken past a pause until it has been released.
func (s *Sim) refillLocked() {
	for len(s.plan) < PlannerDepth && s.n > 0 {
		if s.holdingLocked() {
			return
		}
		line := s.popLocked()
		cmd := gcode.Parse(line)
		if cmd == nil {
			continue
		}
		s.plan = append(s.plan, &step{cmd: cmd})
	}
}

func (s *Sim) holdingLocked() bool {
	for _, st := range s.plan {
		if st.kind == stepPark || st.cmd.Name == "M601" {
			return true
		}
	}
	return false
}

func (s *Sim) popLocked() string {
	line := s.queue[s.head]
	s.queue[s.head] = ""
	s.head = (s.head + 1) % len(s.queue)
	s.n--
	return line
}

// settingsWhileParkedLocked applies queued setting changes while the head
// is parked, so tune adjustments made during a pause take effect. Motion
// stays queued in order.
func (s *Sim) settingsWhileParkedLocked() {
	kept := 0
	for i := 0; i < s.n; i++ {
		line := s.queue[(s.head+i)%len(s.queue)]
		if cmd := gcode.Parse(line); cmd != nil && isSetting(cmd.Name) {
			s.executeLocked(cmd)
			s.executed++
			continue
		}
		s.queue[(s.head+kept)%len(s.queue)] = line
		kept++
	}
	for i := kept; i < s.n; i++ {
		s.queue[(s.head+i)%len(s.queue)] = ""
	}
	s.n = kept
}

func isSetting(name string) bool {
	switch name {
	case "M104", "M140", "M106", "M107", "M220", "M221", "M207", "M42":
		return true
	}
	return false
}

// pauseStepsLocked expands M601 X<park> Y<park> Z<lift> L<retract> at the
// position reached by the moves before it.
func (s *Sim) pauseStepsLocked(cmd *gcode.Command) []*step {
	park, resume := PauseMoves(cmd, s.track.Pos, s.cfg.ZMax)
	steps := make([]*step, 0, len(park)+len(resume)+1)
	for _, l := range park {
		steps = append(steps, &step{cmd: gcode.Parse(l)})
	}
	steps = append(steps, &step{kind: stepPark})
	for _, l := range resume {
		steps = append(steps, &step{cmd: gcode.Parse(l)})
	}
	return steps
}

// PauseMoves expands a pause command at position pos into the moves that
// park the head and the moves that return it.
func PauseMoves(cmd *gcode.Command, pos [4]float64, zMax float64) (park, resume []string) {
	x := cmd.FloatOr("X", 0)
	y := cmd.FloatOr("Y", 0)
	lift := cmd.FloatOr("Z", 0)
	retract := cmd.FloatOr("L", 0)
	z := math.Min(pos[2]+lift, zMax)

	park = []string{
		fmt.Sprintf("G1 F%d E%s", 1500, num(pos[3]-retract)),
		fmt.Sprintf("G1 F%d Z%s", 1200, num(z)),
		fmt.Sprintf("G1 F%d X%s Y%s", 12000, num(x), num(y)),
	}
	resume = []string{
		fmt.Sprintf("G1 F%d X%s Y%s", 12000, num(pos[0]), num(pos[1])),
		fmt.Sprintf("G1 F%d Z%s", 1200, num(pos[2])),
		fmt.Sprintf("G1 F%d E%s", 1500, num(pos[3])),
	}
	return park, resume
}

func num(v float64) string {
	return fmt.Sprintf("%.3f", v)
}

// waitingLocked reports whether a heat-and-wait command is still waiting.
func (s *Sim) waitingLocked(cmd *gcode.Command) bool {
	if s.heaters == nil {
		return false
	}
	switch cmd.Name {
	case "M109":
		return !s.heaters.Reached(0, s.cfg.TempWindow)
	case "M190":
		return !s.heaters.Reached(BedTool, s.cfg.TempWindow)
	}
	return false
}

// BedTool addresses the bed in Heaters calls.
const BedTool = -1

// executeLocked applies cmd and returns how long its motion takes.
func (s *Sim) executeLocked(cmd *gcode.Command) float64 {
	switch cmd.Name {
	case "G0", "G1":
		return s.moveLocked(cmd)
	case "G28":
		return s.homeLocked(cmd)
	case "G92", "G90", "G91", "M82", "M83":
		s.track.Apply(cmd)
	case "G4":
		return cmd.FloatOr("P", 0)/1000 + cmd.FloatOr("S", 0)
	case "M104", "M109":
		s.setTemp(0, cmd)
	case "M140", "M190":
		s.setTemp(BedTool, cmd)
	case "M106":
		s.fanPct = int(math.Round(cmd.FloatOr("S", 255) * 100 / 255))
	case "M107":
		s.fanPct = 0
	case "M220":
		s.speedPct = int(cmd.FloatOr("S", 100))
	case "M221":
		s.flowPct = int(cmd.FloatOr("S", 100))
	case "M42":
		s.lampPct = int(math.Round(cmd.FloatOr("S", 255) * 100 / 255))
	case "M84", "M18", "M401", "M207", "M400", "M117":
	default:
		s.logger.Debug("ignoring %s", cmd.Name)
	}
	return 0
}

func (s *Sim) setTemp(tool int, cmd *gcode.Command) {
	if s.heaters == nil {
		return
	}
	if v, ok := cmd.Float("S"); ok {
		s.heaters.SetTarget(tool, v)
	}
}

func (s *Sim) moveLocked(cmd *gcode.Command) float64 {
	from := s.track.Pos
	target := s.track.Target(cmd)
	if axis := gcode.OutOfBounds(target, [3]float64{s.cfg.XMax, s.cfg.YMax, s.cfg.ZMax}); axis >= 0 {
		s.fault = true
		s.logger.WithFields(log.Fields{
			"move": cmd.Raw,
			"axis": "XYZ"[axis : axis+1],
			"to":   target[axis],
		}).Error("move outside build volume")
		s.dropLocked()
		return 0
	}
	s.track.Apply(cmd)

	dx, dy, dz := target[0]-from[0], target[1]-from[1], target[2]-from[2]
	dist := math.Sqrt(dx*dx + dy*dy + dz*dz)
	if dist == 0 {
		dist = math.Abs(target[3] - from[3])
	}
	return s.duration(dist, s.track.Feedrate)
}

func (s *Sim) homeLocked(cmd *gcode.Command) float64 {
	from := s.track.Pos
	s.track.Apply(cmd)
	var dist float64
	for i := 0; i < 3; i++ {
		dist = math.Max(dist, from[i]-s.track.Pos[i])
	}
	s.fault = false
	return s.duration(dist, homingSpeed)
}

func (s *Sim) duration(dist, feed float64) float64 {
	if feed <= 0 || dist == 0 {
		return 0
	}
	pct := float64(s.speedPct)
	if pct <= 0 {
		pct = 100
	}
	return dist / (feed * pct / 100)
}
