// Package gcodelink streams the motion queue to Marlin-style firmware
// over a serial line. Lines are numbered and checksummed, and at most
// Window of them are unacknowledged at any time.
package gcodelink

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"lcdprint-go/pkg/config"
	"lcdprint-go/pkg/errors"
	"lcdprint-go/pkg/gcode"
	"lcdprint-go/pkg/log"
	"lcdprint-go/pkg/motion"
	"lcdprint-go/pkg/sequencer"
	"lcdprint-go/pkg/serial"
)

// BedTool addresses the bed in temperature calls.
const BedTool = -1

const historySize = 64

// Config sizes the link.
type Config struct {
	XMax, YMax, ZMax float64
	Capacity         int
	// Window is the firmware's command buffer size.
	Window int
	// PollInterval is how often temperatures are requested.
	PollInterval time.Duration
}

// ConfigFromMachine derives the link config from the machine.
func ConfigFromMachine(m config.Machine) Config {
	return Config{
		XMax:         m.XMax,
		YMax:         m.YMax,
		ZMax:         m.ZMax,
		Capacity:     m.QueueCapacity,
		Window:       4,
		PollInterval: 2 * time.Second,
	}
}

// Link implements the motion queue, temperature control and the case
// light against firmware on the other end of a serial line.
type Link struct {
	mu sync.Mutex

	cfg    Config
	name   string
	w      io.Writer
	r      io.Reader
	paused func() bool

	queue  []string
	urgent []string
	script []string
	// holdNext parks once the script has been sent; holding stops the
	// queue until the job is resumed.
	holdNext bool
	holding  bool
	resume   []string

	inflight   int
	lineNo     int
	history    map[int]string
	lastResend int
	swallowOK  int
	// heatAcks counts the acknowledgements still due before a sent M109
	// or M190 has finished waiting.
	heatAcks int
	heatTool int

	track    gcode.Position
	reported [4]float64
	fault    bool
	current  [2]float64
	target   [2]float64
	lastPoll time.Time
	err      error

	logger *log.Logger
}

// New returns a link over rw. name labels errors; paused reports the job
// pause flag.
func New(cfg Config, name string, rw io.ReadWriter, paused func() bool) *Link {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 16
	}
	if cfg.Window <= 0 {
		cfg.Window = 4
	}
	if paused == nil {
		paused = func() bool { return false }
	}
	return &Link{
		cfg:        cfg,
		name:       name,
		w:          rw,
		r:          rw,
		paused:     paused,
		history:    make(map[int]string),
		lastResend: -1,
		track:      gcode.NewPosition(),
		lastPoll:   time.Now(),
		logger:     log.GetLogger("gcodelink"),
	}
}

// Start resets the firmware's line numbering.
func (l *Link) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lineNo = 0
	l.history = make(map[int]string)
	l.writeLocked("M110 N0")
	l.inflight++
	return l.err
}

// Enqueue appends a command if the queue has room.
func (l *Link) Enqueue(cmd string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) >= l.cfg.Capacity {
		return false
	}
	l.queue = append(l.queue, cmd)
	l.pumpLocked()
	return true
}

// Pending returns the number of commands not yet sent.
func (l *Link) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Capacity returns the queue size.
func (l *Link) Capacity() int { return l.cfg.Capacity }

// Planned returns the commands sent but not acknowledged plus the park or
// return moves still to send. A parked head counts only its unacknowledged
// lines.
func (l *Link) Planned() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inflight + len(l.script)
}

// Clear drops unsent commands. Lines already sent cannot be recalled.
func (l *Link) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropLocked()
}

// EmergencyStop asks the firmware to stop at once and acknowledges a
// position fault.
func (l *Link) EmergencyStop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropLocked()
	l.fault = false
	l.urgent = append(l.urgent, "M410")
	l.pumpLocked()
	l.logger.Warn("quick stop at Z%.2f", l.track.Pos[2])
}

// PositionFault reports a rejected move or a firmware position error.
func (l *Link) PositionFault() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fault
}

// HeightMM returns the Z of the last move sent.
func (l *Link) HeightMM() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.track.Pos[2]
}

// ExtruderMM returns the extruder position of the last line sent.
func (l *Link) ExtruderMM() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.track.Pos[3]
}

// HeatWait reports the heater a sent M109 or M190 is still waiting on.
func (l *Link) HeatWait() (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.heatTool, l.heatAcks > 0
}

// Inject sends cmds ahead of the queue, also while parked for a pause.
// It reports false once the link has faulted or failed.
func (l *Link) Inject(cmds []string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fault || l.err != nil {
		return false
	}
	l.script = append(l.script, cmds...)
	l.pumpLocked()
	return true
}

// Reported returns the position from the firmware's last M114 report.
func (l *Link) Reported() [4]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reported
}

// SetTarget sets a heater target ahead of the queue.
func (l *Link) SetTarget(tool int, celsius float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	code := "M104"
	if tool == BedTool {
		code = "M140"
	}
	l.target[heaterIndex(tool)] = celsius
	l.urgent = append(l.urgent, fmt.Sprintf("%s S%d", code, int(celsius)))
	l.pumpLocked()
}

// Shutdown turns both heaters off and drops everything unsent. The
// commands are written unnumbered, straight to the port, since no more
// acknowledgements will be read to open the window.
func (l *Link) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropLocked()
	l.urgent = nil
	l.target = [2]float64{}
	l.heatAcks = 0
	l.writeLocked("M104 S0")
	l.writeLocked("M140 S0")
	l.logger.Info("heaters off")
	return l.err
}

// Current returns the last reported temperature.
func (l *Link) Current(tool int) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current[heaterIndex(tool)]
}

// Target returns the last known target.
func (l *Link) Target(tool int) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.target[heaterIndex(tool)]
}

// SetBrightness sets the case light ahead of the queue.
func (l *Link) SetBrightness(pct int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.urgent = append(l.urgent, sequencer.Lamp(pct))
	l.pumpLocked()
}

// Err returns the first write error.
func (l *Link) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func heaterIndex(tool int) int {
	if tool == BedTool {
		return 1
	}
	return 0
}

func (l *Link) dropLocked() {
	l.queue = l.queue[:0]
	l.script = nil
	l.resume = nil
	l.holdNext = false
	l.holding = false
}

// Poll releases a parked pause once the job resumes and requests
// temperatures periodically.
func (l *Link) Poll(now time.Time) {
	paused := l.paused()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holding && !paused {
		l.holding = false
		l.script = append(l.script, l.resume...)
		l.resume = nil
		l.logger.Info("leaving park position")
	}
	if now.Sub(l.lastPoll) >= l.cfg.PollInterval {
		l.lastPoll = now
		l.urgent = append(l.urgent, "M105")
	}
	l.pumpLocked()
}

// pumpLocked sends lines while the firmware has buffer room. Urgent lines
// go first, then the park or return script, then the queue.
func (l *Link) pumpLocked() {
	for l.inflight < l.cfg.Window && l.err == nil {
		var line string
		switch {
		case len(l.urgent) > 0:
			line, l.urgent = l.urgent[0], l.urgent[1:]
		case len(l.script) > 0:
			line, l.script = l.script[0], l.script[1:]
			l.track.Apply(gcode.Parse(line))
		case l.holdNext:
			l.holdNext = false
			l.holding = true
			l.logger.Info("parked for pause")
			return
		case l.holding || l.fault || len(l.queue) == 0:
			return
		default:
			line, l.queue = l.queue[0], l.queue[1:]
			if !l.admitLocked(line) {
				return
			}
			if l.holdNext {
				// The queued pause became a park script.
				continue
			}
		}
		l.sendLocked(line)
	}
}

// admitLocked tracks a queued line before it is sent. Moves outside the
// build volume latch the fault and drop the queue; a pause turns into
// its park script.
func (l *Link) admitLocked(line string) bool {
	cmd := gcode.Parse(line)
	if cmd == nil {
		return true
	}
	switch cmd.Name {
	case "G0", "G1":
		t := l.track.Target(cmd)
		if axis := gcode.OutOfBounds(t, [3]float64{l.cfg.XMax, l.cfg.YMax, l.cfg.ZMax}); axis >= 0 {
			l.fault = true
			l.logger.WithFields(log.Fields{
				"move": line,
				"axis": "XYZ"[axis : axis+1],
				"to":   t[axis],
			}).Error("move outside build volume, not sent")
			l.dropLocked()
			return false
		}
	case "M601":
		park, resume := motion.PauseMoves(cmd, l.track.Pos, l.cfg.ZMax)
		l.script = append(park, "M400")
		l.resume = resume
		l.holdNext = true
		return true
	}
	l.track.Apply(cmd)
	return true
}

func (l *Link) sendLocked(cmd string) {
	l.lineNo++
	body := fmt.Sprintf("N%d %s", l.lineNo, cmd)
	line := fmt.Sprintf("%s*%d", body, Checksum(body))
	l.history[l.lineNo] = line
	delete(l.history, l.lineNo-historySize)
	l.writeLocked(line)
	l.inflight++
	if c := gcode.Parse(cmd); c != nil && (c.Name == "M109" || c.Name == "M190") {
		l.heatAcks = l.inflight
		l.heatTool = 0
		if c.Name == "M190" {
			l.heatTool = BedTool
		}
	}
}

func (l *Link) writeLocked(line string) {
	if l.err != nil {
		return
	}
	l.logger.Debug("> %s", line)
	if _, err := io.WriteString(l.w, line+"\n"); err != nil {
		l.err = errors.SerialLinkError(l.name, err)
		l.logger.WithError(err).Error("write failed")
	}
}

// Checksum is the XOR of the bytes of a numbered line.
func Checksum(s string) int {
	var cs byte
	for i := 0; i < len(s); i++ {
		cs ^= s[i]
	}
	return int(cs)
}

// Run reads firmware replies until ctx is done or the line fails.
func (l *Link) Run(ctx context.Context) error {
	buf := make([]byte, 256)
	var acc []byte
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := l.r.Read(buf)
		acc = append(acc, buf[:n]...)
		for {
			i := bytes.IndexByte(acc, '\n')
			if i < 0 {
				break
			}
			l.handle(strings.TrimSpace(string(acc[:i])))
			acc = acc[i+1:]
		}
		switch {
		case err == nil, stderrors.Is(err, serial.ErrTimeout):
		case ctx.Err() != nil:
			return nil
		default:
			return errors.SerialLinkError(l.name, err)
		}
	}
}

var (
	reHotend = regexp.MustCompile(`T:\s*([-\d.]+)\s*/\s*([-\d.]+)`)
	reBed    = regexp.MustCompile(`B:\s*([-\d.]+)\s*/\s*([-\d.]+)`)
	reAxis   = regexp.MustCompile(`([XYZE]):\s*([-\d.]+)`)
	reResend = regexp.MustCompile(`(?i)^(?:resend|rs)[: ]\s*N?:?\s*(\d+)`)
)

func (l *Link) handle(line string) {
	if line == "" {
		return
	}
	l.logger.Debug("< %s", line)

	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case strings.HasPrefix(line, "ok"):
		l.temperaturesLocked(line)
		if l.swallowOK > 0 {
			l.swallowOK--
		} else {
			if l.inflight > 0 {
				l.inflight--
			}
			if l.heatAcks > 0 {
				l.heatAcks--
			}
			l.lastResend = -1
		}
		l.pumpLocked()
	case reResend.MatchString(line):
		n, _ := strconv.Atoi(reResend.FindStringSubmatch(line)[1])
		l.resendLocked(n)
	case strings.HasPrefix(line, "Error:"), strings.HasPrefix(line, "!!"):
		lower := strings.ToLower(line)
		if strings.Contains(lower, "position") || strings.Contains(lower, "endstop") {
			l.fault = true
			l.dropLocked()
		}
		l.logger.WithField("line", line).Error("firmware error")
	case strings.HasPrefix(line, "start"):
		l.logger.Warn("firmware restarted")
		l.inflight = 0
		l.heatAcks = 0
	case strings.HasPrefix(line, "X:") && strings.Contains(line, "Count"):
		for _, m := range reAxis.FindAllStringSubmatch(line[:strings.Index(line, "Count")], -1) {
			v, _ := strconv.ParseFloat(m[2], 64)
			l.reported[strings.Index("XYZE", m[1])] = v
		}
	case strings.Contains(line, "T:"):
		l.temperaturesLocked(line)
	}
}

// resendLocked rewrites every line from n on. Repeated requests for the
// same line while the resend is in flight are ignored; each carries an ok
// that is swallowed.
func (l *Link) resendLocked(n int) {
	l.swallowOK++
	if n == l.lastResend {
		return
	}
	l.lastResend = n
	l.logger.Warn("firmware requested resend from line %d", n)
	for i := n; i <= l.lineNo; i++ {
		if line, ok := l.history[i]; ok {
			l.writeLocked(line)
		}
	}
}

func (l *Link) temperaturesLocked(line string) {
	if m := reHotend.FindStringSubmatch(line); m != nil {
		l.current[0], _ = strconv.ParseFloat(m[1], 64)
		l.target[0], _ = strconv.ParseFloat(m[2], 64)
	}
	if m := reBed.FindStringSubmatch(line); m != nil {
		l.current[1], _ = strconv.ParseFloat(m[1], 64)
		l.target[1], _ = strconv.ParseFloat(m[2], 64)
	}
}
