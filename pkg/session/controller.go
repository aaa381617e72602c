// Package session drives a card-fed print from file selection through
// heating, printing, pausing and abort. The Controller is polled: each
// Tick inspects the collaborators, advances the phase and renders a View.
// It is not safe for concurrent use; every call must come from the loop
// that calls Tick.
package session

import (
	"time"

	"lcdprint-go/pkg/config"
	"lcdprint-go/pkg/detailcache"
	"lcdprint-go/pkg/dircache"
	"lcdprint-go/pkg/errors"
	"lcdprint-go/pkg/log"
	"lcdprint-go/pkg/progress"
	"lcdprint-go/pkg/sequencer"
)

const (
	// HeatMax is the top of the heating progress bar.
	HeatMax = 125
	// glowStep paces the detail pages at the default refresh rate.
	glowStep = 4
	// ambient is the temperature the heating bar starts from.
	ambient = 20
)

// Controller owns the session state, the browser caches, the estimator
// and the sequencer.
type Controller struct {
	deps   Deps
	m      config.Machine
	seq    *sequencer.Sequencer
	logger *log.Logger

	st  State
	set Settings

	dirs    *dircache.Cache
	details *detailcache.Cache
	est     *progress.Estimator
	glow    detailcache.Glow

	estimate progress.Estimate
	heat     int
	browse   browseStatus
	cursor   int

	tick uint64
	now  time.Time
	gen  uint64

	tuneCmds  [numTuneItems]string
	deferring map[string]bool
	lamp      int
}

// New returns a controller in the Selecting phase.
func New(deps Deps, m config.Machine, logger *log.Logger) (*Controller, error) {
	switch {
	case deps.Storage == nil:
		return nil, errors.RuntimeError("session: storage is required")
	case deps.Motion == nil:
		return nil, errors.RuntimeError("session: motion is required")
	case deps.Temperature == nil:
		return nil, errors.RuntimeError("session: temperature is required")
	case deps.Job == nil:
		return nil, errors.RuntimeError("session: job is required")
	}
	if deps.Sink == nil {
		deps.Sink = nopSink{}
	}
	if deps.Lamp == nil {
		deps.Lamp = nopLamp{}
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if logger == nil {
		logger = log.GetLogger("session")
	}

	c := &Controller{
		deps:      deps,
		m:         m,
		seq:       sequencer.New(sequencer.ParamsFromMachine(m)),
		logger:    logger,
		set:       defaultSettings(m.Display.LEDBrightness),
		dirs:      dircache.New(m.Display.CacheSlots, m.Display.NameLength),
		details:   detailcache.New(deps.Storage),
		est:       progress.NewEstimator(m.Estimator.SmoothingWeight, m.Estimator.UnknownWindow),
		glow:      detailcache.NewGlow(glowStep),
		deferring: make(map[string]bool),
		lamp:      -1,
		gen:       deps.Storage.Generation(),
	}
	c.st.Phase = Selecting
	c.st.ReturnPhase = Selecting
	return c, nil
}

// State returns a copy of the session state.
func (c *Controller) State() State { return c.st }

// Settings returns the current tune settings.
func (c *Controller) Settings() Settings { return c.set }

// Estimate returns the last progress estimate of the running job.
func (c *Controller) Estimate() progress.Estimate { return c.estimate }

// Phase returns the current phase.
func (c *Controller) Phase() Phase { return c.st.Phase }

// Tick advances the session one step and renders the resulting view.
func (c *Controller) Tick(now time.Time) View {
	c.tick++
	c.now = now
	c.glow.Step()

	if g := c.deps.Storage.Generation(); g != c.gen {
		c.gen = g
		c.invalidate()
	}

	c.flushAbort()
	c.flushTune()

	if c.st.JobActive {
		c.setPhase(c.pollFaults())
	}
	c.setPhase(c.step(now))
	c.updateLamp()

	v := c.render()
	c.deps.Sink.Render(v)
	return v
}

func (c *Controller) step(now time.Time) Phase {
	switch c.st.Phase {
	case Selecting:
		return c.stepSelecting()
	case Heating:
		return c.stepHeating()
	case Printing:
		return c.stepPrinting(now)
	case ChangeMaterial:
		return c.stepChange()
	case Ready:
		return ReadyCooledDown
	default:
		return c.st.Phase
	}
}

func (c *Controller) setPhase(p Phase) {
	if p == c.st.Phase {
		return
	}
	from := c.st.Phase
	c.st.Phase = p
	c.logger.WithFields(log.Fields{"from": from.String(), "to": p.String()}).Debug("phase changed")
	c.deps.Observer.PhaseChanged(from, p)
}

// pollFaults runs while a job is active. A pending pause is tried first;
// then completion, a position fault and a card error are checked in that
// order, and only the first that applies ends the job. A job only
// completes when neither fault is latched: both motion backends drop
// their queue on a fault, which looks like a drained queue.
func (c *Controller) pollFaults() Phase {
	if c.st.PauseRequested {
		c.tryPause()
	}

	m := c.deps.Motion
	fault := m.PositionFault()
	cardErr := c.deps.Storage.ErrorPending()
	switch {
	case !c.deps.Job.Active() && m.Pending() == 0 && !fault && !cardErr:
		c.abort(OutcomeCompleted)
		return Ready
	case fault:
		c.st.PositionFault = true
		m.EmergencyStop()
		c.abort(OutcomePositionFault)
		return ErrorPosition
	case cardErr:
		c.abort(OutcomeStorageError)
		c.deps.Storage.ClearError()
		return ErrorSd
	}
	return c.st.Phase
}

func (c *Controller) tryPause() {
	m := c.deps.Motion
	if m.Planned() == 0 || m.Pending() >= m.Capacity() {
		c.deferred("pause")
		return
	}
	if !m.Enqueue(c.seq.Pause(m.HeightMM())) {
		c.deferred("pause")
		return
	}
	c.clearDeferred("pause")
	c.deps.Job.SetPaused(true)
	c.st.Primed = false
	c.st.PauseRequested = false
	c.logger.Info("print paused at Z%.2f", m.HeightMM())

	if c.st.Phase == Tuning || c.st.Phase == AbortConfirm {
		c.st.ReturnPhase = Paused
		return
	}
	c.setPhase(Paused)
}

// abort ends the job: it stops streaming, cools down, drops queued
// commands and submits the abort sequence. Faults are polled only while
// JobActive, which abort clears, so a fault aborts a job once.
func (c *Controller) abort(outcome Outcome) {
	wasActive := c.st.JobActive

	c.st.JobActive = false
	c.st.PauseRequested = false
	c.st.LastOutcome = outcome
	c.st.Finished = true
	c.clearDeferred("pause")
	c.tuneCmds = [numTuneItems]string{}

	c.deps.Job.Stop()
	c.cooldown()
	c.deps.Motion.Clear()

	c.st.AbortPending = true
	c.flushAbort()

	if wasActive {
		c.deps.Observer.JobFinished(c.st.FileName, outcome)
		c.logger.WithFields(log.Fields{
			"file":    c.st.FileName,
			"outcome": outcome.String(),
			"elapsed": c.now.Sub(c.st.Start).Round(time.Second).String(),
		}).Info("print ended")
	}
}

func (c *Controller) flushAbort() {
	if !c.st.AbortPending {
		return
	}
	m := c.deps.Motion
	cmds := c.seq.Abort(c.st.Primed, m.HeightMM(), c.set.VolumeToLength, c.set.RetractSpeed*60)
	if !sequencer.Submit(m, cmds) {
		c.deferred("abort")
		return
	}
	c.clearDeferred("abort")
	c.st.Primed = false
	c.st.AbortPending = false
}

func (c *Controller) cooldown() {
	c.deps.Temperature.SetTarget(0, 0)
	c.deps.Temperature.SetTarget(BedTool, 0)
}

// startJob primes the nozzle when enabled and starts streaming the
// selected file. It reports false when the priming sequence did not fit
// the queue; the caller retries later.
func (c *Controller) startJob() (bool, error) {
	if c.m.Priming.Enabled && !c.st.Primed {
		if !sequencer.Submit(c.deps.Motion, c.seq.Prime(c.set.VolumeToLength)) {
			c.deferred("prime")
			return false, nil
		}
		c.clearDeferred("prime")
		c.st.Primed = true
	}

	if err := c.deps.Job.Start(c.st.FileName); err != nil {
		c.deps.Storage.ClearError()
		return false, err
	}
	// A running job always counts as primed, so an abort retracts
	// whether or not the priming sequence ran.
	c.st.Primed = true

	c.est.Reset()
	c.estimate = progress.Estimate{}
	c.st.Start = c.now
	c.st.JobActive = true
	c.st.Finished = false
	c.deps.Observer.JobStarted(c.st.FileName, c.st.Flavor)
	c.logger.WithFields(log.Fields{
		"file":   c.st.FileName,
		"flavor": c.st.Flavor.String(),
	}).Info("print started")
	return true, nil
}

func (c *Controller) stepHeating() Phase {
	t := c.deps.Temperature
	target := t.Target(0)
	cur := t.Current(0)

	p := 0
	if cur > ambient && target > ambient+c.m.TempWindow {
		p = int((cur - ambient) * HeatMax / (target - ambient - c.m.TempWindow))
	}
	if p > HeatMax {
		p = HeatMax
	}
	if p > c.heat {
		c.heat = p
	}

	heated := cur >= target-c.m.TempWindow &&
		t.Current(BedTool) >= t.Target(BedTool)-c.m.TempWindow
	if !heated || c.deps.Motion.Pending() > 0 || c.st.AbortPending {
		return Heating
	}

	ok, err := c.startJob()
	switch {
	case err != nil:
		c.logger.WithError(err).Error("cannot start print")
		c.abort(OutcomeStorageError)
		return ErrorSd
	case !ok:
		return Heating
	}
	c.heat = HeatMax
	return Printing
}

func (c *Controller) stepPrinting(now time.Time) Phase {
	off, size := c.deps.Job.Progress()
	c.estimate = c.est.Update(now.Sub(c.st.Start), off, size, c.st.Details.EstimatedSeconds)
	return Printing
}

func (c *Controller) updateLamp() {
	d := c.m.Display
	level := 0
	switch d.LEDMode {
	case config.LEDAlwaysOn:
		level = c.set.LEDPct
	case config.LEDWhilePrinting:
		if c.printing() {
			level = c.set.LEDPct
		}
	case config.LEDBlinkOnDone:
		switch {
		case c.printing():
			level = c.set.LEDPct
		case c.st.Phase == ReadyCooledDown:
			level = c.set.LEDPct * c.glow.Level() / detailcache.GlowMax
		}
	}
	if level != c.lamp {
		c.lamp = level
		c.deps.Lamp.SetBrightness(level)
	}
}

// printing reports whether a job is heating up or running.
func (c *Controller) printing() bool {
	if c.st.JobActive || c.st.Phase == Heating {
		return true
	}
	overlay := c.st.Phase == Tuning || c.st.Phase == AbortConfirm
	return overlay && c.st.ReturnPhase == Heating
}

// deferred records that action had to wait for queue room. Each wait is
// reported to the observer once.
func (c *Controller) deferred(action string) {
	if c.deferring[action] {
		return
	}
	c.deferring[action] = true
	c.deps.Observer.Deferred(action)
	c.logger.Debug("%s deferred: queue %d/%d", action, c.deps.Motion.Pending(), c.deps.Motion.Capacity())
}

func (c *Controller) clearDeferred(action string) {
	delete(c.deferring, action)
}

func (c *Controller) invalidate() {
	c.dirs.InvalidateAll()
	c.details.Invalidate()
}
