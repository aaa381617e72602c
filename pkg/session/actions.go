package session

import (
	"math"

	"lcdprint-go/pkg/errors"
	"lcdprint-go/pkg/sequencer"
)

// Confirm answers yes on the question screens and acknowledges the end
// screens.
func (c *Controller) Confirm() error {
	switch c.st.Phase {
	case ClassicWarning:
		ok, err := c.startJob()
		if err != nil {
			c.logger.WithError(err).Errorf("cannot start %s", c.st.FileName)
			c.abort(OutcomeStorageError)
			c.setPhase(ErrorSd)
			return err
		}
		if !ok {
			m := c.deps.Motion
			return errors.QueueFullError(m.Pending(), m.Capacity())
		}
		c.setPhase(Printing)
	case MaterialWarning:
		c.setPhase(Heating)
	case AbortConfirm:
		c.abort(OutcomeAborted)
		c.setPhase(Ready)
		c.setPhase(c.step(c.now))
	case ChangeMaterial:
		return c.confirmChange()
	case Ready, ReadyCooledDown, ErrorSd, ErrorPosition:
		return c.Acknowledge()
	default:
		return errors.SessionStateError("confirm", c.st.Phase.String())
	}
	return nil
}

// Cancel answers no on the question screens.
func (c *Controller) Cancel() error {
	switch c.st.Phase {
	case ClassicWarning:
		c.deps.Motion.Clear()
		c.setPhase(Selecting)
	case MaterialWarning:
		c.deps.Motion.Clear()
		c.cooldown()
		c.setPhase(Selecting)
	case AbortConfirm:
		c.setPhase(c.st.ReturnPhase)
	default:
		return errors.SessionStateError("cancel", c.st.Phase.String())
	}
	return nil
}

// RequestPause asks for a pause. The pause command is sent on a later
// tick once the planner is moving and the queue has a free slot.
func (c *Controller) RequestPause() error {
	if err := c.requirePhase("pause", Printing); err != nil {
		return err
	}
	if !c.st.JobActive {
		return errors.SessionStateError("pause", "idle")
	}
	c.st.PauseRequested = true
	return nil
}

// Resume continues a paused job once the planner has drained, that is
// once the head is parked. Job lines queued behind the pause stay queued.
func (c *Controller) Resume() error {
	if err := c.requirePhase("resume", Paused); err != nil {
		return err
	}
	m := c.deps.Motion
	if m.Planned() > 0 {
		return errors.New(errors.ErrSessionState, "head is still parking").
			SetContext("pending", m.Pending()).
			SetContext("planned", m.Planned())
	}
	c.deps.Job.SetPaused(false)
	c.st.Primed = true
	c.setPhase(Printing)
	c.logger.Info("print resumed")
	return nil
}

// OpenTune shows the tune screen over the heating, printing or paused
// screen.
func (c *Controller) OpenTune() error {
	if err := c.requirePhase("tune", Heating, Printing, Paused); err != nil {
		return err
	}
	c.st.ReturnPhase = c.st.Phase
	c.setPhase(Tuning)
	return nil
}

// CloseTune leaves the tune screen.
func (c *Controller) CloseTune() error {
	if err := c.requirePhase("close tune", Tuning); err != nil {
		return err
	}
	c.setPhase(c.resumePhase())
	return nil
}

func (c *Controller) resumePhase() Phase {
	switch {
	case !c.st.JobActive:
		return Heating
	case c.deps.Job.Paused():
		return Paused
	default:
		return Printing
	}
}

// RequestAbort asks the user to confirm aborting the job.
func (c *Controller) RequestAbort() error {
	if err := c.requirePhase("abort", Heating, Printing, Paused, Tuning); err != nil {
		return err
	}
	if c.st.Phase == Tuning {
		c.st.ReturnPhase = c.resumePhase()
	} else {
		c.st.ReturnPhase = c.st.Phase
	}
	c.setPhase(AbortConfirm)
	return nil
}

// Acknowledge dismisses the end and error screens.
func (c *Controller) Acknowledge() error {
	if err := c.requirePhase("acknowledge", Ready, ReadyCooledDown, ErrorSd, ErrorPosition); err != nil {
		return err
	}
	c.st.PositionFault = false
	c.st.ReturnPhase = Selecting
	c.setPhase(Selecting)
	return nil
}

// Tune changes a print setting by delta. Percentages and temperatures
// move in whole units, retraction length in tenths of a millimetre and
// retraction speed in mm/s. Settings that need a command are sent when
// the queue has room.
func (c *Controller) Tune(item TuneItem, delta int) error {
	if err := c.requirePhase("tune", Tuning); err != nil {
		return err
	}
	t := c.deps.Temperature
	switch item {
	case TuneSpeed:
		c.set.SpeedPct = clampInt(c.set.SpeedPct+delta, 10, 1000)
		c.tuneCmds[TuneSpeed] = sequencer.SpeedFactor(c.set.SpeedPct)
	case TuneFlow:
		c.set.FlowPct = clampInt(c.set.FlowPct+delta, 10, 1000)
		c.tuneCmds[TuneFlow] = sequencer.FlowFactor(c.set.FlowPct)
	case TuneFan:
		c.set.FanPct = clampInt(c.set.FanPct+delta, 0, 100)
		c.tuneCmds[TuneFan] = sequencer.FanSpeed(c.set.FanPct)
	case TuneHotend:
		t.SetTarget(0, clampFloat(t.Target(0)+float64(delta), 0, c.m.MaxHotendTemp))
	case TuneBed:
		t.SetTarget(BedTool, clampFloat(t.Target(BedTool)+float64(delta), 0, c.m.MaxBedTemp))
	case TuneRetractLength:
		l := math.Round((c.set.RetractLength+float64(delta)/10)*10) / 10
		c.set.RetractLength = clampFloat(l, 0, 50)
		c.tuneCmds[TuneRetractLength] = sequencer.Retraction(c.set.RetractLength, c.set.RetractSpeed)
	case TuneRetractSpeed:
		c.set.RetractSpeed = clampFloat(c.set.RetractSpeed+float64(delta), 0, c.m.MaxEFeedrate)
		c.tuneCmds[TuneRetractLength] = sequencer.Retraction(c.set.RetractLength, c.set.RetractSpeed)
	case TuneLED:
		c.set.LEDPct = clampInt(c.set.LEDPct+delta, 0, 100)
	default:
		return errors.New(errors.ErrSessionState, "unknown tune item").SetContext("item", int(item))
	}
	c.flushTune()
	return nil
}

// flushTune sends pending tune commands, one queue slot each, in item
// order. Whatever does not fit waits for a later tick.
func (c *Controller) flushTune() {
	for i, cmd := range c.tuneCmds {
		if cmd == "" {
			continue
		}
		if !sequencer.Submit(c.deps.Motion, []string{cmd}) {
			c.deferred("tune")
			return
		}
		c.tuneCmds[i] = ""
	}
	c.clearDeferred("tune")
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
