package session

import (
	"lcdprint-go/pkg/errors"
	"lcdprint-go/pkg/sequencer"
)

// ChangeMaterial swaps the filament from the pause screen: it heats the
// nozzle, unloads, waits for the new material to be confirmed, loads it
// and returns to the pause screen. The head must have finished parking.
func (c *Controller) ChangeMaterial() error {
	if err := c.requirePhase("change material", Paused); err != nil {
		return err
	}
	m := c.deps.Motion
	if m.Planned() > 0 {
		return errors.New(errors.ErrSessionState, "head is still parking").
			SetContext("pending", m.Pending()).
			SetContext("planned", m.Planned())
	}
	c.st.ChangeE = m.ExtruderMM()
	c.st.Change = ChangeHeating
	c.deps.Temperature.SetTarget(0, c.materialTemp())
	c.setPhase(ChangeMaterial)
	c.logger.Info("material change at E%.2f", c.st.ChangeE)
	return nil
}

// materialTemp is the loaded material's hotend temperature for the
// job's nozzle.
func (c *Controller) materialTemp() float64 {
	return c.m.Material.ForNozzle(c.st.Details.NozzleDiameter).Temperature
}

func (c *Controller) stepChange() Phase {
	m := c.deps.Motion
	switch c.st.Change {
	case ChangeHeating:
		t := c.deps.Temperature
		if t.Current(0) < t.Target(0)-c.m.TempWindow {
			break
		}
		if !m.Inject(c.seq.Unload()) {
			c.deferred("change")
			break
		}
		c.clearDeferred("change")
		c.st.Change = ChangeUnloading
	case ChangeUnloading:
		if m.Planned() == 0 {
			c.st.Change = ChangeInsert
		}
	case ChangeLoading:
		if m.Planned() > 0 {
			break
		}
		if !m.Inject([]string{sequencer.SetExtruder(c.st.ChangeE)}) {
			c.deferred("change")
			break
		}
		c.clearDeferred("change")
		c.deps.Temperature.SetTarget(0, c.materialTemp())
		c.logger.Info("material changed")
		return Paused
	}
	return ChangeMaterial
}

// confirmChange loads the new material once it has been inserted.
func (c *Controller) confirmChange() error {
	if c.st.Change != ChangeInsert {
		return errors.SessionStateError("confirm", ChangeMaterial.String()+"/"+c.st.Change.String())
	}
	if !c.deps.Motion.Inject(c.seq.Load()) {
		return errors.New(errors.ErrSessionState, "motion refused the load sequence")
	}
	c.st.Change = ChangeLoading
	return nil
}
