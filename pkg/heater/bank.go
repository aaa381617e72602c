package heater

import (
	"lcdprint-go/pkg/log"
)

// BedTool addresses the bed in Bank calls; tool 0 is the hotend.
const BedTool = -1

// Bank groups the hotend and bed heaters behind tool numbers.
type Bank struct {
	hotend *Heater
	bed    *Heater
	logger *log.Logger
}

// NewBank returns a bank with a hotend and a bed limited to the given
// maximum temperatures.
func NewBank(maxHotend, maxBed float64) *Bank {
	return &Bank{
		hotend: NewHeater(HotendConfig(maxHotend)),
		bed:    NewHeater(BedConfig(maxBed)),
		logger: log.GetLogger("heater"),
	}
}

func (b *Bank) heater(tool int) *Heater {
	if tool == BedTool {
		return b.bed
	}
	return b.hotend
}

// SetTarget sets a target, clamping it to the heater's range.
func (b *Bank) SetTarget(tool int, celsius float64) {
	h := b.heater(tool)
	err := h.SetTarget(celsius)
	switch err {
	case ErrTargetTooHigh:
		b.logger.WithFields(log.Fields{"heater": h.name, "target": celsius}).Warn("target clamped to maximum")
		h.SetTarget(h.maxTemp)
	case ErrTargetTooLow:
		h.SetTarget(0)
	}
}

// Current returns the heater's temperature.
func (b *Bank) Current(tool int) float64 { return b.heater(tool).Temperature() }

// Target returns the heater's target.
func (b *Bank) Target(tool int) float64 { return b.heater(tool).Target() }

// Update advances both heaters by dt seconds.
func (b *Bank) Update(dt float64) {
	b.hotend.Update(dt)
	b.bed.Update(dt)
}

// Reached reports whether tool is within window of its target. A heater
// that is off counts as reached.
func (b *Bank) Reached(tool int, window float64) bool {
	h := b.heater(tool)
	t := h.Target()
	return t == 0 || h.Temperature() >= t-window
}

// Status returns the hotend and bed status.
func (b *Bank) Status() (hotend, bed Status) {
	return b.hotend.GetStatus(), b.bed.GetStatus()
}
