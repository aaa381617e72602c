// Package heater models the hotend and bed: a PID loop drives a
// first-order thermal model, so the front panel sees realistic heat-up
// curves without hardware.
package heater

import (
	"errors"
	"math"
	"sync"
)

// Heater control errors
var (
	ErrTargetTooHigh = errors.New("heater: target temperature too high")
	ErrTargetTooLow  = errors.New("heater: target temperature too low")
)

// PIDParams holds PID controller parameters.
type PIDParams struct {
	Kp float64 // Proportional gain
	Ki float64 // Integral gain
	Kd float64 // Derivative gain
}

// DefaultPIDParams returns sensible default PID parameters.
func DefaultPIDParams() PIDParams {
	return PIDParams{
		Kp: 0.05,
		Ki: 0.005,
		Kd: 0.25,
	}
}

// Config holds configuration for a heater.
type Config struct {
	Name    string
	PID     PIDParams
	MaxTemp float64
	// Ambient is where the model settles with the heater off (°C).
	Ambient float64
	// HeatRate is the temperature rise at full power (°C/s).
	HeatRate float64
	// Loss is the fraction of the excess over ambient lost per second.
	Loss float64
}

// HotendConfig returns a fast-heating nozzle.
func HotendConfig(maxTemp float64) Config {
	return Config{
		Name:     "hotend",
		PID:      DefaultPIDParams(),
		MaxTemp:  maxTemp,
		Ambient:  20,
		HeatRate: 4,
		Loss:     0.01,
	}
}

// BedConfig returns a slow-heating build plate.
func BedConfig(maxTemp float64) Config {
	return Config{
		Name:     "bed",
		PID:      PIDParams{Kp: 0.2, Ki: 0.01, Kd: 0.5},
		MaxTemp:  maxTemp,
		Ambient:  20,
		HeatRate: 1,
		Loss:     0.008,
	}
}

// Heater is a PID-controlled simulated heater.
type Heater struct {
	mu sync.RWMutex

	name     string
	pid      PIDParams
	maxTemp  float64
	ambient  float64
	heatRate float64
	loss     float64

	temp    float64
	target  float64
	enabled bool
	pwmDuty float64

	prevError float64
	integral  float64
}

// NewHeater creates a heater at ambient temperature.
func NewHeater(cfg Config) *Heater {
	return &Heater{
		name:     cfg.Name,
		pid:      cfg.PID,
		maxTemp:  cfg.MaxTemp,
		ambient:  cfg.Ambient,
		heatRate: cfg.HeatRate,
		loss:     cfg.Loss,
		temp:     cfg.Ambient,
	}
}

// SetTarget sets the target temperature. Zero switches the heater off.
func (h *Heater) SetTarget(target float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if target > h.maxTemp {
		return ErrTargetTooHigh
	}
	if target < 0 {
		return ErrTargetTooLow
	}

	h.target = target
	if target == 0 {
		h.enabled = false
		h.pwmDuty = 0
		h.integral = 0
	} else {
		h.enabled = true
	}
	return nil
}

// Target returns the target temperature.
func (h *Heater) Target() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.target
}

// Temperature returns the modelled temperature.
func (h *Heater) Temperature() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.temp
}

// PWM returns the current duty cycle.
func (h *Heater) PWM() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.pwmDuty
}

// Update advances the PID loop and the thermal model by dt seconds.
func (h *Heater) Update(dt float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if dt <= 0 {
		return
	}

	if h.enabled {
		err := h.target - h.temp

		p := h.pid.Kp * err

		// Integral term with anti-windup
		h.integral += err * dt
		if h.pid.Ki > 0 {
			maxIntegral := 1 / h.pid.Ki
			h.integral = math.Max(-maxIntegral, math.Min(maxIntegral, h.integral))
		}
		i := h.pid.Ki * h.integral

		d := h.pid.Kd * (err - h.prevError) / dt
		h.prevError = err

		h.pwmDuty = math.Max(0, math.Min(1, p+i+d))
	} else {
		h.pwmDuty = 0
	}

	h.temp += (h.pwmDuty*h.heatRate - (h.temp-h.ambient)*h.loss) * dt
}

// Status holds heater status information.
type Status struct {
	Name        string
	Target      float64
	Temperature float64
	PWMDuty     float64
	IsEnabled   bool
}

// GetStatus returns the current heater status.
func (h *Heater) GetStatus() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Status{
		Name:        h.name,
		Target:      h.target,
		Temperature: h.temp,
		PWMDuty:     h.pwmDuty,
		IsEnabled:   h.enabled,
	}
}
