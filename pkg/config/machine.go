package config

import (
	"time"

	"lcdprint-go/pkg/errors"
)

// LED modes for the case lamp.
const (
	LEDAlwaysOn      = "always_on"
	LEDWhilePrinting = "while_printing"
	LEDBlinkOnDone   = "blink_on_done"
	LEDOff           = "off"
)

// Priming configures the nozzle priming done before each print.
type Priming struct {
	Enabled bool
	// Height is the Z lift before priming (mm).
	Height float64
	// Retraction is the end-of-print retraction (mm of filament).
	Retraction float64
	// RecoverySpeed undoes the retraction (mm/s).
	RecoverySpeed float64
	// Volume is the extra priming volume (mm³).
	Volume float64
	// Rate is the priming flow (mm³/s).
	Rate float64
}

// MaterialChange configures the filament swap offered on the pause menu.
type MaterialChange struct {
	// Length is how far filament is pulled out and fed back in (mm).
	Length float64
	// Speed is the unload and load feed (mm/s).
	Speed float64
	// PrimeLength is extruded after loading (mm).
	PrimeLength float64
	PrimeSpeed  float64 // mm/s
}

// Display configures the browser caches and the front panel.
type Display struct {
	CacheSlots    int
	NameLength    int
	RefreshHz     float64
	LEDMode       string
	LEDBrightness int
}

// Estimator configures the remaining-time smoother.
type Estimator struct {
	SmoothingWeight float64
	UnknownWindow   time.Duration
}

// Machine is everything the session controller needs from the config.
type Machine struct {
	XMax, YMax, ZMax float64
	OffsetX, OffsetY float64

	QueueCapacity   int
	MaxEFeedrate    float64 // mm/s
	HomingFeedrateZ float64 // mm/min
	MaxHotendTemp   float64
	MaxBedTemp      float64
	// TempWindow is how close to target counts as heated (°C).
	TempWindow float64

	Priming   Priming
	Display   Display
	Estimator Estimator

	Materials *MaterialTable
	Material  Material
	Change    MaterialChange
}

// DefaultMachine returns the settings of a stock 230x225x205 machine.
func DefaultMachine() Machine {
	return Machine{
		XMax:            230,
		YMax:            225,
		ZMax:            205,
		QueueCapacity:   16,
		MaxEFeedrate:    45,
		HomingFeedrateZ: 2400,
		MaxHotendTemp:   275,
		MaxBedTemp:      100,
		TempWindow:      1,
		Priming: Priming{
			Enabled:       true,
			Height:        20,
			Retraction:    20,
			RecoverySpeed: 5,
			Volume:        10,
			Rate:          5,
		},
		Display: Display{
			CacheSlots:    6,
			NameLength:    26,
			RefreshHz:     10,
			LEDMode:       LEDWhilePrinting,
			LEDBrightness: 100,
		},
		Estimator: Estimator{
			SmoothingWeight: 999,
			UnknownWindow:   60 * time.Second,
		},
		Material: DefaultMaterial(),
		Change: MaterialChange{
			Length:      700,
			Speed:       40,
			PrimeLength: 20,
			PrimeSpeed:  2,
		},
	}
}

// LoadMachine reads a config file and derives the machine settings.
func LoadMachine(path string) (Machine, *Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return Machine{}, nil, err
	}
	m, err := MachineFromConfig(cfg)
	if err != nil {
		if he, ok := err.(*errors.HostError); ok {
			return Machine{}, nil, errors.WithConfigPath(he, path)
		}
		return Machine{}, nil, err
	}
	return m, cfg, nil
}

// MachineFromConfig derives machine settings from parsed sections.
// Missing sections and options keep their defaults.
func MachineFromConfig(cfg *Config) (Machine, error) {
	m := DefaultMachine()
	var err error

	positive := FloatBounds{Above: ptr(0.0)}
	nonNeg := FloatBounds{MinVal: ptr(0.0)}

	sec := cfg.GetSectionOptional("machine")
	if m.XMax, err = sec.GetFloatWithBounds("x_max", positive, m.XMax); err != nil {
		return m, err
	}
	if m.YMax, err = sec.GetFloatWithBounds("y_max", positive, m.YMax); err != nil {
		return m, err
	}
	if m.ZMax, err = sec.GetFloatWithBounds("z_max", FloatBounds{Above: ptr(60.0)}, m.ZMax); err != nil {
		return m, err
	}
	if m.OffsetX, err = sec.GetFloat("extruder_offset_x", m.OffsetX); err != nil {
		return m, err
	}
	if m.OffsetY, err = sec.GetFloat("extruder_offset_y", m.OffsetY); err != nil {
		return m, err
	}
	if m.QueueCapacity, err = sec.GetIntRange("queue_capacity", 8, 256, m.QueueCapacity); err != nil {
		return m, err
	}
	if m.MaxEFeedrate, err = sec.GetFloatWithBounds("max_e_feedrate", positive, m.MaxEFeedrate); err != nil {
		return m, err
	}
	if m.HomingFeedrateZ, err = sec.GetFloatWithBounds("homing_feedrate_z", positive, m.HomingFeedrateZ); err != nil {
		return m, err
	}
	if m.MaxHotendTemp, err = sec.GetFloatWithBounds("max_hotend_temp", positive, m.MaxHotendTemp); err != nil {
		return m, err
	}
	if m.MaxBedTemp, err = sec.GetFloatWithBounds("max_bed_temp", positive, m.MaxBedTemp); err != nil {
		return m, err
	}
	if m.TempWindow, err = sec.GetFloatWithBounds("temp_window", nonNeg, m.TempWindow); err != nil {
		return m, err
	}

	sec = cfg.GetSectionOptional("priming")
	p := &m.Priming
	if p.Enabled, err = sec.GetBool("enabled", p.Enabled); err != nil {
		return m, err
	}
	if p.Height, err = sec.GetFloatWithBounds("height", nonNeg, p.Height); err != nil {
		return m, err
	}
	if p.Retraction, err = sec.GetFloatWithBounds("end_of_print_retraction", nonNeg, p.Retraction); err != nil {
		return m, err
	}
	if p.RecoverySpeed, err = sec.GetFloatWithBounds("recovery_speed", positive, p.RecoverySpeed); err != nil {
		return m, err
	}
	if p.Volume, err = sec.GetFloatWithBounds("volume", nonNeg, p.Volume); err != nil {
		return m, err
	}
	if p.Rate, err = sec.GetFloatWithBounds("rate", positive, p.Rate); err != nil {
		return m, err
	}

	sec = cfg.GetSectionOptional("display")
	d := &m.Display
	if d.CacheSlots, err = sec.GetIntRange("cache_slots", 1, 32, d.CacheSlots); err != nil {
		return m, err
	}
	if d.NameLength, err = sec.GetIntRange("name_length", 8, 64, d.NameLength); err != nil {
		return m, err
	}
	if d.RefreshHz, err = sec.GetFloatWithBounds("refresh_hz", FloatBounds{Above: ptr(0.0), MaxVal: ptr(100.0)}, d.RefreshHz); err != nil {
		return m, err
	}
	modes := []string{LEDAlwaysOn, LEDWhilePrinting, LEDBlinkOnDone, LEDOff}
	if d.LEDMode, err = sec.GetChoice("led_mode", modes, d.LEDMode); err != nil {
		return m, err
	}
	if d.LEDBrightness, err = sec.GetIntRange("led_brightness", 0, 100, d.LEDBrightness); err != nil {
		return m, err
	}

	sec = cfg.GetSectionOptional("estimator")
	e := &m.Estimator
	if e.SmoothingWeight, err = sec.GetFloatWithBounds("smoothing_weight", nonNeg, e.SmoothingWeight); err != nil {
		return m, err
	}
	if e.UnknownWindow, err = sec.GetDuration("unknown_window", e.UnknownWindow); err != nil {
		return m, err
	}

	sec = cfg.GetSectionOptional("material")
	ch := &m.Change
	if ch.Length, err = sec.GetFloatWithBounds("change_length", positive, ch.Length); err != nil {
		return m, err
	}
	feed := FloatBounds{Above: ptr(0.0), MaxVal: ptr(m.MaxEFeedrate)}
	if ch.Speed, err = sec.GetFloatWithBounds("change_speed", feed, ch.Speed); err != nil {
		return m, err
	}
	if ch.PrimeLength, err = sec.GetFloatWithBounds("change_prime_length", nonNeg, ch.PrimeLength); err != nil {
		return m, err
	}
	if ch.PrimeSpeed, err = sec.GetFloatWithBounds("change_prime_speed", feed, ch.PrimeSpeed); err != nil {
		return m, err
	}
	profiles, err := sec.Get("profiles", "")
	if err != nil {
		return m, err
	}
	loaded, err := sec.Get("loaded", m.Material.Name)
	if err != nil {
		return m, err
	}
	if profiles != "" {
		table, err := LoadMaterials(cfg.Resolve(profiles))
		if err != nil {
			return m, err
		}
		m.Materials = table
		mat, ok := table.Find(loaded)
		if !ok {
			return m, errors.ConfigValidationError("material", "loaded",
				"material '"+loaded+"' not found in profiles")
		}
		m.Material = mat
	} else if loaded != m.Material.Name {
		m.Material.Name = loaded
	}
	return m, nil
}

func ptr(v float64) *float64 { return &v }
