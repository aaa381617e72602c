package config

import (
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"lcdprint-go/pkg/errors"
)

// NozzleSizes are the nozzle diameters material settings are tabulated for.
var NozzleSizes = [...]float64{0.25, 0.4, 0.6, 0.8}

// NozzleIndex maps a nozzle diameter to its index in NozzleSizes.
func NozzleIndex(d float64) int {
	switch {
	case d < 0.3:
		return 0
	case d > 0.7:
		return 3
	case d > 0.5:
		return 2
	default:
		return 1
	}
}

// NozzleSettings holds the per-nozzle part of a material profile.
type NozzleSettings struct {
	Size             float64 `yaml:"size"`
	Temperature      float64 `yaml:"temperature"`
	RetractionLength float64 `yaml:"retraction_length"` // mm
	RetractionSpeed  float64 `yaml:"retraction_speed"`  // mm/s
}

// Material is one profile from the materials file.
type Material struct {
	Name           string           `yaml:"name"`
	Diameter       float64          `yaml:"diameter"`
	BedTemperature float64          `yaml:"bed_temperature"`
	FanSpeed       int              `yaml:"fan_speed"` // percent
	Flow           int              `yaml:"flow"`      // percent
	Nozzles        []NozzleSettings `yaml:"nozzles"`
}

// DefaultMaterial is used when no profile file is configured.
func DefaultMaterial() Material {
	return Material{
		Name:           "PLA",
		Diameter:       2.85,
		BedTemperature: 60,
		FanSpeed:       100,
		Flow:           100,
		Nozzles: []NozzleSettings{
			{Size: 0.25, Temperature: 195, RetractionLength: 4.5, RetractionSpeed: 25},
			{Size: 0.4, Temperature: 210, RetractionLength: 4.5, RetractionSpeed: 25},
			{Size: 0.6, Temperature: 230, RetractionLength: 6.0, RetractionSpeed: 25},
			{Size: 0.8, Temperature: 240, RetractionLength: 6.5, RetractionSpeed: 25},
		},
	}
}

// ForNozzle returns the settings for the nozzle diameter d. Profiles that
// skip a size fall back to the closest listed one.
func (m Material) ForNozzle(d float64) NozzleSettings {
	if len(m.Nozzles) == 0 {
		return NozzleSettings{Size: d}
	}
	want := NozzleSizes[NozzleIndex(d)]
	best := m.Nozzles[0]
	for _, n := range m.Nozzles[1:] {
		if math.Abs(n.Size-want) < math.Abs(best.Size-want) {
			best = n
		}
	}
	return best
}

// VolumeToLength returns millimetres of filament per cubic millimetre.
func (m Material) VolumeToLength() float64 {
	r := m.Diameter / 2
	return 1 / (math.Pi * r * r)
}

// MaterialTable is the parsed materials file.
type MaterialTable struct {
	Materials []Material `yaml:"materials"`
}

// Find looks up a material by name, ignoring case.
func (t *MaterialTable) Find(name string) (Material, bool) {
	if t == nil {
		return Material{}, false
	}
	for _, m := range t.Materials {
		if strings.EqualFold(m.Name, name) {
			return m, true
		}
	}
	return Material{}, false
}

// ParseMaterials decodes a materials document.
func ParseMaterials(data []byte) (*MaterialTable, error) {
	var t MaterialTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigType, "invalid materials document").
			SetSection("material")
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// LoadMaterials reads and decodes a materials file.
func LoadMaterials(path string) (*MaterialTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithConfigPath(
			errors.Wrap(err, errors.ErrConfigOption, "unable to read materials file").
				SetSection("material").SetOption("profiles"), path)
	}
	t, err := ParseMaterials(data)
	if err != nil {
		if he, ok := err.(*errors.HostError); ok {
			return nil, errors.WithConfigPath(he, path)
		}
		return nil, err
	}
	return t, nil
}

func (t *MaterialTable) validate() error {
	if len(t.Materials) == 0 {
		return errors.ConfigValidationError("material", "profiles", "no materials defined")
	}
	seen := make(map[string]bool, len(t.Materials))
	for i := range t.Materials {
		m := &t.Materials[i]
		key := strings.ToLower(m.Name)
		if key == "" {
			return errors.ConfigValidationError("material", "profiles", fmt.Sprintf("material %d has no name", i))
		}
		if seen[key] {
			return errors.ConfigValidationError("material", "profiles", fmt.Sprintf("duplicate material %q", m.Name))
		}
		seen[key] = true
		if m.Diameter <= 0 {
			m.Diameter = 2.85
		}
		if m.Flow <= 0 {
			m.Flow = 100
		}
		if m.FanSpeed < 0 || m.FanSpeed > 100 {
			return errors.ConfigValidationError("material", "profiles",
				fmt.Sprintf("material %q fan_speed %d outside 0..100", m.Name, m.FanSpeed))
		}
	}
	return nil
}
