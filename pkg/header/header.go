// Package header scans the leading comment lines of a G-code file for the
// slicer tags the print browser shows: estimated time, material volume,
// nozzle diameter and material type.
package header

import (
	stderrors "errors"
	"io"
	"strconv"
	"strings"

	"lcdprint-go/pkg/errors"
)

const (
	// MaxLines bounds how many lines a scan reads.
	MaxLines = 16
	// MaxLineBytes is the line buffer size; a read asks for one byte less.
	MaxLineBytes = 64
	// MaxTypeLen bounds the material type text.
	MaxTypeLen = 7
	// DefaultNozzle is assumed when the file does not declare one.
	DefaultNozzle = 0.4
)

const (
	tagTime     = ";TIME:"
	tagMaterial = ";MATERIAL:"
	tagNozzle   = ";NOZZLE_DIAMETER:"
	tagType     = ";MTYPE:"

	// FlavorMarker identifies files written for machine-controlled settings.
	FlavorMarker = ";FLAVOR:UltiGCode"
)

// LineReader returns the next line of at most max bytes, including the
// newline if it fit. It returns io.EOF once no bytes remain.
type LineReader interface {
	ReadLine(max int) (string, error)
}

// File is an open file on the card.
type File interface {
	LineReader
	io.Closer
}

// Details are the tags found in a file header.
type Details struct {
	EstimatedSeconds uint32
	MaterialMM3      uint32
	NozzleDiameter   float64
	MaterialType     string
}

// HasTime reports whether the slicer supplied a time estimate.
func (d Details) HasTime() bool { return d.EstimatedSeconds > 0 }

// Defaults returns the details of a file with no recognised tags.
func Defaults() Details {
	return Details{NozzleDiameter: DefaultNozzle}
}

// Flavor classifies who owns the machine settings during a print.
type Flavor uint8

const (
	// FlavorClassic files issue their own temperatures and fan settings.
	FlavorClassic Flavor = iota
	// FlavorMachine files leave settings to the loaded material profile.
	FlavorMachine
)

func (f Flavor) String() string {
	if f == FlavorMachine {
		return "machine"
	}
	return "classic"
}

// Parse scans at most MaxLines lines of r. Reaching EOF ends the scan
// normally; any other read error aborts it.
func Parse(r LineReader) (Details, error) {
	d := Defaults()
	for n := 0; n < MaxLines; n++ {
		line, err := readTrimmed(r)
		if err != nil {
			if stderrors.Is(err, io.EOF) && line == "" {
				return d, nil
			}
			if !stderrors.Is(err, io.EOF) {
				return Defaults(), errors.HeaderParseError(n+1, err)
			}
		}
		apply(&d, line)
		if err != nil {
			return d, nil
		}
	}
	return d, nil
}

func apply(d *Details, line string) {
	switch {
	case strings.HasPrefix(line, tagTime):
		d.EstimatedSeconds = uint32(atol(line[len(tagTime):]))
	case strings.HasPrefix(line, tagMaterial):
		d.MaterialMM3 = uint32(atol(line[len(tagMaterial):]))
	case strings.HasPrefix(line, tagNozzle):
		d.NozzleDiameter = strtod(line[len(tagNozzle):])
	case strings.HasPrefix(line, tagType):
		t := line[len(tagType):]
		if len(t) > MaxTypeLen {
			t = t[:MaxTypeLen]
		}
		d.MaterialType = t
	}
}

// DetectFlavor reads at most two lines and reports FlavorMachine when one
// of them is exactly the flavor marker.
func DetectFlavor(r LineReader) (Flavor, error) {
	for n := 0; n < 2; n++ {
		line, err := readTrimmed(r)
		if line == FlavorMarker {
			return FlavorMachine, nil
		}
		if err != nil {
			if stderrors.Is(err, io.EOF) {
				return FlavorClassic, nil
			}
			return FlavorClassic, errors.HeaderParseError(n+1, err)
		}
	}
	return FlavorClassic, nil
}

func readTrimmed(r LineReader) (string, error) {
	line, err := r.ReadLine(MaxLineBytes - 1)
	if len(line) > MaxLineBytes-1 {
		line = line[:MaxLineBytes-1]
	}
	for len(line) > 0 && line[len(line)-1] < ' ' {
		line = line[:len(line)-1]
	}
	return line, err
}

// atol parses leading decimal digits after optional spaces and sign;
// anything unparsable is zero.
func atol(s string) int64 {
	s = strings.TrimLeft(s, " \t")
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	v, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil || v < 0 || v > int64(^uint32(0)) {
		return 0
	}
	return v
}

// strtod parses the longest leading float prefix; anything unparsable is
// zero.
func strtod(s string) float64 {
	s = strings.TrimLeft(s, " \t")
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := false
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
		digits = true
	}
	if end < len(s) && s[end] == '.' {
		end++
		for end < len(s) && s[end] >= '0' && s[end] <= '9' {
			end++
			digits = true
		}
	}
	if !digits {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s[:end], "."), 64)
	if err != nil {
		return 0
	}
	return v
}
