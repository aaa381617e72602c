// Package progress turns elapsed time and byte progress into the remaining
// time and bar position shown while printing.
package progress

import (
	"fmt"
	"math"
	"time"
)

const (
	// DefaultWeight is how many parts history outweighs a new sample.
	DefaultWeight = 999
	// DefaultUnknownWindow is how long a job without a slicer estimate
	// shows "unknown" before trusting the measured rate.
	DefaultUnknownWindow = 60 * time.Second
	// BarMax is the last position of the printing progress bar.
	BarMax = 124
)

// Estimate is the derived view of one Update.
type Estimate struct {
	Elapsed       time.Duration
	Consumed      int64
	Total         int64
	CachedSeconds uint32
	// SmoothedTotal is the smoothed measured total in seconds.
	SmoothedTotal float64
	// TotalSeconds is the blended total the remaining time derives from.
	TotalSeconds float64
	Remaining    time.Duration
	Known        bool
	Fraction     int
}

// Estimator smooths the measured total print time. One Estimator serves
// one job; Reset it when a new job starts.
type Estimator struct {
	weight  float64
	unknown time.Duration
	smooth  float64
}

// NewEstimator returns an estimator. A negative weight or a non-positive
// window selects the default.
func NewEstimator(weight float64, unknownWindow time.Duration) *Estimator {
	if weight < 0 {
		weight = DefaultWeight
	}
	if unknownWindow <= 0 {
		unknownWindow = DefaultUnknownWindow
	}
	return &Estimator{weight: weight, unknown: unknownWindow}
}

// Reset forgets the smoothed history.
func (e *Estimator) Reset() {
	e.smooth = 0
}

// Smoothed returns the current smoothed total in seconds.
func (e *Estimator) Smoothed() float64 {
	return e.smooth
}

// Update feeds one sample and returns the resulting estimate.
func (e *Estimator) Update(elapsed time.Duration, consumed, total int64, cachedSeconds uint32) Estimate {
	est := Estimate{
		Elapsed:       elapsed,
		Consumed:      consumed,
		Total:         total,
		CachedSeconds: cachedSeconds,
		Fraction:      Fraction(consumed, total),
	}
	secs := elapsed.Seconds()

	inst := math.Inf(1)
	if consumed > 0 {
		inst = secs * float64(total) / float64(consumed)
	}
	if finite(inst) {
		e.smooth = (e.smooth*e.weight + inst) / (e.weight + 1)
		if !finite(e.smooth) {
			e.smooth = inst
		}
	}

	cached := float64(cachedSeconds)
	if cachedSeconds == 0 && elapsed < e.unknown {
		if finite(inst) {
			e.smooth = inst
		}
		est.SmoothedTotal = e.smooth
		return est
	}

	totalSecs := e.smooth
	if half := cached / 2; half > 0 && secs < half {
		f := secs / half
		totalSecs = e.smooth*f + cached*(1-f)
	}
	est.SmoothedTotal = e.smooth
	est.TotalSeconds = totalSecs
	if !finite(totalSecs) || totalSecs <= 0 {
		return est
	}

	est.Known = true
	remaining := math.Floor(totalSecs - secs + 1e-9)
	if remaining < 1 {
		remaining = 1
	}
	est.Remaining = time.Duration(remaining) * time.Second
	return est
}

// Fraction maps byte progress onto the 0..BarMax bar scale.
func Fraction(consumed, total int64) int {
	if total <= 0 || consumed <= 0 {
		return 0
	}
	f := consumed / ((total + BarMax - 1) / BarMax)
	if f > BarMax {
		f = BarMax
	}
	return int(f)
}

// FormatDuration renders d as 1h05m, 4m12s or 12s.
func FormatDuration(d time.Duration) string {
	s := int64(d / time.Second)
	if s < 0 {
		s = 0
	}
	switch {
	case s >= 3600:
		return fmt.Sprintf("%dh%02dm", s/3600, (s%3600)/60)
	case s >= 60:
		return fmt.Sprintf("%dm%02ds", s/60, s%60)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

func finite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}
