package session

import (
	"time"

	"lcdprint-go/pkg/header"
)

// State is the session's owned status. Controller is its only writer.
type State struct {
	Phase Phase
	// ReturnPhase is where Tuning and AbortConfirm go back to.
	ReturnPhase Phase

	// Primed is set once the nozzle has been primed and cleared by pause
	// and abort, so the next start or abort knows whether to retract.
	Primed         bool
	PauseRequested bool
	PositionFault  bool
	JobActive      bool
	// AbortPending holds an abort sequence that did not fit the queue yet.
	AbortPending bool

	Start       time.Time
	FileName    string
	DisplayName string
	Flavor      header.Flavor
	Details     header.Details

	LastOutcome Outcome
	Finished    bool

	// Change is the material change step; ChangeE is the extruder
	// position restored when it returns to the pause screen.
	Change  ChangeStage
	ChangeE float64
}

// Settings are the tunable print parameters of the current job.
type Settings struct {
	SpeedPct int
	FlowPct  int
	FanPct   int

	RetractLength float64 // mm
	RetractSpeed  float64 // mm/s

	LEDPct int

	// VolumeToLength converts mm³ to mm of filament; 1 for classic files.
	VolumeToLength float64
}

func defaultSettings(ledPct int) Settings {
	return Settings{
		SpeedPct:       100,
		FlowPct:        100,
		FanPct:         100,
		LEDPct:         ledPct,
		VolumeToLength: 1,
	}
}
