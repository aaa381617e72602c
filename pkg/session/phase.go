package session

// Phase is the print session's current screen and activity.
type Phase uint8

const (
	Selecting Phase = iota
	Heating
	Printing
	Paused
	Tuning
	AbortConfirm
	ClassicWarning
	MaterialWarning
	Ready
	ReadyCooledDown
	ErrorSd
	ErrorPosition
	ChangeMaterial
)

var phaseNames = [...]string{
	Selecting:       "selecting",
	Heating:         "heating",
	Printing:        "printing",
	Paused:          "paused",
	Tuning:          "tuning",
	AbortConfirm:    "abort_confirm",
	ClassicWarning:  "classic_warning",
	MaterialWarning: "material_warning",
	Ready:           "ready",
	ReadyCooledDown: "ready_cooled_down",
	ErrorSd:         "error_sd",
	ErrorPosition:   "error_position",
	ChangeMaterial:  "change_material",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// Phases lists every phase in declaration order.
func Phases() []Phase {
	out := make([]Phase, len(phaseNames))
	for i := range out {
		out[i] = Phase(i)
	}
	return out
}

// Outcome is how a job ended.
type Outcome uint8

const (
	OutcomeCompleted Outcome = iota
	OutcomeAborted
	OutcomeStorageError
	OutcomePositionFault
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeAborted:
		return "aborted"
	case OutcomeStorageError:
		return "storage_error"
	case OutcomePositionFault:
		return "position_fault"
	default:
		return "unknown"
	}
}

// ChangeStage is the step a material change is at.
type ChangeStage uint8

const (
	ChangeHeating ChangeStage = iota
	ChangeUnloading
	ChangeInsert
	ChangeLoading
)

func (s ChangeStage) String() string {
	switch s {
	case ChangeHeating:
		return "heating"
	case ChangeUnloading:
		return "unloading"
	case ChangeInsert:
		return "insert"
	default:
		return "loading"
	}
}

// SelectResult reports what selecting a browser row did.
type SelectResult uint8

const (
	// SelectExit means the back row was chosen at the card root.
	SelectExit SelectResult = iota
	// SelectDirChanged means the browser moved into or out of a directory.
	SelectDirChanged
	// SelectStarted means a file was chosen and the session left Selecting.
	SelectStarted
	// SelectDeferred means the queue was busy; try again later.
	SelectDeferred
	// SelectFailed means the card could not be read.
	SelectFailed
)

func (r SelectResult) String() string {
	switch r {
	case SelectExit:
		return "exit"
	case SelectDirChanged:
		return "dir_changed"
	case SelectStarted:
		return "started"
	case SelectDeferred:
		return "deferred"
	default:
		return "failed"
	}
}

// TuneItem is an adjustable print setting.
type TuneItem uint8

const (
	TuneSpeed TuneItem = iota
	TuneHotend
	TuneBed
	TuneFan
	TuneFlow
	TuneRetractLength
	TuneRetractSpeed
	TuneLED
	numTuneItems
)

var tuneNames = [...]string{
	TuneSpeed:         "speed",
	TuneHotend:        "temperature",
	TuneBed:           "buildplate",
	TuneFan:           "fan",
	TuneFlow:          "flow",
	TuneRetractLength: "retract_length",
	TuneRetractSpeed:  "retract_speed",
	TuneLED:           "led",
}

func (t TuneItem) String() string {
	if int(t) < len(tuneNames) {
		return tuneNames[t]
	}
	return "unknown"
}

// ParseTuneItem maps a name from String back to its item.
func ParseTuneItem(s string) (TuneItem, bool) {
	for i, n := range tuneNames {
		if n == s {
			return TuneItem(i), true
		}
	}
	return 0, false
}
