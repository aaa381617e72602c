package session

import (
	"lcdprint-go/pkg/header"
)

// Storage is the card: directory listing, file access and the error latch.
type Storage interface {
	Inserted() bool
	Ready() bool
	Init() error
	AtRoot() bool
	ChDir(name string) error
	UpDir() error
	EntryCount() (int, error)
	NameAt(i int) (name string, isDir bool, err error)
	Open(name string) (header.File, error)
	ErrorPending() bool
	ClearError()
	// Generation changes whenever the medium or the current directory
	// changes underneath the browser.
	Generation() uint64
}

// Motion is the planner's bounded command queue.
type Motion interface {
	Enqueue(cmd string) bool
	Pending() int
	Capacity() int
	// Planned returns the number of moves the planner is executing.
	Planned() int
	Clear()
	EmergencyStop()
	PositionFault() bool
	HeightMM() float64
	ExtruderMM() float64
	// HeatWait reports the heater a running M109 or M190 waits on.
	HeatWait() (tool int, waiting bool)
	// Inject runs cmds ahead of the queue, also while the head is parked
	// for a pause.
	Inject(cmds []string) bool
}

// BedTool addresses the heated bed in Temperature calls.
const BedTool = -1

// Temperature controls the hotend (tool 0) and the bed.
type Temperature interface {
	SetTarget(tool int, celsius float64)
	Current(tool int) float64
	Target(tool int) float64
}

// Job streams the selected file into the motion queue.
type Job interface {
	Start(name string) error
	Active() bool
	Paused() bool
	SetPaused(paused bool)
	Stop()
	Progress() (offset, size int64)
}

// Sink receives every rendered view.
type Sink interface {
	Render(v View)
}

// Lamp is the case light.
type Lamp interface {
	SetBrightness(pct int)
}

// Observer is told about session events, for statistics.
type Observer interface {
	PhaseChanged(from, to Phase)
	JobStarted(name string, flavor header.Flavor)
	JobFinished(name string, outcome Outcome)
	CacheLookup(cache string, hit bool)
	Deferred(action string)
}

// Deps are the collaborators a Controller drives.
type Deps struct {
	Storage     Storage
	Motion      Motion
	Temperature Temperature
	Job         Job
	Sink        Sink
	// Lamp and Observer are optional.
	Lamp     Lamp
	Observer Observer
}

type nopObserver struct{}

func (nopObserver) PhaseChanged(Phase, Phase)        {}
func (nopObserver) JobStarted(string, header.Flavor) {}
func (nopObserver) JobFinished(string, Outcome)      {}
func (nopObserver) CacheLookup(string, bool)         {}
func (nopObserver) Deferred(string)                  {}

type nopLamp struct{}

func (nopLamp) SetBrightness(int) {}

type nopSink struct{}

func (nopSink) Render(View) {}

// Observers fans events out to several observers.
type Observers []Observer

func (o Observers) PhaseChanged(from, to Phase) {
	for _, x := range o {
		x.PhaseChanged(from, to)
	}
}

func (o Observers) JobStarted(name string, flavor header.Flavor) {
	for _, x := range o {
		x.JobStarted(name, flavor)
	}
}

func (o Observers) JobFinished(name string, outcome Outcome) {
	for _, x := range o {
		x.JobFinished(name, outcome)
	}
}

func (o Observers) CacheLookup(cache string, hit bool) {
	for _, x := range o {
		x.CacheLookup(cache, hit)
	}
}

func (o Observers) Deferred(action string) {
	for _, x := range o {
		x.Deferred(action)
	}
}
