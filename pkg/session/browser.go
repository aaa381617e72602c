package session

import (
	"strings"

	"lcdprint-go/pkg/config"
	"lcdprint-go/pkg/dircache"
	"lcdprint-go/pkg/errors"
	"lcdprint-go/pkg/header"
	"lcdprint-go/pkg/log"
	"lcdprint-go/pkg/sequencer"
)

// displayNameMax bounds the file name shown while printing.
const displayNameMax = 20

type browseStatus uint8

const (
	browseOK browseStatus = iota
	browseNoCard
	browseReading
	browseEmpty
)

// Row is one line of the file browser. Row 0 is the back row.
type Row struct {
	Index int
	Text  string
	Dir   bool
	Back  bool
}

func (c *Controller) stepSelecting() Phase {
	s := c.deps.Storage
	switch {
	case !s.Inserted():
		c.browse = browseNoCard
		c.cursor = 0
		return Selecting
	case !s.Ready():
		c.browse = browseReading
		c.invalidate()
		if err := s.Init(); err != nil {
			c.logger.WithError(err).Debug("card init failed")
			s.ClearError()
		}
		return Selecting
	}

	n, ok := c.count()
	switch {
	case !ok:
		c.browse = browseReading
		return Selecting
	case n == 0:
		c.browse = browseEmpty
	default:
		c.browse = browseOK
	}
	if c.cursor > n {
		c.cursor = n
	}
	if c.cursor > 0 {
		c.ensureDetails(c.cursor)
	}
	return Selecting
}

// count returns the number of listing entries, reading it from the card
// when the cache does not hold it.
func (c *Controller) count() (int, bool) {
	if n, ok := c.dirs.Count(); ok {
		return n, true
	}
	n, err := c.deps.Storage.EntryCount()
	if err != nil {
		c.deps.Storage.ClearError()
		return 0, false
	}
	c.dirs.SetCount(n)
	return n, true
}

func (c *Controller) ensureDetails(row int) {
	loaded, err := c.details.Ensure(row, c.tick)
	c.deps.Observer.CacheLookup("detail", !loaded)
	if err != nil {
		c.logger.WithError(err).WithField("row", row).Debug("no file details")
	}
}

// Cursor returns the highlighted browser row.
func (c *Controller) Cursor() int { return c.cursor }

// MoveCursor moves the highlight by delta rows, within the listing.
func (c *Controller) MoveCursor(delta int) int {
	n, ok := c.count()
	if !ok {
		n = 0
	}
	c.cursor += delta
	if c.cursor < 0 {
		c.cursor = 0
	}
	if c.cursor > n {
		c.cursor = n
	}
	return c.cursor
}

// Rows returns up to n browser rows starting at row first. Names come
// from the listing cache and are read from the card on a miss.
func (c *Controller) Rows(first, n int) []Row {
	s := c.deps.Storage
	if first < 0 || n <= 0 || !s.Ready() {
		return nil
	}
	count, ok := c.count()
	if !ok {
		return nil
	}

	var rows []Row
	for r := first; r < first+n && r <= count; r++ {
		if r == 0 {
			back := "< BACK"
			if s.AtRoot() {
				back = "< RETURN"
			}
			rows = append(rows, Row{Text: back, Back: true})
			continue
		}

		e, hit := c.dirs.Get(r - 1)
		c.deps.Observer.CacheLookup("dir", hit)
		if !hit {
			name, isDir, err := s.NameAt(r - 1)
			if err != nil {
				s.ClearError()
				rows = append(rows, Row{Index: r})
				continue
			}
			kind := dircache.File
			if isDir {
				kind = dircache.Directory
			}
			c.dirs.Put(r-1, name, kind)
			e, _ = c.dirs.Get(r - 1)
		}
		rows = append(rows, Row{Index: r, Text: e.Name, Dir: e.Kind == dircache.Directory})
	}
	return rows
}

// Select acts on browser row: the back row leaves the directory (or the
// browser at the root), a directory is entered and a file is prepared
// for printing.
func (c *Controller) Select(row int) SelectResult {
	if c.st.Phase != Selecting {
		return SelectFailed
	}
	s := c.deps.Storage
	if !s.Ready() {
		return SelectFailed
	}

	if row <= 0 {
		if s.AtRoot() {
			return SelectExit
		}
		if err := s.UpDir(); err != nil {
			c.logger.WithError(err).Warn("cannot leave directory")
			s.ClearError()
			return SelectFailed
		}
		c.invalidate()
		c.cursor = 0
		return SelectDirChanged
	}

	name, isDir, err := s.NameAt(row - 1)
	if err != nil {
		s.ClearError()
		c.dirs.Invalidate(row - 1)
		return SelectFailed
	}
	if isDir {
		if err := s.ChDir(name); err != nil {
			c.logger.WithError(err).WithField("dir", name).Warn("cannot enter directory")
			s.ClearError()
			return SelectFailed
		}
		c.invalidate()
		c.cursor = 0
		return SelectDirChanged
	}

	if c.deps.Motion.Pending() > 0 {
		c.deferred("start")
		return SelectDeferred
	}
	c.clearDeferred("start")

	flavor, details, err := c.inspect(row, name)
	if err != nil {
		c.logger.WithError(err).WithField("file", name).Warn("cannot read file")
		return SelectFailed
	}
	return c.prepare(name, flavor, details)
}

func (c *Controller) inspect(row int, name string) (header.Flavor, header.Details, error) {
	s := c.deps.Storage
	f, err := s.Open(name)
	if err != nil {
		s.ClearError()
		return header.FlavorClassic, header.Details{}, err
	}
	flavor, err := header.DetectFlavor(f)
	f.Close()
	if err != nil {
		s.ClearError()
		return header.FlavorClassic, header.Details{}, err
	}

	c.ensureDetails(row)
	d, ok := c.details.Details()
	if !ok {
		d = header.Defaults()
	}
	return flavor, d, nil
}

// prepare sets up a new job for name and moves to the phase that
// precedes printing for its flavor.
func (c *Controller) prepare(name string, flavor header.Flavor, d header.Details) SelectResult {
	mat := c.m.Material
	noz := mat.ForNozzle(d.NozzleDiameter)

	set := defaultSettings(c.set.LEDPct)
	set.RetractLength = noz.RetractionLength
	set.RetractSpeed = noz.RetractionSpeed

	var cmds []string
	if flavor == header.FlavorMachine {
		set.FanPct = mat.FanSpeed
		set.FlowPct = mat.Flow
		set.VolumeToLength = mat.VolumeToLength()
		cmds = append(c.seq.Setup(noz.Temperature, mat.BedTemperature),
			"M107",
			sequencer.SpeedFactor(set.SpeedPct),
			sequencer.FlowFactor(set.FlowPct),
			sequencer.Retraction(set.RetractLength, set.RetractSpeed),
		)
	} else {
		cmds = []string{"M107", sequencer.SpeedFactor(100), sequencer.FlowFactor(100)}
	}

	if !sequencer.Submit(c.deps.Motion, cmds) {
		c.deferred("start")
		return SelectDeferred
	}

	c.set = set
	c.st.FileName = name
	c.st.DisplayName = displayName(name)
	c.st.Flavor = flavor
	c.st.Details = d
	c.st.PauseRequested = false
	c.st.PositionFault = false
	c.st.Finished = false
	c.tuneCmds = [numTuneItems]string{}
	c.heat = 0

	c.logger.WithFields(log.Fields{
		"file":     name,
		"flavor":   flavor.String(),
		"material": d.MaterialType,
		"nozzle":   d.NozzleDiameter,
	}).Info("file selected")

	if flavor != header.FlavorMachine {
		c.setPhase(ClassicWarning)
		return SelectStarted
	}

	c.deps.Temperature.SetTarget(0, noz.Temperature)
	c.deps.Temperature.SetTarget(BedTool, mat.BedTemperature)
	if materialMismatch(mat, d.MaterialType) {
		c.setPhase(MaterialWarning)
	} else {
		c.setPhase(Heating)
	}
	return SelectStarted
}

func materialMismatch(mat config.Material, fileType string) bool {
	return mat.Name != "" && fileType != "" && !strings.EqualFold(mat.Name, fileType)
}

// displayName shortens a file name for the printing screens: at most
// displayNameMax bytes, cut at the first dot.
func displayName(name string) string {
	name = dircache.Truncate(name, displayNameMax)
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	return name
}

func (c *Controller) requirePhase(action string, phases ...Phase) error {
	for _, p := range phases {
		if c.st.Phase == p {
			return nil
		}
	}
	return errors.SessionStateError(action, c.st.Phase.String())
}
