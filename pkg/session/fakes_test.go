package session

import (
	"io"
	"strings"

	"lcdprint-go/pkg/header"
)

type memFile struct {
	lines []string
}

func (f *memFile) ReadLine(max int) (string, error) {
	if len(f.lines) == 0 {
		return "", io.EOF
	}
	line := f.lines[0]
	f.lines = f.lines[1:]
	if len(line) > max {
		line = line[:max]
	}
	return line, nil
}

func (f *memFile) Close() error { return nil }

type entry struct {
	name string
	dir  bool
	data string
}

type fakeStorage struct {
	inserted bool
	ready    bool
	dirs     map[string][]entry
	cwd      string

	errPending bool
	cleared    int
	inits      int
	nameReads  int
	gen        uint64
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		inserted: true,
		ready:    true,
		dirs: map[string][]entry{
			"": {
				{name: "parts", dir: true},
				{name: "cube.gcode", data: ";FLAVOR:UltiGCode\n;TIME:3900\n;MATERIAL:6380\n;NOZZLE_DIAMETER:0.4\n;MTYPE:PLA\nG1 X1\n"},
				{name: "plain.gcode", data: "G28\nG1 X10\n"},
				{name: "abs_part.gcode", data: ";FLAVOR:UltiGCode\n;TIME:60\n;MTYPE:ABS\n"},
			},
			"parts": {
				{name: "bracket.gcode", data: "G28\n"},
			},
		},
	}
}

func (s *fakeStorage) Inserted() bool { return s.inserted }
func (s *fakeStorage) Ready() bool    { return s.ready }

func (s *fakeStorage) Init() error {
	s.inits++
	if !s.inserted {
		return io.ErrUnexpectedEOF
	}
	s.ready = true
	return nil
}

func (s *fakeStorage) AtRoot() bool { return s.cwd == "" }

func (s *fakeStorage) ChDir(name string) error {
	if _, ok := s.dirs[name]; !ok {
		return io.ErrUnexpectedEOF
	}
	s.cwd = name
	s.gen++
	return nil
}

func (s *fakeStorage) UpDir() error {
	s.cwd = ""
	s.gen++
	return nil
}

func (s *fakeStorage) EntryCount() (int, error) {
	if !s.ready {
		return 0, io.ErrUnexpectedEOF
	}
	return len(s.dirs[s.cwd]), nil
}

func (s *fakeStorage) NameAt(i int) (string, bool, error) {
	s.nameReads++
	es := s.dirs[s.cwd]
	if i < 0 || i >= len(es) {
		s.errPending = true
		return "", false, io.ErrUnexpectedEOF
	}
	return es[i].name, es[i].dir, nil
}

func (s *fakeStorage) Open(name string) (header.File, error) {
	for _, e := range s.dirs[s.cwd] {
		if e.name == name && !e.dir {
			return &memFile{lines: strings.Split(strings.TrimSuffix(e.data, "\n"), "\n")}, nil
		}
	}
	s.errPending = true
	return nil, io.ErrUnexpectedEOF
}

func (s *fakeStorage) ErrorPending() bool { return s.errPending }

func (s *fakeStorage) ClearError() {
	s.cleared++
	s.errPending = false
}

func (s *fakeStorage) Generation() uint64 { return s.gen }

type fakeMotion struct {
	queue    []string
	sent     []string
	injected []string
	capacity int
	planned  int
	fault    bool
	z        float64
	e        float64
	clears   int
	estops   int

	heatTool    int
	heatWaiting bool
}

func newFakeMotion(capacity int) *fakeMotion {
	return &fakeMotion{capacity: capacity, z: 10}
}

func (m *fakeMotion) Enqueue(cmd string) bool {
	if len(m.queue) >= m.capacity {
		return false
	}
	m.queue = append(m.queue, cmd)
	m.sent = append(m.sent, cmd)
	return true
}

func (m *fakeMotion) Pending() int        { return len(m.queue) }
func (m *fakeMotion) Capacity() int       { return m.capacity }
func (m *fakeMotion) Planned() int        { return m.planned }
func (m *fakeMotion) PositionFault() bool { return m.fault }
func (m *fakeMotion) HeightMM() float64   { return m.z }
func (m *fakeMotion) ExtruderMM() float64 { return m.e }
func (m *fakeMotion) EmergencyStop()      { m.estops++ }

func (m *fakeMotion) HeatWait() (int, bool) { return m.heatTool, m.heatWaiting }

// Inject records cmds and counts them as planned.
func (m *fakeMotion) Inject(cmds []string) bool {
	if m.fault {
		return false
	}
	m.injected = append(m.injected, cmds...)
	m.sent = append(m.sent, cmds...)
	m.planned += len(cmds)
	return true
}

func (m *fakeMotion) Clear() {
	m.clears++
	m.queue = nil
}

// drain pretends the planner executed everything queued.
func (m *fakeMotion) drain() { m.queue = nil }

// fill queues filler moves up to capacity.
func (m *fakeMotion) fill() {
	for len(m.queue) < m.capacity {
		m.queue = append(m.queue, "G1 X1")
	}
}

func (m *fakeMotion) count(cmd string) int {
	n := 0
	for _, c := range m.sent {
		if strings.HasPrefix(c, cmd) {
			n++
		}
	}
	return n
}

type fakeTemp struct {
	cur map[int]float64
	tgt map[int]float64
}

func newFakeTemp() *fakeTemp {
	return &fakeTemp{
		cur: map[int]float64{0: 20, BedTool: 20},
		tgt: map[int]float64{},
	}
}

func (t *fakeTemp) SetTarget(tool int, c float64) { t.tgt[tool] = c }
func (t *fakeTemp) Current(tool int) float64      { return t.cur[tool] }
func (t *fakeTemp) Target(tool int) float64       { return t.tgt[tool] }

// reach sets both heaters to their targets.
func (t *fakeTemp) reach() {
	t.cur[0] = t.tgt[0]
	t.cur[BedTool] = t.tgt[BedTool]
}

type fakeJob struct {
	started  []string
	active   bool
	paused   bool
	stops    int
	offset   int64
	size     int64
	startErr error
}

func (j *fakeJob) Start(name string) error {
	if j.startErr != nil {
		return j.startErr
	}
	j.started = append(j.started, name)
	j.active = true
	j.paused = false
	j.offset = 0
	if j.size == 0 {
		j.size = 1000
	}
	return nil
}

func (j *fakeJob) Active() bool          { return j.active }
func (j *fakeJob) Paused() bool          { return j.paused }
func (j *fakeJob) SetPaused(paused bool) { j.paused = paused }
func (j *fakeJob) Progress() (int64, int64) {
	return j.offset, j.size
}

func (j *fakeJob) Stop() {
	j.stops++
	j.active = false
	j.paused = false
}

type fakeSink struct {
	views []View
}

func (s *fakeSink) Render(v View) { s.views = append(s.views, v) }

func (s *fakeSink) last() View {
	if len(s.views) == 0 {
		return View{}
	}
	return s.views[len(s.views)-1]
}

type fakeLamp struct {
	levels []int
}

func (l *fakeLamp) SetBrightness(pct int) { l.levels = append(l.levels, pct) }

func (l *fakeLamp) last() int {
	if len(l.levels) == 0 {
		return -1
	}
	return l.levels[len(l.levels)-1]
}

type fakeObserver struct {
	transitions [][2]Phase
	started     []string
	finished    []Outcome
	deferred    []string
	hits        map[string]int
	misses      map[string]int
}

func newFakeObserver() *fakeObserver {
	return &fakeObserver{hits: map[string]int{}, misses: map[string]int{}}
}

func (o *fakeObserver) PhaseChanged(from, to Phase) {
	o.transitions = append(o.transitions, [2]Phase{from, to})
}

func (o *fakeObserver) JobStarted(name string, _ header.Flavor) {
	o.started = append(o.started, name)
}

func (o *fakeObserver) JobFinished(_ string, outcome Outcome) {
	o.finished = append(o.finished, outcome)
}

func (o *fakeObserver) CacheLookup(cache string, hit bool) {
	if hit {
		o.hits[cache]++
	} else {
		o.misses[cache]++
	}
}

func (o *fakeObserver) Deferred(action string) {
	o.deferred = append(o.deferred, action)
}
