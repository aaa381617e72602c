package sdcard

import (
	"io"
	"strings"
	"sync"

	"lcdprint-go/pkg/log"
	"lcdprint-go/pkg/sequencer"
)

const (
	// MaxCommand bounds a streamed command line.
	MaxCommand = 96
	// pumpHeadroom keeps queue slots free for a pause command.
	pumpHeadroom = 1
)

// Job streams a card file into the motion queue.
type Job struct {
	card   *Card
	logger *log.Logger

	mu     sync.Mutex
	file   *File
	name   string
	active bool
	paused bool
	halted bool
	held   string
	lines  uint64

	// offset and size of the last closed file
	doneOff, doneSize int64
}

// NewJob returns an idle job reading from card.
func NewJob(card *Card) *Job {
	return &Job{card: card, logger: log.GetLogger("job")}
}

// Start opens name in the card's current directory and begins streaming.
func (j *Job) Start(name string) error {
	f, err := j.card.OpenFile(name)
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.closeLocked()
	j.file = f
	j.doneOff, j.doneSize = 0, 0
	j.name = name
	j.active = true
	j.paused = false
	j.halted = false
	j.held = ""
	j.lines = 0
	j.logger.WithFields(log.Fields{"file": name, "size": f.Size()}).Info("streaming started")
	return nil
}

// Active reports whether the file still has lines to stream.
func (j *Job) Active() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.active
}

// Paused reports whether streaming is paused.
func (j *Job) Paused() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.paused
}

// SetPaused pauses or resumes streaming.
func (j *Job) SetPaused(paused bool) {
	j.mu.Lock()
	j.paused = paused
	j.mu.Unlock()
}

// Stop ends the job and closes the file.
func (j *Job) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.closeLocked()
	j.active = false
	j.paused = false
	j.held = ""
}

// Progress returns the bytes consumed and the file size.
func (j *Job) Progress() (offset, size int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return j.doneOff, j.doneSize
	}
	return j.file.Offset(), j.file.Size()
}

// Name returns the file being streamed.
func (j *Job) Name() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.name
}

// Lines returns the number of commands enqueued so far.
func (j *Job) Lines() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lines
}

// Pump moves commands from the file into q while q has room beyond the
// pause headroom. Comments and blank lines are dropped. At end of file
// the job becomes inactive; a read error leaves the card error latched
// and halts streaming until the job is stopped.
func (j *Job) Pump(q sequencer.Enqueuer) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.active || j.paused || j.halted || j.file == nil {
		return 0
	}

	n := 0
	for q.Capacity()-q.Pending() > pumpHeadroom {
		cmd := j.held
		j.held = ""
		if cmd == "" {
			line, err := j.file.ReadLine(MaxCommand)
			if err == io.EOF {
				j.logger.WithFields(log.Fields{"file": j.name, "lines": j.lines}).Info("end of file")
				j.closeLocked()
				j.active = false
				return n
			}
			if err != nil {
				j.logger.WithError(err).WithField("file", j.name).Error("read failed")
				j.halted = true
				return n
			}
			cmd = StripComment(line)
			if cmd == "" {
				continue
			}
		}
		if !q.Enqueue(cmd) {
			j.held = cmd
			break
		}
		n++
		j.lines++
	}
	return n
}

func (j *Job) closeLocked() {
	if j.file != nil {
		j.doneOff, j.doneSize = j.file.Offset(), j.file.Size()
		j.file.Close()
	}
	j.file = nil
}

// StripComment removes a ';' comment and surrounding whitespace.
func StripComment(line string) string {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}
