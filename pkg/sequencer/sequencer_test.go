package sequencer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"lcdprint-go/pkg/config"
)

type queue struct {
	cmds     []string
	capacity int
}

func (q *queue) Enqueue(cmd string) bool {
	if len(q.cmds) >= q.capacity {
		return false
	}
	q.cmds = append(q.cmds, cmd)
	return true
}
func (q *queue) Pending() int  { return len(q.cmds) }
func (q *queue) Capacity() int { return q.capacity }

func newSequencer() *Sequencer {
	return New(ParamsFromMachine(config.DefaultMachine()))
}

func TestSetup(t *testing.T) {
	s := newSequencer()
	assert.Equal(t, []string{
		"G28",
		"G1 F12000 X100 Y132.5",
		"M190 S60",
		"M109 S210",
	}, s.Setup(210, 60))

	assert.Equal(t, []string{"G28", "G1 F12000 X100 Y132.5"}, s.Setup(0, 0))
}

func TestPrime(t *testing.T) {
	s := newSequencer()
	assert.Equal(t, []string{
		"G92 E0",
		"G1 F2400 Z20",
		"G92 E-20",
		"G1 F300 E0",
		"G92 E-10",
		"G1 F300 E0",
		"G92 E0",
	}, s.Prime(1))

	vtl := config.DefaultMaterial().VolumeToLength()
	cmds := s.Prime(vtl)
	assert.Equal(t, "G92 E-127.588", cmds[2], "retraction converted to mm³")
}

func TestAbort(t *testing.T) {
	s := newSequencer()

	assert.Equal(t, []string{"M401", "G28", "M84"}, s.Abort(false, 10, 1, 1500))
	assert.Equal(t, []string{"M401", "G92 E20", "G1 F1500 E0", "G28", "M84"}, s.Abort(true, 10, 1, 1500))
	assert.Equal(t, []string{"M401", "G28 X0 Y0", "G28 Z0", "M84"}, s.Abort(false, 180, 1, 1500))
	assert.Equal(t, []string{"M401", "G28", "M84"}, s.Abort(false, 175, 1, 1500), "split starts above the top margin")
}

func TestPauseBands(t *testing.T) {
	s := newSequencer()
	tests := []struct {
		z    float64
		lift int
	}{
		{0.3, 70},
		{40.7, 30},
		{55, 20},
		{69.9, 20},
		{70, 20},
		{144.9, 20},
		{145, 2},
		{174.9, 2},
		{175, 0},
		{205, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.lift, s.PauseLift(tt.z), "z=%v", tt.z)
	}
	assert.Equal(t, "M601 X5 Y5 Z70 L20", s.Pause(0.3))
}

func TestMaterialChange(t *testing.T) {
	s := newSequencer()
	assert.Equal(t, []string{"G92 E0", "G1 F2400 E-700"}, s.Unload())
	assert.Equal(t, []string{"G92 E0", "G1 F2400 E700", "G92 E0", "G1 F120 E20"}, s.Load())
	assert.Equal(t, "G92 E1234.5", SetExtruder(1234.5))
	assert.Equal(t, "G92 E-20", SetExtruder(-20))
}

func TestTuneCommands(t *testing.T) {
	assert.Equal(t, "M220 S150", SpeedFactor(150))
	assert.Equal(t, "M221 S95", FlowFactor(95))
	assert.Equal(t, "M107", FanSpeed(0))
	assert.Equal(t, "M106 S255", FanSpeed(100))
	assert.Equal(t, "M106 S128", FanSpeed(50))
	assert.Equal(t, "M207 S4.5 F1500", Retraction(4.5, 25))
	assert.Equal(t, "M42 S255", Lamp(100))
}

func TestSubmitAllOrNothing(t *testing.T) {
	q := &queue{capacity: 4}
	q.cmds = []string{"G1 X1", "G1 X2"}

	assert.False(t, Submit(q, []string{"a", "b", "c"}))
	assert.Equal(t, 2, q.Pending(), "nothing enqueued when short of room")

	assert.True(t, Submit(q, []string{"a", "b"}))
	assert.Equal(t, []string{"G1 X1", "G1 X2", "a", "b"}, q.cmds)

	assert.True(t, Submit(q, nil))
}
