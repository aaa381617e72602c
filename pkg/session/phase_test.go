package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"lcdprint-go/pkg/header"
)

func TestPhaseNames(t *testing.T) {
	seen := map[string]bool{}
	for _, p := range Phases() {
		name := p.String()
		assert.NotEqual(t, "unknown", name)
		assert.False(t, seen[name], "duplicate name %s", name)
		seen[name] = true
	}
	assert.Len(t, seen, 13)
	assert.Equal(t, "abort_confirm", AbortConfirm.String())
	assert.Equal(t, "change_material", ChangeMaterial.String())
	assert.Equal(t, "insert", ChangeInsert.String())
	assert.Equal(t, "unknown", Phase(200).String())
}

func TestTuneItemNames(t *testing.T) {
	for i := TuneItem(0); i < numTuneItems; i++ {
		got, ok := ParseTuneItem(i.String())
		assert.True(t, ok)
		assert.Equal(t, i, got)
	}
	_, ok := ParseTuneItem("volume")
	assert.False(t, ok)
}

func TestObserversFanOut(t *testing.T) {
	a, b := newFakeObserver(), newFakeObserver()
	o := Observers{a, b}
	o.PhaseChanged(Selecting, Heating)
	o.JobStarted("cube.gcode", header.FlavorMachine)
	o.JobFinished("cube.gcode", OutcomeCompleted)
	o.CacheLookup("dir", true)
	o.Deferred("pause")
	for _, x := range []*fakeObserver{a, b} {
		assert.Equal(t, [][2]Phase{{Selecting, Heating}}, x.transitions)
		assert.Equal(t, []string{"cube.gcode"}, x.started)
		assert.Equal(t, []Outcome{OutcomeCompleted}, x.finished)
		assert.Equal(t, 1, x.hits["dir"])
		assert.Equal(t, []string{"pause"}, x.deferred)
	}
}
