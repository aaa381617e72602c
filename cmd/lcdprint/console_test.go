package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lcdprint-go/pkg/reactor"
	"lcdprint-go/pkg/session"
)

type fakePanel struct {
	phase  session.Phase
	cursor int
	calls  []string
	tuned  map[session.TuneItem]int
}

func newFakePanel() *fakePanel {
	return &fakePanel{tuned: map[session.TuneItem]int{}}
}

func (p *fakePanel) record(name string) error {
	p.calls = append(p.calls, name)
	return nil
}

func (p *fakePanel) Phase() session.Phase { return p.phase }
func (p *fakePanel) Cursor() int          { return p.cursor }

func (p *fakePanel) MoveCursor(delta int) int {
	p.cursor += delta
	if p.cursor < 0 {
		p.cursor = 0
	}
	return p.cursor
}

func (p *fakePanel) Select(row int) session.SelectResult {
	p.record("select")
	return session.SelectDirChanged
}

func (p *fakePanel) Confirm() error      { return p.record("confirm") }
func (p *fakePanel) Cancel() error       { return p.record("cancel") }
func (p *fakePanel) RequestPause() error { return p.record("pause") }
func (p *fakePanel) Resume() error       { return p.record("resume") }
func (p *fakePanel) OpenTune() error     { return p.record("open_tune") }
func (p *fakePanel) CloseTune() error    { return p.record("close_tune") }
func (p *fakePanel) RequestAbort() error { return p.record("abort") }
func (p *fakePanel) Acknowledge() error  { return p.record("ack") }

func (p *fakePanel) ChangeMaterial() error { return p.record("change_material") }

func (p *fakePanel) Tune(item session.TuneItem, delta int) error {
	p.tuned[item] += delta
	return nil
}

func TestDispatchVerbs(t *testing.T) {
	p := newFakePanel()

	reply, err := Dispatch(p, "down 3")
	require.NoError(t, err)
	assert.Equal(t, "row 3", reply)
	reply, err = Dispatch(p, "UP")
	require.NoError(t, err)
	assert.Equal(t, "row 2", reply)

	reply, err = Dispatch(p, "select")
	require.NoError(t, err)
	assert.Equal(t, "dir_changed", reply)

	for _, verb := range []string{"yes", "no", "pause", "resume", "material", "abort", "ack", "tune"} {
		_, err := Dispatch(p, verb)
		require.NoError(t, err, verb)
	}
	assert.Equal(t, []string{"select", "confirm", "cancel", "pause", "resume", "change_material", "abort", "ack", "open_tune"}, p.calls)

	p.phase = session.Tuning
	_, err = Dispatch(p, "tune")
	require.NoError(t, err)
	assert.Equal(t, "close_tune", p.calls[len(p.calls)-1])

	reply, err = Dispatch(p, "  ")
	assert.NoError(t, err)
	assert.Empty(t, reply)
}

func TestDispatchTuneItem(t *testing.T) {
	p := newFakePanel()
	_, err := Dispatch(p, "tune speed 10")
	require.NoError(t, err)
	_, err = Dispatch(p, "tune temperature -5")
	require.NoError(t, err)
	assert.Equal(t, 10, p.tuned[session.TuneSpeed])
	assert.Equal(t, -5, p.tuned[session.TuneHotend])

	_, err = Dispatch(p, "tune volume 1")
	assert.ErrorContains(t, err, "unknown item")
	_, err = Dispatch(p, "tune speed fast")
	assert.ErrorContains(t, err, "bad delta")
	_, err = Dispatch(p, "tune speed")
	assert.ErrorContains(t, err, "usage")
}

func TestDispatchRejects(t *testing.T) {
	p := newFakePanel()
	p.phase = session.Printing
	_, err := Dispatch(p, "select")
	assert.Error(t, err)

	_, err = Dispatch(p, "dance")
	assert.ErrorContains(t, err, "unknown verb")

	_, err = Dispatch(p, "down many")
	assert.ErrorContains(t, err, "bad count")
}

func TestRunConsolePostsToReactor(t *testing.T) {
	r := reactor.New()
	r.Run()
	defer func() {
		r.End()
		r.Wait()
	}()

	p := newFakePanel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- runConsole(ctx, strings.NewReader("down\nyes\nbogus\n"), r, p) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("console did not finish reading")
	}
	assert.Equal(t, 1, p.cursor)
	assert.Equal(t, []string{"confirm"}, p.calls)
}
