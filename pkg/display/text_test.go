package display

import (
	"bytes"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"lcdprint-go/pkg/session"
)

func TestBar(t *testing.T) {
	assert.Equal(t, "[..............]  0%", Bar(0, 124))
	assert.Equal(t, "[#######.......] 50%", Bar(62, 124))
	assert.Equal(t, "[##############]100%", Bar(200, 124))
	assert.Equal(t, "", Bar(1, 0))
	assert.LessOrEqual(t, len(Bar(1, 2)), Columns)
}

func TestFrameBrowser(t *testing.T) {
	v := session.View{
		Phase:  session.Selecting,
		Title:  "SD CARD",
		Cursor: 2,
		Rows: []session.Row{
			{Text: "< RETURN", Back: true},
			{Index: 1, Text: "parts", Dir: true},
			{Index: 2, Text: "a_very_long_file_name_for_a_cube.gcode"},
		},
		Detail: [2]string{"Time: 1h05m", "Material: 1.00m"},
	}
	assert.Equal(t, []string{
		"SD CARD",
		" < RETURN",
		" parts/",
		">a_very_long_file_nam",
		"Time: 1h05m",
		"Material: 1.00m",
	}, Frame(v))
}

func TestFramePrinting(t *testing.T) {
	v := session.View{
		Phase:       session.Printing,
		Title:       "PRINT",
		Lines:       [4]string{"Printing:", "cube", "Time left: unknown"},
		Progress:    31,
		ProgressMax: 124,
		Buttons:     [3]string{"TUNE", "PAUSE"},
	}
	lines := Frame(v)
	assert.Equal(t, "PRINT", lines[0])
	assert.Equal(t, "Time left: unknown", lines[3])
	assert.Equal(t, "[###...........] 25%", lines[4])
	assert.Equal(t, "[TUNE] [PAUSE]", lines[5])
	for _, l := range lines {
		assert.LessOrEqual(t, len(l), Columns)
	}
}

func TestFrameWrapsButtons(t *testing.T) {
	v := session.View{
		Phase:   session.Paused,
		Title:   "PRINT",
		Lines:   [4]string{"Paused", "cube"},
		Buttons: [3]string{"RESUME", "CHANGE MATERIAL", "TUNE"},
	}
	assert.Equal(t, []string{
		"PRINT",
		"Paused",
		"cube",
		"[RESUME]",
		"[CHANGE MATERIAL]",
		"[TUNE]",
	}, Frame(v))

	v.Buttons = [3]string{"YES", "NO", "MAYBE"}
	assert.Equal(t, "[YES] [NO] [MAYBE]", Frame(v)[3])
}

func TestTextWritesOnChange(t *testing.T) {
	var buf bytes.Buffer
	txt := NewText(&buf)
	v := session.View{Title: "SD CARD", Lines: [4]string{"No SD-CARD!"}}

	txt.Render(v)
	txt.Render(v)
	assert.Equal(t, uint64(1), txt.Frames())
	assert.Contains(t, buf.String(), "No SD-CARD!")

	v.Lines[0] = "Reading card..."
	txt.Render(v)
	assert.Equal(t, uint64(2), txt.Frames())
	assert.Equal(t, 1, strings.Count(buf.String(), "Reading card..."))
}

type counter struct{ n int }

func (c *counter) Render(session.View) { c.n++ }

func TestMulti(t *testing.T) {
	a, b := &counter{}, &counter{}
	Multi{a, b}.Render(session.View{})
	assert.Equal(t, 1, a.n)
	assert.Equal(t, 1, b.n)
}

func TestFrameKeepsRunesWhole(t *testing.T) {
	v := session.View{
		Phase: session.Printing,
		Title: "PRINT",
		// 19 ASCII bytes then "é" straddles the Columns boundary.
		Lines: [4]string{"Printing:", "abcdefghijklmnopqrsé_suffix"},
	}
	lines := Frame(v)
	assert.Equal(t, "abcdefghijklmnopqrsé", lines[2])
	for _, l := range lines {
		assert.True(t, utf8.ValidString(l), l)
		assert.LessOrEqual(t, len(l), Columns)
	}

	v.Lines[1] = "abcdefghijklmnopqrsté"
	assert.Equal(t, "abcdefghijklmnopqrst", Frame(v)[2])
}
