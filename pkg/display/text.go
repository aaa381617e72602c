// Package display renders session views for people: a text front panel on
// a terminal and a fan-out to several sinks.
package display

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"lcdprint-go/pkg/dircache"
	"lcdprint-go/pkg/session"
)

// Columns is the width of the front panel in characters.
const Columns = 21

const barWidth = Columns - 7

// Frame lays a view out as plain panel lines, each at most Columns wide.
// The first line is the title.
func Frame(v session.View) []string {
	lines := []string{v.Title}

	if v.Phase == session.Selecting && len(v.Rows) > 0 {
		for _, r := range v.Rows {
			mark := " "
			if r.Index == v.Cursor {
				mark = ">"
			}
			text := r.Text
			if r.Dir {
				text += "/"
			}
			lines = append(lines, mark+text)
		}
		for _, d := range v.Detail {
			if d != "" {
				lines = append(lines, d)
			}
		}
	}
	for _, l := range v.Lines {
		if l != "" {
			lines = append(lines, l)
		}
	}
	if v.ProgressMax > 0 {
		lines = append(lines, Bar(v.Progress, v.ProgressMax))
	}
	// Buttons share a row while they fit.
	var row []string
	width := 0
	for _, b := range v.Buttons {
		if b == "" {
			continue
		}
		b = "[" + b + "]"
		if len(row) > 0 && width+1+len(b) > Columns {
			lines = append(lines, strings.Join(row, " "))
			row, width = nil, 0
		}
		if len(row) > 0 {
			width++
		}
		row = append(row, b)
		width += len(b)
	}
	if len(row) > 0 {
		lines = append(lines, strings.Join(row, " "))
	}

	for i, l := range lines {
		lines[i] = dircache.Truncate(l, Columns)
	}
	return lines
}

// Bar draws a progress bar with a percentage.
func Bar(value, max int) string {
	if max <= 0 {
		return ""
	}
	if value < 0 {
		value = 0
	}
	if value > max {
		value = max
	}
	fill := value * barWidth / max
	return fmt.Sprintf("[%s%s]%3d%%", strings.Repeat("#", fill), strings.Repeat(".", barWidth-fill), value*100/max)
}

// Text writes a framed panel to w whenever it changes.
type Text struct {
	mu     sync.Mutex
	w      io.Writer
	box    lipgloss.Style
	title  lipgloss.Style
	cursor lipgloss.Style
	last   string
	frames uint64
}

// NewText returns a panel writing to w. Styling follows what w supports.
func NewText(w io.Writer) *Text {
	r := lipgloss.NewRenderer(w)
	return &Text{
		w: w,
		box: r.NewStyle().
			Border(lipgloss.NormalBorder()).
			Width(Columns),
		title:  r.NewStyle().Bold(true),
		cursor: r.NewStyle().Reverse(true),
	}
}

// Render draws v unless it matches the previous frame.
func (t *Text) Render(v session.View) {
	lines := Frame(v)
	plain := strings.Join(lines, "\n")

	t.mu.Lock()
	defer t.mu.Unlock()
	if plain == t.last {
		return
	}
	t.last = plain

	styled := make([]string, len(lines))
	for i, l := range lines {
		switch {
		case i == 0:
			styled[i] = t.title.Render(l)
		case strings.HasPrefix(l, ">"):
			styled[i] = t.cursor.Render(l)
		default:
			styled[i] = l
		}
	}
	fmt.Fprintln(t.w, t.box.Render(strings.Join(styled, "\n")))
	t.frames++
}

// Frames returns how many frames were written.
func (t *Text) Frames() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frames
}

// Multi fans a view out to several sinks.
type Multi []session.Sink

// Render passes v to every sink.
func (m Multi) Render(v session.View) {
	for _, s := range m {
		s.Render(v)
	}
}
