// Package gcode parses the G-code lines the motion backends execute or
// forward.
package gcode

import (
	"regexp"
	"strconv"
	"strings"
)

// Command is one parsed G-code line.
type Command struct {
	Name string
	Args map[string]string
	Raw  string
}

var reParenComment = regexp.MustCompile(`\([^)]*\)`)

// Parse parses a G-code line. Blank and comment-only lines return nil.
func Parse(line string) *Command {
	ln := strings.TrimSpace(line)
	if idx := strings.IndexByte(ln, ';'); idx >= 0 {
		ln = strings.TrimSpace(ln[:idx])
	}
	ln = strings.TrimSpace(reParenComment.ReplaceAllString(ln, " "))
	fields := strings.Fields(ln)
	if len(fields) == 0 {
		return nil
	}

	name := strings.ToUpper(fields[0])
	args := map[string]string{}
	for _, f := range fields[1:] {
		if strings.Contains(f, "=") {
			kv := strings.SplitN(f, "=", 2)
			if k := strings.ToUpper(strings.TrimSpace(kv[0])); k != "" {
				args[k] = strings.TrimSpace(kv[1])
			}
			continue
		}
		// Bare axis letters, as in "G28 X".
		if len(f) == 1 {
			args[strings.ToUpper(f)] = ""
			continue
		}
		args[strings.ToUpper(f[:1])] = strings.TrimSpace(f[1:])
	}
	return &Command{Name: name, Args: args, Raw: line}
}

// Has reports whether the word is present, with or without a value.
func (c *Command) Has(key string) bool {
	_, ok := c.Args[key]
	return ok
}

// Float returns the numeric value of a word.
func (c *Command) Float(key string) (float64, bool) {
	v, ok := c.Args[key]
	if !ok || v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// FloatOr returns the numeric value of a word, or def when absent.
func (c *Command) FloatOr(key string, def float64) float64 {
	if f, ok := c.Float(key); ok {
		return f
	}
	return def
}

// Axes reports which of X, Y, Z a homing command names. A bare G28 homes
// all of them.
func (c *Command) Axes() (x, y, z bool) {
	x, y, z = c.Has("X"), c.Has("Y"), c.Has("Z")
	if !x && !y && !z {
		return true, true, true
	}
	return x, y, z
}
