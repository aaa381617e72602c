package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"lcdprint-go/pkg/errors"
	"lcdprint-go/pkg/log"
	"lcdprint-go/pkg/reactor"
	"lcdprint-go/pkg/session"
)

// Panel is the part of the session controller the console drives.
type Panel interface {
	Phase() session.Phase
	Cursor() int
	MoveCursor(delta int) int
	Select(row int) session.SelectResult
	Confirm() error
	Cancel() error
	RequestPause() error
	Resume() error
	ChangeMaterial() error
	OpenTune() error
	CloseTune() error
	RequestAbort() error
	Acknowledge() error
	Tune(item session.TuneItem, delta int) error
}

const consoleHelp = "verbs: up, down, select, yes, no, pause, resume, material, tune, tune <item> <delta>, abort, ack"

// Dispatch runs one console line against p and returns a short reply.
func Dispatch(p Panel, line string) (string, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return "", nil
	}

	switch verb := fields[0]; verb {
	case "up", "down":
		delta := -1
		if verb == "down" {
			delta = 1
		}
		if len(fields) > 1 {
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				return "", fmt.Errorf("%s: bad count %q", verb, fields[1])
			}
			delta *= n
		}
		return fmt.Sprintf("row %d", p.MoveCursor(delta)), nil
	case "select":
		if p.Phase() != session.Selecting {
			return "", errors.SessionStateError("select", p.Phase().String())
		}
		return p.Select(p.Cursor()).String(), nil
	case "yes":
		return "", p.Confirm()
	case "no":
		return "", p.Cancel()
	case "pause":
		return "", p.RequestPause()
	case "resume":
		return "", p.Resume()
	case "material":
		return "", p.ChangeMaterial()
	case "tune":
		if len(fields) == 1 {
			if p.Phase() == session.Tuning {
				return "", p.CloseTune()
			}
			return "", p.OpenTune()
		}
		if len(fields) != 3 {
			return "", fmt.Errorf("usage: tune <item> <delta>")
		}
		item, ok := session.ParseTuneItem(fields[1])
		if !ok {
			return "", fmt.Errorf("tune: unknown item %q", fields[1])
		}
		delta, err := strconv.Atoi(fields[2])
		if err != nil {
			return "", fmt.Errorf("tune: bad delta %q", fields[2])
		}
		return "", p.Tune(item, delta)
	case "abort":
		return "", p.RequestAbort()
	case "ack":
		return "", p.Acknowledge()
	case "help", "?":
		return consoleHelp, nil
	default:
		return "", fmt.Errorf("unknown verb %q (%s)", verb, consoleHelp)
	}
}

// runConsole reads verbs from in and runs them on the reactor until ctx
// is done. End of input leaves the daemon running.
func runConsole(ctx context.Context, in io.Reader, r *reactor.Reactor, p Panel) error {
	logger := log.GetLogger("console")
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				logger.Debug("console input closed")
				return nil
			}
			res := r.Post(func(float64) interface{} {
				reply, err := Dispatch(p, line)
				if err != nil {
					return err
				}
				return reply
			}).Wait(5*time.Second, errors.RuntimeError("console: no answer from the session"))

			switch v := res.(type) {
			case error:
				logger.WithError(v).WithField("input", line).Warn("command refused")
			case string:
				if v != "" {
					logger.Info("%s", v)
				}
			}
		}
	}
}
