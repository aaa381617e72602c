package session

import (
	"fmt"
	"time"

	"lcdprint-go/pkg/progress"
)

// ViewRows is the number of browser rows a view carries.
const ViewRows = 4

// View is a read-only snapshot of what the front panel shows.
type View struct {
	Phase       Phase
	Title       string
	Lines       [4]string
	Progress    int
	ProgressMax int
	Buttons     [3]string

	// Browser
	Rows   []Row
	Cursor int
	Detail [2]string

	File           string
	Remaining      time.Duration
	RemainingKnown bool

	HotendTemp, HotendTarget float64
	BedTemp, BedTarget       float64
	QueuePending             int
	QueueCapacity            int
	Lamp                     int
}

func (c *Controller) render() View {
	t := c.deps.Temperature
	v := View{
		Phase:         c.st.Phase,
		File:          c.st.FileName,
		HotendTemp:    t.Current(0),
		HotendTarget:  t.Target(0),
		BedTemp:       t.Current(BedTool),
		BedTarget:     t.Target(BedTool),
		QueuePending:  c.deps.Motion.Pending(),
		QueueCapacity: c.deps.Motion.Capacity(),
		Lamp:          c.lamp,
	}
	if c.st.JobActive {
		v.Remaining = c.estimate.Remaining
		v.RemainingKnown = c.estimate.Known
	}

	switch c.st.Phase {
	case Selecting:
		c.renderBrowser(&v)
	case Heating:
		v.Title = "PRINT"
		v.Lines = [4]string{"Heating up...", "Preparing to print:", c.st.DisplayName,
			fmt.Sprintf("%.0fC/%.0fC", v.HotendTemp, v.HotendTarget)}
		v.Progress, v.ProgressMax = c.heat, HeatMax
		v.Buttons = [3]string{"TUNE", "ABORT"}
	case Printing:
		v.Title = "PRINT"
		left := "Time left: unknown"
		if c.estimate.Known {
			left = "Time left: " + progress.FormatDuration(c.estimate.Remaining)
		}
		v.Lines = [4]string{"Printing:", c.st.DisplayName, left}
		if tool, ok := c.deps.Motion.HeatWait(); ok {
			what := "Heating"
			if tool == BedTool {
				what = "Heating buildplate"
			}
			v.Lines[0] = what
			v.Lines[1] = fmt.Sprintf("%.0fC/%.0fC", t.Current(tool), t.Target(tool))
		}
		v.Progress, v.ProgressMax = c.estimate.Fraction, progress.BarMax
		v.Buttons = [3]string{"TUNE", "PAUSE"}
	case Paused:
		v.Title = "PRINT"
		v.Lines = [4]string{"Paused", c.st.DisplayName}
		v.Progress, v.ProgressMax = c.estimate.Fraction, progress.BarMax
		v.Buttons = [3]string{"RESUME", "CHANGE MATERIAL", "TUNE"}
	case ChangeMaterial:
		v.Title = "MATERIAL"
		c.renderChange(&v)
	case Tuning:
		v.Title = "TUNE"
		v.Lines = [4]string{
			fmt.Sprintf("Speed: %d%%", c.set.SpeedPct),
			fmt.Sprintf("Temp: %.0fC/%.0fC", v.HotendTemp, v.HotendTarget),
			fmt.Sprintf("Fan: %d%% Flow: %d%%", c.set.FanPct, c.set.FlowPct),
			fmt.Sprintf("Retract: %.1fmm %.0fmm/s", c.set.RetractLength, c.set.RetractSpeed),
		}
		v.Buttons = [3]string{"RETURN", "ABORT"}
	case AbortConfirm:
		v.Lines = [4]string{"Abort the print?"}
		v.Buttons = [3]string{"YES", "NO"}
	case ClassicWarning:
		v.Lines = [4]string{"This file will", "override machine", "setting with setting", "from the slicer."}
		v.Buttons = [3]string{"CONTINUE", "CANCEL"}
	case MaterialWarning:
		v.Lines = [4]string{"This file is created", "for a different", "material.",
			c.m.Material.Name + " vs " + c.st.Details.MaterialType}
		v.Buttons = [3]string{"CONTINUE", "CANCEL"}
	case Ready, ReadyCooledDown:
		v.Lines = [4]string{"Print finished", "You can remove", "the print."}
		if c.st.LastOutcome == OutcomeAborted {
			v.Lines = [4]string{"Print aborted"}
		}
		v.Buttons = [3]string{"BACK TO MENU"}
	case ErrorSd:
		v.Title = "ERROR"
		v.Lines = [4]string{"Error while", "reading SD-card!"}
		v.Buttons = [3]string{"RETURN TO MAIN"}
	case ErrorPosition:
		v.Title = "ERROR"
		v.Lines = [4]string{"ERROR:", "Tried printing out", "of printing area"}
		v.Buttons = [3]string{"RETURN TO MAIN"}
	}
	return v
}

func (c *Controller) renderChange(v *View) {
	switch c.st.Change {
	case ChangeHeating:
		v.Lines = [4]string{"Heating nozzle", "for material change",
			fmt.Sprintf("%.0fC/%.0fC", v.HotendTemp, v.HotendTarget)}
	case ChangeUnloading:
		v.Lines = [4]string{"Reversing material"}
	case ChangeInsert:
		v.Lines = [4]string{"Insert new material", "and push it into", "the feeder."}
		v.Buttons = [3]string{"READY"}
	case ChangeLoading:
		v.Lines = [4]string{"Loading material"}
	}
}

func (c *Controller) renderBrowser(v *View) {
	v.Title = "SD CARD"
	switch c.browse {
	case browseNoCard:
		v.Lines = [4]string{"No SD-CARD!", "Please insert card"}
		return
	case browseReading:
		v.Lines = [4]string{"Reading card..."}
		return
	}

	v.Cursor = c.cursor
	v.Rows = c.Rows(c.cursor-c.cursor%ViewRows, ViewRows)
	if c.browse == browseEmpty {
		v.Lines = [4]string{"No files found!"}
	}
	if c.cursor > 0 && c.details.Row() == c.cursor {
		v.Detail = c.details.Render(c.glow, c.m.Material.Diameter)
	} else if c.cursor > 0 {
		v.Detail = [2]string{"No info available", ""}
	}
}
