package session

import (
	"lcdprint-go/pkg/errors"
)

// pausePrinting runs the job into Paused and lets the head finish parking.
func (s *ControllerSuite) pausePrinting() {
	s.startPrinting()
	s.Require().NoError(s.c.RequestPause())
	s.tick()
	s.Require().Equal(Paused, s.c.Phase())
	s.motion.planned = 0
}

func (s *ControllerSuite) TestPausedMenuOffersMaterialChange() {
	s.startPrinting()
	s.Require().NoError(s.c.RequestPause())
	v := s.tick()
	s.Equal([3]string{"RESUME", "CHANGE MATERIAL", "TUNE"}, v.Buttons)

	err := s.c.ChangeMaterial()
	s.True(errors.Is(err, errors.ErrSessionState), "head still parking")
	s.Equal(Paused, s.c.Phase())
}

func (s *ControllerSuite) TestChangeMaterialOnlyWhilePaused() {
	s.startPrinting()
	err := s.c.ChangeMaterial()
	s.True(errors.Is(err, errors.ErrSessionState))
	s.Equal(Printing, s.c.Phase())
}

func (s *ControllerSuite) TestChangeMaterial() {
	s.pausePrinting()
	s.motion.e = 123.4
	s.temp.tgt[0] = 0
	s.temp.cur[0] = 100

	s.Require().NoError(s.c.ChangeMaterial())
	s.Equal(ChangeMaterial, s.c.Phase())
	s.Equal(210.0, s.temp.Target(0), "heats to the material temperature")

	v := s.tick()
	s.Equal("MATERIAL", v.Title)
	s.Equal([4]string{"Heating nozzle", "for material change", "100C/210C"}, v.Lines)
	s.Empty(s.motion.injected, "nothing moves while cold")

	s.temp.cur[0] = 210
	s.tick()
	s.Equal([]string{"G92 E0", "G1 F2400 E-700"}, s.motion.injected)
	s.Equal(ChangeUnloading, s.c.State().Change)
	v = s.tick()
	s.Equal("Reversing material", v.Lines[0])

	s.Error(s.c.Confirm(), "cannot confirm while unloading")

	s.motion.planned = 0
	v = s.tick()
	s.Equal(ChangeInsert, s.c.State().Change)
	s.Equal("Insert new material", v.Lines[0])
	s.Equal("READY", v.Buttons[0])

	s.Require().NoError(s.c.Confirm())
	s.Equal([]string{"G92 E0", "G1 F2400 E700", "G92 E0", "G1 F120 E20"}, s.motion.injected[2:])
	v = s.tick()
	s.Equal(ChangeMaterial, v.Phase)
	s.Equal("Loading material", v.Lines[0])

	s.temp.tgt[0] = 0
	s.motion.planned = 0
	v = s.tick()
	s.Equal(Paused, v.Phase)
	s.Equal("G92 E123.4", s.motion.injected[len(s.motion.injected)-1], "extruder position restored")
	s.Equal(210.0, s.temp.Target(0), "hotend target restored from the material")
	s.True(s.job.paused, "job stays paused")
	s.Equal(1, s.motion.Pending(), "job lines still held behind the pause")

	s.Error(s.c.Resume(), "waits for the restore")
	s.motion.planned = 0
	s.NoError(s.c.Resume())
	s.Equal(Printing, s.c.Phase())
}

func (s *ControllerSuite) TestFaultDuringMaterialChange() {
	s.pausePrinting()
	s.Require().NoError(s.c.ChangeMaterial())
	s.motion.fault = true
	s.tick()
	s.Equal(ErrorPosition, s.c.Phase())
	s.Empty(s.motion.injected)
}

func (s *ControllerSuite) TestPrintingShowsHeatWait() {
	s.startPrinting()
	s.motion.heatWaiting = true
	s.motion.heatTool = BedTool
	s.temp.cur[BedTool] = 40
	v := s.tick()
	s.Equal(Printing, v.Phase)
	s.Equal("Heating buildplate", v.Lines[0])
	s.Equal("40C/60C", v.Lines[1])

	s.motion.heatTool = 0
	s.temp.cur[0] = 180
	v = s.tick()
	s.Equal("Heating", v.Lines[0])
	s.Equal("180C/210C", v.Lines[1])

	s.motion.heatWaiting = false
	v = s.tick()
	s.Equal("Printing:", v.Lines[0])
	s.Equal("cube", v.Lines[1])
}
