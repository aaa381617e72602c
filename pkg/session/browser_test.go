package session

func (s *ControllerSuite) TestBrowserRows() {
	s.tick()
	rows := s.c.Rows(0, 4)
	s.Require().Len(rows, 4)
	s.Equal(Row{Text: "< RETURN", Back: true}, rows[0])
	s.Equal(Row{Index: 1, Text: "parts", Dir: true}, rows[1])
	s.Equal(Row{Index: 2, Text: "cube"}, rows[2])
	s.Equal(Row{Index: 3, Text: "plain"}, rows[3])

	reads := s.storage.nameReads
	s.c.Rows(0, 4)
	s.Equal(reads, s.storage.nameReads, "second pass served from cache")
	s.Equal(3, s.observer.misses["dir"], "first render read each name once")
	s.Equal(6, s.observer.hits["dir"])

	s.Len(s.c.Rows(3, 10), 2, "rows stop at the end of the listing")
}

func (s *ControllerSuite) TestBrowserNavigation() {
	s.tick()
	s.Equal(SelectExit, s.c.Select(0))

	s.Equal(SelectDirChanged, s.c.Select(rowParts))
	s.tick()
	rows := s.c.Rows(0, 4)
	s.Require().Len(rows, 2)
	s.Equal("< BACK", rows[0].Text)
	s.Equal("bracket", rows[1].Text)

	s.Equal(SelectDirChanged, s.c.Select(0))
	s.tick()
	s.Equal("parts", s.c.Rows(1, 1)[0].Text)
}

func (s *ControllerSuite) TestBrowserCursorAndDetails() {
	s.tick()
	s.Equal(4, s.c.MoveCursor(10))
	s.Equal(0, s.c.MoveCursor(-10))

	s.c.MoveCursor(rowCube)
	v := s.tick()
	s.Equal(rowCube, v.Cursor)
	s.NotEmpty(v.Detail[0])
	s.NotEqual("No info available", v.Detail[0])
	s.Equal(1, s.observer.misses["detail"])

	s.tick()
	s.Equal(1, s.observer.misses["detail"], "details cached across ticks")

	s.c.MoveCursor(-1)
	v = s.tick()
	s.Equal([2]string{"Folder", ""}, v.Detail)
}

func (s *ControllerSuite) TestBrowserDetailPagesAlternate() {
	s.tick()
	s.c.MoveCursor(rowCube)
	pages := map[string]bool{}
	for i := 0; i < 80; i++ {
		pages[s.tick().Detail[0]] = true
	}
	s.Contains(pages, "Time: 1h05m")
	s.Contains(pages, "Material: 1.00m")
}

func (s *ControllerSuite) TestBrowserWithoutCard() {
	s.storage.inserted = false
	s.storage.ready = false
	v := s.tick()
	s.Equal("No SD-CARD!", v.Lines[0])
	s.Nil(s.c.Rows(0, 4))
	s.Equal(SelectFailed, s.c.Select(rowCube))

	s.storage.inserted = true
	v = s.tick()
	s.Equal("Reading card...", v.Lines[0])
	s.Equal(1, s.storage.inits)

	v = s.tick()
	s.Equal(Selecting, v.Phase)
	s.Len(v.Rows, 4)
}

func (s *ControllerSuite) TestBrowserEmptyDirectory() {
	s.storage.dirs[""] = nil
	v := s.tick()
	s.Equal("No files found!", v.Lines[0])
	s.Len(v.Rows, 1)
}

func (s *ControllerSuite) TestMediaChangeInvalidatesCache() {
	s.tick()
	s.c.Rows(0, 4)
	s.storage.dirs[""][1].name = "renamed.gcode"
	s.Equal("cube", s.c.Rows(2, 1)[0].Text)

	s.storage.gen++
	s.tick()
	s.Equal("renamed", s.c.Rows(2, 1)[0].Text)
}

func (s *ControllerSuite) TestSelectReadFailure() {
	s.tick()
	s.Equal(SelectFailed, s.c.Select(9))
	s.False(s.storage.errPending)
	s.Equal(Selecting, s.c.Phase())
}

func (s *ControllerSuite) TestDisplayName() {
	s.Equal("cube", displayName("cube.gcode"))
	s.Equal("a_very_long_file_nam", displayName("a_very_long_file_name_indeed.gcode"))
	s.Equal("v1", displayName("v1.2.gcode"))
}
