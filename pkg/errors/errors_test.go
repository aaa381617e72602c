// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostErrorString(t *testing.T) {
	err := ConfigOptionError("machine", "z_max")
	assert.Equal(t, "[CONFIG_OPTION:machine:z_max] option 'z_max' not found in section 'machine'", err.Error())

	wrapped := StorageReadError("/media/sd/cube.gcode", io.ErrUnexpectedEOF)
	assert.Contains(t, wrapped.Error(), "STORAGE_READ")
	assert.Contains(t, wrapped.Error(), "unexpected EOF")
	assert.ErrorIs(t, wrapped, io.ErrUnexpectedEOF)
}

func TestIsWalksChain(t *testing.T) {
	inner := StorageReadError("a.gcode", io.EOF)
	outer := HeaderParseError(3, inner)
	viaFmt := fmt.Errorf("detail: %w", outer)

	assert.True(t, Is(viaFmt, ErrHeaderParse))
	assert.True(t, Is(viaFmt, ErrStorageRead))
	assert.True(t, IsStorage(viaFmt))
	assert.False(t, Is(viaFmt, ErrQueueFull))
	assert.False(t, Is(stderrors.New("plain"), ErrRuntime))
	assert.False(t, Is(nil, ErrRuntime))
}

func TestIsConfig(t *testing.T) {
	assert.True(t, IsConfig(ConfigSectionError("priming")))
	assert.True(t, IsConfig(ConfigTypeError("display", "cache_slots", "x", "int", stderrors.New("bad"))))
	assert.False(t, IsConfig(QueueFullError(4, 4)))
}

func TestContext(t *testing.T) {
	err := QueueFullError(3, 4)
	assert.Equal(t, 3, err.Context["pending"])
	assert.Equal(t, 4, err.Context["capacity"])

	err = WithConfigPath(ConfigSectionError("machine"), "/etc/printer.cfg")
	assert.Equal(t, "/etc/printer.cfg", err.Context["config_path"])
	assert.Nil(t, WithConfigPath(nil, "x"))
}

func TestFromPanic(t *testing.T) {
	recovered := func(fn func()) (err *HostError) {
		defer func() { err = FromPanic(recover()) }()
		fn()
		return nil
	}

	assert.Nil(t, recovered(func() {}))

	err := recovered(func() { panic("boom") })
	require.NotNil(t, err)
	assert.Equal(t, ErrRuntime, err.Code)
	assert.Contains(t, err.Message, "boom")

	cause := stderrors.New("broken timer")
	err = recovered(func() { panic(cause) })
	require.NotNil(t, err)
	assert.ErrorIs(t, err, cause)

	err = recovered(func() { panic(42) })
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "42")
}

func TestMachineErrors(t *testing.T) {
	err := PositionFaultError("X", 231.5, 0, 230)
	assert.Equal(t, ErrPositionFault, err.Code)
	assert.Contains(t, err.Error(), "231.500")

	err = SessionStateError("resume", "printing")
	assert.Contains(t, err.Error(), "resume not allowed while printing")

	err = SerialLinkError("/dev/ttyACM0", io.ErrClosedPipe)
	assert.True(t, Is(err, ErrSerialLink))
	assert.Equal(t, "/dev/ttyACM0", err.Section)
}
