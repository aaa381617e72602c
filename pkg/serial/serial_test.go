package serial

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestBaudRateToSpeed(t *testing.T) {
	speed, custom, err := baudRateToSpeed(115200)
	require.NoError(t, err)
	assert.Equal(t, uint32(unix.B115200), speed)
	assert.Zero(t, custom)

	if runtime.GOOS == "linux" {
		speed, _, err = baudRateToSpeed(250000)
		require.NoError(t, err)
		assert.Equal(t, uint32(0x1003), speed)
	}
}

func TestOpenRequiresDevice(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)

	_, err = Open(Config{Device: t.TempDir() + "/missing"})
	assert.Error(t, err)
}
