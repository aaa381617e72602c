package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lcdprint-go/pkg/errors"
)

const sampleConfig = `
# front panel machine
[machine]
x_max: 230
y_max: 225
z_max: 205   ; UM2 height
queue_capacity: 8

[display]
cache_slots = 4
led_mode: blink_on_done
`

func TestLoadString(t *testing.T) {
	cfg, err := LoadString(sampleConfig)
	require.NoError(t, err)

	assert.True(t, cfg.HasSection("machine"))
	assert.True(t, cfg.HasSection("display"))
	assert.False(t, cfg.HasSection("priming"))
	assert.Equal(t, []string{"machine", "display"}, cfg.GetSectionNames())

	sec, err := cfg.GetSection("machine")
	require.NoError(t, err)
	assert.Equal(t, "machine", sec.GetName())

	z, err := sec.GetFloat("z_max")
	require.NoError(t, err)
	assert.Equal(t, 205.0, z)

	q, err := sec.GetInt("queue_capacity")
	require.NoError(t, err)
	assert.Equal(t, 8, q)

	disp, err := cfg.GetSection("display")
	require.NoError(t, err)
	slots, err := disp.GetInt("cache_slots")
	require.NoError(t, err)
	assert.Equal(t, 4, slots)
}

func TestSyntaxError(t *testing.T) {
	_, err := LoadString("[machine]\nthis line has no separator\n")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfigValidation))

	_, err = LoadString("[ ]\n")
	assert.Error(t, err)
}

func TestSectionGetters(t *testing.T) {
	cfg, err := LoadString(`
[test]
name: cube
flag: yes
window: 90s
seconds: 12.5
ratio: 0.25
sizes: 0.25, 0.4 ,0.6
mode: Always_On
`)
	require.NoError(t, err)
	sec, err := cfg.GetSection("test")
	require.NoError(t, err)

	v, err := sec.Get("name")
	require.NoError(t, err)
	assert.Equal(t, "cube", v)

	b, err := sec.GetBool("flag")
	require.NoError(t, err)
	assert.True(t, b)

	d, err := sec.GetDuration("window")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	d, err = sec.GetDuration("seconds")
	require.NoError(t, err)
	assert.Equal(t, 12500*time.Millisecond, d)

	d, err = sec.GetDuration("missing", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	list, err := sec.GetFloatList("sizes", ",")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, 0.4, 0.6}, list)

	mode, err := sec.GetChoice("mode", []string{"always_on", "off"})
	require.NoError(t, err)
	assert.Equal(t, "always_on", mode)

	_, err = sec.GetChoice("name", []string{"a", "b"})
	assert.Error(t, err)

	_, err = sec.GetFloatWithBounds("ratio", FloatBounds{Above: ptr(0.5)})
	assert.True(t, errors.Is(err, errors.ErrConfigValidation))

	_, err = sec.GetIntRange("missing", 0, 10)
	assert.True(t, errors.Is(err, errors.ErrConfigOption))

	_, err = sec.GetInt("name")
	assert.True(t, errors.Is(err, errors.ErrConfigType))
}

func TestAccessTracking(t *testing.T) {
	cfg, err := LoadString(`
[machine]
x_max: 230
x_mx: 231

[unused]
a: 1
`)
	require.NoError(t, err)

	sec, err := cfg.GetSection("machine")
	require.NoError(t, err)
	_, _ = sec.GetFloat("x_max")

	assert.Equal(t, []string{"unused"}, cfg.GetUnusedSections())
	err = cfg.CheckUnusedOptions()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "x_mx")
}

func TestMissingSection(t *testing.T) {
	cfg, err := LoadString("[a]\nb: 1\n")
	require.NoError(t, err)

	_, err = cfg.GetSection("nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfigSection))

	opt := cfg.GetSectionOptional("nope")
	v, err := opt.GetInt("x", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestLoadWithInclude(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "display.cfg"),
		[]byte("[display]\ncache_slots: 3\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "printer.cfg"),
		[]byte("[include display.cfg]\n[machine]\nz_max: 180\n[display]\nname_length: 20\n"), 0644))

	cfg, err := Load(filepath.Join(dir, "printer.cfg"))
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Dir())
	assert.Equal(t, filepath.Join(dir, "m.yaml"), cfg.Resolve("m.yaml"))
	assert.Equal(t, "/abs/m.yaml", cfg.Resolve("/abs/m.yaml"))

	disp, err := cfg.GetSection("display")
	require.NoError(t, err)
	slots, err := disp.GetInt("cache_slots")
	require.NoError(t, err)
	assert.Equal(t, 3, slots)
	n, err := disp.GetInt("name_length")
	require.NoError(t, err)
	assert.Equal(t, 20, n)
}

func TestRecursiveInclude(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loop.cfg")
	require.NoError(t, os.WriteFile(path, []byte("[include loop.cfg]\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recursive include")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.cfg"))
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}
