package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/dead_reckoning/internal/filter"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader("# nothing but a comment\n\n"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Nil(t, cfg.Smoothing())
}

func TestParseValues(t *testing.T) {
	src := `
SAMPLE_RATE_HZ = 50
FIX_MIN_VALID=-80
FIX_SENTINEL=-200
SMOOTHING_ENABLED=true
SMOOTHING_WINDOW=7
SMOOTHING_OFFSET=1
SMOOTH_OMEGA_Z=true
FRAME_STRIDE=10
MQTT_BROKER=tcp://broker:1883
TOPIC_SAMPLES=car/samples
IMU_SOURCE=serial
SERIAL_PORT=/dev/ttyUSB0
IMU_ACCEL_RANGE=2
DISPLAY_I2C_ADDR=0x3D
`
	cfg, err := Parse(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, 50.0, cfg.SampleRateHz)
	assert.Equal(t, -80.0, cfg.FixMinValid)
	assert.Equal(t, -200.0, cfg.FixSentinel)
	assert.Equal(t, 10, cfg.FrameStride)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTTBroker)
	assert.Equal(t, "car/samples", cfg.TopicSamples)
	assert.Equal(t, "serial", cfg.IMUSource)
	assert.Equal(t, byte(2), cfg.IMUAccelRange)
	assert.Equal(t, uint16(0x3D), cfg.DisplayI2CAddr)

	sm := cfg.Smoothing()
	require.NotNil(t, sm)
	assert.Equal(t, 7, sm.Window)
	assert.Equal(t, filter.LegacyOffset, sm.Offset)
	assert.Equal(t, []filter.Channel{filter.AccX, filter.AccY, filter.OmegaZ}, sm.Channels)

	ro := cfg.RunOptions()
	assert.Equal(t, 50.0, ro.Hz)
	assert.True(t, ro.FixValid(-80))
	assert.False(t, ro.FixValid(-81))
	assert.False(t, ro.FixValid(math.NaN()))
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"no separator":      "SAMPLE_RATE_HZ 100",
		"unknown key":       "WEATHER=sunny",
		"bad float":         "SAMPLE_RATE_HZ=fast",
		"non-finite":        "FIX_MIN_VALID=NaN",
		"zero rate":         "SAMPLE_RATE_HZ=0",
		"even window":       "SMOOTHING_WINDOW=4",
		"range":             "IMU_GYRO_RANGE=4",
		"sentinel too high": "FIX_SENTINEL=-10",
		"unknown source":    "IMU_SOURCE=gps",
		"serial needs port": "IMU_SOURCE=serial",
		"bad bool":          "REPLAY_LOOP=sometimes",
		"negative stride":   "FRAME_STRIDE=-1",
		"bad display addr":  "DISPLAY_I2C_ADDR=zz",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(src))
			assert.Error(t, err)
		})
	}
}

func TestValidateAfterOverride(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.FixMinValid = -200
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FIX_SENTINEL")

	cfg = Default()
	cfg.SmoothingWindow = 4
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.SampleRateHz = 0
	assert.Error(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultPath)
	require.NoError(t, os.WriteFile(path, []byte("SAMPLE_RATE_HZ=200\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 200.0, cfg.SampleRateHz)

	_, err = Load(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestSamplePeriod(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 10*time.Millisecond, cfg.SamplePeriod())
}
