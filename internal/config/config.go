package config

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/relabs-tech/dead_reckoning/internal/filter"
	"github.com/relabs-tech/dead_reckoning/internal/gps"
	"github.com/relabs-tech/dead_reckoning/internal/reckon"
	"github.com/relabs-tech/dead_reckoning/internal/sensorlog"
)

// DefaultPath is the configuration file every command reads unless told
// otherwise.
const DefaultPath = "reckoner_config.txt"

// Config holds all application configuration values.
type Config struct {
	// Integration
	SampleRateHz float64
	FixMinValid  float64 // lowest log value read back as a real fix
	FixSentinel  float64 // value written for an absent fix

	// Pre-filter
	SmoothingEnabled bool
	SmoothingWindow  int
	SmoothingOffset  float64
	SmoothOmegaZ     bool

	// Offline runs
	InputPath   string
	OutputDir   string
	FrameStride int // 0 disables frame files
	BatchLimit  int // concurrent runs, 0 = unlimited

	// MQTT
	MQTTBroker          string
	MQTTClientIDCapture string
	MQTTClientIDReckon  string
	MQTTClientIDConsole string
	MQTTClientIDWeb     string
	MQTTClientIDDisplay string

	// Topics
	TopicSamples    string
	TopicTrajectory string
	TopicControl    string

	// Capture
	IMUSource      string // "mpu9250" or "serial"
	IMUSPIDevice   string
	IMUCSPin       string
	CaptureLogPath string
	ReplayLoop     bool

	// IMU Sensor Ranges
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange byte

	// Serial
	SerialPort     string
	SerialBaudRate int

	// Timing
	ConsoleLogInterval int // milliseconds

	// Web Server
	WebServerPort int

	// Display
	DisplayI2CAddr        uint16
	DisplayUpdateInterval int // milliseconds
}

// The global config is only reachable through InitGlobal and Get.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the values used for keys a config file leaves out.
func Default() *Config {
	return &Config{
		SampleRateHz:          100,
		FixMinValid:           gps.DefaultMinValid,
		FixSentinel:           gps.DefaultSentinel,
		SmoothingWindow:       filter.DefaultWindow,
		OutputDir:             "out",
		MQTTBroker:            "tcp://localhost:1883",
		MQTTClientIDCapture:   "reckoner-capture",
		MQTTClientIDReckon:    "reckoner-live",
		MQTTClientIDConsole:   "reckoner-console",
		MQTTClientIDWeb:       "reckoner-web",
		MQTTClientIDDisplay:   "reckoner-display",
		TopicSamples:          "reckoner/samples",
		TopicTrajectory:       "reckoner/trajectory",
		TopicControl:          "reckoner/control",
		IMUSource:             "mpu9250",
		IMUSPIDevice:          "/dev/spidev0.0",
		IMUCSPin:              "GPIO8",
		SerialBaudRate:        115200,
		ConsoleLogInterval:    500,
		WebServerPort:         8080,
		DisplayI2CAddr:        0x3C,
		DisplayUpdateInterval: 200,
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads KEY=VALUE lines on top of Default.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		if err := cfg.setValue(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseFloat(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s must be finite, got %q", key, value)
	}
	return v, nil
}

func parseInt(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseBool(key, value string) (bool, error) {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseRange(key, value, legend string) (byte, error) {
	v, err := parseInt(key, value)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > 3 {
		return 0, fmt.Errorf("%s must be 0-3 (%s), got %d", key, legend, v)
	}
	return byte(v), nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Integration
	case "SAMPLE_RATE_HZ":
		c.SampleRateHz, err = parseFloat(key, value)
	case "FIX_MIN_VALID":
		c.FixMinValid, err = parseFloat(key, value)
	case "FIX_SENTINEL":
		c.FixSentinel, err = parseFloat(key, value)

	// Pre-filter
	case "SMOOTHING_ENABLED":
		c.SmoothingEnabled, err = parseBool(key, value)
	case "SMOOTHING_WINDOW":
		c.SmoothingWindow, err = parseInt(key, value)
	case "SMOOTHING_OFFSET":
		c.SmoothingOffset, err = parseFloat(key, value)
	case "SMOOTH_OMEGA_Z":
		c.SmoothOmegaZ, err = parseBool(key, value)

	// Offline runs
	case "INPUT_PATH":
		c.InputPath = value
	case "OUTPUT_DIR":
		c.OutputDir = value
	case "FRAME_STRIDE":
		c.FrameStride, err = parseInt(key, value)
	case "BATCH_LIMIT":
		c.BatchLimit, err = parseInt(key, value)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_CAPTURE":
		c.MQTTClientIDCapture = value
	case "MQTT_CLIENT_ID_RECKON":
		c.MQTTClientIDReckon = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_SAMPLES":
		c.TopicSamples = value
	case "TOPIC_TRAJECTORY":
		c.TopicTrajectory = value
	case "TOPIC_CONTROL":
		c.TopicControl = value

	// Capture
	case "IMU_SOURCE":
		if value != "mpu9250" && value != "serial" {
			return fmt.Errorf("IMU_SOURCE must be mpu9250 or serial, got %q", value)
		}
		c.IMUSource = value
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "CAPTURE_LOG_PATH":
		c.CaptureLogPath = value
	case "REPLAY_LOOP":
		c.ReplayLoop, err = parseBool(key, value)

	// IMU Sensor Ranges
	case "IMU_ACCEL_RANGE":
		c.IMUAccelRange, err = parseRange(key, value, "0=±2g, 1=±4g, 2=±8g, 3=±16g")
	case "IMU_GYRO_RANGE":
		c.IMUGyroRange, err = parseRange(key, value, "0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s")

	// Serial
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		c.SerialBaudRate, err = parseInt(key, value)

	// Timing
	case "CONSOLE_LOG_INTERVAL":
		c.ConsoleLogInterval, err = parseInt(key, value)

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value)

	// Display
	case "DISPLAY_I2C_ADDR":
		addr, perr := strconv.ParseUint(value, 0, 16)
		if perr != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, perr)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = parseInt(key, value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// Validate checks cross-field and range constraints. Parse calls it; callers
// that change fields afterwards must call it again.
func (c *Config) Validate() error {
	if c.SampleRateHz <= 0 {
		return fmt.Errorf("SAMPLE_RATE_HZ must be positive, got %v", c.SampleRateHz)
	}
	if c.FixSentinel >= c.FixMinValid {
		return fmt.Errorf("FIX_SENTINEL (%v) must be below FIX_MIN_VALID (%v)", c.FixSentinel, c.FixMinValid)
	}
	if c.SmoothingWindow < 1 || c.SmoothingWindow%2 == 0 {
		return fmt.Errorf("SMOOTHING_WINDOW must be a positive odd number, got %d", c.SmoothingWindow)
	}
	if c.FrameStride < 0 {
		return fmt.Errorf("FRAME_STRIDE must not be negative, got %d", c.FrameStride)
	}
	if c.BatchLimit < 0 {
		return fmt.Errorf("BATCH_LIMIT must not be negative, got %d", c.BatchLimit)
	}
	if c.DisplayUpdateInterval <= 0 {
		return fmt.Errorf("DISPLAY_UPDATE_INTERVAL must be positive, got %d", c.DisplayUpdateInterval)
	}
	if c.ConsoleLogInterval <= 0 {
		return fmt.Errorf("CONSOLE_LOG_INTERVAL must be positive, got %d", c.ConsoleLogInterval)
	}
	if c.IMUSource == "serial" && c.SerialPort == "" {
		return fmt.Errorf("SERIAL_PORT is required when IMU_SOURCE=serial")
	}
	if c.SerialBaudRate <= 0 {
		return fmt.Errorf("SERIAL_BAUD_RATE must be positive, got %d", c.SerialBaudRate)
	}
	return nil
}

// FixPredicate returns the fix-validity rule for recorded logs.
func (c *Config) FixPredicate() gps.Predicate {
	return gps.AtLeast(c.FixMinValid)
}

// LogOptions returns the sensor-log reader options.
func (c *Config) LogOptions() sensorlog.Options {
	return sensorlog.Options{FixValid: c.FixPredicate()}
}

// Smoothing returns the pre-filter options, or nil when smoothing is off.
func (c *Config) Smoothing() *filter.Options {
	if !c.SmoothingEnabled {
		return nil
	}
	opts := filter.DefaultOptions()
	opts.Window = c.SmoothingWindow
	opts.Offset = c.SmoothingOffset
	if c.SmoothOmegaZ {
		opts.Channels = append(opts.Channels, filter.OmegaZ)
	}
	return &opts
}

// SamplePeriod returns the wall-clock time between live samples.
func (c *Config) SamplePeriod() time.Duration {
	return time.Duration(float64(time.Second) / c.SampleRateHz)
}

// RunOptions returns the options for an offline integration run.
func (c *Config) RunOptions() reckon.RunOptions {
	return reckon.RunOptions{
		Options:   reckon.Options{Hz: c.SampleRateHz, FixValid: c.FixPredicate()},
		Smoothing: c.Smoothing(),
	}
}

// InitGlobal initializes the global configuration from file.
// Only the first call has any effect.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
