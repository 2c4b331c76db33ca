package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tiltrig/internal/sensors/mpu6050"
)

type Config struct {
	Bus      BusConfig      `yaml:"bus"`
	IMU      IMUConfig      `yaml:"imu"`
	Color    ColorConfig    `yaml:"color"`
	Display  DisplayConfig  `yaml:"display"`
	Servo    ServoConfig    `yaml:"servo"`
	LED      LEDConfig      `yaml:"led"`
	Console  ConsoleConfig  `yaml:"console"`
	Dispatch DispatchConfig `yaml:"dispatch"`
}

type BusConfig struct {
	// Backend is "sim" (in-memory controller and peripherals) or "linux"
	// (/dev/i2c-N).
	Backend    string `yaml:"backend"`
	Device     string `yaml:"device"`
	SysClockHz int64  `yaml:"sys_clock_hz"`
	SpeedHz    int64  `yaml:"speed_hz"`
}

type IMUConfig struct {
	Address    string `yaml:"address"`
	BurstReads bool   `yaml:"burst_reads"`
}

type ColorConfig struct {
	Gain        int           `yaml:"gain"`
	Integration time.Duration `yaml:"integration"`
	MinClear    int           `yaml:"min_clear"`
	Margin      int           `yaml:"margin"`
}

type DisplayConfig struct {
	Address int `yaml:"address"`
	Cols    int `yaml:"cols"`
	Rows    int `yaml:"rows"`
}

type ServoConfig struct {
	// Backend is "memory" or "sysfs".
	Backend string `yaml:"backend"`
	Chip    string `yaml:"chip"`
	Channel int    `yaml:"channel"`
}

type LEDConfig struct {
	// Backend is "memory" or "gpio".
	Backend string `yaml:"backend"`
	Chip    string `yaml:"chip"`
	// Lines are the red, blue and green line offsets.
	Lines    []int         `yaml:"lines"`
	Button   int           `yaml:"button"`
	Debounce time.Duration `yaml:"debounce"`
}

type ConsoleConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

type DispatchConfig struct {
	Test     string        `yaml:"test"`
	Interval time.Duration `yaml:"interval"`
	Loop     bool          `yaml:"loop"`
}

const (
	standardModeHz = 100_000
	defaultClockHz = 40_000_000
	maxClockHz     = 1_000_000_000
)

var dispatchTests = []string{"delay", "i2c", "uart", "mpu6050", "tcs34727", "servo", "lcd", "full"}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		var te *yaml.TypeError
		if errors.As(err, &te) && unknownFieldsOnly(te.Errors) {
			return Config{}, fmt.Errorf("config contains unknown fields: %s", strings.Join(stripLinePrefix(te.Errors), "; "))
		}
		return Config{}, err
	}

	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultAndValidate fills unset fields and rejects inconsistent settings.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	cfg.Bus.Backend = strings.ToLower(strings.TrimSpace(cfg.Bus.Backend))
	switch cfg.Bus.Backend {
	case "":
		cfg.Bus.Backend = "sim"
	case "sim", "linux":
	default:
		return fmt.Errorf("bus.backend must be 'sim' or 'linux'")
	}
	if cfg.Bus.Backend == "linux" && strings.TrimSpace(cfg.Bus.Device) == "" {
		cfg.Bus.Device = "/dev/i2c-1"
	}
	if cfg.Bus.SysClockHz == 0 {
		cfg.Bus.SysClockHz = defaultClockHz
	}
	if cfg.Bus.SysClockHz < 0 {
		return fmt.Errorf("bus.sys_clock_hz must be > 0")
	}
	if cfg.Bus.SysClockHz > maxClockHz {
		return fmt.Errorf("bus.sys_clock_hz must be <= %d", maxClockHz)
	}
	if cfg.Bus.SpeedHz == 0 {
		cfg.Bus.SpeedHz = standardModeHz
	}
	if cfg.Bus.SpeedHz != standardModeHz {
		return fmt.Errorf("bus.speed_hz must be %d (standard mode)", standardModeHz)
	}

	cfg.IMU.Address = strings.ToLower(strings.TrimSpace(cfg.IMU.Address))
	if cfg.IMU.Address == "" {
		cfg.IMU.Address = "ad0_low"
	}
	if _, err := mpu6050.ParseVariant(cfg.IMU.Address); err != nil {
		return fmt.Errorf("imu.address must be one of low, high, ad0-low, ad0-high, ad0_low, ad0_high, 0x68, 0x69")
	}

	if cfg.Color.Gain == 0 {
		cfg.Color.Gain = 1
	}
	switch cfg.Color.Gain {
	case 1, 4, 16, 60:
	default:
		return fmt.Errorf("color.gain must be one of 1, 4, 16, 60")
	}
	if cfg.Color.Integration == 0 {
		cfg.Color.Integration = 154 * time.Millisecond
	}
	if cfg.Color.Integration < 2400*time.Microsecond || cfg.Color.Integration > 700*time.Millisecond {
		return fmt.Errorf("color.integration must be between 2.4ms and 700ms")
	}
	if cfg.Color.MinClear < 0 || cfg.Color.MinClear > 0xFFFF {
		return fmt.Errorf("color.min_clear must be between 0 and 65535")
	}
	if cfg.Color.Margin == 0 {
		cfg.Color.Margin = 10
	}
	if cfg.Color.Margin < 0 || cfg.Color.Margin > 255 {
		return fmt.Errorf("color.margin must be between 0 and 255")
	}

	if cfg.Display.Address == 0 {
		cfg.Display.Address = 0x3F
	}
	if cfg.Display.Address < 0 || cfg.Display.Address > 0x7F {
		return fmt.Errorf("display.address must be a 7-bit address")
	}
	if cfg.Display.Cols <= 0 {
		cfg.Display.Cols = 16
	}
	if cfg.Display.Rows <= 0 {
		cfg.Display.Rows = 2
	}
	if cfg.Display.Cols > 40 || cfg.Display.Rows > 4 {
		return fmt.Errorf("display supports at most 40 cols and 4 rows")
	}

	cfg.Servo.Backend = strings.ToLower(strings.TrimSpace(cfg.Servo.Backend))
	switch cfg.Servo.Backend {
	case "":
		cfg.Servo.Backend = "memory"
	case "memory", "sysfs":
	default:
		return fmt.Errorf("servo.backend must be 'memory' or 'sysfs'")
	}
	if cfg.Servo.Channel < 0 {
		return fmt.Errorf("servo.channel must be >= 0")
	}

	cfg.LED.Backend = strings.ToLower(strings.TrimSpace(cfg.LED.Backend))
	switch cfg.LED.Backend {
	case "":
		cfg.LED.Backend = "memory"
	case "memory", "gpio":
	default:
		return fmt.Errorf("led.backend must be 'memory' or 'gpio'")
	}
	if cfg.LED.Backend == "gpio" {
		if strings.TrimSpace(cfg.LED.Chip) == "" {
			cfg.LED.Chip = "gpiochip0"
		}
		if len(cfg.LED.Lines) != 3 {
			return fmt.Errorf("led.lines must list the red, blue and green offsets")
		}
		if cfg.LED.Button < 0 {
			return fmt.Errorf("led.button must be >= 0")
		}
		for _, l := range cfg.LED.Lines {
			if l < 0 {
				return fmt.Errorf("led.lines offsets must be >= 0")
			}
		}
	}
	if cfg.LED.Debounce < 0 {
		return fmt.Errorf("led.debounce must be >= 0")
	}
	if cfg.LED.Debounce == 0 {
		cfg.LED.Debounce = 20 * time.Millisecond
	}

	if cfg.Console.Baud == 0 {
		cfg.Console.Baud = 115200
	}
	if cfg.Console.Baud < 0 {
		return fmt.Errorf("console.baud must be > 0")
	}

	cfg.Dispatch.Test = strings.ToLower(strings.TrimSpace(cfg.Dispatch.Test))
	if cfg.Dispatch.Test == "" {
		cfg.Dispatch.Test = "full"
	}
	known := false
	for _, n := range dispatchTests {
		if n == cfg.Dispatch.Test {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("dispatch.test must be one of %s", strings.Join(dispatchTests, ", "))
	}
	if cfg.Dispatch.Interval < 0 {
		return fmt.Errorf("dispatch.interval must be >= 0")
	}

	return nil
}

func unknownFieldsOnly(errs []string) bool {
	for _, e := range errs {
		if !strings.Contains(e, "not found in type") {
			return false
		}
	}
	return len(errs) > 0
}

// stripLinePrefix drops yaml's "line N: " prefix so errors stay stable when
// the file layout changes.
func stripLinePrefix(errs []string) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		if strings.HasPrefix(e, "line ") {
			if i := strings.Index(e, ": "); i >= 0 {
				e = e[i+2:]
			}
		}
		out = append(out, e)
	}
	return out
}
