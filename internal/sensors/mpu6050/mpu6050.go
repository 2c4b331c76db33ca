package mpu6050

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"tinygo.org/x/drivers"
	tinympu "tinygo.org/x/drivers/mpu6050"

	"tiltrig/internal/i2c"
	"tiltrig/internal/orientation"
)

var sleep = time.Sleep

// ErrNotDetected means WHO_AM_I did not return the expected identity.
var ErrNotDetected = errors.New("mpu6050: not detected")

// Register addresses come from the tinygo driver's register map.
const (
	whoAmIVal = 0x68

	pwrDeviceReset    = 0x80
	smplrtDiv1kHz     = 0x07 // 8 kHz gyro rate / (1+7)
	configDLPFOff     = 0x00
	accelDefaultRange = tinympu.AFS_RANGE_2G << 3
	gyroDefaultRange  = tinympu.FS_RANGE_250 << 3
)

// AddressVariant is the AD0 pin strapping.
type AddressVariant uint8

const (
	AD0Low AddressVariant = iota
	AD0High
)

func (v AddressVariant) Address() uint8 {
	if v == AD0High {
		return 0x69
	}
	return 0x68
}

func (v AddressVariant) String() string {
	if v == AD0High {
		return "ad0-high"
	}
	return "ad0-low"
}

// ParseVariant accepts "low"/"high" (optionally "ad0-" prefixed) or the hex
// address.
func ParseVariant(s string) (AddressVariant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "low", "ad0-low", "ad0_low", "0x68":
		return AD0Low, nil
	case "high", "ad0-high", "ad0_high", "0x69":
		return AD0High, nil
	default:
		return 0, fmt.Errorf("mpu6050: unknown address variant %q", s)
	}
}

type Device struct {
	bus   i2c.RegisterBus
	addr  uint8
	burst bool
}

type Option func(*Device)

// WithBurstReads reads each sensor's six data bytes in one transaction
// instead of six single-register reads.
func WithBurstReads(on bool) Option {
	return func(d *Device) { d.burst = on }
}

// New only records the bus and address; it does not touch the device.
func New(bus i2c.RegisterBus, v AddressVariant, opts ...Option) *Device {
	d := &Device{bus: bus, addr: v.Address()}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Device) Address() uint8 { return d.addr }

// Detect reads WHO_AM_I. A mismatch is returned as ErrNotDetected with the
// ID that was read.
func (d *Device) Detect() (byte, error) {
	id := d.bus.ReadRegister(d.addr, tinympu.WHO_AM_I)
	if id != whoAmIVal {
		return id, fmt.Errorf("%w: addr=0x%02X whoami=0x%02X want 0x%02X", ErrNotDetected, d.addr, id, whoAmIVal)
	}
	return id, nil
}

// Step is one configuration write performed by Init.
type Step struct {
	Name string
	Reg  byte
	Val  byte
}

var initSteps = []Step{
	{"reset", tinympu.PWR_MGMT_1, pwrDeviceReset},
	{"wake", tinympu.PWR_MGMT_1, tinympu.CLOCK_INTERNAL},
	{"sample rate", tinympu.SMPLRT_DIV, smplrtDiv1kHz},
	{"config", tinympu.CONFIG, configDLPFOff},
	{"accel config", tinympu.ACCEL_CONFIG, accelDefaultRange},
	{"gyro config", tinympu.GYRO_CONFIG, gyroDefaultRange},
}

// Init resets and configures the device for 1 kHz sampling at the default
// ranges. Every step is attempted; report (optional) is called after each
// with its outcome. The returned error joins all failed steps.
func (d *Device) Init(report func(step Step, err error)) error {
	var errs []error
	for i, s := range initSteps {
		err := d.bus.WriteRegister(d.addr, s.Reg, s.Val)
		if err != nil {
			err = fmt.Errorf("mpu6050: %s: %w", s.Name, err)
			errs = append(errs, err)
		}
		if report != nil {
			report(s, err)
		}
		if i == 0 {
			sleep(100 * time.Millisecond)
		}
	}
	return errors.Join(errs...)
}

func (d *Device) ReadAccel() (orientation.Raw, error) {
	return d.readAxes(tinympu.ACCEL_XOUT_H)
}

func (d *Device) ReadGyro() (orientation.Raw, error) {
	return d.readAxes(tinympu.GYRO_XOUT_H)
}

// readAxes reads the X, Y, Z register pairs starting at base (X high byte).
// Single reads go low byte first; a new sample can latch between them.
func (d *Device) readAxes(base byte) (orientation.Raw, error) {
	var buf [6]byte
	if d.burst {
		if n := d.bus.BurstRead(d.addr, base, buf[:]); n != len(buf) {
			return orientation.Raw{}, fmt.Errorf("mpu6050: burst read 0x%02X: got %d of %d bytes", base, n, len(buf))
		}
	} else {
		for i := 0; i < len(buf); i += 2 {
			buf[i+1] = d.bus.ReadRegister(d.addr, base+byte(i)+1)
			buf[i] = d.bus.ReadRegister(d.addr, base+byte(i))
		}
	}
	return orientation.Raw{
		X: orientation.AssembleAxis(buf[1], buf[0]),
		Y: orientation.AssembleAxis(buf[3], buf[2]),
		Z: orientation.AssembleAxis(buf[5], buf[4]),
	}, nil
}

// AccelConfig reads ACCEL_CONFIG from the device.
func (d *Device) AccelConfig() byte { return d.bus.ReadRegister(d.addr, tinympu.ACCEL_CONFIG) }

// GyroConfig reads GYRO_CONFIG from the device.
func (d *Device) GyroConfig() byte { return d.bus.ReadRegister(d.addr, tinympu.GYRO_CONFIG) }

// ReadRegister is raw register access for debugging.
func (d *Device) ReadRegister(reg byte) byte { return d.bus.ReadRegister(d.addr, reg) }

// Probe asks the stock tinygo driver whether a device answers at v.
func Probe(bus drivers.I2C, v AddressVariant) bool {
	dev := tinympu.New(bus)
	dev.Address = uint16(v.Address())
	return dev.Connected()
}

var _ orientation.IMU = (*Device)(nil)
