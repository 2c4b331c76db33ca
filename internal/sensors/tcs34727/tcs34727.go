// Package tcs34727 drives a TCS3472x RGB color sensor.
package tcs34727

import (
	"errors"
	"fmt"
	"time"

	"tiltrig/internal/i2c"
)

var sleep = time.Sleep

var ErrNotDetected = errors.New("tcs34727: not detected")

const (
	Address = 0x29

	// Every register access sets the command bit; autoInc makes burst
	// reads walk the register map.
	cmdBit  = 0x80
	autoInc = 0x20

	regEnable  = 0x00
	regATime   = 0x01
	regControl = 0x0F
	regID      = 0x12
	regStatus  = 0x13
	regCDataL  = 0x14

	enablePON = 0x01
	enableAEN = 0x02

	statusAValid = 0x01

	idTCS34727 = 0x4D
	idTCS34725 = 0x44
)

type Gain uint8

const (
	Gain1x Gain = iota
	Gain4x
	Gain16x
	Gain60x
)

// ParseGain maps 1, 4, 16, 60 to the CONTROL register code.
func ParseGain(x int) (Gain, error) {
	switch x {
	case 1:
		return Gain1x, nil
	case 4:
		return Gain4x, nil
	case 16:
		return Gain16x, nil
	case 60:
		return Gain60x, nil
	default:
		return 0, fmt.Errorf("tcs34727: unsupported gain %dx", x)
	}
}

// ATimeFor returns the ATIME code for an integration time. One step is
// 2.4 ms; the range is 1..256 steps.
func ATimeFor(d time.Duration) byte {
	steps := int((d + 1200*time.Microsecond) / (2400 * time.Microsecond))
	if steps < 1 {
		steps = 1
	}
	if steps > 256 {
		steps = 256
	}
	return byte(256 - steps)
}

type Device struct {
	bus  i2c.RegisterBus
	addr uint8
}

func New(bus i2c.RegisterBus) *Device {
	return &Device{bus: bus, addr: Address}
}

func (d *Device) read(reg byte) byte {
	return d.bus.ReadRegister(d.addr, cmdBit|reg)
}

func (d *Device) write(reg, val byte) error {
	return d.bus.WriteRegister(d.addr, cmdBit|reg, val)
}

// ID reads the identity register.
func (d *Device) ID() byte { return d.read(regID) }

// Detect accepts the TCS34727 and TCS34725 identities.
func (d *Device) Detect() (byte, error) {
	id := d.ID()
	if id != idTCS34727 && id != idTCS34725 {
		return id, fmt.Errorf("%w: id=0x%02X", ErrNotDetected, id)
	}
	return id, nil
}

// Enable powers the oscillator, programs integration time and gain and
// starts the ADC.
func (d *Device) Enable(atime byte, gain Gain) error {
	if gain > Gain60x {
		return fmt.Errorf("tcs34727: invalid gain code %d", gain)
	}
	if err := d.write(regATime, atime); err != nil {
		return fmt.Errorf("tcs34727: atime: %w", err)
	}
	if err := d.write(regControl, byte(gain)); err != nil {
		return fmt.Errorf("tcs34727: control: %w", err)
	}
	if err := d.write(regEnable, enablePON); err != nil {
		return fmt.Errorf("tcs34727: power on: %w", err)
	}
	// Oscillator warm-up before the ADC may be enabled.
	sleep(3 * time.Millisecond)
	if err := d.write(regEnable, enablePON|enableAEN); err != nil {
		return fmt.Errorf("tcs34727: enable adc: %w", err)
	}
	return nil
}

// Valid reports whether an integration cycle has completed since enable.
func (d *Device) Valid() bool { return d.read(regStatus)&statusAValid != 0 }

// Channels holds one raw 16-bit reading per photodiode group.
type Channels struct {
	Clear, Red, Green, Blue uint16
}

// Raw reads all four channels in one auto-increment burst.
func (d *Device) Raw() (Channels, error) {
	var buf [8]byte
	if n := d.bus.BurstRead(d.addr, cmdBit|autoInc|regCDataL, buf[:]); n != len(buf) {
		return Channels{}, fmt.Errorf("tcs34727: channel read: got %d of %d bytes", n, len(buf))
	}
	word := func(i int) uint16 { return uint16(buf[i]) | uint16(buf[i+1])<<8 }
	return Channels{Clear: word(0), Red: word(2), Green: word(4), Blue: word(6)}, nil
}
