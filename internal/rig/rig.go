// Package rig brings up the bus, the sensors and the actuators described by
// a config and hands them to the module tests.
package rig

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"periph.io/x/conn/v3/physic"
	"tinygo.org/x/drivers"

	"tiltrig/internal/config"
	"tiltrig/internal/console"
	"tiltrig/internal/display"
	"tiltrig/internal/i2c"
	"tiltrig/internal/led"
	"tiltrig/internal/orientation"
	"tiltrig/internal/sensors/mpu6050"
	"tiltrig/internal/sensors/tcs34727"
	"tiltrig/internal/servo"
)

// Bus is what the rig needs from a bus: register access for the sensor
// adapters and raw transactions for stock drivers.
type Bus interface {
	i2c.RegisterBus
	drivers.I2C
}

// Rig holds every opened device. IMU, Color and LCD may be nil when the
// device did not answer; the reason is kept in the matching *Err field.
type Rig struct {
	Console *console.Console
	Bus     Bus
	Variant mpu6050.AddressVariant

	IMU     *mpu6050.Device
	IMUErr  error
	Sampler *orientation.Sampler

	Color      *tcs34727.Device
	ColorErr   error
	Classifier tcs34727.Classifier

	LCD    *display.LCD
	LCDErr error

	Servo  *servo.Servo
	Cycle  *led.Cycle
	LED    *led.LED
	Button *led.Button

	// Sim is set for the sim backend.
	Sim *Sim

	closers []func() error
}

type Option func(*options)

type options struct {
	console *console.Console
}

// WithConsole uses c instead of opening console.port.
func WithConsole(c *console.Console) Option {
	return func(o *options) { o.console = c }
}

// Open brings the rig up. Missing sensors or display are reported on the
// console and recorded on the Rig; only bus, console and actuator failures
// are returned.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Rig, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	r := &Rig{}
	ok := false
	defer func() {
		if !ok {
			_ = r.Close()
		}
	}()

	if o.console != nil {
		r.Console = o.console
	} else {
		con, err := console.Open(cfg.Console.Port, cfg.Console.Baud)
		if err != nil {
			return nil, err
		}
		r.Console = con
		r.closers = append(r.closers, con.Close)
	}

	v, err := mpu6050.ParseVariant(cfg.IMU.Address)
	if err != nil {
		return nil, err
	}
	r.Variant = v

	if err := r.openBus(cfg, v); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.openIMU(cfg, v)
	r.openColor(cfg)
	r.openLCD(cfg)

	if err := r.openServo(cfg); err != nil {
		return nil, err
	}
	if err := r.openLED(cfg); err != nil {
		return nil, err
	}

	ok = true
	return r, nil
}

func (r *Rig) openBus(cfg config.Config, v mpu6050.AddressVariant) error {
	speed := physic.Frequency(cfg.Bus.SpeedHz) * physic.Hertz
	switch cfg.Bus.Backend {
	case "linux":
		hb, err := i2c.OpenHost(cfg.Bus.Device)
		if err != nil {
			return err
		}
		r.closers = append(r.closers, hb.Close)
		if err := hb.SetSpeed(speed); err != nil {
			return err
		}
		r.Bus = hb
		log.Printf("rig: bus %s", hb)
	default:
		r.Sim = NewSim(v.Address(), uint8(cfg.Display.Address))
		e := i2c.New(r.Sim.Controller,
			i2c.WithSysClock(physic.Frequency(cfg.Bus.SysClockHz)*physic.Hertz),
			i2c.WithName("i2c-sim"),
		)
		if err := e.Init(); err != nil {
			return err
		}
		if err := e.SetSpeed(speed); err != nil {
			return err
		}
		r.Bus = e
		log.Printf("rig: bus %s (timer period %d)", e, r.Sim.Controller.TimerPeriod())
	}
	return nil
}

func (r *Rig) openIMU(cfg config.Config, v mpu6050.AddressVariant) {
	imu := mpu6050.New(r.Bus, v, mpu6050.WithBurstReads(cfg.IMU.BurstReads))
	id, err := imu.Detect()
	if err != nil {
		r.IMUErr = err
		_ = r.Console.Println("MPU6050 has not been Detected")
		log.Printf("rig: %v", err)
		return
	}
	_ = r.Console.Printf("ID: %x\n", id)
	_ = r.Console.Println("MPU6050 has been Detected")

	err = imu.Init(func(s mpu6050.Step, err error) {
		if err != nil {
			_ = r.Console.Println("Error On Transmit")
			return
		}
		_ = r.Console.Println(stepMessage(s))
	})
	if err != nil {
		// The device answered; keep it so the tests can still read it.
		log.Printf("rig: imu init: %v", err)
	}
	r.IMU = imu
	r.Sampler = orientation.NewSampler(imu)
}

func stepMessage(s mpu6050.Step) string {
	switch s.Name {
	case "reset":
		return "Sensor has been reset"
	case "wake":
		return "Sensor is awake"
	case "sample rate":
		return "Data Rate is 1kHz"
	default:
		return "Set " + strings.ToUpper(s.Name[:1]) + s.Name[1:]
	}
}

func (r *Rig) openColor(cfg config.Config) {
	r.Classifier = tcs34727.Classifier{MinClear: uint16(cfg.Color.MinClear), Margin: uint8(cfg.Color.Margin)}

	dev := tcs34727.New(r.Bus)
	if _, err := dev.Detect(); err != nil {
		r.ColorErr = err
		_ = r.Console.Println("TCS34727 has not been Detected")
		log.Printf("rig: %v", err)
		return
	}
	gain, err := tcs34727.ParseGain(cfg.Color.Gain)
	if err == nil {
		err = dev.Enable(tcs34727.ATimeFor(cfg.Color.Integration), gain)
	}
	if err != nil {
		r.ColorErr = err
		log.Printf("rig: %v", err)
		return
	}
	r.Color = dev
}

func (r *Rig) openLCD(cfg config.Config) {
	lcd, err := display.New(r.Bus, display.Config{
		Address: uint8(cfg.Display.Address),
		Cols:    uint8(cfg.Display.Cols),
		Rows:    uint8(cfg.Display.Rows),
	})
	if err != nil {
		r.LCDErr = err
		log.Printf("rig: %v", err)
		return
	}
	r.LCD = lcd
}

func (r *Rig) openServo(cfg config.Config) error {
	var drv servo.Driver = &servo.MemoryDriver{}
	if cfg.Servo.Backend == "sysfs" {
		d, err := servo.OpenSysfs(cfg.Servo.Chip, cfg.Servo.Channel)
		if err != nil {
			return err
		}
		drv = d
	}
	s, err := servo.New(drv)
	if err != nil {
		_ = drv.Close()
		return err
	}
	r.Servo = s
	r.closers = append(r.closers, s.Close)
	return nil
}

func (r *Rig) openLED(cfg config.Config) error {
	r.Cycle = &led.Cycle{}
	if cfg.LED.Backend != "gpio" {
		r.LED = led.New(&led.MemoryOutput{})
		r.closers = append(r.closers, r.LED.Close)
		r.Button = led.NewSimulated(r.Cycle)
		r.closers = append(r.closers, r.Button.Close)
		return nil
	}

	out, err := led.OpenGPIO(cfg.LED.Chip, [3]int{cfg.LED.Lines[0], cfg.LED.Lines[1], cfg.LED.Lines[2]})
	if err != nil {
		return fmt.Errorf("rig: led: %w", err)
	}
	r.LED = led.New(out)
	r.closers = append(r.closers, r.LED.Close)

	b, err := led.WatchGPIO(cfg.LED.Chip, cfg.LED.Button, cfg.LED.Debounce, r.Cycle)
	if err != nil {
		return fmt.Errorf("rig: button: %w", err)
	}
	r.Button = b
	r.closers = append(r.closers, b.Close)
	return nil
}

// Close releases everything Open acquired, in reverse order.
func (r *Rig) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
