// Package moduletest runs the bring-up tests of the rig one peripheral at a
// time, or all of them together as the full-system loop.
package moduletest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"tiltrig/internal/led"
	"tiltrig/internal/orientation"
	"tiltrig/internal/rig"
	"tiltrig/internal/sensors/mpu6050"
	"tiltrig/internal/sensors/tcs34727"
)

var ErrUnknownTest = errors.New("moduletest: unknown test")

// sleep waits for d or until ctx is done.
var sleep = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ServoSweep is the angle sequence of the servo test.
var ServoSweep = []float64{0, -45, 0, 45, 0, -90, 0, 90}

const (
	servoHold = time.Second
	// uartStep is added to the float counter on every uart pass.
	uartStep = 0.25
)

type test struct {
	run func(d *Dispatcher, ctx context.Context) error
	// pace is the delay at the end of every pass.
	pace time.Duration
}

var tests = map[string]test{
	"delay":    {(*Dispatcher).delay, 500 * time.Millisecond},
	"i2c":      {(*Dispatcher).i2c, time.Second},
	"uart":     {(*Dispatcher).uart, time.Second},
	"mpu6050":  {(*Dispatcher).mpu6050, 50 * time.Millisecond},
	"tcs34727": {(*Dispatcher).tcs34727, 10 * time.Millisecond},
	"servo":    {(*Dispatcher).servo, 0},
	"lcd":      {(*Dispatcher).lcd, time.Second},
	"full":     {(*Dispatcher).full, 20 * time.Millisecond},
}

// Names lists the available tests in sorted order.
func Names() []string {
	out := make([]string, 0, len(tests))
	for n := range tests {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Dispatcher owns the state the tests carry between passes: the last IMU
// sample, the yaw accumulator and the uart counter.
type Dispatcher struct {
	rig *rig.Rig
	est *orientation.Estimator
	s   orientation.Sample
	num float64
}

func New(r *rig.Rig) *Dispatcher {
	return &Dispatcher{rig: r, est: orientation.NewEstimator()}
}

// Run performs one pass of the named test, including its trailing delay.
func (d *Dispatcher) Run(ctx context.Context, name string) error {
	t, ok := tests[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTest, name)
	}
	return d.pass(ctx, t, t.pace)
}

// Loop repeats the named test until ctx is done. A positive interval
// replaces the test's own delay between passes.
func (d *Dispatcher) Loop(ctx context.Context, name string, interval time.Duration) error {
	t, ok := tests[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTest, name)
	}
	pace := t.pace
	if interval > 0 {
		pace = interval
	}
	log.Printf("moduletest: %s looping every %s", name, pace)
	for {
		if err := d.pass(ctx, t, pace); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (d *Dispatcher) pass(ctx context.Context, t test, pace time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.applyButton()
	if err := t.run(d, ctx); err != nil {
		return err
	}
	return sleep(ctx, pace)
}

// applyButton lights the LED with the latest button selection, if any.
func (d *Dispatcher) applyButton() {
	if d.rig.Button == nil {
		return
	}
	select {
	case c := <-d.rig.Button.Events():
		if err := d.rig.LED.Set(c); err != nil {
			log.Printf("moduletest: led: %v", err)
		}
	default:
	}
}

func (d *Dispatcher) say(format string, args ...any) {
	if err := d.rig.Console.Printf(format, args...); err != nil {
		log.Printf("moduletest: console: %v", err)
	}
}

func (d *Dispatcher) delay(context.Context) error {
	return d.rig.LED.Toggle(d.rig.Cycle.Current())
}

func (d *Dispatcher) uart(context.Context) error {
	d.num += uartStep
	return d.rig.Console.Float(d.num)
}

func (d *Dispatcher) i2c(context.Context) error {
	d.say("ID: %x\n", tcs34727.New(d.rig.Bus).ID())
	if mpu6050.Probe(d.rig.Bus, d.rig.Variant) {
		d.say("MPU6050 answered at 0x%02X\n", d.rig.Variant.Address())
	} else {
		d.say("MPU6050 did not answer at 0x%02X\n", d.rig.Variant.Address())
	}
	return nil
}

// sample refreshes the retained IMU sample and folds it into the estimator.
// An axis with an unsupported full-scale code keeps its previous value. ok is
// false only when the IMU is absent or a read failed; the reason has been
// printed.
func (d *Dispatcher) sample() (s orientation.Sample, a orientation.Angles, ok bool) {
	if d.rig.Sampler == nil {
		d.say("MPU6050 has not been Detected\n")
		return d.s, a, false
	}
	if err := d.rig.Sampler.Sample(&d.s); err != nil {
		if !onlyUnsupportedScale(err) {
			d.say("MPU6050 read failed: %v\n", err)
			return d.s, a, false
		}
		d.say("MPU6050 scale: %v\n", err)
	}
	a, err := d.est.Update(d.s.Accel, d.s.Gyro)
	if err != nil {
		d.say("Angle: %v\n", err)
	}
	return d.s, a, true
}

// onlyUnsupportedScale reports whether every error joined in err is an
// unsupported full-scale code.
func onlyUnsupportedScale(err error) bool {
	j, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return errors.Is(err, orientation.ErrUnsupportedScale)
	}
	for _, e := range j.Unwrap() {
		if !errors.Is(e, orientation.ErrUnsupportedScale) {
			return false
		}
	}
	return true
}

func (d *Dispatcher) mpu6050(context.Context) error {
	s, a, ok := d.sample()
	if !ok {
		return nil
	}
	if err := d.rig.Console.Clear(); err != nil {
		return err
	}
	return d.rig.Console.IMU(s.Accel, s.Gyro, a)
}

// color reads the color sensor, prints the raw channels and lights the LED
// with the detected color.
func (d *Dispatcher) color() (tcs34727.Color, bool) {
	if d.rig.Color == nil {
		d.say("TCS34727 has not been Detected\n")
		return tcs34727.None, false
	}
	if !d.rig.Color.Valid() {
		d.say("TCS34727 integration not ready\n")
		return tcs34727.None, false
	}
	ch, err := d.rig.Color.Raw()
	if err != nil {
		d.say("TCS34727 read failed: %v\n", err)
		return tcs34727.None, false
	}
	if err := d.rig.Console.Channels(ch); err != nil {
		log.Printf("moduletest: console: %v", err)
	}
	c := d.rig.Classifier.Classify(ch)
	if err := d.rig.LED.Set(ledFor(c)); err != nil {
		log.Printf("moduletest: led: %v", err)
	}
	return c, true
}

func ledFor(c tcs34727.Color) led.Color {
	switch c {
	case tcs34727.Red:
		return led.Red
	case tcs34727.Green:
		return led.Green
	case tcs34727.Blue:
		return led.Blue
	default:
		return led.Dark
	}
}

func (d *Dispatcher) tcs34727(context.Context) error {
	d.color()
	return nil
}

func (d *Dispatcher) servo(ctx context.Context) error {
	for _, angle := range ServoSweep {
		d.say("Setting Angle to %d Degree\n", int(angle))
		if err := d.rig.Servo.Drive(angle); err != nil {
			d.say("Servo: %v\n", err)
		}
		if err := sleep(ctx, servoHold); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) lcd(context.Context) error {
	if d.rig.LCD == nil {
		d.say("LCD has not been Detected\n")
		return nil
	}
	d.rig.LCD.Clear()
	d.rig.LCD.Center(0, "Oliver")
	d.rig.LCD.Center(1, "Cabral")
	return nil
}

func (d *Dispatcher) full(context.Context) error {
	s, a, ok := d.sample()
	if ok {
		if err := d.rig.Servo.Drive(a.TiltX); err != nil {
			d.say("Servo: %v\n", err)
		}
		if err := d.rig.Console.Clear(); err != nil {
			return err
		}
		if err := d.rig.Console.IMU(s.Accel, s.Gyro, a); err != nil {
			return err
		}
	}

	c, _ := d.color()
	d.say("Color: %s\n", c)

	if d.rig.LCD != nil {
		d.rig.LCD.ShowLines(angleLine(a, ok), "Color:"+c.String())
	}
	return nil
}

// angleLine is the first LCD line of the full test.
func angleLine(a orientation.Angles, ok bool) string {
	if !ok {
		return "Angle:--"
	}
	return fmt.Sprintf("Angle:%0.2f", a.TiltX)
}
