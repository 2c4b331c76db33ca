package rig

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"tiltrig/internal/config"
	"tiltrig/internal/console"
	"tiltrig/internal/i2c"
	"tiltrig/internal/led"
	"tiltrig/internal/orientation"
	"tiltrig/internal/sensors/mpu6050"
	"tiltrig/internal/sensors/tcs34727"
)

func simConfig(t *testing.T) config.Config {
	t.Helper()
	var cfg config.Config
	if err := config.DefaultAndValidate(&cfg); err != nil {
		t.Fatalf("DefaultAndValidate() error: %v", err)
	}
	return cfg
}

func openSim(t *testing.T, cfg config.Config) (*Rig, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	r, err := Open(context.Background(), cfg, WithConsole(console.New(&out)))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r, &out
}

func TestOpen_SimBringsUpEverything(t *testing.T) {
	r, out := openSim(t, simConfig(t))

	if r.IMU == nil || r.IMUErr != nil {
		t.Fatalf("imu=%v err=%v", r.IMU, r.IMUErr)
	}
	if r.Color == nil || r.ColorErr != nil {
		t.Fatalf("color=%v err=%v", r.Color, r.ColorErr)
	}
	if r.LCD == nil || r.LCDErr != nil {
		t.Fatalf("lcd=%v err=%v", r.LCD, r.LCDErr)
	}
	if r.Servo == nil || r.LED == nil || r.Button == nil || r.Cycle == nil {
		t.Fatalf("actuators missing: %+v", r)
	}

	got := out.String()
	for _, want := range []string{"ID: 68\r\n", "MPU6050 has been Detected\r\n", "Sensor is awake\r\n", "Data Rate is 1kHz\r\n"} {
		if !strings.Contains(got, want) {
			t.Fatalf("console missing %q in %q", want, got)
		}
	}
	if !r.Sim.Controller.BusIdle() {
		t.Fatalf("bus left busy after bring-up")
	}
	if !r.Color.Valid() {
		t.Fatalf("color sensor not valid after enable")
	}
}

func TestOpen_SimIMUReportsGravity(t *testing.T) {
	cfg := simConfig(t)
	for _, burst := range []bool{false, true} {
		cfg.IMU.BurstReads = burst
		r, _ := openSim(t, cfg)

		est := orientation.NewEstimator()
		for i := 0; i < 20; i++ {
			var s orientation.Sample
			if err := r.Sampler.Sample(&s); err != nil {
				t.Fatalf("burst=%v Sample() error: %v", burst, err)
			}
			n := math.Sqrt(s.Accel.X*s.Accel.X + s.Accel.Y*s.Accel.Y + s.Accel.Z*s.Accel.Z)
			if math.Abs(n-1) > 1e-3 {
				t.Fatalf("burst=%v |accel|=%v want 1", burst, n)
			}
			if math.Abs(s.Gyro.Z-yawRate) > 0.01 {
				t.Fatalf("burst=%v gyro z=%v want %v", burst, s.Gyro.Z, yawRate)
			}
			a, err := est.Update(s.Accel, s.Gyro)
			if err != nil {
				t.Fatalf("Update() error: %v", err)
			}
			if math.Abs(a.TiltX) > rockAmplitude+0.1 || math.Abs(a.TiltY) > 0.01 {
				t.Fatalf("tilt out of range: %+v", a)
			}
		}
		if est.Yaw() <= 0 {
			t.Fatalf("yaw=%v want accumulated positive yaw", est.Yaw())
		}
	}
}

func TestOpen_HighAddressVariant(t *testing.T) {
	cfg := simConfig(t)
	cfg.IMU.Address = "ad0_high"
	r, _ := openSim(t, cfg)
	if r.Variant != mpu6050.AD0High || r.IMU == nil || r.IMU.Address() != 0x69 {
		t.Fatalf("variant=%s imu=%v", r.Variant, r.IMU)
	}
}

func TestOpen_BadVariant(t *testing.T) {
	cfg := simConfig(t)
	cfg.IMU.Address = "0x70"
	var out bytes.Buffer
	if _, err := Open(context.Background(), cfg, WithConsole(console.New(&out))); err == nil {
		t.Fatalf("expected error for unknown variant")
	}
}

func TestOpen_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	_, err := Open(ctx, simConfig(t), WithConsole(console.New(&out)))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
}

func TestOpenIMU_AbsentIsReportedNotFatal(t *testing.T) {
	sim := NewSim(0x68, 0x3F)
	sim.Controller.Detach(0x68)
	e := i2c.New(sim.Controller)
	if err := e.Init(); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	var out bytes.Buffer
	r := &Rig{Console: console.New(&out), Bus: e}

	r.openIMU(simConfig(t), mpu6050.AD0Low)
	if r.IMU != nil || !errors.Is(r.IMUErr, mpu6050.ErrNotDetected) {
		t.Fatalf("imu=%v err=%v", r.IMU, r.IMUErr)
	}
	if out.String() != "MPU6050 has not been Detected\r\n" {
		t.Fatalf("console=%q", out.String())
	}
	if !sim.Controller.BusIdle() {
		t.Fatalf("bus left busy")
	}
}

func TestOpenColor_Absent(t *testing.T) {
	sim := NewSim(0x68, 0x3F)
	sim.Controller.Detach(tcs34727.Address)
	e := i2c.New(sim.Controller)
	if err := e.Init(); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	var out bytes.Buffer
	r := &Rig{Console: console.New(&out), Bus: e}

	r.openColor(simConfig(t))
	if r.Color != nil || !errors.Is(r.ColorErr, tcs34727.ErrNotDetected) {
		t.Fatalf("color=%v err=%v", r.Color, r.ColorErr)
	}
}

func TestSim_ColorScenesCycle(t *testing.T) {
	r, _ := openSim(t, simConfig(t))
	seen := map[tcs34727.Color]bool{}
	for i := 0; i < colorHold*len(scenes); i++ {
		ch, err := r.Color.Raw()
		if err != nil {
			t.Fatalf("Raw() error: %v", err)
		}
		seen[r.Classifier.Classify(ch)] = true
	}
	for _, c := range []tcs34727.Color{tcs34727.Red, tcs34727.Green, tcs34727.Blue, tcs34727.None} {
		if !seen[c] {
			t.Fatalf("scene %s never seen (seen=%v)", c, seen)
		}
	}
}

func TestClose_ReleasesActuators(t *testing.T) {
	var out bytes.Buffer
	r, err := Open(context.Background(), simConfig(t), WithConsole(console.New(&out)))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if err := r.LED.Set(led.Red); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if r.LED.Value() != led.Dark {
		t.Fatalf("led=%s want dark after close", r.LED.Value())
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}
}
