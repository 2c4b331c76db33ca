package rig

import (
	"math"
	"sync"
	"time"

	"tiltrig/internal/i2c/i2csim"
	"tiltrig/internal/orientation"
	"tiltrig/internal/sensors/tcs34727"
)

// Sim is the in-memory bus used by the sim backend: a controller with a
// rocking MPU6050, a TCS34727 cycling through colors and an LCD backpack.
type Sim struct {
	Controller *i2csim.Controller
	IMU        *i2csim.RegisterFile
	Color      *i2csim.RegisterFile
	LCD        *i2csim.Expander
}

// MPU6050 registers served by the simulated IMU.
const (
	mpuAccelXH     = 0x3B
	mpuAccelXL     = 0x3C
	mpuGyroXH      = 0x43
	mpuAccelConfig = 0x1C
	mpuGyroConfig  = 0x1B
	mpuWhoAmI      = 0x75
	mpuWhoAmIVal   = 0x68
)

// TCS3472x registers served by the simulated color sensor.
const (
	tcsEnable    = 0x00
	tcsEnableAEN = 0x02
	tcsID        = 0x12
	tcsStatus    = 0x13
	tcsCData     = 0x14
	tcsRData     = 0x16
	tcsGData     = 0x18
	tcsBData     = 0x1A
	tcsIDVal     = 0x4D
)

const (
	// simStep is the time that passes between two IMU samples.
	simStep       = 20 * time.Millisecond
	rockAmplitude = 30.0 // degrees
	rockPeriod    = 4 * time.Second
	yawRate       = 20.0 // degrees per second

	// colorHold is the number of channel reads each scene lasts.
	colorHold = 50
)

// NewSim builds the simulated bus with the IMU at imuAddr and the LCD
// expander at lcdAddr.
func NewSim(imuAddr, lcdAddr uint8) *Sim {
	s := &Sim{
		Controller: i2csim.New(),
		IMU:        i2csim.NewRegisterFile(),
		Color:      i2csim.NewRegisterFile(),
		LCD:        i2csim.NewExpander(),
	}

	s.IMU.Set(mpuWhoAmI, mpuWhoAmIVal)
	m := &imuMotion{rf: s.IMU}
	m.refresh()
	s.IMU.OnRead = m.onRead

	s.Color.PointerMask = 0x1F
	s.Color.Set(tcsID, tcsIDVal)
	cs := &colorScene{rf: s.Color}
	cs.apply(0)
	s.Color.OnWrite = cs.onWrite
	s.Color.OnRead = cs.onRead

	s.Controller.Attach(imuAddr, s.IMU)
	s.Controller.Attach(tcs34727.Address, s.Color)
	s.Controller.Attach(lcdAddr, s.LCD)
	return s
}

// imuMotion rocks the board about the Y axis while it turns at a constant
// yaw rate. Data registers are refreshed when a new sample starts, so the
// six-register burst and the low-then-high single reads both see one epoch.
type imuMotion struct {
	rf *i2csim.RegisterFile

	mu   sync.Mutex
	step int
	last byte
}

func (m *imuMotion) onRead(reg byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.last
	m.last = reg
	if isAccelX(reg) && !isAccelX(prev) {
		m.refreshLocked()
	}
}

func isAccelX(reg byte) bool { return reg == mpuAccelXH || reg == mpuAccelXL }

func (m *imuMotion) refresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshLocked()
}

func (m *imuMotion) refreshLocked() {
	t := (time.Duration(m.step) * simStep).Seconds()
	m.step++

	w := 2 * math.Pi / rockPeriod.Seconds()
	theta := rockAmplitude * math.Sin(w*t)
	rate := rockAmplitude * w * math.Cos(w*t)
	rad := theta * math.Pi / 180

	accel := orientation.Vector{X: math.Sin(rad), Z: math.Cos(rad)}
	gyro := orientation.Vector{Y: rate, Z: yawRate}

	accelDiv, gyroDiv := 16384.0, 131.0
	if t, ok := orientation.DecodeTier(m.rf.Get(mpuAccelConfig)); ok {
		accelDiv, _ = t.AccelDivisor()
	}
	if t, ok := orientation.DecodeTier(m.rf.Get(mpuGyroConfig)); ok {
		gyroDiv, _ = t.GyroDivisor()
	}
	m.writeAxes(mpuAccelXH, accel, accelDiv)
	m.writeAxes(mpuGyroXH, gyro, gyroDiv)
}

func (m *imuMotion) writeAxes(base byte, v orientation.Vector, div float64) {
	m.rf.SetWord(base, saturate(v.X*div))
	m.rf.SetWord(base+2, saturate(v.Y*div))
	m.rf.SetWord(base+4, saturate(v.Z*div))
}

func saturate(f float64) int16 {
	switch {
	case f >= math.MaxInt16:
		return math.MaxInt16
	case f <= math.MinInt16:
		return math.MinInt16
	}
	return int16(math.Round(f))
}

// colorScene serves a red, green, blue and dark target in turn.
type colorScene struct {
	rf *i2csim.RegisterFile

	mu    sync.Mutex
	reads int
}

var scenes = []tcs34727.Channels{
	{Clear: 3000, Red: 2100, Green: 450, Blue: 380},
	{Clear: 2800, Red: 420, Green: 1900, Blue: 500},
	{Clear: 2600, Red: 300, Green: 520, Blue: 1800},
	{},
}

func (c *colorScene) onWrite(reg, val byte) {
	if reg == tcsEnable && val&tcsEnableAEN != 0 {
		c.rf.Set(tcsStatus, 0x01)
	}
}

func (c *colorScene) onRead(reg byte) {
	if reg != tcsCData {
		return
	}
	c.mu.Lock()
	c.reads++
	n := c.reads
	c.mu.Unlock()
	c.apply(n / colorHold)
}

func (c *colorScene) apply(i int) {
	ch := scenes[i%len(scenes)]
	c.rf.SetWordLE(tcsCData, ch.Clear)
	c.rf.SetWordLE(tcsRData, ch.Red)
	c.rf.SetWordLE(tcsGData, ch.Green)
	c.rf.SetWordLE(tcsBData, ch.Blue)
}
