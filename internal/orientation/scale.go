// Package orientation converts raw inertial register pairs into physical
// units and estimates tilt and an integrated yaw-like angle.
package orientation

import "errors"

// ErrUnsupportedScale reports a configuration byte that does not name a
// known full-scale tier. The output vector is left as it was.
var ErrUnsupportedScale = errors.New("orientation: unsupported full-scale configuration")

// Raw is one sensor sample as signed 16-bit counts.
type Raw struct {
	X, Y, Z int16
}

// Vector is a sample in physical units (g or deg/s).
type Vector struct {
	X, Y, Z float64
}

// AssembleAxis joins a register pair into a two's complement value.
func AssembleAxis(low, high byte) int16 {
	return int16(uint16(high)<<8 | uint16(low))
}

// Tier is the full-scale range selected in the sensor (FS_SEL / AFS_SEL).
type Tier uint8

const (
	Tier0 Tier = iota
	Tier1
	Tier2
	Tier3
)

const (
	fsSelShift = 3
	fsSelMask  = 0x03 << fsSelShift
)

var (
	accelDivisors = [...]float64{16384.0, 8192.0, 4096.0, 2048.0}
	gyroDivisors  = [...]float64{131.0, 65.5, 32.8, 16.4}
)

// DecodeTier extracts the tier from a full-scale configuration register.
// Any bit outside the range field (self-test, high-pass) makes the code
// unsupported.
func DecodeTier(cfg byte) (Tier, bool) {
	if cfg&^fsSelMask != 0 {
		return 0, false
	}
	return Tier(cfg >> fsSelShift), true
}

// ConfigByte is the register value that selects t.
func (t Tier) ConfigByte() byte { return byte(t) << fsSelShift }

func (t Tier) AccelDivisor() (float64, bool) { return divisor(accelDivisors[:], t) }
func (t Tier) GyroDivisor() (float64, bool)  { return divisor(gyroDivisors[:], t) }

func divisor(table []float64, t Tier) (float64, bool) {
	if int(t) >= len(table) {
		return 0, false
	}
	return table[t], true
}

// ScaleAccel converts raw counts to g. An unknown tier leaves out unmodified
// and returns false.
func ScaleAccel(raw Raw, tier Tier, out *Vector) bool {
	d, ok := tier.AccelDivisor()
	if !ok {
		return false
	}
	scale(raw, d, out)
	return true
}

// ScaleGyro converts raw counts to deg/s; see ScaleAccel.
func ScaleGyro(raw Raw, tier Tier, out *Vector) bool {
	d, ok := tier.GyroDivisor()
	if !ok {
		return false
	}
	scale(raw, d, out)
	return true
}

func scale(raw Raw, d float64, out *Vector) {
	out.X = float64(raw.X) / d
	out.Y = float64(raw.Y) / d
	out.Z = float64(raw.Z) / d
}
