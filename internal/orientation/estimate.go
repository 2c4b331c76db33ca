package orientation

import (
	"errors"
	"math"
	"sync"
)

// ErrDegenerateVector reports a yaw increment that is not finite (all accel
// axes zero). The yaw keeps its prior value.
var ErrDegenerateVector = errors.New("orientation: degenerate acceleration vector")

// DeadBand is the |Gz| (deg/s) at or below which yaw is not advanced.
const DeadBand = 4.0

type Angles struct {
	TiltX float64
	TiltY float64
	Yaw   float64
}

const radToDeg = 180 / math.Pi

// Estimate computes tilt from the gravity vector and advances priorYaw by
// one gyro-gated step.
//
// The yaw step is a fixed angle per call, not scaled by elapsed time. Tilt
// is not guarded: a zero vector yields NaN tilt.
func Estimate(accel, gyro Vector, priorYaw float64) (Angles, error) {
	ax, ay, az := accel.X, accel.Y, accel.Z

	a := Angles{
		TiltX: math.Atan(ax/math.Sqrt(ay*ay+az*az)) * radToDeg,
		TiltY: math.Atan(ay/math.Sqrt(ax*ax+az*az)) * radToDeg,
		Yaw:   priorYaw,
	}

	var sign float64
	switch {
	case gyro.Z > DeadBand:
		sign = 1
	case gyro.Z < -DeadBand:
		sign = -1
	default:
		return a, nil
	}

	// Az == 0 with a horizontal component gives atan(±Inf) = ±90.
	step := math.Atan(math.Sqrt(ax*ax+ay*ay)/az) * radToDeg
	if math.IsNaN(step) || math.IsInf(step, 0) {
		return a, ErrDegenerateVector
	}
	a.Yaw = priorYaw + sign*step
	return a, nil
}

// Estimator owns the yaw accumulator. It has no reset; construct a new one
// to start from zero.
type Estimator struct {
	mu  sync.Mutex
	yaw float64
}

func NewEstimator() *Estimator { return &Estimator{} }

// Update runs Estimate against the accumulated yaw and keeps the result.
func (e *Estimator) Update(accel, gyro Vector) (Angles, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, err := Estimate(accel, gyro, e.yaw)
	e.yaw = a.Yaw
	return a, err
}

func (e *Estimator) Yaw() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.yaw
}
