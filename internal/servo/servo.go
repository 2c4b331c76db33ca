// Package servo maps angles onto hobby-servo pulse widths.
package servo

import (
	"fmt"
	"math"
	"sync"
	"time"
)

const (
	MinAngle = -90.0
	MaxAngle = 90.0

	// Period is the 50 Hz frame.
	Period   = 20 * time.Millisecond
	MinPulse = 500 * time.Microsecond
	MaxPulse = 2500 * time.Microsecond

	// Counts of a 2 MHz PWM timer: one frame is 40000 counts.
	periodCounts = 40000
	minCounts    = 1000
	maxCounts    = 5000
)

// Driver is a PWM output. Durations are the high time and the full period.
//
// Close should leave the output disabled.
type Driver interface {
	SetPeriod(d time.Duration) error
	SetPulse(d time.Duration) error
	Close() error
}

type Servo struct {
	mu    sync.Mutex
	drv   Driver
	angle float64
}

// New programs the 50 Hz period on drv.
func New(drv Driver) (*Servo, error) {
	if drv == nil {
		return nil, fmt.Errorf("servo: driver is nil")
	}
	if err := drv.SetPeriod(Period); err != nil {
		return nil, fmt.Errorf("servo: set period: %w", err)
	}
	return &Servo{drv: drv}, nil
}

// Clamp limits angle to [MinAngle, MaxAngle]. NaN maps to center.
func Clamp(angle float64) float64 {
	switch {
	case math.IsNaN(angle):
		return 0
	case angle < MinAngle:
		return MinAngle
	case angle > MaxAngle:
		return MaxAngle
	}
	return angle
}

// Counts is the compare value for angle out of a 40000-count frame.
func Counts(angle float64) int {
	a := Clamp(angle)
	return minCounts + int(math.Round((a-MinAngle)*(maxCounts-minCounts)/(MaxAngle-MinAngle)))
}

// Pulse is the high time for angle.
func Pulse(angle float64) time.Duration {
	return time.Duration(Counts(angle)) * Period / periodCounts
}

// Drive moves to angle (clamped).
func (s *Servo) Drive(angle float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := Clamp(angle)
	if err := s.drv.SetPulse(Pulse(a)); err != nil {
		return fmt.Errorf("servo: drive %.1f: %w", a, err)
	}
	s.angle = a
	return nil
}

// Angle is the last angle driven successfully.
func (s *Servo) Angle() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.angle
}

func (s *Servo) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drv.Close()
}

// MemoryDriver keeps the programmed values; it backs the simulated rig.
type MemoryDriver struct {
	mu     sync.Mutex
	period time.Duration
	pulses []time.Duration
	closed bool
}

func (m *MemoryDriver) SetPeriod(d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d <= 0 {
		return fmt.Errorf("servo: invalid period %v", d)
	}
	m.period = d
	return nil
}

func (m *MemoryDriver) SetPulse(d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("servo: driver closed")
	}
	if d < 0 || d > m.period {
		return fmt.Errorf("servo: pulse %v outside period %v", d, m.period)
	}
	if len(m.pulses) >= 1024 {
		m.pulses = append(m.pulses[:0], m.pulses[512:]...)
	}
	m.pulses = append(m.pulses, d)
	return nil
}

func (m *MemoryDriver) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MemoryDriver) Period() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.period
}

// Pulses returns the recent pulse widths, oldest first.
func (m *MemoryDriver) Pulses() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.pulses))
	copy(out, m.pulses)
	return out
}
