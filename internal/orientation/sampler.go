package orientation

import (
	"errors"
	"fmt"
)

// IMU is the sensor surface the sampler needs. Config reads go to the
// device every time.
type IMU interface {
	ReadAccel() (Raw, error)
	ReadGyro() (Raw, error)
	AccelConfig() byte
	GyroConfig() byte
}

// Sample is one full read of both sensors.
type Sample struct {
	AccelRaw    Raw
	GyroRaw     Raw
	AccelConfig byte
	GyroConfig  byte
	Accel       Vector
	Gyro        Vector
}

type Sampler struct {
	imu IMU
}

func NewSampler(imu IMU) *Sampler { return &Sampler{imu: imu} }

// Accel reads the accelerometer and scales it by the tier currently
// configured in the sensor. On error out is left unmodified.
func (s *Sampler) Accel(out *Vector) error {
	raw, err := s.imu.ReadAccel()
	if err != nil {
		return fmt.Errorf("orientation: read accel: %w", err)
	}
	return scaleFresh(raw, s.imu.AccelConfig(), "accel", ScaleAccel, out)
}

// Gyro is Accel for the gyroscope, using the gyro's own config register.
func (s *Sampler) Gyro(out *Vector) error {
	raw, err := s.imu.ReadGyro()
	if err != nil {
		return fmt.Errorf("orientation: read gyro: %w", err)
	}
	return scaleFresh(raw, s.imu.GyroConfig(), "gyro", ScaleGyro, out)
}

func scaleFresh(raw Raw, cfg byte, name string, scale func(Raw, Tier, *Vector) bool, out *Vector) error {
	tier, ok := DecodeTier(cfg)
	if !ok || !scale(raw, tier, out) {
		return fmt.Errorf("%w: %s config 0x%02X", ErrUnsupportedScale, name, cfg)
	}
	return nil
}

// Sample refreshes out in place. Fields whose read or conversion failed keep
// their previous values; all failures are joined.
func (s *Sampler) Sample(out *Sample) error {
	var errs []error

	if raw, err := s.imu.ReadAccel(); err != nil {
		errs = append(errs, fmt.Errorf("orientation: read accel: %w", err))
	} else {
		out.AccelRaw = raw
		out.AccelConfig = s.imu.AccelConfig()
		if err := scaleFresh(raw, out.AccelConfig, "accel", ScaleAccel, &out.Accel); err != nil {
			errs = append(errs, err)
		}
	}

	if raw, err := s.imu.ReadGyro(); err != nil {
		errs = append(errs, fmt.Errorf("orientation: read gyro: %w", err))
	} else {
		out.GyroRaw = raw
		out.GyroConfig = s.imu.GyroConfig()
		if err := scaleFresh(raw, out.GyroConfig, "gyro", ScaleGyro, &out.Gyro); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
