//go:build linux

package servo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// sysfsPWM drives a hardware PWM channel via /sys/class/pwm. On a Raspberry
// Pi this needs the pwm-2chan overlay (GPIO18 is pwmchip0/pwm0).
type sysfsPWM struct {
	chipPath string
	pwmPath  string
	channel  int

	periodNS uint64
	enabled  bool
}

var pwmSysfsBase = "/sys/class/pwm"

// OpenSysfs exports channel on the named chip ("" picks the first chip that
// has channels).
func OpenSysfs(chip string, channel int) (Driver, error) {
	if channel < 0 {
		return nil, fmt.Errorf("servo: invalid pwm channel %d", channel)
	}
	chipPath, err := findPWMChip(chip, channel)
	if err != nil {
		return nil, err
	}
	d := &sysfsPWM{
		chipPath: chipPath,
		channel:  channel,
		pwmPath:  filepath.Join(chipPath, fmt.Sprintf("pwm%d", channel)),
	}
	if err := d.ensureExported(); err != nil {
		return nil, err
	}
	_ = d.writeBool("enable", false)
	return d, nil
}

func findPWMChip(chip string, channel int) (string, error) {
	base := pwmSysfsBase
	if chip != "" {
		p := filepath.Join(base, chip)
		n, err := readInt(filepath.Join(p, "npwm"))
		if err != nil {
			return "", fmt.Errorf("servo: %s: %w", p, err)
		}
		if channel >= n {
			return "", fmt.Errorf("servo: %s has %d channels, want channel %d", chip, n, channel)
		}
		return p, nil
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		return "", fmt.Errorf("servo: read %s: %w", base, err)
	}
	// pwmchipN entries are commonly symlinks, not directories.
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "pwmchip") {
			continue
		}
		p := filepath.Join(base, e.Name())
		n, err := readInt(filepath.Join(p, "npwm"))
		if err != nil || n <= channel {
			continue
		}
		return p, nil
	}
	return "", fmt.Errorf("servo: no sysfs pwmchip with channel %d (is a pwm overlay enabled?)", channel)
}

func (d *sysfsPWM) ensureExported() error {
	if _, err := os.Stat(d.pwmPath); err == nil {
		return nil
	}
	if err := writeSysfs(filepath.Join(d.chipPath, "export"), strconv.Itoa(d.channel)); err != nil {
		if _, statErr := os.Stat(d.pwmPath); statErr == nil {
			return nil
		}
		return fmt.Errorf("servo: export pwm: %w", err)
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(d.pwmPath); err == nil {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := os.Stat(d.pwmPath); err != nil {
		return fmt.Errorf("servo: pwm path not created after export: %w", err)
	}
	return nil
}

func (d *sysfsPWM) SetPeriod(p time.Duration) error {
	if p <= 0 {
		return fmt.Errorf("servo: invalid period %v", p)
	}
	// The kernel rejects a period shorter than the current duty cycle.
	_ = d.writeBool("enable", false)
	d.enabled = false
	_ = d.writeUint("duty_cycle", 0)

	if err := d.writeUint("period", uint64(p.Nanoseconds())); err != nil {
		return err
	}
	d.periodNS = uint64(p.Nanoseconds())
	return nil
}

func (d *sysfsPWM) SetPulse(w time.Duration) error {
	if d.periodNS == 0 {
		return fmt.Errorf("servo: period not set")
	}
	duty := uint64(w.Nanoseconds())
	if w < 0 {
		duty = 0
	}
	if duty > d.periodNS {
		duty = d.periodNS
	}
	if err := d.writeUint("duty_cycle", duty); err != nil {
		return err
	}
	if !d.enabled {
		if err := d.writeBool("enable", true); err != nil {
			return err
		}
		d.enabled = true
	}
	return nil
}

func (d *sysfsPWM) Close() error {
	err := d.writeBool("enable", false)
	d.enabled = false
	return err
}

func (d *sysfsPWM) writeUint(name string, v uint64) error {
	return writeSysfs(filepath.Join(d.pwmPath, name), strconv.FormatUint(v, 10))
}

func (d *sysfsPWM) writeBool(name string, v bool) error {
	val := "0"
	if v {
		val = "1"
	}
	return writeSysfs(filepath.Join(d.pwmPath, name), val)
}

var sysfsRetryWindow = 2 * time.Second

// writeSysfs opens without O_TRUNC/O_CREATE (some attributes reject them)
// and retries briefly: right after export, udev may still be fixing up
// permissions on the new nodes.
func writeSysfs(path string, value string) error {
	deadline := time.Now().Add(sysfsRetryWindow)
	for {
		err := writeOnce(path, value)
		if err == nil {
			return nil
		}
		if time.Now().Before(deadline) && isRetryableSysfsErr(err) {
			time.Sleep(25 * time.Millisecond)
			continue
		}
		return err
	}
}

func writeOnce(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	_, werr := f.WriteString(value)
	return errors.Join(werr, f.Close())
}

func isRetryableSysfsErr(err error) bool {
	return errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM) || errors.Is(err, unix.ENOENT)
}

func readInt(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, fmt.Errorf("empty")
	}
	return strconv.Atoi(s)
}
