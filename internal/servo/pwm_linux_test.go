//go:build linux

package servo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func fakeChip(t *testing.T, npwm string) (base, pwmDir string) {
	t.Helper()
	dir := t.TempDir()
	base = filepath.Join(dir, "pwm")
	realChip := filepath.Join(dir, "realchip0")
	pwmDir = filepath.Join(realChip, "pwm0")
	if err := os.MkdirAll(pwmDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(realChip, "npwm"), []byte(npwm), 0o644); err != nil {
		t.Fatalf("WriteFile npwm: %v", err)
	}
	for _, name := range []string{"period", "duty_cycle", "enable"} {
		if err := os.WriteFile(filepath.Join(pwmDir, name), nil, 0o644); err != nil {
			t.Fatalf("WriteFile %s: %v", name, err)
		}
	}
	// sysfs exposes chips as symlinks.
	if err := os.Symlink(realChip, filepath.Join(base, "pwmchip0")); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	old := pwmSysfsBase
	pwmSysfsBase = base
	t.Cleanup(func() { pwmSysfsBase = old })
	return base, pwmDir
}

func readAttr(t *testing.T, dir, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("ReadFile %s: %v", name, err)
	}
	return strings.TrimSpace(string(b))
}

func TestOpenSysfs_DrivesServo(t *testing.T) {
	_, pwmDir := fakeChip(t, "2\n")

	drv, err := OpenSysfs("", 0)
	if err != nil {
		t.Fatalf("OpenSysfs: %v", err)
	}
	s, err := New(drv)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Drive(0); err != nil {
		t.Fatalf("Drive: %v", err)
	}

	if got := readAttr(t, pwmDir, "period"); got != "20000000" {
		t.Fatalf("period=%q", got)
	}
	if got := readAttr(t, pwmDir, "duty_cycle"); got != "1500000" {
		t.Fatalf("duty_cycle=%q", got)
	}
	if got := readAttr(t, pwmDir, "enable"); got != "1" {
		t.Fatalf("enable=%q", got)
	}
}

func TestOpenSysfs_NamedChipChannelRange(t *testing.T) {
	fakeChip(t, "1\n")
	if _, err := OpenSysfs("pwmchip0", 1); err == nil || !strings.Contains(err.Error(), "has 1 channels") {
		t.Fatalf("err=%v", err)
	}
	if _, err := OpenSysfs("pwmchip0", 0); err != nil {
		t.Fatalf("OpenSysfs: %v", err)
	}
}

func TestOpenSysfs_NoChip(t *testing.T) {
	old := pwmSysfsBase
	pwmSysfsBase = t.TempDir()
	t.Cleanup(func() { pwmSysfsBase = old })

	oldWindow := sysfsRetryWindow
	sysfsRetryWindow = 0
	t.Cleanup(func() { sysfsRetryWindow = oldWindow })

	if _, err := OpenSysfs("", 0); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := OpenSysfs("", -1); err == nil {
		t.Fatalf("expected error for negative channel")
	}
}
