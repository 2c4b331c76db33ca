//go:build !linux

package servo

import "fmt"

func OpenSysfs(chip string, channel int) (Driver, error) {
	return nil, fmt.Errorf("servo: sysfs pwm unsupported on this platform")
}
