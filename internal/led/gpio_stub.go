//go:build !linux

package led

import (
	"fmt"
	"time"
)

func OpenGPIO(chip string, offsets [3]int) (Output, error) {
	return nil, fmt.Errorf("led: gpio unsupported on this platform")
}

func WatchGPIO(chip string, offset int, debounce time.Duration, c *Cycle) (*Button, error) {
	return nil, fmt.Errorf("led: gpio unsupported on this platform")
}
