//go:build linux

package led

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "tiltrig"

// gpioOutput drives the red, blue and green lines as one request.
type gpioOutput struct {
	chip  *gpiocdev.Chip
	lines *gpiocdev.Lines
}

// OpenGPIO requests the LED lines on chip (name or path), in red, blue,
// green order, as outputs driven low.
func OpenGPIO(chip string, offsets [3]int) (Output, error) {
	c, err := gpiocdev.NewChip(chip, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("led: open %s: %w", chip, err)
	}
	lines, err := c.RequestLines(offsets[:], gpiocdev.AsOutput(0, 0, 0))
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("led: request lines %v: %w", offsets, err)
	}
	return &gpioOutput{chip: c, lines: lines}, nil
}

func (g *gpioOutput) Set(c Color) error {
	if g == nil || g.lines == nil {
		return fmt.Errorf("led: gpio output not initialized")
	}
	bit := func(mask Color) int {
		if c&mask != 0 {
			return 1
		}
		return 0
	}
	return g.lines.SetValues([]int{bit(Red), bit(Blue), bit(Green)})
}

func (g *gpioOutput) Close() error {
	if g == nil || g.lines == nil {
		return nil
	}
	_ = g.lines.SetValues([]int{0, 0, 0})
	err := g.lines.Close()
	g.lines = nil
	if g.chip != nil {
		_ = g.chip.Close()
		g.chip = nil
	}
	return err
}

// WatchGPIO watches an active-low push button (internal pull-up) and steps
// c on every falling edge.
func WatchGPIO(chip string, offset int, debounce time.Duration, c *Cycle) (*Button, error) {
	b := newButton(c)
	opts := []gpiocdev.LineReqOption{
		gpiocdev.WithConsumer(consumer),
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			if evt.Type == gpiocdev.LineEventFallingEdge {
				b.Press()
			}
		}),
	}
	if debounce > 0 {
		opts = append(opts, gpiocdev.WithDebounce(debounce))
	}
	line, err := gpiocdev.RequestLine(chip, offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("led: request button line %d on %s: %w", offset, chip, err)
	}
	b.release = line.Close
	return b, nil
}
