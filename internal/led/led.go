// Package led owns the RGB status LED and the color-cycle button.
package led

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// Color is a bit set over the three LED lines.
type Color uint8

const (
	Dark  Color = 0
	Red   Color = 0x02
	Blue  Color = 0x04
	Green Color = 0x08

	White = Red | Blue | Green
)

func (c Color) String() string {
	if c == Dark {
		return "dark"
	}
	var parts []string
	if c&Red != 0 {
		parts = append(parts, "red")
	}
	if c&Green != 0 {
		parts = append(parts, "green")
	}
	if c&Blue != 0 {
		parts = append(parts, "blue")
	}
	return strings.Join(parts, "+")
}

// Palette is the order the button steps through.
var Palette = [...]Color{Red, Green, Blue}

// Cycle is the shared color-selection index. The button handler and the
// main flow may both touch it.
type Cycle struct {
	idx atomic.Uint32
}

// Press advances to the next palette color and returns it.
func (c *Cycle) Press() Color {
	for {
		old := c.idx.Load()
		next := (old + 1) % uint32(len(Palette))
		if c.idx.CompareAndSwap(old, next) {
			return Palette[next]
		}
	}
}

func (c *Cycle) Current() Color { return Palette[c.idx.Load()%uint32(len(Palette))] }

// Output drives the physical lines.
type Output interface {
	Set(c Color) error
	Close() error
}

// LED is the current output value plus the lines it drives.
type LED struct {
	mu  sync.Mutex
	out Output
	val Color
}

func New(out Output) *LED { return &LED{out: out} }

func (l *LED) Set(c Color) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.out.Set(c); err != nil {
		return fmt.Errorf("led: set %s: %w", c, err)
	}
	l.val = c
	return nil
}

// Toggle flips the bits of c.
func (l *LED) Toggle(c Color) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.val ^ c
	if err := l.out.Set(next); err != nil {
		return fmt.Errorf("led: toggle %s: %w", c, err)
	}
	l.val = next
	return nil
}

func (l *LED) Value() Color {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.val
}

// Close turns the LED off and releases the lines.
func (l *LED) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.out.Set(Dark)
	l.val = Dark
	return l.out.Close()
}

// MemoryOutput records the last value written.
type MemoryOutput struct {
	mu     sync.Mutex
	val    Color
	writes int
	closed bool
}

func (m *MemoryOutput) Set(c Color) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("led: output closed")
	}
	m.val = c
	m.writes++
	return nil
}

func (m *MemoryOutput) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MemoryOutput) Value() Color {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.val
}

func (m *MemoryOutput) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
