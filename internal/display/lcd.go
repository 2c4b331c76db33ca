// Package display drives the 16x2 character LCD on its PCF8574A I2C
// backpack.
package display

import (
	"fmt"
	"sync"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/hd44780i2c"
)

const (
	DefaultAddress = 0x3F
	DefaultCols    = 16
	DefaultRows    = 2
)

type Config struct {
	Address uint8
	Cols    uint8
	Rows    uint8
}

type LCD struct {
	mu   sync.Mutex
	dev  hd44780i2c.Device
	cols uint8
	rows uint8
}

// New checks that the expander acknowledges, then runs the HD44780 4-bit
// init sequence. Zero config fields take the defaults.
func New(bus drivers.I2C, cfg Config) (*LCD, error) {
	if bus == nil {
		return nil, fmt.Errorf("display: bus is nil")
	}
	if cfg.Address == 0 {
		cfg.Address = DefaultAddress
	}
	if cfg.Cols == 0 {
		cfg.Cols = DefaultCols
	}
	if cfg.Rows == 0 {
		cfg.Rows = DefaultRows
	}
	// All control lines low, backlight off.
	if err := bus.Tx(uint16(cfg.Address), []byte{0x00}, nil); err != nil {
		return nil, fmt.Errorf("display: no expander at 0x%02X: %w", cfg.Address, err)
	}

	l := &LCD{dev: hd44780i2c.New(bus, cfg.Address), cols: cfg.Cols, rows: cfg.Rows}
	if err := l.dev.Configure(hd44780i2c.Config{Width: cfg.Cols, Height: cfg.Rows}); err != nil {
		return nil, fmt.Errorf("display: configure: %w", err)
	}
	return l, nil
}

func (l *LCD) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dev.ClearDisplay()
}

// SetCursor moves to row, col (both zero-based).
func (l *LCD) SetCursor(row, col uint8) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dev.SetCursor(col, row)
}

func (l *LCD) Print(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dev.Print([]byte(s))
}

// ShowLines clears the screen and writes one line per row, each cut to
// the display width.
func (l *LCD) ShowLines(lines ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dev.ClearDisplay()
	for row, s := range lines {
		if row >= int(l.rows) {
			break
		}
		l.dev.SetCursor(0, uint8(row))
		l.dev.Print([]byte(l.fit(s)))
	}
}

// Center writes s in the middle of row.
func (l *LCD) Center(row uint8, s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s = l.fit(s)
	l.dev.SetCursor((l.cols-uint8(len(s)))/2, row)
	l.dev.Print([]byte(s))
}

func (l *LCD) Cols() uint8 { return l.cols }

func (l *LCD) fit(s string) string {
	if len(s) > int(l.cols) {
		return s[:l.cols]
	}
	return s
}
