// Package console writes human-readable reports to a serial terminal or to
// standard output. Lines are framed with CRLF as terminal emulators expect.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.bug.st/serial"

	"tiltrig/internal/orientation"
	"tiltrig/internal/sensors/tcs34727"
)

// ClearScreen is the ANSI erase-display sequence.
const ClearScreen = "\x1b[2J"

// DefaultBaud matches the UART configuration of the board console.
const DefaultBaud = 115200

var openPortFn = func(path string, mode *serial.Mode) (serial.Port, error) {
	return serial.Open(path, mode)
}

type Console struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer
	// name is the port path or "stdout".
	name string
}

// New wraps w. Close does not close w.
func New(w io.Writer) *Console {
	return &Console{w: w, name: "writer"}
}

// Open opens the serial port at path with 8N1 framing. An empty path, "-" or
// "stdout" selects standard output.
func Open(path string, baud int) (*Console, error) {
	switch path {
	case "", "-", "stdout":
		return &Console{w: os.Stdout, name: "stdout"}, nil
	}
	if baud <= 0 {
		baud = DefaultBaud
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := openPortFn(path, mode)
	if err != nil {
		return nil, fmt.Errorf("console: open %s: %w", path, err)
	}
	return &Console{w: port, c: port, name: path}, nil
}

func (c *Console) String() string { return c.name }

// Printf formats and writes. Bare "\n" line endings become "\r\n".
func (c *Console) Printf(format string, args ...any) error {
	return c.write(crlf(fmt.Sprintf(format, args...)))
}

// Println writes s followed by CRLF.
func (c *Console) Println(s string) error {
	return c.write(crlf(s) + "\r\n")
}

func (c *Console) Clear() error {
	return c.write(ClearScreen)
}

// Float writes the UART self-test line.
func (c *Console) Float(v float64) error {
	return c.Printf("Floating Number: %.2f\n", v)
}

// IMU writes the accel, gyro and angle blocks of one sample.
func (c *Console) IMU(accel, gyro orientation.Vector, a orientation.Angles) error {
	var b strings.Builder
	b.WriteString("Accel Instance\n")
	writeVector(&b, accel)
	b.WriteString("Gyro Instance\n")
	writeVector(&b, gyro)
	b.WriteString("Angle Instance\n")
	fmt.Fprintf(&b, "X: %f Y: %f Z: %f\n", a.TiltX, a.TiltY, a.Yaw)
	return c.write(crlf(b.String()))
}

// Channels writes the raw red, green and blue counts in hex.
func (c *Console) Channels(ch tcs34727.Channels) error {
	return c.Printf("RED RAW: %x\nGREEN RAW: %x\nBLUE RAW: %x\n", ch.Red, ch.Green, ch.Blue)
}

// Close closes the underlying port, if Open created one.
func (c *Console) Close() error {
	if c.c == nil {
		return nil
	}
	return c.c.Close()
}

func (c *Console) write(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(c.w, s)
	return err
}

func writeVector(b *strings.Builder, v orientation.Vector) {
	fmt.Fprintf(b, "X: %f\nY: %f\nZ: %f\n", v.X, v.Y, v.Z)
}

func crlf(s string) string {
	if !strings.Contains(s, "\n") {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}
