package display

import (
	"strings"
	"testing"

	"periph.io/x/conn/v3/i2c/i2ctest"

	"tiltrig/internal/i2c"
	"tiltrig/internal/i2c/i2csim"
)

const (
	bitRS = 0x01
	bitEn = 0x04
)

// decode rebuilds HD44780 bytes from expander writes: every nibble is
// latched on an enable pulse. It returns command bytes and printed text.
func decode(t *testing.T, writes []byte) (cmds []byte, text string) {
	t.Helper()
	var nibbles []byte
	for _, w := range writes {
		if w&bitEn != 0 {
			nibbles = append(nibbles, w)
		}
	}
	if len(nibbles)%2 != 0 {
		t.Fatalf("odd nibble count %d", len(nibbles))
	}
	var sb strings.Builder
	for i := 0; i < len(nibbles); i += 2 {
		b := nibbles[i]&0xF0 | nibbles[i+1]>>4
		if nibbles[i]&bitRS != 0 {
			sb.WriteByte(b)
		} else {
			cmds = append(cmds, b)
		}
	}
	return cmds, sb.String()
}

func recordedWrites(t *testing.T, rec *i2ctest.Record) []byte {
	t.Helper()
	var out []byte
	for _, op := range rec.Ops {
		if op.Addr != DefaultAddress || len(op.W) != 1 || len(op.R) != 0 {
			t.Fatalf("unexpected op %+v", op)
		}
		out = append(out, op.W[0])
	}
	return out
}

func TestShowLines_TruncatesToWidth(t *testing.T) {
	rec := &i2ctest.Record{}
	l, err := New(rec, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rec.Ops = nil

	l.ShowLines("Angle:12.34", "Color:GREEN and more text")

	cmds, text := decode(t, recordedWrites(t, rec))
	if text != "Angle:12.34Color:GREEN and " {
		t.Fatalf("text=%q", text)
	}
	want := []byte{0x01, 0x80, 0xC0}
	if string(cmds) != string(want) {
		t.Fatalf("cmds=% X want % X", cmds, want)
	}
}

func TestCenter(t *testing.T) {
	rec := &i2ctest.Record{}
	l, err := New(rec, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rec.Ops = nil

	l.Center(1, "Oliver")
	cmds, text := decode(t, recordedWrites(t, rec))
	if text != "Oliver" {
		t.Fatalf("text=%q", text)
	}
	// Row 2 starts at DDRAM 0x40; (16-6)/2 = 5.
	if len(cmds) != 1 || cmds[0] != 0x80|0x45 {
		t.Fatalf("cmds=% X", cmds)
	}
}

func TestNew_OverEngineAndExpander(t *testing.T) {
	c := i2csim.New()
	exp := i2csim.NewExpander()
	c.Attach(DefaultAddress, exp)
	e := i2c.New(c)
	if err := e.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	l, err := New(e, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	before := len(exp.Writes())
	l.SetCursor(0, 0)
	l.Print("Hi")

	_, text := decode(t, exp.Writes()[before:])
	if text != "Hi" {
		t.Fatalf("text=%q", text)
	}
	if exp.Port()&0x08 == 0 {
		t.Fatalf("backlight off: port=0x%02X", exp.Port())
	}
	if !c.BusIdle() {
		t.Fatalf("bus not idle")
	}
}

func TestNew_MissingExpander(t *testing.T) {
	c := i2csim.New()
	e := i2c.New(c)
	if err := e.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := New(e, Config{}); err == nil || !strings.Contains(err.Error(), "no expander") {
		t.Fatalf("err=%v want no expander", err)
	}
	if _, err := New(nil, Config{}); err == nil {
		t.Fatalf("expected error for nil bus")
	}
}
