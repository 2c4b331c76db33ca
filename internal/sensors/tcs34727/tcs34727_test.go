package tcs34727

import (
	"errors"
	"testing"
	"time"

	"tiltrig/internal/i2c"
	"tiltrig/internal/i2c/i2csim"
)

func noSleep(t *testing.T) {
	t.Helper()
	oldSleep := sleep
	sleep = func(time.Duration) {}
	t.Cleanup(func() { sleep = oldSleep })
}

func simSensor(t *testing.T, id byte) (*Device, *i2csim.RegisterFile) {
	t.Helper()
	rf := i2csim.NewRegisterFile()
	rf.PointerMask = 0x1F
	rf.Set(regID, id)
	c := i2csim.New()
	c.Attach(Address, rf)
	e := i2c.New(c)
	if err := e.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return New(e), rf
}

func TestDetect(t *testing.T) {
	for _, id := range []byte{idTCS34727, idTCS34725} {
		d, _ := simSensor(t, id)
		got, err := d.Detect()
		if err != nil || got != id {
			t.Fatalf("id=0x%02X got=0x%02X err=%v", id, got, err)
		}
	}

	d, _ := simSensor(t, 0x12)
	if _, err := d.Detect(); !errors.Is(err, ErrNotDetected) {
		t.Fatalf("err=%v want ErrNotDetected", err)
	}
}

func TestEnable_WritesRegisters(t *testing.T) {
	noSleep(t)
	d, rf := simSensor(t, idTCS34727)

	var writes [][2]byte
	rf.OnWrite = func(reg, val byte) { writes = append(writes, [2]byte{reg, val}) }

	if err := d.Enable(0xC0, Gain16x); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	want := [][2]byte{{regATime, 0xC0}, {regControl, 0x02}, {regEnable, 0x01}, {regEnable, 0x03}}
	if len(writes) != len(want) {
		t.Fatalf("writes=%v want %v", writes, want)
	}
	for i := range want {
		if writes[i] != want[i] {
			t.Fatalf("write[%d]=%v want %v", i, writes[i], want[i])
		}
	}

	if err := d.Enable(0xC0, Gain(7)); err == nil {
		t.Fatalf("expected error for bad gain")
	}
}

func TestRaw_BurstLittleEndian(t *testing.T) {
	d, rf := simSensor(t, idTCS34727)
	rf.SetWordLE(0x14, 1000)
	rf.SetWordLE(0x16, 800)
	rf.SetWordLE(0x18, 100)
	rf.SetWordLE(0x1A, 0x1234)

	ch, err := d.Raw()
	if err != nil {
		t.Fatalf("Raw: %v", err)
	}
	if ch != (Channels{Clear: 1000, Red: 800, Green: 100, Blue: 0x1234}) {
		t.Fatalf("ch=%+v", ch)
	}
}

func TestRaw_AbsentDevice(t *testing.T) {
	c := i2csim.New()
	e := i2c.New(c)
	if err := e.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := New(e).Raw(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestValid(t *testing.T) {
	d, rf := simSensor(t, idTCS34727)
	if d.Valid() {
		t.Fatalf("valid before integration")
	}
	rf.Set(regStatus, statusAValid)
	if !d.Valid() {
		t.Fatalf("not valid")
	}
}

func TestParseGainAndATime(t *testing.T) {
	if g, err := ParseGain(60); err != nil || g != Gain60x {
		t.Fatalf("ParseGain(60)=%v,%v", g, err)
	}
	if _, err := ParseGain(2); err == nil {
		t.Fatalf("expected error")
	}

	tests := []struct {
		d    time.Duration
		want byte
	}{
		{2400 * time.Microsecond, 0xFF},
		{24 * time.Millisecond, 0xF6},
		{154 * time.Millisecond, 0xC0},
		{700 * time.Millisecond, 0x00},
		{0, 0xFF},
	}
	for _, tt := range tests {
		if got := ATimeFor(tt.d); got != tt.want {
			t.Fatalf("ATimeFor(%v)=0x%02X want 0x%02X", tt.d, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize(Channels{Clear: 1000, Red: 1000, Green: 500, Blue: 2000})
	if got != (RGB{R: 255, G: 127, B: 255}) {
		t.Fatalf("rgb=%+v", got)
	}
	if Normalize(Channels{Red: 10}) != (RGB{}) {
		t.Fatalf("dark reading should be black")
	}
}

func TestClassify(t *testing.T) {
	c := Classifier{MinClear: 100, Margin: 30}
	tests := []struct {
		ch   Channels
		want Color
	}{
		{Channels{Clear: 1000, Red: 700, Green: 150, Blue: 150}, Red},
		{Channels{Clear: 1000, Red: 150, Green: 700, Blue: 150}, Green},
		{Channels{Clear: 1000, Red: 150, Green: 150, Blue: 700}, Blue},
		{Channels{Clear: 1000, Red: 400, Green: 380, Blue: 200}, None},
		{Channels{Clear: 50, Red: 40, Green: 5, Blue: 5}, None},
	}
	for _, tt := range tests {
		if got := c.Classify(tt.ch); got != tt.want {
			t.Fatalf("Classify(%+v)=%s want %s", tt.ch, got, tt.want)
		}
	}
	if None.String() != "NA" || Blue.String() != "BLUE" {
		t.Fatalf("names: %s %s", None, Blue)
	}
}
