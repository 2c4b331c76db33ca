package i2c

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"periph.io/x/conn/v3/physic"
)

// Command is the value written to the master control register to run one
// phase of a transaction.
type Command uint8

const (
	CmdRun   Command = 0x01
	CmdStart Command = 0x02
	CmdStop  Command = 0x04
	CmdAck   Command = 0x08
)

// Phase encodings. The receive variants with CmdAck keep the transfer open
// for another byte; the final byte is NACKed by the master.
const (
	singleShot    = CmdStart | CmdRun | CmdStop
	sendStart     = CmdStart | CmdRun
	sendContinue  = CmdRun
	finish        = CmdRun | CmdStop
	recvStart     = CmdStart | CmdRun | CmdAck
	recvContinue  = CmdRun | CmdAck
	releaseBusCmd = CmdStop
)

func (c Command) String() string {
	if c == 0 {
		return "none"
	}
	var parts []string
	for _, f := range []struct {
		bit  Command
		name string
	}{{CmdStart, "START"}, {CmdRun, "RUN"}, {CmdAck, "ACK"}, {CmdStop, "STOP"}} {
		if c&f.bit != 0 {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}

// Status is a transient read of the master status register.
type Status uint8

const (
	StatusBusy         Status = 0x01
	StatusError        Status = 0x02
	StatusAddrNack     Status = 0x04
	StatusDataNack     Status = 0x08
	StatusArbLost      Status = 0x10
	StatusIdle         Status = 0x20
	StatusBusBusy      Status = 0x40
	StatusClockTimeout Status = 0x80
)

func (s Status) failed() bool {
	return s&(StatusError|StatusArbLost) != 0
}

func (s Status) String() string {
	if s == 0 {
		return "0x00"
	}
	var parts []string
	for _, f := range []struct {
		bit  Status
		name string
	}{
		{StatusBusy, "busy"}, {StatusError, "error"}, {StatusAddrNack, "addr-nack"},
		{StatusDataNack, "data-nack"}, {StatusArbLost, "arb-lost"}, {StatusIdle, "idle"},
		{StatusBusBusy, "bus-busy"}, {StatusClockTimeout, "clk-timeout"},
	} {
		if s&f.bit != 0 {
			parts = append(parts, f.name)
		}
	}
	return fmt.Sprintf("0x%02X(%s)", uint8(s), strings.Join(parts, ","))
}

// BusError reports a failed phase. Status holds the hardware flags read when
// the failure was detected; Index is the position of the failing byte within
// the caller's payload (-1 for the register address / addressing phase).
type BusError struct {
	Addr   uint16
	Status Status
	Index  int
}

func (e *BusError) Error() string {
	return fmt.Sprintf("i2c: addr 0x%02X: bus error status=%s index=%d", e.Addr, e.Status, e.Index)
}

// Code mirrors the non-zero hardware error condition.
func (e *BusError) Code() uint8 { return uint8(e.Status) }

// Controller is the master-mode bus peripheral driven by Engine: one
// target/data/control/status register set.
type Controller interface {
	// Configure enables master mode and programs the SCL timer period.
	Configure(timerPeriod uint8) error
	SetTarget(addr uint8, read bool)
	SetData(b byte)
	Data() byte
	Control(cmd Command)
	Status() Status
}

const (
	// StandardMode is the only bus speed supported.
	StandardMode = 100 * physic.KiloHertz
	// DefaultSysClock is the core clock the timer period is derived from.
	DefaultSysClock = 40 * physic.MegaHertz

	sclLowPeriod  = 6
	sclHighPeriod = 4
)

// Option configures an Engine.
type Option func(*Engine)

// WithSysClock sets the controller's input clock.
func WithSysClock(f physic.Frequency) Option {
	return func(e *Engine) { e.sysClock = f }
}

// WithName sets the name reported by String.
func WithName(name string) Option {
	return func(e *Engine) { e.name = name }
}

// Engine runs polled, blocking master transactions on a Controller.
//
// One transaction completes before the next begins. Polling has no timeout:
// a controller that never clears its busy flag hangs the caller.
type Engine struct {
	ctrl     Controller
	sysClock physic.Frequency
	name     string

	mu          sync.Mutex
	initOnce    sync.Once
	initErr     error
	initialized bool
}

func New(ctrl Controller, opts ...Option) *Engine {
	e := &Engine{ctrl: ctrl, sysClock: DefaultSysClock, name: "i2c-engine"}
	for _, o := range opts {
		o(e)
	}
	return e
}

// TimerPeriod returns the SCL timer period for standard mode at sysClock.
func TimerPeriod(sysClock physic.Frequency) (uint8, error) {
	ticks := int64(sysClock / StandardMode)
	tpr := ticks/(2*(sclLowPeriod+sclHighPeriod)) - 1
	if tpr < 1 || tpr > 0x7F {
		return 0, fmt.Errorf("i2c: system clock %s out of range for standard mode", sysClock)
	}
	return uint8(tpr), nil
}

// Init programs the controller for standard mode. Calling it again is a no-op.
func (e *Engine) Init() error {
	e.initOnce.Do(func() {
		if e.ctrl == nil {
			e.initErr = fmt.Errorf("i2c: controller is nil")
			return
		}
		tpr, err := TimerPeriod(e.sysClock)
		if err != nil {
			e.initErr = err
			return
		}
		if err := e.ctrl.Configure(tpr); err != nil {
			e.initErr = fmt.Errorf("i2c: configure: %w", err)
			return
		}
		e.mu.Lock()
		e.initialized = true
		e.mu.Unlock()
	})
	return e.initErr
}

// ReadRegister reads one byte from reg. There is no error channel: on a bus
// error the returned byte is whatever the data register held. Callers that
// care validate the value (for example against a device ID).
func (e *Engine) ReadRegister(addr, reg uint8) byte {
	e.lock()
	defer e.mu.Unlock()

	var b [1]byte
	if err := e.send(addr, []byte{reg}, false); err != nil {
		return e.ctrl.Data()
	}
	if _, err := e.receive(addr, b[:]); err != nil {
		return e.ctrl.Data()
	}
	return b[0]
}

// WriteRegister writes data to reg in a single START..STOP transaction.
func (e *Engine) WriteRegister(addr, reg, data uint8) error {
	e.lock()
	defer e.mu.Unlock()
	return shiftIndex(e.send(addr, []byte{reg, data}, true))
}

// BurstRead fills buf starting at reg, relying on the peripheral to advance
// its register pointer. It returns the number of bytes stored; on a bus error
// buf[n:] is left untouched.
func (e *Engine) BurstRead(addr, reg uint8, buf []byte) int {
	e.lock()
	defer e.mu.Unlock()

	if err := e.send(addr, []byte{reg}, len(buf) == 0); err != nil {
		return 0
	}
	n, _ := e.receive(addr, buf)
	return n
}

// BurstWrite writes buf starting at reg. The first failing byte aborts the
// transfer: a STOP is issued and the rest of buf is not sent.
func (e *Engine) BurstWrite(addr, reg uint8, buf []byte) error {
	e.lock()
	defer e.mu.Unlock()

	p := make([]byte, 0, len(buf)+1)
	p = append(p, reg)
	p = append(p, buf...)
	return shiftIndex(e.send(addr, p, true))
}

// Tx performs a write-then-read transaction with a repeated start between the
// two halves.
func (e *Engine) Tx(addr uint16, w, r []byte) error {
	if addr > 0x7F {
		return fmt.Errorf("i2c: invalid addr 0x%X", addr)
	}
	if len(w) == 0 && len(r) == 0 {
		return nil
	}
	e.lock()
	defer e.mu.Unlock()

	if len(w) > 0 {
		if err := e.send(uint8(addr), w, len(r) == 0); err != nil {
			return err
		}
	}
	if len(r) > 0 {
		if _, err := e.receive(uint8(addr), r); err != nil {
			return err
		}
	}
	return nil
}

// SetSpeed accepts only standard mode.
func (e *Engine) SetSpeed(f physic.Frequency) error {
	if f != StandardMode {
		return fmt.Errorf("i2c: unsupported bus speed %s (only %s)", f, StandardMode)
	}
	return nil
}

func (e *Engine) String() string { return e.name }

func (e *Engine) lock() {
	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		panic("i2c: engine used before Init")
	}
}

// send transmits p to addr, one phase per byte. With stop unset the bus is
// kept for a repeated start.
func (e *Engine) send(addr uint8, p []byte, stop bool) error {
	e.ctrl.SetTarget(addr, false)
	if len(p) == 0 {
		return nil
	}
	for i, b := range p {
		e.ctrl.SetData(b)
		cmd := sendContinue
		if i == 0 {
			cmd = sendStart
		}
		if i == len(p)-1 && stop {
			cmd |= CmdStop
		}
		e.ctrl.Control(cmd)
		if st := e.wait(); st.failed() {
			e.release(cmd, st)
			return &BusError{Addr: uint16(addr), Status: st, Index: i}
		}
	}
	return nil
}

// receive clocks len(buf) bytes from addr, always ending with STOP.
func (e *Engine) receive(addr uint8, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	e.ctrl.SetTarget(addr, true)
	for i := range buf {
		var cmd Command
		switch {
		case len(buf) == 1:
			cmd = singleShot
		case i == 0:
			cmd = recvStart
		case i == len(buf)-1:
			cmd = finish
		default:
			cmd = recvContinue
		}
		e.ctrl.Control(cmd)
		if st := e.wait(); st.failed() {
			e.release(cmd, st)
			return i, &BusError{Addr: uint16(addr), Status: st, Index: i}
		}
		buf[i] = e.ctrl.Data()
	}
	return len(buf), nil
}

func (e *Engine) wait() Status {
	for {
		st := e.ctrl.Status()
		if st&StatusBusy == 0 {
			return st
		}
	}
}

// release puts the bus back to idle after a failed phase that did not carry
// STOP. After arbitration loss the bus belongs to another master.
func (e *Engine) release(cmd Command, st Status) {
	if cmd&CmdStop != 0 || st&StatusArbLost != 0 {
		return
	}
	e.ctrl.Control(releaseBusCmd)
	e.wait()
}

// shiftIndex converts a BusError index over [reg, payload...] into a payload
// index (-1 for the register byte).
func shiftIndex(err error) error {
	var be *BusError
	if errors.As(err, &be) {
		be.Index--
	}
	return err
}
