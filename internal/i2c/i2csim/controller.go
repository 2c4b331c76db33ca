// Package i2csim is an in-memory master controller with attachable
// peripherals. It runs the same phase-level protocol a hardware controller
// does, so the engine can be exercised without a bus.
package i2csim

import (
	"fmt"
	"sync"

	"tiltrig/internal/i2c"
)

// Peripheral is a bus target. Start is called with the R/W bit after every
// START or repeated START and returns the address ACK.
type Peripheral interface {
	Start(read bool) bool
	Write(b byte) bool
	Read(ack bool) byte
	Stop()
}

// Phase is one recorded control write and its outcome.
type Phase struct {
	Cmd    i2c.Command
	Addr   uint8
	Read   bool
	Data   byte
	Status i2c.Status
}

func (p Phase) String() string {
	dir := "W"
	if p.Read {
		dir = "R"
	}
	return fmt.Sprintf("%s 0x%02X/%s data=0x%02X status=%s", p.Cmd, p.Addr, dir, p.Data, p.Status)
}

// maxTrace bounds the trace; the oldest half is dropped when it fills.
const maxTrace = 8192

type Controller struct {
	mu sync.Mutex

	periphs map[uint8]Peripheral

	configured  bool
	timerPeriod uint8

	target uint8
	read   bool
	data   byte
	status i2c.Status

	// held is true between our START and STOP.
	held   bool
	active Peripheral

	latency int
	pending int

	arbLoss bool
	trace   []Phase
}

func New() *Controller {
	return &Controller{periphs: map[uint8]Peripheral{}, status: i2c.StatusIdle}
}

// Attach places p at the 7-bit address addr, replacing any existing target.
func (c *Controller) Attach(addr uint8, p Peripheral) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.periphs[addr&0x7F] = p
}

func (c *Controller) Detach(addr uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.periphs, addr&0x7F)
}

// SetLatency makes every phase report busy for n status polls.
func (c *Controller) SetLatency(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 0 {
		n = 0
	}
	c.latency = n
}

// InjectArbitrationLoss makes the next START lose arbitration.
func (c *Controller) InjectArbitrationLoss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.arbLoss = true
}

// Trace returns a copy of the recorded phases.
func (c *Controller) Trace() []Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Phase, len(c.trace))
	copy(out, c.trace)
	return out
}

func (c *Controller) ResetTrace() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trace = nil
}

// BusIdle reports whether no transaction is holding the bus.
func (c *Controller) BusIdle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.held
}

func (c *Controller) TimerPeriod() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timerPeriod
}

func (c *Controller) Configure(timerPeriod uint8) error {
	if timerPeriod == 0 || timerPeriod > 0x7F {
		return fmt.Errorf("i2csim: timer period %d out of range", timerPeriod)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configured = true
	c.timerPeriod = timerPeriod
	return nil
}

func (c *Controller) SetTarget(addr uint8, read bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = addr & 0x7F
	c.read = read
}

func (c *Controller) SetData(b byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = b
}

func (c *Controller) Data() byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data
}

func (c *Controller) Status() i2c.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending > 0 {
		c.pending--
		return c.status | i2c.StatusBusy
	}
	return c.status
}

// Control runs one phase to completion; the busy latency is applied to the
// status polls that follow.
func (c *Controller) Control(cmd i2c.Command) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending = c.latency
	c.status = c.run(cmd)
	if c.held {
		c.status |= i2c.StatusBusBusy
	} else {
		c.status |= i2c.StatusIdle
	}
	if len(c.trace) >= maxTrace {
		c.trace = append(c.trace[:0], c.trace[maxTrace/2:]...)
	}
	c.trace = append(c.trace, Phase{Cmd: cmd, Addr: c.target, Read: c.read, Data: c.data, Status: c.status})
}

func (c *Controller) run(cmd i2c.Command) i2c.Status {
	if !c.configured {
		return i2c.StatusError
	}

	if cmd&i2c.CmdStart != 0 {
		if c.arbLoss {
			// The other master owns the bus until its own STOP.
			c.arbLoss = false
			c.held = false
			c.active = nil
			return i2c.StatusError | i2c.StatusArbLost
		}
		c.held = true
		p := c.periphs[c.target]
		if p == nil || !p.Start(c.read) {
			c.active = nil
			c.stopIf(cmd)
			return i2c.StatusError | i2c.StatusAddrNack
		}
		c.active = p
	}

	if cmd&i2c.CmdRun != 0 {
		if !c.held || c.active == nil {
			c.stopIf(cmd)
			return i2c.StatusError
		}
		if c.read {
			c.data = c.active.Read(cmd&i2c.CmdAck != 0)
		} else if !c.active.Write(c.data) {
			c.stopIf(cmd)
			return i2c.StatusError | i2c.StatusDataNack
		}
	}

	c.stopIf(cmd)
	return 0
}

func (c *Controller) stopIf(cmd i2c.Command) {
	if cmd&i2c.CmdStop == 0 || !c.held {
		return
	}
	if c.active != nil {
		c.active.Stop()
	}
	c.active = nil
	c.held = false
}

var _ i2c.Controller = (*Controller)(nil)
