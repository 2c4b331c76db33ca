package i2csim

import "sync"

// RegisterFile is a 256-byte register map behind a register pointer. The
// first byte written after a START selects the register; further bytes are
// stored there and the pointer advances after every stored or read byte.
type RegisterFile struct {
	mu   sync.Mutex
	regs [256]byte
	ptr  byte
	// pointerNext is true until the register pointer of a write
	// transaction has been received.
	pointerNext bool

	// PointerMask strips command bits from the pointer byte (0 keeps all).
	PointerMask byte
	// OnWrite is called after a byte is stored.
	OnWrite func(reg, val byte)
	// OnRead is called before a register is returned.
	OnRead func(reg byte)
}

func NewRegisterFile() *RegisterFile { return &RegisterFile{} }

func (r *RegisterFile) Set(reg, val byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.regs[reg] = val
}

func (r *RegisterFile) Get(reg byte) byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.regs[reg]
}

// SetWord stores v big-endian at reg, reg+1.
func (r *RegisterFile) SetWord(reg byte, v int16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.regs[reg] = byte(uint16(v) >> 8)
	r.regs[reg+1] = byte(v)
}

// SetWordLE stores v little-endian at reg, reg+1.
func (r *RegisterFile) SetWordLE(reg byte, v uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.regs[reg] = byte(v)
	r.regs[reg+1] = byte(v >> 8)
}

func (r *RegisterFile) Start(read bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pointerNext = !read
	return true
}

func (r *RegisterFile) Write(b byte) bool {
	r.mu.Lock()
	if r.pointerNext {
		if r.PointerMask != 0 {
			b &= r.PointerMask
		}
		r.ptr = b
		r.pointerNext = false
		r.mu.Unlock()
		return true
	}
	reg := r.ptr
	r.regs[reg] = b
	r.ptr++
	hook := r.OnWrite
	r.mu.Unlock()

	if hook != nil {
		hook(reg, b)
	}
	return true
}

func (r *RegisterFile) Read(ack bool) byte {
	r.mu.Lock()
	reg := r.ptr
	r.ptr++
	hook := r.OnRead
	r.mu.Unlock()

	if hook != nil {
		hook(reg)
	}
	return r.Get(reg)
}

func (r *RegisterFile) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pointerNext = false
}

// Faulty wraps a peripheral and NACKs one written byte per write
// transaction. NackAt counts bytes after the address, so 0 is the register
// pointer. A NACKed byte is not passed on.
type Faulty struct {
	Peripheral
	NackAt int
	// NackAddress refuses the address phase instead.
	NackAddress bool

	n int
}

func (f *Faulty) Start(read bool) bool {
	if f.NackAddress {
		return false
	}
	f.n = 0
	return f.Peripheral.Start(read)
}

func (f *Faulty) Write(b byte) bool {
	i := f.n
	f.n++
	if i == f.NackAt {
		return false
	}
	return f.Peripheral.Write(b)
}

// Expander is a PCF8574-style 8-bit quasi-bidirectional port. Every written
// byte is latched onto the port and recorded (bounded like the trace).
type Expander struct {
	mu     sync.Mutex
	port   byte
	writes []byte
}

func NewExpander() *Expander { return &Expander{port: 0xFF} }

func (e *Expander) Start(read bool) bool { return true }

func (e *Expander) Write(b byte) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.port = b
	if len(e.writes) >= maxTrace {
		e.writes = append(e.writes[:0], e.writes[maxTrace/2:]...)
	}
	e.writes = append(e.writes, b)
	return true
}

func (e *Expander) Read(ack bool) byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.port
}

func (e *Expander) Stop() {}

func (e *Expander) Port() byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.port
}

// Writes returns a copy of every latch write so far.
func (e *Expander) Writes() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]byte, len(e.writes))
	copy(out, e.writes)
	return out
}
