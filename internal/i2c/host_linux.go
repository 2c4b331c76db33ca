//go:build linux

package i2c

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
	"periph.io/x/conn/v3/physic"
)

// HostBus is a bus owned by the Linux kernel (/dev/i2c-N). The adapter
// driver runs the START/STOP phases; we hand it whole transactions through
// I2C_RDWR so register reads get a repeated start.

const (
	i2cMrd  = 0x0001
	i2cRdwr = 0x0707
)

type msg struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   uintptr
}

type rdwrData struct {
	msgs  uintptr
	nmsgs uint32
}

type HostBus struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

func OpenHost(path string) (*HostBus, error) {
	path = filepath.Clean(path)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &HostBus{f: f, path: path}, nil
}

func (b *HostBus) Close() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.f == nil {
		return nil
	}
	err := b.f.Close()
	b.f = nil
	return err
}

func (b *HostBus) String() string { return b.path }

// SetSpeed only accepts standard mode; the kernel owns the actual clock.
func (b *HostBus) SetSpeed(f physic.Frequency) error {
	if f != StandardMode {
		return fmt.Errorf("i2c: unsupported bus speed %s (only %s)", f, StandardMode)
	}
	return nil
}

func (b *HostBus) ReadRegister(addr, reg uint8) byte {
	var buf [1]byte
	_ = b.Tx(uint16(addr), []byte{reg}, buf[:])
	return buf[0]
}

func (b *HostBus) WriteRegister(addr, reg, data uint8) error {
	return b.Tx(uint16(addr), []byte{reg, data}, nil)
}

// BurstRead reads into a scratch buffer so a failed transfer leaves buf
// untouched.
func (b *HostBus) BurstRead(addr, reg uint8, buf []byte) int {
	if len(buf) == 0 {
		_ = b.Tx(uint16(addr), []byte{reg}, nil)
		return 0
	}
	tmp := make([]byte, len(buf))
	if err := b.Tx(uint16(addr), []byte{reg}, tmp); err != nil {
		return 0
	}
	return copy(buf, tmp)
}

// BurstWrite is a single kernel transfer, so the failing byte is not known;
// the error reports index 0.
func (b *HostBus) BurstWrite(addr, reg uint8, buf []byte) error {
	p := make([]byte, 0, len(buf)+1)
	p = append(p, reg)
	p = append(p, buf...)
	err := b.Tx(uint16(addr), p, nil)
	var be *BusError
	if errors.As(err, &be) {
		be.Index = 0
	}
	return err
}

func (b *HostBus) Tx(addr uint16, w, r []byte) error {
	if b == nil {
		return errors.New("i2c: bus is nil")
	}
	if addr == 0 || addr > 0x7F {
		return fmt.Errorf("i2c: invalid addr 0x%X", addr)
	}

	msgs := make([]msg, 0, 2)
	if len(w) > 0 {
		msgs = append(msgs, msg{addr: addr, flags: 0, len: uint16(len(w)), buf: uintptr(unsafe.Pointer(&w[0]))})
	}
	if len(r) > 0 {
		msgs = append(msgs, msg{addr: addr, flags: i2cMrd, len: uint16(len(r)), buf: uintptr(unsafe.Pointer(&r[0]))})
	}
	if len(msgs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.f == nil {
		return errors.New("i2c: bus is closed")
	}
	data := rdwrData{msgs: uintptr(unsafe.Pointer(&msgs[0])), nmsgs: uint32(len(msgs))}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, b.f.Fd(), uintptr(i2cRdwr), uintptr(unsafe.Pointer(&data)))
	if errno != 0 {
		return fmt.Errorf("%w (%v)", &BusError{Addr: addr, Status: statusFromErrno(errno)}, errno)
	}
	return nil
}

// statusFromErrno maps the adapter drivers' conventional errno values onto
// status flags.
func statusFromErrno(errno unix.Errno) Status {
	switch errno {
	case unix.ENXIO, unix.EREMOTEIO:
		return StatusError | StatusAddrNack
	case unix.EAGAIN:
		return StatusError | StatusArbLost
	case unix.ETIMEDOUT:
		return StatusError | StatusClockTimeout
	default:
		return StatusError
	}
}

var (
	_ RegisterBus = (*HostBus)(nil)
)
