//go:build !linux

package i2c

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
)

type HostBus struct{}

func OpenHost(path string) (*HostBus, error) {
	return nil, fmt.Errorf("i2c: unsupported OS (need linux)")
}

func (b *HostBus) Close() error   { return nil }
func (b *HostBus) String() string { return "unsupported" }

func (b *HostBus) SetSpeed(f physic.Frequency) error        { return fmt.Errorf("i2c: unsupported OS") }
func (b *HostBus) ReadRegister(addr, reg uint8) byte        { return 0 }
func (b *HostBus) WriteRegister(addr, reg, data uint8) error { return fmt.Errorf("i2c: unsupported OS") }
func (b *HostBus) BurstRead(addr, reg uint8, buf []byte) int { return 0 }
func (b *HostBus) BurstWrite(addr, reg uint8, buf []byte) error {
	return fmt.Errorf("i2c: unsupported OS")
}
func (b *HostBus) Tx(addr uint16, w, r []byte) error { return fmt.Errorf("i2c: unsupported OS") }
