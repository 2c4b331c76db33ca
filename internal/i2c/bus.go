package i2c

import (
	periphi2c "periph.io/x/conn/v3/i2c"
	"tinygo.org/x/drivers"
)

// RegisterBus is the register-level surface device adapters use. Addresses
// are 7-bit; register addresses are 8-bit.
type RegisterBus interface {
	ReadRegister(addr, reg uint8) byte
	WriteRegister(addr, reg, data uint8) error
	BurstRead(addr, reg uint8, buf []byte) int
	BurstWrite(addr, reg uint8, buf []byte) error
}

var (
	_ RegisterBus   = (*Engine)(nil)
	_ drivers.I2C   = (*Engine)(nil)
	_ periphi2c.Bus = (*Engine)(nil)
)
