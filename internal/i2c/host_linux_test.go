//go:build linux

package i2c

import (
	"errors"
	"os"
	"strings"
	"testing"

	"golang.org/x/sys/unix"
)

func openNullBus(t *testing.T) *HostBus {
	t.Helper()
	f, err := os.OpenFile("/dev/null", os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile /dev/null: %v", err)
	}
	b := &HostBus{f: f, path: "/dev/null"}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestHostTx_InvalidAddr(t *testing.T) {
	b := openNullBus(t)

	for _, addr := range []uint16{0, 0x80} {
		err := b.Tx(addr, []byte{0x00}, nil)
		if err == nil || !strings.Contains(err.Error(), "invalid addr") {
			t.Fatalf("addr=0x%X err=%v want invalid addr", addr, err)
		}
	}
}

func TestHostTx_EmptyIsNoop(t *testing.T) {
	b := openNullBus(t)
	if err := b.Tx(0x68, nil, nil); err != nil {
		t.Fatalf("err=%v", err)
	}
}

func TestHostTx_IoctlFailureIsBusError(t *testing.T) {
	b := openNullBus(t)

	// /dev/null rejects I2C_RDWR.
	err := b.WriteRegister(0x68, 0x6B, 0x00)
	var be *BusError
	if !errors.As(err, &be) {
		t.Fatalf("err=%v want *BusError", err)
	}
	if be.Addr != 0x68 || be.Status&StatusError == 0 {
		t.Fatalf("be=%+v", be)
	}
}

func TestHostBurstRead_FailureLeavesBufUntouched(t *testing.T) {
	b := openNullBus(t)
	buf := []byte{0xAA, 0xBB, 0xCC}
	if n := b.BurstRead(0x68, 0x3B, buf); n != 0 {
		t.Fatalf("n=%d want 0", n)
	}
	if buf[0] != 0xAA || buf[1] != 0xBB || buf[2] != 0xCC {
		t.Fatalf("buf=% X modified", buf)
	}
}

func TestHostClosed(t *testing.T) {
	b := openNullBus(t)
	_ = b.Close()
	if err := b.Tx(0x68, []byte{0}, nil); err == nil || !strings.Contains(err.Error(), "closed") {
		t.Fatalf("err=%v want closed", err)
	}
}

func TestStatusFromErrno(t *testing.T) {
	tests := []struct {
		errno unix.Errno
		want  Status
	}{
		{unix.ENXIO, StatusError | StatusAddrNack},
		{unix.EREMOTEIO, StatusError | StatusAddrNack},
		{unix.EAGAIN, StatusError | StatusArbLost},
		{unix.ETIMEDOUT, StatusError | StatusClockTimeout},
		{unix.EIO, StatusError},
	}
	for _, tt := range tests {
		if got := statusFromErrno(tt.errno); got != tt.want {
			t.Fatalf("errno=%v got=%s want=%s", tt.errno, got, tt.want)
		}
	}
}
