//go:build linux

package pio

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// DevPort accesses real I/O ports through the /dev/port character device,
// where the file offset selects the port number. Opening it requires root
// (or CAP_SYS_RAWIO).
type DevPort struct {
	f *os.File
}

// OpenDevPort opens /dev/port for byte-wide port access.
func OpenDevPort() (*DevPort, error) {
	f, err := os.OpenFile("/dev/port", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("pio: open /dev/port: %w", err)
	}
	return &DevPort{f: f}, nil
}

// ReadPort8 implements Bus.
func (d *DevPort) ReadPort8(port uint16) (byte, error) {
	var buf [1]byte
	n, err := unix.Pread(int(d.f.Fd()), buf[:], int64(port))
	if err != nil {
		return 0, fmt.Errorf("pio: read port 0x%04x: %w", port, err)
	}
	if n != 1 {
		return 0, fmt.Errorf("pio: short read from port 0x%04x", port)
	}
	return buf[0], nil
}

// WritePort8 implements Bus.
func (d *DevPort) WritePort8(port uint16, value byte) error {
	n, err := unix.Pwrite(int(d.f.Fd()), []byte{value}, int64(port))
	if err != nil {
		return fmt.Errorf("pio: write port 0x%04x: %w", port, err)
	}
	if n != 1 {
		return fmt.Errorf("pio: short write to port 0x%04x", port)
	}
	return nil
}

// Close releases the device.
func (d *DevPort) Close() error {
	return d.f.Close()
}

var _ Bus = (*DevPort)(nil)
