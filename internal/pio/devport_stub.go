//go:build !linux

package pio

// DevPort is unavailable on this platform.
type DevPort struct{}

// OpenDevPort always fails with ErrDevPortUnsupported.
func OpenDevPort() (*DevPort, error) {
	return nil, ErrDevPortUnsupported
}

// ReadPort8 implements Bus.
func (d *DevPort) ReadPort8(port uint16) (byte, error) {
	return 0, ErrDevPortUnsupported
}

// WritePort8 implements Bus.
func (d *DevPort) WritePort8(port uint16, value byte) error {
	return ErrDevPortUnsupported
}

// Close releases nothing.
func (d *DevPort) Close() error { return nil }

var _ Bus = (*DevPort)(nil)
