// Package pio provides byte-wide access to x86 I/O ports behind a small
// capability interface, so code that sequences port writes can run against
// real hardware, a recording bus, or an in-process device model.
package pio

import "errors"

// Bus is the injected port access capability. Implementations are expected
// to be synchronous; a write has completed once WritePort8 returns.
type Bus interface {
	ReadPort8(port uint16) (byte, error)
	WritePort8(port uint16, value byte) error
}

// ErrUnmappedPort is returned by Mux for accesses to ports no handler claims.
var ErrUnmappedPort = errors.New("no handler for port")

// ErrDevPortUnsupported is returned by OpenDevPort on platforms without a
// /dev/port character device.
var ErrDevPortUnsupported = errors.New("pio: /dev/port is only available on linux")

// Port scopes a Bus to one fixed address.
type Port struct {
	bus  Bus
	addr uint16
}

// NewPort binds addr on bus.
func NewPort(bus Bus, addr uint16) Port {
	return Port{bus: bus, addr: addr}
}

// Addr returns the bound port number.
func (p Port) Addr() uint16 { return p.addr }

// Read reads one byte from the bound port.
func (p Port) Read() (byte, error) {
	return p.bus.ReadPort8(p.addr)
}

// Write writes one byte to the bound port.
func (p Port) Write(value byte) error {
	return p.bus.WritePort8(p.addr, value)
}
