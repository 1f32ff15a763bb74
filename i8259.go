// Package i8259 drives the pair of cascaded 8259 interrupt controllers
// wired into PC-compatible machines. It programs the chips' vector
// offsets away from the CPU exception range, answers vector ownership
// queries, routes end-of-interrupt notifications to the right chip(s),
// and detects spurious deliveries. All hardware access goes through the
// Bus interface, so the same driver runs against live ports, a recorded
// transcript, or the bundled software chipset.
package i8259

import (
	"github.com/tinyrange/i8259/internal/pic"
	"github.com/tinyrange/i8259/internal/pio"
	"github.com/tinyrange/i8259/internal/softpic"
)

// -----------------------------------------------------------------------------
// Type Aliases - These re-export types from the internal packages
// -----------------------------------------------------------------------------

// Bus is a byte-wide port I/O backend.
type Bus = pio.Bus

// Port scopes a Bus to one fixed port address.
type Port = pio.Port

// Handler serves a fixed set of ports behind a Mux.
type Handler = pio.Handler

// Mux is a Bus that dispatches each port to its registered Handler.
type Mux = pio.Mux

// DelaySink is a Handler that absorbs and counts writes to one port.
type DelaySink = pio.DelaySink

// Recorder is a Bus that captures every access, either standalone or in
// front of another Bus.
type Recorder = pio.Recorder

// Access is one recorded port access.
type Access = pio.Access

// AccessOp distinguishes reads from writes in a recorded Access.
type AccessOp = pio.AccessOp

// DevPort is a Bus backed by the host's /dev/port device (linux only).
type DevPort = pio.DevPort

// ChainedPICs is the driver for the primary/secondary pair.
type ChainedPICs = pic.ChainedPICs

// Controller is the per-chip handle exposed by ChainedPICs.
type Controller = pic.Controller

// Option configures the driver built by New.
type Option = pic.Option

// Chipset is a software model of the chip pair, strict about protocol.
type Chipset = softpic.Chipset

// ChipsetOption configures the Chipset built by NewChipset.
type ChipsetOption = softpic.Option

// Fixed platform addressing.
const (
	PrimaryCommandPort   = pic.PrimaryCommandPort
	PrimaryDataPort      = pic.PrimaryDataPort
	SecondaryCommandPort = pic.SecondaryCommandPort
	SecondaryDataPort    = pic.SecondaryDataPort
	DelayPort            = pic.DelayPort
)

// Default vector bases programmed by Initialize.
const (
	DefaultPrimaryOffset   = pic.DefaultPrimaryOffset
	DefaultSecondaryOffset = pic.DefaultSecondaryOffset

	// TimerVector is where the platform timer lands with the default
	// offsets, line 0 of the primary chip.
	TimerVector = DefaultPrimaryOffset
)

// Recorded access kinds.
const (
	OpRead  = pio.OpRead
	OpWrite = pio.OpWrite
)

// Common sentinel errors.
var (
	ErrNotInitialized     = pic.ErrNotInitialized
	ErrAlreadyInitialized = pic.ErrAlreadyInitialized
	ErrBadOffset          = pic.ErrBadOffset
	ErrOffsetsOverlap     = pic.ErrOffsetsOverlap

	ErrUnmappedPort = pio.ErrUnmappedPort

	// ErrDevPortUnsupported indicates /dev/port access is not available
	// on this platform. Use errors.Is(err, i8259.ErrDevPortUnsupported)
	// to fall back to the software chipset.
	ErrDevPortUnsupported = pio.ErrDevPortUnsupported
)

// -----------------------------------------------------------------------------
// Driver
// -----------------------------------------------------------------------------

// New builds the driver for the chip pair reached through bus.
//
// The pair starts unprogrammed; call Initialize before EndOfInterrupt,
// HandleSpurious or the register reads.
func New(bus Bus, opts ...Option) (*ChainedPICs, error) {
	return pic.New(bus, opts...)
}

// WithVectorOffsets overrides the default vector bases. Both values must
// be multiples of 8 and distinct; New rejects anything else.
func WithVectorOffsets(primary, secondary byte) Option {
	return pic.WithVectorOffsets(primary, secondary)
}

// -----------------------------------------------------------------------------
// Bus backends
// -----------------------------------------------------------------------------

// NewPort scopes bus to one fixed port address.
func NewPort(bus Bus, addr uint16) Port {
	return pio.NewPort(bus, addr)
}

// NewRecorder builds a standalone Recorder. Reads consume preloaded
// values and writes are captured.
func NewRecorder() *Recorder {
	return pio.NewRecorder()
}

// NewTee builds a Recorder in front of next, capturing the traffic it
// forwards.
func NewTee(next Bus) *Recorder {
	return pio.NewTee(next)
}

// NewMux builds an empty port multiplexer.
func NewMux() *Mux {
	return pio.NewMux()
}

// NewDelaySink builds a Handler that absorbs writes to port.
func NewDelaySink(port uint16) *DelaySink {
	return pio.NewDelaySink(port)
}

// OpenDevPort opens the host's /dev/port device for raw port I/O. It
// needs root and exists only on linux; elsewhere it returns
// ErrDevPortUnsupported.
func OpenDevPort() (*DevPort, error) {
	return pio.OpenDevPort()
}

// -----------------------------------------------------------------------------
// Software chipset
// -----------------------------------------------------------------------------

// NewChipset builds the software model of the chip pair. Register it on
// a Mux together with a DelaySink for DelayPort to get a complete
// simulated bus.
func NewChipset(opts ...ChipsetOption) *Chipset {
	return softpic.NewChipset(opts...)
}

// WithMasks sets the chipset's initial interrupt masks.
func WithMasks(primary, secondary byte) ChipsetOption {
	return softpic.WithMasks(primary, secondary)
}
