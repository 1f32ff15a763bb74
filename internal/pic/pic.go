// Package pic drives the pair of cascaded 8259A interrupt controllers on
// x86-class platforms: it remaps their vector bases away from the CPU
// exception range, answers which chip owns a vector, and routes
// end-of-interrupt commands to the right chip(s) in the right order.
package pic

import (
	"errors"
	"fmt"

	"github.com/tinyrange/i8259/internal/pio"
)

// Fixed platform addressing. The two chips and the diagnostic delay port
// live at these ports on every PC-compatible machine.
const (
	PrimaryCommandPort   uint16 = 0x20
	PrimaryDataPort      uint16 = 0x21
	SecondaryCommandPort uint16 = 0xa0
	SecondaryDataPort    uint16 = 0xa1
	DelayPort            uint16 = 0x80
)

// Default vector bases, immediately above the CPU exception range.
const (
	DefaultPrimaryOffset   byte = 0x20
	DefaultSecondaryOffset byte = 0x28
)

const (
	cmdInitialize     = 0x11 // ICW1: edge triggered, cascade wiring, ICW4 follows
	cmdEndOfInterrupt = 0x20 // OCW2: non-specific EOI
	cmdReadIRR        = 0x0a // OCW3: next command-port read returns the request register
	cmdReadISR        = 0x0b // OCW3: next command-port read returns the in-service register

	cascadeLine  = 2
	linesPerChip = 8
	spuriousLine = 7

	icw3PrimaryCascade    = 1 << cascadeLine
	icw3SecondaryIdentity = cascadeLine
	icw4Mode8086          = 0x01
)

var (
	ErrNotInitialized     = errors.New("pic: not initialized")
	ErrAlreadyInitialized = errors.New("pic: already initialized")
	ErrBadOffset          = errors.New("pic: vector offset must be a multiple of 8")
	ErrOffsetsOverlap     = errors.New("pic: vector offsets overlap")
)

// Controller is the handle for one chip: its vector base and its command
// and data ports. Handles carry no state of their own; the only persistent
// state is the chip's register file, reached through the bus.
type Controller struct {
	offset byte
	cmd    pio.Port
	data   pio.Port
}

// Offset returns the first vector number the chip owns.
func (c Controller) Offset() byte { return c.offset }

// Owns reports whether vector falls inside the chip's eight-vector range.
func (c Controller) Owns(vector byte) bool {
	base := uint16(c.offset)
	return uint16(vector) >= base && uint16(vector) < base+linesPerChip
}

// EndOfInterrupt signals the chip that servicing completed. Only call it
// for an interrupt this chip actually owns.
func (c Controller) EndOfInterrupt() error {
	return c.cmd.Write(cmdEndOfInterrupt)
}

// ChainedPICs is the primary/secondary pair bound to a port bus. The
// secondary's output is hardwired to line 2 of the primary; that wiring is
// declared during Initialize and honored by EndOfInterrupt.
//
// The pair holds no lock. The expected discipline is single-threaded:
// Initialize exactly once during early bring-up with interrupts disabled,
// and no overlapping calls afterwards.
type ChainedPICs struct {
	bus   pio.Bus
	delay pio.Port

	primary   Controller
	secondary Controller

	initialized bool
}

// Option customises the pair built by New.
type Option func(*ChainedPICs)

// WithVectorOffsets overrides the default vector bases. Both values must
// be multiples of 8 and distinct; New rejects anything else.
func WithVectorOffsets(primary, secondary byte) Option {
	return func(p *ChainedPICs) {
		p.primary.offset = primary
		p.secondary.offset = secondary
	}
}

// New builds the pair from the fixed platform addressing.
func New(bus pio.Bus, opts ...Option) (*ChainedPICs, error) {
	if bus == nil {
		return nil, fmt.Errorf("pic: bus is nil")
	}
	p := &ChainedPICs{
		bus:   bus,
		delay: pio.NewPort(bus, DelayPort),
		primary: Controller{
			offset: DefaultPrimaryOffset,
			cmd:    pio.NewPort(bus, PrimaryCommandPort),
			data:   pio.NewPort(bus, PrimaryDataPort),
		},
		secondary: Controller{
			offset: DefaultSecondaryOffset,
			cmd:    pio.NewPort(bus, SecondaryCommandPort),
			data:   pio.NewPort(bus, SecondaryDataPort),
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := validateOffsets(p.primary.offset, p.secondary.offset); err != nil {
		return nil, err
	}
	return p, nil
}

func validateOffsets(primary, secondary byte) error {
	if primary%linesPerChip != 0 {
		return fmt.Errorf("%w: primary 0x%02x", ErrBadOffset, primary)
	}
	if secondary%linesPerChip != 0 {
		return fmt.Errorf("%w: secondary 0x%02x", ErrBadOffset, secondary)
	}
	// Aligned eight-vector blocks can only overlap by being equal.
	if primary == secondary {
		return fmt.Errorf("%w: both 0x%02x", ErrOffsetsOverlap, primary)
	}
	return nil
}

// Primary returns the handle for the first chip.
func (p *ChainedPICs) Primary() Controller { return p.primary }

// Secondary returns the handle for the chained chip.
func (p *ChainedPICs) Secondary() Controller { return p.secondary }

// Initialized reports whether Initialize has completed.
func (p *ChainedPICs) Initialized() bool { return p.initialized }

// Initialize drives both chips through the four-byte setup handshake:
// start command, vector base, cascade wiring, operating mode. The steps
// are interleaved between the chips, and every configuration write is
// preceded by a write to the delay port because older chips need time to
// latch each configuration byte. The interrupt masks in effect before the
// handshake are read first and restored afterwards, without delay writes.
//
// Call it exactly once, before interrupts are enabled; a second call
// returns ErrAlreadyInitialized. A bus failure aborts mid-sequence and
// leaves the chips in an unspecified state.
func (p *ChainedPICs) Initialize() error {
	if p.initialized {
		return ErrAlreadyInitialized
	}

	savedPrimary, err := p.primary.data.Read()
	if err != nil {
		return fmt.Errorf("pic: save primary mask: %w", err)
	}
	savedSecondary, err := p.secondary.data.Read()
	if err != nil {
		return fmt.Errorf("pic: save secondary mask: %w", err)
	}

	steps := []struct {
		port  pio.Port
		value byte
	}{
		{p.primary.cmd, cmdInitialize},
		{p.secondary.cmd, cmdInitialize},
		{p.primary.data, p.primary.offset},
		{p.secondary.data, p.secondary.offset},
		{p.primary.data, icw3PrimaryCascade},
		{p.secondary.data, icw3SecondaryIdentity},
		{p.primary.data, icw4Mode8086},
		{p.secondary.data, icw4Mode8086},
	}
	for _, s := range steps {
		if err := p.delay.Write(0x00); err != nil {
			return fmt.Errorf("pic: delay write: %w", err)
		}
		if err := s.port.Write(s.value); err != nil {
			return fmt.Errorf("pic: write 0x%02x to port 0x%04x: %w", s.value, s.port.Addr(), err)
		}
	}

	if err := p.primary.data.Write(savedPrimary); err != nil {
		return fmt.Errorf("pic: restore primary mask: %w", err)
	}
	if err := p.secondary.data.Write(savedSecondary); err != nil {
		return fmt.Errorf("pic: restore secondary mask: %w", err)
	}

	p.initialized = true
	return nil
}

// HandlesVector reports whether either chip owns vector. Pure; usable at
// any time.
func (p *ChainedPICs) HandlesVector(vector byte) bool {
	return p.primary.Owns(vector) || p.secondary.Owns(vector)
}

// EndOfInterrupt acknowledges the chip(s) that served vector. A vector
// owned by the secondary acknowledges the secondary first and then the
// primary, whose cascade line carried the episode; acknowledging the
// primary first can mask further secondary interrupts. A vector owned by
// neither chip performs no hardware access.
func (p *ChainedPICs) EndOfInterrupt(vector byte) error {
	if !p.initialized {
		return ErrNotInitialized
	}
	if !p.HandlesVector(vector) {
		return nil
	}
	if p.secondary.Owns(vector) {
		if err := p.secondary.EndOfInterrupt(); err != nil {
			return fmt.Errorf("pic: secondary eoi: %w", err)
		}
	}
	if err := p.primary.EndOfInterrupt(); err != nil {
		return fmt.Errorf("pic: primary eoi: %w", err)
	}
	return nil
}

// ReadIRR returns both chips' interrupt request registers.
func (p *ChainedPICs) ReadIRR() (primary, secondary byte, err error) {
	return p.readRegisters(cmdReadIRR)
}

// ReadISR returns both chips' in-service registers.
func (p *ChainedPICs) ReadISR() (primary, secondary byte, err error) {
	return p.readRegisters(cmdReadISR)
}

func (p *ChainedPICs) readRegisters(ocw3 byte) (byte, byte, error) {
	if !p.initialized {
		return 0, 0, ErrNotInitialized
	}
	primary, err := readRegister(p.primary.cmd, ocw3)
	if err != nil {
		return 0, 0, fmt.Errorf("pic: primary register: %w", err)
	}
	secondary, err := readRegister(p.secondary.cmd, ocw3)
	if err != nil {
		return 0, 0, fmt.Errorf("pic: secondary register: %w", err)
	}
	return primary, secondary, nil
}

func readRegister(cmd pio.Port, ocw3 byte) (byte, error) {
	if err := cmd.Write(ocw3); err != nil {
		return 0, err
	}
	return cmd.Read()
}

// HandleSpurious checks whether vector is a spurious line-7 delivery: the
// chip reported its highest vector but never latched the in-service bit,
// which happens when a request drops between assertion and acknowledge.
// A spurious primary interrupt needs no acknowledgment. A spurious
// secondary interrupt still latched the primary's cascade line, so the
// primary alone is acknowledged. Returns true when the vector was
// spurious and fully handled; otherwise the caller proceeds with
// EndOfInterrupt as usual.
func (p *ChainedPICs) HandleSpurious(vector byte) (bool, error) {
	if !p.initialized {
		return false, ErrNotInitialized
	}
	switch vector {
	case p.primary.offset + spuriousLine:
		isr, err := readRegister(p.primary.cmd, cmdReadISR)
		if err != nil {
			return false, fmt.Errorf("pic: primary isr: %w", err)
		}
		return isr&(1<<spuriousLine) == 0, nil
	case p.secondary.offset + spuriousLine:
		isr, err := readRegister(p.secondary.cmd, cmdReadISR)
		if err != nil {
			return false, fmt.Errorf("pic: secondary isr: %w", err)
		}
		if isr&(1<<spuriousLine) != 0 {
			return false, nil
		}
		if err := p.primary.EndOfInterrupt(); err != nil {
			return false, fmt.Errorf("pic: primary eoi: %w", err)
		}
		return true, nil
	default:
		return false, nil
	}
}
