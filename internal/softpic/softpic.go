// Package softpic models the cascaded 8259A pair as an in-process device,
// so port-level code can be exercised end to end without hardware. The
// model is deliberately strict: protocol mistakes that real chips would
// swallow come back as errors.
package softpic

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/tinyrange/i8259/internal/pio"
)

const (
	primaryCommandPort   uint16 = 0x20
	primaryDataPort      uint16 = 0x21
	secondaryCommandPort uint16 = 0xa0
	secondaryDataPort    uint16 = 0xa1

	cascadeLine  = 2
	spuriousLine = 7
)

// handshake tracks progress through the four-byte setup sequence.
type handshake int

const (
	hsIdle handshake = iota
	hsWantVectorBase
	hsWantWiring
	hsWantMode
	hsReady
)

// chip is one modeled 8259A.
type chip struct {
	primary bool

	stage  handshake
	offset byte
	imr    byte
	irr    byte
	isr    byte

	// readISR selects the register returned by command-port reads,
	// as chosen by the last OCW3.
	readISR bool
}

func (c *chip) name() string {
	if c.primary {
		return "primary"
	}
	return "secondary"
}

func (c *chip) writeCommand(value byte) error {
	const icwSelect = 0x10
	if value&icwSelect != 0 {
		if value != 0x11 {
			return fmt.Errorf("softpic: %s: unsupported ICW1 0x%02x", c.name(), value)
		}
		// Starting the handshake clears the mask, request, and
		// in-service registers; callers that care about masks must
		// save them first.
		c.stage = hsWantVectorBase
		c.imr = 0
		c.irr = 0
		c.isr = 0
		c.readISR = false
		return nil
	}
	if c.stage != hsReady {
		return fmt.Errorf("softpic: %s: command 0x%02x during handshake", c.name(), value)
	}
	const ocw3Select = 0x08
	if value&ocw3Select != 0 {
		return c.writeOCW3(value)
	}
	return c.writeOCW2(value)
}

func (c *chip) writeOCW2(value byte) error {
	switch {
	case value == 0x20:
		// Non-specific EOI clears the highest-priority in-service line.
		c.isr &^= lowestSet(c.isr)
		return nil
	case value&0xe0 == 0x60:
		// Specific EOI names the line.
		c.isr &^= 1 << (value & 0x07)
		return nil
	default:
		return fmt.Errorf("softpic: %s: unsupported OCW2 0x%02x", c.name(), value)
	}
}

func (c *chip) writeOCW3(value byte) error {
	const (
		readInService = 0x01
		readRegister  = 0x02
		pollMode      = 0x04
		maskModeSet   = 0x40
	)
	if value&(pollMode|maskModeSet) != 0 {
		return fmt.Errorf("softpic: %s: unsupported OCW3 0x%02x", c.name(), value)
	}
	if value&readRegister != 0 {
		c.readISR = value&readInService != 0
	}
	return nil
}

func (c *chip) readCommand() byte {
	if c.readISR {
		return c.isr
	}
	return c.irr
}

func (c *chip) writeData(value byte) error {
	switch c.stage {
	case hsIdle, hsReady:
		c.imr = value
		return nil
	case hsWantVectorBase:
		if value&0x07 != 0 {
			return fmt.Errorf("softpic: %s: ICW2 0x%02x is not a multiple of 8", c.name(), value)
		}
		c.offset = value
		c.stage = hsWantWiring
		return nil
	case hsWantWiring:
		want := byte(cascadeLine)
		if c.primary {
			want = 1 << cascadeLine
		}
		if value != want {
			return fmt.Errorf("softpic: %s: ICW3 0x%02x, want 0x%02x", c.name(), value, want)
		}
		c.stage = hsWantMode
		return nil
	case hsWantMode:
		if value&0x01 == 0 {
			return fmt.Errorf("softpic: %s: ICW4 0x%02x lacks 8086 mode", c.name(), value)
		}
		c.stage = hsReady
		return nil
	}
	return fmt.Errorf("softpic: %s: unexpected data write 0x%02x", c.name(), value)
}

func (c *chip) readData() byte {
	return c.imr
}

// pending returns the highest-priority unmasked request, if any.
func (c *chip) pending() (uint8, bool) {
	ready := c.irr &^ c.imr
	if ready == 0 {
		return 0, false
	}
	return uint8(bits.TrailingZeros8(ready)), true
}

// acknowledge moves the winning request into the in-service register and
// returns its vector. With nothing pending the chip answers its spurious
// vector and latches nothing.
func (c *chip) acknowledge() (byte, bool) {
	line, ok := c.pending()
	if !ok {
		return c.offset + spuriousLine, false
	}
	bit := byte(1) << line
	c.irr &^= bit
	c.isr |= bit
	return c.offset + line, true
}

// Chipset is the modeled pair wired the PC way: the secondary's interrupt
// output feeds line 2 of the primary. It claims ports 0x20/0x21 and
// 0xA0/0xA1; the delay port is not part of the model.
type Chipset struct {
	mu        sync.Mutex
	primary   chip
	secondary chip

	initialMasks [2]byte
}

// Option customises a Chipset.
type Option func(*Chipset)

// WithMasks sets the interrupt masks the chips power on with.
func WithMasks(primary, secondary byte) Option {
	return func(s *Chipset) {
		s.initialMasks = [2]byte{primary, secondary}
	}
}

// NewChipset returns a powered-on, unconfigured pair.
func NewChipset(opts ...Option) *Chipset {
	s := &Chipset{}
	for _, opt := range opts {
		opt(s)
	}
	s.resetLocked()
	return s
}

func (s *Chipset) resetLocked() {
	s.primary = chip{primary: true, imr: s.initialMasks[0]}
	s.secondary = chip{imr: s.initialMasks[1]}
}

// Reset returns both chips to their power-on state.
func (s *Chipset) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// Ports implements pio.Handler.
func (s *Chipset) Ports() []uint16 {
	return []uint16{primaryCommandPort, primaryDataPort, secondaryCommandPort, secondaryDataPort}
}

// ReadPort implements pio.Handler.
func (s *Chipset) ReadPort(port uint16) (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch port {
	case primaryCommandPort:
		return s.primary.readCommand(), nil
	case primaryDataPort:
		return s.primary.readData(), nil
	case secondaryCommandPort:
		return s.secondary.readCommand(), nil
	case secondaryDataPort:
		return s.secondary.readData(), nil
	default:
		return 0, fmt.Errorf("softpic: invalid read port 0x%04x", port)
	}
}

// WritePort implements pio.Handler.
func (s *Chipset) WritePort(port uint16, value byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch port {
	case primaryCommandPort:
		return s.primary.writeCommand(value)
	case primaryDataPort:
		return s.primary.writeData(value)
	case secondaryCommandPort:
		return s.secondary.writeCommand(value)
	case secondaryDataPort:
		return s.secondary.writeData(value)
	default:
		return fmt.Errorf("softpic: invalid write port 0x%04x", port)
	}
}

// RaiseLine asserts interrupt line n (0-15). Lines 8-15 belong to the
// secondary chip and pulse the primary's cascade line.
func (s *Chipset) RaiseLine(n uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n >= 16 {
		return fmt.Errorf("softpic: no interrupt line %d", n)
	}
	if n >= 8 {
		s.secondary.irr |= 1 << (n - 8)
		// The cascade edge stays latched once seen; that window is
		// what the classic spurious line-15 episode rides through.
		s.primary.irr |= 1 << cascadeLine
		return nil
	}
	s.primary.irr |= 1 << n
	return nil
}

// LowerLine withdraws a request before it has been acknowledged. The
// primary's cascade latch is left alone.
func (s *Chipset) LowerLine(n uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n >= 16 {
		return fmt.Errorf("softpic: no interrupt line %d", n)
	}
	if n >= 8 {
		s.secondary.irr &^= 1 << (n - 8)
		return nil
	}
	s.primary.irr &^= 1 << n
	return nil
}

// Acknowledge models the CPU interrupt acknowledge cycle: the primary
// resolves its highest-priority request, deferring to the secondary when
// the cascade line won. ok is false when the delivered vector was
// spurious, which happens when every implicated request was withdrawn
// before the cycle.
func (s *Chipset) Acknowledge() (vector byte, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.primary.stage != hsReady || s.secondary.stage != hsReady {
		return 0, false, fmt.Errorf("softpic: acknowledge before configuration finished")
	}
	vec, ok := s.primary.acknowledge()
	if !ok {
		return vec, false, nil
	}
	if vec != s.primary.offset+cascadeLine {
		return vec, true, nil
	}
	vec, ok = s.secondary.acknowledge()
	return vec, ok, nil
}

// Initialized reports whether both chips completed the setup handshake.
func (s *Chipset) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.primary.stage == hsReady && s.secondary.stage == hsReady
}

// Offsets returns both chips' configured vector bases.
func (s *Chipset) Offsets() (primary, secondary byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.primary.offset, s.secondary.offset
}

// Masks returns both chips' interrupt mask registers.
func (s *Chipset) Masks() (primary, secondary byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.primary.imr, s.secondary.imr
}

// Requested returns both chips' request registers.
func (s *Chipset) Requested() (primary, secondary byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.primary.irr, s.secondary.irr
}

// InService returns both chips' in-service registers.
func (s *Chipset) InService() (primary, secondary byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.primary.isr, s.secondary.isr
}

func lowestSet(b byte) byte {
	if b == 0 {
		return 0
	}
	return 1 << bits.TrailingZeros8(b)
}

var _ pio.Handler = (*Chipset)(nil)
