package pio

import "fmt"

// Handler serves reads and writes for the fixed set of ports a device
// model claims.
type Handler interface {
	Ports() []uint16
	ReadPort(port uint16) (byte, error)
	WritePort(port uint16, value byte) error
}

// Mux dispatches bus accesses to registered handlers by port number.
type Mux struct {
	handlers map[uint16]Handler
}

// NewMux returns an empty Mux.
func NewMux() *Mux {
	return &Mux{handlers: make(map[uint16]Handler)}
}

// Register claims every port the handler reports. Overlapping claims are
// rejected.
func (m *Mux) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("pio: handler is nil")
	}
	ports := h.Ports()
	if len(ports) == 0 {
		return fmt.Errorf("pio: handler claims no ports")
	}
	for _, port := range ports {
		if _, exists := m.handlers[port]; exists {
			return fmt.Errorf("pio: port 0x%04x already registered", port)
		}
	}
	for _, port := range ports {
		m.handlers[port] = h
	}
	return nil
}

// ReadPort8 implements Bus.
func (m *Mux) ReadPort8(port uint16) (byte, error) {
	h, ok := m.handlers[port]
	if !ok {
		return 0, fmt.Errorf("pio: read port 0x%04x: %w", port, ErrUnmappedPort)
	}
	return h.ReadPort(port)
}

// WritePort8 implements Bus.
func (m *Mux) WritePort8(port uint16, value byte) error {
	h, ok := m.handlers[port]
	if !ok {
		return fmt.Errorf("pio: write port 0x%04x: %w", port, ErrUnmappedPort)
	}
	return h.WritePort(port, value)
}

var _ Bus = (*Mux)(nil)

// DelaySink claims a single port and discards everything written to it.
// It stands in for the POST diagnostic port that initialization sequences
// use as a write-only timing target.
type DelaySink struct {
	port   uint16
	writes int
}

// NewDelaySink returns a sink for port.
func NewDelaySink(port uint16) *DelaySink {
	return &DelaySink{port: port}
}

// Ports implements Handler.
func (s *DelaySink) Ports() []uint16 { return []uint16{s.port} }

// ReadPort implements Handler.
func (s *DelaySink) ReadPort(port uint16) (byte, error) { return 0, nil }

// WritePort implements Handler.
func (s *DelaySink) WritePort(port uint16, value byte) error {
	s.writes++
	return nil
}

// Writes returns how many writes the sink has absorbed.
func (s *DelaySink) Writes() int { return s.writes }

var _ Handler = (*DelaySink)(nil)
