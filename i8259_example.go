//go:build ignore

// This file demonstrates every public API in the i8259 package.
// It is excluded from the build and serves as a reference and compile-time check.

package main

import (
	"errors"
	"fmt"
	"os"

	i8259 "github.com/tinyrange/i8259"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// =========================================================================
	// Bus backends - everything the driver talks through implements Bus
	// =========================================================================

	// Software chipset and delay sink behind a mux: a complete simulated bus.
	mux := i8259.NewMux()
	model := i8259.NewChipset(i8259.WithMasks(0xfa, 0xff))
	if err := mux.Register(model); err != nil {
		return fmt.Errorf("register chipset: %w", err)
	}
	if err := mux.Register(i8259.NewDelaySink(i8259.DelayPort)); err != nil {
		return fmt.Errorf("register delay sink: %w", err)
	}

	// Recording tee in front of any bus captures the traffic it forwards.
	bus := i8259.NewTee(mux)

	// Standalone recorder: reads consume preloaded values, writes are kept.
	rec := i8259.NewRecorder()
	rec.Preload(i8259.PrimaryDataPort, 0xff)
	rec.Preload(i8259.SecondaryDataPort, 0x00)
	_ = rec

	// Raw hardware access through /dev/port (linux only, needs root).
	if dp, err := i8259.OpenDevPort(); err == nil {
		defer dp.Close()
	} else if errors.Is(err, i8259.ErrDevPortUnsupported) {
		// Not on linux; stay on the simulator.
	}

	// Port handle scoped to one address.
	mask := i8259.NewPort(bus, i8259.PrimaryDataPort)
	_ = mask.Addr()
	_, _ = mask.Read()
	_ = mask.Write(0xfa)

	// Fixed platform addressing.
	_ = i8259.PrimaryCommandPort   // 0x20
	_ = i8259.PrimaryDataPort      // 0x21
	_ = i8259.SecondaryCommandPort // 0xa0
	_ = i8259.SecondaryDataPort    // 0xa1
	_ = i8259.DelayPort            // 0x80
	_ = i8259.TimerVector          // 0x20, line 0 with default offsets

	// =========================================================================
	// New - build the driver for the chip pair
	// =========================================================================
	pics, err := i8259.New(bus, i8259.WithVectorOffsets(
		i8259.DefaultPrimaryOffset,   // 0x20
		i8259.DefaultSecondaryOffset, // 0x28
	))
	if err != nil {
		return fmt.Errorf("new driver: %w", err)
	}

	// =========================================================================
	// Initialize - the full remap handshake with mask save and restore
	// =========================================================================
	// Initialize runs once; a second call returns ErrAlreadyInitialized.
	if err := pics.Initialize(); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	_ = pics.Initialized()

	// Per-chip handles.
	_ = pics.Primary().Offset()     // 0x20
	_ = pics.Secondary().Offset()   // 0x28
	_ = pics.Primary().Owns(0x23)   // true
	_ = pics.Secondary().Owns(0x23) // false

	// =========================================================================
	// Vector ownership and end of interrupt
	// =========================================================================
	_ = pics.HandlesVector(0x2c) // true with the defaults

	// A secondary-owned vector acknowledges the secondary first, then the
	// primary; an unowned vector touches no hardware.
	if err := pics.EndOfInterrupt(0x2c); err != nil {
		return fmt.Errorf("eoi: %w", err)
	}

	// =========================================================================
	// Register reads and spurious detection
	// =========================================================================
	primaryIRR, secondaryIRR, err := pics.ReadIRR()
	if err != nil {
		return fmt.Errorf("read irr: %w", err)
	}
	_, _ = primaryIRR, secondaryIRR

	primaryISR, secondaryISR, err := pics.ReadISR()
	if err != nil {
		return fmt.Errorf("read isr: %w", err)
	}
	_, _ = primaryISR, secondaryISR

	// Line 7 vectors may be spurious; HandleSpurious checks the in-service
	// register and performs whatever acknowledgment the episode needs.
	spurious, err := pics.HandleSpurious(0x27)
	if err != nil {
		return fmt.Errorf("spurious check: %w", err)
	}
	_ = spurious

	// =========================================================================
	// Software chipset - drive interrupt episodes without hardware
	// =========================================================================
	_ = model.RaiseLine(0)
	vector, delivered, err := model.Acknowledge()
	if err != nil {
		return fmt.Errorf("acknowledge: %w", err)
	}
	if delivered {
		_ = pics.EndOfInterrupt(vector)
	}
	_ = model.LowerLine(1)

	_ = model.Initialized()
	_, _ = model.Offsets()
	_, _ = model.Masks()
	_, _ = model.Requested()
	_, _ = model.InService()
	model.Reset()

	// =========================================================================
	// Recorded transcript
	// =========================================================================
	for _, a := range bus.Accesses() {
		if a.Op == i8259.OpWrite {
			fmt.Printf("%s port 0x%04x value 0x%02x\n", a.Op, a.Port, a.Value)
		}
	}
	_ = bus.Writes()
	_ = bus.Len()
	bus.Reset()

	// =========================================================================
	// Sentinel errors
	// =========================================================================
	_ = i8259.ErrNotInitialized
	_ = i8259.ErrAlreadyInitialized
	_ = i8259.ErrBadOffset
	_ = i8259.ErrOffsetsOverlap
	_ = i8259.ErrUnmappedPort
	_ = i8259.ErrDevPortUnsupported

	// =========================================================================
	// Type aliases (for reference)
	// =========================================================================
	var (
		_ i8259.Bus           // port I/O backend
		_ i8259.Port          // single-address handle
		_ i8259.Handler       // mux-registered port device
		_ *i8259.Mux          // port multiplexer
		_ *i8259.DelaySink    // write-absorbing handler
		_ *i8259.Recorder     // transcript bus
		_ i8259.Access        // one recorded access
		_ i8259.AccessOp      // read or write
		_ *i8259.DevPort      // /dev/port bus
		_ *i8259.ChainedPICs  // the driver
		_ i8259.Controller    // per-chip handle
		_ i8259.Option        // driver option
		_ *i8259.Chipset      // software model
		_ i8259.ChipsetOption // chipset option
	)

	return nil
}
