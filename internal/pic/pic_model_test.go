package pic

import (
	"testing"

	"github.com/tinyrange/i8259/internal/pio"
	"github.com/tinyrange/i8259/internal/softpic"
)

// modelRig wires the driver to the software chipset the same way
// picprobe does in simulator mode: chipset and delay sink behind a
// mux, with a recording tee in front so tests can inspect traffic.
type modelRig struct {
	pics  *ChainedPICs
	model *softpic.Chipset
	rec   *pio.Recorder
	delay *pio.DelaySink
}

func newModelRig(t *testing.T, opts ...softpic.Option) *modelRig {
	mux := pio.NewMux()
	model := softpic.NewChipset(opts...)
	delay := pio.NewDelaySink(DelayPort)
	if err := mux.Register(model); err != nil {
		t.Fatalf("register chipset: %v", err)
	}
	if err := mux.Register(delay); err != nil {
		t.Fatalf("register delay sink: %v", err)
	}
	rec := pio.NewTee(mux)
	pics, err := New(rec)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return &modelRig{pics: pics, model: model, rec: rec, delay: delay}
}

func initializedModelRig(t *testing.T, opts ...softpic.Option) *modelRig {
	rig := newModelRig(t, opts...)
	if err := rig.pics.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	rig.rec.Reset()
	return rig
}

func TestInitializeProgramsModel(t *testing.T) {
	rig := newModelRig(t, softpic.WithMasks(0xff, 0x00))
	if err := rig.pics.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if !rig.model.Initialized() {
		t.Fatalf("chipset did not accept the handshake")
	}
	primary, secondary := rig.model.Offsets()
	if primary != 0x20 || secondary != 0x28 {
		t.Fatalf("chipset offsets 0x%02x/0x%02x, want 0x20/0x28", primary, secondary)
	}
	primary, secondary = rig.model.Masks()
	if primary != 0xff || secondary != 0x00 {
		t.Fatalf("masks 0x%02x/0x%02x after init, want 0xff/0x00", primary, secondary)
	}
	if got := rig.delay.Writes(); got != 8 {
		t.Fatalf("%d delay writes, want 8", got)
	}
}

func TestInitializeProgramsModelOffsets(t *testing.T) {
	mux := pio.NewMux()
	model := softpic.NewChipset()
	if err := mux.Register(model); err != nil {
		t.Fatalf("register chipset: %v", err)
	}
	if err := mux.Register(pio.NewDelaySink(DelayPort)); err != nil {
		t.Fatalf("register delay sink: %v", err)
	}
	pics, err := New(mux, WithVectorOffsets(0x40, 0x48))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := pics.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	primary, secondary := model.Offsets()
	if primary != 0x40 || secondary != 0x48 {
		t.Fatalf("chipset offsets 0x%02x/0x%02x, want 0x40/0x48", primary, secondary)
	}
}

func TestDriverServicesPrimaryInterrupt(t *testing.T) {
	rig := initializedModelRig(t)
	if err := rig.model.RaiseLine(0); err != nil {
		t.Fatalf("raise failed: %v", err)
	}

	vec, ok, err := rig.model.Acknowledge()
	if err != nil {
		t.Fatalf("acknowledge failed: %v", err)
	}
	if !ok || vec != 0x20 {
		t.Fatalf("acknowledge returned 0x%x, ok=%v", vec, ok)
	}
	if !rig.pics.HandlesVector(vec) {
		t.Fatalf("driver does not own vector 0x%x", vec)
	}

	if err := rig.pics.EndOfInterrupt(vec); err != nil {
		t.Fatalf("EOI failed: %v", err)
	}
	primaryISR, secondaryISR := rig.model.InService()
	if primaryISR != 0 || secondaryISR != 0 {
		t.Fatalf("ISR 0x%02x/0x%02x after EOI", primaryISR, secondaryISR)
	}
}

func TestDriverServicesSecondaryInterrupt(t *testing.T) {
	rig := initializedModelRig(t)
	if err := rig.model.RaiseLine(12); err != nil {
		t.Fatalf("raise failed: %v", err)
	}

	vec, ok, err := rig.model.Acknowledge()
	if err != nil {
		t.Fatalf("acknowledge failed: %v", err)
	}
	if !ok || vec != 0x2c {
		t.Fatalf("acknowledge returned 0x%x, ok=%v", vec, ok)
	}

	if err := rig.pics.EndOfInterrupt(vec); err != nil {
		t.Fatalf("EOI failed: %v", err)
	}
	primaryISR, secondaryISR := rig.model.InService()
	if primaryISR != 0 || secondaryISR != 0 {
		t.Fatalf("ISR 0x%02x/0x%02x after EOI, want both clear", primaryISR, secondaryISR)
	}
}

func TestDriverReadsModelRegisters(t *testing.T) {
	rig := initializedModelRig(t)
	if err := rig.model.RaiseLine(3); err != nil {
		t.Fatalf("raise failed: %v", err)
	}
	if err := rig.model.RaiseLine(9); err != nil {
		t.Fatalf("raise failed: %v", err)
	}

	primaryIRR, secondaryIRR, err := rig.pics.ReadIRR()
	if err != nil {
		t.Fatalf("ReadIRR failed: %v", err)
	}
	// Line 9 also latches the primary's cascade request.
	if primaryIRR != 0x0c || secondaryIRR != 0x02 {
		t.Fatalf("IRR 0x%02x/0x%02x, want 0x0c/0x02", primaryIRR, secondaryIRR)
	}

	primaryISR, secondaryISR, err := rig.pics.ReadISR()
	if err != nil {
		t.Fatalf("ReadISR failed: %v", err)
	}
	if primaryISR != 0 || secondaryISR != 0 {
		t.Fatalf("ISR 0x%02x/0x%02x before acknowledge", primaryISR, secondaryISR)
	}

	// Line 2 carries the cascade and outranks line 3, so the next
	// acknowledge resolves through the secondary.
	vec, ok, err := rig.model.Acknowledge()
	if err != nil {
		t.Fatalf("acknowledge failed: %v", err)
	}
	if !ok || vec != 0x29 {
		t.Fatalf("acknowledge returned 0x%x, ok=%v, want 0x29", vec, ok)
	}
	primaryISR, secondaryISR, err = rig.pics.ReadISR()
	if err != nil {
		t.Fatalf("ReadISR failed: %v", err)
	}
	if primaryISR != 0x04 || secondaryISR != 0x02 {
		t.Fatalf("ISR 0x%02x/0x%02x, want 0x04/0x02", primaryISR, secondaryISR)
	}
}

func TestDriverHandlesSpuriousPrimary(t *testing.T) {
	rig := initializedModelRig(t)
	if err := rig.model.RaiseLine(7); err != nil {
		t.Fatalf("raise failed: %v", err)
	}
	if err := rig.model.LowerLine(7); err != nil {
		t.Fatalf("lower failed: %v", err)
	}

	vec, ok, err := rig.model.Acknowledge()
	if err != nil {
		t.Fatalf("acknowledge failed: %v", err)
	}
	if ok || vec != 0x27 {
		t.Fatalf("acknowledge returned 0x%x, ok=%v, want spurious 0x27", vec, ok)
	}

	rig.rec.Reset()
	spurious, err := rig.pics.HandleSpurious(vec)
	if err != nil {
		t.Fatalf("HandleSpurious failed: %v", err)
	}
	if !spurious {
		t.Fatalf("vector 0x%x not reported spurious", vec)
	}
	// Checking the ISR is the only traffic; no EOI goes out.
	expectAccesses(t, rig.rec, []pio.Access{
		{Op: pio.OpWrite, Port: PrimaryCommandPort, Value: 0x0b},
		{Op: pio.OpRead, Port: PrimaryCommandPort, Value: 0x00},
	})
}

func TestDriverHandlesSpuriousSecondary(t *testing.T) {
	rig := initializedModelRig(t)
	if err := rig.model.RaiseLine(15); err != nil {
		t.Fatalf("raise failed: %v", err)
	}
	if err := rig.model.LowerLine(15); err != nil {
		t.Fatalf("lower failed: %v", err)
	}

	vec, ok, err := rig.model.Acknowledge()
	if err != nil {
		t.Fatalf("acknowledge failed: %v", err)
	}
	if ok || vec != 0x2f {
		t.Fatalf("acknowledge returned 0x%x, ok=%v, want spurious 0x2f", vec, ok)
	}

	rig.rec.Reset()
	spurious, err := rig.pics.HandleSpurious(vec)
	if err != nil {
		t.Fatalf("HandleSpurious failed: %v", err)
	}
	if !spurious {
		t.Fatalf("vector 0x%x not reported spurious", vec)
	}
	// The cascade latched on the primary, so one primary EOI goes out.
	expectAccesses(t, rig.rec, []pio.Access{
		{Op: pio.OpWrite, Port: SecondaryCommandPort, Value: 0x0b},
		{Op: pio.OpRead, Port: SecondaryCommandPort, Value: 0x00},
		{Op: pio.OpWrite, Port: PrimaryCommandPort, Value: 0x20},
	})
	primaryISR, secondaryISR := rig.model.InService()
	if primaryISR != 0 || secondaryISR != 0 {
		t.Fatalf("ISR 0x%02x/0x%02x after spurious handling", primaryISR, secondaryISR)
	}
}
