package i8259_test

import (
	"errors"
	"testing"

	i8259 "github.com/tinyrange/i8259"
)

func newSimulation(t *testing.T, opts ...i8259.ChipsetOption) (*i8259.Recorder, *i8259.Chipset) {
	mux := i8259.NewMux()
	model := i8259.NewChipset(opts...)
	if err := mux.Register(model); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := mux.Register(i8259.NewDelaySink(i8259.DelayPort)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return i8259.NewTee(mux), model
}

func TestEndToEnd(t *testing.T) {
	bus, model := newSimulation(t, i8259.WithMasks(0xfa, 0x8f))

	pics, err := i8259.New(bus)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := pics.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if !model.Initialized() {
		t.Fatal("chipset not programmed after Initialize")
	}
	primary, secondary := model.Masks()
	if primary != 0xfa || secondary != 0x8f {
		t.Errorf("masks after init = 0x%02x/0x%02x, want 0xfa/0x8f", primary, secondary)
	}

	// Service one line on each chip.
	if err := model.RaiseLine(0); err != nil {
		t.Fatalf("RaiseLine() error = %v", err)
	}
	vec, ok, err := model.Acknowledge()
	if err != nil {
		t.Fatalf("Acknowledge() error = %v", err)
	}
	if !ok || vec != 0x20 {
		t.Fatalf("Acknowledge() = 0x%x, %v, want 0x20, true", vec, ok)
	}
	if !pics.HandlesVector(vec) {
		t.Errorf("HandlesVector(0x%x) = false, want true", vec)
	}
	if err := pics.EndOfInterrupt(vec); err != nil {
		t.Fatalf("EndOfInterrupt() error = %v", err)
	}

	if err := model.RaiseLine(12); err != nil {
		t.Fatalf("RaiseLine() error = %v", err)
	}
	vec, ok, err = model.Acknowledge()
	if err != nil {
		t.Fatalf("Acknowledge() error = %v", err)
	}
	if !ok || vec != 0x2c {
		t.Fatalf("Acknowledge() = 0x%x, %v, want 0x2c, true", vec, ok)
	}
	if err := pics.EndOfInterrupt(vec); err != nil {
		t.Fatalf("EndOfInterrupt() error = %v", err)
	}
	primaryISR, secondaryISR := model.InService()
	if primaryISR != 0 || secondaryISR != 0 {
		t.Errorf("InService() = 0x%02x/0x%02x after EOI, want clear", primaryISR, secondaryISR)
	}

	// A request that drops before acknowledge comes back as the
	// secondary's line 7 vector and needs only the primary EOI.
	if err := model.RaiseLine(15); err != nil {
		t.Fatalf("RaiseLine() error = %v", err)
	}
	if err := model.LowerLine(15); err != nil {
		t.Fatalf("LowerLine() error = %v", err)
	}
	vec, ok, err = model.Acknowledge()
	if err != nil {
		t.Fatalf("Acknowledge() error = %v", err)
	}
	if ok || vec != 0x2f {
		t.Fatalf("Acknowledge() = 0x%x, %v, want spurious 0x2f", vec, ok)
	}
	spurious, err := pics.HandleSpurious(vec)
	if err != nil {
		t.Fatalf("HandleSpurious() error = %v", err)
	}
	if !spurious {
		t.Error("HandleSpurious(0x2f) = false, want true")
	}
	primaryISR, secondaryISR = model.InService()
	if primaryISR != 0 || secondaryISR != 0 {
		t.Errorf("InService() = 0x%02x/0x%02x after spurious handling", primaryISR, secondaryISR)
	}

	t.Logf("recorded %d bus accesses", bus.Len())
}

func TestNew(t *testing.T) {
	if _, err := i8259.New(nil); err == nil {
		t.Fatal("New(nil) succeeded, want error")
	}

	pics, err := i8259.New(i8259.NewRecorder())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if pics == nil {
		t.Fatal("New() returned nil")
	}
	if pics.Initialized() {
		t.Error("driver reports initialized before Initialize")
	}
}

func TestVectorOffsetValidation(t *testing.T) {
	rec := i8259.NewRecorder()

	if _, err := i8259.New(rec, i8259.WithVectorOffsets(0x21, 0x28)); !errors.Is(err, i8259.ErrBadOffset) {
		t.Errorf("unaligned offset error = %v, want ErrBadOffset", err)
	}
	if _, err := i8259.New(rec, i8259.WithVectorOffsets(0x40, 0x40)); !errors.Is(err, i8259.ErrOffsetsOverlap) {
		t.Errorf("equal offsets error = %v, want ErrOffsetsOverlap", err)
	}
}

func TestOwnership(t *testing.T) {
	pics, err := i8259.New(i8259.NewRecorder())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	cases := []struct {
		vector byte
		owned  bool
	}{
		{0x1f, false},
		{0x20, true},
		{0x27, true},
		{0x28, true},
		{0x2f, true},
		{0x30, false},
	}
	for _, tc := range cases {
		if got := pics.HandlesVector(tc.vector); got != tc.owned {
			t.Errorf("HandlesVector(0x%02x) = %v, want %v", tc.vector, got, tc.owned)
		}
	}

	if !pics.Primary().Owns(0x23) || pics.Primary().Owns(0x2b) {
		t.Error("primary ownership split wrong")
	}
	if !pics.Secondary().Owns(0x2b) || pics.Secondary().Owns(0x23) {
		t.Error("secondary ownership split wrong")
	}
}

func TestOptions(t *testing.T) {
	// Verify options satisfy their option types
	var _ i8259.Option = i8259.WithVectorOffsets(0x40, 0x48)
	var _ i8259.ChipsetOption = i8259.WithMasks(0xff, 0xff)
}

func TestOpenDevPort(t *testing.T) {
	dp, err := i8259.OpenDevPort()
	if err != nil {
		if errors.Is(err, i8259.ErrDevPortUnsupported) {
			t.Skip("Skipping: /dev/port is not supported on this platform")
		}
		t.Skipf("Skipping: /dev/port unavailable: %v", err)
	}
	dp.Close()
}
