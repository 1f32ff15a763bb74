// Package scenario provides a YAML-driven exercise format for a cascaded
// PIC pair. A scenario programs the chips through the regular driver and
// checks vectors, ownership and register state step by step, either
// against the software chipset or against live hardware.
package scenario

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tinyrange/i8259/internal/pic"
	"github.com/tinyrange/i8259/internal/pio"
	"github.com/tinyrange/i8259/internal/softpic"
)

var errSimulatorOnly = errors.New("step requires the simulator")

// Scenario defines a complete exercise.
type Scenario struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Offsets     Offsets   `yaml:"offsets"`
	Masks       *MaskPair `yaml:"masks,omitempty"`
	Steps       []Step    `yaml:"steps"`
}

// Offsets selects the vector bases programmed during the init step.
type Offsets struct {
	Primary   byte `yaml:"primary"`
	Secondary byte `yaml:"secondary"`
}

// MaskPair holds one mask byte per chip. As a scenario field it sets the
// simulated chipset's initial masks; it never touches live hardware.
type MaskPair struct {
	Primary   byte `yaml:"primary"`
	Secondary byte `yaml:"secondary"`
}

// Step is a single action. Which fields matter depends on Do:
//
//	init            program both chips
//	raise, lower    assert or withdraw request line (simulator only)
//	ack             acknowledge the highest pending request (simulator only)
//	eoi             acknowledge service completion for Vector
//	eoi_last        like eoi, for the vector of the most recent ack
//	spurious        run the spurious line-7 check for Vector
//	owns            query ownership of Vector
//	irr, isr        read both chips' request or in-service registers
//	masks           read both chips' mask bytes from the data ports
type Step struct {
	Do     string  `yaml:"do"`
	Line   uint8   `yaml:"line,omitempty"`
	Vector byte    `yaml:"vector,omitempty"`
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect defines expected step results. Vector and Ok apply to ack,
// Owned to owns, Spurious to spurious, Primary and Secondary to the
// register reads.
type Expect struct {
	Vector    byte `yaml:"vector"`
	Ok        bool `yaml:"ok"`
	Owned     bool `yaml:"owned"`
	Spurious  bool `yaml:"spurious"`
	Primary   byte `yaml:"primary"`
	Secondary byte `yaml:"secondary"`
}

// Load reads a scenario from a YAML file and applies defaults.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: reading %s: %w", path, err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("scenario: parsing %s: %w", path, err)
	}

	if sc.Offsets.Primary == 0 && sc.Offsets.Secondary == 0 {
		sc.Offsets.Primary = pic.DefaultPrimaryOffset
		sc.Offsets.Secondary = pic.DefaultSecondaryOffset
	}
	if len(sc.Steps) == 0 {
		return nil, fmt.Errorf("scenario: %s has no steps", path)
	}
	return &sc, nil
}

// NewSimulation builds the bus a scenario runs against in simulator
// mode: the software chipset and a delay sink behind a mux, fronted by
// a recording tee so the report can carry the transcript.
func (s *Scenario) NewSimulation() (*pio.Recorder, *softpic.Chipset, error) {
	var opts []softpic.Option
	if s.Masks != nil {
		opts = append(opts, softpic.WithMasks(s.Masks.Primary, s.Masks.Secondary))
	}
	model := softpic.NewChipset(opts...)

	mux := pio.NewMux()
	if err := mux.Register(model); err != nil {
		return nil, nil, fmt.Errorf("scenario: %w", err)
	}
	if err := mux.Register(pio.NewDelaySink(pic.DelayPort)); err != nil {
		return nil, nil, fmt.Errorf("scenario: %w", err)
	}
	return pio.NewTee(mux), model, nil
}

// Report describes what a scenario run produced.
type Report struct {
	Name       string            `yaml:"name"`
	Total      int               `yaml:"total"`
	Passed     int               `yaml:"passed"`
	Failed     int               `yaml:"failed"`
	Steps      []StepResult      `yaml:"steps"`
	Transcript []TranscriptEntry `yaml:"transcript,omitempty"`
}

// StepResult records the outcome of one step.
type StepResult struct {
	Step   string `yaml:"step"`
	Passed bool   `yaml:"passed"`
	Error  string `yaml:"error,omitempty"`
}

// TranscriptEntry is one bus access in report form.
type TranscriptEntry struct {
	Op    string `yaml:"op"`
	Port  string `yaml:"port"`
	Value string `yaml:"value"`
}

// Run executes the scenario against bus. model may be nil when running
// against hardware; steps that need the simulator then fail. Structural
// problems (unknown step kinds, invalid offsets) return an error; step
// failures are recorded in the report and the run continues.
func Run(sc *Scenario, bus pio.Bus, model *softpic.Chipset) (*Report, error) {
	pics, err := pic.New(bus, pic.WithVectorOffsets(sc.Offsets.Primary, sc.Offsets.Secondary))
	if err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}

	report := &Report{Name: sc.Name}
	var lastVector byte
	lastAcked := false

	for i, st := range sc.Steps {
		name := fmt.Sprintf("#%d %s", i+1, st.Do)
		var stepErr error

		switch st.Do {
		case "init":
			stepErr = pics.Initialize()
		case "raise":
			if model == nil {
				stepErr = errSimulatorOnly
			} else {
				stepErr = model.RaiseLine(st.Line)
			}
		case "lower":
			if model == nil {
				stepErr = errSimulatorOnly
			} else {
				stepErr = model.LowerLine(st.Line)
			}
		case "ack":
			if model == nil {
				stepErr = errSimulatorOnly
				break
			}
			vec, ok, err := model.Acknowledge()
			if err != nil {
				stepErr = err
				break
			}
			lastVector, lastAcked = vec, true
			if st.Expect != nil && (vec != st.Expect.Vector || ok != st.Expect.Ok) {
				stepErr = fmt.Errorf("got vector 0x%02x ok=%v, want 0x%02x ok=%v",
					vec, ok, st.Expect.Vector, st.Expect.Ok)
			}
		case "eoi":
			stepErr = pics.EndOfInterrupt(st.Vector)
		case "eoi_last":
			if !lastAcked {
				stepErr = fmt.Errorf("no vector acknowledged yet")
			} else {
				stepErr = pics.EndOfInterrupt(lastVector)
			}
		case "spurious":
			spurious, err := pics.HandleSpurious(st.Vector)
			if err != nil {
				stepErr = err
				break
			}
			if st.Expect != nil && spurious != st.Expect.Spurious {
				stepErr = fmt.Errorf("got spurious=%v, want %v", spurious, st.Expect.Spurious)
			}
		case "owns":
			owned := pics.HandlesVector(st.Vector)
			if st.Expect != nil && owned != st.Expect.Owned {
				stepErr = fmt.Errorf("vector 0x%02x: got owned=%v, want %v",
					st.Vector, owned, st.Expect.Owned)
			}
		case "irr":
			stepErr = checkPair(st.Expect)(pics.ReadIRR())
		case "isr":
			stepErr = checkPair(st.Expect)(pics.ReadISR())
		case "masks":
			primary, err := bus.ReadPort8(pic.PrimaryDataPort)
			if err != nil {
				stepErr = err
				break
			}
			secondary, err := bus.ReadPort8(pic.SecondaryDataPort)
			stepErr = checkPair(st.Expect)(primary, secondary, err)
		default:
			return nil, fmt.Errorf("scenario: step %d: unknown action %q", i+1, st.Do)
		}

		result := StepResult{Step: name, Passed: stepErr == nil}
		if stepErr != nil {
			result.Error = stepErr.Error()
			report.Failed++
		} else {
			report.Passed++
		}
		report.Total++
		report.Steps = append(report.Steps, result)
	}

	if rec, ok := bus.(*pio.Recorder); ok {
		for _, a := range rec.Accesses() {
			report.Transcript = append(report.Transcript, TranscriptEntry{
				Op:    a.Op.String(),
				Port:  fmt.Sprintf("0x%04x", a.Port),
				Value: fmt.Sprintf("0x%02x", a.Value),
			})
		}
	}
	return report, nil
}

// checkPair compares a two-register read against an expectation.
func checkPair(want *Expect) func(primary, secondary byte, err error) error {
	return func(primary, secondary byte, err error) error {
		if err != nil {
			return err
		}
		if want == nil {
			return nil
		}
		if primary != want.Primary || secondary != want.Secondary {
			return fmt.Errorf("got 0x%02x/0x%02x, want 0x%02x/0x%02x",
				primary, secondary, want.Primary, want.Secondary)
		}
		return nil
	}
}

// Marshal renders the report as YAML.
func (r *Report) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("scenario: marshaling report: %w", err)
	}
	return data, nil
}
