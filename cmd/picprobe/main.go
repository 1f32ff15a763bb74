package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/tinyrange/i8259/internal/pic"
	"github.com/tinyrange/i8259/internal/pio"
	"github.com/tinyrange/i8259/internal/scenario"
	"github.com/tinyrange/i8259/internal/softpic"
)

func run() error {
	scenarioPath := flag.String("scenario", "", "run a YAML scenario instead of the default probe")
	backend := flag.String("backend", "sim", "bus backend: sim or port")
	format := flag.String("format", "", "output format: text or yaml (default: text on a terminal, yaml otherwise)")
	allowInit := flag.Bool("allow-init", false, "allow scenarios to reprogram live hardware")
	dbg := flag.Bool("debug", false, "enable debug logging")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `picprobe - probe the cascaded 8259 pair or run a scenario against it

USAGE:
  picprobe [flags]

The default probe dumps each chip's mask, request, and in-service
registers. The sim backend runs against the built-in software chipset;
the port backend goes through /dev/port and needs root.

A scenario (see -scenario) programs the chips through the regular
driver and checks vectors, ownership, and register state step by step.
On the port backend a scenario containing an init step is refused
unless -allow-init is set, because reprogramming live chips changes
where the machine's interrupts land.

EXAMPLES:
  picprobe                                 probe the software chipset
  picprobe -backend port                   probe live hardware
  picprobe -scenario cascade.yaml          run a scenario on the simulator
  picprobe -scenario x.yaml -format yaml   machine-readable report
  picprobe -backend port -scenario x.yaml -allow-init

FLAGS:
`)
		flag.PrintDefaults()
	}
	flag.Parse()

	level := slog.LevelInfo
	if *dbg {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *format == "" {
		if term.IsTerminal(int(os.Stdout.Fd())) {
			*format = "text"
		} else {
			*format = "yaml"
		}
	}
	if *format != "text" && *format != "yaml" {
		return fmt.Errorf("unknown format %q", *format)
	}

	if *scenarioPath != "" {
		return runScenario(*scenarioPath, *backend, *format, *allowInit)
	}
	return runProbe(*backend, *format)
}

func runScenario(path, backend, format string, allowInit bool) error {
	sc, err := scenario.Load(path)
	if err != nil {
		return err
	}

	var (
		bus   *pio.Recorder
		model *softpic.Chipset
	)
	switch backend {
	case "sim":
		bus, model, err = sc.NewSimulation()
		if err != nil {
			return err
		}
	case "port":
		if !allowInit {
			for _, st := range sc.Steps {
				if st.Do == "init" {
					return fmt.Errorf("scenario %s reprograms the chips; pass -allow-init to run it on hardware", path)
				}
			}
		}
		dp, err := pio.OpenDevPort()
		if err != nil {
			return fmt.Errorf("open /dev/port: %w", err)
		}
		defer dp.Close()
		bus = pio.NewTee(dp)
	default:
		return fmt.Errorf("unknown backend %q", backend)
	}

	slog.Debug("running scenario", "name", sc.Name, "steps", len(sc.Steps), "backend", backend)

	report, err := scenario.Run(sc, bus, model)
	if err != nil {
		return err
	}

	if format == "yaml" {
		data, err := report.Marshal()
		if err != nil {
			return err
		}
		os.Stdout.Write(data)
	} else {
		printReport(report)
	}

	if report.Failed > 0 {
		return fmt.Errorf("%d of %d steps failed", report.Failed, report.Total)
	}
	return nil
}

func printReport(r *scenario.Report) {
	fmt.Printf("scenario: %s\n", r.Name)
	for _, st := range r.Steps {
		if st.Passed {
			fmt.Printf("  ok   %s\n", st.Step)
		} else {
			fmt.Printf("  FAIL %s: %s\n", st.Step, st.Error)
		}
	}
	fmt.Printf("%d steps, %d passed, %d failed\n", r.Total, r.Passed, r.Failed)
}

type probeReport struct {
	Backend   string     `yaml:"backend"`
	Primary   chipReport `yaml:"primary"`
	Secondary chipReport `yaml:"secondary"`
}

type chipReport struct {
	Mask  string `yaml:"mask,omitempty"`
	IRR   string `yaml:"irr,omitempty"`
	ISR   string `yaml:"isr,omitempty"`
	Error string `yaml:"error,omitempty"`
}

func runProbe(backend, format string) error {
	var bus pio.Bus
	switch backend {
	case "sim":
		mux := pio.NewMux()
		if err := mux.Register(softpic.NewChipset()); err != nil {
			return err
		}
		if err := mux.Register(pio.NewDelaySink(pic.DelayPort)); err != nil {
			return err
		}
		// A fresh chipset rejects register reads, so program it first.
		pics, err := pic.New(mux)
		if err != nil {
			return err
		}
		if err := pics.Initialize(); err != nil {
			return err
		}
		slog.Debug("programmed software chipset",
			"primary", fmt.Sprintf("0x%02x", pics.Primary().Offset()),
			"secondary", fmt.Sprintf("0x%02x", pics.Secondary().Offset()))
		bus = mux
	case "port":
		dp, err := pio.OpenDevPort()
		if err != nil {
			if errors.Is(err, pio.ErrDevPortUnsupported) {
				return fmt.Errorf("port backend: %w", err)
			}
			return fmt.Errorf("open /dev/port: %w", err)
		}
		defer dp.Close()
		bus = dp
	default:
		return fmt.Errorf("unknown backend %q", backend)
	}

	report := probeReport{
		Backend:   backend,
		Primary:   probeChip(bus, pic.PrimaryCommandPort, pic.PrimaryDataPort),
		Secondary: probeChip(bus, pic.SecondaryCommandPort, pic.SecondaryDataPort),
	}

	if format == "yaml" {
		data, err := yaml.Marshal(report)
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		os.Stdout.Write(data)
		return nil
	}

	fmt.Printf("backend: %s\n", backend)
	printChip("primary", report.Primary)
	printChip("secondary", report.Secondary)
	return nil
}

func probeChip(bus pio.Bus, cmdPort, dataPort uint16) chipReport {
	var r chipReport

	mask, err := bus.ReadPort8(dataPort)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.Mask = fmt.Sprintf("0x%02x", mask)

	irr, err := readRegister(bus, cmdPort, 0x0a)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.IRR = fmt.Sprintf("0x%02x", irr)

	isr, err := readRegister(bus, cmdPort, 0x0b)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.ISR = fmt.Sprintf("0x%02x", isr)
	return r
}

// readRegister selects a register with OCW3 and reads it back from the
// command port.
func readRegister(bus pio.Bus, cmdPort uint16, ocw3 byte) (byte, error) {
	if err := bus.WritePort8(cmdPort, ocw3); err != nil {
		return 0, err
	}
	return bus.ReadPort8(cmdPort)
}

func printChip(name string, r chipReport) {
	if r.Error != "" {
		fmt.Printf("%-10s error: %s\n", name+":", r.Error)
		return
	}
	fmt.Printf("%-10s mask=%s irr=%s isr=%s\n", name+":", r.Mask, r.IRR, r.ISR)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "picprobe: %v\n", err)
		os.Exit(1)
	}
}
