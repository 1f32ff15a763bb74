package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/tinyrange/i8259/internal/pic"
	"github.com/tinyrange/i8259/internal/pio"
	"github.com/tinyrange/i8259/internal/softpic"
)

var commands = []struct{ name, help string }{
	{"init", "program both chips with the default offsets"},
	{"owns <vector>", "report which chip owns a vector"},
	{"eoi <vector>", "send end of interrupt for a vector"},
	{"spurious <vector>", "check and handle a spurious line 7 vector"},
	{"irr", "read both request registers"},
	{"isr", "read both in-service registers"},
	{"masks", "read both mask registers"},
	{"raise <line>", "assert request line 0-15 (simulator)"},
	{"lower <line>", "withdraw request line 0-15 (simulator)"},
	{"ack", "acknowledge the highest pending request (simulator)"},
	{"reset", "reset the chipset and the transcript (simulator)"},
	{"transcript [n]", "show the last n recorded bus accesses"},
	{"help", "show this help"},
	{"quit", "leave the monitor"},
}

func printHelp(w io.Writer) {
	for _, c := range commands {
		fmt.Fprintf(w, "  %-20s %s\n", c.name, c.help)
	}
}

// monitor holds the session state shared by every command.
type monitor struct {
	bus   *pio.Recorder
	pics  *pic.ChainedPICs
	model *softpic.Chipset // nil with -port
	line  *liner.State
}

var errSimulatorOnly = errors.New("simulator only; not available with -port")

func run() error {
	usePort := flag.Bool("port", false, "drive live hardware through /dev/port instead of the simulator")
	dbg := flag.Bool("debug", false, "enable debug logging")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `picmon - interactive monitor for the cascaded 8259 pair

USAGE:
  picmon [flags]

Runs a command loop against the built-in software chipset, or against
live hardware with -port (/dev/port, needs root). Vectors and lines
accept decimal or 0x-prefixed hex.

COMMANDS:
`)
		printHelp(os.Stderr)
		fmt.Fprintf(os.Stderr, "\nFLAGS:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	level := slog.LevelInfo
	if *dbg {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	var (
		backing pio.Bus
		model   *softpic.Chipset
	)
	if *usePort {
		dp, err := pio.OpenDevPort()
		if err != nil {
			return fmt.Errorf("open /dev/port: %w", err)
		}
		defer dp.Close()
		backing = dp
	} else {
		mux := pio.NewMux()
		model = softpic.NewChipset()
		if err := mux.Register(model); err != nil {
			return err
		}
		if err := mux.Register(pio.NewDelaySink(pic.DelayPort)); err != nil {
			return err
		}
		backing = mux
	}

	bus := pio.NewTee(backing)
	pics, err := pic.New(bus)
	if err != nil {
		return err
	}
	mon := &monitor{bus: bus, pics: pics, model: model}

	line := liner.NewLiner()
	defer line.Close()
	mon.line = line

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(prefix string) []string {
		var out []string
		for _, c := range commands {
			name, _, _ := strings.Cut(c.name, " ")
			if strings.HasPrefix(name, prefix) {
				out = append(out, name)
			}
		}
		return out
	})

	if model != nil {
		fmt.Println("picmon: software chipset; type help for commands")
	} else {
		fmt.Println("picmon: live hardware via /dev/port; type help for commands")
	}

	for {
		input, err := line.Prompt("picmon> ")
		if err == nil {
			line.AppendHistory(input)
			quit, err := mon.dispatch(input)
			if err != nil {
				fmt.Println("Error: " + err.Error())
			}
			if quit {
				return nil
			}
			continue
		}

		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return nil
		}
		slog.Error("error reading line: " + err.Error())
	}
}

func (m *monitor) dispatch(input string) (bool, error) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help":
		printHelp(os.Stdout)
		return false, nil
	case "quit", "exit":
		return true, nil
	case "init":
		return false, m.cmdInit()
	case "owns":
		return false, m.cmdOwns(args)
	case "eoi":
		return false, m.cmdEOI(args)
	case "spurious":
		return false, m.cmdSpurious(args)
	case "irr":
		return false, m.cmdRegisters("irr")
	case "isr":
		return false, m.cmdRegisters("isr")
	case "masks":
		return false, m.cmdMasks()
	case "raise", "lower":
		return false, m.cmdLine(cmd, args)
	case "ack":
		return false, m.cmdAck()
	case "reset":
		return false, m.cmdReset()
	case "transcript":
		return false, m.cmdTranscript(args)
	default:
		return false, fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

func parseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("bad value %q", s)
	}
	return byte(v), nil
}

func (m *monitor) cmdInit() error {
	if m.model == nil {
		fmt.Println("This reprograms the live chips and changes where interrupts land.")
		answer, err := m.line.Prompt("Type yes to continue: ")
		if err != nil {
			return err
		}
		if strings.TrimSpace(answer) != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}
	if err := m.pics.Initialize(); err != nil {
		return err
	}
	fmt.Printf("programmed: primary 0x%02x, secondary 0x%02x\n",
		m.pics.Primary().Offset(), m.pics.Secondary().Offset())
	return nil
}

func (m *monitor) cmdOwns(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: owns <vector>")
	}
	vec, err := parseByte(args[0])
	if err != nil {
		return err
	}
	switch {
	case m.pics.Primary().Owns(vec):
		fmt.Printf("0x%02x: primary, line %d\n", vec, vec-m.pics.Primary().Offset())
	case m.pics.Secondary().Owns(vec):
		fmt.Printf("0x%02x: secondary, line %d\n", vec, vec-m.pics.Secondary().Offset()+8)
	default:
		fmt.Printf("0x%02x: not owned\n", vec)
	}
	return nil
}

func (m *monitor) cmdEOI(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: eoi <vector>")
	}
	vec, err := parseByte(args[0])
	if err != nil {
		return err
	}
	if !m.pics.HandlesVector(vec) {
		fmt.Printf("0x%02x: not owned, nothing sent\n", vec)
		return nil
	}
	if err := m.pics.EndOfInterrupt(vec); err != nil {
		return err
	}
	fmt.Println("eoi sent")
	return nil
}

func (m *monitor) cmdSpurious(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: spurious <vector>")
	}
	vec, err := parseByte(args[0])
	if err != nil {
		return err
	}
	spurious, err := m.pics.HandleSpurious(vec)
	if err != nil {
		return err
	}
	if spurious {
		fmt.Printf("0x%02x was spurious and is handled\n", vec)
	} else {
		fmt.Printf("0x%02x is not spurious; service it and send eoi\n", vec)
	}
	return nil
}

func (m *monitor) cmdRegisters(which string) error {
	var primary, secondary byte
	var err error
	if which == "irr" {
		primary, secondary, err = m.pics.ReadIRR()
	} else {
		primary, secondary, err = m.pics.ReadISR()
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s: primary=0x%02x secondary=0x%02x\n", which, primary, secondary)
	return nil
}

func (m *monitor) cmdMasks() error {
	primary, err := m.bus.ReadPort8(pic.PrimaryDataPort)
	if err != nil {
		return err
	}
	secondary, err := m.bus.ReadPort8(pic.SecondaryDataPort)
	if err != nil {
		return err
	}
	fmt.Printf("masks: primary=0x%02x secondary=0x%02x\n", primary, secondary)
	return nil
}

func (m *monitor) cmdLine(verb string, args []string) error {
	if m.model == nil {
		return errSimulatorOnly
	}
	if len(args) != 1 {
		return fmt.Errorf("usage: %s <line>", verb)
	}
	n, err := parseByte(args[0])
	if err != nil {
		return err
	}
	if verb == "raise" {
		if err := m.model.RaiseLine(n); err != nil {
			return err
		}
		fmt.Printf("line %d raised\n", n)
	} else {
		if err := m.model.LowerLine(n); err != nil {
			return err
		}
		fmt.Printf("line %d lowered\n", n)
	}
	return nil
}

func (m *monitor) cmdAck() error {
	if m.model == nil {
		return errSimulatorOnly
	}
	vec, ok, err := m.model.Acknowledge()
	if err != nil {
		return err
	}
	if ok {
		fmt.Printf("vector 0x%02x\n", vec)
	} else {
		fmt.Printf("spurious vector 0x%02x (no request pending)\n", vec)
	}
	return nil
}

func (m *monitor) cmdReset() error {
	if m.model == nil {
		return errSimulatorOnly
	}
	m.model.Reset()
	pics, err := pic.New(m.bus)
	if err != nil {
		return err
	}
	m.pics = pics
	m.bus.Reset()
	fmt.Println("chipset and transcript reset")
	return nil
}

func (m *monitor) cmdTranscript(args []string) error {
	accesses := m.bus.Accesses()
	n := len(accesses)
	switch len(args) {
	case 0:
	case 1:
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 0 {
			return fmt.Errorf("bad count %q", args[0])
		}
		if v < n {
			n = v
		}
	default:
		return fmt.Errorf("usage: transcript [n]")
	}
	for _, a := range accesses[len(accesses)-n:] {
		fmt.Printf("%-5s 0x%04x 0x%02x\n", a.Op, a.Port, a.Value)
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "picmon: %v\n", err)
		os.Exit(1)
	}
}
