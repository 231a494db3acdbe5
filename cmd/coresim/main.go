// Command coresim drives the execution engine of a manycore RISC-V
// accelerator emulator: it loads a config and a memory image, runs the
// scheduler to completion or a cycle budget, and reports one of the
// documented exit codes.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/vidas-project/coresim"
)

var (
	configPath  = flag.String("config", "", "YAML chip configuration (shires, topology, boot PCs)")
	imagePath   = flag.String("image", "", "Raw binary to load into MRAM at -load-addr")
	loadAddr    = flag.Uint64("load-addr", 0x4000_0000, "Physical address to load -image at")
	maxCycles   = flag.Uint64("max-cycles", 0, "Stop after N cycles (0 = unlimited, overrides config)")
	dumpAtEnd   = flag.String("dump-at-end", "", "Write the 0x1000 bytes at -load-addr to this path when the run ends")
	interactive = flag.Bool("interactive", false, "Put the terminal in raw mode for the run (restored on exit); no console input is read")
	showVersion = flag.Bool("version", false, "Show version and exit")
)

const version = "0.1.0"

var savedTermState *term.State

func setupTerminal() error {
	if !*interactive || !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil
	}
	state, err := term.GetState(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("get terminal state: %w", err)
	}
	savedTermState = state
	if _, err := term.MakeRaw(int(os.Stdin.Fd())); err != nil {
		return fmt.Errorf("set raw mode: %w", err)
	}
	return nil
}

func restoreTerminal() {
	if savedTermState != nil && term.IsTerminal(int(os.Stdin.Fd())) {
		term.Restore(int(os.Stdin.Fd()), savedTermState)
	}
}

// Exit codes, per spec §6 "Exit codes (of the wrapper)".
const (
	exitSuccess           = 0
	exitMaxCyclesReached  = 1
	exitSleepingHarts     = 2
	exitEmulatorFailed    = 3
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("coresim v%s\n", version)
		os.Exit(exitSuccess)
	}

	cfg := coresim.DefaultConfig()
	if *configPath != "" {
		loaded, err := coresim.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "coresim: %v\n", err)
			os.Exit(exitEmulatorFailed)
		}
		cfg = loaded
	}
	if *maxCycles != 0 {
		cfg.MaxCycles = *maxCycles
	}

	sys := coresim.NewSystem(cfg, nil)

	if *imagePath != "" {
		data, err := os.ReadFile(*imagePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "coresim: reading %s: %v\n", *imagePath, err)
			os.Exit(exitEmulatorFailed)
		}
		if err := sys.Mem.Init(coresim.AgentCLI, *loadAddr, len(data), data); err != nil {
			fmt.Fprintf(os.Stderr, "coresim: loading image: %v\n", err)
			os.Exit(exitEmulatorFailed)
		}
	}

	if err := setupTerminal(); err != nil {
		fmt.Fprintf(os.Stderr, "coresim: %v\n", err)
		os.Exit(exitEmulatorFailed)
	}
	defer restoreTerminal()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		restoreTerminal()
		os.Exit(130)
	}()

	// SIGHUP models an external reset line driven by a host wrapper,
	// distinct from SIGINT/SIGTERM shutdown: it asks the running chip
	// to reset with cause EXTERNAL rather than tearing the process down.
	resetChan := make(chan os.Signal, 1)
	signal.Notify(resetChan, syscall.SIGHUP)
	go func() {
		for range resetChan {
			sys.RequestExternalReset()
		}
	}()

	startTime := time.Now()
	runErr := sys.RunUntilDone()
	elapsed := time.Since(startTime)
	restoreTerminal()

	fmt.Fprintf(os.Stderr, "cycles: %d\n", sys.Cycle())
	fmt.Fprintf(os.Stderr, "elapsed: %v\n", elapsed.Round(time.Millisecond))

	if *dumpAtEnd != "" {
		if err := dumpMRAM(sys, *dumpAtEnd); err != nil {
			fmt.Fprintf(os.Stderr, "coresim: dump-at-end: %v\n", err)
		}
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "coresim: %v\n", runErr)
		if cfg.MaxCycles != 0 && sys.Cycle() >= cfg.MaxCycles {
			os.Exit(exitMaxCyclesReached)
		}
		os.Exit(exitSleepingHarts)
	}

	fmt.Fprintln(os.Stderr, "coresim: done")
	os.Exit(exitSuccess)
}

func dumpMRAM(sys *coresim.System, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return sys.Mem.DumpData(f, *loadAddr, 0x1000)
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "coresim drives the chip-wide hart scheduler to completion or a cycle budget.\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
}
