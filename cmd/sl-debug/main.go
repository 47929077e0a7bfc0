// Command sl-debug loads an SL program, compiles it, and drives an
// interactive or scripted sampling-debugger session over it.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"sl-debugger/internal/console"
	"sl-debugger/internal/debugger"
	sldebugerrors "sl-debugger/internal/errors"
	"sl-debugger/internal/exec"
	"sl-debugger/internal/langgen"
	"sl-debugger/internal/logging"
	"sl-debugger/internal/sample"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is separated from main so a ProgramBug panic raised anywhere
// below it — the only place in the whole program such a panic is ever
// allowed to surface — can be recovered once, here, and turned into a
// diagnostic instead of a raw stack trace on stderr.
func run(args []string) (code int) {
	defer func() {
		if r := recover(); r != nil {
			bug := sldebugerrors.WrapProgramBug(r)
			fmt.Fprintln(os.Stderr, bug.Error())
			code = 1
		}
	}()

	if len(args) == 0 || args[0] != "run" {
		usage()
		return 2
	}

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	samplesN := fs.Int("samples", 100, "number of samples to run")
	commandsStr := fs.String("commands", "", "semicolon-separated batch commands, run non-interactively")
	seed := fs.Uint64("seed", 0, "RNG seed for a reproducible run (unset = unseeded)")
	maxSteps := fs.Int("max-steps", 0, "abort a run after this many executor steps (0 = unbounded)")
	noColor := fs.Bool("no-color", false, "disable colored output")
	parallel := fs.Bool("parallel", false, "step samples across goroutines within each instruction")
	verbosity := fs.Int("verbosity", 0, "structured log verbosity (0 = quiet)")

	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		usage()
		return 2
	}
	path := fs.Arg(0)

	logging.Configure(*verbosity)

	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		return 1
	}

	reporter := sldebugerrors.NewReporter(path, string(source))
	reporter.SetNoColor(*noColor)

	file, err := langgen.ParseSource(path, string(source))
	if err != nil {
		reportIRGenError(reporter, err)
		return 1
	}
	program, debug, err := langgen.Lower(file)
	if err != nil {
		reportIRGenError(reporter, err)
		return 1
	}

	rng := sample.NewDefaultRNG()
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			rng = sample.NewSeededRNG(*seed)
		}
	})
	executor := exec.New(program, rng, exec.Options{MaxSteps: *maxSteps, Parallel: *parallel})
	ctrl := debugger.New(program, debug, executor, *samplesN)

	cons := console.New(ctrl, reporter, os.Stdout)
	cons.NoColor = *noColor

	if *commandsStr != "" {
		runBatch(cons, *commandsStr)
		return 0
	}
	runInteractive(cons)
	return 0
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: sl-debug run <program-path> [--samples N] [--commands \"c1;c2;...\"] [--seed N] [--max-steps N] [--no-color] [--parallel]")
}

func reportIRGenError(reporter *sldebugerrors.Reporter, err error) {
	var irErr *sldebugerrors.IRGenError
	if errors.As(err, &irErr) {
		fmt.Fprint(os.Stderr, reporter.FormatIRGenError(irErr))
		return
	}
	fmt.Fprintf(os.Stderr, "error: %s\n", err)
}

func runBatch(cons *console.Console, commandsStr string) {
	for _, cmd := range strings.Split(commandsStr, ";") {
		cmd = strings.TrimSpace(cmd)
		if cmd == "" {
			continue
		}
		if !dispatchAndPrint(cons, cmd) {
			return
		}
	}
}

func runInteractive(cons *console.Console) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		if cons.Interactive {
			fmt.Fprint(os.Stdout, console.Prompt)
		}
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !dispatchAndPrint(cons, line) {
			return
		}
	}
}

// dispatchAndPrint runs one command line and prints its result or
// error; it returns false once the session should stop (an "exit"
// command was dispatched).
func dispatchAndPrint(cons *console.Console, line string) bool {
	out, err := cons.Dispatch(line)
	if errors.Is(err, console.ErrExit) {
		return false
	}
	if err != nil {
		fmt.Fprint(os.Stdout, cons.Report(err))
		return true
	}
	fmt.Fprint(os.Stdout, out)
	return true
}
