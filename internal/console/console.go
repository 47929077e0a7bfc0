// Package console implements the debugger's command-line front end:
// normalizing one raw command line into a dispatchable action, running
// it against a debugger.Controller, and rendering the result (or a
// recoverable UserDebuggerError) as human-readable, optionally
// colored, text.
package console

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/iancoleman/strcase"
	"github.com/mattn/go-isatty"

	"sl-debugger/internal/debugger"
	sldebugerrors "sl-debugger/internal/errors"
	"sl-debugger/internal/logging"
	"sl-debugger/internal/outline"
)

var log = logging.Get("console")

// Prompt is printed before reading a command when running
// interactively.
const Prompt = "(sl-debug) "

// ErrExit is returned by Dispatch for the "exit" command; callers of
// the REPL loop check for it with errors.Is to stop cleanly.
var ErrExit = errors.New("exit")

// Console dispatches normalized commands against a single debugging
// session and writes formatted output to Out.
type Console struct {
	ctrl        *debugger.Controller
	reporter    *sldebugerrors.Reporter
	Out         *os.File
	NoColor     bool
	Interactive bool
}

// New creates a Console bound to ctrl. Interactive defaults to true
// only when both stdin and stdout are attached to a terminal, so the
// console degrades gracefully under --commands batch mode or when
// piped.
func New(ctrl *debugger.Controller, reporter *sldebugerrors.Reporter, out *os.File) *Console {
	interactive := isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(out.Fd())
	return &Console{ctrl: ctrl, reporter: reporter, Out: out, Interactive: interactive}
}

func (c *Console) color(attr color.Attribute) func(string) string {
	if c.NoColor || !c.Interactive {
		return func(s string) string { return s }
	}
	return color.New(attr).SprintFunc()
}

// normalize splits raw into command tokens, running each whitespace
// field through strcase.ToDelimited so that the canonical form
// ("step over"), a kebab alias ("step-over"), a camel alias
// ("stepOver"), and a snake alias ("step_over") all dispatch
// identically — the form a batch script passed via --commands is
// likely to use.
func normalize(raw string) []string {
	fields := strings.Fields(raw)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		norm := strcase.ToDelimited(f, ' ')
		out = append(out, strings.Fields(norm)...)
	}
	return out
}

func badArgument(detail string) error {
	return sldebugerrors.NewUserDebuggerError(sldebugerrors.BadArgument, detail)
}

func unknownCommand(detail string) error {
	return sldebugerrors.NewUserDebuggerError(sldebugerrors.UnknownCommand, detail)
}

// Dispatch parses and executes one command line, returning the text to
// print (which may be empty) or an error. ErrExit signals a clean
// shutdown request; every other error is either a *UserDebuggerError
// (recoverable, reported and the session continues) or a ProgramBug
// propagated from the controller (fatal, left for the caller's
// top-level recover).
func (c *Console) Dispatch(line string) (string, error) {
	tokens := normalize(line)
	if len(tokens) == 0 {
		return "", unknownCommand("empty command")
	}

	switch tokens[0] {
	case "display":
		return c.dispatchDisplay(tokens[1:])
	case "step":
		return c.dispatchStep(tokens[1:])
	case "run":
		if err := c.ctrl.RunUntilEnd(); err != nil {
			return "", err
		}
		return "run complete\n", nil
	case "state":
		return c.dispatchState(tokens[1:])
	case "exit", "quit":
		return "", ErrExit
	default:
		return "", unknownCommand(fmt.Sprintf("unrecognized command %q", tokens[0]))
	}
}

func (c *Console) dispatchDisplay(args []string) (string, error) {
	if len(args) == 0 {
		return "", badArgument("display requires \"position\" or \"variables\"")
	}
	switch args[0] {
	case "position":
		return c.displayPosition(), nil
	case "variables":
		return c.displayVariables(), nil
	default:
		return "", badArgument(fmt.Sprintf("unknown display target %q", args[0]))
	}
}

func (c *Console) dispatchStep(args []string) (string, error) {
	if len(args) == 0 {
		return "", badArgument("step requires \"over\", \"into\", or \"out\"")
	}
	switch args[0] {
	case "over":
		if err := c.ctrl.StepOver(); err != nil {
			return "", err
		}
		return c.displayPosition(), nil
	case "into":
		if len(args) < 2 {
			return "", badArgument("step into requires \"true\" or \"false\"")
		}
		branch, err := parseBranch(args[1])
		if err != nil {
			return "", err
		}
		if err := c.ctrl.StepInto(branch); err != nil {
			return "", err
		}
		return c.displayPosition(), nil
	case "out":
		if err := c.ctrl.StepOut(); err != nil {
			return "", err
		}
		return c.displayPosition(), nil
	default:
		return "", badArgument(fmt.Sprintf("unknown step target %q", args[0]))
	}
}

func parseBranch(tok string) (bool, error) {
	switch tok {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, badArgument(fmt.Sprintf("step into expects \"true\" or \"false\", got %q", tok))
	}
}

func (c *Console) dispatchState(args []string) (string, error) {
	if len(args) == 0 {
		return "", badArgument("state requires \"save\", \"restore\", or \"display\"")
	}
	switch args[0] {
	case "save":
		c.ctrl.SaveState()
		return "state saved\n", nil
	case "restore":
		if err := c.ctrl.RestoreState(); err != nil {
			return "", err
		}
		return c.displayPosition(), nil
	case "display":
		return c.displayState(), nil
	default:
		return "", badArgument(fmt.Sprintf("unknown state target %q", args[0]))
	}
}

func (c *Console) displayPosition() string {
	bold := c.color(color.Bold)
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", bold(c.ctrl.CurrentPosition().String()))
	if loc, ok := c.ctrl.CurrentSourceLocation(); ok {
		fmt.Fprintf(&b, "  at %d:%d\n", loc.Line, loc.Column)
	}
	return b.String()
}

func (c *Console) displayVariables() string {
	rows := c.ctrl.Samples()
	if len(rows) == 0 {
		return "no live samples\n"
	}
	names := map[string]bool{}
	for _, row := range rows {
		for name := range row {
			names[name] = true
		}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	var b strings.Builder
	if len(rows) == 1 {
		for _, name := range sorted {
			if v, ok := rows[0][name]; ok {
				fmt.Fprintf(&b, "%s = %s\n", name, v)
			}
		}
		return b.String()
	}
	fmt.Fprintf(&b, "%d samples\n", len(rows))
	for _, name := range sorted {
		if v, ok := rows[0][name]; ok {
			fmt.Fprintf(&b, "  %s (sample 1) = %s\n", name, v)
		}
	}
	return b.String()
}

func (c *Console) displayState() string {
	cyan := c.color(color.FgCyan)
	var b strings.Builder
	fmt.Fprintf(&b, "session %s\n", cyan(c.ctrl.SessionID()))
	fmt.Fprintf(&b, "position %s\n", c.ctrl.CurrentPosition())
	fmt.Fprintf(&b, "live samples %d\n", len(c.ctrl.State().Samples))
	fmt.Fprintf(&b, "saved states %d\n", c.ctrl.StackDepth())
	return b.String()
}

// PrintOutline renders a post-hoc summary of a completed run: the
// controller's program/debug-info pair replayed from the start through
// an outline.Generator, independent of whatever position the
// controller itself is now paused at.
func (c *Console) PrintOutline(gen *outline.Generator, n int) string {
	root := gen.Build(n)
	return outline.Print(root, c.ctrl.Debug())
}

// Report formats err for display: UserDebuggerError gets the
// reporter's one-line yellow treatment, anything else (a ProgramBug
// that slipped through, or a plain error) is printed as-is so it is
// never silently swallowed.
func (c *Console) Report(err error) string {
	var userErr *sldebugerrors.UserDebuggerError
	if errors.As(err, &userErr) {
		return c.reporter.FormatUserError(userErr)
	}
	return fmt.Sprintf("error: %s\n", err)
}
