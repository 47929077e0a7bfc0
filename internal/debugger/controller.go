// Package debugger implements the interactive debugger controller:
// stepping (over/into/out), a save/restore state stack, run-to-end,
// and querying of per-variable empirical distributions.
package debugger

import (
	"github.com/segmentio/ksuid"

	"sl-debugger/internal/debuginfo"
	sldebugerrors "sl-debugger/internal/errors"
	"sl-debugger/internal/exec"
	"sl-debugger/internal/ir"
	"sl-debugger/internal/logging"
)

var log = logging.Get("debugger.controller")

// Controller holds an immutable program reference, the current
// execution state, and an in-memory save/restore stack. It is
// non-blocking: every operation below runs to completion
// synchronously.
type Controller struct {
	sessionID ksuid.KSUID
	program   *ir.Program
	debug     *debuginfo.Info
	executor  *exec.Executor
	current   exec.State
	stack     []exec.State
}

// New creates a controller at the program's initial state with n
// samples.
func New(program *ir.Program, debug *debuginfo.Info, executor *exec.Executor, n int) *Controller {
	return &Controller{
		sessionID: ksuid.New(),
		program:   program,
		debug:     debug,
		executor:  executor,
		current:   exec.Initial(program, n),
	}
}

// SessionID uniquely identifies this controller instance; it is used
// for log correlation and in "state display" output so multiple
// controllers (or outline runs) can be told apart without relying on
// pointer identity.
func (c *Controller) SessionID() string { return c.sessionID.String() }

func (c *Controller) atReturn() bool {
	inst, ok := c.program.InstructionAt(c.current.Position)
	return ok && inst.Kind == ir.KReturn
}

// StepOver runs single-branch steps until the next position that
// carries debug info, or until Return is reached.
func (c *Controller) StepOver() error {
	if c.atReturn() {
		return sldebugerrors.NewUserDebuggerError(sldebugerrors.AlreadyTerminated, "program has already terminated")
	}

	state := c.current
	for {
		next, err := c.executor.StepSingleBranch(state)
		if err != nil {
			return err
		}
		state = next
		if !state.HasSamples() {
			break
		}
		inst, ok := c.program.InstructionAt(state.Position)
		if !ok {
			break
		}
		if inst.Kind == ir.KReturn || c.debug.HasInfo(state.Position) {
			break
		}
	}
	c.current = state
	log.Debugf("[%s] step_over -> %s", c.SessionID(), c.current.Position)
	return nil
}

// StepInto requires the current instruction to be a Branch: it
// partitions samples by the branch condition and jumps into the
// chosen target, replacing the current state. It errors if the
// chosen branch has no surviving samples.
func (c *Controller) StepInto(branch bool) error {
	if c.atReturn() {
		return sldebugerrors.NewUserDebuggerError(sldebugerrors.AlreadyTerminated, "program has already terminated")
	}
	inst, ok := c.program.InstructionAt(c.current.Position)
	if !ok || inst.Kind != ir.KBranch {
		return sldebugerrors.NewUserDebuggerError(sldebugerrors.BadArgument, "current instruction is not a branch")
	}

	succs := c.executor.Step(c.current)
	wantTarget := inst.FalseTarget
	if branch {
		wantTarget = inst.TrueTarget
	}
	for _, s := range succs {
		if s.Position.Block == wantTarget {
			c.current = s
			log.Debugf("[%s] step_into(%v) -> %s", c.SessionID(), branch, c.current.Position)
			return nil
		}
	}
	return sldebugerrors.NewUserDebuggerError(sldebugerrors.NoLiveSamplesInBranch,
		"the chosen branch has no surviving samples")
}

// StepOut is equivalent to restore_state(); step_over().
func (c *Controller) StepOut() error {
	if err := c.RestoreState(); err != nil {
		return err
	}
	return c.StepOver()
}

// RunUntilEnd runs until the return instruction, merging all live
// paths, and makes the merged state current.
func (c *Controller) RunUntilEnd() error {
	final, ok := c.executor.RunUntil(c.current, func(ir.Position) bool { return false })
	if !ok {
		// No live paths survived: make current an empty state at the
		// program's unique return position.
		c.current = exec.State{Position: c.program.ReturnPosition()}
		return nil
	}
	c.current = final
	log.Debugf("[%s] run_until_end -> %s (%d samples)", c.SessionID(), c.current.Position, len(c.current.Samples))
	return nil
}

// SaveState pushes the current state onto the stack. This is O(1):
// exec.State's Samples slice is never mutated in place, only replaced
// wholesale, so pushing a snapshot shares the existing backing array.
func (c *Controller) SaveState() {
	c.stack = append(c.stack, c.current)
}

// RestoreState pops the top of the stack and makes it current.
func (c *Controller) RestoreState() error {
	if len(c.stack) == 0 {
		return sldebugerrors.NewUserDebuggerError(sldebugerrors.EmptyStateStack, "no saved state to restore")
	}
	n := len(c.stack) - 1
	c.current = c.stack[n]
	c.stack = c.stack[:n]
	return nil
}

// CurrentSourceLocation returns the source location of the current
// position, via the debug-info bridge.
func (c *Controller) CurrentSourceLocation() (debuginfo.SourceLocation, bool) {
	return c.debug.SourceLocationOf(c.current.Position)
}

// CurrentPosition exposes the raw IR position, mainly for tests and
// the outline generator.
func (c *Controller) CurrentPosition() ir.Position { return c.current.Position }

// State exposes the controller's current execution state.
func (c *Controller) State() exec.State { return c.current }

// StackDepth reports how many states are saved, for "state display".
func (c *Controller) StackDepth() int { return len(c.stack) }

// Debug exposes the controller's debug-info bridge, for callers (the
// outline generator, the console's post-hoc run summary) that need to
// resolve positions to source names independently of the controller's
// own current position.
func (c *Controller) Debug() *debuginfo.Info { return c.debug }

// Program exposes the controller's program, for the same reason.
func (c *Controller) Program() *ir.Program { return c.program }

// Samples translates the current sample bag into source-name -> value
// pairs via the debug-info at the current position.
func (c *Controller) Samples() []map[string]ir.Value {
	vars, ok := c.debug.VariablesAt(c.current.Position)
	out := make([]map[string]ir.Value, len(c.current.Samples))
	for i, s := range c.current.Samples {
		row := make(map[string]ir.Value, len(vars))
		if ok {
			for name, v := range vars {
				if s.Bound(v) {
					row[name] = s.Get(v)
				}
			}
		}
		out[i] = row
	}
	return out
}
