package exec

import (
	sldebugerrors "sl-debugger/internal/errors"
	"sl-debugger/internal/ir"
)

// StopCondition decides whether the worklist loop should stop
// advancing a given state further.
type StopCondition func(ir.Position) bool

// RunUntil maintains a worklist of live states, initially just state,
// and repeatedly pops one: if its position satisfies stop or its
// instruction is Return, the state is set aside as finished;
// otherwise it is stepped and its (possibly zero, one, or two)
// successors are pushed back onto the worklist. Dead states (an empty
// sample bag) are simply dropped. When the worklist empties, all
// finished states are merged (they are guaranteed to share a
// position, since stop is position-predicated and Return is unique)
// and returned, or (zero, false) if nothing finished.
func (e *Executor) RunUntil(state State, stop StopCondition) (State, bool) {
	worklist := []State{state}
	var finished []State
	steps := 0

	for len(worklist) > 0 {
		n := len(worklist) - 1
		cur := worklist[n]
		worklist = worklist[:n]

		if !cur.HasSamples() {
			continue
		}

		inst, ok := e.program.InstructionAt(cur.Position)
		if !ok {
			panic(sldebugerrors.NewProgramBug("exec: run_until reached out-of-range position %s", cur.Position))
		}

		if stop(cur.Position) || inst.Kind == ir.KReturn {
			finished = append(finished, cur)
			continue
		}

		if e.opts.MaxSteps > 0 && steps >= e.opts.MaxSteps {
			panic(sldebugerrors.NewProgramBug("exec: run_until exceeded MaxSteps=%d without terminating", e.opts.MaxSteps))
		}
		steps++

		log.Debugf("run_until: stepping %s (%d live samples)", cur.Position, len(cur.Samples))
		for _, succ := range e.Step(cur) {
			if succ.HasSamples() {
				worklist = append(worklist, succ)
			}
		}
	}

	return Merged(finished)
}

// StepSingleBranch executes exactly one instruction, like Step, but
// collapses the result to a single successor state and fails rather
// than forking: UserDebuggerError{AtBranchInstruction} if the current
// instruction is itself a Branch, and UserDebuggerError{MultipleBranches}
// if stepping it produced two live successor states. A dead result
// (all samples filtered by an Observe) is not an error: it is
// returned as a live-less state, like any other step.
//
// This is the primitive source-level "step over" composes by looping
// until a debug-info-bearing position or Return is reached (see
// internal/debugger).
func (e *Executor) StepSingleBranch(state State) (State, error) {
	inst, ok := e.program.InstructionAt(state.Position)
	if !ok {
		panic(sldebugerrors.NewProgramBug("exec: step_single_branch at out-of-range position %s", state.Position))
	}
	if inst.Kind == ir.KBranch {
		return State{}, sldebugerrors.NewUserDebuggerError(sldebugerrors.AtBranchInstruction,
			"current instruction is a branch; use step into true|false")
	}

	succs := e.Step(state)
	live := make([]State, 0, 2)
	for _, s := range succs {
		if s.HasSamples() {
			live = append(live, s)
		}
	}
	switch {
	case len(live) > 1:
		return State{}, sldebugerrors.NewUserDebuggerError(sldebugerrors.MultipleBranches,
			"step would produce two live branches; use step into true|false")
	case len(live) == 1:
		return live[0], nil
	default:
		// Every sample died (Observe filtered the bag, or the only
		// successor had zero samples). Position doesn't matter for a
		// dead state; advance() mirrors the straight-line case so
		// callers can still report "where" execution died.
		return State{Position: advance(state.Position)}, nil
	}
}
