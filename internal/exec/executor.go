package exec

import (
	"github.com/sasha-s/go-deadlock"

	sldebugerrors "sl-debugger/internal/errors"
	"sl-debugger/internal/ir"
	"sl-debugger/internal/logging"
	"sl-debugger/internal/sample"
)

var log = logging.Get("exec.executor")

// Options configures an Executor.
type Options struct {
	// MaxSteps bounds the run_until worklist loop, guarding
	// pathological inputs even though well-formed SL programs cannot
	// loop forever once observation filters fire. Zero means
	// unbounded.
	MaxSteps int
	// Parallel enables per-sample evaluation across goroutines within
	// a single Step call. Samples are independent, so this only
	// changes wall-clock time, never the resulting multiset.
	Parallel bool
}

// Executor advances execution states through a program. It is
// stateless beyond the immutable program reference and an injected
// RNG; a single Executor may be shared across goroutines.
type Executor struct {
	program *ir.Program
	rng     sample.RNG
	opts    Options
	rngMu   deadlock.Mutex
}

func New(program *ir.Program, rng sample.RNG, opts Options) *Executor {
	return &Executor{program: program, rng: rng, opts: opts}
}

func (e *Executor) Program() *ir.Program { return e.program }

func (e *Executor) draw() sample.RNG {
	if !e.opts.Parallel {
		return e.rng
	}
	// Under parallel evaluation every goroutine draws from the same
	// shared RNG stream; guard it so concurrent Float64 calls can't
	// race.
	return &lockedRNG{mu: &e.rngMu, inner: e.rng}
}

type lockedRNG struct {
	mu    *deadlock.Mutex
	inner sample.RNG
}

func (l *lockedRNG) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.Float64()
}

// Step executes the instruction at state's position and returns the
// resulting successor states (0, 1, or 2 of them).
func (e *Executor) Step(state State) []State {
	inst, ok := e.program.InstructionAt(state.Position)
	if !ok {
		panic(sldebugerrors.NewProgramBug("exec: step at out-of-range position %s", state.Position))
	}

	switch inst.Kind {
	case ir.KJump:
		return []State{e.jumpTo(state.Position.Block, inst.Target, state.Samples)}

	case ir.KBranch:
		return e.stepBranch(state, inst)

	case ir.KObserve:
		next := e.stepSamplesFiltering(state.Samples, inst)
		if len(next) == 0 {
			return nil
		}
		return []State{{Position: advance(state.Position), Samples: next}}

	case ir.KPhi:
		panic(sldebugerrors.NewProgramBug("exec: Phi reached Step directly; must be consumed by jumpTo at %s", state.Position))

	case ir.KReturn:
		panic(sldebugerrors.NewProgramBug("exec: Step called on a Return instruction; caller should have stopped at %s", state.Position))

	default:
		next := e.stepSamplesStraightLine(state.Samples, inst)
		return []State{{Position: advance(state.Position), Samples: next}}
	}
}

func advance(pos ir.Position) ir.Position {
	return ir.Position{Block: pos.Block, Index: pos.Index + 1}
}

func (e *Executor) stepSamplesStraightLine(samples []sample.Sample, inst *ir.Instruction) []sample.Sample {
	out := make([]sample.Sample, len(samples))
	if e.opts.Parallel && len(samples) > 1 {
		rng := e.draw()
		done := make(chan struct{}, len(samples))
		for i := range samples {
			i := i
			go func() {
				defer func() { done <- struct{}{} }()
				next, _ := sample.Step(samples[i], inst, rng)
				out[i] = next
			}()
		}
		for range samples {
			<-done
		}
		return out
	}
	rng := e.draw()
	for i, s := range samples {
		next, _ := sample.Step(s, inst, rng)
		out[i] = next
	}
	return out
}

func (e *Executor) stepSamplesFiltering(samples []sample.Sample, inst *ir.Instruction) []sample.Sample {
	rng := e.draw()
	out := make([]sample.Sample, 0, len(samples))
	for _, s := range samples {
		if next, ok := sample.Step(s, inst, rng); ok {
			out = append(out, next)
		}
	}
	return out
}

func (e *Executor) stepBranch(state State, inst *ir.Instruction) []State {
	var trueSamples, falseSamples []sample.Sample
	for _, s := range state.Samples {
		if s.Eval(inst.Cond).BoolVal {
			trueSamples = append(trueSamples, s)
		} else {
			falseSamples = append(falseSamples, s)
		}
	}

	var out []State
	if len(trueSamples) > 0 {
		out = append(out, e.jumpTo(state.Position.Block, inst.TrueTarget, trueSamples))
	}
	if len(falseSamples) > 0 {
		out = append(out, e.jumpTo(state.Position.Block, inst.FalseTarget, falseSamples))
	}
	return out
}

// jumpTo transfers control from fromBlock to target carrying samples,
// consuming target's leading Phi instructions by binding each phi's
// destination to the value the fromBlock choice holds in every
// sample. It stops at the first non-phi instruction.
func (e *Executor) jumpTo(fromBlock, target string, samples []sample.Sample) State {
	block, ok := e.program.Block(target)
	if !ok {
		panic(sldebugerrors.NewProgramBug("exec: jump to unknown block %q", target))
	}

	idx := 0
	for idx < len(block.Instructions) {
		inst := block.Instructions[idx]
		if inst.Kind != ir.KPhi {
			break
		}
		choice, ok := inst.Choices[fromBlock]
		if !ok {
			panic(sldebugerrors.NewProgramBug("exec: phi at %s has no choice for predecessor %q", target, fromBlock))
		}
		next := make([]sample.Sample, len(samples))
		for i, s := range samples {
			next[i] = s.Bind(inst.Dest, s.Get(choice))
		}
		samples = next
		idx++
	}

	return State{Position: ir.Position{Block: target, Index: idx}, Samples: samples}
}
