package exec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sldebugerrors "sl-debugger/internal/errors"
	"sl-debugger/internal/ir"
	"sl-debugger/internal/sample"
)

// buildS2 builds the IR for:
//
//	int x = 42
//	x = x - 1
//	int y = x + 11
func buildS2(t *testing.T) *ir.Program {
	t.Helper()
	x1 := &ir.Variable{ID: 1, Name: "x", Type: ir.Int}
	x2 := &ir.Variable{ID: 2, Name: "x", Type: ir.Int}
	y := &ir.Variable{ID: 3, Name: "y", Type: ir.Int}
	bb := &ir.BasicBlock{Name: "entry", Instructions: []*ir.Instruction{
		{Kind: ir.KAssign, Dest: x1, Operand: ir.IntLiteral(42)},
		{Kind: ir.KSub, Dest: x2, Lhs: ir.VarOperand(x1), Rhs: ir.IntLiteral(1)},
		{Kind: ir.KAdd, Dest: y, Lhs: ir.VarOperand(x2), Rhs: ir.IntLiteral(11)},
		{Kind: ir.KReturn},
	}}
	p, err := ir.NewProgram([]*ir.BasicBlock{bb}, "entry")
	require.NoError(t, err)
	return p
}

func newExecutor(p *ir.Program) *Executor {
	return New(p, sample.NewSeededRNG(1), Options{})
}

func TestConservationUnderNonObserve(t *testing.T) {
	p := buildS2(t)
	e := newExecutor(p)
	state := Initial(p, 5)
	succs := e.Step(state)
	require.Len(t, succs, 1)
	assert.Equal(t, 5, len(succs[0].Samples))
}

func TestRunUntilEndMatchesExpectedValues(t *testing.T) {
	p := buildS2(t)
	e := newExecutor(p)
	state := Initial(p, 1)
	final, ok := e.RunUntil(state, func(ir.Position) bool { return false })
	require.True(t, ok)
	require.Len(t, final.Samples, 1)

	// Find the variables by walking the program (test-local lookup).
	var xVar, yVar *ir.Variable
	for _, name := range p.BlockNames() {
		b, _ := p.Block(name)
		for _, inst := range b.Instructions {
			if inst.Kind == ir.KSub {
				xVar = inst.Dest
			}
			if inst.Kind == ir.KAdd {
				yVar = inst.Dest
			}
		}
	}
	assert.Equal(t, int64(41), final.Samples[0].Get(xVar).IntVal)
	assert.Equal(t, int64(52), final.Samples[0].Get(yVar).IntVal)
}

func TestObserveShrinksPopulation(t *testing.T) {
	c := &ir.Variable{ID: 1, Name: "ok", Type: ir.Bool}
	x := &ir.Variable{ID: 2, Name: "x", Type: ir.Int}
	bb := &ir.BasicBlock{Name: "entry", Instructions: []*ir.Instruction{
		{Kind: ir.KDiscreteDistribution, Dest: x, Table: map[int64]float64{1: 0.5, 2: 0.5}},
		{Kind: ir.KCompare, Dest: c, Cmp: ir.Eq, Lhs: ir.VarOperand(x), Rhs: ir.IntLiteral(1)},
		{Kind: ir.KObserve, Cond: ir.VarOperand(c)},
		{Kind: ir.KReturn},
	}}
	p, err := ir.NewProgram([]*ir.BasicBlock{bb}, "entry")
	require.NoError(t, err)
	e := newExecutor(p)

	state := Initial(p, 200)
	for state.Position.Index < 3 {
		succs := e.Step(state)
		require.LessOrEqual(t, len(succs), 1)
		if len(succs) == 0 {
			state = State{Position: state.Position, Samples: nil}
			break
		}
		state = succs[0]
	}
	assert.LessOrEqual(t, len(state.Samples), 200)
	assert.Greater(t, len(state.Samples), 0) // astronomically unlikely to be 0 with p=0.5, n=200
}

func TestObserveAllFalseYieldsZeroSamples(t *testing.T) {
	x := &ir.Variable{ID: 1, Name: "x", Type: ir.Int}
	c := &ir.Variable{ID: 2, Name: "c", Type: ir.Bool}
	bb := &ir.BasicBlock{Name: "entry", Instructions: []*ir.Instruction{
		{Kind: ir.KAssign, Dest: x, Operand: ir.IntLiteral(1)},
		{Kind: ir.KCompare, Dest: c, Cmp: ir.Eq, Lhs: ir.VarOperand(x), Rhs: ir.IntLiteral(2)},
		{Kind: ir.KObserve, Cond: ir.VarOperand(c)},
		{Kind: ir.KReturn},
	}}
	p, err := ir.NewProgram([]*ir.BasicBlock{bb}, "entry")
	require.NoError(t, err)
	e := newExecutor(p)

	final, ok := e.RunUntil(Initial(p, 1), func(ir.Position) bool { return false })
	assert.False(t, ok)
	assert.Equal(t, 0, len(final.Samples))
}

// branchProgram builds:
//
//	entry: %c = discrete {1: 0.5, 2: 0.5}; %eq = cmp eq %c 2; br %eq tB fB
//	tB: %y = int 20; jmp merge
//	fB: %y = int 10; jmp merge
//	merge: %z = phi tB: %y, fB: %y; return
func branchProgram(t *testing.T) (*ir.Program, *ir.Variable) {
	t.Helper()
	c := &ir.Variable{ID: 1, Name: "c", Type: ir.Int}
	eq := &ir.Variable{ID: 2, Name: "eq", Type: ir.Bool}
	yT := &ir.Variable{ID: 3, Name: "y", Type: ir.Int}
	yF := &ir.Variable{ID: 4, Name: "y", Type: ir.Int}
	z := &ir.Variable{ID: 5, Name: "z", Type: ir.Int}

	entry := &ir.BasicBlock{Name: "entry", Instructions: []*ir.Instruction{
		{Kind: ir.KDiscreteDistribution, Dest: c, Table: map[int64]float64{1: 0.5, 2: 0.5}},
		{Kind: ir.KCompare, Dest: eq, Cmp: ir.Eq, Lhs: ir.VarOperand(c), Rhs: ir.IntLiteral(2)},
		{Kind: ir.KBranch, Cond: ir.VarOperand(eq), TrueTarget: "tB", FalseTarget: "fB"},
	}}
	tB := &ir.BasicBlock{Name: "tB", Instructions: []*ir.Instruction{
		{Kind: ir.KAssign, Dest: yT, Operand: ir.IntLiteral(20)},
		{Kind: ir.KJump, Target: "merge"},
	}}
	fB := &ir.BasicBlock{Name: "fB", Instructions: []*ir.Instruction{
		{Kind: ir.KAssign, Dest: yF, Operand: ir.IntLiteral(10)},
		{Kind: ir.KJump, Target: "merge"},
	}}
	merge := &ir.BasicBlock{Name: "merge", Instructions: []*ir.Instruction{
		{Kind: ir.KPhi, Dest: z, Choices: map[string]*ir.Variable{"tB": yT, "fB": yF}},
		{Kind: ir.KReturn},
	}}
	p, err := ir.NewProgram([]*ir.BasicBlock{entry, tB, fB, merge}, "entry")
	require.NoError(t, err)
	return p, z
}

func TestBranchPartitionAndMeanViaPhi(t *testing.T) {
	p, z := branchProgram(t)
	e := New(p, sample.NewSeededRNG(7), Options{})

	const n = 10000
	final, ok := e.RunUntil(Initial(p, n), func(ir.Position) bool { return false })
	require.True(t, ok)
	require.Len(t, final.Samples, n)

	var sum float64
	for _, s := range final.Samples {
		sum += float64(s.Get(z).IntVal)
	}
	mean := sum / n
	assert.InDelta(t, 15, mean, 1) // S4: mean of y in [14, 16]
}

func TestStepSingleBranchFailsAtBranch(t *testing.T) {
	p, _ := branchProgram(t)
	e := newExecutor(p)
	state := Initial(p, 10)
	for i := 0; i < 2; i++ {
		succs := e.Step(state)
		require.Len(t, succs, 1)
		state = succs[0]
	}
	_, err := e.StepSingleBranch(state)
	require.Error(t, err)
	var ude *sldebugerrors.UserDebuggerError
	require.ErrorAs(t, err, &ude)
	assert.Equal(t, sldebugerrors.AtBranchInstruction, ude.Kind)
}

func TestMergedIdentity(t *testing.T) {
	p := buildS2(t)
	state := Initial(p, 3)
	merged, ok := Merged([]State{state})
	require.True(t, ok)
	assert.Equal(t, state.Position, merged.Position)
	assert.Equal(t, len(state.Samples), len(merged.Samples))
}

func TestMergedEmptyReturnsFalse(t *testing.T) {
	_, ok := Merged(nil)
	assert.False(t, ok)
}

func TestMaxStepsGuardsPathologicalInput(t *testing.T) {
	// A statically-valid program (single reachable Return, satisfying
	// invariant 4) whose runtime condition is always true, so the
	// loop never actually reaches "done" -- the executor must fall
	// back on its MaxSteps guard rather than spin forever.
	c := &ir.Variable{ID: 1, Name: "c", Type: ir.Bool}
	done := &ir.BasicBlock{Name: "done", Instructions: []*ir.Instruction{{Kind: ir.KReturn}}}

	pre := &ir.BasicBlock{Name: "pre", Instructions: []*ir.Instruction{
		{Kind: ir.KAssign, Dest: c, Operand: ir.BoolLiteral(true)},
		{Kind: ir.KJump, Target: "header"},
	}}
	headerNoAssign := &ir.BasicBlock{Name: "header", Instructions: []*ir.Instruction{
		{Kind: ir.KBranch, Cond: ir.VarOperand(c), TrueTarget: "header", FalseTarget: "done"},
	}}
	p, err := ir.NewProgram([]*ir.BasicBlock{pre, headerNoAssign, done}, "pre")
	require.NoError(t, err)

	e := New(p, sample.NewSeededRNG(1), Options{MaxSteps: 50})
	assert.Panics(t, func() {
		e.RunUntil(Initial(p, 1), func(ir.Position) bool { return false })
	})
}
