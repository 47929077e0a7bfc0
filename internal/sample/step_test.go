package sample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sl-debugger/internal/ir"
)

type fixedRNG struct{ draws []float64 }

func (f *fixedRNG) Float64() float64 {
	v := f.draws[0]
	f.draws = f.draws[1:]
	return v
}

func TestStepAssignAddSub(t *testing.T) {
	x := &ir.Variable{ID: 1, Name: "x", Type: ir.Int}
	y := &ir.Variable{ID: 2, Name: "y", Type: ir.Int}
	z := &ir.Variable{ID: 3, Name: "z", Type: ir.Int}

	s := Empty()
	s, ok := Step(s, &ir.Instruction{Kind: ir.KAssign, Dest: x, Operand: ir.IntLiteral(42)}, nil)
	require.True(t, ok)
	s, ok = Step(s, &ir.Instruction{Kind: ir.KSub, Dest: y, Lhs: ir.VarOperand(x), Rhs: ir.IntLiteral(1)}, nil)
	require.True(t, ok)
	s, ok = Step(s, &ir.Instruction{Kind: ir.KAdd, Dest: z, Lhs: ir.VarOperand(y), Rhs: ir.IntLiteral(11)}, nil)
	require.True(t, ok)

	assert.Equal(t, int64(42), s.Get(x).IntVal)
	assert.Equal(t, int64(41), s.Get(y).IntVal)
	assert.Equal(t, int64(52), s.Get(z).IntVal)
}

func TestStepRebindPanics(t *testing.T) {
	x := &ir.Variable{ID: 1, Name: "x", Type: ir.Int}
	s := Empty()
	s, _ = Step(s, &ir.Instruction{Kind: ir.KAssign, Dest: x, Operand: ir.IntLiteral(1)}, nil)
	assert.Panics(t, func() {
		Step(s, &ir.Instruction{Kind: ir.KAssign, Dest: x, Operand: ir.IntLiteral(2)}, nil)
	})
}

func TestStepUnboundReadPanics(t *testing.T) {
	x := &ir.Variable{ID: 1, Name: "x", Type: ir.Int}
	y := &ir.Variable{ID: 2, Name: "y", Type: ir.Int}
	s := Empty()
	assert.Panics(t, func() {
		Step(s, &ir.Instruction{Kind: ir.KAssign, Dest: y, Operand: ir.VarOperand(x)}, nil)
	})
}

func TestStepObserveFiltersFalse(t *testing.T) {
	c := &ir.Variable{ID: 1, Name: "c", Type: ir.Bool}
	s := Empty().Bind(c, ir.BoolValue(false))
	_, ok := Step(s, &ir.Instruction{Kind: ir.KObserve, Cond: ir.VarOperand(c)}, nil)
	assert.False(t, ok)
}

func TestStepObservePassesTrue(t *testing.T) {
	c := &ir.Variable{ID: 1, Name: "c", Type: ir.Bool}
	s := Empty().Bind(c, ir.BoolValue(true))
	out, ok := Step(s, &ir.Instruction{Kind: ir.KObserve, Cond: ir.VarOperand(c)}, nil)
	require.True(t, ok)
	assert.Equal(t, s, out)
}

func TestStepControlFlowPanics(t *testing.T) {
	assert.Panics(t, func() {
		Step(Empty(), &ir.Instruction{Kind: ir.KReturn}, nil)
	})
}

func TestDiscreteDistributionLastBucketCatchesRoundingEdge(t *testing.T) {
	x := &ir.Variable{ID: 1, Name: "x", Type: ir.Int}
	inst := &ir.Instruction{Kind: ir.KDiscreteDistribution, Dest: x, Table: map[int64]float64{1: 0.5, 2: 0.5}}
	s, ok := Step(Empty(), inst, &fixedRNG{draws: []float64{0.999999999}})
	require.True(t, ok)
	assert.Equal(t, int64(2), s.Get(x).IntVal)
}

func TestDiscreteDistributionBadTablePanics(t *testing.T) {
	x := &ir.Variable{ID: 1, Name: "x", Type: ir.Int}
	inst := &ir.Instruction{Kind: ir.KDiscreteDistribution, Dest: x, Table: map[int64]float64{1: 0.1, 2: 0.1}}
	assert.Panics(t, func() {
		Step(Empty(), inst, &fixedRNG{draws: []float64{0.05}})
	})
}

func TestDiscreteDistributionStatisticalMean(t *testing.T) {
	x := &ir.Variable{ID: 1, Name: "x", Type: ir.Int}
	inst := &ir.Instruction{Kind: ir.KDiscreteDistribution, Dest: x, Table: map[int64]float64{1: 0.5, 2: 0.5}}
	rng := NewSeededRNG(42)

	const n = 10000
	var sum float64
	for i := 0; i < n; i++ {
		s, ok := Step(Empty(), inst, rng)
		require.True(t, ok)
		sum += float64(s.Get(x).IntVal)
	}
	mean := sum / n
	assert.InDelta(t, 1.5, mean, 0.2) // well within O(1/sqrt(n)) tolerance
}
