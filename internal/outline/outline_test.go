package outline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sl-debugger/internal/debuginfo"
	"sl-debugger/internal/exec"
	"sl-debugger/internal/ir"
	"sl-debugger/internal/sample"
)

// straightLineProgram builds a basic straight-line program: no
// branches, no loops.
func straightLineProgram(t *testing.T) *ir.Program {
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

func TestBuildStraightLineEndsAtInstructionNode(t *testing.T) {
	p := straightLineProgram(t)
	e := exec.New(p, sample.NewSeededRNG(1), exec.Options{})
	g := New(p, debuginfo.New(), e)

	root := g.Build(3)
	assert.Equal(t, InstructionNode, root.Kind)

	cur := root
	count := 1
	for cur.Next != nil {
		cur = cur.Next
		count++
	}
	assert.Equal(t, 4, count) // one node per instruction in the block
	assert.Len(t, cur.State.Samples, 3)
}

// branchingProgram builds: a coin flip that sends samples down tB or fB,
// merging back via a phi.
func branchingProgram(t *testing.T) *ir.Program {
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
	return p
}

func TestBuildBranchProducesBothArms(t *testing.T) {
	p := branchingProgram(t)
	e := exec.New(p, sample.NewSeededRNG(7), exec.Options{})
	g := New(p, debuginfo.New(), e)

	root := g.Build(200)
	// Walk straight-line nodes down to the branch.
	cur := root
	for cur.Kind == InstructionNode {
		require.NotNil(t, cur.Next)
		cur = cur.Next
	}
	require.Equal(t, BranchNode, cur.Kind)
	assert.NotNil(t, cur.True)
	assert.NotNil(t, cur.False)
}

// loopProgram builds a counted loop: i starts at 0, header branches on
// i<3, body increments i and jumps back to header, done returns.
func loopProgram(t *testing.T) *ir.Program {
	t.Helper()
	i0 := &ir.Variable{ID: 1, Name: "i", Type: ir.Int}
	iPhi := &ir.Variable{ID: 2, Name: "i", Type: ir.Int}
	cond := &ir.Variable{ID: 3, Name: "cond", Type: ir.Bool}
	iNext := &ir.Variable{ID: 4, Name: "i", Type: ir.Int}

	pre := &ir.BasicBlock{Name: "pre", Instructions: []*ir.Instruction{
		{Kind: ir.KAssign, Dest: i0, Operand: ir.IntLiteral(0)},
		{Kind: ir.KJump, Target: "header"},
	}}
	header := &ir.BasicBlock{Name: "header", Instructions: []*ir.Instruction{
		{Kind: ir.KPhi, Dest: iPhi, Choices: map[string]*ir.Variable{"pre": i0, "body": iNext}},
		{Kind: ir.KCompare, Dest: cond, Cmp: ir.Lt, Lhs: ir.VarOperand(iPhi), Rhs: ir.IntLiteral(3)},
		{Kind: ir.KBranch, Cond: ir.VarOperand(cond), TrueTarget: "body", FalseTarget: "done"},
	}}
	body := &ir.BasicBlock{Name: "body", Instructions: []*ir.Instruction{
		{Kind: ir.KAdd, Dest: iNext, Lhs: ir.VarOperand(iPhi), Rhs: ir.IntLiteral(1)},
		{Kind: ir.KJump, Target: "header"},
	}}
	done := &ir.BasicBlock{Name: "done", Instructions: []*ir.Instruction{{Kind: ir.KReturn}}}

	p, err := ir.NewProgram([]*ir.BasicBlock{pre, header, body, done}, "pre")
	require.NoError(t, err)
	return p
}

func TestBuildLoopGroupsIterations(t *testing.T) {
	p := loopProgram(t)
	e := exec.New(p, sample.NewSeededRNG(1), exec.Options{})
	g := New(p, debuginfo.New(), e)

	root := g.Build(1)
	cur := root
	for cur.Kind == InstructionNode {
		require.NotNil(t, cur.Next)
		cur = cur.Next
	}
	require.Equal(t, LoopNode, cur.Kind)
	assert.Equal(t, 3, cur.CountIterations()) // i=0,1,2 take the body; i=3 exits
}
