package langgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sl-debugger/internal/debuginfo"
	sldebugerrors "sl-debugger/internal/errors"
	"sl-debugger/internal/exec"
	"sl-debugger/internal/ir"
	"sl-debugger/internal/sample"
)

func compile(t *testing.T, src string) (*ir.Program, *debuginfo.Info) {
	t.Helper()
	file, err := ParseSource("test.sl", src)
	require.NoError(t, err)
	program, debug, err := Lower(file)
	require.NoError(t, err)
	return program, debug
}

func runToEnd(t *testing.T, program *ir.Program, n int) exec.State {
	t.Helper()
	e := exec.New(program, sample.NewSeededRNG(7), exec.Options{})
	final, ok := e.RunUntil(exec.Initial(program, n), func(ir.Position) bool { return false })
	require.True(t, ok)
	return final
}

func TestLowerStraightLineAssignment(t *testing.T) {
	program, _ := compile(t, `
		int x = 42
		x = x - 1
		int y = x + 11
	`)
	final := runToEnd(t, program, 3)
	require.Len(t, final.Samples, 3)

	var xVar, yVar *ir.Variable
	for _, name := range program.BlockNames() {
		b, _ := program.Block(name)
		for _, inst := range b.Instructions {
			if inst.Kind == ir.KAssign && inst.Dest.Name == "x" {
				xVar = inst.Dest
			}
			if inst.Kind == ir.KAssign && inst.Dest.Name == "y" {
				yVar = inst.Dest
			}
		}
	}
	require.NotNil(t, xVar)
	require.NotNil(t, yVar)
	for _, s := range final.Samples {
		assert.Equal(t, int64(41), s.Get(xVar).IntVal)
		assert.Equal(t, int64(52), s.Get(yVar).IntVal)
	}
}

func TestLowerIfElseMergesBothArms(t *testing.T) {
	program, _ := compile(t, `
		int x = discrete({0: 0.5, 1: 0.5})
		int y = 0
		if x == 1 {
			y = 100
		} else {
			y = 200
		}
	`)
	final := runToEnd(t, program, 200)
	require.Len(t, final.Samples, 200)

	var yVar *ir.Variable
	for _, name := range program.BlockNames() {
		b, _ := program.Block(name)
		for _, inst := range b.Instructions {
			if inst.Kind == ir.KPhi && inst.Dest.Name == "y" {
				yVar = inst.Dest
			}
		}
	}
	require.NotNil(t, yVar)
	saw100, saw200 := false, false
	for _, s := range final.Samples {
		v := s.Get(yVar).IntVal
		assert.True(t, v == 100 || v == 200)
		if v == 100 {
			saw100 = true
		}
		if v == 200 {
			saw200 = true
		}
	}
	assert.True(t, saw100, "expected at least one sample to take the then arm")
	assert.True(t, saw200, "expected at least one sample to take the else arm")
}

func TestLowerIfWithoutElseLeavesUntouchedArmUnchanged(t *testing.T) {
	program, _ := compile(t, `
		int x = discrete({0: 0.5, 1: 0.5})
		int y = 7
		if x == 1 {
			y = 9
		}
	`)
	final := runToEnd(t, program, 200)
	var yVar *ir.Variable
	for _, name := range program.BlockNames() {
		b, _ := program.Block(name)
		for _, inst := range b.Instructions {
			if inst.Kind == ir.KPhi && inst.Dest.Name == "y" {
				yVar = inst.Dest
			}
		}
	}
	require.NotNil(t, yVar)
	for _, s := range final.Samples {
		v := s.Get(yVar).IntVal
		assert.True(t, v == 7 || v == 9)
	}
}

func TestLowerWhileCountsToThree(t *testing.T) {
	program, _ := compile(t, `
		int i = 0
		while i < 3 {
			i = i + 1
		}
	`)
	final := runToEnd(t, program, 4)

	var iVar *ir.Variable
	for _, name := range program.BlockNames() {
		b, _ := program.Block(name)
		for _, inst := range b.Instructions {
			if inst.Kind == ir.KPhi && inst.Dest.Name == "i" {
				iVar = inst.Dest
			}
		}
	}
	require.NotNil(t, iVar)
	for _, s := range final.Samples {
		assert.Equal(t, int64(3), s.Get(iVar).IntVal)
	}
}

func TestLowerObserveFiltersSamples(t *testing.T) {
	program, _ := compile(t, `
		int x = discrete({0: 0.5, 1: 0.5})
		observe(x == 1)
	`)
	final := runToEnd(t, program, 200)
	require.True(t, len(final.Samples) > 0)
	require.True(t, len(final.Samples) < 200)
}

func TestLowerShadowingRenamesNestedDeclaration(t *testing.T) {
	program, _ := compile(t, `
		int x = 1
		{
			int x = 2
		}
	`)
	seenBare, seenShadow := false, false
	for _, name := range program.BlockNames() {
		b, _ := program.Block(name)
		for _, inst := range b.Instructions {
			if inst.Kind != ir.KAssign {
				continue
			}
			switch inst.Dest.Name {
			case "x":
				seenBare = true
			case "x#2":
				seenShadow = true
			}
		}
	}
	assert.True(t, seenBare)
	assert.True(t, seenShadow)
}

func TestLowerBlockPropagatesReassignmentOfOuterVariable(t *testing.T) {
	program, _ := compile(t, `
		int x = 1
		{
			x = 2
		}
		int y = x + 1
	`)
	final := runToEnd(t, program, 3)

	var yVar *ir.Variable
	for _, name := range program.BlockNames() {
		b, _ := program.Block(name)
		for _, inst := range b.Instructions {
			if inst.Kind == ir.KAssign && inst.Dest.Name == "y" {
				yVar = inst.Dest
			}
		}
	}
	require.NotNil(t, yVar)
	for _, s := range final.Samples {
		assert.Equal(t, int64(3), s.Get(yVar).IntVal)
	}
}

func TestLowerRejectsUndeclaredAssignment(t *testing.T) {
	file, err := ParseSource("test.sl", `x = 1`)
	require.NoError(t, err)
	_, _, err = Lower(file)
	require.Error(t, err)
	var irErr *sldebugerrors.IRGenError
	require.ErrorAs(t, err, &irErr)
}

func TestLowerRejectsDuplicateDeclarationInSameScope(t *testing.T) {
	file, err := ParseSource("test.sl", `
		int x = 1
		int x = 2
	`)
	require.NoError(t, err)
	_, _, err = Lower(file)
	require.Error(t, err)
}

func TestLowerRejectsMalformedDiscreteTable(t *testing.T) {
	file, err := ParseSource("test.sl", `int x = discrete({0: 0.5, 1: 0.6})`)
	require.NoError(t, err)
	_, _, err = Lower(file)
	require.Error(t, err)
}

func TestLowerRejectsUnsupportedComparisonOperator(t *testing.T) {
	file, err := ParseSource("test.sl", `
		int x = 1
		if x != 2 {
			int y = 1
		}
	`)
	require.NoError(t, err)
	_, _, err = Lower(file)
	require.Error(t, err)
}
