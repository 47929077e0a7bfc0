package ir

import "fmt"

// Builder accumulates basic blocks and mints fresh SSA variables and
// block names via simple monotonic counters. It is a
// construction-time convenience only; the resulting blocks must still
// pass NewProgram's verifier.
type Builder struct {
	varCounter   int
	blockCounter int
	blocks       []*BasicBlock
}

func NewBuilder() *Builder { return &Builder{} }

// FreshVariable mints a new SSA variable with a unique ID.
func (b *Builder) FreshVariable(name string, t Type) *Variable {
	b.varCounter++
	return &Variable{ID: b.varCounter, Name: name, Type: t}
}

// FreshBlockName mints a block name distinct from any minted so far.
func (b *Builder) FreshBlockName(hint string) string {
	b.blockCounter++
	return fmt.Sprintf("%s%d", hint, b.blockCounter)
}

// AddBlock registers a completed block with the builder.
func (b *Builder) AddBlock(block *BasicBlock) {
	b.blocks = append(b.blocks, block)
}

// Build verifies and returns the accumulated blocks as a Program.
func (b *Builder) Build(start string) (*Program, error) {
	return NewProgram(b.blocks, start)
}
