// Package ir implements the SSA intermediate representation for SL:
// basic blocks, instructions, programs, and the static analyses and
// verifier that operate over them.
package ir

import (
	"fmt"
)

// Type is the tag of an SL value: int or bool.
type Type int

const (
	Int Type = iota
	Bool
)

func (t Type) String() string {
	switch t {
	case Int:
		return "int"
	case Bool:
		return "bool"
	default:
		return "?"
	}
}

// Variable is an SSA variable: a globally unique identifier plus its
// type. Once a variable is bound in a sample it is never rebound.
type Variable struct {
	ID   int
	Name string // disambiguated source name, e.g. "x" or "x#2"
	Type Type
}

func (v *Variable) String() string {
	return fmt.Sprintf("%%%s", v.Name)
}

// Value is a concrete run-time value held by a sample.
type Value struct {
	IntVal  int64
	BoolVal bool
	IsBool  bool
}

func IntValue(i int64) Value { return Value{IntVal: i} }
func BoolValue(b bool) Value { return Value{BoolVal: b, IsBool: true} }
func (v Value) Type() Type {
	if v.IsBool {
		return Bool
	}
	return Int
}

func (v Value) String() string {
	if v.IsBool {
		return fmt.Sprintf("%v", v.BoolVal)
	}
	return fmt.Sprintf("%d", v.IntVal)
}

// VOL is a variable-or-literal operand.
type VOL struct {
	Var     *Variable
	IsVar   bool
	IntLit  int64
	BoolLit bool
	IsBool  bool // only meaningful when !IsVar, distinguishes int vs bool literal
}

func VarOperand(v *Variable) VOL { return VOL{Var: v, IsVar: true} }
func IntLiteral(i int64) VOL     { return VOL{IntLit: i} }
func BoolLiteral(b bool) VOL     { return VOL{BoolLit: b, IsBool: true} }

func (o VOL) Type() Type {
	if o.IsVar {
		return o.Var.Type
	}
	if o.IsBool {
		return Bool
	}
	return Int
}

func (o VOL) String() string {
	if o.IsVar {
		return o.Var.String()
	}
	if o.IsBool {
		return fmt.Sprintf("%v", o.BoolLit)
	}
	return fmt.Sprintf("%d", o.IntLit)
}

// CompareOp is the comparison operator of a Compare instruction.
type CompareOp int

const (
	Eq CompareOp = iota
	Lt
)

func (o CompareOp) String() string {
	if o == Eq {
		return "eq"
	}
	return "lt"
}

// Instruction is the tagged union of SL IR instructions. The Kind
// discriminates which fields are meaningful; this mirrors a closed
// sum type without resorting to an interface-per-variant hierarchy,
// since SL's instruction set is small and fixed.
type Kind int

const (
	KAssign Kind = iota
	KAdd
	KSub
	KCompare
	KDiscreteDistribution
	KObserve
	KJump
	KBranch
	KPhi
	KReturn
)

func (k Kind) String() string {
	switch k {
	case KAssign:
		return "assign"
	case KAdd:
		return "add"
	case KSub:
		return "sub"
	case KCompare:
		return "compare"
	case KDiscreteDistribution:
		return "discrete"
	case KObserve:
		return "observe"
	case KJump:
		return "jump"
	case KBranch:
		return "branch"
	case KPhi:
		return "phi"
	case KReturn:
		return "return"
	default:
		return "?"
	}
}

// Instruction is one instruction in a basic block.
type Instruction struct {
	Kind Kind

	// Assign / Add / Sub / Compare
	Dest    *Variable
	Operand VOL // Assign source
	Lhs     VOL // Add/Sub/Compare left
	Rhs     VOL // Add/Sub/Compare right
	Cmp     CompareOp

	// DiscreteDistribution
	Table map[int64]float64

	// Observe / Branch condition
	Cond VOL

	// Jump / Branch targets
	Target      string
	TrueTarget  string
	FalseTarget string

	// Phi
	Choices map[string]*Variable
}

func (i *Instruction) IsTerminator() bool {
	switch i.Kind {
	case KJump, KBranch, KReturn:
		return true
	default:
		return false
	}
}

// BasicBlock is an ordered, nonempty sequence of instructions whose
// last instruction is a terminator. Phi instructions, if any, form a
// contiguous prefix.
type BasicBlock struct {
	Name         string
	Instructions []*Instruction
}

// Position names a single instruction within a program: the block
// that contains it and its index within that block's instruction
// list.
type Position struct {
	Block string
	Index int
}

func (p Position) String() string {
	return fmt.Sprintf("%s:%d", p.Block, p.Index)
}

// Program is a verified SL IR program: a set of basic blocks and a
// designated start block. Debug info is not stored here; it is kept
// alongside the program in a separate debuginfo.Info. Construct one
// only through NewProgram, which runs the structural verifier in
// verifier.go; a
// Program value is safe to share freely once constructed, since it is
// never mutated afterward.
type Program struct {
	Blocks    map[string]*BasicBlock
	Order     []string // deterministic block iteration order
	Start     string
	analysis  *analysisCache
}

// BlockNames returns block names in deterministic (construction) order.
func (p *Program) BlockNames() []string {
	out := make([]string, len(p.Order))
	copy(out, p.Order)
	return out
}

// Block looks up a basic block by name.
func (p *Program) Block(name string) (*BasicBlock, bool) {
	b, ok := p.Blocks[name]
	return b, ok
}

// InstructionAt returns the instruction at pos, or (nil, false) if pos
// is out of range for its block (e.g. one past the final Return).
func (p *Program) InstructionAt(pos Position) (*Instruction, bool) {
	b, ok := p.Blocks[pos.Block]
	if !ok || pos.Index < 0 || pos.Index >= len(b.Instructions) {
		return nil, false
	}
	return b.Instructions[pos.Index], true
}

// ReturnPosition returns the position of the program's unique Return
// instruction. NewProgram guarantees exactly one exists.
func (p *Program) ReturnPosition() Position {
	for _, name := range p.Order {
		b := p.Blocks[name]
		for idx, inst := range b.Instructions {
			if inst.Kind == KReturn {
				return Position{Block: name, Index: idx}
			}
		}
	}
	panic("ir: program has no return instruction (verifier bug)")
}
