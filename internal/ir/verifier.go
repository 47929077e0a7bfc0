package ir

import "fmt"

// VerifyError reports a violated IR invariant. These are always fatal:
// a valid IRGen implementation can never produce one, so surfacing
// them as Go errors (rather than panicking directly) exists only to
// let NewProgram's caller decide how to report the bug before
// aborting.
type VerifyError struct {
	Block       string
	Instruction int
	Rule        string
	Detail      string
}

func (e *VerifyError) Error() string {
	if e.Block == "" {
		return fmt.Sprintf("ir verify: %s: %s", e.Rule, e.Detail)
	}
	return fmt.Sprintf("ir verify: %s at %s:%d: %s", e.Rule, e.Block, e.Instruction, e.Detail)
}

// NewProgram constructs a Program from a list of basic blocks and
// verifies the structural invariants of a well-formed SSA program:
// unique block names, nonempty terminator-ending blocks, valid jump
// targets, a contiguous phi prefix matching the predecessor set, a
// single Return, and def-before-use. A non-nil error here indicates an
// IRGen bug, not a user error, and the only correct caller response is
// to abort.
func NewProgram(blocks []*BasicBlock, start string) (*Program, error) {
	p := &Program{
		Blocks: make(map[string]*BasicBlock, len(blocks)),
		Order:  make([]string, 0, len(blocks)),
		Start:  start,
	}
	for _, b := range blocks {
		if _, dup := p.Blocks[b.Name]; dup {
			return nil, &VerifyError{Block: b.Name, Rule: "unique-block-name", Detail: "duplicate block name"}
		}
		if len(b.Instructions) == 0 {
			return nil, &VerifyError{Block: b.Name, Rule: "nonempty-block", Detail: "block has no instructions"}
		}
		p.Blocks[b.Name] = b
		p.Order = append(p.Order, b.Name)
	}

	if err := verifyStartExists(p); err != nil {
		return nil, err
	}
	if err := verifyTerminators(p); err != nil {
		return nil, err
	}
	if err := verifyTargetsExist(p); err != nil {
		return nil, err
	}
	if err := verifySinglePredecessor(p); err != nil {
		return nil, err
	}
	if err := verifySingleReturn(p); err != nil {
		return nil, err
	}
	if err := verifyPhiPrefixAndChoices(p); err != nil {
		return nil, err
	}
	if err := verifyDefBeforeUse(p); err != nil {
		return nil, err
	}

	return p, nil
}

// Invariant 1.
func verifyStartExists(p *Program) error {
	if _, ok := p.Blocks[p.Start]; !ok {
		return &VerifyError{Rule: "start-exists", Detail: fmt.Sprintf("start block %q does not exist", p.Start)}
	}
	return nil
}

// Invariant 5: only the last instruction of a block may be a
// terminator kind, and it must be one.
func verifyTerminators(p *Program) error {
	for _, name := range p.Order {
		b := p.Blocks[name]
		last := len(b.Instructions) - 1
		for idx, inst := range b.Instructions {
			if idx == last {
				if !inst.IsTerminator() {
					return &VerifyError{Block: name, Instruction: idx, Rule: "terminated-block", Detail: "block does not end with Jump/Branch/Return"}
				}
			} else if inst.IsTerminator() {
				return &VerifyError{Block: name, Instruction: idx, Rule: "terminator-in-middle", Detail: "non-terminator position holds a terminator instruction"}
			}
		}
	}
	return nil
}

// Invariant 2.
func verifyTargetsExist(p *Program) error {
	for _, name := range p.Order {
		b := p.Blocks[name]
		term := b.Instructions[len(b.Instructions)-1]
		switch term.Kind {
		case KJump:
			if _, ok := p.Blocks[term.Target]; !ok {
				return &VerifyError{Block: name, Rule: "jump-target-exists", Detail: fmt.Sprintf("jump target %q does not exist", term.Target)}
			}
		case KBranch:
			if _, ok := p.Blocks[term.TrueTarget]; !ok {
				return &VerifyError{Block: name, Rule: "branch-target-exists", Detail: fmt.Sprintf("true target %q does not exist", term.TrueTarget)}
			}
			if _, ok := p.Blocks[term.FalseTarget]; !ok {
				return &VerifyError{Block: name, Rule: "branch-target-exists", Detail: fmt.Sprintf("false target %q does not exist", term.FalseTarget)}
			}
		}
	}
	return nil
}

// Invariant 3: every non-start block has at least one predecessor.
func verifySinglePredecessor(p *Program) error {
	preds := DirectPredecessors(p)
	for _, name := range p.Order {
		if name == p.Start {
			continue
		}
		if len(preds[name]) == 0 {
			return &VerifyError{Block: name, Rule: "has-predecessor", Detail: "non-start block has no predecessors"}
		}
	}
	return nil
}

// Invariant 4: exactly one block ends with Return.
func verifySingleReturn(p *Program) error {
	count := 0
	for _, name := range p.Order {
		b := p.Blocks[name]
		if b.Instructions[len(b.Instructions)-1].Kind == KReturn {
			count++
		}
	}
	if count != 1 {
		return &VerifyError{Rule: "single-return", Detail: fmt.Sprintf("expected exactly one Return block, found %d", count)}
	}
	return nil
}

// Invariant 6: Phi instructions form a contiguous prefix, and each
// Phi's choices exactly match the block's direct predecessors.
func verifyPhiPrefixAndChoices(p *Program) error {
	preds := DirectPredecessors(p)
	for _, name := range p.Order {
		b := p.Blocks[name]
		sawNonPhi := false
		for idx, inst := range b.Instructions {
			if inst.Kind == KPhi {
				if sawNonPhi {
					return &VerifyError{Block: name, Instruction: idx, Rule: "phi-prefix", Detail: "phi instruction does not appear in contiguous prefix"}
				}
				want := preds[name]
				if len(inst.Choices) != len(want) {
					return &VerifyError{Block: name, Instruction: idx, Rule: "phi-choices-match-preds", Detail: "phi choice set does not match predecessor set"}
				}
				for _, pr := range want {
					if _, ok := inst.Choices[pr]; !ok {
						return &VerifyError{Block: name, Instruction: idx, Rule: "phi-choices-match-preds", Detail: fmt.Sprintf("phi missing choice for predecessor %q", pr)}
					}
				}
				for k := range inst.Choices {
					found := false
					for _, pr := range want {
						if pr == k {
							found = true
							break
						}
					}
					if !found {
						return &VerifyError{Block: name, Instruction: idx, Rule: "phi-choices-match-preds", Detail: fmt.Sprintf("phi has choice for non-predecessor %q", k)}
					}
				}
				for pred, v := range inst.Choices {
					if v.Type != inst.Dest.Type {
						return &VerifyError{Block: name, Instruction: idx, Rule: "phi-choice-type", Detail: fmt.Sprintf("choice from %q has type %s, expected %s", pred, v.Type, inst.Dest.Type)}
					}
				}
			} else {
				sawNonPhi = true
			}
		}
	}
	return nil
}

// Invariant 7: every used variable is defined in a predominator block
// or earlier in the same block (a phi's own per-predecessor uses are
// exempt, since they are evaluated in the predecessor's context).
func verifyDefBeforeUse(p *Program) error {
	predom := Predominators(p)
	defBlock := make(map[*Variable]string)
	for _, name := range p.Order {
		b := p.Blocks[name]
		for _, inst := range b.Instructions {
			if d := instDest(inst); d != nil {
				defBlock[d] = name
			}
		}
	}

	definedBefore := func(v *Variable, block string, idx int) bool {
		db, ok := defBlock[v]
		if !ok {
			return false
		}
		if db == block {
			// earlier in the same block: scan instructions before idx
			for i := 0; i < idx; i++ {
				if d := instDest(p.Blocks[block].Instructions[i]); d == v {
					return true
				}
			}
			return false
		}
		return predom[block][db]
	}

	for _, name := range p.Order {
		b := p.Blocks[name]
		for idx, inst := range b.Instructions {
			if inst.Kind == KPhi {
				continue // phi uses are predecessor-scoped, checked separately below
			}
			for _, u := range instUses(inst) {
				if !definedBefore(u, name, idx) {
					return &VerifyError{Block: name, Instruction: idx, Rule: "def-before-use", Detail: fmt.Sprintf("variable %s used before definition", u)}
				}
			}
		}
	}
	// Phi choices: the chosen variable must be defined at or before the
	// end of the corresponding predecessor block.
	for _, name := range p.Order {
		b := p.Blocks[name]
		for idx, inst := range b.Instructions {
			if inst.Kind != KPhi {
				continue
			}
			for pred, v := range inst.Choices {
				db, ok := defBlock[v]
				if !ok || !(db == pred || predom[pred][db]) {
					return &VerifyError{Block: name, Instruction: idx, Rule: "phi-def-before-use", Detail: fmt.Sprintf("phi choice %s from %q not defined there", v, pred)}
				}
			}
		}
	}
	return nil
}

func instDest(inst *Instruction) *Variable {
	switch inst.Kind {
	case KAssign, KAdd, KSub, KCompare, KDiscreteDistribution, KPhi:
		return inst.Dest
	default:
		return nil
	}
}

func instUses(inst *Instruction) []*Variable {
	var out []*Variable
	add := func(o VOL) {
		if o.IsVar {
			out = append(out, o.Var)
		}
	}
	switch inst.Kind {
	case KAssign:
		add(inst.Operand)
	case KAdd, KSub, KCompare:
		add(inst.Lhs)
		add(inst.Rhs)
	case KObserve, KBranch:
		add(inst.Cond)
	}
	return out
}
