package langgen

import (
	"fmt"

	"github.com/alecthomas/participle/v2/lexer"

	"sl-debugger/internal/debuginfo"
	sldebugerrors "sl-debugger/internal/errors"
	"sl-debugger/internal/ir"
	"sl-debugger/internal/sample"
)

// scope is a lexical binding environment: source name -> current SSA
// variable. An assignment writes into the CURRENT scope's own map
// rather than mutating an ancestor's, so that diffing a branch's own
// map against its parent afterward tells you exactly which names that
// branch touched — the mechanism lowerIf and lowerWhile use below to
// decide which names need a merge phi.
type scope struct {
	vars   map[string]*ir.Variable
	parent *scope
}

func newScope(parent *scope) *scope {
	return &scope{vars: make(map[string]*ir.Variable), parent: parent}
}

func (s *scope) lookup(name string) (*ir.Variable, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// declaredHere reports whether name was declared directly in this
// scope (not an ancestor) — used to catch duplicate declarations.
func (s *scope) declaredHere(name string) bool {
	_, ok := s.vars[name]
	return ok
}

func (s *scope) set(name string, v *ir.Variable) { s.vars[name] = v }

// flatten returns every name visible from s, source-name -> variable,
// innermost binding winning.
func (s *scope) flatten() map[string]*ir.Variable {
	out := make(map[string]*ir.Variable)
	chain := []*scope{}
	for cur := s; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		for k, v := range chain[i].vars {
			out[k] = v
		}
	}
	return out
}

// blockBuf accumulates one basic block's instructions before it is
// sealed and registered with the builder.
type blockBuf struct {
	name  string
	insts []*ir.Instruction
}

func (b *blockBuf) append(inst *ir.Instruction) { b.insts = append(b.insts, inst) }
func (b *blockBuf) nextIndex() int              { return len(b.insts) }

// lowerer carries the construction-time state threaded through one
// top-to-bottom lowering pass: the IR builder, the debug-info bridge
// being populated, and the per-declared-name counters used to
// disambiguate shadowed source names ("x", "x#2", "x#3", ...).
type lowerer struct {
	b           *ir.Builder
	debug       *debuginfo.Info
	declCounts  map[string]int
	tempCounter int
}

// Lower compiles file into an ir.Program plus its accompanying
// debuginfo.Info, or an IRGenError if file is not well-formed: use of
// an undeclared variable, a duplicate declaration in the same scope,
// an unsupported comparison operator, or a discrete-distribution table
// whose probabilities don't sum to 1.
func Lower(file *SourceFile) (*ir.Program, *debuginfo.Info, error) {
	lw := &lowerer{
		b:          ir.NewBuilder(),
		debug:      debuginfo.New(),
		declCounts: make(map[string]int),
	}

	entry := &blockBuf{name: "entry"}
	top := newScope(nil)

	finalBlock, finalScope, err := lw.lowerStatements(file.Statements, top, entry)
	if err != nil {
		return nil, nil, err
	}
	finalBlock.append(&ir.Instruction{Kind: ir.KReturn})
	lw.debug.Set(ir.Position{Block: finalBlock.name, Index: finalBlock.nextIndex() - 1},
		&debuginfo.InstructionDebugInfo{
			Variables:      finalScope.flatten(),
			Classification: debuginfo.ReturnStatement,
		})
	lw.seal(finalBlock)

	program, err := lw.b.Build("entry")
	if err != nil {
		return nil, nil, sldebugerrors.NewIRGenError(sldebugerrors.Position{}, "internal: %s", err)
	}
	return program, lw.debug, nil
}

func (lw *lowerer) seal(b *blockBuf) {
	lw.b.AddBlock(&ir.BasicBlock{Name: b.name, Instructions: b.insts})
}

func lwPos(p lexer.Position) sldebugerrors.Position {
	return sldebugerrors.Position{Line: p.Line, Column: p.Column}
}

// freshName disambiguates name for a new declaration: the first
// declaration of a given source name keeps it bare, every subsequent
// one (a shadowing re-declaration in a nested scope) gets "#N"
// appended, matching the sample program where a nested block
// redeclares an outer name.
func (lw *lowerer) freshName(name string) string {
	lw.declCounts[name]++
	if n := lw.declCounts[name]; n > 1 {
		return fmt.Sprintf("%s#%d", name, n)
	}
	return name
}

// touchedNames reports every name visible in base whose binding
// differs in final — the set a nested scope actually rebound relative
// to its parent. Diffing the flattened parent view rather than
// reading final's own leaf map directly matters once the nested scope
// is itself the product of an earlier merge (e.g. a sequence of ifs
// inside a loop body): the leaf scope's own map only holds the names
// touched by the LAST merge, while lookup/flatten walk the full chain
// back to wherever each name was actually last bound.
func touchedNames(final, base *scope) map[string]bool {
	out := map[string]bool{}
	for name, baseVar := range base.flatten() {
		if v, ok := final.lookup(name); ok && v != baseVar {
			out[name] = true
		}
	}
	return out
}

func (lw *lowerer) newTemp(t ir.Type) *ir.Variable {
	lw.tempCounter++
	return lw.b.FreshVariable(fmt.Sprintf("t%d", lw.tempCounter), t)
}

func (lw *lowerer) recordDebug(cur *blockBuf, sc *scope, pos lexer.Position, class debuginfo.Classification) {
	lw.debug.Set(ir.Position{Block: cur.name, Index: cur.nextIndex()}, &debuginfo.InstructionDebugInfo{
		Variables:      sc.flatten(),
		SourceRange:    debuginfo.SourceLocation{Line: pos.Line, Column: pos.Column},
		Classification: class,
	})
}

// lowerStatements lowers stmts in order into cur, returning the block
// and scope execution ends up in (which may differ from cur/sc, since
// an if or while seals off its own sub-blocks and continues in a
// fresh merge/after block and scope).
func (lw *lowerer) lowerStatements(stmts []*Statement, sc *scope, cur *blockBuf) (*blockBuf, *scope, error) {
	for _, st := range stmts {
		var err error
		cur, sc, err = lw.lowerStatement(st, sc, cur)
		if err != nil {
			return nil, nil, err
		}
	}
	return cur, sc, nil
}

func (lw *lowerer) lowerStatement(st *Statement, sc *scope, cur *blockBuf) (*blockBuf, *scope, error) {
	switch {
	case st.Decl != nil:
		return lw.lowerDecl(st.Decl, sc, cur)
	case st.Assign != nil:
		return lw.lowerAssign(st.Assign, sc, cur)
	case st.Observe != nil:
		return lw.lowerObserve(st.Observe, sc, cur)
	case st.Block != nil:
		inner := newScope(sc)
		next, innerFinal, err := lw.lowerStatements(st.Block.Statements, inner, cur)
		if err != nil {
			return nil, nil, err
		}
		// A bare block's own declarations go out of scope at its end, but
		// a reassignment of a name visible before the block must survive
		// it — the same touchedNames diff lowerIf/lowerWhile use to merge
		// branch effects back into the continuing scope, minus the phi:
		// a block has exactly one predecessor, so the new binding can be
		// written straight back into sc rather than merged.
		for name := range touchedNames(innerFinal, sc) {
			v, _ := innerFinal.lookup(name)
			sc.set(name, v)
		}
		return next, sc, nil
	case st.If != nil:
		return lw.lowerIf(st.If, sc, cur)
	case st.While != nil:
		return lw.lowerWhile(st.While, sc, cur)
	default:
		return nil, nil, sldebugerrors.NewIRGenError(lwPos(st.Pos), "empty statement")
	}
}

func (lw *lowerer) lowerDecl(d *VarDecl, sc *scope, cur *blockBuf) (*blockBuf, *scope, error) {
	if sc.declaredHere(d.Name) {
		return nil, nil, sldebugerrors.NewIRGenError(lwPos(d.Pos), "duplicate declaration of %q in this scope", d.Name)
	}
	t := ir.Int
	if d.Type == "bool" {
		t = ir.Bool
	}
	val, err := lw.lowerExpr(d.Value, sc, cur)
	if err != nil {
		return nil, nil, err
	}
	if val.Type() != t {
		return nil, nil, sldebugerrors.NewIRGenError(lwPos(d.Pos), "cannot assign %s value to %s variable %q", val.Type(), t, d.Name)
	}
	dest := lw.b.FreshVariable(lw.freshName(d.Name), t)
	cur.append(&ir.Instruction{Kind: ir.KAssign, Dest: dest, Operand: val})
	sc.set(d.Name, dest)
	lw.recordDebug(cur, sc, d.Pos, debuginfo.Simple)
	return cur, sc, nil
}

func (lw *lowerer) lowerAssign(a *AssignStmt, sc *scope, cur *blockBuf) (*blockBuf, *scope, error) {
	existing, ok := sc.lookup(a.Name)
	if !ok {
		return nil, nil, sldebugerrors.NewIRGenError(lwPos(a.Pos), "assignment to undeclared variable %q", a.Name)
	}
	val, err := lw.lowerExpr(a.Value, sc, cur)
	if err != nil {
		return nil, nil, err
	}
	if val.Type() != existing.Type {
		return nil, nil, sldebugerrors.NewIRGenError(lwPos(a.Pos), "cannot assign %s value to %s variable %q", val.Type(), existing.Type, a.Name)
	}
	dest := lw.b.FreshVariable(existing.Name, existing.Type)
	cur.append(&ir.Instruction{Kind: ir.KAssign, Dest: dest, Operand: val})
	sc.set(a.Name, dest)
	lw.recordDebug(cur, sc, a.Pos, debuginfo.Simple)
	return cur, sc, nil
}

func (lw *lowerer) lowerObserve(o *ObserveStmt, sc *scope, cur *blockBuf) (*blockBuf, *scope, error) {
	cond, err := lw.lowerExpr(o.Arg, sc, cur)
	if err != nil {
		return nil, nil, err
	}
	if cond.Type() != ir.Bool {
		return nil, nil, sldebugerrors.NewIRGenError(lwPos(o.Pos), "observe(...) requires a bool expression")
	}
	cur.append(&ir.Instruction{Kind: ir.KObserve, Cond: cond})
	lw.recordDebug(cur, sc, o.Pos, debuginfo.Simple)
	return cur, sc, nil
}

// lowerExpr lowers a single comparison-level expression to a VOL,
// emitting a Compare instruction when a CompareTail is present.
// SL's grammar accepts the full C-style comparison set but the IR only
// has Eq and Lt; ">" is rewritten as a swapped "<", and "!=" / "<=" /
// ">=" are rejected, since expressing their negation would need a Not
// instruction the IR doesn't have.
func (lw *lowerer) lowerExpr(e *Expr, sc *scope, cur *blockBuf) (ir.VOL, error) {
	left, err := lw.lowerAddExpr(e.Left, sc, cur)
	if err != nil {
		return ir.VOL{}, err
	}
	if e.Compare == nil {
		return left, nil
	}
	right, err := lw.lowerAddExpr(e.Compare.Right, sc, cur)
	if err != nil {
		return ir.VOL{}, err
	}
	if left.Type() != right.Type() {
		return ir.VOL{}, sldebugerrors.NewIRGenError(lwPos(e.Compare.Pos), "cannot compare %s with %s", left.Type(), right.Type())
	}

	var op ir.CompareOp
	switch e.Compare.Operator {
	case "==":
		op = ir.Eq
	case "<":
		op = ir.Lt
	case ">":
		op, left, right = ir.Lt, right, left
	default:
		return ir.VOL{}, sldebugerrors.NewIRGenError(lwPos(e.Compare.Pos), "unsupported comparison operator %q", e.Compare.Operator)
	}

	dest := lw.newTemp(ir.Bool)
	cur.append(&ir.Instruction{Kind: ir.KCompare, Dest: dest, Lhs: left, Rhs: right, Cmp: op})
	return ir.VarOperand(dest), nil
}

func (lw *lowerer) lowerAddExpr(a *AddExpr, sc *scope, cur *blockBuf) (ir.VOL, error) {
	operand, err := lw.lowerPrimary(a.Left, sc, cur)
	if err != nil {
		return ir.VOL{}, err
	}
	for _, op := range a.Ops {
		if operand.Type() != ir.Int {
			return ir.VOL{}, sldebugerrors.NewIRGenError(lwPos(op.Pos), "operator %q requires int operands", op.Operator)
		}
		right, err := lw.lowerPrimary(op.Right, sc, cur)
		if err != nil {
			return ir.VOL{}, err
		}
		if right.Type() != ir.Int {
			return ir.VOL{}, sldebugerrors.NewIRGenError(lwPos(op.Pos), "operator %q requires int operands", op.Operator)
		}
		kind := ir.KAdd
		if op.Operator == "-" {
			kind = ir.KSub
		}
		dest := lw.newTemp(ir.Int)
		cur.append(&ir.Instruction{Kind: kind, Dest: dest, Lhs: operand, Rhs: right})
		operand = ir.VarOperand(dest)
	}
	return operand, nil
}

func (lw *lowerer) lowerPrimary(p *Primary, sc *scope, cur *blockBuf) (ir.VOL, error) {
	switch {
	case p.Discrete != nil:
		return lw.lowerDiscrete(p.Discrete, cur)
	case p.Number != nil:
		return ir.IntLiteral(*p.Number), nil
	case p.Bool != nil:
		return ir.BoolLiteral(*p.Bool == "true"), nil
	case p.Ident != nil:
		v, ok := sc.lookup(*p.Ident)
		if !ok {
			return ir.VOL{}, sldebugerrors.NewIRGenError(lwPos(p.Pos), "use of undeclared variable %q", *p.Ident)
		}
		return ir.VarOperand(v), nil
	case p.Paren != nil:
		return lw.lowerExpr(p.Paren, sc, cur)
	default:
		return ir.VOL{}, sldebugerrors.NewIRGenError(lwPos(p.Pos), "empty expression")
	}
}

// lowerDiscrete validates and lowers a discrete({k: p, ...}) literal.
// The sum-to-1 check mirrors sample.ProbabilityTolerance, the same
// epsilon the runtime sampler uses when drawing from an already-built
// table; doing the check here turns a malformed table into a
// reportable IRGenError at compile time instead of the ProgramBug
// panic step.go raises for a table that should never have reached it.
func (lw *lowerer) lowerDiscrete(d *DiscreteExpr, cur *blockBuf) (ir.VOL, error) {
	table := make(map[int64]float64, len(d.Entries))
	sum := 0.0
	for _, entry := range d.Entries {
		if _, dup := table[entry.Key]; dup {
			return ir.VOL{}, sldebugerrors.NewIRGenError(lwPos(entry.Pos), "duplicate discrete outcome %d", entry.Key)
		}
		table[entry.Key] = entry.Prob
		sum += entry.Prob
	}
	if diff := sum - 1.0; diff < -sample.ProbabilityTolerance || diff > sample.ProbabilityTolerance {
		return ir.VOL{}, sldebugerrors.NewIRGenError(lwPos(d.Pos), "discrete distribution probabilities sum to %g, not 1.0", sum)
	}
	dest := lw.newTemp(ir.Int)
	cur.append(&ir.Instruction{Kind: ir.KDiscreteDistribution, Dest: dest, Table: table})
	return ir.VarOperand(dest), nil
}

// lowerIf lowers an if/else into three or four blocks: the current
// block ends in a Branch, "then" and (if present) "else" each lower
// their own body starting from a fresh block, and control rejoins in
// a new "after" block. Any source name assigned in one arm but not
// the other needs a phi in "after" choosing between the arm's new
// binding and the pre-if binding (the other arm never touched it).
// Any name assigned in BOTH arms needs a phi choosing between the two
// arms' final bindings.
func (lw *lowerer) lowerIf(st *IfStmt, sc *scope, cur *blockBuf) (*blockBuf, *scope, error) {
	cond, err := lw.lowerExpr(st.Cond, sc, cur)
	if err != nil {
		return nil, nil, err
	}
	if cond.Type() != ir.Bool {
		return nil, nil, sldebugerrors.NewIRGenError(lwPos(st.Pos), "if condition must be bool")
	}

	thenName := lw.b.FreshBlockName("if_then")
	afterName := lw.b.FreshBlockName("if_after")
	elseName := afterName
	if st.Else != nil {
		elseName = lw.b.FreshBlockName("if_else")
	}
	// Recorded before the append: StepInto requires the controller's
	// current position to land exactly on the Branch instruction, so
	// this debug entry's index must be the branch's own, not one past it
	// (which would name a position execution never actually stops at).
	lw.recordDebug(cur, sc, st.Pos, debuginfo.IfElseBranch)
	cur.append(&ir.Instruction{Kind: ir.KBranch, Cond: cond, TrueTarget: thenName, FalseTarget: elseName})
	lw.seal(cur)

	thenScope := newScope(sc)
	thenBlock := &blockBuf{name: thenName}
	thenTail, thenScope, err := lw.lowerStatements(st.Then.Statements, thenScope, thenBlock)
	if err != nil {
		return nil, nil, err
	}

	elseScope := newScope(sc)
	elseTail := (*blockBuf)(nil)
	if st.Else != nil {
		elseBlock := &blockBuf{name: elseName}
		elseTail, elseScope, err = lw.lowerStatements(st.Else.Statements, elseScope, elseBlock)
		if err != nil {
			return nil, nil, err
		}
	}

	touched := touchedNames(thenScope, sc)
	if st.Else != nil {
		for n := range touchedNames(elseScope, sc) {
			touched[n] = true
		}
	}

	// When there is no else arm, the branch's false target IS afterName
	// directly (no intermediate block), so the false-side phi
	// predecessor is cur itself, not elseName (which then just aliases
	// afterName and is never a real block). Otherwise each arm's phi
	// predecessor is the block that arm ends in, which differs from its
	// first block once the arm contains its own if or while.
	falsePred := cur.name
	if st.Else != nil {
		falsePred = elseTail.name
	}

	after := &blockBuf{name: afterName}
	afterScope := newScope(sc)
	for name := range touched {
		base, _ := sc.lookup(name)
		thenVar, _ := thenScope.lookup(name)
		elseVar := base
		if st.Else != nil {
			if v, ok := elseScope.lookup(name); ok {
				elseVar = v
			}
		}
		dest := lw.b.FreshVariable(base.Name, base.Type)
		choices := map[string]*ir.Variable{thenTail.name: thenVar, falsePred: elseVar}
		after.append(&ir.Instruction{Kind: ir.KPhi, Dest: dest, Choices: choices})
		afterScope.set(name, dest)
	}

	thenTail.append(&ir.Instruction{Kind: ir.KJump, Target: afterName})
	lw.seal(thenTail)
	if st.Else != nil {
		elseTail.append(&ir.Instruction{Kind: ir.KJump, Target: afterName})
		lw.seal(elseTail)
	}

	return after, afterScope, nil
}

// lowerWhile lowers a while loop into a header block (phis for every
// loop-carried name plus the condition/branch), a body block that
// jumps back to the header, and an after block. The set of
// loop-carried names is computed by a static pre-scan of the body's
// AST, since the header's phis must exist before the body is lowered
// but the body's actual write-set is only known after lowering it; a
// name in the pre-scan's over-approximation that the body turns out
// not to reassign simply gets a phi that chooses itself on the
// body-block predecessor, which is valid SSA.
func (lw *lowerer) lowerWhile(st *WhileStmt, sc *scope, cur *blockBuf) (*blockBuf, *scope, error) {
	headerName := lw.b.FreshBlockName("while_header")
	bodyName := lw.b.FreshBlockName("while_body")
	afterName := lw.b.FreshBlockName("while_after")

	cur.append(&ir.Instruction{Kind: ir.KJump, Target: headerName})
	lw.seal(cur)

	carried := map[string]bool{}
	for name := range assignedNames(st.Body.Statements) {
		if _, ok := sc.lookup(name); ok {
			carried[name] = true
		}
	}

	header := &blockBuf{name: headerName}
	headerScope := newScope(sc)
	preheaderPhis := make(map[string]*ir.Variable, len(carried))
	for name := range carried {
		base, _ := sc.lookup(name)
		dest := lw.b.FreshVariable(base.Name, base.Type)
		preheaderPhis[name] = dest
		headerScope.set(name, dest)
	}
	// Phi choices reference the body block before it has been lowered;
	// this is legal because BasicBlock fields are filled in before any
	// verifier/executor ever inspects them, and the body's own final
	// binding for each carried name is patched in once known below.
	phiInsts := make(map[string]*ir.Instruction, len(carried))
	for name, dest := range preheaderPhis {
		base, _ := sc.lookup(name)
		inst := &ir.Instruction{Kind: ir.KPhi, Dest: dest, Choices: map[string]*ir.Variable{
			cur.name: base,
			bodyName: base, // placeholder, patched below once the body scope is known
		}}
		phiInsts[name] = inst
		header.append(inst)
	}

	cond, err := lw.lowerExpr(st.Cond, headerScope, header)
	if err != nil {
		return nil, nil, err
	}
	if cond.Type() != ir.Bool {
		return nil, nil, sldebugerrors.NewIRGenError(lwPos(st.Pos), "while condition must be bool")
	}
	// See the matching comment in lowerIf: this must be recorded before
	// the append so its index names the branch instruction itself.
	lw.recordDebug(header, headerScope, st.Pos, debuginfo.LoopBranch)
	header.append(&ir.Instruction{Kind: ir.KBranch, Cond: cond, TrueTarget: bodyName, FalseTarget: afterName})
	lw.seal(header)

	bodyScope := newScope(headerScope)
	bodyBlock := &blockBuf{name: bodyName}
	bodyTail, bodyScope, err := lw.lowerStatements(st.Body.Statements, bodyScope, bodyBlock)
	if err != nil {
		return nil, nil, err
	}
	// The back edge comes from the block the body ends in, which is not
	// bodyName itself once the body contains its own if or while.
	for name, inst := range phiInsts {
		v, _ := bodyScope.lookup(name)
		delete(inst.Choices, bodyName)
		inst.Choices[bodyTail.name] = v
	}
	bodyTail.append(&ir.Instruction{Kind: ir.KJump, Target: headerName})
	lw.seal(bodyTail)

	after := &blockBuf{name: afterName}
	afterScope := newScope(sc)
	for name := range carried {
		afterScope.set(name, preheaderPhis[name])
	}
	return after, afterScope, nil
}

// assignedNames returns the set of source names directly assigned to
// (AssignStmt, not VarDecl) anywhere in stmts, recursing into nested
// if/while/block bodies. It over-approximates a while loop's
// loop-carried set: a name assigned only inside one arm of a nested if
// still needs a header phi, since whether that arm runs varies by
// sample.
func assignedNames(stmts []*Statement) map[string]bool {
	out := map[string]bool{}
	var walk func([]*Statement)
	walk = func(stmts []*Statement) {
		for _, st := range stmts {
			switch {
			case st.Assign != nil:
				out[st.Assign.Name] = true
			case st.If != nil:
				walk(st.If.Then.Statements)
				if st.If.Else != nil {
					walk(st.If.Else.Statements)
				}
			case st.While != nil:
				walk(st.While.Body.Statements)
			case st.Block != nil:
				walk(st.Block.Statements)
			}
		}
	}
	walk(stmts)
	return out
}
