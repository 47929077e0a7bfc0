// Package outline builds a structured "execution outline" for a whole
// run: a tree recording every branch taken and every loop's
// iterations, for display once a run completes.
package outline

import (
	"github.com/segmentio/ksuid"

	"sl-debugger/internal/debuginfo"
	"sl-debugger/internal/exec"
	"sl-debugger/internal/ir"
)

// NodeKind discriminates the outline tree's node types.
type NodeKind int

const (
	InstructionNode NodeKind = iota
	BranchNode
	LoopNode
)

// Node is one outline tree node. Depending on Kind:
//   - InstructionNode: a straight-line stop; only State is meaningful.
//   - BranchNode: True and/or False hold the outline for each branch
//     that had surviving samples (nil if none did).
//   - LoopNode: Iterations holds one outline per loop traversal.
type Node struct {
	ID         string
	Kind       NodeKind
	State      exec.State
	True       *Node
	False      *Node
	Iterations []*Node
	Next       *Node // what follows this node in straight-line order
}

// Generator builds outlines from a program, its debug info, and an
// executor.
type Generator struct {
	program  *ir.Program
	debug    *debuginfo.Info
	executor *exec.Executor
}

func New(program *ir.Program, debug *debuginfo.Info, executor *exec.Executor) *Generator {
	return &Generator{program: program, debug: debug, executor: executor}
}

// Build produces an outline tree for a fresh run starting with n
// samples, by recursively walking the program: at each source-level
// conditional it peeks the executor's branch split, at each loop
// back-edge it groups body iterations until the loop condition fails
// for every remaining sample, and elsewhere it advances one
// single-branch step at a time.
func (g *Generator) Build(n int) *Node {
	state := exec.Initial(g.program, n)
	return g.walk(state, map[string]bool{})
}

func (g *Generator) walk(state exec.State, inLoopHeaders map[string]bool) *Node {
	if !state.HasSamples() {
		return &Node{ID: ksuid.New().String(), Kind: InstructionNode, State: state}
	}

	inst, ok := g.program.InstructionAt(state.Position)
	if !ok || inst.Kind == ir.KReturn {
		return &Node{ID: ksuid.New().String(), Kind: InstructionNode, State: state}
	}

	if loop, isHeader := loopAt(g.program, state.Position); isHeader && !inLoopHeaders[loop.Header] {
		return g.walkLoop(state, loop, inLoopHeaders)
	}

	if inst.Kind == ir.KBranch {
		return g.walkBranch(state, inLoopHeaders)
	}

	next, err := g.executor.StepSingleBranch(state)
	if err != nil {
		// A fork the caller didn't expect to see here (e.g. the branch
		// check above should have caught it); fall back to treating it
		// as a branch node so the outline still reflects what the
		// executor actually did.
		return g.walkBranch(state, inLoopHeaders)
	}
	node := &Node{ID: ksuid.New().String(), Kind: InstructionNode, State: state}
	node.Next = g.walk(next, inLoopHeaders)
	return node
}

func (g *Generator) walkBranch(state exec.State, inLoopHeaders map[string]bool) *Node {
	succs := g.executor.Step(state)
	node := &Node{ID: ksuid.New().String(), Kind: BranchNode, State: state}
	inst, _ := g.program.InstructionAt(state.Position)
	for _, s := range succs {
		if !s.HasSamples() {
			continue
		}
		child := g.walk(s, inLoopHeaders)
		if s.Position.Block == inst.TrueTarget {
			node.True = child
		} else {
			node.False = child
		}
	}
	return node
}

// walkLoop groups the header-and-body traversal into one Iterations
// entry per pass of the loop body: it walks straight-line through the
// header block up to its own terminating Branch, then (assuming the
// canonical shape the IR lowering produces, where a loop's only way
// out is that branch, and its "continue" target is always inside the
// loop body and always finds its way back to the header) either
// recurses into the body and loops again, or treats the other arm as
// the loop's exit, attaching it as Next rather than as another
// iteration.
func (g *Generator) walkLoop(state exec.State, loop *ir.Loop, inLoopHeaders map[string]bool) *Node {
	node := &Node{ID: ksuid.New().String(), Kind: LoopNode, State: state}

	cur := state
	for cur.HasSamples() {
		iterRoot, iterTail, branchState, reachedBranch := g.walkWithinHeaderToBranch(cur, loop.Header)
		if !reachedBranch {
			node.Next = iterRoot
			break
		}

		inst, _ := g.program.InstructionAt(branchState.Position)
		succs := g.executor.Step(branchState)
		branchNode := &Node{ID: ksuid.New().String(), Kind: BranchNode, State: branchState}
		iterTail.Next = branchNode

		var continueState *exec.State
		for i := range succs {
			s := succs[i]
			if !s.HasSamples() {
				continue
			}
			isTrue := s.Position.Block == inst.TrueTarget
			target := inst.FalseTarget
			if isTrue {
				target = inst.TrueTarget
			}

			if loop.Body[target] && target != loop.Header {
				cs := s
				continueState = &cs
				continue // the next pass through the loop is this arm's subtree
			}
			child := g.walk(s, inLoopHeaders)
			if isTrue {
				branchNode.True = child
			} else {
				branchNode.False = child
			}
		}

		if continueState == nil || !continueState.HasSamples() {
			node.Next = iterRoot
			break
		}
		node.Iterations = append(node.Iterations, iterRoot)
		cur = *continueState
	}
	return node
}

// walkWithinHeaderToBranch walks straight-line instructions starting
// at state, which may be the loop header itself or a point inside its
// body, up to the next Branch instruction reached (assumed to be the
// header's own, per the canonical loop shape). It returns the chain's
// root and tail nodes and, if a branch was reached with live samples,
// the state positioned at it.
func (g *Generator) walkWithinHeaderToBranch(state exec.State, header string) (root, tail *Node, branchState exec.State, reachedBranch bool) {
	cur := state
	for cur.HasSamples() {
		inst, ok := g.program.InstructionAt(cur.Position)
		if !ok || inst.Kind == ir.KReturn {
			n := &Node{ID: ksuid.New().String(), Kind: InstructionNode, State: cur}
			root, tail = appendNode(root, tail, n)
			return root, tail, exec.State{}, false
		}
		if inst.Kind == ir.KBranch {
			return root, tail, cur, true
		}
		next, err := g.executor.StepSingleBranch(cur)
		n := &Node{ID: ksuid.New().String(), Kind: InstructionNode, State: cur}
		root, tail = appendNode(root, tail, n)
		if err != nil {
			return root, tail, exec.State{}, false
		}
		cur = next
	}
	n := &Node{ID: ksuid.New().String(), Kind: InstructionNode, State: cur}
	root, tail = appendNode(root, tail, n)
	return root, tail, exec.State{}, false
}

func appendNode(root, tail *Node, n *Node) (*Node, *Node) {
	if root == nil {
		return n, n
	}
	tail.Next = n
	return root, n
}

// loopAt reports whether pos sits inside the header block of a loop
// (identified via the IR's loop-detection analysis), and if so the
// loop descriptor itself. The position's Index may already be past 0:
// jumpTo consumes a header's leading Phi instructions before it ever
// hands control back to the caller, so the first position the
// generator actually observes after entering a loop is already past
// its Phi.
func loopAt(p *ir.Program, pos ir.Position) (*ir.Loop, bool) {
	for _, l := range ir.Loops(p) {
		if l.Header == pos.Block {
			return l, true
		}
	}
	return nil, false
}

// CountIterations reports how many loop iterations an outline node
// contains.
func (n *Node) CountIterations() int {
	if n.Kind != LoopNode {
		return 0
	}
	return len(n.Iterations)
}
