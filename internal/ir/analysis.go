package ir

import (
	"sort"

	"github.com/sasha-s/go-deadlock"
)

// analysisCache memoizes the pure analyses below for the lifetime of
// an (immutable) Program. It is built lazily and guarded by a
// deadlock-detecting mutex because the debugger controller and an
// optional parallel per-sample executor may query analyses from more
// than one goroutine concurrently.
type analysisCache struct {
	mu            deadlock.Mutex
	directPred    map[string][]string
	directSucc    map[string][]string
	transPred     map[string]map[string]bool
	predominators map[string]map[string]bool
	postdom       map[string]map[string]bool
	idom          map[string]string
	ipdom         map[string]string
	loops         []*Loop
	loopsDone     bool
}

// Loop is a strongly-connected region of the successor graph
// identified by a back edge (an edge whose head predominates its tail).
type Loop struct {
	Header string
	Body   map[string]bool
}

func (p *Program) cache() *analysisCache {
	if p.analysis == nil {
		p.analysis = &analysisCache{}
	}
	return p.analysis
}

// DirectPredecessors returns, for every block, the set of blocks with
// a terminator that jumps/branches directly to it.
func DirectPredecessors(p *Program) map[string][]string {
	c := p.cache()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.directPred != nil {
		return c.directPred
	}
	preds := make(map[string][]string, len(p.Order))
	for _, name := range p.Order {
		preds[name] = nil
	}
	for _, name := range p.Order {
		for _, succ := range directSuccessorsOf(p.Blocks[name]) {
			preds[succ] = append(preds[succ], name)
		}
	}
	for k := range preds {
		sort.Strings(preds[k])
	}
	c.directPred = preds
	return preds
}

// DirectSuccessors returns, for every block, the blocks its
// terminator may transfer control to.
func DirectSuccessors(p *Program) map[string][]string {
	c := p.cache()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.directSucc != nil {
		return c.directSucc
	}
	succ := make(map[string][]string, len(p.Order))
	for _, name := range p.Order {
		succ[name] = directSuccessorsOf(p.Blocks[name])
	}
	c.directSucc = succ
	return succ
}

func directSuccessorsOf(b *BasicBlock) []string {
	term := b.Instructions[len(b.Instructions)-1]
	switch term.Kind {
	case KJump:
		return []string{term.Target}
	case KBranch:
		return []string{term.TrueTarget, term.FalseTarget}
	default:
		return nil
	}
}

// TransitivePredecessors returns the reflexive-transitive closure of
// DirectPredecessors, computed by DFS from each block.
func TransitivePredecessors(p *Program) map[string]map[string]bool {
	preds := DirectPredecessors(p)
	c := p.cache()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transPred != nil {
		return c.transPred
	}
	out := make(map[string]map[string]bool, len(p.Order))
	for _, name := range p.Order {
		seen := map[string]bool{name: true}
		stack := append([]string(nil), preds[name]...)
		for len(stack) > 0 {
			n := len(stack) - 1
			cur := stack[n]
			stack = stack[:n]
			if seen[cur] {
				continue
			}
			seen[cur] = true
			stack = append(stack, preds[cur]...)
		}
		out[name] = seen
	}
	c.transPred = out
	return out
}

func allBlocks(p *Program) map[string]bool {
	s := make(map[string]bool, len(p.Order))
	for _, n := range p.Order {
		s[n] = true
	}
	return s
}

func intersect(a, b map[string]bool) map[string]bool {
	out := make(map[string]bool)
	for k := range a {
		if b[k] {
			out[k] = true
		}
	}
	return out
}

// Predominators computes, for every block B, the set of blocks
// through which every path from the start block to B must pass
// (including B itself), by classical iterative data-flow to a fixed
// point: pred(B) = {B} ∪ ⋂_{P∈directPred(B)} pred(P), seeded with
// pred(start)={start} and pred(other)=all blocks. The lattice (sets
// ordered by ⊇) has finite height and the transfer function is
// monotone, so this always terminates.
func Predominators(p *Program) map[string]map[string]bool {
	preds := DirectPredecessors(p)
	c := p.cache()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.predominators != nil {
		return c.predominators
	}
	c.predominators = fixedPointDominators(p, preds, p.Start)
	return c.predominators
}

// Postdominators is the symmetric analysis over direct successors,
// seeded at the unique Return block.
func Postdominators(p *Program) map[string]map[string]bool {
	succ := DirectSuccessors(p)
	c := p.cache()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.postdom != nil {
		return c.postdom
	}
	retBlock := p.ReturnPosition().Block
	c.postdom = fixedPointDominators(p, succ, retBlock)
	return c.postdom
}

func fixedPointDominators(p *Program, edges map[string][]string, seed string) map[string]map[string]bool {
	all := allBlocks(p)
	dom := make(map[string]map[string]bool, len(p.Order))
	for _, name := range p.Order {
		if name == seed {
			dom[name] = map[string]bool{seed: true}
		} else {
			cp := make(map[string]bool, len(all))
			for k := range all {
				cp[k] = true
			}
			dom[name] = cp
		}
	}
	changed := true
	for changed {
		changed = false
		for _, name := range p.Order {
			if name == seed {
				continue
			}
			var acc map[string]bool
			for _, e := range edges[name] {
				if acc == nil {
					acc = cloneSet(dom[e])
				} else {
					acc = intersect(acc, dom[e])
				}
			}
			if acc == nil {
				acc = make(map[string]bool)
			}
			acc[name] = true
			if !setEquals(acc, dom[name]) {
				dom[name] = acc
				changed = true
			}
		}
	}
	return dom
}

func cloneSet(s map[string]bool) map[string]bool {
	out := make(map[string]bool, len(s))
	for k := range s {
		out[k] = true
	}
	return out
}

func setEquals(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// ProperDominators is Predominators minus the block itself.
func ProperDominators(p *Program, block string) map[string]bool {
	out := cloneSet(Predominators(p)[block])
	delete(out, block)
	return out
}

// ProperPostdominators is Postdominators minus the block itself.
func ProperPostdominators(p *Program, block string) map[string]bool {
	out := cloneSet(Postdominators(p)[block])
	delete(out, block)
	return out
}

// ImmediateDominator returns the unique proper predominator D of
// block whose own proper predominators are exactly block's proper
// predominators minus D, or ("", false) if block is the start block.
func ImmediateDominator(p *Program, block string) (string, bool) {
	c := p.cache()
	c.mu.Lock()
	if c.idom != nil {
		d, ok := c.idom[block]
		c.mu.Unlock()
		return d, ok
	}
	c.mu.Unlock()

	idom := computeImmediate(p, func(b string) map[string]bool { return ProperDominators(p, b) })
	c.mu.Lock()
	c.idom = idom
	d, ok := idom[block]
	c.mu.Unlock()
	return d, ok
}

// ImmediatePostdominator is the symmetric query over postdominators.
func ImmediatePostdominator(p *Program, block string) (string, bool) {
	c := p.cache()
	c.mu.Lock()
	if c.ipdom != nil {
		d, ok := c.ipdom[block]
		c.mu.Unlock()
		return d, ok
	}
	c.mu.Unlock()

	ipdom := computeImmediate(p, func(b string) map[string]bool { return ProperPostdominators(p, b) })
	c.mu.Lock()
	c.ipdom = ipdom
	d, ok := ipdom[block]
	c.mu.Unlock()
	return d, ok
}

func computeImmediate(p *Program, properOf func(string) map[string]bool) map[string]string {
	out := make(map[string]string)
	for _, name := range p.Order {
		proper := properOf(name)
		for cand := range proper {
			candProper := properOf(cand)
			rest := cloneSet(proper)
			delete(rest, cand)
			if setEquals(rest, candProper) {
				out[name] = cand
				break
			}
		}
	}
	return out
}

// Loops enumerates loops once per back edge. A back edge is an edge
// (tail -> head) in the direct-successor graph where head
// predominates tail; the loop body is every block that can reach tail
// without leaving the region bounded by head, i.e. every block from
// which head is reachable and which is reachable from head.
func Loops(p *Program) []*Loop {
	predom := Predominators(p)
	succ := DirectSuccessors(p)
	c := p.cache()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loopsDone {
		return c.loops
	}
	c.loopsDone = true

	reach := reachabilityFrom(p, succ)

	var loops []*Loop
	for _, tail := range p.Order {
		for _, head := range succ[tail] {
			if !predom[tail][head] {
				continue
			}
			body := map[string]bool{head: true, tail: true}
			for _, b := range p.Order {
				if reach[head][b] && reach[b][tail] {
					body[b] = true
				}
			}
			if len(body) >= 2 {
				loops = append(loops, &Loop{Header: head, Body: body})
			}
		}
	}
	c.loops = loops
	return loops
}

func reachabilityFrom(p *Program, succ map[string][]string) map[string]map[string]bool {
	out := make(map[string]map[string]bool, len(p.Order))
	for _, name := range p.Order {
		seen := map[string]bool{name: true}
		stack := append([]string(nil), succ[name]...)
		for len(stack) > 0 {
			n := len(stack) - 1
			cur := stack[n]
			stack = stack[:n]
			if seen[cur] {
				continue
			}
			seen[cur] = true
			stack = append(stack, succ[cur]...)
		}
		out[name] = seen
	}
	return out
}
