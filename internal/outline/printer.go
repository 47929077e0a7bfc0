package outline

import (
	"fmt"
	"sort"
	"strings"

	"sl-debugger/internal/debuginfo"
	"sl-debugger/internal/exec"
)

// Print renders an outline tree as an indented text dump: one line
// per node, straight-line chains flattened to successive lines at the
// same depth, branches and loop iterations indented one level deeper.
// Variable bindings are resolved to source names via debug info where
// available, falling back to the raw IR position otherwise.
func Print(root *Node, debug *debuginfo.Info) string {
	var b strings.Builder
	printChain(&b, root, debug, 0)
	return b.String()
}

func printChain(b *strings.Builder, n *Node, debug *debuginfo.Info, depth int) {
	for n != nil {
		switch n.Kind {
		case InstructionNode:
			writeLine(b, depth, fmt.Sprintf("%s %s", n.State.Position, describeState(n.State, debug)))
		case BranchNode:
			writeLine(b, depth, fmt.Sprintf("branch at %s", n.State.Position))
			if n.True != nil {
				writeLine(b, depth+1, "true:")
				printChain(b, n.True, debug, depth+2)
			}
			if n.False != nil {
				writeLine(b, depth+1, "false:")
				printChain(b, n.False, debug, depth+2)
			}
		case LoopNode:
			writeLine(b, depth, fmt.Sprintf("loop at %s (%d iterations)", n.State.Position, len(n.Iterations)))
			for i, it := range n.Iterations {
				writeLine(b, depth+1, fmt.Sprintf("iteration %d:", i+1))
				printChain(b, it, debug, depth+2)
			}
		}
		n = n.Next
	}
}

func writeLine(b *strings.Builder, depth int, s string) {
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(s)
	b.WriteString("\n")
}

func describeState(state exec.State, debug *debuginfo.Info) string {
	n := len(state.Samples)
	vars, ok := debug.VariablesAt(state.Position)
	if !ok || n == 0 {
		return fmt.Sprintf("(%d samples)", n)
	}
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	s := state.Samples[0]
	parts := make([]string, 0, len(names))
	for _, name := range names {
		v := vars[name]
		if s.Bound(v) {
			parts = append(parts, fmt.Sprintf("%s=%s", name, s.Get(v)))
		}
	}
	if n == 1 {
		return fmt.Sprintf("(%s)", strings.Join(parts, ", "))
	}
	return fmt.Sprintf("(%d samples, first: %s)", n, strings.Join(parts, ", "))
}
