package ir

import (
	"fmt"
	"sort"
	"strings"
)

// Print renders program in the stable textual dump format:
//
//	bb1:
//	  %x = int 42
//	  %y = add int %x int 1
//	  %c = cmp lt int 1 int %x
//	  br bool %c bb2 bb3
//	  %z = phi bb1: %x, bb2: %y
//	  return
func Print(program *Program) string {
	var b strings.Builder
	for _, name := range program.Order {
		block := program.Blocks[name]
		fmt.Fprintf(&b, "%s:\n", block.Name)
		for _, inst := range block.Instructions {
			b.WriteString("  ")
			b.WriteString(printInstruction(inst))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func printInstruction(inst *Instruction) string {
	switch inst.Kind {
	case KAssign:
		return fmt.Sprintf("%s = %s %s", inst.Dest, inst.Dest.Type, inst.Operand)
	case KAdd:
		return fmt.Sprintf("%s = add %s %s %s %s", inst.Dest, inst.Dest.Type, inst.Lhs, inst.Dest.Type, inst.Rhs)
	case KSub:
		return fmt.Sprintf("%s = sub %s %s %s %s", inst.Dest, inst.Dest.Type, inst.Lhs, inst.Dest.Type, inst.Rhs)
	case KCompare:
		return fmt.Sprintf("%s = cmp %s %s %s %s %s", inst.Dest, inst.Cmp, inst.Lhs.Type(), inst.Lhs, inst.Rhs.Type(), inst.Rhs)
	case KDiscreteDistribution:
		return fmt.Sprintf("%s = discrete %s", inst.Dest, printTable(inst.Table))
	case KObserve:
		return fmt.Sprintf("observe %s", inst.Cond)
	case KJump:
		return fmt.Sprintf("jmp %s", inst.Target)
	case KBranch:
		return fmt.Sprintf("br %s %s %s %s", inst.Cond.Type(), inst.Cond, inst.TrueTarget, inst.FalseTarget)
	case KPhi:
		return fmt.Sprintf("%s = phi %s", inst.Dest, printChoices(inst.Choices))
	case KReturn:
		return "return"
	default:
		return "???"
	}
}

func printTable(table map[int64]float64) string {
	keys := make([]int64, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%d: %g", k, table[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func printChoices(choices map[string]*Variable) string {
	preds := make([]string, 0, len(choices))
	for k := range choices {
		preds = append(preds, k)
	}
	sort.Strings(preds)
	parts := make([]string, len(preds))
	for i, pred := range preds {
		parts[i] = fmt.Sprintf("%s: %s", pred, choices[pred])
	}
	return strings.Join(parts, ", ")
}
