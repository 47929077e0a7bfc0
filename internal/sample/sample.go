// Package sample implements single-sample instruction evaluation: the
// concrete-assignment layer that the executor advances in bulk.
package sample

import (
	"fmt"

	"sl-debugger/internal/ir"
)

// Sample is one concrete variable assignment, immutable once produced:
// Bind never mutates the receiver, it returns a new Sample whose map is
// a fresh copy of the old bindings plus the new one. Because no Sample
// is ever changed after creation, saving a population snapshot can
// share the existing Samples without copying them.
type Sample struct {
	values map[int]ir.Value // keyed by Variable.ID
}

// Empty returns a sample with no bindings.
func Empty() Sample {
	return Sample{values: nil}
}

// Bound reports whether v has a value in this sample.
func (s Sample) Bound(v *ir.Variable) bool {
	_, ok := s.values[v.ID]
	return ok
}

// Get returns v's value. It panics if v is unbound: the caller
// (step_sample) is expected to have already verified boundedness,
// since an unbound read can only happen if the IR (or its verifier)
// is broken — a ProgramBug, not a recoverable condition.
func (s Sample) Get(v *ir.Variable) ir.Value {
	val, ok := s.values[v.ID]
	if !ok {
		panic(fmt.Sprintf("sample: read of unbound variable %s (program bug)", v))
	}
	return val
}

// Bind returns a new sample with v bound to val. It panics if v is
// already bound in this sample: SSA is preserved at run time, so a
// rebind indicates a ProgramBug (malformed IR, not a user error).
func (s Sample) Bind(v *ir.Variable, val ir.Value) Sample {
	if s.Bound(v) {
		panic(fmt.Sprintf("sample: rebind of already-bound variable %s (program bug)", v))
	}
	next := make(map[int]ir.Value, len(s.values)+1)
	for k, v2 := range s.values {
		next[k] = v2
	}
	next[v.ID] = val
	return Sample{values: next}
}

// Eval resolves a variable-or-literal operand against this sample.
func (s Sample) Eval(o ir.VOL) ir.Value {
	if o.IsVar {
		return s.Get(o.Var)
	}
	if o.IsBool {
		return ir.BoolValue(o.BoolLit)
	}
	return ir.IntValue(o.IntLit)
}
