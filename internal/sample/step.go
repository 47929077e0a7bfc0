package sample

import (
	"fmt"
	"sort"

	"github.com/sasha-s/go-deadlock"

	"sl-debugger/internal/ir"
)

// ProgramBug is raised (by panic) for conditions that can only follow
// from malformed IR: an unbound variable read, a discrete table whose
// probabilities don't sum to 1 within tolerance, or stepping a
// control-flow instruction through step_sample. It is never returned
// as a normal error; the process aborts on it, recovered only at the
// top of main.
type ProgramBug struct {
	Message string
}

func (e *ProgramBug) Error() string { return "program bug: " + e.Message }

func raiseBug(format string, args ...interface{}) {
	panic(&ProgramBug{Message: fmt.Sprintf(format, args...)})
}

// ProbabilityTolerance is the epsilon used when checking that a
// DiscreteDistribution's table sums to 1.0. Exact floating-point
// equality to 1.0 is too strict for any real implementation; this is
// the documented relaxation (see DESIGN.md).
const ProbabilityTolerance = 1e-9

type bucket struct {
	upper float64
	value int64
}

var (
	bucketCacheMu deadlock.Mutex
	bucketCache   = map[*ir.Instruction][]bucket{}
)

func cumulativeBuckets(inst *ir.Instruction) []bucket {
	bucketCacheMu.Lock()
	defer bucketCacheMu.Unlock()
	if b, ok := bucketCache[inst]; ok {
		return b
	}

	keys := make([]int64, 0, len(inst.Table))
	for k := range inst.Table {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var sum float64
	buckets := make([]bucket, 0, len(keys))
	for _, k := range keys {
		p := inst.Table[k]
		if p < 0 || p > 1 {
			raiseBug("discrete distribution probability %g for key %d outside [0, 1]", p, k)
		}
		sum += p
		buckets = append(buckets, bucket{upper: sum, value: k})
	}
	if diff := sum - 1.0; diff < -ProbabilityTolerance || diff > ProbabilityTolerance {
		raiseBug("discrete distribution probabilities sum to %g, not 1.0 (+/- %g)", sum, ProbabilityTolerance)
	}
	// Force the last bucket's upper bound to exactly 1.0 so a draw
	// landing past it due to floating-point rounding is still caught
	// by the final bucket.
	if len(buckets) > 0 {
		buckets[len(buckets)-1].upper = 1.0
	}

	bucketCache[inst] = buckets
	return buckets
}

// draw performs one categorical draw against inst's cumulative table.
// On equality or floating-point edge cases, the last bucket catches
// the draw.
func draw(inst *ir.Instruction, rng RNG) int64 {
	buckets := cumulativeBuckets(inst)
	if len(buckets) == 0 {
		raiseBug("discrete distribution has an empty table")
	}
	u := rng.Float64()
	for _, b := range buckets {
		if u < b.upper {
			return b.value
		}
	}
	return buckets[len(buckets)-1].value
}

// Step executes one non-control-flow instruction against sample and
// returns the resulting sample, or (zero, false) if the sample was
// filtered out by an Observe. Jump, Branch, Phi, and Return must never
// reach Step: doing so is a ProgramBug, since the executor is
// responsible for handling control flow at the execution-state layer.
func Step(s Sample, inst *ir.Instruction, rng RNG) (Sample, bool) {
	switch inst.Kind {
	case ir.KAssign:
		return s.Bind(inst.Dest, s.Eval(inst.Operand)), true

	case ir.KAdd:
		l, r := s.Eval(inst.Lhs), s.Eval(inst.Rhs)
		return s.Bind(inst.Dest, ir.IntValue(l.IntVal+r.IntVal)), true

	case ir.KSub:
		l, r := s.Eval(inst.Lhs), s.Eval(inst.Rhs)
		return s.Bind(inst.Dest, ir.IntValue(l.IntVal-r.IntVal)), true

	case ir.KCompare:
		l, r := s.Eval(inst.Lhs), s.Eval(inst.Rhs)
		var result bool
		switch inst.Cmp {
		case ir.Eq:
			if l.IsBool {
				result = l.BoolVal == r.BoolVal
			} else {
				result = l.IntVal == r.IntVal
			}
		case ir.Lt:
			result = l.IntVal < r.IntVal
		}
		return s.Bind(inst.Dest, ir.BoolValue(result)), true

	case ir.KDiscreteDistribution:
		k := draw(inst, rng)
		return s.Bind(inst.Dest, ir.IntValue(k)), true

	case ir.KObserve:
		cond := s.Eval(inst.Cond)
		if cond.BoolVal {
			return s, true
		}
		return Sample{}, false

	case ir.KJump, ir.KBranch, ir.KPhi, ir.KReturn:
		raiseBug("step_sample reached a control-flow instruction (%s); the executor must handle control flow", inst.Kind)
		panic("unreachable")

	default:
		raiseBug("step_sample: unknown instruction kind %v", inst.Kind)
		panic("unreachable")
	}
}
