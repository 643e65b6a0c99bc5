package codegen

import "github.com/orizon-lang/minic/internal/ir"

// promoteCrossBlockTemps moves to memory every temporary whose value must
// survive a label or branch, is defined more than once, or is read before
// its definition. Staged arguments count as read by their call. Register
// bindings are dropped at labels, so only straight-line temporaries may stay
// register resident. It returns the promoted values in first-appearance
// order.
func promoteCrossBlockTemps(fn *ir.Function) []*ir.Value {
	type span struct {
		defs     []int
		firstUse int
		lastUse  int
	}
	spans := make(map[*ir.Value]*span)
	var order []*ir.Value
	track := func(v *ir.Value) *span {
		s, ok := spans[v]
		if !ok {
			s = &span{firstUse: -1, lastUse: -1}
			spans[v] = s
			order = append(order, v)
		}
		return s
	}

	staged := ir.StagedArgs(fn.Insts)
	var cuts []int
	for i, in := range fn.Insts {
		if in.Dead {
			continue
		}
		if in.Op == ir.OpLabel || in.Branches() {
			cuts = append(cuts, i)
		}
		for _, u := range append(in.Uses(), staged[in]...) {
			if !u.IsTemp() {
				continue
			}
			s := track(u)
			if s.firstUse < 0 {
				s.firstUse = i
			}
			s.lastUse = i
		}
		if d := in.Def(); d.IsTemp() {
			s := track(d)
			s.defs = append(s.defs, i)
		}
	}

	var promoted []*ir.Value
	for _, v := range order {
		s := spans[v]
		if !mustPromote(s.defs, s.firstUse, s.lastUse, cuts) {
			continue
		}
		fn.Promote(v)
		promoted = append(promoted, v)
	}
	return promoted
}

func mustPromote(defs []int, firstUse, lastUse int, cuts []int) bool {
	if firstUse < 0 {
		return len(defs) > 1
	}
	if len(defs) != 1 || firstUse <= defs[0] {
		return true
	}
	for _, c := range cuts {
		if c > defs[0] && c < lastUse {
			return true
		}
	}
	return false
}
