package emit

import "github.com/orizon-lang/minic/internal/arm32"

// Peephole rewrites obvious redundancies in place and returns the number of
// entries changed. It only looks at adjacent live instructions.
//
//	mov rX, rX               -> (removed)
//	b<cc> L1; b L2; L1:      -> b<!cc> L2; L1:
//	str rA, [m]; ldr rB, [m] -> str rA, [m]; mov rB, rA
func Peephole(s *Sequence) int {
	changed := 0
	live := s.liveIndexes()
	for i, at := range live {
		in := s.insts[at]
		if in.dead || in.Kind != KindInst {
			continue
		}

		if in.Opcode == "mov" && in.Cond == arm32.Always && in.Arg2 == "" && in.Result == in.Arg1 {
			in.SetDead()
			changed++
			continue
		}

		if i+1 >= len(live) {
			continue
		}
		next := s.insts[live[i+1]]

		if i+2 < len(live) {
			after := s.insts[live[i+2]]
			if in.IsBranch() && in.Cond != arm32.Always &&
				next.IsBranch() && next.Cond == arm32.Always &&
				after.Kind == KindLabel && after.Result == in.Result {
				in.Replace("b", in.Cond.Invert(), next.Result, "", "", "")
				next.SetDead()
				changed++
				continue
			}
		}

		if in.Opcode == "str" && next.Opcode == "ldr" && next.Kind == KindInst &&
			in.Cond == arm32.Always && next.Cond == arm32.Always &&
			in.Arg1 == next.Arg1 && in.Arg2 == "" && next.Arg2 == "" {
			if next.Result == in.Result {
				next.SetDead()
			} else {
				next.Replace("mov", arm32.Always, next.Result, in.Result, "", "")
			}
			changed++
		}
	}
	return changed
}

// liveIndexes returns the positions of live non-comment entries.
func (s *Sequence) liveIndexes() []int {
	var idx []int
	for i, in := range s.insts {
		if !in.dead && in.Kind != KindComment {
			idx = append(idx, i)
		}
	}
	return idx
}
