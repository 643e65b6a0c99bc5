package emit

import (
	"fmt"

	"github.com/orizon-lang/minic/internal/arm32"
)

// Sequence is an append-only list of target instructions for one function.
type Sequence struct {
	insts []*Inst
}

// NewSequence returns an empty sequence.
func NewSequence() *Sequence { return &Sequence{} }

// Insts returns the entries in emission order.
func (s *Sequence) Insts() []*Inst { return s.insts }

// Len returns the number of entries, dead ones included.
func (s *Sequence) Len() int { return len(s.insts) }

// Live returns the text of every live instruction and label, skipping comments.
func (s *Sequence) Live() []string {
	var out []string
	for _, in := range s.insts {
		if in.dead || in.Kind == KindComment {
			continue
		}
		out = append(out, in.Text())
	}
	return out
}

// Emit appends an unconditional instruction. Operands fill result, arg1,
// arg2 and extra in order.
func (s *Sequence) Emit(opcode string, operands ...string) *Inst {
	return s.EmitCond(opcode, arm32.Always, operands...)
}

// EmitCond appends a conditional instruction.
func (s *Sequence) EmitCond(opcode string, cond arm32.Cond, operands ...string) *Inst {
	in := &Inst{Kind: KindInst, Opcode: opcode, Cond: cond}
	fields := []*string{&in.Result, &in.Arg1, &in.Arg2, &in.Extra}
	for i, op := range operands {
		if i >= len(fields) {
			break
		}
		*fields[i] = op
	}
	s.insts = append(s.insts, in)
	return in
}

// Label appends a label definition.
func (s *Sequence) Label(name string) *Inst {
	in := &Inst{Kind: KindLabel, Result: name}
	s.insts = append(s.insts, in)
	return in
}

// Comment appends an assembler comment.
func (s *Sequence) Comment(format string, args ...interface{}) *Inst {
	in := &Inst{Kind: KindComment, Result: fmt.Sprintf(format, args...)}
	s.insts = append(s.insts, in)
	return in
}

// Imm formats an immediate operand.
func Imm(k int) string { return fmt.Sprintf("#%d", k) }

// Mem formats a displacement address; a zero offset prints as [base].
func Mem(base arm32.Reg, off int) string {
	if off == 0 {
		return "[" + base.String() + "]"
	}
	return fmt.Sprintf("[%s, #%d]", base, off)
}

// MemReg formats a register-offset address.
func MemReg(base, index arm32.Reg) string {
	return fmt.Sprintf("[%s, %s]", base, index)
}

// LoadImm materializes k into dst: movw of the low half-word, then movt of
// the high half-word when it is non-zero.
func (s *Sequence) LoadImm(dst arm32.Reg, k int32) {
	u := uint32(k)
	s.Emit("movw", dst.String(), Imm(int(u&0xFFFF)))
	if hi := u >> 16; hi != 0 {
		s.Emit("movt", dst.String(), Imm(int(hi)))
	}
}

// LoadSymbol materializes the address of a global symbol into dst.
func (s *Sequence) LoadSymbol(dst arm32.Reg, name string) {
	s.Emit("movw", dst.String(), "#:lower16:"+name)
	s.Emit("movt", dst.String(), "#:upper16:"+name)
}

// LoadBased loads the word at base+off into reg. Offsets outside the
// displacement range are materialized into temp first.
func (s *Sequence) LoadBased(reg, base arm32.Reg, off int, temp arm32.Reg) {
	s.based("ldr", reg, base, off, temp)
}

// StoreBased stores reg to base+off, materializing off into temp if needed.
func (s *Sequence) StoreBased(reg, base arm32.Reg, off int, temp arm32.Reg) {
	s.based("str", reg, base, off, temp)
}

func (s *Sequence) based(op string, reg, base arm32.Reg, off int, temp arm32.Reg) {
	if arm32.IsDisp(off) {
		s.Emit(op, reg.String(), Mem(base, off))
		return
	}
	s.LoadImm(temp, int32(off))
	s.Emit(op, reg.String(), MemReg(base, temp))
}

// LeaStack computes base+off into dst. Offsets that are not data-processing
// immediates are materialized into temp.
func (s *Sequence) LeaStack(dst, base arm32.Reg, off int, temp arm32.Reg) {
	switch {
	case off == 0:
		s.MovReg(dst, base)
	case off > 0 && arm32.IsAddImm(uint32(off)):
		s.Emit("add", dst.String(), base.String(), Imm(off))
	case off < 0 && arm32.IsAddImm(uint32(-off)):
		s.Emit("sub", dst.String(), base.String(), Imm(-off))
	default:
		s.LoadImm(temp, int32(off))
		s.Emit("add", dst.String(), base.String(), temp.String())
	}
}

// AllocStackFrame snapshots sp into fp and reserves size bytes. A zero-size
// frame emits nothing.
func (s *Sequence) AllocStackFrame(size int, temp arm32.Reg) {
	if size <= 0 {
		return
	}
	s.MovReg(arm32.FP, arm32.SP)
	if arm32.IsAddImm(uint32(size)) {
		s.Emit("sub", "sp", "sp", Imm(size))
		return
	}
	s.LoadImm(temp, int32(size))
	s.Emit("sub", "sp", "sp", temp.String())
}

// MovReg copies src into dst; copying a register onto itself emits nothing.
func (s *Sequence) MovReg(dst, src arm32.Reg) {
	if dst == src {
		return
	}
	s.Emit("mov", dst.String(), src.String())
}

// Call emits a branch-with-link to name.
func (s *Sequence) Call(name string) { s.Emit("bl", name) }

// Jump emits an unconditional branch.
func (s *Sequence) Jump(label string) { s.Emit("b", label) }

// Branch emits a conditional branch.
func (s *Sequence) Branch(cond arm32.Cond, label string) { s.EmitCond("b", cond, label) }

// Push saves regs on the stack; an empty set emits nothing.
func (s *Sequence) Push(regs []arm32.Reg) {
	if len(regs) > 0 {
		s.Emit("push", arm32.RegList(regs))
	}
}

// Pop restores regs; an empty set emits nothing.
func (s *Sequence) Pop(regs []arm32.Reg) {
	if len(regs) > 0 {
		s.Emit("pop", arm32.RegList(regs))
	}
}

// MarkDeadLabels marks every label that no live branch targets as dead.
// It returns the number of labels removed.
func (s *Sequence) MarkDeadLabels() int {
	targets := make(map[string]bool)
	for _, in := range s.insts {
		if !in.dead && in.IsBranch() {
			targets[in.Result] = true
		}
	}
	removed := 0
	for _, in := range s.insts {
		if in.Kind == KindLabel && !in.dead && !targets[in.Result] {
			in.dead = true
			removed++
		}
	}
	return removed
}

// Mentions reports whether any live instruction names register r.
func (s *Sequence) Mentions(r arm32.Reg) bool {
	for _, in := range s.insts {
		if !in.dead && in.Mentions(r) {
			return true
		}
	}
	return false
}
