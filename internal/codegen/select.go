package codegen

import (
	"math"

	"github.com/orizon-lang/minic/internal/arm32"
	"github.com/orizon-lang/minic/internal/codegen/emit"
	"github.com/orizon-lang/minic/internal/errors"
	"github.com/orizon-lang/minic/internal/ir"
)

type handler func(c *context, in *ir.Instruction)

var handlers map[ir.Opcode]handler

func init() {
	handlers = map[ir.Opcode]handler{
		ir.OpEntry:      (*context).selectEntry,
		ir.OpExit:       (*context).selectExit,
		ir.OpLabel:      (*context).selectLabel,
		ir.OpGoto:       (*context).selectGoto,
		ir.OpCondGoto:   (*context).selectCondGoto,
		ir.OpAssign:     (*context).selectAssign,
		ir.OpNeg:        (*context).selectNeg,
		ir.OpArrayLoad:  (*context).selectArrayLoad,
		ir.OpArrayStore: (*context).selectArrayStore,
		ir.OpArrayAddr:  (*context).selectArrayAddr,
		ir.OpArg:        (*context).selectArg,
		ir.OpCall:       (*context).selectCall,
	}
	for _, op := range []ir.Opcode{ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpMod} {
		handlers[op] = (*context).selectBinary
	}
	for _, op := range []ir.Opcode{ir.OpLt, ir.OpLe, ir.OpGt, ir.OpGe, ir.OpEq, ir.OpNe} {
		handlers[op] = (*context).selectCompare
	}
}

var condFor = map[ir.Opcode]arm32.Cond{
	ir.OpLt: arm32.LT, ir.OpLe: arm32.LE, ir.OpGt: arm32.GT,
	ir.OpGe: arm32.GE, ir.OpEq: arm32.EQ, ir.OpNe: arm32.NE,
}

// run selects code for every live instruction of the function.
func (c *context) run() {
	for i, in := range c.fn.Insts {
		if in.Dead {
			continue
		}
		c.idx = i
		c.ra.Begin()
		if c.opts.ShowIR {
			c.seq.Comment("%s", in)
		}
		h, ok := handlers[in.Op]
		if !ok {
			c.fault(errors.UnsupportedOpcode(c.fn.Name, i, in.Op.String()))
			continue
		}
		if !c.wellFormed(in) {
			continue
		}
		h(c, in)
		c.releaseTransients()
	}
}

// wellFormed checks operand arity before dispatch.
func (c *context) wellFormed(in *ir.Instruction) bool {
	need, result := 0, false
	switch {
	case in.Op.IsBinary() || in.Op.IsRelational():
		need, result = 2, true
	case in.Op == ir.OpNeg || in.Op == ir.OpAssign || in.Op == ir.OpArrayLoad || in.Op == ir.OpArrayAddr:
		need, result = 1, true
	case in.Op == ir.OpArrayStore:
		need = 2
	case in.Op == ir.OpCondGoto || in.Op == ir.OpArg:
		need = 1
	}
	ok := len(in.Args) >= need && (!result || in.Result != nil)
	for _, a := range in.Args {
		ok = ok && a != nil
	}
	for _, x := range in.Indices {
		ok = ok && x != nil
	}
	if (in.Op == ir.OpGoto || in.Op == ir.OpCondGoto || in.Op == ir.OpLabel) && in.Label == "" {
		ok = false
	}
	if !ok {
		c.fault(errors.MalformedInstruction(c.fn.Name, c.idx, in.String()))
	}
	return ok
}

func (c *context) selectEntry(*ir.Instruction) {
	c.seq.Push(c.frame.saved)
	c.seq.AllocStackFrame(c.frame.size, arm32.TmpReg)
	incoming := arm32.WordSize * len(c.frame.saved)
	for k, p := range c.fn.Params {
		s := c.slot(p)
		if k < arm32.NumArgRegs {
			c.seq.StoreBased(arm32.Reg(k), arm32.FP, s.Offset, arm32.TmpReg)
			continue
		}
		c.seq.LoadBased(arm32.IP, arm32.FP, incoming+arm32.WordSize*(k-arm32.NumArgRegs), arm32.TmpReg)
		c.seq.StoreBased(arm32.IP, arm32.FP, s.Offset, arm32.TmpReg)
	}
}

func (c *context) selectExit(in *ir.Instruction) {
	ret := c.fn.ReturnValue
	if len(in.Args) > 0 {
		ret = in.Args[0]
	}
	if ret != nil {
		c.useInto(ret, arm32.R0)
	}
	if c.frame.size > 0 {
		c.seq.MovReg(arm32.SP, arm32.FP)
	}
	c.seq.Pop(c.frame.saved)
	c.seq.Emit("bx", "lr")
}

func (c *context) selectLabel(in *ir.Instruction) {
	c.seq.Label(in.Label)
	// No temporary is live across a label, so every binding is dead here.
	c.ra.Reset()
}

func (c *context) selectGoto(in *ir.Instruction) {
	c.seq.Jump(in.Label)
}

func (c *context) selectCondGoto(in *ir.Instruction) {
	cond := in.Args[0]
	if cond.Class == ir.Const {
		switch {
		case cond.Imm != 0:
			c.seq.Jump(in.Label)
		case in.False != "":
			c.seq.Jump(in.False)
		}
		return
	}
	r := c.use(cond)
	c.seq.Emit("cmp", r.String(), emit.Imm(0))
	c.seq.Branch(arm32.NE, in.Label)
	if in.False != "" {
		c.seq.Jump(in.False)
	}
}

func (c *context) selectAssign(in *ir.Instruction) {
	switch in.Move {
	case ir.PointerLoad:
		rp := c.use(in.Args[0])
		rd := c.def(in.Result)
		c.seq.Emit("ldr", rd.String(), emit.Mem(rp, 0))
		c.commit(in.Result, rd)
	case ir.PointerStore:
		c.pointerStore(in.Result, in.Args[0])
	default:
		c.move(in.Result, in.Args[0])
	}
}

func (c *context) move(dst, src *ir.Value) {
	if dst.IsArray() {
		c.fault(errors.MalformedInstruction(c.fn.Name, c.idx, "whole-array assignment to "+dst.String()))
		return
	}
	if src.Class == ir.Const {
		rd := c.def(dst)
		c.seq.LoadImm(rd, src.Imm)
		c.commit(dst, rd)
		return
	}
	rs := c.use(src)
	if dst.IsTemp() || dst.Class == ir.Reg {
		rd := c.def(dst)
		c.seq.MovReg(rd, rs)
		c.commit(dst, rd)
		return
	}
	c.commit(dst, rs)
}

// pointerStore writes src through ptr. A store whose pointer and value
// share storage is reported and dropped.
func (c *context) pointerStore(ptr, src *ir.Value) {
	if c.sameStorage(ptr, src) {
		c.fault(errors.PointerAlias(c.fn.Name, c.idx, ptr.String(), src.String()))
		return
	}
	rp := c.use(ptr)
	rv := c.use(src)
	c.seq.Emit("str", rv.String(), emit.Mem(rp, 0))
}

func (c *context) sameStorage(a, b *ir.Value) bool {
	if a == b {
		return true
	}
	sa, oka := c.lm.Lookup(a)
	sb, okb := c.lm.Lookup(b)
	return oka && okb && sa.Base == sb.Base && sa.Offset == sb.Offset
}

// immOperand returns "#k" when v is a constant usable as a data-processing
// immediate.
func immOperand(v *ir.Value) (string, bool) {
	if v.Class != ir.Const || v.Imm < 0 || !arm32.IsAddImm(uint32(v.Imm)) {
		return "", false
	}
	return emit.Imm(int(v.Imm)), true
}

// negatedImm reports whether v is a negative constant whose magnitude is a
// data-processing immediate.
func negatedImm(v *ir.Value) (int32, bool) {
	if v.Class != ir.Const || v.Imm >= 0 || v.Imm == math.MinInt32 {
		return 0, false
	}
	return -v.Imm, arm32.IsAddImm(uint32(-v.Imm))
}

func (c *context) selectBinary(in *ir.Instruction) {
	a, b := in.Args[0], in.Args[1]

	switch in.Op {
	case ir.OpAdd, ir.OpSub:
		op, inverse := "add", "sub"
		if in.Op == ir.OpSub {
			op, inverse = inverse, op
		}
		if k, ok := negatedImm(b); ok {
			op, b = inverse, ir.NewConst(k)
		}
		ra := c.use(a)
		if imm, ok := immOperand(b); ok {
			rd := c.def(in.Result)
			c.seq.Emit(op, rd.String(), ra.String(), imm)
			c.commit(in.Result, rd)
			return
		}
		rb := c.use(b)
		rd := c.def(in.Result)
		c.seq.Emit(op, rd.String(), ra.String(), rb.String())
		c.commit(in.Result, rd)

	case ir.OpMul:
		if a.Class == ir.Const && b.Class != ir.Const {
			a, b = b, a
		}
		if b.Class == ir.Const && arm32.IsPowerOfTwo(int(b.Imm)) {
			ra := c.use(a)
			rd := c.def(in.Result)
			if b.Imm == 1 {
				c.seq.MovReg(rd, ra)
			} else {
				c.seq.Emit("lsl", rd.String(), ra.String(), emit.Imm(arm32.Log2(int(b.Imm))))
			}
			c.commit(in.Result, rd)
			return
		}
		ra, rb := c.use(a), c.use(b)
		rd := c.def(in.Result)
		c.seq.Emit("mul", rd.String(), ra.String(), rb.String())
		c.commit(in.Result, rd)

	case ir.OpDiv:
		ra, rb := c.use(a), c.use(b)
		rd := c.def(in.Result)
		c.seq.Emit("sdiv", rd.String(), ra.String(), rb.String())
		c.commit(in.Result, rd)

	case ir.OpMod:
		ra, rb := c.use(a), c.use(b)
		q := c.scratch()
		rd := c.def(in.Result)
		c.seq.Emit("sdiv", q.String(), ra.String(), rb.String())
		c.seq.Emit("mls", rd.String(), q.String(), rb.String(), ra.String())
		c.commit(in.Result, rd)
	}
}

func (c *context) selectNeg(in *ir.Instruction) {
	if a := in.Args[0]; a.Class == ir.Const {
		c.move(in.Result, ir.NewConst(-a.Imm))
		return
	}
	ra := c.use(in.Args[0])
	rd := c.def(in.Result)
	c.seq.Emit("rsb", rd.String(), ra.String(), emit.Imm(0))
	c.commit(in.Result, rd)
}

func (c *context) selectCompare(in *ir.Instruction) {
	a, b := in.Args[0], in.Args[1]
	cond := condFor[in.Op]
	ra := c.use(a)
	if imm, ok := immOperand(b); ok {
		c.seq.Emit("cmp", ra.String(), imm)
	} else if k, ok := negatedImm(b); ok {
		c.seq.Emit("cmn", ra.String(), emit.Imm(int(k)))
	} else {
		rb := c.use(b)
		c.seq.Emit("cmp", ra.String(), rb.String())
	}
	rd := c.def(in.Result)
	c.seq.Emit("mov", rd.String(), emit.Imm(0))
	c.seq.EmitCond("mov", cond, rd.String(), emit.Imm(1))
	c.commit(in.Result, rd)
}

func (c *context) selectArg(in *ir.Instruction) {
	c.pending = append(c.pending, in.Args[0])
}

// selectCall passes the first four arguments in r0-r3 and the rest in
// ascending word slots at the bottom of the frame.
func (c *context) selectCall(in *ir.Instruction) {
	args := in.Args
	switch {
	case len(args) == 0:
		args = c.pending
	case len(c.pending) > 0 && len(c.pending) != len(args):
		c.fault(errors.ArgCountMismatch(c.fn.Name, c.idx, in.Callee, len(c.pending), len(args)))
	}
	c.pending = nil

	for k := arm32.NumArgRegs; k < len(args); k++ {
		r := c.use(args[k])
		c.seq.StoreBased(r, arm32.SP, arm32.WordSize*(k-arm32.NumArgRegs), offsetTemp(r))
		c.releaseTransients()
	}
	for r := arm32.R0; r <= arm32.R3; r++ {
		c.ra.AllocateFixed(r)
	}
	for k := 0; k < len(args) && k < arm32.NumArgRegs; k++ {
		c.useInto(args[k], arm32.Reg(k))
	}
	c.seq.Call(in.Callee)
	for r := arm32.R0; r <= arm32.R3; r++ {
		c.ra.FreeReg(r)
	}

	if in.Result != nil {
		rd := c.def(in.Result)
		c.seq.MovReg(rd, arm32.R0)
		c.commit(in.Result, rd)
	}
}
