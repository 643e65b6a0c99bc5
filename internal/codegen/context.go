// Package codegen selects ARM32 instructions for the minic IR. Each function
// is walked once per pass with a fresh register allocator; locals,
// parameters and globals live in memory and are only held in registers for
// the duration of one IR instruction, while temporaries stay in registers
// until evicted.
package codegen

import (
	"github.com/orizon-lang/minic/internal/arm32"
	"github.com/orizon-lang/minic/internal/codegen/emit"
	"github.com/orizon-lang/minic/internal/codegen/regalloc"
	"github.com/orizon-lang/minic/internal/errors"
	"github.com/orizon-lang/minic/internal/ir"
	"github.com/orizon-lang/minic/internal/layout"
)

// Logger receives selector diagnostics. *cli.Logger satisfies it.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// frame describes the prologue chosen for one pass.
type frame struct {
	size  int
	saved []arm32.Reg
}

// context is the per-function, per-pass selection state.
type context struct {
	fn    *ir.Function
	opts  Options
	log   Logger
	seq   *emit.Sequence
	ra    *regalloc.Allocator
	lm    *layout.Manager
	frame frame

	idx       int
	pending   []*ir.Value
	faults    []*errors.StandardError
	nextSpare int
}

func newContext(fn *ir.Function, opts Options, lm *layout.Manager, fr frame, log Logger) *context {
	c := &context{
		fn:    fn,
		opts:  opts,
		log:   log,
		seq:   emit.NewSequence(),
		ra:    regalloc.New(),
		lm:    lm,
		frame: fr,
	}
	c.ra.OnEvict = c.spill
	c.ra.Analyze(fn.Insts)
	return c
}

func (c *context) fault(err *errors.StandardError) {
	c.faults = append(c.faults, err)
	c.log.Warn("%s", err.Message)
}

// spill flushes an evicted temporary that is still needed at or after the
// current instruction.
func (c *context) spill(v *ir.Value, r arm32.Reg) {
	if !v.IsTemp() {
		return
	}
	iv, ok := c.ra.Lifetime(v)
	if !ok || iv.End < c.idx {
		return
	}
	s := c.lm.Spill(v)
	c.log.Debug("spill %s from %s to [fp, #%d]", v, r, s.Offset)
	c.seq.StoreBased(r, arm32.FP, s.Offset, arm32.IP)
}

// spare returns one of the two registers kept outside the pool, alternating
// so that two fallbacks in one instruction do not collide.
func (c *context) spare() arm32.Reg {
	c.nextSpare ^= 1
	if c.nextSpare == 1 {
		return arm32.TmpReg
	}
	return arm32.IP
}

// offsetTemp picks a register for materializing a large offset that does
// not clash with r.
func offsetTemp(r arm32.Reg) arm32.Reg {
	if r == arm32.TmpReg {
		return arm32.IP
	}
	return arm32.TmpReg
}

// scratch returns an anonymous pool register held until the end of the
// current instruction.
func (c *context) scratch() arm32.Reg {
	if r := c.ra.Allocate(nil, regalloc.NoReg); r != regalloc.NoReg {
		return r
	}
	c.fault(errors.RegistersExhausted(c.fn.Name, c.idx, "scratch"))
	return c.spare()
}

// bindTransient gives v a register for the current instruction.
func (c *context) bindTransient(v *ir.Value) arm32.Reg {
	if r := c.ra.Allocate(v, regalloc.NoReg); r != regalloc.NoReg {
		return r
	}
	c.fault(errors.RegistersExhausted(c.fn.Name, c.idx, v.String()))
	return c.spare()
}

func (c *context) slot(v *ir.Value) layout.Slot {
	if s, ok := c.lm.Lookup(v); ok {
		return s
	}
	c.log.Warn("%s has no frame slot in @%s; appending one", v, c.fn.Name)
	return c.lm.Spill(v)
}

// use returns a register holding the value of v. Arrays evaluate to their
// address.
func (c *context) use(v *ir.Value) arm32.Reg {
	switch v.Class {
	case ir.Const:
		r := c.scratch()
		c.seq.LoadImm(r, v.Imm)
		return r
	case ir.Reg:
		return arm32.Reg(v.RegNum)
	}
	if r, ok := c.ra.Lookup(v); ok {
		c.ra.Hold(r)
		return r
	}

	switch v.Class {
	case ir.Temp:
		s, ok := c.lm.Lookup(v)
		if !ok {
			c.fault(errors.MalformedInstruction(c.fn.Name, c.idx, v.String()+" is read before it is defined"))
			s = c.lm.Spill(v)
		}
		r := c.bindTransient(v)
		c.seq.LoadBased(r, arm32.FP, s.Offset, offsetTemp(r))
		return r
	case ir.Global:
		r := c.bindTransient(v)
		c.seq.LoadSymbol(r, v.Name)
		if !v.IsArray() {
			c.seq.Emit("ldr", r.String(), emit.Mem(r, 0))
		}
		return r
	}

	r := c.bindTransient(v)
	s := c.slot(v)
	if v.IsArray() {
		c.seq.LeaStack(r, arm32.FP, s.Offset, offsetTemp(r))
	} else {
		c.seq.LoadBased(r, arm32.FP, s.Offset, offsetTemp(r))
	}
	return r
}

// useInto places the value of v in dst without allocating.
func (c *context) useInto(v *ir.Value, dst arm32.Reg) {
	switch v.Class {
	case ir.Const:
		c.seq.LoadImm(dst, v.Imm)
		return
	case ir.Reg:
		c.seq.MovReg(dst, arm32.Reg(v.RegNum))
		return
	}
	if r, ok := c.ra.Lookup(v); ok {
		c.seq.MovReg(dst, r)
		return
	}

	switch v.Class {
	case ir.Global:
		c.seq.LoadSymbol(dst, v.Name)
		if !v.IsArray() {
			c.seq.Emit("ldr", dst.String(), emit.Mem(dst, 0))
		}
		return
	case ir.Temp:
		if _, ok := c.lm.Lookup(v); !ok {
			c.fault(errors.MalformedInstruction(c.fn.Name, c.idx, v.String()+" is read before it is defined"))
		}
	}
	s := c.slot(v)
	if v.IsArray() {
		c.seq.LeaStack(dst, arm32.FP, s.Offset, offsetTemp(dst))
	} else {
		c.seq.LoadBased(dst, arm32.FP, s.Offset, offsetTemp(dst))
	}
}

// def returns the register an instruction should compute v into.
func (c *context) def(v *ir.Value) arm32.Reg {
	switch v.Class {
	case ir.Reg:
		return arm32.Reg(v.RegNum)
	case ir.Temp:
		if r := c.ra.DynamicAllocate(v, c.idx); r != regalloc.NoReg {
			return r
		}
		c.log.Debug("no register for %s at #%d; result goes to its spill slot", v, c.idx)
		return c.spare()
	}
	return c.scratch()
}

// commit makes r the authoritative value of v.
func (c *context) commit(v *ir.Value, r arm32.Reg) {
	switch v.Class {
	case ir.Reg:
		c.seq.MovReg(arm32.Reg(v.RegNum), r)
		return
	case ir.Const:
		c.fault(errors.MalformedInstruction(c.fn.Name, c.idx, "assignment to a constant"))
		return
	}

	if br, ok := c.ra.Lookup(v); ok {
		if br == r && v.IsTemp() {
			return
		}
		c.seq.MovReg(br, r)
	}

	switch v.Class {
	case ir.Temp:
		if _, ok := c.ra.Lookup(v); ok {
			return
		}
		s := c.lm.Spill(v)
		c.seq.StoreBased(r, arm32.FP, s.Offset, offsetTemp(r))
	case ir.Global:
		addr := c.ra.Allocate(nil, regalloc.NoReg)
		if addr == regalloc.NoReg {
			addr = offsetTemp(r)
		}
		c.seq.LoadSymbol(addr, v.Name)
		c.seq.Emit("str", r.String(), emit.Mem(addr, 0))
	default:
		s := c.slot(v)
		c.seq.StoreBased(r, arm32.FP, s.Offset, offsetTemp(r))
	}
}

// releaseTransients frees every register that does not hold a temporary.
func (c *context) releaseTransients() {
	c.ra.FreeIf(func(v *ir.Value) bool { return v == nil || !v.IsTemp() })
}

// calleeSaved returns the callee-saved registers this pass touched.
func (c *context) calleeSaved() []arm32.Reg {
	var regs []arm32.Reg
	for _, r := range c.ra.Used() {
		if r.CalleeSaved() {
			regs = append(regs, r)
		}
	}
	if c.seq.Mentions(arm32.TmpReg) {
		regs = append(regs, arm32.TmpReg)
	}
	return regs
}
