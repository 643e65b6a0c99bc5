package codegen

import (
	"github.com/orizon-lang/minic/internal/arm32"
	"github.com/orizon-lang/minic/internal/errors"
	"github.com/orizon-lang/minic/internal/ir"
)

// element resolves arr[indices...] to a base register and a byte
// displacement. Constant subscripts fold into the displacement; the rest
// are scaled into ip. Frame arrays are addressed off fp directly.
func (c *context) element(arr *ir.Value, indices []*ir.Value) (arm32.Reg, int, bool) {
	strides := arr.Type.Strides()
	if !arr.Type.Indexable() || len(indices) > len(strides) {
		c.fault(errors.MalformedInstruction(c.fn.Name, c.idx, "cannot subscript "+arr.Decl()))
		return arm32.NoReg, 0, false
	}

	disp := 0
	var dyn []arm32.Reg
	var dynStrides []int
	for i, x := range indices {
		if x.Class == ir.Const {
			disp += int(x.Imm) * strides[i] * ir.ElemSize
			continue
		}
		dyn = append(dyn, c.use(x))
		dynStrides = append(dynStrides, strides[i])
	}

	var base arm32.Reg
	switch {
	case arr.Class == ir.Global && arr.IsArray():
		base = c.scratch()
		c.seq.LoadSymbol(base, arr.Name)
	case arr.IsArray() && arr.InMemory():
		base = arm32.FP
		disp += c.slot(arr).Offset
	default:
		base = c.use(arr)
	}

	if len(dyn) > 0 {
		c.seq.MultiArrayAddr(arm32.IP, base, dyn, dynStrides, ir.ElemSize, arm32.TmpReg, arm32.IP)
		base = arm32.IP
	}
	return base, disp, true
}

func (c *context) selectArrayLoad(in *ir.Instruction) {
	base, disp, ok := c.element(in.Args[0], in.Indices)
	if !ok {
		return
	}
	rd := c.def(in.Result)
	c.seq.LoadBased(rd, base, disp, arm32.TmpReg)
	c.commit(in.Result, rd)
}

func (c *context) selectArrayStore(in *ir.Instruction) {
	rv := c.use(in.Args[1])
	base, disp, ok := c.element(in.Args[0], in.Indices)
	if !ok {
		return
	}
	c.seq.StoreBased(rv, base, disp, arm32.TmpReg)
}

func (c *context) selectArrayAddr(in *ir.Instruction) {
	base, disp, ok := c.element(in.Args[0], in.Indices)
	if !ok {
		return
	}
	rd := c.def(in.Result)
	c.seq.LeaStack(rd, base, disp, arm32.TmpReg)
	c.commit(in.Result, rd)
}
