package emit

import (
	"fmt"

	"github.com/orizon-lang/minic/internal/arm32"
)

// ArrayAddr computes dst = base + index*elemSize. Power-of-two sizes use a
// shifted operand; other sizes multiply through temp, which must differ
// from base and index.
func (s *Sequence) ArrayAddr(dst, base, index arm32.Reg, elemSize int, temp arm32.Reg) {
	switch {
	case elemSize == 1:
		s.Emit("add", dst.String(), base.String(), index.String())
	case arm32.IsPowerOfTwo(elemSize):
		s.Emit("add", dst.String(), base.String(), index.String(), fmt.Sprintf("lsl #%d", arm32.Log2(elemSize)))
	default:
		s.LoadImm(temp, int32(elemSize))
		s.Emit("mul", temp.String(), index.String(), temp.String())
		s.Emit("add", dst.String(), base.String(), temp.String())
	}
}

// MultiArrayAddr folds indices with their element strides into one byte
// offset held in acc, then adds it to base. scratch holds non-power-of-two
// strides. Neither acc nor scratch may alias base or an index; dst may be
// any register.
func (s *Sequence) MultiArrayAddr(dst, base arm32.Reg, indices []arm32.Reg, strides []int, elemSize int, acc, scratch arm32.Reg) {
	if len(indices) == 0 {
		s.MovReg(dst, base)
		return
	}
	if len(indices) == 1 {
		s.ArrayAddr(dst, base, indices[0], strides[0]*elemSize, acc)
		return
	}
	for i, idx := range indices {
		step := strides[i] * elemSize
		first := i == 0
		switch {
		case step == 1 && first:
			s.MovReg(acc, idx)
		case step == 1:
			s.Emit("add", acc.String(), acc.String(), idx.String())
		case arm32.IsPowerOfTwo(step) && first:
			s.Emit("lsl", acc.String(), idx.String(), Imm(arm32.Log2(step)))
		case arm32.IsPowerOfTwo(step):
			s.Emit("add", acc.String(), acc.String(), idx.String(), fmt.Sprintf("lsl #%d", arm32.Log2(step)))
		case first:
			s.LoadImm(scratch, int32(step))
			s.Emit("mul", acc.String(), idx.String(), scratch.String())
		default:
			s.LoadImm(scratch, int32(step))
			s.Emit("mla", acc.String(), idx.String(), scratch.String(), acc.String())
		}
	}
	s.Emit("add", dst.String(), base.String(), acc.String())
}
