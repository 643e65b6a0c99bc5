// Package arm32 describes the ARMv7 (ARM state) register file and the
// immediate/displacement legality rules shared by the emitter and the selector.
package arm32

import (
	"fmt"
	"math/bits"
)

// Reg is a physical register index, 0..15.
type Reg int

// NoReg marks an absent register binding.
const NoReg Reg = -1

// Physical registers that have a fixed role in the calling convention.
const (
	R0 Reg = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	FP // r11
	IP // r12
	SP // r13
	LR // r14
	PC // r15
)

const (
	// NumAllocatable is the size of the allocator pool (r0-r9).
	NumAllocatable = 10
	// NumArgRegs is the number of arguments passed in registers.
	NumArgRegs = 4
	// TmpReg is kept out of the pool and is always safe to clobber.
	TmpReg = R10
	// WordSize is the size of a scalar slot in bytes.
	WordSize = 4
	// MaxDisp is the largest magnitude encodable in a ldr/str immediate offset.
	MaxDisp = 4095
)

var regNames = [...]string{
	"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7",
	"r8", "r9", "r10", "fp", "ip", "sp", "lr", "pc",
}

// String returns the assembler name of r.
func (r Reg) String() string {
	if r < 0 || int(r) >= len(regNames) {
		return fmt.Sprintf("r?%d", int(r))
	}
	return regNames[r]
}

// Valid reports whether r names a physical register.
func (r Reg) Valid() bool { return r >= 0 && int(r) < len(regNames) }

// CallerSaved reports whether r is clobbered by a call (r0-r3).
func (r Reg) CallerSaved() bool { return r >= R0 && r <= R3 }

// CalleeSaved reports whether r must be preserved by the callee (r4-r11).
func (r Reg) CalleeSaved() bool { return r >= R4 && r <= FP }

// IsDisp reports whether off fits a load/store immediate displacement.
func IsDisp(off int) bool { return off >= -MaxDisp && off <= MaxDisp }

// IsAddImm reports whether v is an ARM modified immediate: an 8-bit value
// rotated right by an even amount.
func IsAddImm(v uint32) bool {
	for rot := 0; rot < 32; rot += 2 {
		if bits.RotateLeft32(v, rot) <= 0xff {
			return true
		}
	}
	return false
}

// IsPowerOfTwo reports whether v is a positive power of two.
func IsPowerOfTwo(v int) bool { return v > 0 && v&(v-1) == 0 }

// Log2 returns the shift amount for a power of two.
func Log2(v int) int { return bits.TrailingZeros32(uint32(v)) }

// RegList formats a register set for push/pop in ascending order.
func RegList(regs []Reg) string {
	s := "{"
	for i, r := range regs {
		if i > 0 {
			s += ", "
		}
		s += r.String()
	}
	return s + "}"
}

// Cond is an ARM condition suffix.
type Cond string

const (
	Always Cond = ""
	EQ     Cond = "eq"
	NE     Cond = "ne"
	LT     Cond = "lt"
	LE     Cond = "le"
	GT     Cond = "gt"
	GE     Cond = "ge"
)

// Invert returns the condition that holds exactly when c does not.
func (c Cond) Invert() Cond {
	switch c {
	case EQ:
		return NE
	case NE:
		return EQ
	case LT:
		return GE
	case GE:
		return LT
	case GT:
		return LE
	case LE:
		return GT
	}
	return c
}
