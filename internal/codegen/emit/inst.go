// Package emit holds the ARM32 target instruction list and the helpers that
// encode addressing-mode legality and immediate materialization.
package emit

import (
	"strings"

	"github.com/orizon-lang/minic/internal/arm32"
)

// Kind is the structural kind of a sequence entry.
type Kind int

const (
	KindInst Kind = iota
	KindLabel
	KindComment
)

// Inst is one target instruction, label, or comment. For labels the name is
// kept in Result; for comments the text is kept in Result.
type Inst struct {
	Kind   Kind
	Opcode string
	Cond   arm32.Cond
	Result string
	Arg1   string
	Arg2   string
	Extra  string
	dead   bool
}

// Dead reports whether the entry is suppressed from output.
func (in *Inst) Dead() bool { return in.dead }

// SetDead suppresses the entry.
func (in *Inst) SetDead() { in.dead = true }

// Replace rewrites every field of a live instruction in place.
func (in *Inst) Replace(opcode string, cond arm32.Cond, result, arg1, arg2, extra string) {
	in.Kind = KindInst
	in.Opcode = opcode
	in.Cond = cond
	in.Result = result
	in.Arg1 = arg1
	in.Arg2 = arg2
	in.Extra = extra
	in.dead = false
}

// Operands returns the non-empty operand fields in order.
func (in *Inst) Operands() []string {
	ops := make([]string, 0, 4)
	for _, s := range []string{in.Result, in.Arg1, in.Arg2, in.Extra} {
		if s != "" {
			ops = append(ops, s)
		}
	}
	return ops
}

// Text renders the entry without indentation.
func (in *Inst) Text() string {
	switch in.Kind {
	case KindLabel:
		return in.Result + ":"
	case KindComment:
		return "@ " + in.Result
	}
	if in.Opcode == "" {
		return ""
	}
	ops := in.Operands()
	if len(ops) == 0 {
		return in.Opcode + string(in.Cond)
	}
	return in.Opcode + string(in.Cond) + " " + strings.Join(ops, ", ")
}

func (in *Inst) String() string { return in.Text() }

// IsBranch reports whether in is a local branch (b with any condition).
func (in *Inst) IsBranch() bool { return in.Kind == KindInst && in.Opcode == "b" }

// Mentions reports whether any operand names register r.
func (in *Inst) Mentions(r arm32.Reg) bool {
	if in.Kind != KindInst {
		return false
	}
	name := r.String()
	for _, op := range in.Operands() {
		for _, tok := range strings.FieldsFunc(op, isOperandSep) {
			if tok == name {
				return true
			}
		}
	}
	return false
}

func isOperandSep(c rune) bool {
	switch c {
	case ' ', ',', '[', ']', '{', '}', '!', '#':
		return true
	}
	return false
}
