package ir

import (
	"fmt"
	"strings"
)

// Opcode enumerates IR operations.
type Opcode int

const (
	OpEntry Opcode = iota
	OpExit
	OpLabel
	OpGoto
	OpCondGoto
	OpAssign
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNeg
	OpLt
	OpLe
	OpGt
	OpGe
	OpEq
	OpNe
	OpArrayLoad
	OpArrayStore
	OpArrayAddr
	OpArg
	OpCall
)

var opNames = [...]string{
	OpEntry: "entry", OpExit: "exit", OpLabel: "label", OpGoto: "br",
	OpCondGoto: "bc", OpAssign: "assign", OpAdd: "add", OpSub: "sub",
	OpMul: "mul", OpDiv: "div", OpMod: "mod", OpNeg: "neg",
	OpLt: "lt", OpLe: "le", OpGt: "gt", OpGe: "ge", OpEq: "eq", OpNe: "ne",
	OpArrayLoad: "aload", OpArrayStore: "astore", OpArrayAddr: "aaddr",
	OpArg: "arg", OpCall: "call",
}

func (op Opcode) String() string {
	if op >= 0 && int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("op(%d)", int(op))
}

// IsBinary reports whether op is a two-operand arithmetic operation.
func (op Opcode) IsBinary() bool { return op >= OpAdd && op <= OpMod }

// IsRelational reports whether op is a comparison.
func (op Opcode) IsRelational() bool { return op >= OpLt && op <= OpNe }

// MoveKind discriminates the three forms of assignment.
type MoveKind int

const (
	// Direct is "dst = src".
	Direct MoveKind = iota
	// PointerLoad is "dst = *src".
	PointerLoad
	// PointerStore is "*dst = src"; Result holds the pointer.
	PointerStore
)

// Instruction is one three-address operation.
//
// Array operations keep the array (or pointer) in Args[0]; ArrayStore keeps
// the stored value in Args[1]. Goto jumps to Label; CondGoto jumps to Label
// when Args[0] is non-zero and to False otherwise.
type Instruction struct {
	Op      Opcode
	Result  *Value
	Args    []*Value
	Indices []*Value
	Label   string
	False   string
	Callee  string
	Move    MoveKind
	Dead    bool
}

// Def returns the value written by in, or nil.
func (in *Instruction) Def() *Value {
	switch in.Op {
	case OpArrayStore, OpGoto, OpCondGoto, OpLabel, OpEntry, OpExit, OpArg:
		return nil
	case OpAssign:
		if in.Move == PointerStore {
			return nil
		}
	}
	return in.Result
}

// Uses returns the values read by in, in operand order.
func (in *Instruction) Uses() []*Value {
	var uses []*Value
	if in.Op == OpAssign && in.Move == PointerStore && in.Result != nil {
		uses = append(uses, in.Result)
	}
	uses = append(uses, in.Args...)
	uses = append(uses, in.Indices...)
	return uses
}

// Branches reports whether in transfers control.
func (in *Instruction) Branches() bool {
	return in.Op == OpGoto || in.Op == OpCondGoto || in.Op == OpExit
}

func (in *Instruction) String() string {
	arg := func(i int) string {
		if i < len(in.Args) {
			return in.Args[i].String()
		}
		return "?"
	}
	switch in.Op {
	case OpEntry:
		return "entry"
	case OpExit:
		if len(in.Args) > 0 {
			return "exit " + arg(0)
		}
		return "exit"
	case OpLabel:
		return in.Label + ":"
	case OpGoto:
		return "br " + in.Label
	case OpCondGoto:
		if in.False == "" {
			return fmt.Sprintf("bc %s, %s", arg(0), in.Label)
		}
		return fmt.Sprintf("bc %s, %s, %s", arg(0), in.Label, in.False)
	case OpAssign:
		switch in.Move {
		case PointerLoad:
			return fmt.Sprintf("%s = *%s", in.Result, arg(0))
		case PointerStore:
			return fmt.Sprintf("*%s = %s", in.Result, arg(0))
		}
		return fmt.Sprintf("%s = %s", in.Result, arg(0))
	case OpNeg:
		return fmt.Sprintf("%s = neg %s", in.Result, arg(0))
	case OpArrayLoad:
		return fmt.Sprintf("%s = %s%s", in.Result, arg(0), in.subscripts())
	case OpArrayStore:
		return fmt.Sprintf("%s%s = %s", arg(0), in.subscripts(), arg(1))
	case OpArrayAddr:
		return fmt.Sprintf("%s = &%s%s", in.Result, arg(0), in.subscripts())
	case OpArg:
		return "arg " + arg(0)
	case OpCall:
		args := make([]string, len(in.Args))
		for i, a := range in.Args {
			args[i] = a.String()
		}
		call := fmt.Sprintf("call @%s(%s)", in.Callee, strings.Join(args, ", "))
		if in.Result != nil {
			return fmt.Sprintf("%s = %s", in.Result, call)
		}
		return call
	}
	if in.Op.IsRelational() {
		return fmt.Sprintf("%s = cmp %s %s, %s", in.Result, in.Op, arg(0), arg(1))
	}
	return fmt.Sprintf("%s = %s %s, %s", in.Result, in.Op, arg(0), arg(1))
}

func (in *Instruction) subscripts() string {
	var b strings.Builder
	for _, ix := range in.Indices {
		fmt.Fprintf(&b, "[%s]", ix)
	}
	return b.String()
}

// Constructors used by frontends and tests.

func Entry() *Instruction             { return &Instruction{Op: OpEntry} }
func Label(name string) *Instruction  { return &Instruction{Op: OpLabel, Label: name} }
func Goto(label string) *Instruction  { return &Instruction{Op: OpGoto, Label: label} }
func Arg(v *Value) *Instruction       { return &Instruction{Op: OpArg, Args: []*Value{v}} }
func Assign(dst, src *Value) *Instruction {
	return &Instruction{Op: OpAssign, Result: dst, Args: []*Value{src}}
}

// Exit returns from the function; ret may be nil.
func Exit(ret *Value) *Instruction {
	in := &Instruction{Op: OpExit}
	if ret != nil {
		in.Args = []*Value{ret}
	}
	return in
}

func CondGoto(cond *Value, onTrue, onFalse string) *Instruction {
	return &Instruction{Op: OpCondGoto, Args: []*Value{cond}, Label: onTrue, False: onFalse}
}

func Load(dst, ptr *Value) *Instruction {
	return &Instruction{Op: OpAssign, Move: PointerLoad, Result: dst, Args: []*Value{ptr}}
}

func Store(ptr, src *Value) *Instruction {
	return &Instruction{Op: OpAssign, Move: PointerStore, Result: ptr, Args: []*Value{src}}
}

func Binary(op Opcode, dst, a, b *Value) *Instruction {
	return &Instruction{Op: op, Result: dst, Args: []*Value{a, b}}
}

func Neg(dst, a *Value) *Instruction {
	return &Instruction{Op: OpNeg, Result: dst, Args: []*Value{a}}
}

func ArrayLoad(dst, arr *Value, idx ...*Value) *Instruction {
	return &Instruction{Op: OpArrayLoad, Result: dst, Args: []*Value{arr}, Indices: idx}
}

func ArrayStore(arr, src *Value, idx ...*Value) *Instruction {
	return &Instruction{Op: OpArrayStore, Args: []*Value{arr, src}, Indices: idx}
}

func ArrayAddr(dst, arr *Value, idx ...*Value) *Instruction {
	return &Instruction{Op: OpArrayAddr, Result: dst, Args: []*Value{arr}, Indices: idx}
}

// Call builds a call; dst may be nil.
func Call(dst *Value, callee string, args ...*Value) *Instruction {
	return &Instruction{Op: OpCall, Result: dst, Callee: callee, Args: args}
}
