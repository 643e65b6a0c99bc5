package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// TypeKind classifies IR types.
type TypeKind int

const (
	Void TypeKind = iota
	Int
	Bool
	Pointer
	Array
)

// Type is an IR type. Arrays and pointers carry dimensions: an array lists
// all of its dimensions, a pointer lists the dimensions of what each step
// of its first index skips over (nil for a plain int pointer).
type Type struct {
	Kind TypeKind
	Dims []int
}

// Common types.
var (
	VoidType = Type{Kind: Void}
	IntType  = Type{Kind: Int}
	BoolType = Type{Kind: Bool}
	PtrType  = Type{Kind: Pointer}
)

// ArrayOf returns an int array type with the given dimensions.
func ArrayOf(dims ...int) Type { return Type{Kind: Array, Dims: dims} }

// PointerTo returns a pointer type whose pointee rows have the given inner dimensions.
func PointerTo(inner ...int) Type { return Type{Kind: Pointer, Dims: inner} }

// ElemSize is the size of one array element or pointee word.
const ElemSize = 4

// Size returns the storage size of a value of type t in bytes.
func (t Type) Size() int {
	switch t.Kind {
	case Void:
		return 0
	case Array:
		return t.Elems() * ElemSize
	}
	return 4
}

// Elems returns the total element count of an array type.
func (t Type) Elems() int {
	if t.Kind != Array {
		return 1
	}
	n := 1
	for _, d := range t.Dims {
		n *= d
	}
	return n
}

// Strides returns, for every index position, the number of elements one
// step of that index skips.
func (t Type) Strides() []int {
	var inner []int
	switch t.Kind {
	case Array:
		if len(t.Dims) == 0 {
			return []int{1}
		}
		inner = t.Dims[1:]
	case Pointer:
		inner = t.Dims
	default:
		return nil
	}
	strides := make([]int, len(inner)+1)
	strides[len(inner)] = 1
	for i := len(inner) - 1; i >= 0; i-- {
		strides[i] = strides[i+1] * inner[i]
	}
	return strides
}

// Indexable reports whether values of t can be subscripted.
func (t Type) Indexable() bool { return t.Kind == Array || t.Kind == Pointer }

func (t Type) String() string {
	switch t.Kind {
	case Void:
		return "void"
	case Bool:
		return "i1"
	case Pointer:
		return "ptr"
	}
	return "i32"
}

func (t Type) dimSuffix() string {
	var b strings.Builder
	for _, d := range t.Dims {
		fmt.Fprintf(&b, "[%d]", d)
	}
	return b.String()
}

// StorageClass says where a value lives before register allocation.
type StorageClass int

const (
	// Local is a named frame variable.
	Local StorageClass = iota
	// Temp is a compiler temporary that prefers a register.
	Temp
	// Param is a formal parameter; it gets a frame slot on entry.
	Param
	// Global is a module-level symbol.
	Global
	// Const is an immediate integer.
	Const
	// Mem is a temporary that must live in a frame slot.
	Mem
	// Reg names a physical register directly.
	Reg
)

var classNames = map[StorageClass]string{
	Local: "local", Temp: "temp", Param: "param", Global: "global",
	Const: "const", Mem: "mem", Reg: "reg",
}

func (c StorageClass) String() string {
	if s, ok := classNames[c]; ok {
		return s
	}
	return "class(" + strconv.Itoa(int(c)) + ")"
}

// Value is an IR operand. Values are compared by identity.
type Value struct {
	Name  string
	Class StorageClass
	Type  Type
	// Imm is the value of a Const.
	Imm int32
	// RegNum is the physical register of a Reg value.
	RegNum int
}

// NewLocal returns a frame variable.
func NewLocal(name string, t Type) *Value { return &Value{Name: name, Class: Local, Type: t} }

// NewTemp returns an int temporary.
func NewTemp(name string) *Value { return &Value{Name: name, Class: Temp, Type: IntType} }

// NewParam returns a formal parameter.
func NewParam(name string, t Type) *Value { return &Value{Name: name, Class: Param, Type: t} }

// NewGlobal returns a module-level symbol.
func NewGlobal(name string, t Type) *Value { return &Value{Name: name, Class: Global, Type: t} }

// NewMem returns a temporary pinned to memory.
func NewMem(name string) *Value { return &Value{Name: name, Class: Mem, Type: IntType} }

// NewConst returns an integer immediate.
func NewConst(k int32) *Value { return &Value{Class: Const, Type: IntType, Imm: k} }

// NewReg returns a value bound to physical register r.
func NewReg(r int) *Value { return &Value{Name: fmt.Sprintf("r%d", r), Class: Reg, Type: IntType, RegNum: r} }

// IsTemp reports whether v is a register-preferring temporary.
func (v *Value) IsTemp() bool { return v != nil && v.Class == Temp }

// InMemory reports whether v owns a frame slot.
func (v *Value) InMemory() bool {
	return v != nil && (v.Class == Local || v.Class == Param || v.Class == Mem)
}

// IsArray reports whether v is an array object (not a pointer to one).
func (v *Value) IsArray() bool { return v != nil && v.Type.Kind == Array }

func (v *Value) String() string {
	if v == nil {
		return "<nil>"
	}
	switch v.Class {
	case Const:
		return strconv.Itoa(int(v.Imm))
	case Global:
		return "@" + v.Name
	case Reg:
		return "$" + v.Name
	}
	return "%" + v.Name
}

// Decl returns the declaration form "type name[dims]".
func (v *Value) Decl() string {
	return fmt.Sprintf("%s %s%s", v.Type, v, v.Type.dimSuffix())
}
