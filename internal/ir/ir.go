// Package ir defines the linear three-address IR consumed by the ARM32 backend.
// Every value carries an explicit storage class so the backend never has to
// guess a value's home from its name.
package ir

import (
	"fmt"
	"strings"
)

// Module bundles the functions and globals of one translation unit.
type Module struct {
	Name      string
	Version   string
	Globals   []*Value
	Functions []*Function
}

// Function is an ordered instruction list plus the tables the backend needs
// to lay out its frame.
type Function struct {
	Name        string
	ReturnType  Type
	Params      []*Value
	Locals      []*Value
	Temps       []*Value
	MemValues   []*Value
	ReturnValue *Value
	ExitLabel   string
	Insts       []*Instruction
}

// Global looks up a global value by name.
func (m *Module) Global(name string) *Value {
	for _, g := range m.Globals {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// Function looks up a function by name.
func (m *Module) Function(name string) *Function {
	for _, f := range m.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// HasCall reports whether f contains a live call instruction.
func (f *Function) HasCall() bool {
	for _, in := range f.Insts {
		if in.Op == OpCall && !in.Dead {
			return true
		}
	}
	return false
}

// MaxCallArgs returns the largest argument count among the calls of f.
func (f *Function) MaxCallArgs() int {
	most, pending := 0, 0
	for _, in := range f.Insts {
		if in.Dead {
			continue
		}
		switch in.Op {
		case OpArg:
			pending++
		case OpCall:
			n := len(in.Args)
			if n == 0 {
				n = pending
			}
			if n > most {
				most = n
			}
			pending = 0
		}
	}
	return most
}

// StagedArgs maps every live call to the values staged for it by the arg
// instructions since the previous call. A staged value is read by the call,
// not by its arg instruction.
func StagedArgs(insts []*Instruction) map[*Instruction][]*Value {
	staged := make(map[*Instruction][]*Value)
	var pending []*Value
	for _, in := range insts {
		if in.Dead {
			continue
		}
		switch in.Op {
		case OpArg:
			pending = append(pending, in.Args...)
		case OpCall:
			if len(pending) > 0 {
				staged[in] = pending
			}
			pending = nil
		}
	}
	return staged
}

// Promote moves v into the function's memory-resident temporaries.
// It is a no-op for values that are not plain temporaries.
func (f *Function) Promote(v *Value) {
	if v.Class != Temp {
		return
	}
	v.Class = Mem
	f.MemValues = append(f.MemValues, v)
	for i, t := range f.Temps {
		if t == v {
			f.Temps = append(f.Temps[:i], f.Temps[i+1:]...)
			break
		}
	}
}

func (f *Function) String() string {
	var b strings.Builder
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.Decl()
	}
	fmt.Fprintf(&b, "define %s @%s(%s) {\n", f.ReturnType, f.Name, strings.Join(params, ", "))
	for _, v := range f.Locals {
		fmt.Fprintf(&b, "\tlocal %s\n", v.Decl())
	}
	for _, v := range f.Temps {
		fmt.Fprintf(&b, "\ttemp %s\n", v.Decl())
	}
	for _, v := range f.MemValues {
		fmt.Fprintf(&b, "\tmem %s\n", v.Decl())
	}
	if rv := f.ReturnValue; rv != nil {
		if f.declares(rv) {
			fmt.Fprintf(&b, "\tret %s\n", rv)
		} else {
			fmt.Fprintf(&b, "\tret %s\n", rv.Decl())
		}
	}
	if f.ExitLabel != "" {
		fmt.Fprintf(&b, "\texit-label %s\n", f.ExitLabel)
	}
	for _, in := range f.Insts {
		if in.Op == OpLabel {
			fmt.Fprintf(&b, "%s\n", in)
			continue
		}
		fmt.Fprintf(&b, "\t%s\n", in)
	}
	b.WriteString("}\n")
	return b.String()
}

func (f *Function) declares(v *Value) bool {
	for _, list := range [][]*Value{f.Params, f.Locals, f.Temps, f.MemValues} {
		for _, x := range list {
			if x == v {
				return true
			}
		}
	}
	return false
}

func (m *Module) String() string {
	var b strings.Builder
	version := m.Version
	if version == "" {
		version = FormatVersion
	}
	fmt.Fprintf(&b, "; minic-ir %s\n", version)
	for _, g := range m.Globals {
		fmt.Fprintf(&b, "global %s\n", g.Decl())
	}
	for _, f := range m.Functions {
		b.WriteString(f.String())
	}
	return b.String()
}

// FormatVersion is the textual IR version written by String.
const FormatVersion = "1.0.0"
