package irtext

import (
	"strings"

	"github.com/orizon-lang/minic/internal/ir"
)

var binaryOps = map[string]ir.Opcode{
	"add": ir.OpAdd, "sub": ir.OpSub, "mul": ir.OpMul, "div": ir.OpDiv, "mod": ir.OpMod,
}

var relOps = map[string]ir.Opcode{
	"lt": ir.OpLt, "le": ir.OpLe, "gt": ir.OpGt, "ge": ir.OpGe, "eq": ir.OpEq, "ne": ir.OpNe,
}

func (p *parser) instruction(s string) (*ir.Instruction, error) {
	if strings.HasSuffix(s, ":") && !strings.ContainsAny(s, " \t=") {
		return ir.Label(strings.TrimSuffix(s, ":")), nil
	}

	if lhs, rhs, ok := strings.Cut(s, "="); ok {
		return p.assignment(strings.TrimSpace(lhs), strings.TrimSpace(rhs))
	}

	word, rest := splitWord(s)
	switch word {
	case "entry":
		return ir.Entry(), nil
	case "exit":
		if rest == "" {
			return ir.Exit(nil), nil
		}
		v, err := p.operand(rest)
		if err != nil {
			return nil, err
		}
		return ir.Exit(v), nil
	case "br":
		if rest == "" {
			return nil, p.errorf("br needs a label")
		}
		return ir.Goto(rest), nil
	case "bc":
		parts := splitList(rest)
		if len(parts) < 2 || len(parts) > 3 {
			return nil, p.errorf("bc needs a condition and one or two labels")
		}
		cond, err := p.operand(parts[0])
		if err != nil {
			return nil, err
		}
		in := ir.CondGoto(cond, parts[1], "")
		if len(parts) == 3 {
			in.False = parts[2]
		}
		return in, nil
	case "arg":
		v, err := p.operand(rest)
		if err != nil {
			return nil, err
		}
		return ir.Arg(v), nil
	case "call":
		return p.call(nil, rest)
	}
	return nil, p.errorf("unknown instruction %q", s)
}

func (p *parser) assignment(lhs, rhs string) (*ir.Instruction, error) {
	if strings.HasPrefix(lhs, "*") {
		ptr, err := p.operand(lhs[1:])
		if err != nil {
			return nil, err
		}
		src, err := p.operand(rhs)
		if err != nil {
			return nil, err
		}
		return ir.Store(ptr, src), nil
	}
	if strings.Contains(lhs, "[") {
		arr, idx, err := p.indexed(lhs)
		if err != nil {
			return nil, err
		}
		src, err := p.operand(rhs)
		if err != nil {
			return nil, err
		}
		return ir.ArrayStore(arr, src, idx...), nil
	}

	dst, err := p.operand(lhs)
	if err != nil {
		return nil, err
	}
	if dst.Class == ir.Const {
		return nil, p.errorf("cannot assign to constant %s", dst)
	}

	word, rest := splitWord(rhs)
	if op, ok := binaryOps[word]; ok {
		a, b, err := p.pair(rest)
		if err != nil {
			return nil, err
		}
		return ir.Binary(op, dst, a, b), nil
	}
	switch word {
	case "cmp":
		rel, operands := splitWord(rest)
		op, ok := relOps[rel]
		if !ok {
			return nil, p.errorf("unknown comparison %q", rel)
		}
		a, b, err := p.pair(operands)
		if err != nil {
			return nil, err
		}
		return ir.Binary(op, dst, a, b), nil
	case "neg":
		a, err := p.operand(rest)
		if err != nil {
			return nil, err
		}
		return ir.Neg(dst, a), nil
	case "call":
		return p.call(dst, rest)
	}

	switch {
	case strings.HasPrefix(rhs, "*"):
		ptr, err := p.operand(rhs[1:])
		if err != nil {
			return nil, err
		}
		return ir.Load(dst, ptr), nil
	case strings.HasPrefix(rhs, "&"):
		arr, idx, err := p.indexed(rhs[1:])
		if err != nil {
			return nil, err
		}
		return ir.ArrayAddr(dst, arr, idx...), nil
	case strings.Contains(rhs, "["):
		arr, idx, err := p.indexed(rhs)
		if err != nil {
			return nil, err
		}
		return ir.ArrayLoad(dst, arr, idx...), nil
	}

	src, err := p.operand(rhs)
	if err != nil {
		return nil, err
	}
	return ir.Assign(dst, src), nil
}

func (p *parser) pair(s string) (*ir.Value, *ir.Value, error) {
	parts := splitList(s)
	if len(parts) != 2 {
		return nil, nil, p.errorf("expected two operands, got %q", s)
	}
	a, err := p.operand(parts[0])
	if err != nil {
		return nil, nil, err
	}
	b, err := p.operand(parts[1])
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

// call parses "@name(args)".
func (p *parser) call(dst *ir.Value, s string) (*ir.Instruction, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if !strings.HasPrefix(s, "@") || open < 0 || !strings.HasSuffix(s, ")") {
		return nil, p.errorf("malformed call %q", s)
	}
	var args []*ir.Value
	for _, a := range splitList(s[open+1 : len(s)-1]) {
		v, err := p.operand(a)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return ir.Call(dst, s[1:open], args...), nil
}
