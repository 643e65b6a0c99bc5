// Package irtext reads and writes the line-oriented textual form of the IR.
package irtext

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/orizon-lang/minic/internal/ir"
)

// SupportedVersions is the range of "; minic-ir" header versions this reader accepts.
const SupportedVersions = ">= 1.0.0, < 2.0.0"

const headerPrefix = "; minic-ir "

// ParseError reports a malformed line.
type ParseError struct {
	File string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

type parser struct {
	file   string
	line   int
	mod    *ir.Module
	fn     *ir.Function
	values map[string]*ir.Value
}

// ParseString parses IR text held in memory.
func ParseString(name, src string) (*ir.Module, error) {
	return Parse(name, strings.NewReader(src))
}

// Parse reads a whole module. The first non-blank line must be a version
// header accepted by SupportedVersions.
func Parse(name string, r io.Reader) (*ir.Module, error) {
	p := &parser{file: name, mod: &ir.Module{Name: name}}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	sawHeader := false
	for sc.Scan() {
		p.line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		if !sawHeader {
			if err := p.header(raw); err != nil {
				return nil, err
			}
			sawHeader = true
			continue
		}
		text := stripComment(raw)
		if text == "" {
			continue
		}
		if err := p.statement(text); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if !sawHeader {
		return nil, p.errorf("missing %q header", strings.TrimSpace(headerPrefix))
	}
	if p.fn != nil {
		return nil, p.errorf("unterminated function @%s", p.fn.Name)
	}
	return p.mod, nil
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return &ParseError{File: p.file, Line: p.line, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) header(line string) error {
	if !strings.HasPrefix(line, headerPrefix) {
		return p.errorf("missing %q header", strings.TrimSpace(headerPrefix))
	}
	raw := strings.TrimSpace(strings.TrimPrefix(line, headerPrefix))
	v, err := semver.NewVersion(raw)
	if err != nil {
		return p.errorf("invalid IR version %q: %v", raw, err)
	}
	c, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return p.errorf("invalid version constraint: %v", err)
	}
	if !c.Check(v) {
		return p.errorf("IR version %s is not supported (want %s)", v, SupportedVersions)
	}
	p.mod.Version = v.String()
	return nil
}

func stripComment(s string) string {
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func (p *parser) statement(s string) error {
	if p.fn == nil {
		switch {
		case strings.HasPrefix(s, "global "):
			v, err := p.decl(strings.TrimPrefix(s, "global "), '@')
			if err != nil {
				return err
			}
			v.Class = ir.Global
			p.mod.Globals = append(p.mod.Globals, v)
			return nil
		case strings.HasPrefix(s, "define "):
			return p.define(strings.TrimPrefix(s, "define "))
		}
		return p.errorf("unexpected %q outside a function", s)
	}

	if s == "}" {
		p.mod.Functions = append(p.mod.Functions, p.fn)
		p.fn, p.values = nil, nil
		return nil
	}

	word, rest := splitWord(s)
	switch word {
	case "local", "temp", "mem":
		return p.declare(word, rest)
	case "ret":
		return p.retDecl(rest)
	case "exit-label":
		p.fn.ExitLabel = strings.TrimSpace(rest)
		return nil
	}
	in, err := p.instruction(s)
	if err != nil {
		return err
	}
	p.fn.Insts = append(p.fn.Insts, in)
	return nil
}

// define parses "TYPE @name(params) {".
func (p *parser) define(s string) error {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, "{") {
		return p.errorf("expected '{' after function header")
	}
	s = strings.TrimSpace(strings.TrimSuffix(s, "{"))
	typWord, rest := splitWord(s)
	rt, err := p.typeWord(typWord)
	if err != nil {
		return err
	}
	open := strings.IndexByte(rest, '(')
	if open < 0 || !strings.HasSuffix(rest, ")") || !strings.HasPrefix(rest, "@") {
		return p.errorf("malformed function header %q", s)
	}
	p.fn = &ir.Function{Name: rest[1:open], ReturnType: rt}
	p.values = map[string]*ir.Value{}
	for _, ps := range splitList(rest[open+1 : len(rest)-1]) {
		v, err := p.decl(ps, '%')
		if err != nil {
			return err
		}
		if v.Type.Kind == ir.Array {
			// Arrays are passed by address.
			v.Type = ir.PointerTo(v.Type.Dims[1:]...)
		}
		v.Class = ir.Param
		if err := p.bind(v); err != nil {
			return err
		}
		p.fn.Params = append(p.fn.Params, v)
	}
	return nil
}

func (p *parser) declare(kind, rest string) error {
	v, err := p.decl(rest, '%')
	if err != nil {
		return err
	}
	switch kind {
	case "local":
		v.Class = ir.Local
		p.fn.Locals = append(p.fn.Locals, v)
	case "temp":
		v.Class = ir.Temp
		p.fn.Temps = append(p.fn.Temps, v)
	case "mem":
		v.Class = ir.Mem
		p.fn.MemValues = append(p.fn.MemValues, v)
	}
	return p.bind(v)
}

func (p *parser) retDecl(rest string) error {
	rest = strings.TrimSpace(rest)
	if strings.HasPrefix(rest, "%") {
		v, ok := p.values[rest[1:]]
		if !ok {
			return p.errorf("undeclared return value %s", rest)
		}
		p.fn.ReturnValue = v
		return nil
	}
	v, err := p.decl(rest, '%')
	if err != nil {
		return err
	}
	v.Class = ir.Local
	p.fn.ReturnValue = v
	return p.bind(v)
}

func (p *parser) bind(v *ir.Value) error {
	if _, dup := p.values[v.Name]; dup {
		return p.errorf("value %%%s declared twice", v.Name)
	}
	p.values[v.Name] = v
	return nil
}

// decl parses "TYPE SIGILname[d1][d2]...".
func (p *parser) decl(s string, sigil byte) (*ir.Value, error) {
	typWord, rest := splitWord(strings.TrimSpace(s))
	t, err := p.typeWord(typWord)
	if err != nil {
		return nil, err
	}
	if rest == "" || rest[0] != sigil {
		return nil, p.errorf("expected %cname in declaration %q", sigil, s)
	}
	name, dimsText := splitSubscripts(rest[1:])
	if name == "" {
		return nil, p.errorf("empty name in declaration %q", s)
	}
	var dims []int
	for _, d := range dimsText {
		n, err := strconv.Atoi(d)
		if err != nil || n <= 0 {
			return nil, p.errorf("invalid dimension %q", d)
		}
		dims = append(dims, n)
	}
	if len(dims) > 0 {
		if t.Kind == ir.Pointer {
			t = ir.PointerTo(dims...)
		} else {
			t = ir.ArrayOf(dims...)
		}
	}
	return &ir.Value{Name: name, Type: t}, nil
}

func (p *parser) typeWord(w string) (ir.Type, error) {
	switch w {
	case "i32", "int":
		return ir.IntType, nil
	case "i1", "bool":
		return ir.BoolType, nil
	case "ptr":
		return ir.PtrType, nil
	case "void":
		return ir.VoidType, nil
	}
	return ir.Type{}, p.errorf("unknown type %q", w)
}

// operand resolves a value reference.
func (p *parser) operand(s string) (*ir.Value, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, p.errorf("missing operand")
	}
	switch s[0] {
	case '%':
		if v, ok := p.values[s[1:]]; ok {
			return v, nil
		}
		return nil, p.errorf("undeclared value %s", s)
	case '@':
		if g := p.mod.Global(s[1:]); g != nil {
			return g, nil
		}
		return nil, p.errorf("undeclared global %s", s)
	case '$':
		if len(s) > 2 && s[1] == 'r' {
			if n, err := strconv.Atoi(s[2:]); err == nil && n >= 0 && n <= 15 {
				return ir.NewReg(n), nil
			}
		}
		return nil, p.errorf("invalid register %s", s)
	}
	k, err := strconv.ParseInt(s, 0, 64)
	if err != nil || k < -1<<31 || k > 1<<32-1 {
		return nil, p.errorf("invalid operand %q", s)
	}
	return ir.NewConst(int32(uint32(k))), nil
}

// indexed parses "%arr[i][j]" into the base value and its subscripts.
func (p *parser) indexed(s string) (*ir.Value, []*ir.Value, error) {
	name, subs := splitSubscripts(strings.TrimSpace(s))
	base, err := p.operand(name)
	if err != nil {
		return nil, nil, err
	}
	if !base.Type.Indexable() {
		return nil, nil, p.errorf("%s is not an array or pointer", base)
	}
	var idx []*ir.Value
	for _, sub := range subs {
		v, err := p.operand(sub)
		if err != nil {
			return nil, nil, err
		}
		idx = append(idx, v)
	}
	return base, idx, nil
}

func splitWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i], strings.TrimSpace(s[i+1:])
	}
	return s, ""
}

func splitList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// splitSubscripts splits "name[a][b]" into "name" and ["a", "b"].
func splitSubscripts(s string) (string, []string) {
	open := strings.IndexByte(s, '[')
	if open < 0 {
		return s, nil
	}
	name := s[:open]
	var subs []string
	rest := s[open:]
	for strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			break
		}
		subs = append(subs, strings.TrimSpace(rest[1:end]))
		rest = rest[end+1:]
	}
	return name, subs
}
