package codegen

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/orizon-lang/minic/internal/arm32"
	"github.com/orizon-lang/minic/internal/codegen/emit"
	"github.com/orizon-lang/minic/internal/errors"
	"github.com/orizon-lang/minic/internal/ir"
	"github.com/orizon-lang/minic/internal/layout"
)

// maxPasses bounds the selection passes spent converging on the
// callee-save set and frame size.
const maxPasses = 4

// Options controls code generation for one function.
type Options struct {
	// SpillReserve is added to the variable area of every non-empty frame.
	SpillReserve int
	// FrameAlign is the alignment of the stack adjustment.
	FrameAlign int
	// ShowIR interleaves each IR instruction as a comment.
	ShowIR bool
	// Peephole runs emit.Peephole over the final sequence.
	Peephole bool
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{SpillReserve: 32, FrameAlign: 16}
}

// Result is the generated code of one function.
type Result struct {
	Function  *ir.Function
	Code      *emit.Sequence
	FrameSize int
	Saved     []arm32.Reg
	Layout    *layout.Manager
	Promoted  []*ir.Value
	Faults    []*errors.StandardError
	Passes    int
}

// CompileFunction selects ARM32 code for fn. Recoverable problems such as
// unsupported opcodes are collected in Result.Faults; the returned error is
// reserved for input that cannot be compiled at all.
func CompileFunction(fn *ir.Function, opts Options, log Logger) (*Result, error) {
	if fn == nil {
		return nil, fmt.Errorf("nil function")
	}
	if log == nil {
		log = nopLogger{}
	}
	if opts.FrameAlign <= 0 {
		opts.FrameAlign = DefaultOptions().FrameAlign
	}
	if !layout.IsPowerOfTwo(opts.FrameAlign) {
		return nil, fmt.Errorf("frame alignment %d is not a power of two", opts.FrameAlign)
	}

	res := &Result{Function: fn}
	res.Promoted = promoteCrossBlockTemps(fn)
	for _, v := range res.Promoted {
		log.Debug("@%s: %s lives across blocks; kept in memory", fn.Name, v)
	}

	lm := layout.NewManager(fn)
	if report := lm.Validate(); !report.OK() {
		if len(report.Conflicts) > 0 {
			res.Faults = append(res.Faults, errors.LayoutConflict(fn.Name, report.String()))
			log.Warn("@%s: %s", fn.Name, report)
		}
		lm.Reallocate()
	}
	res.Layout = lm

	var (
		saved []arm32.Reg
		final *context
	)
	for pass := 0; pass < maxPasses; pass++ {
		fr := frame{size: frameSize(fn, lm, opts)}
		fr.saved = pushSet(saved, fr.size > 0, fn.HasCall())

		c := newContext(fn, opts, lm, fr, nopLogger{})
		c.run()
		final = c
		res.Passes = pass + 1

		used := c.calleeSaved()
		if subset(used, saved) && frameSize(fn, lm, opts) == fr.size {
			break
		}
		saved = union(saved, used)
		log.Debug("@%s: pass %d saves %s, frame %d; retrying", fn.Name, pass, arm32.RegList(saved), fr.size)
	}

	for _, f := range final.faults {
		log.Warn("%s", f.Message)
	}
	res.Faults = append(res.Faults, final.faults...)
	res.Code = final.seq
	res.FrameSize = final.frame.size
	res.Saved = final.frame.saved

	var dump strings.Builder
	lm.Dump(&dump)
	log.Debug("%s", strings.TrimSuffix(dump.String(), "\n"))

	if opts.Peephole {
		if n := emit.Peephole(res.Code); n > 0 {
			log.Debug("@%s: peephole removed %d instructions", fn.Name, n)
		}
	}
	if n := res.Code.MarkDeadLabels(); n > 0 {
		log.Debug("@%s: %d unreferenced labels", fn.Name, n)
	}
	return res, nil
}

// frameSize is the stack adjustment for fn: the declared variables plus the
// spill reserve, grown if spills and outgoing arguments need more.
func frameSize(fn *ir.Function, lm *layout.Manager, opts Options) int {
	outgoing := 0
	if n := fn.MaxCallArgs() - arm32.NumArgRegs; n > 0 {
		outgoing = n * arm32.WordSize
	}
	if lm.Extent() == 0 && outgoing == 0 {
		return 0
	}

	declared := 0
	for _, v := range lm.Variables() {
		if v.Class == ir.Mem {
			continue
		}
		declared += v.Type.Size()
	}
	size := declared + opts.SpillReserve
	if need := lm.Extent() + outgoing; need > size {
		size = need
	}
	return layout.AlignUp(size, opts.FrameAlign)
}

// pushSet orders the registers saved by the prologue.
func pushSet(saved []arm32.Reg, hasFrame, hasCall bool) []arm32.Reg {
	regs := append([]arm32.Reg(nil), saved...)
	if hasFrame {
		regs = union(regs, []arm32.Reg{arm32.FP})
	}
	if hasCall {
		regs = union(regs, []arm32.Reg{arm32.LR})
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i] < regs[j] })
	return regs
}

func subset(a, b []arm32.Reg) bool {
	for _, r := range a {
		found := false
		for _, s := range b {
			if r == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func union(a, b []arm32.Reg) []arm32.Reg {
	out := append([]arm32.Reg(nil), a...)
	for _, r := range b {
		if !subset([]arm32.Reg{r}, out) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Program is a compiled module.
type Program struct {
	Module    *ir.Module
	Functions []*Result
}

// CompileModule compiles every function of m in order.
func CompileModule(m *ir.Module, opts Options, log Logger) (*Program, error) {
	if m == nil {
		return nil, fmt.Errorf("nil module")
	}
	p := &Program{Module: m}
	for _, fn := range m.Functions {
		res, err := CompileFunction(fn, opts, log)
		if err != nil {
			return nil, fmt.Errorf("failed to compile @%s: %w", fn.Name, err)
		}
		p.Functions = append(p.Functions, res)
	}
	return p, nil
}

// Faults returns the faults of every function in order.
func (p *Program) Faults() []*errors.StandardError {
	var out []*errors.StandardError
	for _, f := range p.Functions {
		out = append(out, f.Faults...)
	}
	return out
}

// Write emits the program as GNU assembler source.
func (p *Program) Write(w io.Writer, opts emit.WriteOptions) error {
	header := "\t.arch armv7ve\n\t.syntax unified\n\t.arm\n"
	if !opts.StripComments && p.Module.Name != "" {
		header = fmt.Sprintf("\t@ module %s\n", p.Module.Name) + header
	}
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}

	for _, g := range p.Module.Globals {
		if _, err := fmt.Fprintf(w, "\t.comm %s, %d, 4\n", g.Name, g.Type.Size()); err != nil {
			return err
		}
	}

	if _, err := io.WriteString(w, "\t.text\n"); err != nil {
		return err
	}
	for _, f := range p.Functions {
		name := f.Function.Name
		if opts.KeepEmpty {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "\t.align 2\n\t.global %s\n\t.type %s, %%function\n%s:\n", name, name, name); err != nil {
			return err
		}
		if err := f.Code.Write(w, opts); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "\t.size %s, .-%s\n", name, name); err != nil {
			return err
		}
	}
	return nil
}
