package codegen

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/orizon-lang/minic/internal/arm32"
	"github.com/orizon-lang/minic/internal/codegen/emit"
	"github.com/orizon-lang/minic/internal/errors"
	"github.com/orizon-lang/minic/internal/ir"
	"github.com/orizon-lang/minic/internal/ir/irtext"
)

func compile(t *testing.T, src string, opts Options) (*ir.Module, *Program) {
	t.Helper()
	m, err := irtext.ParseString("test.ir", "; minic-ir 1.0.0\n"+src)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	p, err := CompileModule(m, opts, nil)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	return m, p
}

func TestCompileFunctions(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "leaf without frame",
			src: `define i32 @seven() {
	entry
	exit 7
}`,
			want: []string{"movw r0, #7", "bx lr"},
		},
		{
			name: "parameters round trip through the frame",
			src: `define i32 @add(i32 %a, i32 %b) {
	temp i32 %t0
	entry
	%t0 = add %a, %b
	exit %t0
}`,
			want: []string{
				"push {fp}",
				"mov fp, sp",
				"sub sp, sp, #48",
				"str r0, [fp, #-4]",
				"str r1, [fp, #-8]",
				"ldr r0, [fp, #-4]",
				"ldr r1, [fp, #-8]",
				"add r2, r0, r1",
				"mov r0, r2",
				"mov sp, fp",
				"pop {fp}",
				"bx lr",
			},
		},
		{
			name: "stack parameters are read above the saved registers",
			src: `define i32 @six(i32 %a, i32 %b, i32 %c, i32 %d, i32 %e, i32 %f) {
	entry
	exit %f
}`,
			want: []string{
				"push {fp}",
				"mov fp, sp",
				"sub sp, sp, #64",
				"str r0, [fp, #-4]",
				"str r1, [fp, #-8]",
				"str r2, [fp, #-12]",
				"str r3, [fp, #-16]",
				"ldr ip, [fp, #4]",
				"str ip, [fp, #-20]",
				"ldr ip, [fp, #8]",
				"str ip, [fp, #-24]",
				"ldr r0, [fp, #-24]",
				"mov sp, fp",
				"pop {fp}",
				"bx lr",
			},
		},
		{
			name: "six argument call",
			src: `define i32 @caller() {
	temp i32 %t0
	entry
	%t0 = call @f(1, 2, 3, 4, 5, 6)
	exit %t0
}`,
			want: []string{
				"push {fp, lr}",
				"mov fp, sp",
				"sub sp, sp, #32",
				"movw r0, #5",
				"str r0, [sp]",
				"movw r0, #6",
				"str r0, [sp, #4]",
				"movw r0, #1",
				"movw r1, #2",
				"movw r2, #3",
				"movw r3, #4",
				"bl f",
				"mov sp, fp",
				"pop {fp, lr}",
				"bx lr",
			},
		},
		{
			name: "staged temporary survives until the call",
			src: `define i32 @g(i32 %a) {
	temp i32 %t0
	temp i32 %t1
	entry
	%t0 = add %a, 1
	arg %t0
	%t1 = call @f()
	exit %t1
}`,
			want: []string{
				"push {fp, lr}",
				"mov fp, sp",
				"sub sp, sp, #48",
				"str r0, [fp, #-4]",
				"ldr r0, [fp, #-4]",
				"add r1, r0, #1",
				"str r1, [fp, #-8]",
				"ldr r0, [fp, #-8]",
				"bl f",
				"mov sp, fp",
				"pop {fp, lr}",
				"bx lr",
			},
		},
		{
			name: "two staged temporaries keep their order",
			src: `define i32 @h(i32 %a) {
	temp i32 %t0
	temp i32 %t1
	temp i32 %t2
	entry
	%t0 = add %a, 1
	arg %t0
	%t1 = mul %a, 2
	arg %t1
	%t2 = call @f()
	exit %t2
}`,
			want: []string{
				"push {fp, lr}",
				"mov fp, sp",
				"sub sp, sp, #48",
				"str r0, [fp, #-4]",
				"ldr r0, [fp, #-4]",
				"add r1, r0, #1",
				"ldr r0, [fp, #-4]",
				"lsl r2, r0, #1",
				"str r1, [fp, #-8]",
				"str r2, [fp, #-12]",
				"ldr r0, [fp, #-8]",
				"ldr r1, [fp, #-12]",
				"bl f",
				"mov sp, fp",
				"pop {fp, lr}",
				"bx lr",
			},
		},
		{
			name: "comparison materializes a boolean",
			src: `define i32 @lt(i32 %a) {
	temp i32 %t0
	entry
	%t0 = cmp lt %a, 10
	exit %t0
}`,
			want: []string{
				"push {fp}",
				"mov fp, sp",
				"sub sp, sp, #48",
				"str r0, [fp, #-4]",
				"ldr r0, [fp, #-4]",
				"cmp r0, #10",
				"mov r1, #0",
				"movlt r1, #1",
				"mov r0, r1",
				"mov sp, fp",
				"pop {fp}",
				"bx lr",
			},
		},
		{
			name: "negative comparison immediate uses cmn",
			src: `define i32 @gt(i32 %a) {
	temp i32 %t0
	entry
	%t0 = cmp gt %a, -5
	exit %t0
}`,
			want: []string{
				"push {fp}",
				"mov fp, sp",
				"sub sp, sp, #48",
				"str r0, [fp, #-4]",
				"ldr r0, [fp, #-4]",
				"cmn r0, #5",
				"mov r1, #0",
				"movgt r1, #1",
				"mov r0, r1",
				"mov sp, fp",
				"pop {fp}",
				"bx lr",
			},
		},
		{
			name: "arithmetic strength reduction",
			src: `define i32 @ops(i32 %a, i32 %b) {
	temp i32 %t0
	temp i32 %t1
	temp i32 %t2
	entry
	%t0 = add %a, -4
	%t1 = mul %t0, 8
	%t2 = mod %t1, %b
	exit %t2
}`,
			want: []string{
				"push {r4, fp}",
				"mov fp, sp",
				"sub sp, sp, #48",
				"str r0, [fp, #-4]",
				"str r1, [fp, #-8]",
				"ldr r0, [fp, #-4]",
				"sub r1, r0, #4",
				"lsl r0, r1, #3",
				"ldr r2, [fp, #-8]",
				"sdiv r3, r0, r2",
				"mls r4, r3, r2, r0",
				"mov r0, r4",
				"mov sp, fp",
				"pop {r4, fp}",
				"bx lr",
			},
		},
		{
			name: "store through a pointer",
			src: `define void @put(ptr %p, i32 %v) {
	entry
	*%p = %v
	exit
}`,
			want: []string{
				"push {fp}",
				"mov fp, sp",
				"sub sp, sp, #48",
				"str r0, [fp, #-4]",
				"str r1, [fp, #-8]",
				"ldr r0, [fp, #-4]",
				"ldr r1, [fp, #-8]",
				"str r1, [r0]",
				"mov sp, fp",
				"pop {fp}",
				"bx lr",
			},
		},
		{
			name: "local array with constant and dynamic index",
			src: `define i32 @arr(i32 %i) {
	local i32 %a[4]
	temp i32 %t0
	entry
	%a[2] = 7
	%t0 = %a[%i]
	exit %t0
}`,
			want: []string{
				"push {fp}",
				"mov fp, sp",
				"sub sp, sp, #64",
				"str r0, [fp, #-24]",
				"movw r0, #7",
				"str r0, [fp, #-8]",
				"ldr r0, [fp, #-24]",
				"add ip, fp, r0, lsl #2",
				"ldr r1, [ip, #-16]",
				"mov r0, r1",
				"mov sp, fp",
				"pop {fp}",
				"bx lr",
			},
		},
		{
			name: "unreferenced labels are dropped",
			src: `define i32 @branch(i32 %c) {
	entry
	bc %c, .L1
.L2:
.L1:
	exit 0
}`,
			want: []string{
				"push {fp}",
				"mov fp, sp",
				"sub sp, sp, #48",
				"str r0, [fp, #-4]",
				"ldr r0, [fp, #-4]",
				"cmp r0, #0",
				"bne .L1",
				".L1:",
				"movw r0, #0",
				"mov sp, fp",
				"pop {fp}",
				"bx lr",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, p := compile(t, tt.src, DefaultOptions())
			res := p.Functions[0]
			if diff := cmp.Diff(tt.want, res.Code.Live()); diff != "" {
				t.Errorf("code mismatch (-want +got):\n%s", diff)
			}
			if len(res.Faults) != 0 {
				t.Errorf("Expected no faults, got %v", res.Faults)
			}
		})
	}
}

func TestGlobalTwoDimensionalArray(t *testing.T) {
	_, p := compile(t, `global i32 @g[3][5]
define i32 @get(i32 %i, i32 %j) {
	temp i32 %t0
	entry
	%t0 = @g[%i][%j]
	exit %t0
}`, DefaultOptions())
	res := p.Functions[0]

	want := []string{
		"push {r10, fp}",
		"mov fp, sp",
		"sub sp, sp, #48",
		"str r0, [fp, #-4]",
		"str r1, [fp, #-8]",
		"ldr r0, [fp, #-4]",
		"ldr r1, [fp, #-8]",
		"movw r2, #:lower16:g",
		"movt r2, #:upper16:g",
		"movw ip, #20",
		"mul r10, r0, ip",
		"add r10, r10, r1, lsl #2",
		"add ip, r2, r10",
		"ldr r3, [ip]",
		"mov r0, r3",
		"mov sp, fp",
		"pop {r10, fp}",
		"bx lr",
	}
	if diff := cmp.Diff(want, res.Code.Live()); diff != "" {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}
	if res.Passes != 2 {
		t.Errorf("Expected a second pass to save r10, got %d passes", res.Passes)
	}
}

func TestPoolExhaustionSpills(t *testing.T) {
	var b strings.Builder
	b.WriteString("define i32 @many() {\n")
	for i := 0; i <= 10; i++ {
		fmt.Fprintf(&b, "\ttemp i32 %%t%d\n", i)
	}
	for i := 0; i <= 9; i++ {
		fmt.Fprintf(&b, "\ttemp i32 %%u%d\n", i)
	}
	b.WriteString("\tentry\n")
	for i := 0; i <= 10; i++ {
		fmt.Fprintf(&b, "\t%%t%d = %d\n", i, i)
	}
	b.WriteString("\t%u0 = add %t10, %t0\n")
	for i := 1; i <= 9; i++ {
		fmt.Fprintf(&b, "\t%%u%d = add %%u%d, %%t%d\n", i, i-1, i)
	}
	b.WriteString("\texit %u9\n}\n")

	_, p := compile(t, b.String(), DefaultOptions())
	res := p.Functions[0]

	if len(res.Faults) != 0 {
		t.Errorf("Expected spilling without faults, got %v", res.Faults)
	}
	code := res.Code.Live()
	if !contains(code, "movw r10, #10") {
		t.Errorf("Expected the eleventh temporary to be computed in r10:\n%s", strings.Join(code, "\n"))
	}
	if !contains(code, "str r10, [fp, #-4]") {
		t.Errorf("Expected the eleventh temporary to go to its spill slot:\n%s", strings.Join(code, "\n"))
	}
	wantSaved := []arm32.Reg{arm32.R4, arm32.R5, arm32.R6, arm32.R7, arm32.R8, arm32.R9, arm32.R10, arm32.FP}
	if diff := cmp.Diff(wantSaved, res.Saved); diff != "" {
		t.Errorf("saved set mismatch (-want +got):\n%s", diff)
	}
	if res.FrameSize < res.Layout.Extent() || res.FrameSize%16 != 0 {
		t.Errorf("frame of %d bytes does not cover %d bytes of spill slots", res.FrameSize, res.Layout.Extent())
	}
	if res.Passes != 2 {
		t.Errorf("Expected 2 passes, got %d", res.Passes)
	}
	if code[0] != "push {r4, r5, r6, r7, r8, r9, r10, fp}" {
		t.Errorf("unexpected prologue %q", code[0])
	}
}

func TestCrossBlockTempsArePromoted(t *testing.T) {
	m, p := compile(t, `define i32 @pick(i32 %c) {
	temp i32 %t0
	temp i32 %t1
	entry
	%t0 = 1
	bc %c, .L1
.L1:
	%t1 = add %t0, 2
	exit %t1
}`, DefaultOptions())
	fn := m.Functions[0]
	res := p.Functions[0]

	if len(res.Promoted) != 1 || res.Promoted[0].Name != "t0" {
		t.Fatalf("Expected only %%t0 promoted, got %v", res.Promoted)
	}
	if res.Promoted[0].Class != ir.Mem || len(fn.MemValues) != 1 || len(fn.Temps) != 1 {
		t.Errorf("promotion did not move %%t0 to memory: %s", fn)
	}
	slot, ok := res.Layout.Lookup(res.Promoted[0])
	if !ok {
		t.Fatal("Expected a frame slot for the promoted temporary")
	}
	code := res.Code.Live()
	store := "str r0, [fp, " + emit.Imm(slot.Offset) + "]"
	if !contains(code, store) {
		t.Errorf("Expected %q in:\n%s", store, strings.Join(code, "\n"))
	}
}

func TestSelectorFaults(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want *errors.StandardError
		not  string
	}{
		{
			name: "pointer stored through itself",
			src: `define void @alias(ptr %p) {
	entry
	*%p = %p
	exit
}`,
			want: errors.PointerAlias("", 0, "", ""),
			not:  "str r0, [r0]",
		},
		{
			name: "staged and passed arguments disagree",
			src: `define void @mismatch() {
	entry
	arg 1
	arg 2
	call @f(1)
	exit
}`,
			want: errors.ArgCountMismatch("", 0, "", 0, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, p := compile(t, tt.src, DefaultOptions())
			faults := p.Faults()
			if len(faults) != 1 || !stderrors.Is(faults[0], tt.want) {
				t.Fatalf("Expected one %s fault, got %v", tt.want.Code, faults)
			}
			if tt.not != "" && contains(p.Functions[0].Code.Live(), tt.not) {
				t.Errorf("Expected %q to be suppressed", tt.not)
			}
		})
	}
}

func TestUnsupportedOpcodeIsSkipped(t *testing.T) {
	fn := &ir.Function{
		Name: "odd",
		Insts: []*ir.Instruction{
			ir.Entry(),
			{Op: ir.Opcode(99)},
			ir.Exit(ir.NewConst(1)),
		},
	}
	res, err := CompileFunction(fn, DefaultOptions(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Faults) != 1 || !stderrors.Is(res.Faults[0], errors.UnsupportedOpcode("", 0, "")) {
		t.Fatalf("Expected one unsupported-opcode fault, got %v", res.Faults)
	}
	if diff := cmp.Diff([]string{"movw r0, #1", "bx lr"}, res.Code.Live()); diff != "" {
		t.Errorf("selection did not continue past the bad opcode (-want +got):\n%s", diff)
	}
}

func TestShowIRComments(t *testing.T) {
	opts := DefaultOptions()
	opts.ShowIR = true
	_, p := compile(t, `define i32 @seven() {
	entry
	exit 7
}`, opts)

	var comments []string
	for _, in := range p.Functions[0].Code.Insts() {
		if in.Kind == emit.KindComment {
			comments = append(comments, in.Text())
		}
	}
	if diff := cmp.Diff([]string{"@ entry", "@ exit 7"}, comments); diff != "" {
		t.Errorf("comment mismatch (-want +got):\n%s", diff)
	}
}

func TestProgramWrite(t *testing.T) {
	_, p := compile(t, `global i32 @counter
define i32 @seven() {
	entry
	exit 7
}`, DefaultOptions())
	p.Module.Name = "m"

	var buf bytes.Buffer
	if err := p.Write(&buf, emit.WriteOptions{}); err != nil {
		t.Fatal(err)
	}
	want := "\t@ module m\n" +
		"\t.arch armv7ve\n\t.syntax unified\n\t.arm\n" +
		"\t.comm counter, 4, 4\n" +
		"\t.text\n" +
		"\t.align 2\n\t.global seven\n\t.type seven, %function\n" +
		"seven:\n" +
		"\tmovw r0, #7\n\tbx lr\n" +
		"\t.size seven, .-seven\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileFunctionRejectsBadAlignment(t *testing.T) {
	opts := DefaultOptions()
	opts.FrameAlign = 12
	if _, err := CompileFunction(&ir.Function{Name: "f"}, opts, nil); err == nil {
		t.Error("Expected an error for a non power-of-two alignment")
	}
}

func contains(lines []string, s string) bool {
	for _, l := range lines {
		if l == s {
			return true
		}
	}
	return false
}
