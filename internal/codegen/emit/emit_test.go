package emit

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/orizon-lang/minic/internal/arm32"
)

func TestLoadImm(t *testing.T) {
	tests := []struct {
		k    int32
		want []string
	}{
		{0, []string{"movw r0, #0"}},
		{1, []string{"movw r0, #1"}},
		{0xFFFF, []string{"movw r0, #65535"}},
		{0x10000, []string{"movw r0, #0", "movt r0, #1"}},
		{-1, []string{"movw r0, #65535", "movt r0, #65535"}},
	}

	for _, tt := range tests {
		s := NewSequence()
		s.LoadImm(arm32.R0, tt.k)
		if diff := cmp.Diff(tt.want, s.Live()); diff != "" {
			t.Errorf("LoadImm(%#x) mismatch (-want +got):\n%s", uint32(tt.k), diff)
		}
	}
}

func TestLoadSymbol(t *testing.T) {
	s := NewSequence()
	s.LoadSymbol(arm32.R1, "counter")
	want := []string{"movw r1, #:lower16:counter", "movt r1, #:upper16:counter"}
	if diff := cmp.Diff(want, s.Live()); diff != "" {
		t.Errorf("LoadSymbol mismatch (-want +got):\n%s", diff)
	}
}

func TestBasedAddressing(t *testing.T) {
	tests := []struct {
		name string
		off  int
		load bool
		want []string
	}{
		{"in range", 4095, true, []string{"ldr r0, [fp, #4095]"}},
		{"negative in range", -4095, false, []string{"str r0, [fp, #-4095]"}},
		{"zero", 0, true, []string{"ldr r0, [fp]"}},
		{"one past", 4096, true, []string{"movw r10, #4096", "ldr r0, [fp, r10]"}},
		{"negative past", -4096, false, []string{"movw r10, #61440", "movt r10, #65535", "str r0, [fp, r10]"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSequence()
			if tt.load {
				s.LoadBased(arm32.R0, arm32.FP, tt.off, arm32.TmpReg)
			} else {
				s.StoreBased(arm32.R0, arm32.FP, tt.off, arm32.TmpReg)
			}
			if diff := cmp.Diff(tt.want, s.Live()); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLeaStack(t *testing.T) {
	tests := []struct {
		off  int
		want []string
	}{
		{-24, []string{"sub r2, fp, #24"}},
		{16, []string{"add r2, fp, #16"}},
		{0, []string{"mov r2, fp"}},
		{-4097, []string{"movw ip, #61439", "movt ip, #65535", "add r2, fp, ip"}},
	}

	for _, tt := range tests {
		s := NewSequence()
		s.LeaStack(arm32.R2, arm32.FP, tt.off, arm32.IP)
		if diff := cmp.Diff(tt.want, s.Live()); diff != "" {
			t.Errorf("LeaStack(%d) mismatch (-want +got):\n%s", tt.off, diff)
		}
	}
}

func TestAllocStackFrame(t *testing.T) {
	s := NewSequence()
	s.AllocStackFrame(0, arm32.TmpReg)
	if s.Len() != 0 {
		t.Fatalf("Expected zero-size frame to emit nothing, got %v", s.Live())
	}

	s.AllocStackFrame(64, arm32.TmpReg)
	if diff := cmp.Diff([]string{"mov fp, sp", "sub sp, sp, #64"}, s.Live()); diff != "" {
		t.Errorf("frame mismatch (-want +got):\n%s", diff)
	}

	s = NewSequence()
	s.AllocStackFrame(4100, arm32.TmpReg)
	want := []string{"mov fp, sp", "movw r10, #4100", "sub sp, sp, r10"}
	if diff := cmp.Diff(want, s.Live()); diff != "" {
		t.Errorf("large frame mismatch (-want +got):\n%s", diff)
	}
}

func TestArrayAddr(t *testing.T) {
	s := NewSequence()
	s.ArrayAddr(arm32.R0, arm32.R1, arm32.R2, 4, arm32.TmpReg)
	s.ArrayAddr(arm32.R0, arm32.R1, arm32.R2, 12, arm32.TmpReg)
	want := []string{
		"add r0, r1, r2, lsl #2",
		"movw r10, #12",
		"mul r10, r2, r10",
		"add r0, r1, r10",
	}
	if diff := cmp.Diff(want, s.Live()); diff != "" {
		t.Errorf("ArrayAddr mismatch (-want +got):\n%s", diff)
	}
}

func TestMultiArrayAddr(t *testing.T) {
	// int a[2][3]: a[i][j] = base + (i*3 + j)*4
	s := NewSequence()
	s.MultiArrayAddr(arm32.IP, arm32.FP, []arm32.Reg{arm32.R1, arm32.R2}, []int{3, 1}, 4, arm32.TmpReg, arm32.IP)
	want := []string{
		"movw ip, #12",
		"mul r10, r1, ip",
		"add r10, r10, r2, lsl #2",
		"add ip, fp, r10",
	}
	if diff := cmp.Diff(want, s.Live()); diff != "" {
		t.Errorf("MultiArrayAddr mismatch (-want +got):\n%s", diff)
	}

	// int b[4][4][2]: strides are powers of two.
	s = NewSequence()
	s.MultiArrayAddr(arm32.R0, arm32.R5, []arm32.Reg{arm32.R1, arm32.R2, arm32.R3}, []int{8, 2, 1}, 4, arm32.TmpReg, arm32.IP)
	want = []string{
		"lsl r10, r1, #5",
		"add r10, r10, r2, lsl #3",
		"add r10, r10, r3, lsl #2",
		"add r0, r5, r10",
	}
	if diff := cmp.Diff(want, s.Live()); diff != "" {
		t.Errorf("MultiArrayAddr power-of-two mismatch (-want +got):\n%s", diff)
	}
}

func TestMarkDeadLabels(t *testing.T) {
	s := NewSequence()
	s.Label("keep")
	s.Label("unused")
	s.Label("cond")
	s.Label("deadtarget")
	s.Jump("keep")
	s.Branch(arm32.NE, "cond")
	s.Emit("b", "deadtarget").SetDead()

	if n := s.MarkDeadLabels(); n != 2 {
		t.Errorf("Expected 2 labels removed, got %d", n)
	}
	want := []string{"keep:", "cond:", "b keep", "bne cond"}
	if diff := cmp.Diff(want, s.Live()); diff != "" {
		t.Errorf("live entries mismatch (-want +got):\n%s", diff)
	}
}

func TestWrite(t *testing.T) {
	s := NewSequence()
	s.Label("loop")
	s.Comment("counter")
	s.Emit("add", "r0", "r0", "#1")
	s.Emit("mov", "r1", "r1").SetDead()
	s.Jump("loop")

	var b strings.Builder
	if err := s.Write(&b, WriteOptions{}); err != nil {
		t.Fatal(err)
	}
	want := "loop:\n\t@ counter\n\tadd r0, r0, #1\n\tb loop\n"
	if b.String() != want {
		t.Errorf("Expected %q, got %q", want, b.String())
	}

	b.Reset()
	if err := s.Write(&b, WriteOptions{KeepEmpty: true, StripComments: true}); err != nil {
		t.Fatal(err)
	}
	want = "loop:\n\tadd r0, r0, #1\n\n\tb loop\n"
	if b.String() != want {
		t.Errorf("Expected %q, got %q", want, b.String())
	}
}

func TestReplaceAndMentions(t *testing.T) {
	s := NewSequence()
	in := s.Emit("ldr", "r0", Mem(arm32.FP, -8))
	if !in.Mentions(arm32.FP) || in.Mentions(arm32.R1) {
		t.Errorf("Mentions misreports operands of %q", in.Text())
	}
	in.Replace("mls", arm32.Always, "r0", "r1", "r2", "r3")
	if got := in.Text(); got != "mls r0, r1, r2, r3" {
		t.Errorf("Expected mls with extra operand, got %q", got)
	}
	if !s.Mentions(arm32.R3) || s.Mentions(arm32.R10) {
		t.Error("sequence Mentions misreports registers")
	}
}
