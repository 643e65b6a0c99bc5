package emit

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/orizon-lang/minic/internal/arm32"
)

func TestPeephole(t *testing.T) {
	tests := []struct {
		name  string
		build func(s *Sequence)
		want  []string
	}{
		{
			name: "self move",
			build: func(s *Sequence) {
				s.Emit("mov", "r4", "r4")
				s.Emit("mov", "r4", "r5")
			},
			want: []string{"mov r4, r5"},
		},
		{
			name: "branch over branch",
			build: func(s *Sequence) {
				s.Branch(arm32.NE, ".L1")
				s.Jump(".L2")
				s.Label(".L1")
				s.Emit("mov", "r0", "#1")
			},
			want: []string{"beq .L2", ".L1:", "mov r0, #1"},
		},
		{
			name: "store then load",
			build: func(s *Sequence) {
				s.Emit("str", "r1", "[fp, #-8]")
				s.Emit("ldr", "r2", "[fp, #-8]")
				s.Emit("str", "r3", "[fp, #-12]")
				s.Emit("ldr", "r3", "[fp, #-12]")
			},
			want: []string{"str r1, [fp, #-8]", "mov r2, r1", "str r3, [fp, #-12]"},
		},
		{
			name: "different address untouched",
			build: func(s *Sequence) {
				s.Emit("str", "r1", "[fp, #-8]")
				s.Emit("ldr", "r2", "[fp, #-4]")
			},
			want: []string{"str r1, [fp, #-8]", "ldr r2, [fp, #-4]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSequence()
			tt.build(s)
			Peephole(s)
			if diff := cmp.Diff(tt.want, s.Live()); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPeepholeThenDeadLabels(t *testing.T) {
	s := NewSequence()
	s.Branch(arm32.LT, ".Lt")
	s.Jump(".Lf")
	s.Label(".Lt")
	s.Emit("mov", "r0", "#1")
	s.Label(".Lf")

	if n := Peephole(s); n != 1 {
		t.Fatalf("Expected one rewrite, got %d", n)
	}
	s.MarkDeadLabels()
	want := []string{"bge .Lf", "mov r0, #1", ".Lf:"}
	if diff := cmp.Diff(want, s.Live()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
