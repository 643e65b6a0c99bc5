package arm32

import "testing"

func TestIsDisp(t *testing.T) {
	tests := []struct {
		off  int
		want bool
	}{
		{0, true},
		{4095, true},
		{-4095, true},
		{4096, false},
		{-4096, false},
	}

	for _, tt := range tests {
		if got := IsDisp(tt.off); got != tt.want {
			t.Errorf("IsDisp(%d): expected %v, got %v", tt.off, tt.want, got)
		}
	}
}

func TestIsAddImm(t *testing.T) {
	tests := []struct {
		v    uint32
		want bool
	}{
		{0, true},
		{255, true},
		{256, true},
		{0x3FC, true},
		{0xFF000000, true},
		{0xF000000F, true},
		{257, false},
		{4095, false},
		{0x101, false},
	}

	for _, tt := range tests {
		if got := IsAddImm(tt.v); got != tt.want {
			t.Errorf("IsAddImm(%#x): expected %v, got %v", tt.v, tt.want, got)
		}
	}
}

func TestRegNames(t *testing.T) {
	if FP.String() != "fp" || SP.String() != "sp" || LR.String() != "lr" {
		t.Errorf("unexpected special register names: %s %s %s", FP, SP, LR)
	}
	if got := RegList([]Reg{R4, R5, FP, LR}); got != "{r4, r5, fp, lr}" {
		t.Errorf("expected {r4, r5, fp, lr}, got %s", got)
	}
	if !R3.CallerSaved() || R4.CallerSaved() || !R9.CalleeSaved() {
		t.Error("caller/callee saved classification is wrong")
	}
}

func TestCondInvert(t *testing.T) {
	pairs := map[Cond]Cond{EQ: NE, LT: GE, GT: LE}
	for c, inv := range pairs {
		if c.Invert() != inv || inv.Invert() != c {
			t.Errorf("Invert(%q): expected %q", c, inv)
		}
	}
}
