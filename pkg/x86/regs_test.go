package x86

import "testing"

func TestRegisterNames(t *testing.T) {
	tests := []struct {
		reg   Reg
		width int
		want  string
	}{
		{RAX, 8, "rax"},
		{RAX, 4, "eax"},
		{RAX, 2, "ax"},
		{RAX, 1, "al"},
		{RSI, 1, "sil"},
		{R8, 8, "r8"},
		{R9, 4, "r9d"},
		{R10, 2, "r10w"},
		{R15, 1, "r15b"},
		{XMM3, 8, "xmm3"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.reg.Name(tt.width); got != tt.want {
				t.Errorf("Name(%d) = %q, want %q", tt.width, got, tt.want)
			}
		})
	}
}

func TestAllocatableExcludesReserved(t *testing.T) {
	ints := Allocatable(ClassInt)
	if len(ints) != 12 {
		t.Fatalf("expected 12 allocatable integer registers, got %d", len(ints))
	}
	for _, r := range ints {
		if IsReserved(r) {
			t.Errorf("%s is reserved but allocatable", r)
		}
	}

	sses := Allocatable(ClassSSE)
	if len(sses) != 14 {
		t.Fatalf("expected 14 allocatable SSE registers, got %d", len(sses))
	}
}

func TestPseudoRegisterRoundTrip(t *testing.T) {
	for v := 1; v <= PseudoCount; v++ {
		r := PseudoReg(v)
		if r == NoReg {
			t.Fatalf("pseudo %d has no register", v)
		}
		if IsReserved(r) {
			t.Errorf("pseudo %d maps to reserved register %s", v, r)
		}
		if got := PseudoFor(r); got != v {
			t.Errorf("PseudoFor(%s) = %d, want %d", r, got, v)
		}
	}
	if PseudoReg(PseudoCount+1) != NoReg {
		t.Error("vreg past the reserved range should not be a pseudo-register")
	}
}

func TestCalleeSaved(t *testing.T) {
	for _, r := range CalleeSavedRegs {
		if !IsCalleeSaved(r) {
			t.Errorf("%s should be callee-saved", r)
		}
	}
	if IsCalleeSaved(RAX) || IsCalleeSaved(XMM0) {
		t.Error("RAX and XMM0 are caller-saved")
	}
}
