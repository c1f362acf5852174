package stacking

import (
	"errors"
	"testing"

	"github.com/raymyers/ralph-cg/pkg/ctypes"
	"github.com/raymyers/ralph-cg/pkg/rtl"
	"github.com/raymyers/ralph-cg/pkg/x86"
)

func TestAlignUp(t *testing.T) {
	tests := []struct {
		n, align, want int64
	}{
		{0, 8, 0},
		{1, 8, 8},
		{7, 8, 8},
		{8, 8, 8},
		{9, 8, 16},
		{15, 16, 16},
		{16, 16, 16},
		{17, 16, 32},
		{0, 16, 0},
	}

	for _, tt := range tests {
		got := alignUp(tt.n, tt.align)
		if got != tt.want {
			t.Errorf("alignUp(%d, %d) = %d, want %d", tt.n, tt.align, got, tt.want)
		}
	}
}

func TestSlotOffset(t *testing.T) {
	layout := &FrameLayout{}
	tests := []struct {
		index int
		want  int64
	}{
		{-1, -8},
		{-4, -32},
		{2, 16},
		{5, 40},
	}
	for _, tt := range tests {
		if got := layout.SlotOffset(tt.index); got != tt.want {
			t.Errorf("SlotOffset(%d) = %d, want %d", tt.index, got, tt.want)
		}
	}
}

func TestComputeLayoutEmpty(t *testing.T) {
	fn := rtl.NewFunction("empty", nil)
	layout := ComputeLayout(fn)

	if layout.LocalSize != 0 || layout.Padding != 0 || layout.IncomingSize != 0 {
		t.Errorf("expected an empty frame, got %+v", layout)
	}
	if len(layout.CalleeSaved) != 0 {
		t.Errorf("expected no callee-saved regs, got %v", layout.CalleeSaved)
	}
	if !layout.Leaf {
		t.Error("a function without calls is a leaf")
	}
}

func TestComputeLayout(t *testing.T) {
	long := ctypes.Long()
	tests := []struct {
		name    string
		slots   int
		build   func(fn *rtl.Function)
		local   int64
		padding int64
		in      int64
	}{
		{
			name:  "allocated slots",
			slots: 3,
			build: func(fn *rtl.Function) {},
			local: 24,
		},
		{
			name: "spilled register below the allocated slots",
			build: func(fn *rtl.Function) {
				v := rtl.NewVReg(30, long)
				v.Spilled = true
				v.StackIndex = -5
				fn.Emit(rtl.XMov, v, rtl.NewConst(1, long), nil)
			},
			local: 40,
		},
		{
			name:  "call pads to 16 bytes",
			slots: 3,
			build: func(fn *rtl.Function) {
				fn.Emit(rtl.XCall, nil, rtl.NewFunc("g"), nil)
			},
			local:   24,
			padding: 8,
		},
		{
			name:  "pushed register fills the padding",
			slots: 3,
			build: func(fn *rtl.Function) {
				fn.Emit(rtl.XMov, rtl.NewPReg(x86.RBX, long), rtl.NewConst(1, long), nil)
				fn.Emit(rtl.XCall, nil, rtl.NewFunc("g"), nil)
			},
			local: 24,
		},
		{
			name: "incoming stack argument",
			build: func(fn *rtl.Function) {
				fn.Emit(rtl.XMov, rtl.NewPReg(x86.RAX, long), rtl.NewStack(3, long), nil)
			},
			in: 16,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := rtl.NewFunction("f", long)
			fn.StackSlots = tt.slots
			tt.build(fn)
			layout := ComputeLayout(fn)
			if layout.LocalSize != tt.local {
				t.Errorf("LocalSize = %d, want %d", layout.LocalSize, tt.local)
			}
			if layout.Padding != tt.padding {
				t.Errorf("Padding = %d, want %d", layout.Padding, tt.padding)
			}
			if layout.IncomingSize != tt.in {
				t.Errorf("IncomingSize = %d, want %d", layout.IncomingSize, tt.in)
			}
			if layout.FrameSize()%8 != 0 {
				t.Errorf("frame size %d is not 8-byte aligned", layout.FrameSize())
			}
		})
	}
}

func layoutOf(fn *rtl.Function) (layout *FrameLayout, err error) {
	defer rtl.Recover(&err)
	return ComputeLayout(fn), nil
}

func TestComputeLayoutRejectsSavedFrame(t *testing.T) {
	fn := rtl.NewFunction("f", ctypes.Long())
	fn.Emit(rtl.XMov, rtl.NewPReg(x86.RAX, ctypes.Long()), rtl.NewStack(1, ctypes.Long()), nil)
	_, err := layoutOf(fn)
	if !errors.Is(err, rtl.ErrInternal) {
		t.Errorf("expected an internal error, got %v", err)
	}
}
