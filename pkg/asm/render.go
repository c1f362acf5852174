package asm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/raymyers/ralph-cg/pkg/ctypes"
	"github.com/raymyers/ralph-cg/pkg/rtl"
	"github.com/raymyers/ralph-cg/pkg/x86"
)

var (
	// ErrTemplate reports a placeholder the renderer does not know.
	ErrTemplate = errors.New("malformed template")
	// ErrUnresolved reports an operand without a concrete location.
	ErrUnresolved = errors.New("unresolved operand")
)

// Frame maps stack slot indexes to offsets from %rbp.
type Frame interface {
	SlotOffset(index int) int64
}

// Renderer expands instruction templates for one function.
//
// Placeholders are %v1, %v2 and %vd for the first source, second source and
// destination. An optional suffix follows: b, w, l or q select the register
// width, H and L the high and low eightbytes of a 16-byte memory operand, F
// the bit pattern of a float constant. Without a width suffix an operand is
// printed at its own width. %% is a literal %.
type Renderer struct {
	Function string
	Frame    Frame
}

// LabelName returns the local assembly label for label n.
func (r *Renderer) LabelName(n int) Label {
	return Label(fmt.Sprintf(".L%s.%d", r.Function, n))
}

// StringName returns the local symbol of string literal i.
func (r *Renderer) StringName(i int) string {
	return fmt.Sprintf(".L%s.str%d", r.Function, i)
}

// Render expands the template of in.
func (r *Renderer) Render(in *rtl.Instr) (string, error) {
	t := in.Template
	var b strings.Builder
	for i := 0; i < len(t); i++ {
		if t[i] != '%' {
			b.WriteByte(t[i])
			continue
		}
		if i+1 < len(t) && t[i+1] == '%' {
			b.WriteByte('%')
			i++
			continue
		}
		if i+2 >= len(t) || t[i+1] != 'v' {
			return "", fmt.Errorf("%w: %q at %d", ErrTemplate, t, i)
		}
		var o *rtl.Operand
		switch t[i+2] {
		case '1':
			o = in.Src1
		case '2':
			o = in.Src2
		case 'd':
			o = in.Dst
		default:
			return "", fmt.Errorf("%w: %q at %d", ErrTemplate, t, i)
		}
		i += 2
		var suffix byte
		if i+1 < len(t) && strings.IndexByte("bwlqHLF", t[i+1]) >= 0 {
			suffix = t[i+1]
			i++
		}
		s, err := r.operand(o, suffix)
		if err != nil {
			return "", fmt.Errorf("%s: %w", t, err)
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

func suffixWidth(suffix byte, o *rtl.Operand) int {
	switch suffix {
	case 'b':
		return 1
	case 'w':
		return 2
	case 'l':
		return 4
	case 'q':
		return 8
	}
	return o.Width()
}

func (r *Renderer) slotOffset(index int) int64 {
	if r.Frame == nil {
		return int64(index) * 8
	}
	return r.Frame.SlotOffset(index)
}

func (r *Renderer) operand(o *rtl.Operand, suffix byte) (string, error) {
	if o == nil {
		return "", fmt.Errorf("%w: missing operand", ErrUnresolved)
	}
	half := int64(0)
	if suffix == 'H' {
		half = 8
	}
	switch o.Kind {
	case rtl.Const:
		return fmt.Sprintf("%d", o.Int), nil
	case rtl.FConst:
		if f, ok := o.Type.(ctypes.Tfloat); ok && f.Size == ctypes.F32 {
			return fmt.Sprintf("%d", int32(o.FloatBits())), nil
		}
		return fmt.Sprintf("%d", int64(o.FloatBits())), nil
	case rtl.PReg, rtl.VReg:
		if o.Kind == rtl.VReg && o.Spilled {
			return fmt.Sprintf("%d(%%rbp)", r.slotOffset(o.StackIndex)+half), nil
		}
		reg := o.Location()
		if reg == x86.NoReg {
			return "", fmt.Errorf("%w: %s has no register", ErrUnresolved, o)
		}
		if suffix == 'H' || suffix == 'L' {
			return "", fmt.Errorf("%w: half of register %s", ErrTemplate, o)
		}
		return "%" + reg.Name(suffixWidth(suffix, o)), nil
	case rtl.Stack:
		return fmt.Sprintf("%d(%%rbp)", r.slotOffset(o.StackIndex)+o.Offset+half), nil
	case rtl.Global:
		return symbolOffset(o.Symbol, o.Offset+half) + "(%rip)", nil
	case rtl.String:
		return symbolOffset(r.StringName(o.Index), o.Offset+half) + "(%rip)", nil
	case rtl.Label:
		return string(r.LabelName(o.Index)), nil
	case rtl.Func:
		return o.Symbol, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnresolved, o)
}

func symbolOffset(sym string, off int64) string {
	switch {
	case off > 0:
		return fmt.Sprintf("%s+%d", sym, off)
	case off < 0:
		return fmt.Sprintf("%s%d", sym, off)
	}
	return sym
}
