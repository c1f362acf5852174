package rules

import (
	"github.com/raymyers/ralph-cg/pkg/ctypes"
	"github.com/raymyers/ralph-cg/pkg/rtl"
)

// Classes returns every non-terminal the operand satisfies. Matching is
// structural: a small constant is both signed and unsigned, a pointer
// register is both a pointer and an 8-byte unsigned register.
func Classes(o *rtl.Operand) []NT {
	switch o.Kind {
	case rtl.VReg, rtl.PReg:
		return RegClasses(o.Type)
	case rtl.Stack, rtl.Global:
		return MemClasses(o.Type)
	case rtl.Const:
		return ConstClasses(o.Int, o.Type)
	case rtl.FConst:
		if f, ok := o.Type.(ctypes.Tfloat); ok && f.Size == ctypes.F32 {
			return []NT{CS3}
		}
		return []NT{CS4}
	case rtl.String:
		return []NT{STL}
	case rtl.Label:
		return []NT{LAB}
	case rtl.Func:
		return []NT{FUN}
	}
	return nil
}

// Matches reports whether o satisfies n.
func Matches(o *rtl.Operand, n NT) bool {
	for _, c := range Classes(o) {
		if c == n {
			return true
		}
	}
	return false
}

// RegClasses returns the classes of a register holding a value of type t.
func RegClasses(t ctypes.Type) []NT {
	switch tt := t.(type) {
	case ctypes.Tint:
		size := SizeIndex(tt.Size.Bytes())
		if tt.Sign == ctypes.Unsigned {
			return []NT{RU1 + NT(size-1)}
		}
		return []NT{RI1 + NT(size-1)}
	case ctypes.Tpointer:
		return []NT{pointerClass(tt.Elem), RU4}
	case ctypes.Tfunction:
		return []NT{RP5, RU4}
	case ctypes.Tfloat:
		switch tt.Size {
		case ctypes.F32:
			return []NT{RS3}
		case ctypes.F64:
			return []NT{RS4}
		}
	}
	return nil
}

// MemClasses returns the classes of a memory location holding type t.
func MemClasses(t ctypes.Type) []NT {
	switch tt := t.(type) {
	case ctypes.Tint:
		size := SizeIndex(tt.Size.Bytes())
		if tt.Sign == ctypes.Unsigned {
			return []NT{MU1 + NT(size-1)}
		}
		return []NT{MI1 + NT(size-1)}
	case ctypes.Tpointer, ctypes.Tfunction:
		return []NT{MPV, MU4}
	case ctypes.Tfloat:
		switch tt.Size {
		case ctypes.F32:
			return []NT{MS3}
		case ctypes.F64:
			return []NT{MS4}
		}
		return []NT{MLD5}
	case ctypes.Tstruct, ctypes.Tunion, ctypes.Tarray:
		return []NT{MSA}
	}
	return nil
}

func pointerClass(elem ctypes.Type) NT {
	switch elem.(type) {
	case ctypes.Tint, ctypes.Tpointer:
		return RP1 + NT(SizeIndex(ctypes.Sizeof(elem))-1)
	case ctypes.Tfloat:
		if ctypes.IsSSE(elem) {
			return RP1 + NT(SizeIndex(ctypes.Sizeof(elem))-1)
		}
	}
	return RP5
}

// ConstClasses returns the constant classes an integer value of type t
// satisfies. A class matches when the value fits it, and the class of the
// type's own width always matches so that a deliberate cast is respected.
func ConstClasses(v int64, t ctypes.Type) []NT {
	width, unsigned := 4, true
	if it, ok := t.(ctypes.Tint); ok {
		width = SizeIndex(it.Size.Bytes())
		unsigned = it.Sign == ctypes.Unsigned
	}
	var out []NT
	for n := 1; n <= 4; n++ {
		if fitsSigned(v, n) || n == width {
			out = append(out, CI1+NT(n-1))
		}
	}
	for n := 1; n <= 4; n++ {
		if v >= 0 && fitsUnsigned(v, n) || unsigned && n == width {
			out = append(out, CU1+NT(n-1))
		}
	}
	return out
}

func fitsSigned(v int64, size int) bool {
	if size == 4 {
		return true
	}
	bits := uint(8 * Bytes(size))
	return v >= -(1<<(bits-1)) && v < 1<<(bits-1)
}

func fitsUnsigned(v int64, size int) bool {
	if size == 4 {
		return true
	}
	bits := uint(8 * Bytes(size))
	return v < 1<<bits
}

// Compatible reports whether a computed result of class n can stand for a
// value of type t.
func Compatible(n NT, t ctypes.Type) bool {
	if n.IsCC() {
		return ctypes.IsInteger(t)
	}
	for _, c := range RegClasses(t) {
		if c == n {
			return true
		}
	}
	return false
}

// ResultType returns the type of a fresh register holding class n for a
// value whose IR type is t.
func ResultType(n NT, t ctypes.Type) ctypes.Type {
	if t != nil && Compatible(n, t) && !n.IsCC() {
		return t
	}
	return TypeOf(n)
}
