package ctypes

import "fmt"

// Sizeof returns the storage size of t in bytes.
func Sizeof(t Type) int64 {
	switch tt := t.(type) {
	case Tvoid:
		return 1
	case Tint:
		return tt.Size.Bytes()
	case Tfloat:
		switch tt.Size {
		case F32:
			return 4
		case F64:
			return 8
		}
		return 16
	case Tpointer, Tfunction:
		return 8
	case Tarray:
		if tt.Size < 0 {
			return 0
		}
		return tt.Size * Sizeof(tt.Elem)
	case Tstruct:
		var offset, align int64 = 0, 1
		for _, f := range tt.Fields {
			a := fieldAlign(tt, f.Type)
			offset = alignUp(offset, a) + Sizeof(f.Type)
			if a > align {
				align = a
			}
		}
		return alignUp(offset, align)
	case Tunion:
		var size, align int64 = 0, 1
		for _, f := range tt.Fields {
			if s := Sizeof(f.Type); s > size {
				size = s
			}
			if a := Alignof(f.Type); a > align {
				align = a
			}
		}
		return alignUp(size, align)
	}
	panic(fmt.Sprintf("unhandled type in Sizeof: %T", t))
}

// Alignof returns the natural alignment of t in bytes.
func Alignof(t Type) int64 {
	switch tt := t.(type) {
	case Tarray:
		return Alignof(tt.Elem)
	case Tstruct:
		var align int64 = 1
		for _, f := range tt.Fields {
			if a := fieldAlign(tt, f.Type); a > align {
				align = a
			}
		}
		return align
	case Tunion:
		var align int64 = 1
		for _, f := range tt.Fields {
			if a := Alignof(f.Type); a > align {
				align = a
			}
		}
		return align
	}
	return Sizeof(t)
}

func fieldAlign(s Tstruct, t Type) int64 {
	if s.Packed {
		return 1
	}
	return Alignof(t)
}

// FieldOffsets returns the byte offset of each member of a struct. Union
// members all sit at offset zero.
func FieldOffsets(t Type) []int64 {
	switch tt := t.(type) {
	case Tstruct:
		offsets := make([]int64, len(tt.Fields))
		var offset int64
		for i, f := range tt.Fields {
			offset = alignUp(offset, fieldAlign(tt, f.Type))
			offsets[i] = offset
			offset += Sizeof(f.Type)
		}
		return offsets
	case Tunion:
		return make([]int64, len(tt.Fields))
	}
	return nil
}

// Scalar is a non-aggregate member of a flattened aggregate.
type Scalar struct {
	Type   Type
	Offset int64
}

// Flatten lists the scalar members of an aggregate with their byte offsets,
// descending into nested aggregates and arrays. A scalar flattens to itself.
func Flatten(t Type) []Scalar {
	var out []Scalar
	flatten(t, 0, &out)
	return out
}

func flatten(t Type, base int64, out *[]Scalar) {
	switch tt := t.(type) {
	case Tstruct:
		offsets := FieldOffsets(tt)
		for i, f := range tt.Fields {
			flatten(f.Type, base+offsets[i], out)
		}
	case Tunion:
		for _, f := range tt.Fields {
			flatten(f.Type, base, out)
		}
	case Tarray:
		size := Sizeof(tt.Elem)
		for i := int64(0); i < tt.Size; i++ {
			flatten(tt.Elem, base+i*size, out)
		}
	default:
		*out = append(*out, Scalar{Type: t, Offset: base})
	}
}

func alignUp(n, align int64) int64 {
	if align <= 1 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}

// Predicates

// IsInteger reports whether t is an integer type.
func IsInteger(t Type) bool {
	_, ok := t.(Tint)
	return ok
}

// IsUnsigned reports whether t is an unsigned integer type. Pointers count as
// unsigned.
func IsUnsigned(t Type) bool {
	switch tt := t.(type) {
	case Tint:
		return tt.Sign == Unsigned
	case Tpointer:
		return true
	}
	return false
}

// IsPointer reports whether t is a pointer type.
func IsPointer(t Type) bool {
	_, ok := t.(Tpointer)
	return ok
}

// IsFloating reports whether t is float, double or long double.
func IsFloating(t Type) bool {
	_, ok := t.(Tfloat)
	return ok
}

// IsSSE reports whether t is passed in SSE registers (float or double).
func IsSSE(t Type) bool {
	f, ok := t.(Tfloat)
	return ok && f.Size != F80
}

// IsLongDouble reports whether t is the extended precision type.
func IsLongDouble(t Type) bool {
	f, ok := t.(Tfloat)
	return ok && f.Size == F80
}

// IsAggregate reports whether t is a struct or union.
func IsAggregate(t Type) bool {
	switch t.(type) {
	case Tstruct, Tunion:
		return true
	}
	return false
}

// FitsInSingleIntRegister reports whether a value of type t travels in one
// general purpose register.
func FitsInSingleIntRegister(t Type) bool {
	switch t.(type) {
	case Tint, Tpointer, Tfunction:
		return true
	}
	return false
}

// PointerTarget returns the element type of a pointer, or nil.
func PointerTarget(t Type) Type {
	if p, ok := t.(Tpointer); ok {
		return p.Elem
	}
	return nil
}

// IntOfSize returns the integer type occupying n bytes.
func IntOfSize(n int64, sign Signedness) Type {
	switch n {
	case 1:
		return Tint{Size: I8, Sign: sign}
	case 2:
		return Tint{Size: I16, Sign: sign}
	case 4:
		return Tint{Size: I32, Sign: sign}
	}
	return Tint{Size: I64, Sign: sign}
}
