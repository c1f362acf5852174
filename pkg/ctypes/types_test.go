package ctypes

import "testing"

func TestTypeConstructors(t *testing.T) {
	tests := []struct {
		name    string
		typ     Type
		wantStr string
	}{
		{"void", Void(), "void"},
		{"int", Int(), "int"},
		{"unsigned int", UInt(), "unsigned int"},
		{"char", Char(), "char"},
		{"unsigned char", UChar(), "unsigned char"},
		{"short", Short(), "short"},
		{"long", Long(), "long"},
		{"unsigned long", ULong(), "unsigned long"},
		{"float", Float(), "float"},
		{"double", Double(), "double"},
		{"long double", LongDouble(), "long double"},
		{"pointer to int", Pointer(Int()), "int *"},
		{"pointer to void", Pointer(Void()), "void *"},
		{"array of int", Array(Int(), 10), "int[...]"},
		{"named struct", Struct("pair", Int(), Int()), "struct pair"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.typ.String(); got != tt.wantStr {
				t.Errorf("String() = %q, want %q", got, tt.wantStr)
			}
		})
	}
}

func TestTypeEquality(t *testing.T) {
	tests := []struct {
		name  string
		a, b  Type
		equal bool
	}{
		{"int == int", Int(), Int(), true},
		{"int != unsigned int", Int(), UInt(), false},
		{"int != long", Int(), Long(), false},
		{"double != long double", Double(), LongDouble(), false},
		{"pointer to int == pointer to int", Pointer(Int()), Pointer(Int()), true},
		{"pointer to int != pointer to char", Pointer(Int()), Pointer(Char()), false},
		{"array[10] of int != array[20] of int", Array(Int(), 10), Array(Int(), 20), false},
		{"struct A == struct A", Tstruct{Name: "A"}, Tstruct{Name: "A"}, true},
		{"struct A != struct B", Tstruct{Name: "A"}, Tstruct{Name: "B"}, false},
		{"nil == nil", nil, nil, true},
		{"nil != int", nil, Int(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equal(tt.a, tt.b); got != tt.equal {
				t.Errorf("Equal(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.equal)
			}
		})
	}
}

func TestSizeAndAlignment(t *testing.T) {
	tests := []struct {
		name      string
		typ       Type
		wantSize  int64
		wantAlign int64
	}{
		{"char", Char(), 1, 1},
		{"short", Short(), 2, 2},
		{"int", Int(), 4, 4},
		{"long", Long(), 8, 8},
		{"double", Double(), 8, 8},
		{"long double", LongDouble(), 16, 16},
		{"pointer", Pointer(Char()), 8, 8},
		{"char[3]", Array(Char(), 3), 3, 1},
		{"struct {char; int}", Struct("", Char(), Int()), 8, 4},
		{"struct {int; char}", Struct("", Int(), Char()), 8, 4},
		{"struct {char; double}", Struct("", Char(), Double()), 16, 8},
		{"packed struct {char; int}", Tstruct{Packed: true, Fields: fieldsOf([]Type{Char(), Int()})}, 5, 1},
		{"union {char; long}", Union("", Char(), Long()), 8, 8},
		{"struct {float; float; float}", Struct("", Float(), Float(), Float()), 12, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sizeof(tt.typ); got != tt.wantSize {
				t.Errorf("Sizeof = %d, want %d", got, tt.wantSize)
			}
			if got := Alignof(tt.typ); got != tt.wantAlign {
				t.Errorf("Alignof = %d, want %d", got, tt.wantAlign)
			}
		})
	}
}

func TestFlatten(t *testing.T) {
	inner := Struct("inner", Char(), Short())
	outer := Struct("outer", inner, Array(Float(), 2), Long())

	got := Flatten(outer)
	want := []Scalar{
		{Char(), 0},
		{Short(), 2},
		{Float(), 4},
		{Float(), 8},
		{Long(), 16},
	}

	if len(got) != len(want) {
		t.Fatalf("Flatten returned %d scalars, want %d", len(got), len(want))
	}
	for i := range want {
		if !Equal(got[i].Type, want[i].Type) || got[i].Offset != want[i].Offset {
			t.Errorf("scalar %d = {%v, %d}, want {%v, %d}", i, got[i].Type, got[i].Offset, want[i].Type, want[i].Offset)
		}
	}
}

func TestPredicates(t *testing.T) {
	if !IsSSE(Double()) || IsSSE(LongDouble()) {
		t.Error("IsSSE should accept double and reject long double")
	}
	if !FitsInSingleIntRegister(Pointer(Int())) || FitsInSingleIntRegister(Float()) {
		t.Error("FitsInSingleIntRegister mismatch")
	}
	if !IsUnsigned(ULong()) || IsUnsigned(Int()) {
		t.Error("IsUnsigned mismatch")
	}
	if !IsAggregate(Union("u", Int())) || IsAggregate(Array(Int(), 2)) {
		t.Error("IsAggregate mismatch")
	}
}

func TestStructFieldNames(t *testing.T) {
	members := make([]Type, 12)
	for i := range members {
		members[i] = Char()
	}
	st, ok := Struct("wide", members...).(Tstruct)
	if !ok {
		t.Fatalf("Struct returned %T", Struct("wide", members...))
	}
	for i, want := range map[int]string{0: "m0", 9: "m9", 10: "m10", 11: "m11"} {
		if got := st.Fields[i].Name; got != want {
			t.Errorf("field %d named %q, want %q", i, got, want)
		}
	}
}
