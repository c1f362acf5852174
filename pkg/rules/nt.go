// Package rules holds the instruction selection rule table: non-terminal
// operand classes, rules mapping IR operations to machine micro-operations,
// width-family expansion and the x86-64 rule set.
package rules

import (
	"fmt"

	"github.com/raymyers/ralph-cg/pkg/ctypes"
)

// NT is a non-terminal: a predicate over operand storage kind, width,
// signedness and float kind.
type NT int

const (
	NTNone NT = iota

	STL // string literal address
	LAB // jump target
	FUN // function symbol

	CI1 // signed constants
	CI2
	CI3
	CI4
	CU1 // unsigned constants
	CU2
	CU3
	CU4
	CS3 // float constant
	CS4 // double constant

	RI1 // signed registers
	RI2
	RI3
	RI4
	RU1 // unsigned registers
	RU2
	RU3
	RU4
	RS3 // float in an SSE register
	RS4 // double in an SSE register

	MI1 // signed memory, stack or global
	MI2
	MI3
	MI4
	MU1 // unsigned memory
	MU2
	MU3
	MU4
	MS3 // float in memory
	MS4 // double in memory

	RP1 // pointer in a register, by pointee size
	RP2
	RP3
	RP4
	RP5 // pointer to anything wider or opaque

	MPV  // pointer in memory
	MLD5 // long double in memory
	MSA  // struct or array in memory

	CCEQ // condition flags
	CCNE
	CCLT
	CCGT
	CCLE
	CCGE
	CCB
	CCA
	CCBE
	CCAE

	ntEnd
)

// Width families, expanded per size 1..4 when a rule is added.
const (
	famStart NT = 0x100 + iota
	FamRI
	FamRU
	FamMI
	FamMU
	FamRP
	FamCI
	FamCU
	// FamCIimm is the immediate operand of a sized instruction: x86 only
	// encodes 32-bit immediates, so size 4 maps to CI3.
	FamCIimm
	famEnd
)

var ntNames = map[NT]string{
	NTNone: "-", STL: "stl", LAB: "lab", FUN: "fun",
	CI1: "ci1", CI2: "ci2", CI3: "ci3", CI4: "ci4",
	CU1: "cu1", CU2: "cu2", CU3: "cu3", CU4: "cu4",
	CS3: "cs3", CS4: "cs4",
	RI1: "ri1", RI2: "ri2", RI3: "ri3", RI4: "ri4",
	RU1: "ru1", RU2: "ru2", RU3: "ru3", RU4: "ru4",
	RS3: "rs3", RS4: "rs4",
	MI1: "mi1", MI2: "mi2", MI3: "mi3", MI4: "mi4",
	MU1: "mu1", MU2: "mu2", MU3: "mu3", MU4: "mu4",
	MS3: "ms3", MS4: "ms4",
	RP1: "rp1", RP2: "rp2", RP3: "rp3", RP4: "rp4", RP5: "rp5",
	MPV: "mpv", MLD5: "mld5", MSA: "msa",
	CCEQ: "cceq", CCNE: "ccne", CCLT: "cclt", CCGT: "ccgt", CCLE: "ccle",
	CCGE: "ccge", CCB: "ccb", CCA: "cca", CCBE: "ccbe", CCAE: "ccae",
	FamRI: "ri*", FamRU: "ru*", FamMI: "mi*", FamMU: "mu*", FamRP: "rp*",
	FamCI: "ci*", FamCU: "cu*", FamCIimm: "ciimm",
}

func (n NT) String() string {
	if s, ok := ntNames[n]; ok {
		return s
	}
	return fmt.Sprintf("nt%d", int(n))
}

// IsFamily reports whether n is a width family placeholder.
func (n NT) IsFamily() bool { return n > famStart && n < famEnd }

// Fin resolves a family to the member of the given size index (1..4).
// Concrete non-terminals are returned unchanged.
func Fin(n NT, size int) NT {
	switch n {
	case FamRI:
		return RI1 + NT(size-1)
	case FamRU:
		return RU1 + NT(size-1)
	case FamMI:
		return MI1 + NT(size-1)
	case FamMU:
		return MU1 + NT(size-1)
	case FamRP:
		return RP1 + NT(size-1)
	case FamCI:
		return CI1 + NT(size-1)
	case FamCU:
		return CU1 + NT(size-1)
	case FamCIimm:
		if size > 3 {
			size = 3
		}
		return CI1 + NT(size-1)
	}
	return n
}

// SizeLetter returns the AT&T width suffix of size index 1..4.
func SizeLetter(size int) byte {
	return "?bwlq"[size]
}

// SizeIndex returns the size index of a width in bytes.
func SizeIndex(bytes int64) int {
	switch bytes {
	case 1:
		return 1
	case 2:
		return 2
	case 4:
		return 3
	}
	return 4
}

// Bytes returns the width in bytes for size index 1..4.
func Bytes(size int) int64 {
	return 1 << uint(size-1)
}

// Size returns the size index of a sized non-terminal, 0 otherwise.
func (n NT) Size() int {
	switch {
	case n >= CI1 && n <= CI4:
		return int(n-CI1) + 1
	case n >= CU1 && n <= CU4:
		return int(n-CU1) + 1
	case n >= RI1 && n <= RI4:
		return int(n-RI1) + 1
	case n >= RU1 && n <= RU4:
		return int(n-RU1) + 1
	case n >= MI1 && n <= MI4:
		return int(n-MI1) + 1
	case n >= MU1 && n <= MU4:
		return int(n-MU1) + 1
	case n == RS3 || n == MS3 || n == CS3:
		return 3
	case n == RS4 || n == MS4 || n == CS4 || n == MPV:
		return 4
	case n >= RP1 && n <= RP5:
		return 4
	}
	return 0
}

// IsRegister reports whether n lives in a register.
func (n NT) IsRegister() bool {
	return n >= RI1 && n <= RS4 || n >= RP1 && n <= RP5
}

// IsMemory reports whether n is a memory location.
func (n NT) IsMemory() bool {
	return n >= MI1 && n <= MS4 || n == MPV || n == MLD5 || n == MSA
}

// IsConst reports whether n is a constant.
func (n NT) IsConst() bool { return n >= CI1 && n <= CS4 }

// IsCC reports whether n is a condition-flags result.
func (n NT) IsCC() bool { return n >= CCEQ && n <= CCAE }

// IsSSE reports whether n holds a float or double.
func (n NT) IsSSE() bool {
	switch n {
	case RS3, RS4, MS3, MS4, CS3, CS4:
		return true
	}
	return false
}

// IsUnsigned reports whether n is an unsigned integer class.
func (n NT) IsUnsigned() bool {
	return n >= CU1 && n <= CU4 || n >= RU1 && n <= RU4 || n >= MU1 && n <= MU4
}

// TypeOf returns a representative value type for a register or memory
// non-terminal.
func TypeOf(n NT) ctypes.Type {
	switch {
	case n >= RI1 && n <= RI4:
		return ctypes.IntOfSize(Bytes(n.Size()), ctypes.Signed)
	case n >= RU1 && n <= RU4:
		return ctypes.IntOfSize(Bytes(n.Size()), ctypes.Unsigned)
	case n >= MI1 && n <= MI4:
		return ctypes.IntOfSize(Bytes(n.Size()), ctypes.Signed)
	case n >= MU1 && n <= MU4:
		return ctypes.IntOfSize(Bytes(n.Size()), ctypes.Unsigned)
	case n == RS3 || n == MS3 || n == CS3:
		return ctypes.Float()
	case n == RS4 || n == MS4 || n == CS4:
		return ctypes.Double()
	case n >= RP1 && n <= RP4:
		return ctypes.Pointer(ctypes.IntOfSize(Bytes(int(n-RP1)+1), ctypes.Signed))
	case n == RP5 || n == MPV:
		return ctypes.Pointer(ctypes.Void())
	case n == MLD5:
		return ctypes.LongDouble()
	case n.IsCC():
		return ctypes.Int()
	}
	return ctypes.Long()
}
