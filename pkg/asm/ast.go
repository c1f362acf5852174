// Package asm defines the x86-64 assembly representation and prints it in
// GNU as (AT&T) syntax. Instruction text is produced by expanding the
// templates attached during instruction selection.
package asm

// Program is a complete assembly unit.
type Program struct {
	Globals   []GlobVar
	Functions []Function
}

// GlobVar is a data symbol. Local labels (.L*) are not exported.
type GlobVar struct {
	Name     string
	Size     int64
	Align    int
	Init     []byte
	ReadOnly bool
}

// Function is one function's rendered code.
type Function struct {
	Name        string
	FrameSize   int64
	CalleeSaved []string
	Code        []Instruction
}

// Instruction is a line of function code.
type Instruction interface {
	implInstruction()
}

// Label is an assembly label name.
type Label string

// LabelDef places a label.
type LabelDef struct {
	Name Label
}

// Text is one rendered machine instruction.
type Text struct {
	Line string
}

// Comment is a line of commentary.
type Comment struct {
	Text string
}

func (LabelDef) implInstruction() {}
func (Text) implInstruction()     {}
func (Comment) implInstruction()  {}
