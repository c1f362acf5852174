package asm

import (
	"fmt"
	"io"
	"strings"
)

// Printer outputs x86-64 assembly in GNU as syntax
type Printer struct {
	w io.Writer
}

// NewPrinter creates a new assembly printer
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintProgram outputs an entire program
func (p *Printer) PrintProgram(prog *Program) {
	// Separate globals into read-only (rodata) and read-write (data)
	var rodataGlobals, dataGlobals []GlobVar
	for _, g := range prog.Globals {
		if g.ReadOnly {
			rodataGlobals = append(rodataGlobals, g)
		} else {
			dataGlobals = append(dataGlobals, g)
		}
	}

	if len(rodataGlobals) > 0 {
		fmt.Fprintf(p.w, "\t.section\t.rodata\n")
		for _, g := range rodataGlobals {
			p.printGlobal(g)
		}
		fmt.Fprintf(p.w, "\n")
	}
	if len(dataGlobals) > 0 {
		fmt.Fprintf(p.w, "\t.data\n")
		for _, g := range dataGlobals {
			p.printGlobal(g)
		}
		fmt.Fprintf(p.w, "\n")
	}

	fmt.Fprintf(p.w, "\t.text\n")
	for _, f := range prog.Functions {
		p.PrintFunction(f)
	}
}

func isLocal(name string) bool {
	return strings.HasPrefix(name, ".L")
}

func (p *Printer) printGlobal(g GlobVar) {
	if !isLocal(g.Name) {
		fmt.Fprintf(p.w, "\t.globl\t%s\n", g.Name)
	}
	if g.Align > 1 {
		fmt.Fprintf(p.w, "\t.balign\t%d\n", g.Align)
	}
	fmt.Fprintf(p.w, "%s:\n", g.Name)
	if len(g.Init) > 0 {
		for _, b := range g.Init {
			fmt.Fprintf(p.w, "\t.byte\t%d\n", b)
		}
		if pad := g.Size - int64(len(g.Init)); pad > 0 {
			fmt.Fprintf(p.w, "\t.zero\t%d\n", pad)
		}
	} else if g.Size > 0 {
		fmt.Fprintf(p.w, "\t.zero\t%d\n", g.Size)
	}
}

// PrintFunction outputs one function with its frame summary.
func (p *Printer) PrintFunction(f Function) {
	fmt.Fprintf(p.w, "\t.globl\t%s\n", f.Name)
	fmt.Fprintf(p.w, "\t.type\t%s, @function\n", f.Name)
	fmt.Fprintf(p.w, "%s:\n", f.Name)
	saved := "none"
	if len(f.CalleeSaved) > 0 {
		saved = strings.Join(f.CalleeSaved, " ")
	}
	fmt.Fprintf(p.w, "\t# frame %d, callee-saved %s\n", f.FrameSize, saved)
	for _, inst := range f.Code {
		p.printInstruction(inst)
	}
	fmt.Fprintf(p.w, "\t.size\t%s, .-%s\n", f.Name, f.Name)
	fmt.Fprintf(p.w, "\n")
}

func (p *Printer) printInstruction(inst Instruction) {
	switch i := inst.(type) {
	case LabelDef:
		fmt.Fprintf(p.w, "%s:\n", i.Name)
	case Text:
		fmt.Fprintf(p.w, "\t%s\n", i.Line)
	case Comment:
		fmt.Fprintf(p.w, "\t# %s\n", i.Text)
	}
}
