package rtl

import (
	"fmt"
	"io"
	"strings"
)

// Printer outputs functions in a readable three-address form.
type Printer struct {
	w io.Writer
}

// NewPrinter creates a new IR printer
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintFunction prints a function header and its instructions, labels on
// their own line.
func (p *Printer) PrintFunction(fn *Function) {
	fmt.Fprintf(p.w, "%s(", fn.Name)
	for i, t := range fn.Params {
		if i > 0 {
			fmt.Fprint(p.w, ", ")
		}
		fmt.Fprint(p.w, t.String())
	}
	if fn.Variadic {
		if len(fn.Params) > 0 {
			fmt.Fprint(p.w, ", ")
		}
		fmt.Fprint(p.w, "...")
	}
	fmt.Fprintf(p.w, ") %s {\n", fn.Return)

	for _, id := range fn.Code.IDs() {
		in := fn.Code.At(id)
		if in.Label != 0 {
			fmt.Fprintf(p.w, "l%d:\n", in.Label)
		}
		if in.Op == OpNop {
			continue
		}
		fmt.Fprintf(p.w, "  %s\n", FormatInstr(in))
	}
	fmt.Fprintln(p.w, "}")
}

// FormatInstr renders one instruction without its label.
func FormatInstr(in *Instr) string {
	var b strings.Builder
	if in.Dst != nil && in.Op != OpMoveToPtr && in.Op != XMovToInd {
		b.WriteString(in.Dst.String())
		b.WriteString(" = ")
	}
	b.WriteString(in.Op.String())
	var args []string
	if in.Dst != nil && (in.Op == OpMoveToPtr || in.Op == XMovToInd) {
		args = append(args, "*"+in.Dst.String())
	}
	for _, o := range []*Operand{in.Src1, in.Src2} {
		if o != nil {
			args = append(args, o.String())
		}
	}
	if len(args) > 0 {
		b.WriteString(" ")
		b.WriteString(strings.Join(args, ", "))
	}
	if in.Template != "" {
		fmt.Fprintf(&b, " [%s]", strings.ReplaceAll(in.Template, "\t", " "))
	}
	return b.String()
}
