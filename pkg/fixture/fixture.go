// Package fixture loads functions in the generic IR from YAML documents.
//
// A document lists named struct types, global symbols and functions:
//
//	types:
//	  pair: [int, int]
//	globals:
//	  - {name: counter, type: long}
//	declarations:
//	  printf: "fn(*char, ...)->int"
//	functions:
//	  - name: add
//	    return: int
//	    params: [int, int]
//	    code:
//	      - {op: add, dst: "v1:int", src1: "p0:int", src2: "p1:int"}
//	      - {op: return, src1: "v1:int"}
//
// Operands are written prefix, value, type:
//
//	v1:int      virtual register 1 of the function
//	p0:long     incoming parameter 0
//	slot1:pair  local stack slot 1, allocated on first use
//	42:char     integer constant
//	1.5:double  floating constant
//	@g:int      global symbol
//	&f          function symbol, typed by its definition or declaration
//	&f:fn(int)->int  function symbol with an explicit signature
//	s0          string literal 0
//	L3          label 3
//
// Types are char, uchar, short, ushort, int, uint, long, ulong, float,
// double, longdouble, void, a named struct, a function signature
// fn(params)->return whose parameter list may end in ..., or any of these
// prefixed with * for a pointer.
package fixture

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/raymyers/ralph-cg/pkg/ctypes"
	"github.com/raymyers/ralph-cg/pkg/rtl"
)

// ErrMalformed reports a document that does not describe valid IR.
var ErrMalformed = errors.New("malformed fixture")

// File is the YAML document.
type File struct {
	Types   map[string][]string `yaml:"types"`
	Globals []Global            `yaml:"globals"`
	// Declarations gives the signatures of functions defined elsewhere.
	Declarations map[string]string `yaml:"declarations"`
	Functions    []Function        `yaml:"functions"`
}

// Global is a data symbol.
type Global struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	Init []byte `yaml:"init,omitempty"`
}

// Function describes one function.
type Function struct {
	Name     string   `yaml:"name"`
	Return   string   `yaml:"return"`
	Params   []string `yaml:"params"`
	Variadic bool     `yaml:"variadic"`
	// AddressTaken lists the parameters that must live in memory.
	AddressTaken []int        `yaml:"address_taken"`
	Strings      []string     `yaml:"strings"`
	Code         []Instr      `yaml:"code"`
	Expect       *Expectation `yaml:"expect,omitempty"`
}

// Instr is one IR instruction.
type Instr struct {
	Op    string `yaml:"op"`
	Label int    `yaml:"label,omitempty"`
	Dst   string `yaml:"dst,omitempty"`
	Src1  string `yaml:"src1,omitempty"`
	Src2  string `yaml:"src2,omitempty"`
}

// Expectation lists text the compiled function must or must not contain.
// It is read by tests and ignored by the compiler.
type Expectation struct {
	Contains    []string `yaml:"contains"`
	NotContains []string `yaml:"not_contains"`
}

// Program is a loaded document.
type Program struct {
	Globals   []GlobalSymbol
	Functions []*rtl.Function
	// Expect holds each function's expectation, by function name.
	Expect map[string]*Expectation
}

// GlobalSymbol is a loaded data symbol.
type GlobalSymbol struct {
	Name string
	Type ctypes.Type
	Init []byte
}

// LoadFile reads and loads the fixture at path.
func LoadFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	prog, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return prog, nil
}

// Read loads a fixture from r.
func Read(r io.Reader) (*Program, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes and loads a YAML fixture.
func Parse(data []byte) (*Program, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return f.Load()
}

// Load converts the decoded document into IR.
func (f *File) Load() (*Program, error) {
	tp := &typeParser{decls: f.Types, done: make(map[string]ctypes.Type)}
	prog := &Program{Expect: make(map[string]*Expectation)}
	for _, g := range f.Globals {
		t, err := tp.parse(g.Type)
		if err != nil {
			return nil, fmt.Errorf("global %s: %w", g.Name, err)
		}
		prog.Globals = append(prog.Globals, GlobalSymbol{Name: g.Name, Type: t, Init: g.Init})
	}
	funcs := make(map[string]ctypes.Tfunction)
	for name, sig := range f.Declarations {
		t, err := tp.parse(sig)
		if err != nil {
			return nil, fmt.Errorf("declaration %s: %w", name, err)
		}
		ft, ok := t.(ctypes.Tfunction)
		if !ok {
			return nil, fmt.Errorf("%w: declaration %s is not a function signature", ErrMalformed, name)
		}
		funcs[name] = ft
	}
	for i := range f.Functions {
		ft, err := f.Functions[i].signature(tp)
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", f.Functions[i].Name, err)
		}
		funcs[f.Functions[i].Name] = ft
	}
	for i := range f.Functions {
		fn, err := f.Functions[i].load(tp, funcs)
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", f.Functions[i].Name, err)
		}
		prog.Functions = append(prog.Functions, fn)
		prog.Expect[fn.Name] = f.Functions[i].Expect
	}
	return prog, nil
}

type typeParser struct {
	decls map[string][]string
	done  map[string]ctypes.Type
	stack []string
}

var scalarTypes = map[string]func() ctypes.Type{
	"char":       ctypes.Char,
	"uchar":      ctypes.UChar,
	"short":      ctypes.Short,
	"ushort":     ctypes.UShort,
	"int":        ctypes.Int,
	"uint":       ctypes.UInt,
	"long":       ctypes.Long,
	"ulong":      ctypes.ULong,
	"float":      ctypes.Float,
	"double":     ctypes.Double,
	"longdouble": ctypes.LongDouble,
	"void":       ctypes.Void,
}

func (tp *typeParser) parse(s string) (ctypes.Type, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	if strings.HasPrefix(s, "*") {
		elem, err := tp.parse(s[1:])
		if err != nil {
			return nil, err
		}
		return ctypes.Pointer(elem), nil
	}
	if strings.HasPrefix(s, "fn(") {
		return tp.parseSignature(s)
	}
	if mk, ok := scalarTypes[s]; ok {
		return mk(), nil
	}
	if t, ok := tp.done[s]; ok {
		return t, nil
	}
	members, ok := tp.decls[s]
	if !ok {
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, s)
	}
	for _, name := range tp.stack {
		if name == s {
			return nil, fmt.Errorf("%w: type %q contains itself", ErrMalformed, s)
		}
	}
	tp.stack = append(tp.stack, s)
	defer func() { tp.stack = tp.stack[:len(tp.stack)-1] }()
	var ms []ctypes.Type
	for _, m := range members {
		t, err := tp.parse(m)
		if err != nil {
			return nil, err
		}
		ms = append(ms, t)
	}
	t := ctypes.Struct(s, ms...)
	tp.done[s] = t
	return t, nil
}

// parseSignature reads fn(params)->return. The return type defaults to
// void.
func (tp *typeParser) parseSignature(s string) (ctypes.Type, error) {
	depth, end := 0, -1
	for i := len("fn"); i < len(s) && end < 0; i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				end = i
			}
		}
	}
	if end < 0 {
		return nil, fmt.Errorf("%w: unbalanced signature %q", ErrMalformed, s)
	}
	ft := ctypes.Tfunction{Return: ctypes.Void()}
	rest := strings.TrimSpace(s[end+1:])
	if rest != "" {
		ret, ok := strings.CutPrefix(rest, "->")
		if !ok {
			return nil, fmt.Errorf("%w: bad signature %q", ErrMalformed, s)
		}
		t, err := tp.parse(ret)
		if err != nil {
			return nil, err
		}
		ft.Return = t
	}
	params := splitTopLevel(s[len("fn("):end])
	for i, p := range params {
		p = strings.TrimSpace(p)
		if p == "..." {
			if i != len(params)-1 {
				return nil, fmt.Errorf("%w: ... must come last in %q", ErrMalformed, s)
			}
			ft.VarArg = true
			continue
		}
		t, err := tp.parse(p)
		if err != nil {
			return nil, err
		}
		ft.Params = append(ft.Params, t)
	}
	return ft, nil
}

// splitTopLevel splits a parameter list at the commas outside parentheses.
func splitTopLevel(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}

type loader struct {
	fn    *rtl.Function
	types *typeParser
	funcs map[string]ctypes.Tfunction
	vregs map[int]int
	slots map[int]*rtl.Operand
}

// signature returns the function type d defines.
func (d *Function) signature(tp *typeParser) (ctypes.Tfunction, error) {
	ft := ctypes.Tfunction{Return: ctypes.Void(), VarArg: d.Variadic}
	if d.Return != "" {
		t, err := tp.parse(d.Return)
		if err != nil {
			return ft, err
		}
		ft.Return = t
	}
	for _, p := range d.Params {
		t, err := tp.parse(p)
		if err != nil {
			return ft, err
		}
		ft.Params = append(ft.Params, t)
	}
	return ft, nil
}

func (d *Function) load(tp *typeParser, funcs map[string]ctypes.Tfunction) (*rtl.Function, error) {
	ft, err := d.signature(tp)
	if err != nil {
		return nil, err
	}
	params := ft.Params
	fn := rtl.NewFunction(d.Name, ft.Return, params...)
	fn.Variadic = d.Variadic
	fn.Strings = d.Strings
	for _, i := range d.AddressTaken {
		if i < 0 || i >= len(params) {
			return nil, fmt.Errorf("%w: address_taken %d out of range", ErrMalformed, i)
		}
		fn.ParamAddressTaken[i] = true
	}

	l := &loader{fn: fn, types: tp, funcs: funcs, vregs: make(map[int]int), slots: make(map[int]*rtl.Operand)}
	for n, ins := range d.Code {
		in, err := l.instr(ins)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", n, err)
		}
		fn.Code.Append(in)
	}
	return fn, nil
}

func (l *loader) instr(d Instr) (rtl.Instr, error) {
	op, ok := rtl.OpByName(d.Op)
	if !ok {
		return rtl.Instr{}, fmt.Errorf("%w: unknown operation %q", ErrMalformed, d.Op)
	}
	var ops [3]*rtl.Operand
	for i, s := range []string{d.Dst, d.Src1, d.Src2} {
		if s == "" {
			continue
		}
		o, err := l.operand(s)
		if err != nil {
			return rtl.Instr{}, err
		}
		ops[i] = o
	}
	if d.Label > l.fn.LabelCount {
		l.fn.LabelCount = d.Label
	}
	in := rtl.New(op, ops[0], ops[1], ops[2])
	in.Label = d.Label
	return in, nil
}

func (l *loader) operand(s string) (*rtl.Operand, error) {
	s = strings.TrimSpace(s)
	body, typ, _ := strings.Cut(s, ":")
	var t ctypes.Type
	if typ != "" {
		var err error
		if t, err = l.types.parse(typ); err != nil {
			return nil, err
		}
	}
	needType := func() error {
		if t == nil {
			return fmt.Errorf("%w: operand %q needs a type", ErrMalformed, s)
		}
		return nil
	}
	number := func(prefix string) (int, error) {
		n, err := strconv.Atoi(strings.TrimPrefix(body, prefix))
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: bad operand %q", ErrMalformed, s)
		}
		return n, nil
	}

	switch {
	case strings.HasPrefix(body, "slot"):
		n, err := number("slot")
		if err != nil {
			return nil, err
		}
		if slot, ok := l.slots[n]; ok {
			if t != nil {
				return slot.WithType(t), nil
			}
			return slot.Clone(), nil
		}
		if err := needType(); err != nil {
			return nil, err
		}
		l.slots[n] = l.fn.AllocateSlot(t)
		return l.slots[n].Clone(), nil
	case strings.HasPrefix(body, "v"):
		n, err := number("v")
		if err != nil {
			return nil, err
		}
		if err := needType(); err != nil {
			return nil, err
		}
		id, ok := l.vregs[n]
		if !ok {
			id = l.fn.NewVReg(t).VReg
			l.vregs[n] = id
		}
		return rtl.NewVReg(id, t), nil
	case strings.HasPrefix(body, "p"):
		n, err := number("p")
		if err != nil {
			return nil, err
		}
		if n >= len(l.fn.Params) {
			return nil, fmt.Errorf("%w: %q names a missing parameter", ErrMalformed, s)
		}
		if t == nil {
			t = l.fn.Params[n]
		}
		return rtl.NewParam(n, t), nil
	case strings.HasPrefix(body, "@"):
		if err := needType(); err != nil {
			return nil, err
		}
		return rtl.NewGlobal(body[1:], t), nil
	case strings.HasPrefix(body, "&"):
		name := body[1:]
		f := rtl.NewFunc(name)
		if t != nil {
			if _, ok := t.(ctypes.Tfunction); !ok {
				return nil, fmt.Errorf("%w: %q is not a function signature", ErrMalformed, s)
			}
			return f.WithType(t), nil
		}
		if ft, ok := l.funcs[name]; ok {
			return f.WithType(ft), nil
		}
		return f, nil
	case strings.HasPrefix(body, "s"):
		n, err := number("s")
		if err != nil {
			return nil, err
		}
		if n >= len(l.fn.Strings) {
			return nil, fmt.Errorf("%w: %q names a missing string", ErrMalformed, s)
		}
		return rtl.NewString(n), nil
	case strings.HasPrefix(body, "L"):
		n, err := number("L")
		if err != nil {
			return nil, err
		}
		if n > l.fn.LabelCount {
			l.fn.LabelCount = n
		}
		return rtl.NewLabel(n), nil
	}

	if err := needType(); err != nil {
		return nil, err
	}
	if ctypes.IsFloating(t) {
		v, err := strconv.ParseFloat(body, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad constant %q", ErrMalformed, s)
		}
		return rtl.NewFConst(v, t), nil
	}
	v, err := strconv.ParseInt(body, 0, 64)
	if err != nil {
		u, uerr := strconv.ParseUint(body, 0, 64)
		if uerr != nil {
			return nil, fmt.Errorf("%w: bad constant %q", ErrMalformed, s)
		}
		v = int64(u)
	}
	return rtl.NewConst(v, t), nil
}
