package abi

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/raymyers/ralph-cg/pkg/ctypes"
	"github.com/raymyers/ralph-cg/pkg/rtl"
	"github.com/raymyers/ralph-cg/pkg/x86"
)

var (
	// ErrUnsupportedVarArg is returned for va_arg of an array, function or
	// void type.
	ErrUnsupportedVarArg = errors.New("unsupported va_arg type")
	// ErrUnsupportedResult is returned for call results the backend cannot
	// receive, such as a long double in a register.
	ErrUnsupportedResult = errors.New("unsupported call result")
	// ErrMalformed is returned for IR that breaks the calling conventions of
	// the front end, such as va_start in a non-variadic function.
	ErrMalformed = errors.New("malformed call IR")
)

// Register save area layout of a variadic function.
const (
	SaveAreaSize = 176
	sseSaveStart = 48
)

// Options configures lowering.
type Options struct {
	Logger *zap.Logger
}

// Entry describes a lowered function entry.
type Entry struct {
	Params *Allocation
	// Homes holds where each parameter lives after entry: a virtual
	// register, a local slot or its incoming stack slot.
	Homes []*rtl.Operand
	// HiddenReturn holds the caller's result address when the function
	// returns an aggregate in memory.
	HiddenReturn *rtl.Operand
	// SaveArea, GPOffset and FPOffset are set for variadic functions.
	SaveArea   *rtl.Operand
	GPOffset   int64
	FPOffset   int64
	NamedStack int64
}

type lowering struct {
	fn    *rtl.Function
	out   *rtl.List
	log   *zap.Logger
	entry *Entry
	args  map[int64][]rtl.Instr
}

// Lower rewrites fn so that parameters, return values, calls and variadic
// argument access become explicit moves between virtual registers, memory
// and the live-range pseudo-registers of the argument registers.
func Lower(fn *rtl.Function, opts Options) (*Entry, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if len(fn.Params) > rtl.MaxArgs {
		return nil, fmt.Errorf("%s: %d parameters: %w", fn.Name, len(fn.Params), rtl.ErrTooManyArgs)
	}
	for len(fn.ParamAddressTaken) < len(fn.Params) {
		fn.ParamAddressTaken = append(fn.ParamAddressTaken, false)
	}
	l := &lowering{fn: fn, out: rtl.NewList(), log: log.With(zap.String("function", fn.Name)), args: make(map[int64][]rtl.Instr)}
	l.markAddressTaken()
	l.lowerEntry()

	for _, id := range fn.Code.IDs() {
		in := *fn.Code.At(id)
		if err := l.replaceParams(&in); err != nil {
			return nil, err
		}
		if in.Op == rtl.OpArg && in.Src2 != nil {
			if !in.Src1.IsConst() {
				return nil, fmt.Errorf("%s: argument without call id: %w", fn.Name, ErrMalformed)
			}
			l.args[in.Src1.Int] = append(l.args[in.Src1.Int], in)
			if in.Label != 0 {
				l.out.Append(labelOnly(in.Label))
			}
			continue
		}
		if err := l.lowerInstr(in); err != nil {
			return nil, err
		}
	}
	fn.Code = l.out
	return l.entry, nil
}

func labelOnly(label int) rtl.Instr {
	in := rtl.New(rtl.OpNop, nil, nil, nil)
	in.Label = label
	return in
}

func (l *lowering) emit(op rtl.Op, dst, src1, src2 *rtl.Operand) {
	l.out.Append(rtl.New(op, dst, src1, src2))
}

func (l *lowering) label(n int) {
	l.out.Append(labelOnly(n))
}

func pseudo(r x86.Reg, t ctypes.Type) *rtl.Operand {
	return rtl.NewVReg(x86.PseudoFor(r), t)
}

func (l *lowering) markAddressTaken() {
	for _, id := range l.fn.Code.IDs() {
		in := l.fn.Code.At(id)
		if in.Op == rtl.OpAddressOf && in.Src1 != nil && in.Src1.Kind == rtl.Param {
			if i := in.Src1.Index; i >= 0 && i < len(l.fn.ParamAddressTaken) {
				l.fn.ParamAddressTaken[i] = true
			}
		}
	}
}

func (l *lowering) replaceParams(in *rtl.Instr) error {
	for _, p := range []**rtl.Operand{&in.Dst, &in.Src1, &in.Src2} {
		o := *p
		if o == nil || o.Kind != rtl.Param {
			continue
		}
		if o.Index < 0 || o.Index >= len(l.entry.Homes) {
			return fmt.Errorf("%s: parameter %d out of range: %w", l.fn.Name, o.Index, ErrMalformed)
		}
		home := l.entry.Homes[o.Index].Clone()
		if home.Kind == rtl.Stack {
			home.Offset += o.Offset
		}
		home.Type = o.Type
		*p = home
	}
	return nil
}

func (l *lowering) lowerEntry() {
	fn := l.fn
	a := NewAllocation()
	e := &Entry{Params: a}
	l.entry = e

	if ReturnsInMemory(fn.Return) {
		r := a.ReserveIntRegister()
		hp := fn.NewVReg(ctypes.Pointer(fn.Return))
		l.emit(rtl.OpMove, hp, pseudo(x86.IntArgRegs[r], hp.Type), nil)
		e.HiddenReturn = hp
	}

	for i, t := range fn.Params {
		p := a.Add(t)
		home := l.paramHome(i, t, p)
		e.Homes = append(e.Homes, home)
		l.log.Debug("param",
			zap.Int("index", i),
			zap.Stringer("type", t),
			zap.Stringer("home", home),
			zap.Int("eightbytes", len(p.Locs)))
	}
	e.NamedStack = a.StackSize()
	a.Finalize()

	if fn.Variadic {
		l.saveRegisters(e)
	}
}

func (l *lowering) paramHome(i int, t ctypes.Type, p *ParamLocations) *rtl.Operand {
	fn := l.fn
	switch {
	case len(p.Locs) == 0:
		return fn.AllocateSlot(t)
	case p.OnStack():
		idx := int((16 + p.Locs[0].StackOffset) >> 3)
		slot := rtl.NewStack(idx, t)
		if ctypes.IsAggregate(t) || ctypes.IsLongDouble(t) || fn.ParamAddressTaken[i] {
			return slot
		}
		v := fn.NewVReg(t)
		v.OriginalStackIndex = idx
		l.emit(rtl.OpMove, v, slot, nil)
		return v
	case ctypes.IsAggregate(t):
		slot := fn.AllocateSlot(t)
		l.storeEightbytes(slot, p, argRegisters)
		return slot
	}

	var src *rtl.Operand
	if loc := p.Locs[0]; loc.SSERegister >= 0 {
		src = pseudo(SSERegister(loc), t)
	} else {
		src = pseudo(IntRegister(loc), t)
	}
	if fn.ParamAddressTaken[i] {
		slot := fn.AllocateSlot(t)
		l.emit(rtl.OpMove, slot, src, nil)
		return slot
	}
	v := fn.NewVReg(t)
	l.emit(rtl.OpMove, v, src, nil)
	return v
}

func (l *lowering) saveRegisters(e *Entry) {
	fn := l.fn
	a := e.Params
	e.SaveArea = fn.AllocateSlot(ctypes.Array(ctypes.Char(), SaveAreaSize))
	for i := a.IntRegs; i < IntArgRegisters; i++ {
		l.emit(rtl.OpMove, e.SaveArea.WithOffset(int64(8*i), ctypes.Long()), pseudo(x86.IntArgRegs[i], ctypes.Long()), nil)
	}
	skip := fn.NewLabel()
	l.emit(rtl.OpJz, nil, pseudo(x86.RAX, ctypes.UChar()), rtl.NewLabel(skip))
	for i := a.SSERegs; i < SSEArgRegisters; i++ {
		l.emit(rtl.OpMove, e.SaveArea.WithOffset(int64(sseSaveStart+16*i), ctypes.Double()), pseudo(x86.SSEArgRegs[i], ctypes.Double()), nil)
	}
	l.label(skip)
	e.GPOffset = int64(8 * a.IntRegs)
	e.FPOffset = int64(sseSaveStart + 16*a.SSERegs)
}

type registerMap func(l Location) x86.Reg

func argRegisters(l Location) x86.Reg {
	if l.SSERegister >= 0 {
		return SSERegister(l)
	}
	return IntRegister(l)
}

func returnRegisters(l Location) x86.Reg {
	if l.SSERegister >= 0 {
		return x86.SSEReturnRegs[l.SSERegister]
	}
	return x86.IntReturnRegs[l.IntRegister]
}

func chunk(remaining int64) int64 {
	switch {
	case remaining >= 8:
		return 8
	case remaining >= 4:
		return 4
	case remaining >= 2:
		return 2
	}
	return 1
}

// storeEightbytes stores the registers holding an aggregate into mem.
func (l *lowering) storeEightbytes(mem *rtl.Operand, p *ParamLocations, regs registerMap) {
	for _, loc := range p.Locs {
		r := regs(loc)
		off := loc.StructOffset
		switch {
		case loc.SSERegister >= 0 && loc.StructMemberCount >= 2 && loc.StructSize == 8:
			// Two floats: no SSE store splits a register in halves.
			bits := l.fn.NewVReg(ctypes.ULong())
			l.emit(rtl.OpMovePregClass, bits, pseudo(r, ctypes.Double()), nil)
			l.storeChunks(mem, off, bits, 8, 4)
		case loc.SSERegister >= 0 && loc.StructSize == 8:
			l.emit(rtl.OpMove, mem.WithOffset(off, ctypes.Double()), pseudo(r, ctypes.Double()), nil)
		case loc.SSERegister >= 0:
			l.emit(rtl.OpMove, mem.WithOffset(off, ctypes.Float()), pseudo(r, ctypes.Float()), nil)
		default:
			l.storeChunks(mem, off, pseudo(r, ctypes.ULong()), loc.StructSize, 8)
		}
	}
}

// storeChunks stores the low size bytes of v at mem+off, largest chunks
// first, shifting v right between stores.
func (l *lowering) storeChunks(mem *rtl.Operand, off int64, v *rtl.Operand, size, max int64) {
	for pos := int64(0); pos < size; {
		k := chunk(size - pos)
		if k > max {
			k = max
		}
		l.emit(rtl.OpMove, mem.WithOffset(off+pos, ctypes.IntOfSize(k, ctypes.Unsigned)), v, nil)
		pos += k
		if pos < size {
			shifted := l.fn.NewVReg(ctypes.ULong())
			l.emit(rtl.OpBshr, shifted, v, rtl.NewConst(k*8, ctypes.Int()))
			v = shifted
		}
	}
}

// loadChunks reads size bytes at mem+off into one 8-byte value without
// reading past the object.
func (l *lowering) loadChunks(mem *rtl.Operand, off, size int64) *rtl.Operand {
	var acc *rtl.Operand
	for pos := int64(0); pos < size; {
		k := chunk(size - pos)
		c := l.fn.NewVReg(ctypes.ULong())
		l.emit(rtl.OpMove, c, mem.WithOffset(off+pos, ctypes.IntOfSize(k, ctypes.Unsigned)), nil)
		if pos > 0 {
			shifted := l.fn.NewVReg(ctypes.ULong())
			l.emit(rtl.OpBshl, shifted, c, rtl.NewConst(pos*8, ctypes.Int()))
			c = shifted
		}
		if acc == nil {
			acc = c
		} else {
			merged := l.fn.NewVReg(ctypes.ULong())
			l.emit(rtl.OpBor, merged, acc, c)
			acc = merged
		}
		pos += k
	}
	return acc
}

// loadEightbytes moves an aggregate in memory into the registers of p and
// returns the pseudo-registers written.
func (l *lowering) loadEightbytes(mem *rtl.Operand, p *ParamLocations, regs registerMap) []*rtl.Operand {
	var written []*rtl.Operand
	for _, loc := range p.Locs {
		r := regs(loc)
		off := loc.StructOffset
		var dst *rtl.Operand
		switch {
		case loc.SSERegister >= 0 && loc.StructMemberCount >= 2 && loc.StructSize == 8:
			bits := l.loadChunks(mem, off, 8)
			dst = pseudo(r, ctypes.Double())
			l.emit(rtl.OpMovePregClass, dst, bits, nil)
		case loc.SSERegister >= 0 && loc.StructSize == 8:
			dst = pseudo(r, ctypes.Double())
			l.emit(rtl.OpMove, dst, mem.WithOffset(off, ctypes.Double()), nil)
		case loc.SSERegister >= 0:
			dst = pseudo(r, ctypes.Float())
			l.emit(rtl.OpMove, dst, mem.WithOffset(off, ctypes.Float()), nil)
		default:
			v := l.loadChunks(mem, off, loc.StructSize)
			dst = pseudo(r, ctypes.ULong())
			l.emit(rtl.OpMove, dst, v, nil)
		}
		written = append(written, dst)
	}
	return written
}

func (l *lowering) lowerInstr(in rtl.Instr) error {
	if in.Label != 0 {
		switch in.Op {
		case rtl.OpReturn, rtl.OpCall, rtl.OpVaStart, rtl.OpVaArg:
			l.label(in.Label)
			in.Label = 0
		}
	}
	switch in.Op {
	case rtl.OpReturn:
		return l.lowerReturn(in)
	case rtl.OpCall:
		return l.lowerCall(in)
	case rtl.OpVaStart:
		return l.lowerVaStart(in)
	case rtl.OpVaArg:
		return l.lowerVaArg(in)
	}
	l.out.Append(in)
	return nil
}

func (l *lowering) lowerReturn(in rtl.Instr) error {
	t := l.fn.Return
	if in.Src1 == nil || !ctypes.IsAggregate(t) {
		l.out.Append(in)
		return nil
	}
	src := in.Src1
	if !src.IsMemory() {
		return fmt.Errorf("%s: aggregate return value %s is not in memory: %w", l.fn.Name, src, ErrMalformed)
	}
	if hp := l.entry.HiddenReturn; hp != nil {
		l.copyToPointer(hp, src, ctypes.Sizeof(t))
		l.emit(rtl.OpMove, pseudo(x86.RAX, hp.Type), hp, nil)
		l.emit(rtl.OpReturn, nil, nil, nil)
		return nil
	}
	if p := ClassifyReturn(t); p != nil {
		l.loadEightbytes(src, p, returnRegisters)
	}
	l.emit(rtl.OpReturn, nil, nil, nil)
	return nil
}

// copyToPointer copies size bytes from src to the address held in ptr.
func (l *lowering) copyToPointer(ptr, src *rtl.Operand, size int64) {
	for pos := int64(0); pos < size; {
		k := chunk(size - pos)
		ct := ctypes.IntOfSize(k, ctypes.Unsigned)
		v := l.fn.NewVReg(ct)
		l.emit(rtl.OpMove, v, src.WithOffset(pos, ct), nil)
		p := ptr.WithType(ctypes.Pointer(ct))
		if pos > 0 {
			p = l.fn.NewVReg(ctypes.Pointer(ct))
			l.emit(rtl.OpAdd, p, ptr, rtl.NewConst(pos, ctypes.Long()))
		}
		l.emit(rtl.OpMoveToPtr, p, p, v)
		pos += k
	}
}

func functionType(callee *rtl.Operand) ctypes.Tfunction {
	switch t := callee.Type.(type) {
	case ctypes.Tfunction:
		return t
	case ctypes.Tpointer:
		if f, ok := t.Elem.(ctypes.Tfunction); ok {
			return f
		}
	}
	return ctypes.Tfunction{}
}

func (l *lowering) lowerCall(in rtl.Instr) error {
	fn := l.fn
	var args []rtl.Instr
	if in.Src2 != nil && in.Src2.IsConst() {
		args = l.args[in.Src2.Int]
	}
	if len(args) > rtl.MaxArgs {
		return fmt.Errorf("%s: call with %d arguments: %w", fn.Name, len(args), rtl.ErrTooManyArgs)
	}
	ft := functionType(in.Src1)
	dst := in.Dst
	retType := ft.Return
	if retType == nil && dst != nil {
		retType = dst.Type
	}

	a := NewAllocation()
	var resultAddr *rtl.Operand
	if retType != nil && ReturnsInMemory(retType) {
		a.ReserveIntRegister()
		resultAddr = dst
		if resultAddr == nil || !resultAddr.IsMemory() {
			resultAddr = fn.AllocateSlot(retType)
		}
	}
	locs := make([]*ParamLocations, len(args))
	for i, arg := range args {
		locs[i] = a.Add(arg.Src2.Type)
	}
	size := a.Finalize()

	// Stack arguments, last first, keeping the area a multiple of 16.
	total := size
	if total%16 != 0 {
		l.emit(rtl.OpArgStackPadding, nil, nil, nil)
		total += 16 - total%16
	}
	top := size
	for i := len(args) - 1; i >= 0; i-- {
		if !locs[i].OnStack() {
			continue
		}
		loc := locs[i].Locs[0]
		t := args[i].Src2.Type
		for end := loc.StackOffset + alignUp(ctypes.Sizeof(t), 8); top > end; top -= 8 {
			l.emit(rtl.OpArgStackPadding, nil, nil, nil)
		}
		l.push(args[i].Src2, t)
		top = loc.StackOffset
	}

	var live []*rtl.Operand
	for i, arg := range args {
		p := locs[i]
		if p.OnStack() || len(p.Locs) == 0 {
			continue
		}
		v := arg.Src2
		if ctypes.IsAggregate(p.Type) {
			if !v.IsMemory() {
				return fmt.Errorf("%s: aggregate argument %s is not in memory: %w", fn.Name, v, ErrMalformed)
			}
			live = append(live, l.loadEightbytes(v, p, argRegisters)...)
			continue
		}
		loc := p.Locs[0]
		var r *rtl.Operand
		if loc.SSERegister >= 0 {
			r = pseudo(SSERegister(loc), p.Type)
		} else {
			r = pseudo(IntRegister(loc), promoted(p.Type))
		}
		l.emit(rtl.OpMove, r, v, nil)
		live = append(live, r)
	}
	if resultAddr != nil {
		r := pseudo(x86.IntArgRegs[0], ctypes.Pointer(retType))
		l.emit(rtl.OpAddressOf, r, resultAddr, nil)
		live = append(live, r)
	}
	if ft.VarArg {
		al := pseudo(x86.RAX, ctypes.UChar())
		l.emit(rtl.OpMove, al, rtl.NewConst(int64(a.SSERegs), ctypes.UChar()), nil)
		live = append(live, al)
	}
	for _, r := range live {
		l.emit(rtl.OpCallArgReg, nil, r, nil)
	}
	l.emit(rtl.OpCall, nil, in.Src1, nil)
	if total > 0 {
		l.emit(rtl.OpReleaseStack, nil, rtl.NewConst(total, ctypes.Long()), nil)
	}
	l.log.Debug("call",
		zap.Stringer("callee", in.Src1),
		zap.Int("args", len(args)),
		zap.Int64("stack", total),
		zap.Int("sse", a.SSERegs))

	if dst == nil || resultAddr != nil {
		return nil
	}
	switch {
	case ctypes.IsAggregate(dst.Type):
		p := ClassifyReturn(dst.Type)
		if p == nil || !dst.IsMemory() {
			return fmt.Errorf("%s: aggregate result %s: %w", fn.Name, dst, ErrUnsupportedResult)
		}
		l.storeEightbytes(dst, p, returnRegisters)
	case ctypes.IsLongDouble(dst.Type):
		return fmt.Errorf("%s: long double result: %w", fn.Name, ErrUnsupportedResult)
	case ctypes.IsSSE(dst.Type):
		l.emit(rtl.OpMove, dst, pseudo(x86.XMM0, dst.Type), nil)
	default:
		l.emit(rtl.OpMove, dst, pseudo(x86.RAX, dst.Type), nil)
	}
	return nil
}

// promoted widens integer arguments narrower than int.
func promoted(t ctypes.Type) ctypes.Type {
	if it, ok := t.(ctypes.Tint); ok && it.Size < ctypes.I32 {
		return ctypes.Tint{Size: ctypes.I32, Sign: it.Sign}
	}
	return t
}

func (l *lowering) push(v *rtl.Operand, t ctypes.Type) {
	if !ctypes.IsAggregate(t) {
		l.emit(rtl.OpArg, nil, v, nil)
		return
	}
	for off := alignUp(ctypes.Sizeof(t), 8) - 8; off >= 0; off -= 8 {
		l.emit(rtl.OpArg, nil, v.WithOffset(off, ctypes.Long()), nil)
	}
}

func (l *lowering) vaList(in rtl.Instr, ap *rtl.Operand) error {
	if !l.fn.Variadic {
		return fmt.Errorf("%s: %s in a function without variable arguments: %w", l.fn.Name, in.Op, ErrMalformed)
	}
	if ap == nil || !ap.IsMemory() {
		return fmt.Errorf("%s: va_list operand %s is not in memory: %w", l.fn.Name, ap, ErrMalformed)
	}
	return nil
}

// va_list layout.
const (
	vaGPOffset      = 0
	vaFPOffset      = 4
	vaOverflowArea  = 8
	vaRegSaveArea   = 16
	gpSaveAreaLimit = 48
)

func (l *lowering) lowerVaStart(in rtl.Instr) error {
	ap := in.Src1
	if err := l.vaList(in, ap); err != nil {
		return err
	}
	e := l.entry
	fn := l.fn
	l.emit(rtl.OpMove, ap.WithOffset(vaGPOffset, ctypes.UInt()), rtl.NewConst(e.GPOffset, ctypes.UInt()), nil)
	l.emit(rtl.OpMove, ap.WithOffset(vaFPOffset, ctypes.UInt()), rtl.NewConst(e.FPOffset, ctypes.UInt()), nil)

	ptr := ctypes.Pointer(ctypes.Char())
	overflow := fn.NewVReg(ptr)
	l.emit(rtl.OpAddressOf, overflow, rtl.NewStack(int((16+e.NamedStack)>>3), ctypes.Char()), nil)
	l.emit(rtl.OpMove, ap.WithOffset(vaOverflowArea, ptr), overflow, nil)

	save := fn.NewVReg(ptr)
	l.emit(rtl.OpAddressOf, save, e.SaveArea, nil)
	l.emit(rtl.OpMove, ap.WithOffset(vaRegSaveArea, ptr), save, nil)
	return nil
}

func (l *lowering) lowerVaArg(in rtl.Instr) error {
	ap, dst := in.Src1, in.Dst
	if err := l.vaList(in, ap); err != nil {
		return err
	}
	if dst == nil {
		return fmt.Errorf("%s: va_arg without destination: %w", l.fn.Name, ErrMalformed)
	}
	t := dst.Type
	switch t.(type) {
	case ctypes.Tarray, ctypes.Tfunction, ctypes.Tvoid:
		return fmt.Errorf("%s: va_arg of %s: %w", l.fn.Name, t, ErrUnsupportedVarArg)
	}
	switch {
	case ctypes.IsAggregate(t):
		return l.vaArgAggregate(ap, dst)
	case ctypes.IsLongDouble(t):
		return l.vaArgLongDouble(ap, dst)
	}

	fn := l.fn
	field, limit, step := int64(vaGPOffset), int64(gpSaveAreaLimit), int64(8)
	if ctypes.IsSSE(t) {
		field, limit, step = vaFPOffset, SaveAreaSize, 16
	}
	overflow, done := fn.NewLabel(), fn.NewLabel()

	off := fn.NewVReg(ctypes.UInt())
	l.emit(rtl.OpMove, off, ap.WithOffset(field, ctypes.UInt()), nil)
	inRegs := fn.NewVReg(ctypes.Int())
	l.emit(rtl.OpLt, inRegs, off, rtl.NewConst(limit, ctypes.UInt()))
	l.emit(rtl.OpJz, nil, inRegs, rtl.NewLabel(overflow))

	base := fn.NewVReg(ctypes.Pointer(ctypes.Char()))
	l.emit(rtl.OpMove, base, ap.WithOffset(vaRegSaveArea, base.Type), nil)
	wide := fn.NewVReg(ctypes.ULong())
	l.emit(rtl.OpMove, wide, off, nil)
	addr := fn.NewVReg(ctypes.Pointer(t))
	l.emit(rtl.OpAdd, addr, base, wide)
	l.emit(rtl.OpIndirect, dst, addr, nil)
	next := fn.NewVReg(ctypes.UInt())
	l.emit(rtl.OpAdd, next, off, rtl.NewConst(step, ctypes.UInt()))
	l.emit(rtl.OpMove, ap.WithOffset(field, ctypes.UInt()), next, nil)
	l.emit(rtl.OpJmp, nil, rtl.NewLabel(done), nil)

	l.label(overflow)
	p := fn.NewVReg(ctypes.Pointer(t))
	l.emit(rtl.OpMove, p, ap.WithOffset(vaOverflowArea, p.Type), nil)
	l.emit(rtl.OpIndirect, dst, p, nil)
	np := fn.NewVReg(p.Type)
	l.emit(rtl.OpAdd, np, p, rtl.NewConst(alignUp(ctypes.Sizeof(t), 8), ctypes.Long()))
	l.emit(rtl.OpMove, ap.WithOffset(vaOverflowArea, np.Type), np, nil)
	l.label(done)
	return nil
}

// vaArgAggregate copies an aggregate out of the register save area when
// every eightbyte of it still fits there, and out of the overflow area
// otherwise. Aggregates classified to memory always come from the overflow
// area.
func (l *lowering) vaArgAggregate(ap, dst *rtl.Operand) error {
	if !dst.IsMemory() {
		return fmt.Errorf("%s: aggregate va_arg into %s: %w", l.fn.Name, dst, ErrMalformed)
	}
	fn := l.fn
	t := dst.Type
	size := ctypes.Sizeof(t)
	classes := Classify(t)

	var done int
	if len(classes) > 0 {
		overflow := fn.NewLabel()
		done = fn.NewLabel()
		type cursor struct {
			field, limit, step, n, used int64
			off                         *rtl.Operand
		}
		gp := &cursor{field: vaGPOffset, limit: gpSaveAreaLimit, step: 8}
		fp := &cursor{field: vaFPOffset, limit: SaveAreaSize, step: 16}
		for _, c := range classes {
			if c == ClassSSE {
				fp.n++
			} else {
				gp.n++
			}
		}
		for _, c := range []*cursor{gp, fp} {
			if c.n == 0 {
				continue
			}
			c.off = fn.NewVReg(ctypes.UInt())
			l.emit(rtl.OpMove, c.off, ap.WithOffset(c.field, ctypes.UInt()), nil)
			fits := fn.NewVReg(ctypes.Int())
			l.emit(rtl.OpLt, fits, c.off, rtl.NewConst(c.limit-c.step*(c.n-1), ctypes.UInt()))
			l.emit(rtl.OpJz, nil, fits, rtl.NewLabel(overflow))
		}

		ptr := ctypes.Pointer(ctypes.Char())
		base := fn.NewVReg(ptr)
		l.emit(rtl.OpMove, base, ap.WithOffset(vaRegSaveArea, ptr), nil)
		for i, class := range classes {
			c := gp
			if class == ClassSSE {
				c = fp
			}
			wide := fn.NewVReg(ctypes.ULong())
			l.emit(rtl.OpMove, wide, c.off, nil)
			addr := fn.NewVReg(ptr)
			l.emit(rtl.OpAdd, addr, base, wide)
			if c.used > 0 {
				bumped := fn.NewVReg(ptr)
				l.emit(rtl.OpAdd, bumped, addr, rtl.NewConst(c.used*c.step, ctypes.Long()))
				addr = bumped
			}
			c.used++
			off := int64(i) * 8
			l.copyFromPointer(dst.WithOffset(off, t), addr, min(size-off, 8))
		}
		for _, c := range []*cursor{gp, fp} {
			if c.n == 0 {
				continue
			}
			next := fn.NewVReg(ctypes.UInt())
			l.emit(rtl.OpAdd, next, c.off, rtl.NewConst(c.n*c.step, ctypes.UInt()))
			l.emit(rtl.OpMove, ap.WithOffset(c.field, ctypes.UInt()), next, nil)
		}
		l.emit(rtl.OpJmp, nil, rtl.NewLabel(done), nil)
		l.label(overflow)
	}

	ptr := ctypes.Pointer(ctypes.Char())
	p := fn.NewVReg(ptr)
	l.emit(rtl.OpMove, p, ap.WithOffset(vaOverflowArea, ptr), nil)
	if ctypes.Alignof(t) > 8 {
		bumped := fn.NewVReg(ptr)
		l.emit(rtl.OpAdd, bumped, p, rtl.NewConst(15, ctypes.Long()))
		aligned := fn.NewVReg(ptr)
		l.emit(rtl.OpBand, aligned, bumped, rtl.NewConst(-16, ctypes.Long()))
		p = aligned
	}
	l.copyFromPointer(dst, p, size)
	np := fn.NewVReg(ptr)
	l.emit(rtl.OpAdd, np, p, rtl.NewConst(alignUp(size, 8), ctypes.Long()))
	l.emit(rtl.OpMove, ap.WithOffset(vaOverflowArea, ptr), np, nil)
	if len(classes) > 0 {
		l.label(done)
	}
	return nil
}

// copyFromPointer copies size bytes from the address held in ptr to dst.
func (l *lowering) copyFromPointer(dst, ptr *rtl.Operand, size int64) {
	for pos := int64(0); pos < size; {
		k := chunk(size - pos)
		ct := ctypes.IntOfSize(k, ctypes.Unsigned)
		p := ptr.WithType(ctypes.Pointer(ct))
		if pos > 0 {
			p = l.fn.NewVReg(ctypes.Pointer(ct))
			l.emit(rtl.OpAdd, p, ptr, rtl.NewConst(pos, ctypes.Long()))
		}
		v := l.fn.NewVReg(ct)
		l.emit(rtl.OpIndirect, v, p, nil)
		l.emit(rtl.OpMove, dst.WithOffset(pos, ct), v, nil)
		pos += k
	}
}

// vaArgLongDouble reads a long double from the overflow area, which holds
// it 16-byte aligned.
func (l *lowering) vaArgLongDouble(ap, dst *rtl.Operand) error {
	if !dst.IsMemory() {
		return fmt.Errorf("%s: long double va_arg into %s: %w", l.fn.Name, dst, ErrMalformed)
	}
	fn := l.fn
	word := ctypes.Pointer(ctypes.ULong())
	p := fn.NewVReg(word)
	l.emit(rtl.OpMove, p, ap.WithOffset(vaOverflowArea, word), nil)
	bumped := fn.NewVReg(word)
	l.emit(rtl.OpAdd, bumped, p, rtl.NewConst(15, ctypes.Long()))
	aligned := fn.NewVReg(word)
	l.emit(rtl.OpBand, aligned, bumped, rtl.NewConst(-16, ctypes.Long()))

	lo := fn.NewVReg(ctypes.ULong())
	l.emit(rtl.OpIndirect, lo, aligned, nil)
	l.emit(rtl.OpMove, dst.WithOffset(0, ctypes.ULong()), lo, nil)
	hiAddr := fn.NewVReg(word)
	l.emit(rtl.OpAdd, hiAddr, aligned, rtl.NewConst(8, ctypes.Long()))
	hi := fn.NewVReg(ctypes.ULong())
	l.emit(rtl.OpIndirect, hi, hiAddr, nil)
	l.emit(rtl.OpMove, dst.WithOffset(8, ctypes.ULong()), hi, nil)

	next := fn.NewVReg(word)
	l.emit(rtl.OpAdd, next, aligned, rtl.NewConst(16, ctypes.Long()))
	l.emit(rtl.OpMove, ap.WithOffset(vaOverflowArea, word), next, nil)
	return nil
}
