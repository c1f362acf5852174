package selection

import (
	"go.uber.org/zap"

	"github.com/raymyers/ralph-cg/pkg/rtl"
	"github.com/raymyers/ralph-cg/pkg/rules"
	"github.com/raymyers/ralph-cg/pkg/x86"
)

// Options configures selection.
type Options struct {
	Logger *zap.Logger
	// LiveOut reports whether a virtual register is read after the block
	// defining it. By default a register is live out when any other block
	// mentions it.
	LiveOut func(vreg int) bool
	// NoMerge keeps one tree per instruction.
	NoMerge bool
	// NoFold disables constant folding.
	NoFold bool
}

// blockContext holds the tiling state of one basic block. A new one is made
// for every block.
type blockContext struct {
	fn    *rtl.Function
	set   *rules.Set
	opts  Options
	log   *zap.Logger
	uses  *useInfo
	nodes []node
	trees []tree
	out   *rtl.List
	label int
}

// useInfo counts the definitions and uses of every virtual register over
// the whole function and records which blocks mention it.
type useInfo struct {
	defs   map[int]int
	uses   map[int]int
	blocks map[int]map[int]bool
}

func countUses(code *rtl.List, blocks []rtl.Block) *useInfo {
	u := &useInfo{defs: make(map[int]int), uses: make(map[int]int), blocks: make(map[int]map[int]bool)}
	mention := func(v, blk int) {
		if u.blocks[v] == nil {
			u.blocks[v] = make(map[int]bool)
		}
		u.blocks[v][blk] = true
	}
	for bi, blk := range blocks {
		for id := blk.Start; id != blk.End; id = code.Next(id) {
			in := code.At(id)
			if v := in.DefinedVReg(); v != 0 {
				u.defs[v]++
				mention(v, bi)
			}
			for _, v := range in.UsedVRegs() {
				u.uses[v]++
				mention(v, bi)
			}
		}
	}
	return u
}

// Select replaces the IR instructions of fn with machine instructions from
// set, block by block. A tree no rule covers is an internal error.
func Select(fn *rtl.Function, set *rules.Set, opts Options) (err error) {
	defer rtl.Recover(&err)
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("function", fn.Name))

	split := rtl.NewList()
	for _, in := range fn.Code.Instrs() {
		for _, s := range splitMemoryDst(fn, in) {
			split.Append(s)
		}
	}
	fn.Code = split

	blocks := fn.Code.Blocks()
	uses := countUses(fn.Code, blocks)
	out := rtl.NewList()
	for bi, blk := range blocks {
		b := &blockContext{fn: fn, set: set, opts: opts, log: log, uses: uses, out: out}
		var instrs []rtl.Instr
		for id := blk.Start; id != blk.End; id = fn.Code.Next(id) {
			instrs = append(instrs, *fn.Code.At(id))
		}
		b.run(instrs)
		log.Debug("block selected", zap.Int("block", bi), zap.Int("instrs", len(instrs)), zap.Int("trees", b.live()))
	}
	fn.Code = out
	return nil
}

func (b *blockContext) live() int {
	n := 0
	for _, t := range b.trees {
		if !t.merged {
			n++
		}
	}
	return n
}

func (b *blockContext) run(instrs []rtl.Instr) {
	for _, in := range instrs {
		b.trees = append(b.trees, b.build(in))
	}
	if !b.opts.NoMerge {
		b.merge()
	}
	for i := range b.trees {
		t := &b.trees[i]
		if t.merged {
			continue
		}
		if t.instr.Op.IsPseudo() || t.instr.Op.IsMachine() {
			b.out.Append(t.instr)
			continue
		}
		b.simplify(t.root, true)
		if !b.opts.NoFold {
			b.fold(t.root, true)
		}
		b.selectTree(t)
	}
}

// selectInstr selects one extra instruction in the current block.
func (b *blockContext) selectInstr(in rtl.Instr) {
	t := b.build(in)
	b.selectTree(&t)
}

func (b *blockContext) liveOut(v int) bool {
	if b.opts.LiveOut != nil {
		return b.opts.LiveOut(v)
	}
	return len(b.uses.blocks[v]) > 1
}

// merge folds single-use definitions into the tree that uses them, walking
// the block forward so merged trees can absorb earlier ones.
func (b *blockContext) merge() {
	defAt := make(map[int]int)
	for u := range b.trees {
		t := &b.trees[u]
		if !t.instr.Op.IsPseudo() && !t.instr.Op.IsMachine() {
			for _, l := range b.leaves(t.root) {
				o := b.nodes[l].leaf
				if o.Kind != rtl.VReg {
					continue
				}
				d, ok := defAt[o.VReg]
				if !ok || !b.canMerge(d, u, o.VReg) {
					continue
				}
				b.nodes[l] = b.nodes[b.trees[d].root]
				b.trees[d].merged = true
				delete(defAt, o.VReg)
			}
		}
		if v := t.instr.DefinedVReg(); v != 0 {
			defAt[v] = u
		}
	}
}

// canMerge reports whether the tree at d defining v may move into the tree
// at u. Moving it must not reorder it past anything it depends on.
func (b *blockContext) canMerge(d, u, v int) bool {
	def := &b.trees[d]
	if x86.IsPseudo(v) || def.instr.Label != 0 || !mergeable(&def.instr) {
		return false
	}
	if b.uses.defs[v] != 1 || b.uses.uses[v] != 1 || b.liveOut(v) {
		return false
	}
	reads, readsMemory := b.reads(def.root)
	for r := range reads {
		if x86.IsPseudo(r) {
			return false
		}
	}
	// The user's destination must not be one of the merged sources.
	if w := b.trees[u].instr.DefinedVReg(); w != 0 && reads[w] {
		return false
	}
	for i := d + 1; i < u; i++ {
		in := &b.trees[i].instr
		if isCallBoundary(in.Op) {
			return false
		}
		if w := in.DefinedVReg(); w != 0 && reads[w] {
			return false
		}
		if readsMemory && writesMemory(in) {
			return false
		}
	}
	return true
}
