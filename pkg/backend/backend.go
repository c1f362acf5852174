// Package backend runs the code generator over one function at a time:
// calling-convention lowering, instruction selection, live-range analysis,
// register allocation, spill code, frame layout and assembly.
package backend

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/raymyers/ralph-cg/pkg/abi"
	"github.com/raymyers/ralph-cg/pkg/asm"
	"github.com/raymyers/ralph-cg/pkg/asmgen"
	"github.com/raymyers/ralph-cg/pkg/config"
	"github.com/raymyers/ralph-cg/pkg/liveness"
	"github.com/raymyers/ralph-cg/pkg/regalloc"
	"github.com/raymyers/ralph-cg/pkg/rtl"
	"github.com/raymyers/ralph-cg/pkg/rules"
	"github.com/raymyers/ralph-cg/pkg/selection"
	"github.com/raymyers/ralph-cg/pkg/stacking"
)

// Options configures a compilation.
type Options struct {
	Config config.Options
	Logger *zap.Logger
	// Rules defaults to the x86-64 rule set.
	Rules  *rules.Set
	// Dump receives the intermediate dumps Config.Debug selects.
	Dump   io.Writer
}

// Result is a fully compiled function.
type Result struct {
	Fn         *rtl.Function
	Entry      *abi.Entry
	Allocation *regalloc.Result
	Layout     *stacking.FrameLayout
	// SpillCode counts the loads and stores added for spilled registers.
	SpillCode  int
}

func (o *Options) defaults() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Rules == nil {
		o.Rules = rules.Default()
	}
	if o.Dump == nil {
		o.Dump = io.Discard
	}
}

func (o *Options) dump(enabled bool, stage string, fn *rtl.Function) {
	if !enabled {
		return
	}
	fmt.Fprintf(o.Dump, "# %s\n", stage)
	rtl.NewPrinter(o.Dump).PrintFunction(fn)
}

// Compile lowers, selects, allocates and frames fn in place. A broken
// internal invariant aborts the function with an error wrapping
// rtl.ErrInternal; no partial result is returned.
func Compile(fn *rtl.Function, opts Options) (res *Result, err error) {
	opts.defaults()
	defer func() {
		if err != nil {
			res = nil
		}
	}()
	defer rtl.Recover(&err)

	cfg := opts.Config
	log := opts.Logger.With(zap.String("function", fn.Name))
	res = &Result{Fn: fn}

	entry, err := abi.Lower(fn, abi.Options{Logger: log})
	if err != nil {
		return nil, err
	}
	res.Entry = entry
	opts.dump(cfg.Debug.ABI, "abi", fn)

	err = selection.Select(fn, opts.Rules, selection.Options{
		Logger:  log,
		NoMerge: !cfg.MergeTrees,
		NoFold:  !cfg.FoldConstants,
	})
	if err != nil {
		return nil, err
	}
	opts.dump(cfg.Debug.Select, "select", fn)

	info := liveness.Analyze(fn, liveness.Options{Logger: log})
	alloc, err := regalloc.Allocate(fn, info.Analysis, regalloc.Options{
		Logger:       log,
		IntRegisters: cfg.IntRegisters,
		SSERegisters: cfg.SSERegisters,
		NoPreferred:  !cfg.PreferredRegisters,
	})
	if err != nil {
		return nil, err
	}
	res.Allocation = alloc
	res.SpillCode = regalloc.InsertSpillCode(fn, log)
	opts.dump(cfg.Debug.RegAlloc, "regalloc", fn)

	res.Layout = stacking.Transform(fn, log)
	log.Debug("compiled",
		zap.Int("instructions", fn.Code.Len()),
		zap.Int("spilled", len(alloc.Spilled)),
		zap.Int("spill_code", res.SpillCode),
		zap.Int64("frame", res.Layout.FrameSize()))
	return res, nil
}

// CompileProgram compiles every function and assembles the result with the
// program's data symbols. It stops at the first failing function.
func CompileProgram(fns []*rtl.Function, globals []asm.GlobVar, opts Options) (*asm.Program, []*Result, error) {
	opts.defaults()
	var units []asmgen.Unit
	var results []*Result
	for _, fn := range fns {
		res, err := Compile(fn, opts)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", fn.Name, err)
		}
		results = append(results, res)
		units = append(units, asmgen.Unit{Fn: res.Fn, Layout: res.Layout})
	}
	prog, err := asmgen.TransformProgram(units, globals)
	if err != nil {
		return nil, nil, err
	}
	return prog, results, nil
}
