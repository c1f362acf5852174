package config

import (
	"github.com/spf13/pflag"
)

// RegisterFlags defines a flag for every option on fs, with the defaults as
// flag defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.Int("int-registers", d.IntRegisters, "number of integer registers available to the allocator")
	fs.Int("sse-registers", d.SSERegisters, "number of SSE registers available to the allocator")
	fs.Bool("preferred-registers", d.PreferredRegisters, "honour register hints when coloring")
	fs.Bool("merge-trees", d.MergeTrees, "merge single-use definitions into their users before tiling")
	fs.Bool("fold-constants", d.FoldConstants, "fold operations on constants")
	fs.Bool("dselect", false, "dump code after instruction selection")
	fs.Bool("dregalloc", false, "dump code after register allocation")
	fs.Bool("drules", false, "dump the rule table")
	fs.Bool("dabi", false, "dump code after calling-convention lowering")
	fs.BoolP("verbose", "v", false, "trace passes on stderr")
}

// ApplyFlags overlays the flags the user set on o. Flags left at their
// default do not override file or environment values.
func ApplyFlags(fs *pflag.FlagSet, o *Options) error {
	ints := map[string]*int{
		"int-registers": &o.IntRegisters,
		"sse-registers": &o.SSERegisters,
	}
	for name, dst := range ints {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetInt(name)
		if err != nil {
			return err
		}
		*dst = v
	}
	bools := map[string]*bool{
		"preferred-registers": &o.PreferredRegisters,
		"merge-trees":         &o.MergeTrees,
		"fold-constants":      &o.FoldConstants,
		"dselect":             &o.Debug.Select,
		"dregalloc":           &o.Debug.RegAlloc,
		"drules":              &o.Debug.Rules,
		"dabi":                &o.Debug.ABI,
		"verbose":             &o.Verbose,
	}
	for name, dst := range bools {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetBool(name)
		if err != nil {
			return err
		}
		*dst = v
	}
	return o.Validate()
}
