// Package config holds the backend options. Defaults are overridden by a
// TOML file, then by RALPH_CG_* environment variables, then by command-line
// flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/xyproto/env/v2"

	"github.com/raymyers/ralph-cg/pkg/x86"
)

var (
	// ErrUnknownKey is returned for a configuration key no option reads.
	ErrUnknownKey = errors.New("unknown configuration key")
	// ErrInvalid is returned for an option value out of range.
	ErrInvalid = errors.New("invalid option")
)

// EnvPrefix starts every environment override.
const EnvPrefix = "RALPH_CG_"

// Options configures one run of the backend.
type Options struct {
	// IntRegisters and SSERegisters bound the colors the allocator may use.
	IntRegisters int `toml:"int_registers"`
	SSERegisters int `toml:"sse_registers"`
	// PreferredRegisters honours register hints when coloring.
	PreferredRegisters bool `toml:"preferred_registers"`
	// MergeTrees merges single-use definitions into their users before
	// tiling.
	MergeTrees bool `toml:"merge_trees"`
	// FoldConstants folds operations on constants during selection.
	FoldConstants bool  `toml:"fold_constants"`
	Debug         Debug `toml:"debug"`
	Verbose       bool  `toml:"verbose"`
}

// Debug selects the intermediate dumps to print.
type Debug struct {
	Select   bool `toml:"select"`
	RegAlloc bool `toml:"regalloc"`
	Rules    bool `toml:"rules"`
	ABI      bool `toml:"abi"`
}

// Defaults returns the options used when nothing overrides them.
func Defaults() Options {
	return Options{
		IntRegisters:       len(x86.Allocatable(x86.ClassInt)),
		SSERegisters:       len(x86.Allocatable(x86.ClassSSE)),
		PreferredRegisters: true,
		MergeTrees:         true,
		FoldConstants:      true,
	}
}

// Load returns the defaults overridden by the TOML file at path, if path is
// not empty, and then by the environment.
func Load(path string) (Options, error) {
	o := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return o, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := Decode(data, &o); err != nil {
			return o, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := ApplyEnv(&o); err != nil {
		return o, err
	}
	return o, o.Validate()
}

// Decode overlays the TOML document data on o. Keys no option reads are
// rejected.
func Decode(data []byte, o *Options) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(o); err != nil {
		var missing *toml.StrictMissingError
		if errors.As(err, &missing) {
			return fmt.Errorf("%w: %s", ErrUnknownKey, strings.TrimSpace(missing.String()))
		}
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// Encode renders o as a TOML document.
func Encode(o Options) ([]byte, error) {
	return toml.Marshal(o)
}

// ApplyEnv overlays the RALPH_CG_* environment variables on o. RALPH_CG_DEBUG
// is a comma-separated list of dump names. The environment is read afresh on
// every call.
func ApplyEnv(o *Options) error {
	env.Load()
	ints := []struct {
		name string
		dst  *int
	}{
		{"INT_REGISTERS", &o.IntRegisters},
		{"SSE_REGISTERS", &o.SSERegisters},
	}
	for _, v := range ints {
		if env.Has(EnvPrefix + v.name) {
			*v.dst = env.Int(EnvPrefix+v.name, *v.dst)
		}
	}
	bools := []struct {
		name string
		dst  *bool
	}{
		{"PREFERRED_REGISTERS", &o.PreferredRegisters},
		{"MERGE_TREES", &o.MergeTrees},
		{"FOLD_CONSTANTS", &o.FoldConstants},
		{"VERBOSE", &o.Verbose},
	}
	for _, v := range bools {
		if env.Has(EnvPrefix + v.name) {
			*v.dst = env.Bool(EnvPrefix + v.name)
		}
	}
	if list := env.Str(EnvPrefix + "DEBUG"); list != "" {
		for _, name := range strings.Split(list, ",") {
			if err := o.Debug.Enable(strings.TrimSpace(name)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Enable turns on the dump called name.
func (d *Debug) Enable(name string) error {
	switch name {
	case "select":
		d.Select = true
	case "regalloc":
		d.RegAlloc = true
	case "rules":
		d.Rules = true
	case "abi":
		d.ABI = true
	default:
		return fmt.Errorf("%w: debug dump %q", ErrUnknownKey, name)
	}
	return nil
}

// Validate checks the register budgets against the register file.
func (o Options) Validate() error {
	if n := len(x86.Allocatable(x86.ClassInt)); o.IntRegisters < 1 || o.IntRegisters > n {
		return fmt.Errorf("%w: int_registers %d not in 1..%d", ErrInvalid, o.IntRegisters, n)
	}
	if n := len(x86.Allocatable(x86.ClassSSE)); o.SSERegisters < 1 || o.SSERegisters > n {
		return fmt.Errorf("%w: sse_registers %d not in 1..%d", ErrInvalid, o.SSERegisters, n)
	}
	return nil
}
