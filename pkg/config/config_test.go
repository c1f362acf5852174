package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestDefaults(t *testing.T) {
	o := Defaults()
	if o.IntRegisters != 12 || o.SSERegisters != 14 {
		t.Errorf("budgets = %d, %d, want 12, 14", o.IntRegisters, o.SSERegisters)
	}
	if !o.PreferredRegisters || !o.MergeTrees || !o.FoldConstants {
		t.Errorf("optimisations should default on: %+v", o)
	}
	if err := o.Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func TestDecode(t *testing.T) {
	doc := `
int_registers = 4
merge_trees = false

[debug]
select = true
`
	o := Defaults()
	if err := Decode([]byte(doc), &o); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if o.IntRegisters != 4 || o.MergeTrees || !o.Debug.Select {
		t.Errorf("unexpected options %+v", o)
	}
	if o.SSERegisters != 14 || !o.FoldConstants {
		t.Errorf("keys absent from the file should keep their defaults: %+v", o)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		unknown bool
	}{
		{"unknown key", "colour = 1\n", true},
		{"unknown debug dump", "[debug]\nliveness = true\n", true},
		{"wrong type", "int_registers = \"many\"\n", false},
		{"syntax", "int_registers = \n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := Defaults()
			err := Decode([]byte(tt.doc), &o)
			if err == nil {
				t.Fatal("expected an error")
			}
			if errors.Is(err, ErrUnknownKey) != tt.unknown {
				t.Errorf("ErrUnknownKey = %v, want %v: %v", errors.Is(err, ErrUnknownKey), tt.unknown, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ralph-cg.toml")
	if err := os.WriteFile(path, []byte("int_registers = 4\nsse_registers = 8\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RALPH_CG_SSE_REGISTERS", "3")
	t.Setenv("RALPH_CG_FOLD_CONSTANTS", "false")

	o, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if o.IntRegisters != 4 {
		t.Errorf("IntRegisters = %d, want 4 from the file", o.IntRegisters)
	}
	if o.SSERegisters != 3 {
		t.Errorf("SSERegisters = %d, want 3 from the environment", o.SSERegisters)
	}
	if o.FoldConstants {
		t.Errorf("FoldConstants should be off")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestApplyEnvDebug(t *testing.T) {
	t.Setenv("RALPH_CG_DEBUG", "select, abi")
	o := Defaults()
	if err := ApplyEnv(&o); err != nil {
		t.Fatal(err)
	}
	if !o.Debug.Select || !o.Debug.ABI || o.Debug.RegAlloc || o.Debug.Rules {
		t.Errorf("unexpected dumps %+v", o.Debug)
	}

	t.Setenv("RALPH_CG_DEBUG", "everything")
	if err := ApplyEnv(&o); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("expected ErrUnknownKey, got %v", err)
	}
}

func TestApplyEnvSeesLaterChanges(t *testing.T) {
	o := Defaults()
	t.Setenv("RALPH_CG_INT_REGISTERS", "5")
	if err := ApplyEnv(&o); err != nil {
		t.Fatal(err)
	}
	if o.IntRegisters != 5 {
		t.Fatalf("IntRegisters = %d, want 5", o.IntRegisters)
	}

	t.Setenv("RALPH_CG_INT_REGISTERS", "7")
	t.Setenv("RALPH_CG_MERGE_TREES", "false")
	if err := ApplyEnv(&o); err != nil {
		t.Fatal(err)
	}
	if o.IntRegisters != 7 {
		t.Errorf("IntRegisters = %d, want 7 after the variable changed", o.IntRegisters)
	}
	if o.MergeTrees {
		t.Errorf("MergeTrees should be off")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name             string
		intRegs, sseRegs int
		ok               bool
	}{
		{"defaults", 12, 14, true},
		{"small", 1, 1, true},
		{"no integer registers", 0, 14, false},
		{"too many integer registers", 13, 14, false},
		{"too many SSE registers", 12, 15, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := Defaults()
			o.IntRegisters, o.SSERegisters = tt.intRegs, tt.sseRegs
			err := o.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestApplyFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse([]string{"--int-registers=5", "--dselect", "--merge-trees=false"}); err != nil {
		t.Fatal(err)
	}
	o := Defaults()
	o.SSERegisters = 3 // as read from a file
	if err := ApplyFlags(fs, &o); err != nil {
		t.Fatalf("ApplyFlags: %v", err)
	}
	if o.IntRegisters != 5 || !o.Debug.Select || o.MergeTrees {
		t.Errorf("flags not applied: %+v", o)
	}
	if o.SSERegisters != 3 {
		t.Errorf("an unset flag overrode the file value: %d", o.SSERegisters)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(false, &buf).Debug("quiet")
	if buf.Len() != 0 {
		t.Errorf("no-op logger wrote %q", buf.String())
	}
	NewLogger(true, &buf).Debug("traced")
	if !strings.Contains(buf.String(), "traced") {
		t.Errorf("verbose logger output %q", buf.String())
	}
}
