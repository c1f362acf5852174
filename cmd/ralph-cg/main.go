package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/raymyers/ralph-cg/pkg/asm"
	"github.com/raymyers/ralph-cg/pkg/backend"
	"github.com/raymyers/ralph-cg/pkg/config"
	"github.com/raymyers/ralph-cg/pkg/ctypes"
	"github.com/raymyers/ralph-cg/pkg/fixture"
	"github.com/raymyers/ralph-cg/pkg/rules"
)

var version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	// Accept single-dash dump flags such as -dselect
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ralph-cg: %v\n", err)
		return 1
	}
	return 0
}

// debugFlagNames lists the dump flags accepted with a single dash.
var debugFlagNames = []string{"dselect", "dregalloc", "drules", "dabi"}

// normalizeFlags converts single-dash dump flags like -dselect to --dselect
func normalizeFlags(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		result[i] = arg
		for _, flagName := range debugFlagNames {
			if arg == "-"+flagName {
				result[i] = "--" + flagName
				break
			}
		}
	}
	return result
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	var configPath, outputPath string
	rootCmd := &cobra.Command{
		Use:   "ralph-cg [file.yaml]",
		Short: "ralph-cg is an x86-64 code generator for a register-transfer IR",
		Long: `ralph-cg lowers functions written in a small register-transfer IR
to x86-64 assembly: System V calling convention, tree-tiling instruction
selection and graph-coloring register allocation with spill code.
Functions are read from a YAML fixture.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := config.ApplyFlags(cmd.Flags(), &opts); err != nil {
				return err
			}

			set := rules.X86()
			if err := set.Check(); err != nil {
				return err
			}
			if opts.Debug.Rules {
				set.Fprint(out)
			}
			if len(args) == 0 {
				if !opts.Debug.Rules {
					return cmd.Help()
				}
				return nil
			}

			w := out
			if outputPath != "" {
				f, err := os.Create(outputPath)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := compileFile(args[0], w, out, errOut, opts, set); err != nil {
				return err
			}
			if opts.Debug.Rules {
				printUnused(out, set)
			}
			return nil
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	config.RegisterFlags(rootCmd.Flags())
	rootCmd.Flags().StringVar(&configPath, "config", "", "TOML options file")
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "write assembly to this file instead of stdout")
	return rootCmd
}

// compileFile compiles every function of the fixture at path and writes the
// assembly to w. Dumps go to dump and traces to errOut.
func compileFile(path string, w, dump, errOut io.Writer, opts config.Options, set *rules.Set) error {
	prog, err := fixture.LoadFile(path)
	if err != nil {
		return err
	}
	log := config.NewLogger(opts.Verbose, errOut)
	defer log.Sync()

	out, _, err := backend.CompileProgram(prog.Functions, dataSymbols(prog.Globals), backend.Options{
		Config: opts,
		Logger: log,
		Rules:  set,
		Dump:   dump,
	})
	if err != nil {
		return err
	}
	asm.NewPrinter(w).PrintProgram(out)
	return nil
}

func dataSymbols(globals []fixture.GlobalSymbol) []asm.GlobVar {
	var out []asm.GlobVar
	for _, g := range globals {
		out = append(out, asm.GlobVar{
			Name:  g.Name,
			Size:  ctypes.Sizeof(g.Type),
			Align: int(ctypes.Alignof(g.Type)),
			Init:  g.Init,
		})
	}
	return out
}

func printUnused(w io.Writer, set *rules.Set) {
	used, total := set.Coverage()
	fmt.Fprintf(w, "# %d of %d rules used\n", used, total)
	for _, r := range set.Unused() {
		fmt.Fprintf(w, "# unused: %s\n", r)
	}
}
