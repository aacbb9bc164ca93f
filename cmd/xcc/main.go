// Command xcc compiles a C-subset translation unit to System-V x86-64
// assembly or to a WebAssembly module.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jainl28patel/xcc/pkg/asmgen"
	"github.com/jainl28patel/xcc/pkg/cabs"
	"github.com/jainl28patel/xcc/pkg/ctypes"
	"github.com/jainl28patel/xcc/pkg/ir"
	"github.com/jainl28patel/xcc/pkg/irgen"
	"github.com/jainl28patel/xcc/pkg/lexer"
	"github.com/jainl28patel/xcc/pkg/parser"
	"github.com/jainl28patel/xcc/pkg/traverse"
	"github.com/jainl28patel/xcc/pkg/wasmgen"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

var (
	outputPath string
	exportList string
	targetName string
	verbose    bool
)

// ErrCompileFailed reports that diagnostics were emitted; details have
// already been printed.
var ErrCompileFailed = errors.New("compilation failed")

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

// normalizeFlags converts the original driver's glued single-dash options
// (-efoo,bar and -opath) to pflag-compatible forms.
func normalizeFlags(args []string) []string {
	result := make([]string, 0, len(args))
	for _, arg := range args {
		switch {
		case strings.HasPrefix(arg, "-e") && len(arg) > 2 && arg[1] != '-':
			result = append(result, "--export="+arg[2:])
		case strings.HasPrefix(arg, "-o") && len(arg) > 2 && arg[1] != '-':
			result = append(result, "--output="+arg[2:])
		default:
			result = append(result, arg)
		}
	}
	return result
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "xcc [file...]",
		Short: "xcc compiles a C subset to x86-64 assembly or WebAssembly",
		Long: `xcc is a small C compiler with two backends: native System-V
x86-64 assembly text, and a binary WebAssembly module emitted directly
from the AST. Input files are concatenated into one translation unit;
"-" or no arguments reads from standard input.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return compile(args, out, errOut)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file (default a.s or a.wasm)")
	rootCmd.Flags().StringVarP(&exportList, "export", "e", "", "Comma-separated symbols to export (wasm)")
	rootCmd.Flags().StringVar(&targetName, "target", "native", "Target backend: native or wasm")
	rootCmd.Flags().BoolVar(&verbose, "verbose", false, "Emit progress diagnostics to stderr")

	return rootCmd
}

func compile(args []string, out, errOut io.Writer) error {
	var target ctypes.Target
	switch targetName {
	case "native":
		target = ctypes.NativeTarget
	case "wasm":
		target = ctypes.WasmTarget
	default:
		fmt.Fprintf(errOut, "xcc: unknown target %q\n", targetName)
		return ErrCompileFailed
	}

	var exports []string
	if exportList != "" {
		exports = strings.Split(exportList, ",")
	}
	if targetName == "wasm" && len(exports) == 0 {
		fmt.Fprintf(errOut, "xcc: no exports (require -e<xxx>)\n")
		return ErrCompileFailed
	}

	lex, err := readSources(args, errOut)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Fprintf(errOut, "xcc: parsing\n")
	}
	p := parser.New(lexer.NewStream(lex), target)
	prog := p.ParseProgram()
	if diags := p.Errors(); len(diags) > 0 {
		reportDiags(errOut, diags)
		return ErrCompileFailed
	}

	table := traverse.Build(prog)
	if targetName == "wasm" {
		table.MarkExports(exports)
	} else {
		table.MarkAll()
	}
	table.AssignIndices()
	if diags := table.Errors(); len(diags) > 0 {
		reportDiags(errOut, diags)
		return ErrCompileFailed
	}

	output := outputPath
	if output == "" {
		if targetName == "wasm" {
			output = "a.wasm"
		} else {
			output = "a.s"
		}
	}

	if targetName == "wasm" {
		return compileWasm(prog, table, target, exports, output, errOut)
	}
	return compileNative(prog, table, target, output, errOut)
}

// readSources builds the lexer's logical source stack from the input
// paths; "-" or an empty list reads standard input.
func readSources(args []string, errOut io.Writer) (*lexer.Lexer, error) {
	if len(args) == 0 {
		args = []string{"-"}
	}
	var lex *lexer.Lexer
	for _, path := range args {
		var content []byte
		var err error
		name := path
		if path == "-" {
			content, err = io.ReadAll(os.Stdin)
			name = "*stdin*"
		} else {
			content, err = os.ReadFile(path)
		}
		if err != nil {
			fmt.Fprintf(errOut, "xcc: cannot open file: %s\n", path)
			return nil, ErrCompileFailed
		}
		if lex == nil {
			lex = lexer.New(string(content), name)
		} else {
			lex.PushSource(string(content), name)
		}
	}
	return lex, nil
}

func reportDiags(errOut io.Writer, diags []string) {
	for _, d := range diags {
		fmt.Fprintln(errOut, d)
	}
	fmt.Fprintf(errOut, "xcc: %d error(s)\n", len(diags))
}

func compileNative(prog *cabs.Program, table *traverse.Table, target ctypes.Target, output string, errOut io.Writer) error {
	cfg := asmgen.RegConfig()
	gen := irgen.New(target, cfg, table)

	var funcs []*irgen.Func
	for _, info := range table.Defined() {
		if verbose {
			fmt.Fprintf(errOut, "xcc: compiling %s\n", info.Name)
		}
		fn := gen.GenFunction(info.Def)
		allocRegisters(fn)
		if verbose {
			ir.NewPrinter(errOut).PrintFunction(fn.Con)
		}
		funcs = append(funcs, fn)
	}
	if diags := gen.Errors(); len(diags) > 0 {
		reportDiags(errOut, diags)
		return ErrCompileFailed
	}

	f, err := os.Create(output)
	if err != nil {
		fmt.Fprintf(errOut, "xcc: cannot open output file: %s\n", output)
		return ErrCompileFailed
	}
	defer f.Close()

	e := asmgen.NewEmitter(f, target)
	e.EmitProgram(prog, gen, funcs)
	return nil
}

// allocRegisters runs linear scan for one function; newly spilled vregs
// get frame slots below the locals.
func allocRegisters(fn *irgen.Func) {
	fn.RA.Alloc(fn.Con, func(v *ir.VReg) {
		size := v.VT.Size
		if size < 8 {
			size = 8
		}
		fn.FrameSize = (fn.FrameSize + size + 7) &^ 7
		v.FrameOffset = -fn.FrameSize
	})
}

func compileWasm(prog *cabs.Program, table *traverse.Table, target ctypes.Target, exports []string, output string, errOut io.Writer) error {
	gen := wasmgen.New(target, table)
	gen.GenProgram(prog)
	if diags := gen.Errors(); len(diags) > 0 {
		reportDiags(errOut, diags)
		return ErrCompileFailed
	}

	f, err := os.Create(output)
	if err != nil {
		fmt.Fprintf(errOut, "xcc: cannot open output file: %s\n", output)
		return ErrCompileFailed
	}
	defer f.Close()

	if err := gen.EmitModule(f, exports); err != nil {
		fmt.Fprintf(errOut, "xcc: write error: %v\n", err)
		return ErrCompileFailed
	}
	return nil
}
