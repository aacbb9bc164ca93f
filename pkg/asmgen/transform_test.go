package asmgen

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/jainl28patel/xcc/pkg/ctypes"
	"github.com/jainl28patel/xcc/pkg/ir"
	"github.com/jainl28patel/xcc/pkg/irgen"
	"github.com/jainl28patel/xcc/pkg/lexer"
	"github.com/jainl28patel/xcc/pkg/parser"
	"github.com/jainl28patel/xcc/pkg/traverse"
	"gopkg.in/yaml.v3"
)

// E2EAsmTestSpec represents a single end-to-end assembly test case
type E2EAsmTestSpec struct {
	Name      string   `yaml:"name"`
	Input     string   `yaml:"input"`
	Expect    []string `yaml:"expect"`     // Strings that must appear in output
	ExpectNot []string `yaml:"expect_not"` // Strings that must NOT appear in output
	Skip      string   `yaml:"skip,omitempty"`
}

// E2EAsmTestFile represents the e2e_asm.yaml file structure
type E2EAsmTestFile struct {
	Tests []E2EAsmTestSpec `yaml:"tests"`
}

// compileToAsm runs the whole native pipeline on src and returns the
// emitted assembly, with ELF-style (non-Darwin) mangling for determinism.
func compileToAsm(t *testing.T, src string) string {
	t.Helper()
	l := lexer.New(src, "test.c")
	p := parser.New(lexer.NewStream(l), ctypes.NativeTarget)
	prog := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parser errors: %v", errs)
	}

	table := traverse.Build(prog)
	table.MarkAll()
	table.AssignIndices()

	gen := irgen.New(ctypes.NativeTarget, RegConfig(), table)
	var funcs []*irgen.Func
	for _, info := range table.Defined() {
		fn := gen.GenFunction(info.Def)
		fn.RA.Alloc(fn.Con, func(v *ir.VReg) {
			fn.FrameSize = (fn.FrameSize + 8 + 7) &^ 7
			v.FrameOffset = -fn.FrameSize
		})
		funcs = append(funcs, fn)
	}
	if errs := gen.Errors(); len(errs) > 0 {
		t.Fatalf("irgen errors: %v", errs)
	}

	var buf bytes.Buffer
	e := NewEmitterFor(&buf, ctypes.NativeTarget, false)
	e.EmitProgram(prog, gen, funcs)
	return buf.String()
}

func TestE2EAsmYAML(t *testing.T) {
	data, err := os.ReadFile("../../testdata/e2e_asm.yaml")
	if err != nil {
		t.Fatalf("failed to read e2e_asm.yaml: %v", err)
	}
	var testFile E2EAsmTestFile
	if err := yaml.Unmarshal(data, &testFile); err != nil {
		t.Fatalf("failed to parse e2e_asm.yaml: %v", err)
	}

	for _, tc := range testFile.Tests {
		t.Run(tc.Name, func(t *testing.T) {
			if tc.Skip != "" {
				t.Skip(tc.Skip)
			}
			asm := compileToAsm(t, tc.Input)
			for _, want := range tc.Expect {
				if !strings.Contains(asm, want) {
					t.Errorf("output missing %q:\n%s", want, asm)
				}
			}
			for _, not := range tc.ExpectNot {
				if strings.Contains(asm, not) {
					t.Errorf("output must not contain %q:\n%s", not, asm)
				}
			}
		})
	}
}

// TestEmitterIdempotence: running the whole pipeline twice on the same
// source produces byte-identical output.
func TestEmitterIdempotence(t *testing.T) {
	src := `
int g;
int fib(int n) { if (n < 2) return n; return fib(n - 1) + fib(n - 2); }
int main(void) { g = fib(10); return g; }`
	first := compileToAsm(t, src)
	second := compileToAsm(t, src)
	if first != second {
		t.Error("emitter output must be deterministic")
	}
}

func TestDarwinMangling(t *testing.T) {
	src := "int main(void) { return 0; }"
	l := lexer.New(src, "test.c")
	p := parser.New(lexer.NewStream(l), ctypes.NativeTarget)
	prog := p.ParseProgram()
	table := traverse.Build(prog)
	table.MarkAll()
	table.AssignIndices()
	gen := irgen.New(ctypes.NativeTarget, RegConfig(), table)
	var funcs []*irgen.Func
	for _, info := range table.Defined() {
		fn := gen.GenFunction(info.Def)
		fn.RA.Alloc(fn.Con, func(v *ir.VReg) {})
		funcs = append(funcs, fn)
	}

	var buf bytes.Buffer
	e := NewEmitterFor(&buf, ctypes.NativeTarget, true)
	e.EmitProgram(prog, gen, funcs)
	out := buf.String()
	if !strings.Contains(out, "_main:") {
		t.Error("Darwin symbols must carry the underscore prefix")
	}
	if !strings.Contains(out, ".globl\t_main") {
		t.Error("Darwin globl directive must use the mangled name")
	}
}

func TestCalleeSavedPrologue(t *testing.T) {
	// Enough live values to reach the callee-saved range.
	src := `
int f(int a, int b, int c) {
	int x = a * b;
	int y = b * c;
	int z = a * c;
	int w = x + y;
	return x + y + z + w + a + b + c;
}`
	asm := compileToAsm(t, src)
	if strings.Contains(asm, "pushq\t%rbx") {
		if !strings.Contains(asm, "popq\t%rbx") {
			t.Error("pushed callee-saved registers must be popped")
		}
	}
}

func TestRegNames(t *testing.T) {
	if regName(2, 8) != "%rdi" || regName(2, 4) != "%edi" || regName(2, 1) != "%dil" {
		t.Error("rdi family misnamed")
	}
	if regName(0, 8) != "%r10" || regName(0, 2) != "%r10w" {
		t.Error("r10 family misnamed")
	}
	if xmmName(3) != "%xmm3" {
		t.Error("xmm naming")
	}
}
