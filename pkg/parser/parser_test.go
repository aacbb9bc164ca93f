package parser

import (
	"os"
	"testing"

	"github.com/jainl28patel/xcc/pkg/cabs"
	"github.com/jainl28patel/xcc/pkg/ctypes"
	"github.com/jainl28patel/xcc/pkg/lexer"
	"github.com/jainl28patel/xcc/pkg/traverse"
	"gopkg.in/yaml.v3"
)

// TestSpec represents a test case from parse.yaml
type TestSpec struct {
	Name  string  `yaml:"name"`
	Input string  `yaml:"input"`
	AST   ASTSpec `yaml:"ast"`
}

// ASTSpec represents the expected AST structure
type ASTSpec struct {
	Kind       string    `yaml:"kind"`
	Name       string    `yaml:"name,omitempty"`
	ReturnType string    `yaml:"return_type,omitempty"`
	Body       *ASTSpec  `yaml:"body,omitempty"`
	Items      []ASTSpec `yaml:"items,omitempty"`
	Expr       *ASTSpec  `yaml:"expr,omitempty"`
	Left       *ASTSpec  `yaml:"left,omitempty"`
	Right      *ASTSpec  `yaml:"right,omitempty"`
	Op         string    `yaml:"op,omitempty"`
	Value      *int64    `yaml:"value,omitempty"`
}

// TestFile represents the parse.yaml file structure
type TestFile struct {
	Tests []TestSpec `yaml:"tests"`
}

func parseSource(t *testing.T, input string) (*cabs.Program, *Parser) {
	t.Helper()
	l := lexer.New(input, "test.c")
	p := New(lexer.NewStream(l), ctypes.NativeTarget)
	prog := p.ParseProgram()
	return prog, p
}

func parseOK(t *testing.T, input string) *cabs.Program {
	t.Helper()
	prog, p := parseSource(t, input)
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parser errors: %v", errs)
	}
	return prog
}

func lastFunDef(t *testing.T, prog *cabs.Program) *cabs.FunDef {
	t.Helper()
	var fd *cabs.FunDef
	for _, d := range prog.Decls {
		if f, ok := d.(*cabs.FunDef); ok {
			fd = f
		}
	}
	if fd == nil {
		t.Fatal("no function definition parsed")
	}
	return fd
}

func TestParseYAML(t *testing.T) {
	data, err := os.ReadFile("../../testdata/parse.yaml")
	if err != nil {
		t.Fatalf("failed to read parse.yaml: %v", err)
	}

	var testFile TestFile
	if err := yaml.Unmarshal(data, &testFile); err != nil {
		t.Fatalf("failed to parse parse.yaml: %v", err)
	}

	for _, tc := range testFile.Tests {
		t.Run(tc.Name, func(t *testing.T) {
			prog := parseOK(t, tc.Input)
			fd := lastFunDef(t, prog)
			verifyAST(t, fd, tc.AST)
		})
	}
}

func verifyAST(t *testing.T, node cabs.Node, spec ASTSpec) {
	t.Helper()

	switch spec.Kind {
	case "FunDef":
		fd, ok := node.(*cabs.FunDef)
		if !ok {
			t.Fatalf("expected FunDef, got %T", node)
		}
		if spec.Name != "" && fd.Name != spec.Name {
			t.Errorf("FunDef.Name: expected %q, got %q", spec.Name, fd.Name)
		}
		if spec.ReturnType != "" && fd.Type.Return.String() != spec.ReturnType {
			t.Errorf("FunDef return type: expected %q, got %q", spec.ReturnType, fd.Type.Return)
		}
		if spec.Body != nil {
			verifyAST(t, fd.Body, *spec.Body)
		}

	case "Block":
		block, ok := node.(*cabs.Block)
		if !ok {
			t.Fatalf("expected Block, got %T", node)
		}
		if len(spec.Items) != 0 && len(spec.Items) != len(block.Items) {
			t.Fatalf("Block.Items: expected %d items, got %d", len(spec.Items), len(block.Items))
		}
		for i, itemSpec := range spec.Items {
			verifyAST(t, block.Items[i], itemSpec)
		}

	case "Return":
		ret, ok := node.(*cabs.Return)
		if !ok {
			t.Fatalf("expected Return, got %T", node)
		}
		if spec.Expr != nil {
			verifyAST(t, ret.Value, *spec.Expr)
		}

	case "If":
		ifs, ok := node.(*cabs.If)
		if !ok {
			t.Fatalf("expected If, got %T", node)
		}
		if spec.Expr != nil {
			verifyAST(t, ifs.Cond, *spec.Expr)
		}
		if spec.Body != nil {
			verifyAST(t, ifs.Then, *spec.Body)
		}

	case "While":
		wh, ok := node.(*cabs.While)
		if !ok {
			t.Fatalf("expected While, got %T", node)
		}
		if spec.Expr != nil {
			verifyAST(t, wh.Cond, *spec.Expr)
		}

	case "VarDecl":
		vd, ok := node.(*cabs.VarDecl)
		if !ok {
			t.Fatalf("expected VarDecl, got %T", node)
		}
		if spec.Name != "" && (len(vd.Decls) == 0 || vd.Decls[0].Name != spec.Name) {
			t.Errorf("VarDecl: expected %q", spec.Name)
		}

	case "Binary":
		bin, ok := node.(*cabs.Binary)
		if !ok {
			t.Fatalf("expected Binary, got %T", node)
		}
		if spec.Op != "" && bin.Op.String() != spec.Op {
			t.Errorf("Binary.Op: expected %q, got %q", spec.Op, bin.Op)
		}
		if spec.Left != nil {
			verifyAST(t, bin.Left, *spec.Left)
		}
		if spec.Right != nil {
			verifyAST(t, bin.Right, *spec.Right)
		}

	case "IntLit":
		lit, ok := node.(*cabs.IntLit)
		if !ok {
			t.Fatalf("expected IntLit, got %T", node)
		}
		if spec.Value != nil && lit.Value != *spec.Value {
			t.Errorf("IntLit.Value: expected %d, got %d", *spec.Value, lit.Value)
		}

	case "Var":
		v, ok := node.(*cabs.Var)
		if !ok {
			t.Fatalf("expected Var, got %T", node)
		}
		if spec.Name != "" && v.Name != spec.Name {
			t.Errorf("Var.Name: expected %q, got %q", spec.Name, v.Name)
		}

	case "Deref":
		if _, ok := node.(*cabs.Deref); !ok {
			t.Fatalf("expected Deref, got %T", node)
		}

	case "Call":
		call, ok := node.(*cabs.Call)
		if !ok {
			t.Fatalf("expected Call, got %T", node)
		}
		if spec.Name != "" {
			fn := call.Fn
			if c, isCast := fn.(*cabs.Cast); isCast {
				fn = c.Sub
			}
			v, isVar := fn.(*cabs.Var)
			if !isVar || v.Name != spec.Name {
				t.Errorf("Call callee: expected %q", spec.Name)
			}
		}

	default:
		t.Fatalf("unknown AST spec kind %q", spec.Kind)
	}
}

// findBinary locates the first binary node with the given operator in a
// function body.
func findBinary(fd *cabs.FunDef, op cabs.BinaryOp) *cabs.Binary {
	var found *cabs.Binary
	traverse.WalkStmt(fd.Body, func(e cabs.Expr) {
		if b, ok := e.(*cabs.Binary); ok && b.Op == op && found == nil {
			found = b
		}
	})
	return found
}

// TestUsualArithmeticConversions checks the type of every inserted cast
// for mixed-type operands.
func TestUsualArithmeticConversions(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		common string
	}{
		{"int+long", "void f(int a, long b) { a + b; }", "long"},
		{"char+int", "void f(char a, int b) { a + b; }", "int"},
		{"int+unsigned", "void f(int a, unsigned int b) { a + b; }", "unsigned int"},
		{"int+double", "void f(int a, double b) { a + b; }", "double"},
		{"float+int", "void f(float a, int b) { a + b; }", "float"},
		{"float+double", "void f(float a, double b) { a + b; }", "double"},
		{"unsigned+long", "void f(unsigned int a, long b) { a + b; }", "long"},
		{"unsignedlong+long", "void f(unsigned long a, long b) { a + b; }", "unsigned long"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			prog := parseOK(t, tc.src)
			bin := findBinary(lastFunDef(t, prog), cabs.OpAdd)
			if bin == nil {
				t.Fatal("no + node found")
			}
			if bin.Type().String() != tc.common {
				t.Errorf("result type: expected %s, got %s", tc.common, bin.Type())
			}
			if bin.Left.Type().String() != tc.common || bin.Right.Type().String() != tc.common {
				t.Errorf("operands must be converted to %s, got %s and %s",
					tc.common, bin.Left.Type(), bin.Right.Type())
			}
		})
	}
}

func TestImplicitCastNodesInserted(t *testing.T) {
	prog := parseOK(t, "void f(int a, long b) { a + b; }")
	bin := findBinary(lastFunDef(t, prog), cabs.OpAdd)
	cast, ok := bin.Left.(*cabs.Cast)
	if !ok {
		t.Fatalf("expected the int operand to be wrapped in a cast, got %T", bin.Left)
	}
	if !cast.Implicit {
		t.Error("the inserted cast must be implicit")
	}
	if cast.Sub.Type().String() != "int" || cast.Type().String() != "long" {
		t.Errorf("cast: %s -> %s", cast.Sub.Type(), cast.Type())
	}
}

func TestPointerArithmeticScaling(t *testing.T) {
	prog := parseOK(t, "int f(int *p, int i) { return *(p + i); }")
	bin := findBinary(lastFunDef(t, prog), cabs.OpAdd)
	if bin == nil {
		t.Fatal("no + node found")
	}
	if bin.Type().String() != "int*" {
		t.Errorf("pointer add type: got %s", bin.Type())
	}
	// The integer side must contain a multiplication by sizeof(int).
	mul := findBinary(lastFunDef(t, prog), cabs.OpMul)
	if mul == nil {
		t.Fatal("offset was not scaled")
	}
	lit, ok := mul.Right.(*cabs.IntLit)
	if !ok || lit.Value != 4 {
		t.Errorf("scale factor: expected 4, got %v", mul.Right)
	}
}

func TestPointerDifference(t *testing.T) {
	prog := parseOK(t, "long f(int *a, int *b) { return a - b; }")
	div := findBinary(lastFunDef(t, prog), cabs.OpDiv)
	if div == nil {
		t.Fatal("pointer difference must divide by the element size")
	}
	lit, ok := div.Right.(*cabs.IntLit)
	if !ok || lit.Value != 4 {
		t.Errorf("divisor: expected 4, got %v", div.Right)
	}
	if div.Type().String() != "long" {
		t.Errorf("difference type: got %s", div.Type())
	}
}

func TestConstantFolding(t *testing.T) {
	tests := []struct {
		src   string
		value int64
	}{
		{"int f(void) { return 2 + 3 * 4; }", 14},
		{"int f(void) { return (10 - 4) / 3; }", 2},
		{"int f(void) { return 1 << 5; }", 32},
		{"int f(void) { return 0x0f & 0x3c; }", 12},
		{"int f(void) { return 5 > 3; }", 1},
		{"int f(void) { return 1 && 0; }", 0},
		{"int f(void) { return -(-7); }", 7},
		{"int f(void) { return sizeof(long); }", 8},
		{"int f(void) { return 1 ? 11 : 22; }", 11},
	}
	for _, tc := range tests {
		t.Run(tc.src, func(t *testing.T) {
			prog := parseOK(t, tc.src)
			fd := lastFunDef(t, prog)
			ret := fd.Body.Items[0].(*cabs.Return)
			lit, ok := ret.Value.(*cabs.IntLit)
			if !ok {
				t.Fatalf("expected a folded literal, got %T", ret.Value)
			}
			if lit.Value != tc.value {
				t.Errorf("expected %d, got %d", tc.value, lit.Value)
			}
		})
	}
}

func TestEnumMembersAreConstants(t *testing.T) {
	prog := parseOK(t, "enum color { RED, GREEN = 5, BLUE }; int f(void) { return BLUE; }")
	fd := lastFunDef(t, prog)
	ret := fd.Body.Items[0].(*cabs.Return)
	lit, ok := ret.Value.(*cabs.IntLit)
	if !ok || lit.Value != 6 {
		t.Errorf("expected BLUE to fold to 6, got %v", ret.Value)
	}
}

func TestLvalueDiagnostics(t *testing.T) {
	tests := []string{
		"void f(void) { 1 = 2; }",
		"void f(int a) { (a + 1) = 2; }",
		"void f(void) { &3; }",
		"void f(int a) { (a + 1)++; }",
	}
	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			_, p := parseSource(t, src)
			if len(p.Errors()) == 0 {
				t.Error("expected a diagnostic")
			}
		})
	}
}

func TestSemanticDiagnostics(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"undeclared", "int f(void) { return nope; }"},
		{"redefinition", "int f(void) { int a; int a; return 0; }"},
		{"bad call", "int f(void) { int x; return x(); }"},
		{"unknown member", "struct s { int a; }; int f(struct s v) { return v.b; }"},
		{"void return value", "void f(void) { return 3; }"},
		{"missing return value", "int f(void) { return; }"},
		{"too many args", "int g(int a); int f(void) { return g(1, 2); }"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, p := parseSource(t, tc.src)
			if len(p.Errors()) == 0 {
				t.Error("expected a diagnostic")
			}
		})
	}
}

func TestSyntaxErrorPosition(t *testing.T) {
	src := "int f(void) {\nint a;\nint b\nreturn 0;\n}"
	_, p := parseSource(t, src)
	if len(p.Errors()) == 0 {
		t.Fatal("expected a syntax error")
	}
	if got := p.Errors()[0]; len(got) < 8 || got[:7] != "test.c:" {
		t.Errorf("diagnostic must be pinned to file:line:column, got %q", got)
	}
}

func TestErrorRecovery(t *testing.T) {
	// A bad declaration must not prevent the next one from parsing.
	src := "int broken(void) { int x = ; return 0; }\nint ok(void) { return 1; }"
	prog, p := parseSource(t, src)
	if len(p.Errors()) == 0 {
		t.Fatal("expected diagnostics")
	}
	found := false
	for _, d := range prog.Decls {
		if fd, ok := d.(*cabs.FunDef); ok && fd.Name == "ok" {
			found = true
		}
	}
	if !found {
		t.Error("parser must resynchronize and parse the following definition")
	}
}

func TestArrayDecayExceptUnderSizeof(t *testing.T) {
	prog := parseOK(t, "int f(void) { int a[8]; return sizeof(a); }")
	fd := lastFunDef(t, prog)
	ret := fd.Body.Items[1].(*cabs.Return)
	v := ret.Value
	if c, ok := v.(*cabs.Cast); ok {
		v = c.Sub
	}
	lit, ok := v.(*cabs.IntLit)
	if !ok || lit.Value != 32 {
		t.Errorf("sizeof(a): expected 32, got %v", ret.Value)
	}
}

func TestStringConcatenation(t *testing.T) {
	prog := parseOK(t, `char *s(void) { return "foo" "bar"; }`)
	fd := lastFunDef(t, prog)
	ret := fd.Body.Items[0].(*cabs.Return)
	v := ret.Value
	if c, ok := v.(*cabs.Cast); ok {
		v = c.Sub
	}
	str, ok := v.(*cabs.StrLit)
	if !ok || str.Value != "foobar" {
		t.Errorf("expected concatenated literal, got %#v", ret.Value)
	}
}

func TestSwitchCollectsCases(t *testing.T) {
	prog := parseOK(t, `int f(int x) {
		switch (x) {
		case 1: return 10;
		case 2: return 20;
		default: return 0;
		}
	}`)
	fd := lastFunDef(t, prog)
	sw := fd.Body.Items[0].(*cabs.Switch)
	if len(sw.CaseValues) != 2 || sw.CaseValues[0] != 1 || sw.CaseValues[1] != 2 {
		t.Errorf("case values: got %v", sw.CaseValues)
	}
	if !sw.HasDefault {
		t.Error("default label was not recorded")
	}
}

func TestWasmTargetLongIsFourBytes(t *testing.T) {
	l := lexer.New("int f(void) { return sizeof(long); }", "t.c")
	p := New(lexer.NewStream(l), ctypes.WasmTarget)
	prog := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parser errors: %v", errs)
	}
	fd := lastFunDef(t, prog)
	ret := fd.Body.Items[0].(*cabs.Return)
	v := ret.Value
	if c, ok := v.(*cabs.Cast); ok {
		v = c.Sub
	}
	lit := v.(*cabs.IntLit)
	if lit.Value != 4 {
		t.Errorf("sizeof(long) on wasm: expected 4, got %d", lit.Value)
	}
}
