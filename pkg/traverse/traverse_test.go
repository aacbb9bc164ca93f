package traverse

import (
	"testing"

	"github.com/jainl28patel/xcc/pkg/ctypes"
	"github.com/jainl28patel/xcc/pkg/lexer"
	"github.com/jainl28patel/xcc/pkg/parser"
)

func buildTable(t *testing.T, src string) *Table {
	t.Helper()
	l := lexer.New(src, "test.c")
	p := parser.New(lexer.NewStream(l), ctypes.WasmTarget)
	prog := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parser errors: %v", errs)
	}
	return Build(prog)
}

const callGraphSrc = `
int leaf(int v) { return v; }
int middle(int v) { return leaf(v) + 1; }
int island(int v) { return v * 2; }
int external(int v);
int top(int v) { return middle(v) + external(v); }
`

func TestReachabilityFromExports(t *testing.T) {
	table := buildTable(t, callGraphSrc)
	table.MarkExports([]string{"top"})

	wantReachable := map[string]bool{
		"top": true, "middle": true, "leaf": true, "external": true,
		"island": false,
	}
	for name, want := range wantReachable {
		info := table.Find(name)
		if info == nil {
			t.Fatalf("function %q missing from the table", name)
		}
		if info.Reachable != want {
			t.Errorf("%s: reachable=%v, want %v", name, info.Reachable, want)
		}
	}
}

func TestIndexAssignment(t *testing.T) {
	table := buildTable(t, callGraphSrc)
	table.MarkExports([]string{"top"})
	table.AssignIndices()

	// The import comes first; defined functions follow in first-encounter
	// order.
	if table.Find("external").Index != 0 {
		t.Errorf("import index: got %d", table.Find("external").Index)
	}
	if table.Find("leaf").Index != 1 || table.Find("middle").Index != 2 || table.Find("top").Index != 3 {
		t.Errorf("defined indices: leaf=%d middle=%d top=%d",
			table.Find("leaf").Index, table.Find("middle").Index, table.Find("top").Index)
	}
	if table.Find("island").Index != -1 {
		t.Error("unreachable functions must not receive an index")
	}

	// All reachable signatures here are (i32)->i32.
	if table.Sigs.Len() != 1 {
		t.Errorf("signature count: got %d", table.Sigs.Len())
	}
}

func TestMarkAllForNative(t *testing.T) {
	table := buildTable(t, callGraphSrc)
	table.MarkAll()
	for _, name := range []string{"leaf", "middle", "island", "top"} {
		if !table.Find(name).Reachable {
			t.Errorf("%s must be reachable under MarkAll", name)
		}
	}
	if table.Find("external").Def != nil {
		t.Error("a prototype must have no definition")
	}
}

func TestExportDiagnostics(t *testing.T) {
	table := buildTable(t, "static int hidden(void) { return 1; } int decl(void);")
	table.MarkExports([]string{"hidden", "decl", "ghost"})
	errs := table.Errors()
	if len(errs) != 3 {
		t.Fatalf("expected 3 diagnostics, got %v", errs)
	}
}

func TestRedefinitionDiagnosed(t *testing.T) {
	// Two bodies for one name surface as a traverse diagnostic even though
	// the parser recovers.
	l := lexer.New("int f(void) { return 1; }\nint f(void) { return 2; }", "dup.c")
	p := parser.New(lexer.NewStream(l), ctypes.WasmTarget)
	prog := p.ParseProgram()
	table := Build(prog)
	if len(table.Errors()) == 0 {
		t.Error("expected a redefinition diagnostic")
	}
}
