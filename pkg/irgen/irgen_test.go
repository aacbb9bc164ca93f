package irgen

import (
	"testing"

	"github.com/jainl28patel/xcc/pkg/ctypes"
	"github.com/jainl28patel/xcc/pkg/ir"
	"github.com/jainl28patel/xcc/pkg/lexer"
	"github.com/jainl28patel/xcc/pkg/parser"
	"github.com/jainl28patel/xcc/pkg/regalloc"
	"github.com/jainl28patel/xcc/pkg/traverse"
)

var testCfg = regalloc.Config{
	ParamMapping: []int{2, 3, 4, 5, 6, 7},
	PhysMax:      13,
	TempCount:    8,
	FPhysMax:     16,
	FTempCount:   16,
}

func lowerAll(t *testing.T, src string) (*Generator, []*Func) {
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

	gen := New(ctypes.NativeTarget, testCfg, table)
	var funcs []*Func
	for _, info := range table.Defined() {
		funcs = append(funcs, gen.GenFunction(info.Def))
	}
	if errs := gen.Errors(); len(errs) > 0 {
		t.Fatalf("irgen errors: %v", errs)
	}
	return gen, funcs
}

func lowerOne(t *testing.T, src, name string) *Func {
	t.Helper()
	_, funcs := lowerAll(t, src)
	for _, fn := range funcs {
		if fn.Name == name {
			return fn
		}
	}
	t.Fatalf("function %q not lowered", name)
	return nil
}

// TestCFGWellFormed checks that every jump targets a block belonging to
// the same function.
func TestCFGWellFormed(t *testing.T) {
	fn := lowerOne(t, `
int classify(int x) {
	if (x < 0) return -1;
	while (x > 100) { x = x / 2; }
	for (;;) { if (x == 7) break; x = x - 1; }
	return x;
}`, "classify")

	blocks := make(map[*ir.BB]bool)
	for _, bb := range fn.Con.BBs {
		blocks[bb] = true
	}
	for _, bb := range fn.Con.BBs {
		for _, inst := range bb.Irs {
			if inst.Op == ir.OpJmp {
				if inst.BB == nil || !blocks[inst.BB] {
					t.Errorf("jump in %s targets a foreign or missing block", bb.Label)
				}
			}
		}
	}
}

// TestVRegsDefinedBeforeUse checks that along the layout order, every
// non-parameter operand has a prior definition.
func TestVRegsDefinedBeforeUse(t *testing.T) {
	fn := lowerOne(t, `
int sum(int a, int b) {
	int s = a + b;
	s = s * 2;
	return s;
}`, "sum")

	defined := make(map[*ir.VReg]bool)
	for _, bb := range fn.Con.BBs {
		for _, inst := range bb.Irs {
			for _, opr := range [2]*ir.VReg{inst.Opr1, inst.Opr2} {
				if opr == nil || opr.IsConst() || opr.Flag&ir.VRFParam != 0 {
					continue
				}
				if !defined[opr] {
					t.Errorf("vreg v%d used before any definition", opr.ID)
				}
			}
			if inst.Dst != nil {
				defined[inst.Dst] = true
			}
		}
	}
}

func countOps(fn *Func, op ir.Op) int {
	n := 0
	for _, bb := range fn.Con.BBs {
		for _, inst := range bb.Irs {
			if inst.Op == op {
				n++
			}
		}
	}
	return n
}

func opsInOrder(fn *Func) []*ir.Instr {
	var out []*ir.Instr
	for _, bb := range fn.Con.BBs {
		out = append(out, bb.Irs...)
	}
	return out
}

// TestFunargSimplification: an argument that itself performs a call must
// be hoisted before the enclosing call's precall.
func TestFunargSimplification(t *testing.T) {
	fn := lowerOne(t, `
int g(int x);
int h(int a, int b);
int f(int n) { return h(g(n), 2); }`, "f")

	instrs := opsInOrder(fn)
	innerCall, precall := -1, -1
	for i, inst := range instrs {
		if inst.Op == ir.OpCall && inst.Label == "g" {
			innerCall = i
		}
		if inst.Op == ir.OpPrecall && precall < 0 {
			precall = i
		}
	}
	if innerCall < 0 {
		t.Fatal("no call to g lowered")
	}
	if precall < 0 {
		t.Fatal("no precall emitted")
	}
	// g's own precall is the first; h's precall must come after g's call.
	hPrecall := -1
	for i := innerCall + 1; i < len(instrs); i++ {
		if instrs[i].Op == ir.OpPrecall {
			hPrecall = i
			break
		}
	}
	if hPrecall < 0 {
		t.Error("the outer call's precall must follow the hoisted argument call")
	}
}

// TestCallArgumentSlots: arguments are pushed right to left with their
// logical indices.
func TestCallArgumentSlots(t *testing.T) {
	fn := lowerOne(t, `
int h(int a, int b, int c);
int f(void) { return h(1, 2, 3); }`, "f")

	var indices []int64
	for _, inst := range opsInOrder(fn) {
		if inst.Op == ir.OpPushArg {
			indices = append(indices, inst.Value)
		}
	}
	if len(indices) != 3 {
		t.Fatalf("expected 3 pushargs, got %d", len(indices))
	}
	for i := 1; i < len(indices); i++ {
		if indices[i-1] < indices[i] {
			t.Errorf("arguments must be pushed right to left: %v", indices)
		}
	}
	for _, inst := range opsInOrder(fn) {
		if inst.Op == ir.OpCall {
			if inst.ArgCount != 3 || inst.RegArgCount != 3 {
				t.Errorf("call counts: args=%d regargs=%d", inst.ArgCount, inst.RegArgCount)
			}
		}
	}
}

func TestStackArgsBeyondSix(t *testing.T) {
	fn := lowerOne(t, `
int h(int a, int b, int c, int d, int e, int f, int g, int i);
int f(void) { return h(1, 2, 3, 4, 5, 6, 7, 8); }`, "f")

	sawStack := false
	sawSub, sawAdd := false, false
	for _, inst := range opsInOrder(fn) {
		if inst.Op == ir.OpPushArg && inst.Value >= 6 {
			sawStack = true
		}
		if inst.Op == ir.OpSubSP && inst.Value > 0 {
			sawSub = true
		}
		if inst.Op == ir.OpSubSP && inst.Value < 0 {
			sawAdd = true
		}
	}
	if !sawStack {
		t.Error("arguments beyond the sixth must be stack slots")
	}
	if !sawSub || !sawAdd {
		t.Error("the outgoing stack area must be reserved and released")
	}
}

func TestBreakContinueTargets(t *testing.T) {
	fn := lowerOne(t, `
int f(int n) {
	int s = 0;
	while (n) {
		if (n == 3) { n = n - 1; continue; }
		if (n == 1) break;
		s = s + n;
		n = n - 1;
	}
	return s;
}`, "f")

	if countOps(fn, ir.OpJmp) < 5 {
		t.Error("loop with break/continue should produce several jumps")
	}
}

func TestShortCircuitProducesBranches(t *testing.T) {
	fn := lowerOne(t, "int f(int a, int b) { return a && b; }", "f")
	condJumps := 0
	for _, inst := range opsInOrder(fn) {
		if inst.Op == ir.OpJmp && inst.Cond.Kind() != ir.CondAny {
			condJumps++
		}
	}
	if condJumps < 2 {
		t.Errorf("&& must branch per operand, got %d conditional jumps", condJumps)
	}
}

func TestSwitchLowersToCompareChain(t *testing.T) {
	fn := lowerOne(t, `
int f(int x) {
	switch (x) {
	case 1: return 10;
	case 2: return 20;
	case 9: return 90;
	default: return 0;
	}
}`, "f")

	if n := countOps(fn, ir.OpCmp); n < 3 {
		t.Errorf("expected one compare per case, got %d", n)
	}
}

func TestGotoForwardPatch(t *testing.T) {
	fn := lowerOne(t, `
int f(int x) {
	if (x) goto done;
	x = 1;
done:
	return x;
}`, "f")

	for _, inst := range opsInOrder(fn) {
		if inst.Op == ir.OpJmp && inst.BB == nil {
			t.Error("forward goto left unpatched")
		}
	}
}

func TestConstVRegsNeverStoreResults(t *testing.T) {
	fn := lowerOne(t, "int f(int a) { return a + 40 + 2; }", "f")
	for _, inst := range opsInOrder(fn) {
		if inst.Dst != nil && inst.Dst.IsConst() {
			t.Error("constant vregs must never be destinations")
		}
	}
}

func TestStringLiteralPooling(t *testing.T) {
	gen, _ := lowerAll(t, `
int puts(char *s);
int f(void) { puts("hi"); puts("hi"); puts("other"); return 0; }`)
	if len(gen.StringLits) != 2 {
		t.Errorf("string pool: expected 2 entries, got %d", len(gen.StringLits))
	}
}

func TestGlobalAccessThroughLabel(t *testing.T) {
	fn := lowerOne(t, "int g; int main(void) { g = 42; return g; }", "main")
	found := false
	for _, inst := range opsInOrder(fn) {
		if inst.Op == ir.OpIofs && inst.Label == "g" {
			found = true
		}
	}
	if !found {
		t.Error("global access must go through its symbol address")
	}
}

// TestReturnFeedsResult verifies return lowers into a result move followed
// by a jump to the exit block.
func TestReturnFeedsResult(t *testing.T) {
	fn := lowerOne(t, "int f(void) { return 7; }", "f")
	instrs := opsInOrder(fn)
	for i, inst := range instrs {
		if inst.Op == ir.OpResult {
			if i+1 >= len(instrs) || instrs[i+1].Op != ir.OpJmp {
				t.Error("result must be followed by the jump to the exit block")
			}
			return
		}
	}
	t.Error("no result instruction emitted")
}

func TestAddressTakenLocalLivesInFrame(t *testing.T) {
	fn := lowerOne(t, `
void set(int *p);
int f(void) { int x = 0; set(&x); return x; }`, "f")

	if countOps(fn, ir.OpBofs) == 0 {
		t.Error("an address-taken local must live in the frame")
	}
	if fn.FrameSize < 4 {
		t.Errorf("frame too small: %d", fn.FrameSize)
	}
}
