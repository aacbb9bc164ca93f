package regalloc_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/jainl28patel/xcc/pkg/ctypes"
	"github.com/jainl28patel/xcc/pkg/ir"
	"github.com/jainl28patel/xcc/pkg/irgen"
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

// compileFunc parses, lowers and allocates one function.
func compileFunc(t *testing.T, src, name string) *irgen.Func {
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

	gen := irgen.New(ctypes.NativeTarget, testCfg, table)
	var target *irgen.Func
	for _, info := range table.Defined() {
		fn := gen.GenFunction(info.Def)
		fn.RA.Alloc(fn.Con, func(v *ir.VReg) {
			fn.FrameSize = (fn.FrameSize + 8 + 7) &^ 7
			v.FrameOffset = -fn.FrameSize
		})
		if fn.Name == name {
			target = fn
		}
	}
	if errs := gen.Errors(); len(errs) > 0 {
		t.Fatalf("irgen errors: %v", errs)
	}
	if target == nil {
		t.Fatalf("function %q not found", name)
	}
	return target
}

// manyLiveValues builds a function with n values live simultaneously.
func manyLiveValues(n int) string {
	var sb strings.Builder
	sb.WriteString("int f(int x) {\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "\tint v%d = x + %d;\n", i, i)
	}
	sb.WriteString("\treturn 0")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, " + v%d", i)
	}
	sb.WriteString(";\n}\n")
	return sb.String()
}

func TestAllRegistersAssigned(t *testing.T) {
	fn := compileFunc(t, "int f(int a, int b) { return a * b + a - b; }", "f")
	for _, bb := range fn.Con.BBs {
		for _, inst := range bb.Irs {
			for _, v := range [3]*ir.VReg{inst.Dst, inst.Opr1, inst.Opr2} {
				if v == nil || v.IsConst() {
					continue
				}
				if v.Flag&ir.VRFSpilled != 0 {
					continue
				}
				if v.Phys < 0 || v.Phys >= testCfg.PhysMax {
					t.Errorf("vreg v%d has no valid physical register (%d)", v.ID, v.Phys)
				}
			}
		}
	}
}

// TestNoOverlappingAssignments verifies the core soundness property: no
// two distinct simultaneously-live vregs share a physical register.
func TestNoOverlappingAssignments(t *testing.T) {
	fn := compileFunc(t, manyLiveValues(20), "f")
	checkDisjointIntervals(t, fn)
}

func checkDisjointIntervals(t *testing.T, fn *irgen.Func) {
	t.Helper()
	intervals := fn.RA.Intervals
	for i := 0; i < len(intervals); i++ {
		a := intervals[i]
		if a.State != regalloc.LiNormal || a.Start < 0 {
			continue
		}
		for j := i + 1; j < len(intervals); j++ {
			b := intervals[j]
			if b.State != regalloc.LiNormal || b.Start < 0 {
				continue
			}
			if a.Phys != b.Phys {
				continue
			}
			// Intervals [start, end) overlapping with the same physical.
			if a.Start < b.End && b.Start < a.End {
				t.Errorf("v%d and v%d share phys %d over [%d,%d) and [%d,%d)",
					a.Virt, b.Virt, a.Phys, a.Start, a.End, b.Start, b.End)
			}
		}
	}
}

// TestOccupiedConstraint: no interval's assigned register appears in its
// occupied set.
func TestOccupiedConstraint(t *testing.T) {
	src := `
int g(int a, int b, int c);
int f(int x, int y) { return g(x + 1, y + 2, x * y) + x + y; }`
	fn := compileFunc(t, src, "f")
	for _, li := range fn.RA.Intervals {
		if li.State != regalloc.LiNormal || li.Phys < 0 {
			continue
		}
		if li.Occupied&(1<<uint(li.Phys)) != 0 {
			t.Errorf("v%d assigned phys %d from its occupied set", li.Virt, li.Phys)
		}
	}
}

// TestSpillOnPressure: 32 simultaneously live values exceed the integer
// file; spills must materialize with frame slots and bracketing.
func TestSpillOnPressure(t *testing.T) {
	fn := compileFunc(t, manyLiveValues(32), "f")

	var spilled []*ir.VReg
	seen := make(map[int]bool)
	for _, bb := range fn.Con.BBs {
		for _, inst := range bb.Irs {
			for _, v := range [3]*ir.VReg{inst.Dst, inst.Opr1, inst.Opr2} {
				if v != nil && v.Flag&ir.VRFSpilled != 0 && !seen[v.ID] {
					seen[v.ID] = true
					spilled = append(spilled, v)
				}
			}
		}
	}
	if len(spilled) == 0 {
		t.Fatal("expected at least one spill under register pressure")
	}
	for _, v := range spilled {
		if v.FrameOffset >= 0 {
			t.Errorf("spilled v%d has no frame slot", v.ID)
		}
	}
	if fn.FrameSize < int64(len(spilled))*8 {
		t.Errorf("frame must grow by at least 8 bytes per spill: %d spills, %d bytes",
			len(spilled), fn.FrameSize)
	}
	checkDisjointIntervals(t, fn)
}

// TestSpillBracketing: after allocation no instruction references a
// spilled vreg directly; every use goes through load/store-spilled and a
// no-spill temporary.
func TestSpillBracketing(t *testing.T) {
	fn := compileFunc(t, manyLiveValues(32), "f")
	for _, bb := range fn.Con.BBs {
		for _, inst := range bb.Irs {
			switch inst.Op {
			case ir.OpLoadSpilled:
				if inst.Dst.Flag&ir.VRFNoSpill == 0 {
					t.Error("load-spilled must target a no-spill temporary")
				}
				continue
			case ir.OpStoreSpilled:
				if inst.Opr1.Flag&ir.VRFNoSpill == 0 {
					t.Error("store-spilled must read a no-spill temporary")
				}
				continue
			}
			for _, v := range [2]*ir.VReg{inst.Opr1, inst.Opr2} {
				if v != nil && !v.IsConst() && v.Flag&ir.VRFSpilled != 0 {
					t.Errorf("%s reads spilled v%d directly", inst.Op, v.ID)
				}
			}
			if d := inst.Dst; d != nil && d.Flag&ir.VRFSpilled != 0 && spillDstChecked(inst.Op) {
				t.Errorf("%s writes spilled v%d directly", inst.Op, d.ID)
			}
		}
	}
}

func spillDstChecked(op ir.Op) bool {
	return regalloc.SpillCheckFlag(op)&4 != 0
}

// TestParamRegisterPreference: a register parameter keeps its ABI register
// when nothing occupies it.
func TestParamRegisterPreference(t *testing.T) {
	fn := compileFunc(t, "int f(int a, int b) { return a + b; }", "f")
	var params []*ir.VReg
	for _, v := range fn.RA.VRegs() {
		if v.Flag&ir.VRFParam != 0 {
			params = append(params, v)
		}
	}
	if len(params) != 2 {
		t.Fatalf("expected 2 parameter vregs, got %d", len(params))
	}
	for _, v := range params {
		want := testCfg.ParamMapping[v.ParamIndex]
		if v.Phys != want {
			t.Errorf("param %d: expected phys %d, got %d", v.ParamIndex, want, v.Phys)
		}
	}
}

// TestCallClobberForcesPreservation: a value live across a call must not
// sit in a caller-saved register.
func TestCallClobberForcesPreservation(t *testing.T) {
	src := `
int g(int v);
int f(int x) { int a = x * 3; g(x); return a; }`
	fn := compileFunc(t, src, "f")

	// Find the vreg holding a: it is defined by a mul and used after the
	// call.
	for _, li := range fn.RA.Intervals {
		if li.State != regalloc.LiNormal {
			continue
		}
		v := fn.RA.VRegs()[li.Virt]
		if v.Flag&(ir.VRFParam|ir.VRFConst) != 0 {
			continue
		}
		if li.Occupied != 0 && li.Phys >= 0 && li.Phys < testCfg.TempCount {
			if li.Occupied&(1<<uint(li.Phys)) != 0 {
				t.Errorf("v%d lives across a call in clobbered register %d", li.Virt, li.Phys)
			}
		}
	}
}

func TestFixedPointTerminates(t *testing.T) {
	// Heavy pressure plus calls: allocation must still settle.
	src := `
int g(int a, int b, int c, int d, int e, int h);
int f(int x) {
	` + strings.Repeat("x = x + g(x, x, x, x, x, x);\n", 6) + `
	return x;
}`
	fn := compileFunc(t, src, "f")
	if fn == nil {
		t.Fatal("allocation did not complete")
	}
}
