package ir

import (
	"bytes"
	"strings"
	"testing"
)

func vreg(id int) *VReg {
	return &VReg{ID: id, VT: VRegType{Size: 4, Align: 4}, ParamIndex: -1, Phys: -1}
}

// Two blocks: the first defines a value, the second uses it. The value
// must be live out of the first block and live into the second.
func TestLivenessAcrossBlocks(t *testing.T) {
	a := vreg(0)
	b := vreg(1)

	bb1 := &BB{Label: "entry"}
	bb1.Irs = append(bb1.Irs, &Instr{Op: OpMov, Dst: a, Opr1: vregConst(2, 5)})
	bb2 := &BB{Label: "next"}
	bb2.Irs = append(bb2.Irs, &Instr{Op: OpAdd, Dst: b, Opr1: a, Opr2: a})

	con := &BBContainer{Name: "f", BBs: []*BB{bb1, bb2}}
	con.Analyze()

	if !containsReg(bb1.OutRegs, a) {
		t.Error("a must be live out of the defining block")
	}
	if !containsReg(bb2.InRegs, a) {
		t.Error("a must be live into the using block")
	}
	if containsReg(bb2.OutRegs, a) {
		t.Error("a dies in the second block")
	}
}

// A loop: the header's in-set must include values carried around the back
// edge.
func TestLivenessAroundLoop(t *testing.T) {
	n := vreg(0)
	tmp := vreg(1)

	header := &BB{Label: "header"}
	body := &BB{Label: "body"}
	exit := &BB{Label: "exit"}

	header.Irs = append(header.Irs,
		&Instr{Op: OpCmp, Opr1: n, Opr2: vregConst(2, 0)},
		&Instr{Op: OpJmp, Cond: CondEq, BB: exit},
	)
	body.Irs = append(body.Irs,
		&Instr{Op: OpSub, Dst: tmp, Opr1: n, Opr2: vregConst(3, 1)},
		&Instr{Op: OpMov, Dst: n, Opr1: tmp},
		&Instr{Op: OpJmp, Cond: CondAny, BB: header},
	)

	con := &BBContainer{Name: "loop", BBs: []*BB{header, body, exit}}
	con.Analyze()

	if !containsReg(header.InRegs, n) {
		t.Error("n must be live into the loop header")
	}
	if !containsReg(body.OutRegs, n) {
		t.Error("n must be live out of the body along the back edge")
	}
}

func TestSuccessors(t *testing.T) {
	target := &BB{Label: "target"}
	condBB := &BB{Label: "cond"}
	condBB.Irs = append(condBB.Irs, &Instr{Op: OpJmp, Cond: CondLt, BB: target})
	next := &BB{Label: "next"}
	uncond := &BB{Label: "uncond"}
	uncond.Irs = append(uncond.Irs, &Instr{Op: OpJmp, Cond: CondAny, BB: target})

	con := &BBContainer{BBs: []*BB{condBB, next, uncond, target}}

	succ := con.Successors(0)
	if len(succ) != 2 {
		t.Fatalf("conditional block: expected jump target plus fallthrough, got %d", len(succ))
	}
	succ = con.Successors(2)
	if len(succ) != 1 || succ[0] != target {
		t.Error("unconditional jump must suppress fallthrough")
	}
}

func TestCondInvertAndSwap(t *testing.T) {
	if CondLt.Invert() != CondGe || CondEq.Invert() != CondNe {
		t.Error("invert")
	}
	if CondLt.Swap() != CondGt || CondLe.Swap() != CondGe {
		t.Error("swap")
	}
	c := CondLt | CondUnsigned
	if c.Invert() != CondGe|CondUnsigned {
		t.Error("invert must preserve flags")
	}
	if c.Kind() != CondLt {
		t.Error("kind must strip flags")
	}
}

func TestPrinterOutput(t *testing.T) {
	a := vreg(0)
	bb := &BB{Label: ".Lf_0"}
	bb.Irs = append(bb.Irs, &Instr{Op: OpMov, Dst: a, Opr1: vregConst(1, 7)})
	con := &BBContainer{Name: "f", BBs: []*BB{bb}}

	var buf bytes.Buffer
	NewPrinter(&buf).PrintFunction(con)
	out := buf.String()
	if !strings.Contains(out, "f:") || !strings.Contains(out, "mov") || !strings.Contains(out, "#7") {
		t.Errorf("printer output: %q", out)
	}
}

func vregConst(id int, v int64) *VReg {
	return &VReg{ID: id, VT: VRegType{Size: 4, Align: 4}, Flag: VRFConst, Fixnum: v, ParamIndex: -1, Phys: -1}
}

func containsReg(regs []*VReg, v *VReg) bool {
	for _, r := range regs {
		if r == v {
			return true
		}
	}
	return false
}
