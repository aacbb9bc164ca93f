// Package irgen lowers the typed AST into the three-address IR for the
// native backend, one function at a time. Control flow becomes basic
// blocks; expressions become instructions over virtual registers.
package irgen

import (
	"fmt"

	"github.com/jainl28patel/xcc/pkg/cabs"
	"github.com/jainl28patel/xcc/pkg/ctypes"
	"github.com/jainl28patel/xcc/pkg/ir"
	"github.com/jainl28patel/xcc/pkg/regalloc"
	"github.com/jainl28patel/xcc/pkg/traverse"
)

// Func is one lowered function ready for register allocation.
type Func struct {
	Name      string
	Def       *cabs.FunDef
	Con       *ir.BBContainer
	RA        *regalloc.RegAlloc
	FrameSize int64 // local-variable and spill-slot area below the base pointer
	Static    bool
}

// Generator drives lowering for a translation unit and collects the
// literal pools shared by the emitter.
type Generator struct {
	target ctypes.Target
	cfg    regalloc.Config
	table  *traverse.Table
	errors []string

	// Literal pools, label -> payload, in first-encounter order.
	StringLits []StringLit
	FloatLits  []FloatLit
	strIndex   map[string]string
	floatIndex map[uint64]string

	// per-function state
	fn        *Func
	fd        *cabs.FunDef
	ra        *regalloc.RegAlloc
	con       *ir.BBContainer
	cur       *ir.BB
	bbID      int
	breakBBs  []*ir.BB
	contBBs   []*ir.BB
	labelBBs  map[string]*ir.BB
	varRegs   map[*cabs.VarInfo]*ir.VReg
	frameOffs map[*cabs.VarInfo]int64
	retBB     *ir.BB

	staticLocals []StaticLocal
}

// StringLit is a pooled string literal.
type StringLit struct {
	Label string
	Value string
}

// FloatLit is a pooled floating constant.
type FloatLit struct {
	Label  string
	Bits   uint64
	Single bool
}

// New creates a Generator for the unit.
func New(target ctypes.Target, cfg regalloc.Config, table *traverse.Table) *Generator {
	return &Generator{
		target:     target,
		cfg:        cfg,
		table:      table,
		strIndex:   make(map[string]string),
		floatIndex: make(map[uint64]string),
	}
}

// Errors returns lowering diagnostics.
func (g *Generator) Errors() []string {
	return g.errors
}

func (g *Generator) errorf(format string, args ...interface{}) {
	g.errors = append(g.errors, fmt.Sprintf(format, args...))
}

// GenFunction lowers one function definition.
func (g *Generator) GenFunction(fd *cabs.FunDef) *Func {
	g.fd = fd
	g.ra = regalloc.New(g.cfg)
	g.con = &ir.BBContainer{Name: fd.Name}
	g.bbID = 0
	g.breakBBs, g.contBBs = nil, nil
	g.labelBBs = make(map[string]*ir.BB)
	g.varRegs = make(map[*cabs.VarInfo]*ir.VReg)
	g.frameOffs = make(map[*cabs.VarInfo]int64)
	g.fn = &Func{
		Name:   fd.Name,
		Def:    fd,
		Con:    g.con,
		RA:     g.ra,
		Static: fd.Storage&cabs.StorageStatic != 0,
	}

	entry := g.newBB()
	g.setCurBB(entry)

	g.assignLocals(fd)

	g.retBB = g.bbFor("exit")
	g.genStmt(fd.Body)
	g.setCurBB(g.retBB)

	g.patchGotos(fd)
	return g.fn
}

func (g *Generator) newBB() *ir.BB {
	bb := &ir.BB{Label: fmt.Sprintf(".L%s_%d", g.fd.Name, g.bbID)}
	g.bbID++
	return bb
}

func (g *Generator) bbFor(tag string) *ir.BB {
	bb := g.newBB()
	bb.Label = fmt.Sprintf(".L%s_%s_%d", g.fd.Name, tag, g.bbID)
	return bb
}

// setCurBB appends bb to the layout and makes it the append cursor.
func (g *Generator) setCurBB(bb *ir.BB) {
	g.con.BBs = append(g.con.BBs, bb)
	g.cur = bb
}

func (g *Generator) emit(inst *ir.Instr) *ir.Instr {
	g.cur.Irs = append(g.cur.Irs, inst)
	return inst
}

func (g *Generator) jmp(bb *ir.BB) {
	g.emit(&ir.Instr{Op: ir.OpJmp, Cond: ir.CondAny, BB: bb})
}

func (g *Generator) toVType(t ctypes.Type) ir.VRegType {
	size := g.target.SizeOf(t)
	if size <= 0 {
		size = 1
	}
	return ir.VRegType{
		Size:     size,
		Align:    g.target.AlignOf(t),
		Unsigned: ctypes.IsUnsigned(t),
		Flonum:   ctypes.IsFloat(t),
	}
}

// allocFrame reserves size bytes in the function frame and returns the
// (negative) offset from the base pointer.
func (g *Generator) allocFrame(size, align int64) int64 {
	if align < 1 {
		align = 1
	}
	g.fn.FrameSize = (g.fn.FrameSize + size + align - 1) &^ (align - 1)
	return -g.fn.FrameSize
}

// assignLocals walks the function's scopes deciding where each local
// lives: scalars whose address is never taken get a vreg, everything else
// gets a frame slot. Parameters come first so their vregs exist before the
// body references them.
func (g *Generator) assignLocals(fd *cabs.FunDef) {
	addrTaken := make(map[*cabs.VarInfo]bool)
	traverse.WalkStmt(fd.Body, func(e cabs.Expr) {
		ao, ok := e.(*cabs.AddrOf)
		if !ok {
			return
		}
		if v, ok := ao.Sub.(*cabs.Var); ok {
			if info := v.Scope.Lookup(v.Name); info != nil {
				addrTaken[info] = true
			}
		}
	})

	// Parameters are numbered within their register class: integer and
	// floating arguments consume separate register files.
	intArgs := len(g.cfg.ParamMapping)
	fltArgs := g.cfg.FTempCount
	intIdx, fltIdx, stackSlot := 0, 0, 0
	for _, v := range fd.Params.Vars {
		if _, isStruct := v.Type.(*ctypes.Tstruct); isStruct {
			g.errorf("%s: struct parameters are not supported", fd.Name)
			continue
		}
		classIdx := intIdx
		if ctypes.IsFloat(v.Type) {
			classIdx = fltIdx
			fltIdx++
		} else {
			intIdx++
		}
		onStack := (ctypes.IsFloat(v.Type) && classIdx >= fltArgs) ||
			(!ctypes.IsFloat(v.Type) && classIdx >= intArgs)
		if onStack {
			// Stack-passed parameter: above the saved base pointer.
			g.frameOffs[v] = 16 + int64(stackSlot)*8
			stackSlot++
			continue
		}
		if addrTaken[v] {
			// Parameter copied into the frame at entry so its address can
			// be taken.
			off := g.allocFrame(g.target.SizeOf(v.Type), g.target.AlignOf(v.Type))
			g.frameOffs[v] = off
			g.spillParamToFrame(v, off, classIdx)
			continue
		}
		vr := g.ra.Spawn(g.toVType(v.Type), ir.VRFParam)
		vr.ParamIndex = classIdx
		g.varRegs[v] = vr
	}

	for _, scope := range fd.Scopes {
		if scope == fd.Params {
			continue
		}
		for _, v := range scope.Vars {
			if v.Storage&(cabs.StorageStatic|cabs.StorageExtern|cabs.StorageEnumMember) != 0 {
				continue
			}
			if g.isFrameType(v.Type) || addrTaken[v] {
				g.frameOffs[v] = g.allocFrame(g.target.SizeOf(v.Type), g.target.AlignOf(v.Type))
			} else {
				g.varRegs[v] = g.ra.Spawn(g.toVType(v.Type), 0)
			}
		}
	}
}

// spillParamToFrame stores an incoming register parameter to its frame
// slot at entry so its address can be taken.
func (g *Generator) spillParamToFrame(v *cabs.VarInfo, off int64, classIdx int) {
	pr := g.ra.Spawn(g.toVType(v.Type), ir.VRFParam)
	pr.ParamIndex = classIdx
	addr := g.ra.Spawn(g.ptrVType(), 0)
	g.emit(&ir.Instr{Op: ir.OpBofs, Dst: addr, Value: off})
	g.emit(&ir.Instr{Op: ir.OpStore, Opr1: addr, Opr2: pr})
}

func (g *Generator) ptrVType() ir.VRegType {
	return ir.VRegType{Size: g.target.PtrSize, Align: g.target.PtrSize, Unsigned: true}
}

// isFrameType reports whether values of t must live in memory.
func (g *Generator) isFrameType(t ctypes.Type) bool {
	switch t.(type) {
	case *ctypes.Tarray, *ctypes.Tstruct:
		return true
	}
	return false
}

// patchGotos runs after the whole body is lowered and reports every goto
// whose label never produced a block, pointing it at the exit block.
func (g *Generator) patchGotos(fd *cabs.FunDef) {
	for _, bb := range g.con.BBs {
		for _, inst := range bb.Irs {
			if inst.Op == ir.OpJmp && inst.BB == nil {
				g.errorf("%s: label %q is not defined", fd.Name, inst.Label)
				inst.BB = g.retBB
			}
		}
	}
}

// labelBB returns (creating on demand) the block for a goto label.
func (g *Generator) labelBB(name string) *ir.BB {
	if bb, ok := g.labelBBs[name]; ok {
		return bb
	}
	bb := g.bbFor("lbl_" + name)
	g.labelBBs[name] = bb
	return bb
}

func (g *Generator) genStmt(stmt cabs.Stmt) {
	if stmt == nil {
		return
	}
	switch s := stmt.(type) {
	case *cabs.ExprStmt:
		g.genExpr(s.Expr)

	case *cabs.Block:
		for _, item := range s.Items {
			g.genStmt(item)
		}

	case *cabs.If:
		g.genIf(s)

	case *cabs.Switch:
		g.genSwitch(s)

	case *cabs.Case, *cabs.Default:
		// handled by genSwitch's label pass

	case *cabs.While:
		g.genWhile(s)

	case *cabs.DoWhile:
		g.genDoWhile(s)

	case *cabs.For:
		g.genFor(s)

	case *cabs.Break:
		if len(g.breakBBs) == 0 {
			g.errorf("%s: break outside loop or switch", s.Token.Pos())
			return
		}
		g.jmp(g.breakBBs[len(g.breakBBs)-1])
		g.setCurBB(g.newBB())

	case *cabs.Continue:
		if len(g.contBBs) == 0 {
			g.errorf("%s: continue outside loop", s.Token.Pos())
			return
		}
		g.jmp(g.contBBs[len(g.contBBs)-1])
		g.setCurBB(g.newBB())

	case *cabs.Return:
		if s.Value != nil {
			val := g.genExpr(s.Value)
			g.emit(&ir.Instr{Op: ir.OpResult, Opr1: val})
		}
		g.jmp(g.retBB)
		g.setCurBB(g.newBB())

	case *cabs.Goto:
		bb := g.labelBBs[s.Label]
		if bb == nil && g.fd.LabelSet[s.Label] {
			bb = g.labelBB(s.Label)
		}
		if bb == nil {
			// Unknown label: leave the target for patchGotos to report.
			g.emit(&ir.Instr{Op: ir.OpJmp, Cond: ir.CondAny, Label: s.Label})
		} else {
			g.jmp(bb)
		}
		g.setCurBB(g.newBB())

	case *cabs.Label:
		bb := g.labelBB(s.Name)
		g.jmp(bb)
		g.setCurBB(bb)
		g.genStmt(s.Stmt)

	case *cabs.VarDecl:
		for _, init := range s.Inits {
			g.genStmt(init)
		}

	case *cabs.Asm:
		g.emit(&ir.Instr{Op: ir.OpAsm, Text: s.Text})
	}
}

func (g *Generator) genIf(s *cabs.If) {
	falseBB := g.bbFor("else")
	nextBB := g.bbFor("endif")

	g.genCondJmp(s.Cond, false, falseBB)
	g.genStmt(s.Then)
	g.jmp(nextBB)

	g.setCurBB(falseBB)
	if s.Else != nil {
		g.genStmt(s.Else)
	}
	g.jmp(nextBB)
	g.setCurBB(nextBB)
}

func (g *Generator) genWhile(s *cabs.While) {
	condBB := g.bbFor("while_cond")
	bodyBB := g.bbFor("while_body")
	exitBB := g.bbFor("while_exit")

	g.jmp(condBB)
	g.setCurBB(condBB)
	g.genCondJmp(s.Cond, false, exitBB)

	g.breakBBs = append(g.breakBBs, exitBB)
	g.contBBs = append(g.contBBs, condBB)
	g.setCurBB(bodyBB)
	g.genStmt(s.Body)
	g.jmp(condBB)
	g.breakBBs = g.breakBBs[:len(g.breakBBs)-1]
	g.contBBs = g.contBBs[:len(g.contBBs)-1]

	g.setCurBB(exitBB)
}

func (g *Generator) genDoWhile(s *cabs.DoWhile) {
	bodyBB := g.bbFor("do_body")
	condBB := g.bbFor("do_cond")
	exitBB := g.bbFor("do_exit")

	g.jmp(bodyBB)
	g.breakBBs = append(g.breakBBs, exitBB)
	g.contBBs = append(g.contBBs, condBB)
	g.setCurBB(bodyBB)
	g.genStmt(s.Body)
	g.breakBBs = g.breakBBs[:len(g.breakBBs)-1]
	g.contBBs = g.contBBs[:len(g.contBBs)-1]

	g.jmp(condBB)
	g.setCurBB(condBB)
	g.genCondJmp(s.Cond, true, bodyBB)
	g.setCurBB(exitBB)
}

func (g *Generator) genFor(s *cabs.For) {
	if s.Pre != nil {
		g.genExpr(s.Pre)
	}
	condBB := g.bbFor("for_cond")
	bodyBB := g.bbFor("for_body")
	postBB := g.bbFor("for_post")
	exitBB := g.bbFor("for_exit")

	g.jmp(condBB)
	g.setCurBB(condBB)
	if s.Cond != nil {
		g.genCondJmp(s.Cond, false, exitBB)
	}

	g.breakBBs = append(g.breakBBs, exitBB)
	g.contBBs = append(g.contBBs, postBB)
	g.setCurBB(bodyBB)
	g.genStmt(s.Body)
	g.breakBBs = g.breakBBs[:len(g.breakBBs)-1]
	g.contBBs = g.contBBs[:len(g.contBBs)-1]

	g.jmp(postBB)
	g.setCurBB(postBB)
	if s.Post != nil {
		g.genExpr(s.Post)
	}
	g.jmp(condBB)
	g.setCurBB(exitBB)
}

// genSwitch lowers to a compare-and-branch chain over the case values
// collected at parse time, then re-walks the body emitting case labels.
func (g *Generator) genSwitch(s *cabs.Switch) {
	exitBB := g.bbFor("sw_exit")
	val := g.genExpr(s.Cond)
	if val == nil {
		return
	}

	caseBBs := make(map[int64]*ir.BB, len(s.CaseValues))
	for _, cv := range s.CaseValues {
		if _, dup := caseBBs[cv]; dup {
			g.errorf("%s: duplicate case value %d", g.fd.Name, cv)
			continue
		}
		caseBBs[cv] = g.bbFor("case")
	}
	defaultBB := exitBB
	if s.HasDefault {
		defaultBB = g.bbFor("sw_default")
	}

	for _, cv := range s.CaseValues {
		bb := caseBBs[cv]
		cmp := g.ra.Spawn(val.VT, ir.VRFConst)
		cmp.Fixnum = cv
		g.emit(&ir.Instr{Op: ir.OpCmp, Opr1: val, Opr2: cmp})
		g.emit(&ir.Instr{Op: ir.OpJmp, Cond: ir.CondEq, BB: bb})
	}
	g.jmp(defaultBB)

	g.breakBBs = append(g.breakBBs, exitBB)
	g.genSwitchBody(s.Body, caseBBs, defaultBB)
	g.breakBBs = g.breakBBs[:len(g.breakBBs)-1]

	g.jmp(exitBB)
	g.setCurBB(exitBB)
}

// genSwitchBody walks the (usually block) switch body, splicing case and
// default blocks into the layout where their labels appear.
func (g *Generator) genSwitchBody(body cabs.Stmt, caseBBs map[int64]*ir.BB, defaultBB *ir.BB) {
	block, ok := body.(*cabs.Block)
	if !ok {
		g.genStmt(body)
		return
	}
	for _, item := range block.Items {
		switch c := item.(type) {
		case *cabs.Case:
			if bb := caseBBs[c.Value]; bb != nil {
				g.jmp(bb)
				g.setCurBB(bb)
			}
		case *cabs.Default:
			g.jmp(defaultBB)
			g.setCurBB(defaultBB)
		default:
			g.genStmt(item)
		}
	}
}
