package irgen

import (
	"fmt"
	"math"

	"github.com/jainl28patel/xcc/pkg/cabs"
	"github.com/jainl28patel/xcc/pkg/ctypes"
	"github.com/jainl28patel/xcc/pkg/ir"
	"github.com/jainl28patel/xcc/pkg/traverse"
)

var binOps = map[cabs.BinaryOp]ir.Op{
	cabs.OpAdd:    ir.OpAdd,
	cabs.OpSub:    ir.OpSub,
	cabs.OpMul:    ir.OpMul,
	cabs.OpDiv:    ir.OpDiv,
	cabs.OpMod:    ir.OpMod,
	cabs.OpBitAnd: ir.OpBitAnd,
	cabs.OpBitOr:  ir.OpBitOr,
	cabs.OpBitXor: ir.OpBitXor,
	cabs.OpShl:    ir.OpLShift,
	cabs.OpShr:    ir.OpRShift,
}

var compareConds = map[cabs.BinaryOp]ir.Cond{
	cabs.OpEq: ir.CondEq,
	cabs.OpNe: ir.CondNe,
	cabs.OpLt: ir.CondLt,
	cabs.OpLe: ir.CondLe,
	cabs.OpGe: ir.CondGe,
	cabs.OpGt: ir.CondGt,
}

// constReg spawns a constant vreg; the emitter materializes it inline.
func (g *Generator) constReg(v int64, vt ir.VRegType) *ir.VReg {
	r := g.ra.Spawn(vt, ir.VRFConst)
	r.Fixnum = v
	return r
}

// strLabel interns a string literal into the rodata pool.
func (g *Generator) strLabel(s string) string {
	if l, ok := g.strIndex[s]; ok {
		return l
	}
	l := fmt.Sprintf(".LS%d", len(g.StringLits))
	g.strIndex[s] = l
	g.StringLits = append(g.StringLits, StringLit{Label: l, Value: s})
	return l
}

// floatLabel interns a floating constant into the rodata pool.
func (g *Generator) floatLabel(v float64, single bool) string {
	bits := math.Float64bits(v)
	if single {
		bits = uint64(math.Float32bits(float32(v)))
	}
	key := bits << 1
	if single {
		key |= 1
	}
	if l, ok := g.floatIndex[key]; ok {
		return l
	}
	l := fmt.Sprintf(".LF%d", len(g.FloatLits))
	g.floatIndex[key] = l
	g.FloatLits = append(g.FloatLits, FloatLit{Label: l, Bits: bits, Single: single})
	return l
}

// genExpr lowers an expression and returns its result vreg (nil for void).
func (g *Generator) genExpr(e cabs.Expr) *ir.VReg {
	if e == nil {
		return nil
	}
	switch x := e.(type) {
	case *cabs.IntLit:
		return g.constReg(x.Value, g.toVType(x.Type()))

	case *cabs.FloatLit:
		single := false
		if f, ok := x.Type().(*ctypes.Tfloat); ok {
			single = f.Kind == ctypes.F32
		}
		label := g.floatLabel(x.Value, single)
		addr := g.ra.Spawn(g.ptrVType(), 0)
		g.emit(&ir.Instr{Op: ir.OpIofs, Dst: addr, Label: label})
		dst := g.ra.Spawn(g.toVType(x.Type()), 0)
		g.emit(&ir.Instr{Op: ir.OpLoad, Dst: dst, Opr1: addr})
		return dst

	case *cabs.StrLit:
		label := g.strLabel(x.Value)
		dst := g.ra.Spawn(g.ptrVType(), 0)
		g.emit(&ir.Instr{Op: ir.OpIofs, Dst: dst, Label: label})
		return dst

	case *cabs.Var:
		return g.genVar(x)

	case *cabs.Member:
		addr := g.genLval(x)
		if addr == nil {
			return nil
		}
		if x.Info != nil && x.Info.Bitfield != nil {
			return g.loadBitfield(addr, x)
		}
		dst := g.ra.Spawn(g.toVType(x.Type()), 0)
		g.emit(&ir.Instr{Op: ir.OpLoad, Dst: dst, Opr1: addr})
		return dst

	case *cabs.Deref:
		addr := g.genExpr(x.Sub)
		if addr == nil {
			return nil
		}
		if g.isFrameType(x.Type()) {
			return addr // aggregates stay as addresses
		}
		dst := g.ra.Spawn(g.toVType(x.Type()), 0)
		g.emit(&ir.Instr{Op: ir.OpLoad, Dst: dst, Opr1: addr})
		return dst

	case *cabs.AddrOf:
		return g.genLval(x.Sub)

	case *cabs.Unary:
		return g.genUnary(x)

	case *cabs.Binary:
		return g.genBinary(x)

	case *cabs.Assign:
		return g.genAssign(x)

	case *cabs.CompoundAssign:
		return g.genCompoundAssign(x)

	case *cabs.IncDec:
		return g.genIncDec(x)

	case *cabs.Call:
		return g.genFuncall(x)

	case *cabs.Cast:
		return g.genCast(x)

	case *cabs.Ternary:
		return g.genTernary(x)

	case *cabs.Comma:
		g.genExpr(x.Left)
		return g.genExpr(x.Right)
	}
	g.errorf("%s: cannot lower expression %T", g.fd.Name, e)
	return nil
}

// genVar produces the value of a variable reference; aggregates yield
// their address.
func (g *Generator) genVar(x *cabs.Var) *ir.VReg {
	info := x.Scope.Lookup(x.Name)
	if info == nil {
		g.errorf("%s: unresolved variable %q", g.fd.Name, x.Name)
		return nil
	}
	if vr, ok := g.varRegs[info]; ok {
		return vr
	}
	addr := g.varAddr(info, x)
	if addr == nil {
		return nil
	}
	if g.isFrameType(info.Type) || isFuncType(info.Type) {
		return addr
	}
	dst := g.ra.Spawn(g.toVType(x.Type()), 0)
	g.emit(&ir.Instr{Op: ir.OpLoad, Dst: dst, Opr1: addr})
	return dst
}

func isFuncType(t ctypes.Type) bool {
	_, ok := t.(*ctypes.Tfunction)
	return ok
}

// varAddr yields the address of a memory-resident variable.
func (g *Generator) varAddr(info *cabs.VarInfo, x *cabs.Var) *ir.VReg {
	if off, ok := g.frameOffs[info]; ok {
		dst := g.ra.Spawn(g.ptrVType(), 0)
		g.emit(&ir.Instr{Op: ir.OpBofs, Dst: dst, Value: off})
		return dst
	}
	if info.Global || info.Storage&(cabs.StorageStatic|cabs.StorageExtern) != 0 {
		label := info.Name
		if !x.Scope.IsGlobal() && info.Storage&cabs.StorageStatic != 0 {
			label = g.staticLocalLabel(info)
		}
		dst := g.ra.Spawn(g.ptrVType(), 0)
		g.emit(&ir.Instr{Op: ir.OpIofs, Dst: dst, Label: label})
		return dst
	}
	g.errorf("%s: variable %q has no addressable storage", g.fd.Name, info.Name)
	return nil
}

// genLval computes the address of an lvalue expression.
func (g *Generator) genLval(e cabs.Expr) *ir.VReg {
	switch x := e.(type) {
	case *cabs.Var:
		info := x.Scope.Lookup(x.Name)
		if info == nil {
			g.errorf("%s: unresolved variable %q", g.fd.Name, x.Name)
			return nil
		}
		if _, ok := g.varRegs[info]; ok {
			g.errorf("%s: internal: address of register variable %q", g.fd.Name, x.Name)
			return nil
		}
		return g.varAddr(info, x)

	case *cabs.Deref:
		return g.genExpr(x.Sub)

	case *cabs.Member:
		var base *ir.VReg
		if x.Arrow {
			base = g.genExpr(x.Target)
		} else {
			base = g.genLval(x.Target)
		}
		if base == nil || x.Info == nil {
			return base
		}
		if x.Info.Offset == 0 {
			return base
		}
		off := g.constReg(x.Info.Offset, g.ptrVType())
		dst := g.ra.Spawn(g.ptrVType(), 0)
		g.emit(&ir.Instr{Op: ir.OpAdd, Dst: dst, Opr1: base, Opr2: off})
		return dst

	case *cabs.StrLit:
		dst := g.ra.Spawn(g.ptrVType(), 0)
		g.emit(&ir.Instr{Op: ir.OpIofs, Dst: dst, Label: g.strLabel(x.Value)})
		return dst

	case *cabs.Cast:
		// Array decay produced by the parser: the address of the array is
		// the pointer value.
		if _, ok := x.Sub.Type().(*ctypes.Tarray); ok {
			return g.genLval(x.Sub)
		}
	}
	g.errorf("%s: expression is not an lvalue", g.fd.Name)
	return nil
}

func (g *Generator) genUnary(x *cabs.Unary) *ir.VReg {
	switch x.Op {
	case cabs.OpNeg:
		if ctypes.IsFloat(x.Type()) {
			// No float negate instruction; lower as 0.0 - x.
			single := false
			if f, ok := x.Type().(*ctypes.Tfloat); ok {
				single = f.Kind == ctypes.F32
			}
			addr := g.ra.Spawn(g.ptrVType(), 0)
			g.emit(&ir.Instr{Op: ir.OpIofs, Dst: addr, Label: g.floatLabel(0, single)})
			zero := g.ra.Spawn(g.toVType(x.Type()), 0)
			g.emit(&ir.Instr{Op: ir.OpLoad, Dst: zero, Opr1: addr})
			sub := g.genExpr(x.Sub)
			if sub == nil {
				return nil
			}
			dst := g.ra.Spawn(g.toVType(x.Type()), 0)
			g.emit(&ir.Instr{Op: ir.OpSub, Dst: dst, Opr1: zero, Opr2: sub})
			return dst
		}
		sub := g.genExpr(x.Sub)
		if sub == nil {
			return nil
		}
		dst := g.ra.Spawn(g.toVType(x.Type()), 0)
		g.emit(&ir.Instr{Op: ir.OpNeg, Dst: dst, Opr1: sub})
		return dst
	case cabs.OpBitNot:
		sub := g.genExpr(x.Sub)
		if sub == nil {
			return nil
		}
		dst := g.ra.Spawn(g.toVType(x.Type()), 0)
		g.emit(&ir.Instr{Op: ir.OpBitNot, Dst: dst, Opr1: sub})
		return dst
	case cabs.OpNot:
		cond := g.genCompareZero(x.Sub, false)
		return g.materializeCond(cond)
	}
	return nil
}

func (g *Generator) genBinary(x *cabs.Binary) *ir.VReg {
	if x.Op.IsCompare() {
		cond := g.genCompare(compareConds[x.Op], x.Left, x.Right)
		return g.materializeCond(cond)
	}
	if x.Op == cabs.OpLogAnd || x.Op == cabs.OpLogOr {
		return g.genShortCircuit(x)
	}

	l := g.genExpr(x.Left)
	r := g.genExpr(x.Right)
	if l == nil || r == nil {
		return nil
	}
	dst := g.ra.Spawn(g.toVType(x.Type()), 0)
	g.emit(&ir.Instr{Op: binOps[x.Op], Dst: dst, Opr1: l, Opr2: r})
	return dst
}

// genShortCircuit lowers && and || into their own branch CFG with a result
// vreg written on each arm.
func (g *Generator) genShortCircuit(x *cabs.Binary) *ir.VReg {
	trueBB := g.bbFor("sc_true")
	falseBB := g.bbFor("sc_false")
	nextBB := g.bbFor("sc_next")
	dst := g.ra.Spawn(g.toVType(x.Type()), 0)

	if x.Op == cabs.OpLogAnd {
		g.genCondJmp(x.Left, false, falseBB)
		g.setCurBB(g.newBB())
		g.genCondJmp(x.Right, false, falseBB)
	} else {
		g.genCondJmp(x.Left, true, trueBB)
		g.setCurBB(g.newBB())
		g.genCondJmp(x.Right, true, trueBB)
	}
	g.jmp(trueBB)

	g.setCurBB(trueBB)
	g.emit(&ir.Instr{Op: ir.OpMov, Dst: dst, Opr1: g.constReg(1, dst.VT)})
	g.jmp(nextBB)

	g.setCurBB(falseBB)
	g.emit(&ir.Instr{Op: ir.OpMov, Dst: dst, Opr1: g.constReg(0, dst.VT)})
	g.jmp(nextBB)

	g.setCurBB(nextBB)
	return dst
}

// genCompare emits a cmp and returns the condition to test, folding
// constant comparisons to always/never and swapping a constant left
// operand to the right.
func (g *Generator) genCompare(cond ir.Cond, lhs, rhs cabs.Expr) ir.Cond {
	l := g.genExpr(lhs)
	r := g.genExpr(rhs)
	if l == nil || r == nil {
		return ir.CondNone
	}
	if l.IsConst() && !r.IsConst() {
		l, r = r, l
		cond = cond.Swap()
	}
	if ctypes.IsUnsigned(lhs.Type()) || ctypes.IsPointer(lhs.Type()) {
		cond |= ir.CondUnsigned
	}
	if ctypes.IsFloat(lhs.Type()) {
		cond |= ir.CondFlonum
	}
	if l.IsConst() && r.IsConst() {
		if constCompareHolds(cond, l.Fixnum, r.Fixnum) {
			return ir.CondAny
		}
		return ir.CondNone
	}
	g.emit(&ir.Instr{Op: ir.OpCmp, Opr1: l, Opr2: r})
	return cond
}

func constCompareHolds(cond ir.Cond, a, b int64) bool {
	if cond&ir.CondUnsigned != 0 {
		ua, ub := uint64(a), uint64(b)
		switch cond.Kind() {
		case ir.CondEq:
			return ua == ub
		case ir.CondNe:
			return ua != ub
		case ir.CondLt:
			return ua < ub
		case ir.CondLe:
			return ua <= ub
		case ir.CondGe:
			return ua >= ub
		case ir.CondGt:
			return ua > ub
		}
	}
	switch cond.Kind() {
	case ir.CondEq:
		return a == b
	case ir.CondNe:
		return a != b
	case ir.CondLt:
		return a < b
	case ir.CondLe:
		return a <= b
	case ir.CondGe:
		return a >= b
	case ir.CondGt:
		return a > b
	}
	return false
}

// genCompareZero compares an arbitrary scalar against zero; tf selects the
// truth sense of the returned condition.
func (g *Generator) genCompareZero(e cabs.Expr, tf bool) ir.Cond {
	cond := ir.CondNe
	if !tf {
		cond = ir.CondEq
	}
	if b, ok := e.(*cabs.Binary); ok && b.Op.IsCompare() {
		c := g.genCompare(compareConds[b.Op], b.Left, b.Right)
		if !tf {
			c = c.Invert()
		}
		return c
	}
	v := g.genExpr(e)
	if v == nil {
		return ir.CondNone
	}
	if v.IsConst() {
		if (v.Fixnum != 0) == tf {
			return ir.CondAny
		}
		return ir.CondNone
	}
	zero := g.constReg(0, v.VT)
	g.emit(&ir.Instr{Op: ir.OpCmp, Opr1: v, Opr2: zero})
	return cond
}

// materializeCond turns a condition into a 0/1 vreg.
func (g *Generator) materializeCond(cond ir.Cond) *ir.VReg {
	dst := g.ra.Spawn(ir.VRegType{Size: 4, Align: 4}, 0)
	switch cond.Kind() {
	case ir.CondAny:
		g.emit(&ir.Instr{Op: ir.OpMov, Dst: dst, Opr1: g.constReg(1, dst.VT)})
	case ir.CondNone:
		g.emit(&ir.Instr{Op: ir.OpMov, Dst: dst, Opr1: g.constReg(0, dst.VT)})
	default:
		g.emit(&ir.Instr{Op: ir.OpCond, Dst: dst, Cond: cond})
	}
	return dst
}

// genCondJmp branches to bb when cond's truth matches tf. Logical
// operators generate their own branch CFG.
func (g *Generator) genCondJmp(cond cabs.Expr, tf bool, bb *ir.BB) {
	switch x := cond.(type) {
	case *cabs.Binary:
		switch x.Op {
		case cabs.OpLogAnd:
			if tf {
				skip := g.bbFor("and_skip")
				g.genCondJmp(x.Left, false, skip)
				g.setCurBB(g.newBB())
				g.genCondJmp(x.Right, true, bb)
				g.jmp(skip)
				g.setCurBB(skip)
			} else {
				g.genCondJmp(x.Left, false, bb)
				g.setCurBB(g.newBB())
				g.genCondJmp(x.Right, false, bb)
				g.setCurBB(g.newBB())
			}
			return
		case cabs.OpLogOr:
			if tf {
				g.genCondJmp(x.Left, true, bb)
				g.setCurBB(g.newBB())
				g.genCondJmp(x.Right, true, bb)
				g.setCurBB(g.newBB())
			} else {
				skip := g.bbFor("or_skip")
				g.genCondJmp(x.Left, true, skip)
				g.setCurBB(g.newBB())
				g.genCondJmp(x.Right, false, bb)
				g.jmp(skip)
				g.setCurBB(skip)
			}
			return
		}
	}

	c := g.genCompareZero(cond, tf)
	switch c.Kind() {
	case ir.CondAny:
		g.jmp(bb)
		g.setCurBB(g.newBB())
	case ir.CondNone:
		// never taken
	default:
		g.emit(&ir.Instr{Op: ir.OpJmp, Cond: c, BB: bb})
	}
}

func (g *Generator) genAssign(x *cabs.Assign) *ir.VReg {
	val := g.genExpr(x.Right)
	if val == nil {
		return nil
	}
	return g.storeTo(x.Left, val)
}

// storeTo writes val into the lvalue dst and returns the stored value.
func (g *Generator) storeTo(dst cabs.Expr, val *ir.VReg) *ir.VReg {
	if v, ok := dst.(*cabs.Var); ok {
		if info := v.Scope.Lookup(v.Name); info != nil {
			if vr, ok := g.varRegs[info]; ok {
				g.emit(&ir.Instr{Op: ir.OpMov, Dst: vr, Opr1: val})
				return vr
			}
		}
	}
	if m, ok := dst.(*cabs.Member); ok && m.Info != nil && m.Info.Bitfield != nil {
		addr := g.genLval(m)
		if addr != nil {
			g.storeBitfield(addr, m, val)
		}
		return val
	}
	addr := g.genLval(dst)
	if addr == nil {
		return val
	}
	g.emit(&ir.Instr{Op: ir.OpStore, Opr1: addr, Opr2: val})
	return val
}

func (g *Generator) genCompoundAssign(x *cabs.CompoundAssign) *ir.VReg {
	rhs := g.genExpr(x.Right)
	if rhs == nil {
		return nil
	}

	// Register-resident target: combine in place.
	if v, ok := x.Left.(*cabs.Var); ok {
		if info := v.Scope.Lookup(v.Name); info != nil {
			if vr, ok := g.varRegs[info]; ok {
				tmp := g.ra.Spawn(vr.VT, 0)
				g.emit(&ir.Instr{Op: binOps[x.Op], Dst: tmp, Opr1: vr, Opr2: rhs})
				g.emit(&ir.Instr{Op: ir.OpMov, Dst: vr, Opr1: tmp})
				return vr
			}
		}
	}

	// Memory target: produce the address once, then load-combine-store.
	addr := g.genLval(x.Left)
	if addr == nil {
		return nil
	}
	old := g.ra.Spawn(g.toVType(x.Left.Type()), 0)
	g.emit(&ir.Instr{Op: ir.OpLoad, Dst: old, Opr1: addr})
	res := g.ra.Spawn(g.toVType(x.Type()), 0)
	g.emit(&ir.Instr{Op: binOps[x.Op], Dst: res, Opr1: old, Opr2: rhs})
	g.emit(&ir.Instr{Op: ir.OpStore, Opr1: addr, Opr2: res})
	return res
}

func (g *Generator) genIncDec(x *cabs.IncDec) *ir.VReg {
	delta := int64(1)
	if pt, ok := x.Type().(*ctypes.Tpointer); ok {
		delta = g.target.SizeOf(pt.Elem)
	}
	op := ir.OpAdd
	if !x.Inc {
		op = ir.OpSub
	}

	if v, ok := x.Sub.(*cabs.Var); ok {
		if info := v.Scope.Lookup(v.Name); info != nil {
			if vr, ok := g.varRegs[info]; ok {
				var keep *ir.VReg
				if !x.Pre {
					keep = g.ra.Spawn(vr.VT, 0)
					g.emit(&ir.Instr{Op: ir.OpMov, Dst: keep, Opr1: vr})
				}
				tmp := g.ra.Spawn(vr.VT, 0)
				g.emit(&ir.Instr{Op: op, Dst: tmp, Opr1: vr, Opr2: g.constReg(delta, vr.VT)})
				g.emit(&ir.Instr{Op: ir.OpMov, Dst: vr, Opr1: tmp})
				if x.Pre {
					return vr
				}
				return keep
			}
		}
	}

	addr := g.genLval(x.Sub)
	if addr == nil {
		return nil
	}
	old := g.ra.Spawn(g.toVType(x.Type()), 0)
	g.emit(&ir.Instr{Op: ir.OpLoad, Dst: old, Opr1: addr})
	updated := g.ra.Spawn(old.VT, 0)
	g.emit(&ir.Instr{Op: op, Dst: updated, Opr1: old, Opr2: g.constReg(delta, old.VT)})
	g.emit(&ir.Instr{Op: ir.OpStore, Opr1: addr, Opr2: updated})
	if x.Pre {
		return updated
	}
	return old
}

func (g *Generator) genCast(x *cabs.Cast) *ir.VReg {
	// Array decay: the value is the array's address.
	if _, ok := x.Sub.Type().(*ctypes.Tarray); ok {
		return g.genLval(x.Sub)
	}
	// Function decay: a function designator becomes its symbol address.
	if isFuncType(x.Sub.Type()) {
		return g.genExpr(x.Sub)
	}

	sub := g.genExpr(x.Sub)
	if sub == nil {
		return nil
	}
	if ctypes.IsVoid(x.Type()) {
		return nil
	}
	dstVT := g.toVType(x.Type())
	if sub.IsConst() && !dstVT.Flonum && !sub.VT.Flonum {
		return g.constReg(sub.Fixnum, dstVT)
	}
	if dstVT.Size == sub.VT.Size && dstVT.Flonum == sub.VT.Flonum && dstVT.Unsigned == sub.VT.Unsigned {
		return sub
	}
	dst := g.ra.Spawn(dstVT, 0)
	g.emit(&ir.Instr{Op: ir.OpCast, Dst: dst, Opr1: sub})
	return dst
}

func (g *Generator) genTernary(x *cabs.Ternary) *ir.VReg {
	thenBB := g.bbFor("tern_then")
	elseBB := g.bbFor("tern_else")
	nextBB := g.bbFor("tern_next")

	var dst *ir.VReg
	if !ctypes.IsVoid(x.Type()) {
		dst = g.ra.Spawn(g.toVType(x.Type()), 0)
	}

	g.genCondJmp(x.Cond, false, elseBB)
	g.setCurBB(thenBB)
	if v := g.genExpr(x.Then); v != nil && dst != nil {
		g.emit(&ir.Instr{Op: ir.OpMov, Dst: dst, Opr1: v})
	}
	g.jmp(nextBB)

	g.setCurBB(elseBB)
	if v := g.genExpr(x.Else); v != nil && dst != nil {
		g.emit(&ir.Instr{Op: ir.OpMov, Dst: dst, Opr1: v})
	}
	g.jmp(nextBB)

	g.setCurBB(nextBB)
	return dst
}

// exprNeedsHoist reports whether evaluating e may clobber argument-passing
// registers: it contains a call, or a div/mod that executes in fixed
// registers.
func exprNeedsHoist(e cabs.Expr) bool {
	found := false
	traverse.WalkExpr(e, func(sub cabs.Expr) {
		switch s := sub.(type) {
		case *cabs.Call:
			found = true
		case *cabs.Binary:
			if s.Op == cabs.OpDiv || s.Op == cabs.OpMod {
				found = true
			}
		case *cabs.CompoundAssign:
			if s.Op == cabs.OpDiv || s.Op == cabs.OpMod {
				found = true
			}
		}
	})
	return found
}

// genFuncall lowers a call: funarg simplification first, then precall,
// argument pushes right to left, the call itself, and stack-pointer
// restoration. Struct returns get a hidden pointer to a caller-allocated
// temporary as the first argument.
func (g *Generator) genFuncall(x *cabs.Call) *ir.VReg {
	intRegs := len(g.cfg.ParamMapping)
	fltRegs := g.cfg.FTempCount

	// Funarg simplification: any argument whose evaluation could clobber
	// argument registers is evaluated into a temporary before the call
	// sequence begins.
	args := make([]*ir.VReg, len(x.Args))
	for i, arg := range x.Args {
		if _, ok := arg.Type().(*ctypes.Tstruct); ok {
			g.errorf("%s: struct-valued arguments are not supported", g.fd.Name)
			return nil
		}
		if exprNeedsHoist(arg) {
			v := g.genExpr(arg)
			if v == nil {
				return nil
			}
			tmp := g.ra.Spawn(v.VT, 0)
			g.emit(&ir.Instr{Op: ir.OpMov, Dst: tmp, Opr1: v})
			args[i] = tmp
		}
	}

	// Hidden return-slot pointer for struct-valued calls.
	var sret *ir.VReg
	if st, ok := x.Type().(*ctypes.Tstruct); ok {
		off := g.allocFrame(g.target.SizeOf(st), g.target.AlignOf(st))
		sret = g.ra.Spawn(g.ptrVType(), 0)
		g.emit(&ir.Instr{Op: ir.OpBofs, Dst: sret, Value: off})
	}

	precall := g.emit(&ir.Instr{Op: ir.OpPrecall})

	// Assign argument slots left to right: integer and floating arguments
	// are counted in separate register classes, overflow goes to the stack.
	type slot struct {
		index int
		vreg  *ir.VReg
		expr  cabs.Expr
	}
	slots := make([]slot, 0, len(x.Args)+1)
	intIdx, fltIdx, stackSlots := 0, 0, 0
	if sret != nil {
		slots = append(slots, slot{index: intIdx, vreg: sret})
		intIdx++
	}
	for i, arg := range x.Args {
		var idx int
		if ctypes.IsFloat(arg.Type()) {
			idx = fltIdx
			fltIdx++
			if idx >= fltRegs {
				idx = fltRegs + stackSlots
				stackSlots++
			}
		} else {
			idx = intIdx
			intIdx++
			if idx >= intRegs {
				idx = intRegs + stackSlots
				stackSlots++
			}
		}
		slots = append(slots, slot{index: idx, vreg: args[i], expr: arg})
	}

	stackBytes := int64(stackSlots) * 8
	if stackBytes%16 != 0 {
		stackBytes += 8
	}
	if stackBytes > 0 {
		g.emit(&ir.Instr{Op: ir.OpSubSP, Value: stackBytes})
	}

	// Evaluate and push right to left.
	regArgs := 0
	for i := len(slots) - 1; i >= 0; i-- {
		s := slots[i]
		v := s.vreg
		if v == nil {
			v = g.genExpr(s.expr)
			if v == nil {
				return nil
			}
		}
		isFlt := v.VT.Flonum
		if (isFlt && s.index < fltRegs) || (!isFlt && s.index < intRegs) {
			regArgs++
		}
		g.emit(&ir.Instr{Op: ir.OpPushArg, Opr1: v, Value: int64(s.index)})
	}

	var dst *ir.VReg
	retTy := x.Type()
	if sret != nil {
		dst = g.ra.Spawn(g.ptrVType(), 0)
	} else if !ctypes.IsVoid(retTy) {
		dst = g.ra.Spawn(g.toVType(retTy), 0)
	}

	call := &ir.Instr{
		Op:          ir.OpCall,
		Dst:         dst,
		ArgCount:    len(slots),
		RegArgCount: regArgs,
	}
	if name, ok := directCallee(x.Fn); ok {
		call.Label = name
	} else {
		call.Opr1 = g.genExpr(x.Fn)
		if call.Opr1 == nil {
			return nil
		}
	}
	g.emit(call)
	precall.Value = stackBytes

	if stackBytes > 0 {
		g.emit(&ir.Instr{Op: ir.OpSubSP, Value: -stackBytes})
	}
	return dst
}

// directCallee unwraps a direct function reference, looking through the
// function-to-pointer decay cast.
func directCallee(fn cabs.Expr) (string, bool) {
	if c, ok := fn.(*cabs.Cast); ok && c.Implicit {
		fn = c.Sub
	}
	if v, ok := fn.(*cabs.Var); ok {
		if isFuncType(v.Type()) {
			return v.Name, true
		}
	}
	return "", false
}

// loadBitfield extracts a bitfield member: load the storage unit, shift
// down and mask, sign-extending signed fields.
func (g *Generator) loadBitfield(addr *ir.VReg, m *cabs.Member) *ir.VReg {
	bf := m.Info.Bitfield
	baseTy := &ctypes.Tint{Kind: bf.Base}
	unit := g.ra.Spawn(g.toVType(baseTy), 0)
	g.emit(&ir.Instr{Op: ir.OpLoad, Dst: unit, Opr1: addr})

	if !ctypes.IsUnsigned(m.Type()) {
		// Signed field: move it to the top of the unit, then shift it back
		// down arithmetically.
		bits := unit.VT.Size * 8
		top := unit
		if up := bits - int64(bf.Position) - int64(bf.Width); up > 0 {
			top = g.ra.Spawn(unit.VT, 0)
			g.emit(&ir.Instr{Op: ir.OpLShift, Dst: top, Opr1: unit, Opr2: g.constReg(up, unit.VT)})
		}
		dst := g.ra.Spawn(unit.VT, 0)
		g.emit(&ir.Instr{Op: ir.OpRShift, Dst: dst, Opr1: top, Opr2: g.constReg(bits-int64(bf.Width), unit.VT)})
		return dst
	}

	shifted := unit
	if bf.Position > 0 {
		shifted = g.ra.Spawn(unit.VT, 0)
		g.emit(&ir.Instr{Op: ir.OpRShift, Dst: shifted, Opr1: unit, Opr2: g.constReg(int64(bf.Position), unit.VT)})
	}
	mask := int64(1)<<uint(bf.Width) - 1
	dst := g.ra.Spawn(g.toVType(m.Type()), 0)
	g.emit(&ir.Instr{Op: ir.OpBitAnd, Dst: dst, Opr1: shifted, Opr2: g.constReg(mask, shifted.VT)})
	return dst
}

// storeBitfield read-modify-writes a bitfield member.
func (g *Generator) storeBitfield(addr *ir.VReg, m *cabs.Member, val *ir.VReg) {
	bf := m.Info.Bitfield
	baseTy := &ctypes.Tint{Kind: bf.Base}
	unit := g.ra.Spawn(g.toVType(baseTy), 0)
	g.emit(&ir.Instr{Op: ir.OpLoad, Dst: unit, Opr1: addr})

	mask := (int64(1)<<uint(bf.Width) - 1) << uint(bf.Position)
	cleared := g.ra.Spawn(unit.VT, 0)
	g.emit(&ir.Instr{Op: ir.OpBitAnd, Dst: cleared, Opr1: unit, Opr2: g.constReg(^mask, unit.VT)})

	masked := g.ra.Spawn(unit.VT, 0)
	g.emit(&ir.Instr{Op: ir.OpBitAnd, Dst: masked, Opr1: val, Opr2: g.constReg(int64(1)<<uint(bf.Width)-1, unit.VT)})
	placed := masked
	if bf.Position > 0 {
		placed = g.ra.Spawn(unit.VT, 0)
		g.emit(&ir.Instr{Op: ir.OpLShift, Dst: placed, Opr1: masked, Opr2: g.constReg(int64(bf.Position), unit.VT)})
	}
	merged := g.ra.Spawn(unit.VT, 0)
	g.emit(&ir.Instr{Op: ir.OpBitOr, Dst: merged, Opr1: cleared, Opr2: placed})
	g.emit(&ir.Instr{Op: ir.OpStore, Opr1: addr, Opr2: merged})
}

// StaticLocal is a function-scoped static hoisted into the data section.
type StaticLocal struct {
	Label string
	Info  *cabs.VarInfo
}

// StaticLocals lists the function-scoped statics encountered, in order.
func (g *Generator) StaticLocals() []StaticLocal {
	return g.staticLocals
}

func (g *Generator) staticLocalLabel(info *cabs.VarInfo) string {
	for _, sl := range g.staticLocals {
		if sl.Info == info {
			return sl.Label
		}
	}
	label := fmt.Sprintf("%s.%s.%d", g.fd.Name, info.Name, len(g.staticLocals))
	g.staticLocals = append(g.staticLocals, StaticLocal{Label: label, Info: info})
	return label
}
