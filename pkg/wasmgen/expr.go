package wasmgen

import (
	"math"

	"github.com/jainl28patel/xcc/pkg/cabs"
	"github.com/jainl28patel/xcc/pkg/ctypes"
)

// arithOps is indexed by [type class][operator]; class 0 = i32, 1 = i64,
// 2 = f32, 3 = f64.
var arithOps = [4]map[cabs.BinaryOp]byte{
	{
		cabs.OpAdd: OpI32Add, cabs.OpSub: OpI32Sub, cabs.OpMul: OpI32Mul,
		cabs.OpDiv: OpI32DivS, cabs.OpMod: OpI32RemS,
		cabs.OpBitAnd: OpI32And, cabs.OpBitOr: OpI32Or, cabs.OpBitXor: OpI32Xor,
		cabs.OpShl: OpI32Shl, cabs.OpShr: OpI32ShrS,
	},
	{
		cabs.OpAdd: OpI64Add, cabs.OpSub: OpI64Sub, cabs.OpMul: OpI64Mul,
		cabs.OpDiv: OpI64DivS, cabs.OpMod: OpI64RemS,
		cabs.OpBitAnd: OpI64And, cabs.OpBitOr: OpI64Or, cabs.OpBitXor: OpI64Xor,
		cabs.OpShl: OpI64Shl, cabs.OpShr: OpI64ShrS,
	},
	{
		cabs.OpAdd: OpF32Add, cabs.OpSub: OpF32Sub,
		cabs.OpMul: OpF32Mul, cabs.OpDiv: OpF32Div,
	},
	{
		cabs.OpAdd: OpF64Add, cabs.OpSub: OpF64Sub,
		cabs.OpMul: OpF64Mul, cabs.OpDiv: OpF64Div,
	},
}

// unsignedOverrides swaps in the unsigned variants for division, remainder
// and right shift.
var unsignedOverrides = [2]map[cabs.BinaryOp]byte{
	{cabs.OpDiv: OpI32DivU, cabs.OpMod: OpI32RemU, cabs.OpShr: OpI32ShrU},
	{cabs.OpDiv: OpI64DivU, cabs.OpMod: OpI64RemU, cabs.OpShr: OpI64ShrU},
}

// compareOps is indexed by [type class][operator].
var compareOps = [4]map[cabs.BinaryOp]byte{
	{
		cabs.OpEq: OpI32Eq, cabs.OpNe: OpI32Ne,
		cabs.OpLt: OpI32LtS, cabs.OpLe: OpI32LeS,
		cabs.OpGe: OpI32GeS, cabs.OpGt: OpI32GtS,
	},
	{
		cabs.OpEq: OpI64Eq, cabs.OpNe: OpI64Ne,
		cabs.OpLt: OpI64LtS, cabs.OpLe: OpI64LeS,
		cabs.OpGe: OpI64GeS, cabs.OpGt: OpI64GtS,
	},
	{
		cabs.OpEq: OpF32Eq, cabs.OpNe: OpF32Ne,
		cabs.OpLt: OpF32Lt, cabs.OpLe: OpF32Le,
		cabs.OpGe: OpF32Ge, cabs.OpGt: OpF32Gt,
	},
	{
		cabs.OpEq: OpF64Eq, cabs.OpNe: OpF64Ne,
		cabs.OpLt: OpF64Lt, cabs.OpLe: OpF64Le,
		cabs.OpGe: OpF64Ge, cabs.OpGt: OpF64Gt,
	},
}

var unsignedCompares = [2]map[cabs.BinaryOp]byte{
	{cabs.OpLt: OpI32LtU, cabs.OpLe: OpI32LeU, cabs.OpGe: OpI32GeU, cabs.OpGt: OpI32GtU},
	{cabs.OpLt: OpI64LtU, cabs.OpLe: OpI64LeU, cabs.OpGe: OpI64GeU, cabs.OpGt: OpI64GtU},
}

// typeClass maps a type onto the opcode-table row.
func (g *Generator) typeClass(t ctypes.Type) int {
	if f, ok := t.(*ctypes.Tfloat); ok {
		if f.Kind == ctypes.F32 {
			return 2
		}
		return 3
	}
	if g.target.SizeOf(t) > i32Size {
		return 1
	}
	return 0
}

func (g *Generator) genArith(op cabs.BinaryOp, t ctypes.Type) {
	class := g.typeClass(t)
	if class < 2 && ctypes.IsUnsigned(t) {
		if code, ok := unsignedOverrides[class][op]; ok {
			g.code.Push(code)
			return
		}
	}
	if code, ok := arithOps[class][op]; ok {
		g.code.Push(code)
		return
	}
	g.errorf("%s: operator %s is not defined for %s", g.fd.Name, op, t)
}

func (g *Generator) genExpr(e cabs.Expr) {
	switch x := e.(type) {
	case *cabs.IntLit:
		if g.target.SizeOf(x.Type()) <= i32Size {
			g.code.Push(OpI32Const)
			g.code.AddLEB128(int64(int32(x.Value)))
		} else {
			g.code.Push(OpI64Const)
			g.code.AddLEB128(x.Value)
		}

	case *cabs.FloatLit:
		if f, ok := x.Type().(*ctypes.Tfloat); ok && f.Kind == ctypes.F32 {
			g.code.Push(OpF32Const)
			g.appendF32(float32(x.Value))
		} else {
			g.code.Push(OpF64Const)
			g.appendF64(x.Value)
		}

	case *cabs.Var:
		g.genVarGet(x)

	case *cabs.Binary:
		g.genBinary(x)

	case *cabs.Unary:
		g.genUnary(x)

	case *cabs.Assign:
		g.genAssign(x)

	case *cabs.CompoundAssign:
		g.genCompoundAssign(x)

	case *cabs.IncDec:
		g.genIncDec(x)

	case *cabs.Cast:
		g.genExpr(x.Sub)
		g.genCastOp(x.Type(), x.Sub.Type())

	case *cabs.Call:
		g.genFuncall(x)

	case *cabs.Ternary:
		g.genCond(x.Cond, true)
		g.code.Push(OpIf)
		g.code.Push(g.toWType(x.Type()))
		g.curDepth++
		g.genExpr(x.Then)
		g.code.Push(OpElse)
		g.genExpr(x.Else)
		g.code.Push(OpEnd)
		g.curDepth--

	case *cabs.Comma:
		g.genExprStmt(x.Left)
		g.genExpr(x.Right)

	default:
		g.errorf("%s: expression %T is not supported on the wasm target", g.fd.Name, e)
	}
}

// localVar resolves a variable reference to a wasm local, or nil when the
// variable is global.
func (g *Generator) localVar(x *cabs.Var) (*cabs.VarInfo, bool) {
	info := x.Scope.Lookup(x.Name)
	if info == nil {
		g.errorf("%s: unresolved variable %q", g.fd.Name, x.Name)
		return nil, false
	}
	if !x.Scope.IsGlobal() && info.Storage&(cabs.StorageStatic|cabs.StorageExtern) == 0 {
		return info, true
	}
	return info, false
}

func (g *Generator) genVarGet(x *cabs.Var) {
	info, isLocal := g.localVar(x)
	if info == nil {
		return
	}
	if isLocal {
		idx, ok := g.locals[info]
		if !ok {
			g.errorf("%s: local %q has no wasm slot", g.fd.Name, x.Name)
			return
		}
		g.code.Push(OpLocalGet)
		g.code.AddULEB128(uint64(idx))
		return
	}
	idx, ok := g.globalIndex[info]
	if !ok {
		g.errorf("%s: global %q is not representable on the wasm target", g.fd.Name, x.Name)
		return
	}
	g.code.Push(OpGlobalGet)
	g.code.AddULEB128(uint64(idx))
}

// storeVar assigns the value on the stack to the variable and leaves the
// stored value on the stack.
func (g *Generator) storeVar(x *cabs.Var) {
	info, isLocal := g.localVar(x)
	if info == nil {
		return
	}
	if isLocal {
		idx, ok := g.locals[info]
		if !ok {
			g.errorf("%s: local %q has no wasm slot", g.fd.Name, x.Name)
			return
		}
		g.code.Push(OpLocalTee)
		g.code.AddULEB128(uint64(idx))
		return
	}
	idx, ok := g.globalIndex[info]
	if !ok {
		g.errorf("%s: global %q is not representable on the wasm target", g.fd.Name, x.Name)
		return
	}
	g.code.Push(OpGlobalSet)
	g.code.AddULEB128(uint64(idx))
	g.code.Push(OpGlobalGet)
	g.code.AddULEB128(uint64(idx))
}

func (g *Generator) genBinary(x *cabs.Binary) {
	switch {
	case x.Op.IsCompare():
		g.genCompareExpr(x.Op, x.Left, x.Right)
	case x.Op == cabs.OpLogAnd || x.Op == cabs.OpLogOr:
		g.genCond(x, true)
	default:
		g.genExpr(x.Left)
		g.genExpr(x.Right)
		g.genArith(x.Op, x.Type())
	}
}

func (g *Generator) genUnary(x *cabs.Unary) {
	switch x.Op {
	case cabs.OpNeg:
		// 0 - x
		switch g.typeClass(x.Type()) {
		case 0:
			g.code.Push(OpI32Const)
			g.code.AddLEB128(0)
		case 1:
			g.code.Push(OpI64Const)
			g.code.AddLEB128(0)
		case 2:
			g.code.Push(OpF32Const)
			g.appendF32(0)
		case 3:
			g.code.Push(OpF64Const)
			g.appendF64(0)
		}
		g.genExpr(x.Sub)
		g.genArith(cabs.OpSub, x.Type())

	case cabs.OpBitNot:
		// x ^ -1
		g.genExpr(x.Sub)
		if g.typeClass(x.Type()) == 1 {
			g.code.Push(OpI64Const)
		} else {
			g.code.Push(OpI32Const)
		}
		g.code.AddLEB128(-1)
		g.genArith(cabs.OpBitXor, x.Type())

	case cabs.OpNot:
		g.genCond(x.Sub, false)
	}
}

func (g *Generator) genAssign(x *cabs.Assign) {
	lhs, ok := x.Left.(*cabs.Var)
	if !ok {
		g.errorf("%s: assignment target is not supported on the wasm target", g.fd.Name)
		return
	}
	g.genExpr(x.Right)
	g.storeVar(lhs)
}

func (g *Generator) genCompoundAssign(x *cabs.CompoundAssign) {
	lhs, ok := x.Left.(*cabs.Var)
	if !ok {
		g.errorf("%s: compound assignment target is not supported on the wasm target", g.fd.Name)
		return
	}
	g.genVarGet(lhs)
	g.genExpr(x.Right)
	g.genArith(x.Op, x.Type())
	g.storeVar(lhs)
}

func (g *Generator) genIncDec(x *cabs.IncDec) {
	sub, ok := x.Sub.(*cabs.Var)
	if !ok {
		g.errorf("%s: increment target is not supported on the wasm target", g.fd.Name)
		return
	}
	class := g.typeClass(x.Type())
	if class >= 2 {
		g.errorf("%s: floating increment is not supported on the wasm target", g.fd.Name)
		return
	}
	pushOne := func() {
		if class == 1 {
			g.code.Push(OpI64Const)
		} else {
			g.code.Push(OpI32Const)
		}
		g.code.AddLEB128(1)
	}
	op := cabs.OpAdd
	if !x.Inc {
		op = cabs.OpSub
	}
	if x.Pre {
		g.genVarGet(sub)
		pushOne()
		g.genArith(op, x.Type())
		g.storeVar(sub)
		return
	}
	// Postfix: push the old value first, then update.
	g.genVarGet(sub)
	g.genVarGet(sub)
	pushOne()
	g.genArith(op, x.Type())
	g.storeTo(sub)
}

// storeTo is storeVar without leaving the value on the stack.
func (g *Generator) storeTo(x *cabs.Var) {
	info, isLocal := g.localVar(x)
	if info == nil {
		return
	}
	if isLocal {
		if idx, ok := g.locals[info]; ok {
			g.code.Push(OpLocalSet)
			g.code.AddULEB128(uint64(idx))
		}
		return
	}
	if idx, ok := g.globalIndex[info]; ok {
		g.code.Push(OpGlobalSet)
		g.code.AddULEB128(uint64(idx))
	}
}

func (g *Generator) genCompareExpr(op cabs.BinaryOp, lhs, rhs cabs.Expr) {
	class := g.typeClass(lhs.Type())
	g.genExpr(lhs)
	g.genExpr(rhs)
	if class < 2 && ctypes.IsUnsigned(lhs.Type()) {
		if code, ok := unsignedCompares[class][op]; ok {
			g.code.Push(code)
			return
		}
	}
	g.code.Push(compareOps[class][op])
}

// negatedCompare flips a comparison operator's sense.
var negatedCompare = map[cabs.BinaryOp]cabs.BinaryOp{
	cabs.OpEq: cabs.OpNe,
	cabs.OpNe: cabs.OpEq,
	cabs.OpLt: cabs.OpGe,
	cabs.OpLe: cabs.OpGt,
	cabs.OpGe: cabs.OpLt,
	cabs.OpGt: cabs.OpLe,
}

// genCond pushes the truth value of cond (in the sense selected by tf) as
// an i32. Logical operators nest if/else blocks so evaluation stays
// short-circuit.
func (g *Generator) genCond(cond cabs.Expr, tf bool) {
	switch c := cond.(type) {
	case *cabs.Binary:
		switch {
		case c.Op.IsCompare():
			op := c.Op
			if !tf {
				op = negatedCompare[op]
			}
			g.genCompareExpr(op, c.Left, c.Right)
			return
		case c.Op == cabs.OpLogAnd:
			if tf {
				g.genCond(c.Left, true)
				g.code.Push(OpIf)
				g.code.Push(WTI32)
				g.curDepth++
				g.genCond(c.Right, true)
				g.code.Push(OpElse)
				g.code.Push(OpI32Const)
				g.code.AddLEB128(0)
				g.code.Push(OpEnd)
				g.curDepth--
			} else {
				g.genCond(c.Left, false)
				g.code.Push(OpIf)
				g.code.Push(WTI32)
				g.curDepth++
				g.code.Push(OpI32Const)
				g.code.AddLEB128(1)
				g.code.Push(OpElse)
				g.genCond(c.Right, false)
				g.code.Push(OpEnd)
				g.curDepth--
			}
			return
		case c.Op == cabs.OpLogOr:
			if tf {
				g.genCond(c.Left, true)
				g.code.Push(OpIf)
				g.code.Push(WTI32)
				g.curDepth++
				g.code.Push(OpI32Const)
				g.code.AddLEB128(1)
				g.code.Push(OpElse)
				g.genCond(c.Right, true)
				g.code.Push(OpEnd)
				g.curDepth--
			} else {
				g.genCond(c.Left, false)
				g.code.Push(OpIf)
				g.code.Push(WTI32)
				g.curDepth++
				g.genCond(c.Right, false)
				g.code.Push(OpElse)
				g.code.Push(OpI32Const)
				g.code.AddLEB128(0)
				g.code.Push(OpEnd)
				g.curDepth--
			}
			return
		}
	}

	// An arbitrary scalar compares against zero.
	g.genExpr(cond)
	switch g.typeClass(cond.Type()) {
	case 0:
		if tf {
			g.code.Push(OpI32Const)
			g.code.AddLEB128(0)
			g.code.Push(OpI32Ne)
		} else {
			g.code.Push(OpI32Eqz)
		}
	case 1:
		if tf {
			g.code.Push(OpI64Const)
			g.code.AddLEB128(0)
			g.code.Push(OpI64Ne)
		} else {
			g.code.Push(OpI64Eqz)
		}
	case 2:
		g.code.Push(OpF32Const)
		g.appendF32(0)
		if tf {
			g.code.Push(OpF32Ne)
		} else {
			g.code.Push(OpF32Eq)
		}
	case 3:
		g.code.Push(OpF64Const)
		g.appendF64(0)
		if tf {
			g.code.Push(OpF64Ne)
		} else {
			g.code.Push(OpF64Eq)
		}
	}
}

// genCondJmp emits a br_if to the given relative depth when cond's truth
// matches tf.
func (g *Generator) genCondJmp(cond cabs.Expr, tf bool, depth uint32) {
	g.genCond(cond, tf)
	g.code.Push(OpBrIf)
	g.code.AddULEB128(uint64(depth))
}

// genCastOp emits the conversion from src to dst for the value on the
// stack.
func (g *Generator) genCastOp(dst, src ctypes.Type) {
	if ctypes.IsVoid(dst) {
		g.code.Push(OpDrop)
		return
	}
	dc, sc := g.typeClass(dst), g.typeClass(src)
	if dc == sc {
		return
	}
	switch {
	case dc <= 1 && sc <= 1:
		if dc == 0 {
			g.code.Push(OpI32WrapI64)
		} else if ctypes.IsUnsigned(src) {
			g.code.Push(OpI64ExtendI32U)
		} else {
			g.code.Push(OpI64ExtendI32S)
		}
	case dc <= 1: // float -> int
		ops := [2][2]byte{
			{OpI32TruncF32S, OpI32TruncF64S},
			{OpI64TruncF32S, OpI64TruncF64S},
		}
		g.code.Push(ops[dc][sc-2])
	case sc <= 1: // int -> float
		ops := [2][2]byte{
			{OpF32ConvertI32S, OpF32ConvertI64S},
			{OpF64ConvertI32S, OpF64ConvertI64S},
		}
		g.code.Push(ops[dc-2][sc])
	case dc == 2:
		g.code.Push(OpF32DemoteF64)
	default:
		g.code.Push(OpF64PromoteF32)
	}
}

// genFuncall emits arguments left to right followed by a direct call. The
// wasm backend has no call_indirect table and no varargs lowering.
func (g *Generator) genFuncall(x *cabs.Call) {
	callee, ok := directCallee(x.Fn)
	if !ok {
		g.errorf("%s: indirect calls are not supported on the wasm target", g.fd.Name)
		return
	}
	info := g.table.Find(callee)
	if info == nil {
		g.errorf("%s: call to unknown function %q", g.fd.Name, callee)
		return
	}
	if info.Type.VarArg {
		g.errorf("%s: variadic call to %q is not supported on the wasm target", g.fd.Name, callee)
		return
	}
	for _, arg := range x.Args {
		g.genExpr(arg)
	}
	g.code.Push(OpCall)
	g.code.AddULEB128(uint64(info.Index))
}

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

func (g *Generator) appendF32(v float32) {
	bits := math.Float32bits(v)
	g.code.Append([]byte{byte(bits), byte(bits >> 8), byte(bits >> 16), byte(bits >> 24)})
}

func (g *Generator) appendF64(v float64) {
	bits := math.Float64bits(v)
	g.code.Append([]byte{
		byte(bits), byte(bits >> 8), byte(bits >> 16), byte(bits >> 24),
		byte(bits >> 32), byte(bits >> 40), byte(bits >> 48), byte(bits >> 56),
	})
}
