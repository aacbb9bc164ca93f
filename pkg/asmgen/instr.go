package asmgen

import (
	"math"

	"github.com/jainl28patel/xcc/pkg/ir"
	"github.com/jainl28patel/xcc/pkg/irgen"
)

func float64Bits(v float64) uint64 { return math.Float64bits(v) }
func floatBits32(v float32) uint32 { return math.Float32bits(v) }

// suffix returns the AT&T operation suffix for a byte size.
func suffix(size int64) string {
	switch size {
	case 1:
		return "b"
	case 2:
		return "w"
	case 4:
		return "l"
	default:
		return "q"
	}
}

// fltSuffix selects ss/sd by operand size.
func fltSuffix(size int64) string {
	if size == 4 {
		return "ss"
	}
	return "sd"
}

// opnd formats a vreg as an operand: an immediate for constants, a sized
// register otherwise.
func opnd(v *ir.VReg) string {
	if v.IsConst() {
		return "$" + itoa(v.Fixnum)
	}
	if v.VT.Flonum {
		return xmmName(v.Phys)
	}
	return regName(v.Phys, v.VT.Size)
}

// regOpnd materializes a constant vreg into scratch if needed and returns
// the register operand; cmp cannot take an immediate as its second operand.
func (e *Emitter) regOpnd(v *ir.VReg, scratch string) string {
	if !v.IsConst() {
		return opnd(v)
	}
	e.printf("\tmov%s\t$%d, %s\n", suffix(v.VT.Size), v.Fixnum, scratch)
	return scratch
}

// raxName returns rax at the vreg's size.
func raxName(size int64) string {
	switch size {
	case 1:
		return "%al"
	case 2:
		return "%ax"
	case 4:
		return "%eax"
	default:
		return "%rax"
	}
}

var condSuffixes = map[ir.Cond]string{
	ir.CondEq:                   "e",
	ir.CondNe:                   "ne",
	ir.CondLt:                   "l",
	ir.CondLe:                   "le",
	ir.CondGe:                   "ge",
	ir.CondGt:                   "g",
	ir.CondLt | ir.CondUnsigned: "b",
	ir.CondLe | ir.CondUnsigned: "be",
	ir.CondGe | ir.CondUnsigned: "ae",
	ir.CondGt | ir.CondUnsigned: "a",
	ir.CondEq | ir.CondUnsigned: "e",
	ir.CondNe | ir.CondUnsigned: "ne",
}

func condSuffix(c ir.Cond) string {
	if c&ir.CondFlonum != 0 {
		// Flag results of ucomis are consumed with the unsigned suffixes.
		c = c.Kind() | ir.CondUnsigned
	}
	if s, ok := condSuffixes[c&^ir.CondFlonum]; ok {
		return s
	}
	return "e"
}

func (e *Emitter) emitInstr(fn *irgen.Func, inst *ir.Instr) {
	switch inst.Op {
	case ir.OpMov:
		e.emitMov(inst.Dst, inst.Opr1)

	case ir.OpLoad:
		e.emitLoad(inst.Dst, "("+regName(inst.Opr1.Phys, 8)+")")

	case ir.OpStore:
		val := inst.Opr2
		addr := "(" + regName(inst.Opr1.Phys, 8) + ")"
		if val.VT.Flonum {
			e.printf("\tmov%s\t%s, %s\n", fltSuffix(val.VT.Size), xmmName(val.Phys), addr)
		} else if val.IsConst() {
			e.printf("\tmov%s\t$%d, %s\n", suffix(val.VT.Size), val.Fixnum, addr)
		} else {
			e.printf("\tmov%s\t%s, %s\n", suffix(val.VT.Size), regName(val.Phys, val.VT.Size), addr)
		}

	case ir.OpAdd, ir.OpSub, ir.OpBitAnd, ir.OpBitOr, ir.OpBitXor:
		e.emitBinop(inst)

	case ir.OpMul:
		e.emitMul(inst)

	case ir.OpDiv, ir.OpMod:
		e.emitDivMod(inst)

	case ir.OpLShift, ir.OpRShift:
		e.emitShift(inst)

	case ir.OpNeg:
		e.emitMov(inst.Dst, inst.Opr1)
		e.printf("\tneg%s\t%s\n", suffix(inst.Dst.VT.Size), opnd(inst.Dst))

	case ir.OpBitNot:
		e.emitMov(inst.Dst, inst.Opr1)
		e.printf("\tnot%s\t%s\n", suffix(inst.Dst.VT.Size), opnd(inst.Dst))

	case ir.OpCmp:
		l, r := inst.Opr1, inst.Opr2
		if l.VT.Flonum {
			e.printf("\tucomi%s\t%s, %s\n", fltSuffix(l.VT.Size), opnd(r), opnd(l))
		} else if l.IsConst() {
			reg := e.regOpnd(l, raxName(l.VT.Size))
			e.printf("\tcmp%s\t%s, %s\n", suffix(l.VT.Size), opnd(r), reg)
		} else {
			e.printf("\tcmp%s\t%s, %s\n", suffix(l.VT.Size), opnd(r), opnd(l))
		}

	case ir.OpCond:
		e.printf("\tset%s\t%%al\n", condSuffix(inst.Cond))
		e.printf("\tmovzbl\t%%al, %s\n", regName(inst.Dst.Phys, 4))

	case ir.OpJmp:
		if inst.Cond.Kind() == ir.CondAny {
			e.printf("\tjmp\t%s\n", inst.BB.Label)
		} else {
			e.printf("\tj%s\t%s\n", condSuffix(inst.Cond), inst.BB.Label)
		}

	case ir.OpCast:
		e.emitCast(inst)

	case ir.OpBofs:
		e.printf("\tleaq\t%d(%%rbp), %s\n", inst.Value, regName(inst.Dst.Phys, 8))

	case ir.OpIofs:
		e.printf("\tleaq\t%s(%%rip), %s\n", e.symbolRef(inst.Label), regName(inst.Dst.Phys, 8))

	case ir.OpSofs:
		e.printf("\tleaq\t%d(%%rsp), %s\n", inst.Value, regName(inst.Dst.Phys, 8))

	case ir.OpPrecall:
		// The allocator accounts for argument and clobbered registers
		// between here and the call; nothing to emit.

	case ir.OpPushArg:
		e.emitPushArg(inst)

	case ir.OpCall:
		if inst.Label != "" {
			e.printf("\tcall\t%s\n", e.symbolName(inst.Label))
		} else {
			e.printf("\tcall\t*%s\n", regName(inst.Opr1.Phys, 8))
		}
		if dst := inst.Dst; dst != nil {
			if dst.VT.Flonum {
				e.printf("\tmov%s\t%%xmm0, %s\n", fltSuffix(dst.VT.Size), xmmName(dst.Phys))
			} else {
				e.printf("\tmov%s\t%s, %s\n", suffix(dst.VT.Size), raxName(dst.VT.Size), regName(dst.Phys, dst.VT.Size))
			}
		}

	case ir.OpResult:
		v := inst.Opr1
		if v == nil {
			return
		}
		if v.VT.Flonum {
			e.printf("\tmov%s\t%s, %%xmm0\n", fltSuffix(v.VT.Size), xmmName(v.Phys))
		} else if v.IsConst() {
			e.printf("\tmov%s\t$%d, %s\n", suffix(v.VT.Size), v.Fixnum, raxName(v.VT.Size))
		} else {
			e.printf("\tmov%s\t%s, %s\n", suffix(v.VT.Size), regName(v.Phys, v.VT.Size), raxName(v.VT.Size))
		}

	case ir.OpSubSP:
		if inst.Value > 0 {
			e.printf("\tsubq\t$%d, %%rsp\n", inst.Value)
		} else if inst.Value < 0 {
			e.printf("\taddq\t$%d, %%rsp\n", -inst.Value)
		}

	case ir.OpAsm:
		e.printf("\t%s\n", escapeAsm(inst.Text))

	case ir.OpLoadSpilled:
		e.emitLoadSpilled(inst)

	case ir.OpStoreSpilled:
		e.emitStoreSpilled(inst)

	case ir.OpTableJmp:
		// Switches lower to compare-and-branch chains; a table jump here
		// is a lowering bug.
		panic("asmgen: unexpected tablejmp")
	}
}

// emitMov copies a value or materializes a constant into Dst.
func (e *Emitter) emitMov(dst, src *ir.VReg) {
	if dst.Phys == src.Phys && !src.IsConst() && dst.VT.Flonum == src.VT.Flonum {
		return
	}
	if dst.VT.Flonum {
		e.printf("\tmov%s\t%s, %s\n", fltSuffix(dst.VT.Size), xmmName(src.Phys), xmmName(dst.Phys))
		return
	}
	if src.IsConst() {
		if src.Fixnum == int64(int32(src.Fixnum)) || dst.VT.Size <= 4 {
			e.printf("\tmov%s\t$%d, %s\n", suffix(dst.VT.Size), src.Fixnum, regName(dst.Phys, dst.VT.Size))
		} else {
			e.printf("\tmovabsq\t$%d, %s\n", src.Fixnum, regName(dst.Phys, 8))
		}
		return
	}
	e.printf("\tmov%s\t%s, %s\n", suffix(dst.VT.Size), regName(src.Phys, dst.VT.Size), regName(dst.Phys, dst.VT.Size))
}

// emitLoad reads memory into Dst, widening sub-int values to 32 bits.
func (e *Emitter) emitLoad(dst *ir.VReg, addr string) {
	if dst.VT.Flonum {
		e.printf("\tmov%s\t%s, %s\n", fltSuffix(dst.VT.Size), addr, xmmName(dst.Phys))
		return
	}
	switch dst.VT.Size {
	case 1:
		if dst.VT.Unsigned {
			e.printf("\tmovzbl\t%s, %s\n", addr, regName(dst.Phys, 4))
		} else {
			e.printf("\tmovsbl\t%s, %s\n", addr, regName(dst.Phys, 4))
		}
	case 2:
		if dst.VT.Unsigned {
			e.printf("\tmovzwl\t%s, %s\n", addr, regName(dst.Phys, 4))
		} else {
			e.printf("\tmovswl\t%s, %s\n", addr, regName(dst.Phys, 4))
		}
	case 4:
		e.printf("\tmovl\t%s, %s\n", addr, regName(dst.Phys, 4))
	default:
		e.printf("\tmovq\t%s, %s\n", addr, regName(dst.Phys, 8))
	}
}

func (e *Emitter) emitBinop(inst *ir.Instr) {
	var mnemonic string
	switch inst.Op {
	case ir.OpAdd:
		mnemonic = "add"
	case ir.OpSub:
		mnemonic = "sub"
	case ir.OpBitAnd:
		mnemonic = "and"
	case ir.OpBitOr:
		mnemonic = "or"
	case ir.OpBitXor:
		mnemonic = "xor"
	}
	dst := inst.Dst
	if dst.VT.Flonum {
		var fm string
		switch inst.Op {
		case ir.OpAdd:
			fm = "add"
		case ir.OpSub:
			fm = "sub"
		}
		e.emitFltBinop(fm, dst, inst.Opr1, inst.Opr2, inst.Op == ir.OpAdd)
		return
	}

	// When the destination was assigned the second operand's register, a
	// commutative operation folds in place; subtraction detours via rax.
	if !inst.Opr2.IsConst() && inst.Opr2.Phys == dst.Phys {
		if inst.Op == ir.OpSub {
			sfx := suffix(dst.VT.Size)
			if inst.Opr1.IsConst() {
				e.printf("\tmov%s\t$%d, %s\n", sfx, inst.Opr1.Fixnum, raxName(dst.VT.Size))
			} else {
				e.printf("\tmov%s\t%s, %s\n", sfx, regName(inst.Opr1.Phys, dst.VT.Size), raxName(dst.VT.Size))
			}
			e.printf("\tsub%s\t%s, %s\n", sfx, regName(inst.Opr2.Phys, dst.VT.Size), raxName(dst.VT.Size))
			e.printf("\tmov%s\t%s, %s\n", sfx, raxName(dst.VT.Size), regName(dst.Phys, dst.VT.Size))
			return
		}
		e.printf("\t%s%s\t%s, %s\n", mnemonic, suffix(dst.VT.Size), opnd(inst.Opr1), regName(dst.Phys, dst.VT.Size))
		return
	}
	e.emitMov(dst, inst.Opr1)
	e.printf("\t%s%s\t%s, %s\n", mnemonic, suffix(dst.VT.Size), opnd(inst.Opr2), regName(dst.Phys, dst.VT.Size))
}

// emitFltBinop performs dst = opr1 op opr2 on xmm registers, staging the
// second operand in the red zone when the destination aliases it.
func (e *Emitter) emitFltBinop(fm string, dst, opr1, opr2 *ir.VReg, commutative bool) {
	sfx := fltSuffix(dst.VT.Size)
	if opr2.Phys == dst.Phys {
		if commutative {
			e.printf("\t%s%s\t%s, %s\n", fm, sfx, xmmName(opr1.Phys), xmmName(dst.Phys))
			return
		}
		e.printf("\tmov%s\t%s, -16(%%rsp)\n", sfx, xmmName(opr2.Phys))
		e.printf("\tmov%s\t%s, %s\n", sfx, xmmName(opr1.Phys), xmmName(dst.Phys))
		e.printf("\t%s%s\t-16(%%rsp), %s\n", fm, sfx, xmmName(dst.Phys))
		return
	}
	e.emitMov(dst, opr1)
	e.printf("\t%s%s\t%s, %s\n", fm, sfx, xmmName(opr2.Phys), xmmName(dst.Phys))
}

func (e *Emitter) emitMul(inst *ir.Instr) {
	dst := inst.Dst
	if dst.VT.Flonum {
		e.emitFltBinop("mul", dst, inst.Opr1, inst.Opr2, true)
		return
	}
	size := dst.VT.Size
	if size < 4 {
		size = 4
	}
	if !inst.Opr2.IsConst() && inst.Opr2.Phys == dst.Phys {
		// Multiplication commutes; fold the first operand in place.
		if inst.Opr1.IsConst() {
			e.printf("\timul%s\t$%d, %s, %s\n", suffix(size), inst.Opr1.Fixnum, regName(dst.Phys, size), regName(dst.Phys, size))
		} else {
			e.printf("\timul%s\t%s, %s\n", suffix(size), regName(inst.Opr1.Phys, size), regName(dst.Phys, size))
		}
		return
	}
	if inst.Opr2.IsConst() {
		src := inst.Opr1
		if src.IsConst() {
			e.emitMov(dst, src)
			e.printf("\timul%s\t$%d, %s, %s\n", suffix(size), inst.Opr2.Fixnum, regName(dst.Phys, size), regName(dst.Phys, size))
			return
		}
		e.printf("\timul%s\t$%d, %s, %s\n", suffix(size), inst.Opr2.Fixnum, regName(src.Phys, size), regName(dst.Phys, size))
		return
	}
	e.emitMov(dst, inst.Opr1)
	e.printf("\timul%s\t%s, %s\n", suffix(size), regName(inst.Opr2.Phys, size), regName(dst.Phys, size))
}

// emitDivMod lowers division through the fixed rax/rdx pair, saving rdx
// around the operation unless it is the destination.
func (e *Emitter) emitDivMod(inst *ir.Instr) {
	dst := inst.Dst
	if dst.VT.Flonum {
		e.emitFltBinop("div", dst, inst.Opr1, inst.Opr2, false)
		return
	}

	size := dst.VT.Size
	if size < 4 {
		size = 4
	}
	saveRdx := dst.Phys != physRdx
	if saveRdx {
		e.printf("\tpushq\t%%rdx\n")
	}

	// Dividend to rax.
	src1 := inst.Opr1
	if src1.IsConst() {
		e.printf("\tmov%s\t$%d, %s\n", suffix(size), src1.Fixnum, raxName(size))
	} else {
		e.printf("\tmov%s\t%s, %s\n", suffix(size), regName(src1.Phys, size), raxName(size))
	}

	// Divisor operand; rdx itself and constants go through the red zone
	// (the divisor register is about to be clobbered by sign extension).
	divisor := ""
	src2 := inst.Opr2
	switch {
	case src2.IsConst():
		e.printf("\tmov%s\t$%d, -16(%%rsp)\n", suffix(size), src2.Fixnum)
		divisor = "-16(%rsp)"
	case src2.Phys == physRdx:
		e.printf("\tmov%s\t%s, -16(%%rsp)\n", suffix(size), regName(src2.Phys, size))
		divisor = "-16(%rsp)"
	default:
		divisor = regName(src2.Phys, size)
	}

	if dst.VT.Unsigned {
		e.printf("\txorl\t%%edx, %%edx\n")
		e.printf("\tdiv%s\t%s\n", suffix(size), divisor)
	} else {
		if size == 8 {
			e.printf("\tcqto\n")
		} else {
			e.printf("\tcltd\n")
		}
		e.printf("\tidiv%s\t%s\n", suffix(size), divisor)
	}

	if inst.Op == ir.OpDiv {
		e.printf("\tmov%s\t%s, %s\n", suffix(size), raxName(size), regName(dst.Phys, size))
	} else {
		e.printf("\tmov%s\t%s, %s\n", suffix(size), regName(physRdx, size), regName(dst.Phys, size))
	}
	if saveRdx {
		e.printf("\tpopq\t%%rdx\n")
	}
}

// emitShift uses the fixed cl count register.
func (e *Emitter) emitShift(inst *ir.Instr) {
	dst := inst.Dst
	mnemonic := "shl"
	if inst.Op == ir.OpRShift {
		if dst.VT.Unsigned {
			mnemonic = "shr"
		} else {
			mnemonic = "sar"
		}
	}
	if inst.Opr2.IsConst() {
		e.emitMov(dst, inst.Opr1)
		e.printf("\t%s%s\t$%d, %s\n", mnemonic, suffix(dst.VT.Size), inst.Opr2.Fixnum, regName(dst.Phys, dst.VT.Size))
		return
	}

	const physRcx = 5
	if dst.Phys == physRcx {
		// The destination is the count register itself: shift in rax.
		if inst.Opr1.IsConst() {
			e.printf("\tmov%s\t$%d, %s\n", suffix(dst.VT.Size), inst.Opr1.Fixnum, raxName(dst.VT.Size))
		} else {
			e.printf("\tmov%s\t%s, %s\n", suffix(dst.VT.Size), regName(inst.Opr1.Phys, dst.VT.Size), raxName(dst.VT.Size))
		}
		if inst.Opr2.Phys != physRcx {
			e.printf("\tmovb\t%s, %%cl\n", regName(inst.Opr2.Phys, 1))
		}
		e.printf("\t%s%s\t%%cl, %s\n", mnemonic, suffix(dst.VT.Size), raxName(dst.VT.Size))
		e.printf("\tmov%s\t%s, %s\n", suffix(dst.VT.Size), raxName(dst.VT.Size), regName(dst.Phys, dst.VT.Size))
		return
	}

	// Stage the count in cl before the destination move so a destination
	// aliasing the count operand cannot clobber it.
	saveRcx := inst.Opr2.Phys != physRcx
	if saveRcx {
		e.printf("\tpushq\t%%rcx\n")
		e.printf("\tmovb\t%s, %%cl\n", regName(inst.Opr2.Phys, 1))
	}
	e.emitMov(dst, inst.Opr1)
	e.printf("\t%s%s\t%%cl, %s\n", mnemonic, suffix(dst.VT.Size), regName(dst.Phys, dst.VT.Size))
	if saveRcx {
		e.printf("\tpopq\t%%rcx\n")
	}
}

// emitCast converts between integer widths and between integer and
// floating values.
func (e *Emitter) emitCast(inst *ir.Instr) {
	dst, src := inst.Dst, inst.Opr1
	switch {
	case dst.VT.Flonum && src.VT.Flonum:
		if dst.VT.Size == 4 {
			e.printf("\tcvtsd2ss\t%s, %s\n", xmmName(src.Phys), xmmName(dst.Phys))
		} else {
			e.printf("\tcvtss2sd\t%s, %s\n", xmmName(src.Phys), xmmName(dst.Phys))
		}
	case dst.VT.Flonum:
		size := src.VT.Size
		if size < 4 {
			size = 4
		}
		var srcReg string
		if src.IsConst() {
			e.printf("\tmov%s\t$%d, %s\n", suffix(size), src.Fixnum, raxName(size))
			srcReg = raxName(size)
		} else {
			srcReg = regName(src.Phys, size)
		}
		e.printf("\tcvtsi2%s%s\t%s, %s\n", fltSuffix(dst.VT.Size), suffix(size), srcReg, xmmName(dst.Phys))
	case src.VT.Flonum:
		size := dst.VT.Size
		if size < 4 {
			size = 4
		}
		e.printf("\tcvtt%s2si%s\t%s, %s\n", fltSuffix(src.VT.Size), suffix(size), xmmName(src.Phys), regName(dst.Phys, size))
	default:
		e.emitIntCast(dst, src)
	}
}

func (e *Emitter) emitIntCast(dst, src *ir.VReg) {
	if src.IsConst() {
		e.emitMov(dst, src)
		return
	}
	ds, ss := dst.VT.Size, src.VT.Size
	switch {
	case ds <= ss:
		// Narrowing is a sized register move.
		e.printf("\tmov%s\t%s, %s\n", suffix(ds), regName(src.Phys, ds), regName(dst.Phys, ds))
	case src.VT.Unsigned:
		if ss == 4 {
			// Writing the 32-bit register zero-extends.
			e.printf("\tmovl\t%s, %s\n", regName(src.Phys, 4), regName(dst.Phys, 4))
		} else {
			e.printf("\tmovz%s%s\t%s, %s\n", suffix(ss), suffix(ds), regName(src.Phys, ss), regName(dst.Phys, ds))
		}
	default:
		e.printf("\tmovs%s%s\t%s, %s\n", suffix(ss), suffix(ds), regName(src.Phys, ss), regName(dst.Phys, ds))
	}
}

// emitPushArg moves an argument into its register or outgoing stack slot.
func (e *Emitter) emitPushArg(inst *ir.Instr) {
	v := inst.Opr1
	idx := int(inst.Value)
	if v.VT.Flonum {
		if idx < numFloatRegs {
			if v.Phys != idx {
				e.printf("\tmov%s\t%s, %s\n", fltSuffix(v.VT.Size), xmmName(v.Phys), xmmName(idx))
			}
			return
		}
		slot := idx - numFloatRegs
		e.printf("\tmov%s\t%s, %d(%%rsp)\n", fltSuffix(v.VT.Size), xmmName(v.Phys), slot*8)
		return
	}
	if idx < numIntArgRegs {
		phys := intArgMapping[idx]
		if v.IsConst() {
			e.printf("\tmovq\t$%d, %s\n", v.Fixnum, regName(phys, 8))
		} else if v.Phys != phys {
			e.printf("\tmovq\t%s, %s\n", regName(v.Phys, 8), regName(phys, 8))
		}
		return
	}
	slot := idx - numIntArgRegs
	if v.IsConst() {
		e.printf("\tmovq\t$%d, %d(%%rsp)\n", v.Fixnum, slot*8)
	} else {
		e.printf("\tmovq\t%s, %d(%%rsp)\n", regName(v.Phys, 8), slot*8)
	}
}

func (e *Emitter) emitLoadSpilled(inst *ir.Instr) {
	addr := itoa(inst.Opr1.FrameOffset) + "(%rbp)"
	e.emitLoad(inst.Dst, addr)
}

func (e *Emitter) emitStoreSpilled(inst *ir.Instr) {
	v := inst.Opr1
	addr := itoa(inst.Dst.FrameOffset) + "(%rbp)"
	if v.VT.Flonum {
		e.printf("\tmov%s\t%s, %s\n", fltSuffix(v.VT.Size), xmmName(v.Phys), addr)
		return
	}
	e.printf("\tmov%s\t%s, %s\n", suffix(v.VT.Size), regName(v.Phys, v.VT.Size), addr)
}

// symbolRef mangles a global reference but leaves local labels alone.
func (e *Emitter) symbolRef(label string) string {
	if len(label) >= 2 && label[0] == '.' && label[1] == 'L' {
		return label
	}
	return e.symbolName(label)
}
