package parser

import (
	"github.com/jainl28patel/xcc/pkg/cabs"
	"github.com/jainl28patel/xcc/pkg/ctypes"
)

// promoted returns the integer-promoted form of t: char, short and enum
// rank below int and promote to it.
func (p *Parser) promoted(t ctypes.Type) ctypes.Type {
	switch tt := t.(type) {
	case *ctypes.Tenum:
		return ctypes.IntType
	case *ctypes.Tint:
		if p.target.SizeOf(tt) < 4 {
			return ctypes.IntType
		}
	}
	return t
}

// usualArith computes the common type of two arithmetic operands per the
// usual arithmetic conversions.
func (p *Parser) usualArith(a, b ctypes.Type) ctypes.Type {
	if ctypes.IsFloat(a) || ctypes.IsFloat(b) {
		af, aok := a.(*ctypes.Tfloat)
		bf, bok := b.(*ctypes.Tfloat)
		if aok && af.Kind == ctypes.F64 || bok && bf.Kind == ctypes.F64 {
			return ctypes.Double
		}
		return ctypes.Float
	}

	a = p.promoted(a)
	b = p.promoted(b)
	ai := a.(*ctypes.Tint)
	bi := b.(*ctypes.Tint)
	as, bs := p.target.SizeOf(ai), p.target.SizeOf(bi)

	if ai.Sign == bi.Sign {
		if as >= bs {
			return ai
		}
		return bi
	}

	// Mixed signedness: the unsigned type wins at equal or greater size,
	// otherwise the wider signed type can represent every unsigned value.
	ui, si := ai, bi
	us, ss := as, bs
	if ai.Sign == ctypes.Signed {
		ui, si = bi, ai
		us, ss = bs, as
	}
	if us >= ss {
		return ui
	}
	return si
}

// insertCast wraps e in an implicit conversion to ty unless the types are
// already structurally equal. Constant operands are converted in place.
func (p *Parser) insertCast(e cabs.Expr, ty ctypes.Type) cabs.Expr {
	if ctypes.Equal(e.Type(), ty) {
		return e
	}
	if folded := foldCast(e, ty, p.target); folded != nil {
		return folded
	}
	return cabs.NewCast(e, ty, true)
}

// foldCast converts a literal operand directly to the target type, keeping
// the tree free of casts around constants.
func foldCast(e cabs.Expr, ty ctypes.Type, tg ctypes.Target) cabs.Expr {
	switch lit := e.(type) {
	case *cabs.IntLit:
		if ctypes.IsInteger(ty) {
			return cabs.NewIntLit(truncateInt(lit.Value, ty, tg), ty, lit.Tok())
		}
		if ctypes.IsFloat(ty) {
			return cabs.NewFloatLit(float64(lit.Value), ty, lit.Tok())
		}
		if ctypes.IsPointer(ty) && lit.Value == 0 {
			return cabs.NewIntLit(0, ty, lit.Tok())
		}
	case *cabs.FloatLit:
		if ctypes.IsFloat(ty) {
			return cabs.NewFloatLit(lit.Value, ty, lit.Tok())
		}
		if ctypes.IsInteger(ty) {
			return cabs.NewIntLit(truncateInt(int64(lit.Value), ty, tg), ty, lit.Tok())
		}
	}
	return nil
}

// truncateInt wraps v to the byte width and signedness of ty.
func truncateInt(v int64, ty ctypes.Type, tg ctypes.Target) int64 {
	size := tg.SizeOf(ty)
	if size >= 8 {
		return v
	}
	bits := uint(size * 8)
	masked := uint64(v) & (1<<bits - 1)
	if !ctypes.IsUnsigned(ty) && masked&(1<<(bits-1)) != 0 {
		return int64(masked) - int64(1)<<bits
	}
	return int64(masked)
}

// decay converts array-typed values to pointers to their first element and
// function designators to function pointers. Applied at every value use
// except under & and sizeof.
func (p *Parser) decay(e cabs.Expr) cabs.Expr {
	switch t := e.Type().(type) {
	case *ctypes.Tarray:
		return cabs.NewCast(e, ctypes.PointerTo(t.Elem), true)
	case *ctypes.Tfunction:
		return cabs.NewCast(e, ctypes.PointerTo(t), true)
	}
	return e
}

// isLvalue reports whether e denotes an assignable, addressable location.
func isLvalue(e cabs.Expr) bool {
	switch se := e.(type) {
	case *cabs.Var:
		if se.Scope != nil {
			if v := se.Scope.Lookup(se.Name); v != nil && v.Storage&cabs.StorageEnumMember != 0 {
				return false
			}
		}
		return true
	case *cabs.Deref:
		return true
	case *cabs.Member:
		return se.Arrow || isLvalue(se.Target)
	}
	return false
}

// foldBinary evaluates a binary operation whose operands are both literals,
// yielding a literal of the result type. Returns nil when not foldable.
func foldBinary(op cabs.BinaryOp, l, r cabs.Expr, ty ctypes.Type, tg ctypes.Target) cabs.Expr {
	if lf, ok := l.(*cabs.FloatLit); ok {
		rf, ok := r.(*cabs.FloatLit)
		if !ok {
			return nil
		}
		var v float64
		switch op {
		case cabs.OpAdd:
			v = lf.Value + rf.Value
		case cabs.OpSub:
			v = lf.Value - rf.Value
		case cabs.OpMul:
			v = lf.Value * rf.Value
		case cabs.OpDiv:
			if rf.Value == 0 {
				return nil
			}
			v = lf.Value / rf.Value
		case cabs.OpLt, cabs.OpLe, cabs.OpGt, cabs.OpGe, cabs.OpEq, cabs.OpNe:
			return cabs.NewIntLit(b2i(compareFloat(op, lf.Value, rf.Value)), ctypes.IntType, lf.Tok())
		default:
			return nil
		}
		return cabs.NewFloatLit(v, ty, lf.Tok())
	}

	li, ok := l.(*cabs.IntLit)
	if !ok {
		return nil
	}
	ri, ok := r.(*cabs.IntLit)
	if !ok {
		return nil
	}

	unsigned := ctypes.IsUnsigned(ty)
	a, b := li.Value, ri.Value
	var v int64
	switch op {
	case cabs.OpAdd:
		v = a + b
	case cabs.OpSub:
		v = a - b
	case cabs.OpMul:
		v = a * b
	case cabs.OpDiv:
		if b == 0 {
			return nil
		}
		if unsigned {
			v = int64(uint64(a) / uint64(b))
		} else {
			v = a / b
		}
	case cabs.OpMod:
		if b == 0 {
			return nil
		}
		if unsigned {
			v = int64(uint64(a) % uint64(b))
		} else {
			v = a % b
		}
	case cabs.OpBitAnd:
		v = a & b
	case cabs.OpBitOr:
		v = a | b
	case cabs.OpBitXor:
		v = a ^ b
	case cabs.OpShl:
		v = a << uint64(b)
	case cabs.OpShr:
		if unsigned {
			v = int64(uint64(a) >> uint64(b))
		} else {
			v = a >> uint64(b)
		}
	case cabs.OpLt, cabs.OpLe, cabs.OpGt, cabs.OpGe, cabs.OpEq, cabs.OpNe:
		lu := ctypes.IsUnsigned(li.Type()) || ctypes.IsUnsigned(ri.Type())
		return cabs.NewIntLit(b2i(compareInt(op, a, b, lu)), ctypes.IntType, li.Tok())
	default:
		return nil
	}
	return cabs.NewIntLit(truncateInt(v, ty, tg), ty, li.Tok())
}

func compareInt(op cabs.BinaryOp, a, b int64, unsigned bool) bool {
	if unsigned {
		ua, ub := uint64(a), uint64(b)
		switch op {
		case cabs.OpLt:
			return ua < ub
		case cabs.OpLe:
			return ua <= ub
		case cabs.OpGt:
			return ua > ub
		case cabs.OpGe:
			return ua >= ub
		case cabs.OpEq:
			return ua == ub
		case cabs.OpNe:
			return ua != ub
		}
	}
	switch op {
	case cabs.OpLt:
		return a < b
	case cabs.OpLe:
		return a <= b
	case cabs.OpGt:
		return a > b
	case cabs.OpGe:
		return a >= b
	case cabs.OpEq:
		return a == b
	case cabs.OpNe:
		return a != b
	}
	return false
}

func compareFloat(op cabs.BinaryOp, a, b float64) bool {
	switch op {
	case cabs.OpLt:
		return a < b
	case cabs.OpLe:
		return a <= b
	case cabs.OpGt:
		return a > b
	case cabs.OpGe:
		return a >= b
	case cabs.OpEq:
		return a == b
	case cabs.OpNe:
		return a != b
	}
	return false
}

// foldUnary evaluates a unary operation on a literal operand.
func foldUnary(op cabs.UnaryOp, sub cabs.Expr, ty ctypes.Type, tg ctypes.Target) cabs.Expr {
	switch lit := sub.(type) {
	case *cabs.IntLit:
		switch op {
		case cabs.OpNeg:
			return cabs.NewIntLit(truncateInt(-lit.Value, ty, tg), ty, lit.Tok())
		case cabs.OpBitNot:
			return cabs.NewIntLit(truncateInt(^lit.Value, ty, tg), ty, lit.Tok())
		case cabs.OpNot:
			return cabs.NewIntLit(b2i(lit.Value == 0), ctypes.IntType, lit.Tok())
		}
	case *cabs.FloatLit:
		switch op {
		case cabs.OpNeg:
			return cabs.NewFloatLit(-lit.Value, ty, lit.Tok())
		case cabs.OpNot:
			return cabs.NewIntLit(b2i(lit.Value == 0), ctypes.IntType, lit.Tok())
		}
	}
	return nil
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
