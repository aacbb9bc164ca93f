package parser

import (
	"fmt"

	"github.com/jainl28patel/xcc/pkg/cabs"
	"github.com/jainl28patel/xcc/pkg/ctypes"
	"github.com/jainl28patel/xcc/pkg/lexer"
)

var sizeType = &ctypes.Tint{Kind: ctypes.Long, Sign: ctypes.Unsigned}

// parseExpr parses a full expression including the comma operator.
func (p *Parser) parseExpr() cabs.Expr {
	e := p.parseAssignExpr()
	for p.curIs(lexer.TokenComma) {
		tok := p.next()
		right := p.parseAssignExpr()
		if e == nil || right == nil {
			return e
		}
		e = &cabs.Comma{
			ExprBase: cabs.ExprBase{Ty: right.Type(), Token: tok},
			Left:     e,
			Right:    right,
		}
	}
	return e
}

var assignOps = map[lexer.TokenType]cabs.BinaryOp{
	lexer.TokenPlusAssign:    cabs.OpAdd,
	lexer.TokenMinusAssign:   cabs.OpSub,
	lexer.TokenStarAssign:    cabs.OpMul,
	lexer.TokenSlashAssign:   cabs.OpDiv,
	lexer.TokenPercentAssign: cabs.OpMod,
	lexer.TokenAndAssign:     cabs.OpBitAnd,
	lexer.TokenOrAssign:      cabs.OpBitOr,
	lexer.TokenXorAssign:     cabs.OpBitXor,
	lexer.TokenShlAssign:     cabs.OpShl,
	lexer.TokenShrAssign:     cabs.OpShr,
}

// parseAssignExpr parses an assignment expression (right associative).
func (p *Parser) parseAssignExpr() cabs.Expr {
	e := p.parseCondExpr()
	if e == nil {
		return nil
	}

	tok := p.cur()
	if tok.Type == lexer.TokenAssign {
		p.next()
		right := p.parseAssignExpr()
		if right == nil {
			return e
		}
		if !isLvalue(e) {
			p.addErrorAt(tok, "assignment target is not an lvalue")
			return e
		}
		right = p.decay(right)
		right = p.convertForAssign(tok, right, e.Type())
		return &cabs.Assign{
			ExprBase: cabs.ExprBase{Ty: e.Type(), Token: tok},
			Left:     e,
			Right:    right,
		}
	}
	if op, ok := assignOps[tok.Type]; ok {
		p.next()
		right := p.parseAssignExpr()
		if right == nil {
			return e
		}
		if !isLvalue(e) {
			p.addErrorAt(tok, "assignment target is not an lvalue")
			return e
		}
		right = p.decay(right)
		if ctypes.IsPointer(e.Type()) && (op == cabs.OpAdd || op == cabs.OpSub) {
			right = p.scalePointerOffset(e.Type(), right)
		} else if ctypes.IsArith(e.Type()) && ctypes.IsArith(right.Type()) {
			right = p.insertCast(right, e.Type())
		} else if !ctypes.Equal(e.Type(), right.Type()) {
			p.addErrorAt(tok, "invalid operands to compound assignment")
		}
		return &cabs.CompoundAssign{
			ExprBase: cabs.ExprBase{Ty: e.Type(), Token: tok},
			Op:       op,
			Left:     e,
			Right:    right,
		}
	}
	return e
}

// convertForAssign inserts the conversion of right to ty, diagnosing
// incompatible pointer conversions.
func (p *Parser) convertForAssign(tok lexer.Token, right cabs.Expr, ty ctypes.Type) cabs.Expr {
	rt := right.Type()
	switch {
	case ctypes.Equal(ty, rt):
		return right
	case ctypes.IsArith(ty) && ctypes.IsArith(rt):
		return p.insertCast(right, ty)
	case ctypes.IsPointer(ty) && ctypes.IsPointer(rt):
		// Pointer-to-pointer assignment is allowed with matching pointees or
		// a void* on either side.
		pt := ty.(*ctypes.Tpointer)
		prt := rt.(*ctypes.Tpointer)
		if !ctypes.Equal(pt.Elem, prt.Elem) && !ctypes.IsVoid(pt.Elem) && !ctypes.IsVoid(prt.Elem) {
			p.addErrorAt(tok, fmt.Sprintf("incompatible pointer conversion from %s to %s", rt, ty))
		}
		return p.insertCast(right, ty)
	case ctypes.IsPointer(ty) && ctypes.IsInteger(rt):
		if lit, ok := right.(*cabs.IntLit); !ok || lit.Value != 0 {
			p.addErrorAt(tok, fmt.Sprintf("incompatible conversion from %s to %s", rt, ty))
		}
		return p.insertCast(right, ty)
	default:
		p.addErrorAt(tok, fmt.Sprintf("cannot assign %s to %s", rt, ty))
		return right
	}
}

// parseCondExpr parses a conditional (ternary) expression.
func (p *Parser) parseCondExpr() cabs.Expr {
	cond := p.parseLogOr()
	if cond == nil || !p.curIs(lexer.TokenQuestion) {
		return cond
	}
	tok := p.next()
	then := p.parseExpr()
	p.expect(lexer.TokenColon)
	els := p.parseCondExpr()
	if then == nil || els == nil {
		return cond
	}
	then = p.decay(then)
	els = p.decay(els)

	var ty ctypes.Type
	switch {
	case ctypes.IsArith(then.Type()) && ctypes.IsArith(els.Type()):
		ty = p.usualArith(then.Type(), els.Type())
		then = p.insertCast(then, ty)
		els = p.insertCast(els, ty)
	case ctypes.Equal(then.Type(), els.Type()):
		ty = then.Type()
	default:
		p.addErrorAt(tok, "incompatible operand types in conditional expression")
		ty = then.Type()
	}

	// A constant condition selects an arm outright.
	if lit, ok := cond.(*cabs.IntLit); ok {
		if lit.Value != 0 {
			return then
		}
		return els
	}
	return &cabs.Ternary{
		ExprBase: cabs.ExprBase{Ty: ty, Token: tok},
		Cond:     cond,
		Then:     then,
		Else:     els,
	}
}

func (p *Parser) parseLogOr() cabs.Expr {
	e := p.parseLogAnd()
	for p.curIs(lexer.TokenOr) {
		tok := p.next()
		right := p.parseLogAnd()
		if e == nil || right == nil {
			return e
		}
		e = p.makeLogical(cabs.OpLogOr, e, right, tok)
	}
	return e
}

func (p *Parser) parseLogAnd() cabs.Expr {
	e := p.parseBitOr()
	for p.curIs(lexer.TokenAnd) {
		tok := p.next()
		right := p.parseBitOr()
		if e == nil || right == nil {
			return e
		}
		e = p.makeLogical(cabs.OpLogAnd, e, right, tok)
	}
	return e
}

func (p *Parser) makeLogical(op cabs.BinaryOp, l, r cabs.Expr, tok lexer.Token) cabs.Expr {
	l = p.decay(l)
	r = p.decay(r)
	if !ctypes.IsScalar(l.Type()) || !ctypes.IsScalar(r.Type()) {
		p.addErrorAt(tok, fmt.Sprintf("invalid operands to %s", op))
	}
	ll, lok := l.(*cabs.IntLit)
	rl, rok := r.(*cabs.IntLit)
	if lok && rok {
		if op == cabs.OpLogAnd {
			return cabs.NewIntLit(b2i(ll.Value != 0 && rl.Value != 0), ctypes.IntType, tok)
		}
		return cabs.NewIntLit(b2i(ll.Value != 0 || rl.Value != 0), ctypes.IntType, tok)
	}
	return cabs.NewBinary(op, l, r, ctypes.IntType, tok)
}

func (p *Parser) parseBitOr() cabs.Expr {
	e := p.parseBitXor()
	for p.curIs(lexer.TokenPipe) {
		tok := p.next()
		e = p.makeArith(cabs.OpBitOr, e, p.parseBitXor(), tok)
	}
	return e
}

func (p *Parser) parseBitXor() cabs.Expr {
	e := p.parseBitAnd()
	for p.curIs(lexer.TokenCaret) {
		tok := p.next()
		e = p.makeArith(cabs.OpBitXor, e, p.parseBitAnd(), tok)
	}
	return e
}

func (p *Parser) parseBitAnd() cabs.Expr {
	e := p.parseEquality()
	for p.curIs(lexer.TokenAmpersand) {
		tok := p.next()
		e = p.makeArith(cabs.OpBitAnd, e, p.parseEquality(), tok)
	}
	return e
}

func (p *Parser) parseEquality() cabs.Expr {
	e := p.parseRelational()
	for {
		var op cabs.BinaryOp
		switch p.cur().Type {
		case lexer.TokenEq:
			op = cabs.OpEq
		case lexer.TokenNe:
			op = cabs.OpNe
		default:
			return e
		}
		tok := p.next()
		e = p.makeCompare(op, e, p.parseRelational(), tok)
	}
}

func (p *Parser) parseRelational() cabs.Expr {
	e := p.parseShift()
	for {
		var op cabs.BinaryOp
		switch p.cur().Type {
		case lexer.TokenLt:
			op = cabs.OpLt
		case lexer.TokenLe:
			op = cabs.OpLe
		case lexer.TokenGt:
			op = cabs.OpGt
		case lexer.TokenGe:
			op = cabs.OpGe
		default:
			return e
		}
		tok := p.next()
		e = p.makeCompare(op, e, p.parseShift(), tok)
	}
}

func (p *Parser) parseShift() cabs.Expr {
	e := p.parseAdditive()
	for {
		var op cabs.BinaryOp
		switch p.cur().Type {
		case lexer.TokenShl:
			op = cabs.OpShl
		case lexer.TokenShr:
			op = cabs.OpShr
		default:
			return e
		}
		tok := p.next()
		right := p.parseAdditive()
		if e == nil || right == nil {
			return e
		}
		// Shifts promote each operand independently; the result takes the
		// left operand's promoted type.
		e = p.decay(e)
		right = p.decay(right)
		lt := p.promoted(e.Type())
		e = p.insertCast(e, lt)
		right = p.insertCast(right, p.promoted(right.Type()))
		if folded := foldBinary(op, e, right, lt, p.target); folded != nil {
			e = folded
		} else {
			e = cabs.NewBinary(op, e, right, lt, tok)
		}
	}
}

func (p *Parser) parseAdditive() cabs.Expr {
	e := p.parseMultiplicative()
	for {
		var op cabs.BinaryOp
		switch p.cur().Type {
		case lexer.TokenPlus:
			op = cabs.OpAdd
		case lexer.TokenMinus:
			op = cabs.OpSub
		default:
			return e
		}
		tok := p.next()
		right := p.parseMultiplicative()
		if e == nil || right == nil {
			return e
		}
		e = p.makeAdditive(op, e, right, tok)
	}
}

// makeAdditive handles +/- including pointer arithmetic: the integer
// operand is scaled by the pointee size in the AST, and subtracting two
// pointers divides the byte difference back down.
func (p *Parser) makeAdditive(op cabs.BinaryOp, l, r cabs.Expr, tok lexer.Token) cabs.Expr {
	l = p.decay(l)
	r = p.decay(r)
	lt, rt := l.Type(), r.Type()

	switch {
	case ctypes.IsArith(lt) && ctypes.IsArith(rt):
		return p.makeArithConverted(op, l, r, tok)

	case ctypes.IsPointer(lt) && ctypes.IsInteger(rt):
		r = p.scalePointerOffset(lt, r)
		return cabs.NewBinary(op, l, r, lt, tok)

	case op == cabs.OpAdd && ctypes.IsInteger(lt) && ctypes.IsPointer(rt):
		l = p.scalePointerOffset(rt, l)
		return cabs.NewBinary(op, r, l, rt, tok)

	case op == cabs.OpSub && ctypes.IsPointer(lt) && ctypes.IsPointer(rt):
		pl := lt.(*ctypes.Tpointer)
		pr := rt.(*ctypes.Tpointer)
		if !ctypes.Equal(pl.Elem, pr.Elem) {
			p.addErrorAt(tok, "subtracting pointers to different types")
		}
		diffTy := &ctypes.Tint{Kind: ctypes.Long, Sign: ctypes.Signed}
		lc := p.insertCast(l, diffTy)
		rc := p.insertCast(r, diffTy)
		diff := cabs.NewBinary(cabs.OpSub, lc, rc, diffTy, tok)
		size := p.target.SizeOf(pl.Elem)
		if size <= 0 {
			size = 1
		}
		return cabs.NewBinary(cabs.OpDiv, diff, cabs.NewIntLit(size, diffTy, tok), diffTy, tok)

	default:
		p.addErrorAt(tok, fmt.Sprintf("invalid operands to %s (%s and %s)", op, lt, rt))
		return l
	}
}

// scalePointerOffset multiplies an integer offset by sizeof(pointee) and
// converts it to the pointer's width.
func (p *Parser) scalePointerOffset(ptrTy ctypes.Type, off cabs.Expr) cabs.Expr {
	elem := ptrTy.(*ctypes.Tpointer).Elem
	size := p.target.SizeOf(elem)
	if size <= 0 {
		size = 1
	}
	offTy := &ctypes.Tint{Kind: ctypes.Long, Sign: ctypes.Signed}
	off = p.insertCast(off, offTy)
	var scaled cabs.Expr
	if size == 1 {
		scaled = off
	} else if folded := foldBinary(cabs.OpMul, off, cabs.NewIntLit(size, offTy, off.Tok()), offTy, p.target); folded != nil {
		scaled = folded
	} else {
		scaled = cabs.NewBinary(cabs.OpMul, off, cabs.NewIntLit(size, offTy, off.Tok()), offTy, off.Tok())
	}
	return p.insertCast(scaled, ptrTy)
}

func (p *Parser) parseMultiplicative() cabs.Expr {
	e := p.parseCastExpr()
	for {
		var op cabs.BinaryOp
		switch p.cur().Type {
		case lexer.TokenStar:
			op = cabs.OpMul
		case lexer.TokenSlash:
			op = cabs.OpDiv
		case lexer.TokenPercent:
			op = cabs.OpMod
		default:
			return e
		}
		tok := p.next()
		e = p.makeArith(op, e, p.parseCastExpr(), tok)
	}
}

// makeArith builds an arithmetic binary node after the usual conversions.
func (p *Parser) makeArith(op cabs.BinaryOp, l, r cabs.Expr, tok lexer.Token) cabs.Expr {
	if l == nil || r == nil {
		return l
	}
	l = p.decay(l)
	r = p.decay(r)
	if !ctypes.IsArith(l.Type()) || !ctypes.IsArith(r.Type()) {
		p.addErrorAt(tok, fmt.Sprintf("invalid operands to %s (%s and %s)", op, l.Type(), r.Type()))
		return l
	}
	if op >= cabs.OpMod && op <= cabs.OpShr && (ctypes.IsFloat(l.Type()) || ctypes.IsFloat(r.Type())) {
		p.addErrorAt(tok, fmt.Sprintf("invalid floating operands to %s", op))
		return l
	}
	return p.makeArithConverted(op, l, r, tok)
}

func (p *Parser) makeArithConverted(op cabs.BinaryOp, l, r cabs.Expr, tok lexer.Token) cabs.Expr {
	ty := p.usualArith(l.Type(), r.Type())
	l = p.insertCast(l, ty)
	r = p.insertCast(r, ty)
	if folded := foldBinary(op, l, r, ty, p.target); folded != nil {
		return folded
	}
	return cabs.NewBinary(op, l, r, ty, tok)
}

// makeCompare builds a comparison; operands are converted to a common type
// and the result is int.
func (p *Parser) makeCompare(op cabs.BinaryOp, l, r cabs.Expr, tok lexer.Token) cabs.Expr {
	if l == nil || r == nil {
		return l
	}
	l = p.decay(l)
	r = p.decay(r)
	lt, rt := l.Type(), r.Type()

	switch {
	case ctypes.IsArith(lt) && ctypes.IsArith(rt):
		ty := p.usualArith(lt, rt)
		l = p.insertCast(l, ty)
		r = p.insertCast(r, ty)
	case ctypes.IsPointer(lt) && ctypes.IsPointer(rt):
		// compared as unsigned addresses
	case ctypes.IsPointer(lt) && ctypes.IsInteger(rt):
		r = p.insertCast(r, lt)
	case ctypes.IsInteger(lt) && ctypes.IsPointer(rt):
		l = p.insertCast(l, rt)
	default:
		p.addErrorAt(tok, fmt.Sprintf("invalid comparison operands (%s and %s)", lt, rt))
	}

	if folded := foldBinary(op, l, r, ctypes.IntType, p.target); folded != nil {
		return folded
	}
	return cabs.NewBinary(op, l, r, ctypes.IntType, tok)
}

// parseCastExpr parses an explicit cast or defers to unary.
func (p *Parser) parseCastExpr() cabs.Expr {
	if p.curIs(lexer.TokenLParen) && p.isTypeNameAfterParen() {
		p.next() // (
		ty := p.parseTypeName()
		p.expect(lexer.TokenRParen)
		sub := p.parseCastExpr()
		if sub == nil {
			return nil
		}
		sub = p.decay(sub)
		if folded := foldCast(sub, ty, p.target); folded != nil {
			return folded
		}
		return cabs.NewCast(sub, ty, false)
	}
	return p.parseUnary()
}

// isTypeNameAfterParen peeks past the current '(' for a type name: the
// two-token lookahead that resolves the cast-vs-parenthesized ambiguity.
func (p *Parser) isTypeNameAfterParen() bool {
	next := p.peek(1)
	switch next.Type {
	case lexer.TokenVoid, lexer.TokenChar_, lexer.TokenShort, lexer.TokenInt_,
		lexer.TokenLong, lexer.TokenFloat_, lexer.TokenDouble,
		lexer.TokenSigned, lexer.TokenUnsigned, lexer.TokenConst,
		lexer.TokenStruct, lexer.TokenUnion, lexer.TokenEnum:
		return true
	case lexer.TokenIdent:
		return p.scope.FindTypedef(next.Literal) != nil
	}
	return false
}

// parseTypeName parses a type name with an optional abstract declarator.
func (p *Parser) parseTypeName() ctypes.Type {
	_, _, base, ok := p.parseDeclSpecifiers()
	if !ok {
		p.addError("expected type name")
		return ctypes.IntType
	}
	_, ty, _ := p.parseDeclarator(base)
	return ty
}

func (p *Parser) parseUnary() cabs.Expr {
	tok := p.cur()
	switch tok.Type {
	case lexer.TokenPlus:
		p.next()
		return p.decay(p.parseCastExpr())

	case lexer.TokenMinus, lexer.TokenTilde, lexer.TokenNot:
		p.next()
		sub := p.parseCastExpr()
		if sub == nil {
			return nil
		}
		sub = p.decay(sub)
		var op cabs.UnaryOp
		switch tok.Type {
		case lexer.TokenMinus:
			op = cabs.OpNeg
		case lexer.TokenTilde:
			op = cabs.OpBitNot
		default:
			op = cabs.OpNot
		}
		var ty ctypes.Type
		if op == cabs.OpNot {
			if !ctypes.IsScalar(sub.Type()) {
				p.addErrorAt(tok, "invalid operand to !")
			}
			ty = ctypes.IntType
		} else {
			if !ctypes.IsArith(sub.Type()) || (op == cabs.OpBitNot && !ctypes.IsInteger(sub.Type())) {
				p.addErrorAt(tok, fmt.Sprintf("invalid operand to %s", op))
				return sub
			}
			ty = p.promoted(sub.Type())
			sub = p.insertCast(sub, ty)
		}
		if folded := foldUnary(op, sub, ty, p.target); folded != nil {
			return folded
		}
		return &cabs.Unary{ExprBase: cabs.ExprBase{Ty: ty, Token: tok}, Op: op, Sub: sub}

	case lexer.TokenStar:
		p.next()
		sub := p.parseCastExpr()
		if sub == nil {
			return nil
		}
		sub = p.decay(sub)
		pt, ok := sub.Type().(*ctypes.Tpointer)
		if !ok {
			p.addErrorAt(tok, "dereferencing a non-pointer")
			return sub
		}
		return &cabs.Deref{ExprBase: cabs.ExprBase{Ty: pt.Elem, Token: tok}, Sub: sub}

	case lexer.TokenAmpersand:
		p.next()
		sub := p.parseCastExpr()
		if sub == nil {
			return nil
		}
		// Arrays do not decay under &.
		if !isLvalue(sub) {
			p.addErrorAt(tok, "cannot take the address of this expression")
			return sub
		}
		return &cabs.AddrOf{
			ExprBase: cabs.ExprBase{Ty: ctypes.PointerTo(sub.Type()), Token: tok},
			Sub:      sub,
		}

	case lexer.TokenIncrement, lexer.TokenDecrement:
		p.next()
		sub := p.parseUnary()
		if sub == nil {
			return nil
		}
		if !isLvalue(sub) {
			p.addErrorAt(tok, "increment/decrement target is not an lvalue")
			return sub
		}
		if !ctypes.IsScalar(sub.Type()) {
			p.addErrorAt(tok, "increment/decrement requires a scalar operand")
		}
		return &cabs.IncDec{
			ExprBase: cabs.ExprBase{Ty: sub.Type(), Token: tok},
			Pre:      true,
			Inc:      tok.Type == lexer.TokenIncrement,
			Sub:      sub,
		}

	case lexer.TokenSizeof:
		p.next()
		var ty ctypes.Type
		if p.curIs(lexer.TokenLParen) && p.isTypeNameAfterParen() {
			p.next()
			ty = p.parseTypeName()
			p.expect(lexer.TokenRParen)
		} else {
			sub := p.parseUnary() // no decay under sizeof
			if sub == nil {
				return nil
			}
			ty = sub.Type()
		}
		return cabs.NewIntLit(p.target.SizeOf(ty), sizeType, tok)
	}

	return p.parsePostfix()
}

func (p *Parser) parsePostfix() cabs.Expr {
	e := p.parsePrimary()
	for e != nil {
		tok := p.cur()
		switch tok.Type {
		case lexer.TokenLBracket:
			p.next()
			idx := p.parseExpr()
			p.expect(lexer.TokenRBracket)
			if idx == nil {
				return e
			}
			sum := p.makeAdditive(cabs.OpAdd, e, idx, tok)
			pt, ok := sum.Type().(*ctypes.Tpointer)
			if !ok {
				p.addErrorAt(tok, "subscripted value is not an array or pointer")
				return e
			}
			e = &cabs.Deref{ExprBase: cabs.ExprBase{Ty: pt.Elem, Token: tok}, Sub: sum}

		case lexer.TokenLParen:
			e = p.parseCall(e)

		case lexer.TokenDot, lexer.TokenArrow:
			p.next()
			arrow := tok.Type == lexer.TokenArrow
			if !p.curIs(lexer.TokenIdent) {
				p.addError("expected member name")
				return e
			}
			nameTok := p.next()
			e = p.makeMember(e, nameTok.Literal, arrow, tok)

		case lexer.TokenIncrement, lexer.TokenDecrement:
			p.next()
			if !isLvalue(e) {
				p.addErrorAt(tok, "increment/decrement target is not an lvalue")
				return e
			}
			e = &cabs.IncDec{
				ExprBase: cabs.ExprBase{Ty: e.Type(), Token: tok},
				Pre:      false,
				Inc:      tok.Type == lexer.TokenIncrement,
				Sub:      e,
			}

		default:
			return e
		}
	}
	return e
}

func (p *Parser) makeMember(target cabs.Expr, name string, arrow bool, tok lexer.Token) cabs.Expr {
	ty := target.Type()
	if arrow {
		pt, ok := ty.(*ctypes.Tpointer)
		if !ok {
			p.addErrorAt(tok, "-> applied to a non-pointer")
			return target
		}
		ty = pt.Elem
	}
	st, ok := ty.(*ctypes.Tstruct)
	if !ok {
		p.addErrorAt(tok, "member access on a non-struct value")
		return target
	}
	for i := range st.Members {
		if st.Members[i].Name == name {
			return &cabs.Member{
				ExprBase: cabs.ExprBase{Ty: st.Members[i].Type, Token: tok},
				Target:   target,
				Name:     name,
				Info:     &st.Members[i],
				Arrow:    arrow,
			}
		}
	}
	p.addErrorAt(tok, fmt.Sprintf("no member %q in %s", name, st))
	return target
}

// parseCall parses a call's argument list against the callee's signature,
// inserting argument conversions and default promotions for varargs.
func (p *Parser) parseCall(fn cabs.Expr) cabs.Expr {
	tok := p.next() // (

	var ft *ctypes.Tfunction
	switch t := fn.Type().(type) {
	case *ctypes.Tfunction:
		ft = t
	case *ctypes.Tpointer:
		if f, ok := t.Elem.(*ctypes.Tfunction); ok {
			ft = f
		}
	}
	if ft == nil {
		p.addErrorAt(tok, "called object is not a function")
		ft = &ctypes.Tfunction{Return: ctypes.IntType, VarArg: true}
	}

	var args []cabs.Expr
	if !p.curIs(lexer.TokenRParen) {
		for {
			arg := p.parseAssignExpr()
			if arg == nil {
				break
			}
			arg = p.decay(arg)
			i := len(args)
			if i < len(ft.Params) {
				arg = p.convertForAssign(arg.Tok(), arg, ft.Params[i])
			} else if ft.VarArg || len(ft.Params) == 0 {
				arg = p.defaultPromote(arg)
			} else {
				p.addErrorAt(arg.Tok(), "too many arguments in call")
			}
			args = append(args, arg)
			if !p.match(lexer.TokenComma) {
				break
			}
		}
	}
	p.expect(lexer.TokenRParen)

	if len(args) < len(ft.Params) {
		p.addErrorAt(tok, "too few arguments in call")
	}

	return &cabs.Call{
		ExprBase: cabs.ExprBase{Ty: ft.Return, Token: tok},
		Fn:       fn,
		Args:     args,
	}
}

// defaultPromote applies the default argument promotions used for varargs
// and unprototyped calls.
func (p *Parser) defaultPromote(e cabs.Expr) cabs.Expr {
	if f, ok := e.Type().(*ctypes.Tfloat); ok && f.Kind == ctypes.F32 {
		return p.insertCast(e, ctypes.Double)
	}
	if ctypes.IsInteger(e.Type()) {
		return p.insertCast(e, p.promoted(e.Type()))
	}
	return e
}

func (p *Parser) parsePrimary() cabs.Expr {
	tok := p.cur()
	switch tok.Type {
	case lexer.TokenInt:
		p.next()
		ty := intLitType(tok)
		return cabs.NewIntLit(tok.IntVal, ty, tok)

	case lexer.TokenChar:
		p.next()
		return cabs.NewIntLit(tok.IntVal, ctypes.IntType, tok)

	case lexer.TokenFloat:
		p.next()
		ty := ctypes.Type(ctypes.Double)
		if tok.Single {
			ty = ctypes.Float
		}
		return cabs.NewFloatLit(tok.FloatVal, ty, tok)

	case lexer.TokenString:
		p.next()
		val := tok.StrVal
		// Adjacent string literals concatenate.
		for p.curIs(lexer.TokenString) {
			val += p.next().StrVal
		}
		return &cabs.StrLit{
			ExprBase: cabs.ExprBase{
				Ty:    ctypes.ArrayOf(ctypes.CharType, int64(len(val)+1)),
				Token: tok,
			},
			Value: val,
		}

	case lexer.TokenIdent:
		p.next()
		return p.resolveIdent(tok)

	case lexer.TokenLParen:
		p.next()
		e := p.parseExpr()
		p.expect(lexer.TokenRParen)
		return e
	}

	p.addError(fmt.Sprintf("unexpected token %s in expression", tok.Type))
	p.next()
	return nil
}

// resolveIdent looks a name up through the scope chain. Enum members fold
// to integer constants; unknown names used as callees get an implicit
// vararg int declaration so parsing can continue.
func (p *Parser) resolveIdent(tok lexer.Token) cabs.Expr {
	name := tok.Literal
	v, scope := p.scope.Find(name)
	if v == nil {
		p.addErrorAt(tok, fmt.Sprintf("undeclared identifier %q", name))
		if p.curIs(lexer.TokenLParen) {
			ft := &ctypes.Tfunction{Return: ctypes.IntType, VarArg: true}
			p.global.Add(&cabs.VarInfo{Name: name, Type: ft, Storage: cabs.StorageExtern, Global: true, ParamIdx: -1})
			return cabs.NewVar(name, p.global, ft, tok)
		}
		p.scope.Add(&cabs.VarInfo{Name: name, Type: ctypes.IntType, ParamIdx: -1})
		return cabs.NewVar(name, p.scope, ctypes.IntType, tok)
	}
	if v.Storage&cabs.StorageEnumMember != 0 {
		return cabs.NewIntLit(v.EnumValue, ctypes.IntType, tok)
	}
	return cabs.NewVar(name, scope, v.Type, tok)
}

// intLitType picks the type of an integer literal from its suffixes and
// magnitude.
func intLitType(tok lexer.Token) ctypes.Type {
	kind := ctypes.Int
	switch {
	case tok.LongSize >= 2:
		kind = ctypes.LongLong
	case tok.LongSize == 1:
		kind = ctypes.Long
	case tok.IntVal > 0x7fffffff || tok.IntVal < -0x80000000:
		kind = ctypes.LongLong
	}
	sign := ctypes.Signed
	if tok.Unsigned {
		sign = ctypes.Unsigned
	}
	return &ctypes.Tint{Kind: kind, Sign: sign}
}
