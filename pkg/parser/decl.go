package parser

import (
	"fmt"

	"github.com/jainl28patel/xcc/pkg/cabs"
	"github.com/jainl28patel/xcc/pkg/ctypes"
	"github.com/jainl28patel/xcc/pkg/lexer"
)

// isDeclStart reports whether the current token can begin a declaration.
// Identifiers count when they name a typedef in scope (the classic
// declaration-vs-expression ambiguity).
func (p *Parser) isDeclStart() bool {
	switch p.cur().Type {
	case lexer.TokenTypedef, lexer.TokenStatic, lexer.TokenExtern,
		lexer.TokenConst, lexer.TokenVolatile,
		lexer.TokenVoid, lexer.TokenChar_, lexer.TokenShort, lexer.TokenInt_,
		lexer.TokenLong, lexer.TokenFloat_, lexer.TokenDouble,
		lexer.TokenSigned, lexer.TokenUnsigned,
		lexer.TokenStruct, lexer.TokenUnion, lexer.TokenEnum:
		return true
	case lexer.TokenIdent:
		return p.scope.FindTypedef(p.cur().Literal) != nil
	}
	return false
}

// parseDeclSpecifiers parses storage-class specifiers, qualifiers and the
// type specifier combination, yielding the base type.
func (p *Parser) parseDeclSpecifiers() (cabs.Storage, ctypes.Qual, ctypes.Type, bool) {
	var storage cabs.Storage
	var qual ctypes.Qual
	var baseTy ctypes.Type

	longCount := 0
	short := false
	signed, unsigned := false, false
	sawInt := false

loop:
	for {
		tok := p.cur()
		switch tok.Type {
		case lexer.TokenTypedef:
			storage |= cabs.StorageTypedef
		case lexer.TokenStatic:
			storage |= cabs.StorageStatic
		case lexer.TokenExtern:
			storage |= cabs.StorageExtern
		case lexer.TokenConst:
			qual |= ctypes.QualConst
		case lexer.TokenVolatile:
			qual |= ctypes.QualVolatile
		case lexer.TokenVoid:
			baseTy = ctypes.Void
		case lexer.TokenChar_:
			baseTy = ctypes.CharType
		case lexer.TokenShort:
			short = true
		case lexer.TokenInt_:
			sawInt = true
		case lexer.TokenLong:
			longCount++
		case lexer.TokenFloat_:
			baseTy = ctypes.Float
		case lexer.TokenDouble:
			baseTy = ctypes.Double
		case lexer.TokenSigned:
			signed = true
		case lexer.TokenUnsigned:
			unsigned = true
		case lexer.TokenStruct, lexer.TokenUnion:
			baseTy = p.parseStructSpecifier(tok.Type == lexer.TokenUnion)
			continue loop
		case lexer.TokenEnum:
			baseTy = p.parseEnumSpecifier()
			continue loop
		case lexer.TokenIdent:
			if baseTy == nil && !sawInt && !short && longCount == 0 && !signed && !unsigned {
				if t := p.scope.FindTypedef(tok.Literal); t != nil {
					baseTy = t
					break
				}
			}
			break loop
		default:
			break loop
		}
		p.next()
	}

	if baseTy == nil {
		if short || longCount > 0 || signed || unsigned || sawInt {
			kind := ctypes.Int
			switch {
			case short:
				kind = ctypes.Short
			case longCount == 1:
				kind = ctypes.Long
			case longCount >= 2:
				kind = ctypes.LongLong
			}
			sign := ctypes.Signed
			if unsigned {
				sign = ctypes.Unsigned
			}
			baseTy = &ctypes.Tint{Kind: kind, Sign: sign}
		} else {
			return storage, qual, nil, false
		}
	} else if it, ok := baseTy.(*ctypes.Tint); ok && (unsigned || signed || short || longCount > 0) {
		kind := it.Kind
		switch {
		case short:
			kind = ctypes.Short
		case longCount == 1:
			kind = ctypes.Long
		case longCount >= 2:
			kind = ctypes.LongLong
		}
		sign := ctypes.Signed
		if unsigned {
			sign = ctypes.Unsigned
		}
		baseTy = &ctypes.Tint{Kind: kind, Sign: sign}
	}

	return storage, qual, baseTy, true
}

// parseStructSpecifier parses struct-or-union { members } or a tag
// reference. The struct/union keyword is the current token on entry; the
// whole specifier is consumed.
func (p *Parser) parseStructSpecifier(isUnion bool) ctypes.Type {
	p.next() // struct/union keyword

	tag := ""
	if p.curIs(lexer.TokenIdent) {
		tag = p.cur().Literal
		p.next()
	}

	if !p.curIs(lexer.TokenLBrace) {
		if tag == "" {
			p.addError("expected struct tag or member list")
			return ctypes.IntType
		}
		if t := p.scope.FindTag(tag); t != nil {
			return t
		}
		st := &ctypes.Tstruct{Name: tag, IsUnion: isUnion}
		p.scope.Tags[tag] = st
		return st
	}
	p.next() // {

	st := &ctypes.Tstruct{Name: tag, IsUnion: isUnion}
	if tag != "" {
		if existing := p.scope.FindTag(tag); existing != nil {
			if es, ok := existing.(*ctypes.Tstruct); ok && len(es.Members) == 0 {
				st = es // complete the forward-declared tag in place
				st.IsUnion = isUnion
			}
		}
		p.scope.Tags[tag] = st
	}

	for !p.curIs(lexer.TokenRBrace) && !p.curIs(lexer.TokenEOF) {
		_, _, base, ok := p.parseDeclSpecifiers()
		if !ok {
			p.addError(fmt.Sprintf("expected member declaration, got %s", p.cur().Type))
			p.sync()
			return st
		}
		for {
			name, ty, _ := p.parseDeclarator(base)
			var bf *ctypes.Bitfield
			if p.match(lexer.TokenColon) {
				widthTok := p.cur()
				width := p.parseConstIntExpr()
				baseKind := ctypes.Int
				if it, ok := ty.(*ctypes.Tint); ok {
					baseKind = it.Kind
				} else {
					p.addErrorAt(widthTok, "bitfield base must be an integer type")
				}
				bf = &ctypes.Bitfield{Base: baseKind, Width: int(width)}
			}
			if name != "" || bf != nil {
				st.Members = append(st.Members, ctypes.Member{Name: name, Type: ty, Bitfield: bf})
			}
			if !p.match(lexer.TokenComma) {
				break
			}
		}
		p.expect(lexer.TokenSemicolon)
	}
	p.expect(lexer.TokenRBrace)
	p.target.SizeOf(st) // lay out member offsets now
	return st
}

// parseEnumSpecifier parses enum [tag] { name [= value], ... } or a tag
// reference. Members become constants in the current scope.
func (p *Parser) parseEnumSpecifier() ctypes.Type {
	p.next() // enum keyword

	tag := ""
	if p.curIs(lexer.TokenIdent) {
		tag = p.cur().Literal
		p.next()
	}

	et := &ctypes.Tenum{Name: tag}
	if !p.curIs(lexer.TokenLBrace) {
		if tag == "" {
			p.addError("expected enum tag or member list")
		} else if t := p.scope.FindTag(tag); t != nil {
			return t
		} else {
			p.scope.Tags[tag] = et
		}
		return et
	}
	if tag != "" {
		p.scope.Tags[tag] = et
	}
	p.next() // {

	value := int64(0)
	for !p.curIs(lexer.TokenRBrace) && !p.curIs(lexer.TokenEOF) {
		if !p.curIs(lexer.TokenIdent) {
			p.addError(fmt.Sprintf("expected enum member name, got %s", p.cur().Type))
			p.sync()
			return et
		}
		nameTok := p.next()
		if p.match(lexer.TokenAssign) {
			value = p.parseConstIntExpr()
		}
		v := &cabs.VarInfo{
			Name:      nameTok.Literal,
			Type:      et,
			Storage:   cabs.StorageEnumMember,
			EnumValue: value,
			ParamIdx:  -1,
		}
		if p.scope.Add(v) == nil {
			p.addErrorAt(nameTok, fmt.Sprintf("redefinition of %q", nameTok.Literal))
		}
		value++
		if !p.match(lexer.TokenComma) {
			break
		}
	}
	p.expect(lexer.TokenRBrace)
	return et
}

// parseDeclarator parses pointer, array and function declarators applied
// outside-in to the base type. For function declarators it also returns the
// parameter scope.
func (p *Parser) parseDeclarator(base ctypes.Type) (string, ctypes.Type, *cabs.Scope) {
	for p.match(lexer.TokenStar) {
		base = ctypes.PointerTo(base)
		for p.match(lexer.TokenConst) || p.match(lexer.TokenVolatile) {
		}
	}

	// Function-pointer declarator: ( * name ) ( params )
	if p.curIs(lexer.TokenLParen) && p.peekIs(lexer.TokenStar) {
		p.next() // (
		stars := 0
		for p.match(lexer.TokenStar) {
			stars++
		}
		name := ""
		if p.curIs(lexer.TokenIdent) {
			name = p.next().Literal
		}
		p.expect(lexer.TokenRParen)
		if !p.curIs(lexer.TokenLParen) {
			p.addError("expected parameter list after function-pointer declarator")
			return name, base, nil
		}
		ft, _ := p.parseParamList(base)
		ty := ctypes.Type(ft)
		for i := 0; i < stars; i++ {
			ty = ctypes.PointerTo(ty)
		}
		return name, ty, nil
	}

	name := ""
	if p.curIs(lexer.TokenIdent) {
		name = p.next().Literal
	}

	if p.curIs(lexer.TokenLParen) {
		ft, params := p.parseParamList(base)
		return name, ft, params
	}

	// Array suffixes apply right-to-left: a[2][3] is 2 arrays of 3 elems.
	var dims []int64
	for p.match(lexer.TokenLBracket) {
		if p.match(lexer.TokenRBracket) {
			dims = append(dims, -1)
			continue
		}
		n := p.parseConstIntExpr()
		dims = append(dims, n)
		p.expect(lexer.TokenRBracket)
	}
	ty := base
	for i := len(dims) - 1; i >= 0; i-- {
		ty = ctypes.ArrayOf(ty, dims[i])
	}
	return name, ty, nil
}

// parseParamList parses ( params ) and produces the function type plus the
// parameter scope. Array-typed parameters decay to pointers.
func (p *Parser) parseParamList(ret ctypes.Type) (*ctypes.Tfunction, *cabs.Scope) {
	p.expect(lexer.TokenLParen)

	ft := &ctypes.Tfunction{Return: ret}
	params := cabs.NewScope(p.scope, cabs.ScopeParams)

	if p.match(lexer.TokenRParen) {
		return ft, params
	}
	if p.curIs(lexer.TokenVoid) && p.peekIs(lexer.TokenRParen) {
		p.next()
		p.next()
		return ft, params
	}

	idx := 0
	for {
		if p.match(lexer.TokenEllipsis) {
			ft.VarArg = true
			break
		}
		_, qual, base, ok := p.parseDeclSpecifiers()
		if !ok {
			p.addError(fmt.Sprintf("expected parameter type, got %s", p.cur().Type))
			break
		}
		name, ty, _ := p.parseDeclarator(base)
		if at, isArr := ty.(*ctypes.Tarray); isArr {
			ty = ctypes.PointerTo(at.Elem)
		}
		ft.Params = append(ft.Params, ty)
		if name != "" {
			params.Add(&cabs.VarInfo{Name: name, Type: ty, Qual: qual, ParamIdx: idx})
		}
		idx++
		if !p.match(lexer.TokenComma) {
			break
		}
	}
	p.expect(lexer.TokenRParen)
	return ft, params
}

// parseConstIntExpr parses a constant expression and requires it to fold to
// an integer literal.
func (p *Parser) parseConstIntExpr() int64 {
	tok := p.cur()
	e := p.parseCondExpr()
	if lit, ok := e.(*cabs.IntLit); ok {
		return lit.Value
	}
	p.addErrorAt(tok, "expression is not an integer constant")
	return 0
}
