package parser

import (
	"fmt"

	"github.com/jainl28patel/xcc/pkg/cabs"
	"github.com/jainl28patel/xcc/pkg/ctypes"
	"github.com/jainl28patel/xcc/pkg/lexer"
)

// parseBlock parses { stmts } with its own scope. The caller's cursor sits
// on the opening brace.
func (p *Parser) parseBlock() *cabs.Block {
	if !p.expect(lexer.TokenLBrace) {
		return &cabs.Block{}
	}
	scope := p.pushScope(cabs.ScopeBlock)
	block := &cabs.Block{Scope: scope}
	for !p.curIs(lexer.TokenRBrace) && !p.curIs(lexer.TokenEOF) {
		stmt := p.parseStatement()
		if stmt != nil {
			block.Items = append(block.Items, stmt)
		}
	}
	p.expect(lexer.TokenRBrace)
	p.popScope()
	return block
}

func (p *Parser) parseStatement() cabs.Stmt {
	tok := p.cur()
	switch tok.Type {
	case lexer.TokenLBrace:
		return p.parseBlock()

	case lexer.TokenIf:
		p.next()
		p.expect(lexer.TokenLParen)
		cond := p.parseExpr()
		p.expect(lexer.TokenRParen)
		then := p.parseStatement()
		var els cabs.Stmt
		if p.match(lexer.TokenElse) {
			els = p.parseStatement()
		}
		if cond == nil {
			return nil
		}
		return &cabs.If{Cond: p.decay(cond), Then: then, Else: els}

	case lexer.TokenWhile:
		p.next()
		p.expect(lexer.TokenLParen)
		cond := p.parseExpr()
		p.expect(lexer.TokenRParen)
		body := p.parseStatement()
		if cond == nil {
			return nil
		}
		return &cabs.While{Cond: p.decay(cond), Body: body}

	case lexer.TokenDo:
		p.next()
		body := p.parseStatement()
		p.expect(lexer.TokenWhile)
		p.expect(lexer.TokenLParen)
		cond := p.parseExpr()
		p.expect(lexer.TokenRParen)
		p.expect(lexer.TokenSemicolon)
		if cond == nil {
			return nil
		}
		return &cabs.DoWhile{Body: body, Cond: p.decay(cond)}

	case lexer.TokenFor:
		return p.parseFor()

	case lexer.TokenSwitch:
		return p.parseSwitch()

	case lexer.TokenCase:
		p.next()
		caseTok := tok
		value := p.parseConstIntExpr()
		p.expect(lexer.TokenColon)
		if p.curSwitch == nil {
			p.addErrorAt(caseTok, "case label outside switch")
			return nil
		}
		p.curSwitch.CaseValues = append(p.curSwitch.CaseValues, value)
		return &cabs.Case{Value: value}

	case lexer.TokenDefault:
		p.next()
		p.expect(lexer.TokenColon)
		if p.curSwitch == nil {
			p.addErrorAt(tok, "default label outside switch")
			return nil
		}
		if p.curSwitch.HasDefault {
			p.addErrorAt(tok, "multiple default labels in one switch")
		}
		p.curSwitch.HasDefault = true
		return &cabs.Default{}

	case lexer.TokenBreak:
		p.next()
		p.expect(lexer.TokenSemicolon)
		return &cabs.Break{Token: tok}

	case lexer.TokenContinue:
		p.next()
		p.expect(lexer.TokenSemicolon)
		return &cabs.Continue{Token: tok}

	case lexer.TokenReturn:
		p.next()
		var val cabs.Expr
		if !p.curIs(lexer.TokenSemicolon) {
			val = p.parseExpr()
		}
		p.expect(lexer.TokenSemicolon)
		return p.makeReturn(tok, val)

	case lexer.TokenGoto:
		p.next()
		if !p.curIs(lexer.TokenIdent) {
			p.addError("expected label name after goto")
			p.sync()
			return nil
		}
		label := p.next().Literal
		p.expect(lexer.TokenSemicolon)
		return &cabs.Goto{Label: label, Token: tok}

	case lexer.TokenAsm:
		p.next()
		p.expect(lexer.TokenLParen)
		text := ""
		if p.curIs(lexer.TokenString) {
			text = p.next().StrVal
		} else {
			p.addError("expected string literal in __asm")
		}
		p.expect(lexer.TokenRParen)
		p.expect(lexer.TokenSemicolon)
		return &cabs.Asm{Text: text, Token: tok}

	case lexer.TokenSemicolon:
		p.next()
		return nil

	case lexer.TokenIdent:
		// A label is an identifier directly followed by a colon.
		if p.peekIs(lexer.TokenColon) {
			name := p.next().Literal
			p.next() // :
			if p.curFunc != nil {
				if p.curFunc.LabelSet[name] {
					p.addErrorAt(tok, fmt.Sprintf("duplicate label %q", name))
				}
				p.curFunc.LabelSet[name] = true
			}
			return &cabs.Label{Name: name, Stmt: p.parseStatement()}
		}
	}

	if p.isDeclStart() {
		return p.parseLocalDecl()
	}

	e := p.parseExpr()
	if e == nil {
		p.sync()
		return nil
	}
	p.expect(lexer.TokenSemicolon)
	return &cabs.ExprStmt{Expr: e}
}

func (p *Parser) parseFor() cabs.Stmt {
	p.next() // for
	p.expect(lexer.TokenLParen)

	var pre, cond, post cabs.Expr
	if !p.curIs(lexer.TokenSemicolon) {
		pre = p.parseExpr()
	}
	p.expect(lexer.TokenSemicolon)
	if !p.curIs(lexer.TokenSemicolon) {
		cond = p.parseExpr()
		if cond != nil {
			cond = p.decay(cond)
		}
	}
	p.expect(lexer.TokenSemicolon)
	if !p.curIs(lexer.TokenRParen) {
		post = p.parseExpr()
	}
	p.expect(lexer.TokenRParen)

	body := p.parseStatement()
	return &cabs.For{Pre: pre, Cond: cond, Post: post, Body: body}
}

func (p *Parser) parseSwitch() cabs.Stmt {
	p.next() // switch
	p.expect(lexer.TokenLParen)
	cond := p.parseExpr()
	p.expect(lexer.TokenRParen)

	sw := &cabs.Switch{}
	if cond != nil {
		cond = p.decay(cond)
		if !ctypes.IsInteger(cond.Type()) {
			p.addErrorAt(cond.Tok(), "switch condition must have integer type")
		}
		sw.Cond = p.insertCast(cond, p.promoted(cond.Type()))
	}

	prev := p.curSwitch
	p.curSwitch = sw
	sw.Body = p.parseStatement()
	p.curSwitch = prev
	return sw
}

// makeReturn checks and converts the return value against the enclosing
// function's return type.
func (p *Parser) makeReturn(tok lexer.Token, val cabs.Expr) cabs.Stmt {
	if p.curFunc == nil {
		p.addErrorAt(tok, "return outside a function")
		return nil
	}
	ret := p.curFunc.Type.Return
	if val == nil {
		if !ctypes.IsVoid(ret) {
			p.addErrorAt(tok, "non-void function must return a value")
		}
		return &cabs.Return{Token: tok}
	}
	if ctypes.IsVoid(ret) {
		p.addErrorAt(tok, "void function cannot return a value")
		return &cabs.Return{Token: tok}
	}
	val = p.decay(val)
	val = p.convertForAssign(tok, val, ret)
	return &cabs.Return{Value: val, Token: tok}
}

// parseLocalDecl parses a declaration statement inside a function body and
// lowers initializers into assignment statements.
func (p *Parser) parseLocalDecl() cabs.Stmt {
	storage, qual, base, ok := p.parseDeclSpecifiers()
	if !ok {
		p.addError(fmt.Sprintf("expected declaration, got %s", p.cur().Type))
		p.sync()
		return nil
	}
	if p.match(lexer.TokenSemicolon) {
		return nil // tag-only declaration
	}

	group := &cabs.VarDecl{}
	for {
		nameTok := p.cur()
		name, ty, _ := p.parseDeclarator(base)
		if name == "" {
			p.addErrorAt(nameTok, "malformed declarator")
			p.sync()
			return group
		}

		if storage&cabs.StorageTypedef != 0 {
			p.scope.Typedefs[name] = ty
		} else {
			v := p.declareVar(nameTok, name, ty, qual, storage)
			if v != nil {
				group.Decls = append(group.Decls, v)
				if p.match(lexer.TokenAssign) {
					p.parseLocalInit(group, v, nameTok)
				}
			}
		}

		if p.match(lexer.TokenComma) {
			continue
		}
		p.expect(lexer.TokenSemicolon)
		break
	}
	return group
}

// parseLocalInit lowers a local initializer into assignments appended to
// the declaration group. Statics keep their initializer tree instead, since
// they are materialized in the data section.
func (p *Parser) parseLocalInit(group *cabs.VarDecl, v *cabs.VarInfo, nameTok lexer.Token) {
	init := p.parseInitializer(v.Type)
	if init == nil {
		return
	}
	if v.Storage&(cabs.StorageStatic|cabs.StorageExtern) != 0 {
		v.Init = init
		return
	}

	ref := cabs.NewVar(v.Name, p.scope, v.Type, nameTok)
	switch init.Kind {
	case cabs.InitSingle:
		val := p.convertForAssign(nameTok, p.decay(init.Single), v.Type)
		group.Inits = append(group.Inits, &cabs.ExprStmt{Expr: &cabs.Assign{
			ExprBase: cabs.ExprBase{Ty: v.Type, Token: nameTok},
			Left:     ref,
			Right:    val,
		}})
	case cabs.InitMulti:
		at, ok := v.Type.(*ctypes.Tarray)
		if !ok {
			p.addErrorAt(nameTok, "brace initializer requires an array")
			return
		}
		for i, elem := range init.Multi {
			if elem == nil || elem.Kind != cabs.InitSingle {
				p.addErrorAt(nameTok, "nested brace initializers are not supported")
				continue
			}
			idx := cabs.NewIntLit(int64(i), ctypes.IntType, nameTok)
			target := p.makeAdditive(cabs.OpAdd, ref, idx, nameTok)
			lhs := &cabs.Deref{ExprBase: cabs.ExprBase{Ty: at.Elem, Token: nameTok}, Sub: target}
			val := p.convertForAssign(nameTok, p.decay(elem.Single), at.Elem)
			group.Inits = append(group.Inits, &cabs.ExprStmt{Expr: &cabs.Assign{
				ExprBase: cabs.ExprBase{Ty: at.Elem, Token: nameTok},
				Left:     lhs,
				Right:    val,
			}})
		}
	}
}
