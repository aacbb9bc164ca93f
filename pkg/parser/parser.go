// Package parser implements a recursive descent parser and semantic
// analyzer for the C subset. Parsing and analysis run in a single pass:
// names are resolved against the scope tree as they are parsed, implicit
// conversions are inserted as nodes are built, and constant expressions are
// folded on the spot.
package parser

import (
	"fmt"

	"github.com/jainl28patel/xcc/pkg/cabs"
	"github.com/jainl28patel/xcc/pkg/ctypes"
	"github.com/jainl28patel/xcc/pkg/lexer"
)

// Parser parses C source into a typed cabs AST
type Parser struct {
	toks   *lexer.Stream
	target ctypes.Target
	errors []string

	global   *cabs.Scope
	scope    *cabs.Scope
	curFunc  *cabs.FunDef
	curSwitch *cabs.Switch
}

// New creates a new Parser over the given token stream.
func New(toks *lexer.Stream, target ctypes.Target) *Parser {
	global := cabs.NewScope(nil, cabs.ScopeGlobal)
	return &Parser{
		toks:   toks,
		target: target,
		global: global,
		scope:  global,
	}
}

// Errors returns the list of diagnostics, lexical ones first.
func (p *Parser) Errors() []string {
	return append(append([]string{}, p.toks.Errors()...), p.errors...)
}

func (p *Parser) cur() lexer.Token      { return p.toks.Cur() }
func (p *Parser) peek(n int) lexer.Token { return p.toks.Peek(n) }
func (p *Parser) next() lexer.Token     { return p.toks.Next() }

func (p *Parser) curIs(t lexer.TokenType) bool  { return p.cur().Type == t }
func (p *Parser) peekIs(t lexer.TokenType) bool { return p.peek(1).Type == t }

// match consumes the current token when it has the given type.
func (p *Parser) match(t lexer.TokenType) bool {
	if p.curIs(t) {
		p.next()
		return true
	}
	return false
}

func (p *Parser) expect(t lexer.TokenType) bool {
	if p.match(t) {
		return true
	}
	p.addError(fmt.Sprintf("expected %s, got %s", t, p.cur().Type))
	return false
}

func (p *Parser) addError(msg string) {
	p.addErrorAt(p.cur(), msg)
}

func (p *Parser) addErrorAt(tok lexer.Token, msg string) {
	p.errors = append(p.errors, fmt.Sprintf("%s: %s", tok.Pos(), msg))
}

// sync skips tokens until the next plausible top-level or statement
// boundary after a syntax error.
func (p *Parser) sync() {
	depth := 0
	for {
		tok := p.cur()
		switch tok.Type {
		case lexer.TokenEOF:
			return
		case lexer.TokenLBrace:
			depth++
		case lexer.TokenRBrace:
			if depth == 0 {
				p.next()
				return
			}
			depth--
		case lexer.TokenSemicolon:
			if depth == 0 {
				p.next()
				return
			}
		}
		p.next()
	}
}

// pushScope enters a child scope of the current one.
func (p *Parser) pushScope(kind cabs.ScopeKind) *cabs.Scope {
	p.scope = cabs.NewScope(p.scope, kind)
	if p.curFunc != nil {
		p.curFunc.Scopes = append(p.curFunc.Scopes, p.scope)
	}
	return p.scope
}

func (p *Parser) popScope() {
	p.scope = p.scope.Parent
}

// ParseProgram parses the whole translation unit.
func (p *Parser) ParseProgram() *cabs.Program {
	prog := &cabs.Program{Global: p.global}
	for !p.curIs(lexer.TokenEOF) {
		if p.curIs(lexer.TokenIllegal) {
			p.next()
			continue
		}
		decl := p.parseTopLevel()
		if decl != nil {
			prog.Decls = append(prog.Decls, decl)
		}
	}
	return prog
}

// parseTopLevel parses one external declaration: a function definition, a
// prototype, a global variable group, or a typedef.
func (p *Parser) parseTopLevel() cabs.Declaration {
	storage, qual, base, ok := p.parseDeclSpecifiers()
	if !ok {
		p.addError(fmt.Sprintf("expected declaration, got %s", p.cur().Type))
		p.sync()
		return nil
	}

	// Bare "struct S;" style declarations introduce only the tag.
	if p.match(lexer.TokenSemicolon) {
		return nil
	}

	first := true
	var decls []*cabs.VarInfo
	for {
		nameTok := p.cur()
		name, ty, params := p.parseDeclarator(base)
		if name == "" {
			p.addErrorAt(nameTok, "malformed declarator")
			p.sync()
			return nil
		}

		if ft, isFn := ty.(*ctypes.Tfunction); isFn && first && p.curIs(lexer.TokenLBrace) {
			return p.parseFunctionBody(name, ft, params, storage)
		}
		first = false

		if storage&cabs.StorageTypedef != 0 {
			p.scope.Typedefs[name] = ty
		} else {
			v := p.declareVar(nameTok, name, ty, qual, storage)
			if v != nil {
				if p.match(lexer.TokenAssign) {
					v.Init = p.parseInitializer(ty)
				}
				decls = append(decls, v)
			}
		}

		if p.match(lexer.TokenComma) {
			continue
		}
		p.expect(lexer.TokenSemicolon)
		break
	}
	if len(decls) == 0 {
		return nil
	}
	return &cabs.GlobalDecl{Decls: decls}
}

func (p *Parser) declareVar(tok lexer.Token, name string, ty ctypes.Type, qual ctypes.Qual, storage cabs.Storage) *cabs.VarInfo {
	v := &cabs.VarInfo{
		Name:     name,
		Type:     ty,
		Qual:     qual,
		Storage:  storage,
		Global:   p.scope.IsGlobal() || storage&(cabs.StorageStatic|cabs.StorageExtern) != 0,
		ParamIdx: -1,
	}
	if existing := p.scope.Lookup(name); existing != nil {
		// A prototype followed by another declaration of the same function
		// (or an extern redeclaration) is allowed when types agree.
		_, isFn := ty.(*ctypes.Tfunction)
		redecl := isFn || storage&cabs.StorageExtern != 0 || existing.Storage&cabs.StorageExtern != 0
		if redecl && ctypes.Equal(existing.Type, ty) {
			return existing
		}
		p.addErrorAt(tok, fmt.Sprintf("redefinition of %q", name))
		return nil
	}
	p.scope.Add(v)
	return v
}

// parseFunctionBody parses the body of a function definition whose
// declarator has just been consumed.
func (p *Parser) parseFunctionBody(name string, ft *ctypes.Tfunction, params *cabs.Scope, storage cabs.Storage) cabs.Declaration {
	fd := &cabs.FunDef{
		Name:     name,
		Type:     ft,
		Params:   params,
		Storage:  storage,
		LabelSet: make(map[string]bool),
	}

	// Record the function in the global scope so recursive and forward
	// references resolve.
	if existing := p.global.Lookup(name); existing == nil {
		p.global.Add(&cabs.VarInfo{Name: name, Type: ft, Storage: storage, Global: true, ParamIdx: -1})
	} else if !ctypes.Equal(existing.Type, ft) {
		p.addError(fmt.Sprintf("conflicting types for %q", name))
	}

	p.curFunc = fd
	params.Parent = p.global
	p.scope = params
	fd.Scopes = append(fd.Scopes, params)

	fd.Body = p.parseBlock()

	p.scope = p.global
	p.curFunc = nil
	return fd
}

// parseInitializer parses a scalar or brace-enclosed initializer.
func (p *Parser) parseInitializer(ty ctypes.Type) *cabs.Initializer {
	if p.match(lexer.TokenLBrace) {
		init := &cabs.Initializer{Kind: cabs.InitMulti}
		for !p.curIs(lexer.TokenRBrace) && !p.curIs(lexer.TokenEOF) {
			elemTy := ty
			if at, ok := ty.(*ctypes.Tarray); ok {
				elemTy = at.Elem
			}
			init.Multi = append(init.Multi, p.parseInitializer(elemTy))
			if !p.match(lexer.TokenComma) {
				break
			}
		}
		p.expect(lexer.TokenRBrace)
		return init
	}
	val := p.parseAssignExpr()
	if val == nil {
		return nil
	}
	if ctypes.IsScalar(ty) && !ctypes.Equal(val.Type(), ty) && ctypes.IsScalar(val.Type()) {
		val = p.insertCast(val, ty)
	}
	return &cabs.Initializer{Kind: cabs.InitSingle, Single: val}
}
