// Package wasmgen lowers the typed AST directly into WebAssembly bytecode,
// bypassing the native IR and register allocator. Expressions post-order
// emit their operands then one opcode; control flow uses the structured
// block/loop/if instructions with a hand-maintained depth counter.
package wasmgen

import (
	"fmt"

	"github.com/jainl28patel/xcc/pkg/cabs"
	"github.com/jainl28patel/xcc/pkg/ctypes"
	"github.com/jainl28patel/xcc/pkg/traverse"
)

const i32Size = 4

// Generator lowers reachable functions to code bodies and assembles the
// final module.
type Generator struct {
	target ctypes.Target
	table  *traverse.Table
	errors []string

	globalVars  []*cabs.VarInfo
	globalIndex map[*cabs.VarInfo]uint32

	bodies map[string][]byte

	// per-function state
	fd       *cabs.FunDef
	code     *Buffer
	curDepth int
	// Frame indices of each enclosing loop's break and continue targets.
	// The continue target is the loop frame for while, and a dedicated
	// block around the body for do-while and for.
	breakFrames []int
	contFrames  []int
	locals      map[*cabs.VarInfo]uint32
	retLocal    uint32
	hasRet      bool
}

// New creates a Generator over the traversed unit.
func New(target ctypes.Target, table *traverse.Table) *Generator {
	return &Generator{
		target:      target,
		table:       table,
		globalIndex: make(map[*cabs.VarInfo]uint32),
		bodies:      make(map[string][]byte),
	}
}

// Errors returns lowering diagnostics.
func (g *Generator) Errors() []string {
	return g.errors
}

func (g *Generator) errorf(format string, args ...interface{}) {
	g.errors = append(g.errors, fmt.Sprintf(format, args...))
}

// toWType maps a C type onto a wasm value type.
func (g *Generator) toWType(t ctypes.Type) byte {
	switch tt := t.(type) {
	case *ctypes.Tint, *ctypes.Tenum:
		if g.target.SizeOf(t) <= i32Size {
			return WTI32
		}
		return WTI64
	case *ctypes.Tfloat:
		if tt.Kind == ctypes.F32 {
			return WTF32
		}
		return WTF64
	case *ctypes.Tpointer:
		return WTI32
	}
	g.errorf("type %s is not representable on the wasm target", t)
	return WTI32
}

// GenProgram collects globals and lowers every reachable defined function.
func (g *Generator) GenProgram(prog *cabs.Program) {
	for _, v := range prog.Global.Vars {
		if v.Storage&(cabs.StorageExtern|cabs.StorageEnumMember|cabs.StorageTypedef) != 0 {
			continue
		}
		if !ctypes.IsScalar(v.Type) || isFuncType(v.Type) {
			continue
		}
		g.globalIndex[v] = uint32(len(g.globalVars))
		g.globalVars = append(g.globalVars, v)
	}

	for _, info := range g.table.Defined() {
		g.genDefun(info)
	}
}

func isFuncType(t ctypes.Type) bool {
	_, ok := t.(*ctypes.Tfunction)
	return ok
}

// genDefun lowers one function into its code-section body: local
// declarations, an outer block enclosing the statements, and the
// return-value epilogue.
func (g *Generator) genDefun(info *traverse.FuncInfo) {
	fd := info.Def
	g.fd = fd
	g.code = &Buffer{}
	g.curDepth = 0
	g.breakFrames, g.contFrames = nil, nil
	g.locals = make(map[*cabs.VarInfo]uint32)
	g.hasRet = !ctypes.IsVoid(fd.Type.Return)

	header := &Buffer{}
	paramCount := uint32(len(fd.Type.Params))
	localCount := uint32(0)

	addLocal := func(v *cabs.VarInfo) {
		g.locals[v] = paramCount + localCount
		localCount++
		header.AddULEB128(1)
		header.Push(g.toWType(v.Type))
	}

	for _, scope := range fd.Scopes {
		for _, v := range scope.Vars {
			if v.Storage&(cabs.StorageStatic|cabs.StorageExtern|cabs.StorageEnumMember) != 0 {
				if v.Storage&cabs.StorageStatic != 0 {
					g.errorf("%s: static locals are not supported on the wasm target", fd.Name)
				}
				continue
			}
			if scope == fd.Params {
				g.locals[v] = uint32(v.ParamIdx)
				continue
			}
			if !ctypes.IsScalar(v.Type) {
				g.errorf("%s: local %q has non-scalar type %s, not supported on the wasm target", fd.Name, v.Name, v.Type)
				continue
			}
			addLocal(v)
		}
	}

	// The hidden return-value local.
	if g.hasRet {
		g.retLocal = paramCount + localCount
		localCount++
		header.AddULEB128(1)
		header.Push(g.toWType(fd.Type.Return))
	}

	header.EmitULEB128(0, uint64(localCount))

	g.code.Push(OpBlock)
	g.code.Push(WTVoid)
	g.curDepth++
	g.genStmt(fd.Body)
	g.code.Push(OpEnd)
	g.curDepth--

	if g.hasRet {
		g.code.Push(OpLocalGet)
		g.code.AddULEB128(uint64(g.retLocal))
	}
	g.code.Push(OpEnd)

	body := &Buffer{}
	body.AddULEB128(uint64(header.Len() + g.code.Len()))
	body.Concat(header)
	body.Concat(g.code)
	g.bodies[fd.Name] = body.Bytes()
}

func (g *Generator) genStmt(stmt cabs.Stmt) {
	if stmt == nil {
		return
	}
	switch s := stmt.(type) {
	case *cabs.ExprStmt:
		g.genExprStmt(s.Expr)
	case *cabs.Block:
		for _, item := range s.Items {
			g.genStmt(item)
		}
	case *cabs.If:
		g.genIf(s)
	case *cabs.While:
		g.genWhile(s)
	case *cabs.DoWhile:
		g.genDoWhile(s)
	case *cabs.For:
		g.genFor(s)
	case *cabs.Break:
		if len(g.breakFrames) == 0 {
			g.errorf("%s: break outside loop", s.Token.Pos())
			return
		}
		g.brTo(g.breakFrames[len(g.breakFrames)-1])
	case *cabs.Continue:
		if len(g.contFrames) == 0 {
			g.errorf("%s: continue outside loop", s.Token.Pos())
			return
		}
		g.brTo(g.contFrames[len(g.contFrames)-1])
	case *cabs.Return:
		g.genReturn(s)
	case *cabs.VarDecl:
		for _, init := range s.Inits {
			g.genStmt(init)
		}
	case *cabs.Switch:
		g.errorf("%s: switch is not supported on the wasm target", g.fd.Name)
	case *cabs.Goto:
		g.errorf("%s: goto is not supported on the wasm target", s.Token.Pos())
	case *cabs.Label:
		g.genStmt(s.Stmt)
	case *cabs.Asm:
		g.errorf("%s: inline assembly is not supported on the wasm target", s.Token.Pos())
	}
}

func (g *Generator) genExprStmt(e cabs.Expr) {
	g.genExpr(e)
	if !ctypes.IsVoid(e.Type()) {
		g.code.Push(OpDrop)
	}
}

func (g *Generator) genIf(s *cabs.If) {
	g.genCond(s.Cond, true)
	g.code.Push(OpIf)
	g.code.Push(WTVoid)
	g.curDepth++
	g.genStmt(s.Then)
	if s.Else != nil {
		g.code.Push(OpElse)
		g.genStmt(s.Else)
	}
	g.code.Push(OpEnd)
	g.curDepth--
}

// openFrame opens a block or loop frame and returns its frame index; a br
// targeting it is computed from the current depth by brTo.
func (g *Generator) openFrame(op byte) int {
	fi := g.curDepth
	g.code.Push(op)
	g.code.Push(WTVoid)
	g.curDepth++
	return fi
}

func (g *Generator) closeFrame() {
	g.code.Push(OpEnd)
	g.curDepth--
}

// brTo branches to the frame with index fi, relative to the current depth.
func (g *Generator) brTo(fi int) {
	g.code.Push(OpBr)
	g.code.AddULEB128(uint64(g.curDepth - 1 - fi))
}

func (g *Generator) pushLoopTargets(breakFrame, contFrame int) {
	g.breakFrames = append(g.breakFrames, breakFrame)
	g.contFrames = append(g.contFrames, contFrame)
}

func (g *Generator) popLoopTargets() {
	g.breakFrames = g.breakFrames[:len(g.breakFrames)-1]
	g.contFrames = g.contFrames[:len(g.contFrames)-1]
}

// genWhile opens a block (the break target) around a loop; the loop header
// is the condition test, so continue branches to the loop itself.
func (g *Generator) genWhile(s *cabs.While) {
	exit := g.openFrame(OpBlock)
	header := g.openFrame(OpLoop)
	g.pushLoopTargets(exit, header)

	g.genCondJmp(s.Cond, false, 1)
	g.genStmt(s.Body)
	g.brTo(header)

	g.popLoopTargets()
	g.closeFrame()
	g.closeFrame()
}

// genDoWhile wraps the body in its own block so continue falls through to
// the controlling expression rather than restarting the body.
func (g *Generator) genDoWhile(s *cabs.DoWhile) {
	exit := g.openFrame(OpBlock)
	header := g.openFrame(OpLoop)
	cont := g.openFrame(OpBlock)
	g.pushLoopTargets(exit, cont)

	g.genStmt(s.Body)
	g.popLoopTargets()
	g.closeFrame() // continue lands here, at the condition test

	g.genCondJmp(s.Cond, false, 1)
	g.brTo(header)

	g.closeFrame()
	g.closeFrame()
}

// genFor gives the body an inner block as the continue target, so continue
// falls through to the post-statement before looping.
func (g *Generator) genFor(s *cabs.For) {
	if s.Pre != nil {
		g.genExprStmt(s.Pre)
	}
	exit := g.openFrame(OpBlock)
	header := g.openFrame(OpLoop)
	if s.Cond != nil {
		g.genCondJmp(s.Cond, false, 1)
	}
	cont := g.openFrame(OpBlock)
	g.pushLoopTargets(exit, cont)

	g.genStmt(s.Body)
	g.popLoopTargets()
	g.closeFrame() // continue lands here, before the post-statement

	if s.Post != nil {
		g.genExprStmt(s.Post)
	}
	g.brTo(header)

	g.closeFrame()
	g.closeFrame()
}

// genReturn stores the value to the return-value local and branches to the
// function's outermost block.
func (g *Generator) genReturn(s *cabs.Return) {
	if s.Value != nil {
		g.genExpr(s.Value)
		g.code.Push(OpLocalSet)
		g.code.AddULEB128(uint64(g.retLocal))
	}
	g.code.Push(OpBr)
	g.code.AddULEB128(uint64(g.curDepth - 1))
}
