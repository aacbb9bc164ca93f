package wasmgen

import (
	"io"

	"github.com/jainl28patel/xcc/pkg/cabs"
	"github.com/jainl28patel/xcc/pkg/ctypes"
)

// importModuleName is the fixed module every undefined function is
// imported from.
const importModuleName = "c"

// EmitModule assembles and writes the final module: the 8-byte header
// followed by the Type, Import, Function, Global, Export and Code sections
// in canonical order, each prefixed with its ULEB128 size.
func (g *Generator) EmitModule(w io.Writer, exports []string) error {
	out := &Buffer{}
	out.Append(wasmHeader)

	g.emitTypeSection(out)
	g.emitImportSection(out)
	g.emitFunctionSection(out)
	g.emitGlobalSection(out)
	g.emitExportSection(out, exports)
	g.emitCodeSection(out)

	_, err := w.Write(out.Bytes())
	return err
}

// appendSection wraps a section body with its id and size prefix.
func appendSection(out *Buffer, id byte, body *Buffer) {
	out.Push(id)
	out.AddULEB128(uint64(body.Len()))
	out.Concat(body)
}

// emitTypeSection writes the deduplicated signatures in intern order.
func (g *Generator) emitTypeSection(out *Buffer) {
	sec := &Buffer{}
	sigs := g.table.Sigs.Sigs()
	sec.AddULEB128(uint64(len(sigs)))
	for _, sig := range sigs {
		sec.Push(WTFunc)
		sec.AddULEB128(uint64(len(sig.Params)))
		for _, p := range sig.Params {
			sec.Push(g.toWType(p))
		}
		if ctypes.IsVoid(sig.Return) {
			sec.AddULEB128(0)
		} else {
			sec.AddULEB128(1)
			sec.Push(g.toWType(sig.Return))
		}
	}
	appendSection(out, SecType, sec)
}

// emitImportSection lists reachable but undefined functions under the
// fixed module name; they occupy the low function indices.
func (g *Generator) emitImportSection(out *Buffer) {
	imports := g.table.Imports()
	if len(imports) == 0 {
		return
	}
	sec := &Buffer{}
	sec.AddULEB128(uint64(len(imports)))
	for _, info := range imports {
		if info.Static {
			g.errorf("import: %q is not public", info.Name)
		}
		sec.AddULEB128(uint64(len(importModuleName)))
		sec.Append([]byte(importModuleName))
		sec.AddULEB128(uint64(len(info.Name)))
		sec.Append([]byte(info.Name))
		sec.AddULEB128(0) // import kind: function
		sec.AddULEB128(uint64(info.TypeIndex))
	}
	appendSection(out, SecImport, sec)
}

// emitFunctionSection lists each local function's type index.
func (g *Generator) emitFunctionSection(out *Buffer) {
	defined := g.table.Defined()
	sec := &Buffer{}
	sec.AddULEB128(uint64(len(defined)))
	for _, info := range defined {
		sec.AddULEB128(uint64(info.TypeIndex))
	}
	appendSection(out, SecFunc, sec)
}

// emitGlobalSection declares one entry per non-extern global scalar;
// mutability derives from const qualification.
func (g *Generator) emitGlobalSection(out *Buffer) {
	if len(g.globalVars) == 0 {
		return
	}
	sec := &Buffer{}
	sec.AddULEB128(uint64(len(g.globalVars)))
	for _, v := range g.globalVars {
		sec.Push(g.toWType(v.Type))
		if v.Qual&ctypes.QualConst != 0 {
			sec.Push(0) // immutable
		} else {
			sec.Push(1)
		}
		g.emitGlobalInit(sec, v)
		sec.Push(OpEnd)
	}
	appendSection(out, SecGlobal, sec)
}

// emitGlobalInit writes the constant initializer expression for a global.
func (g *Generator) emitGlobalInit(sec *Buffer, v *cabs.VarInfo) {
	var iv int64
	var fv float64
	if v.Init != nil && v.Init.Kind == cabs.InitSingle {
		switch lit := v.Init.Single.(type) {
		case *cabs.IntLit:
			iv = lit.Value
			fv = float64(lit.Value)
		case *cabs.FloatLit:
			fv = lit.Value
			iv = int64(lit.Value)
		default:
			g.errorf("global %q initializer is not a constant", v.Name)
		}
	}
	switch g.toWType(v.Type) {
	case WTI32:
		sec.Push(OpI32Const)
		sec.AddLEB128(int64(int32(iv)))
	case WTI64:
		sec.Push(OpI64Const)
		sec.AddLEB128(iv)
	case WTF32:
		sec.Push(OpF32Const)
		saved := g.code
		g.code = sec
		g.appendF32(float32(fv))
		g.code = saved
	case WTF64:
		sec.Push(OpF64Const)
		saved := g.code
		g.code = sec
		g.appendF64(fv)
		g.code = saved
	}
}

// emitExportSection declares each requested symbol, all of function kind.
// Eligibility was checked during traversal; unknown names are skipped here
// so the section stays well-formed.
func (g *Generator) emitExportSection(out *Buffer, exports []string) {
	sec := &Buffer{}
	count := 0
	countPos := sec.Len()
	for _, name := range exports {
		info := g.table.Find(name)
		if info == nil || info.Def == nil || info.Static || info.Index < 0 {
			continue
		}
		sec.AddULEB128(uint64(len(name)))
		sec.Append([]byte(name))
		sec.AddULEB128(0) // export kind: function
		sec.AddULEB128(uint64(info.Index))
		count++
	}
	sec.EmitULEB128(countPos, uint64(count))
	appendSection(out, SecExport, sec)
}

// emitCodeSection concatenates the per-function bodies produced by
// GenProgram.
func (g *Generator) emitCodeSection(out *Buffer) {
	defined := g.table.Defined()
	sec := &Buffer{}
	sec.AddULEB128(uint64(len(defined)))
	for _, info := range defined {
		sec.Append(g.bodies[info.Name])
	}
	appendSection(out, SecCode, sec)
}
