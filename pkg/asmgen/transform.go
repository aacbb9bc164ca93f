// Package asmgen emits System-V x86-64 assembly text (AT&T syntax) from
// the register-allocated IR.
package asmgen

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/jainl28patel/xcc/pkg/cabs"
	"github.com/jainl28patel/xcc/pkg/ctypes"
	"github.com/jainl28patel/xcc/pkg/irgen"
)

// Emitter outputs x86-64 assembly in GNU as syntax.
type Emitter struct {
	w        io.Writer
	target   ctypes.Target
	isDarwin bool
}

// NewEmitter creates an assembly emitter for the host platform.
func NewEmitter(w io.Writer, target ctypes.Target) *Emitter {
	return &Emitter{w: w, target: target, isDarwin: runtime.GOOS == "darwin"}
}

// NewEmitterFor creates an emitter with an explicit Mach-O flag; used by
// tests that need deterministic symbol mangling.
func NewEmitterFor(w io.Writer, target ctypes.Target, darwin bool) *Emitter {
	return &Emitter{w: w, target: target, isDarwin: darwin}
}

// symbolName returns the symbol with the platform-appropriate prefix.
func (e *Emitter) symbolName(name string) string {
	if e.isDarwin {
		return "_" + name
	}
	return name
}

func (e *Emitter) printf(format string, args ...interface{}) {
	fmt.Fprintf(e.w, format, args...)
}

// emitAlign emits an alignment directive; Mach-O wants the power-of-two
// log, ELF the byte count.
func (e *Emitter) emitAlign(align int64) {
	if align <= 1 {
		return
	}
	if e.isDarwin {
		e.printf("\t.p2align\t%d\n", log2(align))
	} else {
		e.printf("\t.align\t%d\n", align)
	}
}

func log2(n int64) int {
	r := 0
	for n > 1 {
		n >>= 1
		r++
	}
	return r
}

// EmitProgram writes the whole unit: literal pools, globals, then every
// reachable function.
func (e *Emitter) EmitProgram(prog *cabs.Program, gen *irgen.Generator, funcs []*irgen.Func) {
	e.emitRodata(gen)
	e.emitGlobals(prog, gen)

	e.printf("\t.text\n")
	for _, fn := range funcs {
		e.emitFunction(fn)
	}
}

// emitRodata writes the pooled string and floating literals.
func (e *Emitter) emitRodata(gen *irgen.Generator) {
	if len(gen.StringLits) == 0 && len(gen.FloatLits) == 0 {
		return
	}
	if e.isDarwin {
		e.printf("\t.section\t__TEXT,__cstring\n")
	} else {
		e.printf("\t.section\t.rodata\n")
	}
	for _, sl := range gen.StringLits {
		e.printf("%s:\n", sl.Label)
		e.printf("\t.asciz\t%q\n", sl.Value)
	}
	for _, fl := range gen.FloatLits {
		if fl.Single {
			e.emitAlign(4)
			e.printf("%s:\n", fl.Label)
			e.printf("\t.long\t%d\n", uint32(fl.Bits))
		} else {
			e.emitAlign(8)
			e.printf("%s:\n", fl.Label)
			e.printf("\t.quad\t%d\n", fl.Bits)
		}
	}
	e.printf("\n")
}

// emitGlobals writes initialized globals into .data and uninitialized ones
// into .bss. Enum members, typedefs, externs and functions have no storage
// here.
func (e *Emitter) emitGlobals(prog *cabs.Program, gen *irgen.Generator) {
	type globVar struct {
		label  string
		info   *cabs.VarInfo
		static bool
	}
	var data, bss []globVar

	classify := func(label string, v *cabs.VarInfo) {
		static := v.Storage&cabs.StorageStatic != 0
		if v.Init != nil {
			data = append(data, globVar{label, v, static})
		} else {
			bss = append(bss, globVar{label, v, static})
		}
	}

	for _, v := range prog.Global.Vars {
		if v.Storage&(cabs.StorageExtern|cabs.StorageEnumMember|cabs.StorageTypedef) != 0 {
			continue
		}
		if isFunc(v.Type) {
			continue
		}
		classify(v.Name, v)
	}
	for _, sl := range gen.StaticLocals() {
		classify(sl.Label, sl.Info)
	}

	if len(data) > 0 {
		e.printf("\t.data\n")
		for _, g := range data {
			e.emitDataGlobal(g.label, g.info, g.static)
		}
		e.printf("\n")
	}
	if len(bss) > 0 {
		e.printf("\t.bss\n")
		for _, g := range bss {
			name := e.symbolName(g.label)
			if !g.static {
				e.printf("\t.globl\t%s\n", name)
			}
			e.emitAlign(e.target.AlignOf(g.info.Type))
			e.printf("%s:\n", name)
			e.printf("\t.zero\t%d\n", e.target.SizeOf(g.info.Type))
		}
		e.printf("\n")
	}
}

func isFunc(t ctypes.Type) bool {
	_, ok := t.(*ctypes.Tfunction)
	return ok
}

func (e *Emitter) emitDataGlobal(label string, v *cabs.VarInfo, static bool) {
	name := e.symbolName(label)
	if !static {
		e.printf("\t.globl\t%s\n", name)
	}
	e.emitAlign(e.target.AlignOf(v.Type))
	e.printf("%s:\n", name)
	e.emitInitializer(v.Type, v.Init)
}

func (e *Emitter) emitInitializer(ty ctypes.Type, init *cabs.Initializer) {
	if init == nil {
		e.printf("\t.zero\t%d\n", e.target.SizeOf(ty))
		return
	}
	switch init.Kind {
	case cabs.InitSingle:
		e.emitScalarInit(ty, init.Single)
	case cabs.InitMulti:
		at, ok := ty.(*ctypes.Tarray)
		if !ok {
			e.printf("\t.zero\t%d\n", e.target.SizeOf(ty))
			return
		}
		for _, sub := range init.Multi {
			e.emitInitializer(at.Elem, sub)
		}
		if rest := at.Len - int64(len(init.Multi)); rest > 0 {
			e.printf("\t.zero\t%d\n", rest*e.target.SizeOf(at.Elem))
		}
	}
}

func (e *Emitter) emitScalarInit(ty ctypes.Type, val cabs.Expr) {
	switch v := val.(type) {
	case *cabs.IntLit:
		switch e.target.SizeOf(ty) {
		case 1:
			e.printf("\t.byte\t%d\n", v.Value)
		case 2:
			e.printf("\t.word\t%d\n", v.Value)
		case 4:
			e.printf("\t.long\t%d\n", v.Value)
		default:
			e.printf("\t.quad\t%d\n", v.Value)
		}
	case *cabs.FloatLit:
		if f, ok := ty.(*ctypes.Tfloat); ok && f.Kind == ctypes.F32 {
			e.printf("\t.long\t%d\n", float32Bits(v.Value))
		} else {
			e.printf("\t.quad\t%d\n", float64Bits(v.Value))
		}
	case *cabs.StrLit:
		e.printf("\t.asciz\t%q\n", v.Value)
	default:
		e.printf("\t.zero\t%d\n", e.target.SizeOf(ty))
	}
}

// emitFunction writes the prologue, block bodies and epilogue. The frame
// reserves local and spill space rounded to 16 bytes; an odd number of
// callee-saved pushes costs one extra padding slot to keep calls aligned.
func (e *Emitter) emitFunction(fn *irgen.Func) {
	name := e.symbolName(fn.Name)
	e.printf("\n")
	if !fn.Static {
		e.printf("\t.globl\t%s\n", name)
	}
	e.printf("%s:\n", name)

	saved := calleeSavedIn(fn.RA.UsedRegBits)
	frame := (fn.FrameSize + 15) &^ 15
	if len(saved)%2 != 0 {
		frame += 8
	}

	e.printf("\tpushq\t%%rbp\n")
	e.printf("\tmovq\t%%rsp, %%rbp\n")
	if frame > 0 {
		e.printf("\tsubq\t$%d, %%rsp\n", frame)
	}
	for _, phys := range saved {
		e.printf("\tpushq\t%s\n", regName(phys, 8))
	}

	for _, bb := range fn.Con.BBs {
		e.printf("%s:\n", bb.Label)
		for _, inst := range bb.Irs {
			e.emitInstr(fn, inst)
		}
	}

	for i := len(saved) - 1; i >= 0; i-- {
		e.printf("\tpopq\t%s\n", regName(saved[i], 8))
	}
	e.printf("\tleave\n")
	e.printf("\tret\n")
}

func calleeSavedIn(usedBits uint64) []int {
	var out []int
	for phys := numIntTemps; phys < numIntRegs; phys++ {
		if usedBits&(1<<uint(phys)) != 0 {
			out = append(out, phys)
		}
	}
	return out
}

func float32Bits(v float64) uint32 {
	return floatBits32(float32(v))
}

func escapeAsm(s string) string {
	return strings.ReplaceAll(s, "\n", "\n\t")
}
