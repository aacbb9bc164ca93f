// Package traverse walks the typed AST after parsing: it collects the
// function table, marks functions reachable for emission, resolves forward
// references, and assigns the dense function and signature indices both
// backends rely on.
package traverse

import (
	"fmt"

	"github.com/jainl28patel/xcc/pkg/cabs"
	"github.com/jainl28patel/xcc/pkg/ctypes"
)

// FuncInfo describes one function known to the translation unit.
type FuncInfo struct {
	Name      string
	Type      *ctypes.Tfunction
	Def       *cabs.FunDef // nil when only declared
	Static    bool
	Reachable bool
	Index     int // dense function index; imports occupy the low indices
	TypeIndex int // signature index in first-encounter order
}

// Table is the function table in first-encounter order plus the signature
// intern table shared with emission.
type Table struct {
	Funcs  []*FuncInfo
	byName map[string]*FuncInfo
	Sigs   *ctypes.SigTable

	errors []string
}

// Build collects every declared or defined function from the program.
func Build(prog *cabs.Program) *Table {
	t := &Table{
		byName: make(map[string]*FuncInfo),
		Sigs:   ctypes.NewSigTable(),
	}

	for _, decl := range prog.Decls {
		fd, ok := decl.(*cabs.FunDef)
		if !ok {
			continue
		}
		info := t.lookupOrAdd(fd.Name, fd.Type)
		if fd.Body != nil {
			if info.Def != nil {
				t.errorf("redefinition of function %q", fd.Name)
				continue
			}
			info.Def = fd
		}
		if fd.Storage&cabs.StorageStatic != 0 {
			info.Static = true
		}
	}

	// Prototypes without definitions live only in the global scope.
	for _, v := range prog.Global.Vars {
		if ft, ok := v.Type.(*ctypes.Tfunction); ok {
			info := t.lookupOrAdd(v.Name, ft)
			if v.Storage&cabs.StorageStatic != 0 {
				info.Static = true
			}
		}
	}
	return t
}

func (t *Table) lookupOrAdd(name string, ft *ctypes.Tfunction) *FuncInfo {
	if info, ok := t.byName[name]; ok {
		return info
	}
	info := &FuncInfo{Name: name, Type: ft, Index: -1, TypeIndex: -1}
	t.byName[name] = info
	t.Funcs = append(t.Funcs, info)
	return info
}

// Find returns the info for name, or nil.
func (t *Table) Find(name string) *FuncInfo {
	return t.byName[name]
}

// Errors returns diagnostics found during traversal.
func (t *Table) Errors() []string {
	return t.errors
}

func (t *Table) errorf(format string, args ...interface{}) {
	t.errors = append(t.errors, fmt.Sprintf(format, args...))
}

// MarkAll marks every defined function reachable. The native backend emits
// the whole translation unit.
func (t *Table) MarkAll() {
	for _, info := range t.Funcs {
		if info.Def != nil {
			t.mark(info)
		}
	}
}

// MarkExports marks the named export roots and everything they call.
// Export eligibility errors (no function of that name, declared but not
// defined, static) are accumulated as diagnostics.
func (t *Table) MarkExports(exports []string) {
	for _, name := range exports {
		info := t.byName[name]
		if info == nil {
			t.errorf("export: %q not found", name)
			continue
		}
		if info.Def == nil {
			t.errorf("export: %q is not defined", name)
			continue
		}
		if info.Static {
			t.errorf("export: %q is not public", name)
			continue
		}
		t.mark(info)
	}
}

// mark sets info reachable and walks its body for callees.
func (t *Table) mark(info *FuncInfo) {
	if info.Reachable {
		return
	}
	info.Reachable = true
	if info.Def == nil || info.Def.Body == nil {
		return
	}
	WalkStmt(info.Def.Body, func(e cabs.Expr) {
		call, ok := e.(*cabs.Call)
		if !ok {
			return
		}
		if v, ok := call.Fn.(*cabs.Var); ok {
			if callee := t.byName[v.Name]; callee != nil {
				t.mark(callee)
			}
		}
	})
}

// AssignIndices assigns dense function indices (reachable imports first,
// then reachable definitions, both in first-encounter order) and interns
// every reachable signature.
func (t *Table) AssignIndices() {
	idx := 0
	for _, info := range t.Funcs {
		if info.Reachable && info.Def == nil {
			info.Index = idx
			idx++
			info.TypeIndex = t.Sigs.Intern(info.Type)
		}
	}
	for _, info := range t.Funcs {
		if info.Reachable && info.Def != nil {
			info.Index = idx
			idx++
			info.TypeIndex = t.Sigs.Intern(info.Type)
		}
	}
}

// Imports returns the reachable but undefined functions in index order.
func (t *Table) Imports() []*FuncInfo {
	var out []*FuncInfo
	for _, info := range t.Funcs {
		if info.Reachable && info.Def == nil {
			out = append(out, info)
		}
	}
	return out
}

// Defined returns the reachable defined functions in index order.
func (t *Table) Defined() []*FuncInfo {
	var out []*FuncInfo
	for _, info := range t.Funcs {
		if info.Reachable && info.Def != nil {
			out = append(out, info)
		}
	}
	return out
}
