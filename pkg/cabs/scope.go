package cabs

import "github.com/jainl28patel/xcc/pkg/ctypes"

// ScopeKind discriminates the three scope flavors.
type ScopeKind int

const (
	ScopeGlobal ScopeKind = iota
	ScopeParams
	ScopeBlock
)

// Storage is a storage-class bitset on a declaration.
type Storage int

const (
	StorageStatic Storage = 1 << iota
	StorageExtern
	StorageTypedef
	StorageEnumMember
)

// Scope is a node in the lexical scope tree. Lookup walks parent links to
// the root; the variable list preserves declaration order.
type Scope struct {
	Kind     ScopeKind
	Parent   *Scope
	Vars     []*VarInfo
	byName   map[string]*VarInfo
	Typedefs map[string]ctypes.Type
	Tags     map[string]ctypes.Type // struct/union/enum tag namespace
}

// NewScope creates a child scope of parent.
func NewScope(parent *Scope, kind ScopeKind) *Scope {
	return &Scope{
		Kind:     kind,
		Parent:   parent,
		byName:   make(map[string]*VarInfo),
		Typedefs: make(map[string]ctypes.Type),
		Tags:     make(map[string]ctypes.Type),
	}
}

// IsGlobal reports whether s is the global scope.
func (s *Scope) IsGlobal() bool {
	return s.Kind == ScopeGlobal
}

// Add declares a variable in this scope. It returns nil if the name is
// already declared here.
func (s *Scope) Add(v *VarInfo) *VarInfo {
	if _, exists := s.byName[v.Name]; exists {
		return nil
	}
	s.Vars = append(s.Vars, v)
	s.byName[v.Name] = v
	return v
}

// Lookup finds name in this scope only.
func (s *Scope) Lookup(name string) *VarInfo {
	return s.byName[name]
}

// Find walks the scope chain to the root looking for name. It returns the
// declaration and the scope that holds it.
func (s *Scope) Find(name string) (*VarInfo, *Scope) {
	for sc := s; sc != nil; sc = sc.Parent {
		if v := sc.byName[name]; v != nil {
			return v, sc
		}
	}
	return nil, nil
}

// FindTypedef resolves a typedef name through the scope chain.
func (s *Scope) FindTypedef(name string) ctypes.Type {
	for sc := s; sc != nil; sc = sc.Parent {
		if t, ok := sc.Typedefs[name]; ok {
			return t
		}
	}
	return nil
}

// FindTag resolves a struct/union/enum tag through the scope chain.
func (s *Scope) FindTag(name string) ctypes.Type {
	for sc := s; sc != nil; sc = sc.Parent {
		if t, ok := sc.Tags[name]; ok {
			return t
		}
	}
	return nil
}

// VarInfo is a variable declaration. Globals may carry an initializer;
// enum members carry their constant value.
type VarInfo struct {
	Name    string
	Type    ctypes.Type
	Qual    ctypes.Qual
	Storage Storage
	Global  bool

	Init      *Initializer // globals and statics only
	EnumValue int64        // StorageEnumMember only
	ParamIdx  int          // parameter position, -1 otherwise
}

// InitKind discriminates initializer forms.
type InitKind int

const (
	InitSingle InitKind = iota
	InitMulti
)

// Initializer is a (possibly nested) initializer tree.
type Initializer struct {
	Kind   InitKind
	Single Expr
	Multi  []*Initializer
}

// FunDef is a function definition (or a bare prototype when Body is nil).
type FunDef struct {
	Name     string
	Type     *ctypes.Tfunction
	Params   *Scope // ScopeParams, in declaration order
	Body     *Block // nil for a prototype
	Storage  Storage
	Scopes   []*Scope // every scope in the body, for local enumeration
	LabelSet map[string]bool
}

// GlobalDecl is a top-level variable declaration group.
type GlobalDecl struct {
	Decls []*VarInfo
}

func (FunDef) implCabsNode()         {}
func (FunDef) implDeclaration()      {}
func (GlobalDecl) implCabsNode()     {}
func (GlobalDecl) implDeclaration()  {}

// Program is a parsed translation unit (or several, concatenated).
type Program struct {
	Decls  []Declaration
	Global *Scope
}
