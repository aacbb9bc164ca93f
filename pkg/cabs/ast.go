// Package cabs defines the typed abstract syntax tree. Every expression
// node carries its resolved type; the parser inserts explicit Cast nodes so
// no later pass has to infer conversions.
package cabs

import (
	"github.com/jainl28patel/xcc/pkg/ctypes"
	"github.com/jainl28patel/xcc/pkg/lexer"
)

// Node is the base interface for all AST nodes
type Node interface {
	implCabsNode()
}

// Expr is the interface for all expression nodes. Type returns the node's
// resolved type, which is always non-nil after parsing.
type Expr interface {
	Node
	implCabsExpr()
	Type() ctypes.Type
	Tok() lexer.Token
}

// Stmt is the interface for all statement nodes
type Stmt interface {
	Node
	implCabsStmt()
}

// Declaration is the interface for top-level declarations
type Declaration interface {
	Node
	implDeclaration()
}

// BinaryOp represents binary operators
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShl // <<
	OpShr // >>
	OpLt
	OpLe
	OpGt
	OpGe
	OpEq
	OpNe
	OpLogAnd // &&
	OpLogOr  // ||
)

func (op BinaryOp) String() string {
	names := []string{"+", "-", "*", "/", "%", "&", "|", "^", "<<", ">>", "<", "<=", ">", ">=", "==", "!=", "&&", "||"}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}

// IsCompare reports whether op is a comparison operator.
func (op BinaryOp) IsCompare() bool {
	return op >= OpLt && op <= OpNe
}

// UnaryOp represents unary operators
type UnaryOp int

const (
	OpNeg    UnaryOp = iota // -
	OpNot                   // !
	OpBitNot                // ~
)

func (op UnaryOp) String() string {
	names := []string{"-", "!", "~"}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}

// ExprBase carries the resolved type and representative token embedded in
// every expression node.
type ExprBase struct {
	Ty    ctypes.Type
	Token lexer.Token
}

func (e ExprBase) Type() ctypes.Type { return e.Ty }
func (e ExprBase) Tok() lexer.Token  { return e.Token }

// IntLit is an integer (or character, or enum-member) literal
type IntLit struct {
	ExprBase
	Value int64
}

// FloatLit is a floating-point literal
type FloatLit struct {
	ExprBase
	Value float64
}

// StrLit is a string literal; adjacent literals have been concatenated
type StrLit struct {
	ExprBase
	Value string
	Label string // assigned by the backend for data-section placement
}

// Var is a variable reference with its resolved declaring scope
type Var struct {
	ExprBase
	Name  string
	Scope *Scope
}

// Member is a struct or union member access; the member has been resolved
type Member struct {
	ExprBase
	Target Expr
	Name   string
	Info   *ctypes.Member
	Arrow  bool // target is a pointer (-> form)
}

// Deref is a pointer dereference
type Deref struct {
	ExprBase
	Sub Expr
}

// AddrOf takes the address of an lvalue
type AddrOf struct {
	ExprBase
	Sub Expr
}

// Unary is a unary arithmetic or logical expression
type Unary struct {
	ExprBase
	Op  UnaryOp
	Sub Expr
}

// Binary is a binary expression whose operands have already been converted
// to a common type by the parser
type Binary struct {
	ExprBase
	Op    BinaryOp
	Left  Expr
	Right Expr
}

// Assign is a simple assignment; Left is an lvalue
type Assign struct {
	ExprBase
	Left  Expr
	Right Expr
}

// CompoundAssign is an op= assignment; the combine operator is Op
type CompoundAssign struct {
	ExprBase
	Op    BinaryOp
	Left  Expr
	Right Expr
}

// IncDec is a pre/post increment/decrement
type IncDec struct {
	ExprBase
	Pre bool
	Inc bool
	Sub Expr
}

// Call is a function call
type Call struct {
	ExprBase
	Fn   Expr
	Args []Expr
}

// Cast is an explicit or compiler-inserted conversion
type Cast struct {
	ExprBase
	Sub      Expr
	Implicit bool
}

// Ternary is the conditional operator
type Ternary struct {
	ExprBase
	Cond Expr
	Then Expr
	Else Expr
}

// Comma evaluates Left for effect and yields Right
type Comma struct {
	ExprBase
	Left  Expr
	Right Expr
}

// Marker methods
func (IntLit) implCabsNode()         {}
func (IntLit) implCabsExpr()         {}
func (FloatLit) implCabsNode()       {}
func (FloatLit) implCabsExpr()       {}
func (StrLit) implCabsNode()         {}
func (StrLit) implCabsExpr()         {}
func (Var) implCabsNode()            {}
func (Var) implCabsExpr()            {}
func (Member) implCabsNode()         {}
func (Member) implCabsExpr()         {}
func (Deref) implCabsNode()          {}
func (Deref) implCabsExpr()          {}
func (AddrOf) implCabsNode()         {}
func (AddrOf) implCabsExpr()         {}
func (Unary) implCabsNode()          {}
func (Unary) implCabsExpr()          {}
func (Binary) implCabsNode()         {}
func (Binary) implCabsExpr()         {}
func (Assign) implCabsNode()         {}
func (Assign) implCabsExpr()         {}
func (CompoundAssign) implCabsNode() {}
func (CompoundAssign) implCabsExpr() {}
func (IncDec) implCabsNode()         {}
func (IncDec) implCabsExpr()         {}
func (Call) implCabsNode()           {}
func (Call) implCabsExpr()           {}
func (Cast) implCabsNode()           {}
func (Cast) implCabsExpr()           {}
func (Ternary) implCabsNode()        {}
func (Ternary) implCabsExpr()        {}
func (Comma) implCabsNode()          {}
func (Comma) implCabsExpr()          {}

// NewIntLit builds an integer literal of the given type.
func NewIntLit(v int64, ty ctypes.Type, tok lexer.Token) *IntLit {
	return &IntLit{ExprBase: ExprBase{Ty: ty, Token: tok}, Value: v}
}

// NewFloatLit builds a floating literal of the given type.
func NewFloatLit(v float64, ty ctypes.Type, tok lexer.Token) *FloatLit {
	return &FloatLit{ExprBase: ExprBase{Ty: ty, Token: tok}, Value: v}
}

// NewCast wraps sub in a conversion to ty.
func NewCast(sub Expr, ty ctypes.Type, implicit bool) *Cast {
	return &Cast{ExprBase: ExprBase{Ty: ty, Token: sub.Tok()}, Sub: sub, Implicit: implicit}
}

// NewBinary builds a binary node of the given result type.
func NewBinary(op BinaryOp, left, right Expr, ty ctypes.Type, tok lexer.Token) *Binary {
	return &Binary{ExprBase: ExprBase{Ty: ty, Token: tok}, Op: op, Left: left, Right: right}
}

// NewVar builds a variable reference resolved to scope.
func NewVar(name string, scope *Scope, ty ctypes.Type, tok lexer.Token) *Var {
	return &Var{ExprBase: ExprBase{Ty: ty, Token: tok}, Name: name, Scope: scope}
}
