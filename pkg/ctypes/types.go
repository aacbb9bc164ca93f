// Package ctypes defines the C type system: canonical type descriptors with
// structural equality, and target-parameterized size and alignment.
package ctypes

import "strings"

// Type is the interface for all C types
type Type interface {
	implType()
	String() string
}

// Signedness represents signed/unsigned for integer types
type Signedness int

const (
	Signed Signedness = iota
	Unsigned
)

func (s Signedness) String() string {
	if s == Signed {
		return "signed"
	}
	return "unsigned"
}

// IntKind identifies the C integer type a Tint was declared with. The byte
// width of Long is target-dependent; everything else is fixed.
type IntKind int

const (
	Char IntKind = iota
	Short
	Int
	Long
	LongLong
)

func (k IntKind) String() string {
	names := []string{"char", "short", "int", "long", "long long"}
	if int(k) < len(names) {
		return names[k]
	}
	return "?"
}

// FloatKind represents the size of floating-point types
type FloatKind int

const (
	F32 FloatKind = iota
	F64
)

func (k FloatKind) String() string {
	if k == F32 {
		return "float"
	}
	return "double"
}

// Qual is a qualifier bitset attached to a type reference at its use site.
type Qual uint8

const (
	QualConst Qual = 1 << iota
	QualVolatile
)

// Tvoid represents the void type
type Tvoid struct{}

// Tint represents integer types (char, short, int, long, long long)
type Tint struct {
	Kind IntKind
	Sign Signedness
}

// Tfloat represents floating-point types (float, double)
type Tfloat struct {
	Kind FloatKind
}

// Tpointer represents pointer types
type Tpointer struct {
	Elem Type
}

// Tarray represents array types
type Tarray struct {
	Elem Type
	Len  int64 // -1 for incomplete array
}

// Tfunction represents function types
type Tfunction struct {
	Params []Type
	Return Type
	VarArg bool
}

// Tstruct represents struct and union types
type Tstruct struct {
	Name    string
	Members []Member
	IsUnion bool
	size    int64
	align   int64
	laidOut bool
}

// Tenum represents an enum type; members are recorded as constants in the
// declaring scope, the type itself is int-sized.
type Tenum struct {
	Name string
}

// Bitfield describes a bitfield member: the base integer kind it packs
// into, its bit width, and its bit position within the storage unit.
type Bitfield struct {
	Base     IntKind
	Width    int
	Position int
}

// Member represents a struct or union member
type Member struct {
	Name     string
	Type     Type
	Offset   int64
	Bitfield *Bitfield
}

// Marker methods for Type interface
func (*Tvoid) implType()     {}
func (*Tint) implType()      {}
func (*Tfloat) implType()    {}
func (*Tpointer) implType()  {}
func (*Tarray) implType()    {}
func (*Tfunction) implType() {}
func (*Tstruct) implType()   {}
func (*Tenum) implType()     {}

func (*Tvoid) String() string { return "void" }

func (t *Tint) String() string {
	if t.Sign == Unsigned {
		return "unsigned " + t.Kind.String()
	}
	return t.Kind.String()
}

func (t *Tfloat) String() string { return t.Kind.String() }

func (t *Tpointer) String() string { return t.Elem.String() + "*" }

func (t *Tarray) String() string {
	if t.Len < 0 {
		return t.Elem.String() + "[]"
	}
	return t.Elem.String() + "[" + itoa(t.Len) + "]"
}

func (t *Tfunction) String() string {
	var sb strings.Builder
	sb.WriteString(t.Return.String())
	sb.WriteString("(")
	for i, p := range t.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.String())
	}
	if t.VarArg {
		if len(t.Params) > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("...")
	}
	sb.WriteString(")")
	return sb.String()
}

func (t *Tstruct) String() string {
	kw := "struct"
	if t.IsUnion {
		kw = "union"
	}
	if t.Name != "" {
		return kw + " " + t.Name
	}
	return kw
}

func (t *Tenum) String() string {
	if t.Name != "" {
		return "enum " + t.Name
	}
	return "enum"
}

// Shared singletons for the common types.
var (
	Void      = &Tvoid{}
	IntType   = &Tint{Kind: Int, Sign: Signed}
	UInt      = &Tint{Kind: Int, Sign: Unsigned}
	CharType  = &Tint{Kind: Char, Sign: Signed}
	UChar     = &Tint{Kind: Char, Sign: Unsigned}
	ShortType = &Tint{Kind: Short, Sign: Signed}
	LongType  = &Tint{Kind: Long, Sign: Signed}
	LLong     = &Tint{Kind: LongLong, Sign: Signed}
	Float     = &Tfloat{Kind: F32}
	Double    = &Tfloat{Kind: F64}
)

// PointerTo returns a pointer type to elem.
func PointerTo(elem Type) *Tpointer {
	return &Tpointer{Elem: elem}
}

// ArrayOf returns an array type of elem with the given length (-1 if the
// extent is not known).
func ArrayOf(elem Type, n int64) *Tarray {
	return &Tarray{Elem: elem, Len: n}
}

// IsInteger reports whether t is an integer or enum type.
func IsInteger(t Type) bool {
	switch t.(type) {
	case *Tint, *Tenum:
		return true
	}
	return false
}

// IsFloat reports whether t is a floating-point type.
func IsFloat(t Type) bool {
	_, ok := t.(*Tfloat)
	return ok
}

// IsArith reports whether t participates in arithmetic conversions.
func IsArith(t Type) bool {
	return IsInteger(t) || IsFloat(t)
}

// IsPointer reports whether t is a pointer type.
func IsPointer(t Type) bool {
	_, ok := t.(*Tpointer)
	return ok
}

// IsScalar reports whether t is arithmetic or a pointer.
func IsScalar(t Type) bool {
	return IsArith(t) || IsPointer(t)
}

// IsVoid reports whether t is void.
func IsVoid(t Type) bool {
	_, ok := t.(*Tvoid)
	return ok
}

// IsUnsigned reports whether t is an unsigned integer type. Pointers compare
// unsigned.
func IsUnsigned(t Type) bool {
	switch tt := t.(type) {
	case *Tint:
		return tt.Sign == Unsigned
	case *Tpointer:
		return true
	}
	return false
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
