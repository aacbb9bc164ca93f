package ctypes

// Equal reports structural equality between two types. Function types are
// equal iff their return types and ordered parameter types are equal and
// their varargs flags match; this is the relation that governs signature
// deduplication during emission.
func Equal(a, b Type) bool {
	switch at := a.(type) {
	case *Tvoid:
		_, ok := b.(*Tvoid)
		return ok
	case *Tint:
		bt, ok := b.(*Tint)
		return ok && at.Kind == bt.Kind && at.Sign == bt.Sign
	case *Tfloat:
		bt, ok := b.(*Tfloat)
		return ok && at.Kind == bt.Kind
	case *Tpointer:
		bt, ok := b.(*Tpointer)
		return ok && Equal(at.Elem, bt.Elem)
	case *Tarray:
		bt, ok := b.(*Tarray)
		return ok && at.Len == bt.Len && Equal(at.Elem, bt.Elem)
	case *Tfunction:
		bt, ok := b.(*Tfunction)
		if !ok || at.VarArg != bt.VarArg || len(at.Params) != len(bt.Params) {
			return false
		}
		if !Equal(at.Return, bt.Return) {
			return false
		}
		for i := range at.Params {
			if !Equal(at.Params[i], bt.Params[i]) {
				return false
			}
		}
		return true
	case *Tstruct:
		// Struct identity is nominal: a tagged struct type is created once
		// and shared by reference.
		return a == b
	case *Tenum:
		bt, ok := b.(*Tenum)
		return ok && (a == b || (at.Name != "" && at.Name == bt.Name))
	}
	return false
}

// SigTable hash-conses function signatures by structural identity and hands
// out dense indices in first-encounter order. The wasm Type section is the
// table's serialized form.
type SigTable struct {
	sigs  []*Tfunction
	index map[string]int
}

// NewSigTable creates an empty signature table.
func NewSigTable() *SigTable {
	return &SigTable{index: make(map[string]int)}
}

// Intern returns the dense index for ft, allocating the next index when the
// signature has not been seen before.
func (st *SigTable) Intern(ft *Tfunction) int {
	key := ft.String()
	if i, ok := st.index[key]; ok {
		return i
	}
	i := len(st.sigs)
	st.sigs = append(st.sigs, ft)
	st.index[key] = i
	return i
}

// Lookup returns the index of ft or -1 if it was never interned.
func (st *SigTable) Lookup(ft *Tfunction) int {
	if i, ok := st.index[ft.String()]; ok {
		return i
	}
	return -1
}

// Sigs returns the interned signatures in index order.
func (st *SigTable) Sigs() []*Tfunction {
	return st.sigs
}

// Len returns the number of structurally distinct signatures interned.
func (st *SigTable) Len() int {
	return len(st.sigs)
}
