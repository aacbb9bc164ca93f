package ctypes

import "testing"

func TestSizeOf(t *testing.T) {
	tests := []struct {
		name   string
		ty     Type
		native int64
		wasm   int64
	}{
		{"char", CharType, 1, 1},
		{"short", ShortType, 2, 2},
		{"int", IntType, 4, 4},
		{"long", LongType, 8, 4},
		{"long long", LLong, 8, 8},
		{"float", Float, 4, 4},
		{"double", Double, 8, 8},
		{"pointer", PointerTo(IntType), 8, 4},
		{"array", ArrayOf(IntType, 10), 40, 40},
		{"enum", &Tenum{Name: "e"}, 4, 4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := NativeTarget.SizeOf(tc.ty); got != tc.native {
				t.Errorf("native: expected %d, got %d", tc.native, got)
			}
			if got := WasmTarget.SizeOf(tc.ty); got != tc.wasm {
				t.Errorf("wasm: expected %d, got %d", tc.wasm, got)
			}
		})
	}
}

func TestStructLayout(t *testing.T) {
	st := &Tstruct{
		Name: "s",
		Members: []Member{
			{Name: "a", Type: CharType},
			{Name: "b", Type: IntType},
			{Name: "c", Type: CharType},
		},
	}
	if size := NativeTarget.SizeOf(st); size != 12 {
		t.Errorf("size: expected 12, got %d", size)
	}
	if st.Members[0].Offset != 0 || st.Members[1].Offset != 4 || st.Members[2].Offset != 8 {
		t.Errorf("offsets: got %d %d %d", st.Members[0].Offset, st.Members[1].Offset, st.Members[2].Offset)
	}
	if align := NativeTarget.AlignOf(st); align != 4 {
		t.Errorf("align: expected 4, got %d", align)
	}
}

func TestUnionLayout(t *testing.T) {
	un := &Tstruct{
		Name:    "u",
		IsUnion: true,
		Members: []Member{
			{Name: "i", Type: IntType},
			{Name: "d", Type: Double},
		},
	}
	if size := NativeTarget.SizeOf(un); size != 8 {
		t.Errorf("size: expected 8, got %d", size)
	}
	if un.Members[0].Offset != 0 || un.Members[1].Offset != 0 {
		t.Error("union members must overlay at offset 0")
	}
}

func TestBitfieldLayout(t *testing.T) {
	st := &Tstruct{
		Name: "flags",
		Members: []Member{
			{Name: "a", Type: IntType, Bitfield: &Bitfield{Base: Int, Width: 3}},
			{Name: "b", Type: IntType, Bitfield: &Bitfield{Base: Int, Width: 5}},
			{Name: "c", Type: IntType, Bitfield: &Bitfield{Base: Int, Width: 30}},
		},
	}
	NativeTarget.SizeOf(st)

	if st.Members[0].Bitfield.Position != 0 {
		t.Errorf("a position: got %d", st.Members[0].Bitfield.Position)
	}
	if st.Members[1].Bitfield.Position != 3 {
		t.Errorf("b position: got %d", st.Members[1].Bitfield.Position)
	}
	// c does not fit the first unit and opens a second one.
	if st.Members[2].Offset != 4 || st.Members[2].Bitfield.Position != 0 {
		t.Errorf("c: offset %d position %d", st.Members[2].Offset, st.Members[2].Bitfield.Position)
	}
	if size := NativeTarget.SizeOf(st); size != 8 {
		t.Errorf("size: expected 8, got %d", size)
	}
}

func TestFunctionTypeEquality(t *testing.T) {
	f1 := &Tfunction{Return: IntType, Params: []Type{IntType}}
	f2 := &Tfunction{Return: IntType, Params: []Type{IntType}}
	f3 := &Tfunction{Return: IntType, Params: []Type{LongType}}
	f4 := &Tfunction{Return: Void, Params: []Type{IntType}}
	f5 := &Tfunction{Return: IntType, Params: []Type{IntType}, VarArg: true}

	if !Equal(f1, f2) {
		t.Error("identical signatures must be equal")
	}
	if Equal(f1, f3) {
		t.Error("different parameter types must not be equal")
	}
	if Equal(f1, f4) {
		t.Error("different return types must not be equal")
	}
	if Equal(f1, f5) {
		t.Error("varargs flag must participate in equality")
	}
}

func TestSigTableDedup(t *testing.T) {
	st := NewSigTable()
	f1 := &Tfunction{Return: IntType, Params: []Type{IntType}}
	f2 := &Tfunction{Return: IntType, Params: []Type{IntType}}
	f3 := &Tfunction{Return: Void, Params: nil}

	i1 := st.Intern(f1)
	i2 := st.Intern(f2)
	i3 := st.Intern(f3)
	i4 := st.Intern(f1)

	if i1 != 0 || i3 != 1 {
		t.Errorf("indices must be dense in first-encounter order: got %d %d", i1, i3)
	}
	if i2 != i1 || i4 != i1 {
		t.Error("structurally equal signatures must share an index")
	}
	if st.Len() != 2 {
		t.Errorf("expected 2 distinct signatures, got %d", st.Len())
	}
	if st.Lookup(f2) != i1 {
		t.Error("Lookup must find the interned signature")
	}
	if st.Lookup(&Tfunction{Return: Double, Params: nil}) != -1 {
		t.Error("Lookup of an unknown signature must return -1")
	}
}

func TestStructEqualityIsNominal(t *testing.T) {
	s1 := &Tstruct{Name: "s", Members: []Member{{Name: "x", Type: IntType}}}
	s2 := &Tstruct{Name: "s", Members: []Member{{Name: "x", Type: IntType}}}
	if Equal(s1, s2) {
		t.Error("distinct struct declarations are distinct types")
	}
	if !Equal(s1, s1) {
		t.Error("a struct type equals itself")
	}
}
