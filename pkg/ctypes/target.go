package ctypes

// Target carries the target-dependent type parameters. The width of long is
// the one genuinely configurable axis: 4 bytes on the 32-bit-int wasm
// configuration, 8 bytes under native System-V.
type Target struct {
	LongSize int64 // byte width of long
	PtrSize  int64 // byte width of pointers
}

// NativeTarget is the System-V x86-64 configuration.
var NativeTarget = Target{LongSize: 8, PtrSize: 8}

// WasmTarget matches the original 32-bit-int configuration: long is 4 bytes
// and pointers are wasm32-sized.
var WasmTarget = Target{LongSize: 4, PtrSize: 4}

// SizeOf returns the byte size of t under the target. Incomplete types have
// size 0.
func (tg Target) SizeOf(t Type) int64 {
	switch tt := t.(type) {
	case *Tvoid:
		return 1
	case *Tint:
		switch tt.Kind {
		case Char:
			return 1
		case Short:
			return 2
		case Int:
			return 4
		case Long:
			return tg.LongSize
		case LongLong:
			return 8
		}
	case *Tenum:
		return 4
	case *Tfloat:
		if tt.Kind == F32 {
			return 4
		}
		return 8
	case *Tpointer:
		return tg.PtrSize
	case *Tarray:
		if tt.Len < 0 {
			return 0
		}
		return tt.Len * tg.SizeOf(tt.Elem)
	case *Tfunction:
		return tg.PtrSize
	case *Tstruct:
		tg.layout(tt)
		return tt.size
	}
	return 0
}

// AlignOf returns the byte alignment of t under the target.
func (tg Target) AlignOf(t Type) int64 {
	switch tt := t.(type) {
	case *Tarray:
		return tg.AlignOf(tt.Elem)
	case *Tstruct:
		tg.layout(tt)
		return tt.align
	default:
		return tg.SizeOf(t)
	}
}

// layout assigns member offsets. Unions overlay every member at offset 0;
// structs pack members at their natural alignment. Adjacent bitfields of the
// same base kind share a storage unit until its width is exhausted.
func (tg Target) layout(st *Tstruct) {
	if st.laidOut {
		return
	}
	st.laidOut = true

	var offset, maxAlign, maxSize int64
	bitPos := 0
	var bitBase IntKind
	bitOffset := int64(-1)

	for i := range st.Members {
		m := &st.Members[i]
		align := tg.AlignOf(m.Type)
		if align > maxAlign {
			maxAlign = align
		}
		size := tg.SizeOf(m.Type)

		if st.IsUnion {
			m.Offset = 0
			if size > maxSize {
				maxSize = size
			}
			continue
		}

		if m.Bitfield != nil {
			baseSize := tg.SizeOf(&Tint{Kind: m.Bitfield.Base})
			unitBits := int(baseSize) * 8
			if bitOffset < 0 || bitBase != m.Bitfield.Base || bitPos+m.Bitfield.Width > unitBits {
				offset = alignTo(offset, baseSize)
				bitOffset = offset
				bitBase = m.Bitfield.Base
				bitPos = 0
				offset += baseSize
			}
			m.Offset = bitOffset
			m.Bitfield.Position = bitPos
			bitPos += m.Bitfield.Width
			continue
		}
		bitOffset = -1

		offset = alignTo(offset, align)
		m.Offset = offset
		offset += size
	}

	if maxAlign == 0 {
		maxAlign = 1
	}
	if st.IsUnion {
		st.size = alignTo(maxSize, maxAlign)
	} else {
		st.size = alignTo(offset, maxAlign)
	}
	st.align = maxAlign
}

func alignTo(n, align int64) int64 {
	return (n + align - 1) &^ (align - 1)
}
