package wasmgen

// Buffer is a growable byte buffer with insertion, used to build wasm
// sections whose counts and sizes are prepended after the body is written.
type Buffer struct {
	buf []byte
}

// Len returns the current length.
func (b *Buffer) Len() int {
	return len(b.buf)
}

// Bytes returns the accumulated bytes.
func (b *Buffer) Bytes() []byte {
	return b.buf
}

// Push appends a single byte.
func (b *Buffer) Push(c byte) {
	b.buf = append(b.buf, c)
}

// Append appends raw bytes.
func (b *Buffer) Append(p []byte) {
	b.buf = append(b.buf, p...)
}

// Concat appends another buffer.
func (b *Buffer) Concat(other *Buffer) {
	b.buf = append(b.buf, other.buf...)
}

// Insert splices p into the buffer at pos.
func (b *Buffer) Insert(pos int, p []byte) {
	b.buf = append(b.buf, p...)
	copy(b.buf[pos+len(p):], b.buf[pos:])
	copy(b.buf[pos:], p)
}

// sleb128 encodes a signed value in minimal-length LEB128.
func sleb128(val int64) []byte {
	var out []byte
	for {
		if val < 1<<6 && val >= -(1<<6) {
			out = append(out, byte(val&0x7f))
			return out
		}
		out = append(out, byte(val&0x7f)|0x80)
		val >>= 7
	}
}

// uleb128 encodes an unsigned value in minimal-length LEB128.
func uleb128(val uint64) []byte {
	var out []byte
	for {
		if val < 1<<7 {
			out = append(out, byte(val&0x7f))
			return out
		}
		out = append(out, byte(val&0x7f)|0x80)
		val >>= 7
	}
}

// EmitLEB128 inserts a signed LEB128 value at pos.
func (b *Buffer) EmitLEB128(pos int, val int64) {
	b.Insert(pos, sleb128(val))
}

// EmitULEB128 inserts an unsigned LEB128 value at pos.
func (b *Buffer) EmitULEB128(pos int, val uint64) {
	b.Insert(pos, uleb128(val))
}

// AddLEB128 appends a signed LEB128 value.
func (b *Buffer) AddLEB128(val int64) {
	b.buf = append(b.buf, sleb128(val)...)
}

// AddULEB128 appends an unsigned LEB128 value.
func (b *Buffer) AddULEB128(val uint64) {
	b.buf = append(b.buf, uleb128(val)...)
}
