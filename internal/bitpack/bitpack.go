// Package bitpack reads and writes unsigned fields at arbitrary bit offsets
// inside a byte slice. Bits are numbered LSB-first: bit 0 is the least
// significant bit of buf[0], bit 8 the least significant bit of buf[1].
package bitpack

// Field locates a value inside a packed buffer.
type Field struct {
	Offset uint
	Width  uint
}

// Max returns the largest value the field can hold.
func (f Field) Max() uint32 {
	if f.Width >= 32 {
		return ^uint32(0)
	}
	return uint32(1)<<f.Width - 1
}

// Write stores the low width bits of value at the given bit offset. Bits of
// value above width are ignored. Writes past the end of buf are dropped.
func Write(buf []byte, offset, width uint, value uint32) {
	for i := uint(0); i < width; i++ {
		bit := offset + i
		idx := bit / 8
		if int(idx) >= len(buf) {
			return
		}
		mask := byte(1) << (bit % 8)
		if value&(1<<i) != 0 {
			buf[idx] |= mask
		} else {
			buf[idx] &^= mask
		}
	}
}

// Read returns width bits starting at the given bit offset. Bits past the
// end of buf read as zero.
func Read(buf []byte, offset, width uint) uint32 {
	var v uint32
	for i := uint(0); i < width; i++ {
		bit := offset + i
		idx := bit / 8
		if int(idx) >= len(buf) {
			break
		}
		if buf[idx]&(byte(1)<<(bit%8)) != 0 {
			v |= 1 << i
		}
	}
	return v
}

// Put writes value into f.
func (f Field) Put(buf []byte, value uint32) {
	Write(buf, f.Offset, f.Width, value)
}

// Get reads f.
func (f Field) Get(buf []byte) uint32 {
	return Read(buf, f.Offset, f.Width)
}
