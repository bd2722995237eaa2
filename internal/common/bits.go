package common

import (
	"math/big"

	"github.com/rawbytedev/asnkit/pkg/codec"
)

// BitWriter appends bits most significant first. The zero value is ready to
// use.
type BitWriter struct {
	buf  []byte
	bits int
}

// Len returns the number of bits written.
func (w *BitWriter) Len() int { return w.bits }

// Aligned reports whether the next bit starts an octet.
func (w *BitWriter) Aligned() bool { return w.bits%8 == 0 }

// WriteBit appends one bit.
func (w *BitWriter) WriteBit(b bool) {
	if w.bits%8 == 0 {
		w.buf = append(w.buf, 0)
	}
	if b {
		w.buf[len(w.buf)-1] |= 0x80 >> (w.bits % 8)
	}
	w.bits++
}

// WriteBits appends the low n bits of v, n <= 64.
func (w *BitWriter) WriteBits(v uint64, n int) {
	if w.bits%8 == 0 && n%8 == 0 {
		for i := n - 8; i >= 0; i -= 8 {
			w.buf = append(w.buf, byte(v>>i))
		}
		w.bits += n
		return
	}
	for i := n - 1; i >= 0; i-- {
		w.WriteBit(v>>i&1 == 1)
	}
}

// WriteBigBits appends the non-negative v as an n-bit field.
func (w *BitWriter) WriteBigBits(v *big.Int, n int) {
	for i := n - 1; i >= 0; i-- {
		w.WriteBit(v.Bit(i) == 1)
	}
}

// WriteBytes appends p whether or not the writer is aligned.
func (w *BitWriter) WriteBytes(p []byte) {
	if w.bits%8 == 0 {
		w.buf = append(w.buf, p...)
		w.bits += 8 * len(p)
		return
	}
	for _, c := range p {
		w.WriteBits(uint64(c), 8)
	}
}

// Align pads with zero bits up to the next octet boundary.
func (w *BitWriter) Align() {
	w.bits = (w.bits + 7) &^ 7
}

// Bytes returns the written bits padded with zeros to a whole octet.
func (w *BitWriter) Bytes() []byte {
	return w.buf
}

// BitReader reads bits most significant first.
type BitReader struct {
	buf []byte
	pos int
}

// NewBitReader reads from b.
func NewBitReader(b []byte) *BitReader {
	return &BitReader{buf: b}
}

// Pos returns the number of bits consumed.
func (r *BitReader) Pos() int { return r.pos }

// Offset returns the index of the octet holding the next bit.
func (r *BitReader) Offset() int { return r.pos / 8 }

// Consumed returns the number of octets touched so far, counting a
// partially read final octet.
func (r *BitReader) Consumed() int { return (r.pos + 7) / 8 }

// Remaining returns the number of unread bits.
func (r *BitReader) Remaining() int { return len(r.buf)*8 - r.pos }

// ReadBit reads one bit.
func (r *BitReader) ReadBit() (bool, error) {
	if r.pos >= len(r.buf)*8 {
		return false, codec.ErrTruncated
	}
	b := r.buf[r.pos/8]>>(7-r.pos%8)&1 == 1
	r.pos++
	return b, nil
}

// ReadBits reads an n-bit unsigned field, n <= 64.
func (r *BitReader) ReadBits(n int) (uint64, error) {
	if n > r.Remaining() {
		return 0, codec.ErrTruncated
	}
	var v uint64
	if r.pos%8 == 0 && n%8 == 0 {
		for i := 0; i < n/8; i++ {
			v = v<<8 | uint64(r.buf[r.pos/8])
			r.pos += 8
		}
		return v, nil
	}
	for i := 0; i < n; i++ {
		b, _ := r.ReadBit()
		v <<= 1
		if b {
			v |= 1
		}
	}
	return v, nil
}

// ReadBigBits reads an n-bit unsigned field of any width.
func (r *BitReader) ReadBigBits(n int) (*big.Int, error) {
	if n > r.Remaining() {
		return nil, codec.ErrTruncated
	}
	v := new(big.Int)
	for i := 0; i < n; i++ {
		b, _ := r.ReadBit()
		v.Lsh(v, 1)
		if b {
			v.SetBit(v, 0, 1)
		}
	}
	return v, nil
}

// ReadBytes reads n octets, aligned or not, into a fresh slice.
func (r *BitReader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || n > r.Remaining()/8 {
		return nil, codec.ErrTruncated
	}
	out := make([]byte, n)
	if r.pos%8 == 0 {
		copy(out, r.buf[r.pos/8:])
		r.pos += 8 * n
		return out, nil
	}
	for i := range out {
		v, _ := r.ReadBits(8)
		out[i] = byte(v)
	}
	return out, nil
}

// Align skips to the next octet boundary.
func (r *BitReader) Align() {
	r.pos = (r.pos + 7) &^ 7
}
