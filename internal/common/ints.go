package common

import (
	"fmt"
	"math/big"
)

// SignedBytes returns the minimal two's-complement big-endian form of x,
// at least one octet long.
func SignedBytes(x *big.Int) []byte {
	if x.Sign() >= 0 {
		b := x.Bytes()
		if len(b) == 0 || b[0]&0x80 != 0 {
			b = append([]byte{0}, b...)
		}
		return b
	}
	// -x-1 has the same octets as x with every bit flipped.
	y := new(big.Int).Neg(x)
	y.Sub(y, big.NewInt(1))
	b := y.Bytes()
	if len(b) == 0 || b[0]&0x80 != 0 {
		b = append([]byte{0}, b...)
	}
	for i := range b {
		b[i] = ^b[i]
	}
	return b
}

// FromSigned reads a two's-complement big-endian integer.
func FromSigned(b []byte) *big.Int {
	if len(b) == 0 || b[0]&0x80 == 0 {
		return new(big.Int).SetBytes(b)
	}
	inv := make([]byte, len(b))
	for i, c := range b {
		inv[i] = ^c
	}
	x := new(big.Int).SetBytes(inv)
	x.Add(x, big.NewInt(1))
	return x.Neg(x)
}

// UnsignedBytes returns the minimal big-endian form of the non-negative x,
// at least one octet long.
func UnsignedBytes(x *big.Int) []byte {
	b := x.Bytes()
	if len(b) == 0 {
		return []byte{0}
	}
	return b
}

// FixedUnsigned writes the non-negative x into exactly n octets.
func FixedUnsigned(x *big.Int, n int) ([]byte, error) {
	if x.Sign() < 0 || x.BitLen() > 8*n {
		return nil, fmt.Errorf("%s does not fit %d unsigned octets", x, n)
	}
	return x.FillBytes(make([]byte, n)), nil
}

// FixedSigned writes x as two's complement into exactly n octets.
func FixedSigned(x *big.Int, n int) ([]byte, error) {
	if len(SignedBytes(x)) > n {
		return nil, fmt.Errorf("%s does not fit %d signed octets", x, n)
	}
	if x.Sign() >= 0 {
		return x.FillBytes(make([]byte, n)), nil
	}
	mod := new(big.Int).Lsh(big.NewInt(1), uint(8*n))
	return mod.Add(mod, x).FillBytes(make([]byte, n)), nil
}

// BitsFor returns the width of a bit field able to hold 0..span.
func BitsFor(span *big.Int) int {
	return span.BitLen()
}

// OctetsFor returns the number of octets able to hold 0..span, at least one.
func OctetsFor(span *big.Int) int {
	n := (span.BitLen() + 7) / 8
	if n == 0 {
		return 1
	}
	return n
}
