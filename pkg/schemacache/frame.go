package schemacache

import (
	"encoding/binary"
	"errors"
	"hash/crc32"

	"github.com/ccoveille/go-safecast/v2"
)

// Frame layout, little endian:
//
//	0  magic "AK"
//	2  version
//	3  total length including the checksum (uint32)
//	7  flags
//	8  payload
//	   CRC32 (IEEE) of everything after the magic (uint32)
const (
	frameVersion = 1
	headerSize   = 8
	crcSize      = 4

	// FlagZstd marks a zstd-compressed payload.
	FlagZstd byte = 0x01
)

var magic = [2]byte{'A', 'K'}

var (
	ErrBadMagic = errors.New("schemacache: not a cache entry")
	ErrVersion  = errors.New("schemacache: unsupported entry version")
	ErrLength   = errors.New("schemacache: length mismatch")
	ErrChecksum = errors.New("schemacache: crc mismatch")
)

// encodeFrame wraps payload in the entry frame.
func encodeFrame(payload []byte, flags byte) ([]byte, error) {
	total, err := safecast.Convert[uint32](headerSize + len(payload) + crcSize)
	if err != nil {
		return nil, err
	}
	out := make([]byte, headerSize, int(total))
	out[0], out[1] = magic[0], magic[1]
	out[2] = frameVersion
	binary.LittleEndian.PutUint32(out[3:], total)
	out[7] = flags
	out = append(out, payload...)
	out = binary.LittleEndian.AppendUint32(out, crc32.ChecksumIEEE(out[2:]))
	return out, nil
}

// decodeFrame checks the frame and returns its payload and flags. The
// payload aliases data.
func decodeFrame(data []byte) ([]byte, byte, error) {
	if len(data) < headerSize+crcSize || data[0] != magic[0] || data[1] != magic[1] {
		return nil, 0, ErrBadMagic
	}
	if data[2] != frameVersion {
		return nil, 0, ErrVersion
	}
	total, err := safecast.Convert[int](binary.LittleEndian.Uint32(data[3:]))
	if err != nil || total != len(data) {
		return nil, 0, ErrLength
	}
	end := len(data) - crcSize
	if crc32.ChecksumIEEE(data[2:end]) != binary.LittleEndian.Uint32(data[end:]) {
		return nil, 0, ErrChecksum
	}
	return data[headerSize:end], data[7], nil
}
