// Package tlv implements bounds-checked network byte order access to TLV
// buffers.
//
// Every accessor takes the buffer, an offset and an exclusive end bound. The
// bound is checked before any byte is touched; a failed check returns
// core.ErrOutOfBounds and never a sentinel value. This is the only package that
// converts between host and network byte order.
package tlv

import (
	"encoding/binary"
	"fmt"

	"firestige.xyz/nanoprobe/internal/core"
)

const maxU24 = 0xFFFFFF

// check verifies that [off, off+width) lies within [0, end) and that end does
// not exceed the buffer itself.
func check(buf []byte, off, width, end int) error {
	if off < 0 || end > len(buf) || off > end || end-off < width {
		return fmt.Errorf("%w: %d-byte access at offset %d (end %d, buffer %d)",
			core.ErrOutOfBounds, width, off, end, len(buf))
	}
	return nil
}

// GetU8 reads an unsigned 8-bit integer.
func GetU8(buf []byte, off, end int) (uint8, error) {
	if err := check(buf, off, 1, end); err != nil {
		return 0, err
	}
	return buf[off], nil
}

// GetU16 reads a big-endian unsigned 16-bit integer.
func GetU16(buf []byte, off, end int) (uint16, error) {
	if err := check(buf, off, 2, end); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[off : off+2]), nil
}

// GetU24 reads a 3-byte big-endian integer, as used by IEEE OUI fields. The
// most significant byte comes first, followed by a 16-bit remainder.
func GetU24(buf []byte, off, end int) (uint32, error) {
	if err := check(buf, off, 3, end); err != nil {
		return 0, err
	}
	msb := uint32(buf[off])
	rest, err := GetU16(buf, off+1, end)
	if err != nil {
		return 0, err
	}
	return msb<<16 | uint32(rest), nil
}

// GetU32 reads a big-endian unsigned 32-bit integer.
func GetU32(buf []byte, off, end int) (uint32, error) {
	if err := check(buf, off, 4, end); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[off : off+4]), nil
}

// GetU64 reads a big-endian unsigned 64-bit integer.
func GetU64(buf []byte, off, end int) (uint64, error) {
	if err := check(buf, off, 8, end); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[off : off+8]), nil
}

// SetU8 writes an unsigned 8-bit integer.
func SetU8(buf []byte, off int, v uint8, end int) error {
	if err := check(buf, off, 1, end); err != nil {
		return err
	}
	buf[off] = v
	return nil
}

// SetU16 writes a big-endian unsigned 16-bit integer.
func SetU16(buf []byte, off int, v uint16, end int) error {
	if err := check(buf, off, 2, end); err != nil {
		return err
	}
	binary.BigEndian.PutUint16(buf[off:off+2], v)
	return nil
}

// SetU24 writes the low 24 bits of v as a 3-byte big-endian integer. Values
// that need more than 24 bits are refused rather than truncated.
func SetU24(buf []byte, off int, v uint32, end int) error {
	if v > maxU24 {
		return fmt.Errorf("%w: 0x%x exceeds 24 bits", core.ErrValueOverflow, v)
	}
	if err := check(buf, off, 3, end); err != nil {
		return err
	}
	buf[off] = uint8(v >> 16)
	return SetU16(buf, off+1, uint16(v), end)
}

// SetU32 writes a big-endian unsigned 32-bit integer.
func SetU32(buf []byte, off int, v uint32, end int) error {
	if err := check(buf, off, 4, end); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(buf[off:off+4], v)
	return nil
}

// SetU64 writes a big-endian unsigned 64-bit integer.
func SetU64(buf []byte, off int, v uint64, end int) error {
	if err := check(buf, off, 8, end); err != nil {
		return err
	}
	binary.BigEndian.PutUint64(buf[off:off+8], v)
	return nil
}

// PutBytes copies src to buf[off:] without writing past end.
func PutBytes(buf []byte, off int, src []byte, end int) error {
	if err := check(buf, off, len(src), end); err != nil {
		return err
	}
	copy(buf[off:], src)
	return nil
}
