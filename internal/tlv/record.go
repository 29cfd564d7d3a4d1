package tlv

import (
	"fmt"

	"firestige.xyz/nanoprobe/internal/core"
)

// Generic TLV record layout:
//
//	Offset  Size  Description
//	------  ----  -----------
//	0       2     Type   (big-endian uint16)
//	2       4     Length (big-endian uint32, payload bytes only)
//	6       …     Payload
//
// There is no padding inside or between records.
const (
	typeLen   = 2
	lengthLen = 4

	// HeaderLen is the fixed overhead of every TLV record.
	HeaderLen = typeLen + lengthLen
)

// Size returns the wire footprint of a record carrying payloadLen bytes.
func Size(payloadLen int) int {
	return HeaderLen + payloadLen
}

// Type reads the type tag of the record starting at off.
func Type(buf []byte, off, end int) (uint16, error) {
	return GetU16(buf, off, end)
}

// Length reads the payload length of the record starting at off.
func Length(buf []byte, off, end int) (uint32, error) {
	return GetU32(buf, off+typeLen, end)
}

// Value returns the payload of the record starting at off. The returned slice
// aliases buf and its capacity is clipped to the payload.
func Value(buf []byte, off, end int) ([]byte, error) {
	_, value, _, err := Next(buf, off, end)
	return value, err
}

// Next decodes the record header at off and returns its type, its payload and
// the offset of the following record. A header that does not fit before end is
// reported as core.ErrTruncatedPacket; a payload that extends past end as
// core.ErrFrameOverrun.
func Next(buf []byte, off, end int) (typ uint16, value []byte, next int, err error) {
	if err := check(buf, off, HeaderLen, end); err != nil {
		return 0, nil, 0, fmt.Errorf("%w: record header at offset %d: %v", core.ErrTruncatedPacket, off, err)
	}
	typ, err = Type(buf, off, end)
	if err != nil {
		return 0, nil, 0, fmt.Errorf("%w: %v", core.ErrTruncatedPacket, err)
	}
	length, err := Length(buf, off, end)
	if err != nil {
		return 0, nil, 0, fmt.Errorf("%w: %v", core.ErrTruncatedPacket, err)
	}

	start := off + HeaderLen
	if uint64(length) > uint64(end-start) {
		return typ, nil, 0, fmt.Errorf("%w: type %d at offset %d declares %d bytes, %d remain",
			core.ErrFrameOverrun, typ, off, length, end-start)
	}
	stop := start + int(length)
	return typ, buf[start:stop:stop], stop, nil
}

// PutHeader writes a record header at off. The payload itself is written by
// the caller.
func PutHeader(buf []byte, off int, typ uint16, length uint32, end int) error {
	if err := check(buf, off, HeaderLen, end); err != nil {
		return err
	}
	if err := SetU16(buf, off, typ, end); err != nil {
		return err
	}
	return SetU32(buf, off+typeLen, length, end)
}

// Put writes a complete record (header and payload) at off and returns the
// number of bytes written.
func Put(buf []byte, off int, typ uint16, value []byte, end int) (int, error) {
	if uint64(len(value)) > uint64(^uint32(0)) {
		return 0, fmt.Errorf("%w: payload of %d bytes", core.ErrValueOverflow, len(value))
	}
	if err := check(buf, off, Size(len(value)), end); err != nil {
		return 0, err
	}
	if err := PutHeader(buf, off, typ, uint32(len(value)), end); err != nil {
		return 0, err
	}
	if err := PutBytes(buf, off+HeaderLen, value, end); err != nil {
		return 0, err
	}
	return Size(len(value)), nil
}
