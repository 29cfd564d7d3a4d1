package frameset

import (
	"firestige.xyz/nanoprobe/internal/tlv"
)

// FrameSet header layout:
//
//	Offset  Size  Description
//	------  ----  -----------
//	0       2     FrameSet type  (big-endian uint16)
//	2       3     Body length    (big-endian uint24, bytes after the header)
//	5       2     Flags          (big-endian uint16)
//	7       …     Frame TLV records, signature frame first when present
const (
	typeOff   = 0
	lengthOff = 2
	flagsOff  = 5

	// HeaderLen is the fixed size of a FrameSet header.
	HeaderLen = 7

	// MaxBodyLen is the largest body a u24 length can describe.
	MaxBodyLen = 0xFFFFFF
)

type header struct {
	fstype uint16
	length uint32
	flags  uint16
}

func readHeader(buf []byte, off, end int) (header, error) {
	var h header
	var err error
	if h.fstype, err = tlv.GetU16(buf, off+typeOff, end); err != nil {
		return h, err
	}
	if h.length, err = tlv.GetU24(buf, off+lengthOff, end); err != nil {
		return h, err
	}
	if h.flags, err = tlv.GetU16(buf, off+flagsOff, end); err != nil {
		return h, err
	}
	return h, nil
}

func writeHeader(buf []byte, off int, h header, end int) error {
	if err := tlv.SetU16(buf, off+typeOff, h.fstype, end); err != nil {
		return err
	}
	if err := tlv.SetU24(buf, off+lengthOff, h.length, end); err != nil {
		return err
	}
	return tlv.SetU16(buf, off+flagsOff, h.flags, end)
}

// signedRanges returns the byte ranges covered by the signature of the
// FrameSet whose header starts at off: the whole header, and everything after
// the signature frame up to end.
func signedRanges(buf []byte, off, sigEnd, end int) [][]byte {
	return [][]byte{
		buf[off : off+HeaderLen],
		buf[sigEnd:end],
	}
}
