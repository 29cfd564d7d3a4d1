// Package frame implements the typed TLV records carried inside a FrameSet.
//
// Every Frame serializes as
//
//	Offset  Size  Description
//	------  ----  -----------
//	0       2     Type   (big-endian uint16)
//	2       4     Length (big-endian uint32)
//	6       …     Payload
//
// Frames are immutable: constructors copy their input and accessors that
// expose bytes return copies. Each kind is described to the parser by a Kind
// in a Registry.
package frame

import (
	"encoding/hex"
	"fmt"

	"firestige.xyz/nanoprobe/internal/tlv"
)

// Frame is one typed TLV record.
type Frame interface {
	// Type returns the type tag.
	Type() uint16
	// Len returns the payload length.
	Len() int
	// Size returns the wire footprint, header included.
	Size() int
	// Value returns a copy of the payload.
	Value() []byte
	// MarshalTo writes the record at off without crossing end and returns
	// the number of bytes written.
	MarshalTo(buf []byte, off, end int) (int, error)
	String() string
}

// Base is the opaque frame every kind builds on. Third-party kinds embed it
// and add typed accessors.
type Base struct {
	typ   uint16
	value []byte
}

// NewBase copies value into a new Base.
func NewBase(tag uint16, value []byte) Base {
	return Base{typ: tag, value: clone(value)}
}

// wrap adopts value without copying. Decoders use it for payloads that
// already live in a FrameSet's private packet copy.
func wrap(tag uint16, value []byte) Base {
	return Base{typ: tag, value: value}
}

func (b Base) Type() uint16 { return b.typ }

func (b Base) Len() int { return len(b.value) }

func (b Base) Size() int { return tlv.Size(len(b.value)) }

func (b Base) Value() []byte { return clone(b.value) }

func (b Base) MarshalTo(buf []byte, off, end int) (int, error) {
	return tlv.Put(buf, off, b.typ, b.value, end)
}

func (b Base) String() string {
	return fmt.Sprintf("%s[%d] %s", nameOf(b.typ), len(b.value), hexPreview(b.value))
}

// bytes returns the payload without copying.
func (b Base) bytes() []byte { return b.value }

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append(make([]byte, 0, len(b)), b...)
}

func nameOf(tag uint16) string {
	if name := TagName(tag); name != "" {
		return name
	}
	return fmt.Sprintf("type(%d)", tag)
}

const previewLen = 16

func hexPreview(b []byte) string {
	if len(b) <= previewLen {
		return hex.EncodeToString(b)
	}
	return hex.EncodeToString(b[:previewLen]) + "…"
}
