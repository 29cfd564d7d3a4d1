package frame

import (
	"fmt"
	"time"

	"firestige.xyz/nanoprobe/internal/core"
	"firestige.xyz/nanoprobe/internal/tlv"
)

// IntFrame carries one unsigned big-endian integer of 1, 2, 3, 4 or 8 bytes.
type IntFrame struct {
	Base
}

// NewInt encodes v in width bytes.
func NewInt(tag uint16, width int, v uint64) (*IntFrame, error) {
	if !validWidth(width) {
		return nil, fmt.Errorf("%w: %s has unsupported integer width %d", core.ErrInvalidFrame, nameOf(tag), width)
	}
	if width < 8 && v>>(8*width) != 0 {
		return nil, fmt.Errorf("%w: %d does not fit in %d bytes", core.ErrValueOverflow, v, width)
	}
	value := make([]byte, width)
	if err := putUint(value, width, v); err != nil {
		return nil, err
	}
	return &IntFrame{Base: wrap(tag, value)}, nil
}

// NewWallClock encodes t as microseconds since the Unix epoch.
func NewWallClock(t time.Time) *IntFrame {
	f, _ := NewInt(TagWallClock, 8, uint64(t.UnixMicro()))
	return f
}

// NewPort encodes a non-zero port number.
func NewPort(port uint16) (*IntFrame, error) {
	if port == 0 {
		return nil, fmt.Errorf("%w: port number is zero", core.ErrInvalidFrame)
	}
	return NewInt(TagPortNum, 2, uint64(port))
}

func (f *IntFrame) Width() int { return f.Len() }

func (f *IntFrame) Uint64() uint64 {
	v, _ := getUint(f.bytes(), f.Len())
	return v
}

// Time interprets the value as microseconds since the Unix epoch.
func (f *IntFrame) Time() time.Time {
	return time.UnixMicro(int64(f.Uint64()))
}

func (f *IntFrame) String() string {
	return fmt.Sprintf("%s %d", nameOf(f.Type()), f.Uint64())
}

func validWidth(width int) bool {
	switch width {
	case 1, 2, 3, 4, 8:
		return true
	}
	return false
}

func getUint(p []byte, width int) (uint64, error) {
	switch width {
	case 1:
		v, err := tlv.GetU8(p, 0, len(p))
		return uint64(v), err
	case 2:
		v, err := tlv.GetU16(p, 0, len(p))
		return uint64(v), err
	case 3:
		v, err := tlv.GetU24(p, 0, len(p))
		return uint64(v), err
	case 4:
		v, err := tlv.GetU32(p, 0, len(p))
		return uint64(v), err
	case 8:
		return tlv.GetU64(p, 0, len(p))
	}
	return 0, fmt.Errorf("%w: integer width %d", core.ErrInvalidFrame, width)
}

func putUint(p []byte, width int, v uint64) error {
	switch width {
	case 1:
		return tlv.SetU8(p, 0, uint8(v), len(p))
	case 2:
		return tlv.SetU16(p, 0, uint16(v), len(p))
	case 3:
		return tlv.SetU24(p, 0, uint32(v), len(p))
	case 4:
		return tlv.SetU32(p, 0, uint32(v), len(p))
	case 8:
		return tlv.SetU64(p, 0, v, len(p))
	}
	return fmt.Errorf("%w: integer width %d", core.ErrInvalidFrame, width)
}

// ValidateInt accepts payloads of exactly width bytes.
func ValidateInt(width int) Validator {
	return func(buf []byte, off, end int) bool {
		p, ok := payload(buf, off, end)
		return ok && len(p) == width
	}
}

// ValidateNonZeroInt additionally rejects a zero value.
func ValidateNonZeroInt(width int) Validator {
	exact := ValidateInt(width)
	return func(buf []byte, off, end int) bool {
		if !exact(buf, off, end) {
			return false
		}
		p, _ := payload(buf, off, end)
		v, err := getUint(p, width)
		return err == nil && v != 0
	}
}

func DecodeInt(width int) Decoder {
	return func(typ uint16, value []byte) (Frame, error) {
		if len(value) != width {
			return nil, fmt.Errorf("%w: %s wants %d bytes, got %d", core.ErrInvalidFrame, nameOf(typ), width, len(value))
		}
		return &IntFrame{Base: wrap(typ, value)}, nil
	}
}

func IntKind(name string, width int) Kind {
	if !validWidth(width) {
		panic(fmt.Sprintf("frame: unsupported integer width %d for %s", width, name))
	}
	return Kind{Name: name, Validate: ValidateInt(width), Decode: DecodeInt(width)}
}
