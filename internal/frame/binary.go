package frame

import (
	"fmt"

	"firestige.xyz/nanoprobe/internal/core"
)

// BinaryFrame carries an opaque, non-empty payload.
type BinaryFrame struct {
	Base
}

func NewBinary(tag uint16, value []byte) (*BinaryFrame, error) {
	if len(value) == 0 {
		return nil, fmt.Errorf("%w: %s payload is empty", core.ErrInvalidFrame, nameOf(tag))
	}
	return &BinaryFrame{Base: NewBase(tag, value)}, nil
}

func ValidateBinary(buf []byte, off, end int) bool {
	p, ok := payload(buf, off, end)
	return ok && len(p) > 0
}

func DecodeBinary(typ uint16, value []byte) (Frame, error) {
	return &BinaryFrame{Base: wrap(typ, value)}, nil
}

// BinaryKind describes an opaque payload kind.
func BinaryKind(name string) Kind {
	return Kind{Name: name, Validate: ValidateBinary, Decode: DecodeBinary}
}
