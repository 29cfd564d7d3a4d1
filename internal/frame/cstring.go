package frame

import (
	"bytes"
	"fmt"
	"strings"

	"firestige.xyz/nanoprobe/internal/core"
)

// CstringFrame carries a NUL-terminated string. The payload holds exactly one
// zero byte and it is the last one.
type CstringFrame struct {
	Base
}

// NewCstring builds a frame for s, appending the terminator. Strings with an
// embedded NUL cannot be represented and are refused.
func NewCstring(tag uint16, s string) (*CstringFrame, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return nil, fmt.Errorf("%w: %s contains an embedded NUL", core.ErrInvalidFrame, nameOf(tag))
	}
	value := make([]byte, len(s)+1)
	copy(value, s)
	return &CstringFrame{Base: wrap(tag, value)}, nil
}

// Text returns the string without its terminator.
func (f *CstringFrame) Text() string {
	p := f.bytes()
	if len(p) == 0 {
		return ""
	}
	return string(p[:len(p)-1])
}

func (f *CstringFrame) String() string {
	return fmt.Sprintf("%s %q", nameOf(f.Type()), f.Text())
}

// ValidCstring reports whether p is a well-formed C string payload.
func ValidCstring(p []byte) bool {
	return len(p) > 0 && bytes.IndexByte(p, 0) == len(p)-1
}

func ValidateCstring(buf []byte, off, end int) bool {
	p, ok := payload(buf, off, end)
	return ok && ValidCstring(p)
}

func DecodeCstring(typ uint16, value []byte) (Frame, error) {
	if !ValidCstring(value) {
		return nil, fmt.Errorf("%w: %s is not NUL terminated", core.ErrInvalidFrame, nameOf(typ))
	}
	return &CstringFrame{Base: wrap(typ, value)}, nil
}

func CstringKind(name string) Kind {
	return Kind{Name: name, Validate: ValidateCstring, Decode: DecodeCstring}
}
