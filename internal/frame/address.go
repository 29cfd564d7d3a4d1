package frame

import (
	"fmt"
	"net"

	"firestige.xyz/nanoprobe/internal/core"
	"firestige.xyz/nanoprobe/internal/tlv"
)

const (
	familyLen = 2
	maxDNSLen = 255
)

// AddrFrame carries a network address prefixed with its address family:
//
//	family:u16 | address bytes
type AddrFrame struct {
	Base
}

// NewAddr builds an address frame from a family and raw address bytes.
func NewAddr(tag, family uint16, raw []byte) (*AddrFrame, error) {
	if !validAddr(family, raw) {
		return nil, fmt.Errorf("%w: %d bytes are not a valid family %d address", core.ErrInvalidFrame, len(raw), family)
	}
	value := make([]byte, familyLen+len(raw))
	if err := tlv.SetU16(value, 0, family, len(value)); err != nil {
		return nil, err
	}
	copy(value[familyLen:], raw)
	return &AddrFrame{Base: wrap(tag, value)}, nil
}

// NewIPAddr picks IPv4 for addresses with a 4-byte form and IPv6 otherwise.
func NewIPAddr(tag uint16, ip net.IP) (*AddrFrame, error) {
	if v4 := ip.To4(); v4 != nil {
		return NewAddr(tag, FamilyIPv4, v4)
	}
	if len(ip) == net.IPv6len {
		return NewAddr(tag, FamilyIPv6, ip)
	}
	return nil, fmt.Errorf("%w: %q is not an IP address", core.ErrInvalidFrame, ip.String())
}

// NewMACAddr accepts EUI-48 and EUI-64 hardware addresses.
func NewMACAddr(tag uint16, mac net.HardwareAddr) (*AddrFrame, error) {
	return NewAddr(tag, Family802, mac)
}

func (f *AddrFrame) Family() uint16 {
	v, _ := tlv.GetU16(f.bytes(), 0, f.Len())
	return v
}

// Raw returns a copy of the address bytes without the family prefix.
func (f *AddrFrame) Raw() []byte {
	return clone(f.bytes()[familyLen:])
}

// IP returns the address for IPv4/IPv6 frames and nil otherwise.
func (f *AddrFrame) IP() net.IP {
	switch f.Family() {
	case FamilyIPv4, FamilyIPv6:
		return net.IP(f.Raw())
	}
	return nil
}

// MAC returns the address for 802 frames and nil otherwise.
func (f *AddrFrame) MAC() net.HardwareAddr {
	if f.Family() != Family802 {
		return nil
	}
	return net.HardwareAddr(f.Raw())
}

func (f *AddrFrame) String() string {
	var addr string
	switch f.Family() {
	case FamilyIPv4, FamilyIPv6:
		addr = f.IP().String()
	case Family802:
		addr = f.MAC().String()
	case FamilyDNS:
		addr = string(f.bytes()[familyLen:])
	}
	return fmt.Sprintf("%s %s", nameOf(f.Type()), addr)
}

// validAddr applies the per-family length rules. Unknown families are
// refused.
func validAddr(family uint16, raw []byte) bool {
	switch family {
	case FamilyIPv4:
		return len(raw) == net.IPv4len
	case FamilyIPv6:
		return len(raw) == net.IPv6len
	case Family802:
		return len(raw) == 6 || len(raw) == 8
	case FamilyDNS:
		if len(raw) == 0 || len(raw) > maxDNSLen {
			return false
		}
		for _, c := range raw {
			if c < 0x21 || c > 0x7e {
				return false
			}
		}
		return true
	}
	return false
}

func validAddrPayload(p []byte) bool {
	family, err := tlv.GetU16(p, 0, len(p))
	if err != nil {
		return false
	}
	return validAddr(family, p[familyLen:])
}

func ValidateAddr(buf []byte, off, end int) bool {
	p, ok := payload(buf, off, end)
	return ok && validAddrPayload(p)
}

// ValidateFamily restricts an address kind to the listed families.
func ValidateFamily(families ...uint16) Validator {
	return func(buf []byte, off, end int) bool {
		p, ok := payload(buf, off, end)
		if !ok || !validAddrPayload(p) {
			return false
		}
		family, _ := tlv.GetU16(p, 0, len(p))
		for _, f := range families {
			if f == family {
				return true
			}
		}
		return false
	}
}

func DecodeAddr(typ uint16, value []byte) (Frame, error) {
	if !validAddrPayload(value) {
		return nil, fmt.Errorf("%w: malformed %s", core.ErrInvalidFrame, nameOf(typ))
	}
	return &AddrFrame{Base: wrap(typ, value)}, nil
}

// AddrKind describes an address kind accepting the given families, or any
// known family when none are listed.
func AddrKind(name string, families ...uint16) Kind {
	v := Validator(ValidateAddr)
	if len(families) > 0 {
		v = ValidateFamily(families...)
	}
	return Kind{Name: name, Validate: v, Decode: DecodeAddr}
}
