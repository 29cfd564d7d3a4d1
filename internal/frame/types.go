package frame

// Built-in frame type tags.
const (
	TagSig        uint16 = 1
	TagReqID      uint16 = 4
	TagPktData    uint16 = 6
	TagWallClock  uint16 = 7
	TagInterface  uint16 = 8
	TagHostname   uint16 = 9
	TagIPAddr     uint16 = 10
	TagMACAddr    uint16 = 11
	TagPortNum    uint16 = 12
	TagHBInterval uint16 = 13
	TagOUI        uint16 = 14
	TagOrigLen    uint16 = 15
	TagDiscProto  uint16 = 16
)

// Address families, IANA Address Family Numbers.
const (
	FamilyIPv4 uint16 = 1
	FamilyIPv6 uint16 = 2
	Family802  uint16 = 6
	FamilyDNS  uint16 = 16
)

// TagName returns the registered kind name for tag in the default registry,
// or "" when the tag is unknown.
func TagName(tag uint16) string {
	if k, ok := Default().Lookup(tag); ok {
		return k.Name
	}
	return ""
}
