package frame

// builtins lists the kinds every agent and collector understands.
var builtins = []struct {
	tag  uint16
	kind Kind
}{
	{TagSig, Kind{Name: "SIG", Validate: ValidateSig, Decode: DecodeSig}},
	{TagReqID, IntKind("REQID", 8)},
	{TagPktData, BinaryKind("PKTDATA")},
	{TagWallClock, IntKind("WALLCLOCK", 8)},
	{TagInterface, CstringKind("INTERFACE")},
	{TagHostname, CstringKind("HOSTNAME")},
	{TagIPAddr, AddrKind("IPADDR", FamilyIPv4, FamilyIPv6)},
	{TagMACAddr, AddrKind("MACADDR", Family802)},
	{TagPortNum, Kind{Name: "PORTNUM", Validate: ValidateNonZeroInt(2), Decode: DecodeInt(2)}},
	{TagHBInterval, IntKind("HBINTERVAL", 4)},
	{TagOUI, IntKind("OUI", 3)},
	{TagOrigLen, IntKind("ORIGLEN", 4)},
	{TagDiscProto, CstringKind("DISCPROTO")},
}

// RegisterBuiltins installs the built-in kinds into r. It panics when r
// already holds one of the built-in tags or is sealed.
func RegisterBuiltins(r *Registry) {
	for _, b := range builtins {
		r.MustRegister(b.tag, b.kind)
	}
}
