package frame

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/nanoprobe/internal/core"
	"firestige.xyz/nanoprobe/internal/signer"
	"firestige.xyz/nanoprobe/internal/tlv"
)

// record serializes a single TLV so validators can be run over it.
func record(t *testing.T, typ uint16, value []byte) []byte {
	t.Helper()
	buf := make([]byte, tlv.Size(len(value)))
	_, err := tlv.Put(buf, 0, typ, value, len(buf))
	require.NoError(t, err)
	return buf
}

func TestCstringValidator(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		valid   bool
	}{
		{"nul last", "abc\x00", true},
		{"only nul", "\x00", true},
		{"no nul", "abc", false},
		{"nul not last", "ab\x00c", false},
		{"two nuls", "ab\x00\x00", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := record(t, TagHostname, []byte(tt.payload))
			assert.Equal(t, tt.valid, ValidateCstring(buf, 0, len(buf)))
		})
	}
}

func TestValidatorsDoNotMutate(t *testing.T) {
	buf := record(t, TagHostname, []byte("host\x00"))
	snapshot := append([]byte(nil), buf...)
	for _, v := range []Validator{ValidateCstring, ValidateBinary, ValidateAddr, ValidateSig, ValidateInt(4)} {
		v(buf, 0, len(buf))
	}
	assert.Equal(t, snapshot, buf)
}

func TestValidatorsRespectEnd(t *testing.T) {
	buf := record(t, TagHostname, []byte("host\x00"))
	assert.False(t, ValidateCstring(buf, 0, len(buf)-1))
	assert.False(t, ValidateBinary(buf, 0, 3))
}

func TestNewCstring(t *testing.T) {
	f, err := NewCstring(TagHostname, "switch-01")
	require.NoError(t, err)
	assert.Equal(t, "switch-01", f.Text())
	assert.Equal(t, []byte("switch-01\x00"), f.Value())
	assert.Equal(t, 10, f.Len())
	assert.Equal(t, 16, f.Size())
	assert.Equal(t, `HOSTNAME "switch-01"`, f.String())

	_, err = NewCstring(TagHostname, "a\x00b")
	assert.ErrorIs(t, err, core.ErrInvalidFrame)
}

func TestValueReturnsCopy(t *testing.T) {
	src := []byte{1, 2, 3}
	f, err := NewBinary(TagPktData, src)
	require.NoError(t, err)

	src[0] = 9
	v := f.Value()
	assert.Equal(t, byte(1), v[0], "constructor must copy its input")

	v[1] = 9
	assert.Equal(t, []byte{1, 2, 3}, f.Value(), "Value must return a copy")
}

func TestNewBinaryRejectsEmpty(t *testing.T) {
	_, err := NewBinary(TagPktData, nil)
	assert.ErrorIs(t, err, core.ErrInvalidFrame)
}

func TestMarshalTo(t *testing.T) {
	f, err := NewInt(TagPortNum, 2, 443)
	require.NoError(t, err)

	buf := make([]byte, f.Size())
	n, err := f.MarshalTo(buf, 0, len(buf))
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, []byte{0x00, 0x0c, 0x00, 0x00, 0x00, 0x02, 0x01, 0xbb}, buf)

	_, err = f.MarshalTo(buf, 0, len(buf)-1)
	assert.ErrorIs(t, err, core.ErrOutOfBounds)
}

func TestNewInt(t *testing.T) {
	tests := []struct {
		width int
		v     uint64
		wire  []byte
	}{
		{1, 0x7f, []byte{0x7f}},
		{2, 0xbeef, []byte{0xbe, 0xef}},
		{3, 0xabcdef, []byte{0xab, 0xcd, 0xef}},
		{4, 0xdeadbeef, []byte{0xde, 0xad, 0xbe, 0xef}},
		{8, 0x0102030405060708, []byte{1, 2, 3, 4, 5, 6, 7, 8}},
	}
	for _, tt := range tests {
		f, err := NewInt(99, tt.width, tt.v)
		require.NoError(t, err)
		assert.Equal(t, tt.wire, f.Value())
		assert.Equal(t, tt.v, f.Uint64())
		assert.Equal(t, tt.width, f.Width())
	}

	_, err := NewInt(99, 3, 0x1000000)
	assert.ErrorIs(t, err, core.ErrValueOverflow)
	_, err = NewInt(99, 5, 1)
	assert.ErrorIs(t, err, core.ErrInvalidFrame)
}

func TestWallClock(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 123456000, time.UTC)
	f := NewWallClock(now)
	assert.Equal(t, TagWallClock, f.Type())
	assert.True(t, now.Equal(f.Time()))
}

func TestPortNumberRules(t *testing.T) {
	_, err := NewPort(0)
	assert.ErrorIs(t, err, core.ErrInvalidFrame)

	zero := record(t, TagPortNum, []byte{0, 0})
	assert.False(t, ValidateNonZeroInt(2)(zero, 0, len(zero)))
	ok := record(t, TagPortNum, []byte{0, 22})
	assert.True(t, ValidateNonZeroInt(2)(ok, 0, len(ok)))
	long := record(t, TagPortNum, []byte{0, 0, 22})
	assert.False(t, ValidateNonZeroInt(2)(long, 0, len(long)))
}

func TestAddrFrames(t *testing.T) {
	v4, err := NewIPAddr(TagIPAddr, net.ParseIP("192.0.2.7"))
	require.NoError(t, err)
	assert.Equal(t, FamilyIPv4, v4.Family())
	assert.Equal(t, []byte{0, 1, 192, 0, 2, 7}, v4.Value())
	assert.Equal(t, "192.0.2.7", v4.IP().String())
	assert.Nil(t, v4.MAC())

	v6, err := NewIPAddr(TagIPAddr, net.ParseIP("2001:db8::1"))
	require.NoError(t, err)
	assert.Equal(t, FamilyIPv6, v6.Family())
	assert.Equal(t, 18, v6.Len())

	mac, err := NewMACAddr(TagMACAddr, net.HardwareAddr{0, 0x1b, 0x21, 0x3c, 0x4d, 0x5e})
	require.NoError(t, err)
	assert.Equal(t, Family802, mac.Family())
	assert.Equal(t, "00:1b:21:3c:4d:5e", mac.MAC().String())
	assert.Equal(t, "MACADDR 00:1b:21:3c:4d:5e", mac.String())

	_, err = NewMACAddr(TagMACAddr, net.HardwareAddr{1, 2, 3})
	assert.ErrorIs(t, err, core.ErrInvalidFrame)
	_, err = NewIPAddr(TagIPAddr, net.IP{1, 2, 3})
	assert.ErrorIs(t, err, core.ErrInvalidFrame)
}

func TestAddrFamilyRules(t *testing.T) {
	tests := []struct {
		name   string
		family uint16
		raw    []byte
		valid  bool
	}{
		{"ipv4", FamilyIPv4, []byte{10, 0, 0, 1}, true},
		{"ipv4 short", FamilyIPv4, []byte{10, 0, 0}, false},
		{"ipv6", FamilyIPv6, make([]byte, 16), true},
		{"eui48", Family802, make([]byte, 6), true},
		{"eui64", Family802, make([]byte, 8), true},
		{"eui 7", Family802, make([]byte, 7), false},
		{"dns", FamilyDNS, []byte("collector.example.net"), true},
		{"dns empty", FamilyDNS, nil, false},
		{"dns nul", FamilyDNS, []byte("a\x00b"), false},
		{"dns too long", FamilyDNS, make([]byte, 256), false},
		{"unknown family", 77, []byte{1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAddr(200, tt.family, tt.raw)
			assert.Equal(t, tt.valid, err == nil)
		})
	}

	// The IPADDR kind only takes IP families.
	dns, err := NewAddr(TagIPAddr, FamilyDNS, []byte("host"))
	require.NoError(t, err)
	buf := make([]byte, dns.Size())
	_, err = dns.MarshalTo(buf, 0, len(buf))
	require.NoError(t, err)
	kind, ok := Default().Lookup(TagIPAddr)
	require.True(t, ok)
	assert.False(t, kind.Validate(buf, 0, len(buf)))
	assert.True(t, ValidateAddr(buf, 0, len(buf)))
}

func TestSigFrame(t *testing.T) {
	s, err := signer.New(signer.SHA256, nil)
	require.NoError(t, err)
	digest := s.Sign([]byte("x"))

	f, err := NewSig(signer.SHA256, digest)
	require.NoError(t, err)
	assert.Equal(t, TagSig, f.Type())
	assert.Equal(t, signer.SHA256, f.Algorithm())
	assert.Equal(t, digest, f.Digest())
	assert.Equal(t, SigSize(signer.SHA256), f.Size())

	buf := make([]byte, f.Size())
	_, err = f.MarshalTo(buf, 0, len(buf))
	require.NoError(t, err)
	assert.True(t, ValidateSig(buf, 0, len(buf)))

	_, err = NewSig(signer.SHA256, digest[:10])
	assert.ErrorIs(t, err, core.ErrInvalidFrame)
	_, err = NewSig(signer.Algorithm(42), digest)
	assert.ErrorIs(t, err, core.ErrInvalidFrame)

	bad := record(t, TagSig, append([]byte{42}, digest...))
	assert.False(t, ValidateSig(bad, 0, len(bad)))
}

func TestDecodersAdoptPayload(t *testing.T) {
	value := []byte("eth0\x00")
	f, err := DecodeCstring(TagInterface, value)
	require.NoError(t, err)
	cs, ok := f.(*CstringFrame)
	require.True(t, ok)
	assert.Equal(t, "eth0", cs.Text())

	_, err = DecodeCstring(TagInterface, []byte("eth0"))
	assert.ErrorIs(t, err, core.ErrInvalidFrame)
	_, err = DecodeInt(4)(TagOrigLen, []byte{1, 2})
	assert.ErrorIs(t, err, core.ErrInvalidFrame)
}

func TestBaseString(t *testing.T) {
	b := NewBase(999, []byte{0xca, 0xfe})
	assert.Equal(t, "type(999)[2] cafe", b.String())
	assert.Equal(t, "PKTDATA[2] cafe", NewBase(TagPktData, []byte{0xca, 0xfe}).String())
}
