package frameset

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/nanoprobe/internal/core"
	"firestige.xyz/nanoprobe/internal/frame"
	"firestige.xyz/nanoprobe/internal/signer"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// sample returns an unconstructed capture FrameSet with one frame of every
// common kind.
func sample(t *testing.T) *FrameSet {
	t.Helper()
	fs := New(TypeCapture, 0x0003)
	frames := []frame.Frame{
		must(frame.NewCstring(frame.TagHostname, "agent-1")),
		must(frame.NewCstring(frame.TagInterface, "eth0")),
		frame.NewWallClock(time.Unix(1700000000, 0)),
		must(frame.NewIPAddr(frame.TagIPAddr, net.ParseIP("198.51.100.4"))),
		must(frame.NewPort(8443)),
		must(frame.NewInt(frame.TagOUI, 3, 0x00000c)),
		must(frame.NewBinary(frame.TagPktData, []byte{0xde, 0xad, 0xbe, 0xef})),
	}
	for _, f := range frames {
		require.NoError(t, fs.Append(f))
	}
	return fs
}

func mustSigner(t *testing.T, alg signer.Algorithm, key []byte) signer.Signer {
	t.Helper()
	s, err := signer.New(alg, key)
	require.NoError(t, err)
	return s
}

func constructedPacket(t *testing.T, s signer.Signer) []byte {
	t.Helper()
	fs := sample(t)
	require.NoError(t, fs.Construct(s))
	pkt, err := fs.Packet()
	require.NoError(t, err)
	return pkt
}

func assertSameFrames(t *testing.T, want, got []frame.Frame) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Type(), got[i].Type(), "frame %d type", i)
		assert.Equal(t, want[i].Value(), got[i].Value(), "frame %d value", i)
	}
}

func TestWireLayout(t *testing.T) {
	fs := New(TypeHeartbeat, 0x0102)
	require.NoError(t, fs.Append(must(frame.NewInt(frame.TagHBInterval, 4, 30))))
	require.NoError(t, fs.Construct(nil))

	want := []byte{
		0x00, 0x01, // type
		0x00, 0x00, 0x0a, // body length
		0x01, 0x02, // flags
		0x00, 0x0d, 0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x1e,
	}
	pkt, err := fs.Packet()
	require.NoError(t, err)
	assert.Equal(t, want, pkt)
	assert.Equal(t, len(want), fs.Len())

	var w bytes.Buffer
	n, err := fs.WriteTo(&w)
	require.NoError(t, err)
	assert.Equal(t, int64(len(want)), n)
	assert.Equal(t, want, w.Bytes())
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		signer signer.Signer
	}{
		{"unsigned", nil},
		{"sha256", mustSigner(t, signer.SHA256, nil)},
		{"blake2b", mustSigner(t, signer.BLAKE2b256, nil)},
		{"hmac", mustSigner(t, signer.HMACSHA256, []byte("shared"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := sample(t)
			require.NoError(t, fs.Construct(tt.signer))
			want, err := fs.Frames()
			require.NoError(t, err)
			pkt, err := fs.Packet()
			require.NoError(t, err)

			var opts []Option
			if tt.signer != nil {
				opts = append(opts, WithSigner(tt.signer))
			}
			got, err := NewParser(opts...).Parse(pkt)
			require.NoError(t, err)

			fstype, err := got.Type()
			require.NoError(t, err)
			assert.Equal(t, TypeCapture, fstype)
			flags, err := got.Flags()
			require.NoError(t, err)
			assert.Equal(t, uint16(0x0003), flags)

			frames, err := got.Frames()
			require.NoError(t, err)
			assertSameFrames(t, want, frames)
			assert.Equal(t, tt.signer != nil, got.Signature() != nil)

			again, err := got.Packet()
			require.NoError(t, err)
			assert.Equal(t, pkt, again)
		})
	}
}

func TestParsedFramesAreTyped(t *testing.T) {
	fs, err := NewParser().Parse(constructedPacket(t, nil))
	require.NoError(t, err)

	host, ok := fs.First(frame.TagHostname).(*frame.CstringFrame)
	require.True(t, ok)
	assert.Equal(t, "agent-1", host.Text())

	ip, ok := fs.First(frame.TagIPAddr).(*frame.AddrFrame)
	require.True(t, ok)
	assert.Equal(t, "198.51.100.4", ip.IP().String())

	port, ok := fs.First(frame.TagPortNum).(*frame.IntFrame)
	require.True(t, ok)
	assert.Equal(t, uint64(8443), port.Uint64())

	assert.Nil(t, fs.First(frame.TagMACAddr))
}

func TestParseCopiesInput(t *testing.T) {
	pkt := constructedPacket(t, nil)
	fs, err := NewParser().Parse(pkt)
	require.NoError(t, err)

	for i := range pkt {
		pkt[i] = 0xff
	}
	host := fs.First(frame.TagHostname).(*frame.CstringFrame)
	assert.Equal(t, "agent-1", host.Text())
}

func TestTruncationAtEveryOffset(t *testing.T) {
	for _, s := range []signer.Signer{nil, mustSigner(t, signer.SHA256, nil)} {
		pkt := constructedPacket(t, s)
		var opts []Option
		if s != nil {
			opts = append(opts, WithSigner(s))
		}
		p := NewParser(opts...)
		for n := 0; n < len(pkt); n++ {
			fs, err := p.Parse(pkt[:n])
			assert.Nil(t, fs)
			if !errors.Is(err, core.ErrTruncatedPacket) && !errors.Is(err, core.ErrFrameOverrun) {
				t.Errorf("truncated at %d: expected truncated or overrun, got %v", n, err)
			}
		}
	}
}

func TestTruncatedBodyWithShortenedLength(t *testing.T) {
	// Keep the header consistent with the cut so the frame loop itself hits
	// the short record.
	pkt := constructedPacket(t, nil)
	for cut := HeaderLen + 1; cut < len(pkt); cut++ {
		trimmed := append([]byte(nil), pkt[:cut]...)
		body := cut - HeaderLen
		trimmed[2], trimmed[3], trimmed[4] = byte(body>>16), byte(body>>8), byte(body)
		_, err := NewParser().Parse(trimmed)
		if err == nil {
			continue
		}
		if !errors.Is(err, core.ErrTruncatedPacket) && !errors.Is(err, core.ErrFrameOverrun) {
			t.Errorf("cut at %d: expected truncated or overrun, got %v", cut, err)
		}
	}
}

func TestSignatureDetectsAnyFlip(t *testing.T) {
	s := mustSigner(t, signer.BLAKE2s256, nil)
	pkt := constructedPacket(t, s)
	sigEnd := HeaderLen + frame.SigSize(signer.BLAKE2s256)

	covered := []int{0, 1, 2, 3, 4, 5, 6}
	for i := sigEnd; i < len(pkt); i++ {
		covered = append(covered, i)
	}

	for _, p := range []*Parser{NewParser(WithSigner(s)), NewParser()} {
		for _, i := range covered {
			for _, mask := range []byte{0x01, 0x80} {
				bad := append([]byte(nil), pkt...)
				bad[i] ^= mask
				fs, err := p.Parse(bad)
				assert.Nil(t, fs)
				assert.ErrorIs(t, err, core.ErrSignatureMismatch, "flip 0x%02x at %d", mask, i)
			}
		}
	}
}

func TestSignedLengthField(t *testing.T) {
	s := mustSigner(t, signer.SHA256, nil)
	pkt := constructedPacket(t, s)
	p := NewParser(WithSigner(s))

	// Body length grown past the datagram.
	grown := append([]byte(nil), pkt...)
	grown[3] ^= 0x01
	_, err := p.Parse(grown)
	assert.ErrorIs(t, err, core.ErrSignatureMismatch)
	assert.Equal(t, "signature", RejectReason(err))

	// Body length shrunk into the signature record.
	shrunk := append([]byte(nil), pkt...)
	shrunk[2], shrunk[3], shrunk[4] = 0, 0, 8
	_, err = p.Parse(shrunk)
	assert.ErrorIs(t, err, core.ErrSignatureMismatch)

	// A datagram cut short keeps reporting the cut, not a forged length.
	_, err = p.Parse(pkt[:len(pkt)-3])
	assert.ErrorIs(t, err, core.ErrFrameOverrun)
	assert.NotErrorIs(t, err, core.ErrSignatureMismatch)
}

func TestSignatureDigestFlip(t *testing.T) {
	s := mustSigner(t, signer.SHA256, nil)
	pkt := constructedPacket(t, s)
	pkt[len(pkt)-1] ^= 0xff
	_, err := NewParser(WithSigner(s)).Parse(pkt)
	assert.ErrorIs(t, err, core.ErrSignatureMismatch)

	pkt = constructedPacket(t, s)
	pkt[HeaderLen+7] ^= 0xff // first digest byte
	_, err = NewParser(WithSigner(s)).Parse(pkt)
	assert.ErrorIs(t, err, core.ErrSignatureMismatch)
}

func TestSignaturePolicy(t *testing.T) {
	sha := mustSigner(t, signer.SHA256, nil)
	hmacA := mustSigner(t, signer.HMACSHA256, []byte("key-a"))
	hmacB := mustSigner(t, signer.HMACSHA256, []byte("key-b"))

	tests := []struct {
		name    string
		sign    signer.Signer
		verify  signer.Signer
		wantErr error
	}{
		{"unsigned with signer configured", nil, sha, core.ErrSignatureMismatch},
		{"algorithm mismatch", sha, hmacA, core.ErrSignatureMismatch},
		{"wrong key", hmacA, hmacB, core.ErrSignatureMismatch},
		{"keyed without key", hmacA, nil, core.ErrSignatureMismatch},
		{"right key", hmacA, hmacA, nil},
		{"unkeyed without signer", sha, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.verify != nil {
				opts = append(opts, WithSigner(tt.verify))
			}
			fs, err := NewParser(opts...).Parse(constructedPacket(t, tt.sign))
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.NotNil(t, fs)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, fs)
		})
	}
}

func TestEmptyFrameSetWithSigner(t *testing.T) {
	fs := New(TypeHeartbeat, 0)
	require.NoError(t, fs.Construct(nil))
	pkt, _ := fs.Packet()

	_, err := NewParser(WithSigner(mustSigner(t, signer.SHA256, nil))).Parse(pkt)
	assert.ErrorIs(t, err, core.ErrSignatureMismatch)

	got, err := NewParser().Parse(pkt)
	require.NoError(t, err)
	frames, _ := got.Frames()
	assert.Empty(t, frames)
}

func TestAllOrNothing(t *testing.T) {
	fs := sample(t)
	// A hostname without its terminator slips past construction because Base
	// does not validate.
	require.NoError(t, fs.Append(frame.NewBase(frame.TagHostname, []byte("bad"))))
	require.NoError(t, fs.Append(must(frame.NewCstring(frame.TagInterface, "eth1"))))
	require.NoError(t, fs.Construct(nil))
	pkt, _ := fs.Packet()

	got, err := NewParser().Parse(pkt)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, core.ErrInvalidFrame)

	frames, ferr := got.Frames()
	assert.Nil(t, frames)
	assert.ErrorIs(t, ferr, core.ErrRejected)

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, frame.TagHostname, pe.Type)
	assert.Greater(t, pe.Offset, HeaderLen)
}

func TestSignatureMustBeFirst(t *testing.T) {
	s := mustSigner(t, signer.SHA256, nil)
	signed := constructedPacket(t, s)
	sigEnd := HeaderLen + frame.SigSize(signer.SHA256)

	// Move the signature record behind the first frame.
	first := New(TypeCapture, 0x0003)
	require.NoError(t, first.Append(must(frame.NewCstring(frame.TagHostname, "x"))))
	require.NoError(t, first.Construct(nil))
	head, _ := first.Packet()

	body := append(append([]byte(nil), head[HeaderLen:]...), signed[HeaderLen:sigEnd]...)
	pkt := append(append([]byte(nil), head[:HeaderLen]...), body...)
	pkt[2], pkt[3], pkt[4] = 0, byte(len(body)>>8), byte(len(body))

	_, err := NewParser().Parse(pkt)
	assert.ErrorIs(t, err, core.ErrInvalidFrame)
}

func TestUnknownFramePolicy(t *testing.T) {
	fs := sample(t)
	require.NoError(t, fs.Append(frame.NewBase(4242, []byte{1, 2, 3})))
	require.NoError(t, fs.Construct(nil))
	pkt, _ := fs.Packet()

	_, err := NewParser().Parse(pkt)
	assert.ErrorIs(t, err, core.ErrUnknownFrameType)

	got, err := NewParser(WithSkipUnknown(true)).Parse(pkt)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Skipped())
	frames, _ := got.Frames()
	assert.Len(t, frames, 7)
	assert.Nil(t, got.First(4242))
}

type labelFrame struct {
	frame.CstringFrame
}

func TestExtensionKind(t *testing.T) {
	r := frame.NewRegistry()
	frame.RegisterBuiltins(r)
	require.NoError(t, r.Register(700, frame.Kind{
		Name:     "LABEL",
		Validate: frame.ValidateCstring,
		Decode: func(typ uint16, value []byte) (frame.Frame, error) {
			f, err := frame.DecodeCstring(typ, value)
			if err != nil {
				return nil, err
			}
			return &labelFrame{CstringFrame: *f.(*frame.CstringFrame)}, nil
		},
	}))

	fs := New(TypeHeartbeat, 0)
	require.NoError(t, fs.Append(must(frame.NewCstring(700, "rack-7"))))
	require.NoError(t, fs.Construct(nil))
	pkt, _ := fs.Packet()

	p := NewParser(WithRegistry(r))
	assert.True(t, r.Sealed())
	assert.ErrorIs(t, r.Register(701, frame.BinaryKind("LATE")), core.ErrRegistrySealed)

	got, err := p.Parse(pkt)
	require.NoError(t, err)
	lf, ok := got.First(700).(*labelFrame)
	require.True(t, ok)
	assert.Equal(t, "rack-7", lf.Text())

	// The default registry does not know the tag.
	_, err = NewParser().Parse(pkt)
	assert.ErrorIs(t, err, core.ErrUnknownFrameType)
}

func TestParseFromTrailingData(t *testing.T) {
	pkt := append(constructedPacket(t, nil), 0x00)
	_, err := NewParser().ParseFrom("192.0.2.1:1984", pkt)
	assert.ErrorIs(t, err, core.ErrTrailingData)

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "192.0.2.1:1984", pe.Source)
	assert.Equal(t, len(pkt)-1, pe.Offset)
	assert.Contains(t, err.Error(), "192.0.2.1:1984")
}

func TestParseAll(t *testing.T) {
	a := constructedPacket(t, nil)
	hb := New(TypeHeartbeat, 0)
	require.NoError(t, hb.Append(must(frame.NewInt(frame.TagHBInterval, 4, 10))))
	require.NoError(t, hb.Construct(nil))
	b, _ := hb.Packet()

	datagram := append(append([]byte(nil), a...), b...)
	sets, err := NewParser().ParseAll("peer", datagram)
	require.NoError(t, err)
	require.Len(t, sets, 2)
	t0, _ := sets[0].Type()
	t1, _ := sets[1].Type()
	assert.Equal(t, TypeCapture, t0)
	assert.Equal(t, TypeHeartbeat, t1)
	assert.Equal(t, len(a), sets[0].Len())
	assert.Equal(t, len(b), sets[1].Len())

	// A bad second FrameSet rejects the whole datagram.
	unknown := New(TypeHeartbeat, 0)
	require.NoError(t, unknown.Append(frame.NewBase(4242, []byte{1})))
	require.NoError(t, unknown.Construct(nil))
	c, _ := unknown.Packet()
	bad := append(append([]byte(nil), a...), c...)
	sets, err = NewParser().ParseAll("peer", bad)
	assert.Nil(t, sets)
	assert.ErrorIs(t, err, core.ErrUnknownFrameType)

	_, err = NewParser().ParseAll("peer", nil)
	assert.ErrorIs(t, err, core.ErrTruncatedPacket)
}

func TestLifecycle(t *testing.T) {
	fs := sample(t)
	_, err := fs.Packet()
	assert.ErrorIs(t, err, core.ErrNotConstructed)
	assert.Equal(t, 0, fs.Len())

	require.NoError(t, fs.Construct(nil))
	assert.ErrorIs(t, fs.Construct(nil), core.ErrAlreadyConstructed)
	assert.ErrorIs(t, fs.Append(frame.NewBase(99, []byte{1})), core.ErrAlreadyConstructed)
	assert.ErrorIs(t, fs.Prepend(frame.NewBase(99, []byte{1})), core.ErrAlreadyConstructed)

	require.NoError(t, fs.Release())
	assert.ErrorIs(t, fs.Release(), core.ErrReleased)
	_, err = fs.Packet()
	assert.ErrorIs(t, err, core.ErrReleased)
	_, err = fs.Frames()
	assert.ErrorIs(t, err, core.ErrReleased)
	assert.ErrorIs(t, fs.Construct(nil), core.ErrReleased)
	assert.Equal(t, 0, fs.Len())
}

func TestParsedFrameSetIsConstructed(t *testing.T) {
	fs, err := NewParser().Parse(constructedPacket(t, nil))
	require.NoError(t, err)
	assert.ErrorIs(t, fs.Append(frame.NewBase(99, []byte{1})), core.ErrAlreadyConstructed)
	assert.ErrorIs(t, fs.Construct(nil), core.ErrAlreadyConstructed)
}

func TestPrependOrder(t *testing.T) {
	fs := New(TypeHeartbeat, 0)
	require.NoError(t, fs.Append(must(frame.NewCstring(frame.TagInterface, "eth0"))))
	require.NoError(t, fs.Prepend(must(frame.NewCstring(frame.TagHostname, "h"))))
	assert.ErrorIs(t, fs.Append(nil), core.ErrInvalidFrame)

	frames, _ := fs.Frames()
	assert.Equal(t, frame.TagHostname, frames[0].Type())
	assert.Equal(t, frame.TagInterface, frames[1].Type())
}

func TestNilFrameSet(t *testing.T) {
	var fs *FrameSet
	_, err := fs.Type()
	assert.ErrorIs(t, err, core.ErrRejected)
	_, err = fs.Flags()
	assert.ErrorIs(t, err, core.ErrRejected)
	_, err = fs.Frames()
	assert.ErrorIs(t, err, core.ErrRejected)
	_, err = fs.Packet()
	assert.ErrorIs(t, err, core.ErrRejected)
	_, err = fs.WriteTo(&bytes.Buffer{})
	assert.ErrorIs(t, err, core.ErrRejected)
	assert.ErrorIs(t, fs.Release(), core.ErrRejected)
	assert.ErrorIs(t, fs.Append(frame.NewBase(1, nil)), core.ErrRejected)
	assert.Nil(t, fs.First(frame.TagHostname))
	assert.Nil(t, fs.Signature())
	assert.Equal(t, 0, fs.Len())
	assert.Equal(t, 0, fs.Skipped())
}

func TestConstructRejectsCallerSignature(t *testing.T) {
	fs := New(TypeHeartbeat, 0)
	sig, err := frame.NewSig(signer.SHA256, make([]byte, 32))
	require.NoError(t, err)
	require.NoError(t, fs.Append(sig))
	assert.ErrorIs(t, fs.Construct(nil), core.ErrInvalidFrame)
}

func TestConstructTooLarge(t *testing.T) {
	fs := New(TypeCapture, 0)
	require.NoError(t, fs.Append(frame.NewBase(frame.TagPktData, make([]byte, MaxBodyLen))))
	assert.ErrorIs(t, fs.Construct(nil), core.ErrPacketTooLarge)
}

// lyingFrame reports a larger footprint than it writes.
type lyingFrame struct {
	frame.Base
}

func (f lyingFrame) Size() int { return f.Base.Size() + 2 }

func TestConstructionFault(t *testing.T) {
	fs := New(TypeCapture, 0)
	require.NoError(t, fs.Append(lyingFrame{Base: frame.NewBase(frame.TagPktData, []byte{1})}))
	err := fs.Construct(nil)
	assert.ErrorIs(t, err, core.ErrConstructionFault)
	_, perr := fs.Packet()
	assert.ErrorIs(t, perr, core.ErrNotConstructed)
}

func TestRejectReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&ParseError{Err: core.ErrTruncatedPacket}, "truncated"},
		{&ParseError{Err: core.ErrFrameOverrun}, "overrun"},
		{&ParseError{Err: core.ErrUnknownFrameType}, "unknown_type"},
		{&ParseError{Err: core.ErrInvalidFrame}, "invalid_frame"},
		{&ParseError{Err: core.ErrSignatureMismatch}, "signature"},
		{&ParseError{Err: core.ErrTrailingData}, "trailing_data"},
		{errors.New("io"), "other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RejectReason(tt.err))
	}
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "SWDISCOVER", TypeName(TypeSwDiscover))
	assert.Equal(t, "CAPTURE", TypeName(TypeCapture))
	assert.Equal(t, "fstype(0x0042)", TypeName(0x42))
}
