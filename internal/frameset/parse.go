package frameset

import (
	"errors"
	"fmt"

	"firestige.xyz/nanoprobe/internal/core"
	"firestige.xyz/nanoprobe/internal/frame"
	"firestige.xyz/nanoprobe/internal/log"
	"firestige.xyz/nanoprobe/internal/signer"
	"firestige.xyz/nanoprobe/internal/tlv"
)

// ParseError describes why a packet was rejected.
type ParseError struct {
	Source string
	Offset int
	Type   uint16
	Err    error
}

func (e *ParseError) Error() string {
	src := e.Source
	if src == "" {
		src = "-"
	}
	return fmt.Sprintf("frameset from %s rejected at offset %d (type %d): %v", src, e.Offset, e.Type, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

type Option func(*Parser)

// WithRegistry replaces the default frame registry. The parser seals it.
func WithRegistry(r *frame.Registry) Option {
	return func(p *Parser) { p.registry = r }
}

// WithSigner requires every FrameSet to carry a valid signature by s.
func WithSigner(s signer.Signer) Option {
	return func(p *Parser) { p.signer = s }
}

// WithSkipUnknown drops frames with unregistered tags instead of rejecting
// the FrameSet.
func WithSkipUnknown(skip bool) Option {
	return func(p *Parser) { p.skipUnknown = skip }
}

// Parser turns untrusted packets into FrameSets. A packet is accepted only
// when every byte of it validates; otherwise nothing is exposed. Parsers are
// safe for concurrent use.
type Parser struct {
	registry    *frame.Registry
	signer      signer.Signer
	skipUnknown bool
}

func NewParser(opts ...Option) *Parser {
	p := &Parser{registry: frame.Default()}
	for _, opt := range opts {
		opt(p)
	}
	p.registry.Seal()
	return p
}

// Parse parses a packet holding exactly one FrameSet.
func (p *Parser) Parse(pkt []byte) (*FrameSet, error) {
	return p.ParseFrom("", pkt)
}

// ParseFrom is Parse with the packet origin recorded in errors and logs.
func (p *Parser) ParseFrom(source string, pkt []byte) (*FrameSet, error) {
	buf := append([]byte(nil), pkt...)
	fs, next, err := p.parseOne(source, buf, 0)
	if err == nil && next != len(buf) {
		err = &ParseError{
			Source: source,
			Offset: next,
			Err:    fmt.Errorf("%w: %d bytes after the FrameSet", core.ErrTrailingData, len(buf)-next),
		}
	}
	if err != nil {
		p.reject(err)
		return nil, err
	}
	return fs, nil
}

// ParseAll parses a datagram carrying one or more FrameSets back to back.
// Either every FrameSet is accepted or none is returned.
func (p *Parser) ParseAll(source string, pkt []byte) ([]*FrameSet, error) {
	buf := append([]byte(nil), pkt...)
	if len(buf) == 0 {
		err := &ParseError{Source: source, Err: fmt.Errorf("%w: empty datagram", core.ErrTruncatedPacket)}
		p.reject(err)
		return nil, err
	}

	var sets []*FrameSet
	for off := 0; off < len(buf); {
		fs, next, err := p.parseOne(source, buf, off)
		if err != nil {
			p.reject(err)
			return nil, err
		}
		sets = append(sets, fs)
		off = next
	}
	return sets, nil
}

func (p *Parser) reject(err error) {
	l := log.GetLogger()
	if !l.IsDebugEnabled() {
		return
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		l = l.WithField("source", pe.Source).WithField("offset", pe.Offset)
	}
	l.WithField("reason", RejectReason(err)).WithError(err).Debug("frameset rejected")
}

// parseOne parses the FrameSet whose header starts at off and returns the
// offset just past it. buf is owned by the caller and retained by the result.
func (p *Parser) parseOne(source string, buf []byte, off int) (*FrameSet, int, error) {
	fail := func(at int, typ uint16, err error) (*FrameSet, int, error) {
		return nil, 0, &ParseError{Source: source, Offset: at, Type: typ, Err: err}
	}

	h, err := readHeader(buf, off, len(buf))
	if err != nil {
		return fail(off, 0, fmt.Errorf("%w: frameset header: %v", core.ErrTruncatedPacket, err))
	}
	bodyStart := off + HeaderLen
	if uint64(h.length) > uint64(len(buf)-bodyStart) {
		if p.lengthTampered(buf, off) {
			return fail(off, 0, fmt.Errorf("%w: frameset length field altered", core.ErrSignatureMismatch))
		}
		return fail(off, 0, fmt.Errorf("%w: frameset declares %d bytes, %d remain",
			core.ErrFrameOverrun, h.length, len(buf)-bodyStart))
	}
	end := bodyStart + int(h.length)

	fs := &FrameSet{fstype: h.fstype, flags: h.flags, state: constructed}
	signed := false
	for pos := bodyStart; pos < end; {
		typ, value, next, err := tlv.Next(buf, pos, end)
		if err != nil {
			if pos == bodyStart && p.lengthTampered(buf, off) {
				return fail(off, 0, fmt.Errorf("%w: frameset length field altered", core.ErrSignatureMismatch))
			}
			return fail(pos, typ, err)
		}

		if typ == frame.TagSig && pos != bodyStart {
			return fail(pos, typ, fmt.Errorf("%w: signature frame is not first", core.ErrInvalidFrame))
		}
		if pos == bodyStart && typ != frame.TagSig && p.signer != nil {
			return fail(pos, typ, fmt.Errorf("%w: frameset is not signed", core.ErrSignatureMismatch))
		}

		kind, ok := p.registry.Lookup(typ)
		if !ok {
			if p.skipUnknown {
				fs.skipped++
				pos = next
				continue
			}
			return fail(pos, typ, fmt.Errorf("%w: type %d", core.ErrUnknownFrameType, typ))
		}
		if !kind.Validate(buf, pos, end) {
			return fail(pos, typ, fmt.Errorf("%w: %s failed validation", core.ErrInvalidFrame, kind.Name))
		}
		f, err := kind.Decode(typ, value)
		if err != nil {
			if !errors.Is(err, core.ErrInvalidFrame) {
				err = fmt.Errorf("%w: %s: %v", core.ErrInvalidFrame, kind.Name, err)
			}
			return fail(pos, typ, err)
		}

		if typ == frame.TagSig {
			sig, ok := f.(*frame.SigFrame)
			if !ok {
				return fail(pos, typ, fmt.Errorf("%w: signature kind decoded to %T", core.ErrInvalidFrame, f))
			}
			if err := p.verify(sig, signedRanges(buf, off, next, end)); err != nil {
				return fail(pos, typ, err)
			}
			signed = true
		}

		fs.frames = append(fs.frames, f)
		pos = next
	}

	if p.signer != nil && !signed {
		return fail(off, 0, fmt.Errorf("%w: frameset is not signed", core.ErrSignatureMismatch))
	}
	fs.packet = buf[off:end:end]
	return fs, end, nil
}

// lengthTampered reports whether the FrameSet at off opens with a signature
// that verifies once the length field is replaced by the number of body bytes
// actually present. Only a damaged length field passes that test; a truncated
// datagram does not.
func (p *Parser) lengthTampered(buf []byte, off int) bool {
	bodyStart := off + HeaderLen
	typ, value, sigEnd, err := tlv.Next(buf, bodyStart, len(buf))
	if err != nil || typ != frame.TagSig {
		return false
	}
	kind, ok := p.registry.Lookup(typ)
	if !ok || !kind.Validate(buf, bodyStart, len(buf)) {
		return false
	}
	f, err := kind.Decode(typ, value)
	if err != nil {
		return false
	}
	sig, ok := f.(*frame.SigFrame)
	if !ok {
		return false
	}

	hdr := append([]byte(nil), buf[off:bodyStart]...)
	if err := tlv.SetU24(hdr, lengthOff, uint32(len(buf)-bodyStart), HeaderLen); err != nil {
		return false
	}
	return p.verify(sig, [][]byte{hdr, buf[sigEnd:]}) == nil
}

// verify checks the digest before anything after the signature is trusted.
func (p *Parser) verify(sig *frame.SigFrame, ranges [][]byte) error {
	alg := sig.Algorithm()
	s := p.signer
	switch {
	case s != nil && s.Algorithm() != alg:
		return fmt.Errorf("%w: signed with %s, expected %s", core.ErrSignatureMismatch, alg, s.Algorithm())
	case s == nil && alg.Keyed():
		return fmt.Errorf("%w: %s signature and no key configured", core.ErrSignatureMismatch, alg)
	case s == nil:
		var err error
		if s, err = signer.ForAlgorithm(alg); err != nil {
			return fmt.Errorf("%w: %v", core.ErrSignatureMismatch, err)
		}
	}
	if !signer.Verify(s, sig.Digest(), ranges...) {
		return fmt.Errorf("%w: %s digest does not match", core.ErrSignatureMismatch, alg)
	}
	return nil
}

// RejectReason maps a parse error to a short, stable label for metrics.
func RejectReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, core.ErrTruncatedPacket):
		return "truncated"
	case errors.Is(err, core.ErrFrameOverrun):
		return "overrun"
	case errors.Is(err, core.ErrUnknownFrameType):
		return "unknown_type"
	case errors.Is(err, core.ErrSignatureMismatch):
		return "signature"
	case errors.Is(err, core.ErrInvalidFrame):
		return "invalid_frame"
	case errors.Is(err, core.ErrTrailingData):
		return "trailing_data"
	case errors.Is(err, core.ErrOutOfBounds):
		return "out_of_bounds"
	}
	return "other"
}
