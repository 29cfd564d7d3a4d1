package frame

import (
	"encoding/hex"
	"fmt"

	"firestige.xyz/nanoprobe/internal/core"
	"firestige.xyz/nanoprobe/internal/signer"
	"firestige.xyz/nanoprobe/internal/tlv"
)

// SigFrame carries a FrameSet digest:
//
//	alg:u8 | digest
//
// The digest length is fixed by the algorithm.
type SigFrame struct {
	Base
}

func NewSig(alg signer.Algorithm, digest []byte) (*SigFrame, error) {
	if !alg.Known() {
		return nil, fmt.Errorf("%w: unknown signature algorithm %d", core.ErrInvalidFrame, alg)
	}
	if len(digest) != alg.Size() {
		return nil, fmt.Errorf("%w: %s digest must be %d bytes, got %d", core.ErrInvalidFrame, alg, alg.Size(), len(digest))
	}
	value := make([]byte, 1+len(digest))
	value[0] = byte(alg)
	copy(value[1:], digest)
	return &SigFrame{Base: wrap(TagSig, value)}, nil
}

// SigSize returns the wire footprint of a signature frame for alg.
func SigSize(alg signer.Algorithm) int {
	return tlv.Size(1 + alg.Size())
}

func (f *SigFrame) Algorithm() signer.Algorithm {
	return signer.Algorithm(f.bytes()[0])
}

// Digest returns a copy of the digest bytes.
func (f *SigFrame) Digest() []byte {
	return clone(f.bytes()[1:])
}

func (f *SigFrame) String() string {
	return fmt.Sprintf("%s %s:%s", nameOf(f.Type()), f.Algorithm(), hex.EncodeToString(f.bytes()[1:]))
}

func validSigPayload(p []byte) bool {
	if len(p) < 1 {
		return false
	}
	alg := signer.Algorithm(p[0])
	return alg.Known() && len(p)-1 == alg.Size()
}

func ValidateSig(buf []byte, off, end int) bool {
	p, ok := payload(buf, off, end)
	return ok && validSigPayload(p)
}

func DecodeSig(typ uint16, value []byte) (Frame, error) {
	if !validSigPayload(value) {
		return nil, fmt.Errorf("%w: malformed signature", core.ErrInvalidFrame)
	}
	return &SigFrame{Base: wrap(typ, value)}, nil
}
