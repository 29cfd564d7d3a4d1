// Package signer provides the signing primitives a FrameSet is sealed with.
//
// A Signer maps a byte range to a fixed-size digest. Unkeyed algorithms act as
// integrity checksums; keyed algorithms authenticate the sender.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"

	"firestige.xyz/nanoprobe/internal/core"
)

// Algorithm identifies a digest algorithm on the wire (first byte of a SIG
// frame payload).
type Algorithm uint8

const (
	SHA256       Algorithm = 1
	BLAKE2s256   Algorithm = 2
	BLAKE2b256   Algorithm = 3
	HMACSHA256   Algorithm = 4
	KeyedBLAKE2s Algorithm = 5
)

type algorithmInfo struct {
	name  string
	size  int
	keyed bool
}

var algorithms = map[Algorithm]algorithmInfo{
	SHA256:       {"sha256", sha256.Size, false},
	BLAKE2s256:   {"blake2s", blake2s.Size, false},
	BLAKE2b256:   {"blake2b", blake2b.Size256, false},
	HMACSHA256:   {"hmac-sha256", sha256.Size, true},
	KeyedBLAKE2s: {"blake2s-keyed", blake2s.Size, true},
}

// Known reports whether a is a supported algorithm.
func (a Algorithm) Known() bool {
	_, ok := algorithms[a]
	return ok
}

// Size returns the digest size in bytes, or 0 for unknown algorithms.
func (a Algorithm) Size() int {
	return algorithms[a].size
}

// Keyed reports whether the algorithm needs a shared key.
func (a Algorithm) Keyed() bool {
	return algorithms[a].keyed
}

func (a Algorithm) String() string {
	if info, ok := algorithms[a]; ok {
		return info.name
	}
	return fmt.Sprintf("alg(%d)", uint8(a))
}

// ParseAlgorithm resolves a configuration name such as "sha256" or
// "hmac-sha256".
func ParseAlgorithm(name string) (Algorithm, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for alg, info := range algorithms {
		if info.name == name {
			return alg, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown signing algorithm %q", core.ErrConfigInvalid, name)
}

// Signer computes a digest over one or more byte ranges, in order.
// Implementations are safe for concurrent use.
type Signer interface {
	Algorithm() Algorithm
	Size() int
	Sign(chunks ...[]byte) []byte
}

type hashSigner struct {
	alg     Algorithm
	newHash func() hash.Hash
}

// New returns a Signer for alg. Keyed algorithms require a non-empty key;
// unkeyed algorithms refuse one so a misconfigured key is never silently
// ignored.
func New(alg Algorithm, key []byte) (Signer, error) {
	info, ok := algorithms[alg]
	if !ok {
		return nil, fmt.Errorf("%w: unknown signing algorithm %d", core.ErrConfigInvalid, alg)
	}
	if info.keyed && len(key) == 0 {
		return nil, fmt.Errorf("%w: %s requires a key", core.ErrConfigInvalid, info.name)
	}
	if !info.keyed && len(key) != 0 {
		return nil, fmt.Errorf("%w: %s does not take a key", core.ErrConfigInvalid, info.name)
	}

	key = append([]byte(nil), key...)
	s := &hashSigner{alg: alg}
	switch alg {
	case SHA256:
		s.newHash = sha256.New
	case BLAKE2s256:
		s.newHash = mustHash(blake2s.New256, nil)
	case BLAKE2b256:
		s.newHash = mustHash(blake2b.New256, nil)
	case HMACSHA256:
		s.newHash = func() hash.Hash { return hmac.New(sha256.New, key) }
	case KeyedBLAKE2s:
		if len(key) > blake2s.Size {
			return nil, fmt.Errorf("%w: blake2s key longer than %d bytes", core.ErrConfigInvalid, blake2s.Size)
		}
		s.newHash = mustHash(blake2s.New256, key)
	}
	return s, nil
}

// ForAlgorithm returns an unkeyed Signer able to recompute digests carried in
// received packets. Keyed algorithms cannot be verified without the shared key
// and are refused.
func ForAlgorithm(alg Algorithm) (Signer, error) {
	if alg.Keyed() {
		return nil, fmt.Errorf("%w: %s needs a shared key", core.ErrConfigInvalid, alg)
	}
	return New(alg, nil)
}

// mustHash adapts a keyed constructor. Key sizes are validated before this is
// called, so a constructor error is a programming fault.
func mustHash(ctor func([]byte) (hash.Hash, error), key []byte) func() hash.Hash {
	return func() hash.Hash {
		h, err := ctor(key)
		if err != nil {
			panic(fmt.Sprintf("signer: hash constructor rejected validated key: %v", err))
		}
		return h
	}
}

func (s *hashSigner) Algorithm() Algorithm { return s.alg }

func (s *hashSigner) Size() int { return s.alg.Size() }

func (s *hashSigner) Sign(chunks ...[]byte) []byte {
	h := s.newHash()
	for _, c := range chunks {
		h.Write(c)
	}
	return h.Sum(nil)
}

// Verify recomputes the digest over chunks and compares it with digest in
// constant time.
func Verify(s Signer, digest []byte, chunks ...[]byte) bool {
	if len(digest) != s.Size() {
		return false
	}
	return hmac.Equal(s.Sign(chunks...), digest)
}
