package discovery

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/patrickmn/go-cache"
)

// Suppressor remembers recently forwarded discovery frames. Switches resend
// LLDP and CDP on a fixed timer, so an unchanged advertisement from the same
// interface only needs to be forwarded once per TTL.
type Suppressor struct {
	cache *cache.Cache
}

func NewSuppressor(ttl time.Duration) *Suppressor {
	return &Suppressor{cache: cache.New(ttl, 2*ttl)}
}

// Seen records the frame and reports whether an identical one from device
// was already recorded within the TTL.
func (s *Suppressor) Seen(device string, data []byte) bool {
	sum := sha256.Sum256(data)
	key := device + "/" + hex.EncodeToString(sum[:])
	return s.cache.Add(key, struct{}{}, cache.DefaultExpiration) != nil
}

// Len returns the number of remembered frames, including expired ones not
// yet evicted.
func (s *Suppressor) Len() int {
	return s.cache.ItemCount()
}
