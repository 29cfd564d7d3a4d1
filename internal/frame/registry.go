package frame

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"firestige.xyz/nanoprobe/internal/core"
	"firestige.xyz/nanoprobe/internal/log"
	"firestige.xyz/nanoprobe/internal/tlv"
)

// Validator checks the record starting at off in a packet ending at end. The
// record header is already known to fit. Validators never modify buf.
type Validator func(buf []byte, off, end int) bool

// Decoder builds a typed Frame from a validated payload. value aliases the
// owning FrameSet's private packet copy and may be retained.
type Decoder func(typ uint16, value []byte) (Frame, error)

// Kind describes how the parser handles one type tag.
type Kind struct {
	Name     string
	Validate Validator
	Decode   Decoder
}

// Registry maps type tags to kinds. Writers copy the map and publish the new
// version atomically, so Lookup is lock-free and safe from any goroutine.
// Once sealed the registry refuses new kinds.
type Registry struct {
	mu     sync.Mutex
	kinds  atomic.Pointer[map[uint16]Kind]
	sealed atomic.Bool
}

func NewRegistry() *Registry {
	r := &Registry{}
	empty := make(map[uint16]Kind)
	r.kinds.Store(&empty)
	return r
}

// Register adds a kind for tag.
func (r *Registry) Register(tag uint16, k Kind) error {
	if k.Validate == nil || k.Decode == nil {
		return fmt.Errorf("%w: kind %q for type %d needs a validator and a decoder", core.ErrInvalidFrame, k.Name, tag)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed.Load() {
		return fmt.Errorf("%w: cannot register type %d", core.ErrRegistrySealed, tag)
	}
	cur := *r.kinds.Load()
	if old, ok := cur[tag]; ok {
		return fmt.Errorf("%w: type %d already registered as %q", core.ErrDuplicateFrameKind, tag, old.Name)
	}

	next := make(map[uint16]Kind, len(cur)+1)
	for t, kind := range cur {
		next[t] = kind
	}
	next[tag] = k
	r.kinds.Store(&next)

	log.GetLogger().WithField("type", tag).WithField("kind", k.Name).Trace("registered frame kind")
	return nil
}

// MustRegister is Register for init-time wiring; it panics on error.
func (r *Registry) MustRegister(tag uint16, k Kind) {
	if err := r.Register(tag, k); err != nil {
		panic(err)
	}
}

func (r *Registry) Lookup(tag uint16) (Kind, bool) {
	k, ok := (*r.kinds.Load())[tag]
	return k, ok
}

// Seal freezes the registry. Sealing twice is harmless.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed.Store(true)
	r.mu.Unlock()
}

func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}

// Types returns the registered tags in ascending order.
func (r *Registry) Types() []uint16 {
	cur := *r.kinds.Load()
	tags := make([]uint16, 0, len(cur))
	for t := range cur {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

var defaultRegistry = NewRegistry()

func init() {
	RegisterBuiltins(defaultRegistry)
}

// Default returns the process-wide registry holding the built-in kinds.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a kind to the default registry. It must be called before the
// first parser is created.
func Register(tag uint16, k Kind) error {
	return defaultRegistry.Register(tag, k)
}

// payload returns the value of the record at off, or false when it does not
// fit before end.
func payload(buf []byte, off, end int) ([]byte, bool) {
	v, err := tlv.Value(buf, off, end)
	return v, err == nil
}
