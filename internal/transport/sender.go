// Package transport moves constructed FrameSets between agents and
// collectors.
package transport

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"

	"firestige.xyz/nanoprobe/internal/core"
)

// Sender delivers serialized FrameSets. Key groups related packets (usually
// host and interface) so a sender can keep them on one path.
type Sender interface {
	Name() string
	Send(ctx context.Context, pkt []byte, key string) error
	Close() error
}

// Factory builds a Sender from the transport options in the config file.
type Factory func(options map[string]any) (Sender, error)

type registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func (r *registry) register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		panic(fmt.Sprintf("transport: sender %q registered twice", name))
	}
	r.factories[name] = f
}

func (r *registry) get(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSenderNotFound, name)
	}
	return f, nil
}

func (r *registry) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

var senders = &registry{factories: make(map[string]Factory)}

func init() {
	Register("udp", newUDPFromOptions)
	Register("kafka", newKafkaFromOptions)
}

// Register makes a sender available by name. It panics on duplicates.
func Register(name string, f Factory) {
	senders.register(name, f)
}

// New builds the sender registered under typ.
func New(typ string, options map[string]any) (Sender, error) {
	f, err := senders.get(typ)
	if err != nil {
		return nil, err
	}
	return f(options)
}

// Names lists the registered sender types.
func Names() []string {
	return senders.names()
}

// decodeOptions fills out from a loosely typed option map, accepting
// durations as strings and numbers as either ints or floats.
func decodeOptions(options map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(options); err != nil {
		return fmt.Errorf("%w: transport options: %v", core.ErrConfigInvalid, err)
	}
	return nil
}

// writeDeadline maps a context deadline onto a socket deadline.
func writeDeadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Time{}
}
