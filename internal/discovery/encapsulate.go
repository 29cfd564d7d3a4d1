package discovery

import (
	"fmt"
	"net"

	"firestige.xyz/nanoprobe/internal/core"
	"firestige.xyz/nanoprobe/internal/frame"
	"firestige.xyz/nanoprobe/internal/frameset"
)

type encapOptions struct {
	nodeIP net.IP
	flags  uint16
}

// Option tunes Encapsulate.
type Option func(*encapOptions)

// WithNodeIP adds an IPADDR frame carrying the agent's address.
func WithNodeIP(ip net.IP) Option {
	return func(o *encapOptions) { o.nodeIP = ip }
}

// WithFlags sets the FrameSet flags word.
func WithFlags(flags uint16) Option {
	return func(o *encapOptions) { o.flags = flags }
}

// Encapsulate wraps a captured frame into an unconstructed FrameSet.
// Discovery traffic becomes a SWDISCOVER FrameSet tagged with its protocol;
// anything else is sent as a raw CAPTURE FrameSet.
func Encapsulate(pkt core.CapturedPacket, proto Protocol, hostname string, opts ...Option) (*frameset.FrameSet, error) {
	o := encapOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	fstype := frameset.TypeCapture
	if proto.IsDiscovery() {
		fstype = frameset.TypeSwDiscover
	}
	fs := frameset.New(fstype, o.flags)

	origLen := pkt.OrigLen
	if origLen < uint32(len(pkt.Data)) {
		origLen = uint32(len(pkt.Data))
	}

	var frames []frame.Frame
	add := func(f frame.Frame, err error) error {
		if err != nil {
			return err
		}
		frames = append(frames, f)
		return nil
	}

	if err := add(frame.NewCstring(frame.TagHostname, hostname)); err != nil {
		return nil, fmt.Errorf("hostname: %w", err)
	}
	if o.nodeIP != nil {
		if err := add(frame.NewIPAddr(frame.TagIPAddr, o.nodeIP)); err != nil {
			return nil, fmt.Errorf("node ip: %w", err)
		}
	}
	if pkt.Device != "" {
		if err := add(frame.NewCstring(frame.TagInterface, pkt.Device)); err != nil {
			return nil, fmt.Errorf("interface: %w", err)
		}
	}
	frames = append(frames, frame.NewWallClock(pkt.Timestamp))
	if err := add(frame.NewInt(frame.TagOrigLen, 4, uint64(origLen))); err != nil {
		return nil, err
	}
	if proto.IsDiscovery() {
		if err := add(frame.NewCstring(frame.TagDiscProto, proto.String())); err != nil {
			return nil, err
		}
	}
	if err := add(frame.NewBinary(frame.TagPktData, pkt.Data)); err != nil {
		return nil, fmt.Errorf("packet data: %w", err)
	}

	for _, f := range frames {
		if err := fs.Append(f); err != nil {
			return nil, err
		}
	}
	return fs, nil
}
