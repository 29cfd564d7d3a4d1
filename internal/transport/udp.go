package transport

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/serialx/hashring"

	"firestige.xyz/nanoprobe/internal/core"
	"firestige.xyz/nanoprobe/internal/log"
)

// UDPOptions configures the udp sender.
//
//	transport:
//	  type: udp
//	  options:
//	    collectors: ["10.0.0.1:1984", "10.0.0.2:1984"]
type UDPOptions struct {
	Collectors []string `mapstructure:"collectors"`
}

// UDPSender sends each FrameSet as one datagram. The collector is chosen by
// consistent hashing on the key, so adding a collector only moves a share of
// the keys.
type UDPSender struct {
	ring  *hashring.HashRing
	conns map[string]*net.UDPConn

	sent   atomic.Uint64
	errors atomic.Uint64
}

func newUDPFromOptions(options map[string]any) (Sender, error) {
	var opts UDPOptions
	if err := decodeOptions(options, &opts); err != nil {
		return nil, err
	}
	return NewUDP(opts)
}

// NewUDP resolves and dials every collector up front.
func NewUDP(opts UDPOptions) (*UDPSender, error) {
	if len(opts.Collectors) == 0 {
		return nil, fmt.Errorf("%w: udp sender needs at least one collector", core.ErrConfigInvalid)
	}

	s := &UDPSender{conns: make(map[string]*net.UDPConn, len(opts.Collectors))}
	for _, c := range opts.Collectors {
		if _, dup := s.conns[c]; dup {
			s.Close()
			return nil, fmt.Errorf("%w: duplicate collector %s", core.ErrConfigInvalid, c)
		}
		addr, err := net.ResolveUDPAddr("udp", c)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("udp sender: resolve %q: %w", c, err)
		}
		conn, err := net.DialUDP("udp", nil, addr)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("udp sender: dial %q: %w", c, err)
		}
		s.conns[c] = conn
	}
	s.ring = hashring.New(opts.Collectors)

	log.GetLogger().WithField("collectors", opts.Collectors).Info("udp sender ready")
	return s, nil
}

func (s *UDPSender) Name() string { return "udp" }

// Collector returns the collector address key maps to.
func (s *UDPSender) Collector(key string) string {
	node, _ := s.ring.GetNode(key)
	return node
}

func (s *UDPSender) Send(ctx context.Context, pkt []byte, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, ok := s.conns[s.Collector(key)]
	if !ok {
		s.errors.Add(1)
		return fmt.Errorf("udp sender: no collector for key %q", key)
	}
	if err := conn.SetWriteDeadline(writeDeadline(ctx)); err != nil {
		s.errors.Add(1)
		return err
	}
	if _, err := conn.Write(pkt); err != nil {
		s.errors.Add(1)
		return fmt.Errorf("udp sender: send to %s: %w", conn.RemoteAddr(), err)
	}
	s.sent.Add(1)
	return nil
}

func (s *UDPSender) Close() error {
	for _, c := range s.conns {
		_ = c.Close()
	}
	if s.ring != nil {
		log.GetLogger().WithFields(map[string]interface{}{
			"sent":   s.sent.Load(),
			"errors": s.errors.Load(),
		}).Info("udp sender stopped")
	}
	s.conns = nil
	return nil
}
