package transport

import (
	"context"
	"errors"
	"fmt"
	"net"

	"firestige.xyz/nanoprobe/internal/frameset"
	"firestige.xyz/nanoprobe/internal/log"
	"firestige.xyz/nanoprobe/internal/metrics"
)

const defaultBufferSize = 65535

// Handler receives each accepted FrameSet along with the sender address. The
// handler owns the FrameSet.
type Handler func(source string, fs *frameset.FrameSet)

// Listener receives FrameSets over UDP and validates them with a Parser.
type Listener struct {
	conn    net.PacketConn
	parser  *frameset.Parser
	handler Handler
	bufSize int
}

// Listen binds addr. A bufSize of zero means 65535.
func Listen(addr string, parser *frameset.Parser, bufSize int, h Handler) (*Listener, error) {
	if parser == nil || h == nil {
		return nil, fmt.Errorf("listener needs a parser and a handler")
	}
	if bufSize <= 0 {
		bufSize = defaultBufferSize
	}
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return &Listener{conn: conn, parser: parser, handler: h, bufSize: bufSize}, nil
}

func (l *Listener) Addr() net.Addr { return l.conn.LocalAddr() }

// Serve reads datagrams until ctx is cancelled or the listener is closed.
// Both end the loop with a nil error.
func (l *Listener) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { l.conn.Close() })
	defer stop()

	log.GetLogger().WithField("addr", l.Addr().String()).Info("listener started")
	buf := make([]byte, l.bufSize)
	for {
		n, from, err := l.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				log.GetLogger().Info("listener stopped")
				return nil
			}
			return fmt.Errorf("listener read: %w", err)
		}
		l.handle(from.String(), buf[:n])
	}
}

// handle parses one datagram. ParseAll copies the bytes, so buf is reused.
func (l *Listener) handle(source string, datagram []byte) {
	sets, err := l.parser.ParseAll(source, datagram)
	if err != nil {
		metrics.ParseTotal.WithLabelValues(metrics.ResultRejected).Inc()
		metrics.ParseRejectsTotal.WithLabelValues(frameset.RejectReason(err)).Inc()
		return
	}
	for _, fs := range sets {
		metrics.ParseTotal.WithLabelValues(metrics.ResultAccepted).Inc()
		l.handler(source, fs)
	}
}

func (l *Listener) Close() error {
	return l.conn.Close()
}
