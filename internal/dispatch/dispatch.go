// Package dispatch drives the agent's send path: read captured frames,
// wrap them into signed FrameSets and hand them to a transport.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"firestige.xyz/nanoprobe/internal/capture"
	"firestige.xyz/nanoprobe/internal/core"
	"firestige.xyz/nanoprobe/internal/discovery"
	"firestige.xyz/nanoprobe/internal/frameset"
	"firestige.xyz/nanoprobe/internal/log"
	"firestige.xyz/nanoprobe/internal/metrics"
	"firestige.xyz/nanoprobe/internal/signer"
	"firestige.xyz/nanoprobe/internal/transport"
)

const defaultQueueSize = 1024

// Config contains dispatcher settings.
type Config struct {
	Hostname      string
	NodeIP        net.IP
	Signer        signer.Signer // nil sends unsigned FrameSets
	DiscoveryOnly bool
	DedupTTL      time.Duration // zero disables duplicate suppression
	Workers       int
	QueueSize     int
	MaxPackets    int // zero means unlimited
}

type Dispatcher struct {
	src        capture.Source
	sender     transport.Sender
	cfg        Config
	suppressor *discovery.Suppressor
	stats      Stats
}

func New(src capture.Source, sender transport.Sender, cfg Config) (*Dispatcher, error) {
	if src == nil || sender == nil {
		return nil, fmt.Errorf("dispatcher needs a source and a sender")
	}
	if cfg.Hostname == "" {
		return nil, fmt.Errorf("%w: dispatcher needs a hostname", core.ErrConfigInvalid)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}

	d := &Dispatcher{src: src, sender: sender, cfg: cfg}
	if cfg.DedupTTL > 0 {
		d.suppressor = discovery.NewSuppressor(cfg.DedupTTL)
	}
	return d, nil
}

func (d *Dispatcher) Stats() Snapshot { return d.stats.Snapshot() }

// Run forwards packets until the source is exhausted, MaxPackets have been
// read, or ctx is cancelled. Exhaustion drains the queue and returns nil;
// cancellation closes the source and returns ctx.Err().
func (d *Dispatcher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() { d.src.Close() })
	defer stop()

	queue := make(chan core.CapturedPacket, d.cfg.QueueSize)

	log.GetLogger().WithFields(map[string]interface{}{
		"source":  d.src.Name(),
		"sender":  d.sender.Name(),
		"workers": d.cfg.Workers,
	}).Info("dispatcher starting")

	g.Go(func() error {
		defer close(queue)
		return d.readLoop(gctx, queue)
	})
	for i := 0; i < d.cfg.Workers; i++ {
		g.Go(func() error {
			for pkt := range queue {
				if gctx.Err() != nil {
					continue
				}
				d.process(gctx, pkt)
			}
			return nil
		})
	}

	err := g.Wait()
	s := d.Stats()
	log.GetLogger().WithFields(map[string]interface{}{
		"read":       s.Read,
		"sent":       s.Sent,
		"duplicates": s.Duplicates,
		"filtered":   s.Filtered,
		"errors":     s.SendErrors,
	}).Info("dispatcher stopped")

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (d *Dispatcher) readLoop(ctx context.Context, queue chan<- core.CapturedPacket) error {
	for n := 0; d.cfg.MaxPackets == 0 || n < d.cfg.MaxPackets; n++ {
		data, ci, err := d.src.ReadPacket()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read from %s: %w", d.src.Name(), err)
		}
		d.stats.Read.Add(1)

		select {
		case queue <- capture.Packet(data, ci, d.src.Name()):
		case <-ctx.Done():
			return nil
		}
	}
	log.GetLogger().WithField("max_packets", d.cfg.MaxPackets).Info("packet limit reached")
	return nil
}

// process runs one packet through classify, filter, dedup, encapsulate,
// construct and send. Failures are counted and logged, never fatal.
func (d *Dispatcher) process(ctx context.Context, pkt core.CapturedPacket) {
	proto := discovery.Classify(pkt.Data)
	metrics.CapturePacketsTotal.WithLabelValues(pkt.Device, proto.String()).Inc()

	if d.cfg.DiscoveryOnly && !proto.IsDiscovery() {
		d.stats.Filtered.Add(1)
		return
	}
	if d.suppressor != nil && proto.IsDiscovery() && d.suppressor.Seen(pkt.Device, pkt.Data) {
		d.stats.Duplicates.Add(1)
		metrics.DiscoveryDuplicatesTotal.WithLabelValues(pkt.Device, proto.String()).Inc()
		return
	}

	fs, err := discovery.Encapsulate(pkt, proto, d.cfg.Hostname, discovery.WithNodeIP(d.cfg.NodeIP))
	if err != nil {
		d.stats.Invalid.Add(1)
		log.GetLogger().WithError(err).WithField("device", pkt.Device).Debug("packet not encapsulated")
		return
	}
	defer fs.Release()

	if err := fs.Construct(d.cfg.Signer); err != nil {
		d.stats.Invalid.Add(1)
		log.GetLogger().WithError(err).Error("frameset construction failed")
		return
	}
	out, err := fs.Packet()
	if err != nil {
		d.stats.Invalid.Add(1)
		return
	}
	typ, _ := fs.Type()
	fstype := frameset.TypeName(typ)
	metrics.FrameSetsConstructedTotal.WithLabelValues(fstype).Inc()
	metrics.FrameSetBytes.WithLabelValues(fstype).Observe(float64(len(out)))

	if err := d.sender.Send(ctx, out, d.cfg.Hostname+"/"+pkt.Device); err != nil {
		d.stats.SendErrors.Add(1)
		metrics.SendErrorsTotal.WithLabelValues(d.sender.Name()).Inc()
		log.GetLogger().WithError(err).WithField("sender", d.sender.Name()).Warn("send failed")
		return
	}
	d.stats.Sent.Add(1)
}
