//go:build linux

package capture

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/nanoprobe/internal/log"
)

type liveSource struct {
	device string
	handle *afpacket.TPacket
	closed atomic.Bool
}

// OpenLive opens a TPACKET_V3 ring on opts.Device.
func OpenLive(opts LiveOptions) (Source, error) {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 100 * time.Millisecond
	}
	frameSize, blockSize, numBlocks, err := ringLayout(opts.SnapLen, opts.BlockSize, opts.NumBlocks, os.Getpagesize())
	if err != nil {
		return nil, fmt.Errorf("failed to size ring for %s: %w", opts.Device, err)
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"device":     opts.Device,
		"frame_size": frameSize,
		"block_size": blockSize,
		"num_blocks": numBlocks,
		"snap_len":   opts.SnapLen,
	}).Info("tpacket configuration")

	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(opts.Device),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(opts.PollTimeout),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create TPacket on %s: %w", opts.Device, err)
	}

	if len(opts.Filter) > 0 {
		if err := tp.SetBPF(opts.Filter); err != nil {
			tp.Close()
			return nil, fmt.Errorf("failed to set BPF filter on %s: %w", opts.Device, err)
		}
		log.GetLogger().WithField("device", opts.Device).WithField("instructions", len(opts.Filter)).Info("BPF filter set")
	}

	return &liveSource{device: opts.Device, handle: tp}, nil
}

func (s *liveSource) Name() string { return s.device }

// ReadPacket returns a copy of the next frame. Poll timeouts are retried
// until the source is closed, which reads as io.EOF.
func (s *liveSource) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	for {
		if s.closed.Load() {
			return nil, gopacket.CaptureInfo{}, io.EOF
		}
		data, ci, err := s.handle.ReadPacketData()
		if err == afpacket.ErrTimeout || err == afpacket.ErrPoll {
			continue
		}
		if err != nil && s.closed.Load() {
			return nil, gopacket.CaptureInfo{}, io.EOF
		}
		return data, ci, err
	}
}

func (s *liveSource) LinkType() layers.LinkType { return layers.LinkTypeEthernet }

func (s *liveSource) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.handle.Close()
	}
	return nil
}
