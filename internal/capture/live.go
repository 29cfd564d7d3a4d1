package capture

import (
	"fmt"
	"time"

	"golang.org/x/net/bpf"
)

// LiveOptions configures an AF_PACKET ring.
type LiveOptions struct {
	Device      string
	SnapLen     int
	BlockSize   int // bytes, rounded up to the frame size
	NumBlocks   int
	PollTimeout time.Duration
	Filter      []bpf.RawInstruction
}

const tpacketHdrLen = 52 // TPACKET3_HDRLEN, approximate

// ringLayout sizes the TPACKET_V3 ring. The frame holds the header and a full
// snapshot rounded up to whole pages, and blocks are whole frames, which
// keeps both multiples of the page size.
func ringLayout(snapLen, blockSize, numBlocks, pageSize int) (frameSize, block, blocks int, err error) {
	if snapLen <= 0 {
		return 0, 0, 0, fmt.Errorf("snap length must be positive, got %d", snapLen)
	}
	if pageSize <= 0 {
		return 0, 0, 0, fmt.Errorf("page size must be positive, got %d", pageSize)
	}
	if numBlocks <= 0 {
		return 0, 0, 0, fmt.Errorf("number of blocks must be positive, got %d", numBlocks)
	}

	frameSize = roundUp(tpacketHdrLen+snapLen, pageSize)
	if blockSize < frameSize {
		blockSize = frameSize
	}
	return frameSize, roundUp(blockSize, frameSize), numBlocks, nil
}

func roundUp(n, unit int) int {
	return (n + unit - 1) / unit * unit
}
