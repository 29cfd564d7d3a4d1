// Package capture reads raw link-layer frames from pcap files or live
// interfaces.
package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/nanoprobe/internal/core"
)

// Source yields captured frames until io.EOF.
type Source interface {
	Name() string
	ReadPacket() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
	Close() error
}

// Packet adapts a read into the core packet type.
func Packet(data []byte, ci gopacket.CaptureInfo, device string) core.CapturedPacket {
	return core.CapturedPacket{
		Data:       data,
		Timestamp:  ci.Timestamp,
		CaptureLen: uint32(ci.CaptureLength),
		OrigLen:    uint32(ci.Length),
		Device:     device,
	}
}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

type fileSource struct {
	name     string
	linkType layers.LinkType
	closed   atomic.Bool

	// mu guards file and reader; Close may race with a blocked reader.
	mu     sync.Mutex
	file   *os.File
	reader packetReader
}

// OpenFile opens a pcap or pcapng file.
func OpenFile(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file %s: %w", path, err)
	}

	br := bufio.NewReader(f)
	magic, err := br.Peek(4)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read capture file header %s: %w", path, err)
	}

	var r packetReader
	if isPcapNG(magic) {
		r, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		r, err = pcapgo.NewReader(br)
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to parse capture file %s: %w", path, err)
	}
	return &fileSource{name: filepath.Base(path), linkType: r.LinkType(), file: f, reader: r}, nil
}

// pcapng files start with a section header block.
func isPcapNG(magic []byte) bool {
	return len(magic) == 4 && magic[0] == 0x0a && magic[1] == 0x0d && magic[2] == 0x0d && magic[3] == 0x0a
}

func (s *fileSource) Name() string { return s.name }

func (s *fileSource) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	if s.closed.Load() {
		return nil, gopacket.CaptureInfo{}, io.EOF
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reader == nil {
		return nil, gopacket.CaptureInfo{}, io.EOF
	}
	data, ci, err := s.reader.ReadPacketData()
	if err != nil {
		if errors.Is(err, io.EOF) || s.closed.Load() {
			return nil, gopacket.CaptureInfo{}, io.EOF
		}
		return nil, gopacket.CaptureInfo{}, fmt.Errorf("failed to read packet: %w", err)
	}
	return data, ci, nil
}

func (s *fileSource) LinkType() layers.LinkType { return s.linkType }

// Close is safe to call concurrently with ReadPacket and more than once.
func (s *fileSource) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reader = nil
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
