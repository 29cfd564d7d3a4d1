// Package frameset groups Frames into signed packets and parses packets back
// into validated FrameSets.
//
// A FrameSet moves through three states. It starts Unconstructed, where
// frames may be added. Construct serializes and optionally signs it, after
// which it is Constructed and immutable. Release drops the packet and the
// frames. Parsed FrameSets are Constructed from the start.
package frameset

import (
	"fmt"
	"io"

	"firestige.xyz/nanoprobe/internal/core"
	"firestige.xyz/nanoprobe/internal/frame"
	"firestige.xyz/nanoprobe/internal/log"
	"firestige.xyz/nanoprobe/internal/signer"
)

type state uint8

const (
	unconstructed state = iota
	constructed
	released
)

type FrameSet struct {
	fstype  uint16
	flags   uint16
	frames  []frame.Frame
	packet  []byte
	skipped int
	state   state
}

func New(fstype, flags uint16) *FrameSet {
	return &FrameSet{fstype: fstype, flags: flags}
}

// usable reports the error an accessor must return, if any.
func (fs *FrameSet) usable() error {
	if fs == nil {
		return core.ErrRejected
	}
	if fs.state == released {
		return core.ErrReleased
	}
	return nil
}

// mutable additionally refuses Constructed FrameSets.
func (fs *FrameSet) mutable() error {
	if err := fs.usable(); err != nil {
		return err
	}
	if fs.state == constructed {
		return core.ErrAlreadyConstructed
	}
	return nil
}

func (fs *FrameSet) Type() (uint16, error) {
	if err := fs.usable(); err != nil {
		return 0, err
	}
	return fs.fstype, nil
}

func (fs *FrameSet) Flags() (uint16, error) {
	if err := fs.usable(); err != nil {
		return 0, err
	}
	return fs.flags, nil
}

// Frames returns the frames in wire order. The slice is a copy; the frames
// themselves are immutable.
func (fs *FrameSet) Frames() ([]frame.Frame, error) {
	if err := fs.usable(); err != nil {
		return nil, err
	}
	return append([]frame.Frame(nil), fs.frames...), nil
}

// First returns the first frame with the given tag, or nil.
func (fs *FrameSet) First(tag uint16) frame.Frame {
	if fs.usable() != nil {
		return nil
	}
	for _, f := range fs.frames {
		if f.Type() == tag {
			return f
		}
	}
	return nil
}

// Signature returns the leading signature frame, or nil when unsigned.
func (fs *FrameSet) Signature() *frame.SigFrame {
	if fs.usable() != nil || len(fs.frames) == 0 {
		return nil
	}
	sig, _ := fs.frames[0].(*frame.SigFrame)
	return sig
}

// Skipped returns how many unknown frames the parser dropped.
func (fs *FrameSet) Skipped() int {
	if fs == nil {
		return 0
	}
	return fs.skipped
}

func (fs *FrameSet) Append(f frame.Frame) error {
	if err := fs.mutable(); err != nil {
		return err
	}
	if f == nil {
		return fmt.Errorf("%w: nil frame", core.ErrInvalidFrame)
	}
	fs.frames = append(fs.frames, f)
	return nil
}

func (fs *FrameSet) Prepend(f frame.Frame) error {
	if err := fs.mutable(); err != nil {
		return err
	}
	if f == nil {
		return fmt.Errorf("%w: nil frame", core.ErrInvalidFrame)
	}
	fs.frames = append([]frame.Frame{f}, fs.frames...)
	return nil
}

// Construct serializes the frames into a freshly allocated packet. When s is
// not nil a signature frame over the type, the flags and every byte after the
// signature is placed first.
func (fs *FrameSet) Construct(s signer.Signer) error {
	if err := fs.mutable(); err != nil {
		return err
	}

	body := 0
	for i, f := range fs.frames {
		if f.Type() == frame.TagSig {
			return fmt.Errorf("%w: frame %d is a caller-supplied signature", core.ErrInvalidFrame, i)
		}
		body += f.Size()
	}
	sigLen := 0
	if s != nil {
		sigLen = frame.SigSize(s.Algorithm())
	}
	if sigLen+body > MaxBodyLen {
		return fmt.Errorf("%w: body of %d bytes exceeds %d", core.ErrPacketTooLarge, sigLen+body, MaxBodyLen)
	}

	buf := make([]byte, HeaderLen+sigLen+body)
	h := header{fstype: fs.fstype, length: uint32(sigLen + body), flags: fs.flags}
	if err := writeHeader(buf, 0, h, len(buf)); err != nil {
		return fs.fault(err)
	}

	off := HeaderLen + sigLen
	for i, f := range fs.frames {
		slot := off + f.Size()
		n, err := f.MarshalTo(buf, off, slot)
		if err != nil {
			return fs.fault(fmt.Errorf("frame %d (type %d): %w", i, f.Type(), err))
		}
		if n != f.Size() {
			return fs.fault(fmt.Errorf("frame %d (type %d) wrote %d of %d bytes", i, f.Type(), n, f.Size()))
		}
		off = slot
	}

	frames := fs.frames
	if s != nil {
		sigEnd := HeaderLen + sigLen
		digest := s.Sign(signedRanges(buf, 0, sigEnd, len(buf))...)
		sig, err := frame.NewSig(s.Algorithm(), digest)
		if err != nil {
			return fs.fault(err)
		}
		if _, err := sig.MarshalTo(buf, HeaderLen, sigEnd); err != nil {
			return fs.fault(err)
		}
		frames = append([]frame.Frame{sig}, fs.frames...)
	}

	fs.frames = frames
	fs.packet = buf
	fs.state = constructed
	return nil
}

// fault reports a construction failure that sizing should have made
// impossible.
func (fs *FrameSet) fault(err error) error {
	log.GetLogger().WithError(err).WithField("fstype", TypeName(fs.fstype)).Error("frameset construction fault")
	return fmt.Errorf("%w: %v", core.ErrConstructionFault, err)
}

// Packet returns a copy of the wire bytes.
func (fs *FrameSet) Packet() ([]byte, error) {
	if err := fs.usable(); err != nil {
		return nil, err
	}
	if fs.state != constructed {
		return nil, core.ErrNotConstructed
	}
	return append([]byte(nil), fs.packet...), nil
}

// Len returns the packet length, or 0 before construction.
func (fs *FrameSet) Len() int {
	if fs.usable() != nil {
		return 0
	}
	return len(fs.packet)
}

// WriteTo streams the packet to w.
func (fs *FrameSet) WriteTo(w io.Writer) (int64, error) {
	if err := fs.usable(); err != nil {
		return 0, err
	}
	if fs.state != constructed {
		return 0, core.ErrNotConstructed
	}
	n, err := w.Write(fs.packet)
	return int64(n), err
}

// Release drops the packet and the frames. Every later call, Release
// included, returns core.ErrReleased.
func (fs *FrameSet) Release() error {
	if err := fs.usable(); err != nil {
		return err
	}
	fs.frames = nil
	fs.packet = nil
	fs.state = released
	return nil
}

func (fs *FrameSet) String() string {
	if err := fs.usable(); err != nil {
		return fmt.Sprintf("FrameSet(%v)", err)
	}
	return fmt.Sprintf("%s flags=0x%04x frames=%d bytes=%d", TypeName(fs.fstype), fs.flags, len(fs.frames), len(fs.packet))
}
