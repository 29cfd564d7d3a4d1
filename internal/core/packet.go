// Package core defines core data structures with zero external dependencies.
package core

import "time"

// CapturedPacket is one buffer handed over by the capture layer.
type CapturedPacket struct {
	Data       []byte    // Captured bytes, owned by the receiver
	Timestamp  time.Time // Capture timestamp (kernel timestamp preferred)
	CaptureLen uint32    // Bytes actually captured
	OrigLen    uint32    // Length on the wire
	Device     string    // Capture device, used for diagnostics and encapsulation
}

// Truncated reports whether the capture is shorter than the original frame.
func (p CapturedPacket) Truncated() bool {
	return p.OrigLen > p.CaptureLen
}
