// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Callers match them with errors.Is; producers wrap them with
// fmt.Errorf("%w: ...") to add offsets and type tags.
var (
	// TLV primitive errors
	ErrOutOfBounds   = errors.New("nanoprobe: access out of bounds")
	ErrValueOverflow = errors.New("nanoprobe: value does not fit field width")

	// FrameSet parse errors
	ErrTruncatedPacket  = errors.New("nanoprobe: truncated packet")
	ErrFrameOverrun     = errors.New("nanoprobe: frame length overruns packet")
	ErrUnknownFrameType = errors.New("nanoprobe: unknown frame type")
	ErrInvalidFrame     = errors.New("nanoprobe: invalid frame")
	ErrTrailingData     = errors.New("nanoprobe: trailing data after frameset")
	ErrRejected         = errors.New("nanoprobe: frameset rejected")

	// Signature errors
	ErrSignatureMismatch = errors.New("nanoprobe: signature mismatch")

	// FrameSet lifecycle errors
	ErrAlreadyConstructed = errors.New("nanoprobe: frameset already constructed")
	ErrNotConstructed     = errors.New("nanoprobe: frameset not constructed")
	ErrReleased           = errors.New("nanoprobe: frameset released")
	ErrPacketTooLarge     = errors.New("nanoprobe: packet too large")
	ErrConstructionFault  = errors.New("nanoprobe: internal construction fault")

	// Frame kind registry errors
	ErrDuplicateFrameKind = errors.New("nanoprobe: frame kind already registered")
	ErrRegistrySealed     = errors.New("nanoprobe: frame kind registry sealed")

	// Capture errors
	ErrLiveUnsupported = errors.New("nanoprobe: live capture unsupported on this platform")

	// Transport errors
	ErrSenderNotFound = errors.New("nanoprobe: sender not found")

	// Configuration errors
	ErrConfigInvalid = errors.New("nanoprobe: invalid configuration")
)
