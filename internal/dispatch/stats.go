package dispatch

import "sync/atomic"

// Stats holds the dispatcher's packet counters.
type Stats struct {
	Read       atomic.Uint64
	Filtered   atomic.Uint64 // non-discovery frames dropped in discovery-only mode
	Duplicates atomic.Uint64
	Invalid    atomic.Uint64 // frames that could not be encapsulated
	Sent       atomic.Uint64
	SendErrors atomic.Uint64
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Read, Filtered, Duplicates, Invalid, Sent, SendErrors uint64
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Read:       s.Read.Load(),
		Filtered:   s.Filtered.Load(),
		Duplicates: s.Duplicates.Load(),
		Invalid:    s.Invalid.Load(),
		Sent:       s.Sent.Load(),
		SendErrors: s.SendErrors.Load(),
	}
}
