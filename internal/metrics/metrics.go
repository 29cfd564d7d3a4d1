// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CapturePacketsTotal counts packets read from a capture source
	CapturePacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanoprobe_capture_packets_total",
			Help: "Total number of packets read from capture sources",
		},
		[]string{"interface", "protocol"},
	)

	// FrameSetsConstructedTotal counts FrameSets built on the send path
	FrameSetsConstructedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanoprobe_framesets_constructed_total",
			Help: "Total number of FrameSets constructed",
		},
		[]string{"fstype"},
	)

	// FrameSetBytes tracks the wire size of constructed FrameSets
	FrameSetBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nanoprobe_frameset_bytes",
			Help:    "Wire size of constructed FrameSets in bytes",
			Buckets: prometheus.ExponentialBuckets(64, 2, 10), // 64B to 32KiB
		},
		[]string{"fstype"},
	)

	// ParseTotal counts received FrameSets by outcome
	ParseTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanoprobe_parse_total",
			Help: "Total number of received datagrams by parse result",
		},
		[]string{"result"},
	)

	// ParseRejectsTotal counts rejected datagrams by reason
	ParseRejectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanoprobe_parse_rejects_total",
			Help: "Total number of rejected datagrams by reason",
		},
		[]string{"reason"},
	)

	// SendErrorsTotal counts transport failures
	SendErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanoprobe_send_errors_total",
			Help: "Total number of FrameSets the transport failed to send",
		},
		[]string{"sender"},
	)

	// DiscoveryDuplicatesTotal counts suppressed repeat discovery packets
	DiscoveryDuplicatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanoprobe_discovery_duplicates_total",
			Help: "Total number of duplicate discovery packets suppressed",
		},
		[]string{"interface", "protocol"},
	)
)

const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
)
