// Package metrics provides Prometheus instrumentation for the moderation
// services: scan throughput and latency, warnings and blocks issued, sweep
// results and login-time evasion rejections.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MessagesScanned counts scanned messages by outcome: "clean", "flagged"
	// or "invalid".
	MessagesScanned = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderation_messages_scanned_total",
		Help: "Total number of chat messages scanned",
	}, []string{"outcome"})

	// ScanLatency records end-to-end moderation latency for one message.
	ScanLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "moderation_scan_latency_seconds",
		Help:    "Message moderation latency in seconds",
		Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// SpamSignals counts non-escalating spam heuristics by pattern name.
	SpamSignals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderation_spam_signals_total",
		Help: "Spam heuristic matches by pattern",
	}, []string{"pattern"})

	// WarningsIssued counts warnings by type, severity and origin.
	WarningsIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderation_warnings_issued_total",
		Help: "Warnings issued",
	}, []string{"type", "severity", "origin"}) // origin = "automatic", "manual"

	// BlocksApplied counts restrictions by origin and whether the block was full.
	BlocksApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderation_blocks_applied_total",
		Help: "User restrictions applied",
	}, []string{"origin", "full"})

	// Unblocks counts explicit unblocks.
	Unblocks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "moderation_unblocks_total",
		Help: "Explicit user unblocks",
	})

	// SweptRecords counts records moved forward by the periodic sweeps,
	// labeled "warnings" or "blocks".
	SweptRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderation_swept_records_total",
		Help: "Records transitioned by the expiry sweeps",
	}, []string{"kind"})

	// EvasionRejections counts logins rejected by the identifier check.
	EvasionRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "moderation_evasion_rejections_total",
		Help: "Logins rejected because an identifier belongs to a blocked account",
	})

	// ActiveTerms tracks the size of the compiled scanner lexicon.
	ActiveTerms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "moderation_active_terms",
		Help: "Active banned terms loaded into the scanner",
	})
)

func init() {
	prometheus.MustRegister(
		MessagesScanned,
		ScanLatency,
		SpamSignals,
		WarningsIssued,
		BlocksApplied,
		Unblocks,
		SweptRecords,
		EvasionRejections,
		ActiveTerms,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
