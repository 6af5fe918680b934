package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Decode failures and correlation misses are expected under normal
// operation; they are counted here rather than logged.
var (
	FramesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "msgledger_frames_received_total",
		Help: "Raw transport frames handed to the engine.",
	})
	FramesDecoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "msgledger_frames_decoded_total",
		Help: "Frames that yielded at least one event batch.",
	})
	FramesUnparsable = promauto.NewCounter(prometheus.CounterOpts{
		Name: "msgledger_frames_unparsable_total",
		Help: "Frames that every decode strategy rejected.",
	})
	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "msgledger_frames_dropped_total",
		Help: "Frames rejected because the intake queue was full.",
	})

	Deltas = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "msgledger_deltas_total",
		Help: "Decoded deltas by kind.",
	}, []string{"kind"})

	CacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "msgledger_cache_size",
		Help: "Current number of records in the message cache.",
	})
	CacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "msgledger_cache_evictions_total",
		Help: "Cache evictions by reason.",
	}, []string{"reason"})

	CorrelationMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "msgledger_correlation_misses_total",
		Help: "Delete deltas with no matching cache record.",
	})

	LedgerAppends = promauto.NewCounter(prometheus.CounterOpts{
		Name: "msgledger_ledger_appends_total",
		Help: "Resolved deletion records appended to the ledger.",
	})
	LedgerSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "msgledger_ledger_size",
		Help: "Current number of entries in the deletion ledger.",
	})

	SnapshotThreads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "msgledger_snapshot_threads_total",
		Help: "Threads ingested from directory snapshots.",
	})
	SnapshotMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "msgledger_snapshot_messages_total",
		Help: "Recent-list messages seeded into the cache from snapshots.",
	})
	SnapshotSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "msgledger_snapshot_skipped_total",
		Help: "Snapshot items skipped by per-item guards.",
	})

	PersistFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "msgledger_persist_failures_total",
		Help: "Fire-and-forget persistence failures by record.",
	}, []string{"record"})
)
