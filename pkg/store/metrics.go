package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "branchdb_records_applied_total",
		Help: "Records folded into the index during replay, by event type.",
	}, []string{"type"})

	recordsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "branchdb_records_skipped_total",
		Help: "Corrupt log lines retained on disk but skipped by replay.",
	})

	recordsIgnored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "branchdb_records_ignored_total",
		Help: "Records with unknown event types ignored during replay.",
	})

	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "branchdb_mutations_total",
		Help: "Successful index mutations appended to the record log, by event type.",
	}, []string{"type"})

	compactionRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "branchdb_compaction_runs_total",
		Help: "Completed compaction passes.",
	})

	compactionRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "branchdb_compaction_removed_total",
		Help: "Events removed by compaction, by event type.",
	}, []string{"type"})
)
