// Package metrics holds the Prometheus instrumentation of the wage engine.
// Observe/Record functions are no-ops until Init has run.
package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	metricPrefix = "wage_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	snapshotSaves *prometheus.CounterVec
	snapshotLoads *prometheus.CounterVec

	aggregationsTotal  *prometheus.CounterVec
	aggregationLatency *prometheus.HistogramVec

	lifecycleTransitions *prometheus.CounterVec
)

// Init registers the engine metrics with the default registry. When db is
// non-nil a gauge reports the number of snapshots in the primary table.
func Init(db *sql.DB, logger logrus.FieldLogger) {
	registerOnce.Do(func() {
		snapshotSaves = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "snapshot_saves_total",
				Help: "Snapshot save attempts by tier and result",
			},
			[]string{"tier", "result"},
		)
		snapshotLoads = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "snapshot_loads_total",
				Help: "Snapshot loads by serving tier (none when not found)",
			},
			[]string{"tier"},
		)
		aggregationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "aggregations_total",
				Help: "Monthly aggregations by result",
			},
			[]string{"result"},
		)
		aggregationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "aggregation_duration_seconds",
				Help:    "Monthly aggregation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		lifecycleTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "lifecycle_transitions_total",
				Help: "Snapshot lifecycle transitions by target status and result",
			},
			[]string{"to", "result"},
		)

		prometheus.MustRegister(
			snapshotSaves,
			snapshotLoads,
			aggregationsTotal,
			aggregationLatency,
			lifecycleTransitions,
		)
		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

func registerDBMetrics(db *sql.DB, logger logrus.FieldLogger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "primary_snapshots",
			Help: "Snapshots stored in the primary tier",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM monthly_snapshots")
		},
	))
}

func queryCount(db *sql.DB, logger logrus.FieldLogger, query string) float64 {
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if logger != nil {
			logger.WithError(err).Debug("metrics query failed")
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}

// ObserveAggregation records one monthly aggregation.
func ObserveAggregation(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if aggregationsTotal != nil {
		aggregationsTotal.WithLabelValues(result).Inc()
	}
	if aggregationLatency != nil {
		aggregationLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// RecordSave counts a save attempt against a tier.
func RecordSave(tier string, err error) {
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	if snapshotSaves != nil {
		snapshotSaves.WithLabelValues(tier, result).Inc()
	}
}

// RecordLoad counts a load by the tier that served it.
func RecordLoad(tier string) {
	if tier == "" {
		tier = "none"
	}
	if snapshotLoads != nil {
		snapshotLoads.WithLabelValues(tier).Inc()
	}
}

// RecordTransition counts a lifecycle transition attempt.
func RecordTransition(to, result string) {
	if result == "" {
		result = resultSuccess
	}
	if lifecycleTransitions != nil {
		lifecycleTransitions.WithLabelValues(to, result).Inc()
	}
}
