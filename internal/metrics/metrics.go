// Package metrics holds the Prometheus collectors of the LIMS API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuditEntriesWritten counts audit entries persisted, by action and entity.
	AuditEntriesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lims_audit_entries_written_total",
		Help: "Total number of audit entries persisted",
	}, []string{"action", "entity"})

	// AuditWriteFailures counts audit entries that could not be persisted.
	// The primary write they describe has already succeeded.
	AuditWriteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lims_audit_write_failures_total",
		Help: "Total number of audit entries that failed to persist",
	}, []string{"action", "entity"})

	// AuditBeforeCaptureFailures counts failed lookups of a record's prior state.
	AuditBeforeCaptureFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lims_audit_before_capture_failures_total",
		Help: "Total number of failed before-state lookups during audited writes",
	}, []string{"entity"})

	// InterceptDuration observes the full duration of audited writes.
	InterceptDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lims_audit_intercept_duration_seconds",
		Help:    "Duration of audited writes including before capture and audit persistence",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"action"})

	// AuthEventsRecorded counts authentication audit events by action.
	AuthEventsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lims_auth_events_recorded_total",
		Help: "Total number of authentication events recorded",
	}, []string{"action"})
)
