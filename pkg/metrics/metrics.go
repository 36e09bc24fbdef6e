// Package metrics holds the prometheus collectors for the registry and the
// document store.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is safe to use as a nil pointer; every recorder is then a no-op.
type Metrics struct {
	SchemaOperations    *prometheus.CounterVec
	DocumentOperations  *prometheus.CounterVec
	ValidationFailures  *prometheus.CounterVec
	TypeCacheLookups    *prometheus.CounterVec
	TypeSynthesisTotal  prometheus.Counter
	OperationDuration   *prometheus.HistogramVec
	ActiveSchemaChanges prometheus.Counter
	RevalidationJobs    *prometheus.CounterVec
}

// New registers all collectors with reg. Pass prometheus.DefaultRegisterer in
// the server and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SchemaOperations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docregistry_schema_operations_total",
			Help: "Schema registry operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		DocumentOperations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docregistry_document_operations_total",
			Help: "Document store operations by collection, operation and outcome",
		}, []string{"collection", "operation", "outcome"}),
		ValidationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docregistry_validation_failures_total",
			Help: "Documents rejected by schema validation",
		}, []string{"collection"}),
		TypeCacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docregistry_type_cache_lookups_total",
			Help: "Document type cache lookups by result (hit, miss, stale)",
		}, []string{"result"}),
		TypeSynthesisTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "docregistry_type_synthesis_total",
			Help: "Document types built from schema definitions",
		}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docregistry_operation_duration_seconds",
			Help:    "Latency of registry and document operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"component", "operation"}),
		ActiveSchemaChanges: f.NewCounter(prometheus.CounterOpts{
			Name: "docregistry_active_schema_changes_total",
			Help: "Times a schema version became the active one",
		}),
		RevalidationJobs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docregistry_revalidation_jobs_total",
			Help: "Revalidation job attempts by outcome (succeeded, retried, failed)",
		}, []string{"outcome"}),
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveSchemaOp records one schema registry operation.
func (m *Metrics) ObserveSchemaOp(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.SchemaOperations.WithLabelValues(op, outcome(err)).Inc()
	m.OperationDuration.WithLabelValues("schema", op).Observe(time.Since(start).Seconds())
}

// ObserveDocumentOp records one document store operation.
func (m *Metrics) ObserveDocumentOp(collection, op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.DocumentOperations.WithLabelValues(collection, op, outcome(err)).Inc()
	m.OperationDuration.WithLabelValues("document", op).Observe(time.Since(start).Seconds())
}

// IncValidationFailure counts a rejected document.
func (m *Metrics) IncValidationFailure(collection string) {
	if m == nil {
		return
	}
	m.ValidationFailures.WithLabelValues(collection).Inc()
}

// IncTypeCache counts a type cache lookup.
func (m *Metrics) IncTypeCache(result string) {
	if m == nil {
		return
	}
	m.TypeCacheLookups.WithLabelValues(result).Inc()
}

// IncTypeSynthesis counts a freshly built document type.
func (m *Metrics) IncTypeSynthesis() {
	if m == nil {
		return
	}
	m.TypeSynthesisTotal.Inc()
}

// IncActivation counts an activation.
func (m *Metrics) IncActivation() {
	if m == nil {
		return
	}
	m.ActiveSchemaChanges.Inc()
}

// IncRevalidationJob counts a finished revalidation attempt.
func (m *Metrics) IncRevalidationJob(outcome string) {
	if m == nil {
		return
	}
	m.RevalidationJobs.WithLabelValues(outcome).Inc()
}
