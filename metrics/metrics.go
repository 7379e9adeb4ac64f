// Package metrics registriert die Prometheus-Metriken des Dienstes.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPTimeoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oa_http_timeouts_total",
			Help: "Outbound HTTP attempts that timed out, by host.",
		},
		[]string{"host"},
	)

	WorkflowTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oa_workflow_transitions_total",
			Help: "Publications moved into a workflow state.",
		},
		[]string{"state"},
	)

	WorkflowErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oa_workflow_errors_total",
			Help: "Per-publication failures during an orchestrator pass, by step.",
		},
		[]string{"step"},
	)

	JobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oa_jobs_processed_total",
			Help: "Background jobs handled, by kind and result.",
		},
		[]string{"kind", "result"},
	)

	PostprintStatusChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oa_postprint_status_changes_total",
			Help: "Activity Insight postprint status changes written by the synchronizer.",
		},
		[]string{"status"},
	)

	DOIVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oa_doi_verifications_total",
			Help: "Completed DOI verifications, by outcome.",
		},
		[]string{"verified"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPTimeoutsTotal,
		WorkflowTransitionsTotal,
		WorkflowErrorsTotal,
		JobsProcessedTotal,
		PostprintStatusChangesTotal,
		DOIVerificationsTotal,
	)
}
