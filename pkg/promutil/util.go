package promutil

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voidking/incubator-seatunnel/model"
)

const (
	// metricNamespace prefixes every metric name to avoid clashes with
	// metrics of embedded libraries.
	metricNamespace = "stengine"

	// constLabelJobKey tells the series of different jobs apart
	constLabelJobKey = "job_id"
)

// HTTPHandlerForMetric returns the http.Handler serving the process metrics.
func HTTPHandlerForMetric() http.Handler {
	return promhttp.HandlerFor(
		globalMetricGatherer,
		promhttp.HandlerOpts{},
	)
}

// With returns a Factory producing metrics stamped with the job's id and
// registered in the process registry.
func With(jobID model.JobID) Factory {
	return WithRegistry(globalMetricRegistry, jobID)
}

// WithRegistry is With against a caller supplied registry. Used by tests.
func WithRegistry(r *Registry, jobID model.JobID) Factory {
	return &wrappingFactory{
		r:     r,
		jobID: jobID,
		constLabels: prometheus.Labels{
			constLabelJobKey: strconv.FormatInt(int64(jobID), 10),
		},
	}
}

// UnregisterJob drops every collector the job registered in the process
// registry. Called when a job master is disposed.
func UnregisterJob(jobID model.JobID) {
	globalMetricRegistry.UnregisterJob(jobID)
}
