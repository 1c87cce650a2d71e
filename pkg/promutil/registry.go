package promutil

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/voidking/incubator-seatunnel/model"
)

// processJobID keys the process level collectors that do not belong to any
// job and are never unregistered.
const processJobID model.JobID = 0

// NOTICE: we don't use prometheus.DefaultRegistry in case of incorrect usage
// of a non-wrapped metric by a connector plugin.
var (
	globalMetricRegistry                     = NewRegistry()
	globalMetricGatherer prometheus.Gatherer = globalMetricRegistry
)

func init() {
	globalMetricRegistry.MustRegister(processJobID, collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	globalMetricRegistry.MustRegister(processJobID, collectors.NewGoCollector())
}

// Registry registers metrics and remembers which collectors belong to which
// job, so everything a finished job registered can be dropped in one call.
type Registry struct {
	sync.Mutex
	*prometheus.Registry

	collectorsByJob map[model.JobID][]prometheus.Collector
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		Registry:        prometheus.NewRegistry(),
		collectorsByJob: make(map[model.JobID][]prometheus.Collector),
	}
}

// MustRegister registers the collector under the given job. Panics when the
// collector cannot be registered.
func (r *Registry) MustRegister(jobID model.JobID, c prometheus.Collector) {
	if c == nil {
		return
	}
	r.Lock()
	defer r.Unlock()

	r.Registry.MustRegister(c)
	r.collectorsByJob[jobID] = append(r.collectorsByJob[jobID], c)
}

// UnregisterJob drops every collector the job registered.
func (r *Registry) UnregisterJob(jobID model.JobID) {
	r.Lock()
	defer r.Unlock()

	for _, c := range r.collectorsByJob[jobID] {
		r.Registry.Unregister(c)
	}
	delete(r.collectorsByJob, jobID)
}
