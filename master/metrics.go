package master

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/voidking/incubator-seatunnel/model"
	"github.com/voidking/incubator-seatunnel/pkg/promutil"
)

// Metrics holds the per job collectors of one JobMaster. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	jobStatus        *prometheus.GaugeVec
	pipelinesTotal   prometheus.Gauge
	slotSyncRetries  prometheus.Counter
	checkpointErrors prometheus.Counter
}

// NewMetrics registers the job's collectors through the factory.
func NewMetrics(f promutil.Factory) *Metrics {
	return &Metrics{
		jobStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Subsystem: "job",
			Name:      "status",
			Help:      "current status of the job, the active status holds 1",
		}, []string{"status"}),
		pipelinesTotal: f.NewGauge(prometheus.GaugeOpts{
			Subsystem: "job",
			Name:      "pipelines_total",
			Help:      "number of pipelines the job was planned into",
		}),
		slotSyncRetries: f.NewCounter(prometheus.CounterOpts{
			Subsystem: "slot",
			Name:      "sync_retries_total",
			Help:      "read-back attempts that found a slot assignment write not yet visible",
		}),
		checkpointErrors: f.NewCounter(prometheus.CounterOpts{
			Subsystem: "checkpoint",
			Name:      "errors_total",
			Help:      "unrecoverable checkpoint errors reported to the job",
		}),
	}
}

func (m *Metrics) observeJobStatus(status model.JobStatus) {
	if m == nil {
		return
	}
	m.jobStatus.Reset()
	m.jobStatus.WithLabelValues(status.String()).Set(1)
}

func (m *Metrics) observePipelines(n int) {
	if m == nil {
		return
	}
	m.pipelinesTotal.Set(float64(n))
}

func (m *Metrics) observeSlotSyncRetry() {
	if m == nil {
		return
	}
	m.slotSyncRetries.Inc()
}

func (m *Metrics) observeCheckpointError() {
	if m == nil {
		return
	}
	m.checkpointErrors.Inc()
}
