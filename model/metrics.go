package model

// RawTaskGroupMetrics is the unaggregated metrics report of one task group,
// as returned by the owning worker.
type RawTaskGroupMetrics struct {
	Location TaskGroupLocation `json:"location"`
	Metrics  map[string]int64  `json:"metrics"`
}

// JobMetrics is a job level metrics summary, obtained by summing task group
// reports by metric name.
type JobMetrics struct {
	JobID   JobID            `json:"job_id"`
	Metrics map[string]int64 `json:"metrics"`
}

// ToJobMetrics folds raw task group reports into one job level summary.
func ToJobMetrics(jobID JobID, raws []RawTaskGroupMetrics) JobMetrics {
	sum := JobMetrics{
		JobID:   jobID,
		Metrics: make(map[string]int64),
	}
	for _, raw := range raws {
		for name, value := range raw.Metrics {
			sum.Metrics[name] += value
		}
	}
	return sum
}

// Merge folds other into m, summing by metric name. Used when archiving one
// pipeline's summary into the job's history entry.
func (m *JobMetrics) Merge(other JobMetrics) {
	if m.Metrics == nil {
		m.Metrics = make(map[string]int64)
	}
	for name, value := range other.Metrics {
		m.Metrics[name] += value
	}
}
