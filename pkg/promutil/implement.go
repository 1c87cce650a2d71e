package promutil

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/voidking/incubator-seatunnel/model"
)

type wrappingFactory struct {
	r *Registry
	// jobID identifies the job the factory belongs to. It is used to drop all
	// of the job's collectors when the job ends.
	jobID model.JobID
	// constLabels is added to every metric to keep jobs apart
	constLabels prometheus.Labels
}

// NewCounter implements Factory. Thread-safe.
func (f *wrappingFactory) NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	c := prometheus.NewCounter(*wrapCounterOpts(f.constLabels, &opts))
	f.r.MustRegister(f.jobID, c)
	return c
}

// NewCounterVec implements Factory. Thread-safe.
func (f *wrappingFactory) NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(*wrapCounterOpts(f.constLabels, &opts), labelNames)
	f.r.MustRegister(f.jobID, c)
	return c
}

// NewGauge implements Factory. Thread-safe.
func (f *wrappingFactory) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	c := prometheus.NewGauge(*wrapGaugeOpts(f.constLabels, &opts))
	f.r.MustRegister(f.jobID, c)
	return c
}

// NewGaugeVec implements Factory. Thread-safe.
func (f *wrappingFactory) NewGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
	c := prometheus.NewGaugeVec(*wrapGaugeOpts(f.constLabels, &opts), labelNames)
	f.r.MustRegister(f.jobID, c)
	return c
}

// NewHistogram implements Factory. Thread-safe.
func (f *wrappingFactory) NewHistogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	c := prometheus.NewHistogram(*wrapHistogramOpts(f.constLabels, &opts))
	f.r.MustRegister(f.jobID, c)
	return c
}

// NewHistogramVec implements Factory. Thread-safe.
func (f *wrappingFactory) NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
	c := prometheus.NewHistogramVec(*wrapHistogramOpts(f.constLabels, &opts), labelNames)
	f.r.MustRegister(f.jobID, c)
	return c
}

func wrapCounterOpts(constLabels prometheus.Labels, opts *prometheus.CounterOpts) *prometheus.CounterOpts {
	if opts.Namespace == "" {
		opts.Namespace = metricNamespace
	}
	opts.ConstLabels = mergeLabels(constLabels, opts.ConstLabels)
	return opts
}

func wrapGaugeOpts(constLabels prometheus.Labels, opts *prometheus.GaugeOpts) *prometheus.GaugeOpts {
	if opts.Namespace == "" {
		opts.Namespace = metricNamespace
	}
	opts.ConstLabels = mergeLabels(constLabels, opts.ConstLabels)
	return opts
}

func wrapHistogramOpts(constLabels prometheus.Labels, opts *prometheus.HistogramOpts) *prometheus.HistogramOpts {
	if opts.Namespace == "" {
		opts.Namespace = metricNamespace
	}
	opts.ConstLabels = mergeLabels(constLabels, opts.ConstLabels)
	return opts
}

func mergeLabels(constLabels, metricLabels prometheus.Labels) prometheus.Labels {
	merged := make(prometheus.Labels, len(constLabels)+len(metricLabels))
	for name, value := range metricLabels {
		merged[name] = value
	}
	for name, value := range constLabels {
		if _, exists := merged[name]; exists {
			panic("duplicate metric label " + name)
		}
		merged[name] = value
	}
	return merged
}
