package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector captures telemetry events emitted by the service.
//
// Implementations may forward metrics to Prometheus, loggers or other
// monitoring systems. Hooks run inline with project mutations and must stay
// inexpensive.
type Collector interface {
	IncMutation(operation string)
	AddImportApplied(kind string, count int)
	SetValidationIssues(severity string, count int)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncMutation(string)              {}
func (noopCollector) AddImportApplied(string, int)    {}
func (noopCollector) SetValidationIssues(string, int) {}

// PrometheusCollector exposes telemetry counters via Prometheus.
type PrometheusCollector struct {
	mutations        *prometheus.CounterVec
	importApplied    *prometheus.CounterVec
	validationIssues *prometheus.GaugeVec
}

var (
	mutationCounter        *prometheus.CounterVec
	importAppliedCounter   *prometheus.CounterVec
	validationIssuesGauge  *prometheus.GaugeVec
	prometheusRegisterLock sync.Mutex
)

// NewPrometheusCollector registers the required metrics with the provided registerer.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	prometheusRegisterLock.Lock()
	defer prometheusRegisterLock.Unlock()

	if mutationCounter == nil {
		counter, err := registerCounter(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coregraph_mutations_total",
			Help: "Number of committed project mutations per operation.",
		}, []string{"operation"}))
		if err != nil {
			return nil, err
		}
		mutationCounter = counter
	}

	if importAppliedCounter == nil {
		counter, err := registerCounter(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coregraph_import_applied_total",
			Help: "Number of catalog import mutations applied per object kind.",
		}, []string{"kind"}))
		if err != nil {
			return nil, err
		}
		importAppliedCounter = counter
	}

	if validationIssuesGauge == nil {
		gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "coregraph_validation_issues",
			Help: "Number of items reported by the last validation run per severity.",
		}, []string{"severity"})
		if err := reg.Register(gauge); err != nil {
			already, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return nil, err
			}
			existing, ok := already.ExistingCollector.(*prometheus.GaugeVec)
			if !ok {
				return nil, err
			}
			gauge = existing
		}
		validationIssuesGauge = gauge
	}

	return &PrometheusCollector{
		mutations:        mutationCounter,
		importApplied:    importAppliedCounter,
		validationIssues: validationIssuesGauge,
	}, nil
}

func registerCounter(reg prometheus.Registerer, counter *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(counter); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		return existing, nil
	}
	return counter, nil
}

// IncMutation counts a committed mutation.
func (p *PrometheusCollector) IncMutation(operation string) {
	if p == nil || p.mutations == nil {
		return
	}
	p.mutations.WithLabelValues(operation).Inc()
}

// AddImportApplied records applied import mutations of one kind.
func (p *PrometheusCollector) AddImportApplied(kind string, count int) {
	if p == nil || p.importApplied == nil || count <= 0 {
		return
	}
	p.importApplied.WithLabelValues(kind).Add(float64(count))
}

// SetValidationIssues updates the gauge for one severity.
func (p *PrometheusCollector) SetValidationIssues(severity string, count int) {
	if p == nil || p.validationIssues == nil {
		return
	}
	p.validationIssues.WithLabelValues(severity).Set(float64(count))
}
