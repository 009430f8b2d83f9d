// Package prometheus exposes readings as gauges for scraping.
package prometheus

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/d21d3q/golora/internal/sink"
)

// DefaultNamespace prefixes every gauge name.
const DefaultNamespace = "lora"

var labelNames = []string{"unique_id", "device_type"}

// Sink keeps the latest value of every metric per node. Gauge vectors are
// created and registered on first use of a metric name.
type Sink struct {
	namespace string
	reg       prometheus.Registerer

	mu     sync.Mutex
	gauges map[string]*prometheus.GaugeVec
}

var _ sink.Sink = (*Sink)(nil)

// New returns a sink registering on reg. An empty namespace selects
// DefaultNamespace.
func New(reg prometheus.Registerer, namespace string) *Sink {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Sink{
		namespace: namespace,
		reg:       reg,
		gauges:    make(map[string]*prometheus.GaugeVec),
	}
}

// Record implements sink.Sink. The sample timestamp is not exported; the
// scrape time stands in for it.
func (s *Sink) Record(_ context.Context, smp sink.Sample) error {
	g, err := s.gauge(smp.Metric)
	if err != nil {
		return sink.Unavailable("prometheus", err)
	}
	g.WithLabelValues(smp.Labels.UniqueID, smp.Labels.DeviceType).Set(smp.Value)
	return nil
}

func (s *Sink) gauge(metric string) (*prometheus.GaugeVec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.gauges[metric]; ok {
		return g, nil
	}
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: s.namespace,
		Name:      metric,
		Help:      "Last " + metric + " value reported by a LoRa sensor node.",
	}, labelNames)
	if err := s.reg.Register(g); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(*prometheus.GaugeVec)
		if !ok {
			return nil, err
		}
		g = existing
	}
	s.gauges[metric] = g
	return g, nil
}
