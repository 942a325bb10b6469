package webhook

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	requests       *prometheus.CounterVec
	updateDuration *prometheus.HistogramVec
}

func newMetrics(registerer prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gitwebhook",
			Name:      "requests_total",
			Help:      "Webhook requests by response status code.",
		}, []string{"code"}),
		updateDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gitwebhook",
			Name:      "update_duration_seconds",
			Help:      "Duration of repository updates.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"result"}),
	}
	if registerer == nil {
		return m, nil
	}
	for _, collector := range []prometheus.Collector{m.requests, m.updateDuration} {
		if err := registerer.Register(collector); err != nil {
			return nil, errors.Wrap(err, "failed registering metrics")
		}
	}
	return m, nil
}
