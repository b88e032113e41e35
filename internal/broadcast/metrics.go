package broadcast

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Subscribers prometheus.Gauge
	Broadcasts  prometheus.Counter
	Pulls       prometheus.Counter
	Drops       prometheus.Counter
}

func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inventory_subscribers",
			Help: "Connected websocket subscribers",
		}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inventory_broadcasts_total",
			Help: "Product list broadcasts sent to all subscribers",
		}),
		Pulls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inventory_pulls_total",
			Help: "Snapshots pushed in answer to a subscriber request",
		}),
		Drops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inventory_subscriber_drops_total",
			Help: "Subscribers disconnected because their send buffer was full",
		}),
	}

	reg.MustRegister(m.Subscribers, m.Broadcasts, m.Pulls, m.Drops)
	return m
}
