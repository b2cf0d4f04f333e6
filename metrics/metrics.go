package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Metrics are the session counters exported to prometheus. Each instance owns
// its registry so sessions and tests do not collide on the default one.
type Metrics struct {
	Registry *prometheus.Registry

	LinesRead   prometheus.Counter
	Events      *prometheus.CounterVec
	ParseErrors prometheus.Counter
	LastRTT     prometheus.Gauge
	MaxSeq      prometheus.Gauge
	MaxLatency  prometheus.Gauge
}

func New(target string) *Metrics {
	labels := prometheus.Labels{"target": target}
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		LinesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "pingchart_lines_read_total",
			Help:        "Raw output lines read from the probe.",
			ConstLabels: labels,
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pingchart_events_total",
			Help:        "Parsed probe events by kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "pingchart_parse_errors_total",
			Help:        "Lines skipped because they could not be parsed.",
			ConstLabels: labels,
		}),
		LastRTT: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "pingchart_last_rtt_milliseconds",
			Help:        "Round-trip time of the most recent reply.",
			ConstLabels: labels,
		}),
		MaxSeq: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "pingchart_viewport_max_sequence",
			Help:        "Upper bound of the sequence number axis.",
			ConstLabels: labels,
		}),
		MaxLatency: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "pingchart_viewport_max_latency_milliseconds",
			Help:        "Upper bound of the latency axis.",
			ConstLabels: labels,
		}),
	}

	m.Registry.MustRegister(m.LinesRead, m.Events, m.ParseErrors, m.LastRTT, m.MaxSeq, m.MaxLatency)

	return m
}

// Serve exposes the registry on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	logrus.Info("[ METRICS ] listening on ", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
