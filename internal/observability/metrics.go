package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TickCollector exposes scheduler metrics to Prometheus.
//
// Implements engine.Metrics. All methods are no-ops on a nil collector.
type TickCollector struct {
	gatherer prometheus.Gatherer

	TickDuration prometheus.Histogram
	TicksTotal   prometheus.Counter
	VisitsTotal  prometheus.Counter
	Thinkers     prometheus.Gauge
	SpawnedTotal prometheus.Counter
	DespawnTotal prometheus.Counter
	ErrorsTotal  *prometheus.CounterVec
}

// NewTickCollector registers scheduler metrics against the provided registerer.
// Registering twice against the same registerer reuses the existing
// collectors.
func NewTickCollector(reg prometheus.Registerer) (*TickCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "thinker_tick_duration_seconds",
		Help:    "Wall time spent running one tick.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	})
	duration, err := registerHistogram(reg, duration, "thinker_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	ticks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "thinker_ticks_total",
		Help: "Number of ticks run.",
	})
	ticks, err = registerCounter(reg, ticks, "thinker_ticks_total")
	if err != nil {
		return nil, err
	}

	visits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "thinker_visits_total",
		Help: "Number of thinker actions invoked.",
	})
	visits, err = registerCounter(reg, visits, "thinker_visits_total")
	if err != nil {
		return nil, err
	}

	thinkers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "thinker_scheduled",
		Help: "Number of thinkers currently scheduled.",
	})
	thinkers, err = registerGauge(reg, thinkers, "thinker_scheduled")
	if err != nil {
		return nil, err
	}

	spawned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "thinker_spawned_total",
		Help: "Number of thinkers linked into the list.",
	})
	spawned, err = registerCounter(reg, spawned, "thinker_spawned_total")
	if err != nil {
		return nil, err
	}

	despawned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "thinker_despawned_total",
		Help: "Number of thinkers unlinked from the list.",
	})
	despawned, err = registerCounter(reg, despawned, "thinker_despawned_total")
	if err != nil {
		return nil, err
	}

	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "thinker_errors_total",
		Help: "Scheduler errors by code.",
	}, []string{"code"})
	errs, err = registerCounterVec(reg, errs, "thinker_errors_total")
	if err != nil {
		return nil, err
	}

	return &TickCollector{
		gatherer:     gatherer,
		TickDuration: duration,
		TicksTotal:   ticks,
		VisitsTotal:  visits,
		Thinkers:     thinkers,
		SpawnedTotal: spawned,
		DespawnTotal: despawned,
		ErrorsTotal:  errs,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *TickCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveTick records one tick's duration and visit count.
func (c *TickCollector) ObserveTick(d time.Duration, visited int) {
	if c == nil {
		return
	}
	c.TickDuration.Observe(d.Seconds())
	c.TicksTotal.Inc()
	c.VisitsTotal.Add(float64(visited))
}

// SetThinkers updates the scheduled thinker gauge.
func (c *TickCollector) SetThinkers(n int) {
	if c == nil {
		return
	}
	c.Thinkers.Set(float64(n))
}

// IncSpawned counts a thinker linked into the list.
func (c *TickCollector) IncSpawned() {
	if c == nil {
		return
	}
	c.SpawnedTotal.Inc()
}

// IncDespawned counts a thinker unlinked from the list.
func (c *TickCollector) IncDespawned() {
	if c == nil {
		return
	}
	c.DespawnTotal.Inc()
}

// IncErrors counts a scheduler error.
func (c *TickCollector) IncErrors(code string) {
	if c == nil {
		return
	}
	c.ErrorsTotal.WithLabelValues(code).Inc()
}

// Handler exposes a ready-to-use /metrics handler.
func (c *TickCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ServeMetrics serves the collector on addr at /metrics until ctx is done.
func ServeMetrics(ctx context.Context, addr string, c *TickCollector) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("metrics endpoint listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve metrics: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
