// Package telemetry exports Prometheus metrics for the turn loop.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nathoo/talecore/engine/effects"
	"github.com/nathoo/talecore/engine/generate"
	"github.com/nathoo/talecore/engine/state"
	"github.com/nathoo/talecore/types"
)

const namespace = "talecore"

// Metrics implements the rules, generate and engine observers.
type Metrics struct {
	registry     *prometheus.Registry
	attempts     *prometheus.CounterVec
	fallbacks    prometheus.Counter
	rejected     *prometheus.CounterVec
	triggers     *prometheus.CounterVec
	turnDuration prometheus.Histogram
	turns        *prometheus.CounterVec
}

// New creates metrics registered on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_attempts_total",
			Help:      "Completion attempts by outcome.",
		}, []string{"outcome"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_fallbacks_total",
			Help:      "Generations that exhausted retries and used the fallback output.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_updates_total",
			Help:      "Proposed state updates rejected by the rules engine.",
		}, []string{"reason"}),
		triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trigger_firings_total",
			Help:      "Trigger firings by trigger id.",
		}, []string{"trigger"}),
		turnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Wall time of a full turn including generation.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed turns by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(m.attempts, m.fallbacks, m.rejected, m.triggers, m.turnDuration, m.turns)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Attempt implements generate.Observer.
func (m *Metrics) Attempt(o generate.Outcome) {
	m.attempts.WithLabelValues(string(o)).Inc()
}

// Fallback implements generate.Observer.
func (m *Metrics) Fallback() {
	m.fallbacks.Inc()
}

// UpdateRejected implements rules.Observer.
func (m *Metrics) UpdateRejected(_ types.UpdateOp, err error) {
	m.rejected.WithLabelValues(RejectReason(err)).Inc()
}

// TriggerFired implements rules.Observer.
func (m *Metrics) TriggerFired(id string) {
	m.triggers.WithLabelValues(id).Inc()
}

// TurnCompleted implements engine.Observer.
func (m *Metrics) TurnCompleted(d time.Duration, usedFallback bool) {
	m.turnDuration.Observe(d.Seconds())
	result := "ok"
	if usedFallback {
		result = "fallback"
	}
	m.turns.WithLabelValues(result).Inc()
}

var rejectReasons = []struct {
	err   error
	label string
}{
	{effects.ErrUnknownVariable, "unknown_variable"},
	{effects.ErrReadonly, "readonly"},
	{effects.ErrPolicy, "policy"},
	{effects.ErrUnknownOp, "unknown_op"},
	{effects.ErrTypeMismatch, "type_mismatch"},
	{effects.ErrEnumValue, "enum_value"},
	{effects.ErrNotNumeric, "not_numeric"},
	{effects.ErrNotList, "not_list"},
	{effects.ErrNotBool, "not_bool"},
	{state.ErrPathNotFound, "path_not_found"},
}

// RejectReason maps a rejection error to a bounded label value.
func RejectReason(err error) string {
	for _, r := range rejectReasons {
		if errors.Is(err, r.err) {
			return r.label
		}
	}
	return "other"
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
