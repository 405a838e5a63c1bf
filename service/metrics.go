package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/layer-3/anchor/core"
)

// SchedulerMetricsOptions configures the reconciliation metrics.
type SchedulerMetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
	Subsystem  string
}

// SchedulerMetrics exposes Prometheus collectors for the reconciliation engine.
// A nil *SchedulerMetrics records nothing.
type SchedulerMetrics struct {
	TaskRuns           *prometheus.CounterVec
	TaskDuration       *prometheus.HistogramVec
	ItemErrors         *prometheus.CounterVec
	Advanced           *prometheus.CounterVec
	WatchedAccounts    prometheus.Gauge
	WithdrawalsMatched prometheus.Counter
}

// NewSchedulerMetrics constructs the collectors and registers them with the provided registerer.
func NewSchedulerMetrics(opts SchedulerMetricsOptions) (*SchedulerMetrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "anchor"
	}

	subsystem := opts.Subsystem
	if subsystem == "" {
		subsystem = "reconciliation"
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &SchedulerMetrics{
		TaskRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "task_runs_total",
			Help:      "Total number of reconciliation task runs partitioned by task and outcome.",
		}, []string{"task", "outcome"}),
		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "task_duration_seconds",
			Help:      "Histogram of reconciliation task durations in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task"}),
		ItemErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "item_errors_total",
			Help:      "Total number of per-transaction hook failures partitioned by task.",
		}, []string{"task"}),
		Advanced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "transactions_advanced_total",
			Help:      "Total number of transactions advanced partitioned by task and target status.",
		}, []string{"task", "status"}),
		WatchedAccounts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "watched_accounts",
			Help:      "Current number of withdraw anchor accounts being streamed.",
		}),
		WithdrawalsMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "withdrawals_matched_total",
			Help:      "Total number of incoming ledger payments matched to pending withdrawals.",
		}),
	}

	var err error
	if m.TaskRuns, err = register(reg, m.TaskRuns); err != nil {
		return nil, err
	}
	if m.TaskDuration, err = register(reg, m.TaskDuration); err != nil {
		return nil, err
	}
	if m.ItemErrors, err = register(reg, m.ItemErrors); err != nil {
		return nil, err
	}
	if m.Advanced, err = register(reg, m.Advanced); err != nil {
		return nil, err
	}
	if m.WatchedAccounts, err = register(reg, m.WatchedAccounts); err != nil {
		return nil, err
	}
	if m.WithdrawalsMatched, err = register(reg, m.WithdrawalsMatched); err != nil {
		return nil, err
	}

	return m, nil
}

// register adds c to reg, reusing an identical collector that is already registered.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return c, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(T)
		if !ok {
			return c, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return c, nil
}

func (m *SchedulerMetrics) observeTask(task string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.TaskRuns.WithLabelValues(task, outcome).Inc()
	m.TaskDuration.WithLabelValues(task).Observe(time.Since(start).Seconds())
}

func (m *SchedulerMetrics) itemError(task string) {
	if m == nil {
		return
	}
	m.ItemErrors.WithLabelValues(task).Inc()
}

func (m *SchedulerMetrics) advanced(task string, status core.Status, n int) {
	if m == nil {
		return
	}
	m.Advanced.WithLabelValues(task, string(status)).Add(float64(n))
}

func (m *SchedulerMetrics) setWatched(n int) {
	if m == nil {
		return
	}
	m.WatchedAccounts.Set(float64(n))
}

func (m *SchedulerMetrics) withdrawalMatched() {
	if m == nil {
		return
	}
	m.WithdrawalsMatched.Inc()
}
