// Package metrics exports batch progress as Prometheus collectors.
package metrics

import (
	"errors"
	"fmt"
	"sync/atomic"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/btouchard/oibench/internal/batch"
	"github.com/btouchard/oibench/internal/lifecycle"
	"github.com/btouchard/oibench/internal/task"
)

// Collector records task lifecycle events of the batches it is hooked into.
type Collector struct {
	started   prom.Counter
	finished  *prom.CounterVec
	running   prom.Gauge
	duration  *prom.HistogramVec
	observers prom.GaugeFunc

	batch atomic.Pointer[batch.Batch]
}

// New creates the collectors under namespace and registers them with reg
// (the default registerer when nil). Registering twice on the same registry
// reuses the existing collectors.
func New(namespace string, reg prom.Registerer) (*Collector, error) {
	if namespace == "" {
		namespace = "oibench"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}

	c := &Collector{}

	var err error
	if c.started, err = register(reg, prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_started_total",
		Help:      "Tasks picked up by a worker.",
	})); err != nil {
		return nil, err
	}
	if c.finished, err = register(reg, prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_finished_total",
		Help:      "Tasks finished, by verdict.",
	}, []string{"status"})); err != nil {
		return nil, err
	}
	if c.running, err = register(reg, prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "tasks_running",
		Help:      "Tasks currently executing.",
	})); err != nil {
		return nil, err
	}
	if c.duration, err = register(reg, prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Task execution time, by verdict.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"status"})); err != nil {
		return nil, err
	}
	if c.observers, err = register(reg, prom.NewGaugeFunc(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "observers",
		Help:      "Observers attached to the tracked batch's channels.",
	}, c.countObservers)); err != nil {
		return nil, err
	}

	return c, nil
}

// Track makes the observers gauge report on b.
func (c *Collector) Track(b *batch.Batch) {
	c.batch.Store(b)
}

// Hook registers the collector on a task's lifecycle hooks. Its signature
// matches pool.HookFunc.
func (c *Collector) Hook(_ *batch.Entry, h *lifecycle.Hooks[task.Result]) {
	h.AddStart(c.TaskStarted)
	h.AddDone(c.TaskFinished)
}

func (c *Collector) TaskStarted() {
	c.started.Inc()
	c.running.Inc()
}

func (c *Collector) TaskFinished(r task.Result) {
	status := string(r.Status)
	if status == "" {
		status = string(task.StatusUnknown)
	}
	c.running.Dec()
	c.finished.WithLabelValues(status).Inc()
	c.duration.WithLabelValues(status).Observe(r.Duration().Seconds())
}

func (c *Collector) countObservers() float64 {
	b := c.batch.Load()
	if b == nil {
		return 0
	}
	n := b.Updates().Subscribers()
	for _, e := range b.Entries() {
		n += e.Channel.Subscribers()
	}
	return float64(n)
}

func register[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	if are, ok := errors.AsType[prom.AlreadyRegisteredError](err); ok {
		existing, ok := are.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, fmt.Errorf("registering collector: %w", err)
}
