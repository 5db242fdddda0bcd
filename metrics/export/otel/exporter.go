package otel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() authcore.MetricsSnapshot
	AuditDropped() uint64
}

type storeHealth interface {
	Health(ctx context.Context) (time.Duration, error)
}

// series is one engine counter bound to a family instrument with its
// attribute set resolved up front.
type series struct {
	id   authcore.MetricID
	ins  metric.Int64ObservableCounter
	opts []metric.ObserveOption
}

type latency struct {
	id      authcore.MetricID
	buckets metric.Int64ObservableGauge
	le      [8]metric.ObserveOption
	count   metric.Int64ObservableCounter
	sum     metric.Float64ObservableCounter
}

// OTelExporter publishes authcore metrics through OpenTelemetry observable
// instruments. Values are read once per collection cycle.
type OTelExporter struct {
	source       metricsSource
	health       storeHealth
	registration metric.Registration

	series       []series
	latencies    []latency
	auditDropped metric.Int64ObservableCounter
	storeUp      metric.Int64ObservableGauge
	storePing    metric.Float64ObservableGauge
}

// NewOTelExporter registers instruments on meter that read from engine.
// Store reachability is reported on every collection.
func NewOTelExporter(meter metric.Meter, engine *authcore.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

// NewOTelExporterFromSource registers instruments on meter over any
// snapshot source. Store gauges are registered only when source has a
// Health method.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	var observables []metric.Observable

	for _, f := range internaldefs.Families {
		ins, err := meter.Int64ObservableCounter(f.Name, metric.WithDescription(f.Help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", f.Name, err)
		}
		observables = append(observables, ins)
		for _, s := range f.Series {
			bound := series{id: s.ID, ins: ins}
			if f.LabelKey != "" {
				bound.opts = []metric.ObserveOption{
					metric.WithAttributeSet(attribute.NewSet(attribute.String(f.LabelKey, s.Value))),
				}
			}
			e.series = append(e.series, bound)
		}
	}

	for _, def := range internaldefs.HistogramDefs {
		l, err := newLatency(meter, def)
		if err != nil {
			return nil, err
		}
		observables = append(observables, l.buckets, l.count, l.sum)
		e.latencies = append(e.latencies, l)
	}

	dropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription("Audit events dropped under dispatcher backpressure."))
	if err != nil {
		return nil, fmt.Errorf("create counter %s: %w", internaldefs.AuditDroppedName, err)
	}
	e.auditDropped = dropped
	observables = append(observables, dropped)

	if h, ok := source.(storeHealth); ok {
		e.health = h
		if e.storeUp, err = meter.Int64ObservableGauge(internaldefs.StoreUpName,
			metric.WithDescription("Whether the session store answered the last health check.")); err != nil {
			return nil, fmt.Errorf("create gauge %s: %w", internaldefs.StoreUpName, err)
		}
		if e.storePing, err = meter.Float64ObservableGauge(internaldefs.StorePingName,
			metric.WithDescription("Round trip of the last session store health check."),
			metric.WithUnit("s")); err != nil {
			return nil, fmt.Errorf("create gauge %s: %w", internaldefs.StorePingName, err)
		}
		observables = append(observables, e.storeUp, e.storePing)
	}

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func newLatency(meter metric.Meter, def internaldefs.HistogramDef) (latency, error) {
	l := latency{id: def.ID}
	var err error
	if l.buckets, err = meter.Int64ObservableGauge(def.Name+"_bucket",
		metric.WithDescription(def.Help+" Cumulative count per upper bound.")); err != nil {
		return l, fmt.Errorf("create gauge %s_bucket: %w", def.Name, err)
	}
	if l.count, err = meter.Int64ObservableCounter(def.Name+"_count",
		metric.WithDescription(def.Help+" Observation count.")); err != nil {
		return l, fmt.Errorf("create counter %s_count: %w", def.Name, err)
	}
	if l.sum, err = meter.Float64ObservableCounter(def.Name+"_sum",
		metric.WithDescription(def.Help+" Total observed time."),
		metric.WithUnit("s")); err != nil {
		return l, fmt.Errorf("create counter %s_sum: %w", def.Name, err)
	}
	for i, bound := range internaldefs.HistogramBounds {
		l.le[i] = metric.WithAttributeSet(attribute.NewSet(attribute.String("le", bound)))
	}
	return l, nil
}

func (e *OTelExporter) observe(ctx context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for _, s := range e.series {
		o.ObserveInt64(s.ins, int64(snap.Counters[s.id]), s.opts...)
	}
	for _, l := range e.latencies {
		h := internaldefs.ReadHistogram(snap, l.id)
		for i, n := range h.Buckets {
			o.ObserveInt64(l.buckets, int64(n), l.le[i])
		}
		o.ObserveInt64(l.count, int64(h.Count))
		o.ObserveFloat64(l.sum, h.Sum)
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))

	if e.health != nil {
		rtt, err := e.health.Health(ctx)
		if err != nil {
			o.ObserveInt64(e.storeUp, 0)
			return nil
		}
		o.ObserveInt64(e.storeUp, 1)
		o.ObserveFloat64(e.storePing, rtt.Seconds())
	}
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
