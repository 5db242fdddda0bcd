package prometheus

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

type metricsSource interface {
	MetricsSnapshot() authcore.MetricsSnapshot
	AuditDropped() uint64
}

// storeHealth is implemented by sources that can report session store
// reachability. [authcore.Engine] implements it.
type storeHealth interface {
	Health(ctx context.Context) (time.Duration, error)
}

// PrometheusExporter renders authcore metrics in Prometheus text exposition format.
type PrometheusExporter struct {
	source metricsSource
	health storeHealth
}

// NewPrometheusExporter creates an exporter reading counters from engine.
// Each scrape also pings the session store and reports authcore_store_up.
func NewPrometheusExporter(engine *authcore.Engine) *PrometheusExporter {
	return NewPrometheusExporterFromSource(engine)
}

// NewPrometheusExporterFromSource creates an exporter over any snapshot
// source. Store health is reported when source also has a Health method.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	p := &PrometheusExporter{source: source}
	if h, ok := source.(storeHealth); ok {
		p.health = h
	}
	return p
}

// Handler serves the exposition on GET. The store health check is bound to
// the scrape request's context.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_ = p.Write(r.Context(), w)
	})
}

// Render returns the exposition as a string.
func (p *PrometheusExporter) Render() string {
	var b strings.Builder
	_ = p.Write(context.Background(), &b)
	return b.String()
}

// Write streams the exposition to w. Nothing is written for a source with
// metrics disabled and no store health.
func (p *PrometheusExporter) Write(ctx context.Context, w io.Writer) error {
	if p == nil || p.source == nil {
		return nil
	}

	snap := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()

	ew := &expositionWriter{w: bufio.NewWriterSize(w, 4096)}
	if internaldefs.HasData(snap, dropped) {
		for _, f := range internaldefs.Families {
			ew.family(f, snap.Counters)
		}
		for _, def := range internaldefs.HistogramDefs {
			ew.histogram(def, internaldefs.ReadHistogram(snap, def.ID))
		}
		ew.header(internaldefs.AuditDroppedName, "Audit events dropped under dispatcher backpressure.", "counter")
		ew.sample(internaldefs.AuditDroppedName, "", "", strconv.FormatUint(dropped, 10))
	}
	if p.health != nil {
		p.writeHealth(ctx, ew)
	}
	return ew.flush()
}

func (p *PrometheusExporter) writeHealth(ctx context.Context, ew *expositionWriter) {
	rtt, err := p.health.Health(ctx)
	up := "1"
	if err != nil {
		up = "0"
	}
	ew.header(internaldefs.StoreUpName, "Whether the session store answered the last health check.", "gauge")
	ew.sample(internaldefs.StoreUpName, "", "", up)
	if err == nil {
		ew.header(internaldefs.StorePingName, "Round trip of the last session store health check.", "gauge")
		ew.sample(internaldefs.StorePingName, "", "", formatFloat(rtt.Seconds()))
	}
}

// expositionWriter keeps the first write error and turns later writes into
// no-ops.
type expositionWriter struct {
	w   *bufio.Writer
	err error
}

func (e *expositionWriter) str(s string) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.WriteString(s)
}

func (e *expositionWriter) header(name, help, kind string) {
	e.str("# HELP " + name + " " + escapeHelp(help) + "\n")
	e.str("# TYPE " + name + " " + kind + "\n")
}

func (e *expositionWriter) sample(name, labelKey, labelValue, value string) {
	e.str(name)
	if labelKey != "" {
		e.str("{" + labelKey + "=\"" + escapeLabel(labelValue) + "\"}")
	}
	e.str(" " + value + "\n")
}

func (e *expositionWriter) family(f internaldefs.Family, counters map[authcore.MetricID]uint64) {
	e.header(f.Name, f.Help, "counter")
	for _, s := range f.Series {
		e.sample(f.Name, f.LabelKey, s.Value, strconv.FormatUint(counters[s.ID], 10))
	}
}

func (e *expositionWriter) histogram(def internaldefs.HistogramDef, h internaldefs.Histogram) {
	e.header(def.Name, def.Help, "histogram")
	bucket := def.Name + "_bucket"
	for i, le := range internaldefs.HistogramBounds {
		e.sample(bucket, "le", le, strconv.FormatUint(h.Buckets[i], 10))
	}
	e.sample(def.Name+"_sum", "", "", formatFloat(h.Sum))
	e.sample(def.Name+"_count", "", "", strconv.FormatUint(h.Count, 10))
}

func (e *expositionWriter) flush() error {
	if e.err != nil {
		return e.err
	}
	return e.w.Flush()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, `\`, `\\`)
	return strings.ReplaceAll(help, "\n", `\n`)
}

func escapeLabel(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return strings.ReplaceAll(v, "\n", `\n`)
}
