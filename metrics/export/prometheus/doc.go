// Package prometheus renders authcore metrics in the Prometheus text
// exposition format.
//
// Engine counters are grouped into families with one label, so the login
// outcomes appear as authcore_login_total{result="success|failure|locked"}
// and logouts as authcore_logout_total{scope="session|account"}. Latency
// histograms end in _latency_seconds and carry _bucket, _sum and _count
// series.
//
// When the source is an [authcore.Engine], every scrape also pings the
// session store and reports authcore_store_up and
// authcore_store_ping_seconds. The ping runs under the scrape request's
// context.
//
// The exporter never registers with a global registry and never mutates
// engine state. Callers mount [PrometheusExporter.Handler].
package prometheus
