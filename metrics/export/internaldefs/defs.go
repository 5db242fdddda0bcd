package internaldefs

import (
	"github.com/MrEthical07/authcore"
)

// Family is one exported counter metric. Engine counters that describe
// outcomes of the same operation share a family and differ by a single
// label, so login success, failure and lockout become
// authcore_login_total{result="..."}.
type Family struct {
	Name     string
	Help     string
	LabelKey string
	Series   []Series
}

// Series binds one engine counter to its label value inside a family.
// Value is empty for unlabelled families.
type Series struct {
	ID    authcore.MetricID
	Value string
}

// HistogramDef maps an engine latency histogram to its exported name.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// Families lists every exported counter family in output order. Each engine
// counter appears in exactly one series.
var Families = []Family{
	{
		Name: "authcore_login_total", Help: "Login attempts by outcome.", LabelKey: "result",
		Series: []Series{
			{ID: authcore.MetricLoginSuccess, Value: "success"},
			{ID: authcore.MetricLoginFailure, Value: "failure"},
			{ID: authcore.MetricLoginLocked, Value: "locked"},
		},
	},
	{
		Name: "authcore_account_locked_total", Help: "Failures that moved an account into lockout.",
		Series: []Series{{ID: authcore.MetricAccountLocked}},
	},
	{
		Name: "authcore_refresh_total", Help: "Refresh rotations by outcome.", LabelKey: "result",
		Series: []Series{
			{ID: authcore.MetricRefreshSuccess, Value: "success"},
			{ID: authcore.MetricRefreshFailure, Value: "failure"},
		},
	},
	{
		Name: "authcore_refresh_reuse_detected_total", Help: "Already rotated refresh tokens presented again.",
		Series: []Series{{ID: authcore.MetricRefreshReuseDetected}},
	},
	{
		Name: "authcore_sessions_created_total", Help: "Refresh sessions created by login.",
		Series: []Series{{ID: authcore.MetricSessionCreated}},
	},
	{
		Name: "authcore_sessions_revoked_on_reuse_total", Help: "Accounts whose sessions were revoked after reuse.",
		Series: []Series{{ID: authcore.MetricSessionsRevokedOnReuse}},
	},
	{
		Name: "authcore_logout_total", Help: "Logout operations by scope.", LabelKey: "scope",
		Series: []Series{
			{ID: authcore.MetricLogout, Value: "session"},
			{ID: authcore.MetricLogoutAll, Value: "account"},
		},
	},
	{
		Name: "authcore_validate_total", Help: "Access token validations by outcome.", LabelKey: "result",
		Series: []Series{
			{ID: authcore.MetricValidateSuccess, Value: "success"},
			{ID: authcore.MetricValidateFailure, Value: "failure"},
		},
	},
	{
		Name: "authcore_store_errors_total", Help: "Requests failed by directory or Redis errors.",
		Series: []Series{{ID: authcore.MetricTransientStoreError}},
	},
	{
		Name: "authcore_store_retries_total", Help: "Idempotent store calls retried once.",
		Series: []Series{{ID: authcore.MetricStoreRetry}},
	},
	{
		Name: "authcore_directory_write_failures_total", Help: "Best-effort directory updates that failed.",
		Series: []Series{{ID: authcore.MetricDirectoryWriteFailure}},
	},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricLoginLatency, Name: "authcore_login_latency_seconds", Help: "Login latency."},
	{ID: authcore.MetricRefreshLatency, Name: "authcore_refresh_latency_seconds", Help: "Refresh latency."},
	{ID: authcore.MetricValidateLatency, Name: "authcore_validate_latency_seconds", Help: "Access token validation latency."},
}

const (
	// AuditDroppedName is the counter for audit events lost to backpressure.
	AuditDroppedName = "authcore_audit_dropped_total"
	// StoreUpName is the gauge set to 1 when the session store answered the
	// last health check.
	StoreUpName = "authcore_store_up"
	// StorePingName is the gauge holding the last health check round trip.
	StorePingName = "authcore_store_ping_seconds"
)

// HistogramBounds are the upper bounds of the engine's eight buckets as
// they appear in the le label.
var HistogramBounds = [8]string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// Histogram is a cumulative view of one engine histogram, ready to export.
type Histogram struct {
	Buckets [8]uint64
	Count   uint64
	Sum     float64
}

// ReadHistogram folds the raw per-bucket counts and latency sum for id out
// of snap. Missing buckets count as zero.
func ReadHistogram(snap authcore.MetricsSnapshot, id authcore.MetricID) Histogram {
	var h Histogram
	raw := snap.Histograms[id]
	var running uint64
	for i := range h.Buckets {
		if i < len(raw) {
			running += raw[i]
		}
		h.Buckets[i] = running
	}
	h.Count = running
	h.Sum = snap.LatencySum[id].Seconds()
	return h
}

// HasData reports whether snap or dropped carries anything worth
// exporting. A disabled metrics set yields empty maps.
func HasData(snap authcore.MetricsSnapshot, dropped uint64) bool {
	return len(snap.Counters) > 0 || len(snap.Histograms) > 0 || dropped > 0
}
