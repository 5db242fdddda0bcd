package observability

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/getsentry/sentry-go"
)

// InitSentry configures the global hub. An empty dsn leaves Sentry off.
func InitSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
	})
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

// DefaultSentryEvents are the audit events worth paging on.
var DefaultSentryEvents = map[string]sentry.Level{
	authcore.AuditRefreshReuse:        sentry.LevelWarning,
	authcore.AuditAccountLocked:       sentry.LevelInfo,
	authcore.AuditDirectoryWriteError: sentry.LevelError,
}

// SentrySink forwards selected audit events to Sentry as messages. Other
// events are ignored.
type SentrySink struct {
	hub    *sentry.Hub
	levels map[string]sentry.Level
}

// NewSentrySink reports events whose type is in levels. A nil hub uses the
// current global hub; nil levels uses DefaultSentryEvents.
func NewSentrySink(hub *sentry.Hub, levels map[string]sentry.Level) *SentrySink {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	if levels == nil {
		levels = DefaultSentryEvents
	}
	return &SentrySink{hub: hub, levels: levels}
}

func (s *SentrySink) Emit(_ context.Context, event authcore.AuditEvent) {
	level, ok := s.levels[event.EventType]
	if !ok {
		return
	}

	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(level)
		scope.SetTag("audit_event", event.EventType)
		if event.AccountID != "" {
			scope.SetUser(sentry.User{ID: event.AccountID, IPAddress: event.IP})
		}
		if event.RequestID != "" {
			scope.SetTag("request_id", event.RequestID)
		}
		for k, v := range event.Metadata {
			scope.SetExtra(k, v)
		}
		if event.Error != "" {
			scope.SetExtra("error", event.Error)
		}
		s.hub.CaptureMessage("auth: " + event.EventType)
	})
}
