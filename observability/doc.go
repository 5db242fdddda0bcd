// Package observability builds the zap logger used by the service binary and
// adapts Sentry into an authcore audit sink.
package observability
