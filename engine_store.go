package authcore

import (
	"context"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// callOnce runs op under the store operation timeout without retrying.
// Used for calls that are not safe to repeat: rotation, session creation
// and failure recording.
func (e *Engine) callOnce(ctx context.Context, op func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, e.config.Store.OperationTimeout)
	defer cancel()
	return op(cctx)
}

// callIdempotent runs op under the store operation timeout and retries it
// once after Store.RetryDelay when it fails with an infrastructure error.
// Decision errors (unknown account, invalid refresh token) are returned
// immediately.
func (e *Engine) callIdempotent(ctx context.Context, op func(context.Context) error) error {
	if !e.config.Store.RetryTransient {
		return e.callOnce(ctx, op)
	}

	attempt := func() (struct{}, error) {
		err := e.callOnce(ctx, op)
		if err != nil && isDecision(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(backoff.NewConstantBackOff(e.config.Store.RetryDelay)),
		backoff.WithMaxTries(2),
		backoff.WithNotify(func(err error, wait time.Duration) {
			e.metricInc(MetricStoreRetry)
			e.logger.Warn("retrying store call",
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		}),
	)
	return err
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
