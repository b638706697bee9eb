package gateway

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-billing/app/metrics"
	"github.com/vibast-solutions/ms-go-billing/config"
)

type retrier struct {
	maxRetries      uint64
	initialInterval time.Duration
	maxInterval     time.Duration
}

func newRetrier(cfg config.RetryConfig) retrier {
	r := retrier{
		maxRetries:      cfg.MaxRetries,
		initialInterval: cfg.InitialInterval,
		maxInterval:     cfg.MaxInterval,
	}
	if r.initialInterval <= 0 {
		r.initialInterval = 200 * time.Millisecond
	}
	if r.maxInterval < r.initialInterval {
		r.maxInterval = r.initialInterval
	}
	return r
}

// do runs op until it succeeds, returns a backoff.Permanent error, the
// retry budget is spent, or ctx is done.
func (r retrier) do(ctx context.Context, logger logrus.FieldLogger, provider Provider, operation string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initialInterval
	b.MaxInterval = r.maxInterval
	b.MaxElapsedTime = 0

	start := time.Now()
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := op()
		if err != nil {
			logger.WithError(err).WithFields(logrus.Fields{
				"operation": operation,
				"attempt":   attempt,
			}).Warn("gateway_call_failed")
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, r.maxRetries), ctx))

	observe(provider, operation, start, err)
	return err
}

func observe(provider Provider, operation string, start time.Time, err error) {
	metrics.GatewayLatency.WithLabelValues(provider.String(), operation).Observe(time.Since(start).Seconds())
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.GatewayCalls.WithLabelValues(provider.String(), operation, result).Inc()
}
